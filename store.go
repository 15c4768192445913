package main

import (
	"context"
	"fmt"

	"docintake/common"
	"docintake/config"
	"docintake/deduplication"
)

// openFingerprintStore returns the durable store for cfg.Driver, or nil for
// "memory". The close func is never nil.
func openFingerprintStore(ctx context.Context, cfg config.StoreConfig) (deduplication.FingerprintStore, func(), error) {
	noop := func() {}

	switch cfg.Driver {
	case "", "memory":
		return nil, noop, nil
	case "redis":
		s, err := deduplication.NewRedisStore(deduplication.RedisStoreConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisPrefix,
			TTL:       cfg.RedisTTL,
		})
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres", "sqlite":
		s, err := deduplication.OpenGormStore(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil
	case "s3":
		objects, err := common.NewS3(ctx, common.S3Config{
			Region:       cfg.S3Region,
			Profile:      cfg.S3Profile,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, noop, err
		}
		return deduplication.NewS3Store(objects, cfg.S3Bucket, cfg.S3Prefix), noop, nil
	}
	return nil, noop, fmt.Errorf("unsupported store driver %q", cfg.Driver)
}
