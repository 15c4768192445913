package deduplication

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStoreConfig configures the Redis connection and key layout
type RedisStoreConfig struct {
	Addr      string // e.g. localhost:6379
	Password  string
	DB        int
	KeyPrefix string // default "docintake:fingerprints"
	// TTL, when set, expires an owner's list that long after its most recent append.
	TTL time.Duration
}

// RedisStore keeps each owner's fingerprints as a Redis list of JSON documents.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "docintake:fingerprints"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(ownerID string) string {
	return r.prefix + ":" + ownerID
}

func (r *RedisStore) Load(ctx context.Context, ownerID string) ([]Fingerprint, error) {
	raw, err := r.client.LRange(ctx, r.key(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load fingerprints for %s: %w", ownerID, err)
	}

	out := make([]Fingerprint, 0, len(raw))
	for i, item := range raw {
		var fp Fingerprint
		if err := json.Unmarshal([]byte(item), &fp); err != nil {
			return nil, fmt.Errorf("decode fingerprint %d for %s: %w", i, ownerID, err)
		}
		out = append(out, fp)
	}
	return out, nil
}

func (r *RedisStore) Append(ctx context.Context, fp Fingerprint) error {
	b, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("encode fingerprint: %w", err)
	}

	key := r.key(fp.OwnerID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, b)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append fingerprint for %s: %w", fp.OwnerID, err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, ownerID string) error {
	return r.client.Del(ctx, r.key(ownerID)).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying Redis client
func (r *RedisStore) Close() error {
	return r.client.Close()
}
