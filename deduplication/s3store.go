package deduplication

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"docintake/common"
)

// ObjectStore is the subset of common.S3 used by S3Store.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, key string) error
	HeadBucket(ctx context.Context, bucket string) error
}

// S3Store keeps one JSON array object per owner. Appends are read-modify-write
// and serialized per process only; run a single writer per bucket prefix.
type S3Store struct {
	objects ObjectStore
	bucket  string
	prefix  string
	mu      sync.Mutex
}

func NewS3Store(objects ObjectStore, bucket, prefix string) *S3Store {
	if prefix != "" {
		prefix = strings.Trim(prefix, "/") + "/"
	}
	return &S3Store{objects: objects, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(ownerID string) string {
	return s.prefix + "fingerprints/" + url.PathEscape(ownerID) + ".json"
}

func (s *S3Store) Load(ctx context.Context, ownerID string) ([]Fingerprint, error) {
	return s.read(ctx, ownerID)
}

func (s *S3Store) read(ctx context.Context, ownerID string) ([]Fingerprint, error) {
	body, err := s.objects.Get(ctx, s.bucket, s.key(ownerID))
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fingerprints for %s: %w", ownerID, err)
	}
	defer body.Close()

	var fps []Fingerprint
	if err := json.NewDecoder(body).Decode(&fps); err != nil {
		return nil, fmt.Errorf("decode fingerprints for %s: %w", ownerID, err)
	}
	return fps, nil
}

func (s *S3Store) Append(ctx context.Context, fp Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fps, err := s.read(ctx, fp.OwnerID)
	if err != nil {
		return err
	}
	fps = append(fps, fp)

	b, err := json.Marshal(fps)
	if err != nil {
		return fmt.Errorf("encode fingerprints: %w", err)
	}
	if err := s.objects.Put(ctx, s.bucket, s.key(fp.OwnerID), bytes.NewReader(b), "application/json"); err != nil {
		return fmt.Errorf("put fingerprints for %s: %w", fp.OwnerID, err)
	}
	return nil
}

func (s *S3Store) Clear(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects.Delete(ctx, s.bucket, s.key(ownerID))
}

func (s *S3Store) Ping(ctx context.Context) error {
	return s.objects.HeadBucket(ctx, s.bucket)
}
