package deduplication

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"docintake/common"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func sampleFingerprint(owner string, n int) Fingerprint {
	return Fingerprint{
		ID:          fmt.Sprintf("fp_%s_%d", owner, n),
		OwnerID:     owner,
		BinaryHash:  fmt.Sprintf("%064d", n),
		ContentHash: ContentHash(Fields{Merchant: "Shop", Amount: float64(n)}),
		Merchant:    "Shop",
		Amount:      float64(n),
		Date:        "2024-03-01",
		Confidence:  0.9,
		CapturedAt:  time.Date(2024, 3, 1, 0, 0, n, 0, time.UTC).UnixMilli(),
		FileMeta:    FileMeta{Size: 10, Name: "r.png", LastModified: 1700000000000},
	}
}

// exerciseStore runs the contract every FingerprintStore must satisfy.
func exerciseStore(t *testing.T, store FingerprintStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	empty, err := store.Load(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.Append(ctx, sampleFingerprint("owner-a", i)))
	}
	require.NoError(t, store.Append(ctx, sampleFingerprint("owner-b", 9)))

	got, err := store.Load(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, sampleFingerprint("owner-a", 1), got[0])
	assert.Equal(t, sampleFingerprint("owner-a", 3), got[2])

	require.NoError(t, store.Clear(ctx, "owner-a"))
	got, err = store.Load(ctx, "owner-a")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = store.Load(ctx, "owner-b")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Append(ctx, sampleFingerprint("o", 1)))

	snap, err := m.Load(ctx, "o")
	require.NoError(t, err)
	snap[0].Merchant = "mutated"

	again, err := m.Load(ctx, "o")
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "Shop", again[0].Merchant)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exerciseStore(t, NewRedisStoreWithClient(client, "test:fp", 0))
}

func TestRedisStoreTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(RedisStoreConfig{Addr: mr.Addr(), KeyPrefix: "test:fp", TTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Append(context.Background(), sampleFingerprint("o", 1)))
	assert.Equal(t, time.Hour, mr.TTL("test:fp:o"))
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(RedisStoreConfig{Addr: addr})
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestGormStore(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:gormstore?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store, err := NewGormStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store)
}

func TestOpenGormStoreUnknownDriver(t *testing.T) {
	_, err := OpenGormStore("mysql", "")
	assert.ErrorContains(t, err, "unsupported sql driver")
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Put(_ context.Context, bucket, key string, body io.Reader, _ string) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = b
	return nil
}

func (f *fakeObjects) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeObjects) Delete(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, bucket+"/"+key)
	return nil
}

func (f *fakeObjects) HeadBucket(context.Context, string) error { return nil }

func TestS3Store(t *testing.T) {
	objects := newFakeObjects()
	store := NewS3Store(objects, "bucket", "/tenants/")
	exerciseStore(t, store)

	require.NoError(t, store.Append(context.Background(), sampleFingerprint("user/with slash", 1)))
	_, ok := objects.objects["bucket/tenants/fingerprints/user%2Fwith%20slash.json"]
	assert.True(t, ok)
}
