package deduplication

import (
	"context"
	"slices"
	"sync"
)

// FingerprintStore persists fingerprints per owner. Implementations must be
// safe for concurrent use and must never return another owner's records.
type FingerprintStore interface {
	Load(ctx context.Context, ownerID string) ([]Fingerprint, error)
	Append(ctx context.Context, fp Fingerprint) error
	Clear(ctx context.Context, ownerID string) error
	Ping(ctx context.Context) error
}

// MemoryStore keeps fingerprints in a mutex-guarded map. It is the detector's
// cache and also serves as the store when no durable backend is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	byOwner map[string][]Fingerprint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byOwner: make(map[string][]Fingerprint)}
}

// Load returns a copy of the owner's fingerprints in insertion order.
func (m *MemoryStore) Load(_ context.Context, ownerID string) ([]Fingerprint, error) {
	return m.snapshot(ownerID), nil
}

func (m *MemoryStore) Append(_ context.Context, fp Fingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byOwner[fp.OwnerID] = append(m.byOwner[fp.OwnerID], fp)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byOwner, ownerID)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// Count returns the number of fingerprints held for ownerID.
func (m *MemoryStore) Count(ownerID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byOwner[ownerID])
}

func (m *MemoryStore) snapshot(ownerID string) []Fingerprint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.byOwner[ownerID])
}

// replace swaps in a freshly loaded set for ownerID.
func (m *MemoryStore) replace(ownerID string, fps []Fingerprint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byOwner[ownerID] = slices.Clone(fps)
}
