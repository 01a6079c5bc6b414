package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
)

// MemoryStore is an in-process cache store for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	tenants    map[string]map[string]storage.CacheEntry
	maxEntries int
}

// NewMemoryStore creates a store holding at most maxEntries entries per tenant.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryStore{
		tenants:    make(map[string]map[string]storage.CacheEntry),
		maxEntries: maxEntries,
	}
}

// GetByHash returns the unexpired entry for (tenantID, hash).
func (s *MemoryStore) GetByHash(_ context.Context, tenantID, hash string, now time.Time) (*storage.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.tenants[tenantID][hash]
	if !ok || entry.Expired(now) {
		return nil, storage.ErrNotFound
	}
	return &entry, nil
}

// IncrementHit bumps the hit counter and returns the new value.
func (s *MemoryStore) IncrementHit(_ context.Context, tenantID, hash string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tenants[tenantID][hash]
	if !ok {
		return 0, storage.ErrNotFound
	}
	entry.HitCount++
	hitAt := at
	entry.LastHitAt = &hitAt
	s.tenants[tenantID][hash] = entry
	return entry.HitCount, nil
}

// ListActive returns up to limit unexpired entries of the tenant, newest first.
func (s *MemoryStore) ListActive(_ context.Context, tenantID string, now time.Time, limit int) ([]storage.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]storage.CacheEntry, 0, len(s.tenants[tenantID]))
	for _, e := range s.tenants[tenantID] {
		if !e.Expired(now) {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].QueryHash < entries[j].QueryHash
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Upsert writes the entry. An existing hit count and creation time are preserved.
func (s *MemoryStore) Upsert(_ context.Context, entry *storage.CacheEntry) error {
	if entry.TenantID == "" {
		return storage.ErrInvalidTenant
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.HitCount == 0 {
		entry.HitCount = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.tenants[entry.TenantID]
	if !ok {
		bucket = make(map[string]storage.CacheEntry)
		s.tenants[entry.TenantID] = bucket
	}

	stored := *entry
	prev, exists := bucket[entry.QueryHash]
	if exists && !prev.Expired(entry.CreatedAt) {
		stored.ID = prev.ID
		stored.HitCount = prev.HitCount
		stored.CreatedAt = prev.CreatedAt
		stored.LastHitAt = prev.LastHitAt
	} else if !exists && len(bucket) >= s.maxEntries {
		evictOldest(bucket)
	}
	bucket[entry.QueryHash] = stored
	return nil
}

// Len returns the number of entries held for a tenant, expired ones included.
func (s *MemoryStore) Len(tenantID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tenants[tenantID])
}

func evictOldest(bucket map[string]storage.CacheEntry) {
	var (
		oldestKey  string
		oldestTime time.Time
	)
	for k, e := range bucket {
		if oldestKey == "" || e.CreatedAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.CreatedAt
		}
	}
	if oldestKey != "" {
		delete(bucket, oldestKey)
	}
}
