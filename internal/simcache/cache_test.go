package simcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/textmatch"
)

type failingStore struct{}

func (failingStore) GetByHash(context.Context, string, string, time.Time) (*storage.CacheEntry, error) {
	return nil, errors.New("connection reset")
}
func (failingStore) IncrementHit(context.Context, string, string, time.Time) (int, error) {
	return 0, errors.New("connection reset")
}
func (failingStore) ListActive(context.Context, string, time.Time, int) ([]storage.CacheEntry, error) {
	return nil, errors.New("connection reset")
}
func (failingStore) Upsert(context.Context, *storage.CacheEntry) error {
	return errors.New("connection reset")
}

func newTestCache(store Store, opts ...Option) *Cache {
	return New(store, nil, DefaultConfig(), nil, nil, opts...)
}

func TestCache_SecondIdenticalCallIncrementsHitCount(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(cache.NewMemoryStore(0))

	require.True(t, c.Store(ctx, "tenant-a", "What are your delivery terms?", "We deliver in 3 days.", Tag{SourceTag: "website_content"}))

	first := c.LookupExact(ctx, "tenant-a", "What are your delivery terms?")
	require.NotNil(t, first)
	assert.Equal(t, 2, first.Entry.HitCount)
	assert.Equal(t, 1.0, first.Similarity)
	assert.True(t, first.Exact)

	second := c.LookupExact(ctx, "tenant-a", "  what are your delivery terms?")
	require.NotNil(t, second)
	assert.Equal(t, first.Entry.HitCount+1, second.Entry.HitCount)
}

func TestCache_ContextDependentQueriesNeverStored(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(0)
	c := newTestCache(store)

	for _, q := range []string{"ok", "tell me more", "it", "and?", "what about that one"} {
		t.Run(q, func(t *testing.T) {
			assert.False(t, c.Store(ctx, "tenant-a", q, "some answer", Tag{}))
		})
	}
	assert.Zero(t, store.Len("tenant-a"))
}

func TestCache_LongContinuationPhrasedQueryIsStored(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(0)
	c := newTestCache(store)

	q := "what about your return policy for damaged goods"
	require.True(t, c.Store(ctx, "tenant-a", q, "Damaged goods are replaced free of charge.", Tag{SourceTag: "website_content"}))
	hit := c.LookupExact(ctx, "tenant-a", q)
	require.NotNil(t, hit)
	assert.Equal(t, "Damaged goods are replaced free of charge.", hit.Entry.AnswerText)
}

func TestCache_FuzzyThresholdBoundary(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		score    float64
		accepted bool
	}{
		{"exactly at threshold", 0.80, true},
		{"just below threshold", 0.79, false},
		{"above threshold", 0.95, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := cache.NewMemoryStore(0)
			c := newTestCache(store, WithScorer(func(a, b string) float64 { return tt.score }))
			require.True(t, c.Store(ctx, "tenant-a", "what are your delivery terms", "3 days", Tag{}))

			match := c.LookupFuzzy(ctx, "tenant-a", "what are the delivery terms", 10)
			if tt.accepted {
				require.NotNil(t, match)
				assert.Equal(t, tt.score, match.Similarity)
				assert.False(t, match.Exact)
				assert.Equal(t, 2, match.Entry.HitCount)
			} else {
				assert.Nil(t, match)
			}
		})
	}
}

func TestCache_FuzzyDiceMatch(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(cache.NewMemoryStore(0))
	require.True(t, c.Store(ctx, "tenant-a", "what are your delivery terms", "3 days", Tag{}))

	match := c.LookupFuzzy(ctx, "tenant-a", "what are your delivery term?", 0)
	require.NotNil(t, match)
	assert.GreaterOrEqual(t, match.Similarity, 0.80)

	assert.Nil(t, c.LookupFuzzy(ctx, "tenant-a", "do you have blue office chairs", 0))
}

func TestCache_FuzzyTieKeepsFirstEncountered(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(0)
	now := time.Now().UTC()
	for i, q := range []string{"older delivery question", "newer delivery question"} {
		require.NoError(t, store.Upsert(ctx, &storage.CacheEntry{
			TenantID: "tenant-a", QueryHash: textmatch.HashQuery(q), QueryText: q, AnswerText: q,
			TrustLevel: storage.TrustVerified, CreatedAt: now.Add(time.Duration(i) * time.Second),
			ExpiresAt: now.Add(time.Hour),
		}))
	}

	c := newTestCache(store, WithScorer(func(a, b string) float64 { return 0.9 }))
	match := c.LookupFuzzy(ctx, "tenant-a", "delivery question please", 10)
	require.NotNil(t, match)
	// ListActive returns newest first
	assert.Equal(t, "newer delivery question", match.Entry.QueryText)
}

func TestCache_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(cache.NewMemoryStore(0))
	require.True(t, c.Store(ctx, "tenant-a", "What are your delivery terms?", "A's answer", Tag{}))

	assert.Nil(t, c.LookupExact(ctx, "tenant-b", "What are your delivery terms?"))
	assert.Nil(t, c.LookupFuzzy(ctx, "tenant-b", "What are your delivery terms?", 10))
}

func TestCache_ExpiredEntriesIgnored(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	clock := now
	c := newTestCache(cache.NewMemoryStore(0), WithClock(func() time.Time { return clock }))
	require.True(t, c.Store(ctx, "tenant-a", "What are your delivery terms?", "3 days", Tag{}))

	clock = now.Add(91 * 24 * time.Hour)
	assert.Nil(t, c.LookupExact(ctx, "tenant-a", "What are your delivery terms?"))
	assert.Nil(t, c.LookupFuzzy(ctx, "tenant-a", "What are your delivery terms?", 10))
}

func TestCache_UnverifiedEntries(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore(0)
	now := time.Now().UTC()

	cfg := DefaultConfig()
	c := New(store, nil, cfg, nil, nil, WithClock(func() time.Time { return now }))
	require.True(t, c.Store(ctx, "tenant-a", "Do you integrate with Shopify?", "Possibly, could you share more?",
		Tag{SourceTag: "generative_fallback", Trust: storage.TrustUnverified}))

	entry, err := store.GetByHash(ctx, "tenant-a", textmatch.HashQuery("Do you integrate with Shopify?"), now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(cfg.UnverifiedRetention), entry.ExpiresAt)

	match := c.LookupExact(ctx, "tenant-a", "Do you integrate with Shopify?")
	require.NotNil(t, match)
	assert.Equal(t, storage.TrustUnverified, match.Entry.TrustLevel)

	cfg.ServeUnverified = false
	strict := New(store, nil, cfg, nil, nil, WithClock(func() time.Time { return now }))
	assert.Nil(t, strict.LookupExact(ctx, "tenant-a", "Do you integrate with Shopify?"))
	assert.Nil(t, strict.LookupFuzzy(ctx, "tenant-a", "Do you integrate with Shopify?", 10))
}

func TestCache_StorageFailuresAreMisses(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(failingStore{})

	assert.Nil(t, c.LookupExact(ctx, "tenant-a", "What are your delivery terms?"))
	assert.Nil(t, c.LookupFuzzy(ctx, "tenant-a", "What are your delivery terms?", 10))
	assert.False(t, c.Store(ctx, "tenant-a", "What are your delivery terms?", "3 days", Tag{}))
}
