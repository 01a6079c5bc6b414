package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
)

type entryStore interface {
	GetByHash(ctx context.Context, tenantID, hash string, now time.Time) (*storage.CacheEntry, error)
	IncrementHit(ctx context.Context, tenantID, hash string, at time.Time) (int, error)
	ListActive(ctx context.Context, tenantID string, now time.Time, limit int) ([]storage.CacheEntry, error)
	Upsert(ctx context.Context, entry *storage.CacheEntry) error
}

func exerciseStore(t *testing.T, store entryStore) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.Upsert(ctx, &storage.CacheEntry{
		TenantID: "tenant-a", QueryHash: "h1", QueryText: "delivery terms", AnswerText: "3 days",
		SourceTag: "website_content", TrustLevel: storage.TrustVerified,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, store.Upsert(ctx, &storage.CacheEntry{
		TenantID: "tenant-a", QueryHash: "h2", QueryText: "refund policy", AnswerText: "30 days",
		TrustLevel: storage.TrustUnverified, CreatedAt: now.Add(time.Second), ExpiresAt: now.Add(time.Hour),
	}))

	got, err := store.GetByHash(ctx, "tenant-a", "h1", now)
	require.NoError(t, err)
	assert.Equal(t, "3 days", got.AnswerText)
	assert.Equal(t, 1, got.HitCount)
	assert.Equal(t, now, got.CreatedAt)

	hits, err := store.IncrementHit(ctx, "tenant-a", "h1", now)
	require.NoError(t, err)
	assert.Equal(t, 2, hits)

	// upsert again keeps the counter
	require.NoError(t, store.Upsert(ctx, &storage.CacheEntry{
		TenantID: "tenant-a", QueryHash: "h1", QueryText: "delivery terms", AnswerText: "2 days",
		TrustLevel: storage.TrustVerified, CreatedAt: now.Add(5 * time.Second), ExpiresAt: now.Add(time.Hour),
	}))
	got, err = store.GetByHash(ctx, "tenant-a", "h1", now)
	require.NoError(t, err)
	assert.Equal(t, "2 days", got.AnswerText)
	assert.Equal(t, 2, got.HitCount)

	_, err = store.GetByHash(ctx, "tenant-b", "h1", now)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetByHash(ctx, "tenant-a", "h1", now.Add(2*time.Hour))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.IncrementHit(ctx, "tenant-a", "missing", now)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := store.ListActive(ctx, "tenant-a", now, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "h2", list[0].QueryHash)
	assert.Equal(t, storage.TrustUnverified, list[0].TrustLevel)

	list, err = store.ListActive(ctx, "tenant-a", now, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, store.Upsert(ctx, &storage.CacheEntry{QueryHash: "x"}), storage.ErrInvalidTenant)

	// storing over an expired entry starts a new one
	later := now.Add(2 * time.Hour)
	require.NoError(t, store.Upsert(ctx, &storage.CacheEntry{
		TenantID: "tenant-a", QueryHash: "h1", QueryText: "delivery terms", AnswerText: "next day",
		TrustLevel: storage.TrustVerified, CreatedAt: later, ExpiresAt: later.Add(time.Hour),
	}))
	got, err = store.GetByHash(ctx, "tenant-a", "h1", later)
	require.NoError(t, err)
	assert.Equal(t, "next day", got.AnswerText)
	assert.Equal(t, 1, got.HitCount)
	assert.Equal(t, later, got.CreatedAt)
	assert.Nil(t, got.LastHitAt)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(100))
}

func TestMemoryStore_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)
	now := time.Now()

	for i, h := range []string{"a", "b", "c"} {
		require.NoError(t, store.Upsert(ctx, &storage.CacheEntry{
			TenantID: "t", QueryHash: h, CreatedAt: now.Add(time.Duration(i) * time.Second), ExpiresAt: now.Add(time.Hour),
		}))
	}

	assert.Equal(t, 2, store.Len("t"))
	_, err := store.GetByHash(ctx, "t", "a", now)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRedisStore_Integration(t *testing.T) {
	if testing.Short() || os.Getenv("ANSWER_ENGINE_INTEGRATION") == "" {
		t.Skip("set ANSWER_ENGINE_INTEGRATION=1 to run redis integration tests")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7.4-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	store, err := NewRedisStore(ctx, RedisConfig{Addr: host + ":" + port.Port(), Prefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	exerciseStore(t, store)
}
