package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/config"
)

func TestPostgres_Integration(t *testing.T) {
	if testing.Short() || os.Getenv("ANSWER_ENGINE_INTEGRATION") == "" {
		t.Skip("set ANSWER_ENGINE_INTEGRATION=1 to run postgres integration tests")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("answer_engine_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := Open(ctx, config.DatabaseConfig{
		Driver:   "postgres",
		Postgres: config.PostgresConfig{DSN: dsn, MaxOpenConns: 5, MaxIdleConns: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = NewMigrator(conn).Up(ctx)
	require.NoError(t, err)

	caps, err := ProbeCapabilities(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, FullCapabilities(DialectPostgres), caps)

	repos := NewRepositories(conn)
	now := time.Now().UTC()

	require.NoError(t, repos.Cache.Upsert(ctx, &CacheEntry{
		TenantID: "tenant-a", QueryHash: "h", QueryText: "q", AnswerText: "a",
		TrustLevel: TrustVerified, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	hits, err := repos.Cache.IncrementHit(ctx, "tenant-a", "h", now)
	require.NoError(t, err)
	assert.Equal(t, 2, hits)

	require.NoError(t, repos.DocumentChunks.ReplaceSource(ctx, "tenant-a", "doc-1", []EmbeddingChunk{
		{ChunkIndex: 0, Text: "Our office is at 123 Main St", Embedding: []float32{0.1, 0.2}},
	}))
	chunks, err := repos.DocumentChunks.Candidates(ctx, "tenant-a", 10)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []float32{0.1, 0.2}, chunks[0].Embedding)

	item := &KnowledgeItem{TenantID: "tenant-a", Question: "Q?", NormalizedQuestion: "q", Answer: "A"}
	require.NoError(t, repos.Knowledge.Upsert(ctx, item))
	got, err := repos.Knowledge.GetByNormalizedQuestion(ctx, "tenant-a", "q")
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
}
