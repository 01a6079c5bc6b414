package vectorindex

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
)

func newTestRepos(t *testing.T) *storage.Repositories {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	conn := storage.NewConn(db, storage.DialectSQLite)
	_, err = storage.NewMigrator(conn).Up(context.Background())
	require.NoError(t, err)
	return storage.NewRepositories(conn)
}

func newTestIndex(t *testing.T, corpus storage.Corpus, embedder embedding.Embedder) *Index {
	repos := newTestRepos(t)
	return New(corpus, repos.Chunks(corpus), repos.Sources, embedder,
		storage.FullCapabilities(storage.DialectSQLite), DefaultConfig(), nil)
}

// flakyEmbedder fails batch calls and succeeds one text at a time.
type flakyEmbedder struct {
	*embedding.HashingEmbedder
	failSingle bool
}

func (f *flakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) > 1 {
		return nil, errors.New("batch endpoint unavailable")
	}
	return f.HashingEmbedder.Embed(ctx, texts)
}

func (f *flakyEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if f.failSingle {
		return nil, context.DeadlineExceeded
	}
	return f.HashingEmbedder.EmbedSingle(ctx, text)
}

func TestIndex_SearchFindsVerbatimSentence(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, storage.CorpusDocuments, embedding.NewHashingEmbedder(256))

	n, err := ix.Index(ctx, "tenant-a", SourceRef{ID: "doc-1", Label: "company.pdf"},
		"Our office is at 123 Main St. We are open Monday to Friday.")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := ix.Search(ctx, "tenant-a", "where is your office?", SearchOptions{Limit: 3, MinSimilarity: 0.1})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Text, "Our office is at 123 Main St")
	assert.Equal(t, "company.pdf", results[0].SourceLabel)
	require.NotNil(t, results[0].Similarity)
	assert.False(t, results[0].BestEffort)
}

func TestIndex_BestEffortWhenBelowThreshold(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, storage.CorpusWebsite, embedding.NewHashingEmbedder(256))

	_, err := ix.Index(ctx, "tenant-a", SourceRef{ID: "p1", Label: "Home", URL: "https://shop.test/"},
		"Handmade ceramics fired in small batches.")
	require.NoError(t, err)

	results, err := ix.Search(ctx, "tenant-a", "do you sell bicycles", SearchOptions{Limit: 2, MinSimilarity: 0.99})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].BestEffort)
}

func TestIndex_ReindexReplacesChunks(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	ix := New(storage.CorpusDocuments, repos.DocumentChunks, repos.Sources, embedding.NewHashingEmbedder(64),
		storage.FullCapabilities(storage.DialectSQLite), DefaultConfig(), nil)

	long := strings.Repeat("The warranty covers manufacturing defects for two years. ", 60)
	first, err := ix.Index(ctx, "tenant-a", SourceRef{ID: "doc-1", Label: "warranty.pdf"}, long)
	require.NoError(t, err)
	assert.Greater(t, first, 1)

	second, err := ix.Index(ctx, "tenant-a", SourceRef{ID: "doc-1", Label: "warranty.pdf"}, "Short replacement text.")
	require.NoError(t, err)
	assert.Equal(t, 1, second)

	count, err := repos.DocumentChunks.CountBySource(ctx, "tenant-a", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIndex_PerChunkFallbackWhenBatchFails(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Chunker = ChunkerConfig{Size: 60, Overlap: 10, MaxChunks: 10}
	repos := newTestRepos(t)
	ix := New(storage.CorpusDocuments, repos.DocumentChunks, repos.Sources,
		&flakyEmbedder{HashingEmbedder: embedding.NewHashingEmbedder(64)},
		storage.FullCapabilities(storage.DialectSQLite), cfg, nil)

	n, err := ix.Index(ctx, "tenant-a", SourceRef{ID: "doc-1", Label: "faq.txt"},
		"Returns are accepted within thirty days. Refunds go back to the original card. Exchanges are free.")
	require.NoError(t, err)
	require.Greater(t, n, 1)

	chunks, err := repos.DocumentChunks.Candidates(ctx, "tenant-a", 100)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.NotEmpty(t, c.Embedding, "chunk %d should be embedded individually", c.ChunkIndex)
	}
}

func TestIndex_LexicalFallbackWhenQueryEmbeddingFails(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	caps := storage.FullCapabilities(storage.DialectSQLite)

	writer := New(storage.CorpusWebsite, repos.WebsiteChunks, repos.Sources, embedding.NewHashingEmbedder(64), caps, DefaultConfig(), nil)
	_, err := writer.Index(ctx, "tenant-a", SourceRef{ID: "p1", Label: "Contact us", URL: "https://shop.test/contact"},
		"Call us on 555-0100 or email hello@shop.test.")
	require.NoError(t, err)
	_, err = writer.Index(ctx, "tenant-a", SourceRef{ID: "p2", Label: "Blog", URL: "https://shop.test/blog"},
		"Our latest glaze experiments.")
	require.NoError(t, err)

	reader := New(storage.CorpusWebsite, repos.WebsiteChunks, repos.Sources,
		&flakyEmbedder{HashingEmbedder: embedding.NewHashingEmbedder(64), failSingle: true}, caps, DefaultConfig(), nil)

	results, err := reader.Search(ctx, "tenant-a", "how do I contact you", SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Similarity)
	assert.Equal(t, "p1", results[0].SourceID)
	assert.Equal(t, 2, results[0].LexicalScore)
}

type staticTexts []storage.SourceText

func (s staticTexts) SourceTexts(_ context.Context, _ storage.Corpus, _ string, _ int) ([]storage.SourceText, error) {
	return s, nil
}

func TestIndex_LexicalOverSourcesWithoutEmbeddingTable(t *testing.T) {
	ctx := context.Background()
	texts := staticTexts{
		{SourceID: "d1", Label: "shipping-policy.pdf", Text: "Orders ship within two business days."},
		{SourceID: "d2", Label: "about.pdf", Text: "We were founded in 1999 and ship worldwide."},
	}
	ix := New(storage.CorpusDocuments, nil, texts, embedding.NewHashingEmbedder(64),
		storage.Capabilities{Dialect: storage.DialectSQLite}, DefaultConfig(), nil)

	n, err := ix.Index(ctx, "tenant-a", SourceRef{ID: "d3"}, "ignored")
	require.NoError(t, err)
	assert.Zero(t, n)

	results, err := ix.Search(ctx, "tenant-a", "shipping times", SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].SourceID)
	assert.Nil(t, results[0].Similarity)
}

func TestIndex_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, storage.CorpusDocuments, embedding.NewHashingEmbedder(128))

	_, err := ix.Index(ctx, "tenant-a", SourceRef{ID: "doc-1", Label: "a.pdf"}, "Our office is at 123 Main St")
	require.NoError(t, err)

	results, err := ix.Search(ctx, "tenant-b", "where is your office?", SearchOptions{Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = ix.Search(ctx, "", "where is your office?", SearchOptions{})
	assert.ErrorIs(t, err, storage.ErrInvalidTenant)
}

func TestBoost(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		label  string
		url    string
		expect float64
	}{
		{"contact page", "how can I contact you", "Contact", "https://x.test/contact", 1.3},
		{"unrelated page", "how can I contact you", "Blog", "https://x.test/blog", 1.0},
		{"no trigger", "what colours do you have", "Contact", "", 1.0},
		{"two rules", "contact about shipping", "Contact and shipping", "", 1.3 * 1.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expect, boost(tt.query, tt.label, tt.url, 1.3), 1e-9)
		})
	}
}

// downEmbedder fails every call.
type downEmbedder struct {
	*embedding.HashingEmbedder
}

func (downEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding service down")
}

func (downEmbedder) EmbedSingle(context.Context, string) ([]float32, error) {
	return nil, context.DeadlineExceeded
}

func TestIndex_UnembeddedChunksStayReachable(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	caps := storage.FullCapabilities(storage.DialectSQLite)
	hashing := embedding.NewHashingEmbedder(64)

	ix := New(storage.CorpusDocuments, repos.DocumentChunks, repos.Sources, hashing, caps, DefaultConfig(), nil)
	_, err := ix.Index(ctx, "tenant-a", SourceRef{ID: "doc-a", Label: "about.pdf"}, "Our office is at 123 Main St.")
	require.NoError(t, err)

	degraded := New(storage.CorpusDocuments, repos.DocumentChunks, repos.Sources,
		downEmbedder{HashingEmbedder: hashing}, caps, DefaultConfig(), nil)
	_, err = degraded.Index(ctx, "tenant-a", SourceRef{ID: "doc-b", Label: "care.pdf"},
		"Every chair has a five year warranty on the frame.")
	require.NoError(t, err)

	chunks, err := repos.DocumentChunks.Candidates(ctx, "tenant-a", 10)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	results, err := ix.Search(ctx, "tenant-a", "how long is the chair frame guaranteed", SearchOptions{Limit: 5, MinSimilarity: 0.99})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc-b", results[0].SourceID)
	assert.Nil(t, results[0].Similarity)
	assert.Positive(t, results[0].LexicalScore)

	results, err = ix.Search(ctx, "tenant-a", "how long is the chair frame guaranteed", SearchOptions{Limit: 5})
	require.NoError(t, err)
	var ids []string
	for _, r := range results {
		ids = append(ids, r.SourceID)
	}
	assert.Contains(t, ids, "doc-b")
}
