package retrieval

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/evidence"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/knowledgebase"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/simcache"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/vectorindex"
)

type testEngine struct {
	router    *Router
	repos     *storage.Repositories
	knowledge *knowledgebase.Matcher
	documents *vectorindex.Index
	website   *vectorindex.Index
	fallback  *fakeFallback
}

// newTestEngine wires the router over an in-memory sqlite database, the hashing
// embedder and the extractive evidence gate.
func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	conn := storage.NewConn(db, storage.DialectSQLite)
	_, err = storage.NewMigrator(conn).Up(context.Background())
	require.NoError(t, err)

	repos := storage.NewRepositories(conn)
	caps := storage.FullCapabilities(storage.DialectSQLite)
	embedder := embedding.NewHashingEmbedder(256)

	cat, err := catalog.New(repos.Products, 5, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	e := &testEngine{
		repos:     repos,
		knowledge: knowledgebase.NewMatcher(repos.Knowledge, knowledgebase.DefaultOptions(), nil),
		documents: vectorindex.New(storage.CorpusDocuments, repos.DocumentChunks, repos.Sources, embedder, caps, vectorindex.DefaultConfig(), nil),
		website:   vectorindex.New(storage.CorpusWebsite, repos.WebsiteChunks, repos.Sources, embedder, caps, vectorindex.DefaultConfig(), nil),
		fallback:  &fakeFallback{answer: "I could not confirm that. Could you share more details?"},
	}
	e.router = NewRouter(Dependencies{
		Cache:     simcache.New(repos.Cache, nil, simcache.DefaultConfig(), nil, nil),
		Knowledge: e.knowledge,
		Catalog:   cat,
		Documents: e.documents,
		Website:   e.website,
		Gate:      evidence.NewGate(evidence.NewExtractiveClassifier(), nil, nil),
		Fallback:  e.fallback,
	}, DefaultConfig())
	return e
}

func TestEndToEnd_OrderTrackingWithoutMatchingContextIsNoAnswer(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, err := e.website.Index(ctx, "tenant-a", vectorindex.SourceRef{ID: "shipping", URL: "https://shop.test/shipping"},
		"Orders ship within 2 business days. Track your shipment on the courier website.")
	require.NoError(t, err)

	res, err := e.router.Resolve(ctx, Request{TenantID: "tenant-a", Query: "track my shipment 1099492944"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoAnswer, res.Outcome)
	assert.Equal(t, GroundednessNone, res.Groundedness)
	assert.Empty(t, res.ResponseText)
	assert.Zero(t, e.fallback.calls)
}

func TestEndToEnd_WebsiteAnswerServedFromCacheOnRepeat(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, err := e.website.Index(ctx, "tenant-a", vectorindex.SourceRef{ID: "terms", Label: "Terms", URL: "https://shop.test/terms"},
		"Delivery terms: orders are delivered within 5 business days across India. Payment is due on confirmation.")
	require.NoError(t, err)

	first, err := e.router.Resolve(ctx, Request{TenantID: "tenant-a", Query: "What are your delivery terms?"})
	require.NoError(t, err)
	require.True(t, first.Answered())
	assert.Equal(t, SourceWebsite, first.SourceTag)
	assert.Equal(t, "Delivery terms: orders are delivered within 5 business days across India.", first.Quote)
	assert.Equal(t, "https://shop.test/terms", first.Citation.URL)
	assert.False(t, first.FromCache)

	second, err := e.router.Resolve(ctx, Request{TenantID: "tenant-a", Query: "What are your delivery terms?"})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, second.SourceTag)
	assert.Equal(t, SourceWebsite, second.CachedSourceTag)
	assert.Equal(t, first.ResponseText, second.ResponseText)
	assert.True(t, second.FromCache)
	assert.Equal(t, 2, second.HitCount)
}

func TestEndToEnd_DocumentQuoteAnswersOfficeQuestion(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, err := e.documents.Index(ctx, "tenant-a", vectorindex.SourceRef{ID: "doc-1", Label: "company-profile.pdf"},
		"Our office is at 123 Main St. We are open Monday to Friday.")
	require.NoError(t, err)

	res, err := e.router.Resolve(ctx, Request{TenantID: "tenant-a", Query: "where is your office?"})
	require.NoError(t, err)
	require.True(t, res.Answered())
	assert.Equal(t, SourceDocuments, res.SourceTag)
	assert.Contains(t, res.Quote, "Our office is at 123 Main St")
	assert.Equal(t, GroundednessGrounded, res.Groundedness)
	assert.Equal(t, "company-profile.pdf", res.Citation.Label)

	other, err := e.router.Resolve(ctx, Request{TenantID: "tenant-b", Query: "where is your office?"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoAnswer, other.Outcome)
}

func TestEndToEnd_KnowledgeBeatsIndexes(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, err := e.knowledge.Upsert(ctx, "tenant-a", "What are your delivery terms?",
		"We deliver within 3 days anywhere in Maharashtra.", []string{"owner"}, "admin")
	require.NoError(t, err)
	_, err = e.website.Index(ctx, "tenant-a", vectorindex.SourceRef{ID: "terms"},
		"Delivery terms: orders are delivered within 5 business days across India.")
	require.NoError(t, err)

	res, err := e.router.Resolve(ctx, Request{TenantID: "tenant-a", Query: "what are your delivery terms"})
	require.NoError(t, err)
	assert.Equal(t, SourceKnowledge, res.SourceTag)
	assert.Equal(t, "We deliver within 3 days anywhere in Maharashtra.", res.ResponseText)
	assert.Equal(t, GroundednessVerified, res.Groundedness)
}

func TestEndToEnd_CatalogAnswersPriceQuestions(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	cat, err := catalog.New(e.repos.Products, 5, nil)
	require.NoError(t, err)
	defer cat.Close()
	require.NoError(t, cat.Upsert(ctx, &storage.Product{
		TenantID: "tenant-a", SKU: "OAK-BS", Name: "Oak Bookshelf", Price: 220, Currency: "USD", Unit: "piece", InStock: true,
	}))

	router := NewRouter(Dependencies{Catalog: cat, Website: e.website}, DefaultConfig())
	res, err := router.Resolve(ctx, Request{TenantID: "tenant-a", Query: "what is the price of the oak bookshelf"})
	require.NoError(t, err)
	assert.Equal(t, SourceCatalog, res.SourceTag)
	assert.Contains(t, res.ResponseText, "Oak Bookshelf")
	assert.Contains(t, res.ResponseText, "220.00 USD")
}
