// Package engine wires the answer engine from a config.Config and exposes resolution
// and the admin operations as one in-process API.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/completion"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/contextresolver"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/evidence"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/ingest"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/intent"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/knowledgebase"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/simcache"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/vectorindex"
)

// Public aliases of the request and result types.
type (
	Request       = retrieval.Request
	Resolution    = retrieval.Resolution
	Citation      = retrieval.Citation
	Turn          = contextresolver.Turn
	DocumentInput = ingest.DocumentInput
	PageInput     = ingest.PageInput
	IndexResult   = ingest.Result
	Product       = storage.Product
	KnowledgeItem = storage.KnowledgeItem
	Document      = storage.DocumentRecord
)

// ErrInvalidInput is returned for admin calls with missing or malformed fields.
var ErrInvalidInput = errors.New("invalid input")

// KnowledgeInput is a curated question and answer.
type KnowledgeInput struct {
	Question  string   `json:"question" validate:"required,max=1000"`
	Answer    string   `json:"answer" validate:"required,max=8000"`
	Sources   []string `json:"sources,omitempty" validate:"max=20,dive,max=500"`
	CreatedBy string   `json:"createdBy,omitempty" validate:"max=128"`
}

// Options override collaborators that New would otherwise build from configuration.
type Options struct {
	Logger     *observability.Logger
	Registerer prometheus.Registerer
	Conn       *storage.Conn
	Embedder   embedding.Embedder
	Completion completion.Provider
	// DisableCompletion forces the extractive classifier and no generative fallback.
	DisableCompletion bool
}

// Engine is the wired answer engine.
type Engine struct {
	cfg      *config.Config
	logger   *observability.Logger
	metrics  *observability.Metrics
	validate *validator.Validate

	conn      *storage.Conn
	ownsConn  bool
	repos     *storage.Repositories
	caps      storage.Capabilities
	redis     *cache.RedisStore
	knowledge *knowledgebase.Matcher
	catalog   *catalog.Catalog
	pipeline  *ingest.Pipeline
	reindexer *ingest.Reindexer
	router    *retrieval.Router

	cancel context.CancelFunc
}

// New builds an engine. It opens and migrates the database, probes its capabilities,
// loads the product catalog and starts the background reindexer.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{
			Level:       cfg.Observability.LogLevel,
			Format:      cfg.Observability.LogFormat,
			ServiceName: cfg.Observability.ServiceName,
		})
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		validate: validator.New(),
	}

	if cfg.Observability.MetricsEnabled && opts.Registerer != nil {
		metrics, err := observability.NewMetrics(opts.Registerer)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		e.metrics = metrics
	}

	if err := e.openStore(ctx, opts.Conn); err != nil {
		return nil, err
	}

	store, err := e.cacheStore(ctx)
	if err != nil {
		e.Close()
		return nil, err
	}

	embedder := opts.Embedder
	if embedder == nil {
		embedder = e.buildEmbedder()
	}

	provider := opts.Completion
	if provider == nil && !opts.DisableCompletion {
		provider = e.buildCompletion()
	}

	if err := e.wire(ctx, store, embedder, provider); err != nil {
		e.Close()
		return nil, err
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.reindexer.Start(workerCtx)

	logger.Info().
		Str("database", string(e.conn.Dialect())).
		Str("cache_store", cfg.Cache.Store).
		Bool("generative_fallback", provider != nil).
		Bool("website_embeddings", e.caps.WebsiteEmbeddings).
		Bool("document_embeddings", e.caps.DocumentEmbeddings).
		Msg("Answer engine ready")

	return e, nil
}

func (e *Engine) openStore(ctx context.Context, conn *storage.Conn) error {
	if conn == nil {
		var err error
		conn, err = storage.Open(ctx, e.cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		e.ownsConn = true
	}
	e.conn = conn

	applied, err := storage.NewMigrator(conn).Up(ctx)
	if err != nil {
		e.Close()
		return fmt.Errorf("migrate database: %w", err)
	}
	if len(applied) > 0 {
		e.logger.Info().Int("count", len(applied)).Msg("Applied migrations")
	}

	caps, err := storage.ProbeCapabilities(ctx, conn)
	if err != nil {
		e.Close()
		return fmt.Errorf("probe capabilities: %w", err)
	}
	e.caps = caps
	e.repos = storage.NewRepositories(conn)
	return nil
}

func (e *Engine) cacheStore(ctx context.Context) (simcache.Store, error) {
	switch e.cfg.Cache.Store {
	case "redis":
		rc := e.cfg.Cache.Redis
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
			PoolSize: rc.PoolSize,
			Prefix:   rc.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		e.redis = store
		return store, nil
	case "memory":
		return cache.NewMemoryStore(0), nil
	default:
		return e.repos.Cache, nil
	}
}

// buildEmbedder falls back to the hashing embedder when the configured provider
// cannot be built, typically for a missing API key.
func (e *Engine) buildEmbedder() embedding.Embedder {
	embedder, err := embedding.New(e.cfg.Embedding)
	if err == nil {
		return embedder
	}
	e.logger.Warn().
		Err(err).
		Str("provider", e.cfg.Embedding.Provider).
		Msg("Embedding provider unavailable, using hashing embedder")
	return embedding.NewHashingEmbedder(e.cfg.Embedding.Dimension)
}

func (e *Engine) buildCompletion() completion.Provider {
	provider, err := completion.New(e.cfg.Completion)
	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("provider", e.cfg.Completion.Provider).
			Msg("Completion provider unavailable, generative fallback disabled")
		return nil
	}
	return provider
}

func (e *Engine) wire(ctx context.Context, store simcache.Store, embedder embedding.Embedder, provider completion.Provider) error {
	cfg := e.cfg
	classifier := intent.NewClassifier()

	similarity := simcache.New(store, classifier, simcache.Config{
		Retention:           cfg.Cache.Retention,
		UnverifiedRetention: cfg.Cache.UnverifiedRetention,
		FuzzyThreshold:      cfg.Cache.FuzzyThreshold,
		FuzzyPoolSize:       cfg.Cache.FuzzyPoolSize,
		ServeUnverified:     cfg.Cache.ServeUnverified,
	}, e.logger, e.metrics)

	e.knowledge = knowledgebase.NewMatcher(e.repos.Knowledge, knowledgebase.Options{
		MinScore:          cfg.Retrieval.KnowledgeMinScore,
		CandidatePoolSize: cfg.Retrieval.KnowledgePoolSize,
	}, e.logger)

	cat, err := catalog.New(e.repos.Products, cfg.Retrieval.CatalogMaxResults, e.logger)
	if err != nil {
		return fmt.Errorf("create catalog: %w", err)
	}
	e.catalog = cat
	if err := cat.Load(ctx); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	indexCfg := vectorindex.Config{
		Chunker: vectorindex.ChunkerConfig{
			Size:          cfg.Retrieval.ChunkSize,
			Overlap:       cfg.Retrieval.ChunkOverlap,
			MaxChunks:     cfg.Retrieval.MaxChunksPerSource,
			MaxInputChars: cfg.Retrieval.MaxInputChars,
		},
		CandidateLimit: cfg.Retrieval.CandidateLimit,
		BatchSize:      cfg.Embedding.BatchSize,
		EmbedTimeout:   cfg.Embedding.Timeout,
		BoostFactor:    cfg.Retrieval.BoostFactor,
	}
	documents := vectorindex.New(storage.CorpusDocuments, e.repos.DocumentChunks, e.repos.Sources, embedder, e.caps, indexCfg, e.logger)
	website := vectorindex.New(storage.CorpusWebsite, e.repos.WebsiteChunks, e.repos.Sources, embedder, e.caps, indexCfg, e.logger)

	e.pipeline = ingest.NewPipeline(e.repos.Sources, documents, website, e.logger)
	e.reindexer = ingest.NewReindexer(e.pipeline, cfg.Ingest, e.logger, e.metrics)

	var verdicts evidence.Classifier = evidence.NewExtractiveClassifier()
	if provider != nil {
		verdicts = evidence.NewLLMClassifier(provider, completion.DefaultOptions(cfg.Completion))
	}

	deps := retrieval.Dependencies{
		Cache:      similarity,
		Knowledge:  e.knowledge,
		Catalog:    cat,
		Documents:  documents,
		Website:    website,
		Gate:       evidence.NewGate(verdicts, e.logger, e.metrics),
		Classifier: classifier,
		Pending:    e.repos.Sources,
		Reindexer:  e.reindexer,
		Logger:     e.logger,
		Metrics:    e.metrics,
	}
	if provider != nil {
		deps.Fallback = evidence.NewComposer(provider, completion.DefaultOptions(cfg.Completion))
	}

	e.router = retrieval.NewRouter(deps, retrieval.Config{
		ResultLimit:           cfg.Retrieval.ResultLimit,
		DocumentMinSimilarity: cfg.Retrieval.DocumentMinSimilarity,
		WebsiteMinSimilarity:  cfg.Retrieval.WebsiteMinSimilarity,
		KnowledgeMinScore:     cfg.Retrieval.KnowledgeMinScore,
		KnowledgePoolSize:     cfg.Retrieval.KnowledgePoolSize,
		FuzzyPoolSize:         cfg.Cache.FuzzyPoolSize,
	})
	return nil
}

// Capabilities returns the probed schema capabilities.
func (e *Engine) Capabilities() storage.Capabilities {
	return e.caps
}

// Ping checks database connectivity.
func (e *Engine) Ping(ctx context.Context) error {
	if e.conn == nil {
		return errors.New("engine is closed")
	}
	return e.conn.SQL().PingContext(ctx)
}

// Resolve answers a customer query. Only invalid requests return an error.
func (e *Engine) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	return e.router.Resolve(ctx, req)
}

// UpsertKnowledgeItem stores a curated question and answer for the tenant.
func (e *Engine) UpsertKnowledgeItem(ctx context.Context, tenantID string, in KnowledgeInput) (*KnowledgeItem, error) {
	if err := e.check(tenantID, in); err != nil {
		return nil, err
	}
	return e.knowledge.Upsert(ctx, tenantID, in.Question, in.Answer, in.Sources, in.CreatedBy)
}

// RegisterDocument records a document and schedules its indexing in the background.
func (e *Engine) RegisterDocument(ctx context.Context, tenantID string, in DocumentInput) (*Document, error) {
	if err := e.check(tenantID, in); err != nil {
		return nil, err
	}
	doc, err := e.pipeline.RegisterDocument(ctx, tenantID, in)
	if err != nil {
		return nil, err
	}
	e.reindexer.EnqueueDocument(tenantID, doc.ID)
	return doc, nil
}

// IngestDocument registers a document and indexes it synchronously.
func (e *Engine) IngestDocument(ctx context.Context, tenantID string, in DocumentInput) (*Document, *IndexResult, error) {
	if err := e.check(tenantID, in); err != nil {
		return nil, nil, err
	}
	doc, err := e.pipeline.RegisterDocument(ctx, tenantID, in)
	if err != nil {
		return nil, nil, err
	}
	res, err := e.pipeline.IndexDocument(ctx, tenantID, doc.ID)
	return doc, res, err
}

// IndexDocument indexes a registered document synchronously.
func (e *Engine) IndexDocument(ctx context.Context, tenantID string, documentID uuid.UUID) (*IndexResult, error) {
	if err := e.check(tenantID, nil); err != nil {
		return nil, err
	}
	return e.pipeline.IndexDocument(ctx, tenantID, documentID)
}

// IndexWebsitePage indexes the extracted text of a crawled page.
func (e *Engine) IndexWebsitePage(ctx context.Context, tenantID string, in PageInput) (*IndexResult, error) {
	if err := e.check(tenantID, in); err != nil {
		return nil, err
	}
	return e.pipeline.IndexWebsitePage(ctx, tenantID, in)
}

// UpsertProduct stores a catalog product. p.ID is set to the stored id.
func (e *Engine) UpsertProduct(ctx context.Context, p *Product) error {
	if p == nil {
		return fmt.Errorf("%w: product is required", ErrInvalidInput)
	}
	return e.catalog.Upsert(ctx, p)
}

// DeleteProduct removes a catalog product.
func (e *Engine) DeleteProduct(ctx context.Context, tenantID string, id uuid.UUID) error {
	if err := e.check(tenantID, nil); err != nil {
		return err
	}
	return e.catalog.Delete(ctx, tenantID, id)
}

// PurgeCache deletes SQL cache rows that expired before the given time. Redis
// entries expire on their own.
func (e *Engine) PurgeCache(ctx context.Context, before time.Time) (int64, error) {
	return e.repos.Cache.PurgeExpired(ctx, before)
}

// Close stops the reindexer and releases the catalog index and connections.
func (e *Engine) Close() error {
	if e.reindexer != nil {
		e.reindexer.Stop()
	}
	if e.cancel != nil {
		e.cancel()
	}

	var errs []error
	if e.catalog != nil {
		errs = append(errs, e.catalog.Close())
		e.catalog = nil
	}
	if e.redis != nil {
		errs = append(errs, e.redis.Close())
		e.redis = nil
	}
	if e.ownsConn && e.conn != nil {
		errs = append(errs, e.conn.Close())
		e.conn = nil
	}
	return errors.Join(errs...)
}

func (e *Engine) check(tenantID string, in interface{}) error {
	if strings.TrimSpace(tenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	if in == nil {
		return nil
	}
	if err := e.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
