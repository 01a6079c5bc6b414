package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/contextresolver"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/evidence"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/intent"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/knowledgebase"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/simcache"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/vectorindex"
)

// Cache is the similarity cache tier. *simcache.Cache implements it.
type Cache interface {
	LookupExact(ctx context.Context, tenantID, query string) *simcache.Match
	LookupFuzzy(ctx context.Context, tenantID, query string, limit int) *simcache.Match
	Store(ctx context.Context, tenantID, query, answer string, tag simcache.Tag) bool
}

// KnowledgeBase is the curated knowledge tier. *knowledgebase.Matcher implements it.
type KnowledgeBase interface {
	FindBest(ctx context.Context, tenantID, query string, opts knowledgebase.Options) (*knowledgebase.Match, error)
}

// Catalog is the product tier. *catalog.Catalog implements it.
type Catalog interface {
	Search(ctx context.Context, tenantID, query string) (*catalog.Result, error)
}

// Searcher is one semantic index. *vectorindex.Index implements it.
type Searcher interface {
	Search(ctx context.Context, tenantID, query string, opts vectorindex.SearchOptions) ([]vectorindex.Result, error)
}

// Gate validates retrieved context. *evidence.Gate implements it.
type Gate interface {
	Evaluate(ctx context.Context, question, contextBlock string) (evidence.Verdict, error)
}

// Fallback composes the hedged generative answer. *evidence.Composer implements it.
type Fallback interface {
	Available() bool
	Compose(ctx context.Context, question, contextBlock, language string) (string, error)
}

// PendingDocuments lists documents awaiting indexing. *storage.SourceRepository implements it.
type PendingDocuments interface {
	ListDocumentsByStatus(ctx context.Context, tenantID string, status storage.SourceStatus, limit int) ([]storage.DocumentRecord, error)
}

// Reindexer schedules background indexing without blocking.
type Reindexer interface {
	EnqueueDocument(tenantID string, documentID uuid.UUID) bool
}

// Dependencies are the collaborators of the Router. Nil tiers are skipped.
type Dependencies struct {
	Cache      Cache
	Knowledge  KnowledgeBase
	Catalog    Catalog
	Documents  Searcher
	Website    Searcher
	Gate       Gate
	Fallback   Fallback
	Classifier *intent.Classifier
	Resolver   *contextresolver.Resolver
	Pending    PendingDocuments
	Reindexer  Reindexer
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Config holds router settings.
type Config struct {
	ResultLimit           int
	DocumentMinSimilarity float64
	WebsiteMinSimilarity  float64
	KnowledgeMinScore     float64
	KnowledgePoolSize     int
	FuzzyPoolSize         int
	// PendingScanLimit bounds how many pending documents one resolution enqueues.
	PendingScanLimit int
}

// DefaultConfig returns the default router settings.
func DefaultConfig() Config {
	return Config{
		ResultLimit:           5,
		DocumentMinSimilarity: 0.30,
		WebsiteMinSimilarity:  0.35,
		KnowledgeMinScore:     0.65,
		KnowledgePoolSize:     30,
		FuzzyPoolSize:         200,
		PendingScanLimit:      5,
	}
}

// Router orchestrates the resolution tiers.
type Router struct {
	deps     Dependencies
	cfg      Config
	validate *validator.Validate
	logger   *observability.Logger
}

// NewRouter creates a router.
func NewRouter(deps Dependencies, cfg Config) *Router {
	defaults := DefaultConfig()
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = defaults.ResultLimit
	}
	if cfg.KnowledgeMinScore <= 0 {
		cfg.KnowledgeMinScore = defaults.KnowledgeMinScore
	}
	if cfg.KnowledgePoolSize <= 0 {
		cfg.KnowledgePoolSize = defaults.KnowledgePoolSize
	}
	if cfg.FuzzyPoolSize <= 0 {
		cfg.FuzzyPoolSize = defaults.FuzzyPoolSize
	}
	if cfg.PendingScanLimit <= 0 {
		cfg.PendingScanLimit = defaults.PendingScanLimit
	}
	if deps.Classifier == nil {
		deps.Classifier = intent.NewClassifier()
	}
	if deps.Resolver == nil {
		deps.Resolver = contextresolver.New(deps.Classifier, 0)
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewNopLogger()
	}

	return &Router{
		deps:     deps,
		cfg:      cfg,
		validate: validator.New(),
		logger:   deps.Logger.WithComponent("router"),
	}
}

// resolution carries per-call state through the tiers.
type resolution struct {
	req              Request
	tenantLog        *observability.Logger
	retrievalQuery   string
	contextDependent bool
	route            intent.Classification
	res              *Resolution
}

// Resolve answers req.Query for req.TenantID. It returns an error only for invalid
// requests; tier failures degrade to the next tier and exhausting every tier yields
// OutcomeNoAnswer.
func (r *Router) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.Query = strings.TrimSpace(req.Query)
	if err := r.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	start := time.Now()
	st := r.begin(ctx, req)

	answered := r.probeCache(ctx, st) ||
		r.probeKnowledge(ctx, st) ||
		r.probeCatalog(ctx, st) ||
		r.probeIndexes(ctx, st)

	if !answered {
		st.res.Outcome = OutcomeNoAnswer
		st.res.Groundedness = GroundednessNone
		st.tenantLog.Info().Str("intent", string(st.res.Intent)).Msg("no answer available")
	}

	source := st.res.SourceTag
	if source == "" {
		source = "none"
	}
	r.deps.Metrics.RecordResolution(source, string(st.res.Groundedness), time.Since(start))
	st.tenantLog.Debug().
		Str("source", source).
		Str("groundedness", string(st.res.Groundedness)).
		Dur("elapsed", time.Since(start)).
		Msg("query resolved")

	return st.res, nil
}

func (r *Router) begin(ctx context.Context, req Request) *resolution {
	resolved := r.deps.Resolver.Resolve(req.Query, req.History)

	route := r.deps.Classifier.Classify(resolved.RetrievalQuery)
	original := route
	if resolved.Rewritten {
		original = r.deps.Classifier.Classify(req.Query)
	}

	return &resolution{
		req:              req,
		tenantLog:        r.logger.WithContext(ctx).WithTenant(req.TenantID),
		retrievalQuery:   resolved.RetrievalQuery,
		contextDependent: resolved.ContextDependent,
		route:            route,
		res: &Resolution{
			Intent:         original.Intent,
			RetrievalQuery: resolved.RetrievalQuery,
		},
	}
}

// degrade records a tier failure and lets resolution fall through.
func (r *Router) degrade(st *resolution, tier string, err error) {
	st.res.DegradedTiers = append(st.res.DegradedTiers, tier)
	r.deps.Metrics.RecordTierFailure(tier)
	st.tenantLog.Warn().
		Str("tier", tier).
		Err(fmt.Errorf("%w: %w", ErrSourceUnavailable, err)).
		Msg("tier failed, falling through")
}

func (r *Router) probeCache(ctx context.Context, st *resolution) bool {
	if r.deps.Cache == nil || st.contextDependent {
		return false
	}

	match := r.deps.Cache.LookupExact(ctx, st.req.TenantID, st.req.Query)
	if match == nil {
		match = r.deps.Cache.LookupFuzzy(ctx, st.req.TenantID, st.req.Query, r.cfg.FuzzyPoolSize)
	}
	if match == nil {
		return false
	}

	entry := match.Entry
	sim := match.Similarity
	res := st.res
	res.Outcome = OutcomeAnswered
	res.ResponseText = entry.AnswerText
	res.SourceTag = SourceCache
	res.CachedSourceTag = entry.SourceTag
	res.FromCache = true
	res.HitCount = entry.HitCount
	res.Similarity = &sim
	res.Groundedness = GroundednessVerified
	if entry.TrustLevel == storage.TrustUnverified {
		res.Groundedness = GroundednessUngrounded
		res.NeedsReview = true
	}
	return true
}

func (r *Router) probeKnowledge(ctx context.Context, st *resolution) bool {
	if r.deps.Knowledge == nil {
		return false
	}

	match, err := r.deps.Knowledge.FindBest(ctx, st.req.TenantID, st.retrievalQuery, knowledgebase.Options{
		MinScore:          r.cfg.KnowledgeMinScore,
		CandidatePoolSize: r.cfg.KnowledgePoolSize,
	})
	if err != nil {
		r.degrade(st, "knowledge", err)
		return false
	}
	if match == nil {
		return false
	}

	score := match.Score
	res := st.res
	res.Outcome = OutcomeAnswered
	res.ResponseText = match.Item.Answer
	res.SourceTag = SourceKnowledge
	res.Groundedness = GroundednessVerified
	res.Similarity = &score
	res.Citation = &Citation{SourceID: match.Item.ID.String(), Label: strings.Join(match.Item.Sources, ", ")}

	r.store(ctx, st, storage.TrustVerified)
	return true
}

func (r *Router) probeCatalog(ctx context.Context, st *resolution) bool {
	if r.deps.Catalog == nil || !st.route.ProductRelated {
		return false
	}

	result, err := r.deps.Catalog.Search(ctx, st.req.TenantID, st.retrievalQuery)
	if err != nil {
		r.degrade(st, "catalog", err)
		return false
	}
	if result == nil || result.Kind == catalog.MatchNone {
		return false
	}

	res := st.res
	res.Outcome = OutcomeAnswered
	res.ResponseText = catalog.FormatAnswer(result)
	res.SourceTag = SourceCatalog
	res.Groundedness = GroundednessVerified
	if result.Kind == catalog.MatchSingle {
		p := result.Products[0]
		res.Citation = &Citation{SourceID: p.ID.String(), Label: p.Name}
	}
	// prices and stock change; catalog answers are never cached
	return true
}

func (r *Router) probeIndexes(ctx context.Context, st *resolution) bool {
	corpora := []storage.Corpus{storage.CorpusWebsite, storage.CorpusDocuments}
	if st.route.DocumentWording {
		corpora = []storage.Corpus{storage.CorpusDocuments, storage.CorpusWebsite}
	}

	var docs, web *evidence.Candidate
	for _, corpus := range corpora {
		cand := r.probeCorpus(ctx, st, corpus)
		if corpus == storage.CorpusDocuments {
			docs = cand
			r.enqueuePending(ctx, st)
		} else {
			web = cand
		}
	}

	if chosen := evidence.Select(docs, web, st.route.DocumentWording); chosen != nil {
		r.answerFromEvidence(ctx, st, chosen)
		return true
	}

	return r.fallback(ctx, st, docs, web)
}

// probeCorpus searches one index and runs the evidence gate on what it finds. It returns
// nil when the corpus produced no usable context.
func (r *Router) probeCorpus(ctx context.Context, st *resolution, corpus storage.Corpus) *evidence.Candidate {
	searcher, minSim, tier := r.deps.Website, r.cfg.WebsiteMinSimilarity, "website_index"
	if corpus == storage.CorpusDocuments {
		searcher, minSim, tier = r.deps.Documents, r.cfg.DocumentMinSimilarity, "document_index"
	}
	if searcher == nil {
		return nil
	}

	results, err := searcher.Search(ctx, st.req.TenantID, st.retrievalQuery, vectorindex.SearchOptions{
		Limit:         r.cfg.ResultLimit,
		MinSimilarity: minSim,
	})
	if err != nil {
		r.degrade(st, tier, err)
		return nil
	}

	results = usableResults(st.route, results)
	if len(results) == 0 {
		return nil
	}

	cand := evidence.NewCandidate(corpus, results)
	if r.deps.Gate == nil {
		return cand
	}

	verdict, err := r.deps.Gate.Evaluate(ctx, st.retrievalQuery, cand.Context)
	if err != nil {
		r.degrade(st, "evidence_gate", err)
		return cand
	}
	if verdict.Rejected {
		st.tenantLog.Info().Str("corpus", string(corpus)).Err(ErrEvidenceRejected).Msg("classifier quote not in context")
	}
	cand.Verdict = verdict
	return cand
}

// usableResults drops context that cannot answer an order tracking query: when the
// query carries reference numbers, only passages mentioning one of them qualify.
func usableResults(route intent.Classification, results []vectorindex.Result) []vectorindex.Result {
	if !route.Has(intent.OrderTracking) || len(route.References) == 0 {
		return results
	}

	var kept []vectorindex.Result
	for _, res := range results {
		for _, ref := range route.References {
			if strings.Contains(strings.ToLower(res.Text), ref) {
				kept = append(kept, res)
				break
			}
		}
	}
	return kept
}

func (r *Router) enqueuePending(ctx context.Context, st *resolution) {
	if r.deps.Pending == nil || r.deps.Reindexer == nil {
		return
	}

	docs, err := r.deps.Pending.ListDocumentsByStatus(ctx, st.req.TenantID, storage.SourcePending, r.cfg.PendingScanLimit)
	if err != nil {
		st.tenantLog.Warn().Err(err).Msg("pending document scan failed")
		return
	}
	for _, doc := range docs {
		if r.deps.Reindexer.EnqueueDocument(doc.TenantID, doc.ID) {
			st.tenantLog.Debug().Str("document_id", doc.ID.String()).Msg("pending document scheduled for indexing")
		}
	}
}

func (r *Router) answerFromEvidence(ctx context.Context, st *resolution, chosen *evidence.Candidate) {
	res := st.res
	res.Outcome = OutcomeAnswered
	res.ResponseText = chosen.Verdict.Quote
	res.Quote = chosen.Verdict.Quote
	res.Groundedness = GroundednessGrounded
	res.SourceTag = SourceWebsite
	if chosen.Corpus == storage.CorpusDocuments {
		res.SourceTag = SourceDocuments
	}

	if cite := chosen.Citation(); cite != nil {
		res.Citation = &Citation{SourceID: cite.SourceID, Label: cite.SourceLabel, URL: cite.SourceURL}
		res.Similarity = cite.Similarity
	}

	r.store(ctx, st, storage.TrustVerified)
}

func (r *Router) fallback(ctx context.Context, st *resolution, candidates ...*evidence.Candidate) bool {
	var blocks []string
	var top *evidence.Candidate
	for _, c := range candidates {
		if c == nil || c.Context == "" {
			continue
		}
		if top == nil {
			top = c
		}
		blocks = append(blocks, c.Context)
	}
	if len(blocks) == 0 || r.deps.Fallback == nil || !r.deps.Fallback.Available() {
		return false
	}

	contextBlock := truncateUTF8(strings.Join(blocks, "\n\n"), 2*evidence.MaxContextChars)

	// phrased against the customer's own words; context came from the retrieval query
	answer, err := r.deps.Fallback.Compose(ctx, st.req.Query, contextBlock, st.req.Language)
	if err != nil {
		r.degrade(st, "generative_fallback", err)
		return false
	}

	res := st.res
	res.Outcome = OutcomeAnswered
	res.ResponseText = answer
	res.SourceTag = SourceGenerative
	res.Groundedness = GroundednessUngrounded
	res.NeedsReview = true
	if cite := top.Citation(); cite != nil {
		res.Citation = &Citation{SourceID: cite.SourceID, Label: cite.SourceLabel, URL: cite.SourceURL}
	}

	r.store(ctx, st, storage.TrustUnverified)
	return true
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// store caches the answer under the original query. The cache itself refuses
// context-dependent queries.
func (r *Router) store(ctx context.Context, st *resolution, trust storage.TrustLevel) {
	if r.deps.Cache == nil || st.contextDependent {
		return
	}
	r.deps.Cache.Store(ctx, st.req.TenantID, st.req.Query, st.res.ResponseText, simcache.Tag{
		SourceTag: st.res.SourceTag,
		Language:  st.req.Language,
		Trust:     trust,
	})
}
