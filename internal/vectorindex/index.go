// Package vectorindex stores embedded chunks of tenant sources and answers
// nearest-neighbour queries by cosine similarity, with a lexical fallback.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/textmatch"
)

// ErrEmptySource is returned when a source yields no indexable text.
var ErrEmptySource = errors.New("source has no indexable text")

// ChunkStore persists the chunks of one corpus. storage.ChunkRepository implements it.
type ChunkStore interface {
	ReplaceSource(ctx context.Context, tenantID, sourceID string, chunks []storage.EmbeddingChunk) error
	DeleteSource(ctx context.Context, tenantID, sourceID string) error
	Candidates(ctx context.Context, tenantID string, limit int) ([]storage.EmbeddingChunk, error)
}

// TextSource returns raw source text. storage.SourceRepository implements it.
type TextSource interface {
	SourceTexts(ctx context.Context, corpus storage.Corpus, tenantID string, limit int) ([]storage.SourceText, error)
}

// Config holds index settings.
type Config struct {
	Chunker        ChunkerConfig
	CandidateLimit int
	BatchSize      int
	EmbedTimeout   time.Duration
	BoostFactor    float64
}

// DefaultConfig returns the default index settings.
func DefaultConfig() Config {
	return Config{
		Chunker:        DefaultChunkerConfig(),
		CandidateLimit: 500,
		BatchSize:      32,
		EmbedTimeout:   15 * time.Second,
		BoostFactor:    1.3,
	}
}

// SourceRef identifies the document or page a text belongs to.
type SourceRef struct {
	ID    string
	Label string
	URL   string
}

// SearchOptions bound a search.
type SearchOptions struct {
	Limit         int
	MinSimilarity float64
}

// Result is one retrieved chunk. Similarity is nil for lexical matches, which carry
// no calibrated score.
type Result struct {
	Corpus       storage.Corpus
	Text         string
	SourceID     string
	SourceLabel  string
	SourceURL    string
	ChunkIndex   int
	Similarity   *float64
	LexicalScore int
	// BestEffort marks results returned although nothing cleared the threshold.
	BestEffort bool
}

// Index is the vector index over one corpus.
type Index struct {
	corpus   storage.Corpus
	store    ChunkStore
	texts    TextSource
	embedder embedding.Embedder
	caps     storage.Capabilities
	cfg      Config
	logger   *observability.Logger
}

// New creates an index. embedder may be nil, in which case chunks are stored without
// embeddings and every search is lexical.
func New(corpus storage.Corpus, store ChunkStore, texts TextSource, embedder embedding.Embedder,
	caps storage.Capabilities, cfg Config, logger *observability.Logger) *Index {
	defaults := DefaultConfig()
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = defaults.CandidateLimit
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = defaults.EmbedTimeout
	}
	if cfg.BoostFactor <= 0 {
		cfg.BoostFactor = defaults.BoostFactor
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	return &Index{
		corpus:   corpus,
		store:    store,
		texts:    texts,
		embedder: embedder,
		caps:     caps,
		cfg:      cfg,
		logger:   logger.WithComponent("vector_index").WithOperation(string(corpus)),
	}
}

// Corpus returns the corpus this index serves.
func (ix *Index) Corpus() storage.Corpus {
	return ix.corpus
}

// Index chunks text, embeds the chunks and replaces every prior chunk of the source.
// It returns the number of chunks stored. Chunks whose embedding fails are stored
// without one and stay reachable through lexical search.
func (ix *Index) Index(ctx context.Context, tenantID string, src SourceRef, text string) (int, error) {
	if tenantID == "" {
		return 0, storage.ErrInvalidTenant
	}
	if !ix.caps.HasEmbeddings(ix.corpus) {
		ix.logger.Debug().Str("tenant_id", tenantID).Str("source_id", src.ID).
			Msg("embedding table unavailable, source served lexically")
		return 0, nil
	}

	pieces := Chunk(text, ix.cfg.Chunker)
	if len(pieces) == 0 {
		return 0, ErrEmptySource
	}

	vectors := ix.embedChunks(ctx, tenantID, pieces)

	chunks := make([]storage.EmbeddingChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = storage.EmbeddingChunk{
			SourceLabel: src.Label,
			SourceURL:   src.URL,
			ChunkIndex:  i,
			Text:        piece,
			Embedding:   vectors[i],
		}
	}

	if err := ix.store.ReplaceSource(ctx, tenantID, src.ID, chunks); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}

	ix.logger.Info().
		Str("tenant_id", tenantID).
		Str("source_id", src.ID).
		Int("chunks", len(chunks)).
		Msg("source indexed")
	return len(chunks), nil
}

// Remove deletes every chunk of a source.
func (ix *Index) Remove(ctx context.Context, tenantID, sourceID string) error {
	if !ix.caps.HasEmbeddings(ix.corpus) {
		return nil
	}
	return ix.store.DeleteSource(ctx, tenantID, sourceID)
}

// embedChunks embeds in batches and falls back to one call per chunk for a failed batch.
// The returned slice always has len(pieces) entries; failed entries are nil.
func (ix *Index) embedChunks(ctx context.Context, tenantID string, pieces []string) [][]float32 {
	vectors := make([][]float32, len(pieces))
	if ix.embedder == nil {
		return vectors
	}

	for start := 0; start < len(pieces); start += ix.cfg.BatchSize {
		end := start + ix.cfg.BatchSize
		if end > len(pieces) {
			end = len(pieces)
		}

		batch, err := ix.embedBatch(ctx, pieces[start:end])
		if err == nil && len(batch) == end-start {
			copy(vectors[start:end], batch)
			continue
		}

		ix.logger.Warn().Str("tenant_id", tenantID).Int("batch_start", start).Err(err).
			Msg("batch embedding failed, embedding chunks individually")
		for i := start; i < end; i++ {
			v, err := ix.embedOne(ctx, pieces[i])
			if err != nil {
				ix.logger.Warn().Str("tenant_id", tenantID).Int("chunk", i).Err(err).Msg("chunk embedding failed")
				continue
			}
			vectors[i] = v
		}
	}
	return vectors
}

func (ix *Index) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, ix.cfg.EmbedTimeout)
	defer cancel()
	return ix.embedder.Embed(ctx, texts)
}

func (ix *Index) embedOne(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, ix.cfg.EmbedTimeout)
	defer cancel()
	return ix.embedder.EmbedSingle(ctx, text)
}

// Search ranks the tenant's chunks against query. Results clearing MinSimilarity are
// returned best first; when none clear it but candidates exist, the top Limit are
// returned anyway and marked BestEffort. Chunks stored without an embedding are ranked
// lexically alongside. When embeddings are unavailable the search degrades to lexical
// scoring.
func (ix *Index) Search(ctx context.Context, tenantID, query string, opts SearchOptions) ([]Result, error) {
	if tenantID == "" {
		return nil, storage.ErrInvalidTenant
	}
	if opts.Limit <= 0 {
		opts.Limit = 5
	}

	if !ix.caps.HasEmbeddings(ix.corpus) {
		return ix.searchSourceTexts(ctx, tenantID, query, opts.Limit)
	}

	candidates, err := ix.store.Candidates(ctx, tenantID, ix.cfg.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if ix.embedder == nil {
		return lexicalRank(ix.corpus, candidates, query, opts.Limit), nil
	}

	queryVec, err := ix.embedOne(ctx, query)
	if err != nil {
		ix.logger.Warn().Str("tenant_id", tenantID).Err(err).Msg("query embedding failed, using lexical fallback")
		return lexicalRank(ix.corpus, candidates, query, opts.Limit), nil
	}

	scored := make([]Result, 0, len(candidates))
	var unembedded []storage.EmbeddingChunk
	for i := range candidates {
		c := &candidates[i]
		if c.TenantID != tenantID {
			continue
		}
		if len(c.Embedding) == 0 {
			unembedded = append(unembedded, *c)
			continue
		}
		if len(c.Embedding) != len(queryVec) {
			continue
		}
		sim := cosineSimilarity(queryVec, c.Embedding) * boost(query, c.SourceLabel, c.SourceURL, ix.cfg.BoostFactor)
		scored = append(scored, resultFromChunk(ix.corpus, c, &sim))
	}
	if len(scored) == 0 {
		return lexicalRank(ix.corpus, candidates, query, opts.Limit), nil
	}
	lexical := lexicalRank(ix.corpus, unembedded, query, opts.Limit)

	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].Similarity > *scored[j].Similarity
	})

	var passing []Result
	for _, r := range scored {
		if *r.Similarity >= opts.MinSimilarity {
			passing = append(passing, r)
		}
	}

	if len(passing) == 0 {
		top := scored[:min(opts.Limit, len(scored))]
		for i := range top {
			top[i].BestEffort = true
		}
		// a word match outranks a vector match below the threshold
		return appendLimited(lexical, top, opts.Limit), nil
	}
	return appendLimited(passing, lexical, opts.Limit), nil
}

// appendLimited returns first followed by rest, truncated to limit.
func appendLimited(first, rest []Result, limit int) []Result {
	out := make([]Result, 0, min(limit, len(first)+len(rest)))
	out = append(out, first[:min(limit, len(first))]...)
	return append(out, rest[:min(limit-len(out), len(rest))]...)
}

// searchSourceTexts ranks raw source text when the embedding table is absent.
func (ix *Index) searchSourceTexts(ctx context.Context, tenantID, query string, limit int) ([]Result, error) {
	if ix.texts == nil {
		return nil, nil
	}

	sources, err := ix.texts.SourceTexts(ctx, ix.corpus, tenantID, ix.cfg.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("load source text: %w", err)
	}

	var chunks []storage.EmbeddingChunk
	for _, src := range sources {
		for i, piece := range Chunk(src.Text, ix.cfg.Chunker) {
			chunks = append(chunks, storage.EmbeddingChunk{
				TenantID:    tenantID,
				SourceID:    src.SourceID,
				SourceLabel: src.Label,
				SourceURL:   src.URL,
				ChunkIndex:  i,
				Text:        piece,
			})
		}
	}
	return lexicalRank(ix.corpus, chunks, query, limit), nil
}

// lexicalRank scores chunks by query token hits: one point per token found in the
// text and two per token found in the source label or URL.
func lexicalRank(corpus storage.Corpus, chunks []storage.EmbeddingChunk, query string, limit int) []Result {
	tokens := textmatch.LexicalTokens(query)
	if len(tokens) == 0 {
		return nil
	}

	var results []Result
	for i := range chunks {
		c := &chunks[i]
		text := textmatch.Normalize(c.Text)
		meta := textmatch.Normalize(c.SourceLabel + " " + c.SourceURL)

		score := 0
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				score++
			}
			if strings.Contains(meta, tok) {
				score += 2
			}
		}
		if score == 0 {
			continue
		}

		r := resultFromChunk(corpus, c, nil)
		r.LexicalScore = score
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].LexicalScore > results[j].LexicalScore
	})
	return results[:min(limit, len(results))]
}

func resultFromChunk(corpus storage.Corpus, c *storage.EmbeddingChunk, sim *float64) Result {
	return Result{
		Corpus:      corpus,
		Text:        c.Text,
		SourceID:    c.SourceID,
		SourceLabel: c.SourceLabel,
		SourceURL:   c.SourceURL,
		ChunkIndex:  c.ChunkIndex,
		Similarity:  sim,
	}
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
