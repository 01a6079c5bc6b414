// Package simcache implements the similarity cache: exact hash and bigram-fuzzy lookup of
// previously resolved (query -> answer) pairs, with hit counting and expiry.
package simcache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/intent"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/textmatch"
)

// Store persists cache entries. storage.CacheRepository, cache.RedisStore and
// cache.MemoryStore implement it. Missing entries are reported as storage.ErrNotFound.
type Store interface {
	GetByHash(ctx context.Context, tenantID, hash string, now time.Time) (*storage.CacheEntry, error)
	IncrementHit(ctx context.Context, tenantID, hash string, at time.Time) (int, error)
	ListActive(ctx context.Context, tenantID string, now time.Time, limit int) ([]storage.CacheEntry, error)
	Upsert(ctx context.Context, entry *storage.CacheEntry) error
}

// Config holds similarity cache settings.
type Config struct {
	Retention           time.Duration
	UnverifiedRetention time.Duration
	FuzzyThreshold      float64
	FuzzyPoolSize       int
	ServeUnverified     bool
}

// DefaultConfig returns the default cache policy.
func DefaultConfig() Config {
	return Config{
		Retention:           90 * 24 * time.Hour,
		UnverifiedRetention: 7 * 24 * time.Hour,
		FuzzyThreshold:      0.80,
		FuzzyPoolSize:       200,
		ServeUnverified:     true,
	}
}

// Match is a cache hit.
type Match struct {
	Entry      storage.CacheEntry
	Similarity float64
	Exact      bool
}

// Tag describes the answer being stored.
type Tag struct {
	SourceTag string
	Language  string
	Trust     storage.TrustLevel
}

// Cache is the similarity cache.
type Cache struct {
	store      Store
	classifier *intent.Classifier
	cfg        Config
	logger     *observability.Logger
	metrics    *observability.Metrics
	now        func() time.Time
	scorer     func(a, b string) float64
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithScorer overrides the fuzzy similarity function (bigram Dice by default).
func WithScorer(scorer func(a, b string) float64) Option {
	return func(c *Cache) { c.scorer = scorer }
}

// New creates a similarity cache over store.
func New(store Store, classifier *intent.Classifier, cfg Config, logger *observability.Logger, metrics *observability.Metrics, opts ...Option) *Cache {
	defaults := DefaultConfig()
	if cfg.Retention <= 0 {
		cfg.Retention = defaults.Retention
	}
	if cfg.UnverifiedRetention <= 0 {
		cfg.UnverifiedRetention = defaults.UnverifiedRetention
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = defaults.FuzzyThreshold
	}
	if cfg.FuzzyPoolSize <= 0 {
		cfg.FuzzyPoolSize = defaults.FuzzyPoolSize
	}
	if classifier == nil {
		classifier = intent.NewClassifier()
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	c := &Cache{
		store:      store,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger.WithComponent("similarity_cache"),
		metrics:    metrics,
		now:        func() time.Time { return time.Now().UTC() },
		scorer:     textmatch.Dice,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the active configuration.
func (c *Cache) Config() Config {
	return c.cfg
}

// IsContextDependent reports whether query must bypass the cache.
func (c *Cache) IsContextDependent(query string) bool {
	return c.classifier.IsContextDependent(query)
}

// LookupExact returns the unexpired entry whose hash matches query and counts the hit.
// Storage failures are logged and reported as a miss.
func (c *Cache) LookupExact(ctx context.Context, tenantID, query string) *Match {
	hash := textmatch.HashQuery(query)
	now := c.now()

	entry, err := c.store.GetByHash(ctx, tenantID, hash, now)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn().Str("tenant_id", tenantID).Err(err).Msg("exact cache lookup failed")
		}
		c.metrics.RecordCacheLookup("exact", false)
		return nil
	}
	if !c.servable(entry) {
		c.metrics.RecordCacheLookup("exact", false)
		return nil
	}

	c.countHit(ctx, entry, now)
	c.metrics.RecordCacheLookup("exact", true)
	return &Match{Entry: *entry, Similarity: 1.0, Exact: true}
}

// LookupFuzzy scores up to limit unexpired entries of the tenant against query and
// returns the best one if it reaches the threshold. Ties keep the first entry seen.
func (c *Cache) LookupFuzzy(ctx context.Context, tenantID, query string, limit int) *Match {
	if limit <= 0 {
		limit = c.cfg.FuzzyPoolSize
	}
	now := c.now()

	entries, err := c.store.ListActive(ctx, tenantID, now, limit)
	if err != nil {
		c.logger.Warn().Str("tenant_id", tenantID).Err(err).Msg("fuzzy cache lookup failed")
		c.metrics.RecordCacheLookup("fuzzy", false)
		return nil
	}

	var (
		best      *storage.CacheEntry
		bestScore float64
	)
	for i := range entries {
		if entries[i].TenantID != tenantID || !c.servable(&entries[i]) {
			continue
		}
		score := c.scorer(query, entries[i].QueryText)
		if best == nil || score > bestScore {
			best = &entries[i]
			bestScore = score
		}
	}

	if best == nil || bestScore < c.cfg.FuzzyThreshold {
		c.metrics.RecordCacheLookup("fuzzy", false)
		return nil
	}

	c.countHit(ctx, best, now)
	c.metrics.RecordCacheLookup("fuzzy", true)
	return &Match{Entry: *best, Similarity: bestScore}
}

// Store caches answer for query. It is a no-op for context-dependent queries and
// reports whether an entry was written. Storage failures are logged and swallowed.
func (c *Cache) Store(ctx context.Context, tenantID, query, answer string, tag Tag) bool {
	query = strings.TrimSpace(query)
	if tenantID == "" || query == "" || strings.TrimSpace(answer) == "" {
		return false
	}
	if c.IsContextDependent(query) {
		return false
	}

	trust := tag.Trust
	if trust == "" {
		trust = storage.TrustVerified
	}
	retention := c.cfg.Retention
	if trust == storage.TrustUnverified {
		retention = c.cfg.UnverifiedRetention
	}

	now := c.now()
	entry := &storage.CacheEntry{
		TenantID:           tenantID,
		QueryHash:          textmatch.HashQuery(query),
		QueryText:          query,
		NormalizedLanguage: tag.Language,
		AnswerText:         answer,
		SourceTag:          tag.SourceTag,
		TrustLevel:         trust,
		HitCount:           1,
		CreatedAt:          now,
		ExpiresAt:          now.Add(retention),
	}

	if err := c.store.Upsert(ctx, entry); err != nil {
		c.logger.Warn().Str("tenant_id", tenantID).Err(err).Msg("cache store failed")
		return false
	}
	return true
}

func (c *Cache) servable(entry *storage.CacheEntry) bool {
	return entry.TrustLevel != storage.TrustUnverified || c.cfg.ServeUnverified
}

func (c *Cache) countHit(ctx context.Context, entry *storage.CacheEntry, now time.Time) {
	hits, err := c.store.IncrementHit(ctx, entry.TenantID, entry.QueryHash, now)
	if err != nil {
		c.logger.Warn().Str("tenant_id", entry.TenantID).Err(err).Msg("cache hit count update failed")
		return
	}
	entry.HitCount = hits
	entry.LastHitAt = &now
}
