// Package knowledgebase matches queries against tenant-curated question and answer pairs.
package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/textmatch"
)

var (
	ErrEmptyQuestion = errors.New("question is required")
	ErrEmptyAnswer   = errors.New("answer is required")
)

// Store persists knowledge items. storage.KnowledgeRepository implements it.
type Store interface {
	Upsert(ctx context.Context, item *storage.KnowledgeItem) error
	GetByNormalizedQuestion(ctx context.Context, tenantID, normalized string) (*storage.KnowledgeItem, error)
	ListRecent(ctx context.Context, tenantID string, limit int) ([]storage.KnowledgeItem, error)
}

// Options tune FindBest.
type Options struct {
	MinScore          float64
	CandidatePoolSize int
}

// DefaultOptions returns the standard matching policy.
func DefaultOptions() Options {
	return Options{MinScore: 0.65, CandidatePoolSize: 30}
}

// Match is a knowledge item that cleared the score threshold.
type Match struct {
	Item  storage.KnowledgeItem
	Score float64
}

// Matcher is the knowledge base matcher.
type Matcher struct {
	store  Store
	opts   Options
	logger *observability.Logger
}

// NewMatcher creates a matcher with default options opts.
func NewMatcher(store Store, opts Options, logger *observability.Logger) *Matcher {
	defaults := DefaultOptions()
	if opts.MinScore <= 0 {
		opts.MinScore = defaults.MinScore
	}
	if opts.CandidatePoolSize <= 0 {
		opts.CandidatePoolSize = defaults.CandidatePoolSize
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Matcher{store: store, opts: opts, logger: logger.WithComponent("knowledge_base")}
}

// Upsert stores the question and answer, replacing any item of the tenant whose
// normalized question is the same.
func (m *Matcher) Upsert(ctx context.Context, tenantID, question, answer string, sources []string, createdBy string) (*storage.KnowledgeItem, error) {
	if tenantID == "" {
		return nil, storage.ErrInvalidTenant
	}
	normalized := textmatch.Normalize(question)
	if normalized == "" {
		return nil, ErrEmptyQuestion
	}
	if strings.TrimSpace(answer) == "" {
		return nil, ErrEmptyAnswer
	}

	item := &storage.KnowledgeItem{
		TenantID:           tenantID,
		Question:           strings.TrimSpace(question),
		NormalizedQuestion: normalized,
		Answer:             strings.TrimSpace(answer),
		Sources:            sources,
		CreatedBy:          createdBy,
	}
	if err := m.store.Upsert(ctx, item); err != nil {
		return nil, fmt.Errorf("upsert knowledge item: %w", err)
	}

	m.logger.Info().Str("tenant_id", tenantID).Str("item_id", item.ID.String()).Msg("knowledge item upserted")
	return item, nil
}

// FindBest returns the exact normalized match with score 1, or else the best token
// overlap match among the most recently updated items if it reaches opts.MinScore.
// Zero-valued fields of opts take the matcher defaults. A nil match means no item qualified.
func (m *Matcher) FindBest(ctx context.Context, tenantID, query string, opts Options) (*Match, error) {
	if opts.MinScore <= 0 {
		opts.MinScore = m.opts.MinScore
	}
	if opts.CandidatePoolSize <= 0 {
		opts.CandidatePoolSize = m.opts.CandidatePoolSize
	}

	normalized := textmatch.Normalize(query)
	if tenantID == "" || normalized == "" {
		return nil, nil
	}

	item, err := m.store.GetByNormalizedQuestion(ctx, tenantID, normalized)
	switch {
	case err == nil:
		return &Match{Item: *item, Score: 1}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("exact knowledge lookup: %w", err)
	}

	items, err := m.store.ListRecent(ctx, tenantID, opts.CandidatePoolSize)
	if err != nil {
		return nil, fmt.Errorf("list knowledge candidates: %w", err)
	}

	var best *Match
	for i := range items {
		score := textmatch.TokenOverlap(normalized, items[i].NormalizedQuestion)
		if best == nil || score > best.Score {
			best = &Match{Item: items[i], Score: score}
		}
	}

	if best == nil || best.Score < opts.MinScore {
		return nil, nil
	}
	return best, nil
}
