// Package retrieval resolves customer queries across the knowledge tiers in strict
// precedence: cache, knowledge base, catalog, document and website indexes with the
// evidence gate, then the generative fallback.
package retrieval

import (
	"errors"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/contextresolver"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/intent"
)

// Error taxonomy. Only ErrInvalidRequest ever reaches the caller; the others are
// absorbed inside Resolve and logged.
var (
	ErrInvalidRequest    = errors.New("invalid resolve request")
	ErrSourceUnavailable = errors.New("knowledge source unavailable")
	ErrEvidenceRejected  = errors.New("evidence rejected")
)

// Source tags.
const (
	SourceCache      = "cache"
	SourceKnowledge  = "tenant_knowledge"
	SourceCatalog    = "product_catalog"
	SourceDocuments  = "tenant_documents"
	SourceWebsite    = "website_content"
	SourceGenerative = "generative_fallback"
)

// Outcome is the terminal state of a resolution.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	// OutcomeNoAnswer means every tier was exhausted; the caller should escalate.
	OutcomeNoAnswer Outcome = "no_answer"
)

// Groundedness describes how far an answer can be trusted.
type Groundedness string

const (
	// GroundednessVerified answers come from tenant-curated data.
	GroundednessVerified Groundedness = "verified"
	// GroundednessGrounded answers are verbatim quotes of retrieved content.
	GroundednessGrounded Groundedness = "grounded"
	// GroundednessUngrounded answers were generated and need human review.
	GroundednessUngrounded Groundedness = "ungrounded"
	GroundednessNone       Groundedness = "none"
)

// Request is one resolve call.
type Request struct {
	TenantID      string                 `json:"tenantId" validate:"required,max=128"`
	Query         string                 `json:"query" validate:"required,max=4000"`
	CustomerPhone string                 `json:"customerPhone,omitempty" validate:"omitempty,max=32"`
	Language      string                 `json:"language,omitempty" validate:"omitempty,max=16"`
	History       []contextresolver.Turn `json:"history,omitempty" validate:"omitempty,max=100,dive"`
}

// Citation points at the source of an answer.
type Citation struct {
	SourceID string `json:"sourceId,omitempty"`
	Label    string `json:"label,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Resolution is the result of Resolve.
type Resolution struct {
	Outcome      Outcome      `json:"outcome"`
	ResponseText string       `json:"responseText,omitempty"`
	SourceTag    string       `json:"sourceTag,omitempty"`
	Groundedness Groundedness `json:"groundedness"`
	FromCache    bool         `json:"fromCache"`
	HitCount     int          `json:"hitCount,omitempty"`
	Similarity   *float64     `json:"similarity,omitempty"`
	Quote        string       `json:"quote,omitempty"`
	Citation     *Citation    `json:"citation,omitempty"`
	NeedsReview  bool         `json:"needsReview"`
	// CachedSourceTag is the tier that originally produced a cached answer.
	CachedSourceTag string             `json:"cachedSourceTag,omitempty"`
	Intent          intent.QueryIntent `json:"intent"`
	RetrievalQuery  string             `json:"retrievalQuery"`
	DegradedTiers   []string           `json:"degradedTiers,omitempty"`
}

// Answered reports whether the resolution carries an answer.
func (r *Resolution) Answered() bool {
	return r != nil && r.Outcome == OutcomeAnswered
}
