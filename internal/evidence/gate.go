// Package evidence decides whether retrieved text explicitly answers a question and
// composes the hedged generative fallback when it does not.
package evidence

import (
	"context"
	"strings"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/observability"
)

// Verdict is the grounding classifier's answer for one context block.
type Verdict struct {
	ExplicitAnswer bool    `json:"explicitAnswer"`
	Quote          string  `json:"quote,omitempty"`
	Confidence     float64 `json:"confidence"`
	// Rejected is set when the classifier claimed a quote that is not in the context.
	Rejected bool `json:"rejected,omitempty"`
}

// Classifier produces a raw verdict. The Gate enforces the quote invariant on top.
type Classifier interface {
	Classify(ctx context.Context, question, contextBlock string) (Verdict, error)
}

// Gate is the evidence gate.
type Gate struct {
	classifier Classifier
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewGate wraps classifier.
func NewGate(classifier Classifier, logger *observability.Logger, metrics *observability.Metrics) *Gate {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Gate{classifier: classifier, logger: logger.WithComponent("evidence_gate"), metrics: metrics}
}

// Evaluate classifies contextBlock against question. An explicit verdict always carries
// a quote that is a byte-for-byte substring of contextBlock; a claimed quote that is not
// is downgraded to a non-explicit, rejected verdict.
func (g *Gate) Evaluate(ctx context.Context, question, contextBlock string) (Verdict, error) {
	if strings.TrimSpace(contextBlock) == "" {
		return Verdict{}, nil
	}

	v, err := g.classifier.Classify(ctx, question, contextBlock)
	if err != nil {
		return Verdict{}, err
	}

	v.Confidence = clamp(v.Confidence)
	v.Quote = strings.TrimSpace(v.Quote)
	if !v.ExplicitAnswer {
		return v, nil
	}

	if v.Quote == "" || !strings.Contains(contextBlock, v.Quote) {
		g.logger.Info().Int("quote_length", len(v.Quote)).Msg("evidence rejected: quote not found in context")
		g.metrics.RecordEvidenceRejection()
		return Verdict{Rejected: true, Confidence: v.Confidence}, nil
	}
	return v, nil
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
