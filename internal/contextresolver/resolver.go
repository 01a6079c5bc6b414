// Package contextresolver rewrites elliptical follow-up queries into a standalone
// retrieval query using recent conversation turns.
package contextresolver

import (
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/intent"
)

// Sender identifies who wrote a conversation turn.
type Sender string

const (
	SenderCustomer  Sender = "customer"
	SenderAssistant Sender = "assistant"
)

// Turn is one message of the conversation, oldest first in a history slice.
type Turn struct {
	Sender    Sender    `json:"sender" validate:"omitempty,oneof=customer assistant"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultMaxTurns bounds how far back the resolver looks.
const DefaultMaxTurns = 12

// Result is the outcome of resolving a query.
type Result struct {
	// RetrievalQuery is used for every downstream lookup.
	RetrievalQuery string
	// Rewritten is set when RetrievalQuery came from an earlier turn.
	Rewritten bool
	// ContextDependent is the predicate evaluated on the original query.
	ContextDependent bool
}

// Resolver is the context resolver.
type Resolver struct {
	classifier *intent.Classifier
	maxTurns   int
}

// New creates a resolver. A nil classifier uses the default rule set.
func New(classifier *intent.Classifier, maxTurns int) *Resolver {
	if classifier == nil {
		classifier = intent.NewClassifier()
	}
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Resolver{classifier: classifier, maxTurns: maxTurns}
}

// Resolve returns the retrieval query for query. A context-dependent query is replaced
// by the most recent customer turn that is neither context-dependent nor identical to
// query; otherwise query is returned unchanged.
func (r *Resolver) Resolve(query string, history []Turn) Result {
	query = strings.TrimSpace(query)
	res := Result{RetrievalQuery: query, ContextDependent: r.classifier.IsContextDependent(query)}
	if !res.ContextDependent || len(history) == 0 {
		return res
	}

	scanned := 0
	for i := len(history) - 1; i >= 0 && scanned < r.maxTurns; i-- {
		turn := history[i]
		scanned++
		if turn.Sender != SenderCustomer {
			continue
		}
		text := strings.TrimSpace(turn.Text)
		if text == "" || strings.EqualFold(text, query) {
			continue
		}
		if r.classifier.IsContextDependent(text) {
			continue
		}
		res.RetrievalQuery = text
		res.Rewritten = true
		return res
	}
	return res
}
