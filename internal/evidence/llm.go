package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/completion"
)

// ErrMalformedVerdict is returned when the model reply holds no JSON verdict.
var ErrMalformedVerdict = errors.New("grounding classifier returned no JSON verdict")

const groundingSystemPrompt = `You check whether a context passage explicitly answers a customer's question.
Reply with one JSON object and nothing else:
{"explicit_answer": true|false, "quote": "<exact sentence from the context>" or null, "confidence": <number 0..1>}
Rules:
- explicit_answer is true only if the context states the answer directly. Related or partial information is not enough.
- quote must be copied character for character from the context. Do not paraphrase, translate or fix typos.
- When explicit_answer is false, quote is null.`

// LLMClassifier asks a completion model for a JSON grounding verdict.
type LLMClassifier struct {
	provider completion.Provider
	opts     completion.Options
}

// NewLLMClassifier creates a model-backed classifier.
func NewLLMClassifier(provider completion.Provider, opts completion.Options) *LLMClassifier {
	opts.JSONMode = true
	opts.Temperature = 0
	if opts.MaxTokens <= 0 || opts.MaxTokens > 300 {
		opts.MaxTokens = 300
	}
	return &LLMClassifier{provider: provider, opts: opts}
}

type rawVerdict struct {
	ExplicitAnswer  *bool   `json:"explicit_answer"`
	ExplicitAnswer2 *bool   `json:"explicitAnswer"`
	Quote           *string `json:"quote"`
	Confidence      float64 `json:"confidence"`
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, question, contextBlock string) (Verdict, error) {
	user := fmt.Sprintf("Context:\n\"\"\"\n%s\n\"\"\"\n\nQuestion: %s", contextBlock, question)

	ctx, cancel := completion.WithTimeout(ctx, c.opts)
	defer cancel()

	reply, err := c.provider.Complete(ctx, groundingSystemPrompt, user, c.opts)
	if err != nil {
		return Verdict{}, fmt.Errorf("grounding classifier: %w", err)
	}
	return parseVerdict(reply)
}

// parseVerdict extracts the JSON object from reply, tolerating code fences and prose.
func parseVerdict(reply string) (Verdict, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return Verdict{}, ErrMalformedVerdict
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}

	v := Verdict{Confidence: raw.Confidence}
	switch {
	case raw.ExplicitAnswer != nil:
		v.ExplicitAnswer = *raw.ExplicitAnswer
	case raw.ExplicitAnswer2 != nil:
		v.ExplicitAnswer = *raw.ExplicitAnswer2
	}
	if raw.Quote != nil {
		v.Quote = *raw.Quote
	}
	return v, nil
}
