package evidence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/completion"
)

// ErrFallbackUnavailable is returned when no completion provider is configured.
var ErrFallbackUnavailable = errors.New("generative fallback unavailable")

const fallbackSystemPrompt = `You are a customer support assistant for a business. Answer the customer's question using only the context provided.
Rules:
- Use only facts stated in the context. Never invent prices, dates, policies, integrations, features or capabilities that the context does not state.
- The context does not answer the question directly, so hedge: say what the context does show and that you will confirm the rest.
- End with one short clarifying question.
- Keep the reply under 80 words and write in the customer's language.`

// Composer writes the hedged generative fallback answer.
type Composer struct {
	provider completion.Provider
	opts     completion.Options
}

// NewComposer creates a composer. provider may be nil, disabling the fallback.
func NewComposer(provider completion.Provider, opts completion.Options) *Composer {
	opts.JSONMode = false
	return &Composer{provider: provider, opts: opts}
}

// Available reports whether a provider is configured.
func (c *Composer) Available() bool {
	return c != nil && c.provider != nil
}

// Compose answers question strictly from contextBlock.
func (c *Composer) Compose(ctx context.Context, question, contextBlock, language string) (string, error) {
	if !c.Available() {
		return "", ErrFallbackUnavailable
	}
	if strings.TrimSpace(contextBlock) == "" {
		return "", fmt.Errorf("%w: no context", ErrFallbackUnavailable)
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Context:\n\"\"\"\n%s\n\"\"\"\n\nCustomer question: %s", contextBlock, question)
	if language != "" {
		fmt.Fprintf(&user, "\nReply language: %s", language)
	}

	ctx, cancel := completion.WithTimeout(ctx, c.opts)
	defer cancel()

	answer, err := c.provider.Complete(ctx, fallbackSystemPrompt, user.String(), c.opts)
	if err != nil {
		return "", fmt.Errorf("generative fallback: %w", err)
	}
	return answer, nil
}
