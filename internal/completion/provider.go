// Package completion wraps the chat completion models used by the evidence gate
// and the generative fallback.
package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/config"
)

// ErrEmptyCompletion is returned when a model answers with no content.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// Options tune a single completion call.
type Options struct {
	Temperature float64
	MaxTokens   int
	// JSONMode asks the model for a single JSON object.
	JSONMode bool
	// Timeout bounds one call; zero leaves the caller's deadline alone.
	Timeout time.Duration
}

// Provider generates a completion from a system and a user prompt.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error)
	Model() string
}

var (
	_ Provider = (*OpenAIProvider)(nil)
	_ Provider = (*OllamaProvider)(nil)
)

// New builds the provider selected by cfg.Provider. It returns a nil Provider
// without error when completions are disabled.
func New(cfg config.CompletionConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	case "ollama":
		return NewOllamaProvider(OllamaConfig{
			ServerURL: cfg.BaseURL,
			Model:     cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported completion provider: %s", cfg.Provider)
	}
}

// DefaultOptions derives call options from configuration.
func DefaultOptions(cfg config.CompletionConfig) Options {
	return Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens, Timeout: cfg.Timeout}
}

// WithTimeout derives the context for one call from opts.Timeout.
func WithTimeout(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	if opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, opts.Timeout)
}
