// Package llm wraps the language model backends used for query
// interpretation and result summaries.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hession/shopsearch/internal/config"
)

// ErrEmptyResponse is returned when a backend answers with no text.
var ErrEmptyResponse = errors.New("model returned empty response")

// Generator is a single-shot text generator.
type Generator interface {
	// GenerateJSON asks for output constrained to schema and returns the raw JSON text.
	GenerateJSON(ctx context.Context, prompt string, schema *Schema) (string, error)
	// GenerateText asks for free-form text.
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Observer receives one call per model request.
type Observer interface {
	ObserveLLM(op string, elapsed time.Duration, err error)
}

// New builds the generator for the configured provider.
func New(ctx context.Context, cfg config.ModelConfig) (Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("API key not configured for provider %s", cfg.Provider)
	}
	switch cfg.Provider {
	case config.ProviderGemini, "":
		return NewGemini(ctx, cfg)
	case config.ProviderOpenAI:
		return NewOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
	}
}

// Instrument reports every call made through g to obs.
func Instrument(g Generator, obs Observer) Generator {
	if obs == nil {
		return g
	}
	return &instrumented{next: g, obs: obs}
}

type instrumented struct {
	next Generator
	obs  Observer
}

func (i *instrumented) GenerateJSON(ctx context.Context, prompt string, schema *Schema) (string, error) {
	start := time.Now()
	out, err := i.next.GenerateJSON(ctx, prompt, schema)
	i.obs.ObserveLLM("json", time.Since(start), err)
	return out, err
}

func (i *instrumented) GenerateText(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := i.next.GenerateText(ctx, prompt)
	i.obs.ObserveLLM("text", time.Since(start), err)
	return out, err
}

func withTimeout(ctx context.Context, seconds int) (context.Context, context.CancelFunc) {
	if seconds <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
}
