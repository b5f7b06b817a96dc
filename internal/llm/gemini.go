package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/hession/shopsearch/internal/config"
	"google.golang.org/genai"
)

// Gemini calls the Gemini API through the official genai SDK.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	timeout     int
}

// NewGemini creates a Gemini generator. A non-empty BaseURL overrides the
// public endpoint, which tests use to point at a local server.
func NewGemini(ctx context.Context, cfg config.ModelConfig) (*Gemini, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimSuffix(cfg.BaseURL, "/") + "/"}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Gemini{
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
		timeout:     cfg.TimeoutSeconds,
	}, nil
}

// GenerateJSON requests application/json output matching schema.
func (g *Gemini) GenerateJSON(ctx context.Context, prompt string, schema *Schema) (string, error) {
	cfg := g.config()
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = schema.genai()
	return g.generate(ctx, prompt, cfg)
}

// GenerateText requests plain text output.
func (g *Gemini) GenerateText(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, prompt, g.config())
}

func (g *Gemini) config() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = g.maxTokens
	}
	return cfg
}

func (g *Gemini) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
