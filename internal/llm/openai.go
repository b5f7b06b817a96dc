package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/hession/shopsearch/internal/config"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     int
}

// NewOpenAI creates an OpenAI-compatible generator. BaseURL must include
// the API version segment, e.g. https://api.openai.com/v1.
func NewOpenAI(cfg config.ModelConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.TimeoutSeconds,
	}
}

// GenerateJSON uses strict json_schema structured output.
func (o *OpenAI) GenerateJSON(ctx context.Context, prompt string, schema *Schema) (string, error) {
	req := o.request(prompt)
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   "response",
			Schema: schema,
			Strict: true,
		},
	}
	return o.complete(ctx, req)
}

// GenerateText sends a single user message.
func (o *OpenAI) GenerateText(ctx context.Context, prompt string) (string, error) {
	return o.complete(ctx, o.request(prompt))
}

func (o *OpenAI) request(prompt string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	}
}

func (o *OpenAI) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := withTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
