package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PromptConfig prompt configuration structure
type PromptConfig struct {
	Language string                     `yaml:"language"`
	Prompts  map[string]LanguagePrompts `yaml:"prompts"`
}

// LanguagePrompts prompt templates for a specific language.
// Interpret receives {{.Catalog}} and {{.Query}}; Summarize receives {{.Products}}.
type LanguagePrompts struct {
	Interpret string `yaml:"interpret"`
	Summarize string `yaml:"summarize"`
}

const defaultInterpretPrompt = `You are an intelligent shopping assistant. Your task is to analyze the user's search query and extract two things:
1. A 'base_query': The core product search term, excluding all filters.
2. A list of 'filters': Specific attributes mentioned by the user that EXACTLY MATCH one of the available filter options provided below.

Available Filters (by category):
{{.Catalog}}

Rules:
- Only include a filter if it is an exact, case-sensitive match from the list above.
- If a user mentions a brand like "Bata shoes", the filter is "Bata".
- If no filters from the list are mentioned, return an empty 'filters' array.
- Return the result as a JSON object adhering to the provided schema.

User Query: "{{.Query}}"`

const defaultSummarizePrompt = `You are a helpful and witty shopping assistant. Based on the following product data, provide a short, friendly, one-sentence summary for the user. Mention the number of products found and a key trend (e.g., a popular brand, a good price range, or high ratings).

Product Data: {{.Products}}`

// DefaultPromptConfig returns default prompt configuration
func DefaultPromptConfig() *PromptConfig {
	return &PromptConfig{
		Language: "en",
		Prompts: map[string]LanguagePrompts{
			"en": {
				Interpret: defaultInterpretPrompt,
				Summarize: defaultSummarizePrompt,
			},
		},
	}
}

// PromptConfigPath returns the prompt config file path
func PromptConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "prompt.yaml"), nil
}

// LoadPromptConfig loads prompt configuration from file
func LoadPromptConfig() (*PromptConfig, error) {
	configPath, err := PromptConfigPath()
	if err != nil {
		return DefaultPromptConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultPromptConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt config: %w", err)
	}

	cfg := DefaultPromptConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse prompt config: %w", err)
	}

	return cfg, nil
}

// GetPrompts returns prompts for the configured language, filling any
// template the file left blank with the English default
func (p *PromptConfig) GetPrompts() LanguagePrompts {
	prompts, ok := p.Prompts[p.Language]
	if !ok {
		prompts = p.Prompts["en"]
	}
	if prompts.Interpret == "" {
		prompts.Interpret = defaultInterpretPrompt
	}
	if prompts.Summarize == "" {
		prompts.Summarize = defaultSummarizePrompt
	}
	return prompts
}

// GetInterpretPrompt returns the query interpretation template
func (p *PromptConfig) GetInterpretPrompt() string {
	return p.GetPrompts().Interpret
}

// GetSummarizePrompt returns the result summary template
func (p *PromptConfig) GetSummarizePrompt() string {
	return p.GetPrompts().Summarize
}
