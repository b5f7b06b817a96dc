// Package query turns a free-text shopping request into a base search term
// plus catalog filter tags.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/hession/shopsearch/internal/catalog"
	"github.com/hession/shopsearch/internal/llm"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// ErrNotUnderstood is the single user-facing interpretation failure.
var ErrNotUnderstood = errors.New("Could not understand the search query. Please try rephrasing.")

// ParsedQuery is the structured form of a user request.
type ParsedQuery struct {
	BaseQuery string   `json:"base_query" jsonschema_description:"The core product search term, excluding all filters. E.g., 'men's sandals', 'running shoes'."`
	Filters   []string `json:"filters" jsonschema_description:"A list of specific filters that were mentioned by the user AND are present in the provided available filters list."`
}

// MarshalJSON always encodes filters as an array.
func (p ParsedQuery) MarshalJSON() ([]byte, error) {
	type alias ParsedQuery
	if p.Filters == nil {
		p.Filters = []string{}
	}
	return json.Marshal(alias(p))
}

// Error reports an interpretation failure. Its text is always the
// ErrNotUnderstood message; the cause is kept for logging.
type Error struct {
	Cause error
}

func (e *Error) Error() string {
	return ErrNotUnderstood.Error()
}

func (e *Error) Unwrap() []error {
	return []error{ErrNotUnderstood, e.Cause}
}

// Interpreter converts a query into a ParsedQuery constrained to filters.
type Interpreter interface {
	Interpret(ctx context.Context, query string, filters catalog.AvailableFilters) (ParsedQuery, error)
}

// LLMInterpreter asks a language model for schema-constrained JSON.
type LLMInterpreter struct {
	gen      llm.Generator
	prompt   *template.Template
	schema   *llm.Schema
	validate *validator.Schema
	log      *zap.Logger
}

// NewLLMInterpreter parses promptTemplate, which receives .Catalog and .Query.
func NewLLMInterpreter(gen llm.Generator, promptTemplate string, log *zap.Logger) (*LLMInterpreter, error) {
	tmpl, err := template.New("interpret").Option("missingkey=error").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse interpret prompt: %w", err)
	}

	schema := ResponseSchema()
	compiled, err := compileValidator(schema)
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = zap.NewNop()
	}
	return &LLMInterpreter{
		gen:      gen,
		prompt:   tmpl,
		schema:   schema,
		validate: compiled,
		log:      log,
	}, nil
}

// Interpret calls the model once. Any failure yields *Error, never a partial result.
func (i *LLMInterpreter) Interpret(ctx context.Context, query string, filters catalog.AvailableFilters) (ParsedQuery, error) {
	prompt, err := i.render(query, filters)
	if err != nil {
		return ParsedQuery{}, i.fail(query, err)
	}

	raw, err := i.gen.GenerateJSON(ctx, prompt, i.schema)
	if err != nil {
		return ParsedQuery{}, i.fail(query, err)
	}

	parsed, err := i.decode(raw)
	if err != nil {
		return ParsedQuery{}, i.fail(query, err)
	}

	parsed.Filters = i.restrict(parsed.Filters, filters)
	return parsed, nil
}

// Prompt returns the instruction that would be sent for query.
func (i *LLMInterpreter) Prompt(query string, filters catalog.AvailableFilters) (string, error) {
	return i.render(query, filters)
}

func (i *LLMInterpreter) render(query string, filters catalog.AvailableFilters) (string, error) {
	var buf bytes.Buffer
	err := i.prompt.Execute(&buf, map[string]string{
		"Catalog": filters.JSON(),
		"Query":   query,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render interpret prompt: %w", err)
	}
	return buf.String(), nil
}

func (i *LLMInterpreter) decode(raw string) (ParsedQuery, error) {
	raw = strings.TrimSpace(raw)

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return ParsedQuery{}, fmt.Errorf("model output is not JSON: %w", err)
	}
	if err := i.validate.Validate(doc); err != nil {
		return ParsedQuery{}, fmt.Errorf("model output does not match schema: %w", err)
	}

	var parsed ParsedQuery
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ParsedQuery{}, fmt.Errorf("failed to decode model output: %w", err)
	}
	return parsed, nil
}

// restrict keeps only exact catalog tags, in model order, without duplicates.
func (i *LLMInterpreter) restrict(tags []string, filters catalog.AvailableFilters) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		if seen[tag] {
			continue
		}
		seen[tag] = true
		if !filters.Contains(tag) {
			i.log.Warn("dropping filter not present in catalog", zap.String("filter", tag))
			continue
		}
		out = append(out, tag)
	}
	return out
}

func (i *LLMInterpreter) fail(query string, cause error) error {
	i.log.Error("failed to interpret search query", zap.String("query", query), zap.Error(cause))
	return &Error{Cause: cause}
}
