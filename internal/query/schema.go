package query

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hession/shopsearch/internal/llm"
	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://shopsearch.schemas.local/parsed_query.schema.json"

// ResponseSchema is the structured-output schema sent to the model,
// reflected from ParsedQuery.
func ResponseSchema() *llm.Schema {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	return llm.FromReflected(r.Reflect(&ParsedQuery{}))
}

// compileValidator compiles schema for checking model output locally.
func compileValidator(schema *llm.Schema) (*validator.Schema, error) {
	doc, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response schema: %w", err)
	}

	c := validator.NewCompiler()
	c.Draft = validator.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("response schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("response schema compile failed: %w", err)
	}
	return compiled, nil
}
