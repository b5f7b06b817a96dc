package llm

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"google.golang.org/genai"
)

// Schema is a provider-neutral description of the JSON a model must return.
// Only the subset both backends understand is modelled.
type Schema struct {
	Type        string
	Description string
	Properties  map[string]*Schema
	// Order is the declared property order; Gemini honours it when emitting JSON.
	Order    []string
	Items    *Schema
	Required []string
}

// FromReflected converts a schema produced by invopop/jsonschema. The
// reflector must run with DoNotReference so no $ref needs resolving.
func FromReflected(s *jsonschema.Schema) *Schema {
	if s == nil {
		return nil
	}
	out := &Schema{
		Type:        s.Type,
		Description: s.Description,
		Items:       FromReflected(s.Items),
	}
	if len(s.Required) > 0 {
		out.Required = append([]string(nil), s.Required...)
	}
	if s.Properties != nil && s.Properties.Len() > 0 {
		out.Properties = make(map[string]*Schema, s.Properties.Len())
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			out.Properties[pair.Key] = FromReflected(pair.Value)
			out.Order = append(out.Order, pair.Key)
		}
	}
	return out
}

// JSONSchema renders the schema as a plain JSON Schema document. Objects are
// closed with additionalProperties false, which strict structured output
// modes require.
func (s *Schema) JSONSchema() map[string]any {
	if s == nil {
		return nil
	}
	m := map[string]any{"type": s.Type}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if s.Type == "object" {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.JSONSchema()
		}
		m["properties"] = props
		m["additionalProperties"] = false
		required := s.Required
		if required == nil {
			required = []string{}
		}
		m["required"] = required
	}
	if s.Items != nil {
		m["items"] = s.Items.JSONSchema()
	}
	return m
}

// MarshalJSON satisfies json.Marshaler so the schema can be handed to
// clients that accept one.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.JSONSchema())
}

// genai converts to the Gemini schema dialect, which uses upper-case types.
func (s *Schema) genai() *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
		Items:       s.Items.genai(),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = p.genai()
		}
		out.PropertyOrdering = s.ordering()
	}
	if len(s.Required) > 0 {
		out.Required = append([]string(nil), s.Required...)
	}
	return out
}

func (s *Schema) ordering() []string {
	if len(s.Order) == len(s.Properties) {
		return append([]string(nil), s.Order...)
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
