package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hession/shopsearch/internal/config"
	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	BaseQuery string   `json:"base_query" jsonschema_description:"core search term"`
	Filters   []string `json:"filters"`
}

func sampleSchema() *Schema {
	r := &jsonschema.Reflector{Anonymous: true, DoNotReference: true, ExpandedStruct: true}
	return FromReflected(r.Reflect(&sample{}))
}

func TestFromReflected(t *testing.T) {
	s := sampleSchema()

	assert.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"base_query", "filters"}, s.Order)
	assert.ElementsMatch(t, []string{"base_query", "filters"}, s.Required)
	assert.Equal(t, "string", s.Properties["base_query"].Type)
	assert.Equal(t, "core search term", s.Properties["base_query"].Description)
	assert.Equal(t, "array", s.Properties["filters"].Type)
	assert.Equal(t, "string", s.Properties["filters"].Items.Type)
}

func TestSchema_JSONSchema(t *testing.T) {
	data, err := json.Marshal(sampleSchema())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "object", doc["type"])
	assert.Equal(t, false, doc["additionalProperties"])

	props := doc["properties"].(map[string]any)
	filters := props["filters"].(map[string]any)
	assert.Equal(t, "array", filters["type"])
	assert.Equal(t, map[string]any{"type": "string"}, filters["items"])
}

func TestSchema_Genai(t *testing.T) {
	g := sampleSchema().genai()

	assert.EqualValues(t, "OBJECT", g.Type)
	assert.Equal(t, []string{"base_query", "filters"}, g.PropertyOrdering)
	assert.EqualValues(t, "ARRAY", g.Properties["filters"].Type)
	assert.EqualValues(t, "STRING", g.Properties["filters"].Items.Type)

	var nilSchema *Schema
	assert.Nil(t, nilSchema.genai())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), config.ModelConfig{Provider: config.ProviderGemini})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not configured")

	_, err = New(context.Background(), config.ModelConfig{Provider: "llama", APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported model provider")

	g, err := New(context.Background(), config.ModelConfig{Provider: config.ProviderOpenAI, APIKey: "k", BaseURL: "http://localhost/v1"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, g)
}

func TestOpenAI_GenerateJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Expected path /v1/chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header, got %s", r.Header.Get("Authorization"))
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		if body["model"] != "test-model" {
			t.Errorf("Expected model test-model, got %v", body["model"])
		}
		format := body["response_format"].(map[string]any)
		if format["type"] != "json_schema" {
			t.Errorf("Expected json_schema response format, got %v", format["type"])
		}
		schema := format["json_schema"].(map[string]any)["schema"].(map[string]any)
		if schema["type"] != "object" {
			t.Errorf("Expected object schema, got %v", schema["type"])
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"base_query\":\"shoes\",\"filters\":[]}"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	client := NewOpenAI(config.ModelConfig{APIKey: "test-key", BaseURL: server.URL + "/v1/", Model: "test-model"})
	out, err := client.GenerateJSON(context.Background(), "find shoes", sampleSchema())
	require.NoError(t, err)
	assert.Equal(t, `{"base_query":"shoes","filters":[]}`, out)
}

func TestOpenAI_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, "chat completion failed"},
		{"no choices", http.StatusOK, `{"id":"x","choices":[]}`, ErrEmptyResponse.Error()},
		{"blank content", http.StatusOK, `{"id":"x","choices":[{"message":{"role":"assistant","content":"  "}}]}`, ErrEmptyResponse.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			client := NewOpenAI(config.ModelConfig{APIKey: "k", BaseURL: server.URL + "/v1", Model: "m"})
			_, err := client.GenerateText(context.Background(), "hi")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGemini_GenerateJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		genCfg := body["generationConfig"].(map[string]any)
		if genCfg["responseMimeType"] != "application/json" {
			t.Errorf("Expected JSON mime type, got %v", genCfg["responseMimeType"])
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"base_query\":\"shoes\",\"filters\":[\"Bata\"]}"}]}}]}`)
	}))
	defer server.Close()

	g, err := NewGemini(context.Background(), config.ModelConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "gemini-2.5-flash",
	})
	require.NoError(t, err)

	out, err := g.GenerateJSON(context.Background(), "Bata shoes", sampleSchema())
	require.NoError(t, err)
	assert.Equal(t, `{"base_query":"shoes","filters":["Bata"]}`, out)
}

type recordingObserver struct {
	ops  []string
	errs []error
}

func (r *recordingObserver) ObserveLLM(op string, _ time.Duration, err error) {
	r.ops = append(r.ops, op)
	r.errs = append(r.errs, err)
}

type stubGenerator struct {
	text string
	err  error
}

func (s stubGenerator) GenerateJSON(context.Context, string, *Schema) (string, error) {
	return s.text, s.err
}

func (s stubGenerator) GenerateText(context.Context, string) (string, error) {
	return s.text, s.err
}

func TestInstrument(t *testing.T) {
	obs := &recordingObserver{}
	boom := errors.New("boom")

	g := Instrument(stubGenerator{text: "ok"}, obs)
	out, err := g.GenerateText(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	g = Instrument(stubGenerator{err: boom}, obs)
	_, err = g.GenerateJSON(context.Background(), "p", nil)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"text", "json"}, obs.ops)
	assert.Nil(t, obs.errs[0])
	assert.ErrorIs(t, obs.errs[1], boom)

	plain := stubGenerator{}
	assert.Equal(t, plain, Instrument(plain, nil))
}
