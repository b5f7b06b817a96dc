package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hession/shopsearch/internal/catalog"
	"github.com/hession/shopsearch/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfigDir string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "shopsearch-cmd-")
	if err != nil {
		panic(err)
	}
	testConfigDir = dir
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

// setupEnv points the catalog at the bundled document and keeps history
// out of the home directory.
func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SHOPSEARCH_CATALOG_SOURCE", filepath.Join("..", "..", "data", "available-filters.json"))
	t.Setenv("SHOPSEARCH_HISTORY_ENABLED", "false")
	t.Setenv("SHOPSEARCH_HISTORY_DB", filepath.Join(t.TempDir(), "history.db"))
	t.Setenv("SHOPSEARCH_CACHE_BACKEND", "none")
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config-dir", testConfigDir}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// fakeModel answers structured requests with a parsed query and plain
// requests with a summary.
func fakeModel(t *testing.T, parsed string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Unexpected model path %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode model request: %v", err)
		}

		content := "One Bata loafer, currently on sale."
		if _, structured := body["response_format"]; structured {
			content = parsed
		}
		resp := map[string]any{
			"id":     "x",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func setupSearchEnv(t *testing.T, model, scraper *httptest.Server) {
	t.Helper()
	setupEnv(t)
	t.Setenv("SHOPSEARCH_MODEL_PROVIDER", "openai")
	t.Setenv("API_KEY", "test-key")
	t.Setenv("SHOPSEARCH_MODEL_BASE_URL", model.URL+"/v1")
	t.Setenv("SHOPSEARCH_MODEL", "test-model")
	t.Setenv("SHOPSEARCH_SCRAPER_URL", scraper.URL)
}

func TestVersion(t *testing.T) {
	if version != "0.1.0" {
		t.Errorf("Expected version '0.1.0', got '%s'", version)
	}

	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "shopsearch v0.1.0\n", out)
}

func TestRootCommands(t *testing.T) {
	cmd := newRootCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "search", "history", "filters", "config", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config-dir"))
}

func TestConfigCommand(t *testing.T) {
	setupEnv(t)
	t.Setenv("API_KEY", "super-secret-key")

	out, _, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "shopsearch Configuration:")
	assert.Contains(t, out, "super-se...")
	assert.NotContains(t, out, "super-secret-key")
	assert.Contains(t, out, "Config file path: "+filepath.Join(testConfigDir, "config.yaml"))
}

func TestFiltersCommand(t *testing.T) {
	setupEnv(t)

	out, _, err := execute(t, "filters")
	require.NoError(t, err)
	assert.Contains(t, out, "Brand:")
	assert.Contains(t, out, "Bata")

	out, _, err = execute(t, "filters", "--json")
	require.NoError(t, err)
	var filters catalog.AvailableFilters
	require.NoError(t, json.Unmarshal([]byte(out), &filters))
	assert.True(t, filters.Contains("Bata"))
}

func TestFiltersCommand_Degraded(t *testing.T) {
	setupEnv(t)
	t.Setenv("SHOPSEARCH_CATALOG_SOURCE", filepath.Join(t.TempDir(), "missing.json"))

	out, errOut, err := execute(t, "filters")
	require.NoError(t, err)
	assert.Contains(t, errOut, catalog.LoadWarning)
	assert.Contains(t, out, "No filters available")
}

func TestSearchCommand_EndToEnd(t *testing.T) {
	model := fakeModel(t, `{"base_query":"loafers","filters":["Bata","Purple"]}`)
	scraper := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scrape" {
			t.Errorf("Unexpected scraper path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"filters":["Bata"]`) {
			t.Errorf("Expected catalog-restricted filters, got %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"title":"Bata Loafer","price_current":"Rs. 1,999","price_original":"Rs. 2,499","seller":"Bata","rating_score":null,"review_count":null,"product_link":null,"image_url":null}]`)
	}))
	t.Cleanup(scraper.Close)
	setupSearchEnv(t, model, scraper)
	t.Setenv("SHOPSEARCH_HISTORY_ENABLED", "true")

	out, _, err := execute(t, "search", "--json", "Bata", "loafers")
	require.NoError(t, err)

	var snap search.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, search.PhaseDone, snap.Phase)
	assert.Equal(t, "Bata loafers", snap.Query)
	require.NotNil(t, snap.ParsedQuery)
	assert.Equal(t, "loafers", snap.ParsedQuery.BaseQuery)
	assert.Equal(t, []string{"Bata"}, snap.ParsedQuery.Filters)
	require.Len(t, snap.Products, 1)
	assert.Equal(t, "One Bata loafer, currently on sale.", snap.Summary)
	require.NotEmpty(t, snap.SearchID)

	out, _, err = execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "Bata loafers")
	assert.Contains(t, out, "(1 products)")

	out, _, err = execute(t, "history", "--find", "loafers")
	require.NoError(t, err)
	assert.Contains(t, out, "Bata loafers")

	out, _, err = execute(t, "history", "show", snap.SearchID)
	require.NoError(t, err)
	assert.Contains(t, out, `"query": "Bata loafers"`)

	_, _, err = execute(t, "history", "delete", snap.SearchID)
	require.NoError(t, err)
	out, _, err = execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No searches yet")

	_, _, err = execute(t, "history", "show", snap.SearchID)
	assert.Error(t, err)
}

func TestSearchCommand_Text(t *testing.T) {
	model := fakeModel(t, `{"base_query":"shoes","filters":[]}`)
	scraper := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"title":"Canvas Shoe","price_current":"Rs. 999","seller":"Campus"}]`)
	}))
	t.Cleanup(scraper.Close)
	setupSearchEnv(t, model, scraper)

	out, errOut, err := execute(t, "search", "canvas", "shoes")
	require.NoError(t, err)
	assert.Contains(t, out, "Canvas Shoe")
	assert.Contains(t, out, "One Bata loafer, currently on sale.")
	assert.Contains(t, errOut, "Fetching live product listings...")
}

func TestSearchCommand_ScraperFailure(t *testing.T) {
	model := fakeModel(t, `{"base_query":"shoes","filters":[]}`)
	scraper := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":"rate limited"}`)
	}))
	t.Cleanup(scraper.Close)
	setupSearchEnv(t, model, scraper)

	out, _, err := execute(t, "search", "--json", "shoes")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errSearchFailed))

	var snap search.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, search.PhaseFailed, snap.Phase)
	assert.Contains(t, snap.Error, "rate limited")
	assert.Contains(t, snap.Error, "Is the scraper service running?")
}

func TestHistoryCommand_Disabled(t *testing.T) {
	setupEnv(t)
	out, _, err := execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "History is disabled")
}

func TestSearchCommand_RequiresQuery(t *testing.T) {
	setupEnv(t)
	_, _, err := execute(t, "search")
	assert.Error(t, err)
}
