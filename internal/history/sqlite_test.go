package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hession/shopsearch/internal/query"
	"github.com/hession/shopsearch/internal/scraper"
	"github.com/hession/shopsearch/internal/search"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func doneSnapshot(id, q string) search.Snapshot {
	return search.Snapshot{
		Phase:       search.PhaseDone,
		SearchID:    id,
		Query:       q,
		ParsedQuery: &query.ParsedQuery{BaseQuery: "shoes", Filters: []string{"Bata", "Brown"}},
		Products:    []scraper.Product{{Title: "a"}, {Title: "b"}, {Title: "c"}},
		Summary:     "Three brown Bata shoes.",
	}
}

func TestRecordAndGet(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if err := store.Record(ctx, doneSnapshot("id-1", "brown Bata shoes")); err != nil {
		t.Fatalf("Failed to record search: %v", err)
	}

	rec, err := store.Get(ctx, "id-1")
	if err != nil {
		t.Fatalf("Failed to get search: %v", err)
	}
	if rec == nil {
		t.Fatal("Record should not be nil")
	}
	if rec.Query != "brown Bata shoes" {
		t.Errorf("Expected query 'brown Bata shoes', got '%s'", rec.Query)
	}
	if rec.BaseQuery != "shoes" {
		t.Errorf("Expected base query 'shoes', got '%s'", rec.BaseQuery)
	}
	if len(rec.Filters) != 2 || rec.Filters[0] != "Bata" || rec.Filters[1] != "Brown" {
		t.Errorf("Unexpected filters: %v", rec.Filters)
	}
	if rec.ProductCount != 3 {
		t.Errorf("Expected 3 products, got %d", rec.ProductCount)
	}
	if !rec.Succeeded() {
		t.Error("Record should be marked as succeeded")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	// Non-existent record
	rec, err = store.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Getting missing record should not return error: %v", err)
	}
	if rec != nil {
		t.Error("Missing record should be nil")
	}
}

func TestRecordFailedSearch(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	snap := search.Snapshot{
		Phase: search.PhaseFailed,
		Query: "shoes",
		Error: "An error occurred: Scraper Error: rate limited. Is the scraper service running?",
	}
	if err := store.Record(ctx, snap); err != nil {
		t.Fatalf("Failed to record search: %v", err)
	}

	records, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.ID == "" {
		t.Error("A generated ID should be assigned")
	}
	if rec.Succeeded() {
		t.Error("Failed search should not be marked as succeeded")
	}
	if rec.Error != snap.Error {
		t.Errorf("Expected error %q, got %q", snap.Error, rec.Error)
	}
	if rec.Filters == nil || len(rec.Filters) != 0 {
		t.Errorf("Expected empty filters, got %v", rec.Filters)
	}
}

func TestRecordRejectsInFlight(t *testing.T) {
	store := setupTestDB(t)
	err := store.Record(context.Background(), search.Snapshot{Phase: search.PhaseFetching, Query: "x"})
	if err == nil {
		t.Error("Recording an in-flight search should fail")
	}
}

func TestListOrderAndLimit(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Record(ctx, doneSnapshot(id, "query "+id)); err != nil {
			t.Fatal(err)
		}
	}

	records, err := store.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].ID != "c" || records[1].ID != "b" {
		t.Errorf("Expected newest first [c b], got [%s %s]", records[0].ID, records[1].ID)
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("Default limit should return all 3 records, got %d", len(all))
	}
}

func TestFindDeleteClear(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_ = store.Record(ctx, doneSnapshot("1", "Bata loafers"))
	_ = store.Record(ctx, search.Snapshot{Phase: search.PhaseFailed, SearchID: "2", Query: "running shoes", Error: "x"})

	found, err := store.Find(ctx, "loafers", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != "1" {
		t.Errorf("Expected to find record 1, got %v", found)
	}

	found, _ = store.Find(ctx, "Brown", 10)
	if len(found) != 1 {
		t.Errorf("Filter keyword should match, got %d records", len(found))
	}

	if err := store.Delete(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	records, _ := store.List(ctx, 10)
	if len(records) != 1 || records[0].ID != "2" {
		t.Errorf("Expected only record 2 after delete, got %v", records)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	records, _ = store.List(ctx, 10)
	if len(records) != 0 {
		t.Errorf("Expected empty history after clear, got %d", len(records))
	}
}

func TestRecordSameIDReplaces(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_ = store.Record(ctx, doneSnapshot("same", "first"))
	_ = store.Record(ctx, doneSnapshot("same", "second"))

	records, _ := store.List(ctx, 10)
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].Query != "second" {
		t.Errorf("Expected replaced query 'second', got '%s'", records[0].Query)
	}
}

func TestStoreImplementsRecorder(t *testing.T) {
	var _ search.Recorder = (*SQLiteStore)(nil)
	var _ Store = (*SQLiteStore)(nil)
}
