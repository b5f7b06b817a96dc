package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hession/shopsearch/internal/search"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultLimit is used when a caller passes a non-positive limit
const DefaultLimit = 20

// SQLiteStore SQLite history storage implementation
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite storage
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps writes serialized
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}

	if err := store.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database tables: %w", err)
	}

	return store, nil
}

// initTables initializes database tables
func (s *SQLiteStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS searches (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			base_query TEXT,
			filters TEXT,
			product_count INTEGER NOT NULL DEFAULT 0,
			summary TEXT,
			error TEXT,
			phase TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_searches_created_at ON searches(created_at)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to execute SQL: %s, error: %w", q, err)
		}
	}

	return nil
}

// Record saves a finished search snapshot
func (s *SQLiteStore) Record(ctx context.Context, snap search.Snapshot) error {
	if !snap.Phase.Terminal() {
		return fmt.Errorf("cannot record search in phase %s", snap.Phase)
	}

	id := snap.SearchID
	if id == "" {
		id = uuid.New().String()
	}

	var baseQuery string
	filters := []string{}
	if snap.ParsedQuery != nil {
		baseQuery = snap.ParsedQuery.BaseQuery
		filters = append(filters, snap.ParsedQuery.Filters...)
	}
	filtersJSON, err := json.Marshal(filters)
	if err != nil {
		return fmt.Errorf("failed to encode filters: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO searches (id, query, base_query, filters, product_count, summary, error, phase, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, snap.Query, baseQuery, string(filtersJSON), len(snap.Products), snap.Summary, snap.Error, string(snap.Phase), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save search: %w", err)
	}
	return nil
}

// List gets the most recent searches, newest first
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, base_query, filters, product_count, summary, error, phase, created_at
		 FROM searches
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Get gets a search by ID; it returns nil when not found
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, base_query, filters, product_count, summary, error, phase, created_at
		 FROM searches WHERE id = ?`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get search: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// Find searches past queries by keyword
func (s *SQLiteStore) Find(ctx context.Context, keyword string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	pattern := "%" + keyword + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, base_query, filters, product_count, summary, error, phase, created_at
		 FROM searches
		 WHERE query LIKE ? OR base_query LIKE ? OR filters LIKE ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		pattern, pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find searches: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Delete deletes a search by ID
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM searches WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete search: %w", err)
	}
	return nil
}

// Clear removes all history
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM searches")
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	records := []*Record{}
	for rows.Next() {
		var rec Record
		var baseQuery, filters, summary, errMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Query, &baseQuery, &filters, &rec.ProductCount, &summary, &errMsg, &rec.Phase, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan search: %w", err)
		}
		rec.BaseQuery = baseQuery.String
		rec.Summary = summary.String
		rec.Error = errMsg.String
		rec.Filters = []string{}
		if filters.Valid && filters.String != "" {
			if err := json.Unmarshal([]byte(filters.String), &rec.Filters); err != nil {
				return nil, fmt.Errorf("failed to decode filters: %w", err)
			}
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read searches: %w", err)
	}
	return records, nil
}
