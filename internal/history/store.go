// Package history keeps a local log of finished searches.
package history

import (
	"context"
	"time"

	"github.com/hession/shopsearch/internal/search"
)

// Store search history storage interface
type Store interface {
	// Record saves a finished search; it satisfies search.Recorder
	Record(ctx context.Context, snap search.Snapshot) error

	List(ctx context.Context, limit int) ([]*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	Find(ctx context.Context, keyword string, limit int) ([]*Record, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error

	Close() error
}

// Record one finished search
type Record struct {
	ID           string    `json:"id"`
	Query        string    `json:"query"`
	BaseQuery    string    `json:"base_query"`
	Filters      []string  `json:"filters"`
	ProductCount int       `json:"product_count"`
	Summary      string    `json:"summary,omitempty"`
	Error        string    `json:"error,omitempty"`
	Phase        string    `json:"phase"`
	CreatedAt    time.Time `json:"created_at"`
}

// Succeeded reports whether the search reached the done state
func (r *Record) Succeeded() bool {
	return r.Phase == string(search.PhaseDone)
}
