// Package search drives one shopping search session: validate, interpret,
// fetch, summarize.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hession/shopsearch/internal/catalog"
	"github.com/hession/shopsearch/internal/query"
	"github.com/hession/shopsearch/internal/scraper"
	"github.com/hession/shopsearch/internal/summary"
	"go.uber.org/zap"
)

// User-facing validation messages.
const (
	MsgEmptyQuery       = "Please enter a search query."
	MsgCatalogNotLoaded = "Filters are not loaded yet. Please wait a moment and try again."
)

// ErrSuperseded is returned to a search whose results were discarded
// because a newer search started.
var ErrSuperseded = errors.New("search superseded by a newer search")

// Catalog provides the filter catalog.
type Catalog interface {
	Filters() (catalog.AvailableFilters, bool)
	Warning() string
}

// Fetcher retrieves products for a parsed query.
type Fetcher interface {
	Scrape(ctx context.Context, parsed query.ParsedQuery) ([]scraper.Product, error)
}

// Summarizer describes a non-empty result list. It must not fail.
type Summarizer interface {
	Summarize(ctx context.Context, products []scraper.Product) string
}

// Recorder persists finished searches.
type Recorder interface {
	Record(ctx context.Context, snap Snapshot) error
}

// Observer receives timing for each stage and each finished search.
type Observer interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
	ObserveSearch(phase string, elapsed time.Duration)
}

// StateHandler is called with every committed snapshot. It runs on the
// searching goroutine and must not call back into Search.
type StateHandler func(Snapshot)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder records finished searches.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithObserver reports stage timings.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithStateHandler subscribes to state changes.
func WithStateHandler(h StateHandler) Option {
	return func(o *Orchestrator) { o.handlers = append(o.handlers, h) }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// Orchestrator owns the single search session. A new Search cancels the
// one in flight; results of a cancelled search never reach the session.
type Orchestrator struct {
	catalog     Catalog
	interpreter query.Interpreter
	fetcher     Fetcher
	summarizer  Summarizer

	recorder Recorder
	observer Observer
	handlers []StateHandler
	log      *zap.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	searchID   string
	cancel     context.CancelFunc
}

// New creates an orchestrator in the Idle state.
func New(cat Catalog, interpreter query.Interpreter, fetcher Fetcher, summarizer Summarizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog:     cat,
		interpreter: interpreter,
		fetcher:     fetcher,
		summarizer:  summarizer,
		log:         zap.NewNop(),
		state:       Idle{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Snapshot returns the current session view.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Search runs a full search for text. Failures end in the Failed state
// and are reported through the returned snapshot; the only error is
// ErrSuperseded.
func (o *Orchestrator) Search(ctx context.Context, text string) (Snapshot, error) {
	start := time.Now()
	ctx, gen := o.begin(ctx, text)
	defer o.finish(gen)

	snap, err := o.run(ctx, gen, text)
	if err == nil && o.observer != nil {
		o.observer.ObserveSearch(string(snap.Phase), time.Since(start))
	}
	return snap, err
}

func (o *Orchestrator) run(ctx context.Context, gen uint64, text string) (Snapshot, error) {
	q := strings.TrimSpace(text)
	if q == "" {
		return o.fail(ctx, gen, text, MsgEmptyQuery, false)
	}

	filters, loaded := o.catalog.Filters()
	if !loaded {
		return o.fail(ctx, gen, q, MsgCatalogNotLoaded, true)
	}

	if _, ok := o.commit(gen, Interpreting{Query: q}); !ok {
		return Snapshot{}, ErrSuperseded
	}
	stageStart := time.Now()
	parsed, err := o.interpreter.Interpret(ctx, q, filters)
	o.observeStage("interpret", stageStart, err)
	if err != nil {
		if o.stale(gen) {
			return Snapshot{}, ErrSuperseded
		}
		o.log.Warn("search failed during interpretation", zap.String("query", q), zap.Error(err))
		return o.fail(ctx, gen, q, fmt.Sprintf("An error occurred: %s.", err.Error()), true)
	}

	if _, ok := o.commit(gen, Fetching{Query: q, Parsed: parsed}); !ok {
		return Snapshot{}, ErrSuperseded
	}
	stageStart = time.Now()
	products, err := o.fetcher.Scrape(ctx, parsed)
	o.observeStage("fetch", stageStart, err)
	if err != nil {
		if o.stale(gen) {
			return Snapshot{}, ErrSuperseded
		}
		o.log.Warn("search failed during fetch", zap.String("query", q), zap.Error(err))
		return o.fail(ctx, gen, q, fmt.Sprintf("An error occurred: %s. Is the scraper service running?", err.Error()), true)
	}

	if _, ok := o.commit(gen, Summarizing{Query: q, Parsed: parsed, Products: products}); !ok {
		return Snapshot{}, ErrSuperseded
	}
	sentence := summary.NoResults
	if len(products) > 0 {
		stageStart = time.Now()
		sentence = o.summarizer.Summarize(ctx, products)
		o.observeStage("summarize", stageStart, nil)
	}

	snap, ok := o.commit(gen, Done{Query: q, Parsed: parsed, Products: products, Summary: sentence})
	if !ok {
		return Snapshot{}, ErrSuperseded
	}
	o.log.Info("search completed",
		zap.String("search_id", snap.SearchID),
		zap.String("base_query", parsed.BaseQuery),
		zap.Strings("filters", parsed.Filters),
		zap.Int("products", len(products)))
	o.record(ctx, snap)
	return snap, nil
}

// begin starts a new generation, cancelling whatever was running.
func (o *Orchestrator) begin(ctx context.Context, text string) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.generation++
	gen := o.generation
	o.cancel = cancel
	o.searchID = uuid.NewString()
	o.state = Validating{Query: text}
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.notify(snap)
	return ctx, gen
}

func (o *Orchestrator) finish(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen == o.generation && o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

// commit stores st if gen is still current.
func (o *Orchestrator) commit(gen uint64, st State) (Snapshot, bool) {
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return Snapshot{}, false
	}
	o.state = st
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.notify(snap)
	return snap, true
}

func (o *Orchestrator) fail(ctx context.Context, gen uint64, q, message string, record bool) (Snapshot, error) {
	snap, ok := o.commit(gen, Failed{Query: q, Message: message})
	if !ok {
		return Snapshot{}, ErrSuperseded
	}
	if record {
		o.record(ctx, snap)
	}
	return snap, nil
}

func (o *Orchestrator) stale(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return gen != o.generation
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := snapshotOf(o.state)
	snap.Generation = o.generation
	if o.generation > 0 {
		snap.SearchID = o.searchID
	}
	if o.catalog != nil {
		snap.Warning = o.catalog.Warning()
	}
	return snap
}

func (o *Orchestrator) notify(snap Snapshot) {
	for _, h := range o.handlers {
		h(snap)
	}
}

func (o *Orchestrator) record(ctx context.Context, snap Snapshot) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(context.WithoutCancel(ctx), snap); err != nil {
		o.log.Warn("failed to record search history", zap.String("search_id", snap.SearchID), zap.Error(err))
	}
}

func (o *Orchestrator) observeStage(stage string, start time.Time, err error) {
	if o.observer != nil {
		o.observer.ObserveStage(stage, time.Since(start), err)
	}
}
