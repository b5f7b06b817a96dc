package search

import (
	"github.com/hession/shopsearch/internal/query"
	"github.com/hession/shopsearch/internal/scraper"
)

// Phase names a session state.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseValidating   Phase = "validating"
	PhaseInterpreting Phase = "interpreting"
	PhaseFetching     Phase = "fetching"
	PhaseSummarizing  Phase = "summarizing"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// Loading reports whether a search is in flight in this phase.
func (p Phase) Loading() bool {
	switch p {
	case PhaseValidating, PhaseInterpreting, PhaseFetching, PhaseSummarizing:
		return true
	}
	return false
}

// Terminal reports whether the phase ends a search.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// State is one of Idle, Validating, Interpreting, Fetching, Summarizing,
// Done or Failed. Each carries only the data valid in that phase.
type State interface {
	Phase() Phase
	state()
}

type Idle struct{}

type Validating struct {
	Query string
}

type Interpreting struct {
	Query string
}

type Fetching struct {
	Query  string
	Parsed query.ParsedQuery
}

type Summarizing struct {
	Query    string
	Parsed   query.ParsedQuery
	Products []scraper.Product
}

type Done struct {
	Query    string
	Parsed   query.ParsedQuery
	Products []scraper.Product
	Summary  string
}

type Failed struct {
	Query   string
	Message string
}

func (Idle) Phase() Phase         { return PhaseIdle }
func (Validating) Phase() Phase   { return PhaseValidating }
func (Interpreting) Phase() Phase { return PhaseInterpreting }
func (Fetching) Phase() Phase     { return PhaseFetching }
func (Summarizing) Phase() Phase  { return PhaseSummarizing }
func (Done) Phase() Phase         { return PhaseDone }
func (Failed) Phase() Phase       { return PhaseFailed }

func (Idle) state()         {}
func (Validating) state()   {}
func (Interpreting) state() {}
func (Fetching) state()     {}
func (Summarizing) state()  {}
func (Done) state()         {}
func (Failed) state()       {}

// Snapshot is the flattened, render-ready view of a session.
type Snapshot struct {
	Phase       Phase              `json:"phase"`
	Generation  uint64             `json:"generation"`
	SearchID    string             `json:"search_id,omitempty"`
	Query       string             `json:"query"`
	Loading     bool               `json:"loading"`
	Error       string             `json:"error,omitempty"`
	Warning     string             `json:"warning,omitempty"`
	ParsedQuery *query.ParsedQuery `json:"parsed_query"`
	Products    []scraper.Product  `json:"products"`
	Summary     string             `json:"summary,omitempty"`
}

// HasResults reports whether there is anything to show below the search bar.
func (s Snapshot) HasResults() bool {
	return s.ParsedQuery != nil || len(s.Products) > 0
}

// SummaryPending reports whether the summary is still being produced.
func (s Snapshot) SummaryPending() bool {
	return s.Loading && len(s.Products) > 0
}

func snapshotOf(st State) Snapshot {
	snap := Snapshot{
		Phase:    st.Phase(),
		Loading:  st.Phase().Loading(),
		Products: []scraper.Product{},
	}
	switch v := st.(type) {
	case Validating:
		snap.Query = v.Query
	case Interpreting:
		snap.Query = v.Query
	case Fetching:
		snap.Query = v.Query
		snap.ParsedQuery = parsedCopy(v.Parsed)
	case Summarizing:
		snap.Query = v.Query
		snap.ParsedQuery = parsedCopy(v.Parsed)
		snap.Products = append(snap.Products, v.Products...)
	case Done:
		snap.Query = v.Query
		snap.ParsedQuery = parsedCopy(v.Parsed)
		snap.Products = append(snap.Products, v.Products...)
		snap.Summary = v.Summary
	case Failed:
		snap.Query = v.Query
		snap.Error = v.Message
	}
	return snap
}

func parsedCopy(p query.ParsedQuery) *query.ParsedQuery {
	p.Filters = append([]string{}, p.Filters...)
	return &p
}
