// Package metrics exposes Prometheus collectors for searches, model calls,
// the interpretation cache and HTTP traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Searches by final phase (done, failed)
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopsearch",
			Subsystem: "search",
			Name:      "total",
			Help:      "Total number of finished searches",
		},
		[]string{"phase"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shopsearch",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "End-to-end search duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"phase"},
	)

	// Stage timings (interpret, fetch, summarize)
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shopsearch",
			Subsystem: "search",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each search stage in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage", "status"},
	)

	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopsearch",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total number of model requests",
		},
		[]string{"op", "status"},
	)

	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shopsearch",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Model request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"op"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopsearch",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Interpretation cache lookups by result",
		},
		[]string{"result"},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopsearch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shopsearch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"method", "endpoint"},
	)
)

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// Observer feeds the collectors from the search, llm and query packages.
type Observer struct{}

// NewObserver returns an observer backed by the package collectors.
func NewObserver() *Observer {
	return &Observer{}
}

// ObserveSearch records a finished search.
func (Observer) ObserveSearch(phase string, elapsed time.Duration) {
	SearchesTotal.WithLabelValues(phase).Inc()
	SearchDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// ObserveStage records one search stage.
func (Observer) ObserveStage(stage string, elapsed time.Duration, err error) {
	StageDuration.WithLabelValues(stage, status(err)).Observe(elapsed.Seconds())
}

// ObserveLLM records one model request.
func (Observer) ObserveLLM(op string, elapsed time.Duration, err error) {
	LLMRequestsTotal.WithLabelValues(op, status(err)).Inc()
	LLMDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveCache records an interpretation cache lookup.
func (Observer) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
