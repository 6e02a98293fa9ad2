// Package metrics provides Prometheus instrumentation for the task engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consulta_turns_total",
			Help: "Total number of engine turns processed",
		},
		[]string{"skill", "outcome"}, // outcome: prompt, complete, cancelled, failed
	)

	turnDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consulta_turn_duration_seconds",
			Help:    "Turn processing duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"skill"},
	)

	extractionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consulta_extraction_failures_total",
			Help: "Failed field extraction attempts",
		},
		[]string{"field"},
	)

	nluCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consulta_nlu_calls_total",
			Help: "NLU collaborator calls",
		},
		[]string{"kind", "status"}, // kind: initial_intent, action_parse, confirmation, extraction
	)

	upstreamFetchSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "consulta_upstream_fetch_seconds",
			Help:    "Upstream schedule fetch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
	)
)

// TurnProcessed records one completed turn.
func TurnProcessed(skill, outcome string, duration time.Duration) {
	turnsTotal.WithLabelValues(skill, outcome).Inc()
	turnDurationSeconds.WithLabelValues(skill).Observe(duration.Seconds())
}

// ExtractionFailed records one failed extraction attempt for a field.
func ExtractionFailed(field string) {
	extractionFailuresTotal.WithLabelValues(field).Inc()
}

// NLUCall records one NLU collaborator call.
func NLUCall(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	nluCallsTotal.WithLabelValues(kind, status).Inc()
}

// UpstreamFetch records an upstream fetch duration.
func UpstreamFetch(duration time.Duration) {
	upstreamFetchSeconds.Observe(duration.Seconds())
}
