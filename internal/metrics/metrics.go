// Package metrics provides Prometheus metrics for friendscout.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ModelCalls counts language-model calls by operation and outcome.
	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "friendscout",
			Name:      "model_calls_total",
			Help:      "Total number of language model calls",
		},
		[]string{"operation", "outcome"},
	)

	// ConnectorCalls counts platform API calls by platform, operation and outcome.
	ConnectorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "friendscout",
			Name:      "connector_calls_total",
			Help:      "Total number of platform API calls",
		},
		[]string{"platform", "operation", "outcome"},
	)

	// Fallbacks counts degraded results served in place of real output.
	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "friendscout",
			Name:      "fallbacks_total",
			Help:      "Total number of placeholder or fallback results returned",
		},
		[]string{"component"},
	)

	// CandidatesCollected observes candidate pool sizes per collection run.
	CandidatesCollected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "friendscout",
			Name:      "candidates_collected",
			Help:      "Distribution of candidate pool sizes",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		},
		[]string{"platform"},
	)
)

// Outcome maps an error to a metric label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
