// Package metrics exposes prometheus gauges and counters for the
// scheduler queue, generation cost, rate-gate wait time, and matching
// round progress (SPEC_FULL ambient stack: Metrics).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// PendingGenerations tracks the current depth of the scheduler's
	// pending queue.
	PendingGenerations = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coworklink",
		Subsystem: "scheduler",
		Name:      "pending_generations",
		Help:      "Number of generations currently in pending status.",
	})

	// GenerationsTotal counts completed generations by outcome.
	GenerationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coworklink",
		Subsystem: "scheduler",
		Name:      "generations_total",
		Help:      "Total generations processed, labeled by outcome.",
	}, []string{"outcome"})

	// GenerationCostUSD observes the per-generation cost distribution.
	GenerationCostUSD = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "coworklink",
		Subsystem: "scheduler",
		Name:      "generation_cost_usd",
		Help:      "Recorded cost_usd of each completed generation.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	// RateGateWaitSeconds observes how long callers block in a rate gate.
	RateGateWaitSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "coworklink",
		Subsystem: "ratelimit",
		Name:      "gate_wait_seconds",
		Help:      "Time spent waiting to acquire a rate gate, labeled by gate.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"gate"})

	// MatchingRound tracks the matching engine's current round number.
	MatchingRound = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coworklink",
		Subsystem: "matching",
		Name:      "current_round",
		Help:      "The matching engine's current round number.",
	})

	// MatchesTotal counts matches created, labeled by outcome.
	MatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coworklink",
		Subsystem: "matching",
		Name:      "matches_total",
		Help:      "Total match rows created, labeled by status at creation.",
	}, []string{"status"})
)

// Register adds every collector to the default registry. Call once at
// process startup.
func Register() {
	prometheus.MustRegister(
		PendingGenerations,
		GenerationsTotal,
		GenerationCostUSD,
		RateGateWaitSeconds,
		MatchingRound,
		MatchesTotal,
	)
}
