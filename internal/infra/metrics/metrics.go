// Package metrics provides Prometheus metrics for riemann.
// Counters, gauges and histograms for dispatch rounds, discovery, peers and
// worker-side task execution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Coordinator: Dispatch ──────────────────────────────────────────────────

// TasksDispatched tracks task exchanges started by the dispatcher.
var TasksDispatched = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "riemann",
	Name:      "tasks_dispatched_total",
	Help:      "Total task exchanges started by the coordinator.",
})

// TasksFailed tracks task exchanges that failed, by reason.
var TasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "riemann",
	Name:      "tasks_failed_total",
	Help:      "Total task exchanges that failed and contributed zero.",
}, []string{"reason"})

// Rounds tracks completed dispatch rounds.
var Rounds = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "riemann",
	Name:      "rounds_total",
	Help:      "Total dispatch rounds completed.",
})

// ExchangeLatency tracks the duration of one task round trip.
var ExchangeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "riemann",
	Name:      "exchange_latency_seconds",
	Help:      "Task exchange round-trip duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
})

// ─── Coordinator: Peers & Discovery ─────────────────────────────────────────

// PeersKnown tracks the current size of the peer registry.
var PeersKnown = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "riemann",
	Name:      "peers_known",
	Help:      "Number of workers in the peer registry.",
})

// PeersPruned tracks peers removed after a failed exchange.
var PeersPruned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "riemann",
	Name:      "peers_pruned_total",
	Help:      "Total peers removed from the registry after a failed exchange.",
})

// DiscoveryResponses tracks datagrams received during discovery windows.
var DiscoveryResponses = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "riemann",
	Name:      "discovery_responses_total",
	Help:      "Total discovery responses received by the coordinator.",
})

// DiscoveryAttempts tracks probes broadcast, by outcome.
var DiscoveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "riemann",
	Name:      "discovery_attempts_total",
	Help:      "Total discovery probes broadcast.",
}, []string{"outcome"})

// ─── Worker ─────────────────────────────────────────────────────────────────

// ProbesAnswered tracks probes the responder replied to.
var ProbesAnswered = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "riemann",
	Name:      "probes_answered_total",
	Help:      "Total discovery probes answered by this worker.",
})

// DatagramsIgnored tracks datagrams that did not match the probe literal.
var DatagramsIgnored = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "riemann",
	Name:      "datagrams_ignored_total",
	Help:      "Total datagrams ignored by the discovery responder.",
})

// TasksServed tracks tasks computed and answered by this worker.
var TasksServed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "riemann",
	Name:      "tasks_served_total",
	Help:      "Total tasks computed by this worker.",
})

// TasksDropped tracks task connections closed without a response.
var TasksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "riemann",
	Name:      "tasks_dropped_total",
	Help:      "Total task connections closed without a response.",
}, []string{"reason"})

// ComputeLatency tracks kernel integration time per task.
var ComputeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "riemann",
	Name:      "compute_latency_seconds",
	Help:      "Time spent integrating one task in seconds.",
	Buckets:   prometheus.DefBuckets,
})
