package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency, labeled by method, chi
// route pattern, and status.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "portcullis",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// HandoffCountTotal counts handoff nodes yielded by the node iterator.
var HandoffCountTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "portcullis",
		Subsystem: "nodeiter",
		Name:      "handoff_count_total",
		Help:      "Total number of handoff nodes yielded by iter_nodes.",
	},
	[]string{"ring"},
)

// HandoffAllCountTotal counts selections where the iterator yielded as many
// handoffs as there are primaries, i.e. every primary was skipped or passed
// over.
var HandoffAllCountTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "portcullis",
		Subsystem: "nodeiter",
		Name:      "handoff_all_count_total",
		Help:      "Total number of selections where all primaries were unavailable.",
	},
	[]string{"ring"},
)

// NodeSuppressedTotal counts is_suppressed checks that returned true.
var NodeSuppressedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "portcullis",
		Subsystem: "nodehealth",
		Name:      "node_suppressed_total",
		Help:      "Total number of node selections skipped due to suppression.",
	},
	[]string{"ring"},
)

// NodeErrorsTotal counts record_error calls.
var NodeErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "portcullis",
		Subsystem: "nodehealth",
		Name:      "node_errors_total",
		Help:      "Total number of errors recorded against nodes.",
	},
	[]string{"ring"},
)

// NodeForceSuppressedTotal counts force_suppress calls.
var NodeForceSuppressedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "portcullis",
		Subsystem: "nodehealth",
		Name:      "node_force_suppressed_total",
		Help:      "Total number of nodes force-suppressed (e.g. insufficient storage).",
	},
	[]string{"ring"},
)

// All returns every portcullis-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		HandoffCountTotal,
		HandoffAllCountTotal,
		NodeSuppressedTotal,
		NodeErrorsTotal,
		NodeForceSuppressedTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process
// collectors and every portcullis-specific collector, plus any additional
// collectors passed as arguments.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, c := range All() {
		reg.MustRegister(c)
	}
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
