// Package metrics exposes Prometheus instrumentation for the event loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "runwatch"

// Message outcomes.
const (
	OutcomeProcessed  = "processed"
	OutcomeDeadLetter = "dead_letter"
	OutcomeSkipped    = "skipped"
	OutcomeRetried    = "retried"
)

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry *prometheus.Registry

	// messages counts consumed messages.
	// Labels: topic, outcome (processed, dead_letter, skipped, retried)
	messages *prometheus.CounterVec

	// alerts counts alerts emitted.
	// Labels: kind (run, instance), type
	alerts *prometheus.CounterVec

	// duration measures per-message processing time including both commits.
	// Labels: topic
	duration *prometheus.HistogramVec

	// uncommitted counts transactions aborted by a group rebalance.
	uncommitted prometheus.Counter
}

// New registers the collectors, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Consumed messages by topic and outcome",
		}, []string{"topic", "outcome"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts emitted by kind and type",
		}, []string{"kind", "type"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_seconds",
			Help:      "Per-message processing latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"topic"}),
		uncommitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uncommitted_transactions_total",
			Help:      "Transactions aborted because the consumer group rebalanced",
		}),
	}
}

// Message records one consumed message.
func (m *Metrics) Message(topic, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(topic, outcome).Inc()
	m.duration.WithLabelValues(topic).Observe(took.Seconds())
}

// Alert records one emitted alert.
func (m *Metrics) Alert(kind, typ string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(kind, typ).Inc()
}

// Uncommitted records a transaction lost to a rebalance.
func (m *Metrics) Uncommitted() {
	if m == nil {
		return
	}
	m.uncommitted.Inc()
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
