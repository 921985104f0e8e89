// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the controller's Prometheus metrics on a private
// registry. A nil *Metrics is valid and records nothing, so components
// can be wired without instrumentation in tests.
type Metrics struct {
	ProbeResults   *prometheus.CounterVec
	Decisions      *prometheus.CounterVec
	TablesWritten  prometheus.Counter
	WriteConflicts prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		ProbeResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nvaha_probes_total",
				Help: "Health probe samples by role and result",
			},
			[]string{"role", "result"},
		),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nvaha_decisions_total",
				Help: "Failover decisions by action",
			},
			[]string{"action"},
		),
		TablesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nvaha_route_tables_written_total",
				Help: "Route tables persisted after a next-hop rewrite",
			},
		),
		WriteConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nvaha_route_table_write_conflicts_total",
				Help: "Route table writes rejected by etag mismatch",
			},
		),
		registry: registry,
	}

	registry.MustRegister(m.ProbeResults, m.Decisions, m.TablesWritten, m.WriteConflicts)
	return m
}

// Handler serves the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordProbe counts one probe sample.
func (m *Metrics) RecordProbe(role string, up bool) {
	if m == nil {
		return
	}
	result := "down"
	if up {
		result = "up"
	}
	m.ProbeResults.WithLabelValues(role, result).Inc()
}

// RecordDecision counts one decision outcome.
func (m *Metrics) RecordDecision(action string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(action).Inc()
}

// RecordTableWritten counts one persisted route table.
func (m *Metrics) RecordTableWritten() {
	if m == nil {
		return
	}
	m.TablesWritten.Inc()
}

// RecordWriteConflict counts one etag-rejected write.
func (m *Metrics) RecordWriteConflict() {
	if m == nil {
		return
	}
	m.WriteConflicts.Inc()
}
