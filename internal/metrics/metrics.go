package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector records ingestion and reporting metrics into its own
// registry so embedding programs can expose them however they like.
type PrometheusCollector struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	factsTotal        *prometheus.CounterVec
	quarantinedTotal  *prometheus.CounterVec
	generation        prometheus.Gauge
	registry          *prometheus.Registry
}

// NewPrometheusCollector creates a collector with a fresh registry.
func NewPrometheusCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()

	operationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqtrace_operations_total",
			Help: "Total number of operations by type and status",
		},
		[]string{"operation", "status"},
	)

	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reqtrace_operation_duration_seconds",
			Help:    "Duration of operations by type",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"operation"},
	)

	factsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqtrace_facts_ingested_total",
			Help: "Facts ingested into the primary tables by kind",
		},
		[]string{"kind"},
	)

	quarantinedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqtrace_facts_quarantined_total",
			Help: "Facts diverted to the unrelated tables by kind",
		},
		[]string{"kind"},
	)

	generation := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reqtrace_generation",
			Help: "Newest ingestion generation in the database",
		},
	)

	registry.MustRegister(operationsTotal)
	registry.MustRegister(operationDuration)
	registry.MustRegister(factsTotal)
	registry.MustRegister(quarantinedTotal)
	registry.MustRegister(generation)

	return &PrometheusCollector{
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		factsTotal:        factsTotal,
		quarantinedTotal:  quarantinedTotal,
		generation:        generation,
		registry:          registry,
	}
}

// RecordOperation records the completion of an operation.
func (m *PrometheusCollector) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(float64(durationMs) / 1000.0)
}

// RecordFacts counts facts stored into the primary tables.
func (m *PrometheusCollector) RecordFacts(ctx context.Context, kind string, count int64) {
	m.factsTotal.WithLabelValues(kind).Add(float64(count))
}

// RecordQuarantined counts facts diverted to the unrelated tables.
func (m *PrometheusCollector) RecordQuarantined(ctx context.Context, kind string, count int64) {
	m.quarantinedTotal.WithLabelValues(kind).Add(float64(count))
}

// SetGeneration publishes the newest generation token.
func (m *PrometheusCollector) SetGeneration(ctx context.Context, generation int64) {
	m.generation.Set(float64(generation))
}

// Registry returns the Prometheus registry for HTTP exposure.
func (m *PrometheusCollector) Registry() *prometheus.Registry {
	return m.registry
}
