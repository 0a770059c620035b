package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherNames(t *testing.T, registry *prometheus.Registry) map[string]bool {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	return names
}

func TestPrometheusCollector_RegistersAllFamilies(t *testing.T) {
	ctx := context.Background()
	collector := NewPrometheusCollector()

	collector.RecordOperation(ctx, "collect", "ok", 42)
	collector.RecordFacts(ctx, "requirements", 10)
	collector.RecordQuarantined(ctx, "coverage", 2)
	collector.SetGeneration(ctx, 7)

	names := gatherNames(t, collector.Registry())
	assert.True(t, names["reqtrace_operations_total"])
	assert.True(t, names["reqtrace_operation_duration_seconds"])
	assert.True(t, names["reqtrace_facts_ingested_total"])
	assert.True(t, names["reqtrace_facts_quarantined_total"])
	assert.True(t, names["reqtrace_generation"])
}

func TestNoopCollector_ImplementsInterface(t *testing.T) {
	var collector Collector = NewNoopCollector()
	collector.RecordOperation(context.Background(), "report", "ok", 1)
}
