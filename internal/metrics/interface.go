// Package metrics instruments ingestion and reporting.
package metrics

import "context"

// Collector is the interface for metrics collection. The Prometheus-backed
// collector is used when a push/scrape endpoint is configured; the no-op
// collector otherwise.
type Collector interface {
	RecordOperation(ctx context.Context, operation string, status string, durationMs int64)
	RecordFacts(ctx context.Context, kind string, count int64)
	RecordQuarantined(ctx context.Context, kind string, count int64)
	SetGeneration(ctx context.Context, generation int64)
}
