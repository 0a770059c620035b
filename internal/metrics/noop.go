package metrics

import "context"

// NoopCollector discards every observation. It is the default for CLI
// invocations, where there is no scrape endpoint to serve.
type NoopCollector struct{}

// NewNoopCollector creates a no-op collector.
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (n *NoopCollector) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
}

func (n *NoopCollector) RecordFacts(ctx context.Context, kind string, count int64) {}

func (n *NoopCollector) RecordQuarantined(ctx context.Context, kind string, count int64) {}

func (n *NoopCollector) SetGeneration(ctx context.Context, generation int64) {}
