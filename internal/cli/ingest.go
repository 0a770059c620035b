package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reqtrace/reqtrace/internal/config"
	"github.com/reqtrace/reqtrace/internal/metrics"
	"github.com/reqtrace/reqtrace/internal/store"
)

// openStore opens the fact database named by the --db flag, falling back
// to the project config. Parent directories are created as needed.
func openStore(opts *RootOptions) (*store.Store, error) {
	path := opts.Database
	if path == "" {
		cfg, err := projectConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Database
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %q: %w", dir, err)
		}
	}
	return store.Open(path)
}

// projectConfig discovers reqtrace.yaml from the working directory upward.
func projectConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determine working directory: %w", err)
	}
	return config.Discover(cwd)
}

// commandContext returns the command's context, or a background context
// when cobra was invoked without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// newFormatter builds the output formatter for a command invocation.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// newCollector returns the metrics collector for a command invocation.
// CLI runs default to the no-op collector; tests inject a real one.
func newCollector(opts *RootOptions) metrics.Collector {
	if opts.Metrics != nil {
		return opts.Metrics
	}
	return metrics.NewNoopCollector()
}

// IngestSummary reports what one ingestion batch stored.
type IngestSummary struct {
	Generation    int64 `json:"generation"`
	Requirements  int   `json:"requirements,omitempty"`
	Hierarchies   int   `json:"hierarchies,omitempty"`
	Traces        int   `json:"traces,omitempty"`
	TestRuns      int   `json:"test_runs,omitempty"`
	Tests         int   `json:"tests,omitempty"`
	Coverage      int   `json:"coverage,omitempty"`
	Reviews       int   `json:"reviews,omitempty"`
	Verifications int   `json:"verifications,omitempty"`
	Quarantined   int   `json:"quarantined"`
	Promoted      int64 `json:"promoted"`
}

func (s IngestSummary) String() string {
	var parts []string
	add := func(count int, noun string) {
		if count > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", count, noun))
		}
	}
	add(s.Requirements, "requirements")
	add(s.Hierarchies, "hierarchy links")
	add(s.Traces, "traces")
	add(s.TestRuns, "test runs")
	add(s.Tests, "tests")
	add(s.Coverage, "coverage links")
	add(s.Reviews, "reviews")
	add(s.Verifications, "verifications")
	if len(parts) == 0 {
		parts = append(parts, "nothing")
	}
	return fmt.Sprintf("generation %d: ingested %s (%d quarantined, %d promoted)",
		s.Generation, strings.Join(parts, ", "), s.Quarantined, s.Promoted)
}
