package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/reqtrace/reqtrace/internal/facts"
	"github.com/reqtrace/reqtrace/internal/recon"
	"github.com/reqtrace/reqtrace/internal/schema"
)

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace <traces.json>",
		Short: "Ingest source trace annotations",
		Long: `Ingest a traces file produced by a source scanner.

A trace referencing a requirement that is not in the database yet is
quarantined instead of rejected, and promoted once the requirement
arrives.

Example:
  reqtrace trace --db ./facts.db ./traces.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runTrace(opts *RootOptions, path string, cmd *cobra.Command) error {
	start := time.Now()
	ctx := commandContext(cmd)
	collector := newCollector(opts)

	file, err := schema.LoadTraces(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load traces file", err)
	}

	st, err := openStore(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer closeStore(st)

	mgr := recon.New(st)
	batch, err := mgr.BeginBatch(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to begin ingestion batch", err)
	}

	summary := IngestSummary{Generation: batch.Generation()}
	for _, group := range file.Traces {
		for _, entry := range group.Entries {
			for _, id := range entry.IDs {
				quarantined, err := batch.PutTrace(ctx, facts.Trace{
					ReqID:    id,
					Filepath: group.Filepath,
					Line:     entry.Line,
				})
				if err != nil {
					_ = batch.Rollback()
					return WrapExitError(ExitCommandError, "failed to ingest traces", err)
				}
				summary.Traces++
				if quarantined {
					summary.Quarantined++
				}
			}
		}
	}
	if err := batch.Commit(); err != nil {
		return WrapExitError(ExitCommandError, "failed to commit batch", err)
	}

	promoted, err := mgr.Promote(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to promote quarantined facts", err)
	}
	summary.Promoted = promoted.Total()

	collector.RecordFacts(ctx, "traces", int64(summary.Traces-summary.Quarantined))
	collector.RecordQuarantined(ctx, "traces", int64(summary.Quarantined))
	collector.SetGeneration(ctx, summary.Generation)
	collector.RecordOperation(ctx, "trace", "ok", time.Since(start).Milliseconds())

	return newFormatter(opts, cmd).Success(summary)
}
