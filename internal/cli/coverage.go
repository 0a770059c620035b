package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/reqtrace/reqtrace/internal/facts"
	"github.com/reqtrace/reqtrace/internal/recon"
	"github.com/reqtrace/reqtrace/internal/schema"
)

// NewCoverageCommand creates the coverage command.
func NewCoverageCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coverage <coverage.json>",
		Short: "Ingest test runs and coverage evidence",
		Long: `Ingest a coverage file produced by a test-log converter.

Test runs, tests and coverage links are historical data and are never
swept by reconciliation. A coverage link whose trace or test is missing
is quarantined and promoted once the referent arrives.

Example:
  reqtrace coverage --db ./facts.db ./coverage.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoverage(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCoverage(opts *RootOptions, path string, cmd *cobra.Command) error {
	start := time.Now()
	ctx := commandContext(cmd)
	collector := newCollector(opts)

	file, err := schema.LoadCoverage(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load coverage file", err)
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
	for _, run := range file.TestRuns {
		err := batch.PutTestRun(ctx, facts.TestRun{
			Name:              run.Name,
			Date:              run.Date.Time,
			ExpectedTestCount: run.ExpectedTestCount,
			Logs:              run.Logs,
		})
		if err != nil {
			_ = batch.Rollback()
			return WrapExitError(ExitCommandError, "failed to ingest test run", err)
		}
		summary.TestRuns++

		for _, test := range run.Tests {
			err := batch.PutTest(ctx, facts.Test{
				RunName:    run.Name,
				RunDate:    run.Date.Time,
				Name:       test.Name,
				Filepath:   test.Filepath,
				Line:       test.Line,
				State:      test.State.State,
				SkipReason: test.State.SkipReason,
			})
			if err != nil {
				_ = batch.Rollback()
				return WrapExitError(ExitCommandError, "failed to ingest test", err)
			}
			summary.Tests++

			for _, covered := range test.CoveredTraces {
				quarantined, err := batch.PutCoverage(ctx, facts.CoverageLink{
					ReqID:    covered.ReqID,
					RunName:  run.Name,
					RunDate:  run.Date.Time,
					TestName: test.Name,
					Filepath: covered.Filepath,
					Line:     covered.Line,
				})
				if err != nil {
					_ = batch.Rollback()
					return WrapExitError(ExitCommandError, "failed to ingest coverage link", err)
				}
				summary.Coverage++
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

	collector.RecordFacts(ctx, "coverage", int64(summary.Coverage-summary.Quarantined))
	collector.RecordQuarantined(ctx, "coverage", int64(summary.Quarantined))
	collector.SetGeneration(ctx, summary.Generation)
	collector.RecordOperation(ctx, "coverage", "ok", time.Since(start).Milliseconds())

	return newFormatter(opts, cmd).Success(summary)
}
