package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/reqtrace/reqtrace/internal/facts"
	"github.com/reqtrace/reqtrace/internal/recon"
	"github.com/reqtrace/reqtrace/internal/schema"
)

// NewReviewCommand creates the review command.
func NewReviewCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <review.toml|review.json>",
		Short: "Ingest a manual review",
		Long: `Ingest a manual review session with the requirements it verified.

A verification naming a requirement that is not in the database yet is
quarantined and promoted once the requirement arrives.

Example:
  reqtrace review --db ./facts.db ./reviews/release-1.4.toml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runReview(opts *RootOptions, path string, cmd *cobra.Command) error {
	start := time.Now()
	ctx := commandContext(cmd)
	collector := newCollector(opts)

	review, err := schema.LoadReview(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load review file", err)
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
	err = batch.PutReview(ctx, facts.Review{
		Name:     review.Name,
		Date:     review.Date.Time,
		Reviewer: review.Reviewer,
		Comment:  review.Comment,
	})
	if err != nil {
		_ = batch.Rollback()
		return WrapExitError(ExitCommandError, "failed to ingest review", err)
	}
	summary.Reviews++

	for _, req := range review.Requirements {
		quarantined, err := batch.PutVerification(ctx, facts.ManualVerification{
			ReqID:      req.ID,
			ReviewName: review.Name,
			ReviewDate: review.Date.Time,
			Comment:    req.Comment,
		})
		if err != nil {
			_ = batch.Rollback()
			return WrapExitError(ExitCommandError, "failed to ingest verification", err)
		}
		summary.Verifications++
		if quarantined {
			summary.Quarantined++
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

	collector.RecordFacts(ctx, "verifications", int64(summary.Verifications-summary.Quarantined))
	collector.RecordQuarantined(ctx, "verifications", int64(summary.Quarantined))
	collector.SetGeneration(ctx, summary.Generation)
	collector.RecordOperation(ctx, "review", "ok", time.Since(start).Milliseconds())

	return newFormatter(opts, cmd).Success(summary)
}
