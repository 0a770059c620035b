package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/reqtrace/reqtrace/internal/facts"
	"github.com/reqtrace/reqtrace/internal/recon"
	"github.com/reqtrace/reqtrace/internal/schema"
	"github.com/reqtrace/reqtrace/internal/store"
)

// NewCollectCommand creates the collect command.
func NewCollectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect <requirements.json>",
		Short: "Ingest extracted requirement definitions",
		Long: `Ingest a requirements file produced by a requirement extractor.

Each run is stamped with a fresh generation. Requirements already in the
database are re-confirmed; their first-seen generation is preserved.
Hierarchy links follow explicit parent_ids when given, otherwise the
dotted ID implies the parent, with holes resolved to the nearest
declared ancestor.

Example:
  reqtrace collect --db ./facts.db ./requirements.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCollect(opts *RootOptions, path string, cmd *cobra.Command) error {
	start := time.Now()
	ctx := commandContext(cmd)
	collector := newCollector(opts)

	file, err := schema.LoadRequirements(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load requirements file", err)
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

	summary, err := ingestRequirements(ctx, batch, file)
	if err != nil {
		_ = batch.Rollback()
		return WrapExitError(ExitCommandError, "failed to ingest requirements", err)
	}
	if err := batch.Commit(); err != nil {
		return WrapExitError(ExitCommandError, "failed to commit batch", err)
	}

	promoted, err := mgr.Promote(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to promote quarantined facts", err)
	}
	summary.Promoted = promoted.Total()

	collector.RecordFacts(ctx, "requirements", int64(summary.Requirements))
	collector.SetGeneration(ctx, summary.Generation)
	collector.RecordOperation(ctx, "collect", "ok", time.Since(start).Milliseconds())

	return newFormatter(opts, cmd).Success(summary)
}

func ingestRequirements(ctx context.Context, batch *store.Batch, file *schema.RequirementsFile) (IngestSummary, error) {
	summary := IngestSummary{Generation: batch.Generation()}

	for _, rec := range file.Requirements {
		req := facts.Requirement{
			ID:         rec.ID,
			Origin:     rec.Origin,
			Title:      rec.Title,
			Annotation: rec.AnnotationValue(),
		}
		if err := batch.PutRequirement(ctx, req); err != nil {
			return summary, err
		}
		summary.Requirements++
	}

	// Link hierarchies after all requirements of the batch exist, so a
	// child can reference a parent declared later in the same file.
	for _, rec := range file.Requirements {
		if len(rec.ParentIDs) > 0 {
			for _, parentID := range rec.ParentIDs {
				known, err := batch.HasRequirement(ctx, parentID)
				if err != nil {
					return summary, err
				}
				if !known {
					slog.Warn("skipping hierarchy link to unknown parent",
						"child", rec.ID, "parent", parentID)
					continue
				}
				if err := batch.LinkParent(ctx, rec.ID, parentID); err != nil {
					return summary, err
				}
				summary.Hierarchies++
			}
			continue
		}

		parentID, found, err := batch.ResolveParent(ctx, rec.ID)
		if err != nil {
			return summary, err
		}
		if !found {
			continue
		}
		if err := batch.LinkParent(ctx, rec.ID, parentID); err != nil {
			return summary, err
		}
		summary.Hierarchies++
	}

	return summary, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
