package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/reqtrace/reqtrace/internal/recon"
	"github.com/reqtrace/reqtrace/internal/store"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	Apply bool
}

// ReconcileSummary reports the staleness diff and what was done about it.
type ReconcileSummary struct {
	Generation            int64    `json:"generation"`
	AddedRequirements     []string `json:"added_requirements"`
	UnchangedRequirements []string `json:"unchanged_requirements"`
	StaleRequirements     []string `json:"stale_requirements"`
	StaleTraces           []string `json:"stale_traces"`
	Applied               bool     `json:"applied"`
	Promoted              int64    `json:"promoted"`
}

func (s ReconcileSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "generation %d: %d added, %d unchanged, %d stale requirements, %d stale traces",
		s.Generation, len(s.AddedRequirements), len(s.UnchangedRequirements),
		len(s.StaleRequirements), len(s.StaleTraces))
	for _, id := range s.StaleRequirements {
		fmt.Fprintf(&b, "\n  stale requirement: %s", id)
	}
	for _, trace := range s.StaleTraces {
		fmt.Fprintf(&b, "\n  stale trace: %s", trace)
	}
	if s.Applied {
		b.WriteString("\nstale rows deleted")
	} else if len(s.StaleRequirements) > 0 || len(s.StaleTraces) > 0 {
		b.WriteString("\ndry run: re-run with --apply to delete stale rows")
	}
	if s.Promoted > 0 {
		fmt.Fprintf(&b, "\n%d quarantined facts promoted", s.Promoted)
	}
	return b.String()
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Detect and optionally delete stale facts",
		Long: `Classify requirements and traces against the newest generation.

Rows whose generation lags were not re-confirmed by the latest ingestion
run and are reported as stale. The default is a dry run; --apply deletes
the stale rows, cascading to dependent hierarchy and coverage rows. Test
runs, tests, coverage and reviews are never swept. Quarantined facts are
re-checked and promoted in either mode.

Example:
  reqtrace reconcile --db ./facts.db
  reqtrace reconcile --db ./facts.db --apply`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Apply, "apply", false, "delete stale rows instead of reporting them")

	return cmd
}

func runReconcile(opts *ReconcileOptions, cmd *cobra.Command) error {
	start := time.Now()
	ctx := commandContext(cmd)
	collector := newCollector(opts.RootOptions)

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer closeStore(st)

	mgr := recon.New(st)

	promoted, err := mgr.Promote(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to promote quarantined facts", err)
	}

	diff, err := mgr.FindStale(ctx)
	if err != nil {
		var conflict *store.GenerationConflictError
		if errors.As(err, &conflict) {
			return WrapExitError(ExitFailure, "generation conflict detected", err)
		}
		return WrapExitError(ExitCommandError, "failed to compute staleness diff", err)
	}

	if opts.Apply {
		if err := mgr.Apply(ctx, diff); err != nil {
			return WrapExitError(ExitCommandError, "failed to delete stale rows", err)
		}
	}

	summary := ReconcileSummary{
		Generation:            diff.Generation,
		AddedRequirements:     emptyIfNil(diff.AddedRequirements),
		UnchangedRequirements: emptyIfNil(diff.UnchangedRequirements),
		StaleRequirements:     emptyIfNil(diff.StaleRequirements),
		StaleTraces:           []string{},
		Applied:               opts.Apply && !diff.Empty(),
		Promoted:              promoted.Total(),
	}
	for _, trace := range diff.StaleTraces {
		summary.StaleTraces = append(summary.StaleTraces,
			fmt.Sprintf("%s@%s:%d", trace.ReqID, trace.Filepath, trace.Line))
	}

	collector.RecordOperation(ctx, "reconcile", "ok", time.Since(start).Milliseconds())
	return newFormatter(opts.RootOptions, cmd).Success(summary)
}

func emptyIfNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
