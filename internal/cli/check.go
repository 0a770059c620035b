package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/reqtrace/reqtrace/internal/graph"
	"github.com/reqtrace/reqtrace/internal/status"
)

// CheckSummary reports the validity check result.
type CheckSummary struct {
	Valid       bool     `json:"valid"`
	InvalidReqs []string `json:"invalid_reqs"`
}

func (s CheckSummary) String() string {
	if s.Valid {
		return "ok: no deprecated requirement is traced"
	}
	return fmt.Sprintf("invalid: deprecated requirements still traced: %s",
		strings.Join(s.InvalidReqs, ", "))
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that no deprecated requirement is still traced",
		Long: `Derive the status relations and fail when any effectively deprecated
requirement still has trace evidence.

Exit code 1 signals invalid requirements; the offending IDs are listed.

Example:
  reqtrace check --db ./facts.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, cmd *cobra.Command) error {
	start := time.Now()
	ctx := commandContext(cmd)
	collector := newCollector(opts)

	st, err := openStore(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer closeStore(st)

	snap, err := st.LoadSnapshot(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load fact snapshot", err)
	}

	result, err := status.Compute(snap)
	if err != nil {
		var cycleErr *graph.CyclicHierarchyError
		if errors.As(err, &cycleErr) {
			return WrapExitError(ExitFailure, "requirement hierarchy contains a cycle", err)
		}
		return WrapExitError(ExitCommandError, "failed to derive status", err)
	}

	summary := CheckSummary{InvalidReqs: result.InvalidIDs()}
	summary.Valid = len(summary.InvalidReqs) == 0
	if summary.InvalidReqs == nil {
		summary.InvalidReqs = []string{}
	}

	formatter := newFormatter(opts, cmd)
	if err := formatter.Success(summary); err != nil {
		return err
	}
	collector.RecordOperation(ctx, "check", "ok", time.Since(start).Milliseconds())

	if !summary.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf(
			"%d deprecated requirements are still traced", len(summary.InvalidReqs)))
	}
	return nil
}
