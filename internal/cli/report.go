package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/reqtrace/reqtrace/internal/graph"
	"github.com/reqtrace/reqtrace/internal/report"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Out     string
	Project string
	Locale  string
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate the requirement status report",
		Long: `Derive all status relations from the current fact base and write the
report as JSON.

The report contains the global overview, per-requirement trace and
coverage detail, test statistics, reviews, validation results and the
currently quarantined facts.

Example:
  reqtrace report --db ./facts.db --out report.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Out, "out", "", "write the report to this file instead of stdout")
	cmd.Flags().StringVar(&opts.Project, "project", "", "project label embedded in the report")
	cmd.Flags().StringVar(&opts.Locale, "locale", "", "collation locale for requirement ordering (default from reqtrace.yaml)")

	return cmd
}

func runReport(opts *ReportOptions, cmd *cobra.Command) error {
	start := time.Now()
	ctx := commandContext(cmd)
	collector := newCollector(opts.RootOptions)

	cfg, err := projectConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load project config", err)
	}
	locale := opts.Locale
	if locale == "" {
		locale = cfg.Report.Locale
	}
	project := opts.Project
	if project == "" {
		project = cfg.Report.Project
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer closeStore(st)

	snap, err := st.LoadSnapshot(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load fact snapshot", err)
	}
	unrelated, err := st.LoadUnrelated(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load quarantined facts", err)
	}

	reportCtx, err := report.Build(snap, unrelated, report.Options{
		Project: project,
		Locale:  locale,
	})
	if err != nil {
		var cycleErr *graph.CyclicHierarchyError
		if errors.As(err, &cycleErr) {
			return WrapExitError(ExitFailure, "requirement hierarchy contains a cycle", err)
		}
		return WrapExitError(ExitCommandError, "failed to build report", err)
	}

	data, err := json.MarshalIndent(reportCtx, "", "  ")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to serialize report", err)
	}
	data = append(data, '\n')

	if opts.Out != "" {
		if err := os.WriteFile(opts.Out, data, 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write report file", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", opts.Out)
	} else {
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return WrapExitError(ExitCommandError, "failed to write report", err)
		}
	}

	collector.RecordOperation(ctx, "report", "ok", time.Since(start).Milliseconds())
	return nil
}
