package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kbsync/internal/events"
	"github.com/roach88/kbsync/internal/reconcile"
	"github.com/roach88/kbsync/internal/record"
)

// reconcileResult is the JSON payload for a reconcile run.
type reconcileResult struct {
	Mode   string            `json:"mode"`
	Stats  reconcile.Stats   `json:"stats"`
	Drifts []reconcile.Drift `json:"drifts,omitempty"`
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Detect (and with --fix, heal) drift between the two stores",
		Long: `Compare the content-file keys against the index rows and report every
orphan. With --fix, orphaned files are parsed back into index rows and
orphaned rows are serialized into recovered content files. The pass is
idempotent: running it twice with no intervening writes fixes nothing
the second time.

Exit codes: 0 clean, 1 drift found (report mode), 2 repair failed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(rootOpts, fix, cmd)
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "repair drift instead of only reporting it")

	return cmd
}

func runReconcile(opts *RootOptions, fix bool, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	env, err := openEnv(opts)
	if err != nil {
		return err
	}
	defer env.Close()

	mode := reconcile.Report
	if fix {
		mode = reconcile.Fix
	}

	r := reconcile.New(env.Index, env.Content, events.NewLogSink(nil), record.SystemClock())
	r.Retry = env.Cfg.RetryPolicy()

	stats, drifts, err := r.Run(cmd.Context(), mode)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "reconcile failed", err)
	}

	if opts.Format == "json" {
		if err := formatter.Success(reconcileResult{Mode: mode.String(), Stats: stats, Drifts: drifts}); err != nil {
			return err
		}
	} else {
		printReconcileText(formatter, mode, stats, drifts)
	}

	// Repair failures are errors; drift in report mode is informational.
	if stats.Errors > 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("repair failed for %d record(s)", stats.Errors))
	}
	if mode == reconcile.Report && stats.DriftFound() {
		return NewExitError(ExitIssuesFound,
			fmt.Sprintf("%d orphan(s) found", stats.OrphanContent+stats.OrphanIndex))
	}
	return nil
}

func printReconcileText(f *OutputFormatter, mode reconcile.Mode, stats reconcile.Stats, drifts []reconcile.Drift) {
	for _, d := range drifts {
		switch d.Kind {
		case reconcile.OrphanContent:
			fmt.Fprintf(f.Writer, "orphan content: %s (file without index row)\n", d.Key)
		case reconcile.OrphanIndex:
			fmt.Fprintf(f.Writer, "orphan index:   %s (row without content file)\n", d.Key)
		}
	}

	if !stats.DriftFound() {
		fmt.Fprintln(f.Writer, "stores are consistent")
		return
	}

	fmt.Fprintf(f.Writer, "orphans: %d content, %d index", stats.OrphanContent, stats.OrphanIndex)
	if mode == reconcile.Fix {
		fmt.Fprintf(f.Writer, "; fixed: %d rows, %d files; errors: %d",
			stats.FixedContent, stats.FixedIndex, stats.Errors)
	}
	fmt.Fprintln(f.Writer)
}
