package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run an integrity check on the index store",
		Long: `Run SQLite's integrity check against the index database. Run this
after any store-failure error before trusting query results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd)
		},
	}

	return cmd
}

func runCheck(opts *RootOptions, cmd *cobra.Command) error {
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

	if err := env.Index.IntegrityCheck(cmd.Context()); err != nil {
		_ = formatter.Error(ErrCodeStoreFailure, err.Error(), nil)
		return WrapExitError(ExitCommandError, "integrity check failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"integrity": "ok"})
	}
	fmt.Fprintln(formatter.Writer, "index integrity: ok")
	return nil
}
