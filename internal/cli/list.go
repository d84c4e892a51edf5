package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kbsync/internal/index"
	"github.com/roach88/kbsync/internal/record"
)

// listFlags narrow the index scan.
type listFlags struct {
	Type        string
	Domain      string
	MinSeverity string
}

// listEntry is one row of the list output.
type listEntry struct {
	Key      string          `json:"key"`
	Type     record.Type     `json:"type"`
	Title    string          `json:"title"`
	Domain   string          `json:"domain"`
	Severity record.Severity `json:"severity,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed records, optionally filtered",
		Long: `Scan the index and print one line per record, ordered by canonical
key. Filters combine with AND.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, flags, cmd)
		},
	}

	cmd.Flags().StringVar(&flags.Type, "type", "", "only records of this type")
	cmd.Flags().StringVar(&flags.Domain, "domain", "", "only records in this domain")
	cmd.Flags().StringVar(&flags.MinSeverity, "min-severity", "", "only records at or above this severity")

	return cmd
}

func runList(opts *RootOptions, flags *listFlags, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	filter, err := buildFilter(flags)
	if err != nil {
		_ = formatter.Error(ErrCodeValidation, err.Error(), nil)
		return WrapExitError(ExitIssuesFound, "invalid input", err)
	}

	env, err := openEnv(opts)
	if err != nil {
		return err
	}
	defer env.Close()

	var entries []listEntry
	for row, err := range env.Index.Scan(cmd.Context(), filter) {
		if err != nil {
			_ = formatter.Error(errorCode(err), err.Error(), nil)
			return WrapExitError(ExitCommandError, "list failed", err)
		}
		entries = append(entries, listEntry{
			Key:      row.Key,
			Type:     row.Type,
			Title:    row.Title,
			Domain:   row.Domain,
			Severity: row.Severity,
		})
	}

	if opts.Format == "json" {
		return formatter.Success(entries)
	}
	for _, e := range entries {
		fmt.Fprintf(formatter.Writer, "%s  [%s/%s]  %s\n", e.Key, e.Type, e.Domain, e.Title)
	}
	fmt.Fprintf(formatter.Writer, "%d record(s)\n", len(entries))
	return nil
}

func buildFilter(flags *listFlags) (index.Filter, error) {
	var f index.Filter

	if flags.Type != "" {
		typ, ok := record.ParseType(flags.Type)
		if !ok {
			return f, fmt.Errorf("invalid type %q: want failure|heuristic|experiment|note", flags.Type)
		}
		f.Type = typ
	}
	f.Domain = flags.Domain

	if flags.MinSeverity != "" {
		sev, ok := record.ParseSeverity(flags.MinSeverity)
		if !ok {
			return f, fmt.Errorf("invalid severity %q: want 1-5 or low|medium|high|critical", flags.MinSeverity)
		}
		f.MinSeverity = sev
	}
	return f, nil
}
