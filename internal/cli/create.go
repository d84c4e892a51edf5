package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/kbsync/internal/audit"
	"github.com/roach88/kbsync/internal/events"
	"github.com/roach88/kbsync/internal/record"
	"github.com/roach88/kbsync/internal/writer"
)

// createFlags holds the per-invocation record fields.
type createFlags struct {
	Type     string
	Title    string
	Domain   string
	Severity string
	Tags     []string
	Summary  string
	Body     string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &createFlags{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a knowledge record in both stores",
		Long: `Create a knowledge record: write the content file, insert the index
row, and append the audit-trail entry. On an index failure the
just-written file is rolled back; nothing half-written survives.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(rootOpts, flags, cmd)
		},
	}

	cmd.Flags().StringVar(&flags.Type, "type", "note", "record type (failure|heuristic|experiment|note)")
	cmd.Flags().StringVar(&flags.Title, "title", "", "record title (required)")
	cmd.Flags().StringVar(&flags.Domain, "domain", "", "domain the record belongs to")
	cmd.Flags().StringVar(&flags.Severity, "severity", "", "severity 1-5 or low|medium|high|critical")
	cmd.Flags().StringSliceVar(&flags.Tags, "tags", nil, "comma-separated tags")
	cmd.Flags().StringVar(&flags.Summary, "summary", "", "one-line summary")
	cmd.Flags().StringVar(&flags.Body, "body", "", "free-text body")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

func runCreate(opts *RootOptions, flags *createFlags, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	severity, err := parseSeverityFlag(flags.Severity)
	if err != nil {
		_ = formatter.Error(ErrCodeValidation, err.Error(), nil)
		return WrapExitError(ExitIssuesFound, "invalid input", err)
	}

	env, err := openEnv(opts)
	if err != nil {
		return err
	}
	defer env.Close()

	trail := audit.NewTrail(env.Cfg.AuditPath, env.Cfg.LockPath, time.Duration(env.Cfg.LockTimeout))
	w := writer.New(env.Index, env.Content, trail, events.NewLogSink(nil), record.SystemClock())
	w.Retry = env.Cfg.RetryPolicy()

	result, err := w.Create(cmd.Context(), writer.Input{
		Type:     flags.Type,
		Title:    flags.Title,
		Domain:   flags.Domain,
		Severity: severity,
		Tags:     flags.Tags,
		Summary:  flags.Summary,
		Body:     flags.Body,
	})
	if err != nil {
		code := errorCode(err)
		_ = formatter.Error(code, err.Error(), nil)
		if code == ErrCodeValidation {
			return WrapExitError(ExitIssuesFound, "invalid input", err)
		}
		return WrapExitError(ExitCommandError, "create failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "created %s (index id %d)\n", result.Key, result.IndexID)
	return nil
}

// parseSeverityFlag converts the --severity string. Unlike the
// tolerant file parser, bad CLI input is rejected: the operator typed
// it and can fix it.
func parseSeverityFlag(s string) (record.Severity, error) {
	if s == "" {
		return record.SeverityUnset, nil
	}
	sev, ok := record.ParseSeverity(s)
	if !ok {
		return record.SeverityUnset, fmt.Errorf("invalid severity %q: want 1-5 or low|medium|high|critical", s)
	}
	return sev, nil
}
