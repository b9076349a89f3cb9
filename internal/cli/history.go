package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bumpcheck/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database  string
	Limit     int
	Execution string
	Keep      int
}

// ExecutionSummary is one execution in history output.
type ExecutionSummary struct {
	ID         string     `json:"id"`
	Scope      string     `json:"scope"`
	Fixture    string     `json:"fixture"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Passed     int        `json:"passed"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
}

// ScenarioSummary is one recorded scenario in history output.
type ScenarioSummary struct {
	Suite      string `json:"suite"`
	Ordinal    int    `json:"ordinal"`
	Message    string `json:"message"`
	State      string `json:"state"`
	RunID      int64  `json:"run_id,omitempty"`
	Conclusion string `json:"conclusion,omitempty"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded executions",
		Long: `List executions recorded by run, newest first.

With --execution the scenarios of that execution are listed instead.
With --keep only the given number of most recent executions is kept;
older executions and their scenario results are deleted first.

Example:
  bumpcheck history --db ./bumpcheck.db --limit 5
  bumpcheck history --execution 0190c3a4-... --format json
  bumpcheck history --keep 50`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", DefaultDatabase, "path to SQLite database")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum executions to list (0 for all)")
	cmd.Flags().StringVar(&opts.Execution, "execution", "", "list the scenarios of one execution")
	cmd.Flags().IntVar(&opts.Keep, "keep", 0, "delete all but this many most recent executions (0 keeps everything)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// Opening would create an empty database.
	if _, err := os.Stat(opts.Database); errors.Is(err, fs.ErrNotExist) {
		return formatter.fail(ExitCommandError, ErrCodeLedger, fmt.Sprintf("database not found: %s", opts.Database), nil, nil)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeLedger, "failed to open database", err, nil)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Keep > 0 {
		n, err := st.Prune(ctx, opts.Keep)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeLedger, "failed to prune executions", err, nil)
		}
		formatter.VerboseLog("Pruned %d execution(s)", n)
	}

	if opts.Execution != "" {
		return showExecution(ctx, formatter, st, opts.Execution)
	}

	execs, err := st.ListExecutions(ctx, opts.Limit)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeLedger, "failed to list executions", err, nil)
	}

	summaries := make([]ExecutionSummary, len(execs))
	for i, e := range execs {
		summaries[i] = ExecutionSummary(e)
	}

	if formatter.JSON() {
		return formatter.Success(summaries)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(formatter.Writer, "No executions recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCOPE\tSTATUS\tPASSED\tFAILED\tSKIPPED\tSTARTED")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			s.ID, s.Scope, s.Status, s.Passed, s.Failed, s.Skipped, s.StartedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func showExecution(ctx context.Context, formatter *OutputFormatter, st *store.Store, id string) error {
	recs, err := st.ScenarioResults(ctx, id)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeLedger, "failed to read scenario results", err, nil)
	}
	if len(recs) == 0 {
		return formatter.fail(ExitCommandError, ErrCodeLedger, fmt.Sprintf("no scenarios recorded for execution %s", id), nil, nil)
	}

	summaries := make([]ScenarioSummary, len(recs))
	for i, r := range recs {
		summaries[i] = ScenarioSummary{
			Suite:      r.Suite,
			Ordinal:    r.Ordinal,
			Message:    r.Message,
			State:      r.State,
			RunID:      r.RunID,
			Conclusion: r.Conclusion,
			Code:       r.Code,
			Error:      r.Error,
		}
	}

	if formatter.JSON() {
		return formatter.Success(summaries)
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SUITE\t#\tSTATE\tRUN\tMESSAGE")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\n", s.Suite, s.Ordinal, s.State, s.RunID, s.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, s := range summaries {
		if s.Error != "" {
			fmt.Fprintf(formatter.Writer, "\n%s #%d [%s]: %s\n", s.Suite, s.Ordinal, s.Code, s.Error)
		}
	}
	return nil
}
