package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bumpcheck/internal/clock"
	"github.com/roach88/bumpcheck/internal/command"
	"github.com/roach88/bumpcheck/internal/config"
	"github.com/roach88/bumpcheck/internal/harness"
	"github.com/roach88/bumpcheck/internal/poll"
	"github.com/roach88/bumpcheck/internal/provision"
	"github.com/roach88/bumpcheck/internal/runs"
	"github.com/roach88/bumpcheck/internal/store"
)

// DefaultTimeout bounds a whole execution.
const DefaultTimeout = 30 * time.Minute

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Fixture    string
	WorkDir    string
	SourceRoot string
	Database   string
	EnvFile    string
	Timeout    time.Duration
	FailFast   bool

	// Overrides for testing. Nil fields get the real implementation.
	Runner command.Runner
	Runs   runs.Client
	Clock  clock.Clock
	IDs    harness.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision the test repository and run every fixture scenario",
		Long: `Provision the disposable test repository and run every scenario of
the fixture against real CI.

Configuration comes from the environment (TEST_REPO, TEST_USER,
TEST_TOKEN, TEST_SCOPE, GITHUB_RUN_ID, POLL_INTERVAL, POLL_MAX_ATTEMPTS),
optionally seeded from --env-file. Results are recorded in --db; pass
--db "" to skip recording.

The remote repository is destructively reset. Never point TEST_REPO at a
repository you care about.

Example:
  bumpcheck run --fixture e2e/config.yaml
  bumpcheck run --fixture e2e/config.yaml --timeout 1h --fail-fast --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarness(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Fixture, "fixture", "", "path to the fixture file (required)")
	cmd.Flags().StringVar(&opts.WorkDir, "workdir", "", "scratch directory for the test repository (default from "+config.EnvRepoDir+")")
	cmd.Flags().StringVar(&opts.SourceRoot, "source-root", ".", "directory the fixture's actionFiles patterns are relative to")
	cmd.Flags().StringVar(&opts.Database, "db", DefaultDatabase, "path to SQLite results database")
	cmd.Flags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file seeding the environment")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", DefaultTimeout, "deadline for the whole execution (0 disables)")
	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "skip remaining suites after the first failing suite")
	_ = cmd.MarkFlagRequired("fixture")

	return cmd
}

func runHarness(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	if err := config.LoadEnvFile(opts.EnvFile); err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "failed to load env file", err, nil)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err, nil)
	}
	if opts.WorkDir != "" {
		cfg.WorkDir = opts.WorkDir
	}
	remoteURL, err := cfg.AuthURL()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err, nil)
	}

	fx, err := readFixture(formatter, opts.Fixture)
	if err != nil {
		return err
	}
	formatter.VerboseLog("Loaded %d suite(s), %d scenario(s) from %s", len(fx.Suites), fx.ScenarioCount(), opts.Fixture)

	ctx, cancel := runContext(cmd, opts.Timeout, logger)
	defer cancel()

	client := opts.Runs
	if client == nil {
		if client, err = newGitHubClient(ctx, cfg); err != nil {
			return formatter.fail(ExitCommandError, ErrCodeConfig, "failed to create CI client", err, nil)
		}
	}
	runner := opts.Runner
	if runner == nil {
		var echo io.Writer
		if opts.Verbose {
			echo = cmd.ErrOrStderr()
		}
		runner = command.NewExec(echo, logger)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	ids := opts.IDs
	if ids == nil {
		ids = harness.UUIDv7Generator{}
	}
	executionID := ids.Generate()

	var ledger *store.Store
	if opts.Database != "" {
		if ledger, err = store.Open(opts.Database); err != nil {
			return formatter.fail(ExitCommandError, ErrCodeLedger, "failed to open database", err, nil)
		}
		defer func() {
			if closeErr := ledger.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		if err := ledger.BeginExecution(ctx, executionID, cfg.Scope, opts.Fixture, clk.Now()); err != nil {
			return formatter.fail(ExitCommandError, ErrCodeLedger, "failed to record execution", err, nil)
		}
	}
	finish := func(status string) error {
		if ledger == nil {
			return nil
		}
		return ledger.FinishExecution(context.WithoutCancel(ctx), executionID, status, clk.Now())
	}

	err = provision.New(runner, client, logger).Provision(ctx, provision.Options{
		Scope:       cfg.Scope,
		RemoteURL:   remoteURL,
		WorkDir:     cfg.WorkDir,
		SourceRoot:  opts.SourceRoot,
		ActionFiles: fx.ActionFiles,
	})
	if err != nil {
		if finishErr := finish(store.StatusAborted); finishErr != nil {
			logger.Error("failed to finish execution", "error", finishErr)
		}
		return formatter.fail(ExitCommandError, ErrCodeProvisioning, "provisioning failed", err, nil)
	}

	hcfg := harness.Config{
		Runner:       runner,
		Runs:         client,
		Scope:        cfg.Scope,
		WorkDir:      cfg.WorkDir,
		WorkflowFile: cfg.Workflow,
		Poll:         poll.Policy{Interval: cfg.PollInterval, MaxAttempts: cfg.MaxAttempts},
		FailFast:     opts.FailFast,
		Clock:        clk,
		IDs:          presetID(executionID),
		Logger:       logger,
	}
	if ledger != nil {
		hcfg.Recorder = store.Recorder{Store: ledger}
	}
	ex, err := harness.New(hcfg)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, "failed to create executor", err, nil)
	}

	rep, recordErr := ex.Run(ctx, fx)

	status := store.StatusOf(rep)
	if ctx.Err() != nil {
		status = store.StatusAborted
	}
	if err := finish(status); err != nil {
		recordErr = errors.Join(recordErr, err)
	}

	if err := outputReport(formatter, rep); err != nil {
		return err
	}

	if recordErr != nil {
		logger.Error("failed to record results", "error", recordErr)
		return &ExitError{Code: ExitCommandError, Reason: ErrCodeLedger, Message: "failed to record results", Err: recordErr}
	}
	if !rep.OK() {
		return &ExitError{Code: ExitFailure, Reason: ErrCodeScenarios, Message: failureSummary(rep)}
	}
	return nil
}

// runContext derives the execution context: the command's context bounded
// by timeout and cancelled on SIGINT or SIGTERM.
func runContext(cmd *cobra.Command, timeout time.Duration, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}

	var ctx context.Context
	var cancelTimeout context.CancelFunc
	if timeout > 0 {
		ctx, cancelTimeout = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancelTimeout = context.WithCancel(parent)
	}
	ctx, cancel := context.WithCancel(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
		cancelTimeout()
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newGitHubClient(ctx context.Context, cfg *config.Config) (*runs.GitHub, error) {
	owner, repo, err := runs.ParseRepoURL(cfg.RepoURL)
	if err != nil {
		return nil, err
	}
	return runs.NewGitHub(ctx, runs.GitHubOptions{
		Owner:    owner,
		Repo:     repo,
		Workflow: cfg.Workflow,
		Token:    cfg.Token,
		BaseURL:  cfg.APIURL,
	})
}

// presetID hands the executor an ID generated before provisioning so that
// the ledger row exists before the first scenario is recorded.
type presetID string

func (p presetID) Generate() string { return string(p) }

func failureSummary(rep *harness.Report) string {
	return fmt.Sprintf("%d scenario(s) failed, %d skipped", rep.Failed, rep.Skipped)
}

func outputReport(formatter *OutputFormatter, rep *harness.Report) error {
	if formatter.JSON() {
		doc, err := rep.MarshalCanonical()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode report", err)
		}
		resp := okResponse(json.RawMessage(doc))
		if !rep.OK() {
			resp = errorResponse(ErrCodeScenarios, failureSummary(rep), nil)
			resp.Data = json.RawMessage(doc)
		}
		resp.ExecutionID = rep.ExecutionID
		return formatter.emit(resp)
	}

	w := formatter.Writer
	for _, suite := range rep.Suites {
		fmt.Fprintf(w, "%s\n", suite.Name)
		for i := range suite.Scenarios {
			r := &suite.Scenarios[i]
			switch r.State {
			case harness.StateVerified:
				fmt.Fprintf(w, "  ✓ #%d %s (run %d)\n", r.Ordinal, r.Message, r.RunID)
			case harness.StateSkipped:
				fmt.Fprintf(w, "  - #%d %s (skipped)\n", r.Ordinal, r.Message)
			default:
				fmt.Fprintf(w, "  ✗ #%d %s [%s]\n", r.Ordinal, r.Message, harness.CodeOf(r.Err))
				if r.Err != nil {
					fmt.Fprintf(w, "      %s\n", r.Err)
				}
				if r.RunURL != "" {
					fmt.Fprintf(w, "      %s\n", r.RunURL)
				}
			}
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d skipped (execution %s, scope %s)\n",
		rep.Passed, rep.Failed, rep.Skipped, rep.ExecutionID, rep.Scope)
	return nil
}
