package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/bumpcheck/internal/clock"
	"github.com/roach88/bumpcheck/internal/command"
	"github.com/roach88/bumpcheck/internal/expect"
	"github.com/roach88/bumpcheck/internal/fixture"
	"github.com/roach88/bumpcheck/internal/poll"
	"github.com/roach88/bumpcheck/internal/report"
	"github.com/roach88/bumpcheck/internal/runs"
)

// Committer identity used for scenario commits.
const (
	RunnerName  = "Test Runner"
	RunnerEmail = "Test@Runner.com"
)

// DefaultWorkflowFile is the workflow file name written for every suite.
const DefaultWorkflowFile = "push.yml"

// ManifestFile is the package manifest read back after each run.
const ManifestFile = "package.json"

// Config wires an Executor.
type Config struct {
	// Runner executes git inside WorkDir. Required.
	Runner command.Runner

	// Runs queries the CI provider. Required.
	Runs runs.Client

	// Scope namespaces the base branch and scenario branches. Required.
	Scope string

	// WorkDir is the provisioned working copy. Required.
	WorkDir string

	// WorkflowFile is the file name under .github/workflows.
	// Defaults to DefaultWorkflowFile.
	WorkflowFile string

	// Poll paces both polling phases.
	Poll poll.Policy

	// FailFast stops after the first suite with a failed scenario.
	FailFast bool

	// Clock defaults to clock.New().
	Clock clock.Clock

	// IDs defaults to UUIDv7Generator.
	IDs IDGenerator

	// Recorder, if set, receives each scenario result as it finishes.
	Recorder Recorder

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Executor runs fixture suites against a provisioned repository.
//
// Suites and scenarios run strictly in order: every scenario builds on the
// repository state left by the previous one.
type Executor struct {
	cfg    Config
	git    *command.Git
	clock  clock.Clock
	ids    IDGenerator
	logger *slog.Logger
}

// New validates cfg and creates an Executor.
func New(cfg Config) (*Executor, error) {
	var errs []error
	if cfg.Runner == nil {
		errs = append(errs, errors.New("runner is required"))
	}
	if cfg.Runs == nil {
		errs = append(errs, errors.New("run-status client is required"))
	}
	if cfg.Scope == "" {
		errs = append(errs, errors.New("scope is required"))
	}
	if cfg.WorkDir == "" {
		errs = append(errs, errors.New("working directory is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}

	if cfg.WorkflowFile == "" {
		cfg.WorkflowFile = DefaultWorkflowFile
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.IDs == nil {
		cfg.IDs = UUIDv7Generator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Executor{
		cfg:    cfg,
		git:    command.NewGit(cfg.Runner, cfg.WorkDir),
		clock:  cfg.Clock,
		ids:    cfg.IDs,
		logger: cfg.Logger,
	}, nil
}

// WorkflowPath is the repository-relative path of the suite workflow.
func (e *Executor) WorkflowPath() string {
	return WorkflowPath(e.cfg.WorkflowFile)
}

// WorkflowPath returns where a workflow file named file lives in a
// repository. An empty name means DefaultWorkflowFile.
func WorkflowPath(file string) string {
	if file == "" {
		file = DefaultWorkflowFile
	}
	return path.Join(".github", "workflows", file)
}

// Run executes every suite of fx and returns the aggregated report.
//
// Scenario failures are reported in the Report, not as an error. The
// returned error is non-nil only when recording results failed; the
// report is complete even then.
func (e *Executor) Run(ctx context.Context, fx *fixture.Fixture) (*Report, error) {
	rep := &Report{
		ExecutionID: e.ids.Generate(),
		Scope:       e.cfg.Scope,
		StartedAt:   e.clock.Now(),
	}
	e.logger.Info("execution started",
		"execution_id", rep.ExecutionID,
		"scope", e.cfg.Scope,
		"suites", len(fx.Suites),
		"scenarios", fx.ScenarioCount())

	rec := &recording{e: e, ctx: ctx, executionID: rep.ExecutionID}
	stop := false
	for i := range fx.Suites {
		suite := &fx.Suites[i]

		var sr SuiteResult
		if stop || ctx.Err() != nil {
			sr = e.skipSuite(suite, rec)
		} else {
			sr = e.runSuite(ctx, suite, rec)
		}
		rep.Suites = append(rep.Suites, sr)

		if e.cfg.FailFast && !sr.Passed() {
			stop = true
		}
	}

	rep.FinishedAt = e.clock.Now()
	rep.tally()
	e.logger.Info("execution finished",
		"execution_id", rep.ExecutionID,
		"passed", rep.Passed,
		"failed", rep.Failed,
		"skipped", rep.Skipped)

	return rep, errors.Join(rec.errs...)
}

// recording hands finished scenario results to the Recorder and collects
// its failures.
type recording struct {
	e           *Executor
	ctx         context.Context
	executionID string
	errs        []error
}

// add records r and appends it to sr.
func (rc *recording) add(sr *SuiteResult, r ScenarioResult) {
	sr.Scenarios = append(sr.Scenarios, r)
	if rc.e.cfg.Recorder == nil {
		return
	}
	// Results are persisted even after cancellation.
	if err := rc.e.cfg.Recorder.RecordScenario(context.WithoutCancel(rc.ctx), rc.executionID, &r); err != nil {
		rc.e.logger.Error("failed to record scenario", "suite", r.Suite, "ordinal", r.Ordinal, "error", err)
		rc.errs = append(rc.errs, fmt.Errorf("record %s #%d: %w", r.Suite, r.Ordinal, err))
	}
}

// runSuite prepares the suite workflow and runs its scenarios in order.
// After the first failure the remaining scenarios are skipped.
func (e *Executor) runSuite(ctx context.Context, suite *fixture.Suite, rec *recording) SuiteResult {
	sr := SuiteResult{Name: suite.Name}
	log := e.logger.With("suite", suite.Name)
	log.Info("suite started", "scenarios", len(suite.Tests))

	workflow, err := e.prepareSuite(ctx, suite)
	failed := err != nil

	for i, sc := range suite.Tests {
		ordinal := i + 1
		switch {
		case i == 0 && err != nil:
			r := e.newResult(suite.Name, ordinal, sc)
			e.fail(&r, wrap("prepare suite", suite.Name, ordinal, err))
			rec.add(&sr, r)
		case failed || ctx.Err() != nil:
			rec.add(&sr, e.skipped(suite.Name, ordinal, sc))
		default:
			r := e.runScenario(ctx, suite.Name, ordinal, sc, workflow)
			if !r.Passed() {
				failed = true
			}
			rec.add(&sr, r)
		}
	}

	log.Info("suite finished", "passed", sr.Passed())
	return sr
}

func (e *Executor) skipSuite(suite *fixture.Suite, rec *recording) SuiteResult {
	sr := SuiteResult{Name: suite.Name}
	for i, sc := range suite.Tests {
		rec.add(&sr, e.skipped(suite.Name, i+1, sc))
	}
	return sr
}

// prepareSuite sets the committer identity and stages the workflow file.
func (e *Executor) prepareSuite(ctx context.Context, suite *fixture.Suite) ([]byte, error) {
	workflow, err := suite.WorkflowYAML()
	if err != nil {
		return nil, err
	}

	if _, err := e.git.Run(ctx, "config", "user.name", RunnerName); err != nil {
		return nil, err
	}
	if _, err := e.git.Run(ctx, "config", "user.email", RunnerEmail); err != nil {
		return nil, err
	}

	rel := e.WorkflowPath()
	abs := filepath.Join(e.cfg.WorkDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("create workflow directory: %w", err)
	}
	if err := os.WriteFile(abs, workflow, 0644); err != nil {
		return nil, fmt.Errorf("write workflow: %w", err)
	}
	if _, err := e.git.Run(ctx, "add", rel, "--force"); err != nil {
		return nil, err
	}
	return workflow, nil
}

func (e *Executor) newResult(suite string, ordinal int, sc fixture.Scenario) ScenarioResult {
	now := e.clock.Now()
	r := ScenarioResult{
		Suite:     suite,
		Ordinal:   ordinal,
		Message:   sc.Message,
		Expected:  expect.Resolve(sc.Expected, e.cfg.Scope),
		StartedAt: now,
	}
	r.enter(StateIdle, now)
	return r
}

func (e *Executor) skipped(suite string, ordinal int, sc fixture.Scenario) ScenarioResult {
	now := e.clock.Now()
	return ScenarioResult{
		Suite:      suite,
		Ordinal:    ordinal,
		Message:    sc.Message,
		State:      StateSkipped,
		Expected:   expect.Resolve(sc.Expected, e.cfg.Scope),
		Trace:      []Transition{{State: StateSkipped, At: now}},
		StartedAt:  now,
		FinishedAt: now,
	}
}

func (e *Executor) fail(r *ScenarioResult, err *Error) {
	now := e.clock.Now()
	r.Err = err
	r.enter(StateFailed, now)
	r.FinishedAt = now
	e.logger.Warn("scenario failed",
		"suite", r.Suite,
		"ordinal", r.Ordinal,
		"code", err.Code,
		"error", err.Error())
}

// runScenario drives one scenario through its state machine.
func (e *Executor) runScenario(ctx context.Context, suite string, ordinal int, sc fixture.Scenario, workflow []byte) ScenarioResult {
	r := e.newResult(suite, ordinal, sc)
	log := e.logger.With("suite", suite, "ordinal", ordinal)
	failf := func(step string, err error) ScenarioResult {
		e.fail(&r, wrap(step, suite, ordinal, err))
		return r
	}

	doc := report.Render(report.Input{
		Suite:        suite,
		Ordinal:      ordinal,
		WorkflowPath: e.WorkflowPath(),
		Workflow:     workflow,
		Message:      sc.Message,
		Expected:     r.Expected,
	})
	if err := os.WriteFile(filepath.Join(e.cfg.WorkDir, report.FileName), []byte(doc), 0644); err != nil {
		return failf("write report", err)
	}
	if _, err := e.git.Run(ctx, "add", report.FileName, "--force"); err != nil {
		return failf("stage report", err)
	}
	if _, err := e.git.Run(ctx, "commit", "--message", sc.Message); err != nil {
		return failf("commit", err)
	}
	r.enter(StateCommitted, e.clock.Now())

	mark, err := e.highWaterMark(ctx)
	if err != nil {
		return failf("read high-water mark", err)
	}
	r.Mark = mark

	if _, err := e.git.Run(ctx, "push"); err != nil {
		return failf("push", err)
	}
	r.enter(StatePushed, e.clock.Now())
	log.Debug("pushed", "mark", mark)

	r.enter(StateAwaitingRunStart, e.clock.Now())
	started, err := poll.Until(ctx, e.clock, e.cfg.Poll,
		func(ctx context.Context) (*runs.Run, error) {
			return e.cfg.Runs.MostRecentRun(ctx, e.cfg.Scope)
		},
		func(run *runs.Run) bool {
			return run != nil && run.CreatedAt.After(mark)
		})
	if err != nil {
		return failf("wait for run to start", err)
	}
	r.RunID = started.Value.ID
	r.RunURL = started.Value.URL
	log.Debug("run started", "run_id", r.RunID, "attempts", started.Attempts)

	r.enter(StateAwaitingRunCompletion, e.clock.Now())
	completed, err := poll.Until(ctx, e.clock, e.cfg.Poll,
		func(ctx context.Context) (*runs.Run, error) {
			return e.cfg.Runs.GetRun(ctx, r.RunID)
		},
		(*runs.Run).Completed)
	if err != nil {
		return failf("wait for run to complete", err)
	}
	r.Conclusion = completed.Value.Conclusion
	r.enter(StateCompleted, e.clock.Now())
	log.Debug("run completed", "run_id", r.RunID, "conclusion", r.Conclusion)

	if !completed.Value.Succeeded() {
		e.fail(&r, &Error{
			Code:     CodeConclusion,
			Message:  fmt.Sprintf("run %d concluded %q, expected %q", r.RunID, r.Conclusion, runs.ConclusionSuccess),
			Suite:    suite,
			Scenario: ordinal,
		})
		return r
	}

	observed, err := e.readBack(ctx, r.Expected.Branch)
	if err != nil {
		return failf("read back repository state", err)
	}
	r.Observed = &observed
	r.Expected = r.Expected.Fill(observed)

	verdict := expect.Evaluate(observed, r.Expected)
	if !verdict.Pass() {
		r.Mismatches = verdict.Mismatches
		e.fail(&r, &Error{
			Code:     CodeMismatch,
			Message:  "repository state does not match expectation",
			Suite:    suite,
			Scenario: ordinal,
			Err:      verdict.Err(),
		})
		return r
	}

	now := e.clock.Now()
	r.enter(StateVerified, now)
	r.FinishedAt = now
	log.Info("scenario passed", "run_id", r.RunID)
	return r
}

// highWaterMark is the creation time of the most recent run, or the Unix
// epoch when the scope has no runs.
func (e *Executor) highWaterMark(ctx context.Context) (time.Time, error) {
	run, err := e.cfg.Runs.MostRecentRun(ctx, e.cfg.Scope)
	if err != nil {
		return time.Time{}, err
	}
	if run == nil {
		return time.Unix(0, 0).UTC(), nil
	}
	return run.CreatedAt, nil
}

// readBack pulls the settled repository state. When branch is set it is
// fetched and checked out first, and the scope branch is checked out again
// afterwards whatever the outcome.
func (e *Executor) readBack(ctx context.Context, branch string) (obs expect.Observed, err error) {
	if branch != "" {
		if _, err := e.git.Run(ctx, "fetch", "origin", branch); err != nil {
			return obs, err
		}
		if _, err := e.git.Run(ctx, "checkout", branch); err != nil {
			return obs, err
		}
		defer func() {
			if _, cerr := e.git.Run(ctx, "checkout", e.cfg.Scope); cerr != nil && err == nil {
				err = cerr
			}
		}()
	}

	if _, err := e.git.Run(ctx, "pull"); err != nil {
		return obs, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := ReadManifestVersion(e.cfg.WorkDir)
		obs.Version = v
		return err
	})
	g.Go(func() error {
		tag, err := e.git.Output(gctx, "describe", "--tags", "--abbrev=0")
		obs.Tag = tag
		return err
	})
	g.Go(func() error {
		msg, err := e.git.Output(gctx, "show", "--no-patch", "--format=%s")
		obs.Message = msg
		return err
	})
	if err := g.Wait(); err != nil {
		return obs, err
	}
	return obs, nil
}

// ReadManifestVersion returns the version field of dir/package.json.
func ReadManifestVersion(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return "", fmt.Errorf("read manifest: %w", err)
	}
	var manifest struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "", fmt.Errorf("parse manifest: %w", err)
	}
	return manifest.Version, nil
}
