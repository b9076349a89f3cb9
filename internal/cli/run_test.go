package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bumpcheck/internal/config"
	"github.com/roach88/bumpcheck/internal/provision"
	"github.com/roach88/bumpcheck/internal/runs"
	"github.com/roach88/bumpcheck/internal/store"
	"github.com/roach88/bumpcheck/internal/testutil"
)

const testScope = "run-7"

const twoScenarioFixture = `suites:
  - name: default
    yaml:
      name: Bump Version
      on: push
      jobs:
        bump:
          runs-on: ubuntu-latest
          steps:
            - uses: ./action
    tests:
      - message: "fix: a"
        expected:
          version: 1.0.1
      - message: "feat: b"
        expected:
          version: 1.1.0
`

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvRepo, "https://github.com/acme/widget-test.git")
	t.Setenv(config.EnvUser, "bot")
	t.Setenv(config.EnvToken, "s3cret")
	t.Setenv(config.EnvScope, testScope)
	t.Setenv(config.EnvRunID, "")
	t.Setenv(config.EnvWorkflow, "")
	t.Setenv(config.EnvAPIURL, "")
	t.Setenv(config.EnvPollInterval, "1s")
	t.Setenv(config.EnvMaxAttempts, "20")
	t.Setenv(config.EnvRepoDir, "")
}

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// automation plays the action under test: every scenario push moves the
// remote head to the next version and starts a run.
type automation struct {
	git  *testutil.FakeGit
	runs *testutil.FakeRuns

	mu          sync.Mutex
	versions    []string
	conclusions []runs.Conclusion
}

func (a *automation) onPush(branch string) {
	head, _ := a.git.Remote(branch)
	if head.Message == provision.InitialCommitMessage {
		return
	}

	a.mu.Lock()
	version := a.versions[0]
	a.versions = a.versions[1:]
	conclusion := runs.ConclusionSuccess
	if len(a.conclusions) > 0 {
		conclusion = a.conclusions[0]
		a.conclusions = a.conclusions[1:]
	}
	a.mu.Unlock()

	a.git.SetRemote(branch, testutil.Head{Version: version, Tag: version, Message: "ci: version bump to " + version})
	a.runs.Trigger(branch, conclusion)
}

type runHarnessEnv struct {
	git  *testutil.FakeGit
	runs *testutil.FakeRuns
	auto *automation
	opts *RunOptions
	db   string
	dir  string
}

func newRunHarnessEnv(t *testing.T, format string, versions ...string) *runHarnessEnv {
	t.Helper()
	setTestEnv(t)

	clk := testutil.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	git := testutil.NewFakeGit()
	fr := testutil.NewFakeRuns(clk)
	auto := &automation{git: git, runs: fr, versions: versions}
	git.OnPush = auto.onPush

	dir := t.TempDir()
	return &runHarnessEnv{
		git:  git,
		runs: fr,
		auto: auto,
		db:   filepath.Join(dir, "results.db"),
		dir:  filepath.Join(dir, "repo"),
		opts: &RunOptions{
			RootOptions: &RootOptions{Format: format},
			Runner:      git,
			Runs:        fr,
			Clock:       clk,
			IDs:         testutil.NewSequenceIDGenerator("exec"),
		},
	}
}

func (e *runHarnessEnv) execute(t *testing.T, fixturePath string, extra ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := newRunCommand(e.opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{
		"--fixture", fixturePath,
		"--workdir", e.dir,
		"--db", e.db,
		"--env-file", "",
		"--source-root", t.TempDir(),
	}, extra...))
	err := cmd.Execute()
	return buf.String(), err
}

func (e *runHarnessEnv) executions(t *testing.T) []store.Execution {
	t.Helper()
	st, err := store.Open(e.db)
	require.NoError(t, err)
	defer st.Close()
	execs, err := st.ListExecutions(context.Background(), 0)
	require.NoError(t, err)
	return execs
}

func TestRun_AllScenariosPass(t *testing.T) {
	env := newRunHarnessEnv(t, "text", "1.0.1", "1.1.0")

	out, err := env.execute(t, writeFixture(t, twoScenarioFixture))
	require.NoError(t, err)

	assert.Contains(t, out, "✓ #1 fix: a (run 101)")
	assert.Contains(t, out, "✓ #2 feat: b (run 102)")
	assert.Contains(t, out, "2 passed, 0 failed, 0 skipped (execution exec-1, scope run-7)")

	execs := env.executions(t)
	require.Len(t, execs, 1)
	assert.Equal(t, "exec-1", execs[0].ID)
	assert.Equal(t, testScope, execs[0].Scope)
	assert.Equal(t, store.StatusPassed, execs[0].Status)
	assert.Equal(t, 2, execs[0].Passed)
	require.NotNil(t, execs[0].FinishedAt)

	head, ok := env.git.Remote(testScope)
	require.True(t, ok)
	assert.Equal(t, "1.1.0", head.Version)
	assert.Equal(t, []string{testScope}, env.runs.Cleared())
}

func TestRun_JSONOutput(t *testing.T) {
	env := newRunHarnessEnv(t, "json", "1.0.1", "1.1.0")

	out, err := env.execute(t, writeFixture(t, twoScenarioFixture))
	require.NoError(t, err)

	var resp struct {
		Status      string `json:"status"`
		ExecutionID string `json:"execution_id"`
		Data        struct {
			Scope  string `json:"scope"`
			Passed int    `json:"passed"`
			Suites []struct {
				Name      string `json:"name"`
				Scenarios []struct {
					State string `json:"state"`
					RunID int64  `json:"run_id"`
				} `json:"scenarios"`
			} `json:"suites"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "exec-1", resp.ExecutionID)
	assert.Equal(t, testScope, resp.Data.Scope)
	assert.Equal(t, 2, resp.Data.Passed)
	require.Len(t, resp.Data.Suites, 1)
	require.Len(t, resp.Data.Suites[0].Scenarios, 2)
	assert.Equal(t, "verified", resp.Data.Suites[0].Scenarios[1].State)
	assert.Equal(t, int64(102), resp.Data.Suites[0].Scenarios[1].RunID)
}

func TestRun_ScenarioFailureExitsOne(t *testing.T) {
	env := newRunHarnessEnv(t, "text", "1.0.1", "1.1.0")
	env.auto.conclusions = []runs.Conclusion{runs.ConclusionFailure}

	out, err := env.execute(t, writeFixture(t, twoScenarioFixture))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeScenarios)

	assert.Contains(t, out, "✗ #1 fix: a [CONCLUSION_FAILURE]")
	assert.Contains(t, out, "- #2 feat: b (skipped)")
	assert.Contains(t, out, "0 passed, 1 failed, 1 skipped")

	execs := env.executions(t)
	require.Len(t, execs, 1)
	assert.Equal(t, store.StatusFailed, execs[0].Status)
	assert.Equal(t, 1, execs[0].Failed)
	assert.Equal(t, 1, execs[0].Skipped)
}

func TestRun_ProvisioningFailureExitsTwo(t *testing.T) {
	env := newRunHarnessEnv(t, "text")
	env.git.Fail("push", errors.New("authentication failed"))

	out, err := env.execute(t, writeFixture(t, twoScenarioFixture))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E004]: provisioning failed")
	assert.NotContains(t, out, "s3cret")

	execs := env.executions(t)
	require.Len(t, execs, 1)
	assert.Equal(t, store.StatusAborted, execs[0].Status)
}

func TestRun_MissingConfigurationExitsTwo(t *testing.T) {
	env := newRunHarnessEnv(t, "json")
	t.Setenv(config.EnvRepo, "")
	t.Setenv(config.EnvToken, "")

	out, err := env.execute(t, writeFixture(t, twoScenarioFixture))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, config.EnvRepo)
	assert.Contains(t, resp.Error.Message, config.EnvToken)

	assert.Empty(t, env.git.Calls())
}

func TestRun_InvalidFixtureExitsOne(t *testing.T) {
	env := newRunHarnessEnv(t, "text")

	out, err := env.execute(t, writeFixture(t, "suites: []\n"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Empty(t, env.git.Calls())
}

func TestRun_WithoutLedger(t *testing.T) {
	env := newRunHarnessEnv(t, "text", "1.0.1", "1.1.0")
	env.db = ""

	_, err := env.execute(t, writeFixture(t, twoScenarioFixture))
	require.NoError(t, err)
}

func TestRun_RequiresFixtureFlag(t *testing.T) {
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixture")
}
