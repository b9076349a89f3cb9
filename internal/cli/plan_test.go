package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bumpcheck/internal/config"
	"github.com/roach88/bumpcheck/internal/fixture"
	"github.com/roach88/bumpcheck/internal/report"
)

const branchFixture = `suites:
  - name: release
    yaml:
      on: push
    tests:
      - message: "feat: on release"
        expected:
          version: 2.1.0
          tag: v2.1.0
          branch: release
`

func executePlan(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewPlanCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestBuildPlan_ResolvesAgainstScope(t *testing.T) {
	fx, err := fixture.Parse([]byte(branchFixture))
	require.NoError(t, err)

	plan, err := BuildPlan(fx, "run-9", ".github/workflows/push.yml")
	require.NoError(t, err)
	require.Len(t, plan.Scenarios, 1)

	e := plan.Scenarios[0]
	assert.Equal(t, "release", e.Suite)
	assert.Equal(t, 1, e.Ordinal)
	assert.Equal(t, "run-9-release", e.Expected.Branch)
	assert.Equal(t, "v2.1.0", e.Expected.Tag)

	workflow, err := fx.Suites[0].WorkflowYAML()
	require.NoError(t, err)
	assert.Equal(t, report.Render(report.Input{
		Suite:        "release",
		Ordinal:      1,
		WorkflowPath: ".github/workflows/push.yml",
		Workflow:     workflow,
		Message:      "feat: on release",
		Expected:     e.Expected,
	}), e.Document)
	assert.Contains(t, e.Document, "- **Branch:** run-9-release")
}

func TestPlan_TextOutput(t *testing.T) {
	out, err := executePlan(t, "text", "--scope", "run-9", writeFixture(t, twoScenarioFixture))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "=== default #1 (run-9) ===\n# Test Details\n"))
	assert.Contains(t, out, "\n=== default #2 (run-9) ===\n")
	assert.Contains(t, out, "## .github/workflows/push.yml\n")
	assert.Contains(t, out, "- **Version:** 1.1.0")
}

func TestPlan_JSONOutput(t *testing.T) {
	out, err := executePlan(t, "json", "--scope", "run-9", "--workflow", "bump.yml", writeFixture(t, twoScenarioFixture))
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   Plan   `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-9", resp.Data.Scope)
	assert.Equal(t, ".github/workflows/bump.yml", resp.Data.WorkflowPath)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "fix: a", resp.Data.Scenarios[0].Message)
	assert.Contains(t, resp.Data.Scenarios[1].Document, "## .github/workflows/bump.yml")
}

func TestPlan_ScopeFromEnvironment(t *testing.T) {
	t.Setenv(config.EnvScope, "")
	t.Setenv(config.EnvRunID, "1234")
	t.Setenv(config.EnvWorkflow, "")

	out, err := executePlan(t, "text", writeFixture(t, branchFixture))
	require.NoError(t, err)
	assert.Contains(t, out, "=== release #1 (run-1234) ===")
	assert.Contains(t, out, "- **Branch:** run-1234-release")
}

func TestPlan_InvalidFixture(t *testing.T) {
	_, err := executePlan(t, "text", "--scope", "s", writeFixture(t, "suites: {}\n"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
