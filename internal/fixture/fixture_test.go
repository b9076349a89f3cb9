package fixture

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoad_SampleFixture(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"index.js", "package.json", "lib/**/*.js"}, f.ActionFiles)
	require.Len(t, f.Suites, 2)
	assert.Equal(t, 4, f.ScenarioCount())

	def := f.Suites[0]
	assert.Equal(t, "default", def.Name)
	require.Len(t, def.Tests, 3)
	assert.Equal(t, "no keywords", def.Tests[0].Message)
	assert.Equal(t, Expectation{Version: "1.0.1"}, def.Tests[0].Expected)

	custom := f.Suites[1].Tests[0].Expected
	assert.Equal(t, "2.1.0", custom.Version)
	assert.Equal(t, "v2.1.0", custom.Tag)
	assert.Equal(t, "release", custom.Branch)
	assert.Equal(t, "ci: version bump to 2.1.0", custom.Message)
}

func TestWorkflowYAML_PreservesKeyOrder(t *testing.T) {
	f, err := Parse([]byte(`
actionFiles: []
suites:
  - name: s
    yaml:
      name: Bump
      on: push
      jobs:
        bump:
          runs-on: ubuntu-latest
    tests:
      - message: m
        expected: {version: 1.0.1}
`))
	require.NoError(t, err)

	out, err := f.Suites[0].WorkflowYAML()
	require.NoError(t, err)
	assert.Equal(t, "name: Bump\non: push\njobs:\n  bump:\n    runs-on: ubuntu-latest\n", string(out))

	var roundTrip map[string]any
	require.NoError(t, yaml.Unmarshal(out, &roundTrip))
	assert.Equal(t, "push", roundTrip["on"])
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse([]byte(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixture is empty")
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte(`
actionFiles: []
suite: []
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "no suites",
			yaml: "actionFiles: []\nsuites: []\n",
		},
		{
			name: "suite without tests",
			yaml: "actionFiles: []\nsuites:\n  - name: s\n    yaml: {on: push}\n    tests: []\n",
		},
		{
			name: "empty message",
			yaml: "actionFiles: []\nsuites:\n  - name: s\n    yaml: {on: push}\n    tests:\n      - message: \"\"\n        expected: {version: 1.0.1}\n",
		},
		{
			name: "non-string version",
			yaml: "actionFiles: []\nsuites:\n  - name: s\n    yaml: {on: push}\n    tests:\n      - message: m\n        expected: {version: 2}\n",
		},
		{
			name: "branch with spaces",
			yaml: "actionFiles: []\nsuites:\n  - name: s\n    yaml: {on: push}\n    tests:\n      - message: m\n        expected: {branch: \"my branch\"}\n",
		},
		{
			name: "missing expected",
			yaml: "actionFiles: []\nsuites:\n  - name: s\n    yaml: {on: push}\n    tests:\n      - message: m\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var schemaErr *SchemaError
			assert.True(t, errors.As(err, &schemaErr), "want SchemaError, got %v", err)
		})
	}
}

func TestParse_WorkflowMustBeMapping(t *testing.T) {
	// A scalar fails the CUE struct constraint before Go validation runs.
	_, err := Parse([]byte("actionFiles: []\nsuites:\n  - name: s\n    yaml: push\n    tests:\n      - message: m\n        expected: {}\n"))
	require.Error(t, err)
}

func TestParse_DuplicateSuiteNames(t *testing.T) {
	_, err := Parse([]byte(`
actionFiles: []
suites:
  - name: s
    yaml: {on: push}
    tests: [{message: a, expected: {}}]
  - name: s
    yaml: {on: push}
    tests: [{message: b, expected: {}}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate suite name")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read fixture file")
}

func TestLoad_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
actionFiles: ["*.js"]
suites:
  - name: only
    yaml: {on: push}
    tests:
      - message: "initial commit (version 1.0.0)"
        expected: {version: 1.0.0}
`), 0644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", f.Suites[0].Tests[0].Expected.Version)
}
