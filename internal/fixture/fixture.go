// Package fixture loads end-to-end suite definitions.
//
// # Format
//
//	actionFiles:
//	  - index.js
//	  - "lib/**/*.js"
//	suites:
//	  - name: default
//	    yaml:            # workflow written to .github/workflows/push.yml
//	      on: push
//	      jobs: { ... }
//	    tests:
//	      - message: "feat: something"
//	        expected:
//	          version: 1.1.0
//	          tag: v1.1.0        # optional, defaults to version
//	          branch: release    # optional, prefixed with the scope
//	          message: "..."     # optional, defaults to the observed message
//
// Files are decoded strictly (unknown keys are rejected) and then checked
// against an embedded CUE schema.
package fixture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture is a parsed suite definition file. Immutable after Load.
type Fixture struct {
	// ActionFiles are glob patterns, relative to the source root, of the
	// files staged into the test repository's action/ folder.
	ActionFiles []string `yaml:"actionFiles"`

	Suites []Suite `yaml:"suites"`
}

// Suite groups scenarios that share one workflow definition.
type Suite struct {
	Name string `yaml:"name"`

	// Workflow is kept as a node so key order survives re-serialisation.
	Workflow yaml.Node `yaml:"yaml"`

	// Tests run in order, each on top of the previous repository state.
	Tests []Scenario `yaml:"tests"`
}

// Scenario is one commit and what the automation should do with it.
type Scenario struct {
	Message  string      `yaml:"message"`
	Expected Expectation `yaml:"expected"`
}

// Expectation lists the repository state expected after the run. Empty
// fields are unset.
type Expectation struct {
	Version string `yaml:"version,omitempty"`
	Tag     string `yaml:"tag,omitempty"`
	Branch  string `yaml:"branch,omitempty"`
	Message string `yaml:"message,omitempty"`
}

// WorkflowYAML serialises the suite's workflow definition.
func (s *Suite) WorkflowYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&s.Workflow); err != nil {
		return nil, fmt.Errorf("encode workflow for suite %q: %w", s.Name, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode workflow for suite %q: %w", s.Name, err)
	}
	return buf.Bytes(), nil
}

// ScenarioCount returns the total number of scenarios across suites.
func (f *Fixture) ScenarioCount() int {
	n := 0
	for _, s := range f.Suites {
		n += len(s.Tests)
	}
	return n
}

// Load reads and validates a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates fixture YAML.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: fixture is empty")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	if err := validate(&f); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}

	return &f, nil
}

// validate covers what the schema cannot: node kinds and cross-suite rules.
func validate(f *Fixture) error {
	seen := make(map[string]bool, len(f.Suites))
	for i := range f.Suites {
		s := &f.Suites[i]
		if seen[s.Name] {
			return fmt.Errorf("suites[%d]: duplicate suite name %q", i, s.Name)
		}
		seen[s.Name] = true

		if s.Workflow.Kind != yaml.MappingNode {
			return fmt.Errorf("suites[%d].yaml: workflow must be a mapping", i)
		}
	}
	return nil
}
