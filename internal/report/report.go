// Package report renders the README committed with every scenario.
//
// The document tells a human browsing the test repository what the commit
// was meant to exercise. It also guarantees that each scenario's commit
// has content changes: the suite name and scenario ordinal differ between
// any two scenarios of one execution.
package report

import (
	"fmt"
	"strings"

	"github.com/roach88/bumpcheck/internal/expect"
)

// FileName is where the report is written inside the test repository.
const FileName = "README.md"

// Input is everything a report describes.
type Input struct {
	Suite        string
	Ordinal      int // 1-based position of the scenario in its suite
	WorkflowPath string
	Workflow     []byte
	Message      string
	Expected     expect.Resolved
}

// Render produces the markdown document.
func Render(in Input) string {
	var b strings.Builder

	b.WriteString("# Test Details\n")
	fmt.Fprintf(&b, "## %s\n", in.WorkflowPath)
	b.WriteString("```YAML\n")
	b.WriteString(strings.TrimRight(string(in.Workflow), "\n"))
	b.WriteString("\n```\n")
	b.WriteString("## Scenario\n")
	fmt.Fprintf(&b, "%s #%d\n", in.Suite, in.Ordinal)
	b.WriteString("## Message\n")
	b.WriteString(in.Message)
	b.WriteString("\n## Expectation\n")
	b.WriteString(ExpectationText(in.Expected))
	b.WriteString("\n")

	return b.String()
}

// ExpectationText lists the asserted fields as markdown bullets.
func ExpectationText(r expect.Resolved) string {
	lines := []string{fmt.Sprintf("- **Version:** %s", r.Version)}
	if r.Tag != "" && r.Tag != r.Version {
		lines = append(lines, fmt.Sprintf("- **Tag:** %s", r.Tag))
	}
	if r.Branch != "" {
		lines = append(lines, fmt.Sprintf("- **Branch:** %s", r.Branch))
	}
	if r.Message != "" {
		lines = append(lines, fmt.Sprintf("- **Message:** %s", r.Message))
	}
	return strings.Join(lines, "\n")
}
