// Package expect turns a fixture Expectation into concrete checks against
// the repository state observed after a run.
//
// Defaults are filled in exactly once, before comparison:
//   - tag defaults to version
//   - branch is prefixed with the scope ("{scope}-{branch}")
//   - message defaults to the observed message, so an unset message can
//     never mismatch
package expect

import (
	"fmt"
	"strings"

	"github.com/roach88/bumpcheck/internal/fixture"
)

// Field names used in mismatches.
const (
	FieldVersion = "version"
	FieldTag     = "tag"
	FieldMessage = "message"
)

// Observed is the repository state read back after a run.
type Observed struct {
	Version string `json:"version"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// Resolved is an expectation with scope-dependent defaults applied.
// Empty Version or Tag means "not asserted".
type Resolved struct {
	Version string `json:"version,omitempty"`
	Tag     string `json:"tag,omitempty"`

	// Branch is the fully scoped branch to check out, or empty to stay on
	// the base branch.
	Branch string `json:"branch,omitempty"`

	// Message is empty until Fill runs when the fixture left it unset.
	Message string `json:"message,omitempty"`

	messageSet bool
}

// Resolve applies the tag and branch defaults.
func Resolve(e fixture.Expectation, scope string) Resolved {
	r := Resolved{
		Version:    e.Version,
		Tag:        e.Tag,
		Message:    e.Message,
		messageSet: e.Message != "",
	}
	if r.Tag == "" {
		r.Tag = r.Version
	}
	if e.Branch != "" {
		r.Branch = ScopedBranch(scope, e.Branch)
	}
	return r
}

// ScopedBranch namespaces branch under scope.
func ScopedBranch(scope, branch string) string {
	if scope == "" {
		return branch
	}
	return scope + "-" + branch
}

// Fill applies the message default from the observed state.
func (r Resolved) Fill(o Observed) Resolved {
	if !r.messageSet {
		r.Message = o.Message
		r.messageSet = true
	}
	return r
}

// Mismatch is one field whose observed value differs from the expectation.
type Mismatch struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

func (m Mismatch) Error() string {
	return fmt.Sprintf("%s mismatch: expected %q, got %q", m.Field, m.Expected, m.Actual)
}

// Verdict is the outcome of evaluating one scenario.
type Verdict struct {
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// Pass reports whether every asserted field matched.
func (v Verdict) Pass() bool {
	return len(v.Mismatches) == 0
}

// Err returns nil on pass, otherwise an error listing every mismatch.
func (v Verdict) Err() error {
	if v.Pass() {
		return nil
	}
	return &MismatchError{Mismatches: v.Mismatches}
}

// MismatchError carries field-level detail for a failed scenario.
type MismatchError struct {
	Mismatches []Mismatch
}

func (e *MismatchError) Error() string {
	parts := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		parts[i] = m.Error()
	}
	return strings.Join(parts, "; ")
}

// Evaluate compares o against r after filling r's remaining defaults.
// It is pure: the same inputs always give the same verdict.
func Evaluate(o Observed, r Resolved) Verdict {
	r = r.Fill(o)

	var v Verdict
	check := func(field, want, got string) {
		if want != got {
			v.Mismatches = append(v.Mismatches, Mismatch{Field: field, Expected: want, Actual: got})
		}
	}

	if r.Version != "" {
		check(FieldVersion, r.Version, o.Version)
	}
	if r.Tag != "" {
		check(FieldTag, r.Tag, o.Tag)
	}
	check(FieldMessage, r.Message, o.Message)

	return v
}
