package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/bumpcheck/internal/command"
	"github.com/roach88/bumpcheck/internal/expect"
	"github.com/roach88/bumpcheck/internal/poll"
	"github.com/roach88/bumpcheck/internal/runs"
)

// ErrorCode categorizes harness failures.
type ErrorCode string

const (
	// CodeProvisioning indicates the test repository could not be set up.
	// It aborts the execution before any suite runs.
	CodeProvisioning ErrorCode = "PROVISIONING"

	// CodeCommand indicates a git or package manager command exited nonzero.
	CodeCommand ErrorCode = "COMMAND"

	// CodeTransport indicates a run-status query failed.
	CodeTransport ErrorCode = "TRANSPORT"

	// CodeMismatch indicates the observed repository state differs from the
	// expectation.
	CodeMismatch ErrorCode = "ASSERTION_MISMATCH"

	// CodeConclusion indicates the run completed without succeeding.
	CodeConclusion ErrorCode = "CONCLUSION_FAILURE"

	// CodeTimeout indicates the deadline passed or the poll attempt limit
	// was reached while waiting for a run.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeInternal covers local failures such as writing a file.
	CodeInternal ErrorCode = "INTERNAL"
)

// Error is a classified harness failure.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description of the failed step.
	Message string

	// Suite and Scenario locate the failure. Scenario is the 1-based
	// ordinal, zero when the failure is not tied to a scenario.
	Suite    string
	Scenario int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Suite != "" && e.Scenario > 0:
		msg += fmt.Sprintf(" (suite=%s, scenario=%d)", e.Suite, e.Scenario)
	case e.Suite != "":
		msg += fmt.Sprintf(" (suite=%s)", e.Suite)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewProvisioningError wraps a setup failure.
func NewProvisioningError(step string, err error) *Error {
	return &Error{Code: CodeProvisioning, Message: step, Err: err}
}

// CodeOf returns the code of the outermost *Error in err's chain, or the
// code err would be classified as.
func CodeOf(err error) ErrorCode {
	var he *Error
	if errors.As(err, &he) {
		return he.Code
	}
	return classify(err)
}

// IsProvisioning reports whether err is a provisioning failure.
func IsProvisioning(err error) bool { return hasCode(err, CodeProvisioning) }

// IsCommand reports whether err is a command failure.
func IsCommand(err error) bool { return hasCode(err, CodeCommand) }

// IsTransport reports whether err is a run-status query failure.
func IsTransport(err error) bool { return hasCode(err, CodeTransport) }

// IsMismatch reports whether err is an assertion mismatch.
func IsMismatch(err error) bool { return hasCode(err, CodeMismatch) }

// IsConclusion reports whether err is an unsuccessful run conclusion.
func IsConclusion(err error) bool { return hasCode(err, CodeConclusion) }

// IsTimeout reports whether err is a deadline or attempt-limit failure.
func IsTimeout(err error) bool { return hasCode(err, CodeTimeout) }

func hasCode(err error, code ErrorCode) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Code == code
	}
	return false
}

// classify maps collaborator errors onto codes.
func classify(err error) ErrorCode {
	var (
		exitErr     *command.ExitError
		transport   *runs.TransportError
		mismatchErr *expect.MismatchError
	)
	switch {
	case errors.As(err, &transport):
		return CodeTransport
	case errors.As(err, &exitErr):
		return CodeCommand
	case errors.As(err, &mismatchErr):
		return CodeMismatch
	case errors.Is(err, poll.ErrExhausted),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return CodeTimeout
	default:
		return CodeInternal
	}
}

// wrap classifies err and attaches the scenario location.
func wrap(step, suite string, ordinal int, err error) *Error {
	var he *Error
	if errors.As(err, &he) {
		return he
	}
	return &Error{Code: classify(err), Message: step, Suite: suite, Scenario: ordinal, Err: err}
}
