package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Process exit codes.
const (
	ExitSuccess      = 0 // every scenario verified
	ExitFailure      = 1 // scenarios failed or were skipped, or the fixture is invalid
	ExitCommandError = 2 // configuration, provisioning or ledger trouble
)

// Error codes carried in CLI error responses and ExitError messages.
const (
	ErrCodeGeneric      = "E001"
	ErrCodeConfig       = "E002"
	ErrCodeFixture      = "E003"
	ErrCodeProvisioning = "E004"
	ErrCodeLedger       = "E005"
	ErrCodeScenarios    = "E006"
)

// Envelope status values.
const (
	statusOK    = "ok"
	statusError = "error"
)

// ExitError is returned by commands to choose the process exit code.
// Reason, when set, is one of the ErrCode values.
type ExitError struct {
	Code    int
	Reason  string
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	var b strings.Builder
	if e.Reason != "" {
		fmt.Fprintf(&b, "[%s] ", e.Reason)
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps an error returned by a command to the process exit
// code. Errors that carry no ExitError exit with ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	default:
		return ExitFailure
	}
}

// CLIResponse is the envelope every JSON-mode command writes once.
type CLIResponse struct {
	Status      string    `json:"status"`
	Data        any       `json:"data,omitempty"`
	Error       *CLIError `json:"error,omitempty"`
	ExecutionID string    `json:"execution_id,omitempty"`
}

// CLIError describes a failed command in a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func okResponse(data any) CLIResponse {
	return CLIResponse{Status: statusOK, Data: data}
}

func errorResponse(code, message string, details any) CLIResponse {
	return CLIResponse{
		Status: statusError,
		Error:  &CLIError{Code: code, Message: message, Details: details},
	}
}

// OutputFormatter writes command results as text or as a JSON envelope.
// Results go to Writer; verbose diagnostics go to ErrWriter, or to Writer
// when ErrWriter is nil.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

func newFormatter(opts *RootOptions, w, errW io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: w, ErrWriter: errW, Verbose: opts.Verbose}
}

// JSON reports whether the formatter emits JSON.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// emit writes resp as one JSON document.
func (f *OutputFormatter) emit(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

// Success writes data. Text mode prints it with fmt's default format.
func (f *OutputFormatter) Success(data any) error {
	if f.JSON() {
		return f.emit(okResponse(data))
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes an error response. Text mode prints details only when
// verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return f.emit(errorResponse(code, message, details))
	}
	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		_, err := fmt.Fprintf(f.Writer, "Details: %v\n", details)
		return err
	}
	return nil
}

// VerboseLog prints a diagnostic line when verbose.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.diag(), format+"\n", args...)
	}
}

func (f *OutputFormatter) diag() io.Writer {
	if f.ErrWriter == nil {
		return f.Writer
	}
	return f.ErrWriter
}

// fail writes an error response and returns the ExitError the command
// should return.
func (f *OutputFormatter) fail(exitCode int, code, message string, err error, details any) error {
	shown := message
	if err != nil {
		shown += ": " + err.Error()
	}
	if outErr := f.Error(code, shown, details); outErr != nil {
		return outErr
	}
	return &ExitError{Code: exitCode, Reason: code, Message: message, Err: err}
}
