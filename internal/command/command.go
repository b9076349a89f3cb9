// Package command runs external programs (git, the package manager)
// synchronously inside an explicit working directory.
//
// The working directory is part of every Command; nothing here changes the
// process-wide current directory.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os/exec"
	"strings"
)

// Command describes one program invocation.
type Command struct {
	// Dir is the working directory. Empty means the process directory.
	Dir string

	// Name is the program to run (e.g. "git").
	Name string

	// Args are passed to the program verbatim.
	Args []string

	// Quiet suppresses echoing output. Output is still captured.
	Quiet bool
}

// String renders the command line with URL credentials redacted.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		parts = append(parts, redact(a))
	}
	return strings.Join(parts, " ")
}

// Output is the captured output of a finished command.
type Output struct {
	Stdout string
	Stderr string
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// ExitError is returned when a command exits with a nonzero status or
// cannot be started at all (Code is -1 in that case).
type ExitError struct {
	Command string
	Code    int
	Stderr  string
	Err     error
}

func (e *ExitError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr != "" {
		return fmt.Sprintf("command %q exited with code %d: %s", e.Command, e.Code, stderr)
	}
	return fmt.Sprintf("command %q exited with code %d: %v", e.Command, e.Code, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Exec runs commands with os/exec.
type Exec struct {
	// Echo receives stdout and stderr of non-quiet commands as they run.
	// Nil disables echoing.
	Echo io.Writer

	Logger *slog.Logger
}

// NewExec creates an Exec runner.
func NewExec(echo io.Writer, logger *slog.Logger) *Exec {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Exec{Echo: echo, Logger: logger}
}

// Run executes cmd and waits for it to finish.
func (e *Exec) Run(ctx context.Context, cmd Command) (Output, error) {
	var stdout, stderr bytes.Buffer

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdout = &stdout
	c.Stderr = &stderr
	if !cmd.Quiet && e.Echo != nil {
		c.Stdout = io.MultiWriter(&stdout, e.Echo)
		c.Stderr = io.MultiWriter(&stderr, e.Echo)
	}

	e.Logger.Debug("running command", "cmd", cmd.String(), "dir", cmd.Dir)

	err := c.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		e.Logger.Debug("command failed", "cmd", cmd.String(), "code", code)
		return out, &ExitError{
			Command: cmd.String(),
			Code:    code,
			Stderr:  out.Stderr,
			Err:     err,
		}
	}

	return out, nil
}

// redact hides the password component of URL arguments.
func redact(arg string) string {
	if !strings.Contains(arg, "://") {
		return arg
	}
	u, err := url.Parse(arg)
	if err != nil || u.User == nil {
		return arg
	}
	return u.Redacted()
}
