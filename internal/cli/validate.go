package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bumpcheck/internal/fixture"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Suites    int      `json:"suites,omitempty"`
	Scenarios int      `json:"scenarios,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <fixture>",
		Short: "Validate a fixture file without touching any remote",
		Long: `Validate a fixture file against the fixture schema.

Checks YAML syntax, unknown keys, required fields and suite name
uniqueness. Nothing is provisioned and no network access happens.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	fx, err := readFixture(formatter, path)
	if err != nil {
		return err
	}

	result := ValidationResult{Valid: true, Suites: len(fx.Suites), Scenarios: fx.ScenarioCount()}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Fixture valid: %d suite(s), %d scenario(s)\n", result.Suites, result.Scenarios)
	return nil
}

// readFixture loads path and reports failures on formatter. Unreadable
// files are command errors; invalid content is a validation failure.
func readFixture(formatter *OutputFormatter, path string) (*fixture.Fixture, error) {
	formatter.VerboseLog("Reading fixture %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, formatter.fail(ExitCommandError, ErrCodeFixture, "failed to read fixture file", err, nil)
	}

	fx, err := fixture.Parse(data)
	if err != nil {
		return nil, outputValidationErrors(formatter, fixtureErrors(err))
	}
	return fx, nil
}

// fixtureErrors splits a schema error into one message per violation.
func fixtureErrors(err error) []string {
	var schemaErr *fixture.SchemaError
	if errors.As(err, &schemaErr) && schemaErr.Details != "" {
		var out []string
		for _, line := range strings.Split(schemaErr.Details, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []string{err.Error()}
}

func outputValidationErrors(formatter *OutputFormatter, errs []string) error {
	if formatter.JSON() {
		resp := errorResponse(ErrCodeFixture, errs[0], nil)
		resp.Data = ValidationResult{Valid: false, Errors: errs}
		if err := formatter.emit(resp); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		fmt.Fprintf(formatter.Writer, "  [%s] %s\n", ErrCodeFixture, e)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
