package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bumpcheck/internal/config"
	"github.com/roach88/bumpcheck/internal/expect"
	"github.com/roach88/bumpcheck/internal/fixture"
	"github.com/roach88/bumpcheck/internal/harness"
	"github.com/roach88/bumpcheck/internal/report"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Scope    string
	Workflow string
}

// PlanEntry is one scenario as the run command would commit it.
type PlanEntry struct {
	Suite    string          `json:"suite"`
	Ordinal  int             `json:"ordinal"`
	Message  string          `json:"message"`
	Expected expect.Resolved `json:"expected"`
	Document string          `json:"document"`
}

// Plan is the JSON payload of the plan command.
type Plan struct {
	Scope        string      `json:"scope"`
	WorkflowPath string      `json:"workflow_path"`
	Scenarios    []PlanEntry `json:"scenarios"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <fixture>",
		Short: "Print the report document of every scenario",
		Long: `Render the README document each scenario commit would carry,
with expectations resolved against the scope.

Nothing is provisioned and no network access happens. Without --scope
the scope is resolved from the environment the same way run does it.

Example:
  bumpcheck plan --scope run-42 e2e/config.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Scope, "scope", "", "scope to resolve branch expectations against")
	cmd.Flags().StringVar(&opts.Workflow, "workflow", "", "workflow file name (default from "+config.EnvWorkflow+" or "+config.DefaultWorkflow+")")

	return cmd
}

func runPlan(opts *PlanOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	fx, err := readFixture(formatter, path)
	if err != nil {
		return err
	}

	scope := opts.Scope
	if scope == "" {
		scope = config.ResolveScope(config.String(config.EnvScope, ""), config.String(config.EnvRunID, ""), config.NewLocalScope)
	}
	workflow := opts.Workflow
	if workflow == "" {
		workflow = config.String(config.EnvWorkflow, config.DefaultWorkflow)
	}

	plan, err := BuildPlan(fx, scope, harness.WorkflowPath(workflow))
	if err != nil {
		return formatter.fail(ExitFailure, ErrCodeFixture, "failed to render plan", err, nil)
	}

	if formatter.JSON() {
		return formatter.Success(plan)
	}

	for i, e := range plan.Scenarios {
		if i > 0 {
			fmt.Fprintln(formatter.Writer)
		}
		fmt.Fprintf(formatter.Writer, "=== %s #%d (%s) ===\n", e.Suite, e.Ordinal, scope)
		fmt.Fprint(formatter.Writer, e.Document)
	}
	return nil
}

// BuildPlan renders every scenario of fx in execution order.
func BuildPlan(fx *fixture.Fixture, scope, workflowPath string) (*Plan, error) {
	plan := &Plan{Scope: scope, WorkflowPath: workflowPath}
	for i := range fx.Suites {
		suite := &fx.Suites[i]
		workflow, err := suite.WorkflowYAML()
		if err != nil {
			return nil, fmt.Errorf("suite %s: %w", suite.Name, err)
		}
		for j, sc := range suite.Tests {
			resolved := expect.Resolve(sc.Expected, scope)
			plan.Scenarios = append(plan.Scenarios, PlanEntry{
				Suite:    suite.Name,
				Ordinal:  j + 1,
				Message:  sc.Message,
				Expected: resolved,
				Document: report.Render(report.Input{
					Suite:        suite.Name,
					Ordinal:      j + 1,
					WorkflowPath: workflowPath,
					Workflow:     workflow,
					Message:      sc.Message,
					Expected:     resolved,
				}),
			})
		}
	}
	return plan, nil
}
