package command

import (
	"context"
	"strings"
)

// Git runs git subcommands inside a fixed working directory.
type Git struct {
	Runner Runner
	Dir    string
}

// NewGit binds runner to dir.
func NewGit(runner Runner, dir string) *Git {
	return &Git{Runner: runner, Dir: dir}
}

// Run executes `git args...`, echoing its output.
func (g *Git) Run(ctx context.Context, args ...string) (Output, error) {
	return g.Runner.Run(ctx, Command{Dir: g.Dir, Name: "git", Args: args})
}

// Output executes `git args...` quietly and returns stdout without the
// trailing newline.
func (g *Git) Output(ctx context.Context, args ...string) (string, error) {
	out, err := g.Runner.Run(ctx, Command{Dir: g.Dir, Name: "git", Args: args, Quiet: true})
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out.Stdout, "\r\n"), nil
}
