package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/bumpcheck/internal/command"
)

// Head is the observable state of one commit: manifest version, latest
// reachable tag and commit subject.
type Head struct {
	Version string
	Tag     string
	Message string
}

// FakeGit is a command.Runner that simulates git and the package manager
// against an in-memory remote.
//
// The working copy lives in a real directory so that package.json reads
// go through the filesystem: checkout and pull rewrite it from the remote
// head. Any non-git command is treated as manifest initialisation and
// writes version 1.0.0.
//
// OnPush is called, without the lock held, after every plain push with the
// pushed branch. Tests use it to play the automation under test: move the
// remote head with SetRemote and start a run on the fake provider.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeGit struct {
	mu       sync.Mutex
	remote   map[string]Head
	refs     map[string]bool
	current  string
	local    Head
	calls    []command.Command
	failures map[string]error

	OnPush func(branch string)
}

// NewFakeGit creates a fake with an empty remote.
func NewFakeGit() *FakeGit {
	return &FakeGit{
		remote:   map[string]Head{},
		refs:     map[string]bool{},
		failures: map[string]error{},
	}
}

// SetRemote sets the remote head of branch.
func (g *FakeGit) SetRemote(branch string, h Head) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.remote[branch] = h
	g.refs["refs/heads/"+branch] = true
	if h.Tag != "" {
		g.refs["refs/tags/"+h.Tag] = true
	}
}

// Remote returns the remote head of branch.
func (g *FakeGit) Remote(branch string) (Head, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.remote[branch]
	return h, ok
}

// AddRef adds a ref that ls-remote reports.
func (g *FakeGit) AddRef(ref string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refs[ref] = true
}

// Refs returns the remote refs, sorted.
func (g *FakeGit) Refs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sortedRefs()
}

// Fail makes every later invocation of the git subcommand fail.
// Use "npm" (or any non-git program name) to fail manifest initialisation.
func (g *FakeGit) Fail(sub string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[sub] = err
}

// Current returns the checked-out branch.
func (g *FakeGit) Current() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// SetCurrent checks out branch without running a command.
func (g *FakeGit) SetCurrent(branch string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = branch
}

// Calls returns every command run so far, in order.
func (g *FakeGit) Calls() []command.Command {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]command.Command(nil), g.calls...)
}

// CallLines renders Calls with their String form.
func (g *FakeGit) CallLines() []string {
	calls := g.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.String()
	}
	return lines
}

// Run implements command.Runner.
func (g *FakeGit) Run(ctx context.Context, cmd command.Command) (command.Output, error) {
	if err := ctx.Err(); err != nil {
		return command.Output{}, err
	}

	g.mu.Lock()
	g.calls = append(g.calls, cmd)

	if cmd.Name != "git" {
		err := g.failure(cmd, cmd.Name)
		if err == nil {
			g.local.Version = "1.0.0"
			err = writeManifest(cmd.Dir, "1.0.0")
		}
		g.mu.Unlock()
		return command.Output{}, err
	}

	sub := ""
	if len(cmd.Args) > 0 {
		sub = cmd.Args[0]
	}
	if err := g.failure(cmd, sub); err != nil {
		g.mu.Unlock()
		return command.Output{}, err
	}

	out, pushed, err := g.git(cmd, sub)
	hook := g.OnPush
	g.mu.Unlock()

	if err == nil && pushed != "" && hook != nil {
		hook(pushed)
	}
	return out, err
}

// git applies one git subcommand. Callers hold the lock.
func (g *FakeGit) git(cmd command.Command, sub string) (out command.Output, pushed string, err error) {
	if len(cmd.Args) == 0 {
		return out, "", g.exitError(cmd, 1, "usage: git <command>")
	}
	args := cmd.Args[1:]
	last := ""
	if len(args) > 0 {
		last = args[len(args)-1]
	}

	switch sub {
	case "init":
		if b := flagValue(args, "--initial-branch"); b != "" {
			g.current = b
		}

	case "commit":
		g.local.Message = flagValue(args, "--message")

	case "push":
		if slices.Contains(args, "--delete") {
			for _, ref := range args {
				delete(g.refs, ref)
				if name, ok := strings.CutPrefix(ref, "refs/heads/"); ok {
					delete(g.remote, name)
				}
			}
			return out, "", nil
		}
		g.remote[g.current] = g.local
		g.refs["refs/heads/"+g.current] = true
		return out, g.current, nil

	case "ls-remote":
		var b strings.Builder
		for i, ref := range g.sortedRefs() {
			fmt.Fprintf(&b, "%040x\t%s\n", i+1, ref)
			if strings.HasPrefix(ref, "refs/tags/") {
				fmt.Fprintf(&b, "%040x\t%s^{}\n", i+1, ref)
			}
		}
		out.Stdout = b.String()

	case "fetch":
		if _, ok := g.remote[last]; !ok {
			return out, "", g.exitError(cmd, 128, "fatal: couldn't find remote ref "+last)
		}

	case "checkout":
		g.current = last
		if h, ok := g.remote[last]; ok {
			g.local = h
			err = writeManifest(cmd.Dir, h.Version)
		}

	case "pull":
		h, ok := g.remote[g.current]
		if !ok {
			return out, "", g.exitError(cmd, 1, "There is no tracking information for the current branch.")
		}
		g.local = h
		err = writeManifest(cmd.Dir, h.Version)

	case "describe":
		if g.local.Tag == "" {
			return out, "", g.exitError(cmd, 128, "fatal: No names found, cannot describe anything.")
		}
		out.Stdout = g.local.Tag + "\n"

	case "show":
		out.Stdout = g.local.Message + "\n"
	}

	return out, "", err
}

func (g *FakeGit) failure(cmd command.Command, key string) error {
	err, ok := g.failures[key]
	if !ok {
		return nil
	}
	return &command.ExitError{Command: cmd.String(), Code: 1, Stderr: err.Error(), Err: err}
}

func (g *FakeGit) exitError(cmd command.Command, code int, stderr string) error {
	return &command.ExitError{
		Command: cmd.String(),
		Code:    code,
		Stderr:  stderr,
		Err:     fmt.Errorf("exit status %d", code),
	}
}

func (g *FakeGit) sortedRefs() []string {
	refs := make([]string, 0, len(g.refs))
	for r := range g.refs {
		refs = append(refs, r)
	}
	sort.Strings(refs)
	return refs
}

func writeManifest(dir, version string) error {
	if dir == "" {
		return nil
	}
	data, err := json.MarshalIndent(map[string]string{"name": filepath.Base(dir), "version": version}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "package.json"), append(data, '\n'), 0644)
}

func flagValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(a, flag+"="); ok {
			return v
		}
	}
	return ""
}
