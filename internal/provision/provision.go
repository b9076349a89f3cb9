// Package provision builds the disposable remote repository that every
// execution starts from.
//
// Provisioning is destructive: the scratch working directory is wiped, the
// scope branch is force-pushed and every other branch and tag on the remote
// is deleted. Point it only at a repository that exists for this purpose.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/bumpcheck/internal/command"
	"github.com/roach88/bumpcheck/internal/harness"
	"github.com/roach88/bumpcheck/internal/runs"
)

// Identity and content of the initial commit.
const (
	InitialCommitMessage = "initial commit (version 1.0.0)"
	CommitterName        = "Automated Version Bump Test"
	CommitterEmail       = "gh-action-bump-version-test@users.noreply.github.com"
)

// ActionDir is where the tool under test is staged inside the repository.
const ActionDir = "action"

// DefaultInitCommand creates the package manifest.
var DefaultInitCommand = []string{"npm", "init", "-y"}

// Options describe one provisioning.
type Options struct {
	// Scope is the base branch name.
	Scope string

	// RemoteURL is the origin URL, credentials included.
	RemoteURL string

	// WorkDir is wiped and recreated.
	WorkDir string

	// SourceRoot anchors ActionFiles patterns. Empty means ".".
	SourceRoot string

	// ActionFiles are doublestar glob patterns relative to SourceRoot.
	ActionFiles []string

	// InitCommand overrides DefaultInitCommand.
	InitCommand []string
}

// Provisioner sets up the test repository.
type Provisioner struct {
	runner command.Runner
	runs   runs.Client
	logger *slog.Logger
}

// New creates a Provisioner.
func New(runner command.Runner, client runs.Client, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Provisioner{runner: runner, runs: client, logger: logger}
}

// Provision builds a fresh repository in opts.WorkDir and makes the remote
// contain only the scope branch with the initial commit.
//
// Every failure is a *harness.Error with code PROVISIONING. Nothing is
// retried.
func (p *Provisioner) Provision(ctx context.Context, opts Options) error {
	if opts.Scope == "" || opts.RemoteURL == "" || opts.WorkDir == "" {
		return harness.NewProvisioningError("validate options", errors.New("scope, remote URL and working directory are required"))
	}
	log := p.logger.With("scope", opts.Scope, "dir", opts.WorkDir)
	log.Info("provisioning test repository")

	if err := os.RemoveAll(opts.WorkDir); err != nil {
		return harness.NewProvisioningError("remove working directory", err)
	}
	if err := os.MkdirAll(opts.WorkDir, 0755); err != nil {
		return harness.NewProvisioningError("create working directory", err)
	}

	initCmd := opts.InitCommand
	if len(initCmd) == 0 {
		initCmd = DefaultInitCommand
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.runs.ClearRuns(gctx, opts.Scope); err != nil {
			return harness.NewProvisioningError("clear run history", err)
		}
		return nil
	})
	g.Go(func() error {
		_, err := p.runner.Run(gctx, command.Command{Dir: opts.WorkDir, Name: initCmd[0], Args: initCmd[1:]})
		if err != nil {
			return harness.NewProvisioningError("initialize manifest", err)
		}
		return nil
	})
	g.Go(func() error {
		staged, err := Stage(opts.SourceRoot, opts.ActionFiles, filepath.Join(opts.WorkDir, ActionDir))
		if err != nil {
			return harness.NewProvisioningError("stage action files", err)
		}
		log.Debug("staged action files", "count", len(staged))
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	git := command.NewGit(p.runner, opts.WorkDir)
	steps := []struct {
		name string
		args []string
	}{
		{"init repository", []string{"init", "--initial-branch", opts.Scope}},
		{"add remote", []string{"remote", "add", "origin", opts.RemoteURL}},
		{"set committer name", []string{"config", "user.name", CommitterName}},
		{"set committer email", []string{"config", "user.email", CommitterEmail}},
		{"stage files", []string{"add", "."}},
		{"commit", []string{"commit", "--message", InitialCommitMessage}},
		{"push base branch", []string{"push", "--force", "--set-upstream", "origin", opts.Scope}},
	}
	for _, s := range steps {
		if _, err := git.Run(ctx, s.args...); err != nil {
			return harness.NewProvisioningError(s.name, err)
		}
	}

	deleted, err := DeleteStaleRefs(ctx, git, opts.Scope)
	if err != nil {
		return harness.NewProvisioningError("delete stale refs", err)
	}

	log.Info("test repository ready", "deleted_refs", len(deleted))
	return nil
}

// Stage copies every regular file matched by patterns under root into dest,
// preserving paths relative to root. Overlapping matches are copied once.
// It returns the staged relative paths, sorted.
func Stage(root string, patterns []string, dest string) ([]string, error) {
	if root == "" {
		root = "."
	}
	fsys := os.DirFS(root)

	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, filepath.ToSlash(pattern))
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true

			info, err := fs.Stat(fsys, m)
			if err != nil {
				return nil, err
			}
			if !info.Mode().IsRegular() {
				continue
			}
			files = append(files, m)
		}
	}
	sort.Strings(files)

	for _, rel := range files {
		if err := copyFile(filepath.Join(root, filepath.FromSlash(rel)), filepath.Join(dest, filepath.FromSlash(rel))); err != nil {
			return nil, err
		}
	}
	return files, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// DeleteStaleRefs removes every remote branch and tag except the scope
// branch. Having nothing to delete is not an error.
func DeleteStaleRefs(ctx context.Context, git *command.Git, scope string) ([]string, error) {
	listing, err := git.Output(ctx, "ls-remote", "--tags", "--heads", "origin")
	if err != nil {
		return nil, err
	}

	refs := StaleRefs(listing, scope)
	if len(refs) == 0 {
		return nil, nil
	}

	args := append([]string{"push", "origin", "--delete"}, refs...)
	if _, err := git.Run(ctx, args...); err != nil {
		return nil, err
	}
	return refs, nil
}

// StaleRefs parses ls-remote output and returns every ref other than the
// scope branch. Peeled tag entries ("^{}") are ignored.
func StaleRefs(listing, scope string) []string {
	keep := "refs/heads/" + scope

	var refs []string
	for _, line := range strings.Split(listing, "\n") {
		_, ref, ok := strings.Cut(strings.TrimSpace(line), "\t")
		if !ok || ref == "" || ref == keep || strings.HasSuffix(ref, "^{}") {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}
