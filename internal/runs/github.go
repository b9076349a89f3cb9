package runs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
)

// DefaultWorkflow is the workflow file the harness writes into the test
// repository and therefore the one whose runs it watches.
const DefaultWorkflow = "push.yml"

// GitHubOptions configures a GitHub Actions client.
type GitHubOptions struct {
	Owner    string
	Repo     string
	Workflow string // workflow file name, defaults to DefaultWorkflow
	Token    string

	// BaseURL overrides the REST endpoint (GitHub Enterprise or tests).
	BaseURL string

	// HTTPClient is the transport underneath the token source.
	HTTPClient *http.Client
}

// GitHub reads workflow runs through the GitHub Actions REST API.
type GitHub struct {
	client   *github.Client
	owner    string
	repo     string
	workflow string
}

// NewGitHub builds a client authenticated with a static token.
func NewGitHub(ctx context.Context, opts GitHubOptions) (*GitHub, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, fmt.Errorf("github: owner and repo are required")
	}
	if opts.Workflow == "" {
		opts.Workflow = DefaultWorkflow
	}

	httpClient := opts.HTTPClient
	if opts.Token != "" {
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	}

	client := github.NewClient(httpClient)
	if opts.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github: invalid base url: %w", err)
		}
		client.BaseURL = u
	}

	return &GitHub{
		client:   client,
		owner:    opts.Owner,
		repo:     opts.Repo,
		workflow: opts.Workflow,
	}, nil
}

// MostRecentRun returns the newest run of the watched workflow on scope.
func (g *GitHub) MostRecentRun(ctx context.Context, scope string) (*Run, error) {
	list, _, err := g.client.Actions.ListWorkflowRunsByFileName(ctx, g.owner, g.repo, g.workflow, &github.ListWorkflowRunsOptions{
		Branch:      scope,
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return nil, &TransportError{Op: "list runs", Err: err}
	}
	if list == nil || len(list.WorkflowRuns) == 0 {
		return nil, nil
	}
	return fromGitHub(list.WorkflowRuns[0]), nil
}

// GetRun fetches run id.
func (g *GitHub) GetRun(ctx context.Context, id int64) (*Run, error) {
	wr, _, err := g.client.Actions.GetWorkflowRunByID(ctx, g.owner, g.repo, id)
	if err != nil {
		return nil, &TransportError{Op: fmt.Sprintf("get run %d", id), Err: err}
	}
	return fromGitHub(wr), nil
}

// ClearRuns deletes every run of the watched workflow on scope.
//
// Deleting shifts later pages forward, so the first page is re-read until
// it comes back empty.
func (g *GitHub) ClearRuns(ctx context.Context, scope string) error {
	opts := &github.ListWorkflowRunsOptions{
		Branch:      scope,
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		list, _, err := g.client.Actions.ListWorkflowRunsByFileName(ctx, g.owner, g.repo, g.workflow, opts)
		if err != nil {
			return &TransportError{Op: "list runs", Err: err}
		}
		if list == nil || len(list.WorkflowRuns) == 0 {
			return nil
		}
		for _, wr := range list.WorkflowRuns {
			if _, err := g.client.Actions.DeleteWorkflowRun(ctx, g.owner, g.repo, wr.GetID()); err != nil {
				return &TransportError{Op: fmt.Sprintf("delete run %d", wr.GetID()), Err: err}
			}
		}
	}
}

func fromGitHub(wr *github.WorkflowRun) *Run {
	return &Run{
		ID:         wr.GetID(),
		CreatedAt:  wr.GetCreatedAt().Time,
		Status:     Status(wr.GetStatus()),
		Conclusion: Conclusion(wr.GetConclusion()),
		Branch:     wr.GetHeadBranch(),
		URL:        wr.GetHTMLURL(),
	}
}

// ParseRepoURL extracts owner and repository name from a GitHub clone URL
// such as https://github.com/acme/widget.git.
func ParseRepoURL(raw string) (owner, repo string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse repo url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("parse repo url: expected /<owner>/<repo> path, got %q", u.Path)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}
