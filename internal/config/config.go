// Package config holds the process configuration of a harness execution.
//
// Configuration is read once at startup from the environment (optionally
// seeded from a .env file) and then passed explicitly to the provisioner
// and the suite executor. Nothing in here is a package-level variable.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvRepo         = "TEST_REPO"
	EnvUser         = "TEST_USER"
	EnvToken        = "TEST_TOKEN"
	EnvScope        = "TEST_SCOPE"
	EnvRunID        = "GITHUB_RUN_ID"
	EnvWorkflow     = "TEST_WORKFLOW"
	EnvAPIURL       = "GITHUB_API_URL"
	EnvPollInterval = "POLL_INTERVAL"
	EnvMaxAttempts  = "POLL_MAX_ATTEMPTS"
	EnvRepoDir      = "TEST_REPO_DIR"
)

// Defaults.
const (
	DefaultWorkflow     = "push.yml"
	DefaultPollInterval = time.Second
	DefaultRepoDir      = "test-repo"
)

// Config is the immutable configuration of one execution.
type Config struct {
	// RepoURL is the https clone URL of the disposable test repository.
	RepoURL  string
	Username string
	Token    string

	// Scope namespaces the base branch, scenario branches and run history.
	Scope string

	// Workflow is the workflow file name whose runs are observed.
	Workflow string

	// APIURL overrides the CI provider's REST endpoint.
	APIURL string

	PollInterval time.Duration

	// MaxAttempts bounds each polling phase. Zero means unbounded.
	MaxAttempts int

	// WorkDir is the scratch directory the test repository is built in.
	WorkDir string
}

// LoadEnvFile seeds the environment from a dotenv file. Variables that are
// already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// FromEnv builds a Config from the environment and validates it.
func FromEnv() (*Config, error) {
	interval, err := Duration(EnvPollInterval, DefaultPollInterval)
	if err != nil {
		return nil, err
	}
	attempts, err := Int(EnvMaxAttempts, 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RepoURL:      String(EnvRepo, ""),
		Username:     String(EnvUser, ""),
		Token:        String(EnvToken, ""),
		Scope:        ResolveScope(String(EnvScope, ""), String(EnvRunID, ""), NewLocalScope),
		Workflow:     String(EnvWorkflow, DefaultWorkflow),
		APIURL:       String(EnvAPIURL, ""),
		PollInterval: interval,
		MaxAttempts:  attempts,
		WorkDir:      String(EnvRepoDir, DefaultRepoDir),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.RepoURL == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvRepo))
	} else if u, err := url.Parse(c.RepoURL); err != nil || u.Scheme != "https" || u.Host == "" {
		errs = append(errs, fmt.Errorf("%s must be an https URL, got %q", EnvRepo, c.RepoURL))
	}
	if c.Username == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvUser))
	}
	if c.Token == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvToken))
	}
	if c.Scope == "" {
		errs = append(errs, errors.New("scope must not be empty"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvPollInterval))
	}
	if c.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", EnvMaxAttempts))
	}
	if c.WorkDir == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", EnvRepoDir))
	}
	return errors.Join(errs...)
}

// AuthURL returns RepoURL with the credentials embedded as userinfo.
func (c *Config) AuthURL() (string, error) {
	u, err := url.Parse(c.RepoURL)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", EnvRepo, err)
	}
	u.User = url.UserPassword(c.Username, c.Token)
	return u.String(), nil
}

// ResolveScope picks the scope identifier. An explicit scope wins; inside
// CI the run id gives every execution its own namespace; local runs get a
// random one from gen.
func ResolveScope(explicit, runID string, gen func() string) string {
	if explicit != "" {
		return explicit
	}
	if runID != "" {
		return "run-" + runID
	}
	return gen()
}

// NewLocalScope returns a random scope for runs outside CI.
func NewLocalScope() string {
	return "local-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}
