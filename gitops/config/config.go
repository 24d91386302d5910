package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/byte4ever/branch_promoter/gitops/merge"
	"github.com/byte4ever/branch_promoter/gitops/prtext"
)

// Supported providers.
const (
	ProviderGitHub    = "github"
	ProviderGitLab    = "gitlab"
	ProviderBitbucket = "bitbucket"
)

// Config is the promotion configuration.
type Config struct {
	Provider         string          `yaml:"provider"`
	Repository       string          `yaml:"repository"`
	DevelopBranch    string          `yaml:"develop_branch"`
	ProductionBranch string          `yaml:"production_branch"`
	Merge            MergeConfig     `yaml:"merge"`
	Templates        TemplatesConfig `yaml:"templates"`
	GitHub           GitHubConfig    `yaml:"github"`
	GitLab           GitLabConfig    `yaml:"gitlab"`
	Bitbucket        BitbucketConfig `yaml:"bitbucket"`
}

// MergeConfig bounds merge retries. Durations are
// written as Go duration strings ("15s").
type MergeConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	MaxPolls      int           `yaml:"max_mergeability_polls"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	// Method is the GitHub merge method.
	Method string `yaml:"method"`
}

// TemplatesConfig holds the text templates.
type TemplatesConfig struct {
	PullRequestTitle string `yaml:"pr_title"`
	ReleaseTitle     string `yaml:"release_title"`
	ReleaseBranch    string `yaml:"release_branch"`
}

type GitHubConfig struct {
	EnterpriseHost string `yaml:"enterprise_host"`
	BaseURL        string `yaml:"base_url"`
}

type GitLabConfig struct {
	Host string `yaml:"host"`
}

type BitbucketConfig struct {
	BaseURL string `yaml:"base_url"`
	Project string `yaml:"project"`
	User    string `yaml:"user"`
}

// Default returns the stock configuration. Repository
// is left empty.
func Default() Config {
	p := merge.DefaultPolicy()
	t := prtext.DefaultTemplates()

	return Config{
		Provider:         ProviderGitHub,
		DevelopBranch:    "develop",
		ProductionBranch: "main",
		Merge: MergeConfig{
			MaxAttempts:   p.MaxAttempts,
			RetryInterval: p.RetryInterval,
			MaxPolls:      p.MaxPolls,
			PollInterval:  p.PollInterval,
			Method:        "merge",
		},
		Templates: TemplatesConfig{
			PullRequestTitle: t.PullRequestTitle,
			ReleaseTitle:     t.ReleaseTitle,
			ReleaseBranch:    t.ReleaseBranch,
		},
		GitLab: GitLabConfig{Host: "https://gitlab.com"},
	}
}

// Load reads the YAML file at path over Default. An
// empty path returns Default.
func Load(path string) (Config, error) {
	const errCtx = "loading config"

	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	cfg, err := Parse(bytes.NewReader(raw))
	if err != nil {
		return Config{}, fmt.Errorf(
			"%s: %s: %w", errCtx, path, err,
		)
	}

	return cfg, nil
}

// Parse decodes YAML from r over Default. Unknown
// keys are rejected.
func Parse(r io.Reader) (Config, error) {
	const errCtx = "parsing config"

	cfg := Default()

	dec := yaml.NewDecoder(r, yaml.DisallowUnknownField())
	if err := dec.Decode(&cfg); err != nil {
		// An empty document resets the target.
		if errors.Is(err, io.EOF) {
			return Default(), nil
		}

		return Config{}, fmt.Errorf(
			"%s: %s", errCtx, yaml.FormatError(err, false, true),
		)
	}

	return cfg, nil
}

var (
	providers    = []string{ProviderGitHub, ProviderGitLab, ProviderBitbucket}
	mergeMethods = []string{"merge", "squash", "rebase"}
)

// Validate checks the configuration and reports every
// problem found.
func (c Config) Validate() error {
	const errCtx = "validating config"

	var errs []error

	if !slices.Contains(providers, c.Provider) {
		errs = append(errs, fmt.Errorf(
			"unknown provider %q", c.Provider,
		))
	}

	if c.Repository == "" {
		errs = append(errs, errors.New(
			"repository must be set",
		))
	}

	if c.DevelopBranch == "" {
		errs = append(errs, errors.New(
			"develop_branch must be set",
		))
	}

	if c.ProductionBranch == "" {
		errs = append(errs, errors.New(
			"production_branch must be set",
		))
	}

	if c.DevelopBranch != "" &&
		c.DevelopBranch == c.ProductionBranch {
		errs = append(errs, errors.New(
			"develop_branch and production_branch must differ",
		))
	}

	if err := c.Policy().Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Provider == ProviderGitHub &&
		!slices.Contains(mergeMethods, c.Merge.Method) {
		errs = append(errs, fmt.Errorf(
			"unknown merge method %q", c.Merge.Method,
		))
	}

	if c.Provider == ProviderBitbucket {
		if c.Bitbucket.BaseURL == "" {
			errs = append(errs, errors.New(
				"bitbucket.base_url must be set",
			))
		}

		if c.Bitbucket.Project == "" {
			errs = append(errs, errors.New(
				"bitbucket.project must be set",
			))
		}

		if c.Bitbucket.User == "" {
			errs = append(errs, errors.New(
				"bitbucket.user must be set",
			))
		}
	}

	if _, err := prtext.New(c.TextTemplates()); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// Policy returns the merge retry policy.
func (c Config) Policy() merge.Policy {
	return merge.Policy{
		MaxAttempts:   c.Merge.MaxAttempts,
		RetryInterval: c.Merge.RetryInterval,
		MaxPolls:      c.Merge.MaxPolls,
		PollInterval:  c.Merge.PollInterval,
	}
}

// TextTemplates returns the pull request text
// templates.
func (c Config) TextTemplates() prtext.Templates {
	return prtext.Templates{
		PullRequestTitle: c.Templates.PullRequestTitle,
		ReleaseTitle:     c.Templates.ReleaseTitle,
		ReleaseBranch:    c.Templates.ReleaseBranch,
	}
}
