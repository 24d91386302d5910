package main

import (
	"fmt"

	"github.com/byte4ever/branch_promoter/gitops/config"
	"github.com/byte4ever/branch_promoter/gitops/git"
	"github.com/byte4ever/branch_promoter/gitops/git/bitbucket"
	"github.com/byte4ever/branch_promoter/gitops/git/github"
	"github.com/byte4ever/branch_promoter/gitops/git/gitlab"
)

// newRemote creates the git.RemoteRepo for the
// configured provider.
//
// Pattern: Factory -- selects platform implementation
// at runtime.
func newRemote(
	cfg config.Config,
	token string,
) (git.RemoteRepo, error) {
	const errCtx = "creating remote repository"

	switch cfg.Provider {
	case config.ProviderGitHub:
		owner, repo, err := github.ParseRepository(cfg.Repository)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		p, err := github.NewProvider(github.Config{
			RepoOwner:      owner,
			Repo:           repo,
			AccessToken:    token,
			EnterpriseHost: cfg.GitHub.EnterpriseHost,
			BaseURL:        cfg.GitHub.BaseURL,
			MergeMethod:    cfg.Merge.Method,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return p, nil

	case config.ProviderGitLab:
		p, err := gitlab.NewProvider(gitlab.Config{
			Host:        cfg.GitLab.Host,
			Repo:        cfg.Repository,
			AccessToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return p, nil

	case config.ProviderBitbucket:
		p, err := bitbucket.NewProvider(bitbucket.Config{
			BaseURL:  cfg.Bitbucket.BaseURL,
			Project:  cfg.Bitbucket.Project,
			Repo:     cfg.Repository,
			User:     cfg.Bitbucket.User,
			Password: token,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return p, nil

	default:
		return nil, fmt.Errorf(
			"%s: unknown provider %q", errCtx, cfg.Provider,
		)
	}
}
