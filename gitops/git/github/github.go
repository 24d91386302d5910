package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/byte4ever/branch_promoter/gitops/git"
)

// Config holds the settings needed to create a GitHub
// remote repository client.
type Config struct {
	// RepoOwner is the GitHub user or organisation
	// that owns the repository.
	RepoOwner string
	// Repo is the repository name (without owner).
	Repo string
	// AccessToken is a personal access token or
	// GitHub App token used for authentication.
	AccessToken string
	// EnterpriseHost is an optional GitHub Enterprise
	// hostname (e.g. "git.corp.example.com"). Leave
	// empty for github.com.
	EnterpriseHost string
	// BaseURL overrides the REST API root. Takes
	// precedence over EnterpriseHost.
	BaseURL string
	// MergeMethod is "merge", "squash" or "rebase".
	// Empty means "merge".
	MergeMethod string
}

// Provider talks to one GitHub repository.
//
// Pattern: Strategy -- implements git.RemoteRepo.
type Provider struct {
	client      *gh.Client
	repoOwner   string
	repo        string
	mergeMethod string
}

var _ git.RemoteRepo = (*Provider)(nil)

// ParseRepository splits an "owner/repo" identifier.
func ParseRepository(id string) (string, string, error) {
	owner, repo, ok := strings.Cut(id, "/")
	if !ok || owner == "" || repo == "" ||
		strings.Contains(repo, "/") {
		return "", "", fmt.Errorf(
			"parsing repository %q: want owner/repo", id,
		)
	}

	return owner, repo, nil
}

// NewProvider validates cfg and returns a Provider
// ready to drive pull requests.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating github provider"

	if cfg.RepoOwner == "" {
		return nil, fmt.Errorf(
			"%s: repo owner must be set", errCtx,
		)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf(
			"%s: repo must be set", errCtx,
		)
	}

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf(
			"%s: access token must be set", errCtx,
		)
	}

	mergeMethod := cfg.MergeMethod
	switch mergeMethod {
	case "":
		mergeMethod = "merge"
	case "merge", "squash", "rebase":
	default:
		return nil, fmt.Errorf(
			"%s: unknown merge method %q",
			errCtx, mergeMethod,
		)
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.AccessToken},
	)
	client := gh.NewClient(
		oauth2.NewClient(context.Background(), ts),
	)

	switch {
	case cfg.BaseURL != "":
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: base url: %w", errCtx, err,
			)
		}

		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}

		client.BaseURL = base

	case cfg.EnterpriseHost != "":
		baseURL := "https://" +
			cfg.EnterpriseHost + "/api/v3/"
		uploadURL := "https://" +
			cfg.EnterpriseHost + "/api/uploads/"

		var err error

		client, err = client.WithEnterpriseURLs(
			baseURL, uploadURL,
		)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: enterprise urls: %w",
				errCtx, err,
			)
		}
	}

	return &Provider{
		client:      client,
		repoOwner:   cfg.RepoOwner,
		repo:        cfg.Repo,
		mergeMethod: mergeMethod,
	}, nil
}

// FindOpenPullRequest lists open pull requests with
// head "owner:source" and base target and returns the
// first one.
func (p *Provider) FindOpenPullRequest(
	ctx context.Context,
	source string,
	target string,
) (*git.PullRequest, error) {
	const errCtx = "finding github pull request"

	prs, resp, err := p.client.PullRequests.List(
		ctx, p.repoOwner, p.repo,
		&gh.PullRequestListOptions{
			State: "open",
			Head:  p.repoOwner + ":" + source,
			Base:  target,
		},
	)
	if err != nil {
		if statusOf(resp) == http.StatusNotFound {
			return nil, nil
		}

		return nil, remoteError(errCtx, resp, err)
	}

	if len(prs) == 0 {
		return nil, nil
	}

	return toPullRequest(prs[0]), nil
}

// CreatePullRequest opens a pull request from source
// into target.
func (p *Provider) CreatePullRequest(
	ctx context.Context,
	source string,
	target string,
	title string,
	body string,
) (*git.PullRequest, error) {
	const errCtx = "creating github pull request"

	created, resp, err := p.client.PullRequests.Create(
		ctx, p.repoOwner, p.repo,
		&gh.NewPullRequest{
			Title: &title,
			Head:  &source,
			Base:  &target,
			Body:  &body,
		},
	)
	if err == nil {
		return toPullRequest(created), nil
	}

	// HTTP 422: no commits between the branches, a
	// missing branch, or a duplicate.
	if statusOf(resp) == http.StatusUnprocessableEntity {
		msg := errorMessage(err)

		slog.Warn(
			"github rejected pull request",
			"source", source,
			"target", target,
			"message", msg,
		)

		return nil, fmt.Errorf(
			"%s: %w: %s", errCtx, git.ErrCreateFailed, msg,
		)
	}

	return nil, remoteError(errCtx, resp, err)
}

// FetchPullRequest re-reads a pull request including
// its current mergeability.
func (p *Provider) FetchPullRequest(
	ctx context.Context,
	number int,
) (*git.PullRequest, error) {
	const errCtx = "fetching github pull request"

	pr, resp, err := p.client.PullRequests.Get(
		ctx, p.repoOwner, p.repo, number,
	)
	if err != nil {
		if statusOf(resp) == http.StatusNotFound {
			return nil, nil
		}

		return nil, remoteError(errCtx, resp, err)
	}

	return toPullRequest(pr), nil
}

// AttemptMerge merges the pull request with the
// configured merge method. 405, 409 and 422 answers
// are ordinary refusals.
func (p *Provider) AttemptMerge(
	ctx context.Context,
	number int,
) (bool, error) {
	const errCtx = "merging github pull request"

	res, resp, err := p.client.PullRequests.Merge(
		ctx, p.repoOwner, p.repo, number, "",
		&gh.PullRequestOptions{
			MergeMethod: p.mergeMethod,
		},
	)
	if err != nil {
		switch statusOf(resp) {
		case http.StatusMethodNotAllowed,
			http.StatusConflict,
			http.StatusUnprocessableEntity:
			slog.Warn(
				"merge attempt refused",
				"number", number,
				"status", statusOf(resp),
				"message", errorMessage(err),
			)

			return false, nil
		default:
			return false, remoteError(errCtx, resp, err)
		}
	}

	if !res.GetMerged() {
		slog.Warn(
			"merge attempt not completed",
			"number", number,
			"message", res.GetMessage(),
		)

		return false, nil
	}

	return true, nil
}

// ResolveBranchCommit returns the head commit of
// branch.
func (p *Provider) ResolveBranchCommit(
	ctx context.Context,
	branch string,
) (string, error) {
	const errCtx = "resolving github branch"

	ref, resp, err := p.client.Git.GetRef(
		ctx, p.repoOwner, p.repo, "heads/"+branch,
	)
	if err != nil {
		if statusOf(resp) == http.StatusNotFound {
			return "", nil
		}

		return "", remoteError(errCtx, resp, err)
	}

	return ref.GetObject().GetSHA(), nil
}

// CreateBranch creates refs/heads/name at fromCommit.
func (p *Provider) CreateBranch(
	ctx context.Context,
	name string,
	fromCommit string,
) (bool, error) {
	return p.createRef(
		ctx, "creating github branch",
		git.BranchRef(name), fromCommit,
	)
}

// CreateTag creates the lightweight tag
// refs/tags/name at atCommit. An existing tag is left
// untouched.
func (p *Provider) CreateTag(
	ctx context.Context,
	name string,
	atCommit string,
) (bool, error) {
	return p.createRef(
		ctx, "creating github tag",
		git.TagRef(name), atCommit,
	)
}

func (p *Provider) createRef(
	ctx context.Context,
	errCtx string,
	ref string,
	sha string,
) (bool, error) {
	_, resp, err := p.client.Git.CreateRef(
		ctx, p.repoOwner, p.repo,
		&gh.Reference{
			Ref:    &ref,
			Object: &gh.GitObject{SHA: &sha},
		},
	)
	if err == nil {
		return true, nil
	}

	// HTTP 422: reference already exists or the sha
	// is unknown.
	if statusOf(resp) == http.StatusUnprocessableEntity {
		slog.Warn(
			"github rejected ref",
			"ref", ref,
			"message", errorMessage(err),
		)

		return false, nil
	}

	return false, remoteError(errCtx, resp, err)
}

func toPullRequest(pr *gh.PullRequest) *git.PullRequest {
	return &git.PullRequest{
		Number:         pr.GetNumber(),
		Head:           pr.GetHead().GetRef(),
		Base:           pr.GetBase().GetRef(),
		Mergeable:      git.MergeableFromPtr(pr.Mergeable),
		MergeableState: pr.GetMergeableState(),
		URL:            pr.GetHTMLURL(),
		Body:           pr.GetBody(),
	}
}

func statusOf(resp *gh.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}

	return resp.StatusCode
}

func errorMessage(err error) string {
	var er *gh.ErrorResponse
	if errors.As(err, &er) {
		return er.Message
	}

	return err.Error()
}

func remoteError(
	op string,
	resp *gh.Response,
	err error,
) error {
	re := &git.RemoteError{
		Op:         op,
		StatusCode: statusOf(resp),
		Err:        err,
	}

	var er *gh.ErrorResponse
	if errors.As(err, &er) {
		re.Message = er.Message
	}

	return re
}
