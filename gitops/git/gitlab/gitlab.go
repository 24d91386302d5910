package gitlab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/byte4ever/branch_promoter/gitops/git"
)

// Config holds the settings needed to create a GitLab
// remote repository client.
type Config struct {
	// Host is the base URL of the GitLab instance
	// (e.g. "https://gitlab.com").
	Host string
	// Repo is the full project path
	// (e.g. "org/project").
	Repo string
	// AccessToken is a personal or project access
	// token used for authentication.
	AccessToken string
}

// Provider talks to one GitLab project.
//
// Pattern: Strategy -- implements git.RemoteRepo.
type Provider struct {
	client *gl.Client
	repo   string
}

var _ git.RemoteRepo = (*Provider)(nil)

// NewProvider validates cfg and returns a Provider
// ready to drive merge requests.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating gitlab provider"

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf(
			"%s: access token must be set", errCtx,
		)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf(
			"%s: repo must be set", errCtx,
		)
	}

	host := cfg.Host
	if host == "" {
		host = "https://gitlab.com"
	}

	client, err := gl.NewClient(
		cfg.AccessToken,
		gl.WithBaseURL(host),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: new client: %w", errCtx, err,
		)
	}

	return &Provider{
		client: client,
		repo:   cfg.Repo,
	}, nil
}

// FindOpenPullRequest returns the first opened merge
// request from source into target.
func (p *Provider) FindOpenPullRequest(
	ctx context.Context,
	source string,
	target string,
) (*git.PullRequest, error) {
	const errCtx = "finding gitlab merge request"

	mrs, resp, err := p.client.MergeRequests.ListProjectMergeRequests(
		p.repo,
		&gl.ListProjectMergeRequestsOptions{
			State:        gl.Ptr("opened"),
			SourceBranch: gl.Ptr(source),
			TargetBranch: gl.Ptr(target),
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		if statusOf(resp) == http.StatusNotFound {
			return nil, nil
		}

		return nil, remoteError(errCtx, resp, err)
	}

	if len(mrs) == 0 {
		return nil, nil
	}

	mr := mrs[0]

	return toPullRequest(
		mr.IID,
		mr.SourceBranch,
		mr.TargetBranch,
		mr.DetailedMergeStatus,
		mr.WebURL,
		mr.Description,
	), nil
}

// CreatePullRequest opens a merge request from source
// into target.
func (p *Provider) CreatePullRequest(
	ctx context.Context,
	source string,
	target string,
	title string,
	body string,
) (*git.PullRequest, error) {
	const errCtx = "creating gitlab merge request"

	created, resp, err := p.client.MergeRequests.CreateMergeRequest(
		p.repo,
		&gl.CreateMergeRequestOptions{
			Title:        &title,
			Description:  &body,
			SourceBranch: &source,
			TargetBranch: &target,
		},
		gl.WithContext(ctx),
	)
	if err == nil {
		return toPullRequest(
			created.IID,
			created.SourceBranch,
			created.TargetBranch,
			created.DetailedMergeStatus,
			created.WebURL,
			created.Description,
		), nil
	}

	switch statusOf(resp) {
	case http.StatusBadRequest,
		http.StatusConflict,
		http.StatusUnprocessableEntity:
		msg := errorMessage(err)

		slog.Warn(
			"gitlab rejected merge request",
			"source", source,
			"target", target,
			"message", msg,
		)

		return nil, fmt.Errorf(
			"%s: %w: %s", errCtx, git.ErrCreateFailed, msg,
		)
	default:
		return nil, remoteError(errCtx, resp, err)
	}
}

// FetchPullRequest re-reads a merge request.
func (p *Provider) FetchPullRequest(
	ctx context.Context,
	number int,
) (*git.PullRequest, error) {
	const errCtx = "fetching gitlab merge request"

	ref := mergeRequestRef(number)

	mr, resp, err := p.client.MergeRequests.GetMergeRequest(
		p.repo, ref.IID, nil, gl.WithContext(ctx),
	)
	if err != nil {
		if statusOf(resp) == http.StatusNotFound {
			return nil, nil
		}

		return nil, remoteError(errCtx, resp, err)
	}

	return toPullRequest(
		mr.IID,
		mr.SourceBranch,
		mr.TargetBranch,
		mr.DetailedMergeStatus,
		mr.WebURL,
		mr.Description,
	), nil
}

// AttemptMerge accepts the merge request. 405, 406,
// 409 and 422 answers are ordinary refusals.
func (p *Provider) AttemptMerge(
	ctx context.Context,
	number int,
) (bool, error) {
	const errCtx = "accepting gitlab merge request"

	ref := mergeRequestRef(number)

	mr, resp, err := p.client.MergeRequests.AcceptMergeRequest(
		p.repo, ref.IID,
		&gl.AcceptMergeRequestOptions{},
		gl.WithContext(ctx),
	)
	if err != nil {
		switch statusOf(resp) {
		case http.StatusMethodNotAllowed,
			http.StatusNotAcceptable,
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

	if mr.State != "merged" {
		slog.Warn(
			"merge request not merged",
			"number", number,
			"state", mr.State,
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
	const errCtx = "resolving gitlab branch"

	br, resp, err := p.client.Branches.GetBranch(
		p.repo, branch, gl.WithContext(ctx),
	)
	if err != nil {
		if statusOf(resp) == http.StatusNotFound {
			return "", nil
		}

		return "", remoteError(errCtx, resp, err)
	}

	if br.Commit == nil {
		return "", nil
	}

	return br.Commit.ID, nil
}

// CreateBranch creates branch name at fromCommit.
func (p *Provider) CreateBranch(
	ctx context.Context,
	name string,
	fromCommit string,
) (bool, error) {
	const errCtx = "creating gitlab branch"

	_, resp, err := p.client.Branches.CreateBranch(
		p.repo,
		&gl.CreateBranchOptions{
			Branch: &name,
			Ref:    &fromCommit,
		},
		gl.WithContext(ctx),
	)

	return refCreated(errCtx, name, resp, err)
}

// CreateTag creates the lightweight tag name at
// atCommit. An existing tag is left untouched.
func (p *Provider) CreateTag(
	ctx context.Context,
	name string,
	atCommit string,
) (bool, error) {
	const errCtx = "creating gitlab tag"

	_, resp, err := p.client.Tags.CreateTag(
		p.repo,
		&gl.CreateTagOptions{
			TagName: &name,
			Ref:     &atCommit,
		},
		gl.WithContext(ctx),
	)

	return refCreated(errCtx, name, resp, err)
}

func refCreated(
	errCtx string,
	name string,
	resp *gl.Response,
	err error,
) (bool, error) {
	if err == nil {
		return true, nil
	}

	// GitLab answers 400 when the ref already exists
	// and 409 on concurrent creation.
	switch statusOf(resp) {
	case http.StatusBadRequest, http.StatusConflict:
		slog.Warn(
			"gitlab rejected ref",
			"name", name,
			"message", errorMessage(err),
		)

		return false, nil
	default:
		return false, remoteError(errCtx, resp, err)
	}
}

// unknownStatuses are detailed merge statuses GitLab
// reports while it is still computing mergeability.
var unknownStatuses = map[string]struct{}{
	"":                  {},
	"unchecked":         {},
	"checking":          {},
	"preparing":         {},
	"approvals_syncing": {},
}

func mergeableFromStatus(status string) git.Mergeable {
	if _, ok := unknownStatuses[status]; ok {
		return git.MergeableUnknown
	}

	if status == "mergeable" {
		return git.MergeableTrue
	}

	return git.MergeableFalse
}

func toPullRequest[T ~int | ~int64](
	iid T,
	source string,
	target string,
	status string,
	webURL string,
	body string,
) *git.PullRequest {
	return &git.PullRequest{
		Number:         int(iid),
		Head:           source,
		Base:           target,
		Mergeable:      mergeableFromStatus(status),
		MergeableState: status,
		URL:            webURL,
		Body:           body,
	}
}

// mergeRequestRef returns a merge request carrying
// number as IID, typed the way the client expects it.
func mergeRequestRef(number int) gl.MergeRequest {
	var ref gl.MergeRequest

	setIID(&ref.IID, number)

	return ref
}

func setIID[T ~int | ~int64](dst *T, number int) {
	*dst = T(number)
}

func statusOf(resp *gl.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}

	return resp.StatusCode
}

func errorMessage(err error) string {
	var er *gl.ErrorResponse
	if errors.As(err, &er) {
		return er.Message
	}

	return err.Error()
}

func remoteError(
	op string,
	resp *gl.Response,
	err error,
) error {
	return &git.RemoteError{
		Op:         op,
		StatusCode: statusOf(resp),
		Message:    errorMessage(err),
		Err:        err,
	}
}
