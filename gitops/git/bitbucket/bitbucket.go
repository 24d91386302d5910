package bitbucket

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/branch_promoter/gitops/git"
)

// Config holds the settings needed to create a
// Bitbucket Server remote repository client.
type Config struct {
	// BaseURL is the Bitbucket Server root (e.g.
	// "https://bb.example.com").
	BaseURL string
	// Project is the project key (e.g. "PROJ").
	Project string
	// Repo is the repository slug.
	Repo string
	// User is the Bitbucket API username.
	User string
	// Password is the Bitbucket API password (or
	// personal access token).
	Password string
}

// Provider talks to one Bitbucket Server repository.
//
// Pattern: Strategy -- implements git.RemoteRepo.
type Provider struct {
	api      string
	project  string
	repo     string
	user     string
	password string
	client   *http.Client
}

var _ git.RemoteRepo = (*Provider)(nil)

type project struct {
	Key string `json:"key,omitempty"`
}

type repository struct {
	Slug    string  `json:"slug,omitempty"`
	Project project `json:"project"`
}

type pullrequestEndpoint struct {
	ID         string     `json:"id,omitempty"`
	DisplayID  string     `json:"displayId,omitempty"`
	Repository repository `json:"repository,omitempty"`
}

type pullrequest struct {
	ID          int                  `json:"id,omitempty"`
	Version     int                  `json:"version"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
	State       string               `json:"state,omitempty"`
	Open        bool                 `json:"open"`
	Closed      bool                 `json:"closed"`
	FromRef     *pullrequestEndpoint `json:"fromRef,omitempty"`
	ToRef       *pullrequestEndpoint `json:"toRef,omitempty"`
	Locked      bool                 `json:"locked"`
	Reviewers   []account            `json:"reviewers,omitempty"`
	Links       links                `json:"links,omitempty"`
}

type links struct {
	Self []link `json:"self,omitempty"`
}

type link struct {
	Href string `json:"href"`
}

type account struct {
	User user `json:"user"`
}

type user struct {
	Name string `json:"name,omitempty"`
}

type page[T any] struct {
	Values        []T  `json:"values"`
	IsLastPage    bool `json:"isLastPage"`
	NextPageStart int  `json:"nextPageStart"`
}

// mergeStatus is the answer of the merge pre-check.
type mergeStatus struct {
	CanMerge   bool   `json:"canMerge"`
	Conflicted bool   `json:"conflicted"`
	Outcome    string `json:"outcome"`
	Vetoes     []struct {
		SummaryMessage string `json:"summaryMessage"`
	} `json:"vetoes"`
}

type branch struct {
	ID           string `json:"id"`
	DisplayID    string `json:"displayId"`
	LatestCommit string `json:"latestCommit"`
}

type refRequest struct {
	Name       string `json:"name"`
	StartPoint string `json:"startPoint"`
}

type errorBody struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// NewProvider validates cfg and returns a Provider
// ready to drive pull requests.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating bitbucket provider"

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf(
			"%s: base url must be set",
			errCtx,
		)
	}

	if cfg.Project == "" {
		return nil, fmt.Errorf(
			"%s: project must be set", errCtx,
		)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf(
			"%s: repo must be set", errCtx,
		)
	}

	if cfg.User == "" {
		return nil, fmt.Errorf(
			"%s: user must be set", errCtx,
		)
	}

	if cfg.Password == "" {
		return nil, fmt.Errorf(
			"%s: password must be set", errCtx,
		)
	}

	api := strings.TrimSuffix(cfg.BaseURL, "/") +
		"/rest/api/1.0/projects/" +
		url.PathEscape(cfg.Project) +
		"/repos/" + url.PathEscape(cfg.Repo)

	return &Provider{
		api:      api,
		project:  cfg.Project,
		repo:     cfg.Repo,
		user:     cfg.User,
		password: cfg.Password,
		client:   http.DefaultClient,
	}, nil
}

// FindOpenPullRequest returns the first open pull
// request whose source is source and target is target.
func (p *Provider) FindOpenPullRequest(
	ctx context.Context,
	source string,
	target string,
) (*git.PullRequest, error) {
	const errCtx = "finding bitbucket pull request"

	q := url.Values{}
	q.Set("state", "OPEN")
	q.Set("direction", "OUTGOING")
	q.Set("at", git.BranchRef(source))

	want := git.BranchRef(target)

	pr, status, msg, err := findInPages(
		ctx, p, "/pull-requests", q,
		func(pr *pullrequest) bool {
			return pr.ToRef != nil && pr.ToRef.ID == want
		},
	)
	if err != nil {
		return nil, remoteError(errCtx, status, msg, err)
	}

	switch {
	case status == http.StatusNotFound:
		return nil, nil
	case !isSuccess(status):
		return nil, remoteError(errCtx, status, msg, nil)
	case pr == nil:
		return nil, nil
	}

	return toPullRequest(pr, git.MergeableUnknown, ""), nil
}

// CreatePullRequest opens a pull request from source
// into target. 400 and 409 answers are rejections.
func (p *Provider) CreatePullRequest(
	ctx context.Context,
	source string,
	target string,
	title string,
	body string,
) (*git.PullRequest, error) {
	const errCtx = "creating bitbucket pull request"

	repo := repository{
		Slug:    p.repo,
		Project: project{Key: p.project},
	}

	in := pullrequest{
		Title:       title,
		Description: body,
		State:       "OPEN",
		Open:        true,
		Closed:      false,
		FromRef: &pullrequestEndpoint{
			ID:         git.BranchRef(source),
			Repository: repo,
		},
		ToRef: &pullrequestEndpoint{
			ID:         git.BranchRef(target),
			Repository: repo,
		},
		Locked:    false,
		Reviewers: []account{},
	}

	var out pullrequest

	status, msg, err := p.do(
		ctx, http.MethodPost, "/pull-requests", nil, &in, &out,
	)
	if err != nil {
		return nil, remoteError(errCtx, status, msg, err)
	}

	switch status {
	case http.StatusCreated, http.StatusOK:
		return toPullRequest(&out, git.MergeableUnknown, ""), nil

	case http.StatusBadRequest, http.StatusConflict:
		slog.Warn(
			"bitbucket rejected pull request",
			"source", source,
			"target", target,
			"message", msg,
		)

		return nil, fmt.Errorf(
			"%s: %w: %s", errCtx, git.ErrCreateFailed, msg,
		)

	default:
		return nil, remoteError(errCtx, status, msg, nil)
	}
}

// FetchPullRequest re-reads a pull request and its
// merge pre-check.
func (p *Provider) FetchPullRequest(
	ctx context.Context,
	number int,
) (*git.PullRequest, error) {
	const errCtx = "fetching bitbucket pull request"

	pr, err := p.getPullRequest(ctx, number)
	if err != nil || pr == nil {
		return nil, err
	}

	if pr.State != "OPEN" {
		return toPullRequest(
			pr, git.MergeableFalse, strings.ToLower(pr.State),
		), nil
	}

	var ms mergeStatus

	status, msg, err := p.do(
		ctx, http.MethodGet,
		"/pull-requests/"+strconv.Itoa(number)+"/merge",
		nil, nil, &ms,
	)
	if err != nil {
		return nil, remoteError(errCtx, status, msg, err)
	}

	if !isSuccess(status) {
		return nil, remoteError(errCtx, status, msg, nil)
	}

	mergeable, state := ms.resolve()

	return toPullRequest(pr, mergeable, state), nil
}

// AttemptMerge merges the pull request at its current
// version. A 409 answer is an ordinary refusal.
func (p *Provider) AttemptMerge(
	ctx context.Context,
	number int,
) (bool, error) {
	const errCtx = "merging bitbucket pull request"

	pr, err := p.getPullRequest(ctx, number)
	if err != nil {
		return false, err
	}

	if pr == nil {
		return false, nil
	}

	q := url.Values{}
	q.Set("version", strconv.Itoa(pr.Version))

	var out pullrequest

	status, msg, err := p.do(
		ctx, http.MethodPost,
		"/pull-requests/"+strconv.Itoa(number)+"/merge",
		q, nil, &out,
	)
	if err != nil {
		return false, remoteError(errCtx, status, msg, err)
	}

	switch {
	case status == http.StatusConflict:
		slog.Warn(
			"merge attempt refused",
			"number", number,
			"message", msg,
		)

		return false, nil
	case !isSuccess(status):
		return false, remoteError(errCtx, status, msg, nil)
	}

	if out.State != "MERGED" {
		slog.Warn(
			"pull request not merged",
			"number", number,
			"state", out.State,
		)

		return false, nil
	}

	return true, nil
}

// ResolveBranchCommit returns the latest commit of
// branch.
func (p *Provider) ResolveBranchCommit(
	ctx context.Context,
	name string,
) (string, error) {
	const errCtx = "resolving bitbucket branch"

	q := url.Values{}
	q.Set("filterText", name)
	q.Set("limit", "100")

	b, status, msg, err := findInPages(
		ctx, p, "/branches", q,
		func(b *branch) bool {
			return b.DisplayID == name ||
				b.ID == git.BranchRef(name)
		},
	)
	if err != nil {
		return "", remoteError(errCtx, status, msg, err)
	}

	switch {
	case status == http.StatusNotFound:
		return "", nil
	case !isSuccess(status):
		return "", remoteError(errCtx, status, msg, nil)
	case b == nil:
		return "", nil
	}

	return b.LatestCommit, nil
}

// CreateBranch creates branch name at fromCommit.
func (p *Provider) CreateBranch(
	ctx context.Context,
	name string,
	fromCommit string,
) (bool, error) {
	return p.createRef(
		ctx, "creating bitbucket branch", "/branches",
		name, fromCommit,
	)
}

// CreateTag creates the lightweight tag name at
// atCommit. An existing tag is left untouched.
func (p *Provider) CreateTag(
	ctx context.Context,
	name string,
	atCommit string,
) (bool, error) {
	return p.createRef(
		ctx, "creating bitbucket tag", "/tags",
		name, atCommit,
	)
}

func (p *Provider) createRef(
	ctx context.Context,
	errCtx string,
	path string,
	name string,
	sha string,
) (bool, error) {
	status, msg, err := p.do(
		ctx, http.MethodPost, path, nil,
		&refRequest{Name: name, StartPoint: sha}, nil,
	)
	if err != nil {
		return false, remoteError(errCtx, status, msg, err)
	}

	switch {
	case isSuccess(status):
		return true, nil

	case status == http.StatusBadRequest ||
		status == http.StatusConflict:
		slog.Warn(
			"bitbucket rejected ref",
			"name", name,
			"message", msg,
		)

		return false, nil

	default:
		return false, remoteError(errCtx, status, msg, nil)
	}
}

func (p *Provider) getPullRequest(
	ctx context.Context,
	number int,
) (*pullrequest, error) {
	const errCtx = "reading bitbucket pull request"

	var pr pullrequest

	status, msg, err := p.do(
		ctx, http.MethodGet,
		"/pull-requests/"+strconv.Itoa(number),
		nil, nil, &pr,
	)
	if err != nil {
		return nil, remoteError(errCtx, status, msg, err)
	}

	switch {
	case status == http.StatusNotFound:
		return nil, nil
	case !isSuccess(status):
		return nil, remoteError(errCtx, status, msg, nil)
	}

	return &pr, nil
}

// findInPages walks a paged collection from its first
// page and returns the first value accepted by match.
// It stops at the last page, on a non-2xx answer, or
// when the server does not advance nextPageStart.
func findInPages[T any](
	ctx context.Context,
	p *Provider,
	path string,
	query url.Values,
	match func(*T) bool,
) (*T, int, string, error) {
	start := 0

	for {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}

		q.Set("start", strconv.Itoa(start))

		var res page[T]

		status, msg, err := p.do(
			ctx, http.MethodGet, path, q, nil, &res,
		)
		if err != nil || !isSuccess(status) {
			return nil, status, msg, err
		}

		for i := range res.Values {
			if match(&res.Values[i]) {
				return &res.Values[i], status, "", nil
			}
		}

		if res.IsLastPage || res.NextPageStart <= start {
			return nil, status, "", nil
		}

		start = res.NextPageStart
	}
}

// do sends one request. It returns the status and, for
// non-2xx answers, the remote's error message. err is
// only set for transport and encoding failures.
func (p *Provider) do(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	in any,
	out any,
) (int, string, error) {
	var body io.Reader

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, "", fmt.Errorf(
				"marshal request: %w", err,
			)
		}

		body = bytes.NewReader(payload)
	}

	target := p.api + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(
		ctx, method, target, body,
	)
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}

	if in != nil {
		req.Header.Set(
			"Content-Type",
			"application/json; charset=utf-8",
		)
	}

	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(p.user, p.password)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("send request: %w", err)
	}

	defer resp.Body.Close() //nolint:errcheck

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf(
			"read response: %w", err,
		)
	}

	if !isSuccess(resp.StatusCode) {
		slog.Debug(
			"bitbucket response",
			"status", resp.Status,
			"body", string(rb),
		)

		return resp.StatusCode, errorMessage(rb), nil
	}

	if out != nil && len(rb) > 0 {
		if err := json.Unmarshal(rb, out); err != nil {
			return resp.StatusCode, "", fmt.Errorf(
				"decode response: %w", err,
			)
		}
	}

	return resp.StatusCode, "", nil
}

func (ms mergeStatus) resolve() (git.Mergeable, string) {
	switch {
	case ms.Outcome == "UNKNOWN":
		return git.MergeableUnknown, "unknown"
	case ms.CanMerge:
		return git.MergeableTrue, "clean"
	case ms.Conflicted:
		return git.MergeableFalse, "conflicted"
	case len(ms.Vetoes) > 0:
		return git.MergeableFalse, ms.Vetoes[0].SummaryMessage
	default:
		return git.MergeableFalse, strings.ToLower(ms.Outcome)
	}
}

func (pr *pullrequest) selfLink() string {
	if len(pr.Links.Self) == 0 {
		return ""
	}

	return pr.Links.Self[0].Href
}

func toPullRequest(
	pr *pullrequest,
	mergeable git.Mergeable,
	state string,
) *git.PullRequest {
	out := &git.PullRequest{
		Number:         pr.ID,
		Mergeable:      mergeable,
		MergeableState: state,
		URL:            pr.selfLink(),
		Body:           pr.Description,
	}

	if pr.FromRef != nil {
		out.Head = git.ShortName(pr.FromRef.ID)
	}

	if pr.ToRef != nil {
		out.Base = git.ShortName(pr.ToRef.ID)
	}

	return out
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil &&
		len(eb.Errors) > 0 {
		return eb.Errors[0].Message
	}

	return strings.TrimSpace(string(body))
}

func remoteError(
	op string,
	status int,
	msg string,
	err error,
) error {
	return &git.RemoteError{
		Op:         op,
		StatusCode: status,
		Message:    msg,
		Err:        err,
	}
}
