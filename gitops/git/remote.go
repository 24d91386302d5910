package git

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Pattern: Strategy -- swap the hosting platform
// without changing promotion logic.

// RemoteRepo is the set of remote operations a
// promotion needs. Ordinary "not found" answers are
// reported as absent results, never as errors.
type RemoteRepo interface {
	// FindOpenPullRequest returns the first open pull
	// request from source into target, or nil.
	FindOpenPullRequest(
		ctx context.Context,
		source string,
		target string,
	) (*PullRequest, error)

	// CreatePullRequest opens a pull request. A remote
	// rejection wraps ErrCreateFailed.
	CreatePullRequest(
		ctx context.Context,
		source string,
		target string,
		title string,
		body string,
	) (*PullRequest, error)

	// FetchPullRequest re-reads a pull request, or
	// returns nil when it no longer exists.
	FetchPullRequest(
		ctx context.Context,
		number int,
	) (*PullRequest, error)

	// AttemptMerge merges the pull request. It returns
	// false without error when the remote refuses the
	// merge for an ordinary reason.
	AttemptMerge(
		ctx context.Context,
		number int,
	) (bool, error)

	// ResolveBranchCommit returns the commit hash the
	// branch points at, or "" when it does not exist.
	ResolveBranchCommit(
		ctx context.Context,
		branch string,
	) (string, error)

	// CreateBranch creates a branch at fromCommit.
	CreateBranch(
		ctx context.Context,
		name string,
		fromCommit string,
	) (bool, error)

	// CreateTag creates a tag at atCommit. It returns
	// false when the tag already exists.
	CreateTag(
		ctx context.Context,
		name string,
		atCommit string,
	) (bool, error)
}

// ErrCreateFailed reports that the remote refused to
// open a pull request (no diff, missing branch...).
var ErrCreateFailed = errors.New(
	"pull request creation rejected",
)

// RemoteError is a transport, authentication or
// unexpected-response failure of a remote call.
type RemoteError struct {
	// Op names the remote operation.
	Op string
	// StatusCode is the HTTP status, 0 when no
	// response was received.
	StatusCode int
	// Message is the remote's response text.
	Message string
	// Err is the underlying cause.
	Err error
}

func (e *RemoteError) Error() string {
	var sb strings.Builder

	sb.WriteString(e.Op)

	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, ": status %d", e.StatusCode)
	}

	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}

	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRemoteError reports whether err carries a
// RemoteError.
func IsRemoteError(err error) bool {
	var re *RemoteError

	return errors.As(err, &re)
}

// RemoteRepoFuncs adapts plain functions to the
// RemoteRepo interface. Nil fields behave as an empty
// remote: lookups are absent and mutations refused.
type RemoteRepoFuncs struct {
	FindOpenPullRequestFunc func(
		ctx context.Context, source, target string,
	) (*PullRequest, error)
	CreatePullRequestFunc func(
		ctx context.Context,
		source, target, title, body string,
	) (*PullRequest, error)
	FetchPullRequestFunc func(
		ctx context.Context, number int,
	) (*PullRequest, error)
	AttemptMergeFunc func(
		ctx context.Context, number int,
	) (bool, error)
	ResolveBranchCommitFunc func(
		ctx context.Context, branch string,
	) (string, error)
	CreateBranchFunc func(
		ctx context.Context, name, fromCommit string,
	) (bool, error)
	CreateTagFunc func(
		ctx context.Context, name, atCommit string,
	) (bool, error)
}

var _ RemoteRepo = RemoteRepoFuncs{}

// FindOpenPullRequest delegates to
// FindOpenPullRequestFunc.
func (f RemoteRepoFuncs) FindOpenPullRequest(
	ctx context.Context,
	source string,
	target string,
) (*PullRequest, error) {
	if f.FindOpenPullRequestFunc == nil {
		return nil, nil
	}

	return f.FindOpenPullRequestFunc(ctx, source, target)
}

// CreatePullRequest delegates to CreatePullRequestFunc.
// When body is empty the title is used as body.
func (f RemoteRepoFuncs) CreatePullRequest(
	ctx context.Context,
	source string,
	target string,
	title string,
	body string,
) (*PullRequest, error) {
	if f.CreatePullRequestFunc == nil {
		return nil, fmt.Errorf(
			"creating pull request: %w", ErrCreateFailed,
		)
	}

	if body == "" {
		body = title
	}

	return f.CreatePullRequestFunc(
		ctx, source, target, title, body,
	)
}

// FetchPullRequest delegates to FetchPullRequestFunc.
func (f RemoteRepoFuncs) FetchPullRequest(
	ctx context.Context,
	number int,
) (*PullRequest, error) {
	if f.FetchPullRequestFunc == nil {
		return nil, nil
	}

	return f.FetchPullRequestFunc(ctx, number)
}

// AttemptMerge delegates to AttemptMergeFunc.
func (f RemoteRepoFuncs) AttemptMerge(
	ctx context.Context,
	number int,
) (bool, error) {
	if f.AttemptMergeFunc == nil {
		return false, nil
	}

	return f.AttemptMergeFunc(ctx, number)
}

// ResolveBranchCommit delegates to
// ResolveBranchCommitFunc.
func (f RemoteRepoFuncs) ResolveBranchCommit(
	ctx context.Context,
	branch string,
) (string, error) {
	if f.ResolveBranchCommitFunc == nil {
		return "", nil
	}

	return f.ResolveBranchCommitFunc(ctx, branch)
}

// CreateBranch delegates to CreateBranchFunc.
func (f RemoteRepoFuncs) CreateBranch(
	ctx context.Context,
	name string,
	fromCommit string,
) (bool, error) {
	if f.CreateBranchFunc == nil {
		return false, nil
	}

	return f.CreateBranchFunc(ctx, name, fromCommit)
}

// CreateTag delegates to CreateTagFunc.
func (f RemoteRepoFuncs) CreateTag(
	ctx context.Context,
	name string,
	atCommit string,
) (bool, error) {
	if f.CreateTagFunc == nil {
		return false, nil
	}

	return f.CreateTagFunc(ctx, name, atCommit)
}
