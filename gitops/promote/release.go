package promote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/byte4ever/branch_promoter/gitops/git"
	"github.com/byte4ever/branch_promoter/gitops/prtext"
)

// ErrBranchExists reports that the release branch is
// already present on the remote.
var ErrBranchExists = errors.New("branch already exists")

// ReleaseRequest describes a release cut.
type ReleaseRequest struct {
	// Source is the branch the release starts from.
	Source string
	// Target is the production branch the release
	// pull request merges into.
	Target string
	// Version is recorded in the pull request body and
	// applied by promote_release after the merge.
	Version string
	// Now dates the release branch name.
	Now time.Time
}

// ReleaseResult reports a release cut.
type ReleaseResult struct {
	Branch      string
	Commit      string
	PullRequest *git.PullRequest
}

// CutRelease creates a release branch at the head of
// req.Source and opens its pull request into
// req.Target. A nil text uses prtext.Default().
func CutRelease(
	ctx context.Context,
	remote git.RemoteRepo,
	text *prtext.Renderer,
	req ReleaseRequest,
) (ReleaseResult, error) {
	const errCtx = "cutting release"

	if req.Source == "" || req.Target == "" {
		return ReleaseResult{}, fmt.Errorf(
			"%s: source and target must be set", errCtx,
		)
	}

	if text == nil {
		text = prtext.Default()
	}

	if req.Now.IsZero() {
		req.Now = time.Now()
	}

	sha, err := remote.ResolveBranchCommit(ctx, req.Source)
	if err != nil {
		return ReleaseResult{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	if sha == "" {
		return ReleaseResult{}, fmt.Errorf(
			"%s: cannot resolve commit of %q",
			errCtx, req.Source,
		)
	}

	res := ReleaseResult{
		Branch: text.ReleaseBranch(req.Now),
		Commit: sha,
	}

	slog.Info(
		"creating release branch",
		"branch", res.Branch,
		"sha", sha,
	)

	ok, err := remote.CreateBranch(ctx, res.Branch, sha)
	if err != nil {
		return res, fmt.Errorf("%s: %w", errCtx, err)
	}

	if !ok {
		return res, fmt.Errorf(
			"%s: %q: %w", errCtx, res.Branch, ErrBranchExists,
		)
	}

	pr, err := remote.CreatePullRequest(
		ctx,
		res.Branch,
		req.Target,
		text.ReleaseTitle(res.Branch),
		prtext.Body(prtext.Metadata{
			Source:     res.Branch,
			Target:     req.Target,
			Kind:       string(KindPromoteRelease),
			TagVersion: req.Version,
		}),
	)
	if err != nil {
		return res, fmt.Errorf("%s: %w", errCtx, err)
	}

	res.PullRequest = pr

	if pr != nil {
		slog.Info(
			"opened release pull request",
			"number", pr.Number,
			"url", pr.URL,
		)
	}

	return res, nil
}
