package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/byte4ever/branch_promoter/gitops/git"
	"github.com/byte4ever/branch_promoter/gitops/prtext"
)

// Config holds the collaborators of a Coordinator.
type Config struct {
	// Remote is the repository promotions run
	// against.
	Remote git.RemoteRepo
	// Policy bounds merge retries.
	Policy Policy
	// ProductionBranch is the only branch that gets
	// tagged after a merge.
	ProductionBranch string
	// Text renders pull request titles. Nil means
	// prtext.Default().
	Text *prtext.Renderer
	// Sleep suspends between attempts and polls. Nil
	// means Sleep.
	Sleep SleepFunc
}

// Options tune a single promotion.
type Options struct {
	// SkipCreate disables opening a pull request when
	// none is open.
	SkipCreate bool
	// TagVersion is the tag created on the production
	// branch after the merge.
	TagVersion string
	// Kind is the workflow kind, recorded in pull
	// request text.
	Kind string
}

// Coordinator drives source to target promotions.
type Coordinator struct {
	remote     git.RemoteRepo
	policy     Policy
	production string
	text       *prtext.Renderer
	sleep      SleepFunc
}

// New validates cfg and returns a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	const errCtx = "creating merge coordinator"

	if cfg.Remote == nil {
		return nil, fmt.Errorf(
			"%s: remote must be set", errCtx,
		)
	}

	if cfg.ProductionBranch == "" {
		return nil, fmt.Errorf(
			"%s: production branch must be set", errCtx,
		)
	}

	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	text := cfg.Text
	if text == nil {
		text = prtext.Default()
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	return &Coordinator{
		remote:     cfg.Remote,
		policy:     cfg.Policy,
		production: cfg.ProductionBranch,
		text:       text,
		sleep:      sleep,
	}, nil
}

// Promote merges source into target. Failures are
// reported in the Outcome, never as panics.
func (c *Coordinator) Promote(
	ctx context.Context,
	source string,
	target string,
	opts Options,
) Outcome {
	out := Outcome{Reason: ReasonNone, Tag: opts.TagVersion}

	pr, created, err := c.ensurePullRequest(
		ctx, source, target, opts,
	)
	if err != nil && !errors.Is(err, git.ErrCreateFailed) {
		return c.abort(out, source, target, err)
	}

	if pr == nil {
		slog.Error(
			"no pull request available",
			"source", source,
			"target", target,
			"error", err,
		)

		out.Reason = ReasonNoPullRequest
		out.Err = err

		return out
	}

	out.PullRequest = pr
	out.Created = created

	merged, err := c.mergeWithRetry(ctx, pr.Number, &out)
	if err != nil {
		return c.abort(out, source, target, err)
	}

	if !merged {
		slog.Error(
			"failed to merge after retries",
			"number", pr.Number,
			"attempts", out.Attempts,
		)

		out.Reason = ReasonMergeExhausted

		return out
	}

	out.Succeeded = true

	c.tagRelease(ctx, target, &out)

	return out
}

func (c *Coordinator) abort(
	out Outcome,
	source string,
	target string,
	err error,
) Outcome {
	out.Reason = ReasonRemoteError
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		out.Reason = ReasonCanceled
	}

	out.Err = err

	slog.Error(
		"promotion aborted",
		"source", source,
		"target", target,
		"reason", out.Reason,
		"error", err,
	)

	return out
}

func (c *Coordinator) ensurePullRequest(
	ctx context.Context,
	source string,
	target string,
	opts Options,
) (*git.PullRequest, bool, error) {
	const errCtx = "ensuring pull request"

	pr, err := c.remote.FindOpenPullRequest(ctx, source, target)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if pr != nil {
		slog.Info(
			"found open pull request",
			"number", pr.Number,
			"url", pr.URL,
		)

		return pr, false, nil
	}

	if opts.SkipCreate {
		return nil, false, nil
	}

	pr, err = c.remote.CreatePullRequest(
		ctx,
		source,
		target,
		c.text.PullRequestTitle(source, target, opts.Kind),
		prtext.Body(prtext.Metadata{
			Source:     source,
			Target:     target,
			Kind:       opts.Kind,
			TagVersion: opts.TagVersion,
		}),
	)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if pr == nil {
		return nil, false, nil
	}

	slog.Info(
		"created pull request",
		"number", pr.Number,
		"url", pr.URL,
	)

	return pr, true, nil
}

// mergeWithRetry runs up to MaxAttempts attempts,
// sleeping RetryInterval between two of them. Only
// remote and context errors are returned.
func (c *Coordinator) mergeWithRetry(
	ctx context.Context,
	number int,
	out *Outcome,
) (bool, error) {
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.policy.RetryInterval); err != nil {
				return false, err
			}
		}

		out.Attempts = attempt

		slog.Info(
			"merge attempt",
			"number", number,
			"attempt", attempt,
			"max", c.policy.MaxAttempts,
		)

		merged, err := c.attempt(ctx, number, out)
		if err != nil {
			return false, err
		}

		if merged {
			return true, nil
		}
	}

	return false, nil
}

func (c *Coordinator) attempt(
	ctx context.Context,
	number int,
	out *Outcome,
) (bool, error) {
	const errCtx = "merging pull request"

	pr, err := c.awaitMergeability(ctx, number)
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if pr == nil {
		slog.Warn("pull request not found", "number", number)

		return false, nil
	}

	out.PullRequest = pr

	// Unknown after polling counts as not mergeable.
	if pr.Mergeable != git.MergeableTrue {
		slog.Warn(
			"pull request is not mergeable",
			"number", number,
			"mergeable", pr.Mergeable,
			"mergeable_state", pr.MergeableState,
		)

		return false, nil
	}

	merged, err := c.remote.AttemptMerge(ctx, number)
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if merged {
		slog.Info("pull request merged", "number", number)
	}

	return merged, nil
}

// awaitMergeability fetches the pull request and
// re-fetches it at most MaxPolls times while the
// remote reports unknown mergeability.
func (c *Coordinator) awaitMergeability(
	ctx context.Context,
	number int,
) (*git.PullRequest, error) {
	pr, err := c.remote.FetchPullRequest(ctx, number)
	if err != nil {
		return nil, err
	}

	for poll := 0; pr != nil &&
		!pr.Mergeable.Resolved() &&
		poll < c.policy.MaxPolls; poll++ {
		if err := c.sleep(ctx, c.policy.PollInterval); err != nil {
			return nil, err
		}

		pr, err = c.remote.FetchPullRequest(ctx, number)
		if err != nil {
			return nil, err
		}
	}

	return pr, nil
}

// tagRelease tags the production branch after a
// confirmed merge. Failures only mark the outcome.
func (c *Coordinator) tagRelease(
	ctx context.Context,
	target string,
	out *Outcome,
) {
	if target != c.production {
		return
	}

	version := out.Tag
	if version == "" && out.PullRequest != nil {
		if md, ok := prtext.ParseMetadata(
			out.PullRequest.Body,
		); ok {
			version = md.TagVersion
		}
	}

	if version == "" {
		return
	}

	out.Tag = version

	if err := c.createTag(ctx, target, version); err != nil {
		level := slog.LevelWarn
		if git.IsRemoteError(err) {
			level = slog.LevelError
		}

		slog.Log(
			ctx, level,
			"tag creation failed",
			"tag", version,
			"branch", target,
			"error", err,
		)

		out.TagFailed = true
		out.Err = err

		return
	}

	out.Tagged = true
}

// ErrTagExists reports that the tag is already
// present on the remote.
var ErrTagExists = errors.New("tag already exists")

func (c *Coordinator) createTag(
	ctx context.Context,
	branch string,
	version string,
) error {
	const errCtx = "tagging release"

	sha, err := c.remote.ResolveBranchCommit(ctx, branch)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if sha == "" {
		return fmt.Errorf(
			"%s: cannot resolve commit of %q",
			errCtx, branch,
		)
	}

	ok, err := c.remote.CreateTag(ctx, version, sha)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if !ok {
		return fmt.Errorf("%s: %q: %w", errCtx, version, ErrTagExists)
	}

	slog.Info("created tag", "tag", version, "sha", sha)

	return nil
}
