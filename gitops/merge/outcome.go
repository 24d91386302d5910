package merge

import "github.com/byte4ever/branch_promoter/gitops/git"

// Reason classifies why a promotion stopped.
type Reason string

const (
	// ReasonNone means the merge succeeded.
	ReasonNone Reason = "none"
	// ReasonNoPullRequest means no pull request was
	// found and none could be opened.
	ReasonNoPullRequest Reason = "no_pull_request"
	// ReasonMergeExhausted means every attempt ended
	// without a merge.
	ReasonMergeExhausted Reason = "merge_exhausted"
	// ReasonRemoteError means a remote call failed.
	ReasonRemoteError Reason = "remote_error"
	// ReasonCanceled means the context was done
	// while waiting or calling the remote.
	ReasonCanceled Reason = "canceled"
)

// Outcome reports one promotion.
type Outcome struct {
	// Succeeded is true once the merge is confirmed.
	// Tagging never changes it.
	Succeeded bool
	Reason    Reason
	// PullRequest is the last snapshot read.
	PullRequest *git.PullRequest
	// Created is true when the pull request was
	// opened by this promotion.
	Created bool
	// Attempts is the number of outer attempts made.
	Attempts int
	// Tag is the tag version requested, if any.
	Tag       string
	Tagged    bool
	TagFailed bool
	// Err carries the cause of a failure or of a
	// tagging problem.
	Err error
}
