package git

import "strings"

// Mergeable is the remote-computed readiness of a pull
// request. MergeableUnknown means the remote has not
// finished evaluating it and is never mergeable.
type Mergeable int

const (
	MergeableUnknown Mergeable = iota
	MergeableTrue
	MergeableFalse
)

// MergeableFromPtr maps a nullable remote boolean to
// the tri-state.
func MergeableFromPtr(b *bool) Mergeable {
	switch {
	case b == nil:
		return MergeableUnknown
	case *b:
		return MergeableTrue
	default:
		return MergeableFalse
	}
}

// Resolved reports whether the remote has decided.
func (m Mergeable) Resolved() bool {
	return m != MergeableUnknown
}

func (m Mergeable) String() string {
	switch m {
	case MergeableTrue:
		return "true"
	case MergeableFalse:
		return "false"
	default:
		return "unknown"
	}
}

// PullRequest is a snapshot of a remote pull request.
// It is only ever replaced by re-fetching, never
// patched locally.
type PullRequest struct {
	// Number is the remote-assigned identifier.
	Number int
	// Head is the source branch name.
	Head string
	// Base is the target branch name.
	Base string
	// Mergeable is the tri-state readiness.
	Mergeable Mergeable
	// MergeableState is the remote's description of
	// the readiness (e.g. "blocked", "dirty").
	MergeableState string
	// URL is the human-facing address.
	URL string
	// Body is the description text.
	Body string
}

const (
	headsPrefix = "refs/heads/"
	tagsPrefix  = "refs/tags/"
)

// BranchRef returns the fully qualified branch ref.
func BranchRef(name string) string {
	return headsPrefix + strings.TrimPrefix(name, headsPrefix)
}

// TagRef returns the fully qualified tag ref.
func TagRef(name string) string {
	return tagsPrefix + strings.TrimPrefix(name, tagsPrefix)
}

// ShortName strips the refs/heads/ or refs/tags/
// prefix from a ref.
func ShortName(ref string) string {
	if s, ok := strings.CutPrefix(ref, headsPrefix); ok {
		return s
	}

	return strings.TrimPrefix(ref, tagsPrefix)
}
