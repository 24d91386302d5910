package fake

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/byte4ever/branch_promoter/gitops/git"
)

// Op names a RemoteRepo operation.
type Op string

const (
	OpFindOpenPullRequest Op = "find_open_pull_request"
	OpCreatePullRequest   Op = "create_pull_request"
	OpFetchPullRequest    Op = "fetch_pull_request"
	OpAttemptMerge        Op = "attempt_merge"
	OpResolveBranchCommit Op = "resolve_branch_commit"
	OpCreateBranch        Op = "create_branch"
	OpCreateTag           Op = "create_tag"
)

// Call is one recorded invocation.
type Call struct {
	Op   Op
	Args []string
}

func (c Call) String() string {
	return fmt.Sprintf("%s%v", c.Op, c.Args)
}

type pair struct {
	source string
	target string
}

type pullRequest struct {
	pr     git.PullRequest
	open   bool
	merged bool
}

// Remote is an in-memory git.RemoteRepo.
//
// Pattern: Test Double -- implements git.RemoteRepo.
type Remote struct {
	// OnCall, when set, is invoked after each call is
	// recorded and before it is served.
	OnCall func(Call)

	// DefaultMergeable is reported once a pair's
	// mergeability script is exhausted.
	DefaultMergeable git.Mergeable

	// DefaultMerge is returned once a pair's merge
	// script is exhausted.
	DefaultMerge bool

	mu         sync.Mutex
	branches   map[string]string
	tags       map[string]string
	prs        map[int]*pullRequest
	mergeable  map[pair][]git.Mergeable
	merges     map[pair][]bool
	failures   map[Op]error
	calls      []Call
	nextNumber int
	nextCommit int
}

var _ git.RemoteRepo = (*Remote)(nil)

// New returns an empty remote whose pull requests are
// mergeable and merge on first attempt.
func New() *Remote {
	return &Remote{
		DefaultMergeable: git.MergeableTrue,
		DefaultMerge:     true,
		branches:         make(map[string]string),
		tags:             make(map[string]string),
		prs:              make(map[int]*pullRequest),
		mergeable:        make(map[pair][]git.Mergeable),
		merges:           make(map[pair][]bool),
		failures:         make(map[Op]error),
		nextNumber:       1,
		nextCommit:       1,
	}
}

// AddBranch creates or moves branch name to sha.
func (r *Remote) AddBranch(name, sha string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.branches[name] = sha
}

// AddTag creates tag name at sha.
func (r *Remote) AddTag(name, sha string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tags[name] = sha
}

// AddPullRequest opens a pull request without
// recording a call.
func (r *Remote) AddPullRequest(
	source string,
	target string,
	body string,
) git.PullRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.open(source, target, body).pr
}

// ScriptMergeable queues the mergeability reported by
// successive fetches of the source/target pull request.
func (r *Remote) ScriptMergeable(
	source string,
	target string,
	states ...git.Mergeable,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := pair{source, target}
	r.mergeable[k] = append(r.mergeable[k], states...)
}

// ScriptMerge queues the results of successive merge
// attempts on the source/target pull request.
func (r *Remote) ScriptMerge(
	source string,
	target string,
	results ...bool,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := pair{source, target}
	r.merges[k] = append(r.merges[k], results...)
}

// FailOn makes every call to op return err. A nil err
// clears the failure.
func (r *Remote) FailOn(op Op, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil {
		delete(r.failures, op)

		return
	}

	r.failures[op] = err
}

// Branch returns the commit branch name points at.
func (r *Remote) Branch(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sha, ok := r.branches[name]

	return sha, ok
}

// Tag returns the commit tag name points at.
func (r *Remote) Tag(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sha, ok := r.tags[name]

	return sha, ok
}

// Tags returns the tag names, sorted.
func (r *Remote) Tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.tags))
	for n := range r.tags {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// PullRequests returns every pull request ever opened,
// in creation order.
func (r *Remote) PullRequests() []git.PullRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]git.PullRequest, 0, len(r.prs))
	for n := 1; n < r.nextNumber; n++ {
		if p, ok := r.prs[n]; ok {
			out = append(out, p.pr)
		}
	}

	return out
}

// Merged reports whether pull request number merged.
func (r *Remote) Merged(number int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.prs[number]

	return ok && p.merged
}

// Calls returns how many times op was invoked.
func (r *Remote) Calls(op Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, c := range r.calls {
		if c.Op == op {
			n++
		}
	}

	return n
}

// Log returns every recorded call in order.
func (r *Remote) Log() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Call(nil), r.calls...)
}

// record logs the call and returns the injected
// failure for op, if any. It must be called without
// holding mu.
func (r *Remote) record(op Op, args ...string) error {
	c := Call{Op: op, Args: args}

	r.mu.Lock()
	r.calls = append(r.calls, c)
	err := r.failures[op]
	hook := r.OnCall
	r.mu.Unlock()

	if hook != nil {
		hook(c)
	}

	return err
}

// FindOpenPullRequest returns the oldest open pull
// request from source into target.
func (r *Remote) FindOpenPullRequest(
	ctx context.Context,
	source string,
	target string,
) (*git.PullRequest, error) {
	if err := r.record(
		OpFindOpenPullRequest, source, target,
	); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for n := 1; n < r.nextNumber; n++ {
		p, ok := r.prs[n]
		if !ok || !p.open {
			continue
		}

		if p.pr.Head == source && p.pr.Base == target {
			pr := p.pr

			return &pr, nil
		}
	}

	return nil, nil
}

// CreatePullRequest opens a pull request. It is
// rejected when either branch is missing or a pull
// request for the pair is already open.
func (r *Remote) CreatePullRequest(
	ctx context.Context,
	source string,
	target string,
	title string,
	body string,
) (*git.PullRequest, error) {
	if err := r.record(
		OpCreatePullRequest, source, target, title,
	); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range []string{source, target} {
		if _, ok := r.branches[b]; !ok {
			return nil, fmt.Errorf(
				"%w: branch %q does not exist",
				git.ErrCreateFailed, b,
			)
		}
	}

	for _, p := range r.prs {
		if p.open && p.pr.Head == source && p.pr.Base == target {
			return nil, fmt.Errorf(
				"%w: a pull request already exists for %s:%s",
				git.ErrCreateFailed, source, target,
			)
		}
	}

	if body == "" {
		body = title
	}

	pr := r.open(source, target, body).pr

	return &pr, nil
}

func (r *Remote) open(
	source string,
	target string,
	body string,
) *pullRequest {
	n := r.nextNumber
	r.nextNumber++

	p := &pullRequest{
		pr: git.PullRequest{
			Number: n,
			Head:   source,
			Base:   target,
			URL:    "https://fake.example/pulls/" + strconv.Itoa(n),
			Body:   body,
		},
		open: true,
	}

	r.prs[n] = p

	return p
}

// FetchPullRequest returns the pull request with the
// next scripted mergeability. Closed pull requests are
// never mergeable.
func (r *Remote) FetchPullRequest(
	ctx context.Context,
	number int,
) (*git.PullRequest, error) {
	if err := r.record(
		OpFetchPullRequest, strconv.Itoa(number),
	); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.prs[number]
	if !ok {
		return nil, nil
	}

	pr := p.pr

	switch {
	case p.merged:
		pr.Mergeable = git.MergeableFalse
		pr.MergeableState = "merged"
	case !p.open:
		pr.Mergeable = git.MergeableFalse
		pr.MergeableState = "closed"
	default:
		pr.Mergeable = r.nextMergeable(pair{pr.Head, pr.Base})
		pr.MergeableState = mergeableState(pr.Mergeable)
	}

	return &pr, nil
}

func (r *Remote) nextMergeable(k pair) git.Mergeable {
	q := r.mergeable[k]
	if len(q) == 0 {
		return r.DefaultMergeable
	}

	r.mergeable[k] = q[1:]

	return q[0]
}

func mergeableState(m git.Mergeable) string {
	switch m {
	case git.MergeableTrue:
		return "clean"
	case git.MergeableFalse:
		return "blocked"
	default:
		return "unknown"
	}
}

// AttemptMerge merges an open pull request according
// to the merge script. A merge advances the target
// branch to a new commit and closes the pull request.
func (r *Remote) AttemptMerge(
	ctx context.Context,
	number int,
) (bool, error) {
	if err := r.record(
		OpAttemptMerge, strconv.Itoa(number),
	); err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.prs[number]
	if !ok || !p.open {
		return false, nil
	}

	k := pair{p.pr.Head, p.pr.Base}

	ok = r.DefaultMerge
	if q := r.merges[k]; len(q) > 0 {
		ok = q[0]
		r.merges[k] = q[1:]
	}

	if !ok {
		return false, nil
	}

	p.open = false
	p.merged = true
	r.branches[p.pr.Base] = fmt.Sprintf("merge-%d", r.nextCommit)
	r.nextCommit++

	return true, nil
}

// ResolveBranchCommit returns the commit of branch or
// "" when it does not exist.
func (r *Remote) ResolveBranchCommit(
	ctx context.Context,
	branch string,
) (string, error) {
	if err := r.record(
		OpResolveBranchCommit, branch,
	); err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.branches[branch], nil
}

// CreateBranch creates branch name at fromCommit. It
// returns false when the branch exists.
func (r *Remote) CreateBranch(
	ctx context.Context,
	name string,
	fromCommit string,
) (bool, error) {
	if err := r.record(
		OpCreateBranch, name, fromCommit,
	); err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.branches[name]; ok {
		return false, nil
	}

	r.branches[name] = fromCommit

	return true, nil
}

// CreateTag creates tag name at atCommit. It returns
// false when the tag exists.
func (r *Remote) CreateTag(
	ctx context.Context,
	name string,
	atCommit string,
) (bool, error) {
	if err := r.record(
		OpCreateTag, name, atCommit,
	); err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tags[name]; ok {
		return false, nil
	}

	r.tags[name] = atCommit

	return true, nil
}
