package merge_test

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/branch_promoter/gitops/git"
	"github.com/byte4ever/branch_promoter/gitops/git/fake"
	"github.com/byte4ever/branch_promoter/gitops/merge"
	"github.com/byte4ever/branch_promoter/gitops/prtext"
)

// sleeper records requested durations without
// waiting.
type sleeper struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, d)

	return ctx.Err()
}

func (s *sleeper) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for _, c := range s.calls {
		if c == d {
			n++
		}
	}

	return n
}

func newRemote() *fake.Remote {
	r := fake.New()
	r.AddBranch("main", "m0")
	r.AddBranch("develop", "d0")
	r.AddBranch("feature/x", "f0")
	r.AddBranch("hotfix/1", "h0")
	r.AddBranch("release/2025.01.01.000000", "r0")

	return r
}

func newCoordinator(
	t *testing.T,
	remote git.RemoteRepo,
	sl *sleeper,
) *merge.Coordinator {
	t.Helper()

	co, err := merge.New(merge.Config{
		Remote:           remote,
		Policy:           merge.DefaultPolicy(),
		ProductionBranch: "main",
		Sleep:            sl.Sleep,
	})
	require.NoError(t, err)

	return co
}

func indexOf(log []fake.Call, op fake.Op) int {
	return slices.IndexFunc(log, func(c fake.Call) bool {
		return c.Op == op
	})
}

func TestPromote_existing_pull_request_is_reused(t *testing.T) {
	t.Parallel()

	remote := newRemote()
	existing := remote.AddPullRequest("feature/x", "develop", "")
	co := newCoordinator(t, remote, &sleeper{})

	out := co.Promote(
		context.Background(), "feature/x", "develop", merge.Options{},
	)

	require.True(t, out.Succeeded)
	assert.False(t, out.Created)
	assert.Equal(t, existing.Number, out.PullRequest.Number)
	assert.Zero(t, remote.Calls(fake.OpCreatePullRequest))
	assert.Len(t, remote.PullRequests(), 1)
}

func TestPromote_creates_once_before_merging(t *testing.T) {
	t.Parallel()

	remote := newRemote()
	co := newCoordinator(t, remote, &sleeper{})

	out := co.Promote(
		context.Background(),
		"feature/x",
		"develop",
		merge.Options{Kind: "feature_to_develop"},
	)

	require.True(t, out.Succeeded)
	assert.True(t, out.Created)
	assert.Equal(t, merge.ReasonNone, out.Reason)
	assert.Equal(t, 1, remote.Calls(fake.OpCreatePullRequest))

	log := remote.Log()
	assert.Less(
		t,
		indexOf(log, fake.OpCreatePullRequest),
		indexOf(log, fake.OpAttemptMerge),
	)

	prs := remote.PullRequests()
	require.Len(t, prs, 1)

	md, ok := prtext.ParseMetadata(prs[0].Body)
	require.True(t, ok)
	assert.Equal(t, "feature_to_develop", md.Kind)
}

func TestPromote_exhausts_exactly_max_attempts(t *testing.T) {
	t.Parallel()

	remote := newRemote()
	remote.DefaultMerge = false

	sl := &sleeper{}
	co := newCoordinator(t, remote, sl)

	out := co.Promote(
		context.Background(), "hotfix/1", "main", merge.Options{},
	)

	assert.False(t, out.Succeeded)
	assert.Equal(t, merge.ReasonMergeExhausted, out.Reason)
	assert.Equal(t, merge.DefaultMaxAttempts, out.Attempts)
	assert.Equal(
		t,
		merge.DefaultMaxAttempts,
		remote.Calls(fake.OpAttemptMerge),
	)
	assert.Equal(
		t,
		merge.DefaultMaxAttempts-1,
		sl.count(merge.DefaultRetryInterval),
	)
	assert.Zero(t, remote.Calls(fake.OpCreateTag))
}

func TestPromote_polling_is_bounded(t *testing.T) {
	t.Parallel()

	remote := newRemote()
	remote.DefaultMergeable = git.MergeableUnknown

	sl := &sleeper{}

	co, err := merge.New(merge.Config{
		Remote: remote,
		Policy: merge.Policy{
			MaxAttempts:   2,
			RetryInterval: time.Minute,
			MaxPolls:      3,
			PollInterval:  time.Second,
		},
		ProductionBranch: "main",
		Sleep:            sl.Sleep,
	})
	require.NoError(t, err)

	out := co.Promote(
		context.Background(), "feature/x", "develop", merge.Options{},
	)

	assert.False(t, out.Succeeded)
	assert.Equal(t, merge.ReasonMergeExhausted, out.Reason)
	assert.Equal(t, 2*(1+3), remote.Calls(fake.OpFetchPullRequest))
	assert.Equal(t, 2*3, sl.count(time.Second))
	assert.Equal(t, 1, sl.count(time.Minute))
	assert.Zero(t, remote.Calls(fake.OpAttemptMerge))
	assert.Equal(
		t, git.MergeableUnknown, out.PullRequest.Mergeable,
	)
}

func TestPromote_unknown_resolves_within_polls(t *testing.T) {
	t.Parallel()

	remote := newRemote()
	remote.ScriptMergeable(
		"feature/x", "develop",
		git.MergeableUnknown,
		git.MergeableUnknown,
		git.MergeableTrue,
	)

	sl := &sleeper{}
	co := newCoordinator(t, remote, sl)

	out := co.Promote(
		context.Background(), "feature/x", "develop", merge.Options{},
	)

	require.True(t, out.Succeeded)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 3, remote.Calls(fake.OpFetchPullRequest))
	assert.Equal(t, 2, sl.count(merge.DefaultPollInterval))
	assert.Zero(t, sl.count(merge.DefaultRetryInterval))
}

func TestPromote_release_scenario_tags_after_eighth_attempt(
	t *testing.T,
) {
	t.Parallel()

	const branch = "release/2025.01.01.000000"

	remote := newRemote()
	remote.ScriptMergeable(
		branch, "main",
		slices.Repeat([]git.Mergeable{git.MergeableFalse}, 7)...,
	)

	sl := &sleeper{}
	co := newCoordinator(t, remote, sl)

	out := co.Promote(
		context.Background(),
		branch,
		"main",
		merge.Options{TagVersion: "v1.0.0"},
	)

	require.True(t, out.Succeeded)
	assert.Equal(t, 8, out.Attempts)
	assert.Equal(t, 1, remote.Calls(fake.OpAttemptMerge))
	assert.Equal(t, 7, sl.count(merge.DefaultRetryInterval))
	assert.True(t, out.Tagged)
	assert.False(t, out.TagFailed)

	mainSHA, _ := remote.Branch("main")
	tagSHA, ok := remote.Tag("v1.0.0")

	require.True(t, ok)
	assert.NotEqual(t, "m0", mainSHA)
	assert.Equal(t, mainSHA, tagSHA)

	log := remote.Log()
	assert.Less(
		t,
		indexOf(log, fake.OpAttemptMerge),
		indexOf(log, fake.OpCreateTag),
	)
}

func TestPromote_never_tags_outside_production(t *testing.T) {
	t.Parallel()

	remote := newRemote()
	co := newCoordinator(t, remote, &sleeper{})

	out := co.Promote(
		context.Background(),
		"feature/x",
		"develop",
		merge.Options{TagVersion: "v1.0.0"},
	)

	require.True(t, out.Succeeded)
	assert.False(t, out.Tagged)
	assert.Zero(t, remote.Calls(fake.OpCreateTag))
	assert.Zero(t, remote.Calls(fake.OpResolveBranchCommit))
}

func TestPromote_never_tags_without_merge(t *testing.T) {
	t.Parallel()

	remote := newRemote()
	remote.DefaultMergeable = git.MergeableFalse

	co := newCoordinator(t, remote, &sleeper{})

	out := co.Promote(
		context.Background(),
		"hotfix/1",
		"main",
		merge.Options{TagVersion: "v1.0.0"},
	)

	assert.False(t, out.Succeeded)
	assert.Zero(t, remote.Calls(fake.OpCreateTag))
	assert.Empty(t, remote.Tags())
}

func TestPromote_tag_failure_keeps_success(t *testing.T) {
	t.Parallel()

	remote := newRemote()
	remote.AddTag("v1.0.0", "old")

	co := newCoordinator(t, remote, &sleeper{})

	out := co.Promote(
		context.Background(),
		"hotfix/1",
		"main",
		merge.Options{TagVersion: "v1.0.0"},
	)

	assert.True(t, out.Succeeded)
	assert.Equal(t, merge.ReasonNone, out.Reason)
	assert.True(t, out.TagFailed)
	assert.False(t, out.Tagged)
	assert.ErrorIs(t, out.Err, merge.ErrTagExists)

	sha, _ := remote.Tag("v1.0.0")
	assert.Equal(t, "old", sha)
}

func TestPromote_tag_remote_error_keeps_success(t *testing.T) {
	t.Parallel()

	remote := newRemote()
	remote.FailOn(fake.OpCreateTag, &git.RemoteError{
		Op:         "creating tag",
		StatusCode: 500,
	})

	co := newCoordinator(t, remote, &sleeper{})

	out := co.Promote(
		context.Background(),
		"hotfix/1",
		"main",
		merge.Options{TagVersion: "v1.0.0"},
	)

	assert.True(t, out.Succeeded)
	assert.True(t, out.TagFailed)
	assert.True(t, git.IsRemoteError(out.Err))
}

// captureLog swaps the default logger for one writing
// to the returned buffer until the test ends. Callers
// must not run in parallel.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer

	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	return &buf
}

func TestPromote_tag_failure_log_level(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fake.Remote)
		want  string
	}{
		{
			name: "existing tag",
			setup: func(r *fake.Remote) {
				r.AddTag("v1.0.0", "old")
			},
			want: "level=WARN",
		},
		{
			name: "remote error",
			setup: func(r *fake.Remote) {
				r.FailOn(fake.OpCreateTag, &git.RemoteError{
					Op:         "creating tag",
					StatusCode: 500,
				})
			},
			want: "level=ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t)

			remote := newRemote()
			tt.setup(remote)

			co := newCoordinator(t, remote, &sleeper{})

			out := co.Promote(
				context.Background(),
				"hotfix/1",
				"main",
				merge.Options{TagVersion: "v1.0.0"},
			)

			require.True(t, out.TagFailed)

			line := findLine(buf.String(), "tag creation failed")
			assert.Contains(t, line, tt.want)
		})
	}
}

func findLine(log string, msg string) string {
	for line := range strings.Lines(log) {
		if strings.Contains(line, msg) {
			return line
		}
	}

	return ""
}

func TestPromote_tag_version_from_pull_request_body(t *testing.T) {
	t.Parallel()

	const branch = "release/2025.01.01.000000"

	remote := newRemote()
	remote.AddPullRequest(branch, "main", prtext.Body(prtext.Metadata{
		Source:     branch,
		Target:     "main",
		TagVersion: "v2.0.0",
	}))

	co := newCoordinator(t, remote, &sleeper{})

	out := co.Promote(
		context.Background(), branch, "main", merge.Options{},
	)

	require.True(t, out.Succeeded)
	assert.True(t, out.Tagged)
	assert.Equal(t, "v2.0.0", out.Tag)

	_, ok := remote.Tag("v2.0.0")
	assert.True(t, ok)
}

func TestPromote_create_rejected(t *testing.T) {
	t.Parallel()

	remote := newRemote()
	co := newCoordinator(t, remote, &sleeper{})

	out := co.Promote(
		context.Background(), "feature/missing", "develop", merge.Options{},
	)

	assert.False(t, out.Succeeded)
	assert.Equal(t, merge.ReasonNoPullRequest, out.Reason)
	assert.ErrorIs(t, out.Err, git.ErrCreateFailed)
	assert.Zero(t, out.Attempts)
	assert.Zero(t, remote.Calls(fake.OpFetchPullRequest))
}

func TestPromote_skip_create(t *testing.T) {
	t.Parallel()

	remote := newRemote()
	co := newCoordinator(t, remote, &sleeper{})

	out := co.Promote(
		context.Background(),
		"feature/x",
		"develop",
		merge.Options{SkipCreate: true},
	)

	assert.Equal(t, merge.ReasonNoPullRequest, out.Reason)
	assert.NoError(t, out.Err)
	assert.Zero(t, remote.Calls(fake.OpCreatePullRequest))
}

func TestPromote_remote_error_aborts(t *testing.T) {
	t.Parallel()

	remote := newRemote()
	remote.FailOn(fake.OpFetchPullRequest, &git.RemoteError{
		Op:         "fetching pull request",
		StatusCode: 401,
		Message:    "Bad credentials",
	})

	sl := &sleeper{}
	co := newCoordinator(t, remote, sl)

	out := co.Promote(
		context.Background(), "feature/x", "develop", merge.Options{},
	)

	assert.False(t, out.Succeeded)
	assert.Equal(t, merge.ReasonRemoteError, out.Reason)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 1, remote.Calls(fake.OpFetchPullRequest))
	assert.Empty(t, sl.calls)

	var re *git.RemoteError
	require.ErrorAs(t, out.Err, &re)
	assert.Equal(t, 401, re.StatusCode)
}

func TestPromote_vanished_pull_request(t *testing.T) {
	t.Parallel()

	var merges int

	remote := git.RemoteRepoFuncs{
		FindOpenPullRequestFunc: func(
			context.Context, string, string,
		) (*git.PullRequest, error) {
			return &git.PullRequest{Number: 7}, nil
		},
		AttemptMergeFunc: func(context.Context, int) (bool, error) {
			merges++

			return true, nil
		},
	}

	co := newCoordinator(t, remote, &sleeper{})

	out := co.Promote(
		context.Background(), "feature/x", "develop", merge.Options{},
	)

	assert.Equal(t, merge.ReasonMergeExhausted, out.Reason)
	assert.Equal(t, merge.DefaultMaxAttempts, out.Attempts)
	assert.Zero(t, merges)
}

func TestPromote_canceled_while_waiting(t *testing.T) {
	t.Parallel()

	remote := newRemote()
	remote.DefaultMerge = false

	ctx, cancel := context.WithCancel(context.Background())

	co, err := merge.New(merge.Config{
		Remote:           remote,
		Policy:           merge.DefaultPolicy(),
		ProductionBranch: "main",
		Sleep: func(context.Context, time.Duration) error {
			cancel()

			return context.Canceled
		},
	})
	require.NoError(t, err)

	out := co.Promote(ctx, "feature/x", "develop", merge.Options{})

	assert.Equal(t, merge.ReasonCanceled, out.Reason)
	assert.Equal(t, 1, out.Attempts)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, 1, remote.Calls(fake.OpAttemptMerge))
}

func TestNew_validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  merge.Config
		want string
	}{
		{
			name: "no remote",
			cfg: merge.Config{
				Policy:           merge.DefaultPolicy(),
				ProductionBranch: "main",
			},
			want: "remote must be set",
		},
		{
			name: "no production branch",
			cfg: merge.Config{
				Remote: fake.New(),
				Policy: merge.DefaultPolicy(),
			},
			want: "production branch must be set",
		},
		{
			name: "zero policy",
			cfg: merge.Config{
				Remote:           fake.New(),
				ProductionBranch: "main",
			},
			want: "max attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			co, err := merge.New(tt.cfg)

			assert.Nil(t, co)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
