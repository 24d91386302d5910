package fake_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/branch_promoter/gitops/git"
	"github.com/byte4ever/branch_promoter/gitops/git/fake"
)

func TestRemote_create_then_find(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := fake.New()
	r.AddBranch("feature/x", "f1")
	r.AddBranch("develop", "d1")

	pr, err := r.FindOpenPullRequest(ctx, "feature/x", "develop")
	require.NoError(t, err)
	assert.Nil(t, pr)

	created, err := r.CreatePullRequest(
		ctx, "feature/x", "develop", "title", "",
	)
	require.NoError(t, err)
	assert.Equal(t, 1, created.Number)
	assert.Equal(t, "title", created.Body)

	found, err := r.FindOpenPullRequest(ctx, "feature/x", "develop")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.Number, found.Number)

	_, err = r.CreatePullRequest(
		ctx, "feature/x", "develop", "again", "",
	)
	assert.ErrorIs(t, err, git.ErrCreateFailed)
}

func TestRemote_create_missing_branch(t *testing.T) {
	t.Parallel()

	r := fake.New()
	r.AddBranch("develop", "d1")

	pr, err := r.CreatePullRequest(
		context.Background(), "feature/x", "develop", "t", "b",
	)

	assert.Nil(t, pr)
	assert.ErrorIs(t, err, git.ErrCreateFailed)
}

func TestRemote_scripted_mergeability(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := fake.New()
	pr := r.AddPullRequest("a", "b", "")

	r.ScriptMergeable(
		"a", "b", git.MergeableUnknown, git.MergeableFalse,
	)

	var got []git.Mergeable

	for range 3 {
		p, err := r.FetchPullRequest(ctx, pr.Number)
		require.NoError(t, err)

		got = append(got, p.Mergeable)
	}

	assert.Equal(
		t,
		[]git.Mergeable{
			git.MergeableUnknown,
			git.MergeableFalse,
			git.MergeableTrue,
		},
		got,
	)
	assert.Equal(t, 3, r.Calls(fake.OpFetchPullRequest))
}

func TestRemote_merge_advances_base(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := fake.New()
	r.AddBranch("main", "m1")
	pr := r.AddPullRequest("hotfix/1", "main", "")

	r.ScriptMerge("hotfix/1", "main", false)

	ok, err := r.AttemptMerge(ctx, pr.Number)
	require.NoError(t, err)
	assert.False(t, ok)

	sha, _ := r.Branch("main")
	assert.Equal(t, "m1", sha)

	ok, err = r.AttemptMerge(ctx, pr.Number)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, r.Merged(pr.Number))

	sha, _ = r.Branch("main")
	assert.NotEqual(t, "m1", sha)

	found, err := r.FindOpenPullRequest(ctx, "hotfix/1", "main")
	require.NoError(t, err)
	assert.Nil(t, found)

	fetched, err := r.FetchPullRequest(ctx, pr.Number)
	require.NoError(t, err)
	assert.Equal(t, git.MergeableFalse, fetched.Mergeable)
	assert.Equal(t, "merged", fetched.MergeableState)
}

func TestRemote_tags_never_overwrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := fake.New()

	ok, err := r.CreateTag(ctx, "v1", "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CreateTag(ctx, "v1", "def")
	require.NoError(t, err)
	assert.False(t, ok)

	sha, _ := r.Tag("v1")
	assert.Equal(t, "abc", sha)
	assert.Equal(t, []string{"v1"}, r.Tags())
}

func TestRemote_fail_on_and_log(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := fake.New()
	boom := errors.New("boom")

	var hooked []fake.Op

	r.OnCall = func(c fake.Call) { hooked = append(hooked, c.Op) }
	r.FailOn(fake.OpResolveBranchCommit, boom)

	_, err := r.ResolveBranchCommit(ctx, "main")
	assert.ErrorIs(t, err, boom)

	r.FailOn(fake.OpResolveBranchCommit, nil)

	_, err = r.ResolveBranchCommit(ctx, "main")
	require.NoError(t, err)

	_, err = r.CreateBranch(ctx, "release/1", "abc")
	require.NoError(t, err)

	assert.Equal(
		t,
		[]fake.Op{
			fake.OpResolveBranchCommit,
			fake.OpResolveBranchCommit,
			fake.OpCreateBranch,
		},
		hooked,
	)
	require.Len(t, r.Log(), 3)
	assert.Equal(
		t,
		"create_branch[release/1 abc]",
		r.Log()[2].String(),
	)
}
