package merge_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/branch_promoter/gitops/merge"
)

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()

	p := merge.DefaultPolicy()

	require.NoError(t, p.Validate())
	assert.Equal(t, 8, p.MaxAttempts)
	assert.Equal(t, 15*time.Second, p.RetryInterval)
	assert.Equal(t, 10, p.MaxPolls)
	assert.Equal(t, 3*time.Second, p.PollInterval)
}

func TestPolicy_Validate_reports_every_problem(t *testing.T) {
	t.Parallel()

	err := merge.Policy{
		MaxAttempts:   0,
		MaxPolls:      -1,
		RetryInterval: -time.Second,
		PollInterval:  -time.Second,
	}.Validate()

	require.Error(t, err)
	assert.ErrorContains(t, err, "max attempts")
	assert.ErrorContains(t, err, "max polls")
	assert.ErrorContains(t, err, "retry interval")
	assert.ErrorContains(t, err, "poll interval")
}

func TestSleep(t *testing.T) {
	t.Parallel()

	require.NoError(t, merge.Sleep(context.Background(), 0))
	require.NoError(
		t, merge.Sleep(context.Background(), time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, merge.Sleep(ctx, time.Hour), context.Canceled)
}
