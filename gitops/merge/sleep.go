package merge

import (
	"context"
	"time"
)

// SleepFunc suspends the caller for d. It returns
// early with the context error when ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the timer based SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
