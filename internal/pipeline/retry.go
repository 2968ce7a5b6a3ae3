package pipeline

import (
	"context"
	"time"
)

// RetryPolicy runs an operation up to MaxAttempts times. Backoff returns the
// wait after the given failed attempt (1-based).
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// DefaultRetryPolicy retries the whole pipeline: 3 attempts, 1s doubling to a 5s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: ExponentialBackoff(time.Second, 5*time.Second)}
}

// DefaultImproveRetryPolicy retries question improvement: 2 attempts, 500ms apart.
func DefaultImproveRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, Backoff: FixedBackoff(500 * time.Millisecond)}
}

// ExponentialBackoff returns min(base*2^(attempt-1), ceiling).
func ExponentialBackoff(base, ceiling time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= ceiling {
				return ceiling
			}
		}
		return min(d, ceiling)
	}
}

// FixedBackoff waits d between every attempt.
func FixedBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// Do calls fn until it succeeds or the attempts are spent, sleeping per
// Backoff in between. It returns the number of attempts made and the last
// error. Cancellation of ctx stops the loop early with ctx's error.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) (int, error) {
	limit := p.MaxAttempts
	if limit < 1 {
		limit = 1
	}
	var err error
	for attempt := 1; attempt <= limit; attempt++ {
		if err = fn(attempt); err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || attempt == limit {
			return attempt, err
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return attempt, serr
		}
	}
	return limit, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
