package speech

import (
	"context"
	"math"
	"time"
)

const maxRetryAfter = 30 * time.Second

// RetryPolicy controls how often and how patiently a chunk is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Jitter is the largest random fraction of the delay added on top.
	Jitter float64
}

// DefaultRetryPolicy returns the policy used for every chunk.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   700 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Jitter:      0.3,
	}
}

// Backoff returns the wait before the attempt following attempt (1-based).
// rnd must return a value in [0,1). A server Retry-After hint longer than
// the computed delay wins, capped at thirty seconds.
func (p RetryPolicy) Backoff(attempt int, retryAfter time.Duration, rnd func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 && rnd != nil {
		d += time.Duration(float64(d) * p.Jitter * rnd())
	}
	if retryAfter > d {
		d = retryAfter
		if d > maxRetryAfter {
			d = maxRetryAfter
		}
	}
	return d
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
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
