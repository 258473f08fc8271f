package app

import (
	"context"
	"time"
)

// RetryPolicy is the single backoff policy applied to durable-write and
// profile-read paths: up to MaxAttempts total, delay doubling from BaseDelay
// between attempts. Best-effort paths (vote tallying) bypass it entirely.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  int
}

// DefaultRetryPolicy is the 1s/2s ladder over 3 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}
}

// Do runs op until it succeeds, attempts are exhausted, or ctx is canceled.
// The last error is returned for the caller's observability hook; callers do
// not block user-facing flows on it.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = op(ctx); lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		if p.Multiplier > 1 {
			delay *= time.Duration(p.Multiplier)
		}
	}
	return lastErr
}
