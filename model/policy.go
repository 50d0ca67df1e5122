package model

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// RetryPolicy controls how a chain link retries a failing model.
type RetryPolicy struct {
	// MaxAttempts includes the first call. Must be >= 1.
	MaxAttempts int

	// BaseDelay is doubled per attempt and capped at MaxDelay. A random
	// jitter in [0, BaseDelay) is added.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Retryable decides whether an error is worth another attempt. Nil
	// retries everything except context errors.
	Retryable func(error) bool
}

// DefaultRetryPolicy makes two attempts per link with a short backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Validate checks the policy bounds.
func (rp RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

func (rp RetryPolicy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if rp.Retryable == nil {
		return true
	}
	return rp.Retryable(err)
}

// computeBackoff returns the delay before retry number attempt (0-based).
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base * (1 << attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	}
	return delay + jitter
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
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
