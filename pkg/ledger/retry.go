package ledger

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultRetryAttempts  = 5
	defaultRetryBaseDelay = 10 * time.Millisecond
)

// RetryPolicy bounds how often a unit of work is re-run after ErrPersistenceConflict.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: defaultRetryAttempts, BaseDelay: defaultRetryBaseDelay}
}

// Run invokes fn until it succeeds, returns a non-retryable error, or the attempts run out.
// Delays grow linearly with the attempt number and honour ctx cancellation.
func (policy RetryPolicy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}
		if err := policy.wait(ctx, attempt); err != nil {
			return err
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

func (policy RetryPolicy) wait(ctx context.Context, attempt int) error {
	delay := time.Duration(attempt+1) * policy.BaseDelay
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RunInTx runs fn inside store.WithTx and re-runs the whole unit on retryable conflicts.
func RunInTx(ctx context.Context, store Store, policy RetryPolicy, fn func(ctx context.Context, txStore Store) error) error {
	return policy.Run(ctx, func(ctx context.Context) error {
		return store.WithTx(ctx, fn)
	})
}
