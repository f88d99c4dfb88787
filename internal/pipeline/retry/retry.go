package retry

import (
	"context"
	"time"
)

// Policy is an explicit, testable retry policy: how many attempts, how long to
// wait between them, and which errors are worth another try.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	Retryable   func(error) bool
}

// NoRetry runs the operation exactly once.
var NoRetry = Policy{MaxAttempts: 1}

// Do runs op until it succeeds, the policy is exhausted, or the context is
// cancelled. The last error is returned unwrapped so callers can match it
// with errors.Is.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && p.Backoff > 0 {
			timer := time.NewTimer(p.Backoff * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
	}
	return err
}
