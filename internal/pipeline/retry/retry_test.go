package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient failure")
var errPermanent = errors.New("permanent failure")

func TestPolicy_Do(t *testing.T) {
	tests := []struct {
		name          string
		policy        Policy
		failures      int
		failWith      error
		expectErr     error
		expectedCalls int
		description   string
	}{
		{
			name:          "succeeds first attempt",
			policy:        Policy{MaxAttempts: 2},
			failures:      0,
			expectErr:     nil,
			expectedCalls: 1,
			description:   "should not retry after success",
		},
		{
			name:          "retries transient error once",
			policy:        Policy{MaxAttempts: 2, Retryable: func(err error) bool { return errors.Is(err, errTransient) }},
			failures:      1,
			failWith:      errTransient,
			expectErr:     nil,
			expectedCalls: 2,
			description:   "should retry and then succeed",
		},
		{
			name:          "exhausts attempts",
			policy:        Policy{MaxAttempts: 2},
			failures:      5,
			failWith:      errTransient,
			expectErr:     errTransient,
			expectedCalls: 2,
			description:   "should surface last error after max attempts",
		},
		{
			name:          "does not retry non-retryable error",
			policy:        Policy{MaxAttempts: 3, Retryable: func(err error) bool { return errors.Is(err, errTransient) }},
			failures:      5,
			failWith:      errPermanent,
			expectErr:     errPermanent,
			expectedCalls: 1,
			description:   "should stop on first non-retryable error",
		},
		{
			name:          "zero attempts runs once",
			policy:        Policy{MaxAttempts: 0},
			failures:      0,
			expectErr:     nil,
			expectedCalls: 1,
			description:   "should clamp attempts to at least one",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := tt.policy.Do(context.Background(), func(_ context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			})

			if !errors.Is(err, tt.expectErr) {
				t.Errorf("expected error %v, got %v: %s", tt.expectErr, err, tt.description)
			}
			if calls != tt.expectedCalls {
				t.Errorf("expected %d calls, got %d: %s", tt.expectedCalls, calls, tt.description)
			}
		})
	}
}

func TestPolicy_Do_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := Policy{MaxAttempts: 3, Backoff: 10 * time.Millisecond}
	calls := 0
	err := policy.Do(ctx, func(_ context.Context) error {
		calls++
		return errTransient
	})

	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if calls > 1 {
		t.Errorf("expected no retries after cancellation, got %d calls", calls)
	}
}
