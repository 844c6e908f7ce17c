package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/piclocate/piclocate-engine/pkg/retry"
)

// explicitError implements retry.RetryableError so callers can declare
// retryability directly instead of relying on retry.IsRetryable's string
// pattern matching. pkg/search/verify.go's reformatRetry follows this same
// shape.
type explicitError struct {
	msg       string
	retryable bool
}

func (e explicitError) Error() string     { return e.msg }
func (e explicitError) IsRetryable() bool { return e.retryable }

// TestIsRetryable_ExplicitInterface verifies that retry.IsRetryable
// defers to an error's own IsRetryable() method when it implements
// retry.RetryableError, regardless of its message text.
func TestIsRetryable_ExplicitInterface(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"explicit retryable", explicitError{msg: "server error", retryable: true}, true},
		{"explicit non-retryable", explicitError{msg: "authentication failed", retryable: false}, false},
		{"pattern match on plain error (503)", errors.New("http request failed: 503"), true},
		{"pattern match on plain error (rate limit)", errors.New("rate limit exceeded"), true},
		{"no pattern match", errors.New("invalid argument"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retry.IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

// TestIsRetryable_WrappedExplicitError verifies that wrapping an explicit
// RetryableError loses the interface (errors.As isn't used by IsRetryable)
// but pattern matching can still catch it if the message matches.
func TestIsRetryable_WrappedExplicitError(t *testing.T) {
	base := explicitError{msg: "server error: 503", retryable: true}
	wrapped := errors.New("operation failed: " + base.Error())

	if !retry.IsRetryable(wrapped) {
		t.Error("expected wrapped error containing '503' to match pattern-based retryability")
	}
}

// TestDoIfRetryable_WithExplicitError verifies that DoIfRetryable retries
// explicitly-retryable errors and fails immediately on explicitly
// non-retryable ones.
func TestDoIfRetryable_WithExplicitError(t *testing.T) {
	cfg := &retry.Config{
		MaxRetries:   3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}

	t.Run("retries retryable error", func(t *testing.T) {
		callCount := 0
		err := retry.DoIfRetryable(context.Background(), cfg, func() error {
			callCount++
			if callCount < 3 {
				return explicitError{msg: "server error", retryable: true}
			}
			return nil
		})

		if err != nil {
			t.Errorf("expected success after retries, got %v", err)
		}
		if callCount != 3 {
			t.Errorf("expected 3 calls, got %d", callCount)
		}
	})

	t.Run("fails immediately on non-retryable error", func(t *testing.T) {
		callCount := 0
		expectedErr := explicitError{msg: "authentication failed", retryable: false}
		err := retry.DoIfRetryable(context.Background(), cfg, func() error {
			callCount++
			return expectedErr
		})

		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if callCount != 1 {
			t.Errorf("expected 1 call (no retries), got %d", callCount)
		}
	})
}
