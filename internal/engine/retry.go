package engine

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rendis/stepflow/pkg/schema"
)

// nonRetryableCodes are error codes that re-running the step cannot fix.
var nonRetryableCodes = map[string]bool{
	schema.ErrCodeValidation:        true,
	schema.ErrCodeNotFound:          true,
	schema.ErrCodeConflict:          true,
	schema.ErrCodeInvalidTransition: true,
	schema.ErrCodeCancelled:         true,
}

// IsRetryableError classifies whether a step error should be retried.
// Retryable by default: network errors, timeouts, context.DeadlineExceeded.
// Non-retryable: validation errors, missing resources, cancellation.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Attempt timeout is retryable (step-level deadline, not run-level).
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Context cancelled is NOT retryable, the run is shutting down.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var flowErr *schema.FlowError
	if errors.As(err, &flowErr) {
		if nonRetryableCodes[flowErr.Code] {
			return false
		}
		return true
	}

	// Network errors are retryable.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// String heuristics for common retryable patterns.
	msg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"eof",
		"temporary failure",
		"i/o timeout",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"internal server error",
		"too many requests",
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	// Default: retryable, the retry policy caps attempts.
	return true
}

// RetryDelay returns the wait between attempts for the given policy.
func RetryDelay(policy *schema.RetryPolicy) time.Duration {
	if policy == nil || policy.Delay == "" {
		return 0
	}
	d, err := time.ParseDuration(policy.Delay)
	if err != nil {
		return 0
	}
	return d
}

// MaxAttempts returns how many times a step may run under the given policy.
// A nil policy or a max_attempts below one means a single attempt.
func MaxAttempts(policy *schema.RetryPolicy) int {
	if policy == nil || policy.MaxAttempts < 1 {
		return 1
	}
	return policy.MaxAttempts
}

// WaitForRetry sleeps for the retry delay or returns early if the context is
// cancelled. Returns an error if the context was cancelled during the wait.
func WaitForRetry(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
