package engine

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/stepflow/pkg/schema"
)

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.True(t, IsRetryableError(context.DeadlineExceeded))
	assert.False(t, IsRetryableError(context.Canceled))

	assert.False(t, IsRetryableError(schema.NewError(schema.ErrCodeValidation, "bad config")))
	assert.False(t, IsRetryableError(schema.NewError(schema.ErrCodeNotFound, "missing")))
	assert.False(t, IsRetryableError(schema.NewError(schema.ErrCodeCancelled, "stopping")))
	assert.True(t, IsRetryableError(schema.NewError(schema.ErrCodeExecution, "upstream hiccup")))
	assert.True(t, IsRetryableError(schema.NewError(schema.ErrCodeTimeout, "slow")))

	assert.True(t, IsRetryableError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.True(t, IsRetryableError(errors.New("connection refused")))
	assert.True(t, IsRetryableError(errors.New("503 Service Unavailable")))
	assert.True(t, IsRetryableError(errors.New("something unexpected")))
}

func TestMaxAttempts(t *testing.T) {
	assert.Equal(t, 1, MaxAttempts(nil))
	assert.Equal(t, 1, MaxAttempts(&schema.RetryPolicy{MaxAttempts: 0}))
	assert.Equal(t, 3, MaxAttempts(&schema.RetryPolicy{MaxAttempts: 3}))
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, time.Duration(0), RetryDelay(nil))
	assert.Equal(t, time.Duration(0), RetryDelay(&schema.RetryPolicy{MaxAttempts: 2}))
	assert.Equal(t, time.Duration(0), RetryDelay(&schema.RetryPolicy{MaxAttempts: 2, Delay: "bogus"}))
	assert.Equal(t, 250*time.Millisecond, RetryDelay(&schema.RetryPolicy{MaxAttempts: 2, Delay: "250ms"}))
}

func TestWaitForRetry(t *testing.T) {
	assert.NoError(t, WaitForRetry(context.Background(), 0))
	assert.NoError(t, WaitForRetry(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WaitForRetry(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
