package executors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelay_SleepsForDuration(t *testing.T) {
	start := time.Now()
	out, err := NewDelayExecutor().Execute(context.Background(), Input{
		Config: map[string]any{"duration": "30ms"},
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Nil(t, out.Delta)
}

func TestDelay_MissingDuration(t *testing.T) {
	_, err := NewDelayExecutor().Execute(context.Background(), Input{Config: map[string]any{}})
	require.Error(t, err)
}

func TestDelay_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewDelayExecutor().Execute(ctx, Input{
		Config: map[string]any{"duration": "5s"},
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
