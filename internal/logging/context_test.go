package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ExecutionID(ctx))
	assert.Empty(t, StepID(ctx))
	assert.Empty(t, Workflow(ctx))

	ctx = WithIDs(ctx, "pipeline", "exec-1", "step-a")
	assert.Equal(t, "pipeline", Workflow(ctx))
	assert.Equal(t, "exec-1", ExecutionID(ctx))
	assert.Equal(t, "step-a", StepID(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithIDs(context.Background(), "pipeline", "exec-1", "")
	LogWith(ctx, logger).Info("hello")

	out := buf.String()
	assert.Contains(t, out, `"workflow":"pipeline"`)
	assert.Contains(t, out, `"execution_id":"exec-1"`)
	assert.NotContains(t, out, "step_id")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithIDs(context.Background(), "pipeline", "exec-2", "step-b")
	logger.InfoContext(ctx, "running")

	out := buf.String()
	assert.Contains(t, out, `"execution_id":"exec-2"`)
	assert.Contains(t, out, `"step_id":"step-b"`)
}
