package executors

import (
	"context"
	"time"

	"github.com/rendis/stepflow/pkg/schema"
)

// DelayExecutor performs the delay step kind: a timed sleep used for pacing
// and backoff simulation. It produces no output delta.
type DelayExecutor struct{}

// NewDelayExecutor creates a new delay executor.
func NewDelayExecutor() *DelayExecutor {
	return &DelayExecutor{}
}

func (e *DelayExecutor) Kind() schema.StepKind { return schema.StepKindDelay }

func (e *DelayExecutor) Execute(ctx context.Context, input Input) (*Output, error) {
	duration := durationParam(input.Config, "duration", 0)
	if duration <= 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "delay: missing or invalid config 'duration'")
	}

	select {
	case <-time.After(duration):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &Output{
		Result: map[string]any{"slept": duration.String()},
	}, nil
}

var _ Executor = (*DelayExecutor)(nil)
