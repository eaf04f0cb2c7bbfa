package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/stepflow/pkg/schema"
)

func TestValidateExecutionTransition(t *testing.T) {
	valid := []struct{ from, to schema.ExecutionStatus }{
		{schema.ExecutionStatusPending, schema.ExecutionStatusRunning},
		{schema.ExecutionStatusPending, schema.ExecutionStatusCancelled},
		{schema.ExecutionStatusRunning, schema.ExecutionStatusCompleted},
		{schema.ExecutionStatusRunning, schema.ExecutionStatusFailed},
		{schema.ExecutionStatusRunning, schema.ExecutionStatusCancelled},
		{schema.ExecutionStatusRunning, schema.ExecutionStatusPaused},
		{schema.ExecutionStatusPaused, schema.ExecutionStatusRunning},
	}
	for _, tc := range valid {
		assert.NoError(t, ValidateExecutionTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	invalid := []struct{ from, to schema.ExecutionStatus }{
		{schema.ExecutionStatusPending, schema.ExecutionStatusCompleted},
		{schema.ExecutionStatusCompleted, schema.ExecutionStatusRunning},
		{schema.ExecutionStatusFailed, schema.ExecutionStatusRunning},
		{schema.ExecutionStatusCancelled, schema.ExecutionStatusRunning},
	}
	for _, tc := range invalid {
		err := ValidateExecutionTransition(tc.from, tc.to)
		assert.Error(t, err, "%s -> %s", tc.from, tc.to)
		assert.Equal(t, schema.ErrCodeInvalidTransition, schema.ErrorCode(err))
	}
}

func TestValidateStepTransition(t *testing.T) {
	assert.NoError(t, ValidateStepTransition("a", schema.StepStatusPending, schema.StepStatusRunning))
	assert.NoError(t, ValidateStepTransition("a", schema.StepStatusPending, schema.StepStatusSkipped))
	assert.NoError(t, ValidateStepTransition("a", schema.StepStatusRunning, schema.StepStatusCompleted))
	assert.NoError(t, ValidateStepTransition("a", schema.StepStatusRunning, schema.StepStatusFailed))

	// Terminal states have no exits.
	for _, from := range []schema.StepStatus{schema.StepStatusCompleted, schema.StepStatusFailed, schema.StepStatusSkipped} {
		err := ValidateStepTransition("a", from, schema.StepStatusRunning)
		assert.Error(t, err)
	}

	// Running steps cannot be skipped mid-flight.
	assert.Error(t, ValidateStepTransition("a", schema.StepStatusRunning, schema.StepStatusSkipped))
}
