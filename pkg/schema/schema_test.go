package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowErrorFormatting(t *testing.T) {
	err := NewError(ErrCodeExecution, "upstream failed")
	assert.Equal(t, "[EXECUTION_ERROR] upstream failed", err.Error())

	err = err.WithStep("fetch")
	assert.Equal(t, "[EXECUTION_ERROR] step fetch: upstream failed", err.Error())
}

func TestFlowErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("socket closed")
	err := NewError(ErrCodeExecution, "call failed").WithCause(cause)
	assert.True(t, errors.Is(err, cause))

	var fe *FlowError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &fe))
	assert.Equal(t, ErrCodeExecution, fe.Code)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeTimeout, ErrorCode(NewError(ErrCodeTimeout, "slow")))
	assert.Equal(t, ErrCodeTimeout, ErrorCode(fmt.Errorf("outer: %w", NewError(ErrCodeTimeout, "slow"))))
	assert.Empty(t, ErrorCode(errors.New("plain")))
	assert.Empty(t, ErrorCode(nil))

	assert.True(t, IsCode(NewError(ErrCodeDeadlock, "stuck"), ErrCodeDeadlock))
	assert.False(t, IsCode(errors.New("plain"), ErrCodeDeadlock))
}

func TestExecutionStatusIsTerminal(t *testing.T) {
	terminal := []ExecutionStatus{ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), string(s))
	}
	active := []ExecutionStatus{ExecutionStatusPending, ExecutionStatusRunning, ExecutionStatusPaused}
	for _, s := range active {
		assert.False(t, s.IsTerminal(), string(s))
	}
}

func TestStepStatusSatisfies(t *testing.T) {
	assert.True(t, StepStatusCompleted.Satisfies())
	assert.True(t, StepStatusSkipped.Satisfies())
	assert.False(t, StepStatusFailed.Satisfies())
	assert.False(t, StepStatusPending.Satisfies())
	assert.False(t, StepStatusRunning.Satisfies())
}

func TestStepByID(t *testing.T) {
	def := &WorkflowDefinition{
		Name: "wf",
		Steps: []WorkflowStep{
			{ID: "a", Kind: StepKindDelay},
			{ID: "b", Kind: StepKindScript},
		},
	}
	require.NotNil(t, def.StepByID("b"))
	assert.Equal(t, StepKindScript, def.StepByID("b").Kind)
	assert.Nil(t, def.StepByID("zz"))
}
