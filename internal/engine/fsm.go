package engine

import (
	"github.com/rendis/stepflow/pkg/schema"
)

// ValidExecutionTransitions defines the allowed state transitions for executions.
var ValidExecutionTransitions = map[schema.ExecutionStatus][]schema.ExecutionStatus{
	schema.ExecutionStatusPending:   {schema.ExecutionStatusRunning, schema.ExecutionStatusCancelled},
	schema.ExecutionStatusRunning:   {schema.ExecutionStatusPaused, schema.ExecutionStatusCompleted, schema.ExecutionStatusFailed, schema.ExecutionStatusCancelled},
	schema.ExecutionStatusPaused:    {schema.ExecutionStatusRunning, schema.ExecutionStatusCancelled, schema.ExecutionStatusFailed},
	schema.ExecutionStatusCompleted: {},
	schema.ExecutionStatusFailed:    {},
	schema.ExecutionStatusCancelled: {},
}

// ValidStepTransitions defines the allowed state transitions for steps.
var ValidStepTransitions = map[schema.StepStatus][]schema.StepStatus{
	schema.StepStatusPending:   {schema.StepStatusRunning, schema.StepStatusSkipped},
	schema.StepStatusRunning:   {schema.StepStatusCompleted, schema.StepStatusFailed},
	schema.StepStatusCompleted: {},
	schema.StepStatusFailed:    {},
	schema.StepStatusSkipped:   {},
}

// ValidateExecutionTransition checks an execution state transition against the table.
func ValidateExecutionTransition(from, to schema.ExecutionStatus) error {
	for _, a := range ValidExecutionTransitions[from] {
		if a == to {
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeInvalidTransition,
		"invalid execution transition: %s -> %s", from, to).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

// ValidateStepTransition checks a step state transition against the table.
func ValidateStepTransition(stepID string, from, to schema.StepStatus) error {
	for _, a := range ValidStepTransitions[from] {
		if a == to {
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeInvalidTransition,
		"invalid step transition: %s -> %s", from, to).
		WithStep(stepID).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}
