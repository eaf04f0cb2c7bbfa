package schema

import "time"

// StepResult is the outcome of one step's execution attempts.
type StepResult struct {
	StepID          string     `json:"step_id"`
	Status          StepStatus `json:"status"`
	Result          any        `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
	Attempts        int        `json:"attempts,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ExecutionTimeMs int64      `json:"execution_time_ms,omitempty"`
}
