package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/stepflow/pkg/schema"
)

// Definition is the persisted representation of a named workflow definition.
type Definition struct {
	Name       string                    `json:"name"`
	Definition schema.WorkflowDefinition `json:"definition"`
	CreatedAt  time.Time                 `json:"created_at"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

// Execution is the persisted record of a single workflow run. The definition
// is snapshotted at start time so later edits to the named definition never
// affect a run already in flight.
type Execution struct {
	ID           string                        `json:"id"`
	WorkflowName string                        `json:"workflow_name"`
	Definition   schema.WorkflowDefinition     `json:"definition"`
	Status       schema.ExecutionStatus        `json:"status"`
	Input        map[string]any                `json:"input,omitempty"`
	Variables    map[string]any                `json:"variables,omitempty"`
	StepResults  map[string]*schema.StepResult `json:"step_results,omitempty"`
	Error        string                        `json:"error,omitempty"`
	CreatedAt    time.Time                     `json:"created_at"`
	StartedAt    *time.Time                    `json:"started_at,omitempty"`
	CompletedAt  *time.Time                    `json:"completed_at,omitempty"`
	UpdatedAt    time.Time                     `json:"updated_at"`
}

// ScheduledJob is a cron-triggered workflow start.
type ScheduledJob struct {
	ID             string          `json:"id"`
	WorkflowName   string          `json:"workflow_name"`
	CronExpression string          `json:"cron_expression"`
	Input          json.RawMessage `json:"input,omitempty"`
	Enabled        bool            `json:"enabled"`
	LastRunAt      *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time      `json:"next_run_at,omitempty"`
	LastRunStatus  string          `json:"last_run_status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// --- Filter and update types ---

// DefinitionFilter specifies criteria for listing definitions.
type DefinitionFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	WorkflowName string                  `json:"workflow_name,omitempty"`
	Status       *schema.ExecutionStatus `json:"status,omitempty"`
	Since        *time.Time              `json:"since,omitempty"`
	Limit        int                     `json:"limit,omitempty"`
	Offset       int                     `json:"offset,omitempty"`
}

// ExecutionUpdate specifies mutable fields of an execution. Nil fields are
// left untouched.
type ExecutionUpdate struct {
	Status      *schema.ExecutionStatus       `json:"status,omitempty"`
	Variables   map[string]any                `json:"variables,omitempty"`
	StepResults map[string]*schema.StepResult `json:"step_results,omitempty"`
	Error       *string                       `json:"error,omitempty"`
	StartedAt   *time.Time                    `json:"started_at,omitempty"`
	CompletedAt *time.Time                    `json:"completed_at,omitempty"`
}

// ScheduledJobUpdate specifies mutable fields of a scheduled job.
type ScheduledJobUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduledJobFilter specifies criteria for listing scheduled jobs.
type ScheduledJobFilter struct {
	WorkflowName string `json:"workflow_name,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}
