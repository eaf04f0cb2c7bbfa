package schema

// WorkflowDefinition is the immutable declarative graph a user authors.
// Definitions are keyed by Name; updates replace the whole definition.
type WorkflowDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Version     string         `json:"version,omitempty"`
	Steps       []WorkflowStep `json:"steps"`
	Variables   map[string]any `json:"variables,omitempty"`
	Timeout     string         `json:"timeout,omitempty"` // workflow-level deadline (e.g. "10m")
}

// WorkflowStep describes a single node in a definition.
type WorkflowStep struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Kind      StepKind       `json:"kind"`
	Config    map[string]any `json:"config,omitempty"`     // interpreted by the matching executor
	DependsOn []string       `json:"depends_on,omitempty"` // step IDs that must complete first
	Timeout   string         `json:"timeout,omitempty"`    // per-attempt timeout (e.g. "30s")
	Retry     *RetryPolicy   `json:"retry,omitempty"`
	Condition string         `json:"condition,omitempty"` // CEL expression over the variable scope
}

// StepKind enumerates the executable kinds of steps.
type StepKind string

const (
	StepKindAgentCall   StepKind = "agent_call"
	StepKindToolCall    StepKind = "tool_call"
	StepKindHTTPRequest StepKind = "http_request"
	StepKindDelay       StepKind = "delay"
	StepKindScript      StepKind = "script"
)

// ValidStepKinds is the set of recognized step kinds.
var ValidStepKinds = map[StepKind]bool{
	StepKindAgentCall:   true,
	StepKindToolCall:    true,
	StepKindHTTPRequest: true,
	StepKindDelay:       true,
	StepKindScript:      true,
}

// RetryPolicy governs re-execution of a failed step.
// MaxAttempts counts the first attempt; zero or one means no retry.
type RetryPolicy struct {
	MaxAttempts int    `json:"max_attempts"`
	Delay       string `json:"delay,omitempty"` // delay between attempts (e.g. "2s")
}

// StepByID returns the step with the given ID, or nil.
func (d *WorkflowDefinition) StepByID(id string) *WorkflowStep {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}
