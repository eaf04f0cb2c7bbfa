package executors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rendis/stepflow/pkg/schema"
)

// Executor performs the side-effecting call for one step kind.
// Executors never mutate the shared variable scope: they only report an
// output delta, applied by the scheduler's single-threaded merge.
type Executor interface {
	Kind() schema.StepKind
	Execute(ctx context.Context, input Input) (*Output, error)
}

// Input is the data provided to an executor at dispatch time.
// Config has already been template-substituted against Variables.
type Input struct {
	ExecutionID string
	StepID      string
	Config      map[string]any
	Variables   map[string]any
}

// Output is the result of a step execution: the step's result value plus the
// set of new/changed variable bindings it contributes to the shared scope.
type Output struct {
	Result any
	Delta  map[string]any
}

// Param helpers shared by all executor files.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func boolParam(m map[string]any, key string, defaultVal bool) bool {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

func mapParam(m map[string]any, key string) map[string]any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	mm, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return mm
}

func durationParam(m map[string]any, key string, defaultVal time.Duration) time.Duration {
	s := stringParam(m, key, "")
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

func intParam(m map[string]any, key string, defaultVal int) int {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return defaultVal
		}
		return int(i)
	default:
		return defaultVal
	}
}
