package executors

import (
	"context"
	"reflect"
	"sort"

	"github.com/rendis/stepflow/internal/expressions"
	"github.com/rendis/stepflow/pkg/schema"
)

// ScriptExecutor performs the script step kind: inline computation over a
// copy of the variable scope. Scripts are a restricted expression language
// (expr-lang) with no host capabilities: no I/O, no process access.
//
// Config:
//   - bindings: map of variable name to expression. Bindings are evaluated in
//     sorted name order against the scope copy; earlier bindings are visible
//     to later ones. Every binding that is new or changed relative to the
//     input scope becomes part of the output delta.
//   - result: optional expression producing the step's result value
//     (defaults to the delta).
type ScriptExecutor struct {
	engine *expressions.ExprEngine
}

// NewScriptExecutor creates a new script executor.
func NewScriptExecutor(engine *expressions.ExprEngine) *ScriptExecutor {
	return &ScriptExecutor{engine: engine}
}

func (e *ScriptExecutor) Kind() schema.StepKind { return schema.StepKindScript }

func (e *ScriptExecutor) Execute(ctx context.Context, input Input) (*Output, error) {
	bindings := mapParam(input.Config, "bindings")
	resultExpr := stringParam(input.Config, "result", "")
	if len(bindings) == 0 && resultExpr == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "script: config needs 'bindings' and/or 'result'")
	}

	// Work on a copy so the shared scope is never touched.
	scope := make(map[string]any, len(input.Variables))
	for k, v := range input.Variables {
		scope[k] = v
	}

	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	delta := make(map[string]any)
	for _, name := range names {
		exprStr, ok := bindings[name].(string)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "script: binding %q is not an expression string", name)
		}
		val, err := e.engine.Evaluate(ctx, exprStr, scope)
		if err != nil {
			return nil, err
		}

		prev, existed := input.Variables[name]
		if !existed || !reflect.DeepEqual(prev, val) {
			delta[name] = val
		}
		scope[name] = val
	}

	var result any = delta
	if resultExpr != "" {
		val, err := e.engine.Evaluate(ctx, resultExpr, scope)
		if err != nil {
			return nil, err
		}
		result = val
	}

	return &Output{Result: result, Delta: delta}, nil
}

var _ Executor = (*ScriptExecutor)(nil)
