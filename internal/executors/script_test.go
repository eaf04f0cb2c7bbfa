package executors

import (
	"context"
	"testing"

	"github.com/rendis/stepflow/internal/expressions"
	"github.com/rendis/stepflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScriptExecutor() *ScriptExecutor {
	return NewScriptExecutor(expressions.NewExprEngine())
}

func TestScript_NewBindingsBecomeDelta(t *testing.T) {
	out, err := newScriptExecutor().Execute(context.Background(), Input{
		Config: map[string]any{
			"bindings": map[string]any{
				"total": "a + b",
			},
		},
		Variables: map[string]any{"a": 2, "b": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"total": 5}, out.Delta)
}

func TestScript_UnchangedBindingExcludedFromDelta(t *testing.T) {
	out, err := newScriptExecutor().Execute(context.Background(), Input{
		Config: map[string]any{
			"bindings": map[string]any{
				"kept":    "kept",      // same value as input
				"changed": "kept + 10", // differs
			},
		},
		Variables: map[string]any{"kept": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"changed": 11}, out.Delta)
}

func TestScript_BindingsSeeEarlierBindings(t *testing.T) {
	// Sorted name order: "a_base" before "b_double".
	out, err := newScriptExecutor().Execute(context.Background(), Input{
		Config: map[string]any{
			"bindings": map[string]any{
				"a_base":   "10",
				"b_double": "a_base * 2",
			},
		},
		Variables: map[string]any{},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, out.Delta["a_base"])
	assert.Equal(t, 20, out.Delta["b_double"])
}

func TestScript_ResultExpression(t *testing.T) {
	out, err := newScriptExecutor().Execute(context.Background(), Input{
		Config: map[string]any{
			"bindings": map[string]any{"n": "21"},
			"result":   "n * 2",
		},
		Variables: map[string]any{},
	})
	require.NoError(t, err)
	assert.Equal(t, 42, out.Result)
}

func TestScript_InputScopeNotMutated(t *testing.T) {
	vars := map[string]any{"x": 1}
	_, err := newScriptExecutor().Execute(context.Background(), Input{
		Config: map[string]any{
			"bindings": map[string]any{"x": "99"},
		},
		Variables: vars,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, vars["x"])
}

func TestScript_EmptyConfigRejected(t *testing.T) {
	_, err := newScriptExecutor().Execute(context.Background(), Input{Config: map[string]any{}})
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}

func TestScript_NonStringBindingRejected(t *testing.T) {
	_, err := newScriptExecutor().Execute(context.Background(), Input{
		Config: map[string]any{
			"bindings": map[string]any{"x": 5},
		},
	})
	require.Error(t, err)
}
