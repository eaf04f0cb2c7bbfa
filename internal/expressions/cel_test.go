package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/rendis/stepflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCELEngine(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.NotNil(t, e)
	assert.Equal(t, "cel", e.Name())
}

func TestCEL_BooleanLiteral(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), "true", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_VariableAccess(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	vars := map[string]any{
		"enabled": true,
		"count":   int64(5),
	}

	t.Run("boolean field", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `vars.enabled == true`, vars)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("comparison", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `vars.count > 3`, vars)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})
}

func TestCEL_EmptyExpression(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "", nil)
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}

func TestCEL_CompileError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "vars.x >", nil)
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}

func TestCEL_EvaluateCondition(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("empty condition is met", func(t *testing.T) {
		assert.True(t, e.EvaluateCondition(ctx, "", nil))
	})

	t.Run("true condition", func(t *testing.T) {
		assert.True(t, e.EvaluateCondition(ctx, `vars.status == "ok"`, map[string]any{"status": "ok"}))
	})

	t.Run("false condition", func(t *testing.T) {
		assert.False(t, e.EvaluateCondition(ctx, `vars.status == "ok"`, map[string]any{"status": "bad"}))
	})

	t.Run("unknown identifier yields false, not error", func(t *testing.T) {
		assert.False(t, e.EvaluateCondition(ctx, `vars.missing == "x"`, map[string]any{}))
	})

	t.Run("compile error yields false", func(t *testing.T) {
		assert.False(t, e.EvaluateCondition(ctx, `vars.x ==`, map[string]any{}))
	})

	t.Run("non-boolean result yields false", func(t *testing.T) {
		assert.False(t, e.EvaluateCondition(ctx, `vars.count`, map[string]any{"count": 7}))
	})
}

func TestCEL_CacheIsConcurrencySafe(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.Evaluate(context.Background(), `vars.n + 1`, map[string]any{"n": int64(1)})
			assert.NoError(t, err)
			assert.Equal(t, int64(2), out)
		}()
	}
	wg.Wait()
}
