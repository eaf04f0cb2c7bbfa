package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepflow/pkg/schema"
)

func TestJSONSchemaValidator(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	t.Run("valid document", func(t *testing.T) {
		assert.NoError(t, v.ValidateDocument(validDefinition()))
	})

	t.Run("nil document", func(t *testing.T) {
		assert.Error(t, v.ValidateDocument(nil))
	})

	t.Run("missing name", func(t *testing.T) {
		def := validDefinition()
		def.Name = ""
		err := v.ValidateDocument(def)
		require.Error(t, err)
		assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
	})

	t.Run("kind outside enum", func(t *testing.T) {
		def := validDefinition()
		def.Steps[0].Kind = "rocket_launch"
		err := v.ValidateDocument(def)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema violation")
	})

	t.Run("empty steps array", func(t *testing.T) {
		def := validDefinition()
		def.Steps = []schema.WorkflowStep{}
		assert.Error(t, v.ValidateDocument(def))
	})

	t.Run("malformed timeout", func(t *testing.T) {
		def := validDefinition()
		def.Timeout = "later"
		assert.Error(t, v.ValidateDocument(def))
	})

	t.Run("retry without max_attempts", func(t *testing.T) {
		def := validDefinition()
		def.Steps[0].Retry = &schema.RetryPolicy{}
		assert.Error(t, v.ValidateDocument(def))
	})

	t.Run("valid timeout and retry", func(t *testing.T) {
		def := validDefinition()
		def.Timeout = "5m"
		def.Steps[0].Timeout = "30s"
		def.Steps[0].Retry = &schema.RetryPolicy{MaxAttempts: 2, Delay: "1s"}
		assert.NoError(t, v.ValidateDocument(def))
	})
}
