package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/stepflow/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// definitionSchemaJSON is the JSON Schema for WorkflowDefinition validation.
// Embedded as a constant to avoid filesystem dependencies.
const definitionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://stepflow.dev/schemas/definition.json",
  "type": "object",
  "required": ["name", "steps"],
  "properties": {
    "name": {
      "type": "string",
      "minLength": 1
    },
    "description": { "type": "string" },
    "version": { "type": "string" },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/step" }
    },
    "variables": {
      "type": "object"
    },
    "timeout": {
      "type": "string",
      "pattern": "^[0-9]+(ns|us|µs|ms|s|m|h)$"
    }
  },
  "additionalProperties": false,
  "$defs": {
    "step": {
      "type": "object",
      "required": ["id", "kind"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1
        },
        "name": { "type": "string" },
        "kind": {
          "type": "string",
          "enum": ["agent_call", "tool_call", "http_request", "delay", "script"]
        },
        "config": {},
        "depends_on": {
          "type": "array",
          "items": { "type": "string" }
        },
        "timeout": {
          "type": "string",
          "pattern": "^[0-9]+(ns|us|µs|ms|s|m|h)$"
        },
        "retry": { "$ref": "#/$defs/retry" },
        "condition": { "type": "string" }
      },
      "additionalProperties": false
    },
    "retry": {
      "type": "object",
      "required": ["max_attempts"],
      "properties": {
        "max_attempts": {
          "type": "integer",
          "minimum": 1
        },
        "delay": {
          "type": "string",
          "pattern": "^[0-9]+(ns|us|µs|ms|s|m|h)$"
        }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator validates raw definition documents against the embedded
// JSON Schema (Draft 2020-12). Safe for concurrent use.
type JSONSchemaValidator struct {
	definitionSchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a validator with the definition schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(definitionSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal definition schema: %w", err)
	}
	if err := c.AddResource("https://stepflow.dev/schemas/definition.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add definition schema resource: %w", err)
	}

	defSchema, err := c.Compile("https://stepflow.dev/schemas/definition.json")
	if err != nil {
		return nil, fmt.Errorf("compile definition schema: %w", err)
	}

	return &JSONSchemaValidator{definitionSchema: defSchema}, nil
}

// ValidateDocument validates a WorkflowDefinition structurally.
func (v *JSONSchemaValidator) ValidateDocument(def *schema.WorkflowDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow definition is nil")
	}

	doc, err := toJSONValue(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow definition").WithCause(err)
	}

	if err := v.definitionSchema.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// toJSONValue round-trips a value through JSON into the generic form the
// jsonschema library validates.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toFlowError converts a jsonschema.ValidationError into a FlowError with
// the failing instance location attached.
func toFlowError(err error) error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
	}
	loc := "/" + strings.Join(verr.InstanceLocation, "/")
	return schema.NewErrorf(schema.ErrCodeValidation, "definition schema violation at %s: %s", loc, verr.Error()).
		WithCause(err).
		WithDetails(map[string]any{"instance_location": loc})
}
