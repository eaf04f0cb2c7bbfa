package validation

import (
	"fmt"
	"time"

	"github.com/rendis/stepflow/pkg/schema"
)

// ValidateDefinition checks the semantic integrity of a workflow definition:
// non-empty step ids, unique ids, dependency references that resolve, no
// duplicate dependency entries, known step kinds, parseable durations and a
// sane retry policy.
//
// Cycles are deliberately not rejected here. A cyclic dependency manifests
// as a scheduling deadlock at run time, which produces a diagnostic naming
// the stuck steps; static rejection would also forbid graphs that become
// acyclic once conditions skip branches.
func ValidateDefinition(def *schema.WorkflowDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow definition is nil")
	}
	if def.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow name is required")
	}
	if len(def.Steps) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "workflow must declare at least one step")
	}
	if def.Timeout != "" {
		if _, err := time.ParseDuration(def.Timeout); err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "invalid workflow timeout %q", def.Timeout).WithCause(err)
		}
	}

	ids := make(map[string]struct{}, len(def.Steps))
	for i, step := range def.Steps {
		if step.ID == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "step at index %d has an empty id", i)
		}
		if _, dup := ids[step.ID]; dup {
			return schema.NewErrorf(schema.ErrCodeValidation, "duplicate step id %q", step.ID).WithStep(step.ID)
		}
		ids[step.ID] = struct{}{}
	}

	for _, step := range def.Steps {
		if err := validateStep(&step, ids); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step *schema.WorkflowStep, ids map[string]struct{}) error {
	if !schema.ValidStepKinds[step.Kind] {
		return schema.NewErrorf(schema.ErrCodeValidation, "step %q has unknown kind %q", step.ID, step.Kind).WithStep(step.ID)
	}

	seen := make(map[string]struct{}, len(step.DependsOn))
	for _, dep := range step.DependsOn {
		if dep == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "step %q has an empty dependency entry", step.ID).WithStep(step.ID)
		}
		if _, dup := seen[dep]; dup {
			return schema.NewErrorf(schema.ErrCodeValidation, "step %q lists dependency %q more than once", step.ID, dep).WithStep(step.ID)
		}
		seen[dep] = struct{}{}
		if _, ok := ids[dep]; !ok {
			return schema.NewErrorf(schema.ErrCodeValidation, "step %q depends on unknown step %q", step.ID, dep).WithStep(step.ID)
		}
	}

	if step.Timeout != "" {
		if _, err := time.ParseDuration(step.Timeout); err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "step %q has invalid timeout %q", step.ID, step.Timeout).WithStep(step.ID).WithCause(err)
		}
	}

	if step.Retry != nil {
		if err := validateRetry(step.Retry); err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "step %q has invalid retry policy: %v", step.ID, err).WithStep(step.ID)
		}
	}
	return nil
}

func validateRetry(policy *schema.RetryPolicy) error {
	if policy.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", policy.MaxAttempts)
	}
	if policy.Delay != "" {
		if _, err := time.ParseDuration(policy.Delay); err != nil {
			return fmt.Errorf("invalid delay %q: %w", policy.Delay, err)
		}
	}
	return nil
}
