package expressions

import "context"

// Engine evaluates expressions within workflow steps.
// Three implementations: CEL (conditions), Expr (script steps), GoJQ (extraction).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
