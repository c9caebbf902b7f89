package rules

import "context"

// Engine evaluates rule expressions against wizard state.
// Three implementations: CEL (requiredness and applicability predicates),
// Expr (field logic rules), GoJQ (hydration and projection mappings).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
