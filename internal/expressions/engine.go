package expressions

import "context"

// Engine evaluates expressions against generated SOP data.
// Two implementations: Expr (archive list filters), GoJQ (context projections).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
