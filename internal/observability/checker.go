package observability

import "context"

// Checker is a component reported by the readiness probe.
// Implementations must be safe for concurrent use and honor ctx.
type Checker interface {
	// Name identifies the component in the probe body (e.g. "artifact").
	Name() string
	// Check returns nil when the component is ready.
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to a named Checker.
type CheckerFunc struct {
	CheckerName string
	Fn          func(ctx context.Context) error
}

// Name implements Checker.
func (c CheckerFunc) Name() string { return c.CheckerName }

// Check implements Checker.
func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }
