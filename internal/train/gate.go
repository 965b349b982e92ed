package train

import (
	"context"
	"fmt"
)

// Gate is an externally-supplied quality-gate predicate (spec §4.8 gate
// step, §9 Open Questions: "the exact set of quality gates is declared
// externally; the core must not hard-code them"). Workspace is the name of
// the working copy under test.
type Gate interface {
	Name() string
	Check(ctx context.Context, workspace string) (bool, string, error)
}

// FuncGate adapts a plain function to the Gate interface, the way the
// teacher's gate.Gate struct wraps an AutoCheck func — except here the
// predicate itself, not a file-marker, is the source of truth, since zjj
// gates run in a batch train rather than an interactive hook session.
type FuncGate struct {
	GateName string
	Fn       func(ctx context.Context, workspace string) (bool, string, error)
}

func (g FuncGate) Name() string { return g.GateName }

func (g FuncGate) Check(ctx context.Context, workspace string) (bool, string, error) {
	return g.Fn(ctx, workspace)
}

// Registry resolves configured gate names (spec §6 train.gates) to Gate
// implementations in the order configured. Registration order has no
// bearing on evaluation order — only the names list passed to Ordered does.
type Registry struct {
	gates map[string]Gate
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{gates: make(map[string]Gate)}
}

// Register adds g under its own Name(), overwriting any prior registration
// of the same name.
func (r *Registry) Register(g Gate) {
	r.gates[g.Name()] = g
}

// Ordered resolves names to Gates in the given order, failing if any name
// is unregistered — an operator-configured gate name that doesn't exist is
// a configuration error, not a silently-skipped no-op.
func (r *Registry) Ordered(names []string) ([]Gate, error) {
	out := make([]Gate, 0, len(names))
	for _, name := range names {
		g, ok := r.gates[name]
		if !ok {
			return nil, fmt.Errorf("unknown quality gate %q", name)
		}
		out = append(out, g)
	}
	return out, nil
}
