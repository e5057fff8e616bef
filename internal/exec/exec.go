// Package exec walks a compiled execution order, resolves each node's input
// bindings to concrete values, invokes the registered entry point, and
// stores produced values against the node's output variables. The value
// table it populates is the sole channel of inter-node communication.
package exec

import (
	"context"
	"fmt"

	"github.com/vk/gridml/internal/compile"
	"github.com/vk/gridml/internal/ctxlog"
	"github.com/vk/gridml/internal/env"
	"github.com/vk/gridml/internal/pipeline"
	"github.com/vk/gridml/internal/registry"
)

// InvocationError reports a node whose entry-point invocation failed.
// Execution halts immediately; no partial re-run or skip-on-error exists.
type InvocationError struct {
	NodeID string
	Kind   string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s (kind %s): %v", e.NodeID, e.Kind, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Executor runs compiled graphs against an entry-point registry and an
// experiment environment. Orchestration is strictly sequential: nodes are
// dispatched one at a time in dependency order, which keeps macro
// instantiation ordering deterministic. Entry points are free to use
// internal parallelism; that is opaque here.
type Executor struct {
	reg *registry.Registry
	env *env.Environment
}

// New creates an executor.
func New(reg *registry.Registry, e *env.Environment) *Executor {
	return &Executor{reg: reg, env: e}
}

// Result holds the populated value table of one completed graph execution.
type Result struct {
	graph  *pipeline.Graph
	values map[pipeline.VarID]any
}

// Value returns the execution value stored for a variable handle.
func (r *Result) Value(id pipeline.VarID) (any, bool) {
	v, ok := r.values[id]
	return v, ok
}

// Output returns the value of a named graph output.
func (r *Result) Output(name string) (any, error) {
	id, ok := r.graph.Outputs()[name]
	if !ok {
		return nil, fmt.Errorf("graph declares no output %q", name)
	}
	v, ok := r.values[id]
	if !ok {
		return nil, fmt.Errorf("output %q was not populated", name)
	}
	return v, nil
}

// Run executes the graph in the given order. bindings supplies concrete
// values for externally-bound variables; binding is permitted any time after
// compilation but the set is fixed once Run starts.
func (e *Executor) Run(ctx context.Context, g *pipeline.Graph, order compile.Order, bindings map[pipeline.VarID]any) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	if order.Version() != g.Version() {
		return nil, fmt.Errorf("graph was modified after compilation; recompile before executing")
	}

	values := make(map[pipeline.VarID]any, g.VarCount())
	for id, v := range bindings {
		values[id] = v
	}

	for _, idx := range order.Nodes {
		n := g.Nodes()[idx]
		nodeLogger := logger.With("node", n.ID())
		nodeLogger.Debug("▶️ Executing node.")

		ep, err := e.reg.Resolve(n.Spec.Kind)
		if err != nil {
			return nil, &InvocationError{NodeID: n.ID(), Kind: n.Spec.Kind, Err: err}
		}

		in, err := resolveInputs(n, values)
		if err != nil {
			return nil, &InvocationError{NodeID: n.ID(), Kind: n.Spec.Kind, Err: err}
		}

		out, err := ep.Run(ctx, e.env, in)
		if err != nil {
			nodeLogger.Error("Node execution failed.", "error", err)
			return nil, &InvocationError{NodeID: n.ID(), Kind: n.Spec.Kind, Err: err}
		}

		for _, p := range n.Spec.Outputs {
			v, ok := out[p.Name]
			if !ok {
				return nil, &InvocationError{NodeID: n.ID(), Kind: n.Spec.Kind,
					Err: fmt.Errorf("entry point produced no value for declared output %q", p.Name)}
			}
			if got, ok := pipeline.KindOf(v); !ok || got != p.Kind {
				return nil, &InvocationError{NodeID: n.ID(), Kind: n.Spec.Kind,
					Err: fmt.Errorf("output %q: declared %s, produced %T", p.Name, p.Kind, v)}
			}
			values[n.Outputs[p.Name]] = v
		}
		nodeLogger.Debug("✅ Node finished.")
	}

	return &Result{graph: g, values: values}, nil
}

// resolveInputs gathers a node's bound input values: literals directly,
// variable references from the running value table, defaults for omitted
// optional parameters.
func resolveInputs(n *pipeline.Node, values map[pipeline.VarID]any) (registry.Values, error) {
	in := make(registry.Values, len(n.Spec.Inputs))
	for _, p := range n.Spec.Inputs {
		b, bound := n.Inputs[p.Name]
		if !bound {
			if p.Default != nil {
				in[p.Name] = p.Default
			}
			continue
		}
		if b.IsLiteral() {
			in[p.Name] = b.Literal()
			continue
		}
		v, ok := values[b.Var()]
		if !ok {
			return nil, fmt.Errorf("input %q: variable %d has no value; external input not bound?", p.Name, b.Var())
		}
		in[p.Name] = v
	}
	return in, nil
}
