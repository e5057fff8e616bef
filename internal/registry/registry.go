// Package registry maps entry-point kind names to their declared
// input/output schemas and invocation functions. The executor resolves every
// node's kind through a Registry; macro kinds register here exactly like
// plain transforms, their invoke closures just happen to compile and run
// nested graphs.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vk/gridml/internal/env"
	"github.com/vk/gridml/internal/pipeline"
)

// Values carries the bound inputs into, and produced outputs out of, one
// entry-point invocation, keyed by declared parameter name.
type Values map[string]any

// InvokeFunc executes one entry point against resolved input values.
type InvokeFunc func(ctx context.Context, e *env.Environment, in Values) (Values, error)

// EntryPoint is a registered node kind: its schema plus the function the
// executor calls.
type EntryPoint struct {
	Kind    string
	Inputs  []pipeline.Param
	Outputs []pipeline.Param
	Run     InvokeFunc
}

// Spec returns the entry point's schema as a node spec for graph authoring.
func (ep *EntryPoint) Spec() pipeline.NodeSpec {
	return pipeline.NodeSpec{Kind: ep.Kind, Inputs: ep.Inputs, Outputs: ep.Outputs}
}

// Module is the interface all entry-point module packages implement to be
// registered into an application's registry.
type Module interface {
	Register(r *Registry)
}

// Registry holds all registered entry points for a single application
// instance. It is populated once at startup and read-only afterwards.
type Registry struct {
	entries map[string]*EntryPoint
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*EntryPoint)}
}

// Register adds an entry point. Registering the same kind twice is a
// programmer error and panics.
func (r *Registry) Register(ep *EntryPoint) {
	if _, exists := r.entries[ep.Kind]; exists {
		panic(fmt.Sprintf("entry point with kind '%s' already registered", ep.Kind))
	}
	slog.Debug("Registering entry point.", "kind", ep.Kind)
	r.entries[ep.Kind] = ep
}

// Resolve returns the entry point for a kind.
func (r *Registry) Resolve(kind string) (*EntryPoint, error) {
	ep, ok := r.entries[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entry-point kind %q", kind)
	}
	return ep, nil
}

// Kinds returns the registered kind names, for diagnostics.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	return out
}
