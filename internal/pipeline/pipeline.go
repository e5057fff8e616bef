// Package pipeline defines the core data model of the experiment-graph
// engine: typed variables, node input bindings, entry-point schemas, and the
// Graph builder that ties them together.
//
// A Graph is authored incrementally: the caller adds nodes whose inputs are
// either literals or references to previously declared variables, and each
// added node declares fresh output variables. Structural and type validation
// is deferred to the compile package so that graphs can also be built as pure
// templates (with required inputs left unbound) for later macro expansion.
package pipeline

import (
	"github.com/vk/gridml/internal/rows"
)

// Kind classifies the runtime payload a Variable can carry.
type Kind int

const (
	// KindScalar is a single value: a number, a string, or a bool.
	KindScalar Kind = iota
	// KindVector is a homogeneous sequence of scalars.
	KindVector
	// KindRowStream is a pull-based, schema-described sequence of rows.
	KindRowStream
	// KindModel is an opaque trained predictor or transform model.
	KindModel
	// KindGraph is a nested graph value, typically a macro template.
	KindGraph
)

// String returns the lower-case name used in pipeline files and diagnostics.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindVector:
		return "vector"
	case KindRowStream:
		return "rowstream"
	case KindModel:
		return "model"
	case KindGraph:
		return "graph"
	default:
		return "unknown"
	}
}

// ParseKind converts a kind name from a pipeline file back into a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "scalar":
		return KindScalar, true
	case "vector":
		return KindVector, true
	case "rowstream":
		return KindRowStream, true
	case "model":
		return KindModel, true
	case "graph":
		return KindGraph, true
	default:
		return 0, false
	}
}

// Model is the marker interface implemented by all trained predictor and
// transform models. The engine treats models as opaque values; ModelKind is
// only used for logging and output rendering.
type Model interface {
	ModelKind() string
}

// RowScorer is implemented by predictor models that can score a single row
// given its named float features. Scoring entry points depend on this
// interface rather than on any concrete trainer.
type RowScorer interface {
	Model
	ScoreRow(features map[string]float64) float64
}

// KindOf reports the Kind of a concrete runtime value. The second return is
// false when the value fits no declared kind.
func KindOf(v any) (Kind, bool) {
	switch v.(type) {
	case *Graph:
		return KindGraph, true
	case rows.Stream:
		return KindRowStream, true
	case Model:
		return KindModel, true
	case []float64, []string:
		return KindVector, true
	case float64, float32, int, int64, string, bool:
		return KindScalar, true
	default:
		return 0, false
	}
}

// VarID is an opaque handle into a Graph's variable table. Handles are only
// meaningful within the graph that issued them.
type VarID int

// External marks a Variable with no producer node; it must be bound by the
// caller (or by a macro expansion) before execution.
const External = -1

// Variable is a typed placeholder identifying a value produced by a node or
// supplied externally.
type Variable struct {
	ID   VarID
	Name string
	Kind Kind

	// Producer is the index of the producing node within the graph, or
	// External for caller-supplied variables.
	Producer int
}

// Param describes one declared input or output parameter of an entry point.
type Param struct {
	Name     string
	Kind     Kind
	Optional bool

	// Default is applied when an optional input is omitted. A nil Default on
	// an optional parameter means the entry point receives no value at all.
	Default any
}

// NodeSpec is the declared schema of a node kind: its parameter lists as
// registered in the entry-point registry.
type NodeSpec struct {
	Kind    string
	Inputs  []Param
	Outputs []Param
}

// Input returns the declared input parameter with the given name.
func (s NodeSpec) Input(name string) (Param, bool) {
	for _, p := range s.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Binding is a node input: either a reference to a Variable or a literal
// value embedded directly in the graph.
type Binding struct {
	varID VarID
	lit   any
	isLit bool
}

// Ref builds a Binding referencing a variable handle.
func Ref(v VarID) Binding {
	return Binding{varID: v}
}

// Lit builds a Binding carrying a literal value.
func Lit(v any) Binding {
	return Binding{lit: v, isLit: true}
}

// IsLiteral reports whether the binding carries a literal value.
func (b Binding) IsLiteral() bool {
	return b.isLit
}

// Literal returns the embedded literal value. Only meaningful when IsLiteral
// is true.
func (b Binding) Literal() any {
	return b.lit
}

// Var returns the referenced variable handle. Only meaningful when IsLiteral
// is false.
func (b Binding) Var() VarID {
	return b.varID
}
