package pipeline

import (
	"errors"
	"fmt"
)

// ErrGraphCompiled is returned when a graph is mutated after it has been
// compiled. A compiled graph's cached execution order would be invalidated
// by further node additions, so mutation is rejected outright.
var ErrGraphCompiled = errors.New("graph has been compiled, cannot be modified")

// Node is a single operation in a Graph: a registered entry-point kind plus
// the bindings for its declared parameters.
type Node struct {
	// Index is the node's position in authoring order.
	Index int
	// Name is the caller-chosen instance name, unique per graph.
	Name string
	// Spec is a copy of the entry point's declared schema at Add time.
	Spec NodeSpec
	// Inputs maps declared input parameter names to their bindings. Omitted
	// optional parameters are simply absent.
	Inputs map[string]Binding
	// Outputs maps declared output parameter names to the fresh variables
	// this node produces.
	Outputs map[string]VarID
}

// ID returns the node's stable identifier used in logs and errors.
func (n *Node) ID() string {
	return fmt.Sprintf("node.%s.%s", n.Spec.Kind, n.Name)
}

// Graph is an ordered collection of nodes plus the variable table they
// reference. Nested graphs are first-class values: a Graph may be embedded
// as a literal binding of kind graph, which is how macro templates travel.
type Graph struct {
	nodes []*Node
	vars  []*Variable

	// externals maps declared external-input names to their variables.
	externals map[string]VarID
	// outputs maps declared graph-output names to variables.
	outputs map[string]VarID

	// names guards node-name uniqueness.
	names map[string]int

	// version increments on every mutation; compiledAt records the version
	// at which the graph was last successfully compiled.
	version    int
	compiledAt int
}

// NewGraph returns an empty graph ready for authoring.
func NewGraph() *Graph {
	return &Graph{
		externals:  make(map[string]VarID),
		outputs:    make(map[string]VarID),
		names:      make(map[string]int),
		compiledAt: -1,
	}
}

// Input declares an externally-bound variable: a named placeholder with no
// producer that the caller (or an expanding macro) must bind before the
// graph executes.
func (g *Graph) Input(name string, kind Kind) VarID {
	if id, ok := g.externals[name]; ok {
		return id
	}
	id := g.newVariable(name, kind, External)
	g.externals[name] = id
	g.version++
	return id
}

// Add appends a node of the given spec, validates local shape only (required
// parameters present, referenced handles valid), and declares one fresh
// variable per declared output. Full structural and type validation is the
// compiler's job.
func (g *Graph) Add(spec NodeSpec, name string, inputs map[string]Binding) (map[string]VarID, error) {
	if g.compiled() {
		return nil, ErrGraphCompiled
	}
	if _, exists := g.names[name]; exists {
		return nil, fmt.Errorf("duplicate node name %q", name)
	}

	for param, b := range inputs {
		if _, ok := spec.Input(param); !ok {
			return nil, fmt.Errorf("node %q: kind %q declares no input parameter %q", name, spec.Kind, param)
		}
		if !b.IsLiteral() {
			if int(b.Var()) < 0 || int(b.Var()) >= len(g.vars) {
				return nil, fmt.Errorf("node %q: input %q references unknown variable %d", name, param, b.Var())
			}
		}
	}
	for _, p := range spec.Inputs {
		if p.Optional {
			continue
		}
		if _, ok := inputs[p.Name]; !ok {
			return nil, fmt.Errorf("node %q: required input %q of kind %q is not bound", name, p.Name, spec.Kind)
		}
	}

	n := &Node{
		Index:   len(g.nodes),
		Name:    name,
		Spec:    spec,
		Inputs:  make(map[string]Binding, len(inputs)),
		Outputs: make(map[string]VarID, len(spec.Outputs)),
	}
	for k, v := range inputs {
		n.Inputs[k] = v
	}
	for _, p := range spec.Outputs {
		n.Outputs[p.Name] = g.newVariable(fmt.Sprintf("%s.%s", name, p.Name), p.Kind, n.Index)
	}

	g.nodes = append(g.nodes, n)
	g.names[name] = n.Index
	g.version++

	out := make(map[string]VarID, len(n.Outputs))
	for k, v := range n.Outputs {
		out[k] = v
	}
	return out, nil
}

// Rebind replaces one input binding of an existing node. Authoring order
// need not be topological: a consumer added early can be wired to a variable
// produced by a node added later.
func (g *Graph) Rebind(nodeName, param string, b Binding) error {
	if g.compiled() {
		return ErrGraphCompiled
	}
	idx, ok := g.names[nodeName]
	if !ok {
		return fmt.Errorf("no node named %q", nodeName)
	}
	n := g.nodes[idx]
	if _, ok := n.Spec.Input(param); !ok {
		return fmt.Errorf("node %q: kind %q declares no input parameter %q", nodeName, n.Spec.Kind, param)
	}
	if !b.IsLiteral() {
		if int(b.Var()) < 0 || int(b.Var()) >= len(g.vars) {
			return fmt.Errorf("node %q: input %q references unknown variable %d", nodeName, param, b.Var())
		}
	}
	n.Inputs[param] = b
	g.version++
	return nil
}

// SetOutput declares a named graph output. Macro expansion and callers read
// results through these names.
func (g *Graph) SetOutput(name string, id VarID) error {
	if int(id) < 0 || int(id) >= len(g.vars) {
		return fmt.Errorf("output %q references unknown variable %d", name, id)
	}
	g.outputs[name] = id
	return nil
}

// Nodes returns the nodes in authoring order. The slice is shared; callers
// must not mutate it.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Node returns the node with the given instance name.
func (g *Graph) Node(name string) (*Node, bool) {
	idx, ok := g.names[name]
	if !ok {
		return nil, false
	}
	return g.nodes[idx], true
}

// Variable returns the variable for a handle.
func (g *Graph) Variable(id VarID) (*Variable, bool) {
	if int(id) < 0 || int(id) >= len(g.vars) {
		return nil, false
	}
	return g.vars[id], true
}

// Externals returns the declared external-input variables by name.
func (g *Graph) Externals() map[string]VarID {
	out := make(map[string]VarID, len(g.externals))
	for k, v := range g.externals {
		out[k] = v
	}
	return out
}

// Outputs returns the declared graph outputs by name.
func (g *Graph) Outputs() map[string]VarID {
	out := make(map[string]VarID, len(g.outputs))
	for k, v := range g.outputs {
		out[k] = v
	}
	return out
}

// VarCount returns the size of the variable table.
func (g *Graph) VarCount() int {
	return len(g.vars)
}

// Version returns the mutation counter. An execution order is only valid for
// the version it was compiled against.
func (g *Graph) Version() int {
	return g.version
}

// MarkCompiled freezes the graph at its current version. Called by the
// compiler on success.
func (g *Graph) MarkCompiled() {
	g.compiledAt = g.version
}

func (g *Graph) compiled() bool {
	return g.compiledAt == g.version
}

// Clone returns an independent copy of the graph with its own variable
// table. Node bindings and literals are copied shallowly: literal payloads
// (streams, models, nested graphs) are shared, which is safe because
// execution values are immutable once produced. Templates are cloned per
// macro instantiation so that no instantiation ever mutates the original.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes:      make([]*Node, len(g.nodes)),
		vars:       make([]*Variable, len(g.vars)),
		externals:  make(map[string]VarID, len(g.externals)),
		outputs:    make(map[string]VarID, len(g.outputs)),
		names:      make(map[string]int, len(g.names)),
		compiledAt: -1,
	}
	for i, v := range g.vars {
		vc := *v
		c.vars[i] = &vc
	}
	for i, n := range g.nodes {
		nc := &Node{
			Index:   n.Index,
			Name:    n.Name,
			Spec:    n.Spec,
			Inputs:  make(map[string]Binding, len(n.Inputs)),
			Outputs: make(map[string]VarID, len(n.Outputs)),
		}
		for k, v := range n.Inputs {
			nc.Inputs[k] = v
		}
		for k, v := range n.Outputs {
			nc.Outputs[k] = v
		}
		c.nodes[i] = nc
	}
	for k, v := range g.externals {
		c.externals[k] = v
	}
	for k, v := range g.outputs {
		c.outputs[k] = v
	}
	for k, v := range g.names {
		c.names[k] = v
	}
	return c
}

func (g *Graph) newVariable(name string, kind Kind, producer int) VarID {
	id := VarID(len(g.vars))
	g.vars = append(g.vars, &Variable{ID: id, Name: name, Kind: kind, Producer: producer})
	return id
}
