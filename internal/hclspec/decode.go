package hclspec

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/gridml/internal/ctxlog"
	"github.com/vk/gridml/internal/pipeline"
	"github.com/vk/gridml/internal/registry"
)

// Decoded is the result of loading one pipeline file: the executable graph
// and the file's optional seed declaration.
type Decoded struct {
	Graph *pipeline.Graph
	Seed  *int64
}

// LoadFile parses and decodes a pipeline file against the registry's
// declared entry-point schemas.
func LoadFile(ctx context.Context, reg *registry.Registry, path string) (*Decoded, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", path, diags)
	}
	return decode(ctx, reg, file.Body)
}

// LoadSource decodes pipeline source text, mainly for tests.
func LoadSource(ctx context.Context, reg *registry.Registry, src, filename string) (*Decoded, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL([]byte(src), filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", filename, diags)
	}
	return decode(ctx, reg, file.Body)
}

func decode(ctx context.Context, reg *registry.Registry, body hcl.Body) (*Decoded, error) {
	logger := ctxlog.FromContext(ctx)

	var cfg FileConfig
	if diags := gohcl.DecodeBody(body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("decoding pipeline file: %w", diags)
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("pipeline file declares no pipeline block")
	}

	// Graph templates first, in file order, so pipeline nodes can embed them
	// as graph.<name> literals. Templates may embed earlier templates.
	templates := make(map[string]*pipeline.Graph)
	for _, gb := range cfg.Graphs {
		if _, dup := templates[gb.Name]; dup {
			return nil, fmt.Errorf("duplicate graph template %q", gb.Name)
		}
		g, err := buildGraph(reg, templates, gb.Inputs, gb.Nodes, gb.Outputs)
		if err != nil {
			return nil, fmt.Errorf("graph %q: %w", gb.Name, err)
		}
		templates[gb.Name] = g
		logger.Debug("Decoded graph template.", "name", gb.Name, "nodes", len(gb.Nodes))
	}

	g, err := buildGraph(reg, templates, cfg.Pipeline.Inputs, cfg.Pipeline.Nodes, cfg.Pipeline.Outputs)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	logger.Debug("Decoded pipeline.", "nodes", len(cfg.Pipeline.Nodes), "templates", len(templates))
	return &Decoded{Graph: g, Seed: cfg.Pipeline.Seed}, nil
}

func buildGraph(reg *registry.Registry, templates map[string]*pipeline.Graph,
	inputs []*InputBlock, nodes []*NodeBlock, outputs []*OutputBlock) (*pipeline.Graph, error) {

	g := pipeline.NewGraph()

	externals := make(map[string]pipeline.VarID)
	for _, in := range inputs {
		kind, ok := pipeline.ParseKind(in.Kind)
		if !ok {
			return nil, fmt.Errorf("input %q: unknown kind %q", in.Name, in.Kind)
		}
		externals[in.Name] = g.Input(in.Name, kind)
	}

	// nodeOutputs tracks declared outputs per node name for reference
	// resolution. Nodes are wired in file order; references must point at
	// inputs, templates, or nodes declared above.
	nodeOutputs := make(map[string]map[string]pipeline.VarID)
	for _, nb := range nodes {
		ep, err := reg.Resolve(nb.Kind)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nb.Name, err)
		}
		spec := ep.Spec()

		bindings := make(map[string]pipeline.Binding)
		if nb.Arguments != nil {
			attrs, diags := nb.Arguments.Body.JustAttributes()
			if diags.HasErrors() {
				return nil, fmt.Errorf("node %q arguments: %w", nb.Name, diags)
			}
			for name, attr := range attrs {
				p, ok := spec.Input(name)
				if !ok {
					return nil, fmt.Errorf("node %q: kind %q declares no input parameter %q", nb.Name, nb.Kind, name)
				}
				b, err := bindExpression(attr.Expr, p, externals, nodeOutputs, templates)
				if err != nil {
					return nil, fmt.Errorf("node %q, argument %q: %w", nb.Name, name, err)
				}
				bindings[name] = b
			}
		}

		outs, err := g.Add(spec, nb.Name, bindings)
		if err != nil {
			return nil, err
		}
		nodeOutputs[nb.Name] = outs
	}

	for _, ob := range outputs {
		id, err := resolveNodeRef(ob.From, nodeOutputs)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", ob.Name, err)
		}
		if err := g.SetOutput(ob.Name, id); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// bindExpression turns one argument expression into a binding: a traversal
// reference (node.*, input.*, graph.*) or a literal evaluated through cty
// and converted against the declared parameter kind.
func bindExpression(expr hcl.Expression, p pipeline.Param,
	externals map[string]pipeline.VarID,
	nodeOutputs map[string]map[string]pipeline.VarID,
	templates map[string]*pipeline.Graph) (pipeline.Binding, error) {

	if trav, diags := hcl.AbsTraversalForExpr(expr); !diags.HasErrors() {
		root := trav.RootName()
		switch root {
		case "node":
			id, err := resolveNodeRef(expr, nodeOutputs)
			if err != nil {
				return pipeline.Binding{}, err
			}
			return pipeline.Ref(id), nil
		case "input":
			if len(trav) != 2 {
				return pipeline.Binding{}, fmt.Errorf("input references have the form input.<name>")
			}
			name, err := traversalAttr(trav[1])
			if err != nil {
				return pipeline.Binding{}, err
			}
			id, ok := externals[name]
			if !ok {
				return pipeline.Binding{}, fmt.Errorf("no declared input %q", name)
			}
			return pipeline.Ref(id), nil
		case "graph":
			if len(trav) != 2 {
				return pipeline.Binding{}, fmt.Errorf("graph references have the form graph.<name>")
			}
			name, err := traversalAttr(trav[1])
			if err != nil {
				return pipeline.Binding{}, err
			}
			tpl, ok := templates[name]
			if !ok {
				return pipeline.Binding{}, fmt.Errorf("no graph template %q defined above", name)
			}
			return pipeline.Lit(tpl), nil
		default:
			return pipeline.Binding{}, fmt.Errorf("unknown reference root %q; expected node, input or graph", root)
		}
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return pipeline.Binding{}, fmt.Errorf("evaluating literal: %w", diags)
	}
	lit, err := literalFromCty(val, p.Kind)
	if err != nil {
		return pipeline.Binding{}, err
	}
	return pipeline.Lit(lit), nil
}

// resolveNodeRef resolves a node.<name>.<output> traversal.
func resolveNodeRef(expr hcl.Expression, nodeOutputs map[string]map[string]pipeline.VarID) (pipeline.VarID, error) {
	trav, diags := hcl.AbsTraversalForExpr(expr)
	if diags.HasErrors() {
		return 0, fmt.Errorf("expected a node.<name>.<output> reference: %w", diags)
	}
	if trav.RootName() != "node" || len(trav) != 3 {
		return 0, fmt.Errorf("expected a node.<name>.<output> reference")
	}
	name, err := traversalAttr(trav[1])
	if err != nil {
		return 0, err
	}
	output, err := traversalAttr(trav[2])
	if err != nil {
		return 0, err
	}
	outs, ok := nodeOutputs[name]
	if !ok {
		return 0, fmt.Errorf("no node %q defined above", name)
	}
	id, ok := outs[output]
	if !ok {
		return 0, fmt.Errorf("node %q has no output %q", name, output)
	}
	return id, nil
}

func traversalAttr(t hcl.Traverser) (string, error) {
	attr, ok := t.(hcl.TraverseAttr)
	if !ok {
		return "", fmt.Errorf("unsupported traversal element %T", t)
	}
	return attr.Name, nil
}

// literalFromCty converts a cty literal to the Go representation the engine
// expects for the declared parameter kind.
func literalFromCty(val cty.Value, kind pipeline.Kind) (any, error) {
	switch kind {
	case pipeline.KindScalar:
		switch val.Type() {
		case cty.String:
			var s string
			if err := gocty.FromCtyValue(val, &s); err != nil {
				return nil, err
			}
			return s, nil
		case cty.Number:
			var f float64
			if err := gocty.FromCtyValue(val, &f); err != nil {
				return nil, err
			}
			return f, nil
		case cty.Bool:
			var b bool
			if err := gocty.FromCtyValue(val, &b); err != nil {
				return nil, err
			}
			return b, nil
		default:
			return nil, fmt.Errorf("scalar parameter cannot hold %s", val.Type().FriendlyName())
		}
	case pipeline.KindVector:
		if !val.CanIterateElements() {
			return nil, fmt.Errorf("vector parameter cannot hold %s", val.Type().FriendlyName())
		}
		var floats []float64
		var strings []string
		allNumbers := true
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			switch ev.Type() {
			case cty.Number:
				var f float64
				if err := gocty.FromCtyValue(ev, &f); err != nil {
					return nil, err
				}
				floats = append(floats, f)
				strings = append(strings, ev.AsBigFloat().String())
			case cty.String:
				allNumbers = false
				var s string
				if err := gocty.FromCtyValue(ev, &s); err != nil {
					return nil, err
				}
				strings = append(strings, s)
			default:
				return nil, fmt.Errorf("vector elements must be numbers or strings, got %s", ev.Type().FriendlyName())
			}
		}
		if allNumbers && len(floats) > 0 {
			return floats, nil
		}
		return strings, nil
	case pipeline.KindGraph:
		return nil, fmt.Errorf("graph parameters take graph.<name> references, not literals")
	default:
		return nil, fmt.Errorf("%s parameters take node output references, not literals", kind)
	}
}
