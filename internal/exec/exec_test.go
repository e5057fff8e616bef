package exec

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/gridml/internal/compile"
	"github.com/vk/gridml/internal/env"
	"github.com/vk/gridml/internal/pipeline"
	"github.com/vk/gridml/internal/registry"
)

// testRegistry builds a registry of small arithmetic entry points.
func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	r.Register(&registry.EntryPoint{
		Kind:    "test.const",
		Inputs:  []pipeline.Param{{Name: "value", Kind: pipeline.KindScalar}},
		Outputs: []pipeline.Param{{Name: "out", Kind: pipeline.KindScalar}},
		Run: func(ctx context.Context, e *env.Environment, in registry.Values) (registry.Values, error) {
			return registry.Values{"out": in["value"]}, nil
		},
	})
	r.Register(&registry.EntryPoint{
		Kind: "test.add",
		Inputs: []pipeline.Param{
			{Name: "a", Kind: pipeline.KindScalar},
			{Name: "b", Kind: pipeline.KindScalar, Optional: true, Default: 10.0},
		},
		Outputs: []pipeline.Param{{Name: "out", Kind: pipeline.KindScalar}},
		Run: func(ctx context.Context, e *env.Environment, in registry.Values) (registry.Values, error) {
			return registry.Values{"out": in["a"].(float64) + in["b"].(float64)}, nil
		},
	})
	r.Register(&registry.EntryPoint{
		Kind:    "test.fail",
		Inputs:  []pipeline.Param{{Name: "a", Kind: pipeline.KindScalar, Optional: true}},
		Outputs: []pipeline.Param{{Name: "out", Kind: pipeline.KindScalar}},
		Run: func(ctx context.Context, e *env.Environment, in registry.Values) (registry.Values, error) {
			return nil, fmt.Errorf("boom")
		},
	})
	r.Register(&registry.EntryPoint{
		Kind:    "test.badoutput",
		Outputs: []pipeline.Param{{Name: "out", Kind: pipeline.KindScalar}},
		Run: func(ctx context.Context, e *env.Environment, in registry.Values) (registry.Values, error) {
			return registry.Values{"out": []float64{1}}, nil
		},
	})
	return r
}

func specOf(t *testing.T, r *registry.Registry, kind string) pipeline.NodeSpec {
	t.Helper()
	ep, err := r.Resolve(kind)
	require.NoError(t, err)
	return ep.Spec()
}

func TestRunPropagatesValues(t *testing.T) {
	r := testRegistry(t)
	g := pipeline.NewGraph()

	c, err := g.Add(specOf(t, r, "test.const"), "c", map[string]pipeline.Binding{"value": pipeline.Lit(2.0)})
	require.NoError(t, err)
	sum, err := g.Add(specOf(t, r, "test.add"), "sum", map[string]pipeline.Binding{
		"a": pipeline.Ref(c["out"]),
		"b": pipeline.Lit(3.0),
	})
	require.NoError(t, err)
	require.NoError(t, g.SetOutput("result", sum["out"]))

	order, err := compile.Compile(context.Background(), g, nil)
	require.NoError(t, err)

	res, err := New(r, env.New(42)).Run(context.Background(), g, order, nil)
	require.NoError(t, err)

	v, err := res.Output("result")
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)
}

func TestRunAppliesDefaults(t *testing.T) {
	r := testRegistry(t)
	g := pipeline.NewGraph()

	sum, err := g.Add(specOf(t, r, "test.add"), "sum", map[string]pipeline.Binding{"a": pipeline.Lit(1.0)})
	require.NoError(t, err)
	require.NoError(t, g.SetOutput("result", sum["out"]))

	order, err := compile.Compile(context.Background(), g, nil)
	require.NoError(t, err)
	res, err := New(r, env.New(42)).Run(context.Background(), g, order, nil)
	require.NoError(t, err)

	v, err := res.Output("result")
	require.NoError(t, err)
	assert.Equal(t, 11.0, v)
}

func TestRunBindsExternals(t *testing.T) {
	r := testRegistry(t)
	g := pipeline.NewGraph()
	in := g.Input("base", pipeline.KindScalar)

	sum, err := g.Add(specOf(t, r, "test.add"), "sum", map[string]pipeline.Binding{"a": pipeline.Ref(in)})
	require.NoError(t, err)
	require.NoError(t, g.SetOutput("result", sum["out"]))

	order, err := compile.Compile(context.Background(), g, map[pipeline.VarID]bool{in: true})
	require.NoError(t, err)
	res, err := New(r, env.New(42)).Run(context.Background(), g, order, map[pipeline.VarID]any{in: 7.0})
	require.NoError(t, err)

	v, err := res.Output("result")
	require.NoError(t, err)
	assert.Equal(t, 17.0, v)
}

func TestRunHaltsOnFailure(t *testing.T) {
	r := testRegistry(t)
	g := pipeline.NewGraph()

	f, err := g.Add(specOf(t, r, "test.fail"), "bad", nil)
	require.NoError(t, err)
	_, err = g.Add(specOf(t, r, "test.add"), "after", map[string]pipeline.Binding{"a": pipeline.Ref(f["out"])})
	require.NoError(t, err)

	order, err := compile.Compile(context.Background(), g, nil)
	require.NoError(t, err)

	_, err = New(r, env.New(42)).Run(context.Background(), g, order, nil)
	var inv *InvocationError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "node.test.fail.bad", inv.NodeID)
	assert.ErrorContains(t, inv.Err, "boom")
}

func TestRunValidatesProducedKinds(t *testing.T) {
	r := testRegistry(t)
	g := pipeline.NewGraph()
	_, err := g.Add(specOf(t, r, "test.badoutput"), "bad", nil)
	require.NoError(t, err)

	order, err := compile.Compile(context.Background(), g, nil)
	require.NoError(t, err)

	_, err = New(r, env.New(42)).Run(context.Background(), g, order, nil)
	var inv *InvocationError
	require.ErrorAs(t, err, &inv)
	assert.ErrorContains(t, inv.Err, "declared scalar")
}

func TestRunRejectsStaleOrder(t *testing.T) {
	r := testRegistry(t)
	g := pipeline.NewGraph()
	_, err := g.Add(specOf(t, r, "test.const"), "c", map[string]pipeline.Binding{"value": pipeline.Lit(1.0)})
	require.NoError(t, err)

	order, err := compile.Compile(context.Background(), g, nil)
	require.NoError(t, err)

	// A new external input bumps the graph version past the compiled one.
	g.Input("late", pipeline.KindScalar)

	_, err = New(r, env.New(42)).Run(context.Background(), g, order, nil)
	assert.ErrorContains(t, err, "modified after compilation")
}

func TestRunIsDeterministic(t *testing.T) {
	r := testRegistry(t)
	g := pipeline.NewGraph()
	c, err := g.Add(specOf(t, r, "test.const"), "c", map[string]pipeline.Binding{"value": pipeline.Lit(4.0)})
	require.NoError(t, err)
	sum, err := g.Add(specOf(t, r, "test.add"), "sum", map[string]pipeline.Binding{"a": pipeline.Ref(c["out"])})
	require.NoError(t, err)
	require.NoError(t, g.SetOutput("result", sum["out"]))

	order, err := compile.Compile(context.Background(), g, nil)
	require.NoError(t, err)

	ex := New(r, env.New(42))
	first, err := ex.Run(context.Background(), g, order, nil)
	require.NoError(t, err)
	second, err := ex.Run(context.Background(), g, order, nil)
	require.NoError(t, err)

	v1, err := first.Output("result")
	require.NoError(t, err)
	v2, err := second.Output("result")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}
