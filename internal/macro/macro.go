// Package macro implements the entry points whose execution expands an
// embedded graph template: cross-validation, one-vs-rest decomposition, and
// train/test evaluation. A macro node resolves its own bound inputs,
// derives one input partition per instantiation, clones its template with a
// fresh variable table, recursively compiles and executes each clone, and
// aggregates the per-instantiation outputs back into its own output
// variables. Per-instantiation problems that are survivable (unseen label
// values in a holdout partition, metric schema drift) are collected as
// warnings rather than aborting the macro.
package macro

import (
	"context"
	"fmt"

	"github.com/vk/gridml/internal/compile"
	"github.com/vk/gridml/internal/env"
	"github.com/vk/gridml/internal/exec"
	"github.com/vk/gridml/internal/pipeline"
	"github.com/vk/gridml/internal/registry"
	"github.com/vk/gridml/internal/rows"
)

// Template port conventions. A macro template declares these external inputs
// and graph outputs; the expansion binds and reads them by name.
const (
	// TrainPort is the template's training-data external input.
	TrainPort = "train"
	// TestPort is the template's held-out-data external input.
	TestPort = "test"
	// ModelOutput is the template's trained-model graph output.
	ModelOutput = "model"
	// MetricsOutput is the template's optional per-instantiation metrics
	// graph output. When absent, macros that evaluate fall back to the
	// registered scoring and evaluation entry points.
	MetricsOutput = "metrics"
)

// PartitionError reports a fold-partitioning failure, e.g. a stratification
// column that is absent or not key-typed. It is fatal to the macro.
type PartitionError struct {
	Column string
	Reason string
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("cannot partition on column %q: %s", e.Column, e.Reason)
}

// FoldModels bundles the per-fold predictors produced by cross-validation.
type FoldModels struct {
	Models []pipeline.Model
}

// ModelKind implements pipeline.Model.
func (m *FoldModels) ModelKind() string {
	return fmt.Sprintf("fold-models[%d]", len(m.Models))
}

// Module registers the macro entry points. It needs the registry both to
// register into and to resolve scoring/evaluation kinds at expansion time,
// so registration closes over it.
type Module struct{}

// Register implements registry.Module.
func (Module) Register(r *registry.Registry) {
	r.Register(&registry.EntryPoint{
		Kind: "macro.cross_validate",
		Inputs: []pipeline.Param{
			{Name: "data", Kind: pipeline.KindRowStream},
			{Name: "body", Kind: pipeline.KindGraph},
			{Name: "folds", Kind: pipeline.KindScalar, Optional: true, Default: 2},
			{Name: "stratification_column", Kind: pipeline.KindScalar, Optional: true},
			{Name: "weight_column", Kind: pipeline.KindScalar, Optional: true},
			{Name: "label_column", Kind: pipeline.KindScalar, Optional: true, Default: "Label"},
			{Name: "evaluator", Kind: pipeline.KindScalar, Optional: true, Default: "evaluate.binary"},
		},
		Outputs: []pipeline.Param{
			{Name: "metrics", Kind: pipeline.KindRowStream},
			{Name: "models", Kind: pipeline.KindModel},
			{Name: "warnings", Kind: pipeline.KindRowStream},
		},
		Run: crossValidate(r),
	})
	r.Register(&registry.EntryPoint{
		Kind: "macro.one_vs_rest",
		Inputs: []pipeline.Param{
			{Name: "data", Kind: pipeline.KindRowStream},
			{Name: "body", Kind: pipeline.KindGraph},
			{Name: "label_column", Kind: pipeline.KindScalar, Optional: true, Default: "Label"},
		},
		Outputs: []pipeline.Param{
			{Name: "model", Kind: pipeline.KindModel},
			{Name: "warnings", Kind: pipeline.KindRowStream},
		},
		Run: oneVsRest(r),
	})
	r.Register(&registry.EntryPoint{
		Kind: "macro.train_test",
		Inputs: []pipeline.Param{
			{Name: "train", Kind: pipeline.KindRowStream},
			{Name: "test", Kind: pipeline.KindRowStream},
			{Name: "body", Kind: pipeline.KindGraph},
			{Name: "label_column", Kind: pipeline.KindScalar, Optional: true, Default: "Label"},
			{Name: "weight_column", Kind: pipeline.KindScalar, Optional: true},
			{Name: "evaluator", Kind: pipeline.KindScalar, Optional: true, Default: "evaluate.binary"},
		},
		Outputs: []pipeline.Param{
			{Name: "model", Kind: pipeline.KindModel},
			{Name: "metrics", Kind: pipeline.KindRowStream},
			{Name: "warnings", Kind: pipeline.KindRowStream},
		},
		Run: trainTest(r),
	})
}

// runTemplate clones the template, binds the instantiation's derived inputs
// to the clone's declared external inputs, and drives the clone through
// compile and execute. The template itself is never mutated.
func runTemplate(ctx context.Context, e *env.Environment, reg *registry.Registry, tpl *pipeline.Graph, binds map[string]any) (*exec.Result, error) {
	clone := tpl.Clone()
	externals := clone.Externals()

	bound := make(map[pipeline.VarID]bool, len(binds))
	bindings := make(map[pipeline.VarID]any, len(binds))
	for name, val := range binds {
		id, ok := externals[name]
		if !ok {
			return nil, fmt.Errorf("template declares no external input %q", name)
		}
		bound[id] = true
		bindings[id] = val
	}

	order, err := compile.Compile(ctx, clone, bound)
	if err != nil {
		return nil, fmt.Errorf("compiling template instantiation: %w", err)
	}
	res, err := exec.New(reg, e).Run(ctx, clone, order, bindings)
	if err != nil {
		return nil, fmt.Errorf("executing template instantiation: %w", err)
	}
	return res, nil
}

// templateModel reads the template's trained-model output.
func templateModel(res *exec.Result) (pipeline.Model, error) {
	v, err := res.Output(ModelOutput)
	if err != nil {
		return nil, err
	}
	m, ok := v.(pipeline.Model)
	if !ok {
		return nil, fmt.Errorf("template output %q is %T, not a model", ModelOutput, v)
	}
	return m, nil
}

// instanceMetrics returns the per-instantiation metrics stream: the
// template's declared metrics output when present, otherwise the result of
// scoring the held-out partition with the instantiation's model and running
// the configured evaluator over it.
func instanceMetrics(ctx context.Context, e *env.Environment, reg *registry.Registry,
	tpl *pipeline.Graph, res *exec.Result, model pipeline.Model,
	test rows.Stream, labelCol, weightCol, evaluatorKind string) (rows.Stream, error) {

	if _, declared := tpl.Outputs()[MetricsOutput]; declared {
		v, err := res.Output(MetricsOutput)
		if err != nil {
			return nil, err
		}
		s, ok := v.(rows.Stream)
		if !ok {
			return nil, fmt.Errorf("template output %q is %T, not a row-stream", MetricsOutput, v)
		}
		return s, nil
	}

	scorer, err := reg.Resolve("score.predict")
	if err != nil {
		return nil, fmt.Errorf("template has no %q output and no scorer is registered: %w", MetricsOutput, err)
	}
	scored, err := scorer.Run(ctx, e, registry.Values{"model": model, "data": test})
	if err != nil {
		return nil, fmt.Errorf("scoring held-out partition: %w", err)
	}
	scoredStream, ok := scored["data"].(rows.Stream)
	if !ok {
		return nil, fmt.Errorf("scorer produced %T, not a row-stream", scored["data"])
	}

	evaluator, err := reg.Resolve(evaluatorKind)
	if err != nil {
		return nil, err
	}
	evalIn := registry.Values{"data": scoredStream, "label_column": labelCol}
	if weightCol != "" {
		evalIn["weight_column"] = weightCol
	}
	evaluated, err := evaluator.Run(ctx, e, evalIn)
	if err != nil {
		return nil, fmt.Errorf("evaluating held-out partition: %w", err)
	}
	metrics, ok := evaluated["metrics"].(rows.Stream)
	if !ok {
		return nil, fmt.Errorf("evaluator produced %T, not a row-stream", evaluated["metrics"])
	}
	return metrics, nil
}

// asInt coerces a scalar input to int.
func asInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		return int(x), nil
	default:
		return 0, fmt.Errorf("expected a numeric scalar, got %T", v)
	}
}

// strIn reads an optional string input, returning "" when absent.
func strIn(in registry.Values, name string) (string, error) {
	v, ok := in[name]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("input %q: expected a string scalar, got %T", name, v)
	}
	return s, nil
}

// streamIn reads a required row-stream input.
func streamIn(in registry.Values, name string) (rows.Stream, error) {
	s, ok := in[name].(rows.Stream)
	if !ok {
		return nil, fmt.Errorf("input %q: expected a row-stream, got %T", name, in[name])
	}
	return s, nil
}

// graphIn reads a required graph-template input.
func graphIn(in registry.Values, name string) (*pipeline.Graph, error) {
	g, ok := in[name].(*pipeline.Graph)
	if !ok {
		return nil, fmt.Errorf("input %q: expected a graph template, got %T", name, in[name])
	}
	return g, nil
}
