// Package transforms provides small column-level transform entry points.
package transforms

import (
	"context"
	"fmt"

	"github.com/vk/gridml/internal/env"
	"github.com/vk/gridml/internal/pipeline"
	"github.com/vk/gridml/internal/registry"
	"github.com/vk/gridml/internal/rows"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the transform entry points.
func (Module) Register(r *registry.Registry) {
	r.Register(&registry.EntryPoint{
		Kind: "transform.select_columns",
		Inputs: []pipeline.Param{
			{Name: "data", Kind: pipeline.KindRowStream},
			{Name: "columns", Kind: pipeline.KindVector},
		},
		Outputs: []pipeline.Param{
			{Name: "data", Kind: pipeline.KindRowStream},
		},
		Run: selectColumns,
	})
	r.Register(&registry.EntryPoint{
		Kind: "transform.binarize_label",
		Inputs: []pipeline.Param{
			{Name: "data", Kind: pipeline.KindRowStream},
			{Name: "label_column", Kind: pipeline.KindScalar, Optional: true, Default: "Label"},
			{Name: "positive_class", Kind: pipeline.KindScalar},
		},
		Outputs: []pipeline.Param{
			{Name: "data", Kind: pipeline.KindRowStream},
		},
		Run: binarizeLabel,
	})
}

// selectColumns projects a stream down to the named columns, preserving the
// requested order.
func selectColumns(ctx context.Context, e *env.Environment, in registry.Values) (registry.Values, error) {
	data, ok := in["data"].(rows.Stream)
	if !ok {
		return nil, fmt.Errorf("input \"data\": expected a row-stream, got %T", in["data"])
	}
	names, ok := in["columns"].([]string)
	if !ok {
		return nil, fmt.Errorf("input \"columns\": expected a vector of column names, got %T", in["columns"])
	}

	src := data.Schema()
	idx := make([]int, len(names))
	schema := make(rows.Schema, len(names))
	for i, name := range names {
		at := src.Find(name)
		if at < 0 {
			return nil, fmt.Errorf("column %q not present in the input data", name)
		}
		idx[i] = at
		schema[i] = src[at]
	}

	out := rows.Derive(data, schema, func(row []any) []any {
		projected := make([]any, len(idx))
		for i, at := range idx {
			projected[i] = row[at]
		}
		return projected
	})
	return registry.Values{"data": out}, nil
}

// binarizeLabel rewrites the label column to a float column holding 1 for
// rows whose label equals the positive class and 0 otherwise.
func binarizeLabel(ctx context.Context, e *env.Environment, in registry.Values) (registry.Values, error) {
	data, ok := in["data"].(rows.Stream)
	if !ok {
		return nil, fmt.Errorf("input \"data\": expected a row-stream, got %T", in["data"])
	}
	labelCol, _ := in["label_column"].(string)
	positive := fmt.Sprintf("%v", in["positive_class"])

	src := data.Schema()
	labelIdx := src.Find(labelCol)
	if labelIdx < 0 {
		return nil, fmt.Errorf("label column %q not present in the input data", labelCol)
	}

	schema := make(rows.Schema, len(src))
	copy(schema, src)
	schema[labelIdx] = rows.Column{Name: labelCol, Type: rows.Float}

	out := rows.Derive(data, schema, func(row []any) []any {
		mapped := make([]any, len(row))
		copy(mapped, row)
		if fmt.Sprintf("%v", row[labelIdx]) == positive {
			mapped[labelIdx] = 1.0
		} else {
			mapped[labelIdx] = 0.0
		}
		return mapped
	})
	return registry.Values{"data": out}, nil
}
