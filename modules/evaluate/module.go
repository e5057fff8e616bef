// Package evaluate provides the scoring and binary-classification
// evaluation entry points. The evaluator emits a metrics row-stream with
// known column names; when a weight column is configured it emits one
// unweighted and one weighted row, distinguished by the IsWeighted column,
// and never mixes the two aggregations.
package evaluate

import (
	"context"
	"fmt"

	"github.com/vk/gridml/internal/env"
	"github.com/vk/gridml/internal/pipeline"
	"github.com/vk/gridml/internal/registry"
	"github.com/vk/gridml/internal/rows"
)

// Metric column names produced by evaluate.binary.
const (
	ScoreColumn      = "Score"
	AUCColumn        = "AUC"
	AccuracyColumn   = "Accuracy"
	IsWeightedColumn = "IsWeighted"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the scoring and evaluation entry points.
func (Module) Register(r *registry.Registry) {
	r.Register(&registry.EntryPoint{
		Kind: "score.predict",
		Inputs: []pipeline.Param{
			{Name: "model", Kind: pipeline.KindModel},
			{Name: "data", Kind: pipeline.KindRowStream},
		},
		Outputs: []pipeline.Param{
			{Name: "data", Kind: pipeline.KindRowStream},
		},
		Run: score,
	})
	r.Register(&registry.EntryPoint{
		Kind: "evaluate.binary",
		Inputs: []pipeline.Param{
			{Name: "data", Kind: pipeline.KindRowStream},
			{Name: "label_column", Kind: pipeline.KindScalar, Optional: true, Default: "Label"},
			{Name: "score_column", Kind: pipeline.KindScalar, Optional: true, Default: ScoreColumn},
			{Name: "weight_column", Kind: pipeline.KindScalar, Optional: true},
			{Name: "threshold", Kind: pipeline.KindScalar, Optional: true, Default: 0.5},
		},
		Outputs: []pipeline.Param{
			{Name: "metrics", Kind: pipeline.KindRowStream},
		},
		Run: evaluateBinary,
	})
}

// score appends a Score float column computed by the model over each row's
// float features. The output stream is lazy; the model scores rows as the
// consumer pulls them.
func score(ctx context.Context, e *env.Environment, in registry.Values) (registry.Values, error) {
	model, ok := in["model"].(pipeline.RowScorer)
	if !ok {
		return nil, fmt.Errorf("input \"model\": %T cannot score rows", in["model"])
	}
	data, ok := in["data"].(rows.Stream)
	if !ok {
		return nil, fmt.Errorf("input \"data\": expected a row-stream, got %T", in["data"])
	}

	src := data.Schema()
	if src.Find(ScoreColumn) >= 0 {
		return nil, fmt.Errorf("input data already has a %q column", ScoreColumn)
	}
	schema := make(rows.Schema, len(src), len(src)+1)
	copy(schema, src)
	schema = append(schema, rows.Column{Name: ScoreColumn, Type: rows.Float})

	var floatIdx []int
	for i, col := range src {
		if col.Type == rows.Float {
			floatIdx = append(floatIdx, i)
		}
	}

	out := rows.Derive(data, schema, func(row []any) []any {
		features := make(map[string]float64, len(floatIdx))
		for _, i := range floatIdx {
			features[src[i].Name] = row[i].(float64)
		}
		return append(append(make([]any, 0, len(row)+1), row...), model.ScoreRow(features))
	})
	return registry.Values{"data": out}, nil
}

func evaluateBinary(ctx context.Context, e *env.Environment, in registry.Values) (registry.Values, error) {
	data, ok := in["data"].(rows.Stream)
	if !ok {
		return nil, fmt.Errorf("input \"data\": expected a row-stream, got %T", in["data"])
	}
	// Macro expansions invoke the evaluator directly, bypassing the
	// executor's default resolution, so defaults are re-applied here.
	labelCol, _ := in["label_column"].(string)
	if labelCol == "" {
		labelCol = "Label"
	}
	scoreCol, _ := in["score_column"].(string)
	if scoreCol == "" {
		scoreCol = ScoreColumn
	}
	weightCol, _ := in["weight_column"].(string)
	threshold, ok := in["threshold"].(float64)
	if !ok {
		threshold = 0.5
	}

	schema := data.Schema()
	labelIdx := schema.Find(labelCol)
	if labelIdx < 0 || schema[labelIdx].Type != rows.Float {
		return nil, fmt.Errorf("label column %q missing or not a float column", labelCol)
	}
	scoreIdx := schema.Find(scoreCol)
	if scoreIdx < 0 || schema[scoreIdx].Type != rows.Float {
		return nil, fmt.Errorf("score column %q missing or not a float column", scoreCol)
	}
	weightIdx := -1
	if weightCol != "" {
		weightIdx = schema.Find(weightCol)
		if weightIdx < 0 || schema[weightIdx].Type != rows.Float {
			return nil, fmt.Errorf("weight column %q missing or not a float column", weightCol)
		}
	}

	var labels, scores, weights []float64
	c := data.Open()
	for c.MoveNext() {
		y := 0.0
		if c.Float(labelIdx) >= 0.5 {
			y = 1
		}
		labels = append(labels, y)
		scores = append(scores, c.Float(scoreIdx))
		if weightIdx >= 0 {
			weights = append(weights, c.Float(weightIdx))
		} else {
			weights = append(weights, 1)
		}
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("no rows to evaluate")
	}

	unit := make([]float64, len(labels))
	for i := range unit {
		unit[i] = 1
	}

	var out *rows.Buffer
	if weightIdx >= 0 {
		out = rows.NewBuffer(rows.Schema{
			{Name: IsWeightedColumn, Type: rows.Bool},
			{Name: AUCColumn, Type: rows.Float},
			{Name: AccuracyColumn, Type: rows.Float},
		})
		out.MustAppend(false, auc(labels, scores, unit), accuracy(labels, scores, unit, threshold))
		out.MustAppend(true, auc(labels, scores, weights), accuracy(labels, scores, weights, threshold))
	} else {
		out = rows.NewBuffer(rows.Schema{
			{Name: AUCColumn, Type: rows.Float},
			{Name: AccuracyColumn, Type: rows.Float},
		})
		out.MustAppend(auc(labels, scores, unit), accuracy(labels, scores, unit, threshold))
	}
	return registry.Values{"metrics": out}, nil
}

// accuracy is the weighted fraction of rows whose thresholded score matches
// the label.
func accuracy(labels, scores, weights []float64, threshold float64) float64 {
	correct, total := 0.0, 0.0
	for i := range labels {
		pred := 0.0
		if scores[i] >= threshold {
			pred = 1
		}
		if pred == labels[i] {
			correct += weights[i]
		}
		total += weights[i]
	}
	if total == 0 {
		return 0
	}
	return correct / total
}

// auc is the weighted area under the ROC curve via pairwise comparison of
// positive and negative rows, counting ties as half. Quadratic in the row
// count, which is fine for the evaluation sizes these built-ins target.
func auc(labels, scores, weights []float64) float64 {
	num, denom := 0.0, 0.0
	for i := range labels {
		if labels[i] != 1 {
			continue
		}
		for j := range labels {
			if labels[j] != 0 {
				continue
			}
			w := weights[i] * weights[j]
			switch {
			case scores[i] > scores[j]:
				num += w
			case scores[i] == scores[j]:
				num += 0.5 * w
			}
			denom += w
		}
	}
	if denom == 0 {
		return 0.5
	}
	return num / denom
}
