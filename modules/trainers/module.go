// Package trainers provides built-in deterministic trainer entry points.
// Their numeric internals are deliberately simple; the engine only cares
// that a trainer consumes a training row-stream and produces a model.
package trainers

import (
	"context"
	"fmt"
	"math"

	"github.com/vk/gridml/internal/env"
	"github.com/vk/gridml/internal/pipeline"
	"github.com/vk/gridml/internal/registry"
	"github.com/vk/gridml/internal/rows"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the trainer entry points.
func (Module) Register(r *registry.Registry) {
	r.Register(&registry.EntryPoint{
		Kind: "trainer.majority",
		Inputs: []pipeline.Param{
			{Name: "data", Kind: pipeline.KindRowStream},
			{Name: "label_column", Kind: pipeline.KindScalar, Optional: true, Default: "Label"},
		},
		Outputs: []pipeline.Param{
			{Name: "model", Kind: pipeline.KindModel},
		},
		Run: trainMajority,
	})
	r.Register(&registry.EntryPoint{
		Kind: "trainer.linear",
		Inputs: []pipeline.Param{
			{Name: "data", Kind: pipeline.KindRowStream},
			{Name: "label_column", Kind: pipeline.KindScalar, Optional: true, Default: "Label"},
			{Name: "epochs", Kind: pipeline.KindScalar, Optional: true, Default: 10},
			{Name: "learning_rate", Kind: pipeline.KindScalar, Optional: true, Default: 0.1},
		},
		Outputs: []pipeline.Param{
			{Name: "model", Kind: pipeline.KindModel},
		},
		Run: trainLinear,
	})
}

// MajorityModel predicts a constant score: the positive rate observed in the
// training data.
type MajorityModel struct {
	Rate float64
}

// ModelKind implements pipeline.Model.
func (m *MajorityModel) ModelKind() string { return "majority" }

// ScoreRow implements pipeline.RowScorer.
func (m *MajorityModel) ScoreRow(features map[string]float64) float64 { return m.Rate }

func trainMajority(ctx context.Context, e *env.Environment, in registry.Values) (registry.Values, error) {
	data, labelIdx, _, err := trainingView(in)
	if err != nil {
		return nil, err
	}

	n, pos := 0, 0.0
	c := data.Open()
	for c.MoveNext() {
		if c.Float(labelIdx) >= 0.5 {
			pos++
		}
		n++
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("training data is empty")
	}
	return registry.Values{"model": &MajorityModel{Rate: pos / float64(n)}}, nil
}

// LinearModel is a logistic model over named float features.
type LinearModel struct {
	Features []string
	Weights  []float64
	Bias     float64
}

// ModelKind implements pipeline.Model.
func (m *LinearModel) ModelKind() string { return "linear" }

// ScoreRow implements pipeline.RowScorer. Missing features score as zero.
func (m *LinearModel) ScoreRow(features map[string]float64) float64 {
	z := m.Bias
	for i, name := range m.Features {
		z += m.Weights[i] * features[name]
	}
	return sigmoid(z)
}

// trainLinear fits a logistic model by plain gradient steps over the data in
// row order, epoch by epoch. Weights start at zero and updates are fully
// deterministic, so the same data and settings always yield the same model.
func trainLinear(ctx context.Context, e *env.Environment, in registry.Values) (registry.Values, error) {
	data, labelIdx, features, err := trainingView(in)
	if err != nil {
		return nil, err
	}
	epochs, err := intArg(in, "epochs")
	if err != nil {
		return nil, err
	}
	lr, err := floatArg(in, "learning_rate")
	if err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("training data has no float feature columns besides the label")
	}

	schema := data.Schema()
	featIdx := make([]int, len(features))
	names := make([]string, len(features))
	for i, f := range features {
		featIdx[i] = f
		names[i] = schema[f].Name
	}

	w := make([]float64, len(features))
	bias := 0.0
	seen := false
	for epoch := 0; epoch < epochs; epoch++ {
		c := data.Open()
		for c.MoveNext() {
			y := 0.0
			if c.Float(labelIdx) >= 0.5 {
				y = 1
			}
			z := bias
			for i, at := range featIdx {
				z += w[i] * c.Float(at)
			}
			grad := sigmoid(z) - y
			for i, at := range featIdx {
				w[i] -= lr * grad * c.Float(at)
			}
			bias -= lr * grad
			seen = true
		}
		if err := c.Err(); err != nil {
			return nil, err
		}
	}
	if !seen {
		return nil, fmt.Errorf("training data is empty")
	}
	return registry.Values{"model": &LinearModel{Features: names, Weights: w, Bias: bias}}, nil
}

// trainingView resolves the shared trainer inputs: the data stream, the
// float label column's index, and the indices of the remaining float
// feature columns.
func trainingView(in registry.Values) (rows.Stream, int, []int, error) {
	data, ok := in["data"].(rows.Stream)
	if !ok {
		return nil, 0, nil, fmt.Errorf("input \"data\": expected a row-stream, got %T", in["data"])
	}
	labelCol, _ := in["label_column"].(string)

	schema := data.Schema()
	labelIdx := schema.Find(labelCol)
	if labelIdx < 0 {
		return nil, 0, nil, fmt.Errorf("label column %q not present in the training data", labelCol)
	}
	if schema[labelIdx].Type != rows.Float {
		return nil, 0, nil, fmt.Errorf("label column %q must be a float column, is %s", labelCol, schema[labelIdx].Type)
	}

	var features []int
	for i, col := range schema {
		if i != labelIdx && col.Type == rows.Float {
			features = append(features, i)
		}
	}
	return data, labelIdx, features, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func intArg(in registry.Values, name string) (int, error) {
	switch x := in[name].(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		return int(x), nil
	default:
		return 0, fmt.Errorf("input %q: expected a numeric scalar, got %T", name, in[name])
	}
}

func floatArg(in registry.Values, name string) (float64, error) {
	switch x := in[name].(type) {
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("input %q: expected a numeric scalar, got %T", name, in[name])
	}
}
