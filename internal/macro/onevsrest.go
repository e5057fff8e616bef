package macro

import (
	"context"
	"fmt"
	"math"

	"github.com/vk/gridml/internal/ctxlog"
	"github.com/vk/gridml/internal/env"
	"github.com/vk/gridml/internal/pipeline"
	"github.com/vk/gridml/internal/registry"
	"github.com/vk/gridml/internal/rows"
)

// OneVsRestModel combines one binary predictor per label class. Scoring a
// row returns the index of the best-scoring class within Classes.
type OneVsRestModel struct {
	Classes []string
	Models  []pipeline.Model
}

// ModelKind implements pipeline.Model.
func (m *OneVsRestModel) ModelKind() string {
	return fmt.Sprintf("one-vs-rest[%d]", len(m.Classes))
}

// ScoreRow implements pipeline.RowScorer when every per-class model does.
func (m *OneVsRestModel) ScoreRow(features map[string]float64) float64 {
	best, bestScore := 0, math.Inf(-1)
	for i, sub := range m.Models {
		scorer, ok := sub.(pipeline.RowScorer)
		if !ok {
			return math.NaN()
		}
		if s := scorer.ScoreRow(features); s > bestScore {
			best, bestScore = i, s
		}
	}
	return float64(best)
}

// oneVsRest expands a template once per distinct label class observed in the
// input data. Each instantiation trains on a binarized view of the data in
// which the current class maps to 1 and every other class to 0; the per
// class models are combined into a single OneVsRestModel.
func oneVsRest(reg *registry.Registry) registry.InvokeFunc {
	return func(ctx context.Context, e *env.Environment, in registry.Values) (registry.Values, error) {
		logger := ctxlog.FromContext(ctx)

		data, err := streamIn(in, "data")
		if err != nil {
			return nil, err
		}
		body, err := graphIn(in, "body")
		if err != nil {
			return nil, err
		}
		labelCol, err := strIn(in, "label_column")
		if err != nil {
			return nil, err
		}

		schema := data.Schema()
		labelIdx := schema.Find(labelCol)
		if labelIdx < 0 {
			return nil, &PartitionError{Column: labelCol, Reason: "column not present in the input data"}
		}

		classes, rowLabels, err := labelValues(data, labelCol)
		if err != nil {
			return nil, err
		}
		if len(classes) == 0 {
			return nil, fmt.Errorf("input data has no rows to derive label classes from")
		}

		warnings := newWarningLog()
		if len(classes) == 1 {
			warnings.addf("Label column %q has a single class %q; one-vs-rest degenerates to one instantiation", labelCol, classes[0])
		}

		logger.Debug("One-vs-rest expansion starting.", "classes", len(classes))
		models := make([]pipeline.Model, 0, len(classes))
		for _, class := range classes {
			positives := 0
			for _, l := range rowLabels {
				if l == class {
					positives++
				}
			}
			if positives == 0 {
				warnings.addf("Class %q has no positive instances in the training data", class)
			}

			res, err := runTemplate(ctx, e, reg, body, map[string]any{
				TrainPort: binarizeLabel(data, labelIdx, class),
			})
			if err != nil {
				return nil, fmt.Errorf("class %q: %w", class, err)
			}
			model, err := templateModel(res)
			if err != nil {
				return nil, fmt.Errorf("class %q: %w", class, err)
			}
			models = append(models, model)
			logger.Debug("Class instantiation complete.", "class", class)
		}

		return registry.Values{
			"model":    &OneVsRestModel{Classes: classes, Models: models},
			"warnings": warnings.stream(),
		}, nil
	}
}

// binarizeLabel lazily rewrites the label column to a float column holding 1
// for rows of the current class and 0 for the rest.
func binarizeLabel(data rows.Stream, labelIdx int, class string) rows.Stream {
	src := data.Schema()
	schema := make(rows.Schema, len(src))
	copy(schema, src)
	schema[labelIdx] = rows.Column{Name: src[labelIdx].Name, Type: rows.Float}

	stringify := func(v any) string {
		switch x := v.(type) {
		case string:
			return x
		case bool:
			if x {
				return "true"
			}
			return "false"
		case float64:
			return formatLabel(x)
		default:
			return ""
		}
	}

	return rows.Derive(data, schema, func(row []any) []any {
		out := make([]any, len(row))
		copy(out, row)
		if stringify(row[labelIdx]) == class {
			out[labelIdx] = 1.0
		} else {
			out[labelIdx] = 0.0
		}
		return out
	})
}

func formatLabel(f float64) string {
	return fmt.Sprintf("%g", f)
}
