package macro

import (
	"context"
	"fmt"

	"github.com/vk/gridml/internal/ctxlog"
	"github.com/vk/gridml/internal/env"
	"github.com/vk/gridml/internal/pipeline"
	"github.com/vk/gridml/internal/registry"
	"github.com/vk/gridml/internal/rows"
)

// crossValidate expands a template once per fold: each fold's training and
// testing partitions come from a deterministic, seed-derived split of the
// input data (optionally stratified), the clone is compiled and executed,
// and the per-fold metrics are aggregated with Average/StdDev summary rows.
func crossValidate(reg *registry.Registry) registry.InvokeFunc {
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
		k, err := asInt(in["folds"])
		if err != nil {
			return nil, fmt.Errorf("input \"folds\": %w", err)
		}
		if k < 1 {
			return nil, fmt.Errorf("fold count must be at least 1, got %d", k)
		}
		stratCol, err := strIn(in, "stratification_column")
		if err != nil {
			return nil, err
		}
		weightCol, err := strIn(in, "weight_column")
		if err != nil {
			return nil, err
		}
		labelCol, err := strIn(in, "label_column")
		if err != nil {
			return nil, err
		}
		evaluatorKind, err := strIn(in, "evaluator")
		if err != nil {
			return nil, err
		}

		assign, err := assignFolds(e, data, k, stratCol)
		if err != nil {
			return nil, err
		}
		_, rowLabels, err := labelValues(data, labelCol)
		if err != nil {
			return nil, err
		}

		warnings := newWarningLog()
		models := make([]pipeline.Model, 0, k)
		metrics := make([]rows.Stream, 0, k)

		logger.Debug("Cross-validation expansion starting.", "folds", k, "rows", len(assign), "stratified", stratCol != "")
		for f := 0; f < k; f++ {
			fold := f
			train := rows.Filter(data, func(i int) bool { return assign[i] != fold })
			test := rows.Filter(data, func(i int) bool { return assign[i] == fold })

			if rowLabels != nil {
				var trainL, testL []string
				for i, l := range rowLabels {
					if assign[i] == fold {
						testL = append(testL, l)
					} else {
						trainL = append(trainL, l)
					}
				}
				if unseen := unseenLabels(trainL, testL); len(unseen) > 0 {
					warnings.addf("Fold %d: test partition contains label values not present in the training set: %v", fold, unseen)
				}
			}

			res, err := runTemplate(ctx, e, reg, body, map[string]any{TrainPort: train, TestPort: test})
			if err != nil {
				return nil, fmt.Errorf("fold %d: %w", fold, err)
			}
			model, err := templateModel(res)
			if err != nil {
				return nil, fmt.Errorf("fold %d: %w", fold, err)
			}
			models = append(models, model)

			m, err := instanceMetrics(ctx, e, reg, body, res, model, test, labelCol, weightCol, evaluatorKind)
			if err != nil {
				return nil, fmt.Errorf("fold %d: %w", fold, err)
			}
			metrics = append(metrics, m)
			logger.Debug("Fold complete.", "fold", fold)
		}

		agg, err := aggregate(metrics, weightCol != "", warnings)
		if err != nil {
			return nil, err
		}
		logger.Debug("Cross-validation expansion finished.", "folds", k, "warnings", warnings.buf.Len())

		return registry.Values{
			"metrics":  agg,
			"models":   &FoldModels{Models: models},
			"warnings": warnings.stream(),
		}, nil
	}
}
