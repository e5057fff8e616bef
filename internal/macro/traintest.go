package macro

import (
	"context"
	"fmt"

	"github.com/vk/gridml/internal/ctxlog"
	"github.com/vk/gridml/internal/env"
	"github.com/vk/gridml/internal/registry"
)

// trainTest is the degenerate single-instantiation macro: it binds the
// supplied train and test streams to the template's declared ports, runs the
// clone once, and surfaces the trained model plus the instantiation's
// metrics unchanged (no fold tagging or summary rows are synthesized for a
// single instantiation).
func trainTest(reg *registry.Registry) registry.InvokeFunc {
	return func(ctx context.Context, e *env.Environment, in registry.Values) (registry.Values, error) {
		logger := ctxlog.FromContext(ctx)

		train, err := streamIn(in, "train")
		if err != nil {
			return nil, err
		}
		test, err := streamIn(in, "test")
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
		weightCol, err := strIn(in, "weight_column")
		if err != nil {
			return nil, err
		}
		evaluatorKind, err := strIn(in, "evaluator")
		if err != nil {
			return nil, err
		}

		warnings := newWarningLog()
		if labelCol != "" {
			_, trainLabels, err := labelValues(train, labelCol)
			if err != nil {
				return nil, err
			}
			_, testLabels, err := labelValues(test, labelCol)
			if err != nil {
				return nil, err
			}
			if trainLabels != nil && testLabels != nil {
				if unseen := unseenLabels(trainLabels, testLabels); len(unseen) > 0 {
					warnings.addf("Test partition contains label values not present in the training set: %v", unseen)
				}
			}
		}

		logger.Debug("Train/test expansion starting.")
		res, err := runTemplate(ctx, e, reg, body, map[string]any{TrainPort: train, TestPort: test})
		if err != nil {
			return nil, err
		}
		model, err := templateModel(res)
		if err != nil {
			return nil, err
		}
		metrics, err := instanceMetrics(ctx, e, reg, body, res, model, test, labelCol, weightCol, evaluatorKind)
		if err != nil {
			return nil, fmt.Errorf("evaluating test partition: %w", err)
		}
		logger.Debug("Train/test expansion finished.")

		return registry.Values{
			"model":    model,
			"metrics":  metrics,
			"warnings": warnings.stream(),
		}, nil
	}
}
