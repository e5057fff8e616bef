package trainers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/gridml/internal/env"
	"github.com/vk/gridml/internal/registry"
	"github.com/vk/gridml/internal/rows"
)

func trainingData(t *testing.T, labels []float64, features []float64) rows.Stream {
	t.Helper()
	require.Equal(t, len(labels), len(features))
	b := rows.NewBuffer(rows.Schema{
		{Name: "Label", Type: rows.Float},
		{Name: "X", Type: rows.Float},
	})
	for i := range labels {
		b.MustAppend(labels[i], features[i])
	}
	return b
}

func TestTrainMajority(t *testing.T) {
	t.Run("learns the positive rate", func(t *testing.T) {
		data := trainingData(t, []float64{1, 1, 0, 0, 1}, []float64{1, 2, 3, 4, 5})
		out, err := trainMajority(context.Background(), env.New(42), registry.Values{
			"data":         data,
			"label_column": "Label",
		})
		require.NoError(t, err)

		m, ok := out["model"].(*MajorityModel)
		require.True(t, ok)
		assert.InDelta(t, 0.6, m.Rate, 1e-12)
		assert.Equal(t, "majority", m.ModelKind())

		// The score is constant regardless of features.
		assert.Equal(t, m.Rate, m.ScoreRow(map[string]float64{"X": 100}))
		assert.Equal(t, m.Rate, m.ScoreRow(nil))
	})

	t.Run("empty data fails", func(t *testing.T) {
		data := trainingData(t, nil, nil)
		_, err := trainMajority(context.Background(), env.New(42), registry.Values{
			"data":         data,
			"label_column": "Label",
		})
		assert.ErrorContains(t, err, "empty")
	})

	t.Run("missing label column fails", func(t *testing.T) {
		data := trainingData(t, []float64{1}, []float64{1})
		_, err := trainMajority(context.Background(), env.New(42), registry.Values{
			"data":         data,
			"label_column": "Missing",
		})
		assert.ErrorContains(t, err, "not present")
	})
}

func TestTrainLinear(t *testing.T) {
	t.Run("separates a trivially separable feature", func(t *testing.T) {
		data := trainingData(t,
			[]float64{0, 0, 0, 1, 1, 1},
			[]float64{-2, -1.5, -1, 1, 1.5, 2},
		)
		out, err := trainLinear(context.Background(), env.New(42), registry.Values{
			"data":          data,
			"label_column":  "Label",
			"epochs":        50,
			"learning_rate": 0.5,
		})
		require.NoError(t, err)

		m, ok := out["model"].(*LinearModel)
		require.True(t, ok)
		assert.Equal(t, []string{"X"}, m.Features)

		pos := m.ScoreRow(map[string]float64{"X": 2})
		neg := m.ScoreRow(map[string]float64{"X": -2})
		assert.Greater(t, pos, 0.9)
		assert.Less(t, neg, 0.1)
	})

	t.Run("training is deterministic", func(t *testing.T) {
		data := trainingData(t, []float64{0, 1, 0, 1}, []float64{-1, 1, -2, 2})
		in := registry.Values{
			"data":          data,
			"label_column":  "Label",
			"epochs":        10,
			"learning_rate": 0.1,
		}
		first, err := trainLinear(context.Background(), env.New(42), in)
		require.NoError(t, err)
		second, err := trainLinear(context.Background(), env.New(42), in)
		require.NoError(t, err)
		assert.Equal(t, first["model"], second["model"])
	})

	t.Run("no feature columns fails", func(t *testing.T) {
		b := rows.NewBuffer(rows.Schema{{Name: "Label", Type: rows.Float}})
		b.MustAppend(1.0)
		_, err := trainLinear(context.Background(), env.New(42), registry.Values{
			"data":          b,
			"label_column":  "Label",
			"epochs":        1,
			"learning_rate": 0.1,
		})
		assert.ErrorContains(t, err, "no float feature columns")
	})

	t.Run("non-float label column fails", func(t *testing.T) {
		b := rows.NewBuffer(rows.Schema{
			{Name: "Label", Type: rows.Text},
			{Name: "X", Type: rows.Float},
		})
		b.MustAppend("yes", 1.0)
		_, err := trainLinear(context.Background(), env.New(42), registry.Values{
			"data":          b,
			"label_column":  "Label",
			"epochs":        1,
			"learning_rate": 0.1,
		})
		assert.ErrorContains(t, err, "must be a float column")
	})
}

func TestRegister(t *testing.T) {
	r := registry.New()
	Module{}.Register(r)
	for _, kind := range []string{"trainer.majority", "trainer.linear"} {
		_, err := r.Resolve(kind)
		assert.NoError(t, err, kind)
	}
}
