package evaluate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/gridml/internal/env"
	"github.com/vk/gridml/internal/registry"
	"github.com/vk/gridml/internal/rows"
)

type constModel struct{ value float64 }

func (m *constModel) ModelKind() string { return "const" }

func (m *constModel) ScoreRow(features map[string]float64) float64 {
	return m.value + features["X"]
}

func scoredData(t *testing.T, labels, scores []float64) rows.Stream {
	t.Helper()
	require.Equal(t, len(labels), len(scores))
	b := rows.NewBuffer(rows.Schema{
		{Name: "Label", Type: rows.Float},
		{Name: ScoreColumn, Type: rows.Float},
	})
	for i := range labels {
		b.MustAppend(labels[i], scores[i])
	}
	return b
}

func metricsRow(t *testing.T, out registry.Values) (rows.Schema, [][]any) {
	t.Helper()
	s, ok := out["metrics"].(rows.Stream)
	require.True(t, ok)
	var got [][]any
	c := s.Open()
	for c.MoveNext() {
		got = append(got, rows.ReadRow(c, s.Schema()))
	}
	require.NoError(t, c.Err())
	return s.Schema(), got
}

func TestScore(t *testing.T) {
	t.Run("appends a score column", func(t *testing.T) {
		b := rows.NewBuffer(rows.Schema{
			{Name: "Label", Type: rows.Float},
			{Name: "X", Type: rows.Float},
		})
		b.MustAppend(1.0, 2.0)
		b.MustAppend(0.0, 3.0)

		out, err := score(context.Background(), env.New(42), registry.Values{
			"model": &constModel{value: 10},
			"data":  b,
		})
		require.NoError(t, err)

		s, ok := out["data"].(rows.Stream)
		require.True(t, ok)
		schema := s.Schema()
		require.Equal(t, 3, len(schema))
		assert.Equal(t, ScoreColumn, schema[2].Name)

		c := s.Open()
		require.True(t, c.MoveNext())
		assert.Equal(t, 12.0, c.Float(2))
		require.True(t, c.MoveNext())
		assert.Equal(t, 13.0, c.Float(2))
		assert.False(t, c.MoveNext())
	})

	t.Run("rejects models that cannot score", func(t *testing.T) {
		b := rows.NewBuffer(rows.Schema{{Name: "X", Type: rows.Float}})
		_, err := score(context.Background(), env.New(42), registry.Values{
			"model": "not a model",
			"data":  b,
		})
		assert.ErrorContains(t, err, "cannot score rows")
	})

	t.Run("rejects data that already has a score column", func(t *testing.T) {
		b := rows.NewBuffer(rows.Schema{{Name: ScoreColumn, Type: rows.Float}})
		_, err := score(context.Background(), env.New(42), registry.Values{
			"model": &constModel{},
			"data":  b,
		})
		assert.ErrorContains(t, err, "already has")
	})
}

func TestEvaluateBinary(t *testing.T) {
	t.Run("perfect ranking", func(t *testing.T) {
		data := scoredData(t, []float64{1, 1, 0, 0}, []float64{0.9, 0.8, 0.2, 0.1})
		out, err := evaluateBinary(context.Background(), env.New(42), registry.Values{"data": data})
		require.NoError(t, err)

		schema, got := metricsRow(t, out)
		require.Len(t, got, 1)
		assert.Equal(t, 1.0, got[0][schema.Find(AUCColumn)])
		assert.Equal(t, 1.0, got[0][schema.Find(AccuracyColumn)])
	})

	t.Run("hand-computed mixed ranking", func(t *testing.T) {
		// Pairs: (0.7,0.4)+, (0.7,0.6)+, (0.3,0.4)-, (0.3,0.6)- => AUC 0.5.
		data := scoredData(t, []float64{1, 1, 0, 0}, []float64{0.7, 0.3, 0.4, 0.6})
		out, err := evaluateBinary(context.Background(), env.New(42), registry.Values{"data": data})
		require.NoError(t, err)

		schema, got := metricsRow(t, out)
		assert.InDelta(t, 0.5, got[0][schema.Find(AUCColumn)].(float64), 1e-12)
		// Threshold 0.5: predictions 1,0,0,1 against labels 1,1,0,0.
		assert.InDelta(t, 0.5, got[0][schema.Find(AccuracyColumn)].(float64), 1e-12)
	})

	t.Run("tied scores count half", func(t *testing.T) {
		data := scoredData(t, []float64{1, 0}, []float64{0.5, 0.5})
		out, err := evaluateBinary(context.Background(), env.New(42), registry.Values{"data": data})
		require.NoError(t, err)

		schema, got := metricsRow(t, out)
		assert.InDelta(t, 0.5, got[0][schema.Find(AUCColumn)].(float64), 1e-12)
	})

	t.Run("single-class data defaults AUC", func(t *testing.T) {
		data := scoredData(t, []float64{1, 1}, []float64{0.9, 0.8})
		out, err := evaluateBinary(context.Background(), env.New(42), registry.Values{"data": data})
		require.NoError(t, err)

		schema, got := metricsRow(t, out)
		assert.InDelta(t, 0.5, got[0][schema.Find(AUCColumn)].(float64), 1e-12)
		assert.Equal(t, 1.0, got[0][schema.Find(AccuracyColumn)])
	})

	t.Run("weighted evaluation emits both aggregations", func(t *testing.T) {
		b := rows.NewBuffer(rows.Schema{
			{Name: "Label", Type: rows.Float},
			{Name: ScoreColumn, Type: rows.Float},
			{Name: "Weight", Type: rows.Float},
		})
		// The misclassified positive carries triple weight.
		b.MustAppend(1.0, 0.9, 1.0)
		b.MustAppend(1.0, 0.1, 3.0)
		b.MustAppend(0.0, 0.2, 1.0)

		out, err := evaluateBinary(context.Background(), env.New(42), registry.Values{
			"data":          b,
			"weight_column": "Weight",
		})
		require.NoError(t, err)

		schema, got := metricsRow(t, out)
		require.Len(t, got, 2)
		flag := schema.Find(IsWeightedColumn)
		require.True(t, flag >= 0)
		assert.Equal(t, false, got[0][flag])
		assert.Equal(t, true, got[1][flag])

		accIdx := schema.Find(AccuracyColumn)
		assert.InDelta(t, 2.0/3, got[0][accIdx].(float64), 1e-12)
		assert.InDelta(t, 2.0/5, got[1][accIdx].(float64), 1e-12)

		// Weighted AUC: pairs (0.9 vs 0.2) w=1 correct, (0.1 vs 0.2) w=3 wrong.
		aucIdx := schema.Find(AUCColumn)
		assert.InDelta(t, 0.5, got[0][aucIdx].(float64), 1e-12)
		assert.InDelta(t, 0.25, got[1][aucIdx].(float64), 1e-12)
	})

	t.Run("custom threshold", func(t *testing.T) {
		data := scoredData(t, []float64{1, 0}, []float64{0.4, 0.3})
		out, err := evaluateBinary(context.Background(), env.New(42), registry.Values{
			"data":      data,
			"threshold": 0.35,
		})
		require.NoError(t, err)

		schema, got := metricsRow(t, out)
		assert.Equal(t, 1.0, got[0][schema.Find(AccuracyColumn)])
	})

	t.Run("empty data fails", func(t *testing.T) {
		data := scoredData(t, nil, nil)
		_, err := evaluateBinary(context.Background(), env.New(42), registry.Values{"data": data})
		assert.ErrorContains(t, err, "no rows")
	})

	t.Run("missing score column fails", func(t *testing.T) {
		b := rows.NewBuffer(rows.Schema{{Name: "Label", Type: rows.Float}})
		b.MustAppend(1.0)
		_, err := evaluateBinary(context.Background(), env.New(42), registry.Values{"data": b})
		assert.ErrorContains(t, err, "score column")
	})
}
