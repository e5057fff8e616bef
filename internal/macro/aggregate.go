package macro

import (
	"fmt"
	"math"

	"github.com/vk/gridml/internal/rows"
)

// Aggregated-metrics column names.
const (
	// FoldIndexColumn tags each output row with its origin: "Average",
	// "Standard Deviation", or "Fold i" in instantiation order.
	FoldIndexColumn = "Fold Index"
	// IsWeightedColumn distinguishes weighted from unweighted row groups
	// when a weight column is configured.
	IsWeightedColumn = "IsWeighted"
)

// foldRow is one instantiation's metric values keyed by column name.
type foldRow map[string]any

// aggregate concatenates per-instantiation metric streams into a single
// stream, tagged per fold, with leading Average and Standard Deviation
// summary rows per numeric column. With weighting, the unweighted and
// weighted aggregations are computed independently and never mixed: the row
// order is [Average(u), StdDev(u), Average(w), StdDev(w)] followed by
// (Fold i unweighted, Fold i weighted) pairs. Metric columns present in only
// some instantiations widen the schema defensively and record a warning.
func aggregate(folds []rows.Stream, weighted bool, w *warningLog) (rows.Stream, error) {
	if len(folds) == 0 {
		return nil, fmt.Errorf("aggregate: no instantiations produced metrics")
	}

	cols, err := unionColumns(folds, w)
	if err != nil {
		return nil, err
	}

	plain := make([]foldRow, len(folds))
	weight := make([]foldRow, len(folds))
	for i, f := range folds {
		u, wt, err := splitFoldRows(f, i, w)
		if err != nil {
			return nil, err
		}
		plain[i] = u
		weight[i] = wt
		if weighted && wt == nil {
			w.addf("Fold %d produced no weighted metric row despite a configured weight column", i)
		}
	}

	schema := rows.Schema{{Name: FoldIndexColumn, Type: rows.Text}}
	if weighted {
		schema = append(schema, rows.Column{Name: IsWeightedColumn, Type: rows.Bool})
	}
	schema = append(schema, cols...)

	out := rows.NewBuffer(schema)
	emit := func(tag string, isWeighted bool, vals []any) {
		row := []any{tag}
		if weighted {
			row = append(row, isWeighted)
		}
		out.MustAppend(append(row, vals...)...)
	}

	emit("Average", false, summarize(cols, plain, meanOf, w))
	emit("Standard Deviation", false, summarize(cols, plain, stddevOf, w))
	if weighted {
		emit("Average", true, summarize(cols, weight, meanOf, w))
		emit("Standard Deviation", true, summarize(cols, weight, stddevOf, w))
	}
	for i := range folds {
		emit(fmt.Sprintf("Fold %d", i), false, foldValues(cols, plain[i]))
		if weighted {
			emit(fmt.Sprintf("Fold %d", i), true, foldValues(cols, weight[i]))
		}
	}
	return out, nil
}

// unionColumns widens the metric schema across instantiations, keeping
// first-seen column order and warning on drift. The IsWeighted marker is
// consumed by splitFoldRows and never part of the metric columns.
func unionColumns(folds []rows.Stream, w *warningLog) (rows.Schema, error) {
	var cols rows.Schema
	index := make(map[string]int)
	presentIn := make(map[string]int)

	for _, f := range folds {
		for _, c := range f.Schema() {
			if c.Name == IsWeightedColumn {
				continue
			}
			if at, seen := index[c.Name]; seen {
				if cols[at].Type != c.Type {
					w.addf("Metric column %q changes type across instantiations (%s vs %s); later values ignored",
						c.Name, cols[at].Type, c.Type)
				}
				presentIn[c.Name]++
				continue
			}
			index[c.Name] = len(cols)
			presentIn[c.Name] = 1
			cols = append(cols, rows.Column{Name: c.Name, Type: c.Type, SlotNames: c.SlotNames})
		}
	}
	for _, c := range cols {
		if presentIn[c.Name] < len(folds) {
			w.addf("Metric column %q is only present in %d of %d instantiations; schema widened",
				c.Name, presentIn[c.Name], len(folds))
		}
	}
	return cols, nil
}

// splitFoldRows reads one instantiation's metrics stream and returns its
// unweighted and weighted rows. Streams without an IsWeighted column yield
// only an unweighted row.
func splitFoldRows(f rows.Stream, fold int, w *warningLog) (unweighted, weighted foldRow, err error) {
	schema := f.Schema()
	flagIdx := schema.Find(IsWeightedColumn)
	if flagIdx >= 0 && schema[flagIdx].Type != rows.Bool {
		flagIdx = -1
	}

	c := f.Open()
	for c.MoveNext() {
		isWeighted := flagIdx >= 0 && c.Bool(flagIdx)
		row := make(foldRow, len(schema))
		for i, col := range schema {
			if i == flagIdx {
				continue
			}
			row[col.Name] = rows.Value(c, schema, i)
		}
		switch {
		case isWeighted && weighted == nil:
			weighted = row
		case !isWeighted && unweighted == nil:
			unweighted = row
		default:
			w.addf("Fold %d produced more than one metric row per group; extra rows ignored", fold)
		}
	}
	if err := c.Err(); err != nil {
		return nil, nil, err
	}
	if unweighted == nil {
		return nil, nil, fmt.Errorf("instantiation %d produced no unweighted metric row", fold)
	}
	return unweighted, weighted, nil
}

// summarize computes one summary row (mean or standard deviation) over the
// per-fold rows, column by column. Non-numeric columns get zero values;
// numeric columns missing from a fold are excluded from that column's
// statistic. Vector columns reduce element-wise; variable-length vectors
// cannot be reduced and are reported as a diagnostic.
func summarize(cols rows.Schema, perFold []foldRow, reduce func([]float64) float64, w *warningLog) []any {
	vals := make([]any, len(cols))
	for i, col := range cols {
		switch col.Type {
		case rows.Float:
			var xs []float64
			for _, row := range perFold {
				if row == nil {
					continue
				}
				if v, ok := row[col.Name].(float64); ok {
					xs = append(xs, v)
				}
			}
			if len(xs) == 0 {
				vals[i] = math.NaN()
			} else {
				vals[i] = reduce(xs)
			}
		case rows.FloatVector:
			vals[i] = reduceVectors(col.Name, perFold, reduce, w)
		case rows.Text:
			vals[i] = ""
		case rows.Bool:
			vals[i] = false
		}
	}
	return vals
}

func reduceVectors(name string, perFold []foldRow, reduce func([]float64) float64, w *warningLog) []float64 {
	var vecs [][]float64
	for _, row := range perFold {
		if row == nil {
			continue
		}
		if v, ok := row[name].([]float64); ok {
			vecs = append(vecs, v)
		}
	}
	if len(vecs) == 0 {
		return []float64{}
	}
	width := len(vecs[0])
	for _, v := range vecs[1:] {
		if len(v) != width {
			w.addf("Detected variable-length output columns for metric %q; element-wise aggregation skipped", name)
			return []float64{}
		}
	}
	out := make([]float64, width)
	elem := make([]float64, len(vecs))
	for j := 0; j < width; j++ {
		for i, v := range vecs {
			elem[i] = v[j]
		}
		out[j] = reduce(elem)
	}
	return out
}

// foldValues maps one fold's row onto the widened schema, filling missing
// columns with explicit missing markers.
func foldValues(cols rows.Schema, row foldRow) []any {
	vals := make([]any, len(cols))
	for i, col := range cols {
		var v any
		if row != nil {
			v = row[col.Name]
		}
		switch col.Type {
		case rows.Float:
			if f, ok := v.(float64); ok {
				vals[i] = f
			} else {
				vals[i] = math.NaN()
			}
		case rows.FloatVector:
			if vec, ok := v.([]float64); ok {
				vals[i] = vec
			} else {
				vals[i] = []float64{}
			}
		case rows.Text:
			if s, ok := v.(string); ok {
				vals[i] = s
			} else {
				vals[i] = ""
			}
		case rows.Bool:
			if b, ok := v.(bool); ok {
				vals[i] = b
			} else {
				vals[i] = false
			}
		}
	}
	return vals
}

// meanOf is the arithmetic mean.
func meanOf(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// stddevOf is the sample standard deviation; a single observation has none.
func stddevOf(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := meanOf(xs)
	s := 0.0
	for _, x := range xs {
		d := x - m
		s += d * d
	}
	return math.Sqrt(s / float64(len(xs)-1))
}
