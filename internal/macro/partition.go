package macro

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/vk/gridml/internal/env"
	"github.com/vk/gridml/internal/rows"
)

// cvSalt derives the partitioning random source from the environment seed.
// The salt keeps fold assignment independent of any other seed consumer.
const cvSalt = 0x666f6c64 // "fold"

// assignFolds computes a deterministic, seed-derived fold index per row.
//
// Without a stratification column, rows are shuffled once and dealt
// round-robin so folds stay balanced. With one, the same shuffle-and-deal
// happens independently inside each group of rows sharing a stratification
// value, preserving the distribution of that column's distinct values
// across folds. The column must exist and be key-typed (text or bool).
func assignFolds(e *env.Environment, data rows.Stream, k int, stratCol string) ([]int, error) {
	schema := data.Schema()

	groupOf := func(c rows.Cursor) string { return "" }
	if stratCol != "" {
		idx := schema.Find(stratCol)
		if idx < 0 {
			return nil, &PartitionError{Column: stratCol, Reason: "column not present in the input data"}
		}
		switch schema[idx].Type {
		case rows.Text:
			groupOf = func(c rows.Cursor) string { return c.Text(idx) }
		case rows.Bool:
			groupOf = func(c rows.Cursor) string { return strconv.FormatBool(c.Bool(idx)) }
		default:
			return nil, &PartitionError{Column: stratCol, Reason: fmt.Sprintf("type %s is not a key type", schema[idx].Type)}
		}
	}

	// One pass to bucket row indices by group, keeping first-seen group
	// order so the result does not depend on map iteration.
	var groupOrder []string
	groups := make(map[string][]int)
	n := 0
	c := data.Open()
	for c.MoveNext() {
		g := groupOf(c)
		if _, seen := groups[g]; !seen {
			groupOrder = append(groupOrder, g)
		}
		groups[g] = append(groups[g], n)
		n++
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	rng := e.Rand(cvSalt)
	assign := make([]int, n)
	for _, g := range groupOrder {
		members := groups[g]
		rng.Shuffle(len(members), func(i, j int) {
			members[i], members[j] = members[j], members[i]
		})
		for j, row := range members {
			assign[row] = j % k
		}
	}
	return assign, nil
}

// labelValues collects the distinct stringified values of a column, sorted
// for determinism, plus the per-row values. A missing column returns nils;
// label-aware diagnostics are then simply skipped.
func labelValues(data rows.Stream, labelCol string) (distinct []string, perRow []string, err error) {
	schema := data.Schema()
	idx := schema.Find(labelCol)
	if idx < 0 {
		return nil, nil, nil
	}

	read := func(c rows.Cursor) string {
		switch schema[idx].Type {
		case rows.Text:
			return c.Text(idx)
		case rows.Bool:
			return strconv.FormatBool(c.Bool(idx))
		case rows.Float:
			return strconv.FormatFloat(c.Float(idx), 'g', -1, 64)
		default:
			return ""
		}
	}

	seen := make(map[string]bool)
	c := data.Open()
	for c.MoveNext() {
		v := read(c)
		perRow = append(perRow, v)
		if !seen[v] {
			seen[v] = true
			distinct = append(distinct, v)
		}
	}
	if err := c.Err(); err != nil {
		return nil, nil, err
	}
	sort.Strings(distinct)
	return distinct, perRow, nil
}

// unseenLabels returns the label values present in test but absent from
// train, sorted.
func unseenLabels(train, test []string) []string {
	seen := make(map[string]bool, len(train))
	for _, v := range train {
		seen[v] = true
	}
	var unseen []string
	dup := make(map[string]bool)
	for _, v := range test {
		if !seen[v] && !dup[v] {
			dup[v] = true
			unseen = append(unseen, v)
		}
	}
	sort.Strings(unseen)
	return unseen
}
