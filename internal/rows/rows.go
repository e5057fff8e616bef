// Package rows implements the pull-based row-streams flowing between
// pipeline nodes: a schema of typed, named columns and a cursor that yields
// one row at a time. Consumers advance the cursor and only then receive the
// next row's values; nothing here materializes a stream eagerly except the
// in-memory Buffer, which is the materialized representation itself.
package rows

import (
	"fmt"
)

// ColType identifies the value type of a column.
type ColType int

const (
	// Float is a float64 column.
	Float ColType = iota
	// Bool is a bool column.
	Bool
	// Text is a string column.
	Text
	// FloatVector is a []float64 column; slot names, when present, name the
	// vector's elements.
	FloatVector
)

// String returns the column type name used in diagnostics.
func (t ColType) String() string {
	switch t {
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Text:
		return "text"
	case FloatVector:
		return "floatvector"
	default:
		return "unknown"
	}
}

// Column describes one column of a stream: its name, value type, and
// optional per-slot metadata for vector columns.
type Column struct {
	Name      string
	Type      ColType
	SlotNames []string
}

// Schema is the ordered column layout of a stream.
type Schema []Column

// Find returns the index of the named column, or -1 when absent.
func (s Schema) Find(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Equal reports whether two schemas have the same columns in the same order,
// ignoring slot names.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i].Name != other[i].Name || s[i].Type != other[i].Type {
			return false
		}
	}
	return true
}

// Cursor walks a stream one row at a time. Typed getters panic when called
// for a column of the wrong type; that is a programmer error, not a data
// error. Data errors surface through Err after MoveNext returns false.
type Cursor interface {
	// MoveNext advances to the next row, returning false at end of stream or
	// on error.
	MoveNext() bool
	// Float returns the current row's value in a Float column.
	Float(col int) float64
	// Bool returns the current row's value in a Bool column.
	Bool(col int) bool
	// Text returns the current row's value in a Text column.
	Text(col int) string
	// Vector returns the current row's value in a FloatVector column.
	Vector(col int) []float64
	// Err reports the error that terminated iteration, if any.
	Err() error
}

// Stream is a re-openable sequence of rows with a fixed schema.
type Stream interface {
	Schema() Schema
	Open() Cursor
}

// Value reads the current row's value in any column as an untyped value.
func Value(c Cursor, s Schema, col int) any {
	switch s[col].Type {
	case Float:
		return c.Float(col)
	case Bool:
		return c.Bool(col)
	case Text:
		return c.Text(col)
	case FloatVector:
		return c.Vector(col)
	default:
		panic(fmt.Sprintf("rows: unknown column type %v", s[col].Type))
	}
}

// ReadRow reads the current row of a cursor into a fresh slice, one untyped
// value per column.
func ReadRow(c Cursor, s Schema) []any {
	row := make([]any, len(s))
	for i := range s {
		row[i] = Value(c, s, i)
	}
	return row
}
