package rows

import "fmt"

// Buffer is the in-memory Stream implementation. It is append-only: rows are
// added while a node produces them and the buffer is immutable from the
// consumer's point of view once stored in the executor's value table.
type Buffer struct {
	schema Schema
	data   [][]any
}

// NewBuffer creates an empty buffer with the given schema.
func NewBuffer(schema Schema) *Buffer {
	return &Buffer{schema: schema}
}

// Append adds one row. The value count must match the schema and each value
// must match its column's type.
func (b *Buffer) Append(vals ...any) error {
	if len(vals) != len(b.schema) {
		return fmt.Errorf("rows: appended %d values to a %d-column buffer", len(vals), len(b.schema))
	}
	for i, v := range vals {
		if !typeMatches(b.schema[i].Type, v) {
			return fmt.Errorf("rows: column %q expects %s, got %T", b.schema[i].Name, b.schema[i].Type, v)
		}
	}
	b.data = append(b.data, vals)
	return nil
}

// MustAppend is Append for statically well-formed rows; it panics on error.
func (b *Buffer) MustAppend(vals ...any) {
	if err := b.Append(vals...); err != nil {
		panic(err)
	}
}

// Len returns the number of rows currently buffered.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Schema implements Stream.
func (b *Buffer) Schema() Schema {
	return b.schema
}

// Open implements Stream.
func (b *Buffer) Open() Cursor {
	return &bufferCursor{buf: b, pos: -1}
}

func typeMatches(t ColType, v any) bool {
	switch t {
	case Float:
		_, ok := v.(float64)
		return ok
	case Bool:
		_, ok := v.(bool)
		return ok
	case Text:
		_, ok := v.(string)
		return ok
	case FloatVector:
		_, ok := v.([]float64)
		return ok
	default:
		return false
	}
}

type bufferCursor struct {
	buf *Buffer
	pos int
}

func (c *bufferCursor) MoveNext() bool {
	if c.pos+1 >= len(c.buf.data) {
		return false
	}
	c.pos++
	return true
}

func (c *bufferCursor) Float(col int) float64 {
	return c.buf.data[c.pos][col].(float64)
}

func (c *bufferCursor) Bool(col int) bool {
	return c.buf.data[c.pos][col].(bool)
}

func (c *bufferCursor) Text(col int) string {
	return c.buf.data[c.pos][col].(string)
}

func (c *bufferCursor) Vector(col int) []float64 {
	return c.buf.data[c.pos][col].([]float64)
}

func (c *bufferCursor) Err() error {
	return nil
}
