package rows

import "fmt"

// Filter returns a lazy stream over the rows of src whose zero-based row
// index satisfies keep. The source is re-read on every Open; row indices are
// stable because streams are re-openable and immutable.
func Filter(src Stream, keep func(rowIndex int) bool) Stream {
	return &filterStream{src: src, keep: keep}
}

type filterStream struct {
	src  Stream
	keep func(int) bool
}

func (s *filterStream) Schema() Schema {
	return s.src.Schema()
}

func (s *filterStream) Open() Cursor {
	return &filterCursor{inner: s.src.Open(), keep: s.keep, idx: -1}
}

type filterCursor struct {
	inner Cursor
	keep  func(int) bool
	idx   int
}

func (c *filterCursor) MoveNext() bool {
	for c.inner.MoveNext() {
		c.idx++
		if c.keep(c.idx) {
			return true
		}
	}
	return false
}

func (c *filterCursor) Float(col int) float64    { return c.inner.Float(col) }
func (c *filterCursor) Bool(col int) bool        { return c.inner.Bool(col) }
func (c *filterCursor) Text(col int) string      { return c.inner.Text(col) }
func (c *filterCursor) Vector(col int) []float64 { return c.inner.Vector(col) }
func (c *filterCursor) Err() error               { return c.inner.Err() }

// Derive returns a lazy stream that rewrites each source row through fn into
// the given schema. fn receives the source row as untyped values and must
// return one value per output column.
func Derive(src Stream, schema Schema, fn func(row []any) []any) Stream {
	return &deriveStream{src: src, schema: schema, fn: fn}
}

type deriveStream struct {
	src    Stream
	schema Schema
	fn     func([]any) []any
}

func (s *deriveStream) Schema() Schema {
	return s.schema
}

func (s *deriveStream) Open() Cursor {
	return &deriveCursor{
		inner:     s.src.Open(),
		srcSchema: s.src.Schema(),
		schema:    s.schema,
		fn:        s.fn,
	}
}

type deriveCursor struct {
	inner     Cursor
	srcSchema Schema
	schema    Schema
	fn        func([]any) []any
	row       []any
}

func (c *deriveCursor) MoveNext() bool {
	if !c.inner.MoveNext() {
		return false
	}
	c.row = c.fn(ReadRow(c.inner, c.srcSchema))
	return true
}

func (c *deriveCursor) Float(col int) float64    { return c.row[col].(float64) }
func (c *deriveCursor) Bool(col int) bool        { return c.row[col].(bool) }
func (c *deriveCursor) Text(col int) string      { return c.row[col].(string) }
func (c *deriveCursor) Vector(col int) []float64 { return c.row[col].([]float64) }
func (c *deriveCursor) Err() error               { return c.inner.Err() }

// Concat returns a lazy stream yielding all rows of each input stream in
// order. All inputs must share an identical schema.
func Concat(streams ...Stream) (Stream, error) {
	if len(streams) == 0 {
		return nil, fmt.Errorf("rows: concat of zero streams")
	}
	schema := streams[0].Schema()
	for i, s := range streams[1:] {
		if !schema.Equal(s.Schema()) {
			return nil, fmt.Errorf("rows: concat schema mismatch at stream %d", i+1)
		}
	}
	return &concatStream{schema: schema, streams: streams}, nil
}

type concatStream struct {
	schema  Schema
	streams []Stream
}

func (s *concatStream) Schema() Schema {
	return s.schema
}

func (s *concatStream) Open() Cursor {
	return &concatCursor{streams: s.streams}
}

type concatCursor struct {
	streams []Stream
	current Cursor
	next    int
	err     error
}

func (c *concatCursor) MoveNext() bool {
	for {
		if c.current == nil {
			if c.next >= len(c.streams) {
				return false
			}
			c.current = c.streams[c.next].Open()
			c.next++
		}
		if c.current.MoveNext() {
			return true
		}
		if err := c.current.Err(); err != nil {
			c.err = err
			return false
		}
		c.current = nil
	}
}

func (c *concatCursor) Float(col int) float64    { return c.current.Float(col) }
func (c *concatCursor) Bool(col int) bool        { return c.current.Bool(col) }
func (c *concatCursor) Text(col int) string      { return c.current.Text(col) }
func (c *concatCursor) Vector(col int) []float64 { return c.current.Vector(col) }
func (c *concatCursor) Err() error               { return c.err }
