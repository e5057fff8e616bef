// Package csv provides the csv.load entry point: a thin, lazy loader
// turning a delimited text file into a row-stream. Column types are inferred
// from the first data row (float, bool, else text); rows are only read as a
// cursor advances.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/vk/gridml/internal/env"
	"github.com/vk/gridml/internal/pipeline"
	"github.com/vk/gridml/internal/registry"
	"github.com/vk/gridml/internal/rows"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the csv.load entry point.
func (Module) Register(r *registry.Registry) {
	r.Register(&registry.EntryPoint{
		Kind: "csv.load",
		Inputs: []pipeline.Param{
			{Name: "path", Kind: pipeline.KindScalar},
			{Name: "separator", Kind: pipeline.KindScalar, Optional: true, Default: ","},
		},
		Outputs: []pipeline.Param{
			{Name: "data", Kind: pipeline.KindRowStream},
		},
		Run: load,
	})
}

func load(ctx context.Context, e *env.Environment, in registry.Values) (registry.Values, error) {
	path, ok := in["path"].(string)
	if !ok {
		return nil, fmt.Errorf("input \"path\": expected a string scalar, got %T", in["path"])
	}
	sep, ok := in["separator"].(string)
	if !ok || len(sep) != 1 {
		return nil, fmt.Errorf("input \"separator\": expected a single-character string")
	}

	schema, err := inferSchema(path, rune(sep[0]))
	if err != nil {
		return nil, err
	}
	return registry.Values{"data": &fileStream{path: path, sep: rune(sep[0]), schema: schema}}, nil
}

// inferSchema reads the header and the first data row to fix column names
// and types. The file is closed again immediately; cursors re-open it.
func inferSchema(path string, sep rune) (rows.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = sep
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	first, err := r.Read()
	if err == io.EOF {
		// Headers only: default every column to text.
		schema := make(rows.Schema, len(header))
		for i, name := range header {
			schema[i] = rows.Column{Name: name, Type: rows.Text}
		}
		return schema, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading first row of %s: %w", path, err)
	}

	schema := make(rows.Schema, len(header))
	for i, name := range header {
		schema[i] = rows.Column{Name: name, Type: inferType(first[i])}
	}
	return schema, nil
}

func inferType(v string) rows.ColType {
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return rows.Float
	}
	if _, err := strconv.ParseBool(v); err == nil {
		return rows.Bool
	}
	return rows.Text
}

// fileStream is a lazy, re-openable stream over one file.
type fileStream struct {
	path   string
	sep    rune
	schema rows.Schema
}

func (s *fileStream) Schema() rows.Schema {
	return s.schema
}

func (s *fileStream) Open() rows.Cursor {
	f, err := os.Open(s.path)
	if err != nil {
		return &fileCursor{err: err}
	}
	r := csv.NewReader(f)
	r.Comma = s.sep
	if _, err := r.Read(); err != nil { // skip header
		f.Close()
		return &fileCursor{err: err}
	}
	return &fileCursor{f: f, r: r, schema: s.schema}
}

type fileCursor struct {
	f      *os.File
	r      *csv.Reader
	schema rows.Schema
	row    []any
	err    error
}

func (c *fileCursor) MoveNext() bool {
	if c.err != nil {
		return false
	}
	rec, err := c.r.Read()
	if err == io.EOF {
		c.f.Close()
		return false
	}
	if err != nil {
		c.err = err
		c.f.Close()
		return false
	}

	row := make([]any, len(c.schema))
	for i, col := range c.schema {
		switch col.Type {
		case rows.Float:
			f, err := strconv.ParseFloat(rec[i], 64)
			if err != nil {
				c.err = fmt.Errorf("column %q: %w", col.Name, err)
				c.f.Close()
				return false
			}
			row[i] = f
		case rows.Bool:
			b, err := strconv.ParseBool(rec[i])
			if err != nil {
				c.err = fmt.Errorf("column %q: %w", col.Name, err)
				c.f.Close()
				return false
			}
			row[i] = b
		default:
			row[i] = rec[i]
		}
	}
	c.row = row
	return true
}

func (c *fileCursor) Float(col int) float64    { return c.row[col].(float64) }
func (c *fileCursor) Bool(col int) bool        { return c.row[col].(bool) }
func (c *fileCursor) Text(col int) string      { return c.row[col].(string) }
func (c *fileCursor) Vector(col int) []float64 { return c.row[col].([]float64) }
func (c *fileCursor) Err() error               { return c.err }
