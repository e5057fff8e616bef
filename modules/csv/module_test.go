package csv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/gridml/internal/env"
	"github.com/vk/gridml/internal/registry"
	"github.com/vk/gridml/internal/rows"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("infers column types from the first row", func(t *testing.T) {
		path := writeFile(t, "Label,Flag,Name\n1.5,true,alice\n2.5,false,bob\n")
		out, err := load(context.Background(), env.New(42), registry.Values{
			"path":      path,
			"separator": ",",
		})
		require.NoError(t, err)

		s, ok := out["data"].(rows.Stream)
		require.True(t, ok)
		schema := s.Schema()
		require.Len(t, schema, 3)
		assert.Equal(t, rows.Float, schema[0].Type)
		assert.Equal(t, rows.Bool, schema[1].Type)
		assert.Equal(t, rows.Text, schema[2].Type)

		c := s.Open()
		require.True(t, c.MoveNext())
		assert.Equal(t, 1.5, c.Float(0))
		assert.Equal(t, true, c.Bool(1))
		assert.Equal(t, "alice", c.Text(2))
		require.True(t, c.MoveNext())
		assert.Equal(t, "bob", c.Text(2))
		assert.False(t, c.MoveNext())
		require.NoError(t, c.Err())
	})

	t.Run("stream is re-openable", func(t *testing.T) {
		path := writeFile(t, "X\n1\n2\n")
		out, err := load(context.Background(), env.New(42), registry.Values{
			"path":      path,
			"separator": ",",
		})
		require.NoError(t, err)
		s := out["data"].(rows.Stream)

		count := func() int {
			n := 0
			c := s.Open()
			for c.MoveNext() {
				n++
			}
			require.NoError(t, c.Err())
			return n
		}
		assert.Equal(t, 2, count())
		assert.Equal(t, 2, count())
	})

	t.Run("custom separator", func(t *testing.T) {
		path := writeFile(t, "A;B\n1;x\n")
		out, err := load(context.Background(), env.New(42), registry.Values{
			"path":      path,
			"separator": ";",
		})
		require.NoError(t, err)
		s := out["data"].(rows.Stream)
		assert.Len(t, s.Schema(), 2)
	})

	t.Run("header-only file defaults to text", func(t *testing.T) {
		path := writeFile(t, "A,B\n")
		out, err := load(context.Background(), env.New(42), registry.Values{
			"path":      path,
			"separator": ",",
		})
		require.NoError(t, err)
		s := out["data"].(rows.Stream)
		for _, col := range s.Schema() {
			assert.Equal(t, rows.Text, col.Type)
		}
	})

	t.Run("missing file fails", func(t *testing.T) {
		_, err := load(context.Background(), env.New(42), registry.Values{
			"path":      filepath.Join(t.TempDir(), "nope.csv"),
			"separator": ",",
		})
		assert.Error(t, err)
	})

	t.Run("malformed value surfaces through the cursor", func(t *testing.T) {
		path := writeFile(t, "X\n1\nnot-a-number\n")
		out, err := load(context.Background(), env.New(42), registry.Values{
			"path":      path,
			"separator": ",",
		})
		require.NoError(t, err)
		s := out["data"].(rows.Stream)

		c := s.Open()
		require.True(t, c.MoveNext())
		assert.False(t, c.MoveNext())
		assert.ErrorContains(t, c.Err(), `column "X"`)
	})
}
