package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCSV = `Label,X
1,0.5
0,1.5
1,2.5
0,3.5
1,4.5
0,5.5
`

func writePipeline(t *testing.T, dir, csvPath string) string {
	t.Helper()
	src := `
graph "body" {
  input "train" { kind = "rowstream" }
  input "test"  { kind = "rowstream" }

  node "trainer.majority" "fit" {
    arguments {
      data = input.train
    }
  }

  output "model" { from = node.fit.model }
}

pipeline {
  seed = 42

  node "csv.load" "source" {
    arguments {
      path = "` + csvPath + `"
    }
  }

  node "macro.cross_validate" "cv" {
    arguments {
      data  = node.source.data
      body  = graph.body
      folds = 2
    }
  }

  output "metrics" { from = node.cv.metrics }
}
`
	path := filepath.Join(dir, "run.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestAppRun(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(testCSV), 0o644))
	pipelinePath := writePipeline(t, dir, csvPath)

	cfg, err := NewConfig(Config{
		PipelinePath: pipelinePath,
		Seed:         1,
		LogFormat:    "text",
		LogLevel:     "error",
	})
	require.NoError(t, err)

	var logs, out bytes.Buffer
	a := NewApp(&logs, &out, cfg)
	require.NoError(t, a.Run(context.Background()))

	rendered := out.String()
	assert.Contains(t, rendered, "metrics:")
	assert.Contains(t, rendered, "Fold Index")
	assert.Contains(t, rendered, "Average")
	assert.Contains(t, rendered, "Fold 1")
}

func TestAppRunIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(testCSV), 0o644))
	pipelinePath := writePipeline(t, dir, csvPath)

	run := func() string {
		cfg, err := NewConfig(Config{
			PipelinePath: pipelinePath,
			Seed:         1,
			LogFormat:    "text",
			LogLevel:     "error",
		})
		require.NoError(t, err)
		var logs, out bytes.Buffer
		require.NoError(t, NewApp(&logs, &out, cfg).Run(context.Background()))
		return out.String()
	}

	assert.Equal(t, run(), run())
}

func TestAppRunMissingExternalInput(t *testing.T) {
	dir := t.TempDir()
	src := `
pipeline {
  input "data" { kind = "rowstream" }

  node "trainer.majority" "fit" {
    arguments {
      data = input.data
    }
  }

  output "model" { from = node.fit.model }
}
`
	path := filepath.Join(dir, "run.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	cfg, err := NewConfig(Config{PipelinePath: path, Seed: 1, LogFormat: "text", LogLevel: "error"})
	require.NoError(t, err)

	var logs, out bytes.Buffer
	err = NewApp(&logs, &out, cfg).Run(context.Background())
	assert.ErrorContains(t, err, `input "data" is not bound`)
}

func TestNewConfigRequiresPath(t *testing.T) {
	_, err := NewConfig(Config{})
	assert.ErrorContains(t, err, "PipelinePath")
}
