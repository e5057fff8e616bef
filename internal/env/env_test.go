package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputs(t *testing.T) {
	e := New(42)

	_, ok := e.Input("data")
	assert.False(t, ok)

	e.SetInput("data", 7)
	v, ok := e.Input("data")
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestRand(t *testing.T) {
	t.Run("same seed and salt reproduce the sequence", func(t *testing.T) {
		a := New(42).Rand(1)
		b := New(42).Rand(1)
		for i := 0; i < 10; i++ {
			assert.Equal(t, a.Int63(), b.Int63())
		}
	})

	t.Run("sources are independent per call", func(t *testing.T) {
		e := New(42)
		a := e.Rand(1)
		_ = a.Int63()
		b := e.Rand(1)
		c := New(42).Rand(1)
		assert.Equal(t, c.Int63(), b.Int63())
	})
}
