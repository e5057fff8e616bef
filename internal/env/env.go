// Package env holds the experiment environment: the process-wide random
// seed and the table of externally supplied input values. The environment is
// always passed explicitly into the compiler, executor and macro expansions;
// nothing in the engine reads ambient global state, which is what keeps fold
// partitioning deterministic across runs.
package env

import "math/rand"

// Environment carries execution-wide context shared by every graph and
// nested macro instantiation of one experiment run.
type Environment struct {
	// Seed drives all seed-derived randomness (fold partitioning, shuffles).
	// It must be treated as read-only during execution.
	Seed int64

	inputs map[string]any
}

// New creates an environment with the given seed and no external inputs.
func New(seed int64) *Environment {
	return &Environment{Seed: seed, inputs: make(map[string]any)}
}

// SetInput binds a named external resource (a loaded stream, a file handle)
// for graphs that declare a matching external input.
func (e *Environment) SetInput(name string, v any) {
	e.inputs[name] = v
}

// Input returns a previously bound external value.
func (e *Environment) Input(name string) (any, bool) {
	v, ok := e.inputs[name]
	return v, ok
}

// Rand returns a fresh deterministic source derived from the environment
// seed and a caller-chosen salt. Distinct salts give independent sequences;
// the same salt always reproduces the same sequence.
func (e *Environment) Rand(salt int64) *rand.Rand {
	return rand.New(rand.NewSource(e.Seed ^ salt))
}
