// Package app wires the engine together: logger, entry-point registry,
// pipeline file decoding, compilation, execution and output rendering.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/vk/gridml/internal/compile"
	"github.com/vk/gridml/internal/ctxlog"
	"github.com/vk/gridml/internal/env"
	"github.com/vk/gridml/internal/exec"
	"github.com/vk/gridml/internal/hclspec"
	"github.com/vk/gridml/internal/macro"
	"github.com/vk/gridml/internal/pipeline"
	"github.com/vk/gridml/internal/registry"
	"github.com/vk/gridml/internal/rows"
	csvmod "github.com/vk/gridml/modules/csv"
	"github.com/vk/gridml/modules/evaluate"
	"github.com/vk/gridml/modules/trainers"
	"github.com/vk/gridml/modules/transforms"
)

// coreModules are the entry points every App registers by default.
var coreModules = []registry.Module{
	csvmod.Module{},
	transforms.Module{},
	trainers.Module{},
	evaluate.Module{},
	macro.Module{},
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	config   *Config
	env      *env.Environment
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App with its own isolated logger, registry and environment.
// When no modules are passed, the built-in entry-point modules register.
func NewApp(logW io.Writer, outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All entry-point modules registered.", "count", len(modules))

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		config:   cfg,
		env:      env.New(cfg.Seed),
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Env returns the experiment environment, so callers can bind external
// inputs before Run.
func (a *App) Env() *env.Environment {
	return a.env
}

// Run loads, compiles and executes the configured pipeline file, then
// renders its declared outputs.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Info("▶️ Loading pipeline.", "path", a.config.PipelinePath)

	decoded, err := hclspec.LoadFile(ctx, a.registry, a.config.PipelinePath)
	if err != nil {
		return err
	}
	if decoded.Seed != nil {
		a.env.Seed = *decoded.Seed
		a.logger.Debug("Using seed declared by the pipeline file.", "seed", a.env.Seed)
	}

	g := decoded.Graph

	// External inputs are resolved from the environment's binding table.
	bound := make(map[pipeline.VarID]bool)
	bindings := make(map[pipeline.VarID]any)
	for name, id := range g.Externals() {
		v, ok := a.env.Input(name)
		if !ok {
			return fmt.Errorf("pipeline input %q is not bound; bind it on the environment before running", name)
		}
		bound[id] = true
		bindings[id] = v
	}

	order, err := compile.Compile(ctx, g, bound)
	if err != nil {
		return err
	}
	a.logger.Info("Pipeline compiled.", "nodes", len(order.Nodes))

	res, err := exec.New(a.registry, a.env).Run(ctx, g, order, bindings)
	if err != nil {
		return err
	}
	a.logger.Info("✅ Pipeline finished.")

	return a.render(res, g)
}

// render prints each declared pipeline output: row-streams as aligned
// tables, models by kind, scalars verbatim.
func (a *App) render(res *exec.Result, g *pipeline.Graph) error {
	names := make([]string, 0, len(g.Outputs()))
	for name := range g.Outputs() {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, err := res.Output(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.outW, "%s:\n", name)
		switch x := v.(type) {
		case rows.Stream:
			if err := renderStream(a.outW, x); err != nil {
				return err
			}
		case pipeline.Model:
			fmt.Fprintf(a.outW, "  model (%s)\n", x.ModelKind())
		default:
			fmt.Fprintf(a.outW, "  %v\n", x)
		}
	}
	return nil
}

func renderStream(w io.Writer, s rows.Stream) error {
	schema := s.Schema()
	fmt.Fprint(w, " ")
	for _, col := range schema {
		fmt.Fprintf(w, " %s", col.Name)
	}
	fmt.Fprintln(w)

	c := s.Open()
	for c.MoveNext() {
		fmt.Fprint(w, " ")
		for i := range schema {
			fmt.Fprintf(w, " %v", rows.Value(c, schema, i))
		}
		fmt.Fprintln(w)
	}
	return c.Err()
}
