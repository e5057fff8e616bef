// Package hclspec decodes declarative pipeline files into executable
// graphs. A file defines zero or more named graph templates plus one
// pipeline; node arguments are either literal values (typed through cty and
// converted against the entry point's declared parameter kinds) or
// references of the forms node.<name>.<output>, input.<name> and
// graph.<name>.
package hclspec

import (
	"github.com/hashicorp/hcl/v2"
)

// ArgsBlock is the raw body of an 'arguments' block; its attributes are
// interpreted against the node kind's declared input schema.
type ArgsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// InputBlock declares an externally-bound variable of a graph or pipeline.
type InputBlock struct {
	Name string `hcl:"name,label"`
	Kind string `hcl:"kind"`
}

// NodeBlock is one `node "<kind>" "<name>"` block.
type NodeBlock struct {
	Kind      string     `hcl:"kind,label"`
	Name      string     `hcl:"name,label"`
	Arguments *ArgsBlock `hcl:"arguments,block"`
}

// OutputBlock names a graph output and the node output variable feeding it.
type OutputBlock struct {
	Name string         `hcl:"name,label"`
	From hcl.Expression `hcl:"from"`
}

// GraphBlock is a named graph template, typically the body of a macro node.
type GraphBlock struct {
	Name    string         `hcl:"name,label"`
	Inputs  []*InputBlock  `hcl:"input,block"`
	Nodes   []*NodeBlock   `hcl:"node,block"`
	Outputs []*OutputBlock `hcl:"output,block"`
}

// PipelineBlock is the top-level executable pipeline of a file.
type PipelineBlock struct {
	Seed    *int64         `hcl:"seed,optional"`
	Inputs  []*InputBlock  `hcl:"input,block"`
	Nodes   []*NodeBlock   `hcl:"node,block"`
	Outputs []*OutputBlock `hcl:"output,block"`
}

// FileConfig is the top-level structure of a pipeline file.
type FileConfig struct {
	Graphs   []*GraphBlock  `hcl:"graph,block"`
	Pipeline *PipelineBlock `hcl:"pipeline,block"`
}
