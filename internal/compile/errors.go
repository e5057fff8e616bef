package compile

import (
	"fmt"
	"strings"

	"github.com/vk/gridml/internal/pipeline"
)

// UnresolvedInputError reports a node input referencing a variable that has
// no producer and is not in the externally-bound set.
type UnresolvedInputError struct {
	NodeID string
	Param  string
	Var    pipeline.VarID
	// VarName is the variable's declared name, for readable diagnostics.
	VarName string
}

func (e *UnresolvedInputError) Error() string {
	return fmt.Sprintf("%s: input %q references variable %q (id %d) which has no producer and is not externally bound",
		e.NodeID, e.Param, e.VarName, e.Var)
}

// CyclicGraphError reports that the topological sort could not resolve all
// nodes; Remaining lists the node ids left unordered.
type CyclicGraphError struct {
	Remaining []string
}

func (e *CyclicGraphError) Error() string {
	return fmt.Sprintf("dependency cycle detected; unresolved nodes: %s", strings.Join(e.Remaining, ", "))
}

// TypeMismatchError reports a consuming node declaring a kind incompatible
// with the bound variable or literal.
type TypeMismatchError struct {
	NodeID string
	Param  string
	Want   pipeline.Kind
	Got    pipeline.Kind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: input %q expects %s, got %s", e.NodeID, e.Param, e.Want, e.Got)
}
