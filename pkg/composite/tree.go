// Package composite builds the intermediate representation between the
// semantic graph and generated program text: a tree of control-flow shapes
// (chains, branches, iteration, fan-out) plus side-channel registries for
// connections that must be expressed at the top level.
package composite

import (
	"github.com/wireflow-dev/wireflow/pkg/semantic"
)

// Node is the closed set of composite tree variants. The tree itself is
// always an acyclic value: back-references into the graph are VarRefs (name
// lookups), never owning links, even when the underlying graph has cycles.
type Node interface {
	compositeNode()
}

// Leaf is a single graph node, optionally carrying an error-output chain as a
// side attachment rather than a normal successor.
type Leaf struct {
	Node         *semantic.Node
	ErrorHandler Node
}

// Chain is a sequential run of composites wired first-to-last.
type Chain struct {
	Nodes []Node
}

// VarRef is a by-name reference to a node declared elsewhere: already-visited
// targets, shared join targets, and loop back-edges all render as one
// declaration plus VarRefs.
type VarRef struct {
	Name string // node name; resolution to an identifier happens at codegen
	// Unresolved marks a reference to a node absent from the graph.
	Unresolved bool
}

// IfElse is a boolean branch. Either branch may be nil (empty), a single
// composite, or parallel targets.
type IfElse struct {
	If    *semantic.Node
	True  []Node
	False []Node
}

// SwitchCase is a multi-way branch. Cases is indexed in parallel with
// CaseIndices; a fallback case carries index -1 and sorts last.
type SwitchCase struct {
	Switch      *semantic.Node
	CaseIndices []int
	Cases       [][]Node
}

// FallbackIndex marks the fallback entry in SwitchCase.CaseIndices.
const FallbackIndex = -1

// SplitInBatches is the batch-iteration construct with its done and loop
// continuations.
type SplitInBatches struct {
	Split *semantic.Node
	Done  []Node
	Loop  []Node
}

// FanOut is one source feeding several independent targets from a single
// output slot.
type FanOut struct {
	Source  *semantic.Node
	Targets []Node
}

// MultiOutput preserves per-slot branches for a node with several
// independently addressable, consecutively occupied output slots.
type MultiOutput struct {
	Source  *semantic.Node
	Indices []int
	Outputs map[int][]Node
}

// ExplicitConnections is the fallback shape for wiring no structured variant
// can express: each connection names its exact output and input index.
type ExplicitConnections struct {
	Nodes       []*semantic.Node
	Connections []Connection
	// Targets are non-join continuations reached through the explicit wiring;
	// they render as their own statements after the connection lines.
	Targets []Node
}

// Connection is one explicit source→target wiring fact.
type Connection struct {
	Source      string
	SourceIndex int
	Target      string
	TargetIndex int
}

func (*Leaf) compositeNode()                {}
func (*Chain) compositeNode()               {}
func (*VarRef) compositeNode()              {}
func (*IfElse) compositeNode()              {}
func (*SwitchCase) compositeNode()          {}
func (*SplitInBatches) compositeNode()      {}
func (*FanOut) compositeNode()              {}
func (*MultiOutput) compositeNode()         {}
func (*ExplicitConnections) compositeNode() {}

// Head returns the graph-node name a composite is entered through, or "" for
// shapes with no single entry.
func Head(n Node) string {
	switch v := n.(type) {
	case *Leaf:
		return v.Node.Name
	case *Chain:
		if len(v.Nodes) > 0 {
			return Head(v.Nodes[0])
		}
	case *VarRef:
		return v.Name
	case *IfElse:
		return v.If.Name
	case *SwitchCase:
		return v.Switch.Name
	case *SplitInBatches:
		return v.Split.Name
	case *FanOut:
		return v.Source.Name
	case *MultiOutput:
		return v.Source.Name
	case *ExplicitConnections:
		if len(v.Nodes) > 0 {
			return v.Nodes[0].Name
		}
	}
	return ""
}
