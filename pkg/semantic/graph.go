// Package semantic converts the raw index-based workflow graph into a named,
// slot-labeled graph that the composite tree builder walks. Numeric output
// indices become named slots ("trueBranch", "case2", "done", "error", …) and
// input lookups are precomputed as the inverse of the output map.
package semantic

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wireflow-dev/wireflow/pkg/workflow"
)

// Link is one end of a wire seen from the other side: the far node plus the
// named slot the wire lands on (an input slot in Outputs, an output slot in
// InputSources).
type Link struct {
	Node string
	Slot string
}

// Subnode is an auxiliary attachment on a node.
type Subnode struct {
	Name string
	Kind string
}

// Node is a semantic graph vertex.
type Node struct {
	Name string
	Type string
	Kind Kind
	Raw  *workflow.Node

	// Outputs maps named output slot → ordered targets.
	Outputs map[string][]Link
	// InputSources maps named input slot → ordered sources; the inverse of
	// Outputs so join-node input lookups are O(1).
	InputSources map[string][]Link
	Subnodes     []Subnode

	IsTrigger          bool
	IsCycleTarget      bool
	IsConvergencePoint bool
}

// Graph is the named form of a workflow document.
type Graph struct {
	Nodes map[string]*Node
	Order []string // node names in document order
	Roots []string // trigger names, or no-input nodes when there is no trigger
	// CycleEdges maps a back-edge source to the targets it re-enters.
	CycleEdges map[string][]string
}

// Node returns the named node, or nil for dangling references.
func (g *Graph) Node(name string) *Node {
	return g.Nodes[name]
}

// ─── slot naming ─────────────────────────────────────────────────────────────

// Reserved slot names. Everything else is "output<N>", "case<N>", "input<N>".
const (
	SlotTrue     = "trueBranch"
	SlotFalse    = "falseBranch"
	SlotDone     = "done"
	SlotLoop     = "loop"
	SlotFallback = "fallback"
	SlotError    = "error"
)

// OutputSlot names the output slot at index i for a node of the given kind.
// The error index, when >= 0, is the slot routed on failure.
func OutputSlot(kind Kind, i, errorIndex int) string {
	if i == errorIndex {
		return SlotError
	}
	switch kind {
	case KindIfElse:
		if i == 0 {
			return SlotTrue
		}
		if i == 1 {
			return SlotFalse
		}
	case KindSplitInBatches:
		if i == 0 {
			return SlotDone
		}
		if i == 1 {
			return SlotLoop
		}
	case KindSwitchCase:
		return fmt.Sprintf("case%d", i)
	}
	return fmt.Sprintf("output%d", i)
}

// InputSlot names the input slot at index i.
func InputSlot(i int) string {
	return fmt.Sprintf("input%d", i)
}

// SlotIndex recovers the numeric index encoded in a slot name. The reserved
// branch names map back to their fixed indices; fallback and error have no
// fixed index and return -1 with ok=false.
func SlotIndex(slot string) (int, bool) {
	switch slot {
	case SlotTrue, SlotDone:
		return 0, true
	case SlotFalse, SlotLoop:
		return 1, true
	case SlotFallback, SlotError:
		return -1, false
	}
	for _, prefix := range []string{"output", "case", "branch", "input"} {
		if rest, ok := strings.CutPrefix(slot, prefix); ok {
			n, err := strconv.Atoi(rest)
			if err != nil {
				return -1, false
			}
			return n, true
		}
	}
	return -1, false
}

// OutputIndex resolves a named output slot of n back to its wire index,
// accounting for the node's kind-specific slot layout.
func (n *Node) OutputIndex(slot string) (int, bool) {
	if slot == SlotError {
		return n.errorIndex(), n.errorIndex() >= 0
	}
	if slot == SlotFallback {
		return mainOutputCount(n), true
	}
	return SlotIndex(slot)
}

// errorIndex returns the wire index of the error output, or -1 when the node
// does not route errors to an output. The layout rule is shared with the
// builder so both directions place the slot identically.
func (n *Node) errorIndex() int {
	return workflow.ErrorOutputIndex(n.Raw)
}

// MainTargets returns the targets of the named output slot.
func (n *Node) MainTargets(slot string) []Link {
	return n.Outputs[slot]
}

// OccupiedOutputs returns the named non-error output slots that have at least
// one target, in wire-index order (fallback last).
func (n *Node) OccupiedOutputs() []string {
	var slots []string
	maxIdx := -1
	byIdx := map[int]string{}
	hasFallback := false
	for slot, targets := range n.Outputs {
		if len(targets) == 0 || slot == SlotError {
			continue
		}
		if slot == SlotFallback {
			hasFallback = true
			continue
		}
		if i, ok := SlotIndex(slot); ok {
			byIdx[i] = slot
			if i > maxIdx {
				maxIdx = i
			}
		}
	}
	for i := 0; i <= maxIdx; i++ {
		if slot, ok := byIdx[i]; ok {
			slots = append(slots, slot)
		}
	}
	if hasFallback {
		slots = append(slots, SlotFallback)
	}
	return slots
}
