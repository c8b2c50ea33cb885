package semantic

import (
	"github.com/wireflow-dev/wireflow/pkg/workflow"
)

// Build converts a raw workflow document into a semantic graph: numeric wire
// indices become named slots, input lookups are precomputed, and auxiliary
// connection kinds become subnode attachments. Dangling wire targets are kept
// as-is; they resolve later as unresolved variable references, never errors.
func Build(w *workflow.Workflow) *Graph {
	g := &Graph{
		Nodes:      make(map[string]*Node, len(w.Nodes)),
		CycleEdges: make(map[string][]string),
	}

	for _, raw := range w.Nodes {
		kind := Classify(raw)
		n := &Node{
			Name:         raw.Name,
			Type:         raw.Type,
			Kind:         kind,
			Raw:          raw,
			Outputs:      make(map[string][]Link),
			InputSources: make(map[string][]Link),
			IsTrigger:    kind == KindTrigger,
		}
		g.Nodes[raw.Name] = n
		g.Order = append(g.Order, raw.Name)
	}

	for src, kinds := range w.Connections {
		srcNode := g.Nodes[src]
		if srcNode == nil {
			continue
		}
		for kind, slots := range kinds {
			if kind != workflow.KindMain {
				// Auxiliary kind: the wire runs subnode → parent.
				for _, slot := range slots {
					for _, ep := range slot {
						if parent := g.Nodes[ep.Node]; parent != nil {
							parent.Subnodes = append(parent.Subnodes, Subnode{Name: src, Kind: kind})
						}
					}
				}
				continue
			}
			errIdx := srcNode.errorIndex()
			for i, slot := range slots {
				outSlot := OutputSlot(srcNode.Kind, i, errIdx)
				if srcNode.Kind == KindSwitchCase && i == mainOutputCount(srcNode) && srcNode.hasFallback() && i != errIdx {
					outSlot = SlotFallback
				}
				for _, ep := range slot {
					srcNode.Outputs[outSlot] = append(srcNode.Outputs[outSlot], Link{
						Node: ep.Node,
						Slot: InputSlot(ep.Index),
					})
					if target := g.Nodes[ep.Node]; target != nil {
						target.InputSources[InputSlot(ep.Index)] = append(
							target.InputSources[InputSlot(ep.Index)],
							Link{Node: src, Slot: outSlot},
						)
					}
				}
			}
		}
	}

	g.Roots = findRoots(g)
	Annotate(g)
	return g
}

// findRoots returns trigger nodes, or, when the graph has none, the wirable
// nodes with no main inputs. Cycle-only graphs fall back to document order.
func findRoots(g *Graph) []string {
	var roots []string
	for _, name := range g.Order {
		if g.Nodes[name].IsTrigger {
			roots = append(roots, name)
		}
	}
	if len(roots) > 0 {
		return roots
	}
	for _, name := range g.Order {
		n := g.Nodes[name]
		if n.Kind == KindSticky || n.Kind == KindSubnode {
			continue
		}
		if len(n.InputSources) == 0 {
			roots = append(roots, name)
		}
	}
	if len(roots) == 0 && len(g.Order) > 0 {
		roots = append(roots, g.Order[0])
	}
	return roots
}
