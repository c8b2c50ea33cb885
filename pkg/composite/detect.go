package composite

import (
	"github.com/wireflow-dev/wireflow/pkg/semantic"
)

// Pattern detectors: stateless predicates over the semantic graph used by the
// tree builder to decide when a downstream join can be wired at the top level
// versus inlined. Detection order matters and is fixed by the builder:
// direct-join beats general-merge beats generic fan-out.

// isMerge reports whether name resolves to a join node.
func isMerge(g *semantic.Graph, name string) bool {
	n := g.Node(name)
	return n != nil && n.Kind == semantic.KindMerge
}

// feedsMergeDirectly reports whether any non-error output of name targets
// join.
func feedsMergeDirectly(g *semantic.Graph, name, join string) bool {
	n := g.Node(name)
	if n == nil {
		return false
	}
	for _, slot := range n.OccupiedOutputs() {
		for _, link := range n.Outputs[slot] {
			if link.Node == join {
				return true
			}
		}
	}
	return false
}

// hasOutputsOutsideMerge reports whether any non-error output of branch
// targets something other than join itself or another node that also feeds
// join. A branch can only be swallowed into a join pattern when nothing of
// its output is otherwise observable.
func hasOutputsOutsideMerge(g *semantic.Graph, branch *semantic.Node, join string) bool {
	for _, slot := range branch.OccupiedOutputs() {
		for _, link := range branch.Outputs[slot] {
			if link.Node == join {
				continue
			}
			if g.Node(link.Node) == nil {
				// Dangling target: observable, so it counts as outside.
				return true
			}
			if !feedsMergeDirectly(g, link.Node, join) {
				return true
			}
		}
	}
	return false
}

// findDirectMergeInFanOut detects the special case where exactly one fan-out
// target is itself a join node and every other target feeds that same join
// one hop away. Returns the join name and the non-join targets.
func findDirectMergeInFanOut(g *semantic.Graph, targets []string) (string, []string, bool) {
	join := ""
	var others []string
	for _, t := range targets {
		if isMerge(g, t) {
			if join != "" && join != t {
				return "", nil, false // two distinct joins in one fan-out
			}
			join = t
			continue
		}
		others = append(others, t)
	}
	if join == "" || len(others) == 0 {
		return "", nil, false
	}
	for _, t := range others {
		if !feedsMergeDirectly(g, t, join) {
			return "", nil, false
		}
	}
	return join, others, true
}

// detectMergePattern detects the general case where ALL fan-out targets reach
// the same join through independent one-hop chains, with the outside-merge
// guard applied to every branch. Returns the join name and the branch names.
func detectMergePattern(g *semantic.Graph, targets []string) (string, []string, bool) {
	if len(targets) < 2 {
		return "", nil, false
	}
	join := ""
	for _, t := range targets {
		n := g.Node(t)
		if n == nil || n.Kind == semantic.KindMerge {
			return "", nil, false
		}
		found := ""
		for _, slot := range n.OccupiedOutputs() {
			for _, link := range n.Outputs[slot] {
				if isMerge(g, link.Node) {
					found = link.Node
				}
			}
		}
		if found == "" {
			return "", nil, false
		}
		if join != "" && join != found {
			return "", nil, false
		}
		join = found
	}
	for _, t := range targets {
		if hasOutputsOutsideMerge(g, g.Node(t), join) {
			return "", nil, false
		}
	}
	return join, targets, true
}

// detectSibMergePattern detects an iteration node whose done and loop outputs
// both target the same join node. No generic composite variant can express
// two distinct output→input index pairs on the same node pair, so this shape
// degrades to explicit connections. Returns the join name and the exact
// connection triples.
func detectSibMergePattern(g *semantic.Graph, sib *semantic.Node) (string, []Connection, bool) {
	if sib.Kind != semantic.KindSplitInBatches {
		return "", nil, false
	}
	done := sib.Outputs[semantic.SlotDone]
	loop := sib.Outputs[semantic.SlotLoop]
	if len(done) != 1 || len(loop) != 1 {
		return "", nil, false
	}
	if done[0].Node != loop[0].Node || !isMerge(g, done[0].Node) {
		return "", nil, false
	}
	join := done[0].Node
	doneIdx, _ := semantic.SlotIndex(done[0].Slot)
	loopIdx, _ := semantic.SlotIndex(loop[0].Slot)
	conns := []Connection{
		{Source: sib.Name, SourceIndex: 0, Target: join, TargetIndex: doneIdx},
		{Source: sib.Name, SourceIndex: 1, Target: join, TargetIndex: loopIdx},
	}
	return join, conns, true
}

// findMergeInputIndex resolves which numbered input of join a given source
// feeds. sourceSlot, when non-empty, disambiguates a multi-output source that
// feeds two different join inputs from two different outputs.
func findMergeInputIndex(join *semantic.Node, source, sourceSlot string) int {
	for i := 0; ; i++ {
		links, ok := join.InputSources[semantic.InputSlot(i)]
		if !ok {
			if i > maxInputIndex(join) {
				return -1
			}
			continue
		}
		for _, l := range links {
			if l.Node == source && (sourceSlot == "" || l.Slot == sourceSlot) {
				return i
			}
		}
	}
}

func maxInputIndex(n *semantic.Node) int {
	max := -1
	for slot := range n.InputSources {
		if i, ok := semantic.SlotIndex(slot); ok && i > max {
			max = i
		}
	}
	return max
}
