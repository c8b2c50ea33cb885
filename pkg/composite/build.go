package composite

import (
	"go.uber.org/zap"

	"github.com/wireflow-dev/wireflow/pkg/semantic"
)

// Result is the output of a tree build: one composite per root, the nodes
// that need declarations, and the side-channel registries consumed by the
// code generator.
type Result struct {
	Roots            []Node
	Variables        map[string]*semantic.Node
	VarOrder         []string
	Deferred         []DeferredConnection
	MergeDownstreams []MergeDownstream
	// ErrorChains are error-handler subtrees of branching nodes; their wiring
	// lives in Deferred, the subtrees render as top-level statements.
	ErrorChains []Node
}

// BuildTree walks the semantic graph from its roots and produces the
// composite tree. log may be nil. The walk terminates on any graph: an
// already-visited node always becomes a VarRef, which is also what makes loop
// back-edges and shared targets render as one declaration plus references.
func BuildTree(g *semantic.Graph, log *zap.Logger) *Result {
	ctx := newBuildContext(g, log)

	var roots []Node
	for _, root := range g.Roots {
		roots = append(roots, buildFromNode(ctx, root))
	}
	// Nodes unreachable from any root (cycle-only islands) still need
	// building so every connection is represented.
	for _, name := range g.Order {
		n := g.Nodes[name]
		if ctx.visited[name] || n.Kind == semantic.KindSticky || n.Kind == semantic.KindSubnode {
			continue
		}
		if len(n.InputSources) == 0 {
			roots = append(roots, buildFromNode(ctx, name))
		}
	}

	buildMergeDownstreams(ctx)
	registerSubnodeVariables(ctx)

	return &Result{
		Roots:            roots,
		Variables:        ctx.variables,
		VarOrder:         ctx.varOrder,
		Deferred:         ctx.deferred,
		MergeDownstreams: ctx.mergeDownstreams,
		ErrorChains:      ctx.errorChains,
	}
}

// buildFromNode classifies a node and produces its composite. Unresolvable
// names degrade to unresolved VarRefs rather than errors, tolerating
// partially-invalid graphs.
func buildFromNode(ctx *buildContext, name string) Node {
	n := ctx.graph.Node(name)
	if n == nil {
		return &VarRef{Name: name, Unresolved: true}
	}
	if ctx.visited[name] {
		ctx.registerVariable(n)
		return &VarRef{Name: name}
	}
	ctx.visited[name] = true
	if n.Kind != semantic.KindSticky {
		ctx.registerVariable(n)
	}

	switch n.Kind {
	case semantic.KindSplitInBatches:
		// The SIB/merge specialization is checked before generic branch
		// building: the generic shapes cannot represent two distinct
		// output→input index pairs on the same node pair.
		if join, conns, ok := detectSibMergePattern(ctx.graph, n); ok {
			ctx.log.Debug("sib/merge pattern", zap.String("split", name), zap.String("join", join))
			ctx.registerMerge(ctx.graph.Node(join))
			deferErrorOutput(ctx, n)
			return &ExplicitConnections{Nodes: []*semantic.Node{n}, Connections: conns}
		}
		sib := &SplitInBatches{
			Split: n,
			Done:  buildBranchTargets(ctx, n, semantic.SlotDone),
			Loop:  buildBranchTargets(ctx, n, semantic.SlotLoop),
		}
		deferErrorOutput(ctx, n)
		return sib
	case semantic.KindIfElse:
		ie := &IfElse{
			If:    n,
			True:  buildBranchTargets(ctx, n, semantic.SlotTrue),
			False: buildBranchTargets(ctx, n, semantic.SlotFalse),
		}
		deferErrorOutput(ctx, n)
		return ie
	case semantic.KindSwitchCase:
		return buildSwitchCase(ctx, n)
	default:
		return buildPlain(ctx, n)
	}
}

func buildSwitchCase(ctx *buildContext, n *semantic.Node) Node {
	sc := &SwitchCase{Switch: n}
	for _, slot := range n.OccupiedOutputs() {
		idx, ok := semantic.SlotIndex(slot)
		if slot == semantic.SlotFallback {
			idx, ok = FallbackIndex, true
		}
		if !ok {
			continue
		}
		sc.CaseIndices = append(sc.CaseIndices, idx)
		sc.Cases = append(sc.Cases, buildBranchTargets(ctx, n, slot))
	}
	deferErrorOutput(ctx, n)
	return sc
}

// buildBranchTargets builds the targets of a branch slot under branch
// context. A branch target that is itself a join node is deferred: the
// connection is recorded with the input index resolved via
// findMergeInputIndex, so ".input(n)" wiring is expressed once at the top
// level instead of duplicated or ordered arbitrarily across branches.
func buildBranchTargets(ctx *buildContext, n *semantic.Node, slot string) []Node {
	links := n.Outputs[slot]
	if len(links) == 0 {
		return nil
	}
	var out []Node
	ctx.inBranch(func() {
		for _, link := range links {
			if deferIfMerge(ctx, n, slot, link) {
				continue
			}
			out = append(out, buildFromNode(ctx, link.Node))
		}
	})
	return out
}

// deferIfMerge records a deferred connection when link targets a join node,
// and reports whether it did.
func deferIfMerge(ctx *buildContext, n *semantic.Node, slot string, link semantic.Link) bool {
	if !isMerge(ctx.graph, link.Node) {
		return false
	}
	m := ctx.graph.Node(link.Node)
	srcIdx, ok := n.OutputIndex(slot)
	if !ok {
		srcIdx = 0
	}
	inIdx := findMergeInputIndex(m, n.Name, slot)
	if inIdx < 0 {
		inIdx, _ = semantic.SlotIndex(link.Slot)
	}
	ctx.deferConnection(DeferredConnection{
		Source: n.Name, SourceIndex: srcIdx,
		Target: m.Name, TargetIndex: inIdx,
	})
	ctx.registerMerge(m)
	return true
}

// buildPlain handles nodes with no branch classification: chains, fan-outs,
// multi-output nodes, and the merge-pattern detections.
func buildPlain(ctx *buildContext, n *semantic.Node) Node {
	occupied := n.OccupiedOutputs()
	linear := len(occupied) == 0 ||
		(len(occupied) == 1 && len(n.Outputs[occupied[0]]) == 1)

	leaf := &Leaf{Node: n}
	if linear {
		attachErrorHandler(ctx, n, leaf)
	} else {
		deferErrorOutput(ctx, n)
	}

	switch len(occupied) {
	case 0:
		return leaf
	case 1:
		return buildSingleSlot(ctx, n, leaf, occupied[0])
	default:
		return buildMultiSlot(ctx, n, occupied)
	}
}

// attachErrorHandler builds a node's error chain as a side attachment rather
// than a normal successor. A handler already visited becomes a VarRef, so N
// nodes sharing one handler emit one declaration and N references.
func attachErrorHandler(ctx *buildContext, n *semantic.Node, leaf *Leaf) {
	links := n.Outputs[semantic.SlotError]
	if len(links) == 0 {
		return
	}
	ctx.inBranch(func() {
		leaf.ErrorHandler = buildFromNode(ctx, links[0].Node)
	})
	// Extra endpoints on the error slot keep their exact wiring.
	if len(links) > 1 {
		srcIdx, ok := n.OutputIndex(semantic.SlotError)
		if ok {
			for _, link := range links[1:] {
				inIdx, _ := semantic.SlotIndex(link.Slot)
				ctx.deferConnection(DeferredConnection{
					Source: n.Name, SourceIndex: srcIdx,
					Target: link.Node, TargetIndex: inIdx,
				})
			}
		}
	}
}

// deferErrorOutput records a branching or fan-out node's error chain as
// explicit top-level wiring; only linear leaves carry an inline handler.
func deferErrorOutput(ctx *buildContext, n *semantic.Node) {
	links := n.Outputs[semantic.SlotError]
	if len(links) == 0 {
		return
	}
	srcIdx, ok := n.OutputIndex(semantic.SlotError)
	if !ok {
		return
	}
	for _, link := range links {
		inIdx, _ := semantic.SlotIndex(link.Slot)
		ctx.deferConnection(DeferredConnection{
			Source: n.Name, SourceIndex: srcIdx,
			Target: link.Node, TargetIndex: inIdx,
		})
		if !ctx.visited[link.Node] && ctx.graph.Node(link.Node) != nil {
			prev := ctx.isBranch
			ctx.isBranch = false
			ctx.errorChains = append(ctx.errorChains, buildFromNode(ctx, link.Node))
			ctx.isBranch = prev
		}
	}
}

// buildSingleSlot continues a plain node whose targets all leave one slot.
func buildSingleSlot(ctx *buildContext, n *semantic.Node, leaf *Leaf, slot string) Node {
	links := n.Outputs[slot]

	if len(links) == 1 {
		if deferIfMerge(ctx, n, slot, links[0]) {
			return leaf
		}
		next := buildFromNode(ctx, links[0].Node)
		return flattenChain(leaf, next)
	}

	// Fan-out. A join directly among the targets is deferred leg by leg in
	// buildFanTargets; a join one hop downstream (the general merge pattern)
	// is preregistered here so its downstream builds once after all roots.
	names := make([]string, 0, len(links))
	for _, l := range links {
		names = append(names, l.Node)
	}

	if join, _, ok := findDirectMergeInFanOut(ctx.graph, names); ok {
		ctx.log.Debug("direct merge in fan-out", zap.String("source", n.Name), zap.String("join", join))
	} else if join, _, ok := detectMergePattern(ctx.graph, names); ok {
		ctx.log.Debug("merge pattern", zap.String("source", n.Name), zap.String("join", join))
		ctx.registerMerge(ctx.graph.Node(join))
	}
	return &FanOut{Source: n, Targets: buildFanTargets(ctx, n, slot, links)}
}

// buildFanTargets builds fan-out targets under branch context. Join targets
// are deferred exactly as branch targets are: a fan-out leg entering a join
// keeps its resolved input index instead of being rewired to input 0.
func buildFanTargets(ctx *buildContext, n *semantic.Node, slot string, links []semantic.Link) []Node {
	var out []Node
	ctx.inBranch(func() {
		for _, link := range links {
			if deferIfMerge(ctx, n, slot, link) {
				continue
			}
			out = append(out, buildFromNode(ctx, link.Node))
		}
	})
	return out
}

// buildMultiSlot handles plain nodes with several independently addressable
// output slots. Consecutively occupied indices become a MultiOutput with
// per-slot branches; sparse indices usually carry node-specific meaning a
// generic multi-output shape would obscure, so they degrade to explicit
// connections that preserve the exact indices.
func buildMultiSlot(ctx *buildContext, n *semantic.Node, occupied []string) Node {
	indices := make([]int, 0, len(occupied))
	consecutive := true
	for i, slot := range occupied {
		idx, ok := semantic.SlotIndex(slot)
		if !ok {
			consecutive = false
			break
		}
		if idx != i {
			consecutive = false
		}
		indices = append(indices, idx)
	}

	if consecutive {
		mo := &MultiOutput{Source: n, Indices: indices, Outputs: make(map[int][]Node)}
		for i, slot := range occupied {
			mo.Outputs[indices[i]] = buildBranchTargets(ctx, n, slot)
		}
		return mo
	}

	ec := &ExplicitConnections{Nodes: []*semantic.Node{n}}
	ctx.inBranch(func() {
		for _, slot := range occupied {
			srcIdx, ok := n.OutputIndex(slot)
			if !ok {
				continue
			}
			for _, link := range n.Outputs[slot] {
				inIdx, _ := semantic.SlotIndex(link.Slot)
				ec.Connections = append(ec.Connections, Connection{
					Source: n.Name, SourceIndex: srcIdx,
					Target: link.Node, TargetIndex: inIdx,
				})
				if isMerge(ctx.graph, link.Node) {
					ctx.registerMerge(ctx.graph.Node(link.Node))
				} else {
					ec.Targets = append(ec.Targets, buildFromNode(ctx, link.Node))
				}
			}
		}
	})
	return ec
}

// buildMergeDownstreams runs after every root has finished: each deferred
// join's downstream continuation is built exactly once, never inside the
// first branch that happened to reach the join. A downstream that is itself a
// deferred join chains through deferredConnections instead of being inlined.
func buildMergeDownstreams(ctx *buildContext) {
	// mergeOrder can grow while iterating (chains of joins).
	for i := 0; i < len(ctx.mergeOrder); i++ {
		m := ctx.graph.Node(ctx.mergeOrder[i])
		if m == nil {
			continue
		}
		for _, slot := range m.OccupiedOutputs() {
			srcIdx, ok := m.OutputIndex(slot)
			if !ok {
				srcIdx = 0
			}
			for _, link := range m.Outputs[slot] {
				if isMerge(ctx.graph, link.Node) {
					inIdx, _ := semantic.SlotIndex(link.Slot)
					ctx.deferConnection(DeferredConnection{
						Source: m.Name, SourceIndex: srcIdx,
						Target: link.Node, TargetIndex: inIdx,
					})
					ctx.registerMerge(ctx.graph.Node(link.Node))
					continue
				}
				ctx.isBranch = false
				ctx.mergeDownstreams = append(ctx.mergeDownstreams, MergeDownstream{
					Merge:      m,
					Downstream: buildFromNode(ctx, link.Node),
				})
			}
		}
		deferErrorOutput(ctx, m)
	}
}

// registerSubnodeVariables ensures every auxiliary attachment of a declared
// node is itself declared.
func registerSubnodeVariables(ctx *buildContext) {
	for i := 0; i < len(ctx.varOrder); i++ {
		n := ctx.variables[ctx.varOrder[i]]
		for _, sub := range n.Subnodes {
			if subNode := ctx.graph.Node(sub.Name); subNode != nil {
				ctx.registerVariable(subNode)
			}
		}
	}
}

// flattenChain prepends head to next, splicing when next is already a chain
// so linear runs stay flat.
func flattenChain(head Node, next Node) Node {
	if c, ok := next.(*Chain); ok {
		return &Chain{Nodes: append([]Node{head}, c.Nodes...)}
	}
	return &Chain{Nodes: []Node{head, next}}
}
