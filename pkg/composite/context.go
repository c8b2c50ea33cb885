package composite

import (
	"go.uber.org/zap"

	"github.com/wireflow-dev/wireflow/pkg/semantic"
)

// DeferredConnection is a wiring fact recorded during the build for emission
// at the top level instead of nested inside a branch.
type DeferredConnection struct {
	Source      string
	SourceIndex int
	Target      string
	TargetIndex int
}

// MergeDownstream is a join node's single downstream continuation, built
// exactly once after every root has finished.
type MergeDownstream struct {
	Merge      *semantic.Node
	Downstream Node
}

// buildContext is the mutable state threaded by pointer through the whole
// recursive build. It is freshly constructed per translation; running the
// builder twice on the same graph yields structurally identical trees.
type buildContext struct {
	graph   *semantic.Graph
	visited map[string]bool

	// variables collects nodes that must be declared because something refers
	// to them by name; varOrder preserves first-registration order.
	variables map[string]*semantic.Node
	varOrder  []string

	// isBranch is true while building inside a conditional/iteration branch,
	// which changes how join connections are handled.
	isBranch bool

	deferred         []DeferredConnection
	mergeDownstreams []MergeDownstream
	deferredMerges   map[string]bool
	mergeOrder       []string
	errorChains      []Node

	log *zap.Logger
}

func newBuildContext(g *semantic.Graph, log *zap.Logger) *buildContext {
	if log == nil {
		log = zap.NewNop()
	}
	return &buildContext{
		graph:          g,
		visited:        make(map[string]bool),
		variables:      make(map[string]*semantic.Node),
		deferredMerges: make(map[string]bool),
		log:            log,
	}
}

func (ctx *buildContext) registerVariable(n *semantic.Node) {
	if _, ok := ctx.variables[n.Name]; ok {
		return
	}
	ctx.variables[n.Name] = n
	ctx.varOrder = append(ctx.varOrder, n.Name)
}

// deferConnection records a top-level wiring fact, deduplicating exact
// repeats (the same edge can be reached from two directions).
func (ctx *buildContext) deferConnection(c DeferredConnection) {
	for _, existing := range ctx.deferred {
		if existing == c {
			return
		}
	}
	ctx.log.Debug("deferring connection",
		zap.String("source", c.Source), zap.Int("sourceIndex", c.SourceIndex),
		zap.String("target", c.Target), zap.Int("targetIndex", c.TargetIndex))
	ctx.deferred = append(ctx.deferred, c)
}

// registerMerge marks a join node as deferred: declared once, wired via
// deferred connections, downstream built in the post-pass.
func (ctx *buildContext) registerMerge(n *semantic.Node) {
	ctx.registerVariable(n)
	if ctx.deferredMerges[n.Name] {
		return
	}
	ctx.deferredMerges[n.Name] = true
	ctx.mergeOrder = append(ctx.mergeOrder, n.Name)
	ctx.visited[n.Name] = true
}

// inBranch runs fn with the branch-context flag set, restoring it after.
func (ctx *buildContext) inBranch(fn func()) {
	prev := ctx.isBranch
	ctx.isBranch = true
	fn()
	ctx.isBranch = prev
}
