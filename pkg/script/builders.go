package script

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/wireflow-dev/wireflow/pkg/workflow"
)

// NodeRef is the value a node declaration evaluates to: a by-name handle on a
// declared workflow node.
type NodeRef struct {
	Name string
	kind string // builder that declared it, e.g. "trigger", "languageModel"
}

func (n *NodeRef) refIdentity() any { return n }

// ChainVal is the value of a chain: a head for upstream wiring and a tail for
// continuation.
type ChainVal struct {
	Head, Tail string
}

func (c *ChainVal) refIdentity() any { return c }

// WorkflowVal is the terminal value produced by workflow(); exporting it
// assembles the final graph.
type WorkflowVal struct {
	set *BuilderSet
}

func (w *WorkflowVal) refIdentity() any { return w }

// builderFunc is one entry of the builder-function set the interpreter
// resolves direct calls against.
type builderFunc func(s *BuilderSet, args []any) (any, error)

// subnodeKinds maps an attachment builder to the auxiliary connection kind it
// wires.
var subnodeKinds = map[string]string{
	"languageModel": "ai_languageModel",
	"memory":        "ai_memory",
	"tool":          "ai_tool",
	"outputParser":  "ai_outputParser",
}

// autoRenameable is the subset of reserved builder names a program may shadow
// with a const: the interpreter silently renames the binding instead of
// failing. Only the subordinate attachment builders qualify.
var autoRenameable = map[string]bool{
	"languageModel": true,
	"memory":        true,
	"tool":          true,
	"outputParser":  true,
}

var builderFuncs = map[string]builderFunc{
	"node":           declareFunc("node"),
	"trigger":        declareFunc("trigger"),
	"merge":          declareFunc("merge"),
	"languageModel":  declareFunc("languageModel"),
	"memory":         declareFunc("memory"),
	"tool":           declareFunc("tool"),
	"outputParser":   declareFunc("outputParser"),
	"chain":          chainFunc,
	"ifElse":         ifElseFunc,
	"switchCase":     switchCaseFunc,
	"splitInBatches": splitInBatchesFunc,
	"fanOut":         fanOutFunc,
	"multi":          multiFunc,
	"connect":        connectFunc,
	"onError":        onErrorFunc,
	"attach":         attachFunc,
	"workflow":       workflowFunc,
}

// IsReserved reports whether name is a builder-function name.
func IsReserved(name string) bool {
	_, ok := builderFuncs[name]
	return ok
}

// IsAutoRenameable reports whether a reserved name may be shadowed with a
// synthetic rename instead of failing.
func IsAutoRenameable(name string) bool {
	return autoRenameable[name]
}

// BuilderSet owns the workflow.Builder every builder call lands on.
type BuilderSet struct {
	b *workflow.Builder
}

// NewBuilderSet returns a BuilderSet over a fresh workflow.Builder.
func NewBuilderSet() *BuilderSet {
	return &BuilderSet{b: workflow.NewBuilder()}
}

// ─── declarations ────────────────────────────────────────────────────────────

func declareFunc(kind string) builderFunc {
	return func(s *BuilderSet, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s() takes one definition object, got %d args", kind, len(args))
		}
		n, err := nodeFromDef(args[0], kind)
		if err != nil {
			return nil, fmt.Errorf("%s(): %w", kind, err)
		}
		if err := s.b.AddNode(n); err != nil {
			return nil, fmt.Errorf("%s(): %w", kind, err)
		}
		return &NodeRef{Name: n.Name, kind: kind}, nil
	}
}

func nodeFromDef(arg any, kind string) (*workflow.Node, error) {
	def, ok := arg.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("definition must be an object, got %T", arg)
	}
	n := &workflow.Node{}
	if v, ok := def["name"].(string); ok {
		n.Name = v
	}
	if n.Name == "" {
		return nil, fmt.Errorf("definition needs a name")
	}
	if v, ok := def["type"].(string); ok {
		n.Type = v
	}
	if v, ok := def["id"].(string); ok {
		n.ID = v
	}
	if v, ok := def["version"].(float64); ok {
		n.TypeVersion = v
	}
	if v, ok := def["parameters"].(map[string]any); ok {
		n.Parameters = v
	}
	if v, ok := def["credentials"].(map[string]any); ok {
		n.Credentials = v
	}
	if v, ok := def["onError"].(string); ok {
		n.OnError = v
	}
	if v, ok := def["position"].([]any); ok && len(v) == 2 {
		x, xok := v[0].(float64)
		y, yok := v[1].(float64)
		if xok && yok {
			n.Position = [2]float64{x, y}
		}
	}
	_ = kind
	return n, nil
}

// ─── wiring ──────────────────────────────────────────────────────────────────

// heads resolves a branch value to the node names upstream wiring should
// enter through. nil and null branches resolve to nothing.
func heads(v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *NodeRef:
		return []string{x.Name}, nil
	case *ChainVal:
		return []string{x.Head}, nil
	case []any:
		var out []string
		for _, el := range x {
			hs, err := heads(el)
			if err != nil {
				return nil, err
			}
			out = append(out, hs...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a node, chain, or array, got %T", v)
}

func tailOf(v any) (string, error) {
	switch x := v.(type) {
	case *NodeRef:
		return x.Name, nil
	case *ChainVal:
		return x.Tail, nil
	}
	return "", fmt.Errorf("expected a node or chain, got %T", v)
}

func nodeName(v any) (string, error) {
	switch x := v.(type) {
	case *NodeRef:
		return x.Name, nil
	case string:
		return x, nil
	}
	return "", fmt.Errorf("expected a node reference, got %T", v)
}

func intArg(v any) (int, error) {
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) {
		return 0, fmt.Errorf("expected an integer index, got %v", v)
	}
	return int(f), nil
}

func (s *BuilderSet) connectBranch(src string, out int, branch any) error {
	hs, err := heads(branch)
	if err != nil {
		return err
	}
	for _, h := range hs {
		s.b.Connect(src, out, h, 0)
	}
	return nil
}

func chainFunc(s *BuilderSet, args []any) (any, error) {
	var first, prev any
	for i, arg := range args {
		if arg == nil {
			continue
		}
		if arr, ok := arg.([]any); ok {
			// A trailing array fans the chain out and ends it.
			if i != len(args)-1 {
				return nil, fmt.Errorf("chain(): an array target must be last")
			}
			if prev == nil {
				return nil, fmt.Errorf("chain(): cannot start with an array")
			}
			tail, err := tailOf(prev)
			if err != nil {
				return nil, err
			}
			if err := s.connectBranch(tail, 0, arr); err != nil {
				return nil, err
			}
			break
		}
		if prev != nil {
			tail, err := tailOf(prev)
			if err != nil {
				return nil, fmt.Errorf("chain(): %w", err)
			}
			hs, err := heads(arg)
			if err != nil {
				return nil, fmt.Errorf("chain(): %w", err)
			}
			for _, h := range hs {
				s.b.Connect(tail, 0, h, 0)
			}
		} else {
			first = arg
		}
		prev = arg
	}
	if first == nil {
		return nil, fmt.Errorf("chain() needs at least one node")
	}
	head, err := heads(first)
	if err != nil || len(head) == 0 {
		return nil, fmt.Errorf("chain(): unusable first element")
	}
	tail, err := tailOf(prev)
	if err != nil {
		return nil, err
	}
	return &ChainVal{Head: head[0], Tail: tail}, nil
}

func ifElseFunc(s *BuilderSet, args []any) (any, error) {
	if len(args) < 1 || len(args) > 3 {
		return nil, fmt.Errorf("ifElse(node, trueBranch, falseBranch) got %d args", len(args))
	}
	ref, ok := args[0].(*NodeRef)
	if !ok {
		return nil, fmt.Errorf("ifElse(): first argument must be a node")
	}
	if len(args) > 1 {
		if err := s.connectBranch(ref.Name, 0, args[1]); err != nil {
			return nil, fmt.Errorf("ifElse() true branch: %w", err)
		}
	}
	if len(args) > 2 {
		if err := s.connectBranch(ref.Name, 1, args[2]); err != nil {
			return nil, fmt.Errorf("ifElse() false branch: %w", err)
		}
	}
	return ref, nil
}

func switchCaseFunc(s *BuilderSet, args []any) (any, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, fmt.Errorf("switchCase(node, cases, fallback?) got %d args", len(args))
	}
	ref, ok := args[0].(*NodeRef)
	if !ok {
		return nil, fmt.Errorf("switchCase(): first argument must be a node")
	}
	cases, ok := args[1].([]any)
	if !ok {
		return nil, fmt.Errorf("switchCase(): second argument must be an array of cases")
	}
	for i, c := range cases {
		if err := s.connectBranch(ref.Name, i, c); err != nil {
			return nil, fmt.Errorf("switchCase() case %d: %w", i, err)
		}
	}
	if len(args) == 3 && args[2] != nil {
		if err := s.connectBranch(ref.Name, len(cases), args[2]); err != nil {
			return nil, fmt.Errorf("switchCase() fallback: %w", err)
		}
	}
	return ref, nil
}

func splitInBatchesFunc(s *BuilderSet, args []any) (any, error) {
	if len(args) < 1 || len(args) > 3 {
		return nil, fmt.Errorf("splitInBatches(node, done, loop) got %d args", len(args))
	}
	ref, ok := args[0].(*NodeRef)
	if !ok {
		return nil, fmt.Errorf("splitInBatches(): first argument must be a node")
	}
	if len(args) > 1 {
		if err := s.connectBranch(ref.Name, 0, args[1]); err != nil {
			return nil, fmt.Errorf("splitInBatches() done branch: %w", err)
		}
	}
	if len(args) > 2 {
		if err := s.connectBranch(ref.Name, 1, args[2]); err != nil {
			return nil, fmt.Errorf("splitInBatches() loop branch: %w", err)
		}
	}
	return ref, nil
}

func fanOutFunc(s *BuilderSet, args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("fanOut(node, targets) got %d args", len(args))
	}
	ref, ok := args[0].(*NodeRef)
	if !ok {
		return nil, fmt.Errorf("fanOut(): first argument must be a node")
	}
	if err := s.connectBranch(ref.Name, 0, args[1]); err != nil {
		return nil, fmt.Errorf("fanOut(): %w", err)
	}
	return ref, nil
}

func multiFunc(s *BuilderSet, args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("multi(node, outputs) got %d args", len(args))
	}
	ref, ok := args[0].(*NodeRef)
	if !ok {
		return nil, fmt.Errorf("multi(): first argument must be a node")
	}
	outputs, ok := args[1].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("multi(): second argument must be an object keyed by output index")
	}
	keys := make([]int, 0, len(outputs))
	byKey := make(map[int]any, len(outputs))
	for k, v := range outputs {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("multi(): key %q is not an output index", k)
		}
		keys = append(keys, idx)
		byKey[idx] = v
	}
	sort.Ints(keys)
	for _, idx := range keys {
		if err := s.connectBranch(ref.Name, idx, byKey[idx]); err != nil {
			return nil, fmt.Errorf("multi() output %d: %w", idx, err)
		}
	}
	return ref, nil
}

func connectFunc(s *BuilderSet, args []any) (any, error) {
	if len(args) != 4 {
		return nil, fmt.Errorf("connect(src, outIndex, dst, inIndex) got %d args", len(args))
	}
	src, err := nodeName(args[0])
	if err != nil {
		return nil, fmt.Errorf("connect(): %w", err)
	}
	out, err := intArg(args[1])
	if err != nil {
		return nil, fmt.Errorf("connect(): %w", err)
	}
	dst, err := nodeName(args[2])
	if err != nil {
		return nil, fmt.Errorf("connect(): %w", err)
	}
	in, err := intArg(args[3])
	if err != nil {
		return nil, fmt.Errorf("connect(): %w", err)
	}
	s.b.Connect(src, out, dst, in)
	return nil, nil
}

func onErrorFunc(s *BuilderSet, args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("onError(node, handler) got %d args", len(args))
	}
	src, err := nodeName(args[0])
	if err != nil {
		return nil, fmt.Errorf("onError(): %w", err)
	}
	hs, err := heads(args[1])
	if err != nil || len(hs) == 0 {
		return nil, fmt.Errorf("onError(): handler must be a node or chain")
	}
	s.b.ConnectError(src, hs[0])
	return args[0], nil
}

func attachFunc(s *BuilderSet, args []any) (any, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, fmt.Errorf("attach(parent, subnode, kind?) got %d args", len(args))
	}
	parent, err := nodeName(args[0])
	if err != nil {
		return nil, fmt.Errorf("attach(): %w", err)
	}
	sub, ok := args[1].(*NodeRef)
	if !ok {
		return nil, fmt.Errorf("attach(): second argument must be a node")
	}
	kind := ""
	if len(args) == 3 {
		kind, ok = args[2].(string)
		if !ok {
			return nil, fmt.Errorf("attach(): kind must be a string")
		}
	} else {
		kind = subnodeKinds[sub.kind]
	}
	if kind == "" {
		return nil, fmt.Errorf("attach(): no connection kind for %q; pass one explicitly", sub.Name)
	}
	s.b.AttachSubnode(parent, sub.Name, kind)
	return args[0], nil
}

func workflowFunc(s *BuilderSet, args []any) (any, error) {
	var id, name string
	switch len(args) {
	case 1:
		name, _ = args[0].(string)
	case 2:
		id, _ = args[0].(string)
		name, _ = args[1].(string)
	default:
		return nil, fmt.Errorf("workflow(id?, name) got %d args", len(args))
	}
	s.b.SetMeta(id, name)
	return &WorkflowVal{set: s}, nil
}

// ─── builder-value methods ───────────────────────────────────────────────────

// callBuilderMethod dispatches the allowlisted methods on builder values.
// Returns handled=false when the receiver is not a builder value.
func (s *BuilderSet) callBuilderMethod(recv any, name string, args []any) (any, bool, error) {
	switch r := recv.(type) {
	case *NodeRef:
		switch name {
		case "then":
			if len(args) != 1 {
				return nil, true, fmt.Errorf(".then(next) got %d args", len(args))
			}
			hs, err := heads(args[0])
			if err != nil {
				return nil, true, err
			}
			for _, h := range hs {
				s.b.Connect(r.Name, 0, h, 0)
			}
			tail, err := tailOf(args[0])
			if err != nil {
				return nil, true, err
			}
			return &ChainVal{Head: r.Name, Tail: tail}, true, nil
		case "input":
			if len(args) < 2 || len(args) > 3 {
				return nil, true, fmt.Errorf(".input(index, source, sourceOutput?) got %d args", len(args))
			}
			in, err := intArg(args[0])
			if err != nil {
				return nil, true, err
			}
			src, err := nodeName(args[1])
			if err != nil {
				return nil, true, err
			}
			out := 0
			if len(args) == 3 {
				out, err = intArg(args[2])
				if err != nil {
					return nil, true, err
				}
			}
			s.b.Connect(src, out, r.Name, in)
			return r, true, nil
		case "onError":
			if len(args) != 1 {
				return nil, true, fmt.Errorf(".onError(handler) got %d args", len(args))
			}
			v, err := onErrorFunc(s, []any{r, args[0]})
			return v, true, err
		}
		return nil, true, fmt.Errorf("no method %q on a node", name)
	case *ChainVal:
		if name == "then" {
			if len(args) != 1 {
				return nil, true, fmt.Errorf(".then(next) got %d args", len(args))
			}
			hs, err := heads(args[0])
			if err != nil {
				return nil, true, err
			}
			for _, h := range hs {
				s.b.Connect(r.Tail, 0, h, 0)
			}
			tail, err := tailOf(args[0])
			if err != nil {
				return nil, true, err
			}
			return &ChainVal{Head: r.Head, Tail: tail}, true, nil
		}
		return nil, true, fmt.Errorf("no method %q on a chain", name)
	}
	return nil, false, nil
}
