package workflow

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Builder accumulates nodes and wires and emits a Workflow. It is the target
// of the program interpreter: every builder-function call in a program
// ultimately lands here. Declaration order is preserved so that emitting the
// same program twice yields byte-identical JSON (ids aside).
type Builder struct {
	id      string
	name    string
	nodes   []*Node
	byName  map[string]*Node
	wires   []wire
	errors  []wire // error-routed wires, slot index assigned at Build time
	pinned  map[string][]byte
	nextPos [2]float64
}

type wire struct {
	from      string
	fromIndex int
	to        string
	toIndex   int
	kind      string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		byName:  make(map[string]*Node),
		nextPos: [2]float64{0, 0},
	}
}

// SetMeta records the workflow id and name emitted by Build.
func (b *Builder) SetMeta(id, name string) {
	b.id = id
	b.name = name
}

// AddNode declares a node. A missing id is minted; a missing position is laid
// out left-to-right in declaration order. Re-declaring a name is an error:
// names are the graph's addressing key.
func (b *Builder) AddNode(n *Node) error {
	if n.Name == "" {
		return fmt.Errorf("node must have a name")
	}
	if _, exists := b.byName[n.Name]; exists {
		return fmt.Errorf("duplicate node name %q", n.Name)
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Position == [2]float64{} {
		n.Position = b.nextPos
	}
	b.nextPos[0] += 220
	b.nodes = append(b.nodes, n)
	b.byName[n.Name] = n
	return nil
}

// HasNode reports whether a node with the given name was declared.
func (b *Builder) HasNode(name string) bool {
	_, ok := b.byName[name]
	return ok
}

// Connect wires an output slot of from to an input slot of to on the main
// connection kind.
func (b *Builder) Connect(from string, fromIndex int, to string, toIndex int) {
	b.wires = append(b.wires, wire{from, fromIndex, to, toIndex, KindMain})
}

// ConnectError routes from's error output to to. The slot index is resolved
// at Build time to one past the highest main output in use, and the source
// node is marked OnErrorContinue.
func (b *Builder) ConnectError(from, to string) {
	if n, ok := b.byName[from]; ok {
		n.OnError = OnErrorContinue
	}
	b.errors = append(b.errors, wire{from: from, to: to, kind: KindMain})
}

// AttachSubnode records an auxiliary attachment: the subnode is the wire's
// source and the parent its target, under the given kind.
func (b *Builder) AttachSubnode(parent, subnode, kind string) {
	b.wires = append(b.wires, wire{from: subnode, to: parent, kind: kind})
}

// Pin stores example output data for a node, carried through to PinData.
func (b *Builder) Pin(node string, data []byte) {
	if b.pinned == nil {
		b.pinned = make(map[string][]byte)
	}
	b.pinned[node] = data
}

// Build assembles the final Workflow. Connection slot slices are padded so
// that a wire at output index 2 occupies slots[2] with empty slots before it,
// matching the store format.
func (b *Builder) Build() *Workflow {
	w := &Workflow{
		ID:          b.id,
		Name:        b.name,
		Nodes:       b.nodes,
		Connections: make(Connections),
	}

	wires := append([]wire(nil), b.wires...)

	// Error wires land on the slot the source's type reserves for them.
	for _, e := range b.errors {
		e.fromIndex = -1
		if n, ok := b.byName[e.from]; ok {
			e.fromIndex = ErrorOutputIndex(n)
		}
		if e.fromIndex < 0 {
			// Unknown source type layout: fall back to one past the highest
			// wired main output.
			max := -1
			for _, m := range b.wires {
				if m.kind == KindMain && m.from == e.from && m.fromIndex > max {
					max = m.fromIndex
				}
			}
			e.fromIndex = max + 1
		}
		e.toIndex = 0
		wires = append(wires, e)
	}

	for _, m := range wires {
		kinds, ok := w.Connections[m.from]
		if !ok {
			kinds = make(map[string][][]Endpoint)
			w.Connections[m.from] = kinds
		}
		slots := kinds[m.kind]
		for len(slots) <= m.fromIndex {
			slots = append(slots, []Endpoint{})
		}
		slots[m.fromIndex] = append(slots[m.fromIndex], Endpoint{
			Node:  m.to,
			Type:  m.kind,
			Index: m.toIndex,
		})
		kinds[m.kind] = slots
	}

	if len(b.pinned) > 0 {
		w.PinData = make(map[string]json.RawMessage, len(b.pinned))
		names := make([]string, 0, len(b.pinned))
		for name := range b.pinned {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			w.PinData[name] = json.RawMessage(b.pinned[name])
		}
	}
	return w
}
