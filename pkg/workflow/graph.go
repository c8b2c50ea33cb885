// Package workflow defines the raw node-and-wire graph model as stored by the
// external workflow store, plus a Builder for constructing graphs
// programmatically. Node names are the addressing key everywhere downstream;
// ids are opaque.
package workflow

import (
	"encoding/json"
	"fmt"
)

// KindMain is the primary data-flow connection kind. Every other kind is an
// auxiliary attachment ("subnode") kind, e.g. "ai_languageModel".
const KindMain = "main"

// Endpoint is one end of a wire: a target node plus the input slot index it
// arrives at.
type Endpoint struct {
	Node  string `json:"node"`
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// Connections maps source-node-name → connection-kind → output slots, where
// each output slot is an ordered list of endpoints fed by that slot.
type Connections map[string]map[string][][]Endpoint

// Node is a single vertex exactly as the store represents it.
type Node struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	TypeVersion float64        `json:"typeVersion"`
	Position    [2]float64     `json:"position"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Credentials map[string]any `json:"credentials,omitempty"`
	OnError     string         `json:"onError,omitempty"`
}

// Workflow is the raw graph document.
type Workflow struct {
	ID          string                     `json:"id,omitempty"`
	Name        string                     `json:"name"`
	Nodes       []*Node                    `json:"nodes"`
	Connections Connections                `json:"connections"`
	PinData     map[string]json.RawMessage `json:"pinData,omitempty"`
}

// OnErrorContinue marks a node whose failures are routed to an extra output
// slot instead of aborting the run.
const OnErrorContinue = "continueErrorOutput"

// Parse decodes a store JSON document into a Workflow.
func Parse(data []byte) (*Workflow, error) {
	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("workflow parse error: %w", err)
	}
	if w.Connections == nil {
		w.Connections = make(Connections)
	}
	return &w, nil
}

// Marshal encodes the workflow back into store JSON, indented.
func (w *Workflow) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("workflow marshal error: %w", err)
	}
	return data, nil
}

// NodeByName returns the node with the given name, or nil.
func (w *Workflow) NodeByName(name string) *Node {
	for _, n := range w.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// MainOutputs returns the main-kind output slots of the named node.
func (w *Workflow) MainOutputs(name string) [][]Endpoint {
	kinds, ok := w.Connections[name]
	if !ok {
		return nil
	}
	return kinds[KindMain]
}

// ConnectionCount returns the total number of wires in the graph, across all
// kinds and slots.
func (w *Workflow) ConnectionCount() int {
	total := 0
	for _, kinds := range w.Connections {
		for _, slots := range kinds {
			for _, slot := range slots {
				total += len(slot)
			}
		}
	}
	return total
}
