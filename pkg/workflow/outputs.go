package workflow

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrorOutputIndex returns the output slot index reserved for error routing
// on a node marked OnErrorContinue, or -1 when the node does not route errors
// to an output. The error slot sits one past every regular output the node's
// type defines, including a switch fallback slot, regardless of whether those
// outputs are wired.
func ErrorOutputIndex(n *Node) int {
	if n == nil || n.OnError != OnErrorContinue {
		return -1
	}
	return outputSlotCount(n)
}

// outputSlotCount returns how many non-error output slots the node's type
// defines. Branch types have a fixed layout; switch nodes carry their count
// in parameters.
func outputSlotCount(n *Node) int {
	suffix := strings.ToLower(n.Type)
	if i := strings.LastIndex(suffix, "."); i >= 0 {
		suffix = suffix[i+1:]
	}
	switch suffix {
	case "if", "splitinbatches":
		return 2
	case "switch":
		count := 1
		p := nodeParams(n)
		if v := p.Get("numberOutputs"); v.Exists() {
			count = int(v.Int())
		} else if rules := p.Get("rules.values"); rules.IsArray() {
			count = len(rules.Array())
		}
		if fb := p.Get("options.fallbackOutput"); fb.Exists() && fb.String() != "none" {
			count++
		}
		return count
	}
	return 1
}

func nodeParams(n *Node) gjson.Result {
	if n.Parameters == nil {
		return gjson.Result{}
	}
	data, err := json.Marshal(n.Parameters)
	if err != nil {
		return gjson.Result{}
	}
	return gjson.ParseBytes(data)
}
