package semantic

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wireflow-dev/wireflow/pkg/workflow"
)

// Kind is the composite classification of a node. It decides which composite
// tree variant is built for the node and how its output indices are named.
type Kind string

const (
	KindPlain          Kind = "plain"
	KindTrigger        Kind = "trigger"
	KindIfElse         Kind = "ifElse"
	KindSwitchCase     Kind = "switchCase"
	KindSplitInBatches Kind = "splitInBatches"
	KindMerge          Kind = "merge"
	KindSticky         Kind = "sticky" // cosmetic annotation, never wired
	KindSubnode        Kind = "subnode"
)

// typeKinds classifies by the suffix of the node type string (the part after
// the last dot), lowercased. The slot-numbering behavior of each kind is a
// per-kind rule here rather than a universal graph property, so a node type
// with unusual slot semantics gets its own entry instead of a guess.
var typeKinds = map[string]Kind{
	"if":             KindIfElse,
	"switch":         KindSwitchCase,
	"splitinbatches": KindSplitInBatches,
	"merge":          KindMerge,
	"stickynote":     KindSticky,
}

// subnodeTypePrefixes marks types that only ever appear as auxiliary
// attachments (language models, memories, tools, output parsers).
var subnodeTypePrefixes = []string{
	"@n8n/n8n-nodes-langchain.lm",
	"@n8n/n8n-nodes-langchain.memory",
	"@n8n/n8n-nodes-langchain.tool",
	"@n8n/n8n-nodes-langchain.outputparser",
	"@n8n/n8n-nodes-langchain.embeddings",
}

// Classify assigns a Kind to a raw node from its type string.
func Classify(n *workflow.Node) Kind {
	t := strings.ToLower(n.Type)
	suffix := t
	if i := strings.LastIndex(t, "."); i >= 0 {
		suffix = t[i+1:]
	}
	if k, ok := typeKinds[suffix]; ok {
		return k
	}
	for _, p := range subnodeTypePrefixes {
		if strings.HasPrefix(t, p) {
			return KindSubnode
		}
	}
	if strings.Contains(suffix, "trigger") || strings.Contains(suffix, "webhook") ||
		suffix == "start" || suffix == "cron" {
		return KindTrigger
	}
	return KindPlain
}

// params returns the node's parameters as a gjson result for probing.
func params(n *workflow.Node) gjson.Result {
	if n == nil || n.Parameters == nil {
		return gjson.Result{}
	}
	data, err := json.Marshal(n.Parameters)
	if err != nil {
		return gjson.Result{}
	}
	return gjson.ParseBytes(data)
}

// mainOutputCount returns how many regular (non-error, non-fallback) output
// slots the node's kind defines. Switch nodes carry their count in
// parameters; everything unknown defaults to one.
func mainOutputCount(n *Node) int {
	switch n.Kind {
	case KindIfElse, KindSplitInBatches:
		return 2
	case KindSwitchCase:
		p := params(n.Raw)
		if v := p.Get("numberOutputs"); v.Exists() {
			return int(v.Int())
		}
		if rules := p.Get("rules.values"); rules.IsArray() {
			return len(rules.Array())
		}
		return 1
	}
	return 1
}

// hasFallback reports whether a switch node routes unmatched items to an
// extra output slot.
func (n *Node) hasFallback() bool {
	if n.Kind != KindSwitchCase {
		return false
	}
	fb := params(n.Raw).Get("options.fallbackOutput")
	return fb.Exists() && fb.String() != "none"
}
