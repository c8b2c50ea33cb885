// Package codegen renders a workflow graph as program text: one const
// declaration per referenced node, composite expressions for the control
// flow, explicit connect() lines for wiring no structured shape can express,
// and a terminal export of the assembled workflow.
package codegen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/wireflow-dev/wireflow/pkg/composite"
	"github.com/wireflow-dev/wireflow/pkg/semantic"
	"github.com/wireflow-dev/wireflow/pkg/workflow"
)

// Generate translates a workflow graph into program text. log may be nil.
func Generate(w *workflow.Workflow, log *zap.Logger) (string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	g := semantic.Build(w)
	res := composite.BuildTree(g, log)

	gen := &generator{
		wf:       w,
		graph:    g,
		res:      res,
		names:    newNameTable(),
		connSeen: make(map[composite.Connection]bool),
	}
	return gen.render(), nil
}

type generator struct {
	wf    *workflow.Workflow
	graph *semantic.Graph
	res   *composite.Result
	names *nameTable

	// statements hoisted out of expression position during rendering
	connects []string
	connSeen map[composite.Connection]bool
	onErrors []string
	extras   []string
}

func (gen *generator) render() string {
	var out []string

	// Identifiers are minted in declaration order so references and
	// declarations agree.
	for _, name := range gen.res.VarOrder {
		gen.names.ident(name)
	}

	for _, name := range gen.res.VarOrder {
		out = append(out, gen.renderDecl(gen.res.Variables[name]))
	}

	var stmts []string
	for _, root := range gen.res.Roots {
		if s := gen.statement(root); s != "" {
			stmts = append(stmts, s)
		}
	}
	for _, md := range gen.res.MergeDownstreams {
		stmts = append(stmts, gen.renderMergeDownstream(md))
	}
	for _, ec := range gen.res.ErrorChains {
		if s := gen.statement(ec); s != "" {
			stmts = append(stmts, s)
		}
	}
	for _, dc := range gen.res.Deferred {
		gen.hoistConnection(composite.Connection(dc))
	}

	if len(stmts) > 0 {
		out = append(out, strings.Join(stmts, "\n"))
	}
	if len(gen.extras) > 0 {
		out = append(out, strings.Join(gen.extras, "\n"))
	}
	if len(gen.connects) > 0 {
		out = append(out, strings.Join(gen.connects, "\n"))
	}
	if attach := gen.renderAttachments(); len(attach) > 0 {
		out = append(out, strings.Join(attach, "\n"))
	}
	if len(gen.onErrors) > 0 {
		out = append(out, strings.Join(gen.onErrors, "\n"))
	}

	out = append(out, gen.renderExport())
	return strings.Join(out, "\n\n") + "\n"
}

// ─── declarations ────────────────────────────────────────────────────────────

func (gen *generator) renderDecl(n *semantic.Node) string {
	var sb strings.Builder
	if pin, ok := gen.wf.PinData[n.Name]; ok {
		redacted, changed := redactSecrets(string(pin))
		if changed {
			sb.WriteString("// @redacted credential-like values replaced\n")
		}
		sb.WriteString("// @output ")
		sb.WriteString(redacted)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "const %s = %s({\n", gen.names.ident(n.Name), builderFor(n))
	fmt.Fprintf(&sb, "  name: %s,\n", jsString(n.Name))
	fmt.Fprintf(&sb, "  type: %s,\n", jsString(n.Type))
	raw := n.Raw
	if raw != nil {
		if raw.TypeVersion != 0 {
			fmt.Fprintf(&sb, "  version: %s,\n", jsNumber(raw.TypeVersion))
		}
		if raw.Position != ([2]float64{}) {
			fmt.Fprintf(&sb, "  position: [%s, %s],\n", jsNumber(raw.Position[0]), jsNumber(raw.Position[1]))
		}
		if len(raw.Parameters) > 0 {
			fmt.Fprintf(&sb, "  parameters: %s,\n", jsValue(raw.Parameters))
		}
		if len(raw.Credentials) > 0 {
			fmt.Fprintf(&sb, "  credentials: %s,\n", jsValue(raw.Credentials))
		}
		if raw.OnError != "" {
			fmt.Fprintf(&sb, "  onError: %s,\n", jsString(raw.OnError))
		}
	}
	sb.WriteString("});")
	return sb.String()
}

// builderFor picks the declaring builder from the node's classification. An
// attachment type outside the four dedicated builders declares with node()
// and relies on an explicit attach() kind.
func builderFor(n *semantic.Node) string {
	switch n.Kind {
	case semantic.KindTrigger:
		return "trigger"
	case semantic.KindMerge:
		return "merge"
	case semantic.KindSubnode:
		last := n.Type
		if i := strings.LastIndex(last, "."); i >= 0 {
			last = last[i+1:]
		}
		lower := strings.ToLower(last)
		switch {
		case strings.HasPrefix(lower, "lm"):
			return "languageModel"
		case strings.HasPrefix(lower, "memory"):
			return "memory"
		case strings.HasPrefix(lower, "tool"):
			return "tool"
		case strings.HasPrefix(lower, "outputparser"):
			return "outputParser"
		}
	}
	return "node"
}

// ─── statements ──────────────────────────────────────────────────────────────

// statement renders a composite in statement position, or "" when the
// declarations and hoisted lines already say everything.
func (gen *generator) statement(n composite.Node) string {
	switch v := n.(type) {
	case *composite.Leaf:
		gen.hoistLeafError(v)
		return ""
	case *composite.VarRef:
		return ""
	case *composite.ExplicitConnections:
		gen.expr(n) // hoists its lines
		return ""
	}
	return gen.expr(n) + ";"
}

func (gen *generator) renderMergeDownstream(md composite.MergeDownstream) string {
	args := []string{gen.names.ident(md.Merge.Name)}
	args = append(args, gen.chainArgs(md.Downstream)...)
	return fmt.Sprintf("chain(%s);", strings.Join(args, ", "))
}

// chainArgs flattens a composite into chain() argument expressions.
func (gen *generator) chainArgs(n composite.Node) []string {
	if c, ok := n.(*composite.Chain); ok {
		var out []string
		for _, el := range c.Nodes {
			out = append(out, gen.chainArgs(el)...)
		}
		return out
	}
	return []string{gen.expr(n)}
}

func (gen *generator) hoistConnection(c composite.Connection) {
	if gen.connSeen[c] {
		return
	}
	gen.connSeen[c] = true
	gen.connects = append(gen.connects, fmt.Sprintf("connect(%s, %d, %s, %d);",
		gen.names.ident(c.Source), c.SourceIndex,
		gen.names.ident(c.Target), c.TargetIndex))
}

func (gen *generator) hoistLeafError(l *composite.Leaf) {
	if l.ErrorHandler == nil {
		return
	}
	gen.onErrors = append(gen.onErrors, fmt.Sprintf("onError(%s, %s);",
		gen.names.ident(l.Node.Name), gen.expr(l.ErrorHandler)))
}

func (gen *generator) renderAttachments() []string {
	var out []string
	for _, name := range gen.res.VarOrder {
		n := gen.res.Variables[name]
		for _, sub := range n.Subnodes {
			out = append(out, fmt.Sprintf("attach(%s, %s, %s);",
				gen.names.ident(n.Name), gen.names.ident(sub.Name), jsString(sub.Kind)))
		}
	}
	return out
}

func (gen *generator) renderExport() string {
	if gen.wf.ID != "" {
		return fmt.Sprintf("export default workflow(%s, %s);", jsString(gen.wf.ID), jsString(gen.wf.Name))
	}
	return fmt.Sprintf("export default workflow(%s);", jsString(gen.wf.Name))
}

// ─── expressions ─────────────────────────────────────────────────────────────

func (gen *generator) expr(n composite.Node) string {
	switch v := n.(type) {
	case *composite.Leaf:
		gen.hoistLeafError(v)
		return gen.names.ident(v.Node.Name)
	case *composite.VarRef:
		return gen.names.ident(v.Name)
	case *composite.Chain:
		var args []string
		for _, el := range v.Nodes {
			args = append(args, gen.expr(el))
		}
		return fmt.Sprintf("chain(%s)", strings.Join(args, ", "))
	case *composite.IfElse:
		return fmt.Sprintf("ifElse(%s, %s, %s)",
			gen.names.ident(v.If.Name), gen.branch(v.True), gen.branch(v.False))
	case *composite.SwitchCase:
		return gen.switchExpr(v)
	case *composite.SplitInBatches:
		return fmt.Sprintf("splitInBatches(%s, %s, %s)",
			gen.names.ident(v.Split.Name), gen.branch(v.Done), gen.branch(v.Loop))
	case *composite.FanOut:
		var targets []string
		for _, t := range v.Targets {
			targets = append(targets, gen.expr(t))
		}
		return fmt.Sprintf("fanOut(%s, [%s])",
			gen.names.ident(v.Source.Name), strings.Join(targets, ", "))
	case *composite.MultiOutput:
		var entries []string
		for _, idx := range v.Indices {
			entries = append(entries, fmt.Sprintf("%d: %s", idx, gen.branch(v.Outputs[idx])))
		}
		return fmt.Sprintf("multi(%s, {%s})",
			gen.names.ident(v.Source.Name), strings.Join(entries, ", "))
	case *composite.ExplicitConnections:
		for _, c := range v.Connections {
			gen.hoistConnection(c)
		}
		for _, t := range v.Targets {
			if s := gen.statement(t); s != "" {
				gen.extras = append(gen.extras, s)
			}
		}
		if len(v.Nodes) > 0 {
			return gen.names.ident(v.Nodes[0].Name)
		}
		return ""
	}
	return ""
}

// switchExpr pads the case array so positions line up with output indices;
// the fallback entry becomes the third argument.
func (gen *generator) switchExpr(v *composite.SwitchCase) string {
	maxIdx := -1
	byIdx := make(map[int][]composite.Node)
	fallback := "null"
	hasFallback := false
	for i, idx := range v.CaseIndices {
		if idx == composite.FallbackIndex {
			fallback = gen.branch(v.Cases[i])
			hasFallback = true
			continue
		}
		byIdx[idx] = v.Cases[i]
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	cases := make([]string, 0, maxIdx+1)
	for i := 0; i <= maxIdx; i++ {
		if nodes, ok := byIdx[i]; ok {
			cases = append(cases, gen.branch(nodes))
		} else {
			cases = append(cases, "null")
		}
	}
	ident := gen.names.ident(v.Switch.Name)
	if hasFallback {
		return fmt.Sprintf("switchCase(%s, [%s], %s)", ident, strings.Join(cases, ", "), fallback)
	}
	return fmt.Sprintf("switchCase(%s, [%s])", ident, strings.Join(cases, ", "))
}

// branch renders a branch target list: null when empty, a bare expression for
// one target, an array for parallel targets.
func (gen *generator) branch(nodes []composite.Node) string {
	switch len(nodes) {
	case 0:
		return "null"
	case 1:
		return gen.expr(nodes[0])
	}
	var out []string
	for _, n := range nodes {
		out = append(out, gen.expr(n))
	}
	return "[" + strings.Join(out, ", ") + "]"
}

// ─── literals ────────────────────────────────────────────────────────────────

func jsString(s string) string {
	var sb strings.Builder
	sb.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			sb.WriteString(`\'`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}

func jsNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// jsValue renders a decoded JSON value as a single-line program literal.
// Object keys are sorted so the same graph always renders the same text.
func jsValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return jsNumber(x)
	case int:
		return strconv.Itoa(x)
	case string:
		return jsString(x)
	case []any:
		var out []string
		for _, el := range x {
			out = append(out, jsValue(el))
		}
		return "[" + strings.Join(out, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []string
		for _, k := range keys {
			out = append(out, fmt.Sprintf("%s: %s", objectKey(k), jsValue(x[k])))
		}
		return "{ " + strings.Join(out, ", ") + " }"
	}
	return jsString(fmt.Sprint(v))
}

func objectKey(k string) string {
	if isIdentLike(k) {
		return k
	}
	return jsString(k)
}

func isIdentLike(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		ok := r == '_' || r == '$' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(i > 0 && r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}

// ─── redaction ───────────────────────────────────────────────────────────────

// secretKeys are JSON keys whose values never belong in an annotation
// comment.
var secretKeys = map[string]bool{
	"token":         true,
	"apikey":        true,
	"api_key":       true,
	"password":      true,
	"secret":        true,
	"authorization": true,
	"accesstoken":   true,
	"access_token":  true,
	"sessiontoken":  true,
	"privatekey":    true,
	"private_key":   true,
}

// redactSecrets replaces credential-like values anywhere in a JSON document
// and reports whether anything changed. The output is compacted to one line.
func redactSecrets(raw string) (string, bool) {
	parsed := gjson.Parse(raw)
	var paths []string
	collectSecretPaths(parsed, "", &paths)

	out := raw
	for _, p := range paths {
		if next, err := sjson.Set(out, p, "[redacted]"); err == nil {
			out = next
		}
	}
	out = strings.TrimSpace(string(pretty.Ugly([]byte(out))))
	return out, len(paths) > 0
}

func collectSecretPaths(v gjson.Result, prefix string, paths *[]string) {
	v.ForEach(func(key, value gjson.Result) bool {
		p := key.String()
		if prefix != "" {
			p = prefix + "." + p
		}
		if value.IsObject() || value.IsArray() {
			collectSecretPaths(value, p, paths)
			return true
		}
		if key.Type == gjson.String && secretKeys[strings.ToLower(key.String())] {
			*paths = append(*paths, p)
		}
		return true
	})
}
