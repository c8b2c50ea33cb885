package script

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/wireflow-dev/wireflow/pkg/workflow"
)

// globalVal marks one of the safe built-in globals. Only member access and
// calls dispatched through the allowlist touch these; they never leak into
// builder arguments.
type globalVal string

var safeGlobals = map[string]globalVal{
	"JSON":    "JSON",
	"String":  "String",
	"Number":  "Number",
	"Boolean": "Boolean",
	"Math":    "Math",
}

// interpreter evaluates a validated program against a BuilderSet. Bindings
// are const; a declared name that shadows an auto-renameable builder is
// silently stored under a synthetic name and every later reference is
// rewritten through renamed.
type interpreter struct {
	set     *BuilderSet
	vars    map[string]any
	order   []string
	renamed map[string]string
	src     string
}

// Interpret parses, validates, and evaluates a program, returning the
// workflow its export default assembles. All failures are one of the four
// typed errors or a wrapped builder error.
func Interpret(src string) (*workflow.Workflow, error) {
	prog, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return InterpretProgram(prog)
}

// InterpretProgram evaluates an already-parsed program.
func InterpretProgram(prog *Program) (*workflow.Workflow, error) {
	if err := ValidateProgram(prog); err != nil {
		return nil, err
	}
	it := &interpreter{
		set:     NewBuilderSet(),
		vars:    make(map[string]any),
		renamed: make(map[string]string),
		src:     prog.Src,
	}
	for _, stmt := range prog.Stmts {
		switch s := stmt.(type) {
		case *ConstDecl:
			if err := it.declare(s); err != nil {
				return nil, err
			}
		case *ExprStmt:
			if _, err := it.eval(s.X); err != nil {
				return nil, err
			}
		case *ExportDefault:
			v, err := it.eval(s.X)
			if err != nil {
				return nil, err
			}
			wv, ok := v.(*WorkflowVal)
			if !ok {
				return nil, &UnsupportedNodeError{
					Kind:    "export of a non-workflow value",
					Pos:     s.Pos,
					Snippet: snippet(it.src, s.Pos),
				}
			}
			// The validator guarantees this is the final statement.
			return wv.set.b.Build(), nil
		}
	}
	return nil, &UnsupportedNodeError{Kind: "program without export", Pos: Pos{Line: 1, Col: 1}}
}

func (it *interpreter) declare(s *ConstDecl) error {
	name := s.Name
	rename := false
	if IsReserved(name) {
		if !IsAutoRenameable(name) {
			return &SecurityViolationError{
				Reason:  fmt.Sprintf("binding shadows reserved name %q", name),
				Pos:     s.Pos,
				Snippet: snippet(it.src, s.Pos),
			}
		}
		rename = true
	} else if _, dup := it.vars[name]; dup {
		return &SecurityViolationError{
			Reason:  fmt.Sprintf("redeclaration of %q", s.Name),
			Pos:     s.Pos,
			Snippet: snippet(it.src, s.Pos),
		}
	}
	// The initializer is evaluated before the binding exists, so in
	// `const memory = memory({...})` the call still reaches the builder;
	// only references after this declaration see the synthetic name.
	v, err := it.eval(s.Init)
	if err != nil {
		return err
	}
	if rename {
		synthetic := it.mintName(name)
		it.renamed[name] = synthetic
		name = synthetic
	}
	it.vars[name] = v
	it.order = append(it.order, name)
	return nil
}

// mintName produces a collision-free synthetic binding name for a shadowed
// auto-renameable builder: my<Name>, then my<Name>1, my<Name>2, ...
func (it *interpreter) mintName(name string) string {
	base := "my" + strings.ToUpper(name[:1]) + name[1:]
	candidate := base
	for i := 1; ; i++ {
		_, taken := it.vars[candidate]
		if !taken && !IsReserved(candidate) {
			return candidate
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
}

func (it *interpreter) resolve(id *Ident) (any, error) {
	name := id.Name
	if syn, ok := it.renamed[name]; ok {
		name = syn
	}
	if v, ok := it.vars[name]; ok {
		return v, nil
	}
	if g, ok := safeGlobals[name]; ok {
		return g, nil
	}
	return nil, &UnknownIdentifierError{
		Name:    id.Name,
		Pos:     id.Pos,
		Snippet: snippet(it.src, id.Pos),
	}
}

func (it *interpreter) eval(e Expr) (any, error) {
	switch x := e.(type) {
	case *Literal:
		return x.Value, nil
	case *Ident:
		return it.resolve(x)
	case *TemplateString:
		return it.evalTemplate(x)
	case *Call:
		return it.evalCall(x)
	case *Member:
		return it.evalMember(x)
	case *ObjectLit:
		return it.evalObject(x)
	case *ArrayLit:
		return it.evalArray(x)
	case *Unary:
		return it.evalUnary(x)
	case *Binary:
		return it.evalBinary(x)
	case *Logical:
		return it.evalLogical(x)
	case *Conditional:
		cond, err := it.eval(x.Cond)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return it.eval(x.Then)
		}
		return it.eval(x.Else)
	case *Assign:
		return it.evalAssign(x)
	}
	return nil, &UnsupportedNodeError{
		Kind:    fmt.Sprintf("expression %T", e),
		Pos:     e.At(),
		Snippet: snippet(it.src, e.At()),
	}
}

// evalTemplate renders a template string. Holes whose root identifier starts
// with $ address the host runtime, not this sandbox: their source text is
// re-emitted verbatim instead of being evaluated.
func (it *interpreter) evalTemplate(t *TemplateString) (any, error) {
	var sb strings.Builder
	for _, part := range t.Parts {
		if part.Expr == nil {
			sb.WriteString(part.Text)
			continue
		}
		if root := rootIdentifier(part.Expr); strings.HasPrefix(root, "$") {
			sb.WriteString("${")
			sb.WriteString(part.Source)
			sb.WriteString("}")
			continue
		}
		v, err := it.eval(part.Expr)
		if err != nil {
			return nil, err
		}
		sb.WriteString(toJSString(v))
	}
	return sb.String(), nil
}

func (it *interpreter) evalArgs(exprs []Expr) ([]any, error) {
	var out []any
	for _, e := range exprs {
		if sp, ok := e.(*SpreadExpr); ok {
			v, err := it.eval(sp.X)
			if err != nil {
				return nil, err
			}
			arr, ok := v.([]any)
			if !ok {
				return nil, &SecurityViolationError{
					Reason:  "spread of a non-array value",
					Pos:     sp.Pos,
					Snippet: snippet(it.src, sp.Pos),
				}
			}
			out = append(out, arr...)
			continue
		}
		v, err := it.eval(e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (it *interpreter) evalCall(c *Call) (any, error) {
	args, err := it.evalArgs(c.Args)
	if err != nil {
		return nil, err
	}
	switch fun := c.Fun.(type) {
	case *Ident:
		name := fun.Name
		if syn, ok := it.renamed[name]; ok {
			name = syn
		}
		// Declared bindings win over builder names; a bound value is never
		// callable in this surface.
		if _, bound := it.vars[name]; bound {
			return nil, &NotCallableError{
				Name:    fun.Name,
				Pos:     fun.Pos,
				Snippet: snippet(it.src, fun.Pos),
			}
		}
		if bf, ok := builderFuncs[name]; ok {
			v, err := bf(it.set, args)
			if err != nil {
				return nil, &SecurityViolationError{
					Reason:  err.Error(),
					Pos:     c.Pos,
					Snippet: snippet(it.src, c.Pos),
				}
			}
			return v, nil
		}
		switch name {
		case "String":
			if len(args) == 0 {
				return "", nil
			}
			return toJSString(args[0]), nil
		case "Number":
			if len(args) == 0 {
				return float64(0), nil
			}
			return toNumber(args[0]), nil
		case "Boolean":
			if len(args) == 0 {
				return false, nil
			}
			return truthy(args[0]), nil
		}
		if _, isGlobal := safeGlobals[name]; isGlobal {
			return nil, &NotCallableError{
				Name:    fun.Name,
				Pos:     fun.Pos,
				Snippet: snippet(it.src, fun.Pos),
			}
		}
		return nil, &UnknownIdentifierError{
			Name:    fun.Name,
			Pos:     fun.Pos,
			Snippet: snippet(it.src, fun.Pos),
		}
	case *Member:
		recv, err := it.eval(fun.X)
		if err != nil {
			return nil, err
		}
		return it.callMethod(recv, fun, args)
	}
	return nil, &NotCallableError{
		Name:    "expression",
		Pos:     c.Pos,
		Snippet: snippet(it.src, c.Pos),
	}
}

func (it *interpreter) callMethod(recv any, fun *Member, args []any) (any, error) {
	name := fun.Prop
	if v, handled, err := it.set.callBuilderMethod(recv, name, args); handled {
		if err != nil {
			return nil, &SecurityViolationError{
				Reason:  err.Error(),
				Pos:     fun.Pos,
				Snippet: snippet(it.src, fun.Pos),
			}
		}
		return v, nil
	}
	switch r := recv.(type) {
	case globalVal:
		return it.callGlobalMethod(r, name, args, fun.Pos)
	case string:
		if v, ok := callStringMethod(r, name, args); ok {
			return v, nil
		}
	case []any:
		if v, ok := callArrayMethod(r, name, args); ok {
			return v, nil
		}
	case float64:
		if name == "toString" && len(args) == 0 {
			return formatNumber(r), nil
		}
	}
	if name == "toString" && len(args) == 0 {
		return toJSString(recv), nil
	}
	return nil, &SecurityViolationError{
		Reason:  fmt.Sprintf("method %q is not available on this value", name),
		Pos:     fun.Pos,
		Snippet: snippet(it.src, fun.Pos),
	}
}

func (it *interpreter) callGlobalMethod(g globalVal, name string, args []any, pos Pos) (any, error) {
	fail := func(reason string) error {
		return &SecurityViolationError{Reason: reason, Pos: pos, Snippet: snippet(it.src, pos)}
	}
	switch g {
	case "JSON":
		switch name {
		case "stringify":
			if len(args) == 0 {
				return "undefined", nil
			}
			b, err := json.Marshal(args[0])
			if err != nil {
				return nil, fail(fmt.Sprintf("JSON.stringify: %v", err))
			}
			return string(b), nil
		case "parse":
			if len(args) != 1 {
				return nil, fail("JSON.parse takes one string")
			}
			s, ok := args[0].(string)
			if !ok {
				return nil, fail("JSON.parse takes one string")
			}
			var v any
			if err := json.Unmarshal([]byte(s), &v); err != nil {
				return nil, fail(fmt.Sprintf("JSON.parse: %v", err))
			}
			return v, nil
		}
	case "Math":
		if len(args) == 1 {
			n := toNumber(args[0])
			switch name {
			case "floor":
				return math.Floor(n), nil
			case "ceil":
				return math.Ceil(n), nil
			case "round":
				return math.Floor(n + 0.5), nil
			case "abs":
				return math.Abs(n), nil
			}
		}
	}
	return nil, fail(fmt.Sprintf("no method %q on %s", name, string(g)))
}

func callStringMethod(s, name string, args []any) (any, bool) {
	str := func(i int) string {
		if i < len(args) {
			return toJSString(args[i])
		}
		return ""
	}
	num := func(i int, def float64) int {
		if i < len(args) {
			return int(toNumber(args[i]))
		}
		return int(def)
	}
	switch name {
	case "trim":
		return strings.TrimSpace(s), true
	case "toUpperCase":
		return strings.ToUpper(s), true
	case "toLowerCase":
		return strings.ToLower(s), true
	case "includes":
		return strings.Contains(s, str(0)), true
	case "startsWith":
		return strings.HasPrefix(s, str(0)), true
	case "endsWith":
		return strings.HasSuffix(s, str(0)), true
	case "replace":
		return strings.Replace(s, str(0), str(1), 1), true
	case "replaceAll":
		return strings.ReplaceAll(s, str(0), str(1)), true
	case "concat":
		var sb strings.Builder
		sb.WriteString(s)
		for _, a := range args {
			sb.WriteString(toJSString(a))
		}
		return sb.String(), true
	case "split":
		sep := str(0)
		parts := strings.Split(s, sep)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, true
	case "charAt":
		i := num(0, 0)
		if i < 0 || i >= len(s) {
			return "", true
		}
		return string(s[i]), true
	case "indexOf":
		return float64(strings.Index(s, str(0))), true
	case "slice", "substring":
		start := clampIndex(num(0, 0), len(s), name == "slice")
		end := len(s)
		if len(args) > 1 {
			end = clampIndex(num(1, float64(len(s))), len(s), name == "slice")
		}
		if start > end {
			if name == "substring" {
				start, end = end, start
			} else {
				return "", true
			}
		}
		return s[start:end], true
	case "padStart":
		return padString(s, num(0, 0), str(1), true), true
	case "padEnd":
		return padString(s, num(0, 0), str(1), false), true
	case "toString":
		return s, true
	}
	return nil, false
}

func clampIndex(i, n int, negativeFromEnd bool) int {
	if i < 0 {
		if negativeFromEnd {
			i += n
		}
		if i < 0 {
			i = 0
		}
	}
	if i > n {
		i = n
	}
	return i
}

func padString(s string, width int, pad string, start bool) string {
	if pad == "" {
		pad = " "
	}
	for len(s) < width {
		chunk := pad
		if len(s)+len(chunk) > width {
			chunk = chunk[:width-len(s)]
		}
		if start {
			s = chunk + s
		} else {
			s = s + chunk
		}
	}
	return s
}

func callArrayMethod(arr []any, name string, args []any) (any, bool) {
	switch name {
	case "join":
		sep := ","
		if len(args) > 0 {
			sep = toJSString(args[0])
		}
		parts := make([]string, len(arr))
		for i, el := range arr {
			if el == nil {
				continue
			}
			parts[i] = toJSString(el)
		}
		return strings.Join(parts, sep), true
	case "indexOf":
		if len(args) == 0 {
			return float64(-1), true
		}
		for i, el := range arr {
			if strictEquals(el, args[0]) {
				return float64(i), true
			}
		}
		return float64(-1), true
	case "includes":
		if len(args) == 0 {
			return false, true
		}
		for _, el := range arr {
			if strictEquals(el, args[0]) {
				return true, true
			}
		}
		return false, true
	case "flat":
		var out []any
		for _, el := range arr {
			if inner, ok := el.([]any); ok {
				out = append(out, inner...)
			} else {
				out = append(out, el)
			}
		}
		return out, true
	case "concat":
		out := append([]any(nil), arr...)
		for _, a := range args {
			if inner, ok := a.([]any); ok {
				out = append(out, inner...)
			} else {
				out = append(out, a)
			}
		}
		return out, true
	case "slice":
		start := 0
		if len(args) > 0 {
			start = clampIndex(int(toNumber(args[0])), len(arr), true)
		}
		end := len(arr)
		if len(args) > 1 {
			end = clampIndex(int(toNumber(args[1])), len(arr), true)
		}
		if start > end {
			return []any{}, true
		}
		return append([]any(nil), arr[start:end]...), true
	case "toString":
		return toJSString(arr), true
	}
	return nil, false
}

func (it *interpreter) evalMember(m *Member) (any, error) {
	recv, err := it.eval(m.X)
	if err != nil {
		return nil, err
	}
	if m.Computed {
		lit, ok := m.Index.(*Literal)
		if !ok {
			return nil, &SecurityViolationError{
				Reason:  "computed member access with a non-literal key",
				Pos:     m.Pos,
				Snippet: snippet(it.src, m.Pos),
			}
		}
		switch key := lit.Value.(type) {
		case float64:
			arr, ok := recv.([]any)
			if !ok {
				return nil, it.memberError(m, "indexing a non-array value")
			}
			i := int(key)
			if i < 0 || i >= len(arr) {
				return nil, nil
			}
			return arr[i], nil
		case string:
			obj, ok := recv.(map[string]any)
			if !ok {
				return nil, it.memberError(m, "keyed access on a non-object value")
			}
			return obj[key], nil
		}
		return nil, it.memberError(m, "unsupported member key")
	}
	switch r := recv.(type) {
	case map[string]any:
		return r[m.Prop], nil
	case string:
		if m.Prop == "length" {
			return float64(len(r)), nil
		}
	case []any:
		if m.Prop == "length" {
			return float64(len(r)), nil
		}
	case *NodeRef:
		if m.Prop == "name" {
			return r.Name, nil
		}
	}
	return nil, it.memberError(m, fmt.Sprintf("no property %q on this value", m.Prop))
}

func (it *interpreter) memberError(m *Member, reason string) error {
	return &SecurityViolationError{Reason: reason, Pos: m.Pos, Snippet: snippet(it.src, m.Pos)}
}

func (it *interpreter) evalObject(o *ObjectLit) (any, error) {
	out := make(map[string]any, len(o.Entries))
	for _, entry := range o.Entries {
		if entry.Spread != nil {
			v, err := it.eval(entry.Spread)
			if err != nil {
				return nil, err
			}
			src, ok := v.(map[string]any)
			if !ok {
				return nil, &SecurityViolationError{
					Reason:  "object spread of a non-object value",
					Pos:     o.Pos,
					Snippet: snippet(it.src, o.Pos),
				}
			}
			for k, sv := range src {
				out[k] = sv
			}
			continue
		}
		v, err := it.eval(entry.Value)
		if err != nil {
			return nil, err
		}
		out[entry.Key] = v
	}
	return out, nil
}

func (it *interpreter) evalArray(a *ArrayLit) (any, error) {
	out := make([]any, 0, len(a.Elems))
	for _, el := range a.Elems {
		if sp, ok := el.(*SpreadExpr); ok {
			v, err := it.eval(sp.X)
			if err != nil {
				return nil, err
			}
			inner, ok := v.([]any)
			if !ok {
				return nil, &SecurityViolationError{
					Reason:  "spread of a non-array value",
					Pos:     sp.Pos,
					Snippet: snippet(it.src, sp.Pos),
				}
			}
			out = append(out, inner...)
			continue
		}
		v, err := it.eval(el)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (it *interpreter) evalUnary(u *Unary) (any, error) {
	v, err := it.eval(u.X)
	if err != nil {
		return nil, err
	}
	switch u.Op {
	case "!":
		return !truthy(v), nil
	case "-":
		return -toNumber(v), nil
	case "+":
		return toNumber(v), nil
	}
	return nil, &UnsupportedNodeError{
		Kind:    fmt.Sprintf("unary operator %q", u.Op),
		Pos:     u.Pos,
		Snippet: snippet(it.src, u.Pos),
	}
}

func (it *interpreter) evalBinary(b *Binary) (any, error) {
	l, err := it.eval(b.L)
	if err != nil {
		return nil, err
	}
	r, err := it.eval(b.R)
	if err != nil {
		return nil, err
	}
	switch b.Op {
	case "+":
		return jsAdd(l, r), nil
	case "-":
		return toNumber(l) - toNumber(r), nil
	case "*":
		return toNumber(l) * toNumber(r), nil
	case "/":
		return toNumber(l) / toNumber(r), nil
	case "%":
		return math.Mod(toNumber(l), toNumber(r)), nil
	case "==":
		return looseEquals(l, r), nil
	case "!=":
		return !looseEquals(l, r), nil
	case "===":
		return strictEquals(l, r), nil
	case "!==":
		return !strictEquals(l, r), nil
	case "<", "<=", ">", ">=":
		return compareValues(b.Op, l, r), nil
	}
	return nil, &UnsupportedNodeError{
		Kind:    fmt.Sprintf("binary operator %q", b.Op),
		Pos:     b.Pos,
		Snippet: snippet(it.src, b.Pos),
	}
}

func (it *interpreter) evalLogical(lg *Logical) (any, error) {
	l, err := it.eval(lg.L)
	if err != nil {
		return nil, err
	}
	switch lg.Op {
	case "&&":
		if !truthy(l) {
			return l, nil
		}
	case "||":
		if truthy(l) {
			return l, nil
		}
	case "??":
		if l != nil {
			return l, nil
		}
	}
	return it.eval(lg.R)
}

// evalAssign handles target.property = value on an evaluated object. The
// validator has already rejected every other assignment shape.
func (it *interpreter) evalAssign(a *Assign) (any, error) {
	m := a.Target.(*Member)
	recv, err := it.eval(m.X)
	if err != nil {
		return nil, err
	}
	obj, ok := recv.(map[string]any)
	if !ok {
		return nil, &SecurityViolationError{
			Reason:  "assignment target is not an object",
			Pos:     a.Pos,
			Snippet: snippet(it.src, a.Pos),
		}
	}
	v, err := it.eval(a.Value)
	if err != nil {
		return nil, err
	}
	obj[m.Prop] = v
	return v, nil
}
