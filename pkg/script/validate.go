package script

import "fmt"

// allowedMethods is the closed set of method names a program may invoke.
// Resolution is checked again at evaluation time against the receiver's
// actual type; this static pass exists so an obviously disallowed method is
// rejected before anything runs.
var allowedMethods = map[string]bool{
	// builder values
	"then":    true,
	"input":   true,
	"onError": true,
	// strings
	"trim":        true,
	"toUpperCase": true,
	"toLowerCase": true,
	"slice":       true,
	"includes":    true,
	"replace":     true,
	"replaceAll":  true,
	"split":       true,
	"concat":      true,
	"startsWith":  true,
	"endsWith":    true,
	"charAt":      true,
	"substring":   true,
	"padStart":    true,
	"padEnd":      true,
	"toString":    true,
	// arrays
	"join":    true,
	"indexOf": true,
	"flat":    true,
	// JSON-like globals
	"stringify": true,
	"parse":     true,
}

// ValidateProgram checks a parsed program against the permitted statement and
// expression set. The first violation aborts with a typed error; nothing is
// evaluated first.
func ValidateProgram(prog *Program) error {
	v := &validator{src: prog.Src}
	exports := 0
	for i, stmt := range prog.Stmts {
		switch s := stmt.(type) {
		case *ConstDecl:
			if s.Kind != "const" {
				return v.violation(fmt.Sprintf("%s declaration; bindings must be const", s.Kind), s.Pos)
			}
			if err := v.expr(s.Init); err != nil {
				return err
			}
		case *ExprStmt:
			// A property assignment is only legal as a whole statement.
			if a, ok := s.X.(*Assign); ok {
				if err := v.assign(a); err != nil {
					return err
				}
				continue
			}
			if err := v.expr(s.X); err != nil {
				return err
			}
		case *ExportDefault:
			exports++
			if exports > 1 {
				return v.violation("multiple default exports", s.Pos)
			}
			if i != len(prog.Stmts)-1 {
				return v.violation("export default must be the final statement", s.Pos)
			}
			if err := v.expr(s.X); err != nil {
				return err
			}
		default:
			return &UnsupportedNodeError{
				Kind:    fmt.Sprintf("statement %T", stmt),
				Pos:     stmt.At(),
				Snippet: snippet(prog.Src, stmt.At()),
			}
		}
	}
	if exports == 0 {
		return v.violation("program has no export default statement", Pos{Line: 1, Col: 1})
	}
	return nil
}

type validator struct {
	src string
}

func (v *validator) violation(reason string, pos Pos) error {
	return &SecurityViolationError{Reason: reason, Pos: pos, Snippet: snippet(v.src, pos)}
}

func (v *validator) assign(a *Assign) error {
	if a.Op != "=" {
		return v.violation(fmt.Sprintf("compound assignment %q", a.Op), a.Pos)
	}
	m, ok := a.Target.(*Member)
	if !ok {
		if id, isIdent := a.Target.(*Ident); isIdent {
			return v.violation(fmt.Sprintf("reassignment of binding %q", id.Name), a.Pos)
		}
		return v.violation("assignment target must be target.property", a.Pos)
	}
	if m.Computed {
		return v.violation("assignment to a computed property", a.Pos)
	}
	if err := v.expr(m.X); err != nil {
		return err
	}
	return v.expr(a.Value)
}

// expr validates an expression subtree.
func (v *validator) expr(e Expr) error {
	switch x := e.(type) {
	case *Ident, *Literal:
		return nil
	case *TemplateString:
		for _, part := range x.Parts {
			if part.Expr != nil {
				if err := v.expr(part.Expr); err != nil {
					return err
				}
			}
		}
		return nil
	case *Call:
		switch fun := x.Fun.(type) {
		case *Ident:
			// direct call, resolved at evaluation
		case *Member:
			if fun.Computed {
				return v.violation("computed method call", fun.Pos)
			}
			if !allowedMethods[fun.Prop] {
				return v.violation(fmt.Sprintf("disallowed method %q", fun.Prop), fun.Pos)
			}
			if err := v.expr(fun.X); err != nil {
				return err
			}
		default:
			return v.violation("call target must be a name or method", x.Pos)
		}
		for _, arg := range x.Args {
			if err := v.expr(arg); err != nil {
				return err
			}
		}
		return nil
	case *Member:
		if x.Computed {
			if _, ok := x.Index.(*Literal); !ok {
				return v.violation("computed member access with a non-literal key", x.Pos)
			}
		}
		return v.expr(x.X)
	case *ObjectLit:
		for _, entry := range x.Entries {
			if entry.Spread != nil {
				if err := v.expr(entry.Spread); err != nil {
					return err
				}
				continue
			}
			if err := v.expr(entry.Value); err != nil {
				return err
			}
		}
		return nil
	case *ArrayLit:
		for _, el := range x.Elems {
			if err := v.expr(el); err != nil {
				return err
			}
		}
		return nil
	case *SpreadExpr:
		return v.expr(x.X)
	case *Unary:
		return v.expr(x.X)
	case *Binary:
		if err := v.expr(x.L); err != nil {
			return err
		}
		return v.expr(x.R)
	case *Logical:
		if err := v.expr(x.L); err != nil {
			return err
		}
		return v.expr(x.R)
	case *Conditional:
		if err := v.expr(x.Cond); err != nil {
			return err
		}
		if err := v.expr(x.Then); err != nil {
			return err
		}
		return v.expr(x.Else)
	case *Assign:
		return v.violation("assignment used as an expression", x.Pos)
	}
	return &UnsupportedNodeError{
		Kind:    fmt.Sprintf("expression %T", e),
		Pos:     e.At(),
		Snippet: snippet(v.src, e.At()),
	}
}
