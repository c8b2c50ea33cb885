package script

// The program AST is a closed set of statement and expression kinds. The
// validator rejects anything outside this set before evaluation; adding a new
// permitted construct is a deliberate change to this union plus its matching
// arm in the interpreter, not an open-ended dispatch table.

// Stmt is a top-level statement.
type Stmt interface {
	stmtNode()
	At() Pos
}

// ConstDecl is a variable declaration. Kind records the source keyword so the
// validator can reject let/var with a precise message; only const survives.
type ConstDecl struct {
	Kind string // "const", "let", "var"
	Name string
	Init Expr
	Pos  Pos
}

// ExprStmt is a bare expression statement.
type ExprStmt struct {
	X   Expr
	Pos Pos
}

// ExportDefault is the single terminal statement exporting the workflow
// value.
type ExportDefault struct {
	X   Expr
	Pos Pos
}

func (s *ConstDecl) stmtNode()     {}
func (s *ExprStmt) stmtNode()      {}
func (s *ExportDefault) stmtNode() {}

func (s *ConstDecl) At() Pos     { return s.Pos }
func (s *ExprStmt) At() Pos      { return s.Pos }
func (s *ExportDefault) At() Pos { return s.Pos }

// Expr is an expression node.
type Expr interface {
	exprNode()
	At() Pos
}

// Ident is a name reference.
type Ident struct {
	Name string
	Pos  Pos
}

// Literal is null/true/false, a number, or a quoted string.
type Literal struct {
	Value any // nil, bool, float64, string
	Raw   string
	Pos   Pos
}

// TemplateString is a backtick string with interpolation holes.
type TemplateString struct {
	Parts []TemplatePart
	Pos   Pos
}

// TemplatePart is either literal text (Expr nil) or a hole. Source keeps the
// hole's original text verbatim so expressions meant for the host runtime can
// be re-serialized without evaluation.
type TemplatePart struct {
	Text   string
	Expr   Expr
	Source string
}

// Call is a function or method invocation.
type Call struct {
	Fun  Expr
	Args []Expr
	Pos  Pos
}

// Member is property access. Computed access carries the bracket expression;
// the sandbox only ever evaluates it when Index is a literal.
type Member struct {
	X        Expr
	Prop     string
	Computed bool
	Index    Expr
	Pos      Pos
}

// ObjectLit is an object construction; entries are properties or spreads.
type ObjectLit struct {
	Entries []ObjectEntry
	Pos     Pos
}

// ObjectEntry is one object-literal entry. Spread is set for `...x`.
type ObjectEntry struct {
	Key    string
	Value  Expr
	Spread Expr
}

// ArrayLit is an array construction; elements may be SpreadExprs.
type ArrayLit struct {
	Elems []Expr
	Pos   Pos
}

// SpreadExpr is `...x` in an array literal or argument list.
type SpreadExpr struct {
	X   Expr
	Pos Pos
}

// Unary is a prefix operator application.
type Unary struct {
	Op  string
	X   Expr
	Pos Pos
}

// Binary covers arithmetic, comparison, and equality operators.
type Binary struct {
	Op   string
	L, R Expr
	Pos  Pos
}

// Logical covers &&, || and ?? with short-circuit evaluation.
type Logical struct {
	Op   string
	L, R Expr
	Pos  Pos
}

// Conditional is the ternary operator.
type Conditional struct {
	Cond, Then, Else Expr
	Pos              Pos
}

// Assign is an assignment expression. Only `target.property = value` on an
// already-evaluated object passes validation.
type Assign struct {
	Op     string
	Target Expr
	Value  Expr
	Pos    Pos
}

func (*Ident) exprNode()          {}
func (*Literal) exprNode()        {}
func (*TemplateString) exprNode() {}
func (*Call) exprNode()           {}
func (*Member) exprNode()         {}
func (*ObjectLit) exprNode()      {}
func (*ArrayLit) exprNode()       {}
func (*SpreadExpr) exprNode()     {}
func (*Unary) exprNode()          {}
func (*Binary) exprNode()         {}
func (*Logical) exprNode()        {}
func (*Conditional) exprNode()    {}
func (*Assign) exprNode()         {}

func (e *Ident) At() Pos          { return e.Pos }
func (e *Literal) At() Pos        { return e.Pos }
func (e *TemplateString) At() Pos { return e.Pos }
func (e *Call) At() Pos           { return e.Pos }
func (e *Member) At() Pos         { return e.Pos }
func (e *ObjectLit) At() Pos      { return e.Pos }
func (e *ArrayLit) At() Pos       { return e.Pos }
func (e *SpreadExpr) At() Pos     { return e.Pos }
func (e *Unary) At() Pos          { return e.Pos }
func (e *Binary) At() Pos         { return e.Pos }
func (e *Logical) At() Pos        { return e.Pos }
func (e *Conditional) At() Pos    { return e.Pos }
func (e *Assign) At() Pos         { return e.Pos }

// Program is a parsed program: a flat statement list.
type Program struct {
	Stmts []Stmt
	Src   string
}

// rootIdentifier walks call/member chains to their root identifier name, or
// returns "" when the chain does not bottom out in an identifier.
func rootIdentifier(e Expr) string {
	for {
		switch v := e.(type) {
		case *Ident:
			return v.Name
		case *Member:
			e = v.X
		case *Call:
			e = v.Fun
		default:
			return ""
		}
	}
}
