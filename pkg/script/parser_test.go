package script_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/wireflow-dev/wireflow/pkg/script"
)

// ─── Statement parsing ────────────────────────────────────────────────────────

func TestParse_ConstAndExport(t *testing.T) {
	src := `const a = node({ name: 'A', type: 't' });
export default workflow('demo');`
	prog, err := script.Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(prog.Stmts) != 2 {
		t.Fatalf("statements = %d, want 2", len(prog.Stmts))
	}
	decl, ok := prog.Stmts[0].(*script.ConstDecl)
	if !ok {
		t.Fatalf("stmt[0] = %T, want *ConstDecl", prog.Stmts[0])
	}
	if decl.Name != "a" || decl.Kind != "const" {
		t.Errorf("decl = %s %q, want const a", decl.Kind, decl.Name)
	}
	if _, ok := prog.Stmts[1].(*script.ExportDefault); !ok {
		t.Errorf("stmt[1] = %T, want *ExportDefault", prog.Stmts[1])
	}
}

func TestParse_ForbiddenStatementKeyword(t *testing.T) {
	cases := []string{
		`function f() {}`,
		`for (;;) {}`,
		`while (true) {}`,
		`import 'fs';`,
		`throw new Error('x');`,
		`class C {}`,
	}
	for _, src := range cases {
		_, err := script.Parse(src)
		var unsupported *script.UnsupportedNodeError
		if !errors.As(err, &unsupported) {
			t.Errorf("Parse(%q) error = %v, want *UnsupportedNodeError", src, err)
		}
	}
}

func TestParse_CommentsSkipped(t *testing.T) {
	src := `// @output [{"ok":true}]
/* block
   comment */
const a = node({ name: 'A', type: 't' }); // trailing
export default workflow('demo');`
	prog, err := script.Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(prog.Stmts) != 2 {
		t.Errorf("statements = %d, want 2 (comments are not statements)", len(prog.Stmts))
	}
}

// ─── Expression parsing ───────────────────────────────────────────────────────

func TestParse_Precedence(t *testing.T) {
	src := `const x = 1 + 2 * 3 === 7 ? 'a' : 'b';
export default workflow('demo');`
	prog, err := script.Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	decl := prog.Stmts[0].(*script.ConstDecl)
	if _, ok := decl.Init.(*script.Conditional); !ok {
		t.Errorf("init = %T, want *Conditional at the top", decl.Init)
	}
}

func TestParse_TemplateHoles(t *testing.T) {
	src := "const x = `a ${name} b ${ $json.value } c`;\nexport default workflow('demo');"
	prog, err := script.Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	decl := prog.Stmts[0].(*script.ConstDecl)
	tpl, ok := decl.Init.(*script.TemplateString)
	if !ok {
		t.Fatalf("init = %T, want *TemplateString", decl.Init)
	}
	var holes int
	for _, part := range tpl.Parts {
		if part.Expr != nil {
			holes++
			if part.Source == "" {
				t.Error("hole lost its verbatim source text")
			}
		}
	}
	if holes != 2 {
		t.Errorf("holes = %d, want 2", holes)
	}
}

func TestParse_TemplateHoleWithNestedBraces(t *testing.T) {
	src := "const x = `v: ${ JSON.stringify({ a: 1 }) }`;\nexport default workflow('demo');"
	if _, err := script.Parse(src); err != nil {
		t.Fatalf("Parse: %v", err)
	}
}

func TestParse_ObjectShorthandAndSpread(t *testing.T) {
	src := `const base = { a: 1 };
const x = { ...base, b: 2, 'with space': 3 };
export default workflow('demo');`
	prog, err := script.Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	obj := prog.Stmts[1].(*script.ConstDecl).Init.(*script.ObjectLit)
	if len(obj.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(obj.Entries))
	}
	if obj.Entries[0].Spread == nil {
		t.Error("first entry should be a spread")
	}
}

func TestParse_ArrowFunctionRejected(t *testing.T) {
	src := `const f = (x) => x + 1;
export default workflow('demo');`
	_, err := script.Parse(src)
	if err == nil {
		t.Fatal("expected error for arrow function")
	}
}

// ─── Validator tests ──────────────────────────────────────────────────────────

func mustParse(t *testing.T, src string) *script.Program {
	t.Helper()
	prog, err := script.Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return prog
}

func TestValidate_LetRejected(t *testing.T) {
	prog := mustParse(t, "let a = 1;\nexport default workflow('demo');")
	err := script.ValidateProgram(prog)
	var sv *script.SecurityViolationError
	if !errors.As(err, &sv) {
		t.Fatalf("error = %v, want *SecurityViolationError", err)
	}
	if !strings.Contains(sv.Reason, "const") {
		t.Errorf("reason = %q, should name the const requirement", sv.Reason)
	}
}

func TestValidate_ReassignmentRejected(t *testing.T) {
	prog := mustParse(t, "const a = 1;\na = 2;\nexport default workflow('demo');")
	var sv *script.SecurityViolationError
	if !errors.As(script.ValidateProgram(prog), &sv) {
		t.Error("rebinding a name must be a security violation")
	}
}

func TestValidate_CompoundAssignRejected(t *testing.T) {
	prog := mustParse(t, "const a = { n: 1 };\na.n += 2;\nexport default workflow('demo');")
	var sv *script.SecurityViolationError
	if !errors.As(script.ValidateProgram(prog), &sv) {
		t.Error("compound assignment must be a security violation")
	}
}

func TestValidate_PropertyAssignmentAllowed(t *testing.T) {
	prog := mustParse(t, "const a = { n: 1 };\na.n = 2;\nexport default workflow('demo');")
	if err := script.ValidateProgram(prog); err != nil {
		t.Errorf("property assignment should validate, got %v", err)
	}
}

func TestValidate_DisallowedMethod(t *testing.T) {
	prog := mustParse(t, "const a = 'x'.constructor();\nexport default workflow('demo');")
	var sv *script.SecurityViolationError
	if !errors.As(script.ValidateProgram(prog), &sv) {
		t.Error("calling a method outside the allowlist must fail closed")
	}
}

func TestValidate_ComputedMemberNeedsLiteral(t *testing.T) {
	prog := mustParse(t, "const a = { n: 1 };\nconst k = 'n';\nconst v = a[k];\nexport default workflow('demo');")
	var sv *script.SecurityViolationError
	if !errors.As(script.ValidateProgram(prog), &sv) {
		t.Error("dynamic computed access must be a security violation")
	}
}

func TestValidate_ExportRules(t *testing.T) {
	noExport := mustParse(t, "const a = 1;")
	if script.ValidateProgram(noExport) == nil {
		t.Error("program without export default must fail")
	}

	exportNotLast := mustParse(t, "export default workflow('x');\nconst a = 1;")
	if script.ValidateProgram(exportNotLast) == nil {
		t.Error("export default must be the final statement")
	}

	double := mustParse(t, "export default workflow('x');\nexport default workflow('y');")
	if script.ValidateProgram(double) == nil {
		t.Error("multiple default exports must fail")
	}
}
