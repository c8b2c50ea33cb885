package script

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse turns program text into a Program. Syntax errors are ordinary errors;
// recognizable forbidden constructs (function declarations, loops, new, …)
// are reported as typed UnsupportedNodeErrors so the caller sees the same
// taxonomy whether a construct is rejected here or by the validator.
func Parse(src string) (*Program, error) {
	p := &parser{lex: newLexer(src), src: src}
	if err := p.advance(); err != nil {
		return nil, err
	}
	prog := &Program{Src: src}
	for p.tok.kind != tokEOF {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		prog.Stmts = append(prog.Stmts, stmt)
	}
	return prog, nil
}

type parser struct {
	lex *lexer
	tok token
	src string
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) expectPunct(text string) error {
	if p.tok.kind != tokPunct || p.tok.text != text {
		return fmt.Errorf("expected %q at %s, got %q", text, p.tok.pos, p.tok.text)
	}
	return p.advance()
}

func (p *parser) isPunct(text string) bool {
	return p.tok.kind == tokPunct && p.tok.text == text
}

func (p *parser) eatPunct(text string) (bool, error) {
	if !p.isPunct(text) {
		return false, nil
	}
	return true, p.advance()
}

func (p *parser) unsupported(kind string, pos Pos) error {
	return &UnsupportedNodeError{Kind: kind, Pos: pos, Snippet: snippet(p.src, pos)}
}

// ─── statements ──────────────────────────────────────────────────────────────

func (p *parser) parseStmt() (Stmt, error) {
	pos := p.tok.pos

	if p.tok.kind == tokKeyword {
		switch p.tok.text {
		case "const", "let", "var":
			return p.parseDecl(p.tok.text, pos)
		case "export":
			return p.parseExport(pos)
		}
	}
	if p.tok.kind == tokIdent {
		if kind, ok := forbiddenStatementKeywords[p.tok.text]; ok {
			return nil, p.unsupported(kind, pos)
		}
	}

	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.eatPunct(";"); err != nil {
		return nil, err
	}
	return &ExprStmt{X: x, Pos: pos}, nil
}

func (p *parser) parseDecl(kind string, pos Pos) (Stmt, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokIdent {
		return nil, fmt.Errorf("expected identifier after %s at %s", kind, p.tok.pos)
	}
	name := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunct("="); err != nil {
		return nil, err
	}
	init, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.eatPunct(";"); err != nil {
		return nil, err
	}
	return &ConstDecl{Kind: kind, Name: name, Init: init, Pos: pos}, nil
}

func (p *parser) parseExport(pos Pos) (Stmt, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokKeyword || p.tok.text != "default" {
		return nil, p.unsupported("export form (only `export default` is permitted)", pos)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.eatPunct(";"); err != nil {
		return nil, err
	}
	return &ExportDefault{X: x, Pos: pos}, nil
}

// ─── expressions (precedence climbing) ───────────────────────────────────────

func (p *parser) parseExpr() (Expr, error) {
	return p.parseAssign()
}

func (p *parser) parseAssign() (Expr, error) {
	left, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	if p.tok.kind == tokPunct {
		switch p.tok.text {
		case "=", "+=", "-=", "*=", "/=":
			op := p.tok.text
			pos := p.tok.pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			value, err := p.parseAssign()
			if err != nil {
				return nil, err
			}
			return &Assign{Op: op, Target: left, Value: value, Pos: pos}, nil
		}
	}
	return left, nil
}

func (p *parser) parseConditional() (Expr, error) {
	cond, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if !p.isPunct("?") {
		return cond, nil
	}
	pos := p.tok.pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	then, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	els, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	return &Conditional{Cond: cond, Then: then, Else: els, Pos: pos}, nil
}

// binary operator precedence tiers, loosest first.
var binaryTiers = [][]string{
	{"??"},
	{"||"},
	{"&&"},
	{"==", "!=", "===", "!=="},
	{"<", "<=", ">", ">="},
	{"+", "-"},
	{"*", "/", "%"},
}

func isLogicalOp(op string) bool { return op == "&&" || op == "||" || op == "??" }

func (p *parser) parseBinary(tier int) (Expr, error) {
	if tier >= len(binaryTiers) {
		return p.parseUnary()
	}
	left, err := p.parseBinary(tier + 1)
	if err != nil {
		return nil, err
	}
	for {
		if p.tok.kind != tokPunct {
			return left, nil
		}
		matched := ""
		for _, op := range binaryTiers[tier] {
			if p.tok.text == op {
				matched = op
				break
			}
		}
		if matched == "" {
			return left, nil
		}
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseBinary(tier + 1)
		if err != nil {
			return nil, err
		}
		if isLogicalOp(matched) {
			left = &Logical{Op: matched, L: left, R: right, Pos: pos}
		} else {
			left = &Binary{Op: matched, L: left, R: right, Pos: pos}
		}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if p.tok.kind == tokPunct && (p.tok.text == "!" || p.tok.text == "-" || p.tok.text == "+") {
		op := p.tok.text
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, X: x, Pos: pos}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isPunct("."):
			pos := p.tok.pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.kind != tokIdent && p.tok.kind != tokKeyword {
				return nil, fmt.Errorf("expected property name at %s", p.tok.pos)
			}
			x = &Member{X: x, Prop: p.tok.text, Pos: pos}
			if err := p.advance(); err != nil {
				return nil, err
			}
		case p.isPunct("["):
			pos := p.tok.pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			x = &Member{X: x, Computed: true, Index: idx, Pos: pos}
		case p.isPunct("("):
			pos := p.tok.pos
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			x = &Call{Fun: x, Args: args, Pos: pos}
		default:
			return x, nil
		}
	}
}

func (p *parser) parseArgs() ([]Expr, error) {
	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}
	var args []Expr
	for !p.isPunct(")") {
		if p.isPunct("...") {
			pos := p.tok.pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, &SpreadExpr{X: x, Pos: pos})
		} else {
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, x)
		}
		if ok, err := p.eatPunct(","); err != nil {
			return nil, err
		} else if !ok {
			break
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	pos := p.tok.pos
	switch p.tok.kind {
	case tokNumber:
		text := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, err := parseNumber(text)
		if err != nil {
			return nil, fmt.Errorf("bad number %q at %s", text, pos)
		}
		return &Literal{Value: v, Raw: text, Pos: pos}, nil

	case tokString:
		v := p.tok.text
		raw := p.tok.raw
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Literal{Value: v, Raw: raw, Pos: pos}, nil

	case tokTemplate:
		raw := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		parts, err := splitTemplate(raw, pos)
		if err != nil {
			return nil, err
		}
		return &TemplateString{Parts: parts, Pos: pos}, nil

	case tokKeyword:
		text := p.tok.text
		switch text {
		case "null", "undefined":
			if err := p.advance(); err != nil {
				return nil, err
			}
			return &Literal{Value: nil, Raw: text, Pos: pos}, nil
		case "true", "false":
			if err := p.advance(); err != nil {
				return nil, err
			}
			return &Literal{Value: text == "true", Raw: text, Pos: pos}, nil
		}
		return nil, fmt.Errorf("unexpected keyword %q at %s", text, pos)

	case tokIdent:
		name := p.tok.text
		if kind, ok := forbiddenStatementKeywords[name]; ok {
			return nil, p.unsupported(kind, pos)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		// Arrow functions are not part of the permitted set.
		if p.isPunct("=>") {
			return nil, p.unsupported("arrow function", pos)
		}
		return &Ident{Name: name, Pos: pos}, nil

	case tokPunct:
		switch p.tok.text {
		case "(":
			if err := p.advance(); err != nil {
				return nil, err
			}
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			if p.isPunct("=>") {
				return nil, p.unsupported("arrow function", pos)
			}
			return x, nil
		case "[":
			return p.parseArray(pos)
		case "{":
			return p.parseObject(pos)
		}
	}
	return nil, fmt.Errorf("unexpected token %q at %s", p.tok.text, pos)
}

func (p *parser) parseArray(pos Pos) (Expr, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	lit := &ArrayLit{Pos: pos}
	for !p.isPunct("]") {
		if p.isPunct("...") {
			spos := p.tok.pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			lit.Elems = append(lit.Elems, &SpreadExpr{X: x, Pos: spos})
		} else {
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			lit.Elems = append(lit.Elems, x)
		}
		if ok, err := p.eatPunct(","); err != nil {
			return nil, err
		} else if !ok {
			break
		}
	}
	if err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	return lit, nil
}

func (p *parser) parseObject(pos Pos) (Expr, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	lit := &ObjectLit{Pos: pos}
	for !p.isPunct("}") {
		if p.isPunct("...") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			lit.Entries = append(lit.Entries, ObjectEntry{Spread: x})
		} else {
			key, err := p.parseObjectKey()
			if err != nil {
				return nil, err
			}
			if ok, err := p.eatPunct(":"); err != nil {
				return nil, err
			} else if ok {
				v, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				lit.Entries = append(lit.Entries, ObjectEntry{Key: key, Value: v})
			} else {
				// Shorthand property.
				lit.Entries = append(lit.Entries, ObjectEntry{
					Key:   key,
					Value: &Ident{Name: key, Pos: pos},
				})
			}
		}
		if ok, err := p.eatPunct(","); err != nil {
			return nil, err
		} else if !ok {
			break
		}
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return lit, nil
}

func (p *parser) parseObjectKey() (string, error) {
	switch p.tok.kind {
	case tokIdent, tokKeyword, tokString:
		key := p.tok.text
		return key, p.advance()
	case tokNumber:
		key := p.tok.text
		return key, p.advance()
	}
	return "", fmt.Errorf("expected object key at %s, got %q", p.tok.pos, p.tok.text)
}

func parseNumber(text string) (float64, error) {
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		n, err := strconv.ParseUint(text[2:], 16, 64)
		return float64(n), err
	}
	return strconv.ParseFloat(text, 64)
}

// ─── template splitting ──────────────────────────────────────────────────────

// splitTemplate splits raw backtick content into text and hole parts. Hole
// source text is preserved verbatim alongside the parsed expression.
func splitTemplate(raw string, at Pos) ([]TemplatePart, error) {
	var parts []TemplatePart
	var text strings.Builder
	i := 0
	for i < len(raw) {
		if raw[i] == '\\' && i+1 < len(raw) {
			switch raw[i+1] {
			case 'n':
				text.WriteByte('\n')
			case 't':
				text.WriteByte('\t')
			case '`', '\\', '$':
				text.WriteByte(raw[i+1])
			default:
				text.WriteByte('\\')
				text.WriteByte(raw[i+1])
			}
			i += 2
			continue
		}
		if raw[i] == '$' && i+1 < len(raw) && raw[i+1] == '{' {
			end, err := matchHole(raw, i+2)
			if err != nil {
				return nil, err
			}
			if text.Len() > 0 {
				parts = append(parts, TemplatePart{Text: text.String()})
				text.Reset()
			}
			source := raw[i+2 : end]
			expr, err := parseExprString(source, at)
			if err != nil {
				return nil, fmt.Errorf("in template hole `${%s}`: %w", source, err)
			}
			parts = append(parts, TemplatePart{Expr: expr, Source: source})
			i = end + 1
			continue
		}
		text.WriteByte(raw[i])
		i++
	}
	if text.Len() > 0 {
		parts = append(parts, TemplatePart{Text: text.String()})
	}
	return parts, nil
}

// matchHole finds the closing brace of a `${…}` hole starting just after the
// opening brace, respecting nested braces and quoted strings.
func matchHole(raw string, start int) (int, error) {
	depth := 1
	i := start
	for i < len(raw) {
		c := raw[i]
		switch c {
		case '\'', '"':
			quote := c
			i++
			for i < len(raw) && raw[i] != quote {
				if raw[i] == '\\' {
					i++
				}
				i++
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
		i++
	}
	return 0, fmt.Errorf("unterminated template hole")
}

// parseExprString parses a standalone expression, used for template holes.
func parseExprString(src string, at Pos) (Expr, error) {
	p := &parser{lex: subLexer(src, at), src: src}
	if err := p.advance(); err != nil {
		return nil, err
	}
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected trailing %q", p.tok.text)
	}
	return x, nil
}
