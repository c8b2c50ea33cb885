package script

import (
	"fmt"
	"strings"
)

// lexer scans program text into tokens. Comments — including the annotation
// comments the generator emits before node declarations — are skipped without
// evaluation.
type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

// subLexer scans a slice of the original source, keeping absolute positions
// so errors inside template holes still point at the right line.
func subLexer(src string, at Pos) *lexer {
	return &lexer{src: src, line: at.Line, col: at.Col}
}

func (l *lexer) position() Pos {
	return Pos{Line: l.line, Col: l.col, Offset: l.pos}
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) peekAt(n int) byte {
	if l.pos+n >= len(l.src) {
		return 0
	}
	return l.src[l.pos+n]
}

func (l *lexer) skipSpaceAndComments() error {
	for l.pos < len(l.src) {
		c := l.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '/' && l.peekAt(1) == '/':
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
		case c == '/' && l.peekAt(1) == '*':
			l.advance()
			l.advance()
			for l.pos < len(l.src) {
				if l.peek() == '*' && l.peekAt(1) == '/' {
					l.advance()
					l.advance()
					break
				}
				l.advance()
				if l.pos >= len(l.src) {
					return fmt.Errorf("unterminated block comment")
				}
			}
		default:
			return nil
		}
	}
	return nil
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// multi-byte punctuation, longest first.
var puncts = []string{
	"===", "!==", "...", "??", "&&", "||", "==", "!=", "<=", ">=", "=>",
	"+=", "-=", "*=", "/=",
	"(", ")", "{", "}", "[", "]", ",", ";", ":", ".", "?", "=", "+", "-",
	"*", "/", "%", "!", "<", ">",
}

func (l *lexer) next() (token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return token{}, err
	}
	start := l.position()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: start, end: l.pos}, nil
	}

	c := l.peek()
	switch {
	case isIdentStart(c):
		for l.pos < len(l.src) && isIdentPart(l.peek()) {
			l.advance()
		}
		text := l.src[start.Offset:l.pos]
		kind := tokIdent
		if keywords[text] {
			kind = tokKeyword
		}
		return token{kind: kind, text: text, raw: text, pos: start, end: l.pos}, nil

	case isDigit(c) || (c == '.' && isDigit(l.peekAt(1))):
		for l.pos < len(l.src) && (isDigit(l.peek()) || l.peek() == '.' || l.peek() == 'e' ||
			l.peek() == 'E' || l.peek() == 'x' || l.peek() == 'X' ||
			((l.peek() == '+' || l.peek() == '-') && (l.src[l.pos-1] == 'e' || l.src[l.pos-1] == 'E')) ||
			(l.peek() >= 'a' && l.peek() <= 'f') || (l.peek() >= 'A' && l.peek() <= 'F')) {
			l.advance()
		}
		text := l.src[start.Offset:l.pos]
		return token{kind: tokNumber, text: text, raw: text, pos: start, end: l.pos}, nil

	case c == '\'' || c == '"':
		return l.scanString(c, start)

	case c == '`':
		return l.scanTemplate(start)
	}

	rest := l.src[l.pos:]
	for _, p := range puncts {
		if strings.HasPrefix(rest, p) {
			for range p {
				l.advance()
			}
			return token{kind: tokPunct, text: p, raw: p, pos: start, end: l.pos}, nil
		}
	}
	return token{}, fmt.Errorf("unexpected character %q at %s", string(c), start)
}

func (l *lexer) scanString(quote byte, start Pos) (token, error) {
	l.advance() // opening quote
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.advance()
		if c == quote {
			return token{
				kind: tokString,
				text: sb.String(),
				raw:  l.src[start.Offset:l.pos],
				pos:  start,
				end:  l.pos,
			}, nil
		}
		if c == '\\' {
			if l.pos >= len(l.src) {
				break
			}
			e := l.advance()
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '\'', '"', '`':
				sb.WriteByte(e)
			case '0':
				sb.WriteByte(0)
			default:
				sb.WriteByte(e)
			}
			continue
		}
		sb.WriteByte(c)
	}
	return token{}, fmt.Errorf("unterminated string at %s", start)
}

// scanTemplate captures the raw backtick content, holes included; the parser
// splits it into parts so hole source text survives verbatim for
// runtime-variable preservation.
func (l *lexer) scanTemplate(start Pos) (token, error) {
	l.advance() // opening backtick
	contentStart := l.pos
	depth := 0
	for l.pos < len(l.src) {
		c := l.peek()
		if c == '\\' {
			l.advance()
			if l.pos < len(l.src) {
				l.advance()
			}
			continue
		}
		if c == '$' && l.peekAt(1) == '{' {
			depth++
			l.advance()
			l.advance()
			continue
		}
		if c == '{' && depth > 0 {
			depth++
			l.advance()
			continue
		}
		if c == '}' && depth > 0 {
			depth--
			l.advance()
			continue
		}
		if c == '`' && depth == 0 {
			raw := l.src[contentStart:l.pos]
			l.advance() // closing backtick
			return token{kind: tokTemplate, text: raw, raw: l.src[start.Offset:l.pos], pos: start, end: l.pos}, nil
		}
		l.advance()
	}
	return token{}, fmt.Errorf("unterminated template string at %s", start)
}
