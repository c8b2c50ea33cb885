// Package script parses and evaluates workflow program text under a
// capability-restricted execution model: a fixed set of statement and
// expression kinds, a fixed set of builder functions, and allowlisted method
// calls. Anything outside the allowlist fails closed with a typed error
// before it is evaluated.
package script

import "fmt"

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokTemplate // backtick string, raw content with `${…}` holes intact
	tokPunct
	tokKeyword
)

// keywords the lexer distinguishes from identifiers. Statement keywords the
// sandbox forbids (function, return, if, …) are detected by the parser so the
// rejection can name the construct.
var keywords = map[string]bool{
	"const":     true,
	"let":       true,
	"var":       true,
	"export":    true,
	"default":   true,
	"null":      true,
	"undefined": true,
	"true":      true,
	"false":     true,
}

// forbiddenStatementKeywords map a leading identifier to the statement kind
// it introduces, for precise unsupported-node errors.
var forbiddenStatementKeywords = map[string]string{
	"function": "function declaration",
	"return":   "return statement",
	"if":       "if statement",
	"for":      "for loop",
	"while":    "while loop",
	"do":       "do-while loop",
	"class":    "class declaration",
	"import":   "import declaration",
	"throw":    "throw statement",
	"try":      "try statement",
	"switch":   "switch statement",
	"async":    "async function",
	"await":    "await expression",
	"new":      "new expression",
	"delete":   "delete expression",
}

// Pos is a source location.
type Pos struct {
	Line   int
	Col    int
	Offset int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

type token struct {
	kind    tokenKind
	text    string // raw text; for strings, the decoded value
	raw     string // original source text
	pos     Pos
	end     int // offset one past the token
}
