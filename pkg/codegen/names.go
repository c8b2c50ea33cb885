package codegen

import (
	"fmt"
	"strings"

	"github.com/wireflow-dev/wireflow/pkg/script"
)

// jsKeywords are names that can never be bindings in the generated program.
var jsKeywords = map[string]bool{
	"const": true, "let": true, "var": true, "export": true, "default": true,
	"null": true, "undefined": true, "true": true, "false": true,
	"function": true, "return": true, "if": true, "else": true, "for": true,
	"while": true, "do": true, "class": true, "import": true, "throw": true,
	"try": true, "catch": true, "switch": true, "case": true, "new": true,
	"delete": true, "typeof": true, "in": true, "of": true, "this": true,
	"async": true, "await": true, "yield": true,
}

// nameTable assigns each node name a unique, collision-free identifier.
type nameTable struct {
	byNode map[string]string
	taken  map[string]bool
}

func newNameTable() *nameTable {
	return &nameTable{
		byNode: make(map[string]string),
		taken:  make(map[string]bool),
	}
}

// ident returns the identifier for a node name, minting one on first use.
// Derivation is camelCase over the name's word runs; collisions with earlier
// identifiers, keywords, or builder names take a numeric suffix or a "my"
// prefix.
func (t *nameTable) ident(nodeName string) string {
	if id, ok := t.byNode[nodeName]; ok {
		return id
	}
	base := camelCase(nodeName)
	if base == "" {
		base = "node"
	}
	if script.IsReserved(base) || jsKeywords[base] {
		base = "my" + strings.ToUpper(base[:1]) + base[1:]
	}
	id := base
	for i := 1; t.taken[id] || script.IsReserved(id) || jsKeywords[id]; i++ {
		id = fmt.Sprintf("%s%d", base, i)
	}
	t.taken[id] = true
	t.byNode[nodeName] = id
	return id
}

// camelCase lowercases the first word run of a node name and title-cases the
// rest, dropping everything that cannot appear in an identifier.
func camelCase(s string) string {
	var sb strings.Builder
	newWord := false
	first := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			switch {
			case first:
				sb.WriteRune(toLower(r))
				first = false
			case newWord:
				sb.WriteRune(toUpper(r))
				newWord = false
			default:
				sb.WriteRune(toLower(r))
			}
		case r >= '0' && r <= '9':
			if first {
				sb.WriteString("n")
				first = false
			}
			sb.WriteRune(r)
			newWord = true
		default:
			newWord = !first
		}
	}
	return sb.String()
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}
