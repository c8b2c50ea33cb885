package script

import (
	"fmt"
	"strings"
)

// The interpreter raises exactly four typed errors. Each carries the source
// location and a thumbnail of the offending line; none is ever retried or
// silently recovered, since executing a disallowed construct would break the
// sandbox's safety guarantee.

// UnsupportedNodeError reports a statement or expression kind outside the
// permitted set.
type UnsupportedNodeError struct {
	Kind    string
	Pos     Pos
	Snippet string
}

func (e *UnsupportedNodeError) Error() string {
	return fmt.Sprintf("unsupported %s at %s: %s", e.Kind, e.Pos, e.Snippet)
}

// UnknownIdentifierError reports a reference that resolves to neither a
// declared binding nor a builder function.
type UnknownIdentifierError struct {
	Name    string
	Pos     Pos
	Snippet string
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("unknown identifier %q at %s: %s", e.Name, e.Pos, e.Snippet)
}

// SecurityViolationError reports a disallowed statement, assignment, method,
// or reserved-name use.
type SecurityViolationError struct {
	Reason  string
	Pos     Pos
	Snippet string
}

func (e *SecurityViolationError) Error() string {
	return fmt.Sprintf("security violation at %s: %s: %s", e.Pos, e.Reason, e.Snippet)
}

// NotCallableError reports a call on a value that is not a function.
type NotCallableError struct {
	Name    string
	Pos     Pos
	Snippet string
}

func (e *NotCallableError) Error() string {
	return fmt.Sprintf("%q is not callable at %s: %s", e.Name, e.Pos, e.Snippet)
}

// snippet extracts a trimmed thumbnail of the source line at pos.
func snippet(src string, pos Pos) string {
	lines := strings.Split(src, "\n")
	if pos.Line < 1 || pos.Line > len(lines) {
		return ""
	}
	line := strings.TrimSpace(lines[pos.Line-1])
	const max = 60
	// Truncate on runes so a multi-byte character is never split.
	if runes := []rune(line); len(runes) > max {
		line = string(runes[:max]) + "…"
	}
	return line
}
