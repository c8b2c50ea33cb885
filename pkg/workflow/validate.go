package workflow

import (
	"fmt"
	"strings"
)

// LintError describes a structural problem in a workflow document.
type LintError struct {
	Node    string
	Message string
}

func (e LintError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("node %q: %s", e.Node, e.Message)
	}
	return e.Message
}

// Validate checks a workflow for structural correctness.
// Returns all discovered errors (not just the first).
func Validate(w *Workflow) []LintError {
	var errs []LintError

	// Names must be unique and non-empty.
	seen := map[string]bool{}
	for _, n := range w.Nodes {
		if n.Name == "" {
			errs = append(errs, LintError{Message: fmt.Sprintf("node with id %q has no name", n.ID)})
			continue
		}
		if seen[n.Name] {
			errs = append(errs, LintError{Node: n.Name, Message: "duplicate node name"})
		}
		seen[n.Name] = true
		if n.Type == "" {
			errs = append(errs, LintError{Node: n.Name, Message: "node has no type"})
		}
	}

	// Every wire endpoint must reference an existing node with a sane index.
	for src, kinds := range w.Connections {
		if !seen[src] {
			errs = append(errs, LintError{Message: fmt.Sprintf("connections reference unknown source node %q", src)})
		}
		for kind, slots := range kinds {
			if kind == "" {
				errs = append(errs, LintError{Node: src, Message: "connection with empty kind"})
			}
			for slotIdx, slot := range slots {
				for _, ep := range slot {
					if !seen[ep.Node] {
						errs = append(errs, LintError{
							Node:    src,
							Message: fmt.Sprintf("output %d targets unknown node %q", slotIdx, ep.Node),
						})
					}
					if ep.Index < 0 {
						errs = append(errs, LintError{
							Node:    src,
							Message: fmt.Sprintf("output %d targets %q at negative input index %d", slotIdx, ep.Node, ep.Index),
						})
					}
				}
			}
		}
	}

	return errs
}

// ValidateErr calls Validate and returns nil if there are no errors, or a
// combined error message listing all lint errors.
func ValidateErr(w *Workflow) error {
	errs := Validate(w)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("workflow validation failed:\n  %s", strings.Join(msgs, "\n  "))
}
