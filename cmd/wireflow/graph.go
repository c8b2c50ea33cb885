package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/awalterschulze/gographviz"
	"github.com/spf13/cobra"

	"github.com/wireflow-dev/wireflow/pkg/semantic"
	"github.com/wireflow-dev/wireflow/pkg/workflow"
)

func graphCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph <workflow.json>",
		Short: "Print a human-readable summary of a workflow graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			w, err := workflow.Parse(data)
			if err != nil {
				return fmt.Errorf("parse: %w", err)
			}

			switch strings.ToLower(format) {
			case "dot":
				out, err := renderDOT(w)
				if err != nil {
					return err
				}
				fmt.Print(out)
			case "text", "":
				fmt.Print(renderText(w))
			default:
				return fmt.Errorf("unknown format %q: use text or dot", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	return cmd
}

// truncate shortens s to maxLen chars, appending "…" if needed.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

// renderText produces the human-readable text summary: nodes in document
// order with their classification, then every wire with slot indices.
func renderText(w *workflow.Workflow) string {
	var sb strings.Builder

	g := semantic.Build(w)
	fmt.Fprintf(&sb, "Workflow: %s  (%d nodes, %d connections)\n",
		w.Name, len(w.Nodes), w.ConnectionCount())

	maxNameLen := 4
	for _, n := range w.Nodes {
		if len(n.Name) > maxNameLen {
			maxNameLen = len(n.Name)
		}
	}

	fmt.Fprintf(&sb, "\nNodes:\n")
	for _, name := range g.Order {
		n := g.Nodes[name]
		var marks []string
		if n.IsTrigger {
			marks = append(marks, "trigger")
		}
		if n.IsCycleTarget {
			marks = append(marks, "cycle-target")
		}
		if n.IsConvergencePoint {
			marks = append(marks, "convergence")
		}
		fmt.Fprintf(&sb, "  %-*s  %-14s  %s  %s\n",
			maxNameLen, n.Name, string(n.Kind), truncate(n.Type, 48), strings.Join(marks, " "))
	}

	fmt.Fprintf(&sb, "\nConnections:\n")
	sources := make([]string, 0, len(w.Connections))
	for src := range w.Connections {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	for _, src := range sources {
		kinds := make([]string, 0, len(w.Connections[src]))
		for kind := range w.Connections[src] {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			for outIdx, slot := range w.Connections[src][kind] {
				for _, ep := range slot {
					if kind == workflow.KindMain {
						fmt.Fprintf(&sb, "  %-*s [%d] →  %s [%d]\n", maxNameLen, src, outIdx, ep.Node, ep.Index)
					} else {
						fmt.Fprintf(&sb, "  %-*s  ⇢  %s  (%s)\n", maxNameLen, src, ep.Node, kind)
					}
				}
			}
		}
	}

	return sb.String()
}

// renderDOT produces a DOT digraph of the workflow. Main wires are solid
// edges labeled with their slot indices; auxiliary attachments are dashed.
func renderDOT(w *workflow.Workflow) (string, error) {
	name := w.Name
	if name == "" {
		name = "workflow"
	}

	g := gographviz.NewEscape()
	if err := g.SetName(name); err != nil {
		return "", fmt.Errorf("graph name: %w", err)
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}

	sem := semantic.Build(w)
	for _, nodeName := range sem.Order {
		n := sem.Nodes[nodeName]
		attrs := map[string]string{
			"label": fmt.Sprintf("%s\\n%s", n.Name, n.Type),
			"shape": "box",
		}
		if n.IsTrigger {
			attrs["shape"] = "ellipse"
		}
		if err := g.AddNode(name, n.Name, attrs); err != nil {
			return "", fmt.Errorf("node %q: %w", n.Name, err)
		}
	}

	sources := make([]string, 0, len(w.Connections))
	for src := range w.Connections {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	for _, src := range sources {
		kinds := make([]string, 0, len(w.Connections[src]))
		for kind := range w.Connections[src] {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			for outIdx, slot := range w.Connections[src][kind] {
				for _, ep := range slot {
					attrs := map[string]string{}
					if kind == workflow.KindMain {
						attrs["label"] = fmt.Sprintf("%d→%d", outIdx, ep.Index)
					} else {
						attrs["style"] = "dashed"
						attrs["label"] = kind
					}
					if err := g.AddEdge(src, ep.Node, true, attrs); err != nil {
						return "", fmt.Errorf("edge %s→%s: %w", src, ep.Node, err)
					}
				}
			}
		}
	}

	return g.String(), nil
}
