package semantic

// Annotate marks cycle targets and convergence points on the graph. The marks
// are advisory: the composite tree builder consults them as heuristics, and
// nothing here ever blocks translation.
func Annotate(g *Graph) {
	visited := map[string]bool{}
	onStack := map[string]bool{}

	var walk func(name string)
	walk = func(name string) {
		n := g.Nodes[name]
		if n == nil {
			return
		}
		if onStack[name] {
			return
		}
		if visited[name] {
			return
		}
		visited[name] = true
		onStack[name] = true
		for _, slot := range n.OccupiedOutputs() {
			for _, link := range n.Outputs[slot] {
				if onStack[link.Node] {
					// Back-edge: re-entering a node on the current path.
					g.Nodes[link.Node].IsCycleTarget = true
					g.CycleEdges[name] = append(g.CycleEdges[name], link.Node)
					continue
				}
				walk(link.Node)
			}
		}
		if errTargets := n.Outputs[SlotError]; len(errTargets) > 0 {
			for _, link := range errTargets {
				if !onStack[link.Node] {
					walk(link.Node)
				}
			}
		}
		onStack[name] = false
	}

	for _, root := range g.Roots {
		walk(root)
	}
	// Nodes reachable only via cycles still get walked so their own
	// back-edges are recorded.
	for _, name := range g.Order {
		if !visited[name] {
			walk(name)
		}
	}

	for _, name := range g.Order {
		n := g.Nodes[name]
		sources := map[string]bool{}
		for _, links := range n.InputSources {
			for _, l := range links {
				sources[l.Node] = true
			}
		}
		if len(sources) > 1 {
			n.IsConvergencePoint = true
		}
	}
}
