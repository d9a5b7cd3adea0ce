package dag

import "sort"

// Strategy assigns OrderIndex to every node of the graph. Strategies
// report a CycleError when no complete order exists; order indexes are
// undefined after an error.
type Strategy func(g *Graph) error

// KahnOrder is the default strategy: a Kahn topological sort seeded with
// the zero in-degree steps in insertion order and processed FIFO, which
// makes schedules reproducible for a given plan.
func KahnOrder(g *Graph) error {
	indeg, dependents := g.degrees()

	var queue []string
	for _, n := range g.nodes {
		if indeg[n.StepID] == 0 {
			queue = append(queue, n.StepID)
		}
	}

	next := 1
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		g.byID[id].OrderIndex = next
		next++
		for _, dep := range dependents[id] {
			indeg[dep]--
			if indeg[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	return g.checkComplete(next)
}

// PriorityOrder orders ready steps by descending priority, breaking ties
// by insertion order. Dependencies are honored like KahnOrder.
func PriorityOrder(g *Graph) error {
	indeg, dependents := g.degrees()
	pos := make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		pos[n.StepID] = i
	}

	var ready []string
	for _, n := range g.nodes {
		if indeg[n.StepID] == 0 {
			ready = append(ready, n.StepID)
		}
	}

	next := 1
	for len(ready) > 0 {
		best := 0
		for i := 1; i < len(ready); i++ {
			b, c := g.byID[ready[best]], g.byID[ready[i]]
			if c.Meta.Priority > b.Meta.Priority ||
				(c.Meta.Priority == b.Meta.Priority && pos[ready[i]] < pos[ready[best]]) {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		g.byID[id].OrderIndex = next
		next++
		for _, dep := range dependents[id] {
			indeg[dep]--
			if indeg[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return g.checkComplete(next)
}

// degrees returns the in-degree of every node and the reverse index from
// prerequisite to dependents, both in insertion order.
func (g *Graph) degrees() (map[string]int, map[string][]string) {
	indeg := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string)
	for _, n := range g.nodes {
		indeg[n.StepID] = len(n.Edges)
		for _, e := range n.Edges {
			dependents[e.TargetStepID] = append(dependents[e.TargetStepID], n.StepID)
		}
	}
	return indeg, dependents
}

// checkComplete verifies every node received an order index and otherwise
// reports the sorted leftover set.
func (g *Graph) checkComplete(next int) error {
	if next > len(g.nodes) {
		return nil
	}
	var leftover []string
	for _, n := range g.nodes {
		if n.OrderIndex == 0 {
			leftover = append(leftover, n.StepID)
		}
	}
	sort.Strings(leftover)
	return &CycleError{Remaining: leftover}
}
