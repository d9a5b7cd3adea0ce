package dag

import "sort"

// ReasonExplicit marks an edge declared through dependsOn.
const ReasonExplicit = "explicit"

// ContextReason returns the edge reason recording dataflow on key.
func ContextReason(key string) string { return "context:" + key }

type (
	// Edge points at a prerequisite step together with every reason the
	// dependency exists. Reasons are deduplicated, explicit first.
	Edge struct {
		TargetStepID string   `json:"targetStepId"`
		Reasons      []string `json:"reasons"`
	}

	// Node is one step of the execution graph.
	Node struct {
		StepID string
		Meta   Metadata
		// Edges lists the node's prerequisites.
		Edges []Edge
		// OrderIndex is the 1-based execution position assigned by the
		// order strategy.
		OrderIndex int
	}

	// Graph holds the plan's nodes in insertion order with id lookup.
	Graph struct {
		nodes []*Node
		byID  map[string]*Node
	}

	// BuildOption configures graph construction.
	BuildOption func(*buildOptions)

	buildOptions struct {
		strategy Strategy
	}
)

// WithStrategy replaces the default Kahn order strategy.
func WithStrategy(s Strategy) BuildOption {
	return func(o *buildOptions) { o.strategy = s }
}

// Build constructs the execution graph: it indexes steps, derives explicit
// and context edges, rejects contradictions and hands the graph to the
// order strategy.
func Build(metas []Metadata, opts ...BuildOption) (*Graph, error) {
	options := buildOptions{strategy: KahnOrder}
	for _, opt := range opts {
		opt(&options)
	}

	g := &Graph{byID: make(map[string]*Node, len(metas))}
	for i, m := range metas {
		if m.StepID == "" {
			return nil, &InvalidStepError{Index: i}
		}
		if _, dup := g.byID[m.StepID]; dup {
			return nil, &DuplicateStepError{StepID: m.StepID}
		}
		n := &Node{StepID: m.StepID, Meta: m}
		g.nodes = append(g.nodes, n)
		g.byID[m.StepID] = n
	}

	producers := make(map[string][]string)
	for _, n := range g.nodes {
		for _, key := range n.Meta.ProducesContext {
			producers[key] = append(producers[key], n.StepID)
		}
	}

	for _, n := range g.nodes {
		eb := edgeBuilder{reasons: make(map[string][]string)}
		for _, dep := range n.Meta.DependsOn {
			if dep == n.StepID {
				return nil, &SelfDependencyError{StepID: n.StepID}
			}
			target, ok := g.byID[dep]
			if !ok {
				return nil, &UnknownDependencyError{StepID: n.StepID, Target: dep}
			}
			if key := contradicts(n.Meta, target.Meta); key != "" {
				return nil, &ContextContradictionError{StepID: n.StepID, Target: dep, Key: key}
			}
			eb.add(dep, ReasonExplicit)
		}
		for _, key := range n.Meta.RequiresContext {
			for _, producer := range producers[key] {
				if producer == n.StepID {
					continue
				}
				eb.add(producer, ContextReason(key))
			}
		}
		for _, target := range eb.order {
			n.Edges = append(n.Edges, Edge{TargetStepID: target, Reasons: eb.reasons[target]})
		}
	}

	if err := options.strategy(g); err != nil {
		return nil, err
	}
	return g, nil
}

// contradicts returns the first context key step produces that its
// explicit prerequisite target requires. Such an edge would schedule the
// consumer before the producer.
func contradicts(step, target Metadata) string {
	for _, key := range step.ProducesContext {
		for _, req := range target.RequiresContext {
			if key == req {
				return key
			}
		}
	}
	return ""
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Node returns the node with the given step id.
func (g *Graph) Node(stepID string) (*Node, bool) {
	n, ok := g.byID[stepID]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Ordered returns the nodes sorted by OrderIndex.
func (g *Graph) Ordered() []*Node {
	out := append([]*Node{}, g.nodes...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

// Levels groups nodes into dependency levels: level 0 holds steps without
// prerequisites, level n steps whose longest prerequisite chain has n
// edges. Within a level, insertion order is kept. The graph must be
// acyclic, which Build guarantees.
func (g *Graph) Levels() [][]*Node {
	depth := make(map[string]int, len(g.nodes))
	var level func(n *Node) int
	level = func(n *Node) int {
		if d, ok := depth[n.StepID]; ok {
			return d
		}
		depth[n.StepID] = 0
		max := 0
		for _, e := range n.Edges {
			dep, ok := g.byID[e.TargetStepID]
			if !ok {
				continue
			}
			if d := level(dep) + 1; d > max {
				max = d
			}
		}
		depth[n.StepID] = max
		return max
	}

	maxDepth := -1
	for _, n := range g.nodes {
		if d := level(n); d > maxDepth {
			maxDepth = d
		}
	}
	out := make([][]*Node, maxDepth+1)
	for _, n := range g.nodes {
		d := depth[n.StepID]
		out[d] = append(out[d], n)
	}
	return out
}

// edgeBuilder accumulates edges per target, keeping discovery order and
// deduplicating reasons.
type edgeBuilder struct {
	order   []string
	reasons map[string][]string
}

func (eb *edgeBuilder) add(target, reason string) {
	rs, ok := eb.reasons[target]
	if !ok {
		eb.order = append(eb.order, target)
	}
	for _, r := range rs {
		if r == reason {
			return
		}
	}
	eb.reasons[target] = append(rs, reason)
}
