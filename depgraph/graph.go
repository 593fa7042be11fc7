// Package depgraph implements the dependency DAG described in §4.E: edge
// registration with strictest-state de-duplication, satisfaction queries,
// leaves-first topological order, and cycle detection.
package depgraph

import (
	"fmt"
	"sync"

	"github.com/edgecore/edged/component"
	"github.com/edgecore/edged/internal/queue"
)

// CycleError is returned by TopoOrder when the graph isn't a DAG. Node is
// the name the caller should transition to Errored("dependency cycle") --
// the last node inserted among those still unresolved when the cycle was
// detected (§4.E, scenario S6).
type CycleError struct {
	Node string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected at %q", e.Node)
}

type edgeKey struct{ from, to string }

// Graph is a thread-safe directed edge set keyed by component name. Edge
// (from, to, required) reads "from depends on to reaching required".
type Graph struct {
	mu        sync.Mutex
	edges     []component.DependencyEdge
	index     map[edgeKey]int
	nodeOrder map[string]int
	seq       int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		index:     make(map[edgeKey]int),
		nodeOrder: make(map[string]int),
	}
}

// AddNode registers a node with no dependencies if it isn't already known,
// so isolated components (like `main` with no deps) still appear in
// TopoOrder.
func (g *Graph) AddNode(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.touch(name)
}

// touch must be called with g.mu held.
func (g *Graph) touch(name string) {
	if _, ok := g.nodeOrder[name]; !ok {
		g.nodeOrder[name] = g.seq
		g.seq++
	}
}

// AddDependency records (from -> to, required), de-duplicating by
// (from, to) and keeping the strictest required state seen so far.
func (g *Graph) AddDependency(from, to string, required component.State) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.touch(from)
	g.touch(to)

	key := edgeKey{from, to}
	if idx, ok := g.index[key]; ok {
		g.edges[idx].RequiredState = component.StricterState(g.edges[idx].RequiredState, required)
		return
	}
	g.index[key] = len(g.edges)
	g.edges = append(g.edges, component.DependencyEdge{From: from, To: to, RequiredState: required})
}

// Edges returns the outgoing edges of name, in insertion order.
func (g *Graph) Edges(name string) []component.DependencyEdge {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []component.DependencyEdge
	for _, e := range g.edges {
		if e.From == name {
			out = append(out, e)
		}
	}
	return out
}

// AllEdges returns every edge in the graph, in insertion order.
func (g *Graph) AllEdges() []component.DependencyEdge {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]component.DependencyEdge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Nodes returns every known node name, in insertion order.
func (g *Graph) Nodes() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, len(g.nodeOrder))
	for name, idx := range g.nodeOrder {
		names[idx] = name
	}
	return names
}

// SatisfiedBy reports whether every outgoing edge of name points to a
// member of states whose reported state meets the edge's required state
// (§4.E).
func (g *Graph) SatisfiedBy(name string, states map[string]component.State) bool {
	for _, edge := range g.Edges(name) {
		state, ok := states[edge.To]
		if !ok || !state.Satisfies(edge.RequiredState) {
			return false
		}
	}
	return true
}

// TopoOrder returns a leaves-first ordering (a component's dependencies
// always precede it) via Kahn's algorithm over the snapshot taken at call
// time. Ties among simultaneously-ready nodes break by insertion order,
// so the result is deterministic for a fixed sequence of AddDependency
// calls.
func (g *Graph) TopoOrder() ([]string, error) {
	g.mu.Lock()
	edges := make([]component.DependencyEdge, len(g.edges))
	copy(edges, g.edges)
	nodeOrder := make(map[string]int, len(g.nodeOrder))
	for k, v := range g.nodeOrder {
		nodeOrder[k] = v
	}
	g.mu.Unlock()

	outDegree := make(map[string]int, len(nodeOrder))
	dependents := make(map[string][]string, len(nodeOrder))
	for name := range nodeOrder {
		outDegree[name] = 0
	}
	for _, e := range edges {
		outDegree[e.From]++
		dependents[e.To] = append(dependents[e.To], e.From)
	}

	ready := make([]string, 0, len(nodeOrder))
	for name := range nodeOrder {
		if outDegree[name] == 0 {
			ready = append(ready, name)
		}
	}
	sortByInsertion(ready, nodeOrder)

	q := &queue.FIFO[string]{}
	for _, n := range ready {
		q.Push(n)
	}

	order := make([]string, 0, len(nodeOrder))
	for !q.IsEmpty() {
		n, _ := q.Pop()
		order = append(order, n)

		freed := make([]string, 0)
		for _, dependent := range dependents[n] {
			outDegree[dependent]--
			if outDegree[dependent] == 0 {
				freed = append(freed, dependent)
			}
		}
		sortByInsertion(freed, nodeOrder)
		for _, f := range freed {
			q.Push(f)
		}
	}

	if len(order) == len(nodeOrder) {
		return order, nil
	}

	// Cycle: some nodes never reached outDegree 0. The last-inserted
	// among them is the one reported, per scenario S6.
	placed := make(map[string]bool, len(order))
	for _, n := range order {
		placed[n] = true
	}
	lastNode := ""
	lastSeq := -1
	for name := range nodeOrder {
		if placed[name] {
			continue
		}
		if nodeOrder[name] > lastSeq {
			lastSeq = nodeOrder[name]
			lastNode = name
		}
	}
	return order, &CycleError{Node: lastNode}
}

func sortByInsertion(names []string, order map[string]int) {
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && order[names[j-1]] > order[names[j]]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
}
