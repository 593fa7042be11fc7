package depgraph

import "fmt"

// ToDOT renders the graph in Graphviz DOT format, the same shape goscade's
// own Graph.ToDOT produces, for `edged graph dot`.
func (g *Graph) ToDOT() string {
	var b []byte
	b = append(b, "digraph G {\n  rankdir=TB;\n\n"...)

	for _, name := range g.Nodes() {
		b = append(b, fmt.Sprintf("  %q [label=%q, shape=box];\n", name, name)...)
	}

	b = append(b, '\n')

	for _, edge := range g.AllEdges() {
		b = append(b, fmt.Sprintf("  %q -> %q [label=%q];\n", edge.From, edge.To, edge.RequiredState.String())...)
	}

	b = append(b, "}\n"...)
	return string(b)
}
