package depgraph

import (
	"testing"

	"github.com/edgecore/edged/component"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_TopoOrder_ScenarioS1(t *testing.T) {
	// main depends on sleeperA and sleeperB; sleeperA depends on sleeperB.
	g := New()
	g.AddDependency("main", "sleeperA", component.StateRunning)
	g.AddDependency("main", "sleeperB", component.StateRunning)
	g.AddDependency("sleeperA", "sleeperB", component.StateRunning)

	order, err := g.TopoOrder()
	require.NoError(t, err)

	pos := indexOf(order)
	assert.Less(t, pos["sleeperB"], pos["sleeperA"])
	assert.Less(t, pos["sleeperA"], pos["main"])
}

func TestGraph_TopoOrder_CycleReportsLastInserted(t *testing.T) {
	// S6: a -> b, b -> a. The last-inserted of {a, b} is reported.
	g := New()
	g.AddDependency("a", "b", component.StateRunning)
	g.AddDependency("b", "a", component.StateRunning)

	_, err := g.TopoOrder()
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, "b", cycleErr.Node, "b is the last node first seen (inserted as the target of the first edge)")
}

func TestGraph_AddDependency_DeduplicatesToStrictestState(t *testing.T) {
	g := New()
	g.AddDependency("x", "y", component.StateAwaitingStartup)
	g.AddDependency("x", "y", component.StateRunning)

	edges := g.Edges("x")
	require.Len(t, edges, 1)
	assert.Equal(t, component.StateRunning, edges[0].RequiredState)
}

func TestGraph_SatisfiedBy(t *testing.T) {
	g := New()
	g.AddDependency("x", "y", component.StateRunning)

	assert.False(t, g.SatisfiedBy("x", map[string]component.State{"y": component.StateInstalling}))
	assert.True(t, g.SatisfiedBy("x", map[string]component.State{"y": component.StateRunning}))
	assert.True(t, g.SatisfiedBy("x", map[string]component.State{"y": component.StateFinished}))
}

func TestGraph_IsolatedNodeAppearsInTopoOrder(t *testing.T) {
	g := New()
	g.AddNode("main")
	order, err := g.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, order)
}

func TestParseDependencies(t *testing.T) {
	deps, err := ParseDependencies("sleeperB, sleeperC:installing; sleeperD:run")
	require.NoError(t, err)
	require.Len(t, deps, 3)
	assert.Equal(t, "sleeperB", deps[0].Name)
	assert.Equal(t, component.StateRunning, deps[0].Required)
	assert.Equal(t, component.StateInstalling, deps[1].Required)
	assert.Equal(t, component.StateRunning, deps[2].Required)
}

func TestParseDependencies_BadSyntax(t *testing.T) {
	_, err := ParseDependencies("sleeperB:notastate")
	require.Error(t, err)
	var badSyntax *ErrBadSyntax
	assert.ErrorAs(t, err, &badSyntax)
}

func indexOf(order []string) map[string]int {
	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	return pos
}
