package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/edgecore/edged/component"
	"github.com/edgecore/edged/lifecycle"
	"github.com/edgecore/edged/platform"
	"github.com/edgecore/edged/registry"
	"github.com/edgecore/edged/shellrunner"
	"github.com/edgecore/edged/stepgate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecipeSource struct {
	recipes map[string]*component.Recipe
}

func (f *fakeRecipeSource) FindRecipe(name string) (*component.Recipe, bool) {
	r, ok := f.recipes[name]
	return r, ok
}

type fakeConfigStore struct{}

func (fakeConfigStore) ComponentConfig(string) (map[string]any, bool) { return nil, false }

func scriptNode(script string) component.Node {
	return component.Node{Kind: component.NodeScript, Script: script}
}

func testDeps() lifecycle.Deps {
	return lifecycle.Deps{
		Runner:          shellrunner.New(nil),
		Selector:        platform.NewSelector(platform.Detect()),
		Gate:            stepgate.New(shellrunner.New(nil), "/"),
		ShutdownTimeout: time.Second,
	}
}

func TestScheduler_Start_RunsDependencyChainInOrder(t *testing.T) {
	// S1: main depends on sleeperA and sleeperB; sleeperA depends on sleeperB.
	src := &fakeRecipeSource{recipes: map[string]*component.Recipe{
		"sleeperB": {Name: "sleeperB", Lifecycle: component.LifecycleBlock{Steps: map[string]component.Node{
			"install": scriptNode("true"),
			"startup": scriptNode("true"),
			"run":     scriptNode("sleep 5"),
		}}},
		"sleeperA": {Name: "sleeperA", Dependencies: "sleeperB:running", Lifecycle: component.LifecycleBlock{Steps: map[string]component.Node{
			"install": scriptNode("true"),
			"startup": scriptNode("true"),
			"run":     scriptNode("sleep 5"),
		}}},
		"main": {Name: "main", Dependencies: "sleeperA:running, sleeperB:running", Lifecycle: component.LifecycleBlock{Steps: map[string]component.Node{
			"install": scriptNode("true"),
			"startup": scriptNode("true"),
			"run":     scriptNode("sleep 5"),
		}}},
	}}
	reg := registry.New(src, fakeConfigStore{}, nil)
	s := New(reg, testDeps(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx, []string{"main"}))

	require.Eventually(t, func() bool {
		for _, name := range []string{"sleeperB", "sleeperA", "main"} {
			s.mu.Lock()
			m := s.machines[name]
			s.mu.Unlock()
			if m == nil || m.Component().State() != component.StateRunning {
				return false
			}
		}
		return true
	}, 3*time.Second, 5*time.Millisecond)
}

func TestScheduler_Start_MissingDepMarksDependentErrored(t *testing.T) {
	// S2: x depends on y, which has no recipe.
	src := &fakeRecipeSource{recipes: map[string]*component.Recipe{
		"x": {Name: "x", Dependencies: "y:running", Lifecycle: component.LifecycleBlock{Steps: map[string]component.Node{
			"install": scriptNode("true"),
		}}},
	}}
	reg := registry.New(src, fakeConfigStore{}, nil)
	s := New(reg, testDeps(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx, []string{"x"}))

	require.Eventually(t, func() bool {
		s.mu.Lock()
		m := s.machines["x"]
		s.mu.Unlock()
		return m != nil && m.Component().State() == component.StateErrored
	}, 3*time.Second, 5*time.Millisecond)

	s.mu.Lock()
	x := s.machines["x"].Component()
	s.mu.Unlock()
	assert.Contains(t, x.StatusMessage(), "dep broken: y")
}
