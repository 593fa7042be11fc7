package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/edgecore/edged/component"
	"github.com/edgecore/edged/depgraph"
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

func TestSupervisor_Start_RunsHappyPathGraph(t *testing.T) {
	src := &fakeRecipeSource{recipes: map[string]*component.Recipe{
		"sleeperB": {Name: "sleeperB", Lifecycle: component.LifecycleBlock{Steps: map[string]component.Node{
			"install": scriptNode("true"),
			"startup": scriptNode("true"),
			"run":     scriptNode("sleep 5"),
		}}},
		"main": {Name: "main", Dependencies: "sleeperB:running", Lifecycle: component.LifecycleBlock{Steps: map[string]component.Node{
			"install": scriptNode("true"),
			"startup": scriptNode("true"),
			"run":     scriptNode("sleep 5"),
		}}},
	}}
	reg := registry.New(src, fakeConfigStore{}, nil)
	sup := New(reg, nil, nil, testDeps(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx, []string{"main"}))

	require.Eventually(t, func() bool {
		c, ok := sup.Component("main")
		return ok && c.State() == component.StateRunning
	}, 3*time.Second, 5*time.Millisecond)

	assert.NotEqual(t, sup.Generation().String(), "00000000-0000-0000-0000-000000000000")

	sup.Stop()
}

func TestSupervisor_Start_DependencyCycleErrorsAndMarksNode(t *testing.T) {
	// S6: a depends on b, b depends on a.
	src := &fakeRecipeSource{recipes: map[string]*component.Recipe{
		"a": {Name: "a", Dependencies: "b:running"},
		"b": {Name: "b", Dependencies: "a:running"},
	}}
	reg := registry.New(src, fakeConfigStore{}, nil)
	sup := New(reg, nil, nil, testDeps(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := sup.Start(ctx, []string{"a"})
	require.Error(t, err)

	var cycleErr *depgraph.CycleError
	require.ErrorAs(t, err, &cycleErr)

	c, ok := sup.Component(cycleErr.Node)
	require.True(t, ok)
	assert.Equal(t, component.StateErrored, c.State())
	assert.Contains(t, c.StatusMessage(), "dependency cycle")
}

type reloadCounter struct {
	n int
}

func (r *reloadCounter) Reload() error {
	r.n++
	return nil
}

func TestSupervisor_Reload_RebuildsFromSameTargetsAndCallsReloadSources(t *testing.T) {
	src := &fakeRecipeSource{recipes: map[string]*component.Recipe{
		"x": {Name: "x", Lifecycle: component.LifecycleBlock{Steps: map[string]component.Node{
			"install": scriptNode("true"),
			"startup": scriptNode("true"),
			"run":     scriptNode("sleep 5"),
		}}},
	}}
	reg := registry.New(src, fakeConfigStore{}, nil)
	recipes := &reloadCounter{}
	cfg := &reloadCounter{}
	sup := New(reg, recipes, cfg, testDeps(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx, []string{"x"}))

	require.Eventually(t, func() bool {
		c, ok := sup.Component("x")
		return ok && c.State() == component.StateRunning
	}, 3*time.Second, 5*time.Millisecond)

	firstGen := sup.Generation()

	require.NoError(t, sup.Reload(ctx))
	assert.NotEqual(t, firstGen, sup.Generation())
	assert.Equal(t, 2, recipes.n)
	assert.Equal(t, 2, cfg.n)

	sup.Stop()
}

func TestSupervisor_Running_ReflectsStartAndStop(t *testing.T) {
	src := &fakeRecipeSource{recipes: map[string]*component.Recipe{
		"x": {Name: "x", Lifecycle: component.LifecycleBlock{Steps: map[string]component.Node{
			"install": scriptNode("true"),
			"startup": scriptNode("true"),
			"run":     scriptNode("sleep 5"),
		}}},
	}}
	reg := registry.New(src, fakeConfigStore{}, nil)
	sup := New(reg, nil, nil, testDeps(), nil, nil)

	assert.False(t, sup.Running())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx, []string{"x"}))
	assert.True(t, sup.Running())

	sup.Stop()
	assert.False(t, sup.Running())
}
