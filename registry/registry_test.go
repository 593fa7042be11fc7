package registry

import (
	"testing"

	"github.com/edgecore/edged/component"
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

type fakeConfigStore struct {
	overrides map[string]map[string]any
}

func (f *fakeConfigStore) ComponentConfig(name string) (map[string]any, bool) {
	o, ok := f.overrides[name]
	return o, ok
}

func TestRegistry_Locate_MissingRecipeSynthesizesBroken(t *testing.T) {
	// S2: y has no recipe.
	sources := &fakeRecipeSource{recipes: map[string]*component.Recipe{}}
	cfg := &fakeConfigStore{}
	r := New(sources, cfg, nil)

	y := r.Locate("y")
	assert.Equal(t, component.StateBroken, y.State())
	assert.Equal(t, "no matching definition", y.BrokenReason())
}

func TestRegistry_Locate_ResolvesExplicitAndComputedDeps(t *testing.T) {
	sources := &fakeRecipeSource{recipes: map[string]*component.Recipe{
		"main":      {Name: "main", Dependencies: "sleeperA:running, sleeperB:running"},
		"sleeperA":  {Name: "sleeperA", Dependencies: "sleeperB:running"},
		"sleeperB":  {Name: "sleeperB"},
	}}
	cfg := &fakeConfigStore{}
	r := New(sources, cfg, nil)

	main := r.Locate("main")
	require.Len(t, main.ExplicitDeps(), 2)
	require.Len(t, main.ComputedDeps(), 2)

	order, err := r.Graph().TopoOrder()
	require.NoError(t, err)
	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos["sleeperB"], pos["sleeperA"])
	assert.Less(t, pos["sleeperA"], pos["main"])
}

func TestRegistry_Locate_BadDependencySyntaxErrors(t *testing.T) {
	sources := &fakeRecipeSource{recipes: map[string]*component.Recipe{
		"x": {Name: "x", Dependencies: "y:notastate"},
	}}
	cfg := &fakeConfigStore{}
	r := New(sources, cfg, nil)

	x := r.Locate("x")
	assert.Equal(t, component.StateErrored, x.State())
	assert.True(t, x.Errored())
}

func TestRegistry_Locate_SkipifDoifMutualExclusionErrors(t *testing.T) {
	sources := &fakeRecipeSource{recipes: map[string]*component.Recipe{
		"x": {Name: "x", Lifecycle: component.LifecycleBlock{Steps: map[string]component.Node{
			"install": {Kind: component.NodeTopics, Topics: component.Topics{Script: "true", SkipIf: "true", DoIf: "true"}},
		}}},
	}}
	cfg := &fakeConfigStore{}
	r := New(sources, cfg, nil)

	x := r.Locate("x")
	assert.Equal(t, component.StateErrored, x.State())
}

func TestRegistry_Locate_ConfigOverridesMergeIntoConfiguration(t *testing.T) {
	sources := &fakeRecipeSource{recipes: map[string]*component.Recipe{
		"x": {Name: "x", Configuration: map[string]any{"port": 8080}},
	}}
	cfg := &fakeConfigStore{overrides: map[string]map[string]any{
		"x": {"port": 9090},
	}}
	r := New(sources, cfg, nil)

	x := r.Locate("x")
	assert.Equal(t, 9090, x.Recipe.Configuration["port"])
}

func TestRegistry_Locate_SingletonSurvivesNewGeneration(t *testing.T) {
	sources := &fakeRecipeSource{recipes: map[string]*component.Recipe{
		"x": {Name: "x", Singleton: true},
	}}
	cfg := &fakeConfigStore{}
	r := New(sources, cfg, nil)

	first := r.Locate("x")
	r.NewGeneration()
	second := r.Locate("x")
	assert.Same(t, first, second)
}

func TestRegistry_Locate_ClassDeclaredRecipeInstantiatesHandler(t *testing.T) {
	sources := &fakeRecipeSource{recipes: map[string]*component.Recipe{
		"echo": {Name: "echo", Class: "edged.example.echo"},
	}}
	cfg := &fakeConfigStore{}
	handlers := NewHandlerRegistry()
	built := &fakeHandler{}
	handlers.Register("edged.example.echo", func(comp *component.Component, cfg map[string]any) (Handler, error) {
		return built, nil
	})
	r := New(sources, cfg, handlers)

	echo := r.Locate("echo")
	assert.Equal(t, component.KindCodeBacked, echo.Kind)
	require.NotNil(t, echo.Handler())
	assert.Same(t, built, echo.Handler())
}

func TestRegistry_Locate_ClassDeclaredRecipeWithoutRegisteredFactoryErrors(t *testing.T) {
	sources := &fakeRecipeSource{recipes: map[string]*component.Recipe{
		"echo": {Name: "echo", Class: "edged.example.echo"},
	}}
	cfg := &fakeConfigStore{}
	r := New(sources, cfg, NewHandlerRegistry())

	echo := r.Locate("echo")
	assert.Equal(t, component.StateErrored, echo.State())
	assert.True(t, echo.Errored())
}

func TestRegistry_Locate_SingletonSharedAcrossNamesByClassIdentity(t *testing.T) {
	sources := &fakeRecipeSource{recipes: map[string]*component.Recipe{
		"cache-a": {Name: "cache-a", Class: "edged.example.cache", Singleton: true},
		"cache-b": {Name: "cache-b", Class: "edged.example.cache", Singleton: true},
	}}
	cfg := &fakeConfigStore{}
	handlers := NewHandlerRegistry()
	handlers.Register("edged.example.cache", func(comp *component.Component, cfg map[string]any) (Handler, error) {
		return &fakeHandler{}, nil
	})
	r := New(sources, cfg, handlers)

	a := r.Locate("cache-a")
	b := r.Locate("cache-b")
	assert.Same(t, a, b)
}

func TestRegistry_Locate_NonSingletonRebuildsOnNewGeneration(t *testing.T) {
	sources := &fakeRecipeSource{recipes: map[string]*component.Recipe{
		"x": {Name: "x"},
	}}
	cfg := &fakeConfigStore{}
	r := New(sources, cfg, nil)

	first := r.Locate("x")
	r.NewGeneration()
	second := r.Locate("x")
	assert.NotSame(t, first, second)
}
