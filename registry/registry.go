// Package registry implements the ComponentRegistry of §4.F: it locates a
// named component by consulting a RecipeSource and ConfigStore, resolves
// its dependency string recursively (through itself) into a
// depgraph.Graph, and synthesizes an error-state Component when a recipe
// is missing or malformed.
package registry

import (
	"fmt"
	"sync"

	"github.com/edgecore/edged/component"
	"github.com/edgecore/edged/depgraph"
)

// RecipeSource is the narrow surface Registry needs from a recipe store.
// recipesource.FilesystemSource satisfies this structurally.
type RecipeSource interface {
	FindRecipe(name string) (*component.Recipe, bool)
}

// ConfigStore is the narrow surface Registry needs from the config layer.
// configstore.Store satisfies this structurally.
type ConfigStore interface {
	ComponentConfig(name string) (map[string]any, bool)
}

// Registry resolves component names into *component.Component instances,
// sharing one instance per name for the life of a generation (§3: "reload
// replaces the entire graph by creating a new generation").
type Registry struct {
	recipes  RecipeSource
	config   ConfigStore
	handlers *HandlerRegistry

	mu         sync.Mutex
	generation uint64
	byName     map[string]*component.Component
	singletons map[string]*component.Component // survive across generations
	graph      *depgraph.Graph
}

// New builds a Registry. recipes and config must be non-nil. handlers may
// be nil, in which case any recipe declaring a `class` synthesizes an
// error-component instead of instantiating a handler.
func New(recipes RecipeSource, config ConfigStore, handlers *HandlerRegistry) *Registry {
	r := &Registry{
		recipes:    recipes,
		config:     config,
		handlers:   handlers,
		singletons: make(map[string]*component.Component),
	}
	r.NewGeneration()
	return r
}

// NewGeneration starts a fresh resolution generation: every non-singleton
// component gets rebuilt from scratch on next Locate, and a fresh
// dependency graph starts accumulating edges. Singleton components are
// carried over unchanged.
func (r *Registry) NewGeneration() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.byName = make(map[string]*component.Component)
	r.graph = depgraph.New()
}

// Graph returns the dependency graph accumulated so far this generation.
// The orchestrator calls TopoOrder, and cmd/edged's graph subcommands call
// AllEdges/ToDOT, on it once every root component has been located.
func (r *Registry) Graph() *depgraph.Graph {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.graph
}

// Locate resolves name to a Component, recursively resolving its
// dependency string through the same Registry (§3's data-flow note:
// "Registry ... resolves dependencies via DependencyGraph (recursively
// through Registry)").
func (r *Registry) Locate(name string) *component.Component {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locate(name)
}

// locate must be called with r.mu held. It stores a partially-built
// Component before recursing into its dependencies, so a dependency cycle
// resolves to the same shared instance instead of recursing forever; the
// cycle itself is reported later when the orchestrator runs TopoOrder on the
// finished graph (scenario S6).
func (r *Registry) locate(name string) *component.Component {
	if comp, ok := r.byName[name]; ok {
		return comp
	}

	r.graph.AddNode(name)

	recipe, found := r.recipes.FindRecipe(name)
	if !found {
		comp := synthesizeMissing(name)
		comp.SetGeneration(r.generation)
		r.byName[name] = comp
		return comp
	}

	// Handlers marked as singletons are registered under their class
	// identity (§3), so a second name resolving to the same class reuses
	// the instance already built this process, not a fresh one.
	if recipe.Singleton {
		if existing, ok := r.singletons[singletonKey(recipe)]; ok {
			r.byName[name] = existing
			return existing
		}
	}

	if overrides, ok := r.config.ComponentConfig(name); ok {
		applyConfigOverrides(recipe, overrides)
	}

	kind := component.KindGeneric
	if recipe.Class != "" {
		kind = component.KindCodeBacked
	}
	comp := component.NewComponent(name, recipe, kind)
	comp.SetGeneration(r.generation)
	r.store(name, comp)

	if kind == component.KindCodeBacked {
		if err := r.instantiateHandler(comp, recipe); err != nil {
			comp.SetState(component.StateErrored)
			comp.SetErrored(true)
			comp.SetStatusMessage(fmt.Sprintf("component-locate-failed: %v", err))
			return comp
		}
	}

	if err := validateLifecycle(recipe.Lifecycle.Steps); err != nil {
		comp.SetState(component.StateErrored)
		comp.SetErrored(true)
		comp.SetStatusMessage(err.Error())
		return comp
	}

	parsedDeps, err := depgraph.ParseDependencies(recipe.Dependencies)
	if err != nil {
		comp.SetState(component.StateErrored)
		comp.SetErrored(true)
		comp.SetStatusMessage(err.Error())
		return comp
	}

	explicit := make([]component.Dependency, 0, len(parsedDeps))
	byDepName := make(map[string]*component.Component, len(parsedDeps))
	for _, pd := range parsedDeps {
		depComp := r.locate(pd.Name)
		r.graph.AddDependency(name, pd.Name, pd.Required)
		explicit = append(explicit, component.Dependency{Component: depComp, Required: pd.Required})
		byDepName[pd.Name] = depComp
	}
	comp.SetExplicitDeps(explicit)

	computed := make([]component.Dependency, 0, len(explicit))
	for _, edge := range r.graph.Edges(name) {
		if depComp, ok := byDepName[edge.To]; ok {
			computed = append(computed, component.Dependency{Component: depComp, Required: edge.RequiredState})
		}
	}
	comp.SetComputedDeps(computed)
	return comp
}

// LocateAll resolves every name in one call, in order, a convenience for
// callers (the scheduler, cmd/edged) that start from a list of target
// component names rather than a single one.
func (r *Registry) LocateAll(names ...string) []*component.Component {
	out := make([]*component.Component, 0, len(names))
	for _, name := range names {
		out = append(out, r.Locate(name))
	}
	return out
}

func (r *Registry) store(name string, comp *component.Component) {
	r.byName[name] = comp
	if comp.Recipe != nil && comp.Recipe.Singleton {
		r.singletons[singletonKey(comp.Recipe)] = comp
	}
}

// singletonKey is the process-wide identity a singleton is shared under:
// its class if it has one (§3: "registered ... under their class
// identity"), falling back to its recipe name for a singleton that never
// declared a class.
func singletonKey(recipe *component.Recipe) string {
	if recipe.Class != "" {
		return recipe.Class
	}
	return recipe.Name
}

// instantiateHandler builds comp's in-process Handler via the registry's
// HandlerRegistry and attaches it to comp (§3: "instantiate the registered
// code-backed handler by symbol, passing the config subtree").
func (r *Registry) instantiateHandler(comp *component.Component, recipe *component.Recipe) error {
	if r.handlers == nil {
		return fmt.Errorf("class %q declared but no handler registry configured", recipe.Class)
	}
	handler, err := r.handlers.Build(comp, recipe.Configuration)
	if err != nil {
		return err
	}
	comp.SetHandler(handler)
	return nil
}

// synthesizeMissing builds the Broken placeholder for a dependency with no
// matching recipe (scenario S2).
func synthesizeMissing(name string) *component.Component {
	comp := component.NewComponent(name, &component.Recipe{Name: name}, component.KindGeneric)
	comp.SetState(component.StateBroken)
	comp.SetBrokenReason("no matching definition")
	return comp
}
