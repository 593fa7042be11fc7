package component

import "sync"

// Kind distinguishes a shell-script-driven component from one backed by an
// in-process handler (§3).
type Kind int

const (
	KindGeneric Kind = iota
	KindCodeBacked
)

func (k Kind) String() string {
	switch k {
	case KindGeneric:
		return "Generic"
	case KindCodeBacked:
		return "CodeBacked"
	default:
		return "Unknown"
	}
}

// DependencyEdge is a directed (from, to, required_state) edge (§3).
type DependencyEdge struct {
	From          string
	To            string
	RequiredState State
}

// Dependency pairs a resolved Component with the state required of it.
type Dependency struct {
	Component *Component
	Required  State
}

// Component is one managed unit (§3). Mutable fields are guarded by mu;
// Registry hands out the same *Component for a given name for the life of
// a generation, so every subsystem shares one instance.
type Component struct {
	Name   string
	Recipe *Recipe
	Kind   Kind

	mu            sync.RWMutex
	explicitDeps  []Dependency
	computedDeps  []Dependency
	state         State
	statusMessage string
	errored       bool
	brokenReason  string
	generation    uint64
	handler       Handler
}

// NewComponent constructs a Component in its initial New state.
func NewComponent(name string, recipe *Recipe, kind Kind) *Component {
	return &Component{
		Name:   name,
		Recipe: recipe,
		Kind:   kind,
		state:  StateNew,
	}
}

func (c *Component) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetState overwrites the state directly. Used by the registry when it
// synthesizes an error-component and by tests; normal transitions go
// through lifecycle.Machine.
func (c *Component) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Component) StatusMessage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusMessage
}

func (c *Component) SetStatusMessage(msg string) {
	if msg == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusMessage = msg
}

// Errored reports the sticky error flag (§3: "cleared only by a fresh
// install").
func (c *Component) Errored() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errored
}

func (c *Component) SetErrored(errored bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errored = errored
}

func (c *Component) BrokenReason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.brokenReason
}

func (c *Component) SetBrokenReason(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.brokenReason = reason
}

// ExplicitDeps returns the recipe-declared dependencies, set once at
// resolution time (postInject) and read under the component's read lock
// thereafter.
func (c *Component) ExplicitDeps() []Dependency {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.explicitDeps
}

// SetExplicitDeps atomically swaps the explicit dependency list. Called
// once by the registry during resolution.
func (c *Component) SetExplicitDeps(deps []Dependency) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.explicitDeps = deps
}

// ComputedDeps returns the resolved, de-duplicated, strictest-required-state
// dependency list the scheduler and lifecycle machine actually act on.
func (c *Component) ComputedDeps() []Dependency {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.computedDeps
}

func (c *Component) SetComputedDeps(deps []Dependency) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.computedDeps = deps
}

// Generation tags which graph generation created this instance (§3 reload
// semantics: "reload replaces the entire graph by creating a new
// generation").
func (c *Component) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

func (c *Component) SetGeneration(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation = gen
}

// Handler returns the in-process handler the registry instantiated for a
// CodeBacked component, or nil for a Generic one.
func (c *Component) Handler() Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handler
}

// SetHandler records the handler the registry built for this component via
// its recipe's declared class. Called once by Registry.locate.
func (c *Component) SetHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// DepsSatisfied reports whether every computed dependency currently meets
// its required state (the Running invariant in §3).
func (c *Component) DepsSatisfied() bool {
	for _, dep := range c.ComputedDeps() {
		if !dep.Component.State().Satisfies(dep.Required) {
			return false
		}
	}
	return true
}

// BlockingDependency returns the first computed dependency not yet in its
// required state, and true, or (Dependency{}, false) if every dependency is
// satisfied. Used for stuck diagnostics that need to name the blocking edge.
func (c *Component) BlockingDependency() (Dependency, bool) {
	for _, dep := range c.ComputedDeps() {
		if !dep.Component.State().Satisfies(dep.Required) {
			return dep, true
		}
	}
	return Dependency{}, false
}
