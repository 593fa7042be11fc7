// Package orchestrator wires registry, scheduler, configstore, recipesource
// and statussink into one Supervisor: the thing cmd/edged drives. It also
// owns generation/reload semantics (§3: "reload replaces the entire graph
// by creating a new generation"), stamping each generation with a
// google/uuid id the way memorizer stamps its own reload events.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/edgecore/edged/component"
	"github.com/edgecore/edged/depgraph"
	"github.com/edgecore/edged/lifecycle"
	"github.com/edgecore/edged/registry"
	"github.com/edgecore/edged/scheduler"
	"github.com/edgecore/edged/shellrunner"
)

// Logger is the narrow logging surface the orchestrator needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Reloadable is the subset of recipesource.FilesystemSource/configstore.Store
// the orchestrator calls before each (re)build.
type Reloadable interface {
	Reload() error
}

// Supervisor is the top-level object cmd/edged drives: it owns one
// registry generation and the scheduler running against it.
type Supervisor struct {
	reg     *registry.Registry
	recipes Reloadable
	config  Reloadable
	deps    lifecycle.Deps
	sink    lifecycle.Sink
	log     Logger
	targets []string

	mu         sync.Mutex
	generation uuid.UUID
	sched      *scheduler.Scheduler
	order      []string
	runningCtx context.Context
	cancelRun  context.CancelFunc
}

// New builds a Supervisor. sink may be nil (scheduler forwards transitions
// unconditionally otherwise).
func New(reg *registry.Registry, recipes, config Reloadable, deps lifecycle.Deps, sink lifecycle.Sink, log Logger) *Supervisor {
	return &Supervisor{
		reg:     reg,
		recipes: recipes,
		config:  config,
		deps:    deps,
		sink:    sink,
		log:     log,
	}
}

// Generation returns the id of the currently running graph build, the zero
// UUID before the first Start.
func (s *Supervisor) Generation() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Start (re)builds the dependency graph from the current recipes/config and
// launches the scheduler against targets. Calling Start again (Reload)
// cancels the previous run, starts a fresh registry generation, and
// restarts the scheduler from the new graph.
func (s *Supervisor) Start(ctx context.Context, targets []string) error {
	s.mu.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.targets = targets
	s.generation = uuid.New()
	gen := s.generation
	s.mu.Unlock()

	if err := s.reloadSources(); err != nil {
		return fmt.Errorf("orchestrator: reload sources: %w", err)
	}

	s.reg.NewGeneration()

	if err := s.checkCycles(targets); err != nil {
		s.logf("generation=%s cycle detected: %v", gen, err)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	sched := scheduler.New(s.reg, s.deps, s.sink, asSchedulerLogger(s.log))

	s.mu.Lock()
	s.sched = sched
	s.runningCtx = runCtx
	s.cancelRun = cancel
	s.mu.Unlock()

	s.logf("generation=%s starting targets=%v", gen, targets)
	return sched.Start(runCtx, targets)
}

// Reload is Start under a name that matches the domain vocabulary (§3):
// tearing down the old graph and building a fresh generation from whatever
// the recipe/config sources now contain.
func (s *Supervisor) Reload(ctx context.Context) error {
	s.mu.Lock()
	targets := s.targets
	s.mu.Unlock()
	return s.Start(ctx, targets)
}

// checkCycles locates every target (and transitively its dependencies)
// and runs TopoOrder on the accumulated graph, translating a CycleError
// into the Errored state of the node it names, the last-inserted node left
// unresolved by the sort (scenario S6),
// rather than leaving the registry's cycle-tolerant locate() loop silent.
func (s *Supervisor) checkCycles(targets []string) error {
	resolved := s.reg.LocateAll(targets...)
	seen := make(map[string]*component.Component)
	// order is the walk's post-order: every component after its
	// dependencies, so Stop can close them in reverse.
	var order []string
	var walk func(c *component.Component)
	walk = func(c *component.Component) {
		if _, ok := seen[c.Name]; ok {
			return
		}
		seen[c.Name] = c
		for _, dep := range c.ComputedDeps() {
			walk(dep.Component)
		}
		order = append(order, c.Name)
	}
	for _, c := range resolved {
		walk(c)
	}

	s.mu.Lock()
	s.order = order
	s.mu.Unlock()

	_, err := s.reg.Graph().TopoOrder()
	if err == nil {
		return nil
	}
	cycleErr, ok := err.(*depgraph.CycleError)
	if !ok {
		return err
	}
	if c, ok := seen[cycleErr.Node]; ok {
		c.SetState(component.StateErrored)
		c.SetErrored(true)
		c.SetStatusMessage(cycleErr.Error())
	}
	return cycleErr
}

// Stop closes every component the last Start launched, in reverse
// dependency order, then cancels the run context.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	sched := s.sched
	order := s.order
	cancel := s.cancelRun
	s.mu.Unlock()

	if sched != nil {
		sched.Stop(order)
	}
	if cancel != nil {
		cancel()
	}
}

// Component returns the current generation's Component for name via
// Registry.Locate, so a name the last Start did not touch is located on
// demand (a Broken placeholder when it has no recipe); the bool is false
// only for a nil result.
func (s *Supervisor) Component(name string) (*component.Component, bool) {
	c := s.reg.Locate(name)
	if c == nil {
		return nil, false
	}
	return c, true
}

// Components returns every component the last Start/Reload touched, in the
// order checkCycles walked them, for status reporting.
func (s *Supervisor) Components() []*component.Component {
	s.mu.Lock()
	order := append([]string(nil), s.order...)
	s.mu.Unlock()

	out := make([]*component.Component, 0, len(order))
	for _, name := range order {
		if c, ok := s.Component(name); ok {
			out = append(out, c)
		}
	}
	return out
}

// Running reports whether the current generation's run context is still
// live (Start was called and neither Stop nor a newer Start has fired).
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	ctx := s.runningCtx
	s.mu.Unlock()
	return ctx != nil && ctx.Err() == nil
}

// Targets returns the names this Supervisor was last started with.
func (s *Supervisor) Targets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.targets...)
}

func (s *Supervisor) reloadSources() error {
	if s.recipes != nil {
		if err := s.recipes.Reload(); err != nil {
			return err
		}
	}
	if s.config != nil {
		if err := s.config.Reload(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) logf(format string, args ...interface{}) {
	if s.log != nil {
		s.log.Infof(format, args...)
	}
}

// asSchedulerLogger adapts Logger down to shellrunner.Logger (Infof/Errorf),
// which scheduler.New expects; Logger is already a superset.
func asSchedulerLogger(l Logger) shellrunner.Logger {
	if l == nil {
		return nil
	}
	return l
}
