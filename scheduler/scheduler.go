// Package scheduler implements §4.G: it turns a registry.Registry's
// resolved dependency graph into a running set of lifecycle.Machines,
// issuing install actions in dependency order and wiring every
// transition back into its dependents so progress propagates without
// polling. Grounded on goscade's lifecycle.go Run/runComponent concurrent
// fan-out (errgroup-driven concurrent startup, signal-based graceful
// shutdown) adapted from its probe/run/teardown model to the richer
// explicit state machine lifecycle.Machine implements.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/edgecore/edged/component"
	"github.com/edgecore/edged/lifecycle"
	"github.com/edgecore/edged/registry"
	"github.com/edgecore/edged/shellrunner"
)

// StuckCheckInterval is how often the scheduler scans for components that
// haven't progressed, and StuckThreshold is how long a component may sit
// in a non-terminal, non-Running state before being logged as stuck.
const (
	StuckCheckInterval = 10 * time.Second
	StuckThreshold     = 30 * time.Second
)

// Scheduler drives a set of target components (and everything they
// transitively depend on) from New through to Running/Finished, and back
// down again on Stop.
type Scheduler struct {
	reg  *registry.Registry
	deps lifecycle.Deps
	sink lifecycle.Sink
	log  shellrunner.Logger

	mu         sync.Mutex
	machines   map[string]*lifecycle.Machine
	dependents map[string][]string
	sinceSeen  map[string]time.Time

	limiter *rate.Limiter
	runCtx  context.Context
}

// New builds a Scheduler. sink receives every transition for external
// observability (statussink); it may be nil.
func New(reg *registry.Registry, deps lifecycle.Deps, sink lifecycle.Sink, log shellrunner.Logger) *Scheduler {
	return &Scheduler{
		reg:        reg,
		deps:       deps,
		sink:       sink,
		log:        log,
		machines:   make(map[string]*lifecycle.Machine),
		dependents: make(map[string][]string),
		sinceSeen:  make(map[string]time.Time),
		limiter:    rate.NewLimiter(rate.Every(StuckCheckInterval), 1),
	}
}

// Start resolves every name in targets (and their transitive dependencies)
// through the registry, builds a Machine for each, and concurrently issues
// an install action to every one whose dependencies are already satisfied
// (the ready frontier). Later transitions cascade via OnTransition.
func (s *Scheduler) Start(ctx context.Context, targets []string) error {
	s.runCtx = ctx

	resolved := s.reg.LocateAll(targets...)
	all := s.collectAll(resolved)
	s.buildDependents(all)

	g, gctx := errgroup.WithContext(ctx)
	for _, comp := range all {
		name := comp.Name
		s.ensureMachine(comp).Start(ctx)
		g.Go(func() error {
			s.installOrNudge(name)
			return gctx.Err()
		})
	}
	go s.watchStuck(ctx)
	return g.Wait()
}

// collectAll walks the already-resolved computed-dependency graph
// reachable from roots and returns every component touched, deduplicated.
func (s *Scheduler) collectAll(roots []*component.Component) []*component.Component {
	seen := make(map[string]*component.Component)
	var walk func(c *component.Component)
	walk = func(c *component.Component) {
		if _, ok := seen[c.Name]; ok {
			return
		}
		seen[c.Name] = c
		for _, dep := range c.ComputedDeps() {
			walk(dep.Component)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	out := make([]*component.Component, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	return out
}

func (s *Scheduler) buildDependents(all []*component.Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range all {
		for _, dep := range c.ComputedDeps() {
			s.dependents[dep.Component.Name] = append(s.dependents[dep.Component.Name], c.Name)
		}
	}
}

func (s *Scheduler) ensureMachine(comp *component.Component) *lifecycle.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.machines[comp.Name]; ok {
		return m
	}
	deps := s.deps
	deps.Sink = s
	m := lifecycle.New(comp, deps)
	s.machines[comp.Name] = m
	return m
}

// OnTransition implements lifecycle.Sink: forwards to the external sink
// and nudges every dependent so progress and regressions propagate
// without any component polling another's state.
func (s *Scheduler) OnTransition(name string, from, to component.State, reason string) {
	s.mu.Lock()
	s.sinceSeen[name] = time.Time{} // reset stuck tracking; see watchStuck
	dependents := append([]string(nil), s.dependents[name]...)
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.OnTransition(name, from, to, reason)
	}
	for _, dep := range dependents {
		s.installOrNudge(dep)
	}
}

// installOrNudge posts an install action to a component still in New once
// its dependencies are satisfied, or notifies an already-progressing one
// that its dependencies changed (covering both advancement out of
// AwaitingStartup and regression out of Running, §4.D).
func (s *Scheduler) installOrNudge(name string) {
	s.mu.Lock()
	m, ok := s.machines[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	comp := m.Component()
	switch comp.State() {
	case component.StateNew, component.StateErrored:
		if comp.DepsSatisfied() {
			m.Post(lifecycle.ActionInstall)
			return
		}
		// Not ready yet: still give the machine a chance to notice an
		// already-broken dependency (scenario S2) instead of sitting in
		// New/Errored forever waiting for a transition that never comes.
		m.NotifyDepsChanged()
	default:
		m.NotifyDepsChanged()
	}
}

// Stop closes every managed component in reverse dependency order,
// waiting at each step for that component's dependents to reach a
// terminal state first (§4.G shutdown algorithm).
func (s *Scheduler) Stop(order []string) {
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		s.mu.Lock()
		m, ok := s.machines[name]
		dependents := append([]string(nil), s.dependents[name]...)
		s.mu.Unlock()
		if !ok {
			continue
		}
		s.waitDependentsTerminal(dependents)
		m.Post(lifecycle.ActionClose)
	}
}

func (s *Scheduler) waitDependentsTerminal(dependents []string) {
	deadline := time.After(s.deps.ShutdownTimeout + StuckThreshold)
	for {
		allTerminal := true
		for _, dep := range dependents {
			s.mu.Lock()
			m, ok := s.machines[dep]
			s.mu.Unlock()
			if ok && !m.Component().State().Terminal() {
				allTerminal = false
				break
			}
		}
		if allTerminal {
			return
		}
		select {
		case <-deadline:
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// watchStuck periodically logs any component that hasn't transitioned in
// StuckThreshold, throttled to at most one report per StuckCheckInterval
// so a large stalled graph doesn't flood the log.
func (s *Scheduler) watchStuck(ctx context.Context) {
	ticker := time.NewTicker(StuckCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reportStuck()
		}
	}
}

func (s *Scheduler) reportStuck() {
	if !s.limiter.Allow() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for name, m := range s.machines {
		state := m.Component().State()
		if state.Terminal() || state == component.StateRunning {
			s.sinceSeen[name] = time.Time{}
			continue
		}
		first, seen := s.sinceSeen[name]
		if !seen || first.IsZero() {
			s.sinceSeen[name] = now
			continue
		}
		if now.Sub(first) >= StuckThreshold && s.log != nil {
			if dep, blocked := m.Component().BlockingDependency(); blocked {
				s.log.Errorf("component=%s stuck in %s for %s blocked_on=%s requires=%s",
					name, state, now.Sub(first).Round(time.Second), dep.Component.Name, dep.Required)
			} else {
				s.log.Errorf("component=%s stuck in %s for %s", name, state, now.Sub(first).Round(time.Second))
			}
		}
	}
}
