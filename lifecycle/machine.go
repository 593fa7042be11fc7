// Package lifecycle implements the per-component state machine of §4.D: a
// single-goroutine serial executor that runs install/startup/run/shutdown
// steps through a shellrunner.Runner and reacts to dependency changes,
// timer fires, and external install/close actions. Grounded on goscade's
// lifecycle.go runComponent/Run concurrency pattern: one event loop per
// component, no lock held across an I/O wait, context cancellation for
// teardown.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edgecore/edged/component"
	"github.com/edgecore/edged/periodicity"
	"github.com/edgecore/edged/platform"
	"github.com/edgecore/edged/shellrunner"
	"github.com/edgecore/edged/stepgate"
)

// nowFunc is overridden in tests that need a fake clock, the same pattern
// goscade's tests use fake loggers for: an injectable seam instead of a
// mocking framework.
var nowFunc = time.Now

// Sink receives every state transition a Machine makes, for the status
// surface and for the scheduler's own bookkeeping (§3: "state transitions
// publish to StatusSink").
type Sink interface {
	OnTransition(componentName string, from, to component.State, reason string)
}

// Action is an external request posted to a Machine.
type Action int

const (
	ActionInstall Action = iota
	ActionClose
)

type eventKind int

const (
	evAction eventKind = iota
	evDepsChanged
	evStepResult
	evChildExit
	evTimerFire
)

type event struct {
	kind   eventKind
	action Action
	ok     bool
	err    error
	code   int
}

// MetricsRecorder receives install/ready/stop durations and error counts
// for every component a Machine drives, matching metrics.InMemory's
// surface structurally so that package need not be imported here.
type MetricsRecorder interface {
	InstallStarted(component string)
	InstallFinished(component string, d time.Duration)
	ReadyDuration(component string, d time.Duration)
	StopDuration(component string, d time.Duration)
	ComponentError(component, errorType string)
}

// Deps are the collaborators a Machine drives steps through.
type Deps struct {
	Runner          *shellrunner.Runner
	Selector        *platform.Selector
	Gate            *stepgate.Gate
	Sink            Sink
	Log             shellrunner.Logger
	Metrics         MetricsRecorder
	ShutdownTimeout time.Duration
}

// Machine owns one Component's state transitions. All mutation happens on
// a single goroutine reading from events, so at most one tick is ever in
// flight (§5, property 5) except for the deliberate overlap between a
// backgrounded `run` child and its owner's `shutdown` step.
type Machine struct {
	comp *component.Component
	deps Deps

	events chan event
	done   chan struct{}
	ctx    context.Context

	installRetried bool
	startupRetried bool
	wasFinished    bool // snapshot taken on entering Stopping
	hasTimer       bool
	timer          *periodicity.Timer

	createdAt      time.Time
	installStarted time.Time
	stopStarted    time.Time
	readyRecorded  bool
}

// New builds a Machine for comp. Start must be called before any event is
// posted.
func New(comp *component.Component, deps Deps) *Machine {
	if deps.ShutdownTimeout <= 0 {
		deps.ShutdownTimeout = shellrunner.DefaultShutdownTimeout
	}
	m := &Machine{
		comp:      comp,
		deps:      deps,
		events:    make(chan event, 16),
		done:      make(chan struct{}),
		createdAt: nowFunc(),
	}
	if spec := comp.Recipe.Lifecycle.Timer; spec != nil {
		m.hasTimer = true
		m.timer = periodicity.New(spec.Period, spec.Fuzz, m.onTimerFire)
	}
	return m
}

// Start runs the event loop until ctx is canceled.
func (m *Machine) Start(ctx context.Context) {
	m.ctx = ctx
	go m.loop(ctx)
}

// Post queues an external action (install or close).
func (m *Machine) Post(action Action) {
	m.send(event{kind: evAction, action: action})
}

// Component returns the Component this Machine drives, so callers (the
// scheduler) can read its current state and computed dependencies without
// threading a parallel name->*Component index of their own.
func (m *Machine) Component() *component.Component {
	return m.comp
}

// NotifyDepsChanged tells the machine one of its dependencies changed
// state, so it can advance out of AwaitingStartup or fall back out of
// Running.
func (m *Machine) NotifyDepsChanged() {
	m.send(event{kind: evDepsChanged})
}

func (m *Machine) send(ev event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func (m *Machine) loop(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			m.handle(ctx, ev)
		}
	}
}

func (m *Machine) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evAction:
		switch ev.action {
		case ActionInstall:
			m.tryInstall(ctx)
		case ActionClose:
			m.tryClose(ctx)
		}
	case evDepsChanged:
		m.onDepsChanged(ctx)
	case evStepResult:
		m.onStepResult(ctx, ev.ok, ev.err)
	case evChildExit:
		m.onChildExit(ctx, ev.code, ev.err)
	case evTimerFire:
		m.onTimerFireLocked(ctx)
	}
}

// transition moves the component to newState and notifies the sink,
// matching §4.D's row-by-row table.
func (m *Machine) transition(newState component.State, reason string) {
	old := m.comp.State()
	m.comp.SetState(newState)
	if reason != "" {
		m.comp.SetStatusMessage(reason)
	}
	if m.deps.Sink != nil {
		m.deps.Sink.OnTransition(m.comp.Name, old, newState, reason)
	}
}

func (m *Machine) logf(format string, args ...interface{}) {
	if m.deps.Log != nil {
		m.deps.Log.Infof(format, args...)
	}
}

// --- install -----------------------------------------------------------

func (m *Machine) tryInstall(ctx context.Context) {
	switch m.comp.State() {
	case component.StateNew:
		if !m.comp.DepsSatisfied() {
			return
		}
		m.beginInstall(ctx)
	case component.StateErrored:
		m.comp.SetErrored(false)
		m.installRetried = false
		m.beginInstall(ctx)
	default:
		// install only applies from New or Errored; any other state ignores it.
	}
}

func (m *Machine) beginInstall(ctx context.Context) {
	m.installStarted = nowFunc()
	if m.deps.Metrics != nil {
		m.deps.Metrics.InstallStarted(m.comp.Name)
	}
	m.transition(component.StateInstalling, "")
	m.runStep(ctx, "install")
}

func (m *Machine) onInstallResult(ctx context.Context, ok bool, err error) {
	if m.deps.Metrics != nil {
		m.deps.Metrics.InstallFinished(m.comp.Name, nowFunc().Sub(m.installStarted))
	}
	if ok {
		m.transition(component.StateAwaitingStartup, "")
		m.maybeAdvanceToStarting(ctx)
		return
	}
	if !m.installRetried {
		m.installRetried = true
		m.transition(component.StateErrored, fmt.Sprintf("install failed, retrying: %v", err))
		m.recordError("install_failed")
		m.comp.SetErrored(false)
		m.beginInstall(ctx)
		return
	}
	m.comp.SetBrokenReason("install step failed twice")
	m.transition(component.StateBroken, fmt.Sprintf("install failed after retry: %v", err))
	m.recordError("install_failed")
}

// recordError increments Deps.Metrics' error counter for this component, a
// no-op when no metrics recorder is configured.
func (m *Machine) recordError(errorType string) {
	if m.deps.Metrics != nil {
		m.deps.Metrics.ComponentError(m.comp.Name, errorType)
	}
}

// recordReadyOnce records the New->Running/Finished duration the first time
// a component reaches either state; later Running/Finished transitions
// (e.g. after a timer re-fire) don't re-measure startup latency.
func (m *Machine) recordReadyOnce() {
	if m.readyRecorded || m.deps.Metrics == nil {
		return
	}
	m.readyRecorded = true
	m.deps.Metrics.ReadyDuration(m.comp.Name, nowFunc().Sub(m.createdAt))
}

// --- startup -------------------------------------------------------------

func (m *Machine) maybeAdvanceToStarting(ctx context.Context) {
	if m.comp.State() != component.StateAwaitingStartup {
		return
	}
	if !m.comp.DepsSatisfied() {
		return
	}
	m.transition(component.StateStarting, "")
	if m.comp.Kind == component.KindCodeBacked {
		m.runHandler(ctx)
		return
	}
	m.runStep(ctx, "startup")
}

// runHandler drives a CodeBacked component's entire startup/run lifetime
// through its instantiated Handler instead of a shell startup/run step.
// Handler.Run blocks for as long as the component is alive, signalling
// readiness once via readinessProbe; that signal is routed through
// onStartupResult exactly like a shell startup step's result, and the
// eventual return from Run is routed through onChildExit exactly like a
// backgrounded shell run step exiting.
func (m *Machine) runHandler(ctx context.Context) {
	handler := m.comp.Handler()
	if handler == nil {
		m.send(event{kind: evStepResult, ok: false, err: fmt.Errorf("component %s has no instantiated handler", m.comp.Name)})
		return
	}
	go func() {
		var probed sync.Once
		err := handler.Run(ctx, func(cause error) {
			probed.Do(func() {
				m.send(event{kind: evStepResult, ok: cause == nil, err: cause})
			})
		})
		probed.Do(func() {
			// Run returned without ever signalling readiness: that's a
			// startup failure, not a silent drop.
			m.send(event{kind: evStepResult, ok: err == nil, err: err})
		})
		if m.comp.State() == component.StateRunning {
			m.send(event{kind: evChildExit, code: 0, err: err})
		}
	}()
}

func (m *Machine) onStartupResult(ctx context.Context, ok bool, err error) {
	if ok {
		if m.hasTimer {
			m.transition(component.StateFinished, "")
			m.recordReadyOnce()
			m.timer.Start()
			return
		}
		m.transition(component.StateRunning, "")
		m.recordReadyOnce()
		// A CodeBacked component's Handler.Run is already backgrounded by
		// runHandler and carries the component for its whole lifetime; only
		// a Generic component still needs a separate backgrounded run step.
		if m.comp.Kind != component.KindCodeBacked {
			m.runBackground(ctx)
		}
		return
	}
	if !m.startupRetried {
		m.startupRetried = true
		m.transition(component.StateErrored, fmt.Sprintf("startup failed, retrying: %v", err))
		m.recordError("startup_failed")
		m.transition(component.StateStarting, "")
		if m.comp.Kind == component.KindCodeBacked {
			m.runHandler(ctx)
		} else {
			m.runStep(ctx, "startup")
		}
		return
	}
	// Stays Errored until an external install action retries it (§7).
	m.transition(component.StateErrored, fmt.Sprintf("startup failed after retry: %v", err))
	m.recordError("startup_failed")
}

// --- run / timer ---------------------------------------------------------

func (m *Machine) runBackground(ctx context.Context) {
	node, exists := m.comp.Recipe.Lifecycle.Steps["run"]
	if !exists {
		return
	}
	picked, ok := m.deps.Selector.PickByOS(node)
	if !ok {
		return
	}
	script, _, skip := m.scriptOf(ctx, picked)
	if skip || script == "" {
		return
	}
	_, err := m.deps.Runner.Run(ctx, "run", script, m.comp, m.comp.Recipe.Setenv, func(code int, err error) {
		m.send(event{kind: evChildExit, code: code, err: err})
	})
	if err != nil {
		m.logf("component=%s run step failed to start: %v", m.comp.Name, err)
	}
}

func (m *Machine) onChildExit(_ context.Context, code int, err error) {
	if m.comp.State() != component.StateRunning {
		return
	}
	if code == 0 && err == nil {
		m.transition(component.StateFinished, "")
		return
	}
	m.transition(component.StateErrored, fmt.Sprintf("run exited %d: %v", code, err))
	m.recordError("run_failed")
}

// onTimerFire is periodicity.Timer's onFire callback: it only posts an
// event, the same discipline every other external trigger follows, so the
// actual transition still happens on the single loop goroutine.
func (m *Machine) onTimerFire() {
	m.send(event{kind: evTimerFire})
}

func (m *Machine) onTimerFireLocked(ctx context.Context) {
	if m.comp.State() != component.StateFinished {
		return // coalesced: a fire while still Running (or anything else) is dropped.
	}
	m.transition(component.StateRunning, "timer fire")
	m.runBackground(ctx)
}

// --- dependency changes ---------------------------------------------------

func (m *Machine) onDepsChanged(ctx context.Context) {
	if name, broken := m.brokenDep(); broken {
		switch m.comp.State() {
		case component.StateNew, component.StateInstalling, component.StateAwaitingStartup, component.StateStarting:
			m.transition(component.StateErrored, fmt.Sprintf("dep broken: %s", name))
			m.recordError("dependency_broken")
			return
		}
	}

	switch m.comp.State() {
	case component.StateAwaitingStartup:
		m.maybeAdvanceToStarting(ctx)
	case component.StateRunning:
		if !m.comp.DepsSatisfied() {
			m.beginStopping(ctx, "dependency dropped below required state")
		}
	}
}

// brokenDep reports the name of a dependency stuck in Broken, which can
// never satisfy anything, so the dependent should stop waiting and move to
// Errored itself rather than sit in AwaitingStartup forever (scenario S2).
func (m *Machine) brokenDep() (string, bool) {
	for _, dep := range m.comp.ComputedDeps() {
		if dep.Component.State() == component.StateBroken {
			return dep.Component.Name, true
		}
	}
	return "", false
}

// --- close / shutdown ------------------------------------------------------

func (m *Machine) tryClose(ctx context.Context) {
	switch m.comp.State() {
	case component.StateNew, component.StateErrored, component.StateBroken:
		return
	default:
		m.beginStopping(ctx, "close requested")
	}
}

func (m *Machine) beginStopping(ctx context.Context, reason string) {
	if m.comp.State() == component.StateStopping {
		return
	}
	m.wasFinished = m.comp.State() == component.StateFinished
	m.stopStarted = nowFunc()
	m.transition(component.StateStopping, reason)
	if m.hasTimer {
		m.timer.Stop()
	}
	grace := m.deps.ShutdownTimeout
	if node, ok := m.comp.Recipe.Lifecycle.Steps["shutdown"]; ok {
		if picked, ok := m.deps.Selector.PickByOS(node); ok && picked.Kind == component.NodeTopics && picked.Topics.Timeout > 0 {
			grace = picked.Topics.Timeout
		}
	}
	m.deps.Runner.Stop(m.comp.Name, grace)
	m.runStep(ctx, "shutdown")
}

func (m *Machine) onShutdownResult(_ context.Context, ok bool, err error) {
	if m.deps.Metrics != nil {
		m.deps.Metrics.StopDuration(m.comp.Name, nowFunc().Sub(m.stopStarted))
	}
	if !ok {
		m.logf("component=%s shutdown step failed: %v", m.comp.Name, err)
		m.recordError("shutdown_failed")
	}
	m.installRetried = false
	m.startupRetried = false
	if m.wasFinished {
		m.transition(component.StateFinished, "")
		return
	}
	m.transition(component.StateNew, "")
}

// --- step execution --------------------------------------------------------

// runStep resolves and runs the named synchronous step (install, startup,
// or shutdown) and routes its result back through the event loop, keyed on
// the state that was active when it started.
func (m *Machine) runStep(ctx context.Context, stepName string) {
	node, exists := m.comp.Recipe.Lifecycle.Steps[stepName]
	if !exists {
		m.send(event{kind: evStepResult, ok: true})
		return
	}
	picked, ok := m.deps.Selector.PickByOS(node)
	if !ok {
		m.send(event{kind: evStepResult, ok: true})
		return
	}
	script, timeout, skip := m.scriptOf(ctx, picked)
	if skip || script == "" {
		m.send(event{kind: evStepResult, ok: true})
		return
	}

	go func() {
		stepCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		result, err := m.deps.Runner.Run(stepCtx, stepName, script, m.comp, m.comp.Recipe.Setenv, nil)
		m.send(event{kind: evStepResult, ok: result == shellrunner.Ok, err: err})
	}()
}

// scriptOf evaluates a resolved Node's skipif/doif and returns its script,
// timeout, and whether it should be skipped. Errors from gate evaluation
// are logged and treated as "do run" to avoid silently dropping a step.
func (m *Machine) scriptOf(ctx context.Context, n component.Node) (script string, timeout time.Duration, skip bool) {
	switch n.Kind {
	case component.NodeScript:
		return n.Script, 0, false
	case component.NodeTopics:
		if m.deps.Gate != nil {
			shouldSkip, err := m.deps.Gate.ShouldSkip(ctx, n.Topics)
			if err != nil {
				m.logf("component=%s skipif/doif evaluation failed: %v", m.comp.Name, err)
			} else if shouldSkip {
				return "", 0, true
			}
		}
		return n.Topics.Script, n.Topics.Timeout, false
	default:
		return "", 0, true
	}
}

// onStepResult routes a completed synchronous step to the handler for
// whichever transition state was active: Installing -> install,
// Starting -> startup, Stopping -> shutdown. Results from a step whose
// owning state has since changed (e.g. a stale timeout firing after the
// machine moved on) are dropped.
func (m *Machine) onStepResult(ctx context.Context, ok bool, err error) {
	switch m.comp.State() {
	case component.StateInstalling:
		m.onInstallResult(ctx, ok, err)
	case component.StateStarting:
		m.onStartupResult(ctx, ok, err)
	case component.StateStopping:
		m.onShutdownResult(ctx, ok, err)
	}
}

