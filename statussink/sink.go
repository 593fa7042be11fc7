// Package statussink implements §6's StatusSink: the observer interface
// every transition and overall-health change is published to, plus the
// concrete sinks (log, systemd readiness, fan-out) edged ships with.
package statussink

import (
	"sync"

	"github.com/edgecore/edged/component"
)

// Overall is Healthy iff every tracked component is Running/Finished; any
// other state, Errored and Broken included, makes it Unhealthy.
type Overall int

const (
	Healthy Overall = iota
	Unhealthy
)

func (o Overall) String() string {
	if o == Healthy {
		return "Healthy"
	}
	return "Unhealthy"
}

// Sink is the full StatusSink surface: onTransition plus onOverallChange.
// lifecycle.Sink (just OnTransition) is a subset of it, so any Sink can be
// handed to lifecycle.Deps/scheduler.New directly.
type Sink interface {
	OnTransition(componentName string, from, to component.State, reason string)
	OnOverallChange(overall Overall)
}

// Logger is the narrow logging surface LogSink needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// LogSink logs every transition and overall change at Info/Warn level.
type LogSink struct {
	log Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(log Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) OnTransition(name string, from, to component.State, reason string) {
	if reason != "" {
		s.log.Infof("component=%s %s -> %s (%s)", name, from, to, reason)
		return
	}
	s.log.Infof("component=%s %s -> %s", name, from, to)
}

func (s *LogSink) OnOverallChange(overall Overall) {
	if overall == Healthy {
		s.log.Infof("overall=%s", overall)
		return
	}
	s.log.Warnf("overall=%s", overall)
}

// MultiSink fans every call out to every child sink, in order.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds a MultiSink over sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) OnTransition(name string, from, to component.State, reason string) {
	for _, s := range m.sinks {
		s.OnTransition(name, from, to, reason)
	}
}

func (m *MultiSink) OnOverallChange(overall Overall) {
	for _, s := range m.sinks {
		s.OnOverallChange(overall)
	}
}

// OverallTracker wraps a Sink and additionally computes Overall after every
// transition: Healthy iff every tracked component is Running or Finished.
// It implements lifecycle.Sink itself, so it can sit directly in front of
// the wrapped Sink as the scheduler's injected sink.
type OverallTracker struct {
	next Sink

	mu     sync.Mutex
	states map[string]component.State
	last   Overall
	primed bool
}

// NewOverallTracker builds an OverallTracker forwarding to next.
func NewOverallTracker(next Sink) *OverallTracker {
	return &OverallTracker{next: next, states: make(map[string]component.State)}
}

func (t *OverallTracker) OnTransition(name string, from, to component.State, reason string) {
	t.next.OnTransition(name, from, to, reason)

	t.mu.Lock()
	t.states[name] = to
	overall := t.computeLocked()
	changed := !t.primed || overall != t.last
	t.primed = true
	t.last = overall
	t.mu.Unlock()

	if changed {
		t.next.OnOverallChange(overall)
	}
}

// computeLocked implements §4's Overall: Healthy iff every tracked
// component has converged to Running or Finished; anything still
// progressing (New/Installing/AwaitingStartup/Starting/Stopping) or stuck
// (Errored/Broken) makes the whole graph Unhealthy.
func (t *OverallTracker) computeLocked() Overall {
	for _, s := range t.states {
		if s != component.StateRunning && s != component.StateFinished {
			return Unhealthy
		}
	}
	return Healthy
}

// Overall returns the last computed value.
func (t *OverallTracker) Overall() Overall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
