// Package metrics implements an in-memory metrics collector for component
// lifecycle timings and errors, adapted from goscade's DefaultMetrics to
// track per-component install, ready (New to Running/Finished) and stop
// durations plus error counts, instead of goscade's single probe-to-ready
// duration.
package metrics

import (
	"sync"
	"time"
)

// Recorder is the narrow surface lifecycle.Machine drives; Deps.Metrics
// accepts anything satisfying it (nil is fine and is skipped).
type Recorder interface {
	InstallStarted(component string)
	InstallFinished(component string, d time.Duration)
	ReadyDuration(component string, d time.Duration)
	StopDuration(component string, d time.Duration)
	ComponentError(component, errorType string)
}

// InMemory is a simple in-memory metrics collector, the direct analogue of
// goscade's DefaultMetrics, tracking edged's richer per-step timings.
type InMemory struct {
	mu sync.RWMutex

	installStart    map[string]time.Time
	installDuration map[string]time.Duration
	readyDuration   map[string]time.Duration
	stopDuration    map[string]time.Duration
	errors          map[string]map[string]int
}

// New creates an InMemory metrics collector.
func New() *InMemory {
	return &InMemory{
		installStart:    make(map[string]time.Time),
		installDuration: make(map[string]time.Duration),
		readyDuration:   make(map[string]time.Duration),
		stopDuration:    make(map[string]time.Duration),
		errors:          make(map[string]map[string]int),
	}
}

// InstallStarted records when a component entered Installing.
func (m *InMemory) InstallStarted(component string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installStart[component] = time.Now()
}

// InstallFinished records how long the install step took.
func (m *InMemory) InstallFinished(component string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installDuration[component] = d
}

// ReadyDuration records how long a component took to reach Running/Finished
// from New.
func (m *InMemory) ReadyDuration(component string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readyDuration[component] = d
}

// StopDuration records how long a component's shutdown step took.
func (m *InMemory) StopDuration(component string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopDuration[component] = d
}

// ComponentError increments the count for (component, errorType).
func (m *InMemory) ComponentError(component, errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors[component] == nil {
		m.errors[component] = make(map[string]int)
	}
	m.errors[component][errorType]++
}

// ErrorCount returns the recorded count for (component, errorType).
func (m *InMemory) ErrorCount(component, errorType string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if errs, ok := m.errors[component]; ok {
		return errs[errorType]
	}
	return 0
}

// ReadyDurationOf returns the recorded ready duration for component, if any.
func (m *InMemory) ReadyDurationOf(component string) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.readyDuration[component]
	return d, ok
}

// Snapshot returns a point-in-time copy of the collected durations and
// error counts.
func (m *InMemory) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"install_durations": copyDurations(m.installDuration),
		"ready_durations":   copyDurations(m.readyDuration),
		"stop_durations":    copyDurations(m.stopDuration),
		"errors":            copyErrors(m.errors),
	}
}

func copyDurations(src map[string]time.Duration) map[string]time.Duration {
	out := make(map[string]time.Duration, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func copyErrors(src map[string]map[string]int) map[string]map[string]int {
	out := make(map[string]map[string]int, len(src))
	for k, v := range src {
		inner := make(map[string]int, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		out[k] = inner
	}
	return out
}
