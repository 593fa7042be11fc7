// Package periodicity drives the optional per-component timer declared by
// lifecycle.timer.period/fuzz (§4.C).
package periodicity

import (
	"math/rand"
	"sync"
	"time"
)

// Clock abstracts time.AfterFunc for deterministic tests.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Cancelable
}

// Cancelable is the subset of *time.Timer a Clock hands back.
type Cancelable interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Cancelable {
	return time.AfterFunc(d, f)
}

// Timer fires onFire after period*(1 +/- fuzz) and re-arms itself until
// Stop is called. It does not know or care about component state -- the
// fire-coalescing rule ("if still Running when timer fires, the fire is
// dropped", §4.C) is the caller's responsibility, decided inside onFire.
type Timer struct {
	period time.Duration
	fuzz   float64
	onFire func()
	clock  Clock
	rng    *rand.Rand

	mu      sync.Mutex
	current Cancelable
	stopped bool
}

// Option configures a Timer at construction.
type Option func(*Timer)

// WithClock overrides the real-time clock, used by tests to fire
// deterministically instead of waiting on wall-clock jitter.
func WithClock(c Clock) Option {
	return func(t *Timer) { t.clock = c }
}

// WithRand overrides the jitter source for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(t *Timer) { t.rng = r }
}

// New builds a Timer. fuzz must be in [0,1]; values outside are clamped.
func New(period time.Duration, fuzz float64, onFire func(), opts ...Option) *Timer {
	if fuzz < 0 {
		fuzz = 0
	}
	if fuzz > 1 {
		fuzz = 1
	}
	t := &Timer{
		period: period,
		fuzz:   fuzz,
		onFire: onFire,
		clock:  realClock{},
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start arms the first fire.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.arm()
}

// arm must be called with t.mu held.
func (t *Timer) arm() {
	t.current = t.clock.AfterFunc(t.next(), t.fire)
}

func (t *Timer) next() time.Duration {
	jitter := 1 + t.fuzz*(2*t.rng.Float64()-1)
	d := time.Duration(float64(t.period) * jitter)
	if d < 0 {
		d = 0
	}
	return d
}

func (t *Timer) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.arm()
	t.mu.Unlock()

	t.onFire()
}

// Stop disarms the timer; no further fires occur afterward, per §4.C and
// §5's "Timers are disarmed synchronously before shutdown steps run."
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.current != nil {
		t.current.Stop()
	}
}
