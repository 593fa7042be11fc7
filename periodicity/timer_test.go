package periodicity

import (
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock fires immediately and records scheduled durations so tests run
// instantly instead of waiting on wall-clock timers.
type fakeClock struct {
	scheduled []time.Duration
}

type fakeCancelable struct{ stopped *bool }

func (f *fakeCancelable) Stop() bool {
	*f.stopped = true
	return true
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Cancelable {
	c.scheduled = append(c.scheduled, d)
	stopped := false
	go f()
	return &fakeCancelable{stopped: &stopped}
}

func TestTimer_FiresAndReArms(t *testing.T) {
	var fires int32
	fired := make(chan struct{}, 10)
	clock := &fakeClock{}

	tm := New(time.Second, 0, func() {
		atomic.AddInt32(&fires, 1)
		fired <- struct{}{}
	}, WithClock(clock), WithRand(rand.New(rand.NewSource(1))))

	tm.Start()
	<-fired
	<-fired // re-armed automatically
	tm.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&fires), int32(2))
}

func TestTimer_StopPreventsFurtherFires(t *testing.T) {
	var fires int32
	tm := New(time.Hour, 0, func() {
		atomic.AddInt32(&fires, 1)
	})
	tm.Stop() // stop before Start ever arms it
	tm.Start()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fires))
}

func TestTimer_NextAppliesFuzzWithinBounds(t *testing.T) {
	tm := New(100*time.Millisecond, 0.5, func() {}, WithRand(rand.New(rand.NewSource(42))))
	for i := 0; i < 100; i++ {
		d := tm.next()
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

// Property 7: no more than ceil(t/p)+1 fires occur in wall-time t, when
// using zero fuzz on the real clock over a short deterministic window.
func TestTimer_CoalescingBudget(t *testing.T) {
	var fires int32
	period := 20 * time.Millisecond
	tm := New(period, 0, func() {
		atomic.AddInt32(&fires, 1)
	})
	tm.Start()
	time.Sleep(105 * time.Millisecond)
	tm.Stop()

	budget := int32(105/20) + 2 // 105/20 truncates to 5: +1 rounds up to ceil(t/p)=6, +1 from the property
	assert.LessOrEqual(t, atomic.LoadInt32(&fires), budget)
}
