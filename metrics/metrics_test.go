package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_RecordsReadyAndStopDurations(t *testing.T) {
	m := New()
	m.ReadyDuration("echo", 250*time.Millisecond)
	m.StopDuration("echo", 10*time.Millisecond)

	d, ok := m.ReadyDurationOf("echo")
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, d)

	snap := m.Snapshot()
	assert.Contains(t, snap["ready_durations"], "echo")
	assert.Contains(t, snap["stop_durations"], "echo")
}

func TestInMemory_AccumulatesErrorCounts(t *testing.T) {
	m := New()
	m.ComponentError("echo", "install_failed")
	m.ComponentError("echo", "install_failed")
	m.ComponentError("echo", "run_failed")

	assert.Equal(t, 2, m.ErrorCount("echo", "install_failed"))
	assert.Equal(t, 1, m.ErrorCount("echo", "run_failed"))
	assert.Equal(t, 0, m.ErrorCount("missing", "run_failed"))
}
