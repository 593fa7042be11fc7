package statussink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecore/edged/component"
)

type fakeLog struct {
	infos []string
	warns []string
}

func (f *fakeLog) Infof(format string, args ...interface{}) {
	f.infos = append(f.infos, format)
}
func (f *fakeLog) Warnf(format string, args ...interface{}) {
	f.warns = append(f.warns, format)
}

type recorder struct {
	transitions int
	overalls    []Overall
}

func (r *recorder) OnTransition(string, component.State, component.State, string) { r.transitions++ }
func (r *recorder) OnOverallChange(o Overall)                                     { r.overalls = append(r.overalls, o) }

func TestLogSink_LogsTransitionsAndOverall(t *testing.T) {
	log := &fakeLog{}
	s := NewLogSink(log)
	s.OnTransition("echo", component.StateNew, component.StateInstalling, "")
	s.OnOverallChange(Unhealthy)
	s.OnOverallChange(Healthy)

	require.Len(t, log.infos, 2)
	require.Len(t, log.warns, 1)
}

func TestMultiSink_FansOutToEveryChild(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := NewMultiSink(a, b)
	m.OnTransition("echo", component.StateNew, component.StateRunning, "")
	m.OnOverallChange(Healthy)

	assert.Equal(t, 1, a.transitions)
	assert.Equal(t, 1, b.transitions)
	assert.Equal(t, []Overall{Healthy}, a.overalls)
}

func TestOverallTracker_BecomesHealthyOnlyWhenEveryComponentConverges(t *testing.T) {
	r := &recorder{}
	tr := NewOverallTracker(r)

	tr.OnTransition("a", component.StateNew, component.StateInstalling, "")
	tr.OnTransition("b", component.StateNew, component.StateRunning, "")
	require.NotEmpty(t, r.overalls)
	assert.Equal(t, Unhealthy, r.overalls[len(r.overalls)-1])

	tr.OnTransition("a", component.StateInstalling, component.StateRunning, "")
	assert.Equal(t, Healthy, r.overalls[len(r.overalls)-1])

	tr.OnTransition("a", component.StateRunning, component.StateErrored, "step failed")
	assert.Equal(t, Unhealthy, r.overalls[len(r.overalls)-1])
}

func TestOverallTracker_DoesNotDuplicateUnchangedOverall(t *testing.T) {
	r := &recorder{}
	tr := NewOverallTracker(r)

	tr.OnTransition("a", component.StateNew, component.StateInstalling, "")
	tr.OnTransition("a", component.StateInstalling, component.StateAwaitingStartup, "")

	assert.Len(t, r.overalls, 1)
}
