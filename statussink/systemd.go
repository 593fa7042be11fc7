package statussink

import (
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/edgecore/edged/component"
)

// ReadyNotifier calls daemon.SdNotify("READY=1") exactly once, the first
// time the named watch component reaches Running or Finished, so edged can
// participate in systemd's Type=notify readiness protocol. It is a no-op
// (and SdNotify itself is a no-op) when not running under systemd.
type ReadyNotifier struct {
	watch string

	mu       sync.Mutex
	notified bool
}

// NewReadyNotifier builds a ReadyNotifier that fires once watch reaches
// Running/Finished.
func NewReadyNotifier(watch string) *ReadyNotifier {
	return &ReadyNotifier{watch: watch}
}

func (r *ReadyNotifier) OnTransition(name string, from, to component.State, reason string) {
	if name != r.watch {
		return
	}
	if to != component.StateRunning && to != component.StateFinished {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.notified {
		return
	}
	r.notified = true
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
}

func (r *ReadyNotifier) OnOverallChange(Overall) {}
