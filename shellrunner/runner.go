// Package shellrunner spawns and supervises the child processes behind a
// lifecycle step (§4.B).
package shellrunner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/edgecore/edged/component"
)

// Logger is the narrow logging surface every subsystem accepts, matching
// the teacher's own `logger` interface (goscade's lifecycle.go) so a
// single zap-backed implementation serves the whole tree.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Result is the synchronous outcome of a lifecycle step.
type Result int

const (
	Ok Result = iota
	Failed
)

// BackgroundHandler is invoked once a backgrounded child exits.
type BackgroundHandler func(exitCode int, err error)

// DefaultShutdownTimeout is the grace period between SIGTERM and SIGKILL
// (§5 Cancellation), overridable per-component via
// lifecycle.shutdown.timeout.
const DefaultShutdownTimeout = 10 * time.Second

// Runner spawns lifecycle-step child processes via the host shell.
type Runner struct {
	log Logger

	mu      sync.Mutex
	running map[string]*os.Process // component name -> background run child
}

// New creates a Runner. log may be nil in tests that don't care about
// output.
func New(log Logger) *Runner {
	if log == nil {
		log = noopLogger{}
	}
	return &Runner{log: log, running: make(map[string]*os.Process)}
}

type noopLogger struct{}

func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

// Run spawns command via the host shell on owner's behalf for the named
// step. With a non-nil background handler the call returns as soon as the
// process is spawned, and the handler fires later with the exit code
// (used for the `run` step, §4.D). Without one, Run blocks until the
// child exits and reports Ok iff the exit code is 0; on failure it marks
// owner's sticky error flag via errored("step failed", ...).
func (r *Runner) Run(
	ctx context.Context,
	stepName string,
	cmdline string,
	owner *component.Component,
	setenv map[string]string,
	background BackgroundHandler,
) (Result, error) {
	cmd := buildShellCommand(ctx, cmdline)
	cmd.Env = mergeEnv(os.Environ(), setenv)

	out := &taggedWriter{log: r.log, owner: owner.Name, step: stepName, level: "out"}
	errw := &taggedWriter{log: r.log, owner: owner.Name, step: stepName, level: "err"}
	cmd.Stdout = out
	cmd.Stderr = errw

	if background != nil {
		if err := cmd.Start(); err != nil {
			r.errored(owner, "step failed", err)
			return Failed, err
		}
		r.trackBackground(owner.Name, cmd.Process)
		go func() {
			err := cmd.Wait()
			r.untrackBackground(owner.Name)
			code := exitCode(err)
			background(code, err)
		}()
		return Ok, nil
	}

	if err := cmd.Run(); err != nil {
		r.errored(owner, "step failed", err)
		return Failed, err
	}
	return Ok, nil
}

func (r *Runner) errored(owner *component.Component, reason string, cause error) {
	owner.SetErrored(true)
	owner.SetStatusMessage(fmt.Sprintf("%s: %v", reason, cause))
	r.log.Errorf("component=%s step failed: %v", owner.Name, cause)
}

func (r *Runner) trackBackground(name string, p *os.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[name] = p
}

func (r *Runner) untrackBackground(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, name)
}

// Stop escalates from a terminate signal to a kill signal for a
// backgrounded `run` child still alive when its owner is told to stop:
// the terminate signal is sent immediately, and the kill signal follows
// if the child is still alive after grace. lifecycle.Machine calls Stop
// before it runs the owner's shutdown step.
func (r *Runner) Stop(name string, grace time.Duration) {
	r.mu.Lock()
	proc := r.running[name]
	r.mu.Unlock()
	if proc == nil {
		return
	}
	terminateProcess(proc)

	done := make(chan struct{})
	go func() {
		_, _ = proc.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		killProcess(proc)
	}
}

// Which searches PATH for cmd and returns its absolute path.
func Which(cmd string) (string, bool) {
	if filepath.IsAbs(cmd) {
		if info, err := os.Stat(cmd); err == nil && !info.IsDir() {
			return cmd, true
		}
		return "", false
	}
	path, err := exec.LookPath(cmd)
	if err != nil {
		return "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, true
	}
	return abs, true
}

// Successful spawns expr and reports true iff it exits 0 and writes
// nothing to standard error.
func (r *Runner) Successful(ctx context.Context, expr string) bool {
	cmd := buildShellCommand(ctx, expr)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return false
	}
	return stderr.Len() == 0
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	env := make([]string, 0, len(base)+len(extra))
	env = append(env, base...)
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if ok := exitErrAs(err, &exitErr); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func exitErrAs(err error, target **exec.ExitError) bool {
	for err != nil {
		if e, ok := err.(*exec.ExitError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// taggedWriter streams a child's output to the log, tagged with the
// owning component and step name, per §4.B.
type taggedWriter struct {
	log   Logger
	owner string
	step  string
	level string
}

func (w *taggedWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		if w.level == "err" {
			w.log.Errorf("component=%s step=%s %s", w.owner, w.step, line)
		} else {
			w.log.Infof("component=%s step=%s %s", w.owner, w.step, line)
		}
	}
	return len(p), nil
}
