// Package stepgate evaluates a lifecycle step's skipif/doif guard (§4.F).
package stepgate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/edgecore/edged/component"
	"github.com/edgecore/edged/shellrunner"
)

// ErrMutuallyExclusive is returned when a step declares both skipif and
// doif. §9's open question resolves this as a hard error rather than the
// ambiguous XOR the source code commented out: "this spec requires mutual
// exclusion (if both present -> Errored at parse)".
var ErrMutuallyExclusive = errors.New("skipif and doif are mutually exclusive")

// Successful runs a shell expression and reports whether it exited 0 with
// nothing on stderr (the same contract shellrunner.Runner.Successful
// exposes, kept as an interface here so tests can fake it).
type Successful interface {
	Successful(ctx context.Context, expr string) bool
}

// Gate evaluates skipif/doif expressions for lifecycle steps.
type Gate struct {
	shell       Successful
	nucleusRoot string
}

// New builds a Gate. nucleusRoot is the directory `~` expands against when
// evaluating `exists ~/some/path`.
func New(shell Successful, nucleusRoot string) *Gate {
	return &Gate{shell: shell, nucleusRoot: nucleusRoot}
}

// Validate checks a step's skipif/doif declaration without running
// anything, for use at recipe-resolution time (§9 open question).
func Validate(t component.Topics) error {
	if strings.TrimSpace(t.SkipIf) != "" && strings.TrimSpace(t.DoIf) != "" {
		return ErrMutuallyExclusive
	}
	return nil
}

// ShouldSkip reports whether a step should be skipped: true when skipif
// evaluates true, or when doif evaluates false.
func (g *Gate) ShouldSkip(ctx context.Context, t component.Topics) (bool, error) {
	if err := Validate(t); err != nil {
		return false, err
	}

	if skipif := strings.TrimSpace(t.SkipIf); skipif != "" {
		result, err := g.eval(ctx, skipif)
		if err != nil {
			return false, err
		}
		return result, nil
	}

	if doif := strings.TrimSpace(t.DoIf); doif != "" {
		result, err := g.eval(ctx, doif)
		if err != nil {
			return false, err
		}
		return !result, nil
	}

	return false, nil
}

func (g *Gate) eval(ctx context.Context, expr string) (bool, error) {
	negate := false
	if strings.HasPrefix(expr, "!") {
		negate = true
		expr = strings.TrimSpace(strings.TrimPrefix(expr, "!"))
	}

	var result bool
	switch {
	case expr == "true":
		result = true
	case strings.HasPrefix(expr, "onpath "):
		cmd := strings.TrimSpace(strings.TrimPrefix(expr, "onpath "))
		_, result = shellrunner.Which(cmd)
	case strings.HasPrefix(expr, "exists "):
		path := g.expandHome(strings.TrimSpace(strings.TrimPrefix(expr, "exists ")))
		_, err := os.Stat(path)
		result = err == nil
	default:
		result = g.shell.Successful(ctx, expr)
	}

	if negate {
		result = !result
	}
	return result, nil
}

func (g *Gate) expandHome(path string) string {
	if path == "~" {
		return g.nucleusRoot
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(g.nucleusRoot, strings.TrimPrefix(path, "~/"))
	}
	return path
}
