package depgraph

import (
	"fmt"
	"strings"

	"github.com/edgecore/edged/component"
)

// ParsedDependency is one "<name>[:<state>]" fragment of a recipe's
// free-text dependencies string.
type ParsedDependency struct {
	Name     string
	Required component.State
}

// ErrBadSyntax is returned by ParseDependencies when a fragment can't be
// parsed; per §4.E the owning component transitions to
// Errored("bad dependency syntax") and never reaches Installing.
type ErrBadSyntax struct {
	Fragment string
}

func (e *ErrBadSyntax) Error() string {
	return fmt.Sprintf("bad dependency syntax: %q", e.Fragment)
}

// ParseDependencies splits a recipe's free-text dependency declaration
// ("sleeperB, sleeperC:installing") on commas, semicolons, and spaces, and
// resolves each fragment's state suffix by case-insensitive prefix match.
// An omitted state defaults to Running.
func ParseDependencies(spec string) ([]ParsedDependency, error) {
	fragments := strings.FieldsFunc(spec, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})

	deps := make([]ParsedDependency, 0, len(fragments))
	for _, fragment := range fragments {
		name, stateFragment, _ := strings.Cut(fragment, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, &ErrBadSyntax{Fragment: fragment}
		}

		state, ok := component.ParseState(strings.TrimSpace(stateFragment))
		if !ok {
			return nil, &ErrBadSyntax{Fragment: fragment}
		}

		deps = append(deps, ParsedDependency{Name: name, Required: state})
	}
	return deps, nil
}
