package component

import "context"

// Handler is what a CodeBacked component implements once the registry has
// instantiated it from its recipe's declared class. Run owns the
// component's entire startup/run lifetime instead of a sequence of shell
// lifecycle steps: it blocks, calling readinessProbe once the component is
// ready to serve (or with a non-nil cause if it never becomes ready), and
// returns when the component's work is done or ctx is canceled. The
// signature mirrors goscade's own Component interface.
type Handler interface {
	Run(ctx context.Context, readinessProbe func(cause error)) error
}
