package registry

import (
	"fmt"
	"sync"

	"github.com/edgecore/edged/component"
)

// Handler aliases component.Handler: the instantiated form of a CodeBacked
// component, kept as a local name since most of this file's callers never
// need to import component themselves.
type Handler = component.Handler

// HandlerFactory builds a Handler for a class-backed component from its
// resolved configuration.
type HandlerFactory func(comp *component.Component, cfg map[string]any) (Handler, error)

// HandlerRegistry maps a recipe's `class` string to the factory that
// builds its in-process handler (§3: "CodeBacked -- driven by in-process
// handlers registered under that name").
type HandlerRegistry struct {
	mu        sync.RWMutex
	factories map[string]HandlerFactory
}

// NewHandlerRegistry returns an empty HandlerRegistry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{factories: make(map[string]HandlerFactory)}
}

// Register binds a class name to the factory that instantiates it.
func (hr *HandlerRegistry) Register(class string, f HandlerFactory) {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.factories[class] = f
}

// Build instantiates comp's handler via its recipe's declared class.
func (hr *HandlerRegistry) Build(comp *component.Component, cfg map[string]any) (Handler, error) {
	hr.mu.RLock()
	f, ok := hr.factories[comp.Recipe.Class]
	hr.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler factory registered for class %q", comp.Recipe.Class)
	}
	return f(comp, cfg)
}
