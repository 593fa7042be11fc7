package registry

import (
	"context"
	"testing"

	"github.com/edgecore/edged/component"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct{ ran bool }

func (h *fakeHandler) Run(ctx context.Context, readinessProbe func(cause error)) error {
	h.ran = true
	readinessProbe(nil)
	return nil
}

func TestHandlerRegistry_BuildUsesRegisteredClass(t *testing.T) {
	hr := NewHandlerRegistry()
	hr.Register("edged.example.echo", func(comp *component.Component, cfg map[string]any) (Handler, error) {
		return &fakeHandler{}, nil
	})

	comp := component.NewComponent("echo", &component.Recipe{Name: "echo", Class: "edged.example.echo"}, component.KindCodeBacked)
	handler, err := hr.Build(comp, nil)
	require.NoError(t, err)

	h := handler.(*fakeHandler)
	require.NoError(t, h.Run(context.Background(), func(error) {}))
	assert.True(t, h.ran)
}

func TestHandlerRegistry_BuildUnknownClassErrors(t *testing.T) {
	hr := NewHandlerRegistry()
	comp := component.NewComponent("echo", &component.Recipe{Name: "echo", Class: "unregistered"}, component.KindCodeBacked)
	_, err := hr.Build(comp, nil)
	assert.Error(t, err)
}
