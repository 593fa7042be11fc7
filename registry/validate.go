package registry

import (
	"fmt"

	"github.com/edgecore/edged/component"
	"github.com/edgecore/edged/stepgate"
)

// validateLifecycle walks every step (recursing through platform maps) and
// rejects a recipe that declares both skipif and doif on the same step
// (§9's open question: "Errored at parse").
func validateLifecycle(steps map[string]component.Node) error {
	for stepName, node := range steps {
		if err := validateNode(node); err != nil {
			return fmt.Errorf("lifecycle.%s: %w", stepName, err)
		}
	}
	return nil
}

func validateNode(n component.Node) error {
	switch n.Kind {
	case component.NodeTopics:
		return stepgate.Validate(n.Topics)
	case component.NodePlatformMap:
		for _, child := range n.Children {
			if err := validateNode(child.Node); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyConfigOverrides(recipe *component.Recipe, overrides map[string]any) {
	if len(overrides) == 0 {
		return
	}
	if recipe.Configuration == nil {
		recipe.Configuration = make(map[string]any, len(overrides))
	}
	for k, v := range overrides {
		recipe.Configuration[k] = v
	}
}
