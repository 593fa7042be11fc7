package platform

import (
	"testing"

	"github.com/edgecore/edged/component"
	"github.com/stretchr/testify/assert"
)

func script(s string) component.Node {
	return component.Node{Kind: component.NodeScript, Script: s}
}

func tagged(children ...component.TaggedChild) component.Node {
	return component.Node{Kind: component.NodePlatformMap, Children: children}
}

func TestSelector_PickByOS_ScenarioS4(t *testing.T) {
	// S4: {posix: A, ubuntu: B, all: C} on a host ranked
	// {posix: 3, ubuntu: 20, all: 0} must pick B.
	tags := &Tags{ranks: map[string]int{"posix": 3, "ubuntu": 20, "all": 0}}
	sel := NewSelector(tags)

	block := tagged(
		component.TaggedChild{Tag: "posix", Node: script("A")},
		component.TaggedChild{Tag: "ubuntu", Node: script("B")},
		component.TaggedChild{Tag: "all", Node: script("C")},
	)

	node, ok := sel.PickByOS(block)
	assert.True(t, ok)
	assert.Equal(t, "B", node.Script)
}

func TestSelector_PickByOS_TieBreakByInsertionOrder(t *testing.T) {
	tags := &Tags{ranks: map[string]int{"linux": 10, "ubuntu": 10}}
	sel := NewSelector(tags)

	block := tagged(
		component.TaggedChild{Tag: "linux", Node: script("first")},
		component.TaggedChild{Tag: "ubuntu", Node: script("second")},
	)

	node, ok := sel.PickByOS(block)
	assert.True(t, ok)
	assert.Equal(t, "first", node.Script)
}

func TestSelector_PickByOS_FallsBackToAll(t *testing.T) {
	tags := &Tags{ranks: map[string]int{}}
	sel := NewSelector(tags)

	block := tagged(
		component.TaggedChild{Tag: "qnx", Node: script("A")},
		component.TaggedChild{Tag: "all", Node: script("fallback")},
	)

	node, ok := sel.PickByOS(block)
	assert.True(t, ok)
	assert.Equal(t, "fallback", node.Script)
}

func TestSelector_PickByOS_FallsBackToFirstChild(t *testing.T) {
	tags := &Tags{ranks: map[string]int{}}
	sel := NewSelector(tags)

	block := tagged(
		component.TaggedChild{Tag: "qnx", Node: script("A")},
		component.TaggedChild{Tag: "solaris", Node: script("B")},
	)

	node, ok := sel.PickByOS(block)
	assert.True(t, ok)
	assert.Equal(t, "A", node.Script)
}

func TestSelector_PickByOS_EmptyChildren(t *testing.T) {
	tags := &Tags{ranks: map[string]int{}}
	sel := NewSelector(tags)

	_, ok := sel.PickByOS(tagged())
	assert.False(t, ok)
}

func TestSelector_PickByOS_NonPlatformNodePassesThrough(t *testing.T) {
	sel := NewSelector(&Tags{ranks: map[string]int{}})
	node, ok := sel.PickByOS(script("just a script"))
	assert.True(t, ok)
	assert.Equal(t, "just a script", node.Script)
}

// Property 4: pickByOS is pure — repeated calls on the same inputs return
// the same result.
func TestSelector_PickByOS_IsPure(t *testing.T) {
	tags := &Tags{ranks: map[string]int{"posix": 3, "ubuntu": 20, "all": 0}}
	sel := NewSelector(tags)
	block := tagged(
		component.TaggedChild{Tag: "posix", Node: script("A")},
		component.TaggedChild{Tag: "ubuntu", Node: script("B")},
		component.TaggedChild{Tag: "all", Node: script("C")},
	)

	first, _ := sel.PickByOS(block)
	second, _ := sel.PickByOS(block)
	assert.Equal(t, first, second)
}

func TestDetect_IsOnceAndStable(t *testing.T) {
	first := Detect()
	second := Detect()
	assert.Same(t, first, second)
}
