package platform

import "github.com/edgecore/edged/component"

// Selector is a pure function of a tagged block and the process-wide tag
// table (property 4 in §8: "pickByOS is a pure function... repeated calls
// return the same node").
type Selector struct {
	tags *Tags
}

// NewSelector binds a selector to a tag table. Production code uses
// Detect(); tests inject a fixed table to make scenario S4 deterministic.
func NewSelector(tags *Tags) *Selector {
	return &Selector{tags: tags}
}

// PickByOS resolves a lifecycle Node down to its concrete (non-platform-map)
// node. If block isn't a platform map it is returned unchanged. Among a
// platform map's children, the highest-ranked tag wins; ties go to
// whichever was declared first. If no child has positive rank, the
// all/any child is used if present, else the first declared child, else
// the node is reported absent.
func (s *Selector) PickByOS(block component.Node) (component.Node, bool) {
	if block.Kind != component.NodePlatformMap {
		return block, !block.IsEmpty()
	}
	if len(block.Children) == 0 {
		return component.Node{}, false
	}

	bestIdx := -1
	bestRank := -1
	fallbackIdx := -1
	firstIdx := 0

	for i, child := range block.Children {
		rank := s.tags.Rank(child.Tag)
		if (child.Tag == "all" || child.Tag == "any") && fallbackIdx == -1 {
			fallbackIdx = i
		}
		if rank > bestRank {
			bestRank = rank
			bestIdx = i
		}
	}

	if bestRank > 0 {
		return recurse(s, block.Children[bestIdx].Node)
	}
	if fallbackIdx != -1 {
		return recurse(s, block.Children[fallbackIdx].Node)
	}
	return recurse(s, block.Children[firstIdx].Node)
}

func recurse(s *Selector, n component.Node) (component.Node, bool) {
	if n.Kind == component.NodePlatformMap {
		return s.PickByOS(n)
	}
	return n, !n.IsEmpty()
}
