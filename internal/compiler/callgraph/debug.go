package callgraph

import (
	"fmt"

	"github.com/m1gwings/treedrawer/tree"

	"github.com/alexisbeaulieu97/loom/internal/compiler/component"
)

// DebugTree renders the call graph as a drawable tree rooted at the
// graph's terminal value, with producers as children of their consumers.
// Shared sub-graphs appear once per consumer.
func (cg *CallGraph) DebugTree(db *component.Db) string {
	if cg.Root == NoNode {
		return "<empty call graph>"
	}
	t := tree.NewTree(tree.NodeString(cg.debugLabel(db, cg.Root)))
	seen := map[NodeIndex]int{cg.Root: 1}
	cg.addDebugChildren(db, t, cg.Root, seen)
	return t.String()
}

func (cg *CallGraph) addDebugChildren(db *component.Db, t *tree.Tree, idx NodeIndex, seen map[NodeIndex]int) {
	for _, eid := range cg.InEdges(idx) {
		edge := cg.Edge(eid)
		label := cg.debugLabel(db, edge.From)
		if edge.Kind == EdgeSharedBorrow {
			label = "&" + label
		}
		child := t.AddChild(tree.NodeString(label))
		// Guard against runaway recursion on diamond shapes.
		if seen[edge.From] > 2 {
			continue
		}
		seen[edge.From]++
		cg.addDebugChildren(db, child, edge.From, seen)
	}
}

func (cg *CallGraph) debugLabel(db *component.Db, idx NodeIndex) string {
	n := cg.Node(idx)
	switch n.Kind {
	case NodeMatchBranching:
		return "match"
	case NodeInput:
		if n.Source == SourceComponent {
			return fmt.Sprintf("state(%s)", db.RenderComponent(n.Component))
		}
		return fmt.Sprintf("input(%s)", n.Type.Render())
	default:
		return db.RenderComponent(n.Component)
	}
}
