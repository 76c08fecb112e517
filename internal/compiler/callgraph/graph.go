package callgraph

import (
	"fmt"

	"github.com/alexisbeaulieu97/loom/internal/blueprint"
	"github.com/alexisbeaulieu97/loom/internal/compiler/component"
	"github.com/alexisbeaulieu97/loom/internal/language"
)

// NodeIndex identifies a node. Indices stay valid across node removal so
// side tables keyed by index survive every transformation pass.
type NodeIndex int

// NoNode marks the absence of a node reference.
const NoNode NodeIndex = -1

// EdgeID identifies an edge.
type EdgeID int

// EdgeKind labels how the consumer reads the produced value.
type EdgeKind int

const (
	EdgeMove EdgeKind = iota
	EdgeSharedBorrow
)

func (k EdgeKind) String() string {
	if k == EdgeSharedBorrow {
		return "borrow"
	}
	return "move"
}

// NodeKind tags the three node variants.
type NodeKind int

const (
	NodeCompute NodeKind = iota
	NodeInput
	NodeMatchBranching
)

// InputSource says where an input parameter's value comes from: an
// already-materialised component (an application-state binding or an
// earlier pipeline stage) or the caller.
type InputSource int

const (
	SourceExternal InputSource = iota
	SourceComponent
)

// Multiplicity says how many times a compute node may be invoked.
type Multiplicity int

const (
	MultiplicityOne Multiplicity = iota
	MultiplicityMultiple
)

// Node is one vertex in a call graph.
type Node struct {
	Kind NodeKind

	// Component backs compute nodes and component-sourced inputs.
	Component component.ComponentID
	// Multiplicity is meaningful for compute nodes.
	Multiplicity Multiplicity
	// Source and Type describe input-parameter nodes.
	Source InputSource
	Type   language.Type
}

// Edge carries a value from its producer to a consumer.
type Edge struct {
	From NodeIndex
	To   NodeIndex
	Kind EdgeKind
}

// Graph is a vector-backed DAG with tombstoning removal.
type Graph struct {
	nodes       []Node
	nodeRemoved []bool

	edges       []Edge
	edgeRemoved []bool

	in  [][]EdgeID
	out [][]EdgeID
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// AddNode appends a node and returns its index.
func (g *Graph) AddNode(n Node) NodeIndex {
	idx := NodeIndex(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.nodeRemoved = append(g.nodeRemoved, false)
	g.in = append(g.in, nil)
	g.out = append(g.out, nil)
	return idx
}

// Node returns a pointer to the node at idx.
func (g *Graph) Node(idx NodeIndex) *Node {
	return &g.nodes[idx]
}

// Alive reports whether the node has not been removed.
func (g *Graph) Alive(idx NodeIndex) bool {
	return !g.nodeRemoved[idx]
}

// Bound returns the exclusive upper bound of node indices ever allocated.
func (g *Graph) Bound() int { return len(g.nodes) }

// LiveCount returns the number of nodes that are still alive.
func (g *Graph) LiveCount() int {
	n := 0
	for i := range g.nodes {
		if !g.nodeRemoved[i] {
			n++
		}
	}
	return n
}

// Indices returns the live node indices in ascending order.
func (g *Graph) Indices() []NodeIndex {
	out := make([]NodeIndex, 0, len(g.nodes))
	for i := range g.nodes {
		if !g.nodeRemoved[i] {
			out = append(out, NodeIndex(i))
		}
	}
	return out
}

// AddEdge connects from to to and returns the edge id. A consumer's
// inbound edges keep insertion order: they name its inputs positionally.
func (g *Graph) AddEdge(from, to NodeIndex, kind EdgeKind) EdgeID {
	id := EdgeID(len(g.edges))
	g.edges = append(g.edges, Edge{From: from, To: to, Kind: kind})
	g.edgeRemoved = append(g.edgeRemoved, false)
	g.out[from] = append(g.out[from], id)
	g.in[to] = append(g.in[to], id)
	return id
}

// Edge returns the edge with the given id.
func (g *Graph) Edge(id EdgeID) Edge {
	return g.edges[id]
}

// SetEdgeKind relabels an edge.
func (g *Graph) SetEdgeKind(id EdgeID, kind EdgeKind) {
	g.edges[id].Kind = kind
}

// SetEdgeSource points an existing edge at a different producer without
// disturbing the consumer's input order.
func (g *Graph) SetEdgeSource(id EdgeID, from NodeIndex) {
	old := g.edges[id].From
	g.out[old] = removeEdgeID(g.out[old], id)
	g.edges[id].From = from
	g.out[from] = append(g.out[from], id)
}

// RemoveEdge tombstones an edge.
func (g *Graph) RemoveEdge(id EdgeID) {
	if g.edgeRemoved[id] {
		return
	}
	g.edgeRemoved[id] = true
	e := g.edges[id]
	g.out[e.From] = removeEdgeID(g.out[e.From], id)
	g.in[e.To] = removeEdgeID(g.in[e.To], id)
}

// RemoveNode tombstones a node together with its incident edges.
func (g *Graph) RemoveNode(idx NodeIndex) {
	if g.nodeRemoved[idx] {
		return
	}
	for _, id := range append([]EdgeID(nil), g.in[idx]...) {
		g.RemoveEdge(id)
	}
	for _, id := range append([]EdgeID(nil), g.out[idx]...) {
		g.RemoveEdge(id)
	}
	g.nodeRemoved[idx] = true
}

// InEdges returns the live inbound edge ids of a node, in input order.
func (g *Graph) InEdges(idx NodeIndex) []EdgeID {
	return g.in[idx]
}

// OutEdges returns the live outbound edge ids of a node.
func (g *Graph) OutEdges(idx NodeIndex) []EdgeID {
	return g.out[idx]
}

// Parents returns the producers feeding a node, in input order.
func (g *Graph) Parents(idx NodeIndex) []NodeIndex {
	out := make([]NodeIndex, 0, len(g.in[idx]))
	for _, id := range g.in[idx] {
		out = append(out, g.edges[id].From)
	}
	return out
}

// Children returns the consumers of a node.
func (g *Graph) Children(idx NodeIndex) []NodeIndex {
	out := make([]NodeIndex, 0, len(g.out[idx]))
	for _, id := range g.out[idx] {
		out = append(out, g.edges[id].To)
	}
	return out
}

func removeEdgeID(ids []EdgeID, target EdgeID) []EdgeID {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// TopoOrder returns the live nodes in topological order (producers before
// consumers). It fails if the graph contains a cycle, which indicates a
// compiler bug: cycles are rejected before graph construction begins.
func (g *Graph) TopoOrder() ([]NodeIndex, error) {
	indegree := make(map[NodeIndex]int)
	for _, idx := range g.Indices() {
		indegree[idx] = len(g.in[idx])
	}
	var queue []NodeIndex
	for _, idx := range g.Indices() {
		if indegree[idx] == 0 {
			queue = append(queue, idx)
		}
	}
	var order []NodeIndex
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, id := range g.out[cur] {
			next := g.edges[id].To
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(order) != g.LiveCount() {
		return nil, fmt.Errorf("call graph contains a cycle: this is a bug in the compiler")
	}
	return order, nil
}

// ReverseTopoOrder returns the live nodes with every consumer before its
// producers.
func (g *Graph) ReverseTopoOrder() ([]NodeIndex, error) {
	order, err := g.TopoOrder()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

// CallGraph pairs a graph with its designated root node and root scope.
type CallGraph struct {
	*Graph
	Root      NodeIndex
	RootScope blueprint.ScopeID
	// RootComponent is the component the graph was built for.
	RootComponent component.ComponentID
}

// ExternalInputs returns the external input-parameter nodes in order of
// first appearance.
func (cg *CallGraph) ExternalInputs() []NodeIndex {
	var out []NodeIndex
	for _, idx := range cg.Indices() {
		n := cg.Node(idx)
		if n.Kind == NodeInput && n.Source == SourceExternal {
			out = append(out, idx)
		}
	}
	return out
}

// RequestScopedComputed returns the request-scoped components that this
// graph computes (rather than imports), in node order. Later stages of
// the same pipeline import these instead of recomputing them.
func (cg *CallGraph) RequestScopedComputed(db *component.Db) []component.ComponentID {
	var out []component.ComponentID
	seen := make(map[component.ComponentID]bool)
	for _, idx := range cg.Indices() {
		n := cg.Node(idx)
		if n.Kind != NodeCompute {
			continue
		}
		c := db.Get(n.Component)
		if c.Lifecycle != blueprint.LifecycleRequestScoped || c.Kind != component.KindConstructor {
			continue
		}
		if !seen[n.Component] {
			seen[n.Component] = true
			out = append(out, n.Component)
		}
	}
	return out
}

// ValueNodeOf returns the node carrying the usable value of a component
// in this graph: the Ok projection for fallible computations, the compute
// or input node otherwise.
func (cg *CallGraph) ValueNodeOf(db *component.Db, id component.ComponentID) (NodeIndex, bool) {
	direct := NoNode
	for _, idx := range cg.Indices() {
		n := cg.Node(idx)
		if n.Kind == NodeMatchBranching || n.Component != id {
			continue
		}
		if n.Kind == NodeInput {
			return idx, true
		}
		direct = idx
	}
	if direct == NoNode {
		return NoNode, false
	}
	if db.Computation(id).IsFallible() {
		if pair, ok := db.Matchers(id); ok {
			for _, idx := range cg.Indices() {
				n := cg.Node(idx)
				if n.Kind != NodeCompute || n.Component != pair.Ok {
					continue
				}
				for _, parent := range cg.Parents(idx) {
					p := cg.Node(parent)
					if parent == direct {
						return idx, true
					}
					if p.Kind == NodeMatchBranching && len(cg.Parents(parent)) > 0 && cg.Parents(parent)[0] == direct {
						return idx, true
					}
				}
			}
		}
	}
	return direct, true
}

// ComponentInputs returns the component-sourced input-parameter nodes in
// order of first appearance.
func (cg *CallGraph) ComponentInputs() []NodeIndex {
	var out []NodeIndex
	for _, idx := range cg.Indices() {
		n := cg.Node(idx)
		if n.Kind == NodeInput && n.Source == SourceComponent {
			out = append(out, idx)
		}
	}
	return out
}
