package callgraph

import (
	"fmt"

	"github.com/alexisbeaulieu97/loom/internal/blueprint"
	"github.com/alexisbeaulieu97/loom/internal/compiler/component"
	"github.com/alexisbeaulieu97/loom/internal/diagnostics"
	"github.com/alexisbeaulieu97/loom/internal/framework"
	"github.com/alexisbeaulieu97/loom/internal/ports"
)

// strategyOnBlock determines what to do when the node being processed
// wants to consume by value another node that is currently borrowed.
type strategyOnBlock int

const (
	// strategyPark sets the blocked node aside for a later iteration.
	strategyPark strategyOnBlock = iota
	// strategyClone tries to duplicate the contended input.
	strategyClone
	// strategyError reports the stalemate to the user.
	strategyError
)

// borrowChecker rewrites the graph so that every value is moved at most
// once across its lifetime: conflicts are repaired by inserting clone
// nodes where the component allows it, and reported otherwise.
type borrowChecker struct {
	db     *component.Db
	oracle ports.TypeOracle
	sink   diagnostics.Sink
	cg     *CallGraph

	// cloneComponents caches the synthesised clone component per cloned
	// component, so repeated repairs reuse one derived component.
	cloneComponents map[component.ComponentID]component.ComponentID
	failed          bool
}

// CheckBorrows runs the borrow checker over the call graph, mutating it in
// place. It returns false when at least one conflict could not be
// repaired.
func CheckBorrows(cg *CallGraph, db *component.Db, oracle ports.TypeOracle, sink diagnostics.Sink) bool {
	bc := &borrowChecker{
		db:              db,
		oracle:          oracle,
		sink:            sink,
		cg:              cg,
		cloneComponents: make(map[component.ComponentID]component.ComponentID),
	}
	bc.causalPass()
	bc.fixedPointPass()
	return !bc.failed
}

// causalPass walks the graph from its sinks towards its sources carrying
// the set of nodes borrowed downstream; a move of a still-borrowed node is
// repaired on the spot or reported.
func (bc *borrowChecker) causalPass() {
	g := bc.cg.Graph

	var queue []NodeIndex
	for _, idx := range g.Indices() {
		if len(g.OutEdges(idx)) == 0 {
			queue = append(queue, idx)
		}
	}
	visited := make(map[NodeIndex]bool)
	downstreamBorrows := make(map[NodeIndex]map[NodeIndex]struct{})

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		if visited[idx] {
			continue
		}

		borrowed := make(map[NodeIndex]struct{})
		for _, child := range g.Children(idx) {
			for b := range downstreamBorrows[child] {
				borrowed[b] = struct{}{}
			}
		}

		for _, eid := range append([]EdgeID(nil), g.InEdges(idx)...) {
			edge := g.Edge(eid)
			if !visited[edge.From] {
				queue = append(queue, edge.From)
			}
			if edge.Kind == EdgeSharedBorrow {
				borrowed[edge.From] = struct{}{}
				continue
			}
			if _, contended := borrowed[edge.From]; !contended {
				continue
			}
			if !bc.insertClone(edge.From, eid) {
				bc.reportCausalConflict(edge.From, idx)
			}
		}

		downstreamBorrows[idx] = borrowed
		visited[idx] = true
	}
}

// fixedPointPass finishes nodes whose inputs are free, parking the rest;
// when parking stops making progress it escalates to cloning, and when
// cloning cannot unblock anything it reports the leftovers.
func (bc *borrowChecker) fixedPointPass() {
	g := bc.cg.Graph
	rel := computeOwnership(g)

	strategy := strategyPark
	unblockedAny := false
	visit := newNodeSet()
	for _, idx := range g.Indices() {
		if len(g.OutEdges(idx)) == 0 {
			visit.add(idx)
		}
	}
	parked := newNodeSet()
	finished := make(map[NodeIndex]bool)
	lastParked := -1

	for {
	visiting:
		for !visit.empty() {
			idx := visit.pop()

			var blocked, unblocked []NodeIndex
			for _, parent := range g.Parents(idx) {
				if rel.isConsumedBy(parent, idx) && rel.isBorrowed(parent) {
					blocked = append(blocked, parent)
				} else {
					unblocked = append(unblocked, parent)
				}
			}
			for _, parent := range unblocked {
				if !finished[parent] && !parked.has(parent) {
					visit.add(parent)
				}
			}

			if len(blocked) == 0 {
				rel.removeAllBorrows(idx)
				finished[idx] = true
				continue
			}

			switch strategy {
			case strategyPark:
				parked.add(idx)
			case strategyClone:
				for _, contended := range blocked {
					eid, ok := findMoveEdge(g, contended, idx)
					if !ok {
						continue
					}
					cloneNode, inserted := bc.insertCloneNode(contended, eid)
					if !inserted {
						continue
					}
					unblockedAny = true
					rel.addConsume(idx, cloneNode)
					rel.removeConsumer(contended, idx)
					rel.addBorrow(cloneNode, contended)
					break
				}
				// One clone at a time: it may be enough to unblock other
				// parked nodes without further duplication.
				parked.add(idx)
				if unblockedAny {
					break visiting
				}
			case strategyError:
				for _, contended := range blocked {
					bc.reportBlocked(contended, idx, rel)
				}
			}
		}

		if parked.len() == 0 {
			return
		}
		if parked.len() == lastParked {
			switch strategy {
			case strategyPark:
				strategy = strategyClone
			case strategyClone:
				if unblockedAny {
					strategy = strategyPark
					unblockedAny = false
				} else {
					strategy = strategyError
				}
			case strategyError:
				return
			}
		}
		lastParked = parked.len()
		visit.extend(parked.drain())
	}
}

// insertClone repairs a move-while-borrowed conflict by inserting a clone
// of the contended value between producer and consumer. The consumer's
// input order is preserved.
func (bc *borrowChecker) insertClone(producer NodeIndex, moveEdge EdgeID) bool {
	_, ok := bc.insertCloneNode(producer, moveEdge)
	return ok
}

func (bc *borrowChecker) insertCloneNode(producer NodeIndex, moveEdge EdgeID) (NodeIndex, bool) {
	cloneComponent, ok := bc.cloneComponentFor(producer)
	if !ok {
		return NoNode, false
	}
	g := bc.cg.Graph
	cloneNode := g.AddNode(Node{
		Kind:         NodeCompute,
		Component:    cloneComponent,
		Multiplicity: MultiplicityOne,
	})
	g.AddEdge(producer, cloneNode, EdgeSharedBorrow)
	g.SetEdgeSource(moveEdge, cloneNode)
	return cloneNode, true
}

// cloneComponentFor synthesises (or reuses) the Clone-call component for
// the value produced at the given node. Only values whose originating
// component opted into cloning, and whose type the oracle knows to be
// cloneable, qualify.
func (bc *borrowChecker) cloneComponentFor(producer NodeIndex) (component.ComponentID, bool) {
	n := bc.cg.Node(producer)
	var id component.ComponentID
	switch {
	case n.Kind == NodeCompute:
		id = n.Component
	case n.Kind == NodeInput && n.Source == SourceComponent:
		id = n.Component
	default:
		return component.NoComponentID, false
	}

	effective := bc.db.Get(id)
	if effective.Kind == component.KindTransformer && effective.FallibleParent != component.NoComponentID {
		effective = bc.db.Get(effective.FallibleParent)
	}
	switch effective.Kind {
	case component.KindConstructor, component.KindPrebuilt, component.KindConfig:
	default:
		return component.NoComponentID, false
	}
	if effective.Cloning != blueprint.CloneIfNecessary {
		return component.NoComponentID, false
	}

	valueType := bc.db.Computation(id).OkOutput()
	if !bc.oracle.Satisfies(valueType, ports.CapabilityClone) {
		return component.NoComponentID, false
	}

	if cached, ok := bc.cloneComponents[id]; ok {
		return cached, true
	}
	cloneID := bc.db.RegisterSynthetic(
		component.KindConstructor,
		framework.CloneCallable(valueType),
		effective.Scope,
		blueprint.LifecycleTransient,
	)
	bc.cloneComponents[id] = cloneID
	return cloneID, true
}

func (bc *borrowChecker) reportCausalConflict(contended, consumer NodeIndex) {
	g := bc.cg.Graph

	// Find the downstream node that still borrows the contended value.
	borrower := NoNode
	queue := append([]NodeIndex(nil), g.Children(consumer)...)
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		for _, parent := range g.Parents(idx) {
			if parent == contended {
				borrower = idx
				break
			}
		}
		if borrower != NoNode {
			break
		}
		queue = append(queue, g.Children(idx)...)
	}
	bc.reportConflict(contended, consumer, borrower)
}

func (bc *borrowChecker) reportBlocked(contended, consumer NodeIndex, rel *ownershipRelationships) {
	borrower := NoNode
	for b := range rel.borrowedBy[contended] {
		if b != consumer {
			borrower = b
			break
		}
	}
	if borrower == NoNode {
		for b := range rel.borrowedBy[contended] {
			borrower = b
			break
		}
	}
	bc.reportConflict(contended, consumer, borrower)
}

func (bc *borrowChecker) reportConflict(contended, consumer, borrower NodeIndex) {
	contendedName := bc.nodeName(contended)
	consumerName := bc.nodeName(consumer)
	msg := fmt.Sprintf(
		"I cannot hand the value produced by %s over to %s, because it consumes it",
		contendedName, consumerName,
	)
	var related []diagnostics.Location
	if borrower != NoNode {
		msg += fmt.Sprintf(", while %s still needs to borrow it afterwards", bc.nodeName(borrower))
		related = bc.nodeLocation(borrower)
	}
	msg += ". Cloning the value would resolve the conflict, but its provider is not allowed to clone."

	loc := diagnostics.Location{}
	if locs := bc.nodeLocation(consumer); len(locs) > 0 {
		loc = locs[0]
	}
	bc.failed = true
	bc.sink.Report(diagnostics.Diagnostic{
		Code:     diagnostics.CodeBorrowCheckerConflict,
		Severity: diagnostics.SeverityError,
		Message:  msg,
		Location: loc,
		Related:  related,
		Help:     "consider marking the provider as CloneIfNecessary, or borrow the value instead of consuming it",
	})
}

func (bc *borrowChecker) nodeName(idx NodeIndex) string {
	n := bc.cg.Node(idx)
	switch n.Kind {
	case NodeCompute:
		return bc.db.RenderComponent(n.Component)
	case NodeInput:
		if n.Source == SourceComponent {
			return bc.db.RenderComponent(n.Component)
		}
		return n.Type.Render()
	default:
		return "a match branching"
	}
}

func (bc *borrowChecker) nodeLocation(idx NodeIndex) []diagnostics.Location {
	n := bc.cg.Node(idx)
	if n.Kind == NodeCompute || (n.Kind == NodeInput && n.Source == SourceComponent) {
		loc := bc.db.Get(n.Component).Location
		if !loc.IsZero() {
			return []diagnostics.Location{loc}
		}
	}
	return nil
}

func findMoveEdge(g *Graph, from, to NodeIndex) (EdgeID, bool) {
	for _, eid := range g.InEdges(to) {
		edge := g.Edge(eid)
		if edge.From == from && edge.Kind == EdgeMove {
			return eid, true
		}
	}
	return 0, false
}

// ownershipRelationships tracks, for every node, the nodes it borrows,
// the nodes borrowing it, the nodes it consumes and the nodes consuming
// it. It is keyed by node index and stays valid as nodes are added.
type ownershipRelationships struct {
	borrows    map[NodeIndex]map[NodeIndex]struct{}
	borrowedBy map[NodeIndex]map[NodeIndex]struct{}
	consumes   map[NodeIndex]map[NodeIndex]struct{}
	consumedBy map[NodeIndex]map[NodeIndex]struct{}
}

func computeOwnership(g *Graph) *ownershipRelationships {
	rel := &ownershipRelationships{
		borrows:    make(map[NodeIndex]map[NodeIndex]struct{}),
		borrowedBy: make(map[NodeIndex]map[NodeIndex]struct{}),
		consumes:   make(map[NodeIndex]map[NodeIndex]struct{}),
		consumedBy: make(map[NodeIndex]map[NodeIndex]struct{}),
	}
	for _, idx := range g.Indices() {
		for _, eid := range g.InEdges(idx) {
			edge := g.Edge(eid)
			if edge.Kind == EdgeSharedBorrow {
				rel.addBorrow(idx, edge.From)
			} else {
				rel.addConsume(idx, edge.From)
			}
		}
	}
	return rel
}

func addPair(m map[NodeIndex]map[NodeIndex]struct{}, k, v NodeIndex) {
	set, ok := m[k]
	if !ok {
		set = make(map[NodeIndex]struct{})
		m[k] = set
	}
	set[v] = struct{}{}
}

func (rel *ownershipRelationships) addBorrow(node, borrowed NodeIndex) {
	addPair(rel.borrows, node, borrowed)
	addPair(rel.borrowedBy, borrowed, node)
}

func (rel *ownershipRelationships) addConsume(node, consumed NodeIndex) {
	addPair(rel.consumes, node, consumed)
	addPair(rel.consumedBy, consumed, node)
}

func (rel *ownershipRelationships) isBorrowed(node NodeIndex) bool {
	return len(rel.borrowedBy[node]) > 0
}

func (rel *ownershipRelationships) isConsumedBy(node, consumer NodeIndex) bool {
	_, ok := rel.consumedBy[node][consumer]
	return ok
}

func (rel *ownershipRelationships) removeAllBorrows(node NodeIndex) {
	for borrowed := range rel.borrows[node] {
		delete(rel.borrowedBy[borrowed], node)
	}
	delete(rel.borrows, node)
}

func (rel *ownershipRelationships) removeConsumer(node, consumer NodeIndex) {
	delete(rel.consumedBy[node], consumer)
	delete(rel.consumes[consumer], node)
}

// nodeSet is an insertion-ordered set with stack-like popping.
type nodeSet struct {
	order   []NodeIndex
	present map[NodeIndex]bool
}

func newNodeSet() *nodeSet {
	return &nodeSet{present: make(map[NodeIndex]bool)}
}

func (s *nodeSet) add(idx NodeIndex) {
	if s.present[idx] {
		return
	}
	s.present[idx] = true
	s.order = append(s.order, idx)
}

func (s *nodeSet) extend(ids []NodeIndex) {
	for _, idx := range ids {
		s.add(idx)
	}
}

func (s *nodeSet) pop() NodeIndex {
	idx := s.order[len(s.order)-1]
	s.order = s.order[:len(s.order)-1]
	delete(s.present, idx)
	return idx
}

func (s *nodeSet) has(idx NodeIndex) bool { return s.present[idx] }
func (s *nodeSet) empty() bool            { return len(s.order) == 0 }
func (s *nodeSet) len() int               { return len(s.order) }

func (s *nodeSet) drain() []NodeIndex {
	out := s.order
	s.order = nil
	s.present = make(map[NodeIndex]bool)
	return out
}
