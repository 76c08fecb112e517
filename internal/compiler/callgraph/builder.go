package callgraph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/loom/internal/blueprint"
	"github.com/alexisbeaulieu97/loom/internal/compiler/component"
	"github.com/alexisbeaulieu97/loom/internal/diagnostics"
	"github.com/alexisbeaulieu97/loom/internal/framework"
	"github.com/alexisbeaulieu97/loom/internal/language"
	"github.com/alexisbeaulieu97/loom/internal/ports"
)

// Budget says how many compute nodes a component may contribute to one
// call graph.
type Budget int

const (
	// BudgetNone turns the component into an input parameter: its value is
	// produced elsewhere.
	BudgetNone Budget = iota
	// BudgetOne memoises the compute node: every consumer shares it.
	BudgetOne
	// BudgetMultiple gives each consumer its own compute node.
	BudgetMultiple
)

// MultiplicityFn maps a component to its budget within one call graph.
type MultiplicityFn func(db *component.Db, id component.ComponentID) Budget

// RequestScopedMultiplicity is the budget function for per-request graphs:
// singletons and startup values are inputs, request-scoped components run
// once, transients run at every use site.
func RequestScopedMultiplicity(db *component.Db, id component.ComponentID) Budget {
	comp := db.Computation(id)
	if comp.Kind == component.CompPrebuiltValue || comp.Kind == component.CompConfigValue {
		return BudgetNone
	}
	switch db.Get(id).Lifecycle {
	case blueprint.LifecycleSingleton:
		return BudgetNone
	case blueprint.LifecycleRequestScoped:
		return BudgetOne
	default:
		return BudgetMultiple
	}
}

// ApplicationStateMultiplicity is the budget function for the
// application-state graph: singletons run exactly once, startup values are
// the builder's parameters.
func ApplicationStateMultiplicity(db *component.Db, id component.ComponentID) Budget {
	comp := db.Computation(id)
	if comp.Kind == component.CompPrebuiltValue || comp.Kind == component.CompConfigValue {
		return BudgetNone
	}
	switch db.Get(id).Lifecycle {
	case blueprint.LifecycleSingleton:
		return BudgetOne
	case blueprint.LifecycleRequestScoped:
		return BudgetNone
	default:
		return BudgetMultiple
	}
}

// BuildParams configures one call-graph construction.
type BuildParams struct {
	// Root is the component the graph computes.
	Root component.ComponentID
	// RootScope is the scope providers are looked up in.
	RootScope blueprint.ScopeID
	// Multiplicity maps lifecycles to node budgets.
	Multiplicity MultiplicityFn
	// Materialised lists request-scoped components already computed by an
	// earlier stage of the same pipeline: they become component-sourced
	// inputs instead of fresh compute nodes.
	Materialised map[component.ComponentID]struct{}
	// Observers is the error-observer chain active for this root.
	Observers []component.ComponentID
	// StateGraph marks the application-state graph: budget-less components
	// become caller-supplied parameters instead of state bindings.
	StateGraph bool
}

type matcherNodes struct {
	ok  NodeIndex
	err NodeIndex
}

type builder struct {
	db     *component.Db
	cons   *component.Constructibles
	sink   diagnostics.Sink
	logger ports.Logger
	params BuildParams

	g *Graph

	// uniq memoises nodes for components with budget One or None.
	uniq map[component.ComponentID]NodeIndex
	// externals memoises external input nodes by type identity.
	externals map[string]NodeIndex
	// matchers maps a fallible producer node to its projection nodes.
	matchers map[NodeIndex]matcherNodes

	errExpanded map[NodeIndex]bool
	transformed map[NodeIndex]bool

	worklist []NodeIndex
	failed   bool
}

// Build constructs the call graph rooted at params.Root. It returns false
// when a diagnostic made the graph unusable.
func Build(ctx context.Context, params BuildParams, db *component.Db, cons *component.Constructibles, sink diagnostics.Sink, logger ports.Logger) (*CallGraph, bool) {
	b := &builder{
		db:          db,
		cons:        cons,
		sink:        sink,
		logger:      logger,
		params:      params,
		g:           NewGraph(),
		uniq:        make(map[component.ComponentID]NodeIndex),
		externals:   make(map[string]NodeIndex),
		matchers:    make(map[NodeIndex]matcherNodes),
		errExpanded: make(map[NodeIndex]bool),
		transformed: make(map[NodeIndex]bool),
	}

	if !b.checkAcyclic() {
		return nil, false
	}

	rootNode := b.componentNode(params.Root)
	b.fixedPoint()
	if b.failed {
		return nil, false
	}

	b.insertMatchBranching()
	b.collapseBorrowOnlyInputs()

	cg := &CallGraph{
		Graph:         b.g,
		Root:          b.reselectRoot(rootNode),
		RootScope:     params.RootScope,
		RootComponent: params.Root,
	}
	logger.Debug(ctx, "call graph built",
		"root", db.RenderComponent(params.Root),
		"nodes", b.g.LiveCount(),
	)
	return cg, true
}

// checkAcyclic walks the type-level dependency graph and refuses to build
// when a component transitively depends on itself.
func (b *builder) checkAcyclic() bool {
	visited := make(map[component.ComponentID]bool)
	stack := make(map[component.ComponentID]bool)
	var chain []component.ComponentID

	var visit func(id component.ComponentID) bool
	visit = func(id component.ComponentID) bool {
		if stack[id] {
			b.reportCycle(append(chain, id))
			return false
		}
		if visited[id] {
			return true
		}
		visited[id] = true
		stack[id] = true
		chain = append(chain, id)
		defer func() {
			stack[id] = false
			chain = chain[:len(chain)-1]
		}()

		for _, t := range b.db.Computation(id).InputTypes() {
			if b.isFrameworkInput(t) {
				continue
			}
			provider, _, ok := b.cons.Get(b.params.RootScope, t)
			if !ok {
				continue
			}
			if !visit(provider) {
				return false
			}
		}
		return true
	}
	return visit(b.params.Root)
}

func (b *builder) reportCycle(chain []component.ComponentID) {
	names := make([]string, 0, len(chain))
	for _, id := range chain {
		names = append(names, b.db.RenderComponent(id))
	}
	b.sink.Report(diagnostics.Diagnostic{
		Code:     diagnostics.CodeDependencyCycle,
		Severity: diagnostics.SeverityError,
		Message:  fmt.Sprintf("the dependency graph contains a cycle: %s", strings.Join(names, " -> ")),
		Location: b.db.Get(chain[0]).Location,
	})
	b.failed = true
}

func (b *builder) isFrameworkInput(t language.Type) bool {
	if framework.IsInjectable(t) {
		return true
	}
	if ref, ok := t.(language.Reference); ok && framework.IsInjectable(ref.Inner) {
		return true
	}
	_, isNext := framework.IsNext(t)
	return isNext
}

// componentNode returns the node computing (or importing) the component,
// creating it when needed.
func (b *builder) componentNode(id component.ComponentID) NodeIndex {
	budget := b.params.Multiplicity(b.db, id)
	if budget != BudgetMultiple {
		if idx, ok := b.uniq[id]; ok {
			return idx
		}
	}
	if _, materialised := b.params.Materialised[id]; materialised && !b.params.StateGraph {
		idx := b.g.AddNode(Node{
			Kind:      NodeInput,
			Source:    SourceComponent,
			Component: id,
			Type:      b.db.Computation(id).OkOutput(),
		})
		b.uniq[id] = idx
		return idx
	}

	switch budget {
	case BudgetNone:
		source := SourceComponent
		if b.params.StateGraph {
			source = SourceExternal
		}
		idx := b.g.AddNode(Node{
			Kind:      NodeInput,
			Source:    source,
			Component: id,
			Type:      b.db.Computation(id).OkOutput(),
		})
		b.uniq[id] = idx
		return idx
	case BudgetOne:
		idx := b.g.AddNode(Node{Kind: NodeCompute, Component: id, Multiplicity: MultiplicityOne})
		b.uniq[id] = idx
		b.worklist = append(b.worklist, idx)
		return idx
	default:
		idx := b.g.AddNode(Node{Kind: NodeCompute, Component: id, Multiplicity: MultiplicityMultiple})
		b.worklist = append(b.worklist, idx)
		return idx
	}
}

// valueNode returns the node producing the component's usable value: the
// Ok projection for fallible computations, the node itself otherwise.
func (b *builder) valueNode(id component.ComponentID) NodeIndex {
	idx := b.componentNode(id)
	if b.g.Node(idx).Kind != NodeCompute {
		return idx
	}
	if !b.db.Computation(id).IsFallible() {
		return idx
	}
	pair := b.matcherNodesFor(idx, id)
	return pair.ok
}

func (b *builder) matcherNodesFor(producer NodeIndex, id component.ComponentID) matcherNodes {
	if pair, ok := b.matchers[producer]; ok {
		return pair
	}
	dbPair, ok := b.db.Matchers(id)
	if !ok {
		panic(fmt.Sprintf("no matchers derived for fallible component %d: this is a bug in the compiler", id))
	}
	mult := b.g.Node(producer).Multiplicity
	okNode := b.g.AddNode(Node{Kind: NodeCompute, Component: dbPair.Ok, Multiplicity: mult})
	errNode := b.g.AddNode(Node{Kind: NodeCompute, Component: dbPair.Err, Multiplicity: mult})
	b.g.AddEdge(producer, okNode, EdgeMove)
	b.g.AddEdge(producer, errNode, EdgeMove)
	pair := matcherNodes{ok: okNode, err: errNode}
	b.matchers[producer] = pair
	return pair
}

// fixedPoint drains the worklist, then expands error handlers and
// transformers until a full pass adds nothing new.
func (b *builder) fixedPoint() {
	for {
		b.drain()
		added := b.expandErrorHandlers()
		added = b.expandTransformers() || added
		if !added && len(b.worklist) == 0 {
			return
		}
	}
}

func (b *builder) drain() {
	for len(b.worklist) > 0 {
		idx := b.worklist[0]
		b.worklist = b.worklist[1:]
		b.expandInputs(idx)
	}
}

// expandInputs attaches one inbound edge per input of the node's
// computation, in signature order.
func (b *builder) expandInputs(idx NodeIndex) {
	id := b.g.Node(idx).Component
	for _, t := range b.db.Computation(id).InputTypes() {
		b.attachInput(idx, t)
	}
}

func (b *builder) attachInput(consumer NodeIndex, t language.Type) {
	if b.isFrameworkInput(t) {
		ext := b.externalInput(t)
		b.g.AddEdge(ext, consumer, EdgeMove)
		return
	}
	provider, mode, ok := b.cons.Get(b.params.RootScope, t)
	if !ok {
		ext := b.externalInput(t)
		b.g.AddEdge(ext, consumer, EdgeMove)
		return
	}
	pn := b.valueNode(provider)
	kind := EdgeMove
	if mode == component.ModeSharedBorrow {
		kind = EdgeSharedBorrow
	}
	b.g.AddEdge(pn, consumer, kind)
}

func (b *builder) externalInput(t language.Type) NodeIndex {
	key := t.Key()
	if idx, ok := b.externals[key]; ok {
		return idx
	}
	idx := b.g.AddNode(Node{
		Kind:      NodeInput,
		Source:    SourceExternal,
		Component: component.NoComponentID,
		Type:      t,
	})
	b.externals[key] = idx
	return idx
}

// expandErrorHandlers attaches, for every fallible compute node with a
// registered error handler, the handler plus the error observers in scope.
func (b *builder) expandErrorHandlers() bool {
	added := false
	for _, idx := range b.g.Indices() {
		n := b.g.Node(idx)
		if n.Kind != NodeCompute || b.errExpanded[idx] {
			continue
		}
		id := n.Component
		c := b.db.Get(id)
		comp := b.db.Computation(id)
		if !comp.IsFallible() || c.Lifecycle == blueprint.LifecycleSingleton {
			continue
		}
		handler, ok := b.db.ErrorHandlerFor(id)
		if !ok {
			continue
		}
		b.errExpanded[idx] = true
		added = true

		pair := b.matcherNodesFor(idx, id)
		errType := comp.Output.(language.Result).Err

		for _, obs := range b.params.Observers {
			b.attachObserver(pair.err, errType, obs, c.Scope)
		}
		b.attachErrorHandler(pair.err, errType, handler)
	}
	return added
}

func (b *builder) attachErrorHandler(errNode NodeIndex, errType language.Type, handler component.ComponentID) {
	hn := b.g.AddNode(Node{Kind: NodeCompute, Component: handler, Multiplicity: MultiplicityOne})
	errRef := language.Reference{Inner: errType}
	for _, t := range b.db.Computation(handler).InputTypes() {
		if language.Equal(t, errRef) {
			b.g.AddEdge(errNode, hn, EdgeSharedBorrow)
			continue
		}
		b.attachInput(hn, t)
	}
}

func (b *builder) attachObserver(errNode NodeIndex, errType language.Type, obs component.ComponentID, scope blueprint.ScopeID) {
	conv := b.db.RegisterSynthetic(
		component.KindTransformer,
		framework.AsErrorCallable(errType),
		scope,
		blueprint.LifecycleTransient,
	)
	cn := b.g.AddNode(Node{Kind: NodeCompute, Component: conv, Multiplicity: MultiplicityOne})
	b.g.AddEdge(errNode, cn, EdgeSharedBorrow)

	on := b.g.AddNode(Node{Kind: NodeCompute, Component: obs, Multiplicity: MultiplicityMultiple})
	errRef := language.Reference{Inner: framework.UniversalError()}
	for _, t := range b.db.Computation(obs).InputTypes() {
		if language.Equal(t, errRef) {
			b.g.AddEdge(cn, on, EdgeSharedBorrow)
			continue
		}
		b.attachInput(on, t)
	}
}

// expandTransformers attaches registered transformers (response coercions)
// to the compute nodes of their target components.
func (b *builder) expandTransformers() bool {
	added := false
	scopes := b.db.Scopes()
	for _, idx := range b.g.Indices() {
		n := b.g.Node(idx)
		if n.Kind != NodeCompute || b.transformed[idx] {
			continue
		}
		b.transformed[idx] = true
		for _, tid := range b.db.TransformersOf(n.Component) {
			if !scopes.IsDescendant(b.params.RootScope, b.db.Get(tid).Scope) {
				continue
			}
			tn := b.g.AddNode(Node{Kind: NodeCompute, Component: tid, Multiplicity: n.Multiplicity})
			b.g.AddEdge(idx, tn, EdgeMove)
			added = true
		}
	}
	return added
}

// insertMatchBranching splits every fallible producer from its two
// projections with an explicit branching node.
func (b *builder) insertMatchBranching() {
	producers := make([]NodeIndex, 0, len(b.matchers))
	for producer := range b.matchers {
		producers = append(producers, producer)
	}
	sort.Slice(producers, func(i, j int) bool { return producers[i] < producers[j] })
	for _, producer := range producers {
		pair := b.matchers[producer]
		branch := b.g.AddNode(Node{Kind: NodeMatchBranching})
		for _, eid := range append([]EdgeID(nil), b.g.OutEdges(producer)...) {
			to := b.g.Edge(eid).To
			if to == pair.ok || to == pair.err {
				b.g.RemoveEdge(eid)
			}
		}
		b.g.AddEdge(producer, branch, EdgeMove)
		b.g.AddEdge(branch, pair.ok, EdgeMove)
		b.g.AddEdge(branch, pair.err, EdgeMove)
	}
}

// collapseBorrowOnlyInputs rewrites external inputs that are only ever
// borrowed into reference-typed inputs, so the generated function can
// accept a reference instead of taking ownership.
func (b *builder) collapseBorrowOnlyInputs() {
	for _, idx := range b.g.Indices() {
		n := b.g.Node(idx)
		if n.Kind != NodeInput || n.Source != SourceExternal {
			continue
		}
		if _, isRef := n.Type.(language.Reference); isRef {
			continue
		}
		out := b.g.OutEdges(idx)
		if len(out) == 0 {
			continue
		}
		borrowOnly := true
		for _, eid := range out {
			if b.g.Edge(eid).Kind != EdgeSharedBorrow {
				borrowOnly = false
				break
			}
		}
		if !borrowOnly {
			continue
		}
		n.Type = language.Reference{Inner: n.Type}
		for _, eid := range out {
			b.g.SetEdgeKind(eid, EdgeMove)
		}
	}
}

// reselectRoot walks forward from the original root along the Ok path
// until it reaches the node whose value the generated function returns.
func (b *builder) reselectRoot(root NodeIndex) NodeIndex {
	cur := root
	for {
		next := NoNode
		if pair, ok := b.matchers[cur]; ok {
			next = pair.ok
		} else {
			for _, child := range b.g.Children(cur) {
				cn := b.g.Node(child)
				if cn.Kind == NodeCompute && b.db.Get(cn.Component).Kind == component.KindTransformer {
					next = child
					break
				}
			}
		}
		if next == NoNode {
			return cur
		}
		cur = next
	}
}
