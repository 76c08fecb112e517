package callgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/loom/internal/blueprint"
	"github.com/alexisbeaulieu97/loom/internal/compiler/component"
	"github.com/alexisbeaulieu97/loom/internal/diagnostics"
	"github.com/alexisbeaulieu97/loom/internal/framework"
	"github.com/alexisbeaulieu97/loom/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/loom/internal/language"
	"github.com/alexisbeaulieu97/loom/internal/oracle"
)

type fixture struct {
	orc  *oracle.Oracle
	db   *component.Db
	cons *component.Constructibles
	sink *diagnostics.Collector
}

func appType(name string, args ...language.Type) language.PathType {
	return language.PathType{ImportPath: "app", Name: name, GenericArgs: args}
}

func fn(path string, inputs []language.Type, output language.Type) *language.Callable {
	fq, err := language.ParseFQPath(path)
	if err != nil {
		panic(err)
	}
	return &language.Callable{Path: fq, Inputs: inputs, Output: output}
}

func newFixture(t *testing.T, seed func(orc *oracle.Oracle), register func(bp *blueprint.Blueprint)) *fixture {
	t.Helper()
	orc := oracle.New()
	orc.AddPackage("app", "pkg-app", "1.0.0")
	seed(orc)

	bp := blueprint.New()
	register(bp)

	sink := diagnostics.NewCollector()
	table := blueprint.Read(context.Background(), bp, sink, logging.NewNoOpLogger())
	db := component.NewDb(context.Background(), table, orc, sink, logging.NewNoOpLogger())
	cons := component.NewConstructibles(db, sink)
	require.False(t, sink.HasErrors(), "fixture must be valid: %v", sink.All())
	return &fixture{orc: orc, db: db, cons: cons, sink: sink}
}

func (f *fixture) buildFor(t *testing.T, root component.ComponentID) (*CallGraph, bool) {
	t.Helper()
	routeScope := f.db.Get(root).Scope
	return Build(context.Background(), BuildParams{
		Root:         root,
		RootScope:    routeScope,
		Multiplicity: RequestScopedMultiplicity,
		Observers:    f.db.ObserverChain(root),
	}, f.db, f.cons, f.sink, logging.NewNoOpLogger())
}

func (f *fixture) handler() component.ComponentID {
	return f.db.Routes()[0]
}

func countNodes(g *CallGraph, pred func(*Node) bool) int {
	n := 0
	for _, idx := range g.Indices() {
		if pred(g.Node(idx)) {
			n++
		}
	}
	return n
}

func TestBuildSimpleGraph(t *testing.T) {
	f := newFixture(t,
		func(orc *oracle.Oracle) {
			orc.AddCallable("app.BuildFoo", fn("app.BuildFoo", nil, appType("Foo")))
			orc.AddCallable("app.Handle", fn("app.Handle", []language.Type{appType("Foo")}, framework.Response()))
		},
		func(bp *blueprint.Blueprint) {
			bp.Constructor("app.BuildFoo", blueprint.LifecycleRequestScoped)
			bp.Route(blueprint.GuardMethods("GET"), "/a", "app.Handle")
		},
	)

	g, ok := f.buildFor(t, f.handler())
	require.True(t, ok)

	computes := countNodes(g, func(n *Node) bool { return n.Kind == NodeCompute })
	assert.Equal(t, 2, computes, "constructor and handler")
	assert.Empty(t, g.ExternalInputs())

	// Every compute node's inbound edge count matches its arity.
	for _, idx := range g.Indices() {
		n := g.Node(idx)
		if n.Kind != NodeCompute {
			continue
		}
		arity := len(f.db.Computation(n.Component).InputTypes())
		assert.Equal(t, arity, len(g.InEdges(idx)), "arity of %s", f.db.RenderComponent(n.Component))
	}
}

func TestBuildSingletonBecomesStateInput(t *testing.T) {
	f := newFixture(t,
		func(orc *oracle.Oracle) {
			orc.AddCallable("app.BuildPool", fn("app.BuildPool", nil, appType("Pool")))
			orc.AddCallable("app.Handle", fn("app.Handle",
				[]language.Type{language.Reference{Inner: appType("Pool")}}, framework.Response()))
		},
		func(bp *blueprint.Blueprint) {
			bp.Constructor("app.BuildPool", blueprint.LifecycleSingleton)
			bp.Route(blueprint.GuardMethods("GET"), "/a", "app.Handle")
		},
	)

	g, ok := f.buildFor(t, f.handler())
	require.True(t, ok)

	inputs := g.ComponentInputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, "app.BuildPool", f.db.RenderComponent(g.Node(inputs[0]).Component))

	// Singletons are never computed inside a request graph.
	assert.Equal(t, 0, countNodes(g, func(n *Node) bool {
		return n.Kind == NodeCompute && f.db.Get(n.Component).Lifecycle == blueprint.LifecycleSingleton
	}))
}

func TestBuildRequestScopedIsShared(t *testing.T) {
	foo := appType("Foo")
	f := newFixture(t,
		func(orc *oracle.Oracle) {
			orc.AddCallable("app.BuildFoo", fn("app.BuildFoo", nil, foo))
			orc.AddCallable("app.BuildBar", fn("app.BuildBar", []language.Type{foo}, appType("Bar")))
			orc.AddCallable("app.Handle", fn("app.Handle",
				[]language.Type{appType("Bar"), language.Reference{Inner: foo}}, framework.Response()))
		},
		func(bp *blueprint.Blueprint) {
			bp.Constructor("app.BuildFoo", blueprint.LifecycleRequestScoped).CloneIfNecessary()
			bp.Constructor("app.BuildBar", blueprint.LifecycleRequestScoped)
			bp.Route(blueprint.GuardMethods("GET"), "/a", "app.Handle")
		},
	)

	g, ok := f.buildFor(t, f.handler())
	require.True(t, ok)

	buildFooNodes := countNodes(g, func(n *Node) bool {
		return n.Kind == NodeCompute && f.db.RenderComponent(n.Component) == "app.BuildFoo"
	})
	assert.Equal(t, 1, buildFooNodes, "request-scoped constructors are memoised")
}

func TestBuildTransientGetsOwnNodes(t *testing.T) {
	stamp := appType("Stamp")
	f := newFixture(t,
		func(orc *oracle.Oracle) {
			orc.AddCallable("app.NewStamp", fn("app.NewStamp", nil, stamp))
			orc.AddCallable("app.BuildBar", fn("app.BuildBar", []language.Type{stamp}, appType("Bar")))
			orc.AddCallable("app.Handle", fn("app.Handle",
				[]language.Type{appType("Bar"), stamp}, framework.Response()))
		},
		func(bp *blueprint.Blueprint) {
			bp.Constructor("app.NewStamp", blueprint.LifecycleTransient)
			bp.Constructor("app.BuildBar", blueprint.LifecycleRequestScoped)
			bp.Route(blueprint.GuardMethods("GET"), "/a", "app.Handle")
		},
	)

	g, ok := f.buildFor(t, f.handler())
	require.True(t, ok)

	stampNodes := countNodes(g, func(n *Node) bool {
		return n.Kind == NodeCompute && f.db.RenderComponent(n.Component) == "app.NewStamp"
	})
	assert.Equal(t, 2, stampNodes, "transients are rebuilt at every use site")
}

func TestBuildFrameworkInjectableBecomesExternalInput(t *testing.T) {
	f := newFixture(t,
		func(orc *oracle.Oracle) {
			orc.AddCallable("app.Handle", fn("app.Handle",
				[]language.Type{framework.Item(framework.RequestHeadName)}, framework.Response()))
		},
		func(bp *blueprint.Blueprint) {
			bp.Route(blueprint.GuardMethods("GET"), "/a", "app.Handle")
		},
	)

	g, ok := f.buildFor(t, f.handler())
	require.True(t, ok)
	require.Len(t, g.ExternalInputs(), 1)
}

func TestBuildFallibleConstructorInsertsBranching(t *testing.T) {
	foo := appType("Foo")
	fooErr := appType("FooErr")
	f := newFixture(t,
		func(orc *oracle.Oracle) {
			orc.AddCallable("app.BuildFoo", fn("app.BuildFoo", nil, language.Result{Ok: foo, Err: fooErr}))
			orc.AddCallable("app.HandleFooErr", fn("app.HandleFooErr",
				[]language.Type{language.Reference{Inner: fooErr}}, framework.Response()))
			orc.AddCallable("app.Handle", fn("app.Handle", []language.Type{foo}, framework.Response()))
		},
		func(bp *blueprint.Blueprint) {
			bp.Constructor("app.BuildFoo", blueprint.LifecycleRequestScoped).ErrorHandler("app.HandleFooErr")
			bp.Route(blueprint.GuardMethods("GET"), "/a", "app.Handle")
		},
	)

	g, ok := f.buildFor(t, f.handler())
	require.True(t, ok)

	branches := countNodes(g, func(n *Node) bool { return n.Kind == NodeMatchBranching })
	require.Equal(t, 1, branches)

	handlerNodes := countNodes(g, func(n *Node) bool {
		return n.Kind == NodeCompute && f.db.RenderComponent(n.Component) == "app.HandleFooErr"
	})
	assert.Equal(t, 1, handlerNodes, "error handler expanded into the graph")

	// The error handler borrows the Err projection.
	for _, idx := range g.Indices() {
		n := g.Node(idx)
		if n.Kind != NodeCompute || f.db.RenderComponent(n.Component) != "app.HandleFooErr" {
			continue
		}
		require.Len(t, g.InEdges(idx), 1)
		assert.Equal(t, EdgeSharedBorrow, g.Edge(g.InEdges(idx)[0]).Kind)
	}
}

func TestBuildObserversOnErrorPath(t *testing.T) {
	foo := appType("Foo")
	fooErr := appType("FooErr")
	f := newFixture(t,
		func(orc *oracle.Oracle) {
			orc.AddCallable("app.BuildFoo", fn("app.BuildFoo", nil, language.Result{Ok: foo, Err: fooErr}))
			orc.AddCallable("app.HandleFooErr", fn("app.HandleFooErr",
				[]language.Type{language.Reference{Inner: fooErr}}, framework.Response()))
			orc.AddCallable("app.Handle", fn("app.Handle", []language.Type{foo}, framework.Response()))
			orc.AddCallable("app.LogError", fn("app.LogError",
				[]language.Type{language.Reference{Inner: framework.UniversalError()}}, nil))
		},
		func(bp *blueprint.Blueprint) {
			bp.ErrorObserver("app.LogError")
			bp.Constructor("app.BuildFoo", blueprint.LifecycleRequestScoped).ErrorHandler("app.HandleFooErr")
			bp.Route(blueprint.GuardMethods("GET"), "/a", "app.Handle")
		},
	)

	g, ok := f.buildFor(t, f.handler())
	require.True(t, ok)

	observers := countNodes(g, func(n *Node) bool {
		return n.Kind == NodeCompute && f.db.RenderComponent(n.Component) == "app.LogError"
	})
	assert.Equal(t, 1, observers)
}

func TestBuildBorrowOnlyInputCollapses(t *testing.T) {
	f := newFixture(t,
		func(orc *oracle.Oracle) {
			orc.AddCallable("app.Handle", fn("app.Handle",
				[]language.Type{language.Reference{Inner: framework.Item(framework.RequestHeadName)}},
				framework.Response()))
		},
		func(bp *blueprint.Blueprint) {
			bp.Route(blueprint.GuardMethods("GET"), "/a", "app.Handle")
		},
	)

	g, ok := f.buildFor(t, f.handler())
	require.True(t, ok)

	inputs := g.ExternalInputs()
	require.Len(t, inputs, 1)
	_, isRef := g.Node(inputs[0]).Type.(language.Reference)
	assert.True(t, isRef, "borrow-only inputs are taken by reference")
	for _, eid := range g.OutEdges(inputs[0]) {
		assert.Equal(t, EdgeMove, g.Edge(eid).Kind)
	}
}

func TestBuildRejectsDependencyCycle(t *testing.T) {
	a := appType("A")
	b := appType("B")
	f := newFixture(t,
		func(orc *oracle.Oracle) {
			orc.AddCallable("app.BuildA", fn("app.BuildA", []language.Type{b}, a))
			orc.AddCallable("app.BuildB", fn("app.BuildB", []language.Type{a}, b))
			orc.AddCallable("app.Handle", fn("app.Handle", []language.Type{a}, framework.Response()))
		},
		func(bp *blueprint.Blueprint) {
			bp.Constructor("app.BuildA", blueprint.LifecycleRequestScoped)
			bp.Constructor("app.BuildB", blueprint.LifecycleRequestScoped)
			bp.Route(blueprint.GuardMethods("GET"), "/a", "app.Handle")
		},
	)

	_, ok := f.buildFor(t, f.handler())
	assert.False(t, ok)

	found := false
	for _, d := range f.sink.All() {
		if d.Code == diagnostics.CodeDependencyCycle {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBuildRootReselection(t *testing.T) {
	userList := appType("UserList")
	f := newFixture(t,
		func(orc *oracle.Oracle) {
			require.NoError(t, orc.AddType("app.UserList"))
			orc.AllowCapability(userList, "IntoResponse")
			orc.AddCallable("app.List", fn("app.List", nil, userList))
		},
		func(bp *blueprint.Blueprint) {
			bp.Route(blueprint.GuardMethods("GET"), "/users", "app.List")
		},
	)

	g, ok := f.buildFor(t, f.handler())
	require.True(t, ok)

	root := g.Node(g.Root)
	require.Equal(t, NodeCompute, root.Kind)
	assert.Equal(t, component.KindTransformer, f.db.Get(root.Component).Kind,
		"the root is the response coercion, not the raw handler")
	assert.Empty(t, g.OutEdges(g.Root))
}

func TestApplicationStateMultiplicity(t *testing.T) {
	f := newFixture(t,
		func(orc *oracle.Oracle) {
			orc.AddCallable("app.BuildPool", fn("app.BuildPool", nil, appType("Pool")))
		},
		func(bp *blueprint.Blueprint) {
			bp.Constructor("app.BuildPool", blueprint.LifecycleSingleton)
		},
	)

	pool := f.db.Constructors()[0]
	assert.Equal(t, BudgetOne, ApplicationStateMultiplicity(f.db, pool))
	assert.Equal(t, BudgetNone, RequestScopedMultiplicity(f.db, pool))
}
