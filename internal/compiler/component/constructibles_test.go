package component

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/loom/internal/blueprint"
	"github.com/alexisbeaulieu97/loom/internal/diagnostics"
	"github.com/alexisbeaulieu97/loom/internal/framework"
	"github.com/alexisbeaulieu97/loom/internal/language"
)

func TestConstructiblesScopeVisibility(t *testing.T) {
	orc := newTestOracle()
	orc.AddCallable("app.BuildFoo", fn("app.BuildFoo", nil, appType("Foo")))
	orc.AddCallable("app.Handle", fn("app.Handle", []language.Type{appType("Foo")}, framework.Response()))

	// The constructor sits in the root blueprint; the route gets its own
	// child scope.
	bp := blueprint.New()
	bp.Constructor("app.BuildFoo", blueprint.LifecycleRequestScoped)
	bp.Route(blueprint.GuardMethods("GET"), "/a", "app.Handle")

	db, sink := buildTestDb(t, orc, bp)
	require.False(t, sink.HasErrors())
	cons := NewConstructibles(db, sink)

	routeScope := db.Get(db.Routes()[0]).Scope
	foo := db.Computation(db.Constructors()[0]).OkOutput()

	id, mode, ok := cons.Get(routeScope, foo)
	require.True(t, ok)
	assert.Equal(t, db.Constructors()[0], id)
	assert.Equal(t, ModeMove, mode)

	// Visible at the registration scope itself, too.
	_, _, ok = cons.Get(db.Get(db.Constructors()[0]).Scope, foo)
	assert.True(t, ok)
}

func TestConstructiblesBorrowLookup(t *testing.T) {
	orc := newTestOracle()
	orc.AddCallable("app.BuildFoo", fn("app.BuildFoo", nil, appType("Foo")))

	bp := blueprint.New()
	bp.Constructor("app.BuildFoo", blueprint.LifecycleRequestScoped)

	db, sink := buildTestDb(t, orc, bp)
	require.False(t, sink.HasErrors())
	cons := NewConstructibles(db, sink)

	foo := db.Computation(db.Constructors()[0]).OkOutput()
	ref := language.Reference{Inner: foo}

	id, mode, ok := cons.Get(db.Scopes().Root(), ref)
	require.True(t, ok)
	assert.Equal(t, db.Constructors()[0], id)
	assert.Equal(t, ModeSharedBorrow, mode)
}

func TestConstructiblesMiss(t *testing.T) {
	orc := newTestOracle()
	bp := blueprint.New()

	db, sink := buildTestDb(t, orc, bp)
	cons := NewConstructibles(db, sink)

	_, _, ok := cons.Get(db.Scopes().Root(), appType("Nope"))
	assert.False(t, ok)
}

func TestConstructiblesAmbiguityInSameScope(t *testing.T) {
	orc := newTestOracle()
	orc.AddCallable("app.BuildFoo", fn("app.BuildFoo", nil, appType("Foo")))
	orc.AddCallable("app.BuildFooToo", fn("app.BuildFooToo", nil, appType("Foo")))

	bp := blueprint.New()
	bp.Constructor("app.BuildFoo", blueprint.LifecycleRequestScoped)
	bp.Constructor("app.BuildFooToo", blueprint.LifecycleRequestScoped)

	db, sink := buildTestDb(t, orc, bp)
	require.False(t, sink.HasErrors())
	NewConstructibles(db, sink)

	assert.Contains(t, diagnosticCodes(sink), diagnostics.CodeConstructorAmbiguity)
}

func TestConstructiblesNearerScopeShadows(t *testing.T) {
	orc := newTestOracle()
	orc.AddCallable("app.BuildFoo", fn("app.BuildFoo", nil, appType("Foo")))
	orc.AddCallable("app.BuildNestedFoo", fn("app.BuildNestedFoo", nil, appType("Foo")))
	orc.AddCallable("app.Handle", fn("app.Handle", []language.Type{appType("Foo")}, framework.Response()))

	child := blueprint.New()
	child.Constructor("app.BuildNestedFoo", blueprint.LifecycleRequestScoped)
	child.Route(blueprint.GuardMethods("GET"), "/a", "app.Handle")

	root := blueprint.New()
	root.Constructor("app.BuildFoo", blueprint.LifecycleRequestScoped)
	root.Nest(child)

	db, sink := buildTestDb(t, orc, root)
	require.False(t, sink.HasErrors())
	cons := NewConstructibles(db, sink)
	require.False(t, sink.HasErrors())

	routeScope := db.Get(db.Routes()[0]).Scope
	foo := db.Computation(db.Constructors()[0]).OkOutput()

	id, _, ok := cons.Get(routeScope, foo)
	require.True(t, ok)
	assert.Equal(t, "app.BuildNestedFoo", db.RenderComponent(id))
}

func TestConstructiblesTemplateSpecialisation(t *testing.T) {
	orc := newTestOracle()
	listOfT := appType("List", language.Generic{Name: "T"})
	orc.AddCallable("app.BuildList", fn("app.BuildList", nil, listOfT))

	bp := blueprint.New()
	bp.Constructor("app.BuildList", blueprint.LifecycleRequestScoped)

	db, sink := buildTestDb(t, orc, bp)
	require.False(t, sink.HasErrors())
	cons := NewConstructibles(db, sink)

	requested := orc.Canonical(appType("List", appType("Foo")))

	id, mode, ok := cons.Get(db.Scopes().Root(), requested)
	require.True(t, ok)
	assert.Equal(t, ModeMove, mode)
	assert.True(t, language.Equal(db.Computation(id).OkOutput(), requested))
	assert.True(t, db.Get(id).IsDerived())

	// Specialisation is idempotent: the same request reuses the derived
	// constructor.
	again, _, ok := cons.Get(db.Scopes().Root(), requested)
	require.True(t, ok)
	assert.Equal(t, id, again)
}

func TestConstructiblesTemplateRejectsBadRequest(t *testing.T) {
	orc := newTestOracle()
	listOfT := appType("List", language.Generic{Name: "T"})
	orc.AddCallable("app.BuildList", fn("app.BuildList", nil, listOfT))

	bp := blueprint.New()
	bp.Constructor("app.BuildList", blueprint.LifecycleRequestScoped)

	db, sink := buildTestDb(t, orc, bp)
	cons := NewConstructibles(db, sink)

	_, _, ok := cons.Get(db.Scopes().Root(), orc.Canonical(appType("Set", appType("Foo"))))
	assert.False(t, ok)
}
