package compiler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/loom/internal/blueprint"
	"github.com/alexisbeaulieu97/loom/internal/diagnostics"
	"github.com/alexisbeaulieu97/loom/internal/framework"
	"github.com/alexisbeaulieu97/loom/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/loom/internal/language"
	"github.com/alexisbeaulieu97/loom/internal/oracle"
)

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

func newOracle() *oracle.Oracle {
	orc := oracle.New()
	orc.AddPackage("app", "pkg-app", "1.0.0")
	return orc
}

func compile(t *testing.T, orc *oracle.Oracle, bp *blueprint.Blueprint) (*Result, *diagnostics.Collector, error) {
	t.Helper()
	sink := diagnostics.NewCollector()
	result, err := Compile(context.Background(), bp, orc, sink, logging.NewNoOpLogger(), Options{
		ModuleName: "acme/server",
	})
	return result, sink, err
}

func hasCode(sink *diagnostics.Collector, code diagnostics.Code) bool {
	for _, d := range sink.All() {
		if d.Code == code {
			return true
		}
	}
	return false
}

// functionBody extracts the body of one generated function.
func functionBody(t *testing.T, source, name string) string {
	t.Helper()
	marker := "func " + name + "("
	start := strings.Index(source, marker)
	require.GreaterOrEqual(t, start, 0, "generated source must contain %s", name)
	end := strings.Index(source[start:], "\n}\n")
	require.GreaterOrEqual(t, end, 0)
	return source[start : start+end]
}

func TestTwoRoutesSharedRequestScopedConstructor(t *testing.T) {
	orc := newOracle()
	foo := appType("Foo")
	orc.AddCallable("app.BuildFoo", fn("app.BuildFoo", nil, foo))
	orc.AddCallable("app.HandleA", fn("app.HandleA", []language.Type{foo}, framework.Response()))
	orc.AddCallable("app.HandleB", fn("app.HandleB", []language.Type{foo}, framework.Response()))

	bp := blueprint.New()
	bp.Constructor("app.BuildFoo", blueprint.LifecycleRequestScoped)
	bp.Route(blueprint.GuardMethods("GET"), "/a", "app.HandleA")
	bp.Route(blueprint.GuardMethods("GET"), "/b", "app.HandleB")

	result, sink, err := compile(t, orc, bp)
	require.NoError(t, err)
	require.False(t, sink.HasErrors())

	source := result.App.Source
	for _, name := range []string{"route0", "route1"} {
		body := functionBody(t, source, name)
		assert.Equal(t, 1, strings.Count(body, "BuildFoo("),
			"%s must build Foo exactly once before calling the handler", name)
	}
	assert.Contains(t, functionBody(t, source, "route0"), "HandleA(")
	assert.Contains(t, functionBody(t, source, "route1"), "HandleB(")
}

func TestFallibleConstructorWithErrorHandler(t *testing.T) {
	orc := newOracle()
	foo := appType("Foo")
	fooErr := appType("FooErr")
	page := appType("Page")
	require.NoError(t, orc.AddType("app.Page"))
	orc.AllowCapability(page, "IntoResponse")
	orc.AddCallable("app.BuildFoo", fn("app.BuildFoo", nil, language.Result{Ok: foo, Err: fooErr}))
	orc.AddCallable("app.HandleFooErr", fn("app.HandleFooErr",
		[]language.Type{language.Reference{Inner: fooErr}}, framework.Response()))
	orc.AddCallable("app.Handle", fn("app.Handle", []language.Type{foo}, page))

	bp := blueprint.New()
	bp.Constructor("app.BuildFoo", blueprint.LifecycleRequestScoped).ErrorHandler("app.HandleFooErr")
	bp.Route(blueprint.GuardMethods("GET"), "/", "app.Handle")

	result, sink, err := compile(t, orc, bp)
	require.NoError(t, err)
	require.False(t, sink.HasErrors())

	body := functionBody(t, result.App.Source, "route0")
	assert.Contains(t, body, "BuildFoo()")
	assert.Contains(t, body, "if err != nil {")
	assert.Contains(t, body, "HandleFooErr(&err)", "the error handler borrows the error")
	assert.Contains(t, body, "Handle(foo)")
	assert.Contains(t, body, "IntoResponse(", "the handler output is coerced into a response")
}

func TestBorrowConflictResolvedByClone(t *testing.T) {
	orc := newOracle()
	foo := appType("Foo")
	require.NoError(t, orc.AddType("app.Foo"))
	orc.AllowCapability(foo, "Clone")
	orc.AddCallable("app.BuildFoo", fn("app.BuildFoo", nil, foo))
	orc.AddCallable("app.BuildBar", fn("app.BuildBar", []language.Type{foo}, appType("Bar")))
	orc.AddCallable("app.Handle", fn("app.Handle",
		[]language.Type{appType("Bar"), language.Reference{Inner: foo}}, framework.Response()))

	bp := blueprint.New()
	bp.Constructor("app.BuildFoo", blueprint.LifecycleRequestScoped).CloneIfNecessary()
	bp.Constructor("app.BuildBar", blueprint.LifecycleRequestScoped)
	bp.Route(blueprint.GuardMethods("GET"), "/a", "app.Handle")

	result, sink, err := compile(t, orc, bp)
	require.NoError(t, err)
	require.False(t, sink.HasErrors(), "diagnostics must be empty: %v", sink.All())

	body := functionBody(t, result.App.Source, "route0")
	assert.Contains(t, body, ".Clone()", "a clone is inserted between the provider and the consumer")
}

func TestBorrowConflictNotResolvable(t *testing.T) {
	orc := newOracle()
	foo := appType("Foo")
	require.NoError(t, orc.AddType("app.Foo"))
	orc.AddCallable("app.BuildFoo", fn("app.BuildFoo", nil, foo))
	orc.AddCallable("app.BuildBar", fn("app.BuildBar", []language.Type{foo}, appType("Bar")))
	orc.AddCallable("app.Handle", fn("app.Handle",
		[]language.Type{appType("Bar"), language.Reference{Inner: foo}}, framework.Response()))

	bp := blueprint.New()
	bp.Constructor("app.BuildFoo", blueprint.LifecycleRequestScoped)
	bp.Constructor("app.BuildBar", blueprint.LifecycleRequestScoped)
	bp.Route(blueprint.GuardMethods("GET"), "/a", "app.Handle")

	result, sink, err := compile(t, orc, bp)
	require.ErrorIs(t, err, ErrCompilationFailed)
	assert.Nil(t, result, "no source file is generated on borrow-checker failure")
	assert.True(t, hasCode(sink, diagnostics.CodeBorrowCheckerConflict))

	found := false
	for _, d := range sink.All() {
		if d.Code != diagnostics.CodeBorrowCheckerConflict {
			continue
		}
		if strings.Contains(d.Message, "app.BuildBar") && strings.Contains(d.Message, "app.Handle") {
			found = true
		}
	}
	assert.True(t, found, "the diagnostic names consumer and borrower by their registered paths")
}

func TestMethodConflict(t *testing.T) {
	orc := newOracle()
	orc.AddCallable("app.HandleA", fn("app.HandleA", nil, framework.Response()))
	orc.AddCallable("app.HandleB", fn("app.HandleB", nil, framework.Response()))

	bp := blueprint.New()
	bp.Route(blueprint.GuardMethods("GET"), "/x", "app.HandleA")
	bp.Route(blueprint.GuardMethods("GET"), "/x", "app.HandleB")

	result, sink, err := compile(t, orc, bp)
	require.ErrorIs(t, err, ErrCompilationFailed)
	assert.Nil(t, result)
	require.True(t, hasCode(sink, diagnostics.CodeRouterConflict))

	for _, d := range sink.All() {
		if d.Code == diagnostics.CodeRouterConflict {
			assert.NotEmpty(t, d.Related, "both registration locations are named")
		}
	}
}

func TestFallibleSingletonBuildsStateError(t *testing.T) {
	orc := newOracle()
	pool := appType("Pool")
	poolErr := appType("PoolErr")
	orc.AddCallable("app.BuildPool", fn("app.BuildPool", nil, language.Result{Ok: pool, Err: poolErr}))
	orc.AddCallable("app.Handle", fn("app.Handle",
		[]language.Type{language.Reference{Inner: pool}}, framework.Response()))

	bp := blueprint.New()
	bp.Constructor("app.BuildPool", blueprint.LifecycleSingleton)
	bp.Route(blueprint.GuardMethods("GET"), "/", "app.Handle")

	result, sink, err := compile(t, orc, bp)
	require.NoError(t, err)
	require.False(t, sink.HasErrors(), "no error handler is required for a fallible singleton")

	source := result.App.Source
	assert.Contains(t, source, "type ApplicationStateError struct {")
	assert.Contains(t, source, "PoolErr")
	buildBody := functionBody(t, source, "BuildApplicationState")
	assert.Contains(t, buildBody, "BuildPool()")
	assert.Contains(t, buildBody, "&ApplicationStateError{PoolErr: err}")
}

func TestZeroInputHandler(t *testing.T) {
	orc := newOracle()
	orc.AddCallable("app.Ping", fn("app.Ping", nil, framework.Response()))

	bp := blueprint.New()
	bp.Route(blueprint.GuardMethods("GET"), "/ping", "app.Ping")

	result, sink, err := compile(t, orc, bp)
	require.NoError(t, err)
	require.False(t, sink.HasErrors())

	assert.Contains(t, result.App.Source, "func route0(state ApplicationState)",
		"a zero-input handler needs nothing from the dispatcher")
}

func TestSingletonThreadedThroughState(t *testing.T) {
	orc := newOracle()
	pool := appType("Pool")
	orc.AddCallable("app.BuildPool", fn("app.BuildPool", nil, pool))
	orc.AddCallable("app.Handle", fn("app.Handle",
		[]language.Type{language.Reference{Inner: pool}}, framework.Response()))

	bp := blueprint.New()
	bp.Constructor("app.BuildPool", blueprint.LifecycleSingleton)
	bp.Route(blueprint.GuardMethods("GET"), "/", "app.Handle")

	result, sink, err := compile(t, orc, bp)
	require.NoError(t, err)
	require.False(t, sink.HasErrors())

	source := result.App.Source
	assert.Contains(t, source, "type ApplicationState struct {")
	assert.Contains(t, source, "pool ")
	assert.Contains(t, functionBody(t, source, "route0"), "state.pool")
	assert.NotContains(t, functionBody(t, source, "route0"), "BuildPool(",
		"singletons are never rebuilt inside a request pipeline")
}

func TestPreProcessingSharesRequestScopedValues(t *testing.T) {
	orc := newOracle()
	foo := appType("Foo")
	orc.AddCallable("app.BuildFoo", fn("app.BuildFoo", nil, foo))
	orc.AddCallable("app.Guard", fn("app.Guard",
		[]language.Type{language.Reference{Inner: foo}}, nil))
	orc.AddCallable("app.Handle", fn("app.Handle", []language.Type{foo}, framework.Response()))

	bp := blueprint.New()
	bp.Constructor("app.BuildFoo", blueprint.LifecycleRequestScoped)
	bp.PreProcess("app.Guard")
	bp.Route(blueprint.GuardMethods("GET"), "/", "app.Handle")

	result, sink, err := compile(t, orc, bp)
	require.NoError(t, err)
	require.False(t, sink.HasErrors())

	body := functionBody(t, result.App.Source, "route0")
	assert.Equal(t, 1, strings.Count(body, "BuildFoo("),
		"the request-scoped value is shared between the middleware and the handler")
	assert.Contains(t, body, "Guard(&foo)")
	assert.Contains(t, body, "Handle(foo)")
}

func TestWrappingMiddlewarePipeline(t *testing.T) {
	orc := newOracle()
	next := framework.Next(language.Generic{Name: "C"})
	orc.AddCallable("app.Trace", fn("app.Trace", []language.Type{next}, framework.Response()))
	orc.AddCallable("app.Handle", fn("app.Handle", nil, framework.Response()))

	bp := blueprint.New()
	bp.WrapMiddleware("app.Trace")
	bp.Route(blueprint.GuardMethods("GET"), "/", "app.Handle")

	result, sink, err := compile(t, orc, bp)
	require.NoError(t, err)
	require.False(t, sink.HasErrors())

	source := result.App.Source
	outer := functionBody(t, source, "route0")
	assert.Contains(t, outer, "Trace(")
	assert.Contains(t, outer, "route0Next1(state")
	inner := functionBody(t, source, "route0Next1")
	assert.Contains(t, inner, "Handle()")
}

func TestMethodNotAllowedFallback(t *testing.T) {
	orc := newOracle()
	orc.AddCallable("app.Handle", fn("app.Handle", nil, framework.Response()))

	bp := blueprint.New()
	bp.Route(blueprint.GuardMethods("GET"), "/a", "app.Handle")

	result, sink, err := compile(t, orc, bp)
	require.NoError(t, err)
	require.False(t, sink.HasErrors())

	dispatcher := functionBody(t, result.App.Source, "RouteRequest")
	assert.Contains(t, dispatcher, "case \"GET\":")
	assert.Contains(t, dispatcher, "default:")
	assert.Contains(t, dispatcher, "fallback0(state")
}

func TestManifestListsReachablePackages(t *testing.T) {
	orc := newOracle()
	orc.AddPackage("github.com/acme/app", "acme-app", "1.4.0")
	handle := fn("github.com/acme/app.Handle", nil, framework.Response())
	orc.AddCallable("github.com/acme/app.Handle", handle)

	bp := blueprint.New()
	bp.Route(blueprint.GuardMethods("GET"), "/", "github.com/acme/app.Handle")

	result, sink, err := compile(t, orc, bp)
	require.NoError(t, err)
	require.False(t, sink.HasErrors())

	manifest := result.App.Manifest
	assert.Contains(t, manifest, "module acme/server")
	assert.Contains(t, manifest, "github.com/acme/app v1.4.0")
	assert.Contains(t, manifest, framework.ImportPath)
}

func TestCompilationIsDeterministic(t *testing.T) {
	build := func() (*Result, error) {
		orc := newOracle()
		foo := appType("Foo")
		orc.AddCallable("app.BuildFoo", fn("app.BuildFoo", nil, foo))
		orc.AddCallable("app.HandleA", fn("app.HandleA", []language.Type{foo}, framework.Response()))
		orc.AddCallable("app.HandleB", fn("app.HandleB",
			[]language.Type{language.Reference{Inner: foo}}, framework.Response()))

		bp := blueprint.New()
		bp.Constructor("app.BuildFoo", blueprint.LifecycleRequestScoped)
		bp.Route(blueprint.GuardMethods("GET"), "/a", "app.HandleA")
		bp.Route(blueprint.GuardMethods("POST"), "/b", "app.HandleB")

		sink := diagnostics.NewCollector()
		return Compile(context.Background(), bp, orc, sink, logging.NewNoOpLogger(), Options{ModuleName: "acme/server"})
	}

	first, err := build()
	require.NoError(t, err)
	second, err := build()
	require.NoError(t, err)

	assert.Equal(t, first.App.Source, second.App.Source)
	assert.Equal(t, first.App.Manifest, second.App.Manifest)
}

func TestRouterKeysAppearOncePerMethod(t *testing.T) {
	orc := newOracle()
	orc.AddCallable("app.HandleA", fn("app.HandleA", nil, framework.Response()))
	orc.AddCallable("app.HandleB", fn("app.HandleB", nil, framework.Response()))

	bp := blueprint.New()
	bp.Route(blueprint.GuardMethods("GET", "POST"), "/a", "app.HandleA")
	bp.Route(blueprint.GuardMethods("GET"), "/b", "app.HandleB")

	result, sink, err := compile(t, orc, bp)
	require.NoError(t, err)
	require.False(t, sink.HasErrors())

	dispatcher := functionBody(t, result.App.Source, "RouteRequest")
	assert.Equal(t, 1, strings.Count(dispatcher, `case "GET", "POST":`))
	assert.Equal(t, 1, strings.Count(dispatcher, "route0(state"))
	assert.Equal(t, 1, strings.Count(dispatcher, "route1(state"))
}

func TestDebugGraphDumps(t *testing.T) {
	orc := newOracle()
	orc.AddCallable("app.Handle", fn("app.Handle", nil, framework.Response()))

	bp := blueprint.New()
	bp.Route(blueprint.GuardMethods("GET"), "/", "app.Handle")

	sink := diagnostics.NewCollector()
	result, err := Compile(context.Background(), bp, orc, sink, logging.NewNoOpLogger(), Options{
		ModuleName:  "acme/server",
		DebugGraphs: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.GraphDumps)
}
