// Package compiler drives a compilation end to end: flatten the
// blueprint, build and validate the component database, assemble the
// router, construct and borrow-check every call graph, and emit the
// generated server crate.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/loom/internal/blueprint"
	"github.com/alexisbeaulieu97/loom/internal/compiler/callgraph"
	"github.com/alexisbeaulieu97/loom/internal/compiler/codegen"
	"github.com/alexisbeaulieu97/loom/internal/compiler/component"
	"github.com/alexisbeaulieu97/loom/internal/compiler/router"
	"github.com/alexisbeaulieu97/loom/internal/diagnostics"
	"github.com/alexisbeaulieu97/loom/internal/framework"
	"github.com/alexisbeaulieu97/loom/internal/language"
	"github.com/alexisbeaulieu97/loom/internal/ports"
)

// ErrCompilationFailed is returned when at least one error diagnostic was
// reported. The details live in the diagnostic sink.
var ErrCompilationFailed = errors.New("compilation failed")

// Options tunes a compilation.
type Options struct {
	// ModuleName is the module path of the generated crate.
	ModuleName string
	// DebugGraphs renders every call graph into Result.GraphDumps.
	DebugGraphs bool
}

// Result is a successful compilation.
type Result struct {
	Db         *component.Db
	Router     *router.Router
	Pipelines  map[component.ComponentID]*codegen.Pipeline
	StateGraph *callgraph.CallGraph
	App        *codegen.GeneratedApp
	GraphDumps []string
}

// Compile runs the full pipeline. Diagnostics go to the sink; when any
// error-severity diagnostic is reported the compilation stops at the next
// phase barrier and ErrCompilationFailed is returned.
func Compile(ctx context.Context, bp *blueprint.Blueprint, oracle ports.TypeOracle, sink diagnostics.Sink, logger ports.Logger, opts Options) (*Result, error) {
	table := blueprint.Read(ctx, bp, sink, logger.With("component", "reader"))
	if sink.HasErrors() {
		return nil, ErrCompilationFailed
	}

	db := component.NewDb(ctx, table, oracle, sink, logger.With("component", "componentdb"))
	if sink.HasErrors() {
		return nil, ErrCompilationFailed
	}

	cons := component.NewConstructibles(db, sink)
	if sink.HasErrors() {
		return nil, ErrCompilationFailed
	}

	rt, ok := router.New(ctx, db, sink, logger.With("component", "router"))
	if !ok || sink.HasErrors() {
		return nil, ErrCompilationFailed
	}

	c := &compilation{
		ctx:       ctx,
		db:        db,
		cons:      cons,
		oracle:    oracle,
		sink:      sink,
		logger:    logger.With("component", "callgraph"),
		opts:      opts,
		router:    rt,
		pipelines: make(map[component.ComponentID]*codegen.Pipeline),
	}

	c.buildPipelines()
	c.buildStateGraph()
	if sink.HasErrors() {
		return nil, ErrCompilationFailed
	}

	app, err := codegen.Emit(ctx, codegen.EmitInput{
		Db:            db,
		Oracle:        oracle,
		Router:        rt,
		Logger:        logger.With("component", "codegen"),
		Pipelines:     c.pipelines,
		StateGraph:    c.stateGraph,
		StateBindings: c.stateBindings,
		ErrVariants:   c.errVariants,
		ModuleName:    opts.ModuleName,
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Db:         db,
		Router:     rt,
		Pipelines:  c.pipelines,
		StateGraph: c.stateGraph,
		App:        app,
		GraphDumps: c.graphDumps,
	}, nil
}

type compilation struct {
	ctx    context.Context
	db     *component.Db
	cons   *component.Constructibles
	oracle ports.TypeOracle
	sink   diagnostics.Sink
	logger ports.Logger
	opts   Options
	router *router.Router

	pipelines     map[component.ComponentID]*codegen.Pipeline
	stateGraph    *callgraph.CallGraph
	stateBindings []codegen.StateBinding
	errVariants   []codegen.ErrVariant
	graphDumps    []string
}

// buildPipelines constructs one pipeline per route handler and per
// reachable fallback.
func (c *compilation) buildPipelines() {
	for _, leaf := range c.router.Leaves {
		for i, handler := range leaf.Handlers {
			name := fmt.Sprintf("route%d", leaf.RouteID)
			if i > 0 {
				name = fmt.Sprintf("route%d_%d", leaf.RouteID, i)
			}
			c.buildPipeline(handler, name)
		}
	}
	for i, fb := range c.router.FallbackIDs() {
		c.buildPipeline(fb, fmt.Sprintf("fallback%d", i))
	}
}

func (c *compilation) buildPipeline(root component.ComponentID, name string) {
	if _, done := c.pipelines[root]; done {
		return
	}

	rootScope := c.db.Get(root).Scope
	observers := c.db.ObserverChain(root)

	var wraps, pres, posts []component.ComponentID
	for _, mw := range c.db.MiddlewareChain(root) {
		switch c.db.Get(mw).Kind {
		case component.KindWrappingMiddleware:
			wraps = append(wraps, mw)
		case component.KindPreProcessingMiddleware:
			pres = append(pres, mw)
		case component.KindPostProcessingMiddleware:
			posts = append(posts, mw)
		}
	}

	type stagePlan struct {
		kind codegen.StageKind
		id   component.ComponentID
	}
	var plan []stagePlan
	for _, mw := range wraps {
		plan = append(plan, stagePlan{codegen.StageWrap, c.specialiseWrap(mw)})
	}
	for _, mw := range pres {
		plan = append(plan, stagePlan{codegen.StagePre, mw})
	}
	plan = append(plan, stagePlan{codegen.StageHandler, root})
	for _, mw := range posts {
		plan = append(plan, stagePlan{codegen.StagePost, mw})
	}

	materialised := make(map[component.ComponentID]struct{})
	var stages []codegen.Stage
	for _, stage := range plan {
		params := callgraph.BuildParams{
			Root:         stage.id,
			RootScope:    rootScope,
			Multiplicity: callgraph.RequestScopedMultiplicity,
			Materialised: copySet(materialised),
			Observers:    observers,
		}
		g, ok := callgraph.Build(c.ctx, params, c.db, c.cons, c.sink, c.logger)
		if !ok {
			return
		}
		callgraph.CheckBorrows(g, c.db, c.oracle, c.sink)
		c.checkPipelineExternals(g, stage.id)

		if c.opts.DebugGraphs {
			c.graphDumps = append(c.graphDumps,
				fmt.Sprintf("%s (%s)\n%s", name, c.db.RenderComponent(stage.id), g.DebugTree(c.db)))
		}

		stages = append(stages, codegen.Stage{Kind: stage.kind, Component: stage.id, Graph: g})
		for _, id := range g.RequestScopedComputed(c.db) {
			materialised[id] = struct{}{}
		}
	}

	c.pipelines[root] = &codegen.Pipeline{Root: root, Name: name, Stages: stages}
}

// specialiseWrap instantiates a wrapping middleware's Next parameter with
// the pipeline's response type.
func (c *compilation) specialiseWrap(mw component.ComponentID) component.ComponentID {
	comp := c.db.Computation(mw)
	for _, in := range comp.Callable.Inputs {
		inner, isNext := framework.IsNext(in)
		if !isNext {
			continue
		}
		if generic, isGeneric := inner.(language.Generic); isGeneric {
			return c.db.RegisterSpecialised(mw, map[string]language.Type{
				generic.Name: framework.Response(),
			})
		}
	}
	return mw
}

// checkPipelineExternals reports request-pipeline inputs nobody can
// provide: anything that is neither a framework injectable nor a Next
// continuation must have a constructor.
func (c *compilation) checkPipelineExternals(g *callgraph.CallGraph, root component.ComponentID) {
	for _, idx := range g.ExternalInputs() {
		n := g.Node(idx)
		if n.Component != component.NoComponentID {
			continue
		}
		t := n.Type
		if inner, isRef := t.(language.Reference); isRef {
			t = inner.Inner
		}
		if framework.IsInjectable(t) || language.Equal(t, framework.Response()) {
			continue
		}
		if _, isNext := framework.IsNext(t); isNext {
			continue
		}
		c.sink.Report(diagnostics.Diagnostic{
			Code:     diagnostics.CodeInputTypeUnresolvable,
			Severity: diagnostics.SeverityError,
			Message: fmt.Sprintf("%s needs %s, but I cannot find a constructor for it",
				c.db.RenderComponent(root), n.Type.Render()),
			Location: c.db.Get(root).Location,
			Help:     "register a constructor for this type, or mark it as prebuilt",
		})
	}
}

// buildStateGraph assembles the application-state call graph: one compute
// per singleton constructor, one field per binding the request pipelines
// reach for.
func (c *compilation) buildStateGraph() {
	referenced := make(map[component.ComponentID]struct{})
	for _, p := range c.pipelines {
		for _, stage := range p.Stages {
			for _, idx := range stage.Graph.ComponentInputs() {
				id := stage.Graph.Node(idx).Component
				comp := c.db.Get(id)
				if comp.Lifecycle == blueprint.LifecycleSingleton {
					referenced[id] = struct{}{}
				}
			}
		}
	}
	for _, id := range c.db.Constructors() {
		if c.db.Get(id).Lifecycle == blueprint.LifecycleSingleton {
			referenced[id] = struct{}{}
		}
	}

	ids := make([]component.ComponentID, 0, len(referenced))
	for id := range referenced {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	usedFields := make(map[string]int)
	var inputs []language.Type
	for _, id := range ids {
		t := c.db.Computation(id).OkOutput()
		field := fieldNameFor(t, usedFields)
		c.stateBindings = append(c.stateBindings, codegen.StateBinding{
			Component: id,
			Type:      t,
			Field:     field,
		})
		inputs = append(inputs, t)

		comp := c.db.Computation(id)
		if comp.IsFallible() && c.db.Get(id).Lifecycle == blueprint.LifecycleSingleton {
			errType := comp.Output.(language.Result).Err
			c.errVariants = append(c.errVariants, codegen.ErrVariant{
				Component: id,
				ErrType:   errType,
				Name:      variantNameFor(errType, usedFields),
			})
		}
	}

	stateType := language.PathType{PackageID: "loom-generated", Name: "ApplicationState"}
	stateCtor := &language.Callable{
		Path:   language.FQPath{Segments: []string{"newApplicationState"}},
		Inputs: inputs,
		Output: stateType,
	}
	rootID := c.db.RegisterSynthetic(
		component.KindConstructor,
		stateCtor,
		c.db.Scopes().ApplicationState(),
		blueprint.LifecycleSingleton,
	)

	params := callgraph.BuildParams{
		Root:         rootID,
		RootScope:    c.db.Scopes().ApplicationState(),
		Multiplicity: callgraph.ApplicationStateMultiplicity,
		StateGraph:   true,
	}
	g, ok := callgraph.Build(c.ctx, params, c.db, c.cons, c.sink, c.logger)
	if !ok {
		return
	}
	callgraph.CheckBorrows(g, c.db, c.oracle, c.sink)
	c.checkStateExternals(g)
	if c.opts.DebugGraphs {
		c.graphDumps = append(c.graphDumps, "application state\n"+g.DebugTree(c.db))
	}
	c.stateGraph = g
}

// checkStateExternals reports startup inputs nobody can provide: only
// prebuilt and config registrations may surface as parameters of the
// state builder.
func (c *compilation) checkStateExternals(g *callgraph.CallGraph) {
	for _, idx := range g.ExternalInputs() {
		n := g.Node(idx)
		if n.Component != component.NoComponentID {
			continue
		}
		c.sink.Report(diagnostics.Diagnostic{
			Code:     diagnostics.CodeInputTypeUnresolvable,
			Severity: diagnostics.SeverityError,
			Message: fmt.Sprintf("%s is needed to build the application state, but no constructor or prebuilt is registered for it",
				n.Type.Render()),
			Help: "register a singleton constructor, or mark the type as prebuilt",
		})
	}
}

func copySet(in map[component.ComponentID]struct{}) map[component.ComponentID]struct{} {
	out := make(map[component.ComponentID]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func fieldNameFor(t language.Type, used map[string]int) string {
	base := "binding"
	if pt, ok := t.(language.PathType); ok {
		base = lowerFirst(pt.Name)
	}
	n := used[base]
	used[base]++
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s%d", base, n)
}

func variantNameFor(t language.Type, used map[string]int) string {
	base := "BuildError"
	if pt, ok := t.(language.PathType); ok {
		base = upperFirst(pt.Name)
	}
	n := used[base]
	used[base]++
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s%d", base, n)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
