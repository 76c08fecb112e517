package codegen

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/loom/internal/compiler/callgraph"
	"github.com/alexisbeaulieu97/loom/internal/compiler/component"
	"github.com/alexisbeaulieu97/loom/internal/compiler/router"
	"github.com/alexisbeaulieu97/loom/internal/framework"
	"github.com/alexisbeaulieu97/loom/internal/language"
	"github.com/alexisbeaulieu97/loom/internal/ports"
)

// StageKind orders the stages of a request pipeline.
type StageKind int

const (
	StageWrap StageKind = iota
	StagePre
	StageHandler
	StagePost
)

// Stage is one call graph within a pipeline.
type Stage struct {
	Kind      StageKind
	Component component.ComponentID
	Graph     *callgraph.CallGraph
}

// Pipeline is the ordered set of stage graphs emitted as one function.
type Pipeline struct {
	// Root is the handler (or fallback) the pipeline serves.
	Root   component.ComponentID
	Name   string
	Stages []Stage
}

// StateBinding is one field of the generated ApplicationState.
type StateBinding struct {
	Component component.ComponentID
	Type      language.Type
	Field     string
}

// ErrVariant is one arm of the generated ApplicationStateError: a
// fallible singleton constructor and its error type.
type ErrVariant struct {
	Component component.ComponentID
	ErrType   language.Type
	Name      string
}

// EmitInput carries everything the emitter needs.
type EmitInput struct {
	Db     *component.Db
	Oracle ports.TypeOracle
	Router *router.Router
	Logger ports.Logger

	// Pipelines holds route pipelines and fallback pipelines, keyed by
	// their root component.
	Pipelines map[component.ComponentID]*Pipeline
	// StateGraph computes the application state; StateBindings names its
	// fields; ErrVariants lists the failure arms.
	StateGraph    *callgraph.CallGraph
	StateBindings []StateBinding
	ErrVariants   []ErrVariant

	// ModuleName is the generated crate's module path.
	ModuleName string
}

// GeneratedApp is the emitted server crate: one source file plus its
// manifest.
type GeneratedApp struct {
	Source   string
	Manifest string
}

// frameworkNeed is one dispatcher-provided value a pipeline asks for.
type frameworkNeed struct {
	item      string // framework item name
	paramName string
	typeKey   string
	typ       language.Type
	isRef     bool
	// owned renders the dispatcher-side expression for the owned value;
	// reference needs take its address, binding a temporary when the
	// expression is not addressable.
	owned func(miss bool) string
}

// Emit lowers every call graph and assembles the generated source file
// and manifest.
func Emit(ctx context.Context, in EmitInput) (*GeneratedApp, error) {
	e := &emitter{
		db:          in.Db,
		oracle:      in.Oracle,
		imports:     newImportSet(in.Oracle),
		stateFields: make(map[component.ComponentID]string),
	}
	for _, binding := range in.StateBindings {
		e.stateFields[binding.Component] = binding.Field
	}

	var body strings.Builder

	stateSection, err := e.emitStateSection(in)
	if err != nil {
		return nil, err
	}
	body.WriteString(stateSection)

	pipelineOrder := orderedPipelines(in)
	needsByPipeline := make(map[string][]frameworkNeed)
	for _, p := range pipelineOrder {
		src, needs, err := e.emitPipeline(p)
		if err != nil {
			return nil, err
		}
		body.WriteString(src)
		needsByPipeline[p.Name] = needs
	}

	body.WriteString(e.emitRouterSection(in))
	body.WriteString(e.emitDispatcher(in, needsByPipeline))
	body.WriteString(e.emitRun())

	var out strings.Builder
	out.WriteString("// Code generated by loom. DO NOT EDIT.\n")
	out.WriteString("package server\n\n")
	out.WriteString(e.imports.render())
	out.WriteString("\n")
	out.WriteString(body.String())

	manifest := synthesiseManifest(in, e)

	in.Logger.Debug(ctx, "generated application emitted",
		"pipelines", len(in.Pipelines),
		"state_bindings", len(in.StateBindings),
	)
	return &GeneratedApp{Source: out.String(), Manifest: manifest}, nil
}

func orderedPipelines(in EmitInput) []*Pipeline {
	var out []*Pipeline
	seen := make(map[component.ComponentID]bool)
	add := func(id component.ComponentID) {
		if id == component.NoComponentID || seen[id] {
			return
		}
		if p, ok := in.Pipelines[id]; ok {
			seen[id] = true
			out = append(out, p)
		}
	}
	for _, leaf := range in.Router.Leaves {
		for _, h := range leaf.Handlers {
			add(h)
		}
	}
	for _, fb := range in.Router.FallbackIDs() {
		add(fb)
	}
	return out
}

// emitStateSection generates ApplicationState, ApplicationStateError,
// the state constructor helper, and BuildApplicationState.
func (e *emitter) emitStateSection(in EmitInput) (string, error) {
	var sb strings.Builder

	sb.WriteString("// ApplicationState holds the singleton values shared by every request.\n")
	sb.WriteString("type ApplicationState struct {\n")
	for _, binding := range in.StateBindings {
		fmt.Fprintf(&sb, "\t%s %s\n", binding.Field, e.typeExpr(binding.Type))
	}
	sb.WriteString("}\n\n")

	if len(in.ErrVariants) > 0 {
		sb.WriteString("// ApplicationStateError reports which singleton constructor failed at startup.\n")
		sb.WriteString("type ApplicationStateError struct {\n")
		for _, variant := range in.ErrVariants {
			fmt.Fprintf(&sb, "\t%s %s\n", variant.Name, e.typeExpr(variant.ErrType))
		}
		sb.WriteString("}\n\n")
		sb.WriteString("func (e *ApplicationStateError) Error() string {\n")
		sb.WriteString("\tswitch {\n")
		for _, variant := range in.ErrVariants {
			fmt.Fprintf(&sb, "\tcase e.%s != nil:\n", variant.Name)
			fmt.Fprintf(&sb, "\t\treturn fmt.Sprintf(\"failed to build the application state: %%v\", e.%s)\n", variant.Name)
		}
		sb.WriteString("\t}\n")
		sb.WriteString("\treturn \"failed to build the application state\"\n")
		sb.WriteString("}\n\n")
		e.imports.qualify("fmt", "", "")
	}

	fields := make([]string, 0, len(in.StateBindings))
	params := make([]string, 0, len(in.StateBindings))
	for _, binding := range in.StateBindings {
		param := lowerCamel(binding.Field)
		params = append(params, fmt.Sprintf("%s %s", param, e.typeExpr(binding.Type)))
		fields = append(fields, fmt.Sprintf("%s: %s", binding.Field, param))
	}
	fmt.Fprintf(&sb, "func newApplicationState(%s) ApplicationState {\n", strings.Join(params, ", "))
	fmt.Fprintf(&sb, "\treturn ApplicationState{%s}\n", strings.Join(fields, ", "))
	sb.WriteString("}\n\n")

	// BuildApplicationState evaluates the application-state call graph.
	names := newNameAllocator()
	fe := newFuncEmitter(e, in.StateGraph, names)
	fe.indent = 1
	fe.errReturn = func(producer component.ComponentID, errVar string) string {
		for _, variant := range in.ErrVariants {
			if variant.Component == producer {
				return fmt.Sprintf("ApplicationState{}, &ApplicationStateError{%s: %s}", variant.Name, errVar)
			}
		}
		return fmt.Sprintf("ApplicationState{}, fmt.Errorf(\"failed to build the application state: %%v\", %s)", errVar)
	}

	var sig []string
	for _, idx := range in.StateGraph.ExternalInputs() {
		n := in.StateGraph.Node(idx)
		param := names.fresh(baseNameFor(n.Type))
		fe.extBindings[n.Type.Key()] = param
		sig = append(sig, fmt.Sprintf("%s %s", param, e.typeExpr(n.Type)))
	}

	rootExpr := fe.lower()
	fmt.Fprintf(&sb, "// BuildApplicationState runs every singleton constructor, failing fast on the first error.\n")
	fmt.Fprintf(&sb, "func BuildApplicationState(%s) (ApplicationState, error) {\n", strings.Join(sig, ", "))
	sb.WriteString(fe.sb.String())
	fmt.Fprintf(&sb, "\treturn %s, nil\n", rootExpr)
	sb.WriteString("}\n\n")
	return sb.String(), nil
}

// pipelineNeeds scans a pipeline's external inputs and returns the
// dispatcher-provided values it requires, in canonical order.
func (e *emitter) pipelineNeeds(p *Pipeline) []frameworkNeed {
	wanted := make(map[string]language.Type)
	for _, stage := range p.Stages {
		for key, t := range neededExternalTypes(stage.Graph) {
			wanted[key] = t
		}
	}

	catalogue := []struct {
		item string
		name string
		expr func(miss bool) string
	}{
		{framework.RequestHeadName, "head", func(bool) string { return "head" }},
		{framework.PathParamsName, "params", func(miss bool) string {
			if miss {
				return e.runtimeRef("EmptyPathParams") + "()"
			}
			return "match.Params"
		}},
		{framework.RawIncomingBodyName, "body", func(bool) string { return "body" }},
		{framework.ConnectionInfoName, "conn", func(bool) string { return "conn" }},
		{framework.MatchedPathPatternName, "pattern", func(miss bool) string {
			if miss {
				return e.runtimeRef("NoMatchedPathPattern") + "()"
			}
			return "match.Pattern"
		}},
		{framework.AllowedMethodsName, "allowed", func(bool) string { return "allowed" }},
	}

	var needs []frameworkNeed
	for _, entry := range catalogue {
		owned := framework.Item(entry.item)
		borrowed := language.Reference{Inner: owned}
		for _, t := range []language.Type{owned, borrowed} {
			if _, ok := wanted[t.Key()]; !ok {
				continue
			}
			_, isRef := t.(language.Reference)
			name := entry.name
			if isRef {
				name += "Ref"
			}
			needs = append(needs, frameworkNeed{
				item:      entry.item,
				paramName: name,
				typeKey:   t.Key(),
				typ:       t,
				isRef:     isRef,
				owned:     entry.expr,
			})
		}
	}
	return needs
}

func (e *emitter) runtimeRef(name string) string {
	return e.imports.qualify(framework.ImportPath, framework.PackageID, name)
}

// pipelineSegment is a run of stages emitted as one generated function: a
// single wrapping middleware, or the trailing pre/handler/post core.
type pipelineSegment struct {
	name   string
	stages []Stage
	// passed lists the request-scoped components this segment receives
	// from earlier segments, in deterministic order.
	passed []component.ComponentID
}

// emitPipeline lowers a pipeline into one generated function per wrapping
// middleware plus one for the core sequence. Request-scoped values built
// in an outer segment are handed to inner segments as parameters.
func (e *emitter) emitPipeline(p *Pipeline) (string, []frameworkNeed, error) {
	needs := e.pipelineNeeds(p)
	segments := splitSegments(p)
	e.computePassedValues(segments)

	var sb strings.Builder
	for i, seg := range segments {
		var next *pipelineSegment
		if i+1 < len(segments) {
			next = segments[i+1]
		}
		src, err := e.emitSegment(p, seg, next, needs, i == 0)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(src)
	}
	return sb.String(), needs, nil
}

func splitSegments(p *Pipeline) []*pipelineSegment {
	var segments []*pipelineSegment
	var core []Stage
	for _, stage := range p.Stages {
		if stage.Kind == StageWrap {
			segments = append(segments, &pipelineSegment{stages: []Stage{stage}})
			continue
		}
		core = append(core, stage)
	}
	segments = append(segments, &pipelineSegment{stages: core})
	for i, seg := range segments {
		if i == 0 {
			seg.name = p.Name
		} else {
			seg.name = fmt.Sprintf("%sNext%d", p.Name, i)
		}
	}
	return segments
}

// computePassedValues works out, back to front, which materialised values
// each segment must receive from its caller: everything its own stages
// (or deeper segments) import that is not state-bound and not built
// within the segment chain below the producer.
func (e *emitter) computePassedValues(segments []*pipelineSegment) {
	needed := make(map[component.ComponentID]bool)
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		for _, stage := range seg.stages {
			for _, idx := range stage.Graph.ComponentInputs() {
				id := stage.Graph.Node(idx).Component
				if _, stateBound := e.stateFields[id]; stateBound {
					continue
				}
				needed[id] = true
			}
		}
		for _, stage := range seg.stages {
			for _, id := range stage.Graph.RequestScopedComputed(e.db) {
				delete(needed, id)
			}
		}
		ids := make([]component.ComponentID, 0, len(needed))
		for id := range needed {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
		seg.passed = ids
	}
}

func (e *emitter) emitSegment(p *Pipeline, seg *pipelineSegment, next *pipelineSegment, needs []frameworkNeed, outermost bool) (string, error) {
	names := newNameAllocator()
	names.fresh("state")
	for _, need := range needs {
		names.fresh(need.paramName)
	}

	compBindings := make(map[component.ComponentID]string)
	for id, field := range e.stateFields {
		compBindings[id] = "state." + field
	}
	extBindings := make(map[string]string)
	for _, need := range needs {
		extBindings[need.typeKey] = need.paramName
	}

	sig := []string{"state ApplicationState"}
	for _, need := range needs {
		sig = append(sig, fmt.Sprintf("%s %s", need.paramName, e.typeExpr(need.typ)))
	}
	for _, id := range seg.passed {
		param := names.fresh(baseNameFor(e.db.Computation(id).OkOutput()))
		compBindings[id] = param
		sig = append(sig, fmt.Sprintf("%s %s", param, e.typeExpr(e.db.Computation(id).OkOutput())))
	}

	var body strings.Builder
	var err error
	if seg.stages[0].Kind == StageWrap {
		err = e.emitWrapSegment(seg, next, needs, names, extBindings, compBindings, &body)
	} else {
		err = e.emitCoreSegment(p, seg, names, extBindings, compBindings, &body)
	}
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if outermost {
		fmt.Fprintf(&sb, "// %s runs the pipeline serving %s.\n", seg.name, e.db.RenderComponent(p.Root))
	}
	fmt.Fprintf(&sb, "func %s(%s) %s {\n", seg.name, strings.Join(sig, ", "), e.typeExpr(framework.Response()))
	sb.WriteString(body.String())
	sb.WriteString("}\n\n")
	return sb.String(), nil
}

// emitWrapSegment lowers a wrapping middleware: the rest of the pipeline
// is packed into a Next value calling the inner segment function.
func (e *emitter) emitWrapSegment(seg *pipelineSegment, next *pipelineSegment, needs []frameworkNeed, names *nameAllocator, extBindings map[string]string, compBindings map[component.ComponentID]string, body *strings.Builder) error {
	stage := seg.stages[0]
	fe := newFuncEmitter(e, stage.Graph, names)
	fe.indent = 1
	fe.extBindings = extBindings
	fe.compBindings = compBindings

	// Pin the names of values shared with inner segments before lowering,
	// so the Next closure can reference them.
	e.presetMaterialised(stage.Graph, fe, compBindings)

	innerArgs := []string{"state"}
	for _, need := range needs {
		innerArgs = append(innerArgs, need.paramName)
	}
	for _, id := range next.passed {
		expr, ok := compBindings[id]
		if !ok {
			return fmt.Errorf("no binding for %s handed to %s: this is a bug in the compiler", e.db.RenderComponent(id), next.name)
		}
		innerArgs = append(innerArgs, expr)
	}
	closure := fmt.Sprintf("%s(func() %s { return %s(%s) })",
		e.runtimeRef("NewNext"), e.typeExpr(framework.Response()), next.name, strings.Join(innerArgs, ", "))

	nextType := framework.Next(framework.Response())
	fe.extBindings[nextType.Key()] = closure

	expr := fe.lower()
	body.WriteString(fe.sb.String())
	fmt.Fprintf(body, "\treturn %s\n", expr)
	return nil
}

// emitCoreSegment lowers the pre-processing middlewares, the handler, and
// the post-processing middlewares as one straight-line body.
func (e *emitter) emitCoreSegment(p *Pipeline, seg *pipelineSegment, names *nameAllocator, extBindings map[string]string, compBindings map[component.ComponentID]string, body *strings.Builder) error {
	respVar := ""
	for _, stage := range seg.stages {
		fe := newFuncEmitter(e, stage.Graph, names)
		fe.indent = 1
		fe.extBindings = extBindings
		fe.compBindings = compBindings
		e.presetMaterialised(stage.Graph, fe, compBindings)

		switch stage.Kind {
		case StagePre:
			e.lowerStatementStage(fe)
		case StageHandler:
			expr := fe.lower()
			if isSimpleIdent(expr) {
				respVar = expr
			} else {
				respVar = names.fresh("response")
				fe.line("%s := %s", respVar, expr)
			}
		case StagePost:
			extBindings[framework.Response().Key()] = respVar
			out := e.db.Computation(stage.Component).OkOutput()
			if language.IsUnit(out) {
				e.lowerStatementStage(fe)
			} else {
				expr := fe.lower()
				fe.line("%s = %s", respVar, expr)
			}
		}
		body.WriteString(fe.sb.String())
	}
	if respVar == "" {
		return fmt.Errorf("pipeline %s has no handler stage: this is a bug in the compiler", p.Name)
	}
	fmt.Fprintf(body, "\treturn %s\n", respVar)
	return nil
}

func isSimpleIdent(expr string) bool {
	for _, r := range expr {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return expr != ""
}

// presetMaterialised pins binding names for the request-scoped values a
// stage builds, and records them for the rest of the pipeline.
func (e *emitter) presetMaterialised(g *callgraph.CallGraph, fe *funcEmitter, compBindings map[component.ComponentID]string) {
	for _, id := range g.RequestScopedComputed(e.db) {
		idx, ok := g.ValueNodeOf(e.db, id)
		if !ok {
			continue
		}
		name := fe.names.fresh(baseNameFor(e.db.Computation(id).OkOutput()))
		fe.presetNames[idx] = name
		compBindings[id] = name
	}
}

// lowerStatementStage lowers a graph evaluated for its effects: the root
// value, if any, is discarded.
func (e *emitter) lowerStatementStage(fe *funcEmitter) {
	root := fe.g.Root
	comp := e.db.Computation(fe.g.Node(root).Component)

	// Resolve branchings first; error arms return early.
	for {
		branch, ok := fe.nextBranchFor(root)
		if !ok {
			break
		}
		fe.emitBranch(branch)
	}
	if _, alreadyBound := fe.bound[root]; alreadyBound {
		return
	}
	if comp.Kind == component.CompMatchProjection {
		// The projection of a fallible, value-less call: the branch above
		// already emitted everything there is to run.
		return
	}
	args := fe.argExprs(root)
	call := e.callExpr(comp.Callable, args)
	if language.IsUnit(comp.Output) {
		fe.line("%s", call)
	} else {
		fe.line("_ = %s", call)
	}
}

// emitRouterSection generates the startup route table.
func (e *emitter) emitRouterSection(in EmitInput) string {
	var sb strings.Builder
	sb.WriteString("func buildRouter() *" + e.runtimeRef("Router") + " {\n")
	fmt.Fprintf(&sb, "\tr := %s()\n", e.runtimeRef("NewRouter"))
	for _, leaf := range in.Router.Leaves {
		fmt.Fprintf(&sb, "\tr.Insert(%q, %q, %d)\n", leaf.Domain, leaf.Path, leaf.RouteID)
	}
	sb.WriteString("\treturn r\n")
	sb.WriteString("}\n\n")
	sb.WriteString("var pathRouter = buildRouter()\n\n")
	return sb.String()
}

// emitDispatcher generates RouteRequest: path match, per-route method
// dispatch, and fallback wiring.
func (e *emitter) emitDispatcher(in EmitInput, needsByPipeline map[string][]frameworkNeed) string {
	var sb strings.Builder

	head := e.typeExpr(framework.Item(framework.RequestHeadName))
	bodyT := e.typeExpr(framework.Item(framework.RawIncomingBodyName))
	conn := e.typeExpr(framework.Item(framework.ConnectionInfoName))
	resp := e.typeExpr(framework.Response())

	sb.WriteString("// RouteRequest matches the request path and method, then invokes the\n")
	sb.WriteString("// statically assembled pipeline for the selected route.\n")
	fmt.Fprintf(&sb, "func RouteRequest(head %s, body %s, conn %s, state ApplicationState) %s {\n", head, bodyT, conn, resp)
	fmt.Fprintf(&sb, "\tmatch, ok := pathRouter.Lookup(head.Host, head.Target)\n")

	sb.WriteString("\tif !ok {\n")
	e.emitPipelineReturn(&sb, 2, in, in.Router.RootFallback, needsByPipeline, true, nil)
	sb.WriteString("\t}\n")

	sb.WriteString("\tswitch match.RouteID {\n")
	for _, leaf := range in.Router.Leaves {
		fmt.Fprintf(&sb, "\tcase %d:\n", leaf.RouteID)
		if leaf.CatchAllFallback {
			e.emitPipelineReturn(&sb, 2, in, leaf.Fallback, needsByPipeline, false, leaf)
			continue
		}

		// Group the admitted methods by handler for compact arms.
		byHandler := make(map[component.ComponentID][]string)
		for method, h := range leaf.ByMethod {
			byHandler[h] = append(byHandler[h], method)
		}
		sb.WriteString("\t\tswitch head.Method {\n")
		for _, h := range leaf.Handlers {
			methods := byHandler[h]
			sort.Strings(methods)
			quoted := make([]string, len(methods))
			for i, m := range methods {
				quoted[i] = fmt.Sprintf("%q", m)
			}
			fmt.Fprintf(&sb, "\t\tcase %s:\n", strings.Join(quoted, ", "))
			e.emitPipelineReturn(&sb, 3, in, h, needsByPipeline, false, leaf)
		}
		sb.WriteString("\t\tdefault:\n")
		e.emitPipelineReturn(&sb, 3, in, leaf.Fallback, needsByPipeline, false, leaf)
		sb.WriteString("\t\t}\n")
	}
	sb.WriteString("\t}\n")
	e.emitPipelineReturn(&sb, 1, in, in.Router.RootFallback, needsByPipeline, true, nil)
	sb.WriteString("}\n\n")
	return sb.String()
}

// emitPipelineReturn renders the invocation of a pipeline function from
// the dispatcher, threading only the values the pipeline asked for.
// Reference-typed needs bind a temporary when the dispatcher-side
// expression is not addressable.
func (e *emitter) emitPipelineReturn(sb *strings.Builder, indent int, in EmitInput, root component.ComponentID, needsByPipeline map[string][]frameworkNeed, miss bool, leaf *router.LeafRouter) {
	p, ok := in.Pipelines[root]
	if !ok {
		panic(fmt.Sprintf("no pipeline emitted for %s: this is a bug in the compiler", e.db.RenderComponent(root)))
	}
	pad := strings.Repeat("\t", indent)
	args := []string{"state"}
	for _, need := range needsByPipeline[p.Name] {
		owned := need.owned(miss)
		if need.item == framework.AllowedMethodsName {
			owned = e.allowedMethodsExpr(leaf)
		}
		if !need.isRef {
			args = append(args, owned)
			continue
		}
		if strings.ContainsRune(owned, '(') {
			tmp := need.paramName + "Value"
			fmt.Fprintf(sb, "%s%s := %s\n", pad, tmp, owned)
			owned = tmp
		}
		args = append(args, "&"+owned)
	}
	fmt.Fprintf(sb, "%sreturn %s(%s)\n", pad, p.Name, strings.Join(args, ", "))
}

func (e *emitter) allowedMethodsExpr(leaf *router.LeafRouter) string {
	if leaf == nil {
		return e.runtimeRef("NewAllowedMethods") + "()"
	}
	methods := make([]string, 0, len(leaf.ByMethod))
	for method := range leaf.ByMethod {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	quoted := make([]string, len(methods))
	for i, m := range methods {
		quoted[i] = fmt.Sprintf("%q", m)
	}
	return fmt.Sprintf("%s(%s)", e.runtimeRef("NewAllowedMethods"), strings.Join(quoted, ", "))
}

// emitRun generates the server entry point.
func (e *emitter) emitRun() string {
	var sb strings.Builder
	builder := e.runtimeRef("ServerBuilder")
	handle := e.runtimeRef("ServerHandle")
	serve := e.runtimeRef("Serve")
	sb.WriteString("// Run starts serving requests with the given application state.\n")
	fmt.Fprintf(&sb, "func Run(server %s, state ApplicationState) %s {\n", builder, handle)
	fmt.Fprintf(&sb, "\treturn %s(server, state, RouteRequest)\n", serve)
	sb.WriteString("}\n")
	return sb.String()
}
