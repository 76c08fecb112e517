package component

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/loom/internal/blueprint"
	"github.com/alexisbeaulieu97/loom/internal/diagnostics"
	"github.com/alexisbeaulieu97/loom/internal/framework"
	"github.com/alexisbeaulieu97/loom/internal/language"
	"github.com/alexisbeaulieu97/loom/internal/ports"
)

// Db is the component database: every user registration resolved against
// the type oracle, validated, and enriched with the derived components the
// later phases need (match projections, response coercions).
type Db struct {
	table  *blueprint.AuxTable
	oracle ports.TypeOracle
	sink   diagnostics.Sink

	computations *ComputationDb
	components   []Component

	userToComponent map[blueprint.UserComponentID]ComponentID
	matchers        map[ComponentID]MatcherPair
	errorHandlers   map[ComponentID]ComponentID
	transformers    map[ComponentID][]ComponentID

	middlewareChains map[ComponentID][]ComponentID
	observerChains   map[ComponentID][]ComponentID
	fallbackByScope  map[blueprint.ScopeID]ComponentID
	rootFallback     ComponentID

	routes       []ComponentID
	constructors []ComponentID
	prebuilts    []ComponentID
	configs      []ComponentID
}

// NewDb resolves and validates every component in the aux table. Problems
// are reported to the sink; the offending component is skipped so that one
// compilation surfaces as many problems as possible.
func NewDb(ctx context.Context, table *blueprint.AuxTable, oracle ports.TypeOracle, sink diagnostics.Sink, logger ports.Logger) *Db {
	db := &Db{
		table:            table,
		oracle:           oracle,
		sink:             sink,
		computations:     NewComputationDb(),
		userToComponent:  make(map[blueprint.UserComponentID]ComponentID),
		matchers:         make(map[ComponentID]MatcherPair),
		errorHandlers:    make(map[ComponentID]ComponentID),
		transformers:     make(map[ComponentID][]ComponentID),
		middlewareChains: make(map[ComponentID][]ComponentID),
		observerChains:   make(map[ComponentID][]ComponentID),
		fallbackByScope:  make(map[blueprint.ScopeID]ComponentID),
		rootFallback:     NoComponentID,
	}

	for i := range table.Components {
		db.registerUserComponent(&table.Components[i])
	}
	db.linkChains()
	db.synthesiseDerived()

	logger.Debug(ctx, "component database built",
		"components", len(db.components),
		"computations", db.computations.Len(),
	)
	return db
}

// Get returns the component for an id.
func (db *Db) Get(id ComponentID) *Component {
	return &db.components[id]
}

// Computation returns the computation backing a component.
func (db *Db) Computation(id ComponentID) *Computation {
	return db.computations.Get(db.components[id].Computation)
}

// Computations exposes the computation database.
func (db *Db) Computations() *ComputationDb { return db.computations }

// Scopes returns the scope graph.
func (db *Db) Scopes() *blueprint.ScopeGraph { return db.table.Scopes }

// AuxTable returns the flattened registration table the database was
// built from.
func (db *Db) AuxTable() *blueprint.AuxTable { return db.table }

// Len returns the number of components.
func (db *Db) Len() int { return len(db.components) }

// Routes returns every request handler, in registration order.
func (db *Db) Routes() []ComponentID { return db.routes }

// Constructors returns every user constructor, in registration order.
func (db *Db) Constructors() []ComponentID { return db.constructors }

// Prebuilts returns every prebuilt type registration.
func (db *Db) Prebuilts() []ComponentID { return db.prebuilts }

// Configs returns every config type registration.
func (db *Db) Configs() []ComponentID { return db.configs }

// Matchers returns the Ok/Err projections for a fallible component.
func (db *Db) Matchers(id ComponentID) (MatcherPair, bool) {
	pair, ok := db.matchers[id]
	return pair, ok
}

// ErrorHandlerFor returns the error handler registered for a fallible
// component.
func (db *Db) ErrorHandlerFor(id ComponentID) (ComponentID, bool) {
	h, ok := db.errorHandlers[id]
	return h, ok
}

// TransformersOf returns the transformers attached to a component.
func (db *Db) TransformersOf(id ComponentID) []ComponentID {
	return db.transformers[id]
}

// MiddlewareChain returns the middleware components wrapping a handler,
// outermost first.
func (db *Db) MiddlewareChain(handler ComponentID) []ComponentID {
	return db.middlewareChains[handler]
}

// ObserverChain returns the error observers in scope for a handler.
func (db *Db) ObserverChain(handler ComponentID) []ComponentID {
	return db.observerChains[handler]
}

// FallbackInScope returns the fallback registered in the given scope.
func (db *Db) FallbackInScope(scope blueprint.ScopeID) (ComponentID, bool) {
	id, ok := db.fallbackByScope[scope]
	return id, ok
}

// RootFallback returns the fallback dispatched on path misses.
func (db *Db) RootFallback() ComponentID { return db.rootFallback }

// UserComponent returns the flattened registration behind a component, or
// nil for derived components.
func (db *Db) UserComponent(id ComponentID) *blueprint.UserComponent {
	c := &db.components[id]
	if c.UserID == blueprint.NoComponent {
		return nil
	}
	return db.table.Component(c.UserID)
}

// ComponentForUser returns the component created for a flattened
// registration, if it survived validation.
func (db *Db) ComponentForUser(id blueprint.UserComponentID) (ComponentID, bool) {
	c, ok := db.userToComponent[id]
	return c, ok
}

// RenderComponent returns a user-facing name for a component: the
// registered path when one exists, the output type otherwise.
func (db *Db) RenderComponent(id ComponentID) string {
	comp := db.Computation(id)
	switch comp.Kind {
	case CompCallable:
		return comp.Callable.Path.Render()
	case CompMatchProjection:
		parent := db.components[id].FallibleParent
		if parent != NoComponentID {
			return db.RenderComponent(parent)
		}
		return comp.Output.Render()
	default:
		return comp.Output.Render()
	}
}

func (db *Db) addComponent(c Component) ComponentID {
	c.ID = ComponentID(len(db.components))
	db.components = append(db.components, c)
	if c.UserID != blueprint.NoComponent {
		db.userToComponent[c.UserID] = c.ID
	}
	return c.ID
}

func (db *Db) report(code diagnostics.Code, loc diagnostics.Location, msg string, related ...diagnostics.Location) {
	db.sink.Report(diagnostics.Diagnostic{
		Code:     code,
		Severity: diagnostics.SeverityError,
		Message:  msg,
		Location: loc,
		Related:  related,
	})
}

// resolveCallable resolves a registered path to a callable, reporting
// resolution failures.
func (db *Db) resolveCallable(path string, loc diagnostics.Location) (*language.Callable, bool) {
	item, err := db.oracle.ResolvePath(path)
	if err != nil {
		db.report(diagnostics.CodeUnresolvedPath, loc, fmt.Sprintf("I cannot resolve %q: %v", path, err))
		return nil, false
	}
	if item.Kind != ports.ItemKindCallable || item.Callable == nil {
		db.report(diagnostics.CodeUnsupportedCallableKind, loc, fmt.Sprintf("%q does not resolve to a function or method", path))
		return nil, false
	}
	return item.Callable, true
}

func (db *Db) registerUserComponent(uc *blueprint.UserComponent) {
	switch uc.Kind {
	case blueprint.RegConstructor:
		db.registerConstructor(uc)
	case blueprint.RegRoute:
		db.registerCallableComponent(uc, KindRequestHandler)
	case blueprint.RegFallback:
		db.registerCallableComponent(uc, KindFallback)
	case blueprint.RegWrappingMiddleware:
		db.registerWrappingMiddleware(uc)
	case blueprint.RegPreProcessingMiddleware:
		db.registerCallableComponent(uc, KindPreProcessingMiddleware)
	case blueprint.RegPostProcessingMiddleware:
		db.registerCallableComponent(uc, KindPostProcessingMiddleware)
	case blueprint.RegErrorObserver:
		db.registerErrorObserver(uc)
	case blueprint.RegErrorHandler:
		db.registerErrorHandler(uc)
	case blueprint.RegPrebuilt:
		db.registerValueType(uc, KindPrebuilt)
	case blueprint.RegConfig:
		db.registerValueType(uc, KindConfig)
	}
}

func (db *Db) registerConstructor(uc *blueprint.UserComponent) {
	callable, ok := db.resolveCallable(uc.Callable, uc.Location)
	if !ok {
		return
	}
	okOut := callable.OkOutput()
	if language.IsUnit(okOut) {
		if callable.IsFallible() {
			db.report(diagnostics.CodeConstructorValidation, uc.Location,
				fmt.Sprintf("%s is fallible, but its success value is the unit type: all constructors must produce a value", callable.Path.Render()))
		} else {
			db.report(diagnostics.CodeConstructorValidation, uc.Location,
				fmt.Sprintf("%s returns the unit type: all constructors must produce a value", callable.Path.Render()))
		}
		return
	}
	if _, naked := okOut.(language.Generic); naked {
		db.report(diagnostics.CodeConstructorValidation, uc.Location,
			fmt.Sprintf("%s returns a naked generic parameter: the compiler cannot infer what it constructs", callable.Path.Render()))
		return
	}
	if unbound := underconstrainedParameters(callable); len(unbound) > 0 {
		db.report(diagnostics.CodeConstructorValidation, uc.Location,
			fmt.Sprintf("%s has generic parameters that appear only in its inputs (%s): they cannot be inferred from the output type", callable.Path.Render(), joinNames(unbound)))
		return
	}

	compID := db.computations.Intern(Computation{Kind: CompCallable, Callable: callable, Output: callable.Output})
	id := db.addComponent(Component{
		Kind:           KindConstructor,
		Computation:    compID,
		Scope:          uc.Scope,
		Lifecycle:      uc.Lifecycle,
		Cloning:        uc.Cloning,
		Location:       uc.Location,
		UserID:         uc.ID,
		FallibleParent: NoComponentID,
	})
	db.constructors = append(db.constructors, id)
}

// underconstrainedParameters returns the generic parameters that appear in
// inputs but never in the output.
func underconstrainedParameters(c *language.Callable) []string {
	outSet := make(map[string]struct{})
	for _, name := range c.OutputGenericParameters() {
		outSet[name] = struct{}{}
	}
	var unbound []string
	for _, name := range c.InputGenericParameters() {
		if _, ok := outSet[name]; !ok {
			unbound = append(unbound, name)
		}
	}
	return unbound
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += "`" + n + "`"
	}
	return out
}

func (db *Db) registerCallableComponent(uc *blueprint.UserComponent, kind Kind) {
	callable, ok := db.resolveCallable(uc.Callable, uc.Location)
	if !ok {
		return
	}
	if kind == KindRequestHandler || kind == KindFallback {
		if language.IsUnit(callable.OkOutput()) {
			db.report(diagnostics.CodeHandlerValidation, uc.Location,
				fmt.Sprintf("%s returns the unit type: request handlers must produce a response", callable.Path.Render()))
			return
		}
		if free := callable.FreeGenericParameters(); len(free) > 0 {
			db.report(diagnostics.CodeHandlerValidation, uc.Location,
				fmt.Sprintf("%s has unassigned generic parameters (%s): all generics must be assigned at registration", callable.Path.Render(), joinNames(free)))
			return
		}
	}

	compID := db.computations.Intern(Computation{Kind: CompCallable, Callable: callable, Output: callable.Output})
	id := db.addComponent(Component{
		Kind:           kind,
		Computation:    compID,
		Scope:          uc.Scope,
		Lifecycle:      uc.Lifecycle,
		Cloning:        uc.Cloning,
		Location:       uc.Location,
		UserID:         uc.ID,
		FallibleParent: NoComponentID,
		RouterKey:      uc.RouterKey,
	})
	if kind == KindRequestHandler {
		db.routes = append(db.routes, id)
	}
	if kind == KindFallback {
		db.fallbackByScope[uc.Scope] = id
		if uc.ID == db.table.RootFallback {
			db.rootFallback = id
		}
	}
}

func (db *Db) registerWrappingMiddleware(uc *blueprint.UserComponent) {
	callable, ok := db.resolveCallable(uc.Callable, uc.Location)
	if !ok {
		return
	}
	var nextInners []language.Type
	for _, in := range callable.Inputs {
		if inner, isNext := framework.IsNext(in); isNext {
			nextInners = append(nextInners, inner)
		}
	}
	switch {
	case len(nextInners) == 0:
		db.report(diagnostics.CodeMiddlewareValidation, uc.Location,
			fmt.Sprintf("%s does not take the rest of the pipeline as input: wrapping middlewares must accept a Next value", callable.Path.Render()))
		return
	case len(nextInners) > 1:
		db.report(diagnostics.CodeMiddlewareValidation, uc.Location,
			fmt.Sprintf("%s takes more than one Next value: the rest of the pipeline can only be injected once", callable.Path.Render()))
		return
	}
	if _, naked := nextInners[0].(language.Generic); !naked {
		db.report(diagnostics.CodeMiddlewareValidation, uc.Location,
			fmt.Sprintf("%s constrains the Next parameter to %s: it must be a naked generic parameter", callable.Path.Render(), nextInners[0].Render()))
		return
	}

	compID := db.computations.Intern(Computation{Kind: CompCallable, Callable: callable, Output: callable.Output})
	db.addComponent(Component{
		Kind:           KindWrappingMiddleware,
		Computation:    compID,
		Scope:          uc.Scope,
		Lifecycle:      uc.Lifecycle,
		Location:       uc.Location,
		UserID:         uc.ID,
		FallibleParent: NoComponentID,
	})
}

func (db *Db) registerErrorObserver(uc *blueprint.UserComponent) {
	callable, ok := db.resolveCallable(uc.Callable, uc.Location)
	if !ok {
		return
	}
	if callable.IsFallible() {
		db.report(diagnostics.CodeErrorHandlerValidation, uc.Location,
			fmt.Sprintf("%s is fallible: error observers cannot fail", callable.Path.Render()))
		return
	}
	if !language.IsUnit(callable.Output) {
		db.report(diagnostics.CodeErrorHandlerValidation, uc.Location,
			fmt.Sprintf("%s returns a value: error observers must return nothing", callable.Path.Render()))
		return
	}
	wantsError := false
	errRef := language.Reference{Inner: framework.UniversalError()}
	for _, in := range callable.Inputs {
		if language.Equal(in, errRef) {
			wantsError = true
			break
		}
	}
	if !wantsError {
		db.report(diagnostics.CodeErrorHandlerValidation, uc.Location,
			fmt.Sprintf("%s does not observe the error: it must take a shared reference to the runtime error type", callable.Path.Render()))
		return
	}

	compID := db.computations.Intern(Computation{Kind: CompCallable, Callable: callable, Output: callable.Output})
	db.addComponent(Component{
		Kind:           KindErrorObserver,
		Computation:    compID,
		Scope:          uc.Scope,
		Lifecycle:      uc.Lifecycle,
		Location:       uc.Location,
		UserID:         uc.ID,
		FallibleParent: NoComponentID,
	})
}

func (db *Db) registerErrorHandler(uc *blueprint.UserComponent) {
	ownerID, ok := db.userToComponent[uc.FallibleOwner]
	if !ok {
		// The owner failed validation; its diagnostic already covers this
		// registration.
		return
	}
	owner := db.Get(ownerID)
	callable, ok := db.resolveCallable(uc.Callable, uc.Location)
	if !ok {
		return
	}

	ownerComp := db.Computation(ownerID)
	if !ownerComp.IsFallible() {
		db.report(diagnostics.CodeErrorHandlerForInfallible, uc.Location,
			fmt.Sprintf("%s is registered as the error handler of %s, but %s is infallible", callable.Path.Render(), db.RenderComponent(ownerID), db.RenderComponent(ownerID)))
		return
	}
	if owner.Lifecycle == blueprint.LifecycleSingleton {
		db.report(diagnostics.CodeErrorHandlerForSingleton, uc.Location,
			fmt.Sprintf("%s is a singleton: its errors surface when the application state is built, so they cannot have a dedicated error handler", db.RenderComponent(ownerID)))
		return
	}
	if callable.IsFallible() {
		db.report(diagnostics.CodeErrorHandlerValidation, uc.Location,
			fmt.Sprintf("%s is fallible: error handlers cannot fail", callable.Path.Render()))
		return
	}
	errType := ownerComp.Output.(language.Result).Err
	errRef := language.Reference{Inner: errType}
	found := false
	for _, in := range callable.Inputs {
		if language.Equal(in, errRef) {
			found = true
			break
		}
	}
	if !found {
		db.report(diagnostics.CodeErrorHandlerValidation, uc.Location,
			fmt.Sprintf("%s must take a shared reference to %s, the error type of %s", callable.Path.Render(), errType.Render(), db.RenderComponent(ownerID)))
		return
	}
	if language.IsUnit(callable.Output) {
		db.report(diagnostics.CodeErrorHandlerValidation, uc.Location,
			fmt.Sprintf("%s returns the unit type: error handlers must produce a response", callable.Path.Render()))
		return
	}

	compID := db.computations.Intern(Computation{Kind: CompCallable, Callable: callable, Output: callable.Output})
	id := db.addComponent(Component{
		Kind:           KindErrorHandler,
		Computation:    compID,
		Scope:          uc.Scope,
		Lifecycle:      blueprint.LifecycleTransient,
		Location:       uc.Location,
		UserID:         uc.ID,
		FallibleParent: ownerID,
	})
	db.errorHandlers[ownerID] = id
}

func (db *Db) registerValueType(uc *blueprint.UserComponent, kind Kind) {
	typ, err := language.ParseType(uc.TypeExpr)
	if err != nil {
		db.report(diagnostics.CodeUnresolvedPath, uc.Location,
			fmt.Sprintf("I cannot parse %q as a type: %v", uc.TypeExpr, err))
		return
	}
	pt, isPath := typ.(language.PathType)
	if !isPath {
		code := diagnostics.CodeBlueprintValidation
		if kind == KindConfig {
			code = diagnostics.CodeConfigValidation
		}
		db.report(code, uc.Location,
			fmt.Sprintf("%s is not a named type: only named types can be registered here", typ.Render()))
		return
	}
	if _, rerr := db.oracle.ResolvePath(pt.ImportPath + "." + pt.Name); rerr != nil {
		db.report(diagnostics.CodeUnresolvedPath, uc.Location,
			fmt.Sprintf("I cannot resolve %q: %v", uc.TypeExpr, rerr))
		return
	}
	if canonical, okPath := db.oracle.CanonicalType(pt).(language.PathType); okPath {
		pt = canonical
	}
	if kind == KindConfig && uc.Cloning == blueprint.NeverClone {
		db.report(diagnostics.CodeConfigValidation, uc.Location,
			fmt.Sprintf("%s is registered as a config type but refuses cloning: config values are handed to every pipeline that needs them", pt.Render()))
		return
	}

	compKind := CompPrebuiltValue
	if kind == KindConfig {
		compKind = CompConfigValue
	}
	compID := db.computations.Intern(Computation{Kind: compKind, Output: pt})
	id := db.addComponent(Component{
		Kind:           kind,
		Computation:    compID,
		Scope:          uc.Scope,
		Lifecycle:      uc.Lifecycle,
		Cloning:        uc.Cloning,
		Default:        uc.Default,
		ConfigKey:      uc.ConfigKey,
		Location:       uc.Location,
		UserID:         uc.ID,
		FallibleParent: NoComponentID,
	})
	if kind == KindPrebuilt {
		db.prebuilts = append(db.prebuilts, id)
	} else {
		db.configs = append(db.configs, id)
	}
}

// linkChains maps the reader's per-route middleware and observer chains
// onto component ids, dropping registrations that failed validation.
func (db *Db) linkChains() {
	link := func(src map[blueprint.UserComponentID][]blueprint.UserComponentID, dst map[ComponentID][]ComponentID) {
		for ucID, chain := range src {
			owner, ok := db.userToComponent[ucID]
			if !ok {
				continue
			}
			var ids []ComponentID
			for _, mwUC := range chain {
				if mwID, ok := db.userToComponent[mwUC]; ok {
					ids = append(ids, mwID)
				}
			}
			dst[owner] = ids
		}
	}
	link(db.table.MiddlewareChains, db.middlewareChains)
	link(db.table.ObserverChains, db.observerChains)
}

// synthesiseDerived walks the registered components and generates their
// derived siblings: Ok/Err match projections for fallible outputs and
// response coercion transformers for response-producing components.
func (db *Db) synthesiseDerived() {
	n := len(db.components)
	for id := ComponentID(0); id < ComponentID(n); id++ {
		c := db.Get(id)
		comp := db.Computation(id)

		if comp.IsFallible() {
			db.deriveMatchers(id)
			switch c.Kind {
			case KindConstructor, KindRequestHandler, KindFallback,
				KindWrappingMiddleware, KindPreProcessingMiddleware, KindPostProcessingMiddleware:
				if c.Lifecycle == blueprint.LifecycleSingleton {
					break
				}
				if _, ok := db.errorHandlers[id]; !ok {
					db.report(diagnostics.CodeMissingErrorHandler, c.Location,
						fmt.Sprintf("%s can fail, but it has no error handler: register one to decide which response the caller sees", db.RenderComponent(id)))
				}
			}
		}

		switch c.Kind {
		case KindRequestHandler, KindFallback, KindErrorHandler, KindWrappingMiddleware:
			db.attachResponseCoercion(id)
		}
	}
}

func (db *Db) deriveMatchers(id ComponentID) {
	if _, done := db.matchers[id]; done {
		return
	}
	c := db.Get(id)
	res := db.Computation(id).Output.(language.Result)

	okComp := db.computations.Intern(Computation{
		Kind:    CompMatchProjection,
		Input:   res,
		Variant: VariantOk,
		Output:  res.Ok,
	})
	errComp := db.computations.Intern(Computation{
		Kind:    CompMatchProjection,
		Input:   res,
		Variant: VariantErr,
		Output:  res.Err,
	})
	okID := db.addComponent(Component{
		Kind:           KindTransformer,
		Computation:    okComp,
		Scope:          c.Scope,
		Lifecycle:      c.Lifecycle,
		Cloning:        c.Cloning,
		Location:       c.Location,
		UserID:         blueprint.NoComponent,
		FallibleParent: id,
		Variant:        VariantOk,
	})
	errID := db.addComponent(Component{
		Kind:           KindTransformer,
		Computation:    errComp,
		Scope:          c.Scope,
		Lifecycle:      c.Lifecycle,
		Location:       c.Location,
		UserID:         blueprint.NoComponent,
		FallibleParent: id,
		Variant:        VariantErr,
	})
	db.matchers[id] = MatcherPair{Ok: okID, Err: errID}
}

// RegisterSpecialised instantiates a template component with the given
// generic bindings and interns the result as a fresh derived component of
// the same kind. Matchers, response coercion and the error-handler
// association carry over from the template.
func (db *Db) RegisterSpecialised(tmpl ComponentID, bindings map[string]language.Type) ComponentID {
	orig := db.Get(tmpl)
	callable := db.Computation(tmpl).Callable.Substituted(bindings)
	compID := db.computations.Intern(Computation{Kind: CompCallable, Callable: callable, Output: callable.Output})
	id := db.addComponent(Component{
		Kind:           orig.Kind,
		Computation:    compID,
		Scope:          orig.Scope,
		Lifecycle:      orig.Lifecycle,
		Cloning:        orig.Cloning,
		Location:       orig.Location,
		UserID:         blueprint.NoComponent,
		FallibleParent: NoComponentID,
	})
	if db.computations.Get(compID).IsFallible() {
		db.deriveMatchers(id)
		if handler, ok := db.errorHandlers[tmpl]; ok {
			db.errorHandlers[id] = handler
		}
	}
	switch orig.Kind {
	case KindRequestHandler, KindFallback, KindErrorHandler, KindWrappingMiddleware:
		db.attachResponseCoercion(id)
	}
	return id
}

// RegisterSynthetic interns a compiler-generated callable component, such
// as an error-wrapping conversion, a clone call inserted by the borrow
// checker, or the application-state builder.
func (db *Db) RegisterSynthetic(kind Kind, callable *language.Callable, scope blueprint.ScopeID, lifecycle blueprint.Lifecycle) ComponentID {
	compID := db.computations.Intern(Computation{Kind: CompCallable, Callable: callable, Output: callable.Output})
	id := db.addComponent(Component{
		Kind:           kind,
		Computation:    compID,
		Scope:          scope,
		Lifecycle:      lifecycle,
		Location:       diagnostics.Location{},
		UserID:         blueprint.NoComponent,
		FallibleParent: NoComponentID,
	})
	if db.computations.Get(compID).IsFallible() {
		db.deriveMatchers(id)
	}
	return id
}

// attachResponseCoercion makes sure the component's success value becomes
// a response. When the component is fallible the coercion hangs off its Ok
// projection.
func (db *Db) attachResponseCoercion(id ComponentID) {
	c := db.Get(id)
	comp := db.Computation(id)
	okType := comp.OkOutput()
	if language.IsUnit(okType) {
		return
	}
	if language.Equal(okType, framework.Response()) {
		return
	}
	if !db.oracle.Satisfies(okType, ports.CapabilityIntoResponse) {
		db.report(diagnostics.CodeMissingResponseCoercion, c.Location,
			fmt.Sprintf("%s produces %s, which cannot be converted into a response", db.RenderComponent(id), okType.Render()))
		return
	}

	target := id
	if comp.IsFallible() {
		db.deriveMatchers(id)
		target = db.matchers[id].Ok
	}
	coercion := framework.IntoResponseCallable(okType)
	coercionComp := db.computations.Intern(Computation{Kind: CompCallable, Callable: coercion, Output: coercion.Output})
	tid := db.addComponent(Component{
		Kind:           KindTransformer,
		Computation:    coercionComp,
		Scope:          c.Scope,
		Lifecycle:      blueprint.LifecycleTransient,
		Location:       c.Location,
		UserID:         blueprint.NoComponent,
		FallibleParent: NoComponentID,
	})
	db.transformers[target] = append(db.transformers[target], tid)
}
