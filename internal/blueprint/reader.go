package blueprint

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/loom/internal/diagnostics"
	"github.com/alexisbeaulieu97/loom/internal/framework"
	"github.com/alexisbeaulieu97/loom/internal/ports"
)

// UserComponentID identifies a flattened user registration.
type UserComponentID int

// NoComponent marks the absence of a component reference.
const NoComponent UserComponentID = -1

// RouterKey pins a route to a path, a method guard and an optional domain
// guard. Two routes conflict when their keys cover a common cell.
type RouterKey struct {
	Path   string
	Method MethodGuard
	Domain string
}

func (k RouterKey) String() string {
	method := "ANY"
	if !k.Method.Any {
		method = ""
		for i, m := range k.Method.Methods {
			if i > 0 {
				method += "|"
			}
			method += m
		}
	}
	if k.Domain != "" {
		return fmt.Sprintf("%s %s (domain: %s)", method, k.Path, k.Domain)
	}
	return fmt.Sprintf("%s %s", method, k.Path)
}

// UserComponent is one flattened registration: the component kind, where
// it was registered, which scope owns it, and the raw paths that still
// need resolving against the type oracle.
type UserComponent struct {
	ID       UserComponentID
	Kind     RegKind
	Scope    ScopeID
	Location diagnostics.Location

	// Callable is the registered path for callable-backed components,
	// empty for prebuilt/config components.
	Callable string
	// TypeExpr is the registered type for prebuilt/config components.
	TypeExpr string

	Lifecycle Lifecycle
	Cloning   CloningStrategy
	Default   DefaultStrategy
	ConfigKey string

	// RouterKey is set for routes.
	RouterKey *RouterKey
	// FallibleOwner links an error handler to the component whose error it
	// handles.
	FallibleOwner UserComponentID
}

// AuxTable is the reader's output: the flat component list plus every side
// table downstream phases need.
type AuxTable struct {
	Components []UserComponent
	Scopes     *ScopeGraph

	// MiddlewareChains maps each route (and fallback) to the middleware
	// components wrapping it, outermost first.
	MiddlewareChains map[UserComponentID][]UserComponentID
	// ObserverChains maps each route (and fallback) to the error observers
	// in scope at its registration point.
	ObserverChains map[UserComponentID][]UserComponentID

	// FallbackByScope records the fallback registered in each scope.
	FallbackByScope map[ScopeID]UserComponentID
	// PrefixByScope records the accumulated path prefix of each nested
	// scope that carries one.
	PrefixByScope map[ScopeID]string
	// DomainByScope records the effective domain guard of each scope.
	DomainByScope map[ScopeID]string

	// ErrorHandlerOf maps a fallible component to its registered error
	// handler.
	ErrorHandlerOf map[UserComponentID]UserComponentID

	// RootFallback is the fallback dispatched on path misses.
	RootFallback UserComponentID
}

// Component returns the component with the given id.
func (t *AuxTable) Component(id UserComponentID) *UserComponent {
	return &t.Components[id]
}

// Routes returns the ids of every route component in registration order.
func (t *AuxTable) Routes() []UserComponentID {
	var out []UserComponentID
	for i := range t.Components {
		if t.Components[i].Kind == RegRoute {
			out = append(out, UserComponentID(i))
		}
	}
	return out
}

type readerItem struct {
	scope    ScopeID
	bp       *Blueprint
	prefix   string
	domain   string
	mwChain  []UserComponentID
	obsChain []UserComponentID
}

// Read flattens a blueprint tree into an AuxTable. Validation problems are
// reported to the sink; the offending registration is skipped and the
// traversal continues.
func Read(ctx context.Context, bp *Blueprint, sink diagnostics.Sink, logger ports.Logger) *AuxTable {
	table := &AuxTable{
		Scopes:           NewScopeGraph(),
		MiddlewareChains: make(map[UserComponentID][]UserComponentID),
		ObserverChains:   make(map[UserComponentID][]UserComponentID),
		FallbackByScope:  make(map[ScopeID]UserComponentID),
		PrefixByScope:    make(map[ScopeID]string),
		DomainByScope:    make(map[ScopeID]string),
		ErrorHandlerOf:   make(map[UserComponentID]UserComponentID),
		RootFallback:     NoComponent,
	}

	queue := []readerItem{{scope: table.Scopes.Root(), bp: bp}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		queue = append(queue, readBlueprint(item, table, sink)...)
	}

	if _, ok := table.FallbackByScope[table.Scopes.Root()]; !ok {
		id := table.addComponent(UserComponent{
			Kind:          RegFallback,
			Scope:         table.Scopes.Root(),
			Location:      bp.CreationLocation,
			Callable:      framework.DefaultFallbackPath,
			Lifecycle:     LifecycleRequestScoped,
			FallibleOwner: NoComponent,
		})
		table.FallbackByScope[table.Scopes.Root()] = id
	}
	table.RootFallback = table.FallbackByScope[table.Scopes.Root()]

	logger.Debug(ctx, "blueprint flattened",
		"components", len(table.Components),
		"scopes", table.Scopes.Len(),
	)
	return table
}

func (t *AuxTable) addComponent(c UserComponent) UserComponentID {
	c.ID = UserComponentID(len(t.Components))
	t.Components = append(t.Components, c)
	return c.ID
}

func (t *AuxTable) addErrorHandler(owner UserComponentID, path string, loc diagnostics.Location) {
	id := t.addComponent(UserComponent{
		Kind:          RegErrorHandler,
		Scope:         t.Components[owner].Scope,
		Location:      loc,
		Callable:      path,
		FallibleOwner: owner,
	})
	t.ErrorHandlerOf[owner] = id
}

func readBlueprint(item readerItem, table *AuxTable, sink diagnostics.Sink) []readerItem {
	var nested []readerItem
	mwChain := item.mwChain
	obsChain := item.obsChain

	for i := range item.bp.Registrations {
		reg := &item.bp.Registrations[i]
		switch reg.Kind {
		case RegRoute:
			if !validateRoutePath(reg.Path, reg.Location, sink) {
				continue
			}
			routeScope := table.Scopes.NewScope(item.scope)
			key := &RouterKey{
				Path:   item.prefix + reg.Path,
				Method: reg.Method,
				Domain: item.domain,
			}
			id := table.addComponent(UserComponent{
				Kind:          RegRoute,
				Scope:         routeScope,
				Location:      reg.Location,
				Callable:      reg.Callable,
				Lifecycle:     LifecycleRequestScoped,
				RouterKey:     key,
				FallibleOwner: NoComponent,
			})
			table.MiddlewareChains[id] = snapshot(mwChain)
			table.ObserverChains[id] = snapshot(obsChain)
			if reg.ErrorHandler != "" {
				table.addErrorHandler(id, reg.ErrorHandler, reg.Location)
			}

		case RegFallback:
			if prior, ok := table.FallbackByScope[item.scope]; ok {
				sink.Report(diagnostics.Diagnostic{
					Code:     diagnostics.CodeBlueprintValidation,
					Severity: diagnostics.SeverityError,
					Message:  "you cannot register more than one fallback against the same blueprint",
					Location: reg.Location,
					Related:  []diagnostics.Location{table.Components[prior].Location},
				})
				continue
			}
			id := table.addComponent(UserComponent{
				Kind:          RegFallback,
				Scope:         item.scope,
				Location:      reg.Location,
				Callable:      reg.Callable,
				Lifecycle:     LifecycleRequestScoped,
				FallibleOwner: NoComponent,
			})
			table.FallbackByScope[item.scope] = id
			table.MiddlewareChains[id] = snapshot(mwChain)
			table.ObserverChains[id] = snapshot(obsChain)
			if reg.ErrorHandler != "" {
				table.addErrorHandler(id, reg.ErrorHandler, reg.Location)
			}

		case RegConstructor:
			id := table.addComponent(UserComponent{
				Kind:          RegConstructor,
				Scope:         item.scope,
				Location:      reg.Location,
				Callable:      reg.Callable,
				Lifecycle:     reg.Lifecycle,
				Cloning:       reg.Cloning,
				FallibleOwner: NoComponent,
			})
			if reg.ErrorHandler != "" {
				table.addErrorHandler(id, reg.ErrorHandler, reg.Location)
			}

		case RegWrappingMiddleware, RegPreProcessingMiddleware, RegPostProcessingMiddleware:
			id := table.addComponent(UserComponent{
				Kind:          reg.Kind,
				Scope:         item.scope,
				Location:      reg.Location,
				Callable:      reg.Callable,
				Lifecycle:     LifecycleRequestScoped,
				FallibleOwner: NoComponent,
			})
			if reg.ErrorHandler != "" {
				table.addErrorHandler(id, reg.ErrorHandler, reg.Location)
			}
			mwChain = append(snapshot(mwChain), id)

		case RegErrorObserver:
			id := table.addComponent(UserComponent{
				Kind:          RegErrorObserver,
				Scope:         item.scope,
				Location:      reg.Location,
				Callable:      reg.Callable,
				Lifecycle:     LifecycleTransient,
				FallibleOwner: NoComponent,
			})
			obsChain = append(snapshot(obsChain), id)

		case RegPrebuilt:
			table.addComponent(UserComponent{
				Kind:          RegPrebuilt,
				Scope:         item.scope,
				Location:      reg.Location,
				TypeExpr:      reg.TypeExpr,
				Lifecycle:     reg.Lifecycle,
				Cloning:       reg.Cloning,
				FallibleOwner: NoComponent,
			})

		case RegConfig:
			table.addComponent(UserComponent{
				Kind:          RegConfig,
				Scope:         item.scope,
				Location:      reg.Location,
				TypeExpr:      reg.TypeExpr,
				ConfigKey:     reg.ConfigKey,
				Lifecycle:     reg.Lifecycle,
				Cloning:       reg.Cloning,
				Default:       reg.Default,
				FallibleOwner: NoComponent,
			})

		case RegNested:
			prefix := item.prefix
			if reg.HasPrefix {
				if !validatePrefix(reg.Prefix, reg.Location, sink) {
					continue
				}
				prefix = item.prefix + reg.Prefix
			}
			domain := item.domain
			if reg.Domain != "" {
				if !validateDomain(reg.Domain, reg.Location, sink) {
					continue
				}
				domain = reg.Domain
			}
			childScope := table.Scopes.NewScope(item.scope)
			if reg.HasPrefix {
				table.PrefixByScope[childScope] = prefix
			}
			if domain != "" {
				table.DomainByScope[childScope] = domain
			}
			nested = append(nested, readerItem{
				scope:    childScope,
				bp:       reg.Child,
				prefix:   prefix,
				domain:   domain,
				mwChain:  snapshot(mwChain),
				obsChain: snapshot(obsChain),
			})
		}
	}
	return nested
}

func snapshot(ids []UserComponentID) []UserComponentID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]UserComponentID, len(ids))
	copy(out, ids)
	return out
}
