package router

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/loom/internal/blueprint"
	"github.com/alexisbeaulieu97/loom/internal/compiler/component"
	"github.com/alexisbeaulieu97/loom/internal/diagnostics"
	"github.com/alexisbeaulieu97/loom/internal/ports"
)

// knownMethods is the method universe an ANY guard expands to.
var knownMethods = []string{
	"GET", "HEAD", "POST", "PUT", "DELETE", "CONNECT", "OPTIONS", "TRACE", "PATCH",
}

// LeafRouter is the routing decision for one path: which handler serves
// each method, and which fallback handles a method mismatch.
type LeafRouter struct {
	Path   string
	Domain string
	// RouteID is the small integer the dispatcher matches on.
	RouteID int
	// ByMethod maps each admitted method to its handler.
	ByMethod map[string]component.ComponentID
	// Handlers lists the distinct handlers covering this path, in
	// registration order.
	Handlers []component.ComponentID
	// Fallback handles requests whose method is not admitted.
	Fallback component.ComponentID
	// CatchAllFallback marks leaves synthesised from a nested blueprint's
	// path prefix: the "handler" is the scope fallback itself.
	CatchAllFallback bool
}

// MethodsOf returns the sorted methods served by the given handler at
// this path.
func (l *LeafRouter) MethodsOf(handler component.ComponentID) []string {
	var out []string
	for method, h := range l.ByMethod {
		if h == handler {
			out = append(out, method)
		}
	}
	sort.Strings(out)
	return out
}

// Router is the complete routing table: one leaf per registered path plus
// the fallback dispatched on path misses.
type Router struct {
	// Leaves holds every path leaf in deterministic order: user routes in
	// registration order, then synthesised catch-alls.
	Leaves []*LeafRouter
	// RootFallback handles requests that match no path at all.
	RootFallback component.ComponentID
}

// Leaf returns the leaf for a path, if any.
func (r *Router) Leaf(path string) (*LeafRouter, bool) {
	for _, leaf := range r.Leaves {
		if leaf.Path == path {
			return leaf, true
		}
	}
	return nil, false
}

// FallbackIDs returns the distinct fallbacks referenced anywhere in the
// table, root fallback first.
func (r *Router) FallbackIDs() []component.ComponentID {
	seen := map[component.ComponentID]bool{}
	var out []component.ComponentID
	if r.RootFallback != component.NoComponentID {
		seen[r.RootFallback] = true
		out = append(out, r.RootFallback)
	}
	for _, leaf := range r.Leaves {
		if leaf.Fallback != component.NoComponentID && !seen[leaf.Fallback] {
			seen[leaf.Fallback] = true
			out = append(out, leaf.Fallback)
		}
	}
	return out
}

// New builds the routing table from the component database: it detects
// path and method conflicts, then assigns a fallback to every leaf.
func New(ctx context.Context, db *component.Db, sink diagnostics.Sink, logger ports.Logger) (*Router, bool) {
	b := &routerBuilder{db: db, sink: sink}
	r, ok := b.build()
	if ok {
		logger.Debug(ctx, "router built",
			"paths", len(r.Leaves),
			"fallbacks", len(r.FallbackIDs()),
		)
	}
	return r, ok
}

type routerBuilder struct {
	db     *component.Db
	sink   diagnostics.Sink
	failed bool
}

func (b *routerBuilder) build() (*Router, bool) {
	router := &Router{RootFallback: b.db.RootFallback()}

	// Group handlers by domain+path, preserving registration order.
	type pathGroup struct {
		domain   string
		path     string
		handlers []component.ComponentID
	}
	var groups []*pathGroup
	groupIndex := make(map[string]*pathGroup)
	for _, id := range b.db.Routes() {
		key := b.db.Get(id).RouterKey
		mapKey := key.Domain + "\x00" + key.Path
		group, ok := groupIndex[mapKey]
		if !ok {
			group = &pathGroup{domain: key.Domain, path: key.Path}
			groupIndex[mapKey] = group
			groups = append(groups, group)
		}
		group.handlers = append(group.handlers, id)
	}

	trees := make(map[string]*Tree)
	routeID := 0
	for _, group := range groups {
		leaf := &LeafRouter{
			Path:     group.path,
			Domain:   group.domain,
			RouteID:  routeID,
			ByMethod: make(map[string]component.ComponentID),
			Fallback: component.NoComponentID,
		}
		routeID++

		b.detectMethodConflicts(group.handlers, leaf)
		b.insertIntoTree(trees, group.domain, group.path, leaf.RouteID)
		b.assignFallback(group.handlers, leaf)

		router.Leaves = append(router.Leaves, leaf)
	}

	b.synthesiseCatchAlls(router, trees, &routeID)

	return router, !b.failed
}

// detectMethodConflicts fills the leaf's method table, reporting every
// cell covered by more than one distinct callable.
func (b *routerBuilder) detectMethodConflicts(handlers []component.ComponentID, leaf *LeafRouter) {
	for _, id := range handlers {
		guard := b.db.Get(id).RouterKey.Method
		methods := guard.Methods
		if guard.Any {
			methods = knownMethods
		}
		registered := false
		for _, method := range methods {
			prior, taken := leaf.ByMethod[method]
			if !taken {
				leaf.ByMethod[method] = id
				registered = true
				continue
			}
			// The same callable registered twice for one cell is benign.
			if b.sameCallable(prior, id) {
				continue
			}
			b.failed = true
			b.sink.Report(diagnostics.Diagnostic{
				Code:     diagnostics.CodeRouterConflict,
				Severity: diagnostics.SeverityError,
				Message: fmt.Sprintf("%s %s is claimed by two different request handlers: %s and %s",
					method, leaf.Path, b.db.RenderComponent(prior), b.db.RenderComponent(id)),
				Location: b.db.Get(id).Location,
				Related:  []diagnostics.Location{b.db.Get(prior).Location},
			})
		}
		if registered {
			leaf.Handlers = append(leaf.Handlers, id)
		}
	}
}

func (b *routerBuilder) sameCallable(a, c component.ComponentID) bool {
	ca := b.db.Computation(a)
	cc := b.db.Computation(c)
	if ca.Kind != component.CompCallable || cc.Kind != component.CompCallable {
		return false
	}
	return ca.Callable.Path.Equal(cc.Callable.Path)
}

func (b *routerBuilder) insertIntoTree(trees map[string]*Tree, domain, path string, routeID int) {
	t, ok := trees[domain]
	if !ok {
		t = NewTree()
		trees[domain] = t
	}
	// Paths are grouped before insertion, so an identical-path conflict
	// (a different-method registration) can never reach the tree: every
	// error here is a genuine pattern collision.
	err := t.Insert(path, routeID)
	if err == nil {
		return
	}
	b.failed = true
	b.sink.Report(diagnostics.Diagnostic{
		Code:     diagnostics.CodeRouterConflict,
		Severity: diagnostics.SeverityError,
		Message:  err.Error(),
	})
}

// assignFallback merges the scope-based and path-based fallback lookups
// for every handler at this path, per the routing rules.
func (b *routerBuilder) assignFallback(handlers []component.ComponentID, leaf *LeafRouter) {
	resolved := make(map[component.ComponentID]component.ComponentID, len(handlers))
	for _, id := range handlers {
		fb, ok := b.fallbackFor(id, leaf.Path)
		if !ok {
			continue
		}
		resolved[id] = fb
	}

	var chosen component.ComponentID = component.NoComponentID
	var disagreement []component.ComponentID
	for _, id := range handlers {
		fb, ok := resolved[id]
		if !ok {
			continue
		}
		if chosen == component.NoComponentID {
			chosen = fb
			continue
		}
		if fb != chosen {
			disagreement = append(disagreement, id)
		}
	}
	if len(disagreement) > 0 {
		b.failed = true
		related := make([]diagnostics.Location, 0, len(handlers))
		for _, id := range handlers {
			related = append(related, b.db.Get(id).Location)
		}
		b.sink.Report(diagnostics.Diagnostic{
			Code:     diagnostics.CodeFallbackAmbiguity,
			Severity: diagnostics.SeverityError,
			Message: fmt.Sprintf("the handlers registered for %s disagree on which fallback should handle a method mismatch",
				leaf.Path),
			Location: related[0],
			Related:  related[1:],
		})
	}
	leaf.Fallback = chosen
	if leaf.Fallback == component.NoComponentID {
		leaf.Fallback = b.db.RootFallback()
	}
}

// fallbackFor resolves the fallback for one handler by merging the
// scope-based and path-based strategies.
func (b *routerBuilder) fallbackFor(handler component.ComponentID, path string) (component.ComponentID, bool) {
	scopes := b.db.Scopes()
	handlerScope := b.db.Get(handler).Scope

	scopeBased := component.NoComponentID
	scopeBasedScope := blueprint.ScopeID(-1)
	for cur := handlerScope; cur >= 0; cur = scopes.Parent(cur) {
		if fb, ok := b.db.FallbackInScope(cur); ok {
			scopeBased = fb
			scopeBasedScope = cur
			break
		}
	}

	pathBased := component.NoComponentID
	pathBasedScope := blueprint.ScopeID(-1)
	bestPrefix := -1
	for scope, prefix := range b.db.AuxTable().PrefixByScope {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		fb, ok := b.nearestFallbackWithin(scope)
		if !ok {
			continue
		}
		if len(prefix) > bestPrefix {
			bestPrefix = len(prefix)
			pathBased = fb
			pathBasedScope = scope
		}
	}

	switch {
	case scopeBased == component.NoComponentID && pathBased == component.NoComponentID:
		return component.NoComponentID, false
	case pathBased == component.NoComponentID:
		return scopeBased, true
	case scopeBased == component.NoComponentID:
		return pathBased, true
	case scopeBased == pathBased:
		return scopeBased, true
	case scopes.IsDescendant(scopeBasedScope, pathBasedScope):
		// The scope-based fallback wraps the handler more closely.
		return scopeBased, true
	default:
		b.failed = true
		b.sink.Report(diagnostics.Diagnostic{
			Code:     diagnostics.CodeFallbackAmbiguity,
			Severity: diagnostics.SeverityError,
			Message: fmt.Sprintf("routing for %s is ambiguous: %s and %s both claim its misses",
				path, b.db.RenderComponent(scopeBased), b.db.RenderComponent(pathBased)),
			Location: b.db.Get(handler).Location,
			Related: []diagnostics.Location{
				b.db.Get(scopeBased).Location,
				b.db.Get(pathBased).Location,
			},
		})
		return component.NoComponentID, false
	}
}

// nearestFallbackWithin finds the fallback governing a nested scope: the
// scope's own fallback, or the nearest one up its parent chain.
func (b *routerBuilder) nearestFallbackWithin(scope blueprint.ScopeID) (component.ComponentID, bool) {
	scopes := b.db.Scopes()
	for cur := scope; cur >= 0; cur = scopes.Parent(cur) {
		if fb, ok := b.db.FallbackInScope(cur); ok {
			return fb, true
		}
	}
	return component.NoComponentID, false
}

// synthesiseCatchAlls adds an implicit `prefix/*catch_all` leaf for every
// prefixed nested blueprint, so path misses under the prefix reach that
// subtree's fallback instead of the root one.
func (b *routerBuilder) synthesiseCatchAlls(router *Router, trees map[string]*Tree, routeID *int) {
	table := b.db.AuxTable()

	scopeIDs := make([]int, 0, len(table.PrefixByScope))
	for scope := range table.PrefixByScope {
		scopeIDs = append(scopeIDs, int(scope))
	}
	sort.Ints(scopeIDs)

	for _, s := range scopeIDs {
		scope := blueprint.ScopeID(s)
		prefix := table.PrefixByScope[scope]
		fb, ok := b.nearestFallbackWithin(scope)
		if !ok || fb == router.RootFallback {
			continue
		}
		path := prefix + "/*catch_all"
		domain := table.DomainByScope[scope]
		// A user catch-all directly under the prefix already covers this
		// position; their registration wins.
		covered := false
		for _, leaf := range router.Leaves {
			covered = covered || (leaf.Domain == domain && strings.HasPrefix(leaf.Path, prefix+"/*"))
		}
		if covered {
			continue
		}
		router.Leaves = append(router.Leaves, &LeafRouter{
			Path:             path,
			Domain:           domain,
			RouteID:          *routeID,
			ByMethod:         make(map[string]component.ComponentID),
			Fallback:         fb,
			CatchAllFallback: true,
		})
		*routeID++
	}
}
