package component

import (
	"fmt"

	"github.com/alexisbeaulieu97/loom/internal/blueprint"
	"github.com/alexisbeaulieu97/loom/internal/diagnostics"
	"github.com/alexisbeaulieu97/loom/internal/language"
)

// ConsumptionMode is how a component reads one of its inputs.
type ConsumptionMode int

const (
	// ModeMove consumes the value.
	ModeMove ConsumptionMode = iota
	// ModeSharedBorrow reads the value through a shared reference.
	ModeSharedBorrow
)

func (m ConsumptionMode) String() string {
	if m == ModeSharedBorrow {
		return "shared borrow"
	}
	return "move"
}

// Constructibles is the scope-aware provider index: which component can
// produce which type, and how the value is handed over. A constructor
// registered in scope S is visible in S and every descendant.
type Constructibles struct {
	db      *Db
	byScope map[blueprint.ScopeID]map[string]ComponentID
	// templates holds, per scope, the constructors whose output still has
	// unassigned generic parameters.
	templates map[blueprint.ScopeID][]ComponentID
	// specialised caches template instantiations so repeated lookups reuse
	// the same derived component.
	specialised map[string]ComponentID
}

// NewConstructibles indexes every provider in the component database.
// Two providers for the same type in the same scope are ambiguous and
// reported to the sink.
func NewConstructibles(db *Db, sink diagnostics.Sink) *Constructibles {
	c := &Constructibles{
		db:          db,
		byScope:     make(map[blueprint.ScopeID]map[string]ComponentID),
		templates:   make(map[blueprint.ScopeID][]ComponentID),
		specialised: make(map[string]ComponentID),
	}
	for _, id := range db.Constructors() {
		c.index(id, sink)
	}
	for _, id := range db.Prebuilts() {
		c.index(id, sink)
	}
	for _, id := range db.Configs() {
		c.index(id, sink)
	}
	return c
}

func (c *Constructibles) index(id ComponentID, sink diagnostics.Sink) {
	comp := c.db.Get(id)
	output := c.db.Computation(id).OkOutput()
	if output == nil {
		return
	}
	if output.IsTemplate() {
		c.templates[comp.Scope] = append(c.templates[comp.Scope], id)
		return
	}
	scopeIndex, ok := c.byScope[comp.Scope]
	if !ok {
		scopeIndex = make(map[string]ComponentID)
		c.byScope[comp.Scope] = scopeIndex
	}
	if prior, clash := scopeIndex[output.Key()]; clash {
		sink.Report(diagnostics.Diagnostic{
			Code:     diagnostics.CodeConstructorAmbiguity,
			Severity: diagnostics.SeverityError,
			Message:  fmt.Sprintf("two providers for %s are visible in the same scope: I cannot decide which one to use", output.Render()),
			Location: comp.Location,
			Related:  []diagnostics.Location{c.db.Get(prior).Location},
		})
		return
	}
	scopeIndex[output.Key()] = id
}

// Get locates a provider for the requested type, walking the scope graph
// from scope towards the root. The consumption mode tells the caller
// whether the provider's value is moved or borrowed to satisfy the
// request.
func (c *Constructibles) Get(scope blueprint.ScopeID, t language.Type) (ComponentID, ConsumptionMode, bool) {
	scopes := c.db.Scopes()
	for cur := scope; cur >= 0; cur = scopes.Parent(cur) {
		if id, mode, ok := c.lookupInScope(cur, t); ok {
			return id, mode, ok
		}
	}
	return NoComponentID, ModeMove, false
}

func (c *Constructibles) lookupInScope(scope blueprint.ScopeID, t language.Type) (ComponentID, ConsumptionMode, bool) {
	if index, ok := c.byScope[scope]; ok {
		if id, hit := index[t.Key()]; hit {
			return id, ModeMove, true
		}
		if ref, isRef := t.(language.Reference); isRef && !ref.Mutable {
			if id, hit := index[ref.Inner.Key()]; hit {
				return id, ModeSharedBorrow, true
			}
		}
	}
	for _, tmpl := range c.templates[scope] {
		if id, mode, ok := c.trySpecialise(scope, tmpl, t); ok {
			return id, mode, ok
		}
	}
	return NoComponentID, ModeMove, false
}

func (c *Constructibles) trySpecialise(scope blueprint.ScopeID, tmpl ComponentID, t language.Type) (ComponentID, ConsumptionMode, bool) {
	output := c.db.Computation(tmpl).OkOutput()

	if bindings, ok := language.Specialize(output, t); ok {
		return c.specialise(scope, tmpl, t, bindings), ModeMove, true
	}
	if ref, isRef := t.(language.Reference); isRef && !ref.Mutable {
		if bindings, ok := language.Specialize(output, ref.Inner); ok {
			return c.specialise(scope, tmpl, ref.Inner, bindings), ModeSharedBorrow, true
		}
	}
	return NoComponentID, ModeMove, false
}

func (c *Constructibles) specialise(scope blueprint.ScopeID, tmpl ComponentID, t language.Type, bindings map[string]language.Type) ComponentID {
	cacheKey := fmt.Sprintf("%d|%d|%s", scope, tmpl, t.Key())
	if id, ok := c.specialised[cacheKey]; ok {
		return id
	}
	id := c.db.RegisterSpecialised(tmpl, bindings)
	c.specialised[cacheKey] = id

	scopeIndex, ok := c.byScope[scope]
	if !ok {
		scopeIndex = make(map[string]ComponentID)
		c.byScope[scope] = scopeIndex
	}
	scopeIndex[t.Key()] = id
	return id
}
