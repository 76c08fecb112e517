package blueprint

// ScopeID identifies a node in the scope graph.
type ScopeID int

// ScopeGraph is the tree encoding the nesting structure of the blueprint.
// The root scope always exists; the application-state scope sits directly
// under it, next to the per-route and per-nesting scopes, and hosts
// singleton construction.
type ScopeGraph struct {
	parents  []ScopeID
	appState ScopeID
}

// NewScopeGraph creates a graph containing the root scope and the
// application-state scope.
func NewScopeGraph() *ScopeGraph {
	g := &ScopeGraph{parents: []ScopeID{-1}}
	g.appState = g.NewScope(g.Root())
	return g
}

// Root returns the root scope.
func (g *ScopeGraph) Root() ScopeID { return 0 }

// ApplicationState returns the scope used for singleton construction.
func (g *ScopeGraph) ApplicationState() ScopeID { return g.appState }

// NewScope adds a child of parent and returns its id.
func (g *ScopeGraph) NewScope(parent ScopeID) ScopeID {
	id := ScopeID(len(g.parents))
	g.parents = append(g.parents, parent)
	return id
}

// Parent returns the parent of a scope, or -1 for the root.
func (g *ScopeGraph) Parent(id ScopeID) ScopeID {
	return g.parents[id]
}

// Len returns the number of scopes.
func (g *ScopeGraph) Len() int { return len(g.parents) }

// IsDescendant reports whether child is scope or descends from scope via
// parent edges.
func (g *ScopeGraph) IsDescendant(child, scope ScopeID) bool {
	for cur := child; cur >= 0; cur = g.parents[cur] {
		if cur == scope {
			return true
		}
	}
	return false
}

// PathToRoot returns the chain of scopes from id up to and including the
// root.
func (g *ScopeGraph) PathToRoot(id ScopeID) []ScopeID {
	var chain []ScopeID
	for cur := id; cur >= 0; cur = g.parents[cur] {
		chain = append(chain, cur)
	}
	return chain
}
