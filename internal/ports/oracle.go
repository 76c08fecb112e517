package ports

import (
	"github.com/alexisbeaulieu97/loom/internal/language"
)

// Capability identifies a behaviour a type may or may not support. The
// compiler never inspects type internals itself; it asks the oracle.
type Capability string

const (
	// CapabilityClone marks types that can be duplicated by the borrow
	// checker when a move/borrow conflict must be repaired.
	CapabilityClone Capability = "Clone"
	// CapabilityIntoResponse marks types that can be coerced into an HTTP
	// response at the end of a pipeline.
	CapabilityIntoResponse Capability = "IntoResponse"
)

// ItemKind discriminates the two kinds of items a registered path can
// resolve to.
type ItemKind int

const (
	ItemKindType ItemKind = iota
	ItemKindCallable
)

// ResolvedItem is the oracle's answer for a registered path: either a type
// or a callable (function or method).
type ResolvedItem struct {
	Kind     ItemKind
	Type     language.Type
	Callable *language.Callable
}

// TypeOracle resolves registered paths to canonical items and answers
// capability queries. Implementations must be deterministic: the same
// query always yields the same answer within one compilation.
type TypeOracle interface {
	// ResolvePath resolves a fully-qualified registered path to an item.
	ResolvePath(path string) (ResolvedItem, error)
	// CanonicalPath returns the canonical segments for an item identified
	// by its package ID and name, independent of how user code spelled it.
	CanonicalPath(packageID, name string) ([]string, error)
	// CanonicalType rewrites a type so every named type in it carries the
	// stable identity of its defining package.
	CanonicalType(t language.Type) language.Type
	// Satisfies reports whether the given type supports a capability.
	Satisfies(t language.Type, capability Capability) bool
	// HasDefault returns the default assignment for a generic parameter,
	// if the oracle knows one.
	HasDefault(genericParam string) (language.Type, bool)
	// PackageVersion returns the semantic version of a package, used for
	// deterministic manifest naming. Empty when unknown.
	PackageVersion(packageID string) string
}
