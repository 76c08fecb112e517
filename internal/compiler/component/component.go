package component

import (
	"github.com/alexisbeaulieu97/loom/internal/blueprint"
	"github.com/alexisbeaulieu97/loom/internal/diagnostics"
)

// ComponentID identifies a component in the database.
type ComponentID int

// NoComponentID marks the absence of a component reference.
const NoComponentID ComponentID = -1

// Kind classifies a component.
type Kind int

const (
	KindConstructor Kind = iota
	KindRequestHandler
	KindFallback
	KindWrappingMiddleware
	KindPreProcessingMiddleware
	KindPostProcessingMiddleware
	KindErrorHandler
	KindErrorObserver
	KindTransformer
	KindPrebuilt
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindConstructor:
		return "constructor"
	case KindRequestHandler:
		return "request handler"
	case KindFallback:
		return "fallback"
	case KindWrappingMiddleware:
		return "wrapping middleware"
	case KindPreProcessingMiddleware:
		return "pre-processing middleware"
	case KindPostProcessingMiddleware:
		return "post-processing middleware"
	case KindErrorHandler:
		return "error handler"
	case KindErrorObserver:
		return "error observer"
	case KindTransformer:
		return "transformer"
	case KindPrebuilt:
		return "prebuilt type"
	default:
		return "config type"
	}
}

// Component is one validated entry in the database: a computation plus the
// scope, lifecycle and strategies that govern how call graphs may use it.
type Component struct {
	ID          ComponentID
	Kind        Kind
	Computation ComputationID
	Scope       blueprint.ScopeID
	Lifecycle   blueprint.Lifecycle
	Cloning     blueprint.CloningStrategy
	Default     blueprint.DefaultStrategy
	ConfigKey   string
	Location    diagnostics.Location

	// UserID links back to the flattened registration, or -1 for derived
	// components.
	UserID blueprint.UserComponentID
	// FallibleParent links a derived matcher or an error handler to the
	// component whose fallible output it serves.
	FallibleParent ComponentID
	// Variant is meaningful for match projections.
	Variant MatchVariant
	// RouterKey is set for request handlers.
	RouterKey *blueprint.RouterKey
}

// IsDerived reports whether the component was synthesised by the compiler
// rather than registered by the user.
func (c *Component) IsDerived() bool {
	return c.UserID == blueprint.NoComponent
}

// MatcherPair holds the two projections derived from a fallible component.
type MatcherPair struct {
	Ok  ComponentID
	Err ComponentID
}
