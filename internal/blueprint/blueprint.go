package blueprint

import (
	"runtime"

	"github.com/alexisbeaulieu97/loom/internal/diagnostics"
)

// Lifecycle controls how often a constructor runs.
type Lifecycle int

const (
	// LifecycleSingleton components are built once, at application startup.
	LifecycleSingleton Lifecycle = iota
	// LifecycleRequestScoped components are built at most once per request.
	LifecycleRequestScoped
	// LifecycleTransient components are rebuilt at every use site.
	LifecycleTransient
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleSingleton:
		return "singleton"
	case LifecycleRequestScoped:
		return "request-scoped"
	default:
		return "transient"
	}
}

// CloningStrategy tells the borrow checker whether it may duplicate a value
// to repair a move/borrow conflict.
type CloningStrategy int

const (
	NeverClone CloningStrategy = iota
	CloneIfNecessary
)

// DefaultStrategy applies to config types: whether a missing value is an
// error or falls back to the type's default.
type DefaultStrategy int

const (
	DefaultRequired DefaultStrategy = iota
	DefaultIfMissing
)

// MethodGuard restricts a route to a set of HTTP methods. The zero value
// with Any set covers every method.
type MethodGuard struct {
	Methods []string
	Any     bool
}

// GuardAny matches every HTTP method.
func GuardAny() MethodGuard { return MethodGuard{Any: true} }

// GuardMethods matches exactly the given methods.
func GuardMethods(methods ...string) MethodGuard {
	return MethodGuard{Methods: methods}
}

// Covers reports whether the guard admits the given method.
func (g MethodGuard) Covers(method string) bool {
	if g.Any {
		return true
	}
	for _, m := range g.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// Overlaps reports whether two guards admit at least one common method.
func (g MethodGuard) Overlaps(other MethodGuard) bool {
	if g.Any || other.Any {
		return true
	}
	for _, m := range g.Methods {
		if other.Covers(m) {
			return true
		}
	}
	return false
}

// RegKind tags a registration variant.
type RegKind int

const (
	RegRoute RegKind = iota
	RegFallback
	RegConstructor
	RegWrappingMiddleware
	RegPreProcessingMiddleware
	RegPostProcessingMiddleware
	RegErrorObserver
	RegPrebuilt
	RegConfig
	RegNested
	// RegErrorHandler never appears in user registrations; the reader
	// materialises one per `ErrorHandler(...)` refinement.
	RegErrorHandler
)

func (k RegKind) String() string {
	switch k {
	case RegRoute:
		return "route"
	case RegFallback:
		return "fallback"
	case RegConstructor:
		return "constructor"
	case RegWrappingMiddleware:
		return "wrapping middleware"
	case RegPreProcessingMiddleware:
		return "pre-processing middleware"
	case RegPostProcessingMiddleware:
		return "post-processing middleware"
	case RegErrorObserver:
		return "error observer"
	case RegPrebuilt:
		return "prebuilt type"
	case RegConfig:
		return "config type"
	case RegErrorHandler:
		return "error handler"
	default:
		return "nested blueprint"
	}
}

// Registration is one entry in a blueprint. It is a closed tagged union:
// Kind selects which fields are meaningful, mirroring the serialized shape.
type Registration struct {
	Kind     RegKind
	Location diagnostics.Location

	// Route and fallback.
	Method MethodGuard
	Path   string

	// Callable-backed registrations.
	Callable     string
	ErrorHandler string

	Lifecycle Lifecycle
	Cloning   CloningStrategy

	// Prebuilt and config.
	TypeExpr  string
	ConfigKey string
	Default   DefaultStrategy

	// Nested blueprint.
	Prefix    string
	HasPrefix bool
	Domain    string
	Child     *Blueprint
}

// Blueprint is the user's declarative description of the server: an ordered
// list of registrations, possibly nesting further blueprints.
type Blueprint struct {
	CreationLocation diagnostics.Location
	Registrations    []Registration
}

// New creates an empty blueprint, recording the caller as its creation
// location.
func New() *Blueprint {
	return &Blueprint{CreationLocation: callerLocation(2)}
}

func callerLocation(skip int) diagnostics.Location {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return diagnostics.Location{}
	}
	return diagnostics.Location{File: file, Line: line}
}

func (bp *Blueprint) push(reg Registration) *Registration {
	if reg.Location.IsZero() {
		reg.Location = callerLocation(3)
	}
	bp.Registrations = append(bp.Registrations, reg)
	return &bp.Registrations[len(bp.Registrations)-1]
}

// RouteBuilder refines a route registration.
type RouteBuilder struct{ reg *Registration }

// ErrorHandler attaches an error handler to the route's handler.
func (b RouteBuilder) ErrorHandler(path string) RouteBuilder {
	b.reg.ErrorHandler = path
	return b
}

// Route registers a request handler for a method guard and path.
func (bp *Blueprint) Route(method MethodGuard, path, handler string) RouteBuilder {
	reg := bp.push(Registration{
		Kind:     RegRoute,
		Method:   method,
		Path:     path,
		Callable: handler,
	})
	return RouteBuilder{reg: reg}
}

// FallbackBuilder refines a fallback registration.
type FallbackBuilder struct{ reg *Registration }

// ErrorHandler attaches an error handler to the fallback.
func (b FallbackBuilder) ErrorHandler(path string) FallbackBuilder {
	b.reg.ErrorHandler = path
	return b
}

// Fallback registers the handler invoked when no route matches within this
// blueprint's subtree.
func (bp *Blueprint) Fallback(handler string) FallbackBuilder {
	reg := bp.push(Registration{Kind: RegFallback, Callable: handler})
	return FallbackBuilder{reg: reg}
}

// ConstructorBuilder refines a constructor registration.
type ConstructorBuilder struct{ reg *Registration }

// ErrorHandler attaches an error handler to the constructor.
func (b ConstructorBuilder) ErrorHandler(path string) ConstructorBuilder {
	b.reg.ErrorHandler = path
	return b
}

// CloneIfNecessary allows the borrow checker to clone the constructed value.
func (b ConstructorBuilder) CloneIfNecessary() ConstructorBuilder {
	b.reg.Cloning = CloneIfNecessary
	return b
}

// Constructor registers a dependency provider with the given lifecycle.
func (bp *Blueprint) Constructor(path string, lifecycle Lifecycle) ConstructorBuilder {
	reg := bp.push(Registration{
		Kind:      RegConstructor,
		Callable:  path,
		Lifecycle: lifecycle,
	})
	return ConstructorBuilder{reg: reg}
}

// MiddlewareBuilder refines a middleware registration.
type MiddlewareBuilder struct{ reg *Registration }

// ErrorHandler attaches an error handler to the middleware.
func (b MiddlewareBuilder) ErrorHandler(path string) MiddlewareBuilder {
	b.reg.ErrorHandler = path
	return b
}

// WrapMiddleware registers a wrapping middleware. It applies to every route
// registered after it in this blueprint and in nested blueprints.
func (bp *Blueprint) WrapMiddleware(path string) MiddlewareBuilder {
	reg := bp.push(Registration{Kind: RegWrappingMiddleware, Callable: path})
	return MiddlewareBuilder{reg: reg}
}

// PreProcess registers a pre-processing middleware.
func (bp *Blueprint) PreProcess(path string) MiddlewareBuilder {
	reg := bp.push(Registration{Kind: RegPreProcessingMiddleware, Callable: path})
	return MiddlewareBuilder{reg: reg}
}

// PostProcess registers a post-processing middleware.
func (bp *Blueprint) PostProcess(path string) MiddlewareBuilder {
	reg := bp.push(Registration{Kind: RegPostProcessingMiddleware, Callable: path})
	return MiddlewareBuilder{reg: reg}
}

// ErrorObserver registers an observer invoked on every error travelling
// through pipelines in scope.
func (bp *Blueprint) ErrorObserver(path string) {
	bp.push(Registration{Kind: RegErrorObserver, Callable: path})
}

// PrebuiltBuilder refines a prebuilt registration.
type PrebuiltBuilder struct{ reg *Registration }

// CloneIfNecessary allows the borrow checker to clone the prebuilt value.
func (b PrebuiltBuilder) CloneIfNecessary() PrebuiltBuilder {
	b.reg.Cloning = CloneIfNecessary
	return b
}

// Prebuilt registers a type whose value is supplied by the caller at
// startup rather than constructed.
func (bp *Blueprint) Prebuilt(typeExpr string) PrebuiltBuilder {
	reg := bp.push(Registration{
		Kind:      RegPrebuilt,
		TypeExpr:  typeExpr,
		Lifecycle: LifecycleSingleton,
	})
	return PrebuiltBuilder{reg: reg}
}

// ConfigBuilder refines a config registration.
type ConfigBuilder struct{ reg *Registration }

// DefaultIfMissing makes the config value optional, falling back to the
// type's default.
func (b ConfigBuilder) DefaultIfMissing() ConfigBuilder {
	b.reg.Default = DefaultIfMissing
	return b
}

// CloneIfNecessary allows the borrow checker to clone the config value.
func (b ConfigBuilder) CloneIfNecessary() ConfigBuilder {
	b.reg.Cloning = CloneIfNecessary
	return b
}

// Config registers a configuration type under a key in the application
// config.
func (bp *Blueprint) Config(key, typeExpr string) ConfigBuilder {
	reg := bp.push(Registration{
		Kind:      RegConfig,
		ConfigKey: key,
		TypeExpr:  typeExpr,
		Lifecycle: LifecycleSingleton,
	})
	return ConfigBuilder{reg: reg}
}

// NestOption customises a nested blueprint registration.
type NestOption func(*Registration)

// WithPrefix prepends a path prefix to every route in the nested blueprint.
func WithPrefix(prefix string) NestOption {
	return func(reg *Registration) {
		reg.Prefix = prefix
		reg.HasPrefix = true
	}
}

// WithDomain restricts the nested blueprint's routes to a domain.
func WithDomain(domain string) NestOption {
	return func(reg *Registration) { reg.Domain = domain }
}

// Nest mounts a child blueprint, optionally under a path prefix or domain
// guard.
func (bp *Blueprint) Nest(child *Blueprint, opts ...NestOption) {
	reg := bp.push(Registration{Kind: RegNested, Child: child})
	for _, opt := range opts {
		opt(reg)
	}
}
