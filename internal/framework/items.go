// Package framework pins down the runtime items the compiler knows about:
// the injectables the dispatcher can hand to pipelines, the response type
// every pipeline must produce, and the callables the compiler synthesises
// on the user's behalf.
package framework

import "github.com/alexisbeaulieu97/loom/internal/language"

// PackageID is the stable identity of the runtime package.
const PackageID = "loom-runtime"

// ImportPath is how generated code spells the runtime package.
const ImportPath = "github.com/alexisbeaulieu97/loom/runtime"

// Built-in injectable names.
const (
	RequestHeadName        = "RequestHead"
	PathParamsName         = "PathParams"
	RawIncomingBodyName    = "RawIncomingBody"
	ConnectionInfoName     = "ConnectionInfo"
	MatchedPathPatternName = "MatchedPathPattern"
	AllowedMethodsName     = "AllowedMethods"
	ResponseName           = "Response"
	NextName               = "Next"
	ErrorName              = "Error"
)

// DefaultFallbackPath is the registered path of the handler synthesised
// when the user registers no root fallback.
const DefaultFallbackPath = ImportPath + ".DefaultFallback"

// Item returns the runtime type with the given name.
func Item(name string) language.PathType {
	return language.PathType{
		PackageID:  PackageID,
		ImportPath: ImportPath,
		Name:       name,
	}
}

// Response returns the runtime response type.
func Response() language.PathType { return Item(ResponseName) }

// Next returns the Next[inner] continuation type handed to wrapping
// middlewares.
func Next(inner language.Type) language.PathType {
	return language.PathType{
		PackageID:   PackageID,
		ImportPath:  ImportPath,
		Name:        NextName,
		GenericArgs: []language.Type{inner},
	}
}

// IsNext reports whether the type is a Next instantiation, returning the
// inner type when it is.
func IsNext(t language.Type) (language.Type, bool) {
	pt, ok := t.(language.PathType)
	if !ok || pt.Name != NextName || len(pt.GenericArgs) != 1 {
		return nil, false
	}
	if pt.PackageID != PackageID && pt.ImportPath != ImportPath {
		return nil, false
	}
	return pt.GenericArgs[0], true
}

// Injectables lists the types the dispatcher can supply to a pipeline
// without a user constructor.
func Injectables() []language.PathType {
	return []language.PathType{
		Item(RequestHeadName),
		Item(PathParamsName),
		Item(RawIncomingBodyName),
		Item(ConnectionInfoName),
		Item(MatchedPathPatternName),
		Item(AllowedMethodsName),
	}
}

// IsInjectable reports whether the type is one of the built-in
// injectables.
func IsInjectable(t language.Type) bool {
	pt, ok := t.(language.PathType)
	if !ok {
		return false
	}
	if pt.PackageID != PackageID && pt.ImportPath != ImportPath {
		return false
	}
	switch pt.Name {
	case RequestHeadName, PathParamsName, RawIncomingBodyName,
		ConnectionInfoName, MatchedPathPatternName, AllowedMethodsName:
		return len(pt.GenericArgs) == 0
	}
	return false
}

// DefaultFallback returns the callable for the synthesised root fallback:
// it takes no inputs and produces a response.
func DefaultFallback() *language.Callable {
	return &language.Callable{
		Path: language.FQPath{
			ImportPath: ImportPath,
			Segments:   []string{"DefaultFallback"},
		},
		Output: Response(),
	}
}

// CloneCallable returns the method-call callable the borrow checker
// inserts to duplicate a value of type t.
func CloneCallable(t language.Type) *language.Callable {
	importPath := ""
	segments := []string{"Clone"}
	if pt, ok := t.(language.PathType); ok {
		importPath = pt.ImportPath
		segments = []string{pt.Name, "Clone"}
	}
	return &language.Callable{
		Path:      language.FQPath{ImportPath: importPath, Segments: segments},
		Inputs:    []language.Type{language.Reference{Inner: t}},
		Output:    t,
		SelfByRef: true,
		Style:     language.MethodCall,
	}
}

// UniversalError returns the runtime's type-erased error wrapper, the type
// error observers receive.
func UniversalError() language.PathType { return Item(ErrorName) }

// AsErrorCallable returns the conversion from a concrete error type to the
// runtime's type-erased error wrapper.
func AsErrorCallable(from language.Type) *language.Callable {
	return &language.Callable{
		Path: language.FQPath{
			ImportPath: ImportPath,
			Segments:   []string{"AsError"},
		},
		Inputs: []language.Type{language.Reference{Inner: from}},
		Output: UniversalError(),
	}
}

// IntoResponseCallable returns the coercion callable from a concrete type
// to the runtime response.
func IntoResponseCallable(from language.Type) *language.Callable {
	return &language.Callable{
		Path: language.FQPath{
			ImportPath: ImportPath,
			Segments:   []string{"IntoResponse"},
		},
		Inputs: []language.Type{from},
		Output: Response(),
	}
}
