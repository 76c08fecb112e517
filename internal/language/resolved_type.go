package language

import (
	"sort"
	"strings"
)

// Type is the resolved representation of a user-visible type. The sum is
// closed: PathType, Reference, Tuple, Slice, Scalar, Generic and Result are
// the only variants the compiler ever manipulates.
//
// Identity is structural and package-ID based: the textual import path used
// to spell a package never participates in equality.
type Type interface {
	// Key returns the canonical identity string for the type. Two types are
	// equal iff their keys are equal.
	Key() string
	// Render returns the type as a human-readable string for messages and
	// debug output. Generated source uses the emitter's import-aware
	// rendering instead.
	Render() string
	// IsTemplate reports whether the type contains at least one unassigned
	// generic parameter.
	IsTemplate() bool

	collectGenerics(into map[string]struct{})
	substitute(bindings map[string]Type) Type
}

// PathType is a package-identified named type, optionally instantiated with
// generic arguments.
type PathType struct {
	// PackageID is the stable identity of the defining package. It is part
	// of type identity.
	PackageID string
	// ImportPath is the textual path user code used to spell the package.
	// It is carried for rendering only and never part of identity.
	ImportPath string
	// Name is the type name inside the package.
	Name string
	// GenericArgs are the ordered generic arguments, if any.
	GenericArgs []Type
}

func (t PathType) Key() string {
	id := t.PackageID
	if id == "" {
		id = t.ImportPath
	}
	var sb strings.Builder
	sb.WriteString("p:")
	sb.WriteString(id)
	sb.WriteString("::")
	sb.WriteString(t.Name)
	if len(t.GenericArgs) > 0 {
		sb.WriteByte('[')
		for i, arg := range t.GenericArgs {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(arg.Key())
		}
		sb.WriteByte(']')
	}
	return sb.String()
}

func (t PathType) Render() string {
	var sb strings.Builder
	if t.ImportPath != "" {
		sb.WriteString(t.ImportPath)
		sb.WriteByte('.')
	}
	sb.WriteString(t.Name)
	if len(t.GenericArgs) > 0 {
		sb.WriteByte('[')
		for i, arg := range t.GenericArgs {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(arg.Render())
		}
		sb.WriteByte(']')
	}
	return sb.String()
}

func (t PathType) IsTemplate() bool {
	for _, arg := range t.GenericArgs {
		if arg.IsTemplate() {
			return true
		}
	}
	return false
}

func (t PathType) collectGenerics(into map[string]struct{}) {
	for _, arg := range t.GenericArgs {
		arg.collectGenerics(into)
	}
}

func (t PathType) substitute(bindings map[string]Type) Type {
	if len(t.GenericArgs) == 0 {
		return t
	}
	args := make([]Type, len(t.GenericArgs))
	for i, arg := range t.GenericArgs {
		args[i] = arg.substitute(bindings)
	}
	return PathType{
		PackageID:   t.PackageID,
		ImportPath:  t.ImportPath,
		Name:        t.Name,
		GenericArgs: args,
	}
}

// Reference is a shared or exclusive borrow of an inner type. In generated
// Go source it is spelled as a pointer.
type Reference struct {
	Mutable bool
	Inner   Type
}

func (t Reference) Key() string {
	if t.Mutable {
		return "*mut " + t.Inner.Key()
	}
	return "*" + t.Inner.Key()
}

func (t Reference) Render() string {
	return "*" + t.Inner.Render()
}

func (t Reference) IsTemplate() bool { return t.Inner.IsTemplate() }

func (t Reference) collectGenerics(into map[string]struct{}) {
	t.Inner.collectGenerics(into)
}

func (t Reference) substitute(bindings map[string]Type) Type {
	return Reference{Mutable: t.Mutable, Inner: t.Inner.substitute(bindings)}
}

// Tuple is an ordered list of element types.
type Tuple struct {
	Elements []Type
}

func (t Tuple) Key() string {
	parts := make([]string, len(t.Elements))
	for i, el := range t.Elements {
		parts[i] = el.Key()
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func (t Tuple) Render() string {
	parts := make([]string, len(t.Elements))
	for i, el := range t.Elements {
		parts[i] = el.Render()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (t Tuple) IsTemplate() bool {
	for _, el := range t.Elements {
		if el.IsTemplate() {
			return true
		}
	}
	return false
}

func (t Tuple) collectGenerics(into map[string]struct{}) {
	for _, el := range t.Elements {
		el.collectGenerics(into)
	}
}

func (t Tuple) substitute(bindings map[string]Type) Type {
	els := make([]Type, len(t.Elements))
	for i, el := range t.Elements {
		els[i] = el.substitute(bindings)
	}
	return Tuple{Elements: els}
}

// Slice is a homogeneous sequence type.
type Slice struct {
	Element Type
}

func (t Slice) Key() string { return "[]" + t.Element.Key() }
func (t Slice) Render() string { return "[]" + t.Element.Render() }
func (t Slice) IsTemplate() bool {
	return t.Element.IsTemplate()
}

func (t Slice) collectGenerics(into map[string]struct{}) {
	t.Element.collectGenerics(into)
}

func (t Slice) substitute(bindings map[string]Type) Type {
	return Slice{Element: t.Element.substitute(bindings)}
}

// ScalarKind enumerates the built-in primitive types.
type ScalarKind string

const (
	ScalarBool    ScalarKind = "bool"
	ScalarString  ScalarKind = "string"
	ScalarInt     ScalarKind = "int"
	ScalarInt8    ScalarKind = "int8"
	ScalarInt16   ScalarKind = "int16"
	ScalarInt32   ScalarKind = "int32"
	ScalarInt64   ScalarKind = "int64"
	ScalarUint    ScalarKind = "uint"
	ScalarUint8   ScalarKind = "uint8"
	ScalarUint16  ScalarKind = "uint16"
	ScalarUint32  ScalarKind = "uint32"
	ScalarUint64  ScalarKind = "uint64"
	ScalarFloat32 ScalarKind = "float32"
	ScalarFloat64 ScalarKind = "float64"
	ScalarByte    ScalarKind = "byte"
	ScalarRune    ScalarKind = "rune"
)

var scalarKinds = map[string]ScalarKind{
	"bool": ScalarBool, "string": ScalarString,
	"int": ScalarInt, "int8": ScalarInt8, "int16": ScalarInt16,
	"int32": ScalarInt32, "int64": ScalarInt64,
	"uint": ScalarUint, "uint8": ScalarUint8, "uint16": ScalarUint16,
	"uint32": ScalarUint32, "uint64": ScalarUint64,
	"float32": ScalarFloat32, "float64": ScalarFloat64,
	"byte": ScalarByte, "rune": ScalarRune,
}

// ScalarKindFromName maps a primitive spelling to its kind.
func ScalarKindFromName(name string) (ScalarKind, bool) {
	k, ok := scalarKinds[name]
	return k, ok
}

// Scalar is a built-in primitive type.
type Scalar struct {
	Kind ScalarKind
}

func (t Scalar) Key() string { return "s:" + string(t.Kind) }
func (t Scalar) Render() string { return string(t.Kind) }
func (t Scalar) IsTemplate() bool { return false }
func (t Scalar) collectGenerics(map[string]struct{}) {}
func (t Scalar) substitute(map[string]Type) Type { return t }

// Generic is a named, unassigned generic parameter.
type Generic struct {
	Name string
}

func (t Generic) Key() string { return "g:" + t.Name }
func (t Generic) Render() string { return t.Name }
func (t Generic) IsTemplate() bool { return true }

func (t Generic) collectGenerics(into map[string]struct{}) {
	into[t.Name] = struct{}{}
}

func (t Generic) substitute(bindings map[string]Type) Type {
	if bound, ok := bindings[t.Name]; ok {
		return bound
	}
	return t
}

// Result is the shape of a fallible output: an Ok value paired with an
// error. Generated Go source lowers it to an (Ok, Err) return pair.
type Result struct {
	Ok  Type
	Err Type
}

func (t Result) Key() string {
	return "r:[" + t.Ok.Key() + "," + t.Err.Key() + "]"
}

func (t Result) Render() string {
	return "Result[" + t.Ok.Render() + ", " + t.Err.Render() + "]"
}

func (t Result) IsTemplate() bool {
	return t.Ok.IsTemplate() || t.Err.IsTemplate()
}

func (t Result) collectGenerics(into map[string]struct{}) {
	t.Ok.collectGenerics(into)
	t.Err.collectGenerics(into)
}

func (t Result) substitute(bindings map[string]Type) Type {
	return Result{Ok: t.Ok.substitute(bindings), Err: t.Err.substitute(bindings)}
}

// Equal reports whether two types are identical. Path types compare by
// package ID, name and generic arguments.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key() == b.Key()
}

// IsUnit reports whether the type is the unit (absent) type.
func IsUnit(t Type) bool {
	if t == nil {
		return true
	}
	if tup, ok := t.(Tuple); ok {
		return len(tup.Elements) == 0
	}
	return false
}

// FreeGenerics returns the sorted names of the unassigned generic
// parameters appearing anywhere in the type.
func FreeGenerics(t Type) []string {
	if t == nil {
		return nil
	}
	set := make(map[string]struct{})
	t.collectGenerics(set)
	if len(set) == 0 {
		return nil
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Substitute replaces generic parameters per the bindings map, leaving
// unbound parameters in place.
func Substitute(t Type, bindings map[string]Type) Type {
	if t == nil || len(bindings) == 0 {
		return t
	}
	return t.substitute(bindings)
}
