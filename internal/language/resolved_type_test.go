package language

import "testing"

func pathType(pkgID, importPath, name string, args ...Type) PathType {
	return PathType{PackageID: pkgID, ImportPath: importPath, Name: name, GenericArgs: args}
}

func TestPathTypeIdentityIgnoresImportPath(t *testing.T) {
	a := pathType("pkg-01", "github.com/acme/app/models", "User")
	b := pathType("pkg-01", "models", "User")

	if !Equal(a, b) {
		t.Fatalf("expected identity to be package-ID based, got %q vs %q", a.Key(), b.Key())
	}
}

func TestPathTypeIdentityDiffersByPackageID(t *testing.T) {
	a := pathType("pkg-01", "models", "User")
	b := pathType("pkg-02", "models", "User")

	if Equal(a, b) {
		t.Fatal("types from different packages must not be equal")
	}
}

func TestPathTypeIdentityIncludesGenericArgs(t *testing.T) {
	list := pathType("pkg-01", "models", "List", Scalar{Kind: ScalarString})
	other := pathType("pkg-01", "models", "List", Scalar{Kind: ScalarInt})

	if Equal(list, other) {
		t.Fatal("generic arguments must participate in identity")
	}
}

func TestReferenceEquality(t *testing.T) {
	inner := pathType("pkg-01", "models", "User")
	if !Equal(Reference{Inner: inner}, Reference{Inner: inner}) {
		t.Fatal("expected equal references")
	}
	if Equal(Reference{Inner: inner}, Reference{Mutable: true, Inner: inner}) {
		t.Fatal("mutability must participate in identity")
	}
	if Equal(Reference{Inner: inner}, inner) {
		t.Fatal("reference and inner type must not be equal")
	}
}

func TestIsTemplate(t *testing.T) {
	cases := []struct {
		name string
		typ  Type
		want bool
	}{
		{"scalar", Scalar{Kind: ScalarBool}, false},
		{"concrete path", pathType("pkg-01", "models", "User"), false},
		{"generic", Generic{Name: "T"}, true},
		{"path with generic arg", pathType("pkg-01", "models", "List", Generic{Name: "T"}), true},
		{"reference to generic", Reference{Inner: Generic{Name: "T"}}, true},
		{"tuple with generic", Tuple{Elements: []Type{Scalar{Kind: ScalarInt}, Generic{Name: "U"}}}, true},
		{"slice of concrete", Slice{Element: Scalar{Kind: ScalarByte}}, false},
		{"fallible with generic ok", Result{Ok: Generic{Name: "T"}, Err: pathType("pkg-01", "models", "Err")}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.typ.IsTemplate(); got != tc.want {
				t.Fatalf("IsTemplate(%s) = %v, want %v", tc.typ.Render(), got, tc.want)
			}
		})
	}
}

func TestFreeGenericsSorted(t *testing.T) {
	typ := Tuple{Elements: []Type{Generic{Name: "Z"}, Generic{Name: "A"}, Generic{Name: "Z"}}}
	got := FreeGenerics(typ)
	if len(got) != 2 || got[0] != "A" || got[1] != "Z" {
		t.Fatalf("unexpected free generics: %v", got)
	}
}

func TestSubstitute(t *testing.T) {
	template := pathType("pkg-01", "models", "List", Generic{Name: "T"})
	concrete := Substitute(template, map[string]Type{"T": Scalar{Kind: ScalarString}})

	want := pathType("pkg-01", "models", "List", Scalar{Kind: ScalarString})
	if !Equal(concrete, want) {
		t.Fatalf("substitution produced %q, want %q", concrete.Key(), want.Key())
	}
	if template.IsTemplate() != true {
		t.Fatal("substitution must not mutate the template")
	}
}

func TestIsUnit(t *testing.T) {
	if !IsUnit(nil) {
		t.Fatal("nil output is unit")
	}
	if !IsUnit(Tuple{}) {
		t.Fatal("empty tuple is unit")
	}
	if IsUnit(Scalar{Kind: ScalarBool}) {
		t.Fatal("bool is not unit")
	}
}
