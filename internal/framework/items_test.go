package framework

import (
	"testing"

	"github.com/alexisbeaulieu97/loom/internal/language"
)

func TestIsNext(t *testing.T) {
	inner, ok := IsNext(Next(Response()))
	if !ok {
		t.Fatal("expected a Next instantiation to be recognised")
	}
	if !language.Equal(inner, Response()) {
		t.Fatalf("unexpected inner type %s", inner.Render())
	}

	if _, ok := IsNext(Response()); ok {
		t.Fatal("Response is not a Next")
	}
	foreign := language.PathType{ImportPath: "other", Name: NextName, GenericArgs: []language.Type{Response()}}
	if _, ok := IsNext(foreign); ok {
		t.Fatal("a Next from a foreign package is not the runtime's Next")
	}
}

func TestIsInjectable(t *testing.T) {
	for _, item := range Injectables() {
		if !IsInjectable(item) {
			t.Fatalf("%s should be injectable", item.Render())
		}
	}
	if IsInjectable(Response()) {
		t.Fatal("Response is not an injectable")
	}
	if IsInjectable(language.PathType{ImportPath: "app", Name: RequestHeadName}) {
		t.Fatal("a user type named RequestHead is not the runtime's")
	}
}

func TestCloneCallableShape(t *testing.T) {
	foo := language.PathType{ImportPath: "app", Name: "Foo"}
	c := CloneCallable(foo)

	if c.Style != language.MethodCall || !c.SelfByRef {
		t.Fatal("clone is a method call on a shared reference")
	}
	if len(c.Inputs) != 1 || !language.Equal(c.Inputs[0], language.Reference{Inner: foo}) {
		t.Fatalf("unexpected inputs %v", c.Inputs)
	}
	if !language.Equal(c.Output, foo) {
		t.Fatalf("clone must return the cloned type, got %s", c.Output.Render())
	}
	if c.Path.Render() != "app.Foo.Clone" {
		t.Fatalf("unexpected path %s", c.Path.Render())
	}
}

func TestIntoResponseCallableShape(t *testing.T) {
	foo := language.PathType{ImportPath: "app", Name: "Foo"}
	c := IntoResponseCallable(foo)
	if !language.Equal(c.Output, Response()) {
		t.Fatal("the coercion must produce a response")
	}
	if len(c.Inputs) != 1 || !language.Equal(c.Inputs[0], foo) {
		t.Fatal("the coercion consumes the coerced value")
	}
}
