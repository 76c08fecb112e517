package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/loom/internal/language"
	"github.com/alexisbeaulieu97/loom/internal/oracle"
)

func TestImportSetAliases(t *testing.T) {
	orc := oracle.New()
	orc.AddPackage("github.com/acme/models", "acme-models", "1.2.3")
	orc.AddPackage("github.com/other/models", "other-models", "2.0.0")
	im := newImportSet(orc)

	first := im.qualify("github.com/acme/models", "acme-models", "User")
	assert.Equal(t, "models.User", first)

	// A second package with the same base name gets a version-suffixed
	// alias.
	second := im.qualify("github.com/other/models", "other-models", "User")
	assert.Equal(t, "models_2_0_0.User", second)

	// Lookups are stable.
	assert.Equal(t, first, im.qualify("github.com/acme/models", "acme-models", "User"))

	block := im.render()
	assert.Contains(t, block, "\"github.com/acme/models\"")
	assert.Contains(t, block, "models_2_0_0 \"github.com/other/models\"")
}

func TestImportSetLocalNamesPassThrough(t *testing.T) {
	im := newImportSet(oracle.New())
	assert.Equal(t, "ApplicationState", im.qualify("", "", "ApplicationState"))
	assert.Empty(t, im.render())
}

func TestLowerCamel(t *testing.T) {
	cases := map[string]string{
		"Foo":        "foo",
		"UserList":   "userList",
		"HTTPServer": "httpServer",
		"pool":       "pool",
		"":           "value",
	}
	for in, want := range cases {
		assert.Equal(t, want, lowerCamel(in), "lowerCamel(%q)", in)
	}
}

func TestLowerCamelAvoidsReservedWords(t *testing.T) {
	assert.Equal(t, "typeValue", lowerCamel("Type"))
	assert.Equal(t, "mapValue", lowerCamel("Map"))
}

func TestBaseNameFor(t *testing.T) {
	foo := language.PathType{ImportPath: "app", Name: "Foo"}
	assert.Equal(t, "foo", baseNameFor(foo))
	assert.Equal(t, "foo", baseNameFor(language.Reference{Inner: foo}))
	assert.Equal(t, "foo", baseNameFor(language.Slice{Element: foo}))
	assert.Equal(t, "stringValue", baseNameFor(language.Scalar{Kind: language.ScalarString}))
}

func TestNameAllocator(t *testing.T) {
	na := newNameAllocator()
	require.Equal(t, "foo", na.fresh("foo"))
	require.Equal(t, "foo1", na.fresh("foo"))
	require.Equal(t, "foo2", na.fresh("foo"))
	require.Equal(t, "value", na.fresh(""))
}
