package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/loom/internal/framework"
	"github.com/alexisbeaulieu97/loom/internal/language"
	"github.com/alexisbeaulieu97/loom/internal/ports"
)

func TestOracleKnowsRuntimeItems(t *testing.T) {
	orc := New()

	item, err := orc.ResolvePath(framework.DefaultFallbackPath)
	require.NoError(t, err)
	assert.Equal(t, ports.ItemKindCallable, item.Kind)

	head, err := orc.ResolvePath(framework.ImportPath + "." + framework.RequestHeadName)
	require.NoError(t, err)
	assert.Equal(t, ports.ItemKindType, head.Kind)
}

func TestOracleCanonicalisesPackageIDs(t *testing.T) {
	orc := New()
	orc.AddPackage("github.com/acme/app/models", "acme-models", "2.1.0")

	raw := language.PathType{ImportPath: "github.com/acme/app/models", Name: "User"}
	canonical := orc.Canonical(raw).(language.PathType)
	assert.Equal(t, "acme-models", canonical.PackageID)

	nested := language.Reference{Inner: language.Slice{Element: raw}}
	canonicalNested := orc.Canonical(nested)
	inner := canonicalNested.(language.Reference).Inner.(language.Slice).Element.(language.PathType)
	assert.Equal(t, "acme-models", inner.PackageID)
}

func TestOracleCallableResolution(t *testing.T) {
	orc := New()
	orc.AddPackage("app", "pkg-app", "1.0.0")
	fq, err := language.ParseFQPath("app.BuildFoo")
	require.NoError(t, err)
	orc.AddCallable("app.BuildFoo", &language.Callable{
		Path:   fq,
		Output: language.PathType{ImportPath: "app", Name: "Foo"},
	})

	item, err := orc.ResolvePath("app.BuildFoo")
	require.NoError(t, err)
	require.Equal(t, ports.ItemKindCallable, item.Kind)
	out := item.Callable.Output.(language.PathType)
	assert.Equal(t, "pkg-app", out.PackageID)
}

func TestOracleUnknownPath(t *testing.T) {
	orc := New()
	_, err := orc.ResolvePath("app.Missing")
	require.Error(t, err)
}

func TestOracleCapabilities(t *testing.T) {
	orc := New()
	orc.AddPackage("app", "pkg-app", "1.0.0")
	foo := language.PathType{ImportPath: "app", Name: "Foo"}

	assert.False(t, orc.Satisfies(foo, ports.CapabilityClone))
	orc.AllowCapability(foo, ports.CapabilityClone)
	assert.True(t, orc.Satisfies(foo, ports.CapabilityClone))

	// Capability queries see through canonicalisation: asking with the
	// canonical form answers the same.
	canonical := orc.Canonical(foo)
	assert.True(t, orc.Satisfies(canonical, ports.CapabilityClone))
}

func TestOracleResponseAlwaysCoercible(t *testing.T) {
	orc := New()
	assert.True(t, orc.Satisfies(framework.Response(), ports.CapabilityIntoResponse))
}

func TestOracleDefaults(t *testing.T) {
	orc := New()
	_, ok := orc.HasDefault("T")
	assert.False(t, ok)

	orc.SetDefault("T", language.Scalar{Kind: language.ScalarString})
	d, ok := orc.HasDefault("T")
	require.True(t, ok)
	assert.True(t, language.Equal(d, language.Scalar{Kind: language.ScalarString}))
}

func TestOraclePackageVersion(t *testing.T) {
	orc := New()
	orc.AddPackage("app", "pkg-app", "1.2.3")
	assert.Equal(t, "1.2.3", orc.PackageVersion("pkg-app"))
	assert.Equal(t, "", orc.PackageVersion("nope"))
}

func TestOracleCanonicalPath(t *testing.T) {
	orc := New()
	orc.AddPackage("github.com/acme/app", "acme-app", "1.0.0")

	segments, err := orc.CanonicalPath("acme-app", "User")
	require.NoError(t, err)
	assert.Equal(t, []string{"github.com/acme/app", "User"}, segments)

	_, err = orc.CanonicalPath("ghost", "User")
	require.Error(t, err)
}
