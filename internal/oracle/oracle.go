// Package oracle provides the in-memory type oracle used by the CLI and
// the test suites. The oracle is seeded from a declaration table and
// answers every query deterministically; discovering declarations from
// compiled documentation is a separate concern.
package oracle

import (
	"fmt"

	"github.com/alexisbeaulieu97/loom/internal/framework"
	"github.com/alexisbeaulieu97/loom/internal/language"
	"github.com/alexisbeaulieu97/loom/internal/ports"
)

type packageInfo struct {
	id      string
	version string
}

// Oracle is a deterministic, append-only implementation of
// ports.TypeOracle.
type Oracle struct {
	packages     map[string]packageInfo
	items        map[string]ports.ResolvedItem
	capabilities map[string]map[ports.Capability]bool
	defaults     map[string]language.Type
}

// New creates an oracle that already knows the runtime package and its
// built-in items.
func New() *Oracle {
	o := &Oracle{
		packages:     make(map[string]packageInfo),
		items:        make(map[string]ports.ResolvedItem),
		capabilities: make(map[string]map[ports.Capability]bool),
		defaults:     make(map[string]language.Type),
	}
	o.AddPackage(framework.ImportPath, framework.PackageID, "0.1.0")
	for _, item := range framework.Injectables() {
		o.addTypeItem(item)
	}
	o.addTypeItem(framework.Response())
	o.addTypeItem(framework.UniversalError())
	o.AddCallable(framework.DefaultFallbackPath, framework.DefaultFallback())
	return o
}

// AddPackage declares a package: its import path, stable identity and
// version.
func (o *Oracle) AddPackage(importPath, id, version string) {
	o.packages[importPath] = packageInfo{id: id, version: version}
}

func (o *Oracle) addTypeItem(t language.PathType) {
	o.items[t.ImportPath+"."+t.Name] = ports.ResolvedItem{Kind: ports.ItemKindType, Type: o.Canonical(t)}
}

// AddType declares a named type. The spelling must be a path type.
func (o *Oracle) AddType(expr string) error {
	t, err := language.ParseType(expr)
	if err != nil {
		return err
	}
	pt, ok := t.(language.PathType)
	if !ok {
		return fmt.Errorf("%q is not a named type", expr)
	}
	o.addTypeItem(pt)
	return nil
}

// AddCallable declares a function or method under a registered path. The
// callable's types are canonicalised against the declared packages.
func (o *Oracle) AddCallable(path string, c *language.Callable) {
	canonical := &language.Callable{
		Path:      c.Path,
		Inputs:    make([]language.Type, len(c.Inputs)),
		Output:    o.Canonical(c.Output),
		Async:     c.Async,
		SelfByRef: c.SelfByRef,
		Style:     c.Style,
	}
	for i, in := range c.Inputs {
		canonical.Inputs[i] = o.Canonical(in)
	}
	o.items[path] = ports.ResolvedItem{Kind: ports.ItemKindCallable, Callable: canonical}
}

// AllowCapability records that a type satisfies a capability.
func (o *Oracle) AllowCapability(t language.Type, capability ports.Capability) {
	key := o.Canonical(t).Key()
	caps, ok := o.capabilities[key]
	if !ok {
		caps = make(map[ports.Capability]bool)
		o.capabilities[key] = caps
	}
	caps[capability] = true
}

// SetDefault records the default assignment for a generic parameter.
func (o *Oracle) SetDefault(param string, t language.Type) {
	o.defaults[param] = o.Canonical(t)
}

// Canonical rewrites a type so every path type carries the stable package
// identity declared for its import path.
func (o *Oracle) Canonical(t language.Type) language.Type {
	switch typ := t.(type) {
	case nil:
		return nil
	case language.PathType:
		out := typ
		if info, ok := o.packages[typ.ImportPath]; ok {
			out.PackageID = info.id
		}
		if len(typ.GenericArgs) > 0 {
			args := make([]language.Type, len(typ.GenericArgs))
			for i, arg := range typ.GenericArgs {
				args[i] = o.Canonical(arg)
			}
			out.GenericArgs = args
		}
		return out
	case language.Reference:
		return language.Reference{Mutable: typ.Mutable, Inner: o.Canonical(typ.Inner)}
	case language.Tuple:
		els := make([]language.Type, len(typ.Elements))
		for i, el := range typ.Elements {
			els[i] = o.Canonical(el)
		}
		return language.Tuple{Elements: els}
	case language.Slice:
		return language.Slice{Element: o.Canonical(typ.Element)}
	case language.Result:
		return language.Result{Ok: o.Canonical(typ.Ok), Err: o.Canonical(typ.Err)}
	default:
		return t
	}
}

// CanonicalType implements ports.TypeOracle.
func (o *Oracle) CanonicalType(t language.Type) language.Type {
	return o.Canonical(t)
}

// ResolvePath implements ports.TypeOracle.
func (o *Oracle) ResolvePath(path string) (ports.ResolvedItem, error) {
	item, ok := o.items[path]
	if !ok {
		return ports.ResolvedItem{}, fmt.Errorf("no item registered at %q", path)
	}
	return item, nil
}

// CanonicalPath implements ports.TypeOracle.
func (o *Oracle) CanonicalPath(packageID, name string) ([]string, error) {
	for importPath, info := range o.packages {
		if info.id == packageID {
			return []string{importPath, name}, nil
		}
	}
	return nil, fmt.Errorf("no package with identity %q", packageID)
}

// Satisfies implements ports.TypeOracle.
func (o *Oracle) Satisfies(t language.Type, capability ports.Capability) bool {
	if capability == ports.CapabilityIntoResponse && language.Equal(o.Canonical(t), framework.Response()) {
		return true
	}
	caps, ok := o.capabilities[o.Canonical(t).Key()]
	return ok && caps[capability]
}

// HasDefault implements ports.TypeOracle.
func (o *Oracle) HasDefault(genericParam string) (language.Type, bool) {
	t, ok := o.defaults[genericParam]
	return t, ok
}

// PackageVersion implements ports.TypeOracle. The key is a package
// identity; an import path is accepted too, for packages whose identity
// never surfaced in a resolved type.
func (o *Oracle) PackageVersion(key string) string {
	if key == "" {
		return ""
	}
	for _, info := range o.packages {
		if info.id == key {
			return info.version
		}
	}
	if info, ok := o.packages[key]; ok {
		return info.version
	}
	return ""
}

var _ ports.TypeOracle = (*Oracle)(nil)
