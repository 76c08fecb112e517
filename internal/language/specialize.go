package language

// Specialize computes the unique assignment of generic parameters that
// makes the template equal to the concrete type. It returns false when no
// such assignment exists, when an assignment would be contradictory, or
// when the concrete type is itself a template.
func Specialize(template, concrete Type) (map[string]Type, bool) {
	if template == nil || concrete == nil {
		return nil, template == nil && concrete == nil
	}
	if concrete.IsTemplate() {
		return nil, false
	}
	bindings := make(map[string]Type)
	if !unify(template, concrete, bindings) {
		return nil, false
	}
	return bindings, true
}

func unify(template, concrete Type, bindings map[string]Type) bool {
	switch t := template.(type) {
	case Generic:
		if prior, ok := bindings[t.Name]; ok {
			return Equal(prior, concrete)
		}
		bindings[t.Name] = concrete
		return true
	case PathType:
		c, ok := concrete.(PathType)
		if !ok || len(t.GenericArgs) != len(c.GenericArgs) {
			return false
		}
		if !samePackage(t, c) || t.Name != c.Name {
			return false
		}
		for i := range t.GenericArgs {
			if !unify(t.GenericArgs[i], c.GenericArgs[i], bindings) {
				return false
			}
		}
		return true
	case Reference:
		c, ok := concrete.(Reference)
		if !ok || t.Mutable != c.Mutable {
			return false
		}
		return unify(t.Inner, c.Inner, bindings)
	case Tuple:
		c, ok := concrete.(Tuple)
		if !ok || len(t.Elements) != len(c.Elements) {
			return false
		}
		for i := range t.Elements {
			if !unify(t.Elements[i], c.Elements[i], bindings) {
				return false
			}
		}
		return true
	case Slice:
		c, ok := concrete.(Slice)
		if !ok {
			return false
		}
		return unify(t.Element, c.Element, bindings)
	case Result:
		c, ok := concrete.(Result)
		if !ok {
			return false
		}
		return unify(t.Ok, c.Ok, bindings) && unify(t.Err, c.Err, bindings)
	default:
		return Equal(template, concrete)
	}
}

func samePackage(a, b PathType) bool {
	if a.PackageID != "" && b.PackageID != "" {
		return a.PackageID == b.PackageID
	}
	return a.ImportPath == b.ImportPath
}
