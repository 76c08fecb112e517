// Package config loads serialized Loom projects: the oracle declaration
// table plus the blueprint, both read from one YAML document.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/loom/internal/blueprint"
)

// Project is the on-disk shape of a compilation input.
type Project struct {
	// Module is the module path of the generated crate.
	Module string `yaml:"module" validate:"required"`

	Packages  []PackageDecl  `yaml:"packages" validate:"dive"`
	Types     []TypeDecl     `yaml:"types" validate:"dive"`
	Functions []FunctionDecl `yaml:"functions" validate:"dive"`

	Blueprint BlueprintDecl `yaml:"blueprint" validate:"required"`
}

// PackageDecl declares a package the oracle should know about.
type PackageDecl struct {
	ImportPath string `yaml:"import_path" validate:"required"`
	ID         string `yaml:"id" validate:"required"`
	Version    string `yaml:"version"`
}

// TypeDecl declares a named type and its capabilities.
type TypeDecl struct {
	Path         string   `yaml:"path" validate:"required"`
	Capabilities []string `yaml:"capabilities" validate:"dive,oneof=Clone IntoResponse"`
}

// FunctionDecl declares a function or method signature.
type FunctionDecl struct {
	Path      string   `yaml:"path" validate:"required"`
	Inputs    []string `yaml:"inputs"`
	Output    string   `yaml:"output"`
	Error     string   `yaml:"error"`
	Async     bool     `yaml:"async"`
	Method    bool     `yaml:"method"`
	SelfByRef bool     `yaml:"self_by_ref"`
}

// BlueprintDecl is the serialized blueprint: an ordered component list,
// matching the shape of the in-memory registration union.
type BlueprintDecl struct {
	Components []ComponentDecl `yaml:"components" validate:"dive"`
}

// ComponentDecl is one serialized registration. Kind selects which fields
// apply.
type ComponentDecl struct {
	Kind string `yaml:"kind" validate:"required,oneof=route fallback constructor wrap pre post observer prebuilt config nest"`

	// Route.
	Methods []string `yaml:"methods"`
	Any     bool     `yaml:"any"`
	Path    string   `yaml:"path"`
	Handler string   `yaml:"handler"`

	// Callable-backed registrations.
	Callable     string `yaml:"callable"`
	ErrorHandler string `yaml:"error_handler"`
	Lifecycle    string `yaml:"lifecycle" validate:"omitempty,oneof=singleton request_scoped transient"`
	CloneAllowed bool   `yaml:"clone_if_necessary"`

	// Prebuilt and config.
	Type             string `yaml:"type"`
	Key              string `yaml:"key"`
	DefaultIfMissing bool   `yaml:"default_if_missing"`

	// Nested blueprint.
	Prefix    string         `yaml:"prefix"`
	Domain    string         `yaml:"domain"`
	Blueprint *BlueprintDecl `yaml:"blueprint"`
}

var validate = validator.New()

// Validate checks the declarative constraints that yaml decoding cannot
// express.
func (p *Project) Validate() error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	return validateBlueprintDecl(&p.Blueprint, "blueprint")
}

func validateBlueprintDecl(decl *BlueprintDecl, at string) error {
	for i := range decl.Components {
		c := &decl.Components[i]
		where := fmt.Sprintf("%s.components[%d]", at, i)
		switch c.Kind {
		case "route":
			if c.Handler == "" {
				return fmt.Errorf("%s: a route needs a handler", where)
			}
			if len(c.Methods) == 0 && !c.Any {
				return fmt.Errorf("%s: a route needs methods or any: true", where)
			}
		case "fallback", "constructor", "wrap", "pre", "post", "observer":
			if c.Callable == "" {
				return fmt.Errorf("%s: a %s needs a callable", where, c.Kind)
			}
		case "prebuilt":
			if c.Type == "" {
				return fmt.Errorf("%s: a prebuilt registration needs a type", where)
			}
		case "config":
			if c.Type == "" || c.Key == "" {
				return fmt.Errorf("%s: a config registration needs a type and a key", where)
			}
		case "nest":
			if c.Blueprint == nil {
				return fmt.Errorf("%s: a nested registration needs a blueprint", where)
			}
			if err := validateBlueprintDecl(c.Blueprint, where+".blueprint"); err != nil {
				return err
			}
		}
	}
	return nil
}

func lifecycleFromDecl(s string) blueprint.Lifecycle {
	switch s {
	case "singleton":
		return blueprint.LifecycleSingleton
	case "transient":
		return blueprint.LifecycleTransient
	default:
		return blueprint.LifecycleRequestScoped
	}
}
