package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alexisbeaulieu97/loom/internal/blueprint"
	"github.com/alexisbeaulieu97/loom/internal/diagnostics"
	"github.com/alexisbeaulieu97/loom/internal/language"
	"github.com/alexisbeaulieu97/loom/internal/oracle"
	"github.com/alexisbeaulieu97/loom/internal/ports"
	apperrors "github.com/alexisbeaulieu97/loom/pkg/errors"
)

// Loaded is the outcome of reading a project file: the oracle seeded with
// every declaration, the in-memory blueprint, and the module name for the
// generated crate.
type Loaded struct {
	Module    string
	Oracle    *oracle.Oracle
	Blueprint *blueprint.Blueprint
}

// YAMLLoader reads serialized projects from disk.
type YAMLLoader struct {
	logger ports.Logger
}

// NewYAMLLoader creates a loader.
func NewYAMLLoader(logger ports.Logger) *YAMLLoader {
	return &YAMLLoader{logger: logger}
}

// Load parses, validates and materialises a project file.
func (l *YAMLLoader) Load(ctx context.Context, path string) (*Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewParseError(path, 0, err)
	}

	var project Project
	if err := yaml.Unmarshal(data, &project); err != nil {
		return nil, apperrors.NewParseError(path, 0, err)
	}
	if err := project.Validate(); err != nil {
		return nil, apperrors.NewValidationError("project", err.Error(), err)
	}

	l.logger.Debug(ctx, "project file parsed",
		"path", path,
		"packages", len(project.Packages),
		"functions", len(project.Functions),
	)

	orc, err := seedOracle(&project)
	if err != nil {
		return nil, apperrors.NewValidationError("declarations", err.Error(), err)
	}
	bp, err := materialiseBlueprint(&project.Blueprint, "blueprint")
	if err != nil {
		return nil, apperrors.NewValidationError("blueprint", err.Error(), err)
	}

	return &Loaded{Module: project.Module, Oracle: orc, Blueprint: bp}, nil
}

func seedOracle(project *Project) (*oracle.Oracle, error) {
	orc := oracle.New()
	for _, pkg := range project.Packages {
		orc.AddPackage(pkg.ImportPath, pkg.ID, pkg.Version)
	}
	for _, decl := range project.Types {
		if err := orc.AddType(decl.Path); err != nil {
			return nil, fmt.Errorf("type %q: %w", decl.Path, err)
		}
		t, err := language.ParseType(decl.Path)
		if err != nil {
			return nil, fmt.Errorf("type %q: %w", decl.Path, err)
		}
		for _, capability := range decl.Capabilities {
			orc.AllowCapability(t, ports.Capability(capability))
		}
	}
	for _, decl := range project.Functions {
		callable, err := callableFromDecl(decl)
		if err != nil {
			return nil, fmt.Errorf("function %q: %w", decl.Path, err)
		}
		orc.AddCallable(decl.Path, callable)
	}
	return orc, nil
}

func callableFromDecl(decl FunctionDecl) (*language.Callable, error) {
	fqPath, err := language.ParseFQPath(decl.Path)
	if err != nil {
		return nil, err
	}
	inputs := make([]language.Type, 0, len(decl.Inputs))
	for _, raw := range decl.Inputs {
		t, err := language.ParseType(raw)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", raw, err)
		}
		inputs = append(inputs, t)
	}
	var output language.Type
	if decl.Output != "" {
		output, err = language.ParseType(decl.Output)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", decl.Output, err)
		}
	}
	if decl.Error != "" {
		errType, err := language.ParseType(decl.Error)
		if err != nil {
			return nil, fmt.Errorf("error %q: %w", decl.Error, err)
		}
		ok := output
		if ok == nil {
			ok = language.Tuple{}
		}
		output = language.Result{Ok: ok, Err: errType}
	}
	style := language.FunctionCall
	if decl.Method {
		style = language.MethodCall
	}
	return &language.Callable{
		Path:      fqPath,
		Inputs:    inputs,
		Output:    output,
		Async:     decl.Async,
		SelfByRef: decl.SelfByRef,
		Style:     style,
	}, nil
}

func materialiseBlueprint(decl *BlueprintDecl, at string) (*blueprint.Blueprint, error) {
	bp := &blueprint.Blueprint{
		CreationLocation: diagnostics.Location{Path: at},
	}
	for i := range decl.Components {
		c := &decl.Components[i]
		loc := diagnostics.Location{Path: fmt.Sprintf("%s.components[%d]", at, i)}
		reg := blueprint.Registration{Location: loc}

		switch c.Kind {
		case "route":
			reg.Kind = blueprint.RegRoute
			reg.Path = c.Path
			reg.Callable = c.Handler
			reg.ErrorHandler = c.ErrorHandler
			if c.Any {
				reg.Method = blueprint.GuardAny()
			} else {
				reg.Method = blueprint.GuardMethods(c.Methods...)
			}
		case "fallback":
			reg.Kind = blueprint.RegFallback
			reg.Callable = c.Callable
			reg.ErrorHandler = c.ErrorHandler
		case "constructor":
			reg.Kind = blueprint.RegConstructor
			reg.Callable = c.Callable
			reg.ErrorHandler = c.ErrorHandler
			reg.Lifecycle = lifecycleFromDecl(c.Lifecycle)
			if c.CloneAllowed {
				reg.Cloning = blueprint.CloneIfNecessary
			}
		case "wrap":
			reg.Kind = blueprint.RegWrappingMiddleware
			reg.Callable = c.Callable
			reg.ErrorHandler = c.ErrorHandler
		case "pre":
			reg.Kind = blueprint.RegPreProcessingMiddleware
			reg.Callable = c.Callable
			reg.ErrorHandler = c.ErrorHandler
		case "post":
			reg.Kind = blueprint.RegPostProcessingMiddleware
			reg.Callable = c.Callable
			reg.ErrorHandler = c.ErrorHandler
		case "observer":
			reg.Kind = blueprint.RegErrorObserver
			reg.Callable = c.Callable
		case "prebuilt":
			reg.Kind = blueprint.RegPrebuilt
			reg.TypeExpr = c.Type
			reg.Lifecycle = blueprint.LifecycleSingleton
			if c.CloneAllowed {
				reg.Cloning = blueprint.CloneIfNecessary
			}
		case "config":
			reg.Kind = blueprint.RegConfig
			reg.TypeExpr = c.Type
			reg.ConfigKey = c.Key
			reg.Lifecycle = blueprint.LifecycleSingleton
			reg.Cloning = blueprint.CloneIfNecessary
			if c.DefaultIfMissing {
				reg.Default = blueprint.DefaultIfMissing
			}
		case "nest":
			child, err := materialiseBlueprint(c.Blueprint, fmt.Sprintf("%s.components[%d].blueprint", at, i))
			if err != nil {
				return nil, err
			}
			reg.Kind = blueprint.RegNested
			reg.Child = child
			reg.Domain = c.Domain
			if c.Prefix != "" {
				reg.Prefix = c.Prefix
				reg.HasPrefix = true
			}
		default:
			return nil, fmt.Errorf("%s: unknown component kind %q", loc.Path, c.Kind)
		}
		bp.Registrations = append(bp.Registrations, reg)
	}
	return bp, nil
}
