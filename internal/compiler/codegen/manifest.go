package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/loom/internal/compiler/callgraph"
	"github.com/alexisbeaulieu97/loom/internal/compiler/component"
	"github.com/alexisbeaulieu97/loom/internal/language"
)

// synthesiseManifest walks every emitted call graph, collects the
// packages reachable from referenced types and callables, and renders the
// generated crate's manifest with a deterministic dependency set.
func synthesiseManifest(in EmitInput, e *emitter) string {
	deps := collectDependencies(in)

	paths := make([]string, 0, len(deps))
	for path := range deps {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	moduleName := in.ModuleName
	if moduleName == "" {
		moduleName = "app/server"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "module %s\n\n", moduleName)
	sb.WriteString("go 1.25.1\n")
	if len(paths) > 0 {
		sb.WriteString("\nrequire (\n")
		for _, path := range paths {
			version := e.oracle.PackageVersion(deps[path])
			if version == "" {
				version = e.oracle.PackageVersion(path)
			}
			if version == "" {
				version = "0.0.0"
			}
			fmt.Fprintf(&sb, "\t%s v%s\n", path, version)
		}
		sb.WriteString(")\n")
	}
	return sb.String()
}

// collectDependencies returns importPath -> packageID for every package
// reachable from the emitted graphs.
func collectDependencies(in EmitInput) map[string]string {
	deps := make(map[string]string)
	add := func(path, id string) {
		if path == "" || isStdlib(path) {
			return
		}
		if existing, ok := deps[path]; !ok || (existing == "" && id != "") {
			deps[path] = id
		}
	}

	var addType func(t language.Type)
	addType = func(t language.Type) {
		switch typ := t.(type) {
		case language.PathType:
			add(typ.ImportPath, typ.PackageID)
			for _, arg := range typ.GenericArgs {
				addType(arg)
			}
		case language.Reference:
			addType(typ.Inner)
		case language.Slice:
			addType(typ.Element)
		case language.Tuple:
			for _, el := range typ.Elements {
				addType(el)
			}
		case language.Result:
			addType(typ.Ok)
			addType(typ.Err)
		}
	}

	addGraph := func(g *callgraph.CallGraph) {
		if g == nil {
			return
		}
		for _, idx := range g.Indices() {
			n := g.Node(idx)
			switch n.Kind {
			case callgraph.NodeInput:
				addType(n.Type)
			case callgraph.NodeCompute:
				comp := in.Db.Computation(n.Component)
				if comp.Kind == component.CompCallable {
					add(comp.Callable.Path.ImportPath, "")
					for _, input := range comp.Callable.Inputs {
						addType(input)
					}
				}
				if comp.Output != nil {
					addType(comp.Output)
				}
			}
		}
	}

	for _, p := range in.Pipelines {
		for _, stage := range p.Stages {
			addGraph(stage.Graph)
		}
	}
	addGraph(in.StateGraph)
	return deps
}

func isStdlib(importPath string) bool {
	first := importPath
	if i := strings.IndexByte(first, '/'); i >= 0 {
		first = first[:i]
	}
	return !strings.Contains(first, ".")
}
