package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/loom/internal/compiler/callgraph"
	"github.com/alexisbeaulieu97/loom/internal/compiler/component"
	"github.com/alexisbeaulieu97/loom/internal/language"
	"github.com/alexisbeaulieu97/loom/internal/ports"
)

// importSet tracks the imports of the generated file and assigns each
// package a deterministic alias. When two packages collide on their base
// name, the alias is suffixed with the package version, underscored.
type importSet struct {
	oracle  ports.TypeOracle
	byPath  map[string]string
	byAlias map[string]string
}

func newImportSet(oracle ports.TypeOracle) *importSet {
	return &importSet{
		oracle:  oracle,
		byPath:  make(map[string]string),
		byAlias: make(map[string]string),
	}
}

// qualify returns the aliased spelling of a name from the given package,
// registering the import on first use.
func (im *importSet) qualify(importPath, packageID, name string) string {
	if importPath == "" {
		return name
	}
	alias, ok := im.byPath[importPath]
	if !ok {
		alias = im.allocAlias(importPath, packageID)
	}
	return alias + "." + name
}

func (im *importSet) allocAlias(importPath, packageID string) string {
	base := importPath
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	base = sanitizeIdent(base)
	alias := base
	if _, taken := im.byAlias[alias]; taken {
		version := im.oracle.PackageVersion(packageID)
		if version != "" {
			alias = base + "_" + strings.NewReplacer(".", "_", "-", "_").Replace(version)
		}
	}
	for i := 2; ; i++ {
		if _, taken := im.byAlias[alias]; !taken {
			break
		}
		alias = fmt.Sprintf("%s%d", base, i)
	}
	im.byPath[importPath] = alias
	im.byAlias[alias] = importPath
	return alias
}

// render returns the import block, sorted by path.
func (im *importSet) render() string {
	if len(im.byPath) == 0 {
		return ""
	}
	paths := make([]string, 0, len(im.byPath))
	for path := range im.byPath {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var sb strings.Builder
	sb.WriteString("import (\n")
	for _, path := range paths {
		alias := im.byPath[path]
		base := path
		if i := strings.LastIndexByte(base, '/'); i >= 0 {
			base = base[i+1:]
		}
		if alias == sanitizeIdent(base) {
			fmt.Fprintf(&sb, "\t%q\n", path)
		} else {
			fmt.Fprintf(&sb, "\t%s %q\n", alias, path)
		}
	}
	sb.WriteString(")\n")
	return sb.String()
}

func sanitizeIdent(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			sb.WriteRune(r)
		case r >= '0' && r <= '9' && sb.Len() > 0:
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

// nameAllocator hands out unique lowerCamel binding names within one
// emitted function.
type nameAllocator struct {
	taken map[string]int
}

func newNameAllocator() *nameAllocator {
	return &nameAllocator{taken: make(map[string]int)}
}

func (na *nameAllocator) fresh(base string) string {
	if base == "" {
		base = "value"
	}
	n := na.taken[base]
	na.taken[base]++
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s%d", base, n)
}

// baseNameFor derives a binding-name stem from a type.
func baseNameFor(t language.Type) string {
	switch typ := t.(type) {
	case language.PathType:
		return lowerCamel(typ.Name)
	case language.Reference:
		return baseNameFor(typ.Inner)
	case language.Slice:
		return baseNameFor(typ.Element)
	case language.Scalar:
		return string(typ.Kind) + "Value"
	case language.Generic:
		return lowerCamel(typ.Name)
	case language.Result:
		return baseNameFor(typ.Ok)
	default:
		return "value"
	}
}

func lowerCamel(name string) string {
	if name == "" {
		return "value"
	}
	runes := []rune(name)
	i := 0
	for i < len(runes) && runes[i] >= 'A' && runes[i] <= 'Z' {
		runes[i] = runes[i] - 'A' + 'a'
		i++
		// Keep the tail of an acronym prefix upper-case (HTTPServer ->
		// httpServer).
		if i+1 < len(runes) && runes[i] >= 'A' && runes[i] <= 'Z' &&
			runes[i+1] >= 'a' && runes[i+1] <= 'z' {
			break
		}
	}
	out := string(runes)
	if isReservedWord(out) {
		out += "Value"
	}
	return out
}

func isReservedWord(s string) bool {
	switch s {
	case "break", "case", "chan", "const", "continue", "default", "defer",
		"else", "fallthrough", "for", "func", "go", "goto", "if", "import",
		"interface", "map", "package", "range", "return", "select", "struct",
		"switch", "type", "var", "error", "string", "int":
		return true
	}
	return false
}

// emitter owns the file-level emission state shared by every generated
// function.
type emitter struct {
	db      *component.Db
	oracle  ports.TypeOracle
	imports *importSet

	// stateFields maps a state-bound component to its ApplicationState
	// field name.
	stateFields map[component.ComponentID]string
}

// typeExpr spells a type as generated Go source, registering imports.
func (e *emitter) typeExpr(t language.Type) string {
	switch typ := t.(type) {
	case language.PathType:
		base := e.imports.qualify(typ.ImportPath, typ.PackageID, typ.Name)
		if len(typ.GenericArgs) == 0 {
			return base
		}
		args := make([]string, len(typ.GenericArgs))
		for i, arg := range typ.GenericArgs {
			args[i] = e.typeExpr(arg)
		}
		return base + "[" + strings.Join(args, ", ") + "]"
	case language.Reference:
		return "*" + e.typeExpr(typ.Inner)
	case language.Slice:
		return "[]" + e.typeExpr(typ.Element)
	case language.Scalar:
		return string(typ.Kind)
	case language.Tuple:
		fields := make([]string, len(typ.Elements))
		for i, el := range typ.Elements {
			fields[i] = fmt.Sprintf("F%d %s", i, e.typeExpr(el))
		}
		return "struct{ " + strings.Join(fields, "; ") + " }"
	default:
		panic(fmt.Sprintf("type %s cannot be spelled in generated code: this is a bug in the compiler", t.Render()))
	}
}

// callExpr spells an invocation of the callable with the given argument
// expressions.
func (e *emitter) callExpr(c *language.Callable, args []string) string {
	if c.Style == language.MethodCall && len(args) > 0 {
		receiver := args[0]
		method := c.Path.Segments[len(c.Path.Segments)-1]
		return fmt.Sprintf("%s.%s(%s)", receiver, method, strings.Join(args[1:], ", "))
	}
	name := e.imports.qualify(c.Path.ImportPath, "", strings.Join(c.Path.Segments, "."))
	return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))
}

// funcEmitter lowers one call graph into the body of a generated
// function.
type funcEmitter struct {
	e *emitter
	g *callgraph.CallGraph

	sb     *strings.Builder
	indent int
	names  *nameAllocator

	// bound maps nodes to the binding naming their value.
	bound map[callgraph.NodeIndex]string
	// extBindings maps an external input's type identity to the expression
	// the enclosing context supplies for it.
	extBindings map[string]string
	// compBindings maps component-sourced inputs to their expressions:
	// application-state fields or values materialised by an earlier
	// pipeline stage.
	compBindings map[component.ComponentID]string
	// emittedBranches tracks the match branchings already lowered on the
	// current path.
	emittedBranches map[callgraph.NodeIndex]bool
	// presetNames pins the binding name of selected nodes up front, so
	// values shared with later pipeline stages have a known name before
	// they are lowered.
	presetNames map[callgraph.NodeIndex]string

	// errReturn renders the early-return statement for an error arm with
	// no error handler: used by the application-state builder. Nil means
	// the error arm must contain a handler pipeline.
	errReturn func(producer component.ComponentID, errVar string) string
}

func newFuncEmitter(e *emitter, g *callgraph.CallGraph, names *nameAllocator) *funcEmitter {
	return &funcEmitter{
		e:               e,
		g:               g,
		sb:              &strings.Builder{},
		names:           names,
		bound:           make(map[callgraph.NodeIndex]string),
		extBindings:     make(map[string]string),
		compBindings:    make(map[component.ComponentID]string),
		emittedBranches: make(map[callgraph.NodeIndex]bool),
		presetNames:     make(map[callgraph.NodeIndex]string),
	}
}

func (fe *funcEmitter) bindingName(idx callgraph.NodeIndex, base string) string {
	if name, ok := fe.presetNames[idx]; ok {
		return name
	}
	return fe.names.fresh(base)
}

func (fe *funcEmitter) line(format string, args ...interface{}) {
	fe.sb.WriteString(strings.Repeat("\t", fe.indent))
	fmt.Fprintf(fe.sb, format, args...)
	fe.sb.WriteByte('\n')
}

// lower emits every computation needed to produce the graph's root value
// and returns the expression for it. Error arms return early out of the
// enclosing function.
func (fe *funcEmitter) lower() string {
	return fe.valueForTarget(fe.g.Root)
}

// valueForTarget resolves pending match branchings between the graph
// inputs and target, then returns the expression for target's value.
func (fe *funcEmitter) valueForTarget(target callgraph.NodeIndex) string {
	for {
		branch, ok := fe.nextBranchFor(target)
		if !ok {
			break
		}
		fe.emitBranch(branch)
	}
	return fe.valueOf(target)
}

// nextBranchFor finds a match branching ancestor of target that has not
// been lowered yet and whose own branching ancestors are all lowered, so
// each branching is emitted exactly once and outermost first.
func (fe *funcEmitter) nextBranchFor(target callgraph.NodeIndex) (callgraph.NodeIndex, bool) {
	var candidates []callgraph.NodeIndex
	seen := make(map[callgraph.NodeIndex]bool)
	var walk func(idx callgraph.NodeIndex)
	walk = func(idx callgraph.NodeIndex) {
		if seen[idx] {
			return
		}
		seen[idx] = true
		for _, parent := range fe.g.Parents(idx) {
			if fe.g.Node(parent).Kind == callgraph.NodeMatchBranching && !fe.emittedBranches[parent] {
				candidates = append(candidates, parent)
			}
			walk(parent)
		}
	}
	walk(target)
	if len(candidates) == 0 {
		return callgraph.NoNode, false
	}
	// Pick a candidate with no unlowered branching ancestor.
	for _, cand := range candidates {
		free := true
		inner := make(map[callgraph.NodeIndex]bool)
		var check func(idx callgraph.NodeIndex)
		check = func(idx callgraph.NodeIndex) {
			if inner[idx] || !free {
				return
			}
			inner[idx] = true
			for _, parent := range fe.g.Parents(idx) {
				if parent != cand && fe.g.Node(parent).Kind == callgraph.NodeMatchBranching && !fe.emittedBranches[parent] {
					free = false
					return
				}
				check(parent)
			}
		}
		check(cand)
		if free {
			return cand, true
		}
	}
	return candidates[0], true
}

// emitBranch lowers one fallible call: the producer is evaluated into an
// (ok, err) pair, the error arm returns early, and the Ok projection is
// bound for the rest of the function.
func (fe *funcEmitter) emitBranch(branch callgraph.NodeIndex) {
	fe.emittedBranches[branch] = true

	producer := fe.g.Parents(branch)[0]
	okNode, errNode := fe.branchArms(branch)

	producerComp := fe.g.Node(producer).Component
	comp := fe.e.db.Computation(producerComp)

	errVar := fe.names.fresh("err")
	args := fe.argExprs(producer)
	call := fe.e.callExpr(comp.Callable, args)

	okVar := ""
	if language.IsUnit(comp.OkOutput()) {
		fe.line("%s := %s", errVar, call)
	} else {
		okVar = fe.names.fresh(baseNameFor(comp.OkOutput()))
		if okNode != callgraph.NoNode {
			if preset, ok := fe.presetNames[okNode]; ok {
				okVar = preset
			}
		}
		fe.line("%s, %s := %s", okVar, errVar, call)
		fe.bound[producer] = okVar
	}
	fe.line("if %s != nil {", errVar)
	fe.indent++
	fe.emitErrArm(errNode, errVar, producerComp)
	fe.indent--
	fe.line("}")
	if okNode != callgraph.NoNode && okVar != "" {
		fe.bound[okNode] = okVar
	}
}

func (fe *funcEmitter) branchArms(branch callgraph.NodeIndex) (okNode, errNode callgraph.NodeIndex) {
	okNode, errNode = callgraph.NoNode, callgraph.NoNode
	for _, child := range fe.g.Children(branch) {
		n := fe.g.Node(child)
		if n.Kind != callgraph.NodeCompute {
			continue
		}
		c := fe.e.db.Get(n.Component)
		if c.Variant == component.VariantErr {
			errNode = child
		} else {
			okNode = child
		}
	}
	return okNode, errNode
}

// emitErrArm lowers the error path hanging off an Err projection:
// observers first, then the error handler and its response coercion, and
// finally the early return.
func (fe *funcEmitter) emitErrArm(errNode callgraph.NodeIndex, errVar string, producer component.ComponentID) {
	if errNode == callgraph.NoNode || fe.errReturn != nil {
		ret := "nil"
		if fe.errReturn != nil {
			ret = fe.errReturn(producer, errVar)
		}
		fe.line("return %s", ret)
		return
	}

	// Clone the lowering state: shared sub-graphs referenced inside the
	// arm are re-emitted locally.
	armFe := fe.cloneState()
	armFe.bound[errNode] = errVar

	terminal := callgraph.NoNode
	order, err := fe.g.TopoOrder()
	if err != nil {
		panic(err.Error())
	}
	inArm := fe.descendantsOf(errNode)
	for _, idx := range order {
		if !inArm[idx] || idx == errNode {
			continue
		}
		n := fe.g.Node(idx)
		if n.Kind != callgraph.NodeCompute {
			continue
		}
		comp := fe.e.db.Computation(n.Component)
		if language.IsUnit(comp.Output) {
			// Effect-only nodes (error observers) become statements.
			args := armFe.argExprs(idx)
			armFe.line("%s", fe.e.callExpr(comp.Callable, args))
			continue
		}
		if len(fe.g.OutEdges(idx)) == 0 {
			terminal = idx
		}
	}
	if terminal == callgraph.NoNode {
		panic("error arm has no response-producing terminal: this is a bug in the compiler")
	}
	armFe.line("return %s", armFe.valueOf(terminal))
	fe.sb.WriteString(armFe.sb.String())
}

func (fe *funcEmitter) cloneState() *funcEmitter {
	clone := &funcEmitter{
		e:               fe.e,
		g:               fe.g,
		sb:              &strings.Builder{},
		indent:          fe.indent,
		names:           fe.names,
		bound:           make(map[callgraph.NodeIndex]string, len(fe.bound)),
		extBindings:     fe.extBindings,
		compBindings:    fe.compBindings,
		emittedBranches: make(map[callgraph.NodeIndex]bool, len(fe.emittedBranches)),
		presetNames:     fe.presetNames,
		errReturn:       fe.errReturn,
	}
	for k, v := range fe.bound {
		clone.bound[k] = v
	}
	for k, v := range fe.emittedBranches {
		clone.emittedBranches[k] = v
	}
	return clone
}

func (fe *funcEmitter) descendantsOf(root callgraph.NodeIndex) map[callgraph.NodeIndex]bool {
	out := make(map[callgraph.NodeIndex]bool)
	queue := []callgraph.NodeIndex{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if out[cur] {
			continue
		}
		out[cur] = true
		queue = append(queue, fe.g.Children(cur)...)
	}
	return out
}

// argExprs renders the argument list of a compute node from its inbound
// edges, in signature order. Borrowed arguments are wrapped with the
// borrow operator instead of a call.
func (fe *funcEmitter) argExprs(idx callgraph.NodeIndex) []string {
	nodeComp := fe.g.Node(idx).Component
	comp := fe.e.db.Computation(nodeComp)
	selfByRef := comp.Kind == component.CompCallable &&
		comp.Callable.Style == language.MethodCall && comp.Callable.SelfByRef

	edges := fe.g.InEdges(idx)
	args := make([]string, 0, len(edges))
	for i, eid := range edges {
		edge := fe.g.Edge(eid)
		expr := fe.valueOf(edge.From)
		if edge.Kind == callgraph.EdgeSharedBorrow {
			if i == 0 && selfByRef {
				// Method receivers auto-address; no operator needed.
			} else if _, isRef := fe.producedType(edge.From).(language.Reference); !isRef {
				expr = "&" + expr
			}
		}
		args = append(args, expr)
	}
	return args
}

func (fe *funcEmitter) producedType(idx callgraph.NodeIndex) language.Type {
	n := fe.g.Node(idx)
	if n.Kind == callgraph.NodeInput {
		return n.Type
	}
	return fe.e.db.Computation(n.Component).Output
}

// valueOf returns the expression for a node's value, emitting a binding
// first when the node is invoked at most once.
func (fe *funcEmitter) valueOf(idx callgraph.NodeIndex) string {
	if name, ok := fe.bound[idx]; ok {
		return name
	}
	n := fe.g.Node(idx)
	switch n.Kind {
	case callgraph.NodeInput:
		return fe.inputExpr(idx)
	case callgraph.NodeMatchBranching:
		panic("a match branching has no value of its own: this is a bug in the compiler")
	}

	comp := fe.e.db.Computation(n.Component)
	if comp.Kind == component.CompMatchProjection {
		// Projections are bound when their branching is lowered. An unbound
		// one pulls its branching in first.
		parent := fe.g.Parents(idx)[0]
		if fe.g.Node(parent).Kind == callgraph.NodeMatchBranching {
			if !fe.emittedBranches[parent] {
				fe.emitBranch(parent)
			}
			name, ok := fe.bound[idx]
			if !ok {
				panic("an error projection was requested outside its arm: this is a bug in the compiler")
			}
			return name
		}
		return fe.valueOf(parent)
	}

	args := fe.argExprs(idx)
	expr := fe.e.callExpr(comp.Callable, args)
	if n.Multiplicity == callgraph.MultiplicityMultiple {
		return expr
	}
	name := fe.bindingName(idx, baseNameFor(comp.OkOutput()))
	fe.line("%s := %s", name, expr)
	fe.bound[idx] = name
	return name
}

func (fe *funcEmitter) inputExpr(idx callgraph.NodeIndex) string {
	n := fe.g.Node(idx)
	if n.Source == callgraph.SourceComponent {
		expr, ok := fe.compBindings[n.Component]
		if !ok {
			panic(fmt.Sprintf("no binding for state value %s: this is a bug in the compiler", fe.e.db.RenderComponent(n.Component)))
		}
		return expr
	}
	expr, ok := fe.extBindings[n.Type.Key()]
	if !ok {
		panic(fmt.Sprintf("no binding for external input %s: this is a bug in the compiler", n.Type.Render()))
	}
	return expr
}

// neededExternalTypes returns the type keys of a graph's external inputs
// that have no component behind them.
func neededExternalTypes(g *callgraph.CallGraph) map[string]language.Type {
	out := make(map[string]language.Type)
	for _, idx := range g.ExternalInputs() {
		n := g.Node(idx)
		if n.Component != component.NoComponentID {
			continue
		}
		out[n.Type.Key()] = n.Type
	}
	return out
}
