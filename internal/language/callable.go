package language

import (
	"sort"
	"strings"
)

// InvocationStyle distinguishes plain function calls from method calls on a
// receiver.
type InvocationStyle int

const (
	FunctionCall InvocationStyle = iota
	MethodCall
)

// Callable is a resolved function or method: its canonical path, input
// types in declaration order, optional output type, and the properties the
// emitter needs to spell an invocation.
type Callable struct {
	Path      FQPath
	Inputs    []Type
	Output    Type
	Async     bool
	SelfByRef bool
	Style     InvocationStyle
}

// IsFallible reports whether the callable's output is result-shaped.
func (c *Callable) IsFallible() bool {
	if c.Output == nil {
		return false
	}
	_, ok := c.Output.(Result)
	return ok
}

// OkOutput returns the success half of the output: the Ok variant for
// fallible callables, the output itself otherwise.
func (c *Callable) OkOutput() Type {
	if res, ok := c.Output.(Result); ok {
		return res.Ok
	}
	return c.Output
}

// ErrOutput returns the error half of a fallible output, nil otherwise.
func (c *Callable) ErrOutput() Type {
	if res, ok := c.Output.(Result); ok {
		return res.Err
	}
	return nil
}

// Render spells the callable as a signature string for messages.
func (c *Callable) Render() string {
	var sb strings.Builder
	sb.WriteString(c.Path.Render())
	sb.WriteByte('(')
	for i, in := range c.Inputs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(in.Render())
	}
	sb.WriteByte(')')
	if c.Output != nil {
		sb.WriteString(" -> ")
		sb.WriteString(c.Output.Render())
	}
	return sb.String()
}

// FreeGenericParameters returns the sorted generic parameter names that
// appear anywhere in the signature.
func (c *Callable) FreeGenericParameters() []string {
	set := make(map[string]struct{})
	for _, in := range c.Inputs {
		in.collectGenerics(set)
	}
	if c.Output != nil {
		c.Output.collectGenerics(set)
	}
	if len(set) == 0 {
		return nil
	}
	return sortedNames(set)
}

// OutputGenericParameters returns the sorted generic parameter names that
// appear in the output type.
func (c *Callable) OutputGenericParameters() []string {
	if c.Output == nil {
		return nil
	}
	set := make(map[string]struct{})
	c.Output.collectGenerics(set)
	if len(set) == 0 {
		return nil
	}
	return sortedNames(set)
}

// InputGenericParameters returns the sorted generic parameter names that
// appear in any input type.
func (c *Callable) InputGenericParameters() []string {
	set := make(map[string]struct{})
	for _, in := range c.Inputs {
		in.collectGenerics(set)
	}
	if len(set) == 0 {
		return nil
	}
	return sortedNames(set)
}

// Substituted returns a copy of the callable with generic bindings applied
// to every input and the output.
func (c *Callable) Substituted(bindings map[string]Type) *Callable {
	if len(bindings) == 0 {
		return c
	}
	inputs := make([]Type, len(c.Inputs))
	for i, in := range c.Inputs {
		inputs[i] = Substitute(in, bindings)
	}
	return &Callable{
		Path:      c.Path,
		Inputs:    inputs,
		Output:    Substitute(c.Output, bindings),
		Async:     c.Async,
		SelfByRef: c.SelfByRef,
		Style:     c.Style,
	}
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
