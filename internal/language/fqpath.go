package language

import (
	"fmt"
	"strings"
	"unicode"
)

// FQPath is a fully-qualified registered path: the import path of the
// defining package plus the named segments inside it. Functions have one
// segment; methods have two (type, then method).
type FQPath struct {
	ImportPath string
	Segments   []string
}

// Render spells the path back out. Parsing the result yields an equal path.
func (p FQPath) Render() string {
	if p.ImportPath == "" {
		return strings.Join(p.Segments, ".")
	}
	return p.ImportPath + "." + strings.Join(p.Segments, ".")
}

// Name returns the final segment.
func (p FQPath) Name() string {
	if len(p.Segments) == 0 {
		return ""
	}
	return p.Segments[len(p.Segments)-1]
}

// Equal reports path equality.
func (p FQPath) Equal(other FQPath) bool {
	if p.ImportPath != other.ImportPath || len(p.Segments) != len(other.Segments) {
		return false
	}
	for i := range p.Segments {
		if p.Segments[i] != other.Segments[i] {
			return false
		}
	}
	return true
}

// ParseFQPath parses a registered path such as
// "github.com/acme/app/handlers.GetUser" or "app/store.Repository.Fetch".
// Everything up to the first dot after the final slash is the import path;
// the remaining dot-separated identifiers are the segments.
func ParseFQPath(raw string) (FQPath, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return FQPath{}, fmt.Errorf("registered path is empty")
	}
	slash := strings.LastIndexByte(raw, '/')
	dot := strings.IndexByte(raw[slash+1:], '.')
	if dot < 0 {
		return FQPath{}, fmt.Errorf("registered path %q has no item segment", raw)
	}
	dot += slash + 1
	importPath := raw[:dot]
	if importPath == "" {
		return FQPath{}, fmt.Errorf("registered path %q has no package", raw)
	}
	segments := strings.Split(raw[dot+1:], ".")
	if len(segments) == 0 || len(segments) > 2 {
		return FQPath{}, fmt.Errorf("registered path %q must name a function or a method", raw)
	}
	for _, seg := range segments {
		if !isIdent(seg) {
			return FQPath{}, fmt.Errorf("registered path %q contains invalid segment %q", raw, seg)
		}
	}
	return FQPath{ImportPath: importPath, Segments: segments}, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

// typeParser is a tiny recursive-descent parser for type expressions.
type typeParser struct {
	input string
	pos   int
}

// ParseType parses a type expression written in Go-flavoured syntax:
//
//	*T            shared reference
//	[]T           slice
//	(A, B)        tuple
//	pkg/path.Name[Args]  named type with optional generic arguments
//	string, int64, ...   scalar primitives
//	T             bare uppercase identifier without a package: generic parameter
func ParseType(raw string) (Type, error) {
	p := &typeParser{input: raw}
	t, err := p.parse()
	if err != nil {
		return nil, err
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("type %q has trailing characters at offset %d", raw, p.pos)
	}
	return t, nil
}

func (p *typeParser) parse() (Type, error) {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("type %q is truncated", p.input)
	}
	switch {
	case p.input[p.pos] == '*':
		p.pos++
		inner, err := p.parse()
		if err != nil {
			return nil, err
		}
		return Reference{Inner: inner}, nil
	case strings.HasPrefix(p.input[p.pos:], "[]"):
		p.pos += 2
		el, err := p.parse()
		if err != nil {
			return nil, err
		}
		return Slice{Element: el}, nil
	case p.input[p.pos] == '(':
		return p.parseTuple()
	default:
		return p.parseNamed()
	}
}

func (p *typeParser) parseTuple() (Type, error) {
	p.pos++ // consume '('
	var elements []Type
	p.skipSpaces()
	if p.pos < len(p.input) && p.input[p.pos] == ')' {
		p.pos++
		return Tuple{}, nil
	}
	for {
		el, err := p.parse()
		if err != nil {
			return nil, err
		}
		elements = append(elements, el)
		p.skipSpaces()
		if p.pos >= len(p.input) {
			return nil, fmt.Errorf("type %q has an unterminated tuple", p.input)
		}
		if p.input[p.pos] == ',' {
			p.pos++
			continue
		}
		if p.input[p.pos] == ')' {
			p.pos++
			return Tuple{Elements: elements}, nil
		}
		return nil, fmt.Errorf("type %q has unexpected character %q in tuple", p.input, p.input[p.pos])
	}
}

func (p *typeParser) parseNamed() (Type, error) {
	start := p.pos
	for p.pos < len(p.input) && !strings.ContainsRune("[],() ", rune(p.input[p.pos])) {
		p.pos++
	}
	name := p.input[start:p.pos]
	if name == "" {
		return nil, fmt.Errorf("type %q has an empty name at offset %d", p.input, start)
	}

	var args []Type
	if p.pos < len(p.input) && p.input[p.pos] == '[' {
		p.pos++
		for {
			arg, err := p.parse()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			p.skipSpaces()
			if p.pos >= len(p.input) {
				return nil, fmt.Errorf("type %q has an unterminated argument list", p.input)
			}
			if p.input[p.pos] == ',' {
				p.pos++
				continue
			}
			if p.input[p.pos] == ']' {
				p.pos++
				break
			}
			return nil, fmt.Errorf("type %q has unexpected character %q in argument list", p.input, p.input[p.pos])
		}
	}

	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		if len(args) > 0 {
			return nil, fmt.Errorf("type %q applies arguments to an unqualified name", p.input)
		}
		if kind, ok := ScalarKindFromName(name); ok {
			return Scalar{Kind: kind}, nil
		}
		if !isIdent(name) {
			return nil, fmt.Errorf("type %q has invalid name %q", p.input, name)
		}
		return Generic{Name: name}, nil
	}

	importPath, typeName := name[:dot], name[dot+1:]
	if importPath == "" || !isIdent(typeName) {
		return nil, fmt.Errorf("type %q has invalid qualified name %q", p.input, name)
	}
	return PathType{ImportPath: importPath, Name: typeName, GenericArgs: args}, nil
}

func (p *typeParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}
