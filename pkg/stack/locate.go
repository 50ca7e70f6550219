package stack

import (
	"strconv"
	"strings"
)

// Kind classifies a frame by the shape of its qualified symbol.
type Kind uint8

const (
	KindFunc Kind = iota
	KindMethod
	KindClosure
)

func (k Kind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindClosure:
		return "closure"
	default:
		return "func"
	}
}

// Location identifies a position in the program: the package a function
// belongs to, a function id that is unique within that package, and the line
// executing when the sample was taken.
type Location struct {
	Module   string `json:"module"`
	Function string `json:"function"`
	Line     int    `json:"line"`
}

func (l Location) String() string {
	if l.Module == "" {
		return l.Function + ":" + strconv.Itoa(l.Line)
	}
	return l.Module + "." + l.Function + ":" + strconv.Itoa(l.Line)
}

// Symbol is a qualified Go symbol split into its parts.
type Symbol struct {
	Package string
	Owner   string // receiver type name, without pointer or type arguments
	Name    string
	Kind    Kind
}

// FunctionID returns Owner.Name for methods and the bare name otherwise.
func (s Symbol) FunctionID() string {
	name := s.Name
	if name == "" {
		name = "?"
	}
	if s.Owner == "" {
		return name
	}
	return s.Owner + "." + name
}

// Locate derives the location of a single frame. It never fails: symbols it
// cannot split degrade to a bare function name, and an empty symbol becomes
// "?".
func Locate(f Frame) Location {
	sym := ParseSymbol(f.Function)
	return Location{
		Module:   sym.Package,
		Function: sym.FunctionID(),
		Line:     f.Line,
	}
}

// ParseSymbol splits a runtime symbol such as
// "github.com/a/b.(*Foo).bar.func1" into package, receiver and name.
func ParseSymbol(name string) Symbol {
	name = stripTypeArgs(name)
	if name == "" {
		return Symbol{}
	}

	var sym Symbol
	rest := name
	start := strings.LastIndexByte(name, '/') + 1
	if dot := strings.IndexByte(name[start:], '.'); dot >= 0 {
		sym.Package = strings.ReplaceAll(name[:start+dot], "%2e", ".")
		rest = name[start+dot+1:]
	}

	parts := strings.Split(rest, ".")
	switch {
	case strings.HasPrefix(parts[0], "(*") && strings.HasSuffix(parts[0], ")") && len(parts) > 1:
		sym.Owner = parts[0][2 : len(parts[0])-1]
		sym.Name = strings.Join(parts[1:], ".")
		sym.Kind = KindMethod
		parts = parts[1:]
	case len(parts) > 1 && !isGenerated(parts[1]):
		sym.Owner = parts[0]
		sym.Name = strings.Join(parts[1:], ".")
		sym.Kind = KindMethod
		parts = parts[1:]
	default:
		sym.Name = rest
	}

	for _, p := range parts[1:] {
		if isClosure(p) {
			sym.Kind = KindClosure
			break
		}
	}
	return sym
}

// isGenerated reports whether a symbol segment was made up by the compiler:
// closures (func1), go/defer wrappers, numbered init functions and the empty
// segment of package-level closures (glob..func1).
func isGenerated(seg string) bool {
	if seg == "" {
		return true
	}
	for _, prefix := range []string{"func", "gowrap", "deferwrap"} {
		if strings.HasPrefix(seg, prefix) && isDigits(seg[len(prefix):]) {
			return true
		}
	}
	return isDigits(seg)
}

func isClosure(seg string) bool {
	return seg == "" || (isGenerated(seg) && !isDigits(seg))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// stripTypeArgs removes generic instantiation brackets, e.g. "[...]".
func stripTypeArgs(name string) string {
	if strings.IndexByte(name, '[') < 0 {
		return name
	}
	var b strings.Builder
	depth := 0
	for _, c := range name {
		switch {
		case c == '[':
			depth++
		case c == ']' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(c)
		}
	}
	return b.String()
}
