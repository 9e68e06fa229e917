// Package link models the ordered set of linker directives a resolution
// produces.
package link

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goplus/rocksys/internal/platform"
)

// Kind is the type of a Directive.
type Kind int

const (
	SearchPath Kind = iota
	Library
)

// Mode selects static or dynamic linking of a library.
type Mode int

const (
	Dynamic Mode = iota
	Static
)

func (m Mode) String() string {
	if m == Static {
		return "static"
	}
	return "dylib"
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Directive is a single linker instruction.
type Directive struct {
	Kind Kind
	Path string // SearchPath only
	Name string // Library only
	Mode Mode   // Library only
}

// Search returns a directive adding dir to the library search path.
func Search(dir string) Directive {
	return Directive{Kind: SearchPath, Path: dir}
}

// Lib returns a directive linking the library name in the given mode.
func Lib(name string, mode Mode) Directive {
	return Directive{Kind: Library, Name: name, Mode: mode}
}

func (d Directive) String() string {
	if d.Kind == SearchPath {
		return "link-search=native=" + d.Path
	}
	return "link-lib=" + d.Mode.String() + "=" + d.Name
}

// Plan is an append-only, deduplicated sequence of directives.
// The zero value is an empty plan ready to use.
type Plan struct {
	directives []Directive
}

// NewPlan returns a plan holding ds in order, duplicates dropped.
func NewPlan(ds ...Directive) *Plan {
	p := &Plan{}
	p.Add(ds...)
	return p
}

// Add appends every directive of ds not already in p.
func (p *Plan) Add(ds ...Directive) {
	for _, d := range ds {
		if !p.has(d) {
			p.directives = append(p.directives, d)
		}
	}
}

// Extend appends the directives of other.
func (p *Plan) Extend(other *Plan) {
	if other != nil {
		p.Add(other.directives...)
	}
}

func (p *Plan) has(d Directive) bool {
	for _, e := range p.directives {
		if e == d {
			return true
		}
	}
	return false
}

// Directives returns a copy of the directives in order.
func (p *Plan) Directives() []Directive {
	return append([]Directive(nil), p.directives...)
}

// Len reports the number of directives.
func (p *Plan) Len() int { return len(p.directives) }

// Libraries returns the library directives in order.
func (p *Plan) Libraries() []Directive {
	var libs []Directive
	for _, d := range p.directives {
		if d.Kind == Library {
			libs = append(libs, d)
		}
	}
	return libs
}

// Lines renders the plan one directive per line.
func (p *Plan) Lines() []string {
	lines := make([]string, len(p.directives))
	for i, d := range p.directives {
		lines[i] = d.String()
	}
	return lines
}

// LDFLAGS renders the plan as linker flags for the target t.
func (p *Plan) LDFLAGS(t platform.Triple) []string {
	flags := make([]string, 0, len(p.directives))
	for _, d := range p.directives {
		switch {
		case d.Kind == SearchPath && t.IsMSVC():
			flags = append(flags, "/LIBPATH:"+d.Path)
		case d.Kind == SearchPath:
			flags = append(flags, "-L"+d.Path)
		case t.IsMSVC():
			flags = append(flags, d.Name+".lib")
		case d.Mode == Static && t.Family() == platform.Linux:
			flags = append(flags, "-l:lib"+d.Name+".a")
		default:
			flags = append(flags, "-l"+d.Name)
		}
	}
	return flags
}

// CgoFile renders a Go source file whose cgo preamble carries the plan.
func (p *Plan) CgoFile(pkg string, t platform.Triple) []byte {
	var b strings.Builder
	b.WriteString("// Code generated by rocksys. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n\n", pkg)
	b.WriteString("/*\n")
	if flags := p.LDFLAGS(t); len(flags) > 0 {
		quoted := make([]string, len(flags))
		for i, f := range flags {
			quoted[i] = quoteCgo(f)
		}
		fmt.Fprintf(&b, "#cgo LDFLAGS: %s\n", strings.Join(quoted, " "))
	}
	b.WriteString("*/\nimport \"C\"\n")
	return []byte(b.String())
}

// quoteCgo quotes flag for a #cgo line. cgo splits on spaces and treats a
// backslash as an escape everywhere, so such flags are double-quoted with
// backslashes and quotes escaped.
func quoteCgo(flag string) string {
	if !strings.ContainsAny(flag, " \t'\"\\") {
		return flag
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(flag) + `"`
}

type jsonDirective struct {
	SearchPath string `json:"search_path,omitempty"`
	Library    string `json:"library,omitempty"`
	Mode       *Mode  `json:"mode,omitempty"`
}

func (p *Plan) MarshalJSON() ([]byte, error) {
	out := make([]jsonDirective, len(p.directives))
	for i, d := range p.directives {
		if d.Kind == SearchPath {
			out[i].SearchPath = d.Path
			continue
		}
		mode := d.Mode
		out[i].Library, out[i].Mode = d.Name, &mode
	}
	return json.Marshal(out)
}
