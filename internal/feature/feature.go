// Package feature maps optional RocksDB features to build parameters and
// the bundled static libraries they pull in.
package feature

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goplus/rocksys/internal/platform"
)

// ErrUnknownFeature is returned by Parse for a name not in the table.
var ErrUnknownFeature = errors.New("unknown feature")

// Name identifies an optional feature.
type Name string

const (
	SSE      Name = "sse"
	LZ4      Name = "lz4"
	ZSTD     Name = "zstd"
	Zlib     Name = "zlib"
	BZip2    Name = "bzip2"
	RTTI     Name = "rtti"
	Jemalloc Name = "jemalloc"
)

// Param is a single build-tool define.
type Param struct {
	Key   string
	Value string
}

func (p Param) String() string { return p.Key + "=" + p.Value }

// Spec describes what enabling a feature does.
type Spec struct {
	Name   Name
	Params []Param

	// Lib is the bundled static library the feature links, if any.
	Lib string

	// Dep names the dependency whose DEP_<Dep>_ROOT locates Lib.
	Dep string

	// Arch restricts Params to one target architecture.
	Arch string
}

// Table lists the known features in the order their parameters and
// libraries are emitted.
var Table = []Spec{
	// USE_SSE=1 does not work with the CMake build; PORTABLE plus FORCE_SSE42 does.
	{Name: SSE, Arch: "x86_64", Params: []Param{{"PORTABLE", "ON"}, {"FORCE_SSE42", "ON"}}},
	{Name: LZ4, Params: []Param{{"WITH_LZ4", "ON"}}, Lib: "lz4", Dep: "LZ4"},
	{Name: ZSTD, Params: []Param{{"WITH_ZSTD", "ON"}}, Lib: "zstd", Dep: "ZSTD"},
	{Name: Zlib, Params: []Param{{"WITH_ZLIB", "ON"}}, Lib: "z", Dep: "Z"},
	{Name: BZip2, Params: []Param{{"WITH_BZIP2", "ON"}}, Lib: "bz2", Dep: "BZIP2"},
	{Name: RTTI, Params: []Param{{"USE_RTTI", "1"}}},
	{Name: Jemalloc, Params: []Param{{"WITH_JEMALLOC", "ON"}}, Lib: "jemalloc", Dep: "JEMALLOC"},
}

// Set is a set of enabled features.
type Set map[Name]bool

// Parse builds a Set from feature names, rejecting unknown ones.
func Parse(names []string) (Set, error) {
	return Default.Parse(names)
}

// Names returns the enabled feature names, sorted.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for n, on := range s {
		if on {
			names = append(names, string(n))
		}
	}
	sort.Strings(names)
	return names
}

// Dep is a bundled dependency required by an enabled feature.
type Dep struct {
	Name string
	Lib  string
}

// Mapping is the outcome of mapping a Set against a target.
type Mapping struct {
	Params     []Param
	StaticLibs []string
	Deps       []Dep
}

// Mapper maps feature sets using its Table.
type Mapper struct {
	Table []Spec
}

// Default maps against the package Table.
var Default = &Mapper{Table: Table}

// Map maps s for target t with the default table.
func Map(s Set, t platform.Triple) Mapping {
	return Default.Map(s, t)
}

func (m *Mapper) Parse(names []string) (Set, error) {
	s := make(Set, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, ok := m.lookup(Name(n)); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, n)
		}
		s[Name(n)] = true
	}
	return s, nil
}

func (m *Mapper) lookup(n Name) (Spec, bool) {
	for _, spec := range m.Table {
		if spec.Name == n {
			return spec, true
		}
	}
	return Spec{}, false
}

// Map walks the table in order. Features not in s contribute nothing: the
// build tool's own defaults apply. A library implied by several features is
// listed once.
func (m *Mapper) Map(s Set, t platform.Triple) Mapping {
	var out Mapping
	seenParam := make(map[string]bool)
	seenLib := make(map[string]bool)
	for _, spec := range m.Table {
		if !s[spec.Name] {
			continue
		}
		if spec.Arch == "" || spec.Arch == t.Arch {
			for _, p := range spec.Params {
				if !seenParam[p.Key] {
					seenParam[p.Key] = true
					out.Params = append(out.Params, p)
				}
			}
		}
		if spec.Lib != "" && !seenLib[spec.Lib] {
			seenLib[spec.Lib] = true
			out.StaticLibs = append(out.StaticLibs, spec.Lib)
			out.Deps = append(out.Deps, Dep{Name: spec.Dep, Lib: spec.Lib})
		}
	}
	return out
}
