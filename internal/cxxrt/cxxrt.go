// Package cxxrt decides how the C++ standard runtime is linked.
//
// Strategies are tried in order; the first one that applies wins. The
// static strategy is best effort and never fails a resolution.
package cxxrt

import (
	"context"
	"path/filepath"

	"github.com/goplus/rocksys/internal/link"
	"github.com/goplus/rocksys/internal/platform"
	"github.com/qiniu/x/log"
)

// Runtime library names.
const (
	LibCXX    = "c++"
	LibStdCXX = "stdc++"
)

// Request is what a strategy decides from.
type Request struct {
	Target    platform.Triple
	Family    platform.CompilerFamily
	Toolchain platform.Toolchain
}

// Strategy proposes runtime directives. ok is false when the strategy does
// not apply to the request.
type Strategy interface {
	Name() string
	Plan(ctx context.Context, req Request) (ds []link.Directive, ok bool)
}

// Strategies returns the ordered strategies. Static linking of the
// runtime is only attempted when static is set.
func Strategies(static bool) []Strategy {
	if static {
		return []Strategy{StaticStrategy{}, DynamicStrategy{}}
	}
	return []Strategy{DynamicStrategy{}}
}

// Plan returns the directives of the first applicable strategy. An empty
// result means the toolchain links the runtime itself.
func Plan(ctx context.Context, req Request, strategies []Strategy) []link.Directive {
	for _, s := range strategies {
		if ds, ok := s.Plan(ctx, req); ok {
			log.Debugf("cxxrt: %s strategy for %s (%s)", s.Name(), req.Target, req.Family)
			return ds
		}
	}
	return nil
}

// DynamicStrategy links the runtime shared library by name.
type DynamicStrategy struct{}

func (DynamicStrategy) Name() string { return "dynamic" }

// Plan always applies. Windows gets no directive: the toolchain supplies
// its runtime.
func (DynamicStrategy) Plan(_ context.Context, req Request) ([]link.Directive, bool) {
	if name := DynamicName(req.Target); name != "" {
		return []link.Directive{link.Lib(name, link.Dynamic)}, true
	}
	return nil, true
}

// DynamicName is the runtime library linked dynamically on t, or "".
func DynamicName(t platform.Triple) string {
	switch t.Family() {
	case platform.Darwin, platform.BSD:
		return LibCXX
	case platform.Linux:
		return LibStdCXX
	}
	return ""
}

// StaticStrategy asks the compiler where its runtime archive lives and
// links that archive statically.
type StaticStrategy struct{}

func (StaticStrategy) Name() string { return "static" }

// archive returns the runtime archive and library name for a compiler family.
func archive(f platform.CompilerFamily) (file, lib string, ok bool) {
	switch f {
	case platform.GNU:
		return "libstdc++.a", LibStdCXX, true
	case platform.Clang:
		return "libc++.a", LibCXX, true
	}
	return "", "", false
}

func (StaticStrategy) Plan(ctx context.Context, req Request) ([]link.Directive, bool) {
	file, lib, ok := archive(req.Family)
	if !ok || req.Toolchain == nil || req.Target.IsWindows() {
		return nil, false
	}
	path, err := req.Toolchain.Run(ctx, "-print-file-name="+file)
	if err != nil {
		log.Debugf("cxxrt: static probe failed: %v", err)
		return nil, false
	}
	// gcc echoes the bare file name back when it has no such archive
	if !filepath.IsAbs(path) {
		log.Debugf("cxxrt: %s not found by %s", file, req.Toolchain.Path())
		return nil, false
	}
	return []link.Directive{
		link.Search(filepath.Dir(path)),
		link.Lib(lib, link.Static),
	}, true
}
