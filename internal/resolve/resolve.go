// Package resolve decides how RocksDB is linked and produces its bindings.
//
// A run is linear: a pre-built override, or else a source build followed by
// the C++ runtime directives; then binding generation. The first failure
// ends the run; a failed build never falls back to the override path.
package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/rocksys/internal/bindgen"
	"github.com/goplus/rocksys/internal/build"
	"github.com/goplus/rocksys/internal/cxxrt"
	"github.com/goplus/rocksys/internal/env"
	"github.com/goplus/rocksys/internal/feature"
	"github.com/goplus/rocksys/internal/link"
	"github.com/goplus/rocksys/internal/override"
	"github.com/goplus/rocksys/internal/platform"
	"github.com/qiniu/x/log"
)

// Lib is the library prefix of the RocksDB environment keys.
const Lib = "ROCKSDB"

// Stage names the step a run failed in.
type Stage string

const (
	StageConfig   Stage = "config"
	StageBuild    Stage = "build"
	StageBindings Stage = "bindings"
	StageEmit     Stage = "emit"
)

// Error is the terminal failure of a run.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("resolve %s: %v", e.Stage, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

func fail(stage Stage, err error) error {
	return &Error{Stage: stage, Err: err}
}

// Path is how the library was acquired.
type Path int

const (
	OverridePath Path = iota
	SourcePath
)

func (p Path) String() string {
	if p == SourcePath {
		return "source"
	}
	return "override"
}

// Result is everything a successful run publishes.
type Result struct {
	Path     Path
	Target   platform.Triple
	Plan     *link.Plan
	Compiler platform.CompilerFamily
	Artifact *build.Artifact

	// Bindings is the directory holding the generated bindings.
	Bindings string
	// CgoFile carries the plan as a cgo preamble next to the bindings.
	CgoFile string

	SourceDir string
	OutDir    string
}

// Driver composes the resolution components. Tool and Generator are
// required; a nil Toolchain means the compiler named by the configuration.
type Driver struct {
	Tool      build.Tool
	Generator bindgen.Generator
	Toolchain platform.Toolchain
	Mapper    *feature.Mapper
}

// LoadConfig snapshots environ over the configuration file at path (see
// env.LoadFile). Its failures are config stage errors, like those of Run.
func LoadConfig(environ []string, path string, required bool) (*env.Config, error) {
	file, err := env.LoadFile(path, required)
	if err != nil {
		return nil, fail(StageConfig, err)
	}
	cfg, err := env.Snapshot(environ, file)
	if err != nil {
		return nil, fail(StageConfig, err)
	}
	return cfg, nil
}

// Run resolves cfg. Every returned error is an *Error.
func (d *Driver) Run(ctx context.Context, cfg *env.Config) (*Result, error) {
	mapper := d.Mapper
	if mapper == nil {
		mapper = feature.Default
	}
	features, err := mapper.Parse(cfg.Features)
	if err != nil {
		return nil, fail(StageConfig, err)
	}

	res := &Result{Target: cfg.Target, SourceDir: cfg.SourceDir, OutDir: cfg.OutDir}
	if plan, ok := override.Resolve(Lib, cfg); ok {
		log.Infof("resolve: using pre-built %s", strings.ToLower(Lib))
		res.Path, res.Plan = OverridePath, plan
	} else {
		res.Path = SourcePath
		if err := d.buildFromSource(ctx, cfg, mapper, features, res); err != nil {
			return nil, err
		}
	}

	if err := d.generate(ctx, cfg, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (d *Driver) buildFromSource(ctx context.Context, cfg *env.Config, mapper *feature.Mapper, features feature.Set, res *Result) error {
	mapping := mapper.Map(features, cfg.Target)

	var roots []string
	depLib := make(map[string]string)
	for _, dep := range mapping.Deps {
		if root, ok := cfg.Lookup("DEP_" + dep.Name + "_ROOT"); ok && root != "" {
			roots = append(roots, root)
			depLib[dep.Lib] = filepath.Join(root, "lib")
		}
	}

	req := &build.Request{
		SourceDir: cfg.SourceDir,
		OutDir:    cfg.OutDir,
		Target:    cfg.Target,
		Optimized: cfg.Optimized(),
		Params:    mapping.Params,
		CXXFlags:  cfg.CXXStdFlag(),
		DepRoots:  roots,

		Generator:     cfg.Generator,
		ToolchainFile: cfg.ToolchainFile,

		Matrix:  feature.NewMatrix(cfg.Target, cfg.Profile, features).String(),
		Rebuild: cfg.Rebuild,
	}
	art, err := build.NewBuilder(d.Tool).Build(ctx, req)
	if err != nil {
		return fail(StageBuild, err)
	}
	res.Artifact = art

	plan := link.NewPlan(link.Search(art.Dir), link.Lib(strings.ToLower(Lib), link.Static))
	for _, lib := range mapping.StaticLibs {
		if dir, ok := depLib[lib]; ok {
			plan.Add(link.Search(dir))
		}
		plan.Add(link.Lib(lib, link.Static))
	}

	tc := d.Toolchain
	if tc == nil {
		tc = platform.DefaultCompiler(cfg.Target, cfg.CXX)
	}
	res.Compiler = platform.ProbeCompiler(ctx, tc)
	plan.Add(cxxrt.Plan(ctx, cxxrt.Request{
		Target:    cfg.Target,
		Family:    res.Compiler,
		Toolchain: tc,
	}, cxxrt.Strategies(cfg.StaticRuntime))...)

	res.Plan = plan
	return nil
}

// IncludeDir is the directory holding rocksdb/c.h for cfg.
func IncludeDir(cfg *env.Config) string {
	if cfg.IncludeDir != "" {
		return cfg.IncludeDir
	}
	return filepath.Join(cfg.SourceDir, "include")
}

func (d *Driver) generate(ctx context.Context, cfg *env.Config, res *Result) error {
	include := IncludeDir(cfg)
	header := filepath.Join(include, "rocksdb", "c.h")
	out := filepath.Join(cfg.OutDir, "bindings")

	opts := bindgen.DefaultOptions()
	opts.IncludeDirs = []string{include}
	if err := bindgen.Generate(ctx, d.Generator, header, out, opts); err != nil {
		return fail(StageBindings, err)
	}
	res.Bindings = out

	res.CgoFile = filepath.Join(out, "link_"+opts.Package+".go")
	if err := os.WriteFile(res.CgoFile, res.Plan.CgoFile(opts.Package, cfg.Target), 0o644); err != nil {
		return fail(StageEmit, err)
	}
	return nil
}
