package resolve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/goplus/rocksys/internal/bindgen"
	"github.com/goplus/rocksys/internal/build"
	"github.com/goplus/rocksys/internal/env"
	"github.com/goplus/rocksys/internal/feature"
	"github.com/goplus/rocksys/internal/platform"
)

type fixture struct {
	tool *fakeTool
	gen  *fakeGenerator
	cc   *fakeCompiler
	src  string
	out  string
}

func newFixture(t *testing.T) *fixture {
	tmp := t.TempDir()
	return &fixture{
		tool: &fakeTool{},
		gen:  &fakeGenerator{},
		cc:   &fakeCompiler{version: gccVersion},
		src:  checkout(tmp),
		out:  filepath.Join(tmp, "out"),
	}
}

func (f *fixture) driver() *Driver {
	return &Driver{Tool: f.tool, Generator: f.gen, Toolchain: f.cc}
}

func (f *fixture) config(t *testing.T, environ ...string) *env.Config {
	base := []string{
		"TARGET=x86_64-unknown-linux-gnu",
		"OUT_DIR=" + f.out,
		"ROCKSDB_SOURCE_DIR=" + f.src,
	}
	cfg, err := env.Snapshot(append(base, environ...), nil)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	return cfg
}

func TestRunOverride(t *testing.T) {
	f := newFixture(t)
	cfg := f.config(t, "ROCKSDB_LIB_DIR=/opt/rocksdb/lib", "ROCKSDB_STATIC=1", "ROCKSDB_FEATURES=lz4")

	res, err := f.driver().Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Path != OverridePath {
		t.Errorf("path = %v, want override", res.Path)
	}
	want := []string{"link-search=native=/opt/rocksdb/lib", "link-lib=static=rocksdb"}
	if got := res.Plan.Lines(); !reflect.DeepEqual(got, want) {
		t.Errorf("plan = %q, want %q", got, want)
	}
	if len(f.tool.calls) != 0 {
		t.Error("override still built from source")
	}
	if len(f.cc.args) != 0 {
		t.Errorf("override probed the compiler: %v", f.cc.args)
	}
	if f.gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", f.gen.calls)
	}
	data, err := os.ReadFile(res.CgoFile)
	if err != nil {
		t.Fatalf("cgo file: %v", err)
	}
	if !strings.Contains(string(data), "#cgo LDFLAGS: -L/opt/rocksdb/lib -l:librocksdb.a\n") {
		t.Errorf("cgo file =\n%s", data)
	}
}

func TestRunOverrideDynamic(t *testing.T) {
	f := newFixture(t)
	res, err := f.driver().Run(context.Background(), f.config(t, "ROCKSDB_LIB_DIR=/opt/rocksdb/lib"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"link-search=native=/opt/rocksdb/lib", "link-lib=dylib=rocksdb"}
	if got := res.Plan.Lines(); !reflect.DeepEqual(got, want) {
		t.Errorf("plan = %q, want %q", got, want)
	}
}

func TestRunForceCompile(t *testing.T) {
	f := newFixture(t)
	cfg := f.config(t, "ROCKSDB_COMPILE=1", "ROCKSDB_LIB_DIR=/opt/rocksdb/lib")
	res, err := f.driver().Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != SourcePath || len(f.tool.calls) != 1 {
		t.Errorf("path = %v with %d builds, want a source build", res.Path, len(f.tool.calls))
	}
}

func TestRunSourceBuild(t *testing.T) {
	f := newFixture(t)
	cfg := f.config(t, "ROCKSDB_FEATURES=lz4,zstd", "DEP_LZ4_ROOT=/deps/lz4", "PROFILE=release")

	res, err := f.driver().Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Path != SourcePath || res.Compiler != platform.GNU {
		t.Errorf("result = %+v", res)
	}
	want := []string{
		"link-search=native=" + res.Artifact.Dir,
		"link-lib=static=rocksdb",
		"link-search=native=" + filepath.Join("/deps/lz4", "lib"),
		"link-lib=static=lz4",
		"link-lib=static=zstd",
		"link-lib=dylib=stdc++",
	}
	if got := res.Plan.Lines(); !reflect.DeepEqual(got, want) {
		t.Errorf("plan =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}

	inv := f.tool.calls[0]
	if inv.BuildType != "Release" {
		t.Errorf("build type = %s, want Release", inv.BuildType)
	}
	if !reflect.DeepEqual(inv.DepRoots, []string{"/deps/lz4"}) {
		t.Errorf("dep roots = %v", inv.DepRoots)
	}
	wantParams := []feature.Param{{Key: "WITH_LZ4", Value: "ON"}, {Key: "WITH_ZSTD", Value: "ON"}}
	if !reflect.DeepEqual(inv.Params, wantParams) {
		t.Errorf("params = %v, want %v", inv.Params, wantParams)
	}
}

func TestRunStaticRuntime(t *testing.T) {
	f := newFixture(t)
	f.cc.archive = "/usr/lib/gcc/x86_64-linux-gnu/13/libstdc++.a"
	res, err := f.driver().Run(context.Background(), f.config(t, "ROCKSDB_STATIC_RUNTIME=1"))
	if err != nil {
		t.Fatal(err)
	}
	lines := res.Plan.Lines()
	tail := lines[len(lines)-2:]
	want := []string{"link-search=native=/usr/lib/gcc/x86_64-linux-gnu/13", "link-lib=static=stdc++"}
	if !reflect.DeepEqual(tail, want) {
		t.Errorf("runtime directives = %q, want %q", tail, want)
	}
}

func TestRunStaticRuntimeFallsBack(t *testing.T) {
	f := newFixture(t)
	res, err := f.driver().Run(context.Background(), f.config(t, "ROCKSDB_STATIC_RUNTIME=1"))
	if err != nil {
		t.Fatal(err)
	}
	lines := res.Plan.Lines()
	if last := lines[len(lines)-1]; last != "link-lib=dylib=stdc++" {
		t.Errorf("last directive = %s, want dynamic stdc++", last)
	}
}

func TestRunSSEOnlyOnX86(t *testing.T) {
	f := newFixture(t)
	if _, err := f.driver().Run(context.Background(), f.config(t, "TARGET=aarch64-unknown-linux-gnu", "ROCKSDB_FEATURES=sse")); err != nil {
		t.Fatal(err)
	}
	if params := f.tool.calls[0].Params; len(params) != 0 {
		t.Errorf("aarch64 params = %v, want none", params)
	}
}

func TestRunWindowsMSVC(t *testing.T) {
	f := newFixture(t)
	f.cc.version = ""
	res, err := f.driver().Run(context.Background(), f.config(t, "TARGET=x86_64-pc-windows-msvc"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(res.Artifact.Dir) != "Debug" {
		t.Errorf("artifact dir = %s, want Debug subdir", res.Artifact.Dir)
	}
	for _, d := range res.Plan.Libraries() {
		if d.Name != "rocksdb" {
			t.Errorf("unexpected library %s on windows", d)
		}
	}
}

func TestRunMissingSource(t *testing.T) {
	f := newFixture(t)
	cfg := f.config(t, "ROCKSDB_SOURCE_DIR="+filepath.Join(t.TempDir(), "absent"))
	_, err := f.driver().Run(context.Background(), cfg)

	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Stage != StageBuild {
		t.Fatalf("error = %v, want build stage error", err)
	}
	if !errors.Is(err, build.ErrMissingSource) {
		t.Errorf("error = %v, want ErrMissingSource", err)
	}
	if f.gen.calls != 0 {
		t.Error("bindings generated after a failed build")
	}
}

func TestRunExternalBuildFailure(t *testing.T) {
	f := newFixture(t)
	f.tool.err = errors.New("exit status 1")
	_, err := f.driver().Run(context.Background(), f.config(t))
	if !errors.Is(err, build.ErrExternalBuild) {
		t.Fatalf("error = %v, want ErrExternalBuild", err)
	}
	if len(f.tool.calls) != 1 {
		t.Errorf("build ran %d times, want 1", len(f.tool.calls))
	}
}

func TestRunUnknownFeature(t *testing.T) {
	f := newFixture(t)
	_, err := f.driver().Run(context.Background(), f.config(t, "ROCKSDB_FEATURES=snappy"))
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Stage != StageConfig || !errors.Is(err, feature.ErrUnknownFeature) {
		t.Fatalf("error = %v, want config stage ErrUnknownFeature", err)
	}
}

func TestRunBindings(t *testing.T) {
	f := newFixture(t)
	res, err := f.driver().Run(context.Background(), f.config(t))
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(f.src, "include", "rocksdb", "c.h"); f.gen.header != want {
		t.Errorf("header = %s, want %s", f.gen.header, want)
	}
	if f.gen.output != filepath.Join(f.out, "bindings") || res.Bindings != f.gen.output {
		t.Errorf("output = %s, bindings = %s", f.gen.output, res.Bindings)
	}
	if !f.gen.opts.SuppressDebug || f.gen.opts.IntegerAliasing != bindgen.Sized || f.gen.opts.BlockedTypes[0] != "max_align_t" {
		t.Errorf("options = %+v", f.gen.opts)
	}

	data, err := os.ReadFile(res.CgoFile)
	if err != nil {
		t.Fatalf("cgo file: %v", err)
	}
	if !strings.Contains(string(data), "#cgo LDFLAGS: -L") || !strings.Contains(string(data), "-l:librocksdb.a") {
		t.Errorf("cgo file =\n%s", data)
	}
}

type nopRunner struct{}

func (nopRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	return "", nil
}

func TestRunLinkFlagsEmittedOnce(t *testing.T) {
	f := newFixture(t)
	d := f.driver()
	d.Generator = &bindgen.CommandGenerator{Bin: "c-for-go", Runner: nopRunner{}}
	res, err := d.Run(context.Background(), f.config(t))
	if err != nil {
		t.Fatal(err)
	}

	manifest, err := os.ReadFile(filepath.Join(res.Bindings, "rocksdb.yml"))
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if strings.Contains(string(manifest), "LDFLAGS") || strings.Contains(string(manifest), "librocksdb") {
		t.Errorf("manifest carries link flags:\n%s", manifest)
	}
	if !strings.Contains(string(manifest), "rocksdb/c.h") {
		t.Errorf("manifest does not include rocksdb/c.h:\n%s", manifest)
	}

	cgo, err := os.ReadFile(res.CgoFile)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(cgo), "#cgo LDFLAGS:"); n != 1 {
		t.Errorf("cgo file has %d LDFLAGS lines, want 1:\n%s", n, cgo)
	}
}

func TestRunBindingsHeaderMissing(t *testing.T) {
	f := newFixture(t)
	cfg := f.config(t, "ROCKSDB_LIB_DIR=/opt/rocksdb/lib", "ROCKSDB_INCLUDE_DIR="+t.TempDir())
	_, err := f.driver().Run(context.Background(), cfg)
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Stage != StageBindings || !errors.Is(err, bindgen.ErrHeaderNotFound) {
		t.Fatalf("error = %v, want bindings stage ErrHeaderNotFound", err)
	}
}

func TestRunGeneratorFailure(t *testing.T) {
	f := newFixture(t)
	f.gen.err = errors.New("parse error")
	_, err := f.driver().Run(context.Background(), f.config(t))
	if !errors.Is(err, bindgen.ErrGeneration) {
		t.Fatalf("error = %v, want ErrGeneration", err)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		environ  []string
		path     string
		required bool
		want     error
	}{
		{"malformed target", []string{"TARGET=x86_64", "OUT_DIR=/o"}, "", false, platform.ErrMalformedTriple},
		{"missing required file", []string{"OUT_DIR=/o"}, filepath.Join(t.TempDir(), "rocksys.yaml"), true, os.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(tt.environ, tt.path, tt.required)
			var rerr *Error
			if !errors.As(err, &rerr) || rerr.Stage != StageConfig {
				t.Fatalf("error = %v, want config stage error", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rocksys.yaml")
	if err := os.WriteFile(path, []byte("features: [lz4]\nprofile: release\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig([]string{"OUT_DIR=/o", "PROFILE=bench"}, path, true)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Profile != "bench" || len(cfg.Features) != 1 || cfg.Features[0] != "lz4" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestIncludeDir(t *testing.T) {
	cfg, _ := env.Snapshot([]string{"OUT_DIR=/o", "ROCKSDB_SOURCE_DIR=/src"}, nil)
	if got := IncludeDir(cfg); got != filepath.Join("/src", "include") {
		t.Errorf("IncludeDir() = %s", got)
	}
	cfg, _ = env.Snapshot([]string{"OUT_DIR=/o", "ROCKSDB_INCLUDE_DIR=/usr/include"}, nil)
	if got := IncludeDir(cfg); got != "/usr/include" {
		t.Errorf("IncludeDir() = %s", got)
	}
}
