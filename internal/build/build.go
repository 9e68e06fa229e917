// Package build compiles the vendored RocksDB sources with an external
// build tool and caches the resulting artifact directory.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goplus/rocksys/internal/feature"
	"github.com/goplus/rocksys/internal/platform"
	"github.com/qiniu/x/log"
)

var (
	// ErrMissingSource reports an absent or empty vendored source tree.
	ErrMissingSource = errors.New("vendored source tree is missing")

	// ErrExternalBuild wraps a failure reported by the build tool.
	ErrExternalBuild = errors.New("external build failed")
)

// FetchHint is the remediation printed with ErrMissingSource.
const FetchHint = "did you forget to pull the submodules? Try `git submodule update --init --recursive`"

// Tool is the external build tool. Build returns once the tool has exited.
type Tool interface {
	Build(ctx context.Context, inv Invocation) error
}

// Invocation is the parameter set handed to a Tool.
type Invocation struct {
	SourceDir string
	BuildDir  string
	BuildType string
	Params    []feature.Param
	CXXFlags  string

	// DepRoots are install prefixes of bundled dependencies.
	DepRoots []string

	Generator     string
	ToolchainFile string
}

// Request describes one source build.
type Request struct {
	SourceDir string
	OutDir    string
	Target    platform.Triple
	Optimized bool
	Params    []feature.Param
	CXXFlags  string
	DepRoots  []string

	// Generator and ToolchainFile are passed to the build tool when set.
	Generator     string
	ToolchainFile string

	// Matrix names the configuration; it prefixes the cache key.
	Matrix string

	// Rebuild ignores any cached artifact.
	Rebuild bool
}

// BuildType is the build tool profile for the request.
func (r *Request) BuildType() string {
	if r.Optimized {
		return "Release"
	}
	return "Debug"
}

// Artifact is the output of a build. Its content is never inspected.
type Artifact struct {
	// Dir holds the built libraries.
	Dir string
	// Root is the build tool's output root for this configuration.
	Root     string
	CacheHit bool
}

// Builder runs source builds.
type Builder struct {
	tool Tool
	now  func() time.Time
}

// NewBuilder returns a Builder invoking tool.
func NewBuilder(tool Tool) *Builder {
	return &Builder{tool: tool, now: time.Now}
}

// Build compiles req.SourceDir unless an artifact for the same
// configuration is cached. A tool failure is returned as is, wrapped in
// ErrExternalBuild; it is never retried.
func (b *Builder) Build(ctx context.Context, req *Request) (*Artifact, error) {
	if err := checkSource(req.SourceDir); err != nil {
		return nil, err
	}
	sourceDir, err := filepath.Abs(req.SourceDir)
	if err != nil {
		return nil, err
	}
	k := cacheKey(req, sourceDir)
	root := filepath.Join(req.OutDir, k.dir())
	buildDir := filepath.Join(root, "build")
	art := &Artifact{Dir: artifactDir(buildDir, req), Root: root}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	// one lock per output dir: the cache file is shared by its configurations
	unlock, err := lockDir(req.OutDir)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", req.OutDir, err)
	}
	defer unlock()

	// checked after acquiring the lock: another resolution may have built it
	if !req.Rebuild {
		if entry, ok := b.lookup(req.OutDir, k); ok {
			log.Debugf("build: cache hit %s (built %s)", k, entry.BuildTime.Format(time.RFC3339))
			art.CacheHit = true
			return art, nil
		}
	}

	inv := Invocation{
		SourceDir: sourceDir,
		BuildDir:  buildDir,
		BuildType: req.BuildType(),
		Params:    req.Params,
		CXXFlags:  req.CXXFlags,
		DepRoots:  req.DepRoots,

		Generator:     req.Generator,
		ToolchainFile: req.ToolchainFile,
	}
	log.Infof("build: compiling %s for %s (%s)", sourceDir, req.Target, inv.BuildType)
	if err := b.tool.Build(ctx, inv); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalBuild, err)
	}

	if err := b.record(req.OutDir, k, art.Dir); err != nil {
		log.Warnf("build: cannot save cache: %v", err)
	}
	return art, nil
}

// checkSource fails with ErrMissingSource when dir does not exist, is not
// a directory or is empty: each means the vendored sources were never fetched.
func checkSource(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: no source directory configured; %s", ErrMissingSource, FetchHint)
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory; %s", ErrMissingSource, dir, FetchHint)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s does not exist; %s", ErrMissingSource, dir, FetchHint)
		}
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: the `%s` directory is empty, %s", ErrMissingSource, dir, FetchHint)
	}
	return nil
}

// artifactDir is where the libraries land inside buildDir. Multi-config
// generators add a per-profile subdirectory.
func artifactDir(buildDir string, req *Request) string {
	if multiConfig(req) {
		return filepath.Join(buildDir, req.BuildType())
	}
	return buildDir
}

// multiConfig reports whether the generator of req builds every profile
// into its own subdirectory. cmake defaults to Visual Studio on Windows.
func multiConfig(req *Request) bool {
	switch g := req.Generator; {
	case g == "":
		return req.Target.IsWindows()
	case strings.HasPrefix(g, "Visual Studio"), g == "Xcode", g == "Ninja Multi-Config":
		return true
	}
	return false
}
