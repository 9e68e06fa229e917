package build

import (
	"context"
	"io"
	"os"

	"github.com/goplus/rocksys/x/cmake"
)

// BuildTarget is the only CMake target built from the RocksDB tree.
const BuildTarget = "rocksdb"

// CMakeTool builds RocksDB with cmake.
type CMakeTool struct {
	// Bin is the cmake executable; empty means "cmake".
	Bin string

	// Stdout and Stderr receive cmake output; nil discards it.
	Stdout, Stderr io.Writer

	// Runner replaces process execution, for tests.
	Runner cmake.Runner
}

func (t *CMakeTool) Build(ctx context.Context, inv Invocation) error {
	c := cmake.New(inv.SourceDir, inv.BuildDir)
	c.Bin(t.Bin)
	if t.Runner != nil {
		c.Runner(t.Runner)
	}
	c.Output(orDiscard(t.Stdout), orDiscard(t.Stderr))
	if err := c.CheckVersion(ctx); err != nil {
		return err
	}

	c.BuildType(inv.BuildType)
	c.Generator(inv.Generator)
	c.Toolchain(inv.ToolchainFile)
	c.Target(BuildTarget)
	c.Verbose(true)
	c.DefineBool("WITH_TESTS", false)
	c.DefineBool("WITH_TOOLS", false)
	for _, p := range inv.Params {
		switch p.Value {
		case "ON":
			c.DefineBool(p.Key, true)
		case "OFF":
			c.DefineBool(p.Key, false)
		default:
			c.Define(p.Key, p.Value)
		}
	}
	if inv.CXXFlags != "" {
		c.Define("CMAKE_CXX_FLAGS", inv.CXXFlags)
	}
	for _, root := range inv.DepRoots {
		c.Use(root)
	}

	if err := c.Configure(ctx); err != nil {
		return err
	}
	return c.Build(ctx)
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

var _ Tool = (*CMakeTool)(nil)

// VerboseTool returns a CMakeTool streaming its output to standard error,
// leaving standard output to the resolution result.
func VerboseTool(bin string) *CMakeTool {
	return &CMakeTool{Bin: bin, Stdout: os.Stderr, Stderr: os.Stderr}
}
