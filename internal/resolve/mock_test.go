package resolve

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/rocksys/internal/bindgen"
	"github.com/goplus/rocksys/internal/build"
)

// fakeTool implements build.Tool, leaving a static library in BuildDir.
type fakeTool struct {
	calls []build.Invocation
	err   error
}

func (f *fakeTool) Build(ctx context.Context, inv build.Invocation) error {
	f.calls = append(f.calls, inv)
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(inv.BuildDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(inv.BuildDir, "librocksdb.a"), []byte("!<arch>\n"), 0o644)
}

// fakeGenerator implements bindgen.Generator and records its inputs.
type fakeGenerator struct {
	header string
	output string
	opts   bindgen.Options
	calls  int
	err    error
}

func (f *fakeGenerator) Generate(ctx context.Context, header, output string, opts bindgen.Options) error {
	f.calls++
	f.header, f.output, f.opts = header, output, opts
	return f.err
}

// fakeCompiler implements platform.Toolchain. version answers --version,
// archive answers -print-file-name.
type fakeCompiler struct {
	version string
	archive string
	args    []string
}

func (f *fakeCompiler) Path() string { return "c++" }

func (f *fakeCompiler) Run(ctx context.Context, args ...string) (string, error) {
	f.args = append(f.args, args...)
	if len(args) == 1 && strings.HasPrefix(args[0], "-print-file-name=") {
		if f.archive == "" {
			return strings.TrimPrefix(args[0], "-print-file-name="), nil
		}
		return f.archive, nil
	}
	return f.version, nil
}

const gccVersion = "c++ (GCC) 13.2.1 20230801\nCopyright (C) 2023 Free Software Foundation, Inc.\n"

// checkout creates a RocksDB source tree with its C header.
func checkout(dir string) string {
	src := filepath.Join(dir, "rocksdb")
	inc := filepath.Join(src, "include", "rocksdb")
	os.MkdirAll(inc, 0o755)
	os.WriteFile(filepath.Join(src, "CMakeLists.txt"), []byte("project(rocksdb)\n"), 0o644)
	os.WriteFile(filepath.Join(inc, "c.h"), []byte("typedef struct rocksdb_t rocksdb_t;\n"), 0o644)
	return src
}
