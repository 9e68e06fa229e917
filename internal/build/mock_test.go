package build

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// fakeTool implements Tool, creating a fake static library in BuildDir.
type fakeTool struct {
	calls []Invocation
	err   error
}

func (f *fakeTool) Build(ctx context.Context, inv Invocation) error {
	f.calls = append(f.calls, inv)
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(inv.BuildDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(inv.BuildDir, "librocksdb.a"), []byte("!<arch>\n"), 0o644)
}

type runnerCall struct {
	args []string
	env  []string
}

// fakeRunner implements cmake.Runner without spawning processes.
type fakeRunner struct {
	calls []runnerCall
}

func (f *fakeRunner) Run(ctx context.Context, name string, args, env []string, stdout, stderr io.Writer) error {
	f.calls = append(f.calls, runnerCall{args, env})
	if len(args) == 1 && args[0] == "--version" {
		io.WriteString(stdout, "cmake version 3.28.3\n")
	}
	return nil
}

// sourceTree creates a non-empty fake RocksDB checkout.
func sourceTree(dir string) string {
	src := filepath.Join(dir, "rocksdb")
	os.MkdirAll(src, 0o755)
	os.WriteFile(filepath.Join(src, "CMakeLists.txt"), []byte("project(rocksdb)\n"), 0o644)
	return src
}
