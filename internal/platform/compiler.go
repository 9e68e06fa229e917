package platform

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/qiniu/x/log"
)

// CompilerFamily is the flavour of a C++ compiler driver. It is derived from
// probing the compiler, not from the triple: clang can pose as gcc.
type CompilerFamily int

const (
	Other CompilerFamily = iota
	GNU
	Clang
	MSVC
)

func (f CompilerFamily) String() string {
	switch f {
	case GNU:
		return "gnu"
	case Clang:
		return "clang"
	case MSVC:
		return "msvc"
	}
	return "other"
}

// Toolchain is a handle on a C++ compiler driver.
type Toolchain interface {
	// Path is the compiler executable as configured (name or absolute path).
	Path() string
	// Run invokes the compiler and returns its trimmed standard output.
	Run(ctx context.Context, args ...string) (string, error)
}

// Compiler runs a compiler executable found on PATH.
type Compiler struct {
	Cmd string
}

// DefaultCompiler returns the conventional C++ driver for t when cxx is empty.
func DefaultCompiler(t Triple, cxx string) *Compiler {
	if cxx == "" {
		cxx = "c++"
		if t.IsMSVC() {
			cxx = "cl.exe"
		}
	}
	return &Compiler{Cmd: cxx}
}

func (c *Compiler) Path() string { return c.Cmd }

func (c *Compiler) Run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Cmd, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", err
	}
	// some drivers (cl.exe) print their banner on stderr
	out := stdout.String()
	if out == "" {
		out = stderr.String()
	}
	return strings.TrimSpace(out), nil
}

// ProbeCompiler classifies tc. It never fails: anything it cannot identify
// is Other.
func ProbeCompiler(ctx context.Context, tc Toolchain) CompilerFamily {
	if tc == nil {
		return Other
	}
	name := strings.ToLower(filepath.Base(tc.Path()))
	name = strings.TrimSuffix(name, ".exe")
	switch name {
	case "cl", "clang-cl":
		return MSVC
	}
	out, err := tc.Run(ctx, "--version")
	if err != nil {
		log.Debugf("probe %s: %v", tc.Path(), err)
		return Other
	}
	return familyFromVersion(out)
}

func familyFromVersion(out string) CompilerFamily {
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "clang"):
		return Clang
	case strings.Contains(lower, "microsoft"):
		return MSVC
	case strings.Contains(lower, "free software foundation"),
		strings.Contains(lower, "gcc"), strings.Contains(lower, "g++"):
		return GNU
	}
	return Other
}
