// Package cmake wraps the cmake configure/build workflow.
package cmake

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// MinVersion is the oldest cmake able to configure RocksDB.
const MinVersion = "v3.10.0"

type defineValue struct {
	value    string
	typeName string
}

// Runner executes one cmake invocation. env holds KEY=VALUE pairs added to
// the inherited environment.
type Runner interface {
	Run(ctx context.Context, name string, args, env []string, stdout, stderr io.Writer) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args, env []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	return cmd.Run()
}

// CMake drives CMake-based builds.
type CMake struct {
	bin       string
	sourceDir string
	buildDir  string
	generator string
	buildType string
	toolchain string
	target    string
	verbose   bool
	defines   map[string]defineValue
	paths     map[string][]string
	runner    Runner
	stdout    io.Writer
	stderr    io.Writer
}

// New returns a ready-to-use CMake.
func New(sourceDir, buildDir string) *CMake {
	return &CMake{
		bin:       "cmake",
		sourceDir: sourceDir,
		buildDir:  buildDir,
		defines:   make(map[string]defineValue),
		paths:     make(map[string][]string),
		runner:    execRunner{},
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
}

// Bin overrides the cmake executable.
func (c *CMake) Bin(path string) {
	if path != "" {
		c.bin = path
	}
}

// Runner replaces the process runner, mostly for tests.
func (c *CMake) Runner(r Runner) { c.runner = r }

// Output redirects the output of cmake subprocesses.
func (c *CMake) Output(stdout, stderr io.Writer) { c.stdout, c.stderr = stdout, stderr }

// Generator sets the CMake generator (e.g. "Ninja", "Unix Makefiles").
func (c *CMake) Generator(name string) { c.generator = name }

// BuildType sets CMAKE_BUILD_TYPE (e.g. "Release", "Debug").
func (c *CMake) BuildType(name string) { c.buildType = name }

// Toolchain sets CMAKE_TOOLCHAIN_FILE.
func (c *CMake) Toolchain(path string) { c.toolchain = path }

// Target restricts Build to one target.
func (c *CMake) Target(name string) { c.target = name }

// Verbose makes Build print every compiler command.
func (c *CMake) Verbose(v bool) { c.verbose = v }

// Define adds a -D<key>:STRING=<value> definition.
func (c *CMake) Define(key, value string) {
	c.defines[key] = defineValue{value: value, typeName: "STRING"}
}

// DefineBool adds a -D<key>:BOOL=ON/OFF definition.
func (c *CMake) DefineBool(key string, value bool) {
	v := "OFF"
	if value {
		v = "ON"
	}
	c.defines[key] = defineValue{value: v, typeName: "BOOL"}
}

// Use makes the dependency installed at root visible to the configure step.
// Unlike a process-wide setenv, the paths only reach cmake subprocesses.
func (c *CMake) Use(root string) {
	includeDir := filepath.Join(root, "include")
	libDir := filepath.Join(root, "lib")
	pkgconfigDir := filepath.Join(libDir, "pkgconfig")

	if _, err := os.Stat(pkgconfigDir); err == nil {
		c.prependPath("PKG_CONFIG_PATH", pkgconfigDir)
	}
	c.prependPath("CMAKE_PREFIX_PATH", root)
	if _, err := os.Stat(includeDir); err == nil {
		c.prependPath("CMAKE_INCLUDE_PATH", includeDir)
	}
	if _, err := os.Stat(libDir); err == nil {
		c.prependPath("CMAKE_LIBRARY_PATH", libDir)
	}
}

// Version returns the semantic version reported by "cmake --version".
func (c *CMake) Version(ctx context.Context) (string, error) {
	var out strings.Builder
	if err := c.runner.Run(ctx, c.bin, []string{"--version"}, nil, &out, io.Discard); err != nil {
		return "", err
	}
	return parseVersion(out.String())
}

func parseVersion(out string) (string, error) {
	// cmake version 3.27.4
	first, _, _ := strings.Cut(out, "\n")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return "", fmt.Errorf("cmake: cannot parse version from %q", out)
	}
	raw := fields[len(fields)-1]
	// release candidates print 3.28.0-rc1
	v := "v" + raw
	if !semver.IsValid(v) {
		return "", fmt.Errorf("cmake: invalid version %q", raw)
	}
	return v, nil
}

// CheckVersion fails when cmake is older than MinVersion.
func (c *CMake) CheckVersion(ctx context.Context) error {
	v, err := c.Version(ctx)
	if err != nil {
		return err
	}
	if semver.Compare(v, MinVersion) < 0 {
		return fmt.Errorf("cmake %s is older than required %s", v, MinVersion)
	}
	return nil
}

// Configure runs "cmake -S <source> -B <build>" with all configured options.
// Extra args are appended at the end.
func (c *CMake) Configure(ctx context.Context, args ...string) error {
	if err := os.MkdirAll(c.buildDir, 0o755); err != nil {
		return err
	}
	cmakeArgs := []string{"-S", c.sourceDir, "-B", c.buildDir}
	if c.generator != "" {
		cmakeArgs = append(cmakeArgs, "-G", c.generator)
	}
	if c.toolchain != "" {
		c.Define("CMAKE_TOOLCHAIN_FILE", c.toolchain)
	}
	if c.buildType != "" {
		c.Define("CMAKE_BUILD_TYPE", c.buildType)
	}
	cmakeArgs = append(cmakeArgs, c.definesArgs()...)
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(ctx, cmakeArgs)
}

// Build runs "cmake --build <build>" with optional extra arguments.
func (c *CMake) Build(ctx context.Context, args ...string) error {
	cmakeArgs := []string{"--build", c.buildDir}
	if c.buildType != "" {
		cmakeArgs = append(cmakeArgs, "--config", c.buildType)
	}
	if c.target != "" {
		cmakeArgs = append(cmakeArgs, "--target", c.target)
	}
	if c.verbose {
		cmakeArgs = append(cmakeArgs, "--verbose")
	}
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(ctx, cmakeArgs)
}

func (c *CMake) run(ctx context.Context, args []string) error {
	return c.runner.Run(ctx, c.bin, args, c.environ(), c.stdout, c.stderr)
}

func (c *CMake) definesArgs() []string {
	if len(c.defines) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.defines))
	for k := range c.defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		d := c.defines[k]
		args = append(args, "-D"+k+":"+d.typeName+"="+d.value)
	}
	return args
}

// environ renders the path variables, each prepended to its inherited value.
func (c *CMake) environ() []string {
	if len(c.paths) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.paths))
	for k := range c.paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		vals := c.paths[k]
		if cur := os.Getenv(k); cur != "" {
			vals = append(vals[:len(vals):len(vals)], cur)
		}
		env = append(env, k+"="+strings.Join(vals, string(os.PathListSeparator)))
	}
	return env
}

// prependPath records value ahead of earlier values of key.
func (c *CMake) prependPath(key, value string) {
	c.paths[key] = append([]string{value}, c.paths[key]...)
}
