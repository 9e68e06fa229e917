// Package env snapshots the process configuration a resolution runs with.
//
// Every component reads the same frozen Config: nothing consults os.Getenv
// after Snapshot returns.
package env

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goplus/rocksys/internal/platform"
)

// Environment keys.
const (
	KeyTarget        = "TARGET"
	KeyOutDir        = "OUT_DIR"
	KeyProfile       = "PROFILE"
	KeySourceDir     = "ROCKSDB_SOURCE_DIR"
	KeyIncludeDir    = "ROCKSDB_INCLUDE_DIR"
	KeyCXXStd        = "ROCKSDB_CXX_STD"
	KeyFeatures      = "ROCKSDB_FEATURES"
	KeyFeaturePrefix = "ROCKSDB_FEATURE_"
	KeyStaticRuntime = "ROCKSDB_STATIC_RUNTIME"
	KeyRebuild       = "ROCKSDB_REBUILD"
	KeyBindgen       = "ROCKSDB_BINDGEN"
	KeyCXX           = "CXX"
	KeyCMake         = "CMAKE"
	KeyGenerator     = "CMAKE_GENERATOR"
	KeyToolchainFile = "CMAKE_TOOLCHAIN_FILE"
)

const (
	defaultSourceDir = "rocksdb"
	defaultProfile   = "debug"
)

// Lookuper resolves a single configuration key.
type Lookuper interface {
	Lookup(key string) (string, bool)
}

// Map is a Lookuper over a plain map.
type Map map[string]string

func (m Map) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Truthy reports whether v is "1" or, ignoring case, "true".
func Truthy(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

// Config is the immutable configuration of one resolution run.
type Config struct {
	vars map[string]string

	Target     platform.Triple
	OutDir     string
	SourceDir  string
	IncludeDir string
	Profile    string
	CXXStd     string
	CXX        string
	CMake      string
	Bindgen    string

	// Generator and ToolchainFile configure the CMake build; empty means
	// cmake's own default.
	Generator     string
	ToolchainFile string

	// Features holds the selected feature names, sorted and unique.
	Features []string

	StaticRuntime bool
	Rebuild       bool
}

// Lookup reads key from the snapshot, so Config satisfies Lookuper.
func (c *Config) Lookup(key string) (string, bool) {
	v, ok := c.vars[key]
	return v, ok
}

// Optimized reports whether the profile builds optimized artifacts.
func (c *Config) Optimized() bool {
	switch c.Profile {
	case "release", "bench":
		return true
	}
	return false
}

// CXXStdFlag returns the C++ dialect as a compiler flag, or "" when unset.
func (c *Config) CXXStdFlag() string {
	return NormalizeCXXStd(c.CXXStd)
}

// NormalizeCXXStd prefixes v with "-std=" unless it already has it.
func NormalizeCXXStd(v string) string {
	if v == "" || strings.HasPrefix(v, "-std=") {
		return v
	}
	return "-std=" + v
}

// Snapshot freezes environ (KEY=VALUE entries, later entries win) layered
// over the optional file configuration.
func Snapshot(environ []string, file *File) (*Config, error) {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			vars[k] = v
		}
	}
	if file == nil {
		file = &File{}
	}
	c := &Config{vars: vars}

	get := func(key, fallback string) string {
		if v, ok := vars[key]; ok && v != "" {
			return v
		}
		return fallback
	}

	if s, ok := vars[KeyTarget]; ok && s != "" {
		t, err := platform.ParseTriple(s)
		if err != nil {
			return nil, err
		}
		c.Target = t
	} else if file.Target != "" {
		t, err := platform.ParseTriple(file.Target)
		if err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		c.Target = t
	} else {
		c.Target = platform.Host()
	}

	c.SourceDir = get(KeySourceDir, orDefault(file.SourceDir, defaultSourceDir))
	c.IncludeDir = get(KeyIncludeDir, file.IncludeDir)
	c.Profile = get(KeyProfile, orDefault(file.Profile, defaultProfile))
	c.CXXStd = get(KeyCXXStd, file.CXXStd)
	c.CXX = get(KeyCXX, "")
	c.CMake = get(KeyCMake, "cmake")
	c.Bindgen = get(KeyBindgen, orDefault(file.Bindgen, "c-for-go"))
	c.Generator = get(KeyGenerator, file.Generator)
	c.ToolchainFile = get(KeyToolchainFile, file.ToolchainFile)
	c.StaticRuntime = file.StaticRuntime
	if v, ok := vars[KeyStaticRuntime]; ok {
		c.StaticRuntime = Truthy(v)
	}
	c.Rebuild = Truthy(vars[KeyRebuild])

	outDir := get(KeyOutDir, file.OutDir)
	if outDir == "" {
		work, err := WorkDir()
		if err != nil {
			return nil, err
		}
		outDir = filepath.Join(work, "out", c.Target.String())
	}
	c.OutDir = outDir

	c.Features = selectFeatures(vars, file.Features)
	return c, nil
}

func selectFeatures(vars map[string]string, fromFile []string) []string {
	set := make(map[string]bool)
	for _, f := range fromFile {
		set[strings.ToLower(strings.TrimSpace(f))] = true
	}
	if list, ok := vars[KeyFeatures]; ok {
		for _, f := range strings.Split(list, ",") {
			if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
				set[f] = true
			}
		}
	}
	for k, v := range vars {
		name, ok := strings.CutPrefix(k, KeyFeaturePrefix)
		if !ok || name == "" {
			continue
		}
		set[strings.ToLower(name)] = Truthy(v)
	}
	var names []string
	for name, on := range set {
		if on && name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// WorkDir returns the per-user rocksys cache root.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".rocksys"), nil
}
