package build

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Output directory layout:
//
//	outDir/
//	  .cache.json          # build cache: maps key -> buildEntry
//	  .lock                # held while building
//	  <digest>/            # output root of one configuration
//	    build/             # build tool working dir, libraries land here
//	      Release/ Debug/  # Windows only
const cacheFile = ".cache.json"

// key identifies a build configuration: the matrix string plus a digest of
// everything else that changes the artifact.
type key struct {
	matrix string
	digest string
}

func (k key) String() string { return k.matrix + "@" + k.digest }

// dir is the output root name of the configuration.
func (k key) dir() string { return k.digest[:16] }

func cacheKey(req *Request, sourceDir string) key {
	h := sha256.New()
	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
	}
	write("matrix", req.Matrix, "target", req.Target.String(), "type", req.BuildType())
	write("source", sourceDir, "cxxflags", req.CXXFlags)
	write("generator", req.Generator, "toolchain", req.ToolchainFile)
	params := make([]string, len(req.Params))
	for i, p := range req.Params {
		params[i] = p.String()
	}
	sort.Strings(params)
	write("params", strings.Join(params, ";"))
	roots := append([]string(nil), req.DepRoots...)
	sort.Strings(roots)
	write("deps", strings.Join(roots, ";"))
	return key{matrix: req.Matrix, digest: hex.EncodeToString(h.Sum(nil))}
}

// buildEntry contains metadata about a single successful build.
type buildEntry struct {
	Dir       string    `json:"dir"`
	Matrix    string    `json:"matrix"`
	BuildTime time.Time `json:"build_time"`
}

// buildCache maps key strings to their build entries.
type buildCache struct {
	Cache map[string]*buildEntry `json:"cache"`
}

func (c *buildCache) get(k key) (*buildEntry, bool) {
	entry, ok := c.Cache[k.String()]
	return entry, ok
}

func (c *buildCache) set(k key, entry *buildEntry) {
	if c.Cache == nil {
		c.Cache = make(map[string]*buildEntry)
	}
	c.Cache[k.String()] = entry
}

// lookup returns the cached entry for k if its artifact dir still exists.
func (b *Builder) lookup(outDir string, k key) (*buildEntry, bool) {
	cache, err := loadCache(outDir)
	if err != nil {
		return nil, false
	}
	entry, ok := cache.get(k)
	if !ok {
		return nil, false
	}
	if _, err := os.Stat(entry.Dir); err != nil {
		return nil, false
	}
	return entry, true
}

func (b *Builder) record(outDir string, k key, dir string) error {
	cache, err := loadCache(outDir)
	if err != nil {
		cache = &buildCache{}
	}
	cache.set(k, &buildEntry{Dir: dir, Matrix: k.matrix, BuildTime: b.now()})
	return saveCache(outDir, cache)
}

// loadCache reads the cache file from outDir.
func loadCache(outDir string) (*buildCache, error) {
	data, err := os.ReadFile(filepath.Join(outDir, cacheFile))
	if err != nil {
		return nil, err
	}
	var cache buildCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

// saveCache writes the cache file to outDir.
func saveCache(outDir string, cache *buildCache) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, cacheFile), data, 0o644)
}
