package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goplus/rocksys/internal/bindgen"
	"github.com/goplus/rocksys/internal/build"
	"github.com/goplus/rocksys/internal/env"
	"github.com/goplus/rocksys/internal/link"
	"github.com/goplus/rocksys/internal/resolve"
	"github.com/spf13/cobra"
)

var (
	resolveFeatures      []string
	resolveTarget        string
	resolveProfile       string
	resolveSource        string
	resolveOut           string
	resolveFormat        string
	resolveRebuild       bool
	resolveStaticRuntime bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve how RocksDB is linked and generate its bindings",
	Long: `Resolve uses the pre-built library named by ROCKSDB_LIB_DIR, or builds the
vendored RocksDB sources with CMake, then generates the cgo bindings.
Flags override the matching environment variables.`,
	Args: cobra.NoArgs,
	RunE: runResolve,
}

func init() {
	flags := resolveCmd.Flags()
	flags.StringSliceVarP(&resolveFeatures, "features", "f", nil, "Optional features to enable (sse, lz4, zstd, zlib, bzip2, rtti, jemalloc)")
	flags.StringVarP(&resolveTarget, "target", "t", "", "Target triple (default: host)")
	flags.StringVarP(&resolveProfile, "profile", "p", "", "Build profile (debug, release, bench)")
	flags.StringVarP(&resolveSource, "source", "s", "", "RocksDB source directory")
	flags.StringVarP(&resolveOut, "out", "o", "", "Output directory")
	flags.StringVar(&resolveFormat, "format", "lines", "Output format: lines, cgo or json")
	flags.BoolVar(&resolveRebuild, "rebuild", false, "Ignore cached builds")
	flags.BoolVar(&resolveStaticRuntime, "static-runtime", false, "Link the C++ runtime statically when possible")
	rootCmd.AddCommand(resolveCmd)
}

var newGenerator = func(bin string) bindgen.Generator {
	return bindgen.NewCommandGenerator(bin)
}

func runResolve(cmd *cobra.Command, args []string) error {
	switch resolveFormat {
	case "lines", "cgo", "json":
	default:
		return fmt.Errorf("unknown format %q", resolveFormat)
	}
	cfg, err := loadConfig(resolveEnviron(cmd))
	if err != nil {
		return err
	}

	tool := &build.CMakeTool{Bin: cfg.CMake}
	if verbose {
		tool = build.VerboseTool(cfg.CMake)
	}
	d := &resolve.Driver{
		Tool:      tool,
		Generator: newGenerator(cfg.Bindgen),
	}
	res, err := d.Run(context.Background(), cfg)
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), res, resolveFormat)
}

// resolveEnviron turns the flags set on cmd into environment entries.
func resolveEnviron(cmd *cobra.Command) []string {
	var environ []string
	set := func(flag, key, value string) {
		if cmd.Flags().Changed(flag) {
			environ = append(environ, key+"="+value)
		}
	}
	set("features", env.KeyFeatures, strings.Join(resolveFeatures, ","))
	set("target", env.KeyTarget, resolveTarget)
	set("profile", env.KeyProfile, resolveProfile)
	set("source", env.KeySourceDir, resolveSource)
	set("out", env.KeyOutDir, resolveOut)
	set("rebuild", env.KeyRebuild, strconv.FormatBool(resolveRebuild))
	set("static-runtime", env.KeyStaticRuntime, strconv.FormatBool(resolveStaticRuntime))
	return environ
}

type jsonResult struct {
	Path      string     `json:"path"`
	Target    string     `json:"target"`
	Compiler  string     `json:"compiler,omitempty"`
	CacheHit  bool       `json:"cache_hit"`
	Plan      *link.Plan `json:"plan"`
	Bindings  string     `json:"bindings"`
	CgoFile   string     `json:"cgo_file"`
	SourceDir string     `json:"source_dir"`
	OutDir    string     `json:"out_dir"`
}

func writeResult(w io.Writer, res *resolve.Result, format string) error {
	switch format {
	case "cgo":
		_, err := w.Write(res.Plan.CgoFile("rocksdb", res.Target))
		return err
	case "json":
		out := jsonResult{
			Path:      res.Path.String(),
			Target:    res.Target.String(),
			Plan:      res.Plan,
			Bindings:  res.Bindings,
			CgoFile:   res.CgoFile,
			SourceDir: res.SourceDir,
			OutDir:    res.OutDir,
		}
		if res.Path == resolve.SourcePath {
			out.Compiler = res.Compiler.String()
		}
		if res.Artifact != nil {
			out.CacheHit = res.Artifact.CacheHit
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	for _, line := range res.Plan.Lines() {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "source-dir=%s\n", res.SourceDir)
	fmt.Fprintf(w, "out-dir=%s\n", res.OutDir)
	return nil
}
