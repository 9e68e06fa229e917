package internal

import (
	"os"

	"github.com/goplus/rocksys/internal/env"
	"github.com/goplus/rocksys/internal/resolve"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "rocksys",
	Short: "rocksys builds and links RocksDB for cgo",
	Long: `rocksys decides how RocksDB is linked into a Go program: a pre-built
library named by ROCKSDB_LIB_DIR, or a CMake build of the vendored sources.
It prints the resulting link plan and generates the cgo bindings.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := log.Linfo
		if verbose {
			level = log.Ldebug
		}
		log.SetOutputLevel(level)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging and build output")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (default "+env.DefaultFile+" if present)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatal(err)
	}
}

// loadConfig snapshots the process environment, with extra entries taking
// precedence, over the configuration file.
func loadConfig(extra []string) (*env.Config, error) {
	return resolve.LoadConfig(append(os.Environ(), extra...), configFile, configFile != "")
}
