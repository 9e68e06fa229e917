package internal

import (
	"context"
	"fmt"

	"github.com/goplus/rocksys/internal/cxxrt"
	"github.com/goplus/rocksys/internal/platform"
	"github.com/spf13/cobra"
)

var probeTarget string

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Show the target platform, compiler and C++ runtime linking",
	Args:  cobra.NoArgs,
	RunE:  runProbe,
}

func init() {
	probeCmd.Flags().StringVarP(&probeTarget, "target", "t", "", "Target triple (default: host)")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	var extra []string
	if probeTarget != "" {
		extra = append(extra, "TARGET="+probeTarget)
	}
	cfg, err := loadConfig(extra)
	if err != nil {
		return err
	}
	ctx := context.Background()
	tc := platform.DefaultCompiler(cfg.Target, cfg.CXX)
	fam := platform.ProbeCompiler(ctx, tc)

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "target=%s\n", cfg.Target)
	fmt.Fprintf(w, "family=%s\n", cfg.Target.Family())
	fmt.Fprintf(w, "compiler=%s (%s)\n", tc.Path(), fam)
	ds := cxxrt.Plan(ctx, cxxrt.Request{Target: cfg.Target, Family: fam, Toolchain: tc}, cxxrt.Strategies(cfg.StaticRuntime))
	for _, d := range ds {
		fmt.Fprintf(w, "runtime=%s\n", d)
	}
	return nil
}
