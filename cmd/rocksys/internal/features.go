package internal

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/goplus/rocksys/internal/feature"
	"github.com/spf13/cobra"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "List the optional RocksDB features",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listFeatures(cmd.OutOrStdout(), feature.Table)
	},
}

func init() {
	rootCmd.AddCommand(featuresCmd)
}

func listFeatures(w io.Writer, table []feature.Spec) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPARAMS\tLIB\tARCH")
	for _, spec := range table {
		params := make([]string, len(spec.Params))
		for i, p := range spec.Params {
			params[i] = p.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", spec.Name, strings.Join(params, " "), dash(spec.Lib), dash(spec.Arch))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
