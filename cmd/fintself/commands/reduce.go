package commands

import (
	"log/slog"

	"fintself/lib/htmlutil"
	"fintself/lib/osutil"

	"github.com/spf13/cobra"
)

var (
	reduceInput  *string
	reduceOutput *string
)

func init() {
	reduceInput = reduceCmd.Flags().StringP("input", "i", "debug_output",
		"Directory holding captured debug pages.")
	reduceOutput = reduceCmd.Flags().StringP("output", "o", "debug_output_reduced",
		"Directory the reduced pages are written to.")
	rootCmd.AddCommand(reduceCmd)
}

var reduceCmd = &cobra.Command{
	Use:   "reduce [--input <dir>] [--output <dir>]",
	Short: "Strips scripts, styles and comments from captured debug pages.",
	Run: func(cmd *cobra.Command, args []string) {
		written, err := htmlutil.ReduceDir(cmd.Context(), *reduceInput, *reduceOutput)
		if err != nil {
			osutil.Fatal("failed to reduce debug pages", err)
		}
		slog.Info("debug pages reduced", "files", written, "output", *reduceOutput)
	},
}
