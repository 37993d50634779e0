package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"fintself/lib/osutil"
	"fintself/lib/telemetry"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fintself",
	Short: "fintself scrapes personal bank movements from institution portals.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initSlog(*verbose)

		tel, err := telemetry.SetupFromEnv(cmd.Context(), "fintself")
		if err != nil {
			osutil.Fatal("failed to set up telemetry", err)
		}
		shutdownTelemetry = tel.Shutdown
		if *verbose {
			telemetry.InstrumentPerfStats(cmd.Context())
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	},
}

var verbose *bool
var shutdownTelemetry func(context.Context) error

func init() {
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log at debug level.")
}

func initSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
