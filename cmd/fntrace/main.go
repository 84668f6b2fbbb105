package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/DeusData/fntrace/internal/store"
)

var version = "dev"

var (
	verboseFlag   bool
	storePathFlag string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fntrace",
		Short: "Function-level tracing for JavaScript and TypeScript",
		Long: `fntrace rewrites JavaScript and TypeScript sources so that every named
function body runs through an execution wrapper, which measures each call
and emits a trace record with the function's identity, duration and
whether it threw.

Instrumented code can be written to disk (instrument, build, watch) or run
directly in an embedded runtime (run). Recorded traces are stored in SQLite
and can be summarized (stats), exported as OTLP JSON (export-otlp) or served
to MCP clients (serve).`,
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(verboseFlag)
		},
	}
	cmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&storePathFlag, "store", "", "path of the trace database (default ~/.cache/fntrace/traces.db)")

	cmd.AddCommand(
		newInstrumentCmd(),
		newBuildCmd(),
		newWatchCmd(),
		newRunCmd(),
		newRunsCmd(),
		newStatsCmd(),
		newExportCmd(),
		newServeCmd(),
	)
	return cmd
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// openStore opens the database named by --store, or path when the flag is
// unset, or the default location.
func openStore(path string) (*store.Store, error) {
	if storePathFlag != "" {
		path = storePathFlag
	}
	var (
		s   *store.Store
		err error
	)
	if path != "" {
		s, err = store.OpenPath(path)
	} else {
		s, err = store.Open()
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}
