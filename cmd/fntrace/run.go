package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dop251/goja"
	"github.com/spf13/cobra"

	"github.com/DeusData/fntrace/internal/config"
	"github.com/DeusData/fntrace/internal/fqn"
	"github.com/DeusData/fntrace/internal/jsrt"
)

func newRunCmd() *cobra.Command {
	var (
		rootDir string
		timeout time.Duration
		jsonl   string
		noStore bool
	)
	cmd := &cobra.Command{
		Use:   "run <entry.js>",
		Short: "Instrument and run a script, recording a trace of every call",
		Long: `Run instruments the entry file, evaluates it as a CommonJS-style module in
an embedded JavaScript runtime and sends one trace record per function call
to the sinks configured in the project's .fntrace.yaml: the log, the trace
store, a Prometheus endpoint and an OTLP collector. The module's exports are
printed as JSON when they can be serialized.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			root := rootDir
			if root == "" {
				root = filepath.Dir(entry)
			}
			cfg, err := config.Load(root)
			if err != nil {
				return err
			}
			src, err := os.ReadFile(entry)
			if err != nil {
				return err
			}
			relPath := fqn.RelPath(root, entry)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			opts := sinkOptions{}
			if cfg.Sinks.EffectiveStore() && !noStore {
				s, openErr := openStore(cfg.EffectiveStorePath())
				if openErr != nil {
					return openErr
				}
				defer s.Close()
				run, runErr := s.CreateRun(relPath)
				if runErr != nil {
					return runErr
				}
				opts.store, opts.runID = s, run.ID
				cmd.PrintErrf("run %s\n", run.ID)
			}
			if jsonl != "" {
				w, closeFn, openErr := openJSONL(jsonl)
				if openErr != nil {
					return openErr
				}
				defer closeFn()
				opts.jsonl = w
			}

			sinks, err := newSinks(ctx, cfg.Sinks, opts)
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if closeErr := sinks.Close(flushCtx); closeErr != nil {
					cmd.PrintErrln(closeErr)
				}
			}()

			rt, err := jsrt.New(sinks.sink, cfg.InstrumentOptions())
			if err != nil {
				return err
			}
			exports, res, err := rt.RunModule(ctx, entry, relPath, src)
			if res != nil {
				for _, d := range res.Diagnostics {
					cmd.PrintErrf("%s:%d:%d: %s\n", relPath, d.Line, d.Column, d.Message)
				}
			}
			if err != nil {
				var ex *goja.Exception
				if errors.As(err, &ex) {
					cmd.PrintErrln(ex.String())
				}
				return err
			}
			printExports(cmd, exports)
			return nil
		},
	}
	cmd.Flags().StringVar(&rootDir, "root", "", "project root for config and relative paths (default: the entry's directory)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "interrupt the script after this long")
	cmd.Flags().StringVar(&jsonl, "jsonl", "", "also write trace records as JSON lines to this file (- for stdout)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not record the run in the trace store")
	return cmd
}

func printExports(cmd *cobra.Command, v goja.Value) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return
	}
	b, err := json.Marshal(v.Export())
	if err != nil || string(b) == "{}" {
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
}
