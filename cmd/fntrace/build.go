package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/DeusData/fntrace/internal/config"
	"github.com/DeusData/fntrace/internal/discover"
	"github.com/DeusData/fntrace/internal/pipeline"
	"github.com/DeusData/fntrace/internal/store"
	"github.com/DeusData/fntrace/internal/watcher"
)

type buildFlags struct {
	outDir string
	force  bool
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.outDir, "out", "o", "", "output directory (default from config, or <root>/.fntrace/out)")
	cmd.Flags().BoolVar(&f.force, "force", false, "re-instrument unchanged files")
}

func rootArg(args []string) (string, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	return filepath.Abs(root)
}

// buildOptions merges the project config with command-line flags.
func buildOptions(root string, cfg *config.Config, f *buildFlags, s *store.Store) pipeline.Options {
	outDir := cfg.EffectiveOutDir(root)
	if f.outDir != "" {
		outDir = f.outDir
	}
	return pipeline.Options{
		Root:       root,
		OutDir:     outDir,
		Store:      s,
		Instrument: cfg.InstrumentOptions(),
		Wrapped:    cfg.EffectiveWrapped(),
		Include:    cfg.Include,
		Exclude:    cfg.Exclude,
		Workers:    cfg.EffectiveWorkers(),
		Force:      f.force,
	}
}

func printSummary(cmd *cobra.Command, s *pipeline.Summary, outDir string) {
	cmd.Printf("instrumented %d files (%d functions) into %s, %d unchanged, %d failed in %s\n",
		len(s.Instrumented), s.Functions(), outDir, s.Unchanged, s.Failed, s.Elapsed.Round(time.Millisecond))
}

func newBuildCmd() *cobra.Command {
	var flags buildFlags
	cmd := &cobra.Command{
		Use:   "build [root]",
		Short: "Instrument a project into an output directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := rootArg(args)
			if err != nil {
				return err
			}
			cfg, err := config.Load(root)
			if err != nil {
				return err
			}
			s, err := openStore(cfg.EffectiveStorePath())
			if err != nil {
				return err
			}
			defer s.Close()

			opts := buildOptions(root, cfg, &flags, s)
			summary, err := pipeline.Build(cmd.Context(), opts)
			if summary != nil {
				printSummary(cmd, summary, opts.OutDir)
			}
			return err
		},
	}
	flags.register(cmd)
	return cmd
}

func newWatchCmd() *cobra.Command {
	var flags buildFlags
	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "Build a project and rebuild it whenever its sources change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := rootArg(args)
			if err != nil {
				return err
			}
			cfg, err := config.Load(root)
			if err != nil {
				return err
			}
			s, err := openStore(cfg.EffectiveStorePath())
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := buildOptions(root, cfg, &flags, s)
			build := func(ctx context.Context, _ string) error {
				summary, buildErr := pipeline.Build(ctx, opts)
				if summary != nil {
					printSummary(cmd, summary, opts.OutDir)
				}
				return buildErr
			}
			if err := build(ctx, root); err != nil {
				cmd.PrintErrln(err)
			}
			// Later builds only touch changed files.
			opts.Force = false

			outDir, err := filepath.Abs(opts.OutDir)
			if err != nil {
				return fmt.Errorf("out dir: %w", err)
			}
			w := watcher.New(root, &discover.Options{
				Include:  cfg.Include,
				Exclude:  cfg.Exclude,
				SkipDirs: []string{outDir},
			}, build)
			cmd.Printf("watching %s\n", root)
			w.Run(ctx)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
