package main

import (
	"fmt"
	"os"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/DeusData/fntrace/internal/instrument"
)

func newInstrumentCmd() *cobra.Command {
	var (
		relPath string
		wrapped bool
		binding string
		outPath string
		diff    bool
	)
	cmd := &cobra.Command{
		Use:   "instrument <file>",
		Short: "Instrument a single file and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			src, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			res, err := instrument.New(instrument.Options{Binding: binding}).Inject(instrument.File{
				Path:    path,
				RelPath: relPath,
				Source:  src,
				Wrapped: wrapped,
			})
			if err != nil {
				return err
			}
			for _, d := range res.Diagnostics {
				cmd.PrintErrf("%s:%d:%d: %s\n", path, d.Line, d.Column, d.Message)
			}

			out := res.Source
			if diff {
				text, diffErr := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
					A:        difflib.SplitLines(string(src)),
					B:        difflib.SplitLines(string(res.Source)),
					FromFile: path,
					ToFile:   path + " (instrumented)",
					Context:  1,
				})
				if diffErr != nil {
					return fmt.Errorf("diff: %w", diffErr)
				}
				out = []byte(text)
			}

			if outPath != "" {
				return os.WriteFile(outPath, out, 0o600)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&relPath, "rel", "", "project-relative path used in function ids (default: the file path)")
	cmd.Flags().BoolVar(&wrapped, "wrapped", false, "the file is enclosed by a host loader function")
	cmd.Flags().StringVar(&binding, "binding", "", "identifier the rewritten code calls (default "+instrument.DefaultBinding+")")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&diff, "diff", false, "print a unified diff instead of the rewritten source")
	return cmd
}
