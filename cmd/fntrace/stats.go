package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/DeusData/fntrace/internal/store"
	"github.com/DeusData/fntrace/internal/traces"
)

// resolveRun returns runID, or the latest run when it is empty.
func resolveRun(s *store.Store, runID string) (*store.Run, error) {
	var (
		run *store.Run
		err error
	)
	if runID != "" {
		run, err = s.GetRun(runID)
	} else {
		run, err = s.LatestRun()
	}
	if err != nil {
		return nil, err
	}
	if run == nil {
		if runID != "" {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
		return nil, fmt.Errorf("no runs recorded")
	}
	return run, nil
}

func newRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore("")
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns()
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Run", "Started", "Entry"})
			table.SetBorder(false)
			table.SetCenterSeparator("")
			for _, r := range runs {
				table.Append([]string{r.ID, r.StartedAt, r.Entry})
			}
			table.Render()
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	var (
		runID string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize calls per function for a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore("")
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := resolveRun(s, runID)
			if err != nil {
				return err
			}
			stats, err := s.FunctionStats(run.ID, limit)
			if err != nil {
				return err
			}

			cmd.Printf("run %s (%s)\n", run.ID, run.Entry)
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Function", "File", "Calls", "Exceptions", "Avg ms", "Max ms", "Total ms"})
			table.SetBorder(false)
			table.SetCenterSeparator("")
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			calls := 0
			for _, st := range stats {
				calls += st.Calls
				table.Append([]string{
					st.Name,
					st.File,
					strconv.Itoa(st.Calls),
					strconv.Itoa(st.Exceptions),
					strconv.FormatFloat(st.AvgMs, 'f', 3, 64),
					strconv.FormatFloat(st.MaxMs, 'f', 3, 64),
					strconv.FormatFloat(st.TotalMs, 'f', 3, 64),
				})
			}
			table.SetFooter([]string{fmt.Sprintf("%d functions", len(stats)), "", strconv.Itoa(calls), "", "", "", ""})
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id (default: latest run)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max functions to show (0 for all)")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		runID   string
		service string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "export-otlp",
		Short: "Export a run as OTLP JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore("")
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := resolveRun(s, runID)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if outPath != "" {
				f, createErr := os.Create(outPath)
				if createErr != nil {
					return createErr
				}
				defer f.Close()
				w = f
			}
			res, err := traces.Export(s, run.ID, service, w)
			if err != nil {
				return err
			}
			if outPath != "" {
				cmd.PrintErrf("exported %d spans to %s\n", res.Spans, outPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id (default: latest run)")
	cmd.Flags().StringVar(&service, "service", "fntrace", "service.name resource attribute")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write to this file instead of stdout")
	return cmd
}
