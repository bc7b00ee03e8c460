package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/chrissnell/fluxdata/pkg/summary"
	"github.com/chrissnell/fluxdata/pkg/varname"
	"github.com/spf13/cobra"
)

var showCoverage bool

var summarizeCmd = &cobra.Command{
	Use:   "summarize FILE",
	Short: "Print per-column statistics of a BASE file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

func runSummarize(cmd *cobra.Command, args []string) error {
	t, _, err := readTable(args[0])
	if err != nil {
		return err
	}

	// Descriptors are optional; without a snapshot the columns are
	// summarized under their raw names.
	var ds []varname.Descriptor
	if snap, err := application.Reference(); err == nil {
		dec, err := application.Decoder(snap)
		if err != nil {
			return err
		}
		ds = dec.DecodeAll(t.Names())
	}

	stats, err := summary.Summarize(t, ds, summary.DefaultQuantiles)
	if err != nil {
		return err
	}

	if showCoverage {
		cov, err := summary.Coverage(t, ds)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), map[string]any{"stats": stats, "coverage": cov})
		}
		if err := writeStats(cmd, stats); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return writeCoverage(cmd, cov)
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), stats)
	}
	return writeStats(cmd, stats)
}

func writeStats(cmd *cobra.Command, stats []summary.Stats) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "NAME\tUNIT\tN\tMISSING\tMEAN\tSTD\tMIN\tMAX\t")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.4g\t%.4g\t%.4g\t%.4g\t\n",
			s.Name, s.Unit, s.N, s.Missing, s.Mean, s.StdDev, s.Min, s.Max)
	}
	return tw.Flush()
}

func writeCoverage(cmd *cobra.Command, cov []summary.ColumnCoverage) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tYEAR\tROWS\tPRESENT\tFRACTION")
	for _, c := range cov {
		for _, y := range c.Years {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.3f\n", c.Name, y.Year, y.Rows, y.Present, y.Fraction)
		}
	}
	return tw.Flush()
}

func init() {
	summarizeCmd.Flags().BoolVar(&showCoverage, "coverage", false, "Also print per-year data coverage")
	summarizeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the summary as JSON")
}
