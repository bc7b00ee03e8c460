package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/chrissnell/fluxdata/pkg/table"
	"github.com/spf13/cobra"
)

var (
	filterOutput string
	filterBuffer float64
	filterReport bool
)

var filterCmd = &cobra.Command{
	Use:   "filter FILE",
	Short: "Replace out-of-range values with the missing marker",
	Long: `Apply the physical range limits from the variable snapshot to a BASE csv or
zip file. Values outside a variable's limits, widened by the buffer fraction of
each limit's magnitude, are written as missing.`,
	Args: cobra.ExactArgs(1),
	RunE: runFilter,
}

func runFilter(cmd *cobra.Command, args []string) error {
	t, header, err := readTable(args[0])
	if err != nil {
		return err
	}

	snap, err := application.Reference()
	if err != nil {
		return err
	}
	dec, err := application.Decoder(snap)
	if err != nil {
		return err
	}

	buffer := application.Config().Filter.Buffer
	if cmd.Flags().Changed("buffer") {
		buffer = filterBuffer
	}
	if buffer < 0 {
		return fmt.Errorf("buffer %v must not be negative", buffer)
	}

	out, report, err := application.Filter(dec, buffer).Apply(cmd.Context(), t, snap.Variables.Bounds())
	if err != nil {
		return err
	}

	if err := writeTable(filterOutput, out, header); err != nil {
		return err
	}

	if filterReport {
		return writeJSON(cmd.ErrOrStderr(), report)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "replaced %d values in %d columns\n", report.Replaced(), len(report.Columns))
	for _, w := range report.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", w.Kind, w.Message)
	}
	return nil
}

func writeTable(path string, t *table.Table, header table.Header) error {
	if path == "" || path == "-" {
		w := bufio.NewWriter(os.Stdout)
		if err := table.WriteBase(w, t, header); err != nil {
			return err
		}
		return w.Flush()
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := table.WriteBase(w, t, header); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func init() {
	f := filterCmd.Flags()
	f.StringVarP(&filterOutput, "output", "o", "", "Output csv file (default stdout)")
	f.Float64Var(&filterBuffer, "buffer", 0, "Fraction of each limit's magnitude to widen the range by (default from configuration)")
	f.BoolVar(&filterReport, "report", false, "Print the full filter report as JSON on stderr")
}
