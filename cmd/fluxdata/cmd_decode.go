package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/chrissnell/fluxdata/pkg/varname"
	"github.com/spf13/cobra"
)

var (
	decodeFrom string
	jsonOutput bool
)

var decodeCmd = &cobra.Command{
	Use:   "decode [NAME...]",
	Short: "Decode variable names into base names and qualifiers",
	Long: `Decode variable names such as FC_F, TS_1_2_1 or SWC_PI_F_1_1_A against the
current variable snapshot. Names are given as arguments or taken from the
header of a BASE file with --from.`,
	RunE: runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	names := args
	if decodeFrom != "" {
		t, _, err := readTable(decodeFrom)
		if err != nil {
			return err
		}
		names = append(names, t.Names()...)
	}
	if len(names) == 0 {
		return fmt.Errorf("no variable names given")
	}

	snap, err := application.Reference()
	if err != nil {
		return err
	}
	dec, err := application.Decoder(snap)
	if err != nil {
		return err
	}
	ds := dec.DecodeAll(names)

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), ds)
	}
	return writeDescriptors(cmd.OutOrStdout(), ds)
}

func writeDescriptors(w io.Writer, ds []varname.Descriptor) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tBASE\tQUALIFIERS\tGAPFILL\tLAYER_AGG\tREP_AGG\tMATCH\tCONFIDENCE")
	for _, d := range ds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\t%t\t%s\t%s\n",
			d.Name, d.BaseName, strings.Join(d.Qualifiers, ","),
			d.IsGapFilled, d.IsLayerAggregated, d.IsReplicateAggregated, d.Match, d.Confidence)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	decodeCmd.Flags().StringVar(&decodeFrom, "from", "", "Decode the columns of a BASE csv or zip file")
	decodeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print descriptors as JSON")
}
