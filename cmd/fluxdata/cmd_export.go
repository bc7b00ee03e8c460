package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var exportFiltered bool

var exportCmd = &cobra.Command{
	Use:   "export SITE_ID FILE",
	Short: "Load a BASE file into TimescaleDB",
	Long: `Decode the columns of a BASE csv or zip file and store every non-missing value
as an observation in the timescaledb database from the configuration. With
--filter the range filter is applied first.`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

var exportDeleteCmd = &cobra.Command{
	Use:   "delete BATCH_ID",
	Short: "Remove the observations written by one export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batchID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid batch id %q: %w", args[0], err)
		}
		db, err := application.Database(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.DeleteBatch(cmd.Context(), batchID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d observations\n", n)
		return nil
	},
}

func runExport(cmd *cobra.Command, args []string) error {
	siteID, path := args[0], args[1]

	t, _, err := readTable(path)
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

	if exportFiltered {
		out, report, err := application.Filter(dec, application.Config().Filter.Buffer).
			Apply(cmd.Context(), t, snap.Variables.Bounds())
		if err != nil {
			return err
		}
		t = out
		fmt.Fprintf(cmd.ErrOrStderr(), "filter replaced %d values\n", report.Replaced())
	}

	db, err := application.Database(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := db.ExportTable(cmd.Context(), siteID, t, dec.DecodeAll(t.Names()))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "batch %s: wrote %d observations, skipped %d missing values\n",
		res.BatchID, res.Rows, res.Skipped)
	return nil
}

func init() {
	exportCmd.Flags().BoolVar(&exportFiltered, "filter", false, "Apply the range filter before exporting")
	exportCmd.AddCommand(exportDeleteCmd)
}
