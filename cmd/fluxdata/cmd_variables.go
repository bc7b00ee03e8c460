package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// variablesCmd groups the variable reference commands
var variablesCmd = &cobra.Command{
	Use:   "variables",
	Short: "Manage the variable reference list and physical limits",
}

var variablesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch variable limits and write a new snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		vl, err := application.RefreshVariables(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %d variables (%d with limits)\n", len(vl), len(vl.Bounds()))
		return nil
	},
}

var variablesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the variables in the current snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := application.Reference()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tUNITS\tMIN\tMAX\tDESCRIPTION")
		for _, v := range snap.Variables {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.Name, v.Units, optFloat(v.Min), optFloat(v.Max), v.Description)
		}
		return tw.Flush()
	},
}

func optFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *f)
}

func init() {
	variablesCmd.AddCommand(variablesRefreshCmd)
	variablesCmd.AddCommand(variablesListCmd)
}
