package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/chrissnell/fluxdata/pkg/badm"
	"github.com/spf13/cobra"
)

var (
	badmSite     string
	badmGroup    string
	badmVariable string
	badmGroups   bool
	badmVars     bool
)

var badmCmd = &cobra.Command{
	Use:   "badm FILE",
	Short: "Query site metadata from a BIF workbook or csv export",
	Args:  cobra.ExactArgs(1),
	RunE:  runBADM,
}

func runBADM(cmd *cobra.Command, args []string) error {
	entries, err := readBADM(args[0])
	if err != nil {
		return err
	}
	if badmSite != "" {
		entries = entries.BySite(badmSite)
	}
	if badmGroup != "" {
		entries = entries.ByGroup(badmGroup)
	}
	if badmVariable != "" {
		entries = entries.ByVariable(badmVariable)
	}

	if badmGroups {
		for _, g := range entries.Groups() {
			fmt.Fprintln(cmd.OutOrStdout(), g)
		}
		return nil
	}
	if badmVars {
		for _, v := range entries.Variables() {
			fmt.Fprintln(cmd.OutOrStdout(), v)
		}
		return nil
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), entries)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SITE_ID\tGROUP_ID\tVARIABLE_GROUP\tVARIABLE\tDATAVALUE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.SiteID, e.GroupID, e.VariableGroup, e.Variable, e.DataValue)
	}
	return tw.Flush()
}

func readBADM(path string) (badm.Entries, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return badm.ReadXLSX(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return badm.ReadCSV(f)
}

func init() {
	f := badmCmd.Flags()
	f.StringVar(&badmSite, "site", "", "Only entries for this site")
	f.StringVar(&badmGroup, "group", "", "Only entries in this variable group")
	f.StringVar(&badmVariable, "variable", "", "Only entries for this variable")
	f.BoolVar(&badmGroups, "groups", false, "List the distinct variable groups")
	f.BoolVar(&badmVars, "variables", false, "List the distinct variables")
	f.BoolVar(&jsonOutput, "json", false, "Print entries as JSON")
}
