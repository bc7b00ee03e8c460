package main

import (
	"fmt"

	"github.com/chrissnell/fluxdata/internal/log"
	"github.com/chrissnell/fluxdata/pkg/catalog"
	"github.com/spf13/cobra"
)

var migrateTarget int

// catalogCmd groups the catalog schema commands
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and migrate the local catalog schema",
}

var catalogStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version and pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := catalog.OpenSchema(application.Config().Catalog.Path, log.GetSugaredLogger())
		if err != nil {
			return err
		}
		defer s.Close()

		current, err := s.CurrentVersion()
		if err != nil {
			return err
		}
		pending, err := s.Pending()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Current version: %d\n", current)
		fmt.Fprintf(out, "Pending migrations: %d\n", len(pending))
		for _, m := range pending {
			fmt.Fprintf(out, "  %d: %s\n", m.Version, m.Name)
		}
		return nil
	},
}

var catalogMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the catalog schema up or down",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := catalog.OpenSchema(application.Config().Catalog.Path, log.GetSugaredLogger())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.MigrateTo(migrateTarget); err != nil {
			return err
		}
		v, err := s.CurrentVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "catalog schema at version %d\n", v)
		return nil
	},
}

func init() {
	catalogMigrateCmd.Flags().IntVar(&migrateTarget, "to", -1, "Target version (-1 for latest)")
	catalogCmd.AddCommand(catalogStatusCmd)
	catalogCmd.AddCommand(catalogMigrateCmd)
}
