package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/fluxdata/internal/app"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Check the configuration and print the effective settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigCheck,
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg := application.Config()
	out := cmd.OutOrStdout()

	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := cfg.Grammar.Grammar(); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ configuration is valid")

	snap, err := application.Reference()
	switch {
	case errors.Is(err, app.ErrNoReference):
		fmt.Fprintf(out, "✗ no variable snapshot at %s\n", cfg.Snapshot.Path)
	case err != nil:
		fmt.Fprintf(out, "✗ variable snapshot: %v\n", err)
	default:
		fmt.Fprintf(out, "✓ variable snapshot: %d variables, fetched %s ago\n",
			len(snap.Variables), snap.Age(time.Now()).Round(time.Minute))
	}

	if jsonOutput {
		return writeJSON(out, cfg)
	}
	return nil
}

func init() {
	configCmd.Flags().BoolVar(&jsonOutput, "json", false, "Also print the effective configuration as JSON")
}
