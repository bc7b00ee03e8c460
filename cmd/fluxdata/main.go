package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/chrissnell/fluxdata/internal/app"
	"github.com/chrissnell/fluxdata/internal/log"
	"github.com/chrissnell/fluxdata/pkg/config"
	"github.com/chrissnell/fluxdata/pkg/table"
	"github.com/spf13/cobra"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

const defaultConfigFile = "fluxdata.yaml"

var (
	cfgFile string
	debug   bool

	application *app.App
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fluxdata",
	Short: "Fetch, decode and quality-filter eddy-covariance flux tower data",
	Long: `fluxdata works with half-hourly BASE files published by flux tower networks.

It keeps a local catalog of sites and data availability, requests and downloads
site archives, decodes variable names into base names and qualifiers, and
replaces physically implausible values with the missing marker.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := log.Init(debug); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg, err := loadConfig(cfgFile, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		application = app.New(cfg, log.GetSugaredLogger())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "fluxdata %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigFile, "Path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Turn on debugging output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(sitesCmd)
	rootCmd.AddCommand(availabilityCmd)
	rootCmd.AddCommand(variablesCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(badmCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the YAML file. A missing default file falls back to the
// built-in defaults; a missing file named explicitly is an error.
func loadConfig(path string, explicit bool) (*config.ConfigData, error) {
	filename, _ := filepath.Abs(path)

	provider := config.NewYAMLProvider(filename)
	defer provider.Close()

	cfg, err := provider.LoadConfig()
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		log.Debugf("no configuration at %s; using defaults", filename)
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", filename, err)
	}
	return cfg, nil
}

// readTable opens a BASE csv file or a downloaded archive containing one.
func readTable(path string) (*table.Table, table.Header, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return table.ReadBaseZip(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return table.ReadBase(f)
}
