package main

import (
	"fmt"

	"github.com/chrissnell/fluxdata/pkg/client"
	"github.com/spf13/cobra"
)

var (
	downloadPolicy  string
	downloadVariant string
	downloadDir     string
	agreePolicy     bool
)

var downloadCmd = &cobra.Command{
	Use:   "download SITE_ID...",
	Short: "Request and download site archives",
	Long: `Request download links for one or more sites and fetch the archives.

The requester identity and intended use are taken from the api section of the
configuration. The data policy must be accepted with --agree-policy.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDownload,
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg := application.Config()

	req := client.DownloadRequest{
		UserID:      cfg.API.UserID,
		UserEmail:   cfg.API.UserEmail,
		Product:     product,
		Variant:     downloadVariant,
		Policy:      downloadPolicy,
		SiteIDs:     args,
		IntendedUse: cfg.API.IntendedUse,
		Description: cfg.API.Description,
		AgreePolicy: agreePolicy,
	}

	c := application.Client()
	manifest, err := c.RequestDownload(cmd.Context(), req)
	if err != nil {
		return err
	}

	dir := downloadDir
	if dir == "" {
		dir = cfg.Download.Dir
	}
	paths, err := c.DownloadFiles(cmd.Context(), manifest, dir, cfg.Download.Workers)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}

func init() {
	f := downloadCmd.Flags()
	f.StringVar(&product, "product", client.ProductBaseBADM, "Data product")
	f.StringVar(&downloadPolicy, "policy", client.PolicyCCBY4, "Data policy")
	f.StringVar(&downloadVariant, "variant", "", "Product variant")
	f.StringVarP(&downloadDir, "dir", "d", "", "Destination directory (default from configuration)")
	f.BoolVar(&agreePolicy, "agree-policy", false, "Accept the data policy")
}
