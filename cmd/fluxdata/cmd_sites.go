package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/chrissnell/fluxdata/pkg/catalog"
	"github.com/chrissnell/fluxdata/pkg/client"
	"github.com/spf13/cobra"
)

var (
	product string
	policy  string

	searchQuery catalog.SiteQuery
	searchBBox  []float64
)

// sitesCmd groups the site catalog commands
var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Manage and search the local site catalog",
}

var sitesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the site directory and data availability into the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := application.RefreshSites(cmd.Context(), product, policy)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %d sites\n", n)
		return nil
	},
}

var sitesSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the catalog by attributes, data years and location",
	Args:  cobra.NoArgs,
	RunE:  runSitesSearch,
}

func runSitesSearch(cmd *cobra.Command, args []string) error {
	q := searchQuery
	q.Product = product
	if len(searchBBox) > 0 {
		if len(searchBBox) != 4 {
			return fmt.Errorf("--bbox needs minlat,maxlat,minlon,maxlon")
		}
		q.Box = &catalog.BoundingBox{MinLat: searchBBox[0], MaxLat: searchBBox[1], MinLon: searchBBox[2], MaxLon: searchBBox[3]}
	}

	cat, err := application.OpenCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	sites, err := cat.SearchSites(cmd.Context(), q)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SITE_ID\tNAME\tCOUNTRY\tIGBP\tCLIMATE\tLAT\tLON")
	for _, s := range sites {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.4f\t%.4f\n",
			s.SiteID, s.Name, s.Country, s.IGBP, s.ClimateKoeppen, s.Latitude, s.Longitude)
	}
	return tw.Flush()
}

var availabilityCmd = &cobra.Command{
	Use:   "availability SITE_ID...",
	Short: "List the published data years of sites",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := application.OpenCatalog()
		if err != nil {
			return err
		}
		defer cat.Close()

		for _, id := range args {
			years, err := cat.AvailableYears(cmd.Context(), id, product)
			if err != nil {
				return err
			}
			strs := make([]string, len(years))
			for i, y := range years {
				strs[i] = strconv.Itoa(y)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, strings.Join(strs, ","))
		}
		return nil
	},
}

func init() {
	sitesCmd.PersistentFlags().StringVar(&product, "product", client.ProductBaseBADM, "Data product")
	sitesRefreshCmd.Flags().StringVar(&policy, "policy", client.PolicyCCBY4, "Data policy")
	availabilityCmd.Flags().StringVar(&product, "product", client.ProductBaseBADM, "Data product")

	f := sitesSearchCmd.Flags()
	f.StringVar(&searchQuery.Country, "country", "", "Country")
	f.StringVar(&searchQuery.IGBP, "igbp", "", "IGBP land cover class")
	f.StringVar(&searchQuery.Climate, "climate", "", "Koeppen climate class")
	f.IntVar(&searchQuery.Year, "year", 0, "Require data for this year")
	f.IntVar(&searchQuery.MinYears, "min-years", 0, "Require at least this many years of data")
	f.Float64SliceVar(&searchBBox, "bbox", nil, "Bounding box minlat,maxlat,minlon,maxlon")

	sitesCmd.AddCommand(sitesRefreshCmd)
	sitesCmd.AddCommand(sitesSearchCmd)
}
