package client

import (
	"context"
	"fmt"
	"net/url"
	"sort"
)

// Data products and policies accepted by the availability and download
// endpoints.
const (
	ProductBaseBADM = "BASE-BADM"
	ProductBIF      = "BIF"

	PolicyCCBY4  = "CCBY4.0"
	PolicyLegacy = "LEGACY"
)

// Site is one entry of the site directory.
type Site struct {
	SiteID         string  `json:"SITE_ID"`
	Name           string  `json:"SITE_NAME"`
	Country        string  `json:"COUNTRY"`
	State          string  `json:"STATE"`
	IGBP           string  `json:"IGBP"`
	ClimateKoeppen string  `json:"CLIMATE_KOEPPEN"`
	Latitude       float64 `json:"LOCATION_LAT"`
	Longitude      float64 `json:"LOCATION_LONG"`
	Elevation      float64 `json:"LOCATION_ELEV"`
	MAT            float64 `json:"MAT"`
	MAP            float64 `json:"MAP"`
	TowerBegan     string  `json:"TOWER_BEGAN"`
	TowerEnd       string  `json:"TOWER_END"`
	URL            string  `json:"URL_AMERIFLUX"`
}

// Availability lists the published years of one site for a product.
type Availability struct {
	SiteID string `json:"site_id"`
	Years  []int  `json:"publish_years"`
}

// SiteInfo fetches the full site directory, sorted by site id.
func (c *Client) SiteInfo(ctx context.Context) ([]Site, error) {
	var sites []Site
	if err := c.getJSON(ctx, c.cfg.SiteInfoURL, &sites); err != nil {
		return nil, fmt.Errorf("fetching site directory: %w", err)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].SiteID < sites[j].SiteID })
	c.logger.Infof("fetched %d sites from the site directory", len(sites))
	return sites, nil
}

// DataAvailability fetches the years published for each site under the
// given product and data policy.
func (c *Client) DataAvailability(ctx context.Context, product, policy string) ([]Availability, error) {
	if product == "" {
		product = ProductBaseBADM
	}
	if policy == "" {
		policy = PolicyCCBY4
	}
	u := c.cfg.AvailabilityURL + "/" + url.PathEscape(product) + "/" + url.PathEscape(policy)

	var resp struct {
		Values []Availability `json:"values"`
	}
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("fetching %s availability: %w", product, err)
	}

	for i := range resp.Values {
		sort.Ints(resp.Values[i].Years)
	}
	sort.Slice(resp.Values, func(i, j int) bool { return resp.Values[i].SiteID < resp.Values[j].SiteID })
	return resp.Values, nil
}
