package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/chrissnell/fluxdata/pkg/client"
	"github.com/google/go-cmp/cmp"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func fp(f float64) *float64 { return &f }

func seed(t *testing.T, c *Catalog) {
	t.Helper()
	ctx := context.Background()
	sites := []client.Site{
		{SiteID: "US-Ha1", Name: "Harvard Forest", Country: "USA", IGBP: "DBF", ClimateKoeppen: "Dfb", Latitude: 42.5378, Longitude: -72.1715},
		{SiteID: "US-MMS", Name: "Morgan Monroe", Country: "USA", IGBP: "DBF", ClimateKoeppen: "Cfa", Latitude: 39.3232, Longitude: -86.4131},
		{SiteID: "CA-Oas", Name: "Old Aspen", Country: "Canada", IGBP: "DBF", ClimateKoeppen: "Dfc", Latitude: 53.6289, Longitude: -106.1978},
		{SiteID: "US-Var", Name: "Vaira Ranch", Country: "USA", IGBP: "GRA", ClimateKoeppen: "Csa", Latitude: 38.4133, Longitude: -120.9508},
	}
	if err := c.SaveSites(ctx, sites); err != nil {
		t.Fatalf("SaveSites: %v", err)
	}
	avail := []client.Availability{
		{SiteID: "US-Ha1", Years: []int{1991, 1992, 1993}},
		{SiteID: "US-MMS", Years: []int{1999, 2000}},
		{SiteID: "US-Var", Years: []int{2000}},
	}
	if err := c.SaveAvailability(ctx, client.ProductBaseBADM, client.PolicyCCBY4, avail); err != nil {
		t.Fatalf("SaveAvailability: %v", err)
	}
	vl := client.VariableLimits{
		{Name: "TA", Units: "deg C", Min: fp(-50), Max: fp(50)},
		{Name: "FC_SSITC_TEST", Units: "nondimensional"},
	}
	if err := c.SaveVariables(ctx, vl); err != nil {
		t.Fatalf("SaveVariables: %v", err)
	}
}

func siteIDs(sites []client.Site) []string {
	var ids []string
	for _, s := range sites {
		ids = append(ids, s.SiteID)
	}
	return ids
}

func TestSearchSites(t *testing.T) {
	c := openTestCatalog(t)
	seed(t, c)

	tests := []struct {
		name  string
		query SiteQuery
		want  []string
	}{
		{"all", SiteQuery{}, []string{"CA-Oas", "US-Ha1", "US-MMS", "US-Var"}},
		{"country", SiteQuery{Country: "USA"}, []string{"US-Ha1", "US-MMS", "US-Var"}},
		{"igbp and country", SiteQuery{Country: "USA", IGBP: "DBF"}, []string{"US-Ha1", "US-MMS"}},
		{"climate", SiteQuery{Climate: "Dfc"}, []string{"CA-Oas"}},
		{"year", SiteQuery{Year: 2000}, []string{"US-MMS", "US-Var"}},
		{"min years", SiteQuery{MinYears: 2}, []string{"US-Ha1", "US-MMS"}},
		{"other product", SiteQuery{Product: client.ProductBIF, Year: 2000}, nil},
		{"box", SiteQuery{Box: &BoundingBox{MinLat: 40, MaxLat: 60, MinLon: -110, MaxLon: -70}}, []string{"CA-Oas", "US-Ha1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.SearchSites(context.Background(), tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, siteIDs(got)); diff != "" {
				t.Errorf("site ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSiteLookup(t *testing.T) {
	c := openTestCatalog(t)
	seed(t, c)
	ctx := context.Background()

	s, err := c.Site(ctx, "US-Ha1")
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != "Harvard Forest" || s.Latitude != 42.5378 {
		t.Errorf("site = %+v", s)
	}

	if _, err := c.Site(ctx, "XX-Nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAvailableYearsAndVariables(t *testing.T) {
	c := openTestCatalog(t)
	seed(t, c)
	ctx := context.Background()

	years, err := c.AvailableYears(ctx, "US-Ha1", "")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1991, 1992, 1993}, years); diff != "" {
		t.Errorf("years mismatch (-want +got):\n%s", diff)
	}

	vl, err := c.Variables(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := client.VariableLimits{
		{Name: "FC_SSITC_TEST", Units: "nondimensional"},
		{Name: "TA", Units: "deg C", Min: fp(-50), Max: fp(50)},
	}
	if diff := cmp.Diff(want, vl); diff != "" {
		t.Errorf("variables mismatch (-want +got):\n%s", diff)
	}
	if len(vl.Bounds()) != 1 {
		t.Errorf("expected only TA to carry bounds")
	}
}

func TestSaveReplaces(t *testing.T) {
	c := openTestCatalog(t)
	seed(t, c)
	ctx := context.Background()

	if err := c.SaveSites(ctx, []client.Site{{SiteID: "BR-Sa1"}}); err != nil {
		t.Fatal(err)
	}
	got, err := c.SearchSites(ctx, SiteQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"BR-Sa1"}, siteIDs(got)); diff != "" {
		t.Errorf("site ids mismatch (-want +got):\n%s", diff)
	}

	if _, err := c.LastRefresh(ctx, "sites"); err != nil {
		t.Errorf("LastRefresh(sites): %v", err)
	}
	if _, err := c.LastRefresh(ctx, "never"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	seed(t, c)
	c.Close()

	c, err = Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()
	if _, err := c.Site(context.Background(), "US-MMS"); err != nil {
		t.Errorf("site lost after reopen: %v", err)
	}
}

func TestSchemaMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	s, err := OpenSchema(path, nil)
	if err != nil {
		t.Fatalf("OpenSchema: %v", err)
	}
	pending, err := s.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("fresh database has %d pending migrations, want 2", len(pending))
	}

	if err := s.MigrateTo(1); err != nil {
		t.Fatalf("MigrateTo(1): %v", err)
	}
	if v, _ := s.CurrentVersion(); v != 1 {
		t.Errorf("version = %d, want 1", v)
	}
	s.Close()

	// Open brings the schema the rest of the way.
	c, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := c.LastRefresh(context.Background(), "sites"); !errors.Is(err, ErrNotFound) {
		t.Errorf("refresh log should exist and be empty, got %v", err)
	}
	c.Close()

	s, err = OpenSchema(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.MigrateTo(0); err != nil {
		t.Fatalf("MigrateTo(0): %v", err)
	}
	if v, _ := s.CurrentVersion(); v != 0 {
		t.Errorf("version after full rollback = %d, want 0", v)
	}
}
