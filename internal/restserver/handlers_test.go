package restserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chrissnell/fluxdata/pkg/catalog"
	"github.com/chrissnell/fluxdata/pkg/client"
	"github.com/chrissnell/fluxdata/pkg/config"
	"github.com/chrissnell/fluxdata/pkg/rangefilter"
	"github.com/chrissnell/fluxdata/pkg/responseformat"
	"github.com/chrissnell/fluxdata/pkg/varname"
	"github.com/google/go-cmp/cmp"
	"github.com/vmihailenco/msgpack/v5"
)

type fakeSites struct {
	sites    []client.Site
	years    map[string][]int
	lastQ    catalog.SiteQuery
	variable client.VariableLimits
}

func (f *fakeSites) SearchSites(_ context.Context, q catalog.SiteQuery) ([]client.Site, error) {
	f.lastQ = q
	return f.sites, nil
}

func (f *fakeSites) Site(_ context.Context, id string) (client.Site, error) {
	for _, s := range f.sites {
		if s.SiteID == id {
			return s, nil
		}
	}
	return client.Site{}, fmt.Errorf("site %s: %w", id, catalog.ErrNotFound)
}

func (f *fakeSites) AvailableYears(_ context.Context, id, _ string) ([]int, error) {
	return f.years[id], nil
}

func (f *fakeSites) Variables(context.Context) (client.VariableLimits, error) {
	return f.variable, nil
}

func newTestServer(t *testing.T, sites SiteStore) *httptest.Server {
	t.Helper()
	reg := varname.NewRegistry([]varname.BaseName{{Name: "PA", Unit: "kPa"}, {Name: "TA"}, {Name: "SW_IN"}})
	dec, err := varname.NewDecoder(reg, varname.DefaultGrammar())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ctrl, err := NewController(ctx, &sync.WaitGroup{}, config.RESTServerData{}, Deps{
		Decoder:      dec,
		Bounds:       []rangefilter.Bounds{{BaseName: "PA", Lower: 60, Upper: 105}},
		FilterBuffer: 0,
		Sites:        sites,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(ctrl.Server.Handler)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, wantStatus int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDecodeEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	var body DecodeResponse
	getJSON(t, srv.URL+"/api/v1/decode?name=PA_1_1_1&name=SW_IN_F,FOO_BAR", http.StatusOK, &body)

	if len(body.Descriptors) != 3 {
		t.Fatalf("got %d descriptors, want 3", len(body.Descriptors))
	}
	if d := body.Descriptors[0]; d.BaseName != "PA" || d.Unit != "kPa" {
		t.Errorf("PA descriptor = %+v", d)
	}
	if d := body.Descriptors[1]; d.BaseName != "SW_IN" || !d.IsGapFilled {
		t.Errorf("SW_IN_F descriptor = %+v", d)
	}
	if body.Degraded != 1 {
		t.Errorf("degraded = %d, want 1 for the unknown name", body.Degraded)
	}

	getJSON(t, srv.URL+"/api/v1/decode", http.StatusBadRequest, nil)
}

func TestDecodeMsgPack(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/v1/decode?name=TA&format=msgpack")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != responseformat.ContentTypeMsgPack {
		t.Fatalf("Content-Type = %s", ct)
	}
	var body map[string]any
	if err := msgpack.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if _, ok := body["descriptors"]; !ok {
		t.Errorf("msgpack body lacks descriptors: %v", body)
	}
}

const baseFile = `# SITE_ID: US-Ha1
TIMESTAMP_START,TIMESTAMP_END,PA_1_1_1,TA_1_1_1
202001010000,202001010030,101.3,-2.5
202001010030,202001010100,140.0,-9999
`

func TestFilterEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/v1/filter", "text/csv", strings.NewReader(baseFile))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body FilterResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Rows != 2 || body.Replaced != 1 {
		t.Errorf("rows/replaced = %d/%d, want 2/1", body.Rows, body.Replaced)
	}
}

func TestFilterEndpointCSV(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/v1/filter?output=csv&buffer=0.5", "text/csv", strings.NewReader(baseFile))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("X-Values-Replaced") != "0" {
		t.Errorf("a 50%% buffer keeps 140 kPa, replaced = %s", resp.Header.Get("X-Values-Replaced"))
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "# SITE_ID: US-Ha1") || !strings.Contains(string(out), "TIMESTAMP_START,TIMESTAMP_END,PA_1_1_1,TA_1_1_1") {
		t.Errorf("csv output:\n%s", out)
	}
}

func TestFilterEndpointErrors(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name   string
		query  string
		body   string
		status int
	}{
		{"bad buffer", "?buffer=abc", baseFile, http.StatusBadRequest},
		{"negative buffer", "?buffer=-1", baseFile, http.StatusBadRequest},
		{"NaN buffer", "?buffer=NaN", baseFile, http.StatusBadRequest},
		{"infinite buffer", "?buffer=Inf", baseFile, http.StatusBadRequest},
		{"not a table", "", "TIMESTAMP_START,PA\n202001010000,abc\n", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/v1/filter"+tt.query, "text/csv", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestSiteEndpoints(t *testing.T) {
	pa := 105.0
	store := &fakeSites{
		sites:    []client.Site{{SiteID: "US-Ha1", Country: "USA"}},
		years:    map[string][]int{"US-Ha1": {1991, 1992}},
		variable: client.VariableLimits{{Name: "PA", Max: &pa}},
	}
	srv := newTestServer(t, store)

	var sites []client.Site
	getJSON(t, srv.URL+"/api/v1/sites?country=USA&year=2000&min_years=2&bbox=40,50,-80,-70", http.StatusOK, &sites)
	if len(sites) != 1 {
		t.Fatalf("got %d sites", len(sites))
	}
	wantQ := catalog.SiteQuery{Country: "USA", Year: 2000, MinYears: 2, Box: &catalog.BoundingBox{MinLat: 40, MaxLat: 50, MinLon: -80, MaxLon: -70}}
	if diff := cmp.Diff(wantQ, store.lastQ); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}

	getJSON(t, srv.URL+"/api/v1/sites?bbox=1,2,3", http.StatusBadRequest, nil)
	getJSON(t, srv.URL+"/api/v1/sites?year=soon", http.StatusBadRequest, nil)

	var site SiteResponse
	getJSON(t, srv.URL+"/api/v1/sites/US-Ha1", http.StatusOK, &site)
	if diff := cmp.Diff([]int{1991, 1992}, site.Years); diff != "" {
		t.Errorf("years mismatch (-want +got):\n%s", diff)
	}
	getJSON(t, srv.URL+"/api/v1/sites/XX-Nope", http.StatusNotFound, nil)

	var vl client.VariableLimits
	getJSON(t, srv.URL+"/api/v1/variables", http.StatusOK, &vl)
	if len(vl) != 1 || vl[0].Min != nil || *vl[0].Max != 105 {
		t.Errorf("variables = %+v", vl)
	}
}

func TestSiteEndpointsWithoutCatalog(t *testing.T) {
	srv := newTestServer(t, nil)
	getJSON(t, srv.URL+"/api/v1/sites", http.StatusServiceUnavailable, nil)
	getJSON(t, srv.URL+"/api/v1/variables", http.StatusServiceUnavailable, nil)
}

func TestNewControllerRequiresDecoder(t *testing.T) {
	if _, err := NewController(context.Background(), &sync.WaitGroup{}, config.RESTServerData{}, Deps{}, nil); err == nil {
		t.Error("expected an error without a decoder")
	}
}

func TestStartControllerListenError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	dec, err := varname.NewDecoder(nil, varname.DefaultGrammar())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	ctrl, err := NewController(ctx, &wg, config.RESTServerData{ListenAddr: "127.0.0.1", Port: port}, Deps{Decoder: dec}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := ctrl.StartController(); err == nil {
		t.Fatal("expected an error for an address already in use")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("a serving goroutine was left running after the listen error")
	}
}
