package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/fluxdata/pkg/config"
	"github.com/chrissnell/fluxdata/pkg/table"
	"github.com/gorilla/mux"
)

func testApp(t *testing.T) *App {
	t.Helper()

	r := mux.NewRouter()
	r.HandleFunc("/limits", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"Name": "PA", "Units": "kPa", "Min": 60, "Max": 105},
			{"Name": "SWC", "Units": "%", "Min": 0, "Max": 100},
		})
	})
	r.HandleFunc("/sites", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{"SITE_ID": "US-Ha1", "COUNTRY": "USA"}})
	})
	r.HandleFunc("/availability/{product}/{policy}", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"values": []map[string]any{{"site_id": "US-Ha1", "publish_years": []int{1991}}}})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.API.VariableLimitsURL = srv.URL + "/limits"
	cfg.API.SiteInfoURL = srv.URL + "/sites"
	cfg.API.AvailabilityURL = srv.URL + "/availability"
	cfg.Catalog.Path = filepath.Join(dir, "catalog.db")
	cfg.Snapshot.Path = filepath.Join(dir, "variables.msgpack")
	cfg.Grammar.ArityOverrides = map[string]int{"SWC": 1}
	return New(cfg, nil)
}

func TestReferenceBeforeRefresh(t *testing.T) {
	a := testApp(t)
	if _, err := a.Reference(); !errors.Is(err, ErrNoReference) {
		t.Errorf("expected ErrNoReference, got %v", err)
	}
}

func TestRefreshAndFilter(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()

	vl, err := a.RefreshVariables(ctx)
	if err != nil {
		t.Fatalf("RefreshVariables: %v", err)
	}
	if len(vl) != 2 {
		t.Fatalf("got %d variables", len(vl))
	}

	snap, err := a.Reference()
	if err != nil {
		t.Fatalf("Reference: %v", err)
	}
	dec, err := a.Decoder(snap)
	if err != nil {
		t.Fatal(err)
	}

	swc := dec.Decode("SWC_2")
	if swc.BaseName != "SWC" || swc.Position == nil {
		t.Errorf("SWC_2 with a layer-only arity = %+v", swc)
	}

	tbl := table.New(
		table.Column{Name: "PA_1_1_1", Values: []float64{101, 200}},
		table.Column{Name: "SWC_2", Values: []float64{50, 101}},
	)
	out, report, err := a.Filter(dec, 0).Apply(ctx, tbl, snap.Variables.Bounds())
	if err != nil {
		t.Fatal(err)
	}
	if report.Replaced() != 2 {
		t.Errorf("replaced = %d, want 2", report.Replaced())
	}
	if !table.IsMissing(out.Columns[0].Values[1]) || !table.IsMissing(out.Columns[1].Values[1]) {
		t.Errorf("out-of-range values kept: %+v", out.Columns)
	}

	cat, err := a.OpenCatalog()
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()
	stored, err := cat.Variables(ctx)
	if err != nil || len(stored) != 2 {
		t.Errorf("catalog variables = %v, %v", stored, err)
	}
}

func TestRefreshSites(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()

	n, err := a.RefreshSites(ctx, "", "")
	if err != nil {
		t.Fatalf("RefreshSites: %v", err)
	}
	if n != 1 {
		t.Errorf("refreshed %d sites, want 1", n)
	}

	cat, err := a.OpenCatalog()
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()
	years, err := cat.AvailableYears(ctx, "US-Ha1", "")
	if err != nil || len(years) != 1 || years[0] != 1991 {
		t.Errorf("years = %v, %v", years, err)
	}
}

func TestDatabaseRequiresSection(t *testing.T) {
	a := testApp(t)
	if _, err := a.Database(context.Background()); err == nil {
		t.Error("expected an error without a timescaledb section")
	}
}

func TestServeReturnsListenError(t *testing.T) {
	a := testApp(t)
	if _, err := a.RefreshVariables(context.Background()); err != nil {
		t.Fatal(err)
	}

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()
	a.cfg.REST = config.RESTServerData{ListenAddr: "127.0.0.1", Port: busy.Addr().(*net.TCPAddr).Port}

	done := make(chan error, 1)
	go func() { done <- a.Serve(context.Background()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected Serve to fail on a busy port")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve kept running without a listener")
	}
}
