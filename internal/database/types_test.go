package database

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/chrissnell/fluxdata/pkg/config"
	"github.com/chrissnell/fluxdata/pkg/table"
	"github.com/chrissnell/fluxdata/pkg/varname"
	"github.com/google/uuid"
)

func exportFixture() (*table.Table, []varname.Descriptor) {
	nan := table.Missing()
	t := table.New(
		table.Column{Name: table.TimestampStart, Values: []float64{202001010000, 202001010030}},
		table.Column{Name: table.TimestampEnd, Values: []float64{202001010030, 202001010100}},
		table.Column{Name: "TA_1_2_1", Values: []float64{-3.5, nan}},
		table.Column{Name: "FC_F", Values: []float64{1.25, 2.5}},
	)
	reg := varname.NewRegistry([]varname.BaseName{{Name: "TA"}, {Name: "FC"}})
	return t, varname.Decode(t.Names(), reg)
}

// collect runs observationBatches and copies out every emitted batch.
func collect(tbl *table.Table, ds []varname.Descriptor, batch uuid.UUID, size int) ([][]Observation, int, int, error) {
	var batches [][]Observation
	rows, skipped, err := observationBatches("US-Ha1", tbl, ds, batch, size, func(b []Observation) error {
		batches = append(batches, append([]Observation(nil), b...))
		return nil
	})
	return batches, rows, skipped, err
}

func TestObservationBatches(t *testing.T) {
	tbl, ds := exportFixture()
	batch := uuid.New()

	batches, rows, skipped, err := collect(tbl, ds, batch, 2)
	if err != nil {
		t.Fatalf("observationBatches: %v", err)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if rows != 3 {
		t.Errorf("rows = %d, want 3", rows)
	}
	if len(batches) != 2 || len(batches[0]) != 2 || len(batches[1]) != 1 {
		t.Fatalf("batch sizes = %v, want [2 1]", batchSizes(batches))
	}

	first := batches[0][0]
	if first.Variable != "TA_1_2_1" || first.BaseName != "TA" || first.Value != -3.5 || first.GapFilled {
		t.Errorf("first observation = %+v", first)
	}
	if !first.Time.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("time = %v", first.Time)
	}
	if string(first.Qualifiers.Bytes) != `["1","2","1"]` {
		t.Errorf("qualifiers = %s", first.Qualifiers.Bytes)
	}
	if first.BatchID != batch || first.SiteID != "US-Ha1" {
		t.Errorf("batch/site = %v/%s", first.BatchID, first.SiteID)
	}

	fc := batches[1][0]
	if !fc.GapFilled || fc.BaseName != "FC" || !fc.Time.Equal(time.Date(2020, 1, 1, 0, 30, 0, 0, time.UTC)) {
		t.Errorf("FC observation = %+v", fc)
	}
}

func batchSizes(batches [][]Observation) []int {
	sizes := make([]int, len(batches))
	for i, b := range batches {
		sizes[i] = len(b)
	}
	return sizes
}

func TestObservationBatchesSkipConfiguredStructural(t *testing.T) {
	tbl, _ := exportFixture()
	tbl.Columns = append(tbl.Columns, table.Column{Name: "DOY", Values: []float64{1, 1}})

	g := varname.DefaultGrammar()
	g.StructuralColumns = append(g.StructuralColumns, "DOY")
	d, err := varname.NewDecoder(varname.NewRegistry([]varname.BaseName{{Name: "TA"}, {Name: "FC"}}), g)
	if err != nil {
		t.Fatal(err)
	}

	batches, rows, _, err := collect(tbl, d.DecodeAll(tbl.Names()), uuid.New(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if rows != 3 {
		t.Errorf("rows = %d, want 3", rows)
	}
	for _, o := range batches[0] {
		if o.Variable == "DOY" {
			t.Errorf("structural column exported: %+v", o)
		}
	}
}

func TestObservationBatchesErrors(t *testing.T) {
	tbl, ds := exportFixture()

	emitted := 0
	count := func([]Observation) error { emitted++; return nil }

	if _, _, err := observationBatches("US-Ha1", tbl, ds[:2], uuid.New(), 1, count); err == nil {
		t.Error("expected error for descriptor count mismatch")
	}

	swapped := append([]varname.Descriptor(nil), ds...)
	swapped[2], swapped[3] = swapped[3], swapped[2]
	if _, _, err := observationBatches("US-Ha1", tbl, swapped, uuid.New(), 1, count); err == nil {
		t.Error("expected error for descriptors out of column order")
	}

	noTime := table.New(table.Column{Name: "TA", Values: []float64{1}})
	if _, _, err := observationBatches("US-Ha1", noTime, varname.Decode(noTime.Names(), nil), uuid.New(), 1, count); err == nil {
		t.Error("expected error without TIMESTAMP_START")
	}
	if emitted != 0 {
		t.Errorf("%d batches emitted for invalid input", emitted)
	}

	boom := errors.New("insert failed")
	rows, _, err := observationBatches("US-Ha1", tbl, ds, uuid.New(), 1, func([]Observation) error { return boom })
	if !errors.Is(err, boom) || rows != 0 {
		t.Errorf("got rows=%d err=%v, want the emit error", rows, err)
	}
}

// TestExportRoundTrip needs a live database; set FLUXDATA_TEST_DSN to run it.
func TestExportRoundTrip(t *testing.T) {
	dsn := os.Getenv("FLUXDATA_TEST_DSN")
	if dsn == "" {
		t.Skip("FLUXDATA_TEST_DSN not set")
	}

	c := NewClient(&config.TimescaleDBData{ConnectionString: dsn}, nil)
	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	tbl, ds := exportFixture()
	res, err := c.ExportTable(ctx, "XX-Test", tbl, ds)
	if err != nil {
		t.Fatal(err)
	}
	if res.Rows != 3 {
		t.Errorf("rows = %d, want 3", res.Rows)
	}

	n, err := c.DeleteBatch(ctx, res.BatchID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("deleted %d rows, want 3", n)
	}
}
