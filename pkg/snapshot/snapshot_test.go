package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/fluxdata/pkg/client"
	"github.com/google/go-cmp/cmp"
	"github.com/vmihailenco/msgpack/v5"
)

func fp(f float64) *float64 { return &f }

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "limits.msgpack")
	fetched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	in := &Snapshot{
		FetchedAt: fetched,
		Source:    "https://example.org/limits",
		Variables: client.VariableLimits{
			{Name: "PA", Units: "kPa", Min: fp(60), Max: fp(105)},
			{Name: "FC_SSITC_TEST", Units: "nondimensional"},
		},
		Arity: map[string]int{"SWC": 3},
	}
	if err := Save(path, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !out.FetchedAt.Equal(fetched) {
		t.Errorf("FetchedAt = %v, want %v", out.FetchedAt, fetched)
	}
	if diff := cmp.Diff(in.Variables, out.Variables); diff != "" {
		t.Errorf("variables mismatch (-want +got):\n%s", diff)
	}
	if out.Arity["SWC"] != 3 {
		t.Errorf("arity = %v", out.Arity)
	}
	if out.Age(fetched.Add(time.Hour)) != time.Hour {
		t.Errorf("Age = %v", out.Age(fetched.Add(time.Hour)))
	}
}

func TestLoadRejectsOtherVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.msgpack")
	b, err := msgpack.Marshal(&Snapshot{Version: 99})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrVersion) {
		t.Errorf("expected ErrVersion, got %v", err)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "none")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
