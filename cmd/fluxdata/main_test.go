package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chrissnell/fluxdata/pkg/client"
	"github.com/chrissnell/fluxdata/pkg/config"
	"github.com/chrissnell/fluxdata/pkg/snapshot"
	"github.com/google/go-cmp/cmp"
)

func float(v float64) *float64 { return &v }

// setupWorkspace writes a variable snapshot and a configuration file that
// points at it, returning the configuration path.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	snap := &snapshot.Snapshot{
		FetchedAt: time.Now().UTC(),
		Source:    "test",
		Variables: client.VariableLimits{
			{Name: "TA", Units: "deg C", Min: float(-50), Max: float(50)},
			{Name: "FC", Units: "umolCO2 m-2 s-1", Min: float(-100), Max: float(100)},
			{Name: "SWC", Units: "%", Min: float(0), Max: float(100)},
		},
	}
	snapPath := filepath.Join(dir, "variables.msgpack")
	if err := snapshot.Save(snapPath, snap); err != nil {
		t.Fatal(err)
	}

	cfg := "snapshot:\n  path: " + snapPath + "\n" +
		"catalog:\n  path: " + filepath.Join(dir, "catalog.db") + "\n" +
		"filter:\n  buffer: 0\n"
	cfgPath := filepath.Join(dir, "fluxdata.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestLoadConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	cfg, err := loadConfig(missing, false)
	if err != nil {
		t.Fatalf("implicit missing config should fall back to defaults: %v", err)
	}
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Errorf("fallback config mismatch (-want +got):\n%s", diff)
	}

	if _, err := loadConfig(missing, true); err == nil {
		t.Error("expected an error for an explicitly named missing config")
	}
}

func TestDecodeCommand(t *testing.T) {
	cfgPath := setupWorkspace(t)

	out, _, err := execute(t, "--config", cfgPath, "decode", "TA_1_1_1", "FC_F", "SWC_F_1_1_A")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header and 3 descriptors:\n%s", len(lines), out)
	}
	tests := []struct {
		line   int
		fields []string
	}{
		{1, []string{"TA_1_1_1", "TA", "1,1,1", "false"}},
		{2, []string{"FC_F", "FC", "F", "true"}},
		{3, []string{"SWC_F_1_1_A", "SWC", "F,1,1,A", "true"}},
	}
	for _, tt := range tests {
		got := strings.Fields(lines[tt.line])
		if len(got) < len(tt.fields) {
			t.Errorf("line %d = %q", tt.line, lines[tt.line])
			continue
		}
		if diff := cmp.Diff(tt.fields, got[:len(tt.fields)]); diff != "" {
			t.Errorf("line %d mismatch (-want +got):\n%s", tt.line, diff)
		}
	}
}

func TestFilterCommand(t *testing.T) {
	cfgPath := setupWorkspace(t)
	dir := filepath.Dir(cfgPath)

	in := filepath.Join(dir, "AMF_US-Xxx_BASE_HH_1-5.csv")
	data := "# Site: US-Xxx\n" +
		"TIMESTAMP_START,TIMESTAMP_END,TA_1_1_1,FC_F\n" +
		"202001010000,202001010030,12.5,3\n" +
		"202001010030,202001010100,75,-9999\n" +
		"202001010100,202001010130,-50,250\n"
	if err := os.WriteFile(in, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	outPath := filepath.Join(dir, "filtered.csv")

	_, stderr, err := execute(t, "--config", cfgPath, "filter", in, "-o", outPath)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if !strings.Contains(stderr, "replaced 2 values") {
		t.Errorf("stderr = %q, want 2 replacements", stderr)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	want := "# Site: US-Xxx\n" +
		"TIMESTAMP_START,TIMESTAMP_END,TA_1_1_1,FC_F\n" +
		"202001010000,202001010030,12.5,3\n" +
		"202001010030,202001010100,-9999,-9999\n" +
		"202001010100,202001010130,-50,-9999\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("filtered file mismatch (-want +got):\n%s", diff)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "fluxdata "+version) {
		t.Errorf("version output = %q", out)
	}
}
