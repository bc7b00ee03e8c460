// Package snapshot persists a point-in-time copy of the repository's
// variable reference list, so decoding and filtering are reproducible and
// work without network access.
package snapshot

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chrissnell/fluxdata/pkg/client"
	"github.com/vmihailenco/msgpack/v5"
)

// FormatVersion is bumped whenever the on-disk layout changes.
const FormatVersion = 1

// Snapshot is the persisted reference data.
type Snapshot struct {
	Version   int                   `msgpack:"version"`
	FetchedAt time.Time             `msgpack:"fetched_at"`
	Source    string                `msgpack:"source"`
	Variables client.VariableLimits `msgpack:"variables"`
	Arity     map[string]int        `msgpack:"arity,omitempty"`
}

// Age reports how long ago the snapshot was taken.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// Save writes s to path atomically.
func Save(path string, s *Snapshot) error {
	if s.Version == 0 {
		s.Version = FormatVersion
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := msgpack.NewEncoder(w).Encode(s); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// ErrVersion is returned by Load for a snapshot written in another format.
var ErrVersion = errors.New("unsupported snapshot version")

// Load reads a snapshot written by Save.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	var s Snapshot
	if err := msgpack.NewDecoder(bufio.NewReader(f)).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", path, err)
	}
	if s.Version != FormatVersion {
		return nil, fmt.Errorf("%s has version %d: %w", path, s.Version, ErrVersion)
	}
	return &s, nil
}
