package rangefilter

import (
	"fmt"
	"math"
)

// Bounds is the physical validity range of one base name.
type Bounds struct {
	BaseName string  `json:"base_name" msgpack:"base_name"`
	Lower    float64 `json:"lower_bound" msgpack:"lower_bound"`
	Upper    float64 `json:"upper_bound" msgpack:"upper_bound"`
	Unit     string  `json:"unit,omitempty" msgpack:"unit,omitempty"`
}

// Buffered widens the range by buffer times the magnitude of each bound.
// For non-negative bounds this is [Lower*(1-buffer), Upper*(1+buffer)].
func (b Bounds) Buffered(buffer float64) (lo, hi float64) {
	return b.Lower - math.Abs(b.Lower)*buffer, b.Upper + math.Abs(b.Upper)*buffer
}

func (b Bounds) validate() error {
	switch {
	case math.IsNaN(b.Lower) || math.IsNaN(b.Upper):
		return fmt.Errorf("bounds for %s are not numbers", b.BaseName)
	case b.Lower > b.Upper:
		return fmt.Errorf("lower bound %g exceeds upper bound %g for %s", b.Lower, b.Upper, b.BaseName)
	}
	return nil
}

// BoundsTable is an immutable snapshot of validated bounds keyed by base
// name.
type BoundsTable struct {
	byName map[string]Bounds
}

// NewBoundsTable validates entries and indexes the good ones. Each rejected
// entry yields an InvalidBounds warning; a duplicate base name keeps the
// first entry.
func NewBoundsTable(entries []Bounds) (*BoundsTable, []Warning) {
	bt := &BoundsTable{byName: make(map[string]Bounds, len(entries))}
	var warnings []Warning
	rejected := make(map[string]bool)

	for _, b := range entries {
		if err := b.validate(); err != nil {
			warnings = append(warnings, Warning{Kind: InvalidBounds, BaseName: b.BaseName, Message: err.Error()})
			rejected[b.BaseName] = true
			continue
		}
		if _, dup := bt.byName[b.BaseName]; dup || rejected[b.BaseName] {
			warnings = append(warnings, Warning{
				Kind:     DuplicateBounds,
				BaseName: b.BaseName,
				Message:  fmt.Sprintf("duplicate bounds entry for %s ignored", b.BaseName),
			})
			continue
		}
		bt.byName[b.BaseName] = b
	}

	// A base name with any malformed entry is not filtered at all.
	for name := range rejected {
		delete(bt.byName, name)
	}
	return bt, warnings
}

// Lookup returns the bounds for a base name.
func (bt *BoundsTable) Lookup(baseName string) (Bounds, bool) {
	if bt == nil {
		return Bounds{}, false
	}
	b, ok := bt.byName[baseName]
	return b, ok
}

// Len returns the number of usable entries.
func (bt *BoundsTable) Len() int {
	if bt == nil {
		return 0
	}
	return len(bt.byName)
}
