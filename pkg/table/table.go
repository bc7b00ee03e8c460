// Package table holds the wide, column-oriented measurement table that flux
// time series are decoded into, along with the BASE file codec.
package table

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

const (
	// MissingValue is the missing-data marker used in BASE files.
	MissingValue = -9999

	// TimestampStart and TimestampEnd are the structural columns that bracket
	// each averaging period. They are never filtered or decoded as variables.
	TimestampStart = "TIMESTAMP_START"
	TimestampEnd   = "TIMESTAMP_END"

	// TimestampLayout is the YYYYMMDDHHMM layout used by the timestamp columns.
	TimestampLayout = "200601021504"
)

// Column is a single named series of values. Missing values are NaN.
type Column struct {
	Name   string
	Values []float64
}

// Table is an ordered set of equal-length columns aligned by row index.
type Table struct {
	Columns []Column
}

// ShapeError reports a table whose columns are not all the same length, or
// which carries the same column name twice.
type ShapeError struct {
	Column    string
	Want      int
	Got       int
	Duplicate bool
}

func (e *ShapeError) Error() string {
	if e.Duplicate {
		return fmt.Sprintf("table: duplicate column %q", e.Column)
	}
	return fmt.Sprintf("table: column %q has %d rows, expected %d", e.Column, e.Got, e.Want)
}

// New builds a table from the given columns. The columns are used as-is.
func New(cols ...Column) *Table {
	return &Table{Columns: cols}
}

// Missing returns the in-memory missing marker.
func Missing() float64 {
	return math.NaN()
}

// IsMissing reports whether v is the in-memory missing marker.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// IsStructural reports whether name is one of the timestamp columns.
func IsStructural(name string) bool {
	return name == TimestampStart || name == TimestampEnd
}

// Validate checks that every column has the same number of rows and that
// column names are unique.
func (t *Table) Validate() error {
	if len(t.Columns) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(t.Columns))
	want := len(t.Columns[0].Values)
	for _, c := range t.Columns {
		if _, dup := seen[c.Name]; dup {
			return &ShapeError{Column: c.Name, Duplicate: true}
		}
		seen[c.Name] = struct{}{}
		if len(c.Values) != want {
			return &ShapeError{Column: c.Name, Want: want, Got: len(c.Values)}
		}
	}
	return nil
}

// Rows returns the number of rows, taken from the first column.
func (t *Table) Rows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Values)
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{Columns: make([]Column, len(t.Columns))}
	for i, c := range t.Columns {
		out.Columns[i] = c.Clone()
	}
	return out
}

// Clone returns a deep copy of the column.
func (c Column) Clone() Column {
	vals := make([]float64, len(c.Values))
	copy(vals, c.Values)
	return Column{Name: c.Name, Values: vals}
}

// Times parses the named timestamp column. Missing timestamps become the
// zero time.
func (t *Table) Times(name string) ([]time.Time, error) {
	col, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("table: no column %q", name)
	}
	out := make([]time.Time, len(col.Values))
	for i, v := range col.Values {
		if IsMissing(v) {
			continue
		}
		ts, err := ParseTimestamp(strconv.FormatInt(int64(v), 10))
		if err != nil {
			return nil, fmt.Errorf("table: row %d of %s: %w", i, name, err)
		}
		out[i] = ts
	}
	return out, nil
}

// ParseTimestamp parses a YYYYMMDDHHMM timestamp as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, s, time.UTC)
}
