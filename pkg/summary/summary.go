// Package summary computes descriptive statistics and year-by-year data
// coverage for a measurement table.
package summary

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/chrissnell/fluxdata/pkg/table"
	"github.com/chrissnell/fluxdata/pkg/varname"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultQuantiles are reported when Summarize is given none.
var DefaultQuantiles = []float64{0.05, 0.25, 0.5, 0.75, 0.95}

// Quantile is one empirical quantile of a column.
type Quantile struct {
	P     float64 `json:"p"`
	Value float64 `json:"value"`
}

// Stats summarizes one column. N counts non-missing values. When N is
// zero every statistic is NaN.
type Stats struct {
	Name      string     `json:"name"`
	BaseName  string     `json:"base_name"`
	Unit      string     `json:"unit,omitempty"`
	GapFilled bool       `json:"gap_filled"`
	N         int        `json:"n"`
	Missing   int        `json:"missing"`
	Mean      float64    `json:"mean"`
	StdDev    float64    `json:"std_dev"`
	Min       float64    `json:"min"`
	Max       float64    `json:"max"`
	Quantiles []Quantile `json:"quantiles"`
}

// Summarize returns statistics for every non-structural column of t, in
// column order. descriptors may be nil; when given they must come from
// decoding t's column names and supply base names, units, gap-fill flags
// and which columns are structural. probs must lie in [0, 1].
func Summarize(t *table.Table, descriptors []varname.Descriptor, probs []float64) ([]Stats, error) {
	if err := checkDescriptors(t, descriptors); err != nil {
		return nil, err
	}
	if probs == nil {
		probs = DefaultQuantiles
	}
	for _, p := range probs {
		if p < 0 || p > 1 || math.IsNaN(p) {
			return nil, fmt.Errorf("quantile %v outside [0, 1]", p)
		}
	}

	var out []Stats
	for i, c := range t.Columns {
		if structural(c.Name, i, descriptors) {
			continue
		}
		s := Stats{Name: c.Name, BaseName: c.Name}
		if descriptors != nil {
			d := descriptors[i]
			s.BaseName, s.Unit, s.GapFilled = d.BaseName, d.Unit, d.IsGapFilled
		}
		describe(&s, c.Values, probs)
		out = append(out, s)
	}
	return out, nil
}

func checkDescriptors(t *table.Table, descriptors []varname.Descriptor) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if descriptors == nil {
		return nil
	}
	if len(descriptors) != len(t.Columns) {
		return fmt.Errorf("got %d descriptors for %d columns", len(descriptors), len(t.Columns))
	}
	for i, c := range t.Columns {
		if descriptors[i].Name != c.Name {
			return fmt.Errorf("descriptor %d is for %s, column is %s", i, descriptors[i].Name, c.Name)
		}
	}
	return nil
}

// structural uses the decoder's verdict when there is one, so configured
// structural columns are honoured.
func structural(name string, i int, descriptors []varname.Descriptor) bool {
	if descriptors == nil {
		return table.IsStructural(name)
	}
	return descriptors[i].Match == varname.MatchStructural
}

func describe(s *Stats, values []float64, probs []float64) {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !table.IsMissing(v) {
			present = append(present, v)
		}
	}
	s.N = len(present)
	s.Missing = len(values) - len(present)

	s.Quantiles = make([]Quantile, len(probs))
	if s.N == 0 {
		nan := math.NaN()
		s.Mean, s.StdDev, s.Min, s.Max = nan, nan, nan, nan
		for i, p := range probs {
			s.Quantiles[i] = Quantile{P: p, Value: nan}
		}
		return
	}

	sort.Float64s(present)
	s.Mean, s.StdDev = stat.MeanStdDev(present, nil)
	if s.N == 1 {
		s.StdDev = 0
	}
	s.Min = floats.Min(present)
	s.Max = floats.Max(present)
	for i, p := range probs {
		s.Quantiles[i] = Quantile{P: p, Value: stat.Quantile(p, stat.Empirical, present, nil)}
	}
}

// MarshalJSON writes NaN as null, which encoding/json cannot represent.
func (q Quantile) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		P     float64  `json:"p"`
		Value *float64 `json:"value"`
	}{q.P, finite(q.Value)})
}

// MarshalJSON writes NaN statistics as null.
func (s Stats) MarshalJSON() ([]byte, error) {
	type plain Stats
	return json.Marshal(struct {
		plain
		Mean   *float64 `json:"mean"`
		StdDev *float64 `json:"std_dev"`
		Min    *float64 `json:"min"`
		Max    *float64 `json:"max"`
	}{plain(s), finite(s.Mean), finite(s.StdDev), finite(s.Min), finite(s.Max)})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// YearCoverage is the fraction of non-missing values of one column in one
// calendar year.
type YearCoverage struct {
	Year     int     `json:"year"`
	Rows     int     `json:"rows"`
	Present  int     `json:"present"`
	Fraction float64 `json:"fraction"`
}

// ColumnCoverage lists a column's coverage by year, ascending.
type ColumnCoverage struct {
	Name  string         `json:"name"`
	Years []YearCoverage `json:"years"`
}

// Coverage groups rows by the year of TIMESTAMP_START and reports, for each
// non-structural column, how many values are present. descriptors may be
// nil, as for Summarize.
func Coverage(t *table.Table, descriptors []varname.Descriptor) ([]ColumnCoverage, error) {
	if err := checkDescriptors(t, descriptors); err != nil {
		return nil, err
	}
	times, err := t.Times(table.TimestampStart)
	if err != nil {
		return nil, err
	}

	rowYears := make([]int, len(times))
	var years []int
	seen := make(map[int]bool)
	for i, ts := range times {
		rowYears[i] = ts.Year()
		if !seen[ts.Year()] {
			seen[ts.Year()] = true
			years = append(years, ts.Year())
		}
	}
	sort.Ints(years)
	index := make(map[int]int, len(years))
	for i, y := range years {
		index[y] = i
	}

	var out []ColumnCoverage
	for i, c := range t.Columns {
		if structural(c.Name, i, descriptors) {
			continue
		}
		cc := ColumnCoverage{Name: c.Name, Years: make([]YearCoverage, len(years))}
		for i, y := range years {
			cc.Years[i].Year = y
		}
		for row, v := range c.Values {
			yc := &cc.Years[index[rowYears[row]]]
			yc.Rows++
			if !table.IsMissing(v) {
				yc.Present++
			}
		}
		for i := range cc.Years {
			cc.Years[i].Fraction = float64(cc.Years[i].Present) / float64(cc.Years[i].Rows)
		}
		out = append(out, cc)
	}
	return out, nil
}
