// Package rangefilter replaces physically implausible values in a
// measurement table with the missing marker, using per-base-name bounds
// widened by a tolerance buffer.
package rangefilter

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/chrissnell/fluxdata/internal/log"
	"github.com/chrissnell/fluxdata/pkg/table"
	"github.com/chrissnell/fluxdata/pkg/varname"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBuffer is the default tolerance applied to each bound.
const DefaultBuffer = 0.05

// WarningKind classifies a non-fatal data-quality condition.
type WarningKind string

const (
	InvalidBounds   WarningKind = "invalid_bounds"
	DuplicateBounds WarningKind = "duplicate_bounds"
	DegradedDecode  WarningKind = "degraded_decode"
)

// Warning is a non-fatal condition found while filtering.
type Warning struct {
	Kind     WarningKind `json:"kind" msgpack:"kind"`
	BaseName string      `json:"base_name,omitempty" msgpack:"base_name,omitempty"`
	Column   string      `json:"column,omitempty" msgpack:"column,omitempty"`
	Message  string      `json:"message" msgpack:"message"`
}

// ColumnResult describes what happened to one column.
type ColumnResult struct {
	Name     string  `json:"name" msgpack:"name"`
	BaseName string  `json:"base_name" msgpack:"base_name"`
	Filtered bool    `json:"filtered" msgpack:"filtered"`
	Lower    float64 `json:"lower,omitempty" msgpack:"lower,omitempty"`
	Upper    float64 `json:"upper,omitempty" msgpack:"upper,omitempty"`
	Replaced int     `json:"replaced" msgpack:"replaced"`
}

// Report collects per-column outcomes and every non-fatal warning.
type Report struct {
	Buffer   float64        `json:"buffer" msgpack:"buffer"`
	Columns  []ColumnResult `json:"columns" msgpack:"columns"`
	Warnings []Warning      `json:"warnings,omitempty" msgpack:"warnings,omitempty"`
}

// Replaced returns the total number of values replaced across all columns.
func (r *Report) Replaced() int {
	n := 0
	for _, c := range r.Columns {
		n += c.Replaced
	}
	return n
}

// Filter applies bounds to measurement tables.
type Filter struct {
	decoder *varname.Decoder
	buffer  float64
	workers int
	logger  *zap.SugaredLogger
}

// Option configures a Filter.
type Option func(*Filter)

// WithBuffer sets the tolerance fraction applied to each bound.
func WithBuffer(buffer float64) Option {
	return func(f *Filter) {
		f.buffer = buffer
	}
}

// WithWorkers bounds the number of columns filtered concurrently.
func WithWorkers(n int) Option {
	return func(f *Filter) {
		if n > 0 {
			f.workers = n
		}
	}
}

// WithLogger sets the logger that data-quality warnings are written to.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(f *Filter) {
		f.logger = logger
	}
}

// New returns a Filter that resolves column base names with decoder.
func New(decoder *varname.Decoder, opts ...Option) *Filter {
	f := &Filter{
		decoder: decoder,
		buffer:  DefaultBuffer,
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.decoder == nil {
		f.decoder, _ = varname.NewDecoder(nil, varname.DefaultGrammar())
	}
	f.logger = log.OrNop(f.logger)
	return f
}

// Apply filters t against bounds with the default grammar and the given
// buffer. It is a shorthand for New(...).Apply.
func Apply(t *table.Table, bounds []Bounds, reg *varname.Registry, buffer float64) (*table.Table, *Report, error) {
	d, err := varname.NewDecoder(reg, varname.DefaultGrammar())
	if err != nil {
		return nil, nil, err
	}
	return New(d, WithBuffer(buffer)).Apply(context.Background(), t, bounds)
}

// Apply returns a filtered copy of t. The input table is never modified.
// A table whose columns differ in length is rejected with a
// *table.ShapeError; malformed bounds entries only disable filtering of
// their own base name.
func (f *Filter) Apply(ctx context.Context, t *table.Table, bounds []Bounds) (*table.Table, *Report, error) {
	if math.IsNaN(f.buffer) || f.buffer < 0 {
		return nil, nil, fmt.Errorf("rangefilter: buffer must be a non-negative number, got %v", f.buffer)
	}
	if err := t.Validate(); err != nil {
		return nil, nil, fmt.Errorf("rangefilter: %w", err)
	}

	bt, warnings := NewBoundsTable(bounds)
	report := &Report{
		Buffer:   f.buffer,
		Columns:  make([]ColumnResult, len(t.Columns)),
		Warnings: warnings,
	}
	out := &table.Table{Columns: make([]table.Column, len(t.Columns))}
	colWarnings := make([][]Warning, len(t.Columns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i := range t.Columns {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out.Columns[i], report.Columns[i], colWarnings[i] = f.filterColumn(t.Columns[i], bt)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	for _, w := range colWarnings {
		report.Warnings = append(report.Warnings, w...)
	}
	for _, w := range report.Warnings {
		f.logger.Warnw("data-quality warning",
			"kind", w.Kind,
			"base_name", w.BaseName,
			"column", w.Column,
			"message", w.Message)
	}

	return out, report, nil
}

// filterColumn works on one column only; it shares nothing with the others.
func (f *Filter) filterColumn(c table.Column, bt *BoundsTable) (table.Column, ColumnResult, []Warning) {
	desc := f.decoder.Decode(c.Name)
	res := ColumnResult{Name: c.Name, BaseName: desc.BaseName}
	if desc.Match == varname.MatchStructural {
		return c.Clone(), res, nil
	}

	var warnings []Warning
	if desc.Degraded() {
		warnings = append(warnings, Warning{
			Kind:     DegradedDecode,
			BaseName: desc.BaseName,
			Column:   c.Name,
			Message:  fmt.Sprintf("column %s decoded by fallback", c.Name),
		})
	}

	b, ok := bt.Lookup(desc.BaseName)
	if !ok {
		return c.Clone(), res, warnings
	}

	lo, hi := b.Buffered(f.buffer)
	res.Filtered = true
	res.Lower, res.Upper = lo, hi

	vals := make([]float64, len(c.Values))
	for i, v := range c.Values {
		if v < lo || v > hi {
			vals[i] = table.Missing()
			res.Replaced++
			continue
		}
		vals[i] = v
	}
	return table.Column{Name: c.Name, Values: vals}, res, warnings
}
