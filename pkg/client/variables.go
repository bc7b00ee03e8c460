package client

import (
	"context"
	"fmt"
	"sort"

	"github.com/chrissnell/fluxdata/pkg/rangefilter"
	"github.com/chrissnell/fluxdata/pkg/varname"
)

// VariableLimit is one row of the repository's variable reference list.
// Min and Max are nil when the repository publishes no physical range.
type VariableLimit struct {
	Name        string   `json:"Name" msgpack:"name"`
	Description string   `json:"Description" msgpack:"description"`
	Units       string   `json:"Units" msgpack:"units"`
	Min         *float64 `json:"Min" msgpack:"min"`
	Max         *float64 `json:"Max" msgpack:"max"`
}

// VariableLimits is the full variable reference list.
type VariableLimits []VariableLimit

// VariableLimits fetches the variable reference list, sorted by name.
func (c *Client) VariableLimits(ctx context.Context) (VariableLimits, error) {
	var vl VariableLimits
	if err := c.getJSON(ctx, c.cfg.VariableLimitsURL, &vl); err != nil {
		return nil, fmt.Errorf("fetching variable limits: %w", err)
	}
	sort.Slice(vl, func(i, j int) bool { return vl[i].Name < vl[j].Name })
	c.logger.Infof("fetched %d variable definitions", len(vl))
	return vl, nil
}

// Registry builds the base-name registry snapshot the decoder matches
// against. arity overrides the positional arity of individual base names.
func (vl VariableLimits) Registry(arity map[string]int) *varname.Registry {
	entries := make([]varname.BaseName, 0, len(vl))
	for _, v := range vl {
		entries = append(entries, varname.BaseName{Name: v.Name, Unit: v.Units})
	}
	reg := varname.NewRegistry(entries)
	if len(arity) > 0 {
		reg = reg.WithArity(arity)
	}
	return reg
}

// Bounds returns the physical ranges for every variable that has both a
// minimum and a maximum.
func (vl VariableLimits) Bounds() []rangefilter.Bounds {
	var out []rangefilter.Bounds
	for _, v := range vl {
		if v.Min == nil || v.Max == nil {
			continue
		}
		out = append(out, rangefilter.Bounds{
			BaseName: v.Name,
			Lower:    *v.Min,
			Upper:    *v.Max,
			Unit:     v.Units,
		})
	}
	return out
}
