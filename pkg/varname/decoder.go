// Package varname decodes flux variable names of the form BASE[_Q1][_Q2]...
// into a base name, its qualifier chain and the gap-fill and aggregation
// flags those qualifiers encode.
//
// Decoding is a pure function of the name, an injected Registry snapshot and
// a Grammar. It never fails: names that match no known base name are split
// at their first underscore and reported with MatchFallback.
package varname

import (
	"fmt"
	"strings"
)

// MatchKind records how the base name was resolved.
type MatchKind string

const (
	MatchRegistry   MatchKind = "registry"
	MatchStructural MatchKind = "structural"
	MatchFallback   MatchKind = "fallback"
)

// Confidence is how sure the decoder is of the derived flags.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// Descriptor is the decoded form of one variable name.
type Descriptor struct {
	Name       string   `json:"name" msgpack:"name"`
	BaseName   string   `json:"base_name" msgpack:"base_name"`
	Qualifiers []string `json:"qualifiers" msgpack:"qualifiers"`
	Unit       string   `json:"unit,omitempty" msgpack:"unit,omitempty"`

	// Position holds the positional qualifiers keyed by slot role, when the
	// trailing qualifiers fit the base name's slot convention.
	Position map[SlotRole]string `json:"position,omitempty" msgpack:"position,omitempty"`

	IsGapFilled           bool `json:"is_gap_filled" msgpack:"is_gap_filled"`
	IsLayerAggregated     bool `json:"is_layer_aggregated" msgpack:"is_layer_aggregated"`
	IsReplicateAggregated bool `json:"is_replicate_aggregated" msgpack:"is_replicate_aggregated"`

	Match      MatchKind  `json:"match" msgpack:"match"`
	Confidence Confidence `json:"confidence" msgpack:"confidence"`
	Notes      []string   `json:"notes,omitempty" msgpack:"notes,omitempty"`
}

// Degraded reports whether the base name was guessed by fallback.
func (d Descriptor) Degraded() bool {
	return d.Match == MatchFallback
}

// Join reassembles the variable name from the base name and qualifiers.
func (d Descriptor) Join() string {
	if len(d.Qualifiers) == 0 {
		return d.BaseName
	}
	return d.BaseName + "_" + strings.Join(d.Qualifiers, "_")
}

func (d *Descriptor) lower(note string) {
	d.Confidence = ConfidenceLow
	d.Notes = append(d.Notes, note)
}

// Decoder decodes variable names against one registry and grammar.
type Decoder struct {
	registry   *Registry
	grammar    Grammar
	gapTokens  map[string]struct{}
	structural map[string]struct{}
}

// NewDecoder validates g and returns a decoder bound to reg. A nil registry
// decodes every name by fallback.
func NewDecoder(reg *Registry, g Grammar) (*Decoder, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	d := &Decoder{
		registry:   reg,
		grammar:    g,
		gapTokens:  make(map[string]struct{}, len(g.GapFillTokens)),
		structural: make(map[string]struct{}, len(g.StructuralColumns)),
	}
	for _, t := range g.GapFillTokens {
		d.gapTokens[t] = struct{}{}
	}
	for _, c := range g.StructuralColumns {
		d.structural[c] = struct{}{}
	}
	return d, nil
}

// Decode decodes names against reg using DefaultGrammar. Output order and
// length match the input.
func Decode(names []string, reg *Registry) []Descriptor {
	d, err := NewDecoder(reg, DefaultGrammar())
	if err != nil {
		// DefaultGrammar is static and always valid.
		panic(err)
	}
	return d.DecodeAll(names)
}

// Registry returns the registry snapshot the decoder was built with.
func (d *Decoder) Registry() *Registry {
	return d.registry
}

// DecodeAll decodes each name, preserving order and count.
func (d *Decoder) DecodeAll(names []string) []Descriptor {
	out := make([]Descriptor, len(names))
	for i, n := range names {
		out[i] = d.Decode(n)
	}
	return out
}

// Decode decodes a single variable name.
func (d *Decoder) Decode(name string) Descriptor {
	desc := Descriptor{Name: name, Confidence: ConfidenceHigh}

	if _, ok := d.structural[name]; ok {
		desc.BaseName = name
		desc.Match = MatchStructural
		return desc
	}

	arity := d.grammar.DefaultArity
	if base, ok := d.registry.Match(name); ok {
		desc.BaseName = base.Name
		desc.Unit = base.Unit
		desc.Match = MatchRegistry
		if base.Arity > 0 {
			arity = base.Arity
		}
		if len(name) > len(base.Name) {
			desc.Qualifiers = strings.Split(name[len(base.Name)+1:], "_")
		}
	} else {
		base, rest, found := strings.Cut(name, "_")
		desc.BaseName = base
		desc.Match = MatchFallback
		if found {
			desc.Qualifiers = strings.Split(rest, "_")
		}
		desc.lower(fmt.Sprintf("base name %q is not in the registry", base))
	}

	d.derive(&desc, arity)
	return desc
}

// derive sets the gap-fill and aggregation flags from the qualifier chain.
func (d *Decoder) derive(desc *Descriptor, arity int) {
	q := desc.Qualifiers

	run := 0
	for i := len(q) - 1; i >= 0 && d.positional(q[i]); i-- {
		run++
	}

	conv, haveConv := d.grammar.Conventions[arity]
	var pos []string
	switch {
	case run == 0:
	case !haveConv:
		desc.lower(fmt.Sprintf("no slot convention for arity %d", arity))
	case run == conv.Arity():
		pos = q[len(q)-run:]
	default:
		desc.lower(fmt.Sprintf("%d positional qualifiers do not fit the arity %d convention", run, conv.Arity()))
	}

	for _, tok := range q[:len(q)-len(pos)] {
		if _, ok := d.gapTokens[tok]; ok {
			desc.IsGapFilled = true
		}
	}

	if pos == nil {
		return
	}

	desc.Position = make(map[SlotRole]string, len(pos))
	for i, role := range conv.Roles {
		desc.Position[role] = pos[i]
	}

	if conv.GapFillSlot != NoSlot && pos[conv.GapFillSlot] == d.grammar.GapFillSentinel {
		if !desc.IsGapFilled {
			desc.lower(fmt.Sprintf("gap-fill sentinel %q in slot %s may be an ordinal index",
				d.grammar.GapFillSentinel, conv.Roles[conv.GapFillSlot]))
		}
		desc.IsGapFilled = true
	}
	if conv.LayerSlot != NoSlot && pos[conv.LayerSlot] == d.grammar.AggregateSentinel {
		desc.IsLayerAggregated = true
	}
	if conv.ReplicateSlot != NoSlot && pos[conv.ReplicateSlot] == d.grammar.AggregateSentinel {
		desc.IsReplicateAggregated = true
	}
}

// positional reports whether a qualifier can occupy a positional slot: an
// unsigned integer or the aggregate sentinel.
func (d *Decoder) positional(q string) bool {
	if q == d.grammar.AggregateSentinel {
		return true
	}
	if q == "" {
		return false
	}
	for _, r := range q {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Degraded returns the descriptors that were decoded by fallback.
func Degraded(ds []Descriptor) []Descriptor {
	var out []Descriptor
	for _, d := range ds {
		if d.Degraded() {
			out = append(out, d)
		}
	}
	return out
}
