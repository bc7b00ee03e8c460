package varname

import (
	"errors"
	"fmt"
	"sort"
)

// SlotRole names the meaning of one slot in the trailing positional
// qualifier block of a variable name.
type SlotRole string

const (
	RoleHorizontal SlotRole = "H"
	RoleVertical   SlotRole = "V"
	RoleReplicate  SlotRole = "R"
	RoleLayer      SlotRole = "L"
)

// NoSlot marks a convention that has no slot for a given meaning.
const NoSlot = -1

// SlotConvention describes the positional qualifier block used by base names
// of one arity. Slot indexes count from the first positional qualifier.
type SlotConvention struct {
	Roles         []SlotRole `json:"roles" msgpack:"roles"`
	GapFillSlot   int        `json:"gap_fill_slot" msgpack:"gap_fill_slot"`
	LayerSlot     int        `json:"layer_slot" msgpack:"layer_slot"`
	ReplicateSlot int        `json:"replicate_slot" msgpack:"replicate_slot"`
}

// Arity is the number of positional slots in the convention.
func (c SlotConvention) Arity() int {
	return len(c.Roles)
}

// Grammar is the configuration the decoder matches qualifiers against. It is
// plain data so new naming conventions can be added without code changes.
type Grammar struct {
	// GapFillSentinel marks a gap-filled variable when it sits in the
	// convention's gap-fill slot.
	GapFillSentinel string
	// GapFillTokens are non-positional qualifiers that mark a gap-filled
	// variable outright, e.g. "F".
	GapFillTokens []string
	// AggregateSentinel replaces an ordinal in a layer or replicate slot
	// when the value is aggregated over that dimension.
	AggregateSentinel string
	// StructuralColumns pass through decoding as their own base name.
	StructuralColumns []string
	// DefaultArity applies to base names whose registry entry carries no
	// arity, and to names decoded by fallback.
	DefaultArity int
	// Conventions maps arity to slot semantics.
	Conventions map[int]SlotConvention
}

// DefaultGrammar returns the stock convention set: H_V_R triplets (arity 3)
// and single layer indexes (arity 1), "99" as the gap-fill sentinel in the
// last slot, "F" as the explicit gap-fill token and "A" as the aggregate
// sentinel.
func DefaultGrammar() Grammar {
	return Grammar{
		GapFillSentinel:   "99",
		GapFillTokens:     []string{"F"},
		AggregateSentinel: "A",
		StructuralColumns: []string{"TIMESTAMP_START", "TIMESTAMP_END"},
		DefaultArity:      3,
		Conventions: map[int]SlotConvention{
			1: {
				Roles:         []SlotRole{RoleLayer},
				GapFillSlot:   0,
				LayerSlot:     0,
				ReplicateSlot: NoSlot,
			},
			3: {
				Roles:         []SlotRole{RoleHorizontal, RoleVertical, RoleReplicate},
				GapFillSlot:   2,
				LayerSlot:     1,
				ReplicateSlot: 2,
			},
		},
	}
}

// Validate checks that every convention is internally consistent and that
// the default arity has a convention.
func (g Grammar) Validate() error {
	var errs []error

	if g.GapFillSentinel == "" {
		errs = append(errs, errors.New("gap-fill sentinel is empty"))
	}
	if g.AggregateSentinel == "" {
		errs = append(errs, errors.New("aggregate sentinel is empty"))
	}
	if _, ok := g.Conventions[g.DefaultArity]; !ok {
		errs = append(errs, fmt.Errorf("no slot convention for default arity %d", g.DefaultArity))
	}

	arities := make([]int, 0, len(g.Conventions))
	for a := range g.Conventions {
		arities = append(arities, a)
	}
	sort.Ints(arities)

	for _, arity := range arities {
		c := g.Conventions[arity]
		if arity < 1 {
			errs = append(errs, fmt.Errorf("arity %d: must be at least 1", arity))
			continue
		}
		if c.Arity() != arity {
			errs = append(errs, fmt.Errorf("arity %d: convention lists %d roles", arity, c.Arity()))
			continue
		}
		for name, slot := range map[string]int{"gap-fill": c.GapFillSlot, "layer": c.LayerSlot, "replicate": c.ReplicateSlot} {
			if slot != NoSlot && (slot < 0 || slot >= arity) {
				errs = append(errs, fmt.Errorf("arity %d: %s slot %d out of range", arity, name, slot))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid grammar: %w", errors.Join(errs...))
	}
	return nil
}
