package varname

import (
	"sort"
	"strings"
)

// BaseName is one entry of the known base-name registry.
type BaseName struct {
	Name string `json:"name" msgpack:"name"`
	Unit string `json:"unit,omitempty" msgpack:"unit,omitempty"`
	// Arity is the number of positional qualifier slots the base name uses.
	// Zero means the grammar's default arity.
	Arity int `json:"arity,omitempty" msgpack:"arity,omitempty"`
}

// Registry is an immutable snapshot of known base names.
type Registry struct {
	entries []BaseName
	byName  map[string]BaseName
}

// NewRegistry builds a registry snapshot. Later entries with a duplicate
// name replace earlier ones. Entries with an empty name are ignored.
func NewRegistry(entries []BaseName) *Registry {
	r := &Registry{byName: make(map[string]BaseName, len(entries))}
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		r.byName[e.Name] = e
	}

	r.entries = make([]BaseName, 0, len(r.byName))
	for _, e := range r.byName {
		r.entries = append(r.entries, e)
	}
	// Longest first, so listings show the most specific names ahead of
	// their prefixes.
	sort.Slice(r.entries, func(i, j int) bool {
		if len(r.entries[i].Name) != len(r.entries[j].Name) {
			return len(r.entries[i].Name) > len(r.entries[j].Name)
		}
		return r.entries[i].Name < r.entries[j].Name
	})
	return r
}

// Len returns the number of base names.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Entries returns a copy of the registry, longest names first.
func (r *Registry) Entries() []BaseName {
	if r == nil {
		return nil
	}
	out := make([]BaseName, len(r.entries))
	copy(out, r.entries)
	return out
}

// Lookup returns the entry for an exact base name.
func (r *Registry) Lookup(name string) (BaseName, bool) {
	if r == nil {
		return BaseName{}, false
	}
	e, ok := r.byName[name]
	return e, ok
}

// Match returns the longest known base name that equals name or is a prefix
// of name ending on an underscore boundary.
func (r *Registry) Match(name string) (BaseName, bool) {
	if r == nil || name == "" {
		return BaseName{}, false
	}
	if e, ok := r.byName[name]; ok {
		return e, true
	}
	for i := strings.LastIndexByte(name, '_'); i > 0; i = strings.LastIndexByte(name[:i], '_') {
		if e, ok := r.byName[name[:i]]; ok {
			return e, true
		}
	}
	return BaseName{}, false
}

// WithArity returns a new registry with the arity of the named base names
// replaced. Names not already in the registry are added.
func (r *Registry) WithArity(overrides map[string]int) *Registry {
	entries := r.Entries()
	seen := make(map[string]bool, len(entries))
	for i := range entries {
		seen[entries[i].Name] = true
		if a, ok := overrides[entries[i].Name]; ok {
			entries[i].Arity = a
		}
	}
	for name, a := range overrides {
		if !seen[name] {
			entries = append(entries, BaseName{Name: name, Arity: a})
		}
	}
	return NewRegistry(entries)
}
