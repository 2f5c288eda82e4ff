package ic

import (
	"sort"

	"github.com/chazu/shapegraph/shape"
)

// Table holds the sites of one code unit, keyed by instruction PC.
type Table struct {
	policy Policy
	sites  map[int]*Site
}

// NewTable creates an empty table whose sites use p.
func NewTable(p Policy) *Table {
	return &Table{policy: p.normalized(), sites: make(map[int]*Site)}
}

// Policy returns the policy new sites get.
func (t *Table) Policy() Policy { return t.policy }

// GetOrCreate returns the site for pc, creating it if needed.
func (t *Table) GetOrCreate(pc int) *Site {
	if s := t.sites[pc]; s != nil {
		return s
	}
	s := NewSite(pc, t.policy)
	t.sites[pc] = s
	return s
}

// Get returns the site for pc, or nil.
func (t *Table) Get(pc int) *Site { return t.sites[pc] }

// Len returns the number of sites.
func (t *Table) Len() int { return len(t.sites) }

// Sites returns the sites ordered by PC.
func (t *Table) Sites() []*Site {
	out := make([]*Site, 0, len(t.sites))
	for _, s := range t.sites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PC < out[j].PC })
	return out
}

// Access performs a cached property read: probe the site, and on a miss do
// the full lookup and record it. It returns the value and whether the
// property exists.
func (t *Table) Access(pc int, recv *shape.Object, name string) (shape.Value, bool) {
	site := t.GetOrCreate(pc)
	if e, ok := site.Probe(recv); ok {
		if e.Holder != nil {
			return e.Holder.Slot(e.Offset), true
		}
		return recv.Slot(e.Offset), true
	}
	r := shape.Lookup(recv, name)
	site.RecordObservation(recv, r)
	if !r.Found {
		return nil, false
	}
	return r.Holder.Slot(r.Property.Offset), true
}

// Sweep drops dead entries from every site.
func (t *Table) Sweep(a *shape.Arena) int {
	n := 0
	for _, s := range t.sites {
		if s.Sweep(a) {
			n++
		}
	}
	return n
}

// Reset clears every non-terminal site.
func (t *Table) Reset() {
	for _, s := range t.sites {
		s.Reset()
	}
}

// Stats holds aggregate cache statistics.
type Stats struct {
	Sites         int
	Uninitialized int
	Monomorphic   int
	Polymorphic   int
	Generic       int
	Dictionary    int
	Hits          uint64
	Misses        uint64
	HitRate       float64 // percentage
}

// Stats gathers statistics over all sites.
func (t *Table) Stats() Stats {
	var st Stats
	for _, s := range t.sites {
		st.Sites++
		switch {
		case s.state == StateUninitialized:
			st.Uninitialized++
		case s.state.Monomorphic():
			st.Monomorphic++
		case s.state.Polymorphic():
			st.Polymorphic++
		case s.state == StateGeneric:
			st.Generic++
		case s.state == StateDictionary:
			st.Dictionary++
		}
		st.Hits += s.Hits
		st.Misses += s.Misses
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) * 100 / float64(total)
	}
	return st
}

// HitRate returns the aggregate hit rate as a percentage (0-100).
func (t *Table) HitRate() float64 {
	return t.Stats().HitRate
}
