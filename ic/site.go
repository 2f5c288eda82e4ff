// Package ic implements per-call-site inline caches over shapes.
//
// A Site records which receiver shapes a property access has seen and how
// the property was reached. It moves through the states
//
//	Uninitialized -> SelfHit | ProtoHit | ChainHit -> SelfList | ProtoList -> Generic
//
// with Dictionary as a second terminal state for receivers in dictionary
// mode. A code patcher consults CurrentState and IsSafeToEmitFastPath before
// emitting a fast path; emitting code is not this package's job.
package ic

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/shapegraph/shape"
)

var log = commonlog.GetLogger("shapegraph.ic")

// State is the cache state of a Site.
type State uint8

const (
	StateUninitialized State = iota
	StateSelfHit             // one receiver shape, own property
	StateProtoHit            // one receiver shape, property on the direct prototype
	StateChainHit            // one receiver shape, property deeper in the chain
	StateSelfList            // several receiver shapes, all own properties
	StateProtoList           // several receiver shapes, at least one via a prototype
	StateGeneric             // terminal: too many shapes or uncacheable accesses
	StateDictionary          // terminal: receivers in dictionary mode
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSelfHit:
		return "self-hit"
	case StateProtoHit:
		return "proto-hit"
	case StateChainHit:
		return "chain-hit"
	case StateSelfList:
		return "self-list"
	case StateProtoList:
		return "proto-list"
	case StateGeneric:
		return "generic"
	case StateDictionary:
		return "dictionary"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Terminal reports whether the state never changes again.
func (s State) Terminal() bool { return s == StateGeneric || s == StateDictionary }

// Monomorphic reports whether the state caches a single receiver shape.
func (s State) Monomorphic() bool {
	return s == StateSelfHit || s == StateProtoHit || s == StateChainHit
}

// Polymorphic reports whether the state caches a list of receiver shapes.
func (s State) Polymorphic() bool { return s == StateSelfList || s == StateProtoList }

// Policy holds the cache tuning constants.
type Policy struct {
	// PolymorphicBound is the most receiver shapes a site caches; one more
	// sends the site to Generic.
	PolymorphicBound int
	// MaxChainDepth is the deepest prototype hop a site caches.
	MaxChainDepth int
	// SkipFirstObservation leaves a site uninitialized on its first
	// execution and only marks it seen.
	SkipFirstObservation bool
}

// DefaultPolicy returns the engine defaults.
func DefaultPolicy() Policy {
	return Policy{PolymorphicBound: 8, MaxChainDepth: 8}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.PolymorphicBound <= 0 {
		p.PolymorphicBound = d.PolymorphicBound
	}
	if p.MaxChainDepth <= 0 {
		p.MaxChainDepth = d.MaxChainDepth
	}
	return p
}

// Entry is one cached (receiver shape, access path) pair.
type Entry struct {
	Receiver shape.ID
	Path     shape.PathKind
	Offset   int

	// For prototype and chain hits: where the property lives and the chain
	// that must still be valid for the entry to apply.
	Holder      *shape.Object
	HolderShape shape.ID
	Chain       *shape.Chain
}

// Site is the inline cache of one property access instruction.
type Site struct {
	PC int

	policy   Policy
	state    State
	entries  []Entry
	seenOnce bool
	arena    *shape.Arena // arena of the cached receiver shapes

	Hits   uint64
	Misses uint64
	Resets uint64
}

// NewSite creates an uninitialized site.
func NewSite(pc int, p Policy) *Site {
	return &Site{PC: pc, policy: p.normalized()}
}

// CurrentState returns the site's state.
func (s *Site) CurrentState() State { return s.state }

// SeenOnce reports whether the site has executed at least once.
func (s *Site) SeenOnce() bool { return s.seenOnce }

// Entries returns a copy of the cached entries.
func (s *Site) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Probe checks whether recv hits the cache. Entries whose shapes have died
// or whose prototype chain changed are dropped; a site left with no
// entries falls back to Uninitialized.
func (s *Site) Probe(recv *shape.Object) (Entry, bool) {
	if len(s.entries) == 0 {
		s.Misses++
		return Entry{}, false
	}
	id := shape.ShapeOf(recv)
	for i, e := range s.entries {
		if e.Receiver != id {
			continue
		}
		if !s.entryValid(recv.Arena(), e) {
			s.drop(i)
			break
		}
		s.Hits++
		return e, true
	}
	s.Misses++
	return Entry{}, false
}

// RecordObservation feeds the result of a full lookup on recv into the
// cache and returns the new state.
func (s *Site) RecordObservation(recv *shape.Object, r shape.LookupResult) State {
	if s.state.Terminal() {
		return s.state
	}
	rs := recv.Shape()
	if rs.IsDictionary() {
		s.terminate(StateDictionary, "dictionary receiver")
		return s.state
	}
	if !r.Found {
		// Misses are not cached; the site stays where it is.
		s.seenOnce = true
		return s.state
	}
	if r.Exotic || r.Property.Attrs.IsAccessor() {
		s.terminate(StateGeneric, "uncacheable access")
		return s.state
	}
	if r.Depth > s.policy.MaxChainDepth {
		s.terminate(StateGeneric, "prototype chain too deep")
		return s.state
	}
	if s.policy.SkipFirstObservation && !s.seenOnce {
		s.seenOnce = true
		return s.state
	}
	s.seenOnce = true

	s.arena = recv.Arena()
	e := Entry{Receiver: rs.ID(), Path: r.Path, Offset: r.Property.Offset}
	if r.Path != shape.PathSelf {
		e.Holder = r.Holder
		e.HolderShape = r.HolderShape
		e.Chain = recv.Arena().CachedChain(rs.ID())
	}

	for i := range s.entries {
		if s.entries[i].Receiver == e.Receiver {
			s.entries[i] = e
			s.refreshState()
			return s.state
		}
	}
	if len(s.entries) >= s.policy.PolymorphicBound {
		s.terminate(StateGeneric, fmt.Sprintf("more than %d receiver shapes", s.policy.PolymorphicBound))
		return s.state
	}
	s.entries = append(s.entries, e)
	s.refreshState()
	return s.state
}

// IsSafeToEmitFastPath reports whether the site is in a cached state whose
// every entry still refers to live shapes and valid chains.
func (s *Site) IsSafeToEmitFastPath() bool {
	if s.state == StateUninitialized || s.state.Terminal() || len(s.entries) == 0 {
		return false
	}
	for _, e := range s.entries {
		if !s.arena.Alive(e.Receiver) || !s.entryValid(s.arena, e) {
			return false
		}
	}
	return true
}

// Sweep drops entries whose receiver shape has died. It returns true if
// the site changed.
func (s *Site) Sweep(a *shape.Arena) bool {
	changed := false
	for i := 0; i < len(s.entries); {
		if !a.Alive(s.entries[i].Receiver) || !s.entryValid(a, s.entries[i]) {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			changed = true
			continue
		}
		i++
	}
	if changed {
		s.refreshState()
	}
	return changed
}

// Reset clears a non-terminal site back to Uninitialized.
func (s *Site) Reset() {
	if s.state.Terminal() {
		return
	}
	s.entries = nil
	s.state = StateUninitialized
	s.Resets++
}

func (s *Site) entryValid(a *shape.Arena, e Entry) bool {
	if e.Path == shape.PathSelf {
		return true
	}
	return e.Chain != nil && e.Chain.IsStillValid() && shape.ShapeOf(e.Holder) == e.HolderShape && a.Alive(e.HolderShape)
}

func (s *Site) drop(i int) {
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	log.Debugf("site %d: dropped stale entry", s.PC)
	s.refreshState()
}

func (s *Site) refreshState() {
	switch len(s.entries) {
	case 0:
		if s.state != StateUninitialized {
			s.Resets++
		}
		s.state = StateUninitialized
	case 1:
		if s.state.Polymorphic() {
			// a list never shrinks back to a single-shape state
			s.state = listState(s.entries)
			return
		}
		switch s.entries[0].Path {
		case shape.PathSelf:
			s.state = StateSelfHit
		case shape.PathProto:
			s.state = StateProtoHit
		default:
			s.state = StateChainHit
		}
	default:
		s.state = listState(s.entries)
	}
}

func listState(entries []Entry) State {
	for _, e := range entries {
		if e.Path != shape.PathSelf {
			return StateProtoList
		}
	}
	return StateSelfList
}

func (s *Site) terminate(state State, why string) {
	s.state = state
	s.entries = nil
	if log.AllowLevel(commonlog.Debug) {
		log.Debugf("site %d: %s (%s)", s.PC, state, why)
	}
}
