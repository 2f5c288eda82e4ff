package shape

import (
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("shapegraph.shape")

// Arena owns shapes and hands out ID handles to them.
//
// Every ID returned by Create, Root or a transition method carries one
// reference owned by the caller; Object.adopt is the only place objects
// trade references. A shape holds a reference to its previous shape, while
// transition tables hold none, so an unreferenced successor is freed
// independently of its parent and its table entry is dropped.
type Arena struct {
	id     uuid.UUID
	policy Policy
	diag   Diagnostics

	// held only when policy.Concurrent is set
	mu sync.Mutex

	entries []entry
	free    []uint32
	roots   map[rootKey]ID
	serial  uint64
	stats   Stats
}

type entry struct {
	shape *Shape
	gen   uint32
	refs  int32
}

type rootKey struct {
	proto    *Object
	typeInfo TypeInfo
}

// Stats counts arena activity.
type Stats struct {
	Live             int
	Allocated        int
	Freed            int
	Dictionaries     int
	TransitionHits   int
	TransitionMisses int
	FanoutOverflows  int
	Discarded        int
}

// NewArena creates an arena. A nil diag discards lifetime events.
func NewArena(p Policy, diag Diagnostics) *Arena {
	if diag == nil {
		diag = nopDiagnostics{}
	}
	a := &Arena{
		id:     uuid.New(),
		policy: p.normalized(),
		diag:   diag,
		roots:  make(map[rootKey]ID),
	}
	log.Debugf("arena %s created (max-transitions=%d, concurrent=%v)", a.id, a.policy.MaxTransitions, a.policy.Concurrent)
	return a
}

// UUID identifies the arena in diagnostics and snapshots.
func (a *Arena) UUID() uuid.UUID { return a.id }

// Policy returns the normalized policy in effect.
func (a *Arena) Policy() Policy { return a.policy }

func (a *Arena) lock() {
	if a.policy.Concurrent {
		a.mu.Lock()
	}
}

func (a *Arena) unlock() {
	if a.policy.Concurrent {
		a.mu.Unlock()
	}
}

func (a *Arena) locked(fn func()) {
	a.lock()
	defer a.unlock()
	fn()
}

// Shape returns the shape for id, or nil if id is dead.
func (a *Arena) Shape(id ID) *Shape {
	var s *Shape
	a.locked(func() { s = a.lookup(id) })
	return s
}

// Alive reports whether id names a live shape.
func (a *Arena) Alive(id ID) bool {
	return a.Shape(id) != nil
}

// RefCount returns the number of references held on id (0 if dead).
func (a *Arena) RefCount(id ID) int {
	n := 0
	a.locked(func() {
		if a.lookup(id) != nil {
			n = int(a.entries[id.index()].refs)
		}
	})
	return n
}

// Retain adds a reference to id.
func (a *Arena) Retain(id ID) {
	a.locked(func() { a.retain(id) })
}

// Release drops a reference to id, freeing it (and any ancestors it kept
// alive) when the count reaches zero.
func (a *Arena) Release(id ID) {
	a.locked(func() { a.release(id) })
}

// Stats returns a copy of the arena counters.
func (a *Arena) Stats() Stats {
	var st Stats
	a.locked(func() { st = a.stats })
	return st
}

// EachShape calls fn for every live shape in index order until fn returns
// false.
func (a *Arena) EachShape(fn func(*Shape) bool) {
	a.locked(func() {
		for i := range a.entries {
			if s := a.entries[i].shape; s != nil {
				if !fn(s) {
					return
				}
			}
		}
	})
}

// Create returns a fresh root shape with an empty layout.
func (a *Arena) Create(proto *Object, typeInfo TypeInfo) ID {
	var id ID
	a.locked(func() { id = a.create(proto, typeInfo) })
	return id
}

// Root returns the cached root shape for (proto, typeInfo), creating it on
// first use. The cache holds its own reference to each root.
func (a *Arena) Root(proto *Object, typeInfo TypeInfo) ID {
	var id ID
	a.locked(func() {
		key := rootKey{proto: proto, typeInfo: typeInfo}
		if cached, ok := a.roots[key]; ok && a.lookup(cached) != nil {
			id = cached
			a.retain(id)
			return
		}
		id = a.create(proto, typeInfo)
		a.roots[key] = id
		a.retain(id)
	})
	return id
}

// ClearRootCache drops the cache's references to root shapes. Roots still
// used by objects stay alive; the rest, and their unused successors, are
// freed.
func (a *Arena) ClearRootCache() {
	a.locked(func() {
		roots := a.roots
		a.roots = make(map[rootKey]ID)
		for _, id := range roots {
			if a.lookup(id) != nil {
				a.release(id)
			}
		}
	})
}

func (a *Arena) create(proto *Object, typeInfo TypeInfo) ID {
	props := NewPropertyMap()
	props.freeze()
	return a.alloc(&Shape{typeInfo: typeInfo, proto: proto, props: props})
}

func (a *Arena) nextSerial() uint64 {
	var n uint64
	a.locked(func() {
		a.serial++
		n = a.serial
	})
	return n
}

// The helpers below assume the arena lock is held.

func (a *Arena) lookup(id ID) *Shape {
	i := id.index()
	if id == InvalidID || int(i) >= len(a.entries) {
		return nil
	}
	e := &a.entries[i]
	if e.shape == nil || e.gen != id.gen() {
		return nil
	}
	return e.shape
}

func (a *Arena) get(id ID) *Shape {
	s := a.lookup(id)
	if s == nil {
		contractf("use of dead shape %s", id)
	}
	return s
}

func (a *Arena) alloc(s *Shape) ID {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.entries))
		a.entries = append(a.entries, entry{gen: 1})
	}
	e := &a.entries[idx]
	s.id = makeID(idx, e.gen)
	e.shape = s
	e.refs = 1
	if s.previous != InvalidID {
		a.retain(s.previous)
	}
	holdProto(s.proto)
	a.stats.Live++
	a.stats.Allocated++
	if s.dictionary {
		a.stats.Dictionaries++
	}
	a.diag.ShapeAllocated(a.id, s.id, s.edge)
	return s.id
}

func (a *Arena) retain(id ID) {
	a.get(id)
	a.entries[id.index()].refs++
}

func (a *Arena) release(id ID) {
	for id != InvalidID {
		s := a.get(id)
		e := &a.entries[id.index()]
		e.refs--
		if e.refs > 0 {
			return
		}
		parent := s.previous
		if p := a.lookup(parent); p != nil {
			p.transitions.Remove(KeyOf(s.edge), id)
		}
		e.shape = nil
		e.refs = 0
		if e.gen++; e.gen != 0 {
			a.free = append(a.free, id.index())
		}
		a.stats.Live--
		a.stats.Freed++
		a.diag.ShapeFreed(a.id, id)
		dropProto(s.proto)
		id = parent
	}
}

// holdProto and dropProto count the shapes that use an object as their
// prototype. Dropping the last hold finishes a deferred Object.Release.
func holdProto(p *Object) {
	if p != nil {
		p.protoHolds++
	}
}

func dropProto(p *Object) {
	if p == nil {
		return
	}
	p.protoHolds--
	if p.protoHolds == 0 && p.releasePending {
		p.drop()
	}
}

// setProto replaces the prototype of a dictionary shape edited in place.
func setProto(s *Shape, proto *Object) {
	holdProto(proto)
	dropProto(s.proto)
	s.proto = proto
}
