package shape

import "fmt"

// ID is a handle to a Shape in an Arena. The low 32 bits index the arena's
// table and the high 32 bits hold the slot generation, so an ID to a freed
// shape never compares equal to the ID of the shape that reuses its slot.
type ID uint64

// InvalidID is the zero handle; it never names a live shape.
const InvalidID ID = 0

func makeID(index, gen uint32) ID { return ID(uint64(gen)<<32 | uint64(index)) }

func (id ID) index() uint32 { return uint32(id) }
func (id ID) gen() uint32   { return uint32(id >> 32) }

func (id ID) String() string {
	if id == InvalidID {
		return "S-"
	}
	return fmt.Sprintf("S%d.%d", id.index(), id.gen())
}

// Shape describes the layout and prototype shared by every object that has
// it. A shareable shape is immutable once published apart from its
// transition table and lazily built caches. Dictionary shapes belong to a
// single object and are edited in place.
type Shape struct {
	id       ID
	typeInfo TypeInfo
	proto    *Object
	props    *PropertyMap
	capacity int

	dictionary      bool
	hasGetterSetter bool

	previous ID
	edge     Edge
	// number of properties added along the shareable path from the root
	length int

	transitions TransitionTable

	// bumped on every in-place edit of a dictionary shape
	version uint32

	chain *Chain
}

func (s *Shape) ID() ID                { return s.id }
func (s *Shape) TypeInfo() TypeInfo    { return s.typeInfo }
func (s *Shape) Prototype() *Object    { return s.proto }
func (s *Shape) Capacity() int         { return s.capacity }
func (s *Shape) IsDictionary() bool    { return s.dictionary }
func (s *Shape) HasGetterSetter() bool { return s.hasGetterSetter }
func (s *Shape) Previous() ID          { return s.previous }
func (s *Shape) Edge() Edge            { return s.edge }
func (s *Shape) Version() uint32       { return s.version }
func (s *Shape) TransitionCount() int  { return s.transitions.Len() }
func (s *Shape) PropertyCount() int    { return s.props.Len() }

// Get returns the property named name in this layout.
func (s *Shape) Get(name string) (Property, bool) { return s.props.Get(name) }

// PropertyMap returns the layout. Callers must treat it as read-only.
func (s *Shape) PropertyMap() *PropertyMap { return s.props }

// OffsetFor returns the slot offset of name in this layout.
func (s *Shape) OffsetFor(name string) (int, bool) { return s.props.OffsetFor(name) }

// IsExtensible reports whether properties may still be added.
func (s *Shape) IsExtensible() bool { return s.typeInfo&NonExtensible == 0 }

// EnumerableKeys returns the cached enumeration key list. The slice must
// not be modified.
func (s *Shape) EnumerableKeys() []string { return s.props.EnumerableNames() }

// Transitions calls fn for each outgoing transition.
func (s *Shape) Transitions(fn func(EdgeKey, ID) bool) { s.transitions.Each(fn) }

func (s *Shape) String() string {
	kind := "shared"
	if s.dictionary {
		kind = "dict"
	}
	return fmt.Sprintf("%s{%s props=%d cap=%d edge=%v}", s.id, kind, s.props.Len(), s.capacity, s.edge)
}

// RefKind identifies what a Reference points at.
type RefKind uint8

const (
	RefPrototype RefKind = iota
	RefShape
	RefPrevious
	RefChainLink
	RefSlotValue
)

// Reference is one outgoing reference reported to a tracing collaborator.
type Reference struct {
	Kind   RefKind
	Object *Object // set for prototype, chain-link and slot references
	Shape  ID      // set for shape, previous-shape and chain-link references
}

// ForEachOwnedReference reports the prototype, the previous shape and the
// cached chain entries held by s.
func (s *Shape) ForEachOwnedReference(visit func(Reference)) {
	if s.proto != nil {
		visit(Reference{Kind: RefPrototype, Object: s.proto})
	}
	if s.previous != InvalidID {
		visit(Reference{Kind: RefPrevious, Shape: s.previous})
	}
	if s.chain != nil {
		for _, l := range s.chain.links {
			visit(Reference{Kind: RefChainLink, Object: l.Object, Shape: l.Shape})
		}
	}
}

// derive returns a new unpublished shape that follows s through e.
func (s *Shape) derive(e Edge) *Shape {
	return &Shape{
		typeInfo:        s.typeInfo,
		proto:           s.proto,
		props:           s.props,
		capacity:        s.capacity,
		hasGetterSetter: s.hasGetterSetter,
		previous:        s.id,
		edge:            e,
		length:          s.length,
	}
}

// mutated records an in-place edit. Only dictionary shapes are edited in
// place, and their ID does not change, so caches compare versions too.
func (s *Shape) mutated() {
	s.version++
	s.chain = nil
}
