package shape

import "fmt"

// EdgeKind discriminates the transition edges.
type EdgeKind uint8

const (
	EdgeNone EdgeKind = iota // root shapes have no producing edge
	EdgeAddProperty
	EdgeChangePrototype
	EdgeToDictionary
	EdgeFromDictionary
	EdgeGetterSetter
	EdgeIntegrity
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeNone:
		return "none"
	case EdgeAddProperty:
		return "add"
	case EdgeChangePrototype:
		return "proto"
	case EdgeToDictionary:
		return "to-dict"
	case EdgeFromDictionary:
		return "from-dict"
	case EdgeGetterSetter:
		return "getter-setter"
	case EdgeIntegrity:
		return "integrity"
	}
	return fmt.Sprintf("EdgeKind(%d)", uint8(k))
}

// Edge is the structural change that produced a shape from its previous
// shape. The concrete types below are the only implementations.
type Edge interface {
	Kind() EdgeKind
	String() string
	isEdge()
}

// AddProperty appends one property to the layout.
type AddProperty struct {
	Name  string
	Attrs Attributes
}

// ChangePrototype swaps the prototype; the layout is shared.
type ChangePrototype struct {
	Proto *Object // nil is the null prototype
}

// ToDictionary demotes a shape to a private, unshared dictionary shape.
type ToDictionary struct{}

// FromDictionary flattens a dictionary shape back into a cacheable one.
type FromDictionary struct{}

// GetterSetter records that accessor properties may now be present.
type GetterSetter struct{}

// Integrity raises the integrity level (non-extensible, sealed or frozen).
type Integrity struct {
	Level TypeInfo
}

func (AddProperty) Kind() EdgeKind     { return EdgeAddProperty }
func (ChangePrototype) Kind() EdgeKind { return EdgeChangePrototype }
func (ToDictionary) Kind() EdgeKind    { return EdgeToDictionary }
func (FromDictionary) Kind() EdgeKind  { return EdgeFromDictionary }
func (GetterSetter) Kind() EdgeKind    { return EdgeGetterSetter }
func (Integrity) Kind() EdgeKind       { return EdgeIntegrity }

func (e AddProperty) String() string { return fmt.Sprintf("add(%s,%s)", e.Name, e.Attrs) }

func (e ChangePrototype) String() string {
	if e.Proto == nil {
		return "proto(null)"
	}
	return fmt.Sprintf("proto(#%d)", e.Proto.serial)
}

func (ToDictionary) String() string   { return "to-dict" }
func (FromDictionary) String() string { return "from-dict" }
func (GetterSetter) String() string   { return "getter-setter" }
func (e Integrity) String() string    { return fmt.Sprintf("integrity(%s)", e.Level) }

func (AddProperty) isEdge()     {}
func (ChangePrototype) isEdge() {}
func (ToDictionary) isEdge()    {}
func (FromDictionary) isEdge()  {}
func (GetterSetter) isEdge()    {}
func (Integrity) isEdge()       {}

// EdgeKey is the comparable form of an Edge used to index transition tables.
// Prototype edges key on the identity of the target prototype.
type EdgeKey struct {
	kind  EdgeKind
	name  string
	attrs Attributes
	proto *Object
	level TypeInfo
}

// KeyOf returns the transition-table key for e.
func KeyOf(e Edge) EdgeKey {
	switch e := e.(type) {
	case AddProperty:
		return EdgeKey{kind: EdgeAddProperty, name: e.Name, attrs: e.Attrs}
	case ChangePrototype:
		return EdgeKey{kind: EdgeChangePrototype, proto: e.Proto}
	case ToDictionary:
		return EdgeKey{kind: EdgeToDictionary}
	case FromDictionary:
		return EdgeKey{kind: EdgeFromDictionary}
	case GetterSetter:
		return EdgeKey{kind: EdgeGetterSetter}
	case Integrity:
		return EdgeKey{kind: EdgeIntegrity, level: e.Level}
	case nil:
		return EdgeKey{}
	}
	panic(fmt.Sprintf("shape: unknown edge type %T", e))
}

func (k EdgeKey) Kind() EdgeKind { return k.kind }
