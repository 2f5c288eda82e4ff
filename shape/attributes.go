package shape

import "strings"

// Attributes holds the per-property attribute bits.
type Attributes uint8

const (
	Writable Attributes = 1 << iota
	Enumerable
	Configurable
	Accessor // getter/setter pair instead of a data value
)

// DefaultAttributes is what plain assignment gives a new property.
const DefaultAttributes = Writable | Enumerable | Configurable

func (a Attributes) IsWritable() bool     { return a&Writable != 0 }
func (a Attributes) IsEnumerable() bool   { return a&Enumerable != 0 }
func (a Attributes) IsConfigurable() bool { return a&Configurable != 0 }
func (a Attributes) IsAccessor() bool     { return a&Accessor != 0 }

// String renders the attributes as a compact flag string, e.g. "wec-".
func (a Attributes) String() string {
	var b strings.Builder
	flag := func(set bool, c byte) {
		if set {
			b.WriteByte(c)
		} else {
			b.WriteByte('-')
		}
	}
	flag(a.IsWritable(), 'w')
	flag(a.IsEnumerable(), 'e')
	flag(a.IsConfigurable(), 'c')
	flag(a.IsAccessor(), 'a')
	return b.String()
}

// ParseAttributes is the inverse of String. Unknown characters are ignored,
// so "we" and "w-e-" both parse to Writable|Enumerable.
func ParseAttributes(s string) Attributes {
	var a Attributes
	for _, c := range s {
		switch c {
		case 'w':
			a |= Writable
		case 'e':
			a |= Enumerable
		case 'c':
			a |= Configurable
		case 'a':
			a |= Accessor
		}
	}
	return a
}

// TypeInfo is the per-shape type bitset.
type TypeInfo uint16

const (
	// ImmutablePrototype objects reject prototype changes.
	ImmutablePrototype TypeInfo = 1 << iota
	// OverridesGetOwnProperty marks exotic objects whose own-property lookup
	// cannot be answered from the property map alone.
	OverridesGetOwnProperty
	NonExtensible
	Sealed
	Frozen
)

// Has reports whether all bits in flags are set.
func (t TypeInfo) Has(flags TypeInfo) bool { return t&flags == flags }

func (t TypeInfo) String() string {
	if t == 0 {
		return "none"
	}
	var parts []string
	names := []struct {
		bit  TypeInfo
		name string
	}{
		{ImmutablePrototype, "immutable-proto"},
		{OverridesGetOwnProperty, "exotic"},
		{NonExtensible, "non-extensible"},
		{Sealed, "sealed"},
		{Frozen, "frozen"},
	}
	for _, n := range names {
		if t&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
