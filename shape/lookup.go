package shape

// PathKind says where a lookup found its property.
type PathKind uint8

const (
	PathNotFound PathKind = iota
	PathSelf              // own property of the receiver
	PathProto             // on the receiver's direct prototype
	PathChain             // two or more prototype hops away
)

func (k PathKind) String() string {
	switch k {
	case PathSelf:
		return "self"
	case PathProto:
		return "proto"
	case PathChain:
		return "chain"
	}
	return "not-found"
}

// LookupResult describes how a property lookup was resolved.
type LookupResult struct {
	Found       bool
	Path        PathKind
	Depth       int     // prototype hops from the receiver
	Holder      *Object // object owning the property
	HolderShape ID
	Property    Property

	// Exotic is set when an object on the walked path overrides own-property
	// lookup, so the result cannot be cached by shape alone.
	Exotic bool
	// Dictionary is set when a dictionary shape was consulted.
	Dictionary bool
}

// Lookup resolves name on o, walking the prototype chain.
func Lookup(o *Object, name string) LookupResult {
	var r LookupResult
	a := o.arena
	a.locked(func() {
		cur := o
		for depth := 0; cur != nil; depth++ {
			if depth >= maxChainLength {
				contractf("lookup of %q exceeds %d prototype hops", name, maxChainLength)
			}
			s := a.get(cur.shape)
			if s.typeInfo&OverridesGetOwnProperty != 0 {
				r.Exotic = true
			}
			if s.dictionary {
				r.Dictionary = true
			}
			if p, ok := s.props.Get(name); ok {
				r.Found = true
				r.Depth = depth
				r.Holder = cur
				r.HolderShape = s.id
				r.Property = p
				switch depth {
				case 0:
					r.Path = PathSelf
				case 1:
					r.Path = PathProto
				default:
					r.Path = PathChain
				}
				return
			}
			cur = s.proto
		}
	})
	return r
}
