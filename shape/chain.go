package shape

// maxChainLength bounds prototype walks; SetPrototype rejects cycles, so
// hitting it means the object graph was corrupted.
const maxChainLength = 1 << 16

// ChainLink records one prototype and the shape it had when the chain was
// built.
type ChainLink struct {
	Object  *Object
	Shape   ID
	Version uint32
}

// Chain is the flattened prototype chain of a shape. It is only good for
// cache decisions while every link still has the recorded shape; check
// IsStillValid before trusting it.
type Chain struct {
	arena *Arena
	links []ChainLink
}

// BuildChain walks the prototypes of id and records each link's shape.
func (a *Arena) BuildChain(id ID) *Chain {
	var c *Chain
	a.locked(func() { c = a.buildChain(a.get(id)) })
	return c
}

// CachedChain returns the chain cached on id, rebuilding it if any link's
// shape has changed since it was built.
func (a *Arena) CachedChain(id ID) *Chain {
	var c *Chain
	a.locked(func() {
		s := a.get(id)
		if s.chain != nil && s.chain.valid() {
			c = s.chain
			return
		}
		if s.chain != nil {
			log.Debugf("prototype chain of %s invalidated; rebuilding", id)
		}
		s.chain = a.buildChain(s)
		c = s.chain
	})
	return c
}

func (a *Arena) buildChain(s *Shape) *Chain {
	c := &Chain{arena: a}
	for proto := s.proto; proto != nil; {
		if len(c.links) >= maxChainLength {
			contractf("prototype chain of %s exceeds %d links", s.id, maxChainLength)
		}
		ps := a.get(proto.shape)
		c.links = append(c.links, ChainLink{Object: proto, Shape: ps.id, Version: ps.version})
		proto = ps.proto
	}
	return c
}

// Len returns the number of prototypes in the chain.
func (c *Chain) Len() int { return len(c.links) }

// Links returns a copy of the chain links, nearest prototype first.
func (c *Chain) Links() []ChainLink {
	out := make([]ChainLink, len(c.links))
	copy(out, c.links)
	return out
}

// IsStillValid reports whether every prototype still has the shape it had
// when the chain was built, comparing shape identity rather than presence.
func (c *Chain) IsStillValid() bool {
	ok := false
	c.arena.locked(func() { ok = c.valid() })
	return ok
}

func (c *Chain) valid() bool {
	for _, l := range c.links {
		if l.Object.shape != l.Shape {
			return false
		}
		s := c.arena.lookup(l.Shape)
		if s == nil || s.version != l.Version {
			return false
		}
	}
	return true
}
