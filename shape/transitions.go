package shape

import "github.com/tliron/commonlog"

// AddPropertyTransition returns the shape that results from adding name to
// id, together with the new property's slot offset.
//
// A shareable shape is never modified: the successor is looked up in id's
// transition table and built only on a miss. Shapes that already fan out
// to MaxTransitions successors, or whose path has reached
// MaxTransitionLength properties, hand back a fresh dictionary shape
// instead. Dictionary shapes are extended in place.
func (a *Arena) AddPropertyTransition(id ID, name string, attrs Attributes) (ID, int) {
	edge := AddProperty{Name: name, Attrs: attrs}
	var (
		s      *Shape
		next   ID
		offset int
		done   bool
	)
	a.locked(func() {
		s = a.get(id)
		if s.props.Has(name) {
			contractf("AddPropertyTransition: %s already has %q", id, name)
		}
		if s.dictionary {
			a.retain(id)
			next, offset, done = id, addInPlace(a.policy, s, name, attrs), true
			return
		}
		if succ, ok := a.findTransition(s, edge); ok {
			next, offset, done = succ, s.props.Len(), true
			return
		}
		if a.overflows(s) || s.length >= a.policy.MaxTransitionLength {
			d := a.toDictionary(s)
			next, offset, done = d.id, addInPlace(a.policy, d, name, attrs), true
			if log.AllowLevel(commonlog.Debug) {
				log.Debugf("adding %q to %s overflowed (transitions=%d length=%d): dictionary %s", name, id, s.transitions.Len(), s.length, d.id)
			}
		}
	})
	if done {
		return next, offset
	}

	next = a.publish(s, edge, func() *Shape {
		fresh := s.derive(edge)
		fresh.props = s.props.Clone()
		fresh.props.Add(name, attrs)
		fresh.props.freeze()
		fresh.capacity = a.policy.capacityFor(s.capacity, fresh.props.SlotCount())
		fresh.length++
		if attrs.IsAccessor() {
			fresh.hasGetterSetter = true
		}
		return fresh
	}, func() *Shape {
		d := a.toDictionary(s)
		addInPlace(a.policy, d, name, attrs)
		return d
	})
	return next, s.props.Len()
}

// ChangePrototypeTransition returns the shape for id with proto as its
// prototype. The successor shares id's property map. Prototype edges count
// toward the fan-out threshold just like property edges. Shapes with
// ImmutablePrototype are returned unchanged.
func (a *Arena) ChangePrototypeTransition(id ID, proto *Object) ID {
	edge := ChangePrototype{Proto: proto}
	var (
		s    *Shape
		next ID
		done bool
	)
	a.locked(func() {
		s = a.get(id)
		switch {
		case s.proto == proto || s.typeInfo&ImmutablePrototype != 0:
			a.retain(id)
			next, done = id, true
		case s.dictionary:
			setProto(s, proto)
			s.mutated()
			a.retain(id)
			next, done = id, true
		default:
			if succ, ok := a.findTransition(s, edge); ok {
				next, done = succ, true
				return
			}
			if a.overflows(s) {
				d := a.toDictionary(s)
				setProto(d, proto)
				next, done = d.id, true
				log.Debugf("prototype change on %s overflowed: dictionary %s", id, d.id)
			}
		}
	})
	if done {
		return next
	}
	return a.publish(s, edge, func() *Shape {
		fresh := s.derive(edge)
		fresh.proto = proto
		return fresh
	}, func() *Shape {
		d := a.toDictionary(s)
		setProto(d, proto)
		return d
	})
}

// ToDictionaryTransition returns a private dictionary copy of id. The copy
// is never recorded in any transition table.
func (a *Arena) ToDictionaryTransition(id ID) ID {
	var next ID
	a.locked(func() {
		s := a.get(id)
		if s.dictionary {
			a.retain(id)
			next = id
			return
		}
		next = a.toDictionary(s).id
	})
	return next
}

// FromDictionaryTransition flattens a dictionary shape into a new shareable
// shape with the same offsets. Transitions out of the result are cached as
// usual, but nothing transitions into it.
func (a *Arena) FromDictionaryTransition(id ID) ID {
	var next ID
	a.locked(func() {
		s := a.get(id)
		if !s.dictionary {
			a.retain(id)
			next = id
			return
		}
		flat := s.derive(FromDictionary{})
		flat.props = s.props.Clone()
		flat.props.freeze()
		flat.length = flat.props.Len()
		next = a.alloc(flat)
	})
	return next
}

// GetterSetterTransition returns the shape for id marked as possibly
// holding accessor properties.
func (a *Arena) GetterSetterTransition(id ID) ID {
	edge := GetterSetter{}
	var (
		s    *Shape
		next ID
		done bool
	)
	a.locked(func() {
		s = a.get(id)
		switch {
		case s.hasGetterSetter:
			a.retain(id)
			next, done = id, true
		case s.dictionary:
			s.hasGetterSetter = true
			s.mutated()
			a.retain(id)
			next, done = id, true
		default:
			next, done = a.findTransition(s, edge)
		}
	})
	if done {
		return next
	}
	return a.publish(s, edge, func() *Shape {
		fresh := s.derive(edge)
		fresh.hasGetterSetter = true
		return fresh
	}, nil)
}

// RemovePropertyTransition deletes name. Deleting from a shareable shape
// first converts it to a dictionary so siblings sharing the shape are not
// affected; the result is therefore always a dictionary shape when the
// property existed. The removed property is returned so the caller can
// compact its storage.
func (a *Arena) RemovePropertyTransition(id ID, name string) (ID, Property, bool) {
	var (
		next    ID
		removed Property
		ok      bool
	)
	a.locked(func() {
		s := a.get(id)
		if _, ok = s.props.Get(name); !ok {
			a.retain(id)
			next = id
			return
		}
		d := s
		if s.dictionary {
			a.retain(id)
		} else {
			d = a.toDictionary(s)
		}
		removed, _ = d.props.Remove(name)
		d.mutated()
		next = d.id
	})
	return next, removed, ok
}

// AttributeChangeTransition reconfigures name to attrs. Like deletion this
// goes through a dictionary shape.
func (a *Arena) AttributeChangeTransition(id ID, name string, attrs Attributes) (ID, bool) {
	var (
		next ID
		ok   bool
	)
	a.locked(func() {
		s := a.get(id)
		p, found := s.props.Get(name)
		if !found || p.Attrs == attrs {
			a.retain(id)
			next = id
			return
		}
		d := s
		if s.dictionary {
			a.retain(id)
		} else {
			d = a.toDictionary(s)
		}
		d.props.SetAttributes(name, attrs)
		if attrs.IsAccessor() {
			d.hasGetterSetter = true
		}
		d.mutated()
		next, ok = d.id, true
	})
	return next, ok
}

// PreventExtensionsTransition marks id non-extensible.
func (a *Arena) PreventExtensionsTransition(id ID) ID {
	return a.integrityTransition(id, NonExtensible)
}

// SealTransition marks id non-extensible and every property non-configurable.
func (a *Arena) SealTransition(id ID) ID {
	return a.integrityTransition(id, Sealed)
}

// FreezeTransition seals id and makes every data property read-only.
func (a *Arena) FreezeTransition(id ID) ID {
	return a.integrityTransition(id, Frozen)
}

func (a *Arena) integrityTransition(id ID, level TypeInfo) ID {
	flags := NonExtensible
	var adjust func(Attributes) Attributes
	switch level {
	case Sealed:
		flags |= Sealed
		adjust = func(at Attributes) Attributes { return at &^ Configurable }
	case Frozen:
		flags |= Sealed | Frozen
		adjust = func(at Attributes) Attributes {
			at &^= Configurable
			if !at.IsAccessor() {
				at &^= Writable
			}
			return at
		}
	}
	edge := Integrity{Level: level}
	var (
		s    *Shape
		next ID
		done bool
	)
	a.locked(func() {
		s = a.get(id)
		switch {
		case s.typeInfo.Has(flags):
			a.retain(id)
			next, done = id, true
		case s.dictionary:
			s.typeInfo |= flags
			if adjust != nil {
				s.props = s.props.mapAttributes(adjust)
			}
			s.mutated()
			a.retain(id)
			next, done = id, true
		default:
			next, done = a.findTransition(s, edge)
		}
	})
	if done {
		return next
	}
	return a.publish(s, edge, func() *Shape {
		fresh := s.derive(edge)
		fresh.typeInfo |= flags
		if adjust != nil {
			fresh.props = s.props.mapAttributes(adjust)
			fresh.props.freeze()
		}
		return fresh
	}, nil)
}

// The helpers below assume the arena lock is held, except publish.

func (a *Arena) findTransition(s *Shape, e Edge) (ID, bool) {
	succ, ok := s.transitions.Find(KeyOf(e))
	if !ok {
		return InvalidID, false
	}
	a.retain(succ)
	a.stats.TransitionHits++
	return succ, true
}

func (a *Arena) overflows(s *Shape) bool {
	if s.transitions.Len() < a.policy.MaxTransitions {
		return false
	}
	a.stats.FanoutOverflows++
	return true
}

func (a *Arena) toDictionary(s *Shape) *Shape {
	d := s.derive(ToDictionary{})
	d.props = s.props.Clone()
	d.dictionary = true
	a.alloc(d)
	return d
}

// publish builds a successor of s outside the lock and records it under
// edge. If another goroutine recorded a successor for the same edge in the
// meantime, the fresh shape is discarded and the winner is returned.
//
// Edges that count toward fan-out pass overflow, which runs under the lock
// when s reached MaxTransitions while fresh was being built.
func (a *Arena) publish(s *Shape, edge Edge, build func() *Shape, overflow func() *Shape) ID {
	fresh := build()
	key := KeyOf(edge)
	var id ID
	a.locked(func() {
		if winner, ok := s.transitions.Find(key); ok {
			a.retain(winner)
			a.stats.Discarded++
			a.diag.ShapeDiscarded(a.id, edge)
			id = winner
			return
		}
		if overflow != nil && a.overflows(s) {
			id = overflow().id
			log.Debugf("%s on %s overflowed during publish: dictionary %s", edge, s.id, id)
			return
		}
		a.stats.TransitionMisses++
		id = a.alloc(fresh)
		s.transitions.Insert(key, id)
	})
	return id
}

func addInPlace(p Policy, d *Shape, name string, attrs Attributes) int {
	off := d.props.Add(name, attrs)
	d.capacity = p.capacityFor(d.capacity, d.props.SlotCount())
	if attrs.IsAccessor() {
		d.hasGetterSetter = true
	}
	d.mutated()
	return off
}
