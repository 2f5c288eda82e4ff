package shape

// Property is one entry of a PropertyMap.
type Property struct {
	Name   string
	Offset int
	Attrs  Attributes
}

// PropertyMap maps property names to slot offsets.
//
// Offsets are dense and follow insertion order, so a property's offset is its
// position in the map. Once a map is published on a shareable shape it is
// frozen; frozen maps are copied, never mutated.
type PropertyMap struct {
	props  []Property
	index  map[string]int
	frozen bool

	// enumerable names in insertion order; nil when stale
	enumNames []string
}

// NewPropertyMap returns an empty, mutable map.
func NewPropertyMap() *PropertyMap {
	return &PropertyMap{index: make(map[string]int)}
}

// Len returns the number of properties.
func (m *PropertyMap) Len() int { return len(m.props) }

// SlotCount returns the number of storage slots the layout occupies.
func (m *PropertyMap) SlotCount() int { return len(m.props) }

// Frozen reports whether the map has been published.
func (m *PropertyMap) Frozen() bool { return m.frozen }

// Get returns the property called name.
func (m *PropertyMap) Get(name string) (Property, bool) {
	i, ok := m.index[name]
	if !ok {
		return Property{}, false
	}
	return m.props[i], true
}

// OffsetFor returns the slot offset of name.
func (m *PropertyMap) OffsetFor(name string) (int, bool) {
	i, ok := m.index[name]
	if !ok {
		return -1, false
	}
	return m.props[i].Offset, true
}

// Has reports whether name is present.
func (m *PropertyMap) Has(name string) bool {
	_, ok := m.index[name]
	return ok
}

// Add appends name and returns its slot offset.
func (m *PropertyMap) Add(name string, attrs Attributes) int {
	m.checkMutable("Add")
	if _, dup := m.index[name]; dup {
		contractf("PropertyMap.Add: property %q already present", name)
	}
	off := len(m.props)
	m.props = append(m.props, Property{Name: name, Offset: off, Attrs: attrs})
	m.index[name] = off
	m.enumNames = nil
	return off
}

// Remove deletes name and compacts the offsets above it. Only dictionary
// shapes own a mutable map; removing from a frozen map is a contract
// violation (Arena.RemovePropertyTransition converts to a dictionary first).
func (m *PropertyMap) Remove(name string) (Property, bool) {
	m.checkMutable("Remove")
	i, ok := m.index[name]
	if !ok {
		return Property{}, false
	}
	removed := m.props[i]
	m.props = append(m.props[:i], m.props[i+1:]...)
	delete(m.index, name)
	for j := i; j < len(m.props); j++ {
		m.props[j].Offset = j
		m.index[m.props[j].Name] = j
	}
	m.enumNames = nil
	return removed, true
}

// SetAttributes replaces the attributes of name in place.
func (m *PropertyMap) SetAttributes(name string, attrs Attributes) bool {
	m.checkMutable("SetAttributes")
	i, ok := m.index[name]
	if !ok {
		return false
	}
	m.props[i].Attrs = attrs
	m.enumNames = nil
	return true
}

// EnumerableNames returns the enumerable property names in insertion order.
// The slice is cached until the next mutation and must not be modified.
func (m *PropertyMap) EnumerableNames() []string {
	if m.enumNames != nil {
		return m.enumNames
	}
	names := make([]string, 0, len(m.props))
	for _, p := range m.props {
		if p.Attrs.IsEnumerable() {
			names = append(names, p.Name)
		}
	}
	m.enumNames = names
	return names
}

// Properties returns a copy of the entries in offset order.
func (m *PropertyMap) Properties() []Property {
	out := make([]Property, len(m.props))
	copy(out, m.props)
	return out
}

// Each calls fn for every property in offset order until fn returns false.
func (m *PropertyMap) Each(fn func(Property) bool) {
	for _, p := range m.props {
		if !fn(p) {
			return
		}
	}
}

// Clone returns a mutable copy of the map.
func (m *PropertyMap) Clone() *PropertyMap {
	c := &PropertyMap{
		props: make([]Property, len(m.props), len(m.props)+1),
		index: make(map[string]int, len(m.props)+1),
	}
	copy(c.props, m.props)
	for k, v := range m.index {
		c.index[k] = v
	}
	return c
}

// mapAttributes returns a mutable copy with fn applied to every entry.
func (m *PropertyMap) mapAttributes(fn func(Attributes) Attributes) *PropertyMap {
	c := m.Clone()
	for i := range c.props {
		c.props[i].Attrs = fn(c.props[i].Attrs)
	}
	return c
}

func (m *PropertyMap) freeze() {
	m.frozen = true
	// warm the cache so readers of a published map never write to it
	m.EnumerableNames()
}

func (m *PropertyMap) checkMutable(op string) {
	if m.frozen {
		contractf("PropertyMap.%s on a published map", op)
	}
}
