package shape

import "fmt"

// Value is any property value. The shape system never inspects values
// except to report *Object references to tracing collaborators.
type Value = any

// AccessorPair is stored in the slot of an accessor property. Calling the
// functions is the execution engine's job.
type AccessorPair struct {
	Getter Value
	Setter Value
}

// Object is a dynamic object: a shape plus slot storage sized to the
// shape's capacity. The object owns one reference to its shape.
//
// An object is not safe for concurrent use, even in a concurrent arena;
// only the shape graph behind it is shared.
type Object struct {
	arena  *Arena
	shape  ID
	slots  []Value
	serial uint64

	// Shapes using the object as their prototype. Guarded by the arena
	// lock. A released object stays intact until the last one is freed.
	protoHolds     int
	releasePending bool
}

// NewObject creates an empty object whose shape is the arena's cached root
// for proto. Objects created this way share shapes when the same
// properties are added in the same order.
func NewObject(a *Arena, proto *Object) *Object {
	return NewObjectWithType(a, proto, 0)
}

// NewObjectWithType is NewObject with explicit type info.
func NewObjectWithType(a *Arena, proto *Object, typeInfo TypeInfo) *Object {
	o := &Object{arena: a, serial: a.nextSerial()}
	o.adopt(a.Root(proto, typeInfo))
	return o
}

// ShapeOf returns the current shape ID of o.
func ShapeOf(o *Object) ID { return o.shape }

// Arena returns the arena that owns o's shape.
func (o *Object) Arena() *Arena { return o.arena }

// ShapeID returns the current shape ID.
func (o *Object) ShapeID() ID { return o.shape }

// Shape returns the current shape.
func (o *Object) Shape() *Shape { return o.arena.Shape(o.shape) }

// Serial is a per-arena object number, stable for the object's lifetime.
func (o *Object) Serial() uint64 { return o.serial }

// Prototype returns the object's prototype, or nil.
func (o *Object) Prototype() *Object { return o.Shape().proto }

// StorageLen returns the number of allocated slots.
func (o *Object) StorageLen() int { return len(o.slots) }

func (o *Object) String() string { return fmt.Sprintf("#%d<%s>", o.serial, o.shape) }

// adopt takes ownership of next, releases the previous shape and resizes
// storage to next's capacity. Every shape change on an object goes
// through here, so an object always holds exactly one shape reference.
func (o *Object) adopt(next ID) {
	prev := o.shape
	o.shape = next
	if c := o.arena.Shape(next).capacity; c > len(o.slots) {
		grown := make([]Value, c)
		copy(grown, o.slots)
		o.slots = grown
	}
	if prev != InvalidID {
		o.arena.Release(prev)
	}
}

// Release drops the object's shape reference. The object must not be
// used afterwards. While live shapes still name o as their prototype the
// release is deferred, so lookups through those shapes keep working; it
// completes when the last of them is freed.
func (o *Object) Release() {
	o.arena.locked(func() {
		if o.shape == InvalidID || o.releasePending {
			return
		}
		if o.protoHolds > 0 {
			o.releasePending = true
			log.Debugf("release of %s deferred: prototype of %d shapes", o, o.protoHolds)
			return
		}
		o.drop()
	})
}

// ReleasePending reports whether Release was called while o was still a
// prototype of live shapes.
func (o *Object) ReleasePending() bool {
	var pending bool
	o.arena.locked(func() { pending = o.releasePending })
	return pending
}

// drop frees the object's storage and shape reference. The arena lock is
// held.
func (o *Object) drop() {
	id := o.shape
	o.shape = InvalidID
	o.slots = nil
	o.releasePending = false
	o.arena.release(id)
}

// Slot returns the value stored at offset.
func (o *Object) Slot(offset int) Value { return o.slots[offset] }

// SetSlot stores v at offset.
func (o *Object) SetSlot(offset int, v Value) { o.slots[offset] = v }

// GetOwn returns the own property called name.
func (o *Object) GetOwn(name string) (Value, bool) {
	off, ok := o.Shape().OffsetFor(name)
	if !ok {
		return nil, false
	}
	return o.slots[off], true
}

// Get looks name up on o and its prototype chain. Accessor properties
// yield their *AccessorPair.
func (o *Object) Get(name string) (Value, bool) {
	r := Lookup(o, name)
	if !r.Found {
		return nil, false
	}
	return r.Holder.slots[r.Property.Offset], true
}

// Put assigns name. An existing writable data property is overwritten in
// place; a missing property is added with DefaultAttributes. Put reports
// whether the assignment took effect.
func (o *Object) Put(name string, v Value) bool {
	s := o.Shape()
	if p, ok := s.Get(name); ok {
		if p.Attrs.IsAccessor() || !p.Attrs.IsWritable() {
			return false
		}
		o.slots[p.Offset] = v
		return true
	}
	_, ok := o.AddProperty(name, v, DefaultAttributes)
	return ok
}

// AddProperty adds a new own property and returns its offset. It fails if
// the property exists or the object is not extensible.
func (o *Object) AddProperty(name string, v Value, attrs Attributes) (int, bool) {
	s := o.Shape()
	if !s.IsExtensible() || s.props.Has(name) {
		return -1, false
	}
	next, off := o.arena.AddPropertyTransition(o.shape, name, attrs)
	o.adopt(next)
	o.slots[off] = v
	return off, true
}

// DefineAccessor adds an accessor property. The object first takes the
// getter-setter transition so lookups know to dispatch accessors.
func (o *Object) DefineAccessor(name string, getter, setter Value, attrs Attributes) bool {
	s := o.Shape()
	if !s.IsExtensible() || s.props.Has(name) {
		return false
	}
	if !s.hasGetterSetter {
		o.adopt(o.arena.GetterSetterTransition(o.shape))
	}
	_, ok := o.AddProperty(name, &AccessorPair{Getter: getter, Setter: setter}, attrs|Accessor)
	return ok
}

// DeleteProperty removes a configurable own property, converting the
// object to a dictionary shape. Deleting a missing property succeeds.
func (o *Object) DeleteProperty(name string) bool {
	p, ok := o.Shape().Get(name)
	if !ok {
		return true
	}
	if !p.Attrs.IsConfigurable() {
		return false
	}
	next, removed, _ := o.arena.RemovePropertyTransition(o.shape, name)
	o.adopt(next)
	copy(o.slots[removed.Offset:], o.slots[removed.Offset+1:])
	o.slots[len(o.slots)-1] = nil
	return true
}

// Reconfigure changes the attributes of a configurable own property.
func (o *Object) Reconfigure(name string, attrs Attributes) bool {
	p, ok := o.Shape().Get(name)
	if !ok || !p.Attrs.IsConfigurable() || p.Attrs.IsAccessor() != attrs.IsAccessor() {
		return false
	}
	next, _ := o.arena.AttributeChangeTransition(o.shape, name, attrs)
	o.adopt(next)
	return true
}

// SetPrototype changes the prototype. It refuses changes that would create
// a cycle, and changes on shapes with an immutable prototype.
func (o *Object) SetPrototype(proto *Object) bool {
	s := o.Shape()
	if s.proto == proto {
		return true
	}
	if s.typeInfo&ImmutablePrototype != 0 || !s.IsExtensible() {
		return false
	}
	for p := proto; p != nil; p = p.Prototype() {
		if p == o {
			return false
		}
	}
	o.adopt(o.arena.ChangePrototypeTransition(o.shape, proto))
	return true
}

// PreventExtensions stops new properties from being added.
func (o *Object) PreventExtensions() {
	o.adopt(o.arena.PreventExtensionsTransition(o.shape))
}

// Seal prevents extensions and makes every property non-configurable.
func (o *Object) Seal() {
	o.adopt(o.arena.SealTransition(o.shape))
}

// Freeze seals the object and makes its data properties read-only.
func (o *Object) Freeze() {
	o.adopt(o.arena.FreezeTransition(o.shape))
}

// Flatten moves a dictionary-mode object back to a shareable shape.
func (o *Object) Flatten() {
	o.adopt(o.arena.FromDictionaryTransition(o.shape))
}

// OwnKeys returns the enumerable own property names in insertion order.
func (o *Object) OwnKeys() []string {
	keys := o.Shape().EnumerableKeys()
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

// ForEachOwnedReference reports the object's shape references and every
// slot holding an *Object, for tracing collaborators.
func (o *Object) ForEachOwnedReference(visit func(Reference)) {
	if s := o.Shape(); s != nil {
		visit(Reference{Kind: RefShape, Shape: s.id})
		s.ForEachOwnedReference(visit)
	}
	for _, v := range o.slots {
		switch v := v.(type) {
		case *Object:
			visit(Reference{Kind: RefSlotValue, Object: v})
		case *AccessorPair:
			for _, f := range []Value{v.Getter, v.Setter} {
				if fo, ok := f.(*Object); ok {
					visit(Reference{Kind: RefSlotValue, Object: fo})
				}
			}
		}
	}
}
