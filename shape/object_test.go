package shape

import (
	"reflect"
	"testing"
)

func TestObjectOwnKeysFollowInsertionOrder(t *testing.T) {
	a := newTestArena(t)
	o := NewObject(a, nil)
	o.Put("b", int64(1))
	o.Put("a", int64(2))
	o.AddProperty("hidden", int64(3), Writable|Configurable)
	o.Put("c", int64(4))

	if got, want := o.OwnKeys(), []string{"b", "a", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("OwnKeys() = %v, want %v", got, want)
	}
	o.DeleteProperty("a")
	if got, want := o.OwnKeys(), []string{"b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("after delete: OwnKeys() = %v, want %v", got, want)
	}
}

func TestObjectPutOverwritesInPlace(t *testing.T) {
	a := newTestArena(t)
	o := NewObject(a, nil)
	o.Put("x", int64(1))
	id := ShapeOf(o)
	if !o.Put("x", int64(2)) {
		t.Fatal("Put on a writable property failed")
	}
	if ShapeOf(o) != id {
		t.Error("Expected overwriting a property to keep the shape")
	}
	if v, _ := o.GetOwn("x"); v != int64(2) {
		t.Errorf("x = %v, want 2", v)
	}
}

func TestObjectAddPropertyRejectsDuplicates(t *testing.T) {
	a := newTestArena(t)
	o := NewObject(a, nil)
	if _, ok := o.AddProperty("x", int64(1), DefaultAttributes); !ok {
		t.Fatal("first AddProperty failed")
	}
	if _, ok := o.AddProperty("x", int64(2), DefaultAttributes); ok {
		t.Error("Expected duplicate AddProperty to fail")
	}
}

func TestObjectNonConfigurableProperty(t *testing.T) {
	a := newTestArena(t)
	o := NewObject(a, nil)
	o.AddProperty("k", int64(1), Writable|Enumerable)
	if o.DeleteProperty("k") {
		t.Error("Expected delete of a non-configurable property to fail")
	}
	if o.Reconfigure("k", Enumerable) {
		t.Error("Expected reconfigure of a non-configurable property to fail")
	}
	if !o.DeleteProperty("absent") {
		t.Error("Expected delete of a missing property to succeed")
	}
}

func TestObjectReconfigure(t *testing.T) {
	a := newTestArena(t)
	o1 := NewObject(a, nil)
	o2 := NewObject(a, nil)
	for _, o := range []*Object{o1, o2} {
		o.Put("x", int64(1))
	}
	shared := ShapeOf(o2)

	if !o1.Reconfigure("x", Enumerable|Configurable) {
		t.Fatal("Reconfigure failed")
	}
	p, _ := o1.Shape().Get("x")
	if p.Attrs != Enumerable|Configurable {
		t.Errorf("Expected -ec-, got %s", p.Attrs)
	}
	if !o1.Shape().IsDictionary() {
		t.Error("Expected reconfiguring to move to a dictionary")
	}
	if ShapeOf(o2) != shared {
		t.Error("Reconfiguring o1 changed o2's shape")
	}
	if o1.Put("x", int64(2)) {
		t.Error("Expected write to a read-only property to fail")
	}
	if o1.Reconfigure("x", Enumerable|Configurable|Accessor) {
		t.Error("Expected switching a data property to an accessor to fail")
	}
}

func TestObjectReleaseDropsShapeReference(t *testing.T) {
	a := newTestArena(t)
	o := NewObject(a, nil)
	o.Put("x", int64(1))
	id := ShapeOf(o)
	o.Release()
	if a.Alive(id) {
		t.Error("Expected shape to be freed with its only object")
	}
	if ShapeOf(o) != InvalidID {
		t.Errorf("Expected released object to hold no shape, got %s", ShapeOf(o))
	}
	o.Release()
}

func TestReleasedPrototypeStaysUsable(t *testing.T) {
	a := newTestArena(t)
	p := NewObject(a, nil)
	p.Put("x", int64(1))
	pid := ShapeOf(p)
	c := NewObject(a, p)

	// A dictionary shape that moves off p drops its hold in place.
	d := NewObject(a, p)
	d.Put("y", int64(2))
	d.DeleteProperty("y")
	if !d.Shape().IsDictionary() {
		t.Fatal("Expected d to be a dictionary")
	}
	d.SetPrototype(nil)

	p.Release()
	if !p.ReleasePending() {
		t.Error("Expected release of a live prototype to be deferred")
	}
	if !a.Alive(pid) {
		t.Fatalf("Expected prototype shape %s to stay alive", pid)
	}
	if v, ok := c.Get("x"); !ok || v != int64(1) {
		t.Errorf("c.Get(x) = %v, %v, want 1, true", v, ok)
	}
	if r := Lookup(c, "x"); r.Path != PathProto || r.Holder != p {
		t.Errorf("Expected a prototype hit on p, got %s", r.Path)
	}

	d.Release()
	c.Release()
	if !p.ReleasePending() {
		t.Error("Expected the cached root for p to keep p alive")
	}
	a.ClearRootCache()
	if ShapeOf(p) != InvalidID || a.Alive(pid) {
		t.Error("Expected p to be released once no shape used it")
	}
	if live := a.Stats().Live; live != 0 {
		t.Errorf("Expected no live shapes, got %d", live)
	}
}
