package shape

import "testing"

func buildPath(a *Arena, names ...string) *Object {
	o := NewObject(a, nil)
	for _, n := range names {
		o.Put(n, n)
	}
	return o
}

func TestFingerprintMatchesAcrossArenas(t *testing.T) {
	a1 := newTestArena(t)
	a2 := newTestArena(t)
	o1 := buildPath(a1, "x", "y")
	o2 := buildPath(a2, "x", "y")
	if a1.Fingerprint(ShapeOf(o1)) != a2.Fingerprint(ShapeOf(o2)) {
		t.Error("Expected equal edge paths to fingerprint equal")
	}

	o3 := buildPath(a1, "y", "x")
	if a1.Fingerprint(ShapeOf(o1)) == a1.Fingerprint(ShapeOf(o3)) {
		t.Error("Expected insertion order to change the fingerprint")
	}
}

func TestFingerprintTracksDictionaryEdits(t *testing.T) {
	a := newTestArena(t)
	o := buildPath(a, "x", "y")
	o.DeleteProperty("y")
	before := a.Fingerprint(ShapeOf(o))
	o.Put("z", "z")
	if a.Fingerprint(ShapeOf(o)) == before {
		t.Error("Expected an in-place dictionary edit to change the fingerprint")
	}
}

func TestFingerprintSeesFlattenedLayout(t *testing.T) {
	a := newTestArena(t)
	o1 := buildPath(a, "x", "y")
	o2 := buildPath(a, "x", "y")
	o3 := buildPath(a, "x", "y")
	o1.DeleteProperty("x")
	o2.DeleteProperty("y")
	o3.DeleteProperty("x")
	for _, o := range []*Object{o1, o2, o3} {
		o.Flatten()
		if o.Shape().IsDictionary() {
			t.Fatalf("Expected %s to be flattened", o)
		}
	}

	if a.Fingerprint(ShapeOf(o1)) == a.Fingerprint(ShapeOf(o2)) {
		t.Errorf("Expected layouts %v and %v to fingerprint differently", o1.OwnKeys(), o2.OwnKeys())
	}
	if a.Fingerprint(ShapeOf(o1)) != a.Fingerprint(ShapeOf(o3)) {
		t.Error("Expected equal flattened layouts to fingerprint equal")
	}
}
