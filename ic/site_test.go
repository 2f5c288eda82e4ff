package ic

import (
	"fmt"
	"testing"

	"github.com/chazu/shapegraph/shape"
)

func newArena() *shape.Arena {
	return shape.NewArena(shape.DefaultPolicy(), nil)
}

// objectWith returns a fresh object with the given properties added in order.
func objectWith(a *shape.Arena, proto *shape.Object, names ...string) *shape.Object {
	o := shape.NewObject(a, proto)
	for i, n := range names {
		o.Put(n, int64(i))
	}
	return o
}

func TestSiteMonomorphicSelfHit(t *testing.T) {
	a := newArena()
	tbl := NewTable(DefaultPolicy())
	objs := []*shape.Object{
		objectWith(a, nil, "x", "y"),
		objectWith(a, nil, "x", "y"),
		objectWith(a, nil, "x", "y"),
	}
	for _, o := range objs {
		v, ok := tbl.Access(0, o, "y")
		if !ok || v != int64(1) {
			t.Errorf("Access(y) = %v, %v, want 1, true", v, ok)
		}
	}
	site := tbl.Get(0)
	if site.CurrentState() != StateSelfHit {
		t.Errorf("Expected self-hit, got %s", site.CurrentState())
	}
	if site.Hits != 2 || site.Misses != 1 {
		t.Errorf("Expected 2 hits and 1 miss, got %d hits and %d misses", site.Hits, site.Misses)
	}
	if !site.IsSafeToEmitFastPath() {
		t.Error("Expected a monomorphic site to be safe for a fast path")
	}
}

func TestSiteUnsafeAfterReceiverShapeDies(t *testing.T) {
	a := newArena()
	tbl := NewTable(DefaultPolicy())
	o := shape.NewObject(a, nil)
	o.AddProperty("only", int64(1), shape.DefaultAttributes)
	id := shape.ShapeOf(o)

	tbl.Access(0, o, "only")
	site := tbl.Get(0)
	if site.CurrentState() != StateSelfHit || !site.IsSafeToEmitFastPath() {
		t.Fatalf("Expected a safe self-hit, got %s", site.CurrentState())
	}

	o.Release()
	if a.Alive(id) {
		t.Fatalf("Expected %s to die with its only object", id)
	}
	if site.IsSafeToEmitFastPath() {
		t.Error("Expected a site caching a dead receiver shape to be unsafe")
	}
}

func TestSiteSecondShapeGoesPolymorphic(t *testing.T) {
	a := newArena()
	tbl := NewTable(DefaultPolicy())
	s1 := objectWith(a, nil, "x")
	for i := 0; i < 3; i++ {
		tbl.Access(7, s1, "x")
	}
	s4 := objectWith(a, nil, "w", "x")
	tbl.Access(7, s4, "x")

	site := tbl.Get(7)
	if site.CurrentState() != StateSelfList {
		t.Errorf("Expected self-list, got %s", site.CurrentState())
	}
	if n := len(site.Entries()); n != 2 {
		t.Errorf("Expected 2 entries, got %d", n)
	}
	if v, _ := tbl.Access(7, s4, "x"); v != int64(1) {
		t.Errorf("s4.x = %v, want 1", v)
	}
}

func TestSitePolymorphicBound(t *testing.T) {
	for _, bound := range []int{2, 8} {
		t.Run(fmt.Sprintf("bound=%d", bound), func(t *testing.T) {
			a := newArena()
			p := DefaultPolicy()
			p.PolymorphicBound = bound
			tbl := NewTable(p)

			var objs []*shape.Object
			for i := 0; i <= bound; i++ {
				// distinct shapes: a different leading property each time
				objs = append(objs, objectWith(a, nil, fmt.Sprintf("pad%d", i), "x"))
			}
			for i, o := range objs[:bound] {
				tbl.Access(1, o, "x")
				if got := tbl.Get(1).CurrentState(); i > 0 && got != StateSelfList {
					t.Fatalf("after %d shapes: state %s, want self-list", i+1, got)
				}
			}
			tbl.Access(1, objs[bound], "x")
			site := tbl.Get(1)
			if site.CurrentState() != StateGeneric {
				t.Fatalf("Expected generic after %d shapes, got %s", bound+1, site.CurrentState())
			}
			if len(site.Entries()) != 0 {
				t.Error("Expected generic site to drop its entries")
			}

			// Generic is terminal.
			tbl.Access(1, objs[0], "x")
			site.Reset()
			if site.CurrentState() != StateGeneric {
				t.Errorf("Expected generic to be terminal, got %s", site.CurrentState())
			}
			if site.IsSafeToEmitFastPath() {
				t.Error("Expected generic site to refuse a fast path")
			}
		})
	}
}

func TestSiteProtoAndChainHits(t *testing.T) {
	a := newArena()
	tbl := NewTable(DefaultPolicy())
	grand := objectWith(a, nil, "g")
	parent := objectWith(a, grand, "p")
	o := objectWith(a, parent, "own")

	tbl.Access(1, o, "p")
	if s := tbl.Get(1).CurrentState(); s != StateProtoHit {
		t.Errorf("Expected proto-hit, got %s", s)
	}
	tbl.Access(2, o, "g")
	if s := tbl.Get(2).CurrentState(); s != StateChainHit {
		t.Errorf("Expected chain-hit, got %s", s)
	}
	if v, ok := tbl.Access(2, o, "g"); !ok || v != int64(0) {
		t.Errorf("cached o.g = %v, %v, want 0, true", v, ok)
	}
	if tbl.Get(2).Hits != 1 {
		t.Errorf("Expected 1 hit, got %d", tbl.Get(2).Hits)
	}
}

func TestSiteInvalidatedByPrototypeChange(t *testing.T) {
	a := newArena()
	tbl := NewTable(DefaultPolicy())
	proto := objectWith(a, nil, "m")
	o := objectWith(a, proto)

	tbl.Access(3, o, "m")
	site := tbl.Get(3)
	if site.CurrentState() != StateProtoHit || !site.IsSafeToEmitFastPath() {
		t.Fatalf("Expected a safe proto-hit, got %s", site.CurrentState())
	}

	// Shadow-free change on the prototype: its shape changes, o's does not.
	before := shape.ShapeOf(o)
	proto.Put("n", int64(1))
	if shape.ShapeOf(o) != before {
		t.Fatal("Expected the receiver shape to be unchanged")
	}
	if site.IsSafeToEmitFastPath() {
		t.Error("Expected the stale chain to make the fast path unsafe")
	}

	proto.SetSlot(0, int64(42))
	v, ok := tbl.Access(3, o, "m")
	if !ok || v != int64(42) {
		t.Errorf("o.m = %v, %v, want 42, true", v, ok)
	}
	if site.Resets != 1 {
		t.Errorf("Expected the stale entry to reset the site once, got %d", site.Resets)
	}
	if site.CurrentState() != StateProtoHit || !site.IsSafeToEmitFastPath() {
		t.Errorf("Expected the site to re-cache as proto-hit, got %s", site.CurrentState())
	}
}

func TestSiteShadowingGoesToProtoList(t *testing.T) {
	a := newArena()
	tbl := NewTable(DefaultPolicy())
	proto := objectWith(a, nil, "m")
	o1 := objectWith(a, proto, "other")
	o2 := objectWith(a, proto, "m")

	tbl.Access(4, o1, "m")
	tbl.Access(4, o2, "m")
	if s := tbl.Get(4).CurrentState(); s != StateProtoList {
		t.Errorf("Expected a mixed list to be proto-list, got %s", s)
	}

	// A list never shrinks back to a single-shape state.
	o1.Release()
	tbl.Sweep(a)
	site := tbl.Get(4)
	if n := len(site.Entries()); n != 1 {
		t.Fatalf("Expected 1 entry after sweep, got %d", n)
	}
	if site.CurrentState() != StateSelfList {
		t.Errorf("Expected self-list after sweeping the proto entry, got %s", site.CurrentState())
	}
}

func TestSiteDictionaryReceiver(t *testing.T) {
	a := newArena()
	tbl := NewTable(DefaultPolicy())
	o := objectWith(a, nil, "x", "y")
	o.DeleteProperty("y")

	tbl.Access(5, o, "x")
	site := tbl.Get(5)
	if site.CurrentState() != StateDictionary {
		t.Errorf("Expected dictionary state, got %s", site.CurrentState())
	}
	plain := objectWith(a, nil, "x")
	tbl.Access(5, plain, "x")
	if site.CurrentState() != StateDictionary {
		t.Errorf("Expected dictionary to be terminal, got %s", site.CurrentState())
	}
}

func TestSiteAccessorGoesGeneric(t *testing.T) {
	a := newArena()
	tbl := NewTable(DefaultPolicy())
	o := shape.NewObject(a, nil)
	o.DefineAccessor("len", "getter", nil, shape.Enumerable|shape.Configurable)

	v, ok := tbl.Access(6, o, "len")
	if !ok {
		t.Fatal("Expected accessor to be found")
	}
	if _, isPair := v.(*shape.AccessorPair); !isPair {
		t.Errorf("Expected *AccessorPair, got %T", v)
	}
	if s := tbl.Get(6).CurrentState(); s != StateGeneric {
		t.Errorf("Expected generic, got %s", s)
	}
}

func TestSiteExoticGoesGeneric(t *testing.T) {
	a := newArena()
	tbl := NewTable(DefaultPolicy())
	o := shape.NewObjectWithType(a, nil, shape.OverridesGetOwnProperty)
	o.Put("x", int64(1))
	tbl.Access(6, o, "x")
	if s := tbl.Get(6).CurrentState(); s != StateGeneric {
		t.Errorf("Expected generic, got %s", s)
	}
}

func TestSiteNotFoundIsNotCached(t *testing.T) {
	a := newArena()
	tbl := NewTable(DefaultPolicy())
	o := objectWith(a, nil, "x")
	if _, ok := tbl.Access(8, o, "nope"); ok {
		t.Error("Expected missing property")
	}
	site := tbl.Get(8)
	if site.CurrentState() != StateUninitialized {
		t.Errorf("Expected uninitialized, got %s", site.CurrentState())
	}
	if !site.SeenOnce() {
		t.Error("Expected the site to be marked seen")
	}
}

func TestSiteSkipFirstObservation(t *testing.T) {
	a := newArena()
	p := DefaultPolicy()
	p.SkipFirstObservation = true
	tbl := NewTable(p)
	o := objectWith(a, nil, "x")

	tbl.Access(9, o, "x")
	site := tbl.Get(9)
	if site.CurrentState() != StateUninitialized || !site.SeenOnce() {
		t.Errorf("Expected seen-but-uninitialized, got %s seen=%v", site.CurrentState(), site.SeenOnce())
	}
	tbl.Access(9, o, "x")
	if site.CurrentState() != StateSelfHit {
		t.Errorf("Expected self-hit on the second execution, got %s", site.CurrentState())
	}
}

func TestSiteMaxChainDepth(t *testing.T) {
	for _, depth := range []int{2, 8} {
		t.Run(fmt.Sprintf("depth=%d", depth), func(t *testing.T) {
			a := newArena()
			p := DefaultPolicy()
			p.MaxChainDepth = depth
			tbl := NewTable(p)

			// deepest holds "far"; receiver sits depth+1 hops below it
			proto := objectWith(a, nil, "far")
			for i := 0; i < depth-1; i++ {
				proto = objectWith(a, proto)
			}
			atBound := objectWith(a, proto)
			beyond := objectWith(a, atBound)

			tbl.Access(1, atBound, "far")
			if s := tbl.Get(1).CurrentState(); s != StateChainHit {
				t.Errorf("depth %d: expected chain-hit, got %s", depth, s)
			}
			tbl.Access(2, beyond, "far")
			if s := tbl.Get(2).CurrentState(); s != StateGeneric {
				t.Errorf("depth %d: expected generic, got %s", depth+1, s)
			}
		})
	}
}

func TestSiteResetAndTableStats(t *testing.T) {
	a := newArena()
	tbl := NewTable(DefaultPolicy())
	o := objectWith(a, nil, "x")
	d := objectWith(a, nil, "x", "y")
	d.DeleteProperty("y")

	tbl.Access(0, o, "x")
	tbl.Access(0, o, "x")
	tbl.Access(1, d, "x")
	tbl.Access(2, o, "missing")

	st := tbl.Stats()
	if st.Sites != 3 || st.Monomorphic != 1 || st.Dictionary != 1 || st.Uninitialized != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.Hits != 1 || st.Misses != 3 {
		t.Errorf("Expected 1 hit and 3 misses, got %d and %d", st.Hits, st.Misses)
	}
	if got := tbl.HitRate(); got != 25 {
		t.Errorf("HitRate() = %v, want 25", got)
	}

	tbl.Reset()
	if s := tbl.Get(0).CurrentState(); s != StateUninitialized {
		t.Errorf("Expected reset site to be uninitialized, got %s", s)
	}
	if s := tbl.Get(1).CurrentState(); s != StateDictionary {
		t.Errorf("Expected terminal site to survive reset, got %s", s)
	}
	if pcs := tbl.Sites(); len(pcs) != 3 || pcs[0].PC != 0 || pcs[2].PC != 2 {
		t.Error("Expected Sites() ordered by PC")
	}
}
