package shape

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Diagnostics receives shape lifetime events from an Arena. Each arena gets
// its own sink, so independent arenas track allocations independently.
type Diagnostics interface {
	ShapeAllocated(arena uuid.UUID, id ID, edge Edge)
	ShapeFreed(arena uuid.UUID, id ID)
	// ShapeDiscarded reports a freshly built shape that lost a concurrent
	// publish race and was dropped in favor of the winner.
	ShapeDiscarded(arena uuid.UUID, edge Edge)
}

type nopDiagnostics struct{}

func (nopDiagnostics) ShapeAllocated(uuid.UUID, ID, Edge) {}
func (nopDiagnostics) ShapeFreed(uuid.UUID, ID)           {}
func (nopDiagnostics) ShapeDiscarded(uuid.UUID, Edge)     {}

// LeakTracker is a Diagnostics sink that records live shapes so tests and
// tools can report what was never released. Allocations made between
// StartIgnoring and StopIgnoring are not tracked; this is meant for shapes
// that intentionally live as long as the arena, such as cached roots.
type LeakTracker struct {
	mu        sync.Mutex
	live      map[ID]Edge
	ignoring  int
	allocated int
	freed     int
	discarded int
}

// NewLeakTracker returns an empty tracker.
func NewLeakTracker() *LeakTracker {
	return &LeakTracker{live: make(map[ID]Edge)}
}

// StartIgnoring suspends tracking of new allocations. Calls nest.
func (t *LeakTracker) StartIgnoring() {
	t.mu.Lock()
	t.ignoring++
	t.mu.Unlock()
}

// StopIgnoring resumes tracking after a matching StartIgnoring.
func (t *LeakTracker) StopIgnoring() {
	t.mu.Lock()
	if t.ignoring > 0 {
		t.ignoring--
	}
	t.mu.Unlock()
}

func (t *LeakTracker) ShapeAllocated(_ uuid.UUID, id ID, edge Edge) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allocated++
	if t.ignoring == 0 {
		t.live[id] = edge
	}
}

func (t *LeakTracker) ShapeFreed(_ uuid.UUID, id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.freed++
	delete(t.live, id)
}

func (t *LeakTracker) ShapeDiscarded(uuid.UUID, Edge) {
	t.mu.Lock()
	t.discarded++
	t.mu.Unlock()
}

// Leaks returns the tracked shapes that are still alive, in ID order.
func (t *LeakTracker) Leaks() []ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]ID, 0, len(t.live))
	for id := range t.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Counts returns how many shapes were allocated, freed and discarded.
func (t *LeakTracker) Counts() (allocated, freed, discarded int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allocated, t.freed, t.discarded
}
