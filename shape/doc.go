// Package shape implements hidden-class shapes for dynamic objects.
//
// This package contains:
//   - PropertyMap: name to slot-offset layout with attribute bits
//   - TransitionTable: per-shape edge cache with a single-entry fast slot
//   - Shape and Arena: handle-indexed, reference-counted shape storage
//   - Chain: flattened prototype chain validated by shape identity
//   - Object: the engine-facing object model built on shapes
//
// Shapes reached from the same root through the same sequence of edges are
// the same Shape, so their slot offsets agree and inline caches keyed on a
// shape ID stay valid for every object that has it.
package shape
