// Package snapshot captures the shape graph of an arena as plain data that
// can be encoded to CBOR, written to disk and inspected later.
package snapshot

import (
	"fmt"
	"io"
	"sort"

	"github.com/chazu/shapegraph/shape"
)

// Snapshot is the shape graph of one arena at one moment.
type Snapshot struct {
	Arena  string      `cbor:"1,keyasint"` // arena UUID
	Policy PolicyInfo  `cbor:"2,keyasint"`
	Shapes []Node      `cbor:"3,keyasint"`
	Stats  shape.Stats `cbor:"4,keyasint"`
}

// PolicyInfo mirrors shape.Policy.
type PolicyInfo struct {
	MaxTransitions      int  `cbor:"1,keyasint"`
	MaxTransitionLength int  `cbor:"2,keyasint"`
	InitialCapacity     int  `cbor:"3,keyasint"`
	GrowthFactor        int  `cbor:"4,keyasint"`
	Concurrent          bool `cbor:"5,keyasint"`
}

// Node is one live shape.
type Node struct {
	ID           uint64       `cbor:"1,keyasint"`
	Previous     uint64       `cbor:"2,keyasint,omitempty"`
	EdgeKind     uint8        `cbor:"3,keyasint"`
	Edge         string       `cbor:"4,keyasint,omitempty"`
	Dictionary   bool         `cbor:"5,keyasint,omitempty"`
	GetterSetter bool         `cbor:"6,keyasint,omitempty"`
	TypeInfo     uint16       `cbor:"7,keyasint,omitempty"`
	Prototype    uint64       `cbor:"8,keyasint,omitempty"` // object serial, 0 for null
	Capacity     int          `cbor:"9,keyasint"`
	Version      uint32       `cbor:"10,keyasint,omitempty"`
	Properties   []Property   `cbor:"11,keyasint,omitempty"`
	Transitions  []Transition `cbor:"12,keyasint,omitempty"`
	Fingerprint  uint64       `cbor:"13,keyasint"`
	RefCount     int          `cbor:"14,keyasint"`
}

// Property is one entry of a node's layout.
type Property struct {
	Name   string `cbor:"1,keyasint"`
	Offset int    `cbor:"2,keyasint"`
	Attrs  string `cbor:"3,keyasint"`
}

// Transition is one outgoing edge of a node.
type Transition struct {
	Edge   string `cbor:"1,keyasint"`
	Target uint64 `cbor:"2,keyasint"`
}

// Capture records every live shape of a. The arena must not be mutated
// while Capture runs.
func Capture(a *shape.Arena) *Snapshot {
	p := a.Policy()
	snap := &Snapshot{
		Arena: a.UUID().String(),
		Policy: PolicyInfo{
			MaxTransitions:      p.MaxTransitions,
			MaxTransitionLength: p.MaxTransitionLength,
			InitialCapacity:     p.InitialCapacity,
			GrowthFactor:        p.GrowthFactor,
			Concurrent:          p.Concurrent,
		},
		Stats: a.Stats(),
	}

	var live []*shape.Shape
	a.EachShape(func(s *shape.Shape) bool {
		live = append(live, s)
		return true
	})
	byID := make(map[shape.ID]*shape.Shape, len(live))
	for _, s := range live {
		byID[s.ID()] = s
	}

	for _, s := range live {
		n := Node{
			ID:           uint64(s.ID()),
			Previous:     uint64(s.Previous()),
			Dictionary:   s.IsDictionary(),
			GetterSetter: s.HasGetterSetter(),
			TypeInfo:     uint16(s.TypeInfo()),
			Capacity:     s.Capacity(),
			Version:      s.Version(),
			Fingerprint:  a.Fingerprint(s.ID()),
			RefCount:     a.RefCount(s.ID()),
		}
		if e := s.Edge(); e != nil {
			n.EdgeKind = uint8(e.Kind())
			n.Edge = e.String()
		}
		if proto := s.Prototype(); proto != nil {
			n.Prototype = proto.Serial()
		}
		s.PropertyMap().Each(func(p shape.Property) bool {
			n.Properties = append(n.Properties, Property{Name: p.Name, Offset: p.Offset, Attrs: p.Attrs.String()})
			return true
		})
		s.Transitions(func(_ shape.EdgeKey, target shape.ID) bool {
			t := Transition{Target: uint64(target)}
			if ts := byID[target]; ts != nil && ts.Edge() != nil {
				t.Edge = ts.Edge().String()
			}
			n.Transitions = append(n.Transitions, t)
			return true
		})
		sort.Slice(n.Transitions, func(i, j int) bool { return n.Transitions[i].Target < n.Transitions[j].Target })
		snap.Shapes = append(snap.Shapes, n)
	}
	return snap
}

// Find returns the node for id.
func (s *Snapshot) Find(id uint64) (Node, bool) {
	i := sort.Search(len(s.Shapes), func(i int) bool { return uint32(s.Shapes[i].ID) >= uint32(id) })
	if i < len(s.Shapes) && s.Shapes[i].ID == id {
		return s.Shapes[i], true
	}
	// Nodes are ordered by arena slot; fall back to a scan for foreign IDs.
	for _, n := range s.Shapes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Lineage returns the path of nodes from the root to id.
func (s *Snapshot) Lineage(id uint64) ([]Node, error) {
	var path []Node
	for cur := id; cur != 0; {
		n, ok := s.Find(cur)
		if !ok {
			return nil, fmt.Errorf("snapshot: shape %s not in snapshot", shape.ID(cur))
		}
		path = append(path, n)
		cur = n.Previous
		if len(path) > len(s.Shapes) {
			return nil, fmt.Errorf("snapshot: cycle in lineage of %s", shape.ID(id))
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Dictionaries returns the number of dictionary nodes.
func (s *Snapshot) Dictionaries() int {
	n := 0
	for _, node := range s.Shapes {
		if node.Dictionary {
			n++
		}
	}
	return n
}

// WriteText writes a human-readable listing of the snapshot.
func (s *Snapshot) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "arena %s: %d shapes (%d dictionary)\n", s.Arena, len(s.Shapes), s.Dictionaries()); err != nil {
		return err
	}
	for _, n := range s.Shapes {
		kind := "shared"
		if n.Dictionary {
			kind = "dict"
		}
		edge := n.Edge
		if edge == "" {
			edge = "root"
		}
		if _, err := fmt.Fprintf(w, "%-10s %-6s prev=%-8s refs=%d cap=%d fp=%016x %s\n",
			shape.ID(n.ID), kind, shape.ID(n.Previous), n.RefCount, n.Capacity, n.Fingerprint, edge); err != nil {
			return err
		}
		for _, p := range n.Properties {
			if _, err := fmt.Fprintf(w, "    [%d] %s %s\n", p.Offset, p.Name, p.Attrs); err != nil {
				return err
			}
		}
		for _, t := range n.Transitions {
			if _, err := fmt.Fprintf(w, "    -> %s %s\n", shape.ID(t.Target), t.Edge); err != nil {
				return err
			}
		}
	}
	return nil
}
