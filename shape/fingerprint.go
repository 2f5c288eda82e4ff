package shape

import (
	"strconv"

	"github.com/zeebo/xxh3"
)

// Fingerprint hashes the edge path from the root to id. Shareable shapes
// reached through the same edges from roots with the same prototype and
// type info hash equal, including across arenas whose prototype objects
// have the same serial numbers. Dictionary shapes also hash their current
// layout since they are edited in place, and so does any shape whose path
// passes through a flatten, since the edges before it no longer describe
// the layout.
func (a *Arena) Fingerprint(id ID) uint64 {
	h := xxh3.New()
	a.locked(func() {
		var path []*Shape
		flattened := false
		for s := a.get(id); ; s = a.get(s.previous) {
			path = append(path, s)
			if s.edge != nil && s.edge.Kind() == EdgeFromDictionary {
				flattened = true
			}
			if s.previous == InvalidID {
				break
			}
		}
		root := path[len(path)-1]
		h.WriteString("root:")
		h.WriteString(strconv.FormatUint(uint64(root.typeInfo), 16))
		if root.proto != nil {
			h.WriteString(":#")
			h.WriteString(strconv.FormatUint(root.proto.serial, 10))
		}
		for i := len(path) - 2; i >= 0; i-- {
			h.WriteString("/")
			h.WriteString(path[i].edge.String())
		}
		s := path[0]
		if s.dictionary {
			h.WriteString("|dict:")
			h.WriteString(strconv.FormatUint(uint64(s.version), 10))
		}
		if s.dictionary || flattened {
			h.WriteString("|layout:")
			s.props.Each(func(p Property) bool {
				h.WriteString(p.Name)
				h.WriteString("=")
				h.WriteString(strconv.Itoa(p.Offset))
				h.WriteString(p.Attrs.String())
				h.WriteString(";")
				return true
			})
		}
	})
	return h.Sum64()
}
