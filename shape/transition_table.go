package shape

// TransitionTable maps edge keys to successor shapes.
//
// The table does not own its successors: an entry is removed when the
// successor is freed, and a parent never keeps a child alive. A table with
// a single entry keeps it inline; the second distinct edge promotes it to a
// map.
type TransitionTable struct {
	singleKey EdgeKey
	single    ID
	table     map[EdgeKey]ID
}

// Len returns the number of recorded transitions.
func (t *TransitionTable) Len() int {
	if t.table != nil {
		return len(t.table)
	}
	if t.single != InvalidID {
		return 1
	}
	return 0
}

// Find returns the successor recorded for key.
func (t *TransitionTable) Find(key EdgeKey) (ID, bool) {
	if t.table != nil {
		id, ok := t.table[key]
		return id, ok
	}
	if t.single != InvalidID && t.singleKey == key {
		return t.single, true
	}
	return InvalidID, false
}

// Insert records key -> id. Published mappings are never overwritten;
// inserting a key that is already present is a contract violation.
func (t *TransitionTable) Insert(key EdgeKey, id ID) {
	if _, dup := t.Find(key); dup {
		contractf("TransitionTable.Insert: edge %v already has a successor", key.kind)
	}
	t.put(key, id)
}

// InsertOrAdopt records key -> id unless another successor won the race,
// in which case the existing successor is returned and id is not recorded.
func (t *TransitionTable) InsertOrAdopt(key EdgeKey, id ID) ID {
	if winner, ok := t.Find(key); ok {
		return winner
	}
	t.put(key, id)
	return id
}

// Remove drops key if it still maps to id.
func (t *TransitionTable) Remove(key EdgeKey, id ID) bool {
	if t.table != nil {
		if cur, ok := t.table[key]; ok && cur == id {
			delete(t.table, key)
			return true
		}
		return false
	}
	if t.single == id && t.singleKey == key {
		t.single = InvalidID
		t.singleKey = EdgeKey{}
		return true
	}
	return false
}

// Each calls fn for every entry until fn returns false. Order is unspecified.
func (t *TransitionTable) Each(fn func(EdgeKey, ID) bool) {
	if t.table != nil {
		for k, id := range t.table {
			if !fn(k, id) {
				return
			}
		}
		return
	}
	if t.single != InvalidID {
		fn(t.singleKey, t.single)
	}
}

func (t *TransitionTable) put(key EdgeKey, id ID) {
	if t.table != nil {
		t.table[key] = id
		return
	}
	if t.single == InvalidID {
		t.singleKey, t.single = key, id
		return
	}
	t.table = map[EdgeKey]ID{t.singleKey: t.single, key: id}
	t.single = InvalidID
	t.singleKey = EdgeKey{}
}
