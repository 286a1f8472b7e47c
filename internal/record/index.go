package record

import "sort"

// IndexMap is a single named secondary index: indexed value -> set of
// record ids. Callers hold the owning processor's lock; IndexMap itself is
// not safe for concurrent use.
type IndexMap struct {
	byKey map[string]map[string]struct{}
}

// NewIndexMap returns an empty index.
func NewIndexMap() *IndexMap {
	return &IndexMap{byKey: map[string]map[string]struct{}{}}
}

// Add associates id with key, creating the key's set if needed.
func (m *IndexMap) Add(key, id string) {
	set, ok := m.byKey[key]
	if !ok {
		set = map[string]struct{}{}
		m.byKey[key] = set
	}
	set[id] = struct{}{}
}

// Remove disassociates id from key. If the set becomes empty the key is
// dropped entirely, per the index-maintenance invariant.
func (m *IndexMap) Remove(key, id string) {
	set, ok := m.byKey[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m.byKey, key)
	}
}

// Lookup returns the ids associated with key, or nil if none.
func (m *IndexMap) Lookup(key string) []string {
	set, ok := m.byKey[key]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Keys returns the current set of indexed keys, sorted.
func (m *IndexMap) Keys() []string {
	keys := make([]string, 0, len(m.byKey))
	for k := range m.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether id is present under key, used by tests asserting
// index/record consistency.
func (m *IndexMap) Has(key, id string) bool {
	set, ok := m.byKey[key]
	if !ok {
		return false
	}
	_, ok = set[id]
	return ok
}

// Size returns the number of distinct keys currently indexed.
func (m *IndexMap) Size() int { return len(m.byKey) }
