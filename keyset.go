package docstore

import "sort"

// KeySet is a set of primary keys.
type KeySet map[string]struct{}

func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s KeySet) Add(key string) {
	s[key] = struct{}{}
}

func (s KeySet) Remove(key string) {
	delete(s, key)
}

func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

func (s KeySet) Len() int {
	return len(s)
}

// AddAll adds every key of o to s.
func (s KeySet) AddAll(o KeySet) {
	for k := range o {
		s[k] = struct{}{}
	}
}

func (s KeySet) Clone() KeySet {
	c := make(KeySet, len(s))
	c.AddAll(s)
	return c
}

// Sorted returns the keys in ascending order.
func (s KeySet) Sorted() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
