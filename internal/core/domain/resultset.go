package domain

import "sort"

// ResultSet maps query identity to resolution.
// It is not safe for concurrent use; the resolver guards its own writes.
type ResultSet struct {
	entries map[string]Resolution
}

// NewResultSet creates an empty result set.
func NewResultSet() *ResultSet {
	return &ResultSet{entries: make(map[string]Resolution)}
}

// Put records a resolution, replacing any earlier one for the same identity.
func (s *ResultSet) Put(r Resolution) {
	s.entries[r.QueryID] = r
}

// Get returns the resolution recorded for an identity.
func (s *ResultSet) Get(id string) (Resolution, bool) {
	if s == nil {
		return Resolution{}, false
	}
	r, ok := s.entries[id]
	return r, ok
}

// Delete removes an identity from the set.
func (s *ResultSet) Delete(id string) {
	delete(s.entries, id)
}

// Len returns the number of identities in the set.
func (s *ResultSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// IDs returns all identities in canonical (ascending) order.
func (s *ResultSet) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sorted returns all resolutions in canonical order.
func (s *ResultSet) Sorted() []Resolution {
	ids := s.IDs()
	out := make([]Resolution, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.entries[id])
	}
	return out
}

// Clone returns an independent copy of the set.
func (s *ResultSet) Clone() *ResultSet {
	c := NewResultSet()
	if s == nil {
		return c
	}
	for id, r := range s.entries {
		c.entries[id] = r
	}
	return c
}

// Count returns how many resolutions have the given status.
func (s *ResultSet) Count(status Status) int {
	if s == nil {
		return 0
	}
	n := 0
	for _, r := range s.entries {
		if r.Status == status {
			n++
		}
	}
	return n
}
