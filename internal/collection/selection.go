package collection

import "slices"

// SelectionScope says what a selection refers to.
type SelectionScope int

const (
	// ScopeVisible holds the explicit ids the user checked, on any page.
	ScopeVisible SelectionScope = iota
	// ScopeMatching means every record matching one query, server side.
	ScopeMatching
)

func (s SelectionScope) String() string {
	if s == ScopeMatching {
		return "matching"
	}
	return "visible"
}

// Selection tracks selected record ids across pages. It is not safe for
// concurrent use; View guards it.
type Selection struct {
	ids      map[string]struct{}
	scope    SelectionScope
	matchKey QueryKey
	matchN   int
}

// Toggle flips id and reports whether it is now selected. Toggling while
// scoped to a whole query drops back to explicit ids.
func (s *Selection) Toggle(id string) bool {
	s.leaveMatching()
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.add(id)
	return true
}

// Add selects ids.
func (s *Selection) Add(ids ...string) {
	s.leaveMatching()
	for _, id := range ids {
		s.add(id)
	}
}

// Remove deselects id.
func (s *Selection) Remove(id string) {
	delete(s.ids, id)
}

// Has reports whether id is explicitly selected, or implied by a matching
// scope.
func (s *Selection) Has(id string) bool {
	if s.scope == ScopeMatching {
		return true
	}
	_, ok := s.ids[id]
	return ok
}

// SelectMatching scopes the selection to every record matching key.
func (s *Selection) SelectMatching(key QueryKey, total int) {
	clear(s.ids)
	s.scope = ScopeMatching
	s.matchKey = key
	s.matchN = total
}

// Reconcile resets a matching selection made under a different key.
func (s *Selection) Reconcile(key QueryKey) {
	if s.scope == ScopeMatching && s.matchKey != key {
		s.Clear()
	}
}

// Clear empties the selection.
func (s *Selection) Clear() {
	clear(s.ids)
	s.scope = ScopeVisible
	s.matchKey = ""
	s.matchN = 0
}

func (s *Selection) Scope() SelectionScope {
	return s.scope
}

// MatchKey is the query a matching selection refers to.
func (s *Selection) MatchKey() QueryKey {
	return s.matchKey
}

// Count is the number of selected records: explicit ids, or the server's
// total for a matching scope.
func (s *Selection) Count() int {
	if s.scope == ScopeMatching {
		return s.matchN
	}
	return len(s.ids)
}

// IDs returns the explicit ids, sorted.
func (s *Selection) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s *Selection) add(id string) {
	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}
	s.ids[id] = struct{}{}
}

func (s *Selection) leaveMatching() {
	if s.scope == ScopeMatching {
		s.Clear()
	}
}
