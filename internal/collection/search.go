package collection

import "strings"

// Matches reports whether query occurs in text, ignoring case.
func Matches(text, query string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(query))
}

// QueryPredicate returns the search predicate for query, or nil when the
// query is blank so callers can skip the scan entirely.
func QueryPredicate[R Record](query string) Predicate[R] {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	needle := strings.ToLower(query)
	return func(r R) bool {
		return strings.Contains(strings.ToLower(r.SearchText()), needle)
	}
}
