package collection

// QueryKey is the canonical identity of the server-relevant part of a
// FilterState. Two states with the same key request the same pages, so the
// key scopes every page cache entry. Local fields do not contribute.
type QueryKey string

// QueryKey derives the key. url.Values.Encode sorts keys, and list values are
// kept sorted and de-duplicated by coercion, so equal selections made in any
// order produce the same key.
func (f FilterState) QueryKey() QueryKey {
	if f.schema == nil {
		return ""
	}
	return QueryKey(f.ServerParams().Encode())
}
