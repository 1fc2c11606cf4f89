package collection

import "sync"

// PageMeta is the server-reported position of a page. Pages are 0-based.
type PageMeta struct {
	Page       int  `json:"page"`
	PageCount  int  `json:"page_count"`
	TotalCount int  `json:"total_count"`
	NextPage   *int `json:"next_page,omitempty"`
	PrevPage   *int `json:"prev_page,omitempty"`
}

// InRange reports whether n is a valid page for this result set.
func (m PageMeta) InRange(n int) bool {
	return n >= 0 && n < m.PageCount
}

// PageResult is one fetched page. It is read-only once stored.
type PageResult[R Record] struct {
	Records []R      `json:"records"`
	Meta    PageMeta `json:"meta"`
}

type pageKey struct {
	key  QueryKey
	page int
}

// PageCache stores page results by (QueryKey, page). It is only ever
// emptied as a whole.
type PageCache[R Record] struct {
	mu      sync.RWMutex
	entries map[pageKey]PageResult[R]
}

// NewPageCache returns an empty cache.
func NewPageCache[R Record]() *PageCache[R] {
	return &PageCache[R]{entries: make(map[pageKey]PageResult[R])}
}

// Get returns the stored result for (key, page).
func (c *PageCache[R]) Get(key QueryKey, page int) (PageResult[R], bool) {
	c.mu.RLock()
	res, ok := c.entries[pageKey{key, page}]
	c.mu.RUnlock()
	if ok {
		cacheLookups.WithLabelValues("hit").Inc()
	} else {
		cacheLookups.WithLabelValues("miss").Inc()
	}
	return res, ok
}

// Put stores res, replacing any previous entry for (key, page).
func (c *PageCache[R]) Put(key QueryKey, page int, res PageResult[R]) {
	c.mu.Lock()
	c.entries[pageKey{key, page}] = res
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *PageCache[R]) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
	cacheClears.Inc()
}

// Len is the number of stored pages.
func (c *PageCache[R]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
