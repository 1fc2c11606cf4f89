package collection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrBusy is returned by navigation while a page fetch is outstanding.
	ErrBusy = errors.New("collection: a page fetch is already in flight")
	// ErrStale is returned by Load when its response was discarded because
	// the cache was cleared or a newer request took over meanwhile.
	ErrStale = errors.New("collection: response superseded")
	// ErrNoPage is returned by relative navigation before any page loaded.
	ErrNoPage = errors.New("collection: no page loaded yet")
)

// PageRequest is what a Fetcher is asked for.
type PageRequest struct {
	Filters FilterState
	Page    int
	PerPage int
}

// Fetcher retrieves one page of records from the server.
type Fetcher[R Record] interface {
	FetchPage(ctx context.Context, req PageRequest) (PageResult[R], error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc[R Record] func(ctx context.Context, req PageRequest) (PageResult[R], error)

// FetchPage calls f.
func (f FetchFunc[R]) FetchPage(ctx context.Context, req PageRequest) (PageResult[R], error) {
	return f(ctx, req)
}

// NavResult reports what a navigation call did.
type NavResult int

const (
	NavNoop NavResult = iota
	NavCacheHit
	NavFetched
)

func (n NavResult) String() string {
	switch n {
	case NavCacheHit:
		return "cache_hit"
	case NavFetched:
		return "fetched"
	default:
		return "noop"
	}
}

// ControllerStatus is a consistent read of the controller.
type ControllerStatus[R Record] struct {
	Key     QueryKey
	Current PageResult[R]
	Loaded  bool
	Loading bool
	Err     error
}

// fetchTicket is an issued request. seq orders requests; epoch changes on
// every cache clear.
type fetchTicket struct {
	filters FilterState
	key     QueryKey
	page    int
	seq     uint64
	epoch   uint64
}

// Controller owns the page cache and the current page pointer for one view.
type Controller[R Record] struct {
	fetcher Fetcher[R]
	cache   *PageCache[R]
	perPage int
	log     *slog.Logger

	mu      sync.Mutex
	filters FilterState
	key     QueryKey
	current PageResult[R]
	loaded  bool
	loading bool
	err     error
	seq     uint64
	epoch   uint64
}

// NewController returns a controller fetching perPage records per page.
func NewController[R Record](fetcher Fetcher[R], perPage int, log *slog.Logger) *Controller[R] {
	if log == nil {
		log = slog.Default()
	}
	return &Controller[R]{
		fetcher: fetcher,
		cache:   NewPageCache[R](),
		perPage: perPage,
		log:     log,
	}
}

// Cache exposes the page cache.
func (c *Controller[R]) Cache() *PageCache[R] {
	return c.cache
}

// Status returns the current controller state.
func (c *Controller[R]) Status() ControllerStatus[R] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ControllerStatus[R]{
		Key:     c.key,
		Current: c.current,
		Loaded:  c.loaded,
		Loading: c.loading,
		Err:     c.err,
	}
}

// Load fetches page for filters and makes it current. forceClear empties the
// cache first, which also invalidates every response still in flight.
func (c *Controller[R]) Load(ctx context.Context, filters FilterState, page int, forceClear bool) error {
	c.mu.Lock()
	t := c.beginLocked(filters, page, forceClear)
	c.mu.Unlock()
	return c.run(ctx, t)
}

// Invalidate clears the cache and discards any response still in flight.
func (c *Controller[R]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	c.loading = false
}

// Next moves to meta.next_page.
func (c *Controller[R]) Next(ctx context.Context) (NavResult, error) {
	return c.navigate(ctx, func(m PageMeta) (int, bool) { return derefPage(m.NextPage) })
}

// Prev moves to meta.prev_page.
func (c *Controller[R]) Prev(ctx context.Context) (NavResult, error) {
	return c.navigate(ctx, func(m PageMeta) (int, bool) { return derefPage(m.PrevPage) })
}

// Goto moves to page n. An out-of-range n is a no-op.
func (c *Controller[R]) Goto(ctx context.Context, n int) (NavResult, error) {
	return c.navigate(ctx, func(PageMeta) (int, bool) { return n, true })
}

func (c *Controller[R]) navigate(ctx context.Context, target func(PageMeta) (int, bool)) (NavResult, error) {
	res, t, err := c.plan(target)
	if err != nil || t == nil {
		return res, err
	}
	return res, c.run(ctx, t)
}

// plan resolves a navigation under the lock. A cache hit is applied
// immediately; a miss returns the ticket the caller must run.
func (c *Controller[R]) plan(target func(PageMeta) (int, bool)) (NavResult, *fetchTicket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return NavNoop, nil, ErrBusy
	}
	if !c.loaded {
		return NavNoop, nil, ErrNoPage
	}
	n, ok := target(c.current.Meta)
	if !ok || !c.current.Meta.InRange(n) {
		return NavNoop, nil, nil
	}
	if res, hit := c.cache.Get(c.key, n); hit {
		c.current = res
		c.err = nil
		return NavCacheHit, nil, nil
	}
	return NavFetched, c.beginLocked(c.filters, n, false), nil
}

func (c *Controller[R]) begin(filters FilterState, page int, forceClear bool) *fetchTicket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beginLocked(filters, page, forceClear)
}

func (c *Controller[R]) beginLocked(filters FilterState, page int, forceClear bool) *fetchTicket {
	if forceClear {
		c.clearLocked()
	}
	c.filters = filters
	c.key = filters.QueryKey()
	c.seq++
	c.loading = true
	return &fetchTicket{
		filters: filters,
		key:     c.key,
		page:    page,
		seq:     c.seq,
		epoch:   c.epoch,
	}
}

func (c *Controller[R]) clearLocked() {
	c.cache.Clear()
	c.epoch++
}

func (c *Controller[R]) run(ctx context.Context, t *fetchTicket) error {
	c.log.DebugContext(ctx, "collection fetch started", "query_key", string(t.key), "page", t.page, "seq", t.seq)
	start := time.Now()
	res, err := c.fetcher.FetchPage(ctx, PageRequest{Filters: t.filters, Page: t.page, PerPage: c.perPage})
	fetchDuration.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	latest := t.seq == c.seq

	if t.epoch != c.epoch || t.key != c.key {
		if latest {
			c.loading = false
		}
		fetches.WithLabelValues("stale").Inc()
		c.log.DebugContext(ctx, "collection stale response discarded", "query_key", string(t.key), "page", t.page, "seq", t.seq)
		return ErrStale
	}
	if err != nil {
		fetches.WithLabelValues("error").Inc()
		if !latest {
			return ErrStale
		}
		c.loading = false
		c.err = err
		c.log.WarnContext(ctx, "collection fetch failed", "query_key", string(t.key), "page", t.page, "error", err)
		return err
	}

	c.cache.Put(t.key, t.page, res)
	if !latest {
		fetches.WithLabelValues("superseded").Inc()
		return ErrStale
	}
	fetches.WithLabelValues("ok").Inc()
	c.loading = false
	c.err = nil
	c.current = res
	c.loaded = true
	c.log.DebugContext(ctx, "collection fetch finished", "query_key", string(t.key), "page", t.page, "records", len(res.Records))
	return nil
}

func derefPage(p *int) (int, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}
