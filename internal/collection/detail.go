package collection

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DetailStatus is the state of one row's expandable detail.
type DetailStatus int

const (
	DetailClosed DetailStatus = iota
	DetailLoading
	DetailLoaded
	DetailFailed
)

func (s DetailStatus) String() string {
	switch s {
	case DetailLoading:
		return "loading"
	case DetailLoaded:
		return "loaded"
	case DetailFailed:
		return "failed"
	default:
		return "closed"
	}
}

// DetailFetchTimeout bounds one shared detail fetch.
const DetailFetchTimeout = 30 * time.Second

// DetailFetcher loads the detail payload of one record.
type DetailFetcher[D any] func(ctx context.Context, id string) (D, error)

// Detail is a read of one row's detail.
type Detail[D any] struct {
	ID     string
	Status DetailStatus
	Value  D
	Err    error
}

type detailRow[D any] struct {
	open    bool
	loading bool
	loaded  bool
	value   D
	err     error
}

// DetailLoader lazily loads per-row detail the first time a row opens.
// Successful loads are kept, so closing and reopening does not refetch;
// failures are kept only until the row is opened again.
type DetailLoader[D any] struct {
	fetch DetailFetcher[D]
	group singleflight.Group

	mu   sync.Mutex
	rows map[string]*detailRow[D]
}

// NewDetailLoader returns a loader backed by fetch.
func NewDetailLoader[D any](fetch DetailFetcher[D]) *DetailLoader[D] {
	return &DetailLoader[D]{fetch: fetch, rows: make(map[string]*detailRow[D])}
}

// Toggle opens a closed row (loading it if needed) or closes an open one.
func (l *DetailLoader[D]) Toggle(ctx context.Context, id string) Detail[D] {
	l.mu.Lock()
	row := l.rowLocked(id)
	if row.open {
		row.open = false
		d := l.readLocked(id, row)
		l.mu.Unlock()
		return d
	}
	l.mu.Unlock()
	return l.Open(ctx, id)
}

// Open opens id and blocks until its detail is available or failed.
// Concurrent opens of the same row share one fetch. The shared fetch is not
// cancelled with the caller that started it; a caller whose ctx ends stops
// waiting and gets ctx's error while the others keep waiting.
func (l *DetailLoader[D]) Open(ctx context.Context, id string) Detail[D] {
	l.mu.Lock()
	row := l.rowLocked(id)
	row.open = true
	if row.loaded {
		d := l.readLocked(id, row)
		l.mu.Unlock()
		return d
	}
	row.loading = true
	row.err = nil
	l.mu.Unlock()

	ch := l.group.DoChan(id, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DetailFetchTimeout)
		defer cancel()
		v, err := l.fetch(fctx, id)
		l.store(id, v, err)
		return v, err
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return Detail[D]{ID: id, Status: DetailFailed, Err: ctx.Err()}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if row, ok := l.rows[id]; ok {
		return l.readLocked(id, row)
	}
	// Forgotten while loading.
	if res.Err != nil {
		return Detail[D]{ID: id, Status: DetailFailed, Err: res.Err}
	}
	return Detail[D]{ID: id, Status: DetailLoaded, Value: res.Val.(D)}
}

func (l *DetailLoader[D]) store(id string, v D, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		detailFetches.WithLabelValues("error").Inc()
	} else {
		detailFetches.WithLabelValues("ok").Inc()
	}
	row, ok := l.rows[id]
	if !ok {
		return
	}
	row.loading = false
	if err != nil {
		row.err = err
		return
	}
	row.value = v
	row.loaded = true
}

// Close collapses id without discarding a loaded detail.
func (l *DetailLoader[D]) Close(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if row, ok := l.rows[id]; ok {
		row.open = false
	}
}

// Get reads id without loading anything.
func (l *DetailLoader[D]) Get(id string) Detail[D] {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[id]
	if !ok {
		return Detail[D]{ID: id}
	}
	return l.readLocked(id, row)
}

// Forget drops everything known about id.
func (l *DetailLoader[D]) Forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rows, id)
	l.group.Forget(id)
}

func (l *DetailLoader[D]) rowLocked(id string) *detailRow[D] {
	row, ok := l.rows[id]
	if !ok {
		row = &detailRow[D]{}
		l.rows[id] = row
	}
	return row
}

func (l *DetailLoader[D]) readLocked(id string, row *detailRow[D]) Detail[D] {
	d := Detail[D]{ID: id, Value: row.value, Err: row.err}
	switch {
	case !row.open:
		d.Status = DetailClosed
	case row.loading:
		d.Status = DetailLoading
	case row.err != nil:
		d.Status = DetailFailed
	case row.loaded:
		d.Status = DetailLoaded
	default:
		d.Status = DetailClosed
	}
	return d
}
