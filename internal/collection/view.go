package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/mei-chen/beagle-sub000/internal/eventbus"
)

// ErrReadOnly is returned by Delete on a view without a Mutator.
var ErrReadOnly = errors.New("collection: view has no mutator")

// State is the coarse lifecycle state of a view.
type State int

const (
	// StateLoading is the initial state and the state during any fetch.
	StateLoading State = iota
	StateIdle
	StateEmpty
	// StateError keeps the last good page visible.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEmpty:
		return "empty"
	case StateError:
		return "error"
	default:
		return "loading"
	}
}

// Notice levels.
const (
	NoticeError = "error"
	NoticeInfo  = "info"
)

// Notice is a dismissable message shown above the collection.
type Notice struct {
	ID      uint64 `json:"id"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Mutator performs record mutations against the server.
type Mutator interface {
	Delete(ctx context.Context, id string) error
}

// MutateFunc adapts a delete function to Mutator.
type MutateFunc func(ctx context.Context, id string) error

// Delete calls f.
func (f MutateFunc) Delete(ctx context.Context, id string) error {
	return f(ctx, id)
}

// Annotation is per-row state layered over a record without refetching it.
type Annotation struct {
	Disabled bool
	Message  string
	Flags    map[string]bool
}

// SetFlag sets a named flag.
func (a *Annotation) SetFlag(name string) {
	if a.Flags == nil {
		a.Flags = make(map[string]bool)
	}
	a.Flags[name] = true
}

// Reaction updates a shown row's annotation in place for one notification type.
type Reaction func(a *Annotation, ev eventbus.Event)

// Row is one visible record with its selection and annotation state.
type Row[R Record] struct {
	Record   R               `json:"record"`
	Selected bool            `json:"selected"`
	Disabled bool            `json:"disabled,omitempty"`
	Message  string          `json:"message,omitempty"`
	Flags    map[string]bool `json:"flags,omitempty"`
}

// SelectionSummary describes the selection for rendering.
type SelectionSummary struct {
	Scope      SelectionScope `json:"-"`
	ScopeName  string         `json:"scope"`
	Count      int            `json:"count"`
	IDs        []string       `json:"ids"`
	AllVisible bool           `json:"all_visible"`
}

// Snapshot is a consistent read of a view.
type Snapshot[R Record] struct {
	State        State
	Rows         []Row[R]
	Meta         PageMeta
	Loaded       bool
	Filters      FilterState
	Pending      bool
	PendingQuery string
	Selection    SelectionSummary
	Notices      []Notice
	Err          error
	Columns      []string
	Version      uint64
}

// Busy reports whether the view is fetching or waiting to commit a query.
func (s Snapshot[R]) Busy() bool {
	return s.State == StateLoading || s.Pending
}

// DeepLink encodes the filters and page as a URL query string.
func (s Snapshot[R]) DeepLink() string {
	if s.Filters.Schema() == nil {
		return ""
	}
	v := s.Filters.Encode()
	if s.Meta.Page > 0 {
		v.Set("page", strconv.Itoa(s.Meta.Page))
	}
	return v.Encode()
}

// ViewConfig wires a view.
type ViewConfig[R Record] struct {
	Schema     *Schema
	Predicates *Predicates[R]
	Fetcher    Fetcher[R]
	// Mutator is optional; without it Delete returns ErrReadOnly.
	Mutator Mutator

	Mode           Mode
	PerPage        int
	Debounce       time.Duration
	MinQueryLength int
	Clock          Clock

	Bus       *eventbus.Bus
	Reactions map[string]Reaction

	// RowScoped reports whether a mutation error concerns only that row,
	// in which case the row is disabled instead of raising a notice.
	RowScoped func(error) bool
	// Describe turns an error into the text shown to the user. Defaults to
	// err.Error().
	Describe func(error) string

	Columns []string

	OnFiltersCommitted func(FilterState)
	OnColumnsChanged   func([]string)

	Logger *slog.Logger
}

// View is a live, paginated, filtered window over a remote collection.
// All methods are safe for concurrent use.
type View[R Record] struct {
	cfg       ViewConfig[R]
	log       *slog.Logger
	ctrl      *Controller[R]
	debouncer *Debouncer
	unsub     func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	filters      FilterState
	startPage    int
	started      bool
	closed       bool
	state        State
	selection    Selection
	annotations  map[string]*Annotation
	notices      []Notice
	noticeSeq    uint64
	columns      []string
	pendingQuery string
	version      uint64
	updated      chan struct{}
}

// NewView builds a view starting from initial at page. Call Start to issue
// the first fetch.
func NewView[R Record](cfg ViewConfig[R], initial FilterState, page int) (*View[R], error) {
	if cfg.Schema == nil || cfg.Predicates == nil || cfg.Fetcher == nil {
		return nil, errors.New("collection: view needs a schema, predicates and a fetcher")
	}
	if initial.Schema() == nil {
		initial = cfg.Schema.Defaults()
	}
	if initial.Schema() != cfg.Schema {
		return nil, errors.New("collection: initial filters use a different schema")
	}
	if cfg.PerPage <= 0 {
		return nil, fmt.Errorf("collection: per page must be positive, got %d", cfg.PerPage)
	}
	if page < 0 {
		page = 0
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	v := &View[R]{
		cfg:         cfg,
		log:         log,
		ctrl:        NewController(cfg.Fetcher, cfg.PerPage, log),
		ctx:         ctx,
		cancel:      cancel,
		filters:     initial,
		startPage:   page,
		state:       StateLoading,
		annotations: make(map[string]*Annotation),
		columns:     slices.Clone(cfg.Columns),
		updated:     make(chan struct{}),
	}
	v.debouncer = NewDebouncer(cfg.Debounce, cfg.MinQueryLength, cfg.Clock, v.commitQuery)
	if cfg.Bus != nil && len(cfg.Reactions) > 0 {
		v.unsub = cfg.Bus.Subscribe(v.onEvent)
	}
	return v, nil
}

// Start issues the first fetch. Later calls do nothing.
func (v *View[R]) Start() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.started || v.closed {
		return
	}
	v.started = true
	v.loadLocked(v.startPage, true)
}

// Close stops the view: it unsubscribes from the bus, cancels a pending
// query commit and in-flight fetches, and waits for them to return.
func (v *View[R]) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	if v.unsub != nil {
		v.unsub()
	}
	v.debouncer.Stop()
	v.cancel()
	v.wg.Wait()
}

// Updated returns a channel closed at the next state change.
func (v *View[R]) Updated() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updated
}

// WaitIdle blocks until no fetch is outstanding and no query commit is pending.
func (v *View[R]) WaitIdle(ctx context.Context) error {
	for {
		v.mu.Lock()
		busy := v.state == StateLoading || v.debouncer.Pending()
		ch := v.updated
		v.mu.Unlock()
		if !busy {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Filters returns the current filter state.
func (v *View[R]) Filters() FilterState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filters
}

// SetFilter changes one filter.
func (v *View[R]) SetFilter(name string, value any) error {
	v.mu.Lock()
	next, err := v.filters.With(name, value)
	v.mu.Unlock()
	if err != nil {
		return err
	}
	v.SetFilters(next)
	return nil
}

// SetFilters replaces the filter state. A change to a server-relevant value
// clears the cache and refetches page 0; a local-only change re-filters the
// loaded page.
func (v *View[R]) SetFilters(next FilterState) {
	v.mu.Lock()
	if v.closed || next.Equal(v.filters) {
		v.mu.Unlock()
		return
	}
	prevKey := v.filters.QueryKey()
	v.filters = next
	if key := next.QueryKey(); key != prevKey {
		v.selection.Reconcile(key)
		v.loadLocked(0, true)
	} else {
		v.settleLocked()
	}
	hook := v.cfg.OnFiltersCommitted
	v.mu.Unlock()

	if hook != nil {
		hook(next)
	}
}

// Open positions the view at filters and page, as when following a deep link.
// A changed QueryKey clears the cache; a cached page is shown without a fetch.
// While a fetch for the same key is outstanding the page is not changed.
func (v *View[R]) Open(filters FilterState, page int) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if page < 0 {
		page = 0
	}
	changed := !filters.Equal(v.filters)
	keyChanged := filters.QueryKey() != v.filters.QueryKey()
	v.filters = filters

	st := v.ctrl.Status()
	switch {
	case !v.started:
		v.startPage = page
		v.loadLocked(page, true)
	case keyChanged:
		v.selection.Reconcile(filters.QueryKey())
		v.loadLocked(page, true)
	case st.Loaded && page == st.Current.Meta.Page:
		v.settleLocked()
	default:
		res, t, err := v.ctrl.plan(func(PageMeta) (int, bool) { return page, true })
		switch {
		case errors.Is(err, ErrBusy):
			// The outstanding fetch for this key keeps the page it asked for.
			v.settleLocked()
		case err != nil:
			v.loadLocked(page, false)
		case res == NavFetched:
			v.spawnLocked(t)
		default:
			v.settleLocked()
		}
	}
	hook := v.cfg.OnFiltersCommitted
	v.mu.Unlock()

	if changed && hook != nil {
		hook(filters)
	}
}

// ResetFilters restores the schema defaults.
func (v *View[R]) ResetFilters() {
	v.SetFilters(v.cfg.Schema.Defaults())
}

// TypeQuery feeds raw search input through the debouncer.
func (v *View[R]) TypeQuery(q string) {
	v.debouncer.Push(q)
	v.mu.Lock()
	v.pendingQuery = q
	v.touchLocked()
	v.mu.Unlock()
}

func (v *View[R]) commitQuery(q string) {
	field := v.cfg.Schema.QueryField()
	if field == "" {
		return
	}
	if err := v.SetFilter(field, q); err != nil {
		v.log.Warn("collection query commit failed", "error", err)
	}
	v.mu.Lock()
	v.touchLocked()
	v.mu.Unlock()
}

// Next moves to the next page.
func (v *View[R]) Next() (NavResult, error) {
	return v.navigate(func(m PageMeta) (int, bool) { return derefPage(m.NextPage) })
}

// Prev moves to the previous page.
func (v *View[R]) Prev() (NavResult, error) {
	return v.navigate(func(m PageMeta) (int, bool) { return derefPage(m.PrevPage) })
}

// Goto moves to page n; out of range is a no-op.
func (v *View[R]) Goto(n int) (NavResult, error) {
	return v.navigate(func(PageMeta) (int, bool) { return n, true })
}

func (v *View[R]) navigate(target func(PageMeta) (int, bool)) (NavResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return NavNoop, nil
	}
	if v.state == StateLoading {
		return NavNoop, ErrBusy
	}
	res, t, err := v.ctrl.plan(target)
	if err != nil {
		return res, err
	}
	switch res {
	case NavCacheHit:
		v.settleLocked()
	case NavFetched:
		v.spawnLocked(t)
	}
	return res, nil
}

// Refresh drops every cached page and refetches the current one, for when
// the collection changed on the server.
func (v *View[R]) Refresh() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.loadLocked(v.ctrl.Status().Current.Meta.Page, true)
}

// ToggleSelected flips the selection of id and reports the new state.
func (v *View[R]) ToggleSelected(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	on := v.selection.Toggle(id)
	v.touchLocked()
	return on
}

// SelectVisible adds every visible row to the selection.
func (v *View[R]) SelectVisible() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, r := range v.visibleLocked(v.ctrl.Status()) {
		v.selection.Add(r.RecordID())
	}
	v.touchLocked()
}

// SelectMatching selects every record matching the current query on the
// server, counted by the reported total.
func (v *View[R]) SelectMatching() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	st := v.ctrl.Status()
	if st.Loading {
		return ErrBusy
	}
	if !st.Loaded {
		return ErrNoPage
	}
	v.selection.SelectMatching(st.Key, st.Current.Meta.TotalCount)
	v.touchLocked()
	return nil
}

// ClearSelection empties the selection.
func (v *View[R]) ClearSelection() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selection.Clear()
	v.touchLocked()
}

// Delete removes id on the server. On success the id leaves the selection,
// the cache is cleared and the current page refetched. A row-scoped failure
// disables that row with the error message; any other failure raises a notice.
func (v *View[R]) Delete(ctx context.Context, id string) error {
	if v.cfg.Mutator == nil {
		return ErrReadOnly
	}
	err := v.cfg.Mutator.Delete(ctx, id)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return err
	}
	if err != nil {
		if v.cfg.RowScoped != nil && v.cfg.RowScoped(err) {
			a := v.annotationLocked(id)
			a.Disabled = true
			a.Message = v.describe(err)
		} else {
			v.noticeLocked(NoticeError, v.describe(err))
		}
		v.touchLocked()
		return err
	}

	v.selection.Remove(id)
	delete(v.annotations, id)
	cur := v.ctrl.Status().Current
	page := cur.Meta.Page
	if len(cur.Records) <= 1 && page > 0 {
		page--
	}
	v.loadLocked(page, true)
	return nil
}

// DismissNotice removes a notice; it reports whether one was found.
func (v *View[R]) DismissNotice(id uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := slices.IndexFunc(v.notices, func(n Notice) bool { return n.ID == id })
	if i < 0 {
		return false
	}
	v.notices = slices.Delete(v.notices, i, i+1)
	v.touchLocked()
	return true
}

// MoveColumn reorders the columns.
func (v *View[R]) MoveColumn(from, to int) error {
	v.mu.Lock()
	next, err := Move(v.columns, from, to)
	if err != nil {
		v.mu.Unlock()
		return err
	}
	v.columns = next
	v.touchLocked()
	hook := v.cfg.OnColumnsChanged
	v.mu.Unlock()

	if hook != nil {
		hook(slices.Clone(next))
	}
	return nil
}

// Columns returns the current column order.
func (v *View[R]) Columns() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.columns)
}

// Shows reports whether id is on the loaded page.
func (v *View[R]) Shows(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.showsLocked(id)
}

// Snapshot returns the current state.
func (v *View[R]) Snapshot() Snapshot[R] {
	v.mu.Lock()
	defer v.mu.Unlock()

	st := v.ctrl.Status()
	visible := v.visibleLocked(st)
	rows := make([]Row[R], 0, len(visible))
	allSelected := len(visible) > 0
	for _, r := range visible {
		row := Row[R]{Record: r, Selected: v.selection.Has(r.RecordID())}
		if a, ok := v.annotations[r.RecordID()]; ok {
			row.Disabled = a.Disabled
			row.Message = a.Message
			row.Flags = maps.Clone(a.Flags)
		}
		allSelected = allSelected && row.Selected
		rows = append(rows, row)
	}

	snap := Snapshot[R]{
		State:        v.state,
		Rows:         rows,
		Meta:         st.Current.Meta,
		Loaded:       st.Loaded,
		Filters:      v.filters,
		Pending:      v.debouncer.Pending(),
		PendingQuery: v.pendingQuery,
		Selection: SelectionSummary{
			Scope:      v.selection.Scope(),
			ScopeName:  v.selection.Scope().String(),
			Count:      v.selection.Count(),
			IDs:        v.selection.IDs(),
			AllVisible: allSelected,
		},
		Notices: slices.Clone(v.notices),
		Err:     st.Err,
		Columns: slices.Clone(v.columns),
		Version: v.version,
	}
	if v.state != StateError {
		snap.Err = nil
	}
	return snap
}

// Params renders the filters and page for a link to the current position.
func (v *View[R]) Params() url.Values {
	snap := v.Snapshot()
	params, _ := url.ParseQuery(snap.DeepLink())
	return params
}

func (v *View[R]) loadLocked(page int, forceClear bool) {
	v.started = true
	v.spawnLocked(v.ctrl.begin(v.filters, page, forceClear))
}

func (v *View[R]) spawnLocked(t *fetchTicket) {
	v.state = StateLoading
	v.touchLocked()
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		err := v.ctrl.run(v.ctx, t)
		v.finish(err)
	}()
}

func (v *View[R]) finish(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if err != nil && !errors.Is(err, ErrStale) && !errors.Is(err, context.Canceled) {
		v.noticeLocked(NoticeError, v.describe(err))
	}
	v.settleLocked()
}

// settleLocked derives the view state from the controller.
func (v *View[R]) settleLocked() {
	st := v.ctrl.Status()
	switch {
	case st.Loading:
		v.state = StateLoading
	case st.Err != nil:
		v.state = StateError
	case !st.Loaded:
		v.state = StateLoading
	case len(v.visibleLocked(st)) == 0:
		v.state = StateEmpty
	default:
		v.state = StateIdle
	}
	if !st.Loading && st.Err == nil && st.Loaded &&
		v.selection.Scope() == ScopeMatching && v.selection.MatchKey() == st.Key {
		v.selection.matchN = st.Current.Meta.TotalCount
	}
	v.touchLocked()
}

func (v *View[R]) visibleLocked(st ControllerStatus[R]) []R {
	return v.cfg.Predicates.Apply(st.Current.Records, v.filters, v.cfg.Mode, true)
}

func (v *View[R]) showsLocked(id string) bool {
	for _, r := range v.ctrl.Status().Current.Records {
		if r.RecordID() == id {
			return true
		}
	}
	return false
}

func (v *View[R]) onEvent(ev eventbus.Event) {
	react, ok := v.cfg.Reactions[ev.Notif]
	if !ok {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || !v.showsLocked(ev.ObjectID) {
		return
	}
	react(v.annotationLocked(ev.ObjectID), ev)
	v.touchLocked()
}

func (v *View[R]) annotationLocked(id string) *Annotation {
	a, ok := v.annotations[id]
	if !ok {
		a = &Annotation{}
		v.annotations[id] = a
	}
	return a
}

func (v *View[R]) describe(err error) string {
	if v.cfg.Describe != nil {
		return v.cfg.Describe(err)
	}
	return err.Error()
}

func (v *View[R]) noticeLocked(level, msg string) {
	v.noticeSeq++
	v.notices = append(v.notices, Notice{ID: v.noticeSeq, Level: level, Message: msg})
}

func (v *View[R]) touchLocked() {
	v.version++
	close(v.updated)
	v.updated = make(chan struct{})
}
