package project

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mei-chen/beagle-sub000/internal/collection"
	"github.com/mei-chen/beagle-sub000/internal/domain"
	"github.com/mei-chen/beagle-sub000/internal/eventbus"
	"github.com/mei-chen/beagle-sub000/internal/projects"
)

const (
	defaultSessionTTL = 30 * time.Minute
	preferenceTimeout = 5 * time.Second
	minJanitorTick    = time.Second
)

// ErrClosed is returned by Open after Close.
var ErrClosed = errors.New("project: session service closed")

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "beagle",
		Subsystem: "sessions",
		Name:      "active",
		Help:      "Number of live project view sessions.",
	})
	sessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beagle",
		Subsystem: "sessions",
		Name:      "evicted_total",
		Help:      "View sessions closed after sitting idle past the TTL.",
	})
)

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Schema  *collection.Schema
	View    projects.Options
	Fetcher collection.Fetcher[domain.Project]
	Mutator collection.Mutator
	Details collection.DetailFetcher[domain.ProjectDetail]
	Bus     *eventbus.Bus
	// Prefs is optional; without it sessions always start from defaults.
	Prefs      domain.PreferenceRepository
	SessionTTL time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
}

// Session is one browser's live projects view plus its row details.
type Session struct {
	ID         string
	View       *collection.View[domain.Project]
	Details    *collection.DetailLoader[domain.ProjectDetail]
	Classifier projects.Classifier

	lastSeen time.Time // guarded by Service.mu
}

// Service keeps one view per session id and retires the idle ones.
type Service struct {
	cfg        ServiceConfig
	log        *slog.Logger
	classifier projects.Classifier

	done chan struct{}

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewService validates cfg and returns an empty registry.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Schema == nil || cfg.Fetcher == nil || cfg.Details == nil {
		return nil, errors.New("project: service needs a schema, a fetcher and a detail fetcher")
	}
	if cfg.View.PerPage <= 0 {
		return nil, errors.New("project: per page must be positive")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:        cfg,
		log:        log,
		classifier: projects.Classifier{Timeout: cfg.View.ProcessingTimeout, Now: cfg.View.Now},
		done:       make(chan struct{}),
		sessions:   make(map[string]*Session),
	}, nil
}

// Schema returns the filter schema every session uses.
func (s *Service) Schema() *collection.Schema {
	return s.cfg.Schema
}

// Done is closed by Close.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Open returns the session for id, creating and starting it when missing.
// A non-nil link positions the view at those filters and page; without one a
// new session resumes the owner's saved filters and columns.
func (s *Service) Open(ctx context.Context, id string, link *collection.FilterState, page int) (*Session, error) {
	if sess, ok := s.touch(id); ok {
		if link != nil {
			sess.View.Open(*link, page)
		}
		return sess, nil
	}

	initial := s.cfg.Schema.Defaults()
	columns := projects.DefaultColumns
	if pref := s.loadPreference(ctx, id); pref != nil {
		if link == nil {
			initial = s.decodePreference(pref.Filters)
		}
		if cols := pref.ColumnList(); sameColumns(cols, projects.DefaultColumns) {
			columns = cols
		}
	}
	if link != nil {
		initial = *link
	} else {
		page = 0
	}

	sess, err := s.newSession(id, initial, page, columns)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sess.View.Close()
		return nil, ErrClosed
	}
	if existing, ok := s.sessions[id]; ok {
		// Lost a race with a concurrent request for the same id.
		existing.lastSeen = s.cfg.Now()
		s.mu.Unlock()
		sess.View.Close()
		return existing, nil
	}
	sess.lastSeen = s.cfg.Now()
	s.sessions[id] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	sessionsActive.Set(float64(n))
	sess.View.Start()
	s.log.DebugContext(ctx, "view session opened", "session", id, "page", page)
	return sess, nil
}

// Lookup returns a live session without creating one.
func (s *Service) Lookup(id string) (*Session, bool) {
	return s.touch(id)
}

// Len reports the number of live sessions.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep closes sessions idle longer than the TTL and reports how many.
func (s *Service) Sweep() int {
	cutoff := s.cfg.Now().Add(-s.cfg.SessionTTL)
	var stale []*Session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			stale = append(stale, sess)
			delete(s.sessions, id)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	for _, sess := range stale {
		sess.View.Close()
	}
	sessionsActive.Set(float64(n))
	if len(stale) > 0 {
		sessionsEvicted.Add(float64(len(stale)))
		s.log.Info("idle view sessions evicted", "count", len(stale), "remaining", n)
	}
	return len(stale)
}

// RunJanitor sweeps on a fraction of the TTL until ctx is done.
func (s *Service) RunJanitor(ctx context.Context) error {
	tick := s.cfg.SessionTTL / 4
	if tick < minJanitorTick {
		tick = minJanitorTick
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Sweep()
		}
	}
}

// Close closes every session. Later Opens fail with ErrClosed.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	clear(s.sessions)
	s.mu.Unlock()

	for _, sess := range all {
		sess.View.Close()
	}
	sessionsActive.Set(0)
}

func (s *Service) touch(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if ok {
		sess.lastSeen = s.cfg.Now()
	}
	return sess, ok
}

func (s *Service) newSession(id string, initial collection.FilterState, page int, columns []string) (*Session, error) {
	sess := &Session{
		ID:         id,
		Details:    collection.NewDetailLoader(s.cfg.Details),
		Classifier: s.classifier,
	}
	cfg := projects.ViewConfig(s.cfg.Schema, s.cfg.View, s.cfg.Fetcher, s.cfg.Mutator, s.cfg.Bus, s.log.With("session", id))
	cfg.Columns = columns
	cfg.OnFiltersCommitted = func(f collection.FilterState) {
		s.savePreference(id, f, sess.View.Columns())
	}
	cfg.OnColumnsChanged = func(cols []string) {
		s.savePreference(id, sess.View.Filters(), cols)
	}
	view, err := collection.NewView(cfg, initial, page)
	if err != nil {
		return nil, err
	}
	sess.View = view
	return sess, nil
}

func (s *Service) loadPreference(ctx context.Context, id string) *domain.ViewPreference {
	if s.cfg.Prefs == nil {
		return nil
	}
	pref, err := s.cfg.Prefs.Get(ctx, id, projects.ViewName)
	if err != nil {
		if !domain.IsNotFound(err) {
			s.log.WarnContext(ctx, "failed to load view preference", "session", id, "error", err)
		}
		return nil
	}
	return pref
}

func (s *Service) decodePreference(raw string) collection.FilterState {
	vals, err := url.ParseQuery(raw)
	if err != nil {
		s.log.Warn("ignoring malformed saved filters", "error", err)
		return s.cfg.Schema.Defaults()
	}
	return s.cfg.Schema.Decode(vals)
}

func (s *Service) savePreference(id string, filters collection.FilterState, columns []string) {
	if s.cfg.Prefs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), preferenceTimeout)
	defer cancel()

	pref := &domain.ViewPreference{Owner: id, View: projects.ViewName, Filters: filters.Encode().Encode()}
	pref.SetColumns(columns)
	if err := s.cfg.Prefs.Save(ctx, pref); err != nil {
		s.log.Warn("failed to save view preference", "session", id, "error", err)
	}
}

// sameColumns reports whether got is a permutation of want.
func sameColumns(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	a, b := slices.Clone(got), slices.Clone(want)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
