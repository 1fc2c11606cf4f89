package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/mei-chen/beagle-sub000/internal/pkg"
)

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	RPS   float64
	Burst int
	// StaleAfter drops limiters of clients idle this long. Defaults to 10m.
	StaleAfter time.Duration
	// Skip exempts requests, e.g. health probes.
	Skip func(*gin.Context) bool
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore keys token buckets by view session, falling back to client IP.
// Stale entries are swept on access instead of by a background goroutine.
type limiterStore struct {
	mu         sync.Mutex
	entries    map[string]*limiterEntry
	limit      rate.Limit
	burst      int
	staleAfter time.Duration
	lastSweep  time.Time
	now        func() time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	stale := cfg.StaleAfter
	if stale <= 0 {
		stale = 10 * time.Minute
	}
	return &limiterStore{
		entries:    make(map[string]*limiterEntry),
		limit:      rate.Limit(cfg.RPS),
		burst:      cfg.Burst,
		staleAfter: stale,
		now:        time.Now,
	}
}

func (s *limiterStore) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastSweep) > s.staleAfter {
		s.sweepLocked(now)
	}
	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (s *limiterStore) sweepLocked(now time.Time) {
	cutoff := now.Add(-s.staleAfter)
	for k, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
	s.lastSweep = now
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RateLimit applies a token bucket per view session (or per IP before a
// session exists). Rejections answer 429 with Retry-After.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	return rateLimit(newLimiterStore(cfg), cfg.Skip)
}

func rateLimit(store *limiterStore, skip func(*gin.Context) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || (skip != nil && skip(c)) {
			c.Next()
			return
		}
		key := "ip:" + c.ClientIP()
		if id := GetViewSession(c); id != "" {
			key = "session:" + id
		}
		if store.allow(key) {
			c.Next()
			return
		}

		rateLimited.Inc()
		c.Header("Retry-After", "1")
		if pkg.IsHTMX(c) {
			pkg.KeepTarget(c)
			pkg.Toast(c, "Too many requests, slow down", pkg.ToastError)
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, pkg.Response{
			Code:    http.StatusTooManyRequests,
			Message: "too many requests",
		})
	}
}
