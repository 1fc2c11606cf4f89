package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestRateLimit_PerSession(t *testing.T) {
	r := gin.New()
	r.Use(ViewSession(), RateLimit(RateLimitConfig{
		RPS:   0.001,
		Burst: 2,
		Skip:  func(c *gin.Context) bool { return c.Request.URL.Path == "/health" },
	}))
	r.GET("/projects", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := func(session, path string) *http.Request {
		rq := httptest.NewRequest(http.MethodGet, path, nil)
		rq.Header.Set(SessionHeader, session)
		return rq
	}
	a, b := uuid.NewString(), uuid.NewString()

	for i := 0; i < 2; i++ {
		if w := serve(r, req(a, "/projects")); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
	}
	w := serve(r, req(a, "/projects"))
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("third request: status %d headers %v", w.Code, w.Header())
	}
	if w := serve(r, req(b, "/projects")); w.Code != http.StatusOK {
		t.Errorf("other session limited: %d", w.Code)
	}
	if w := serve(r, req(a, "/health")); w.Code != http.StatusOK {
		t.Errorf("skipped path limited: %d", w.Code)
	}
}

func TestLimiterStore_SweepsStaleEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newLimiterStore(RateLimitConfig{RPS: 1, Burst: 1, StaleAfter: time.Minute})
	store.now = func() time.Time { return now }

	store.allow("ip:1")
	store.allow("ip:2")
	if store.size() != 2 {
		t.Fatalf("size = %d", store.size())
	}

	now = now.Add(2 * time.Minute)
	store.allow("ip:3")
	if store.size() != 1 {
		t.Errorf("size after sweep = %d, want 1", store.size())
	}
}
