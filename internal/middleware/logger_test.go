package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/simp-lee/logger"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLogger_LevelsByStatus(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(Logger(newTestLogger(&buf)))
	r.GET("/projects", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/projects/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.DELETE("/projects/:id", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	tests := []struct {
		method, path, wantLevel string
	}{
		{http.MethodGet, "/projects", "level=INFO"},
		{http.MethodGet, "/projects/9", "level=WARN"},
		{http.MethodDelete, "/projects/9", "level=ERROR"},
	}
	for _, tt := range tests {
		buf.Reset()
		req := httptest.NewRequest(tt.method, tt.path, nil)
		req.Header.Set("HX-Request", "true")
		serve(r, req)
		out := buf.String()
		for _, want := range []string{tt.wantLevel, "path=" + tt.path, "htmx=true", "latency="} {
			if !strings.Contains(out, want) {
				t.Errorf("%s %s: log %q missing %q", tt.method, tt.path, out, want)
			}
		}
	}
	if !strings.Contains(buf.String(), "route=/projects/:id") {
		t.Errorf("route template not logged: %q", buf.String())
	}
}

func TestLogger_CountsRequests(t *testing.T) {
	r := gin.New()
	r.Use(Logger(newTestLogger(&bytes.Buffer{})))
	r.GET("/metrics-probe", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	counter := httpRequests.WithLabelValues("/metrics-probe", http.MethodGet, "2xx")
	before := testutil.ToFloat64(counter)
	serve(r, httptest.NewRequest(http.MethodGet, "/metrics-probe", nil))
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("requests counter moved by %v, want 1", got)
	}
}

func TestLogger_IncludesContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.New(
		logger.WithConsoleWriter(&buf),
		logger.WithConsoleFormat(logger.FormatText),
		logger.WithConsoleColor(false),
		logger.WithLevel(slog.LevelDebug),
		logger.WithMiddleware(logger.ContextMiddleware()),
	)
	if err != nil {
		t.Fatalf("logger.New error: %v", err)
	}
	defer log.Close()

	r := gin.New()
	r.Use(RequestIDWithConfig(RequestIDConfig{TrustUpstream: true}), ViewSession(), Logger(log.Logger))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Request-ID", "req-789")
	req.Header.Set(SessionHeader, "3f0f4f5e-8d2a-4a39-9c53-6a1b2c3d4e5f")
	serve(r, req)

	out := buf.String()
	for _, want := range []string{"req-789", "3f0f4f5e-8d2a-4a39-9c53-6a1b2c3d4e5f"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}
