package app

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testCSRFSecret = "test-secret-32-chars-long-enough"

// routeTestFS returns a minimal template filesystem for route handler tests.
func routeTestFS() fstest.MapFS {
	return fstest.MapFS{
		"templates/layouts/base.html": &fstest.MapFile{
			Data: []byte(`{{ define "base" }}{{ block "content" . }}{{ end }}{{ end }}`),
		},
		"templates/errors/404.html": &fstest.MapFile{
			Data: []byte(`{{ template "base" . }}{{ define "content" }}404 {{ .Message }}{{ end }}`),
		},
		"templates/errors/500.html": &fstest.MapFile{
			Data: []byte(`{{ template "base" . }}{{ define "content" }}500{{ end }}`),
		},
	}
}

func setupTestRouter() *gin.Engine {
	r := gin.New()
	renderer, err := NewTemplateRenderer(routeTestFS(), true)
	if err != nil {
		panic("setup renderer: " + err.Error())
	}
	r.HTMLRender = renderer
	return r
}

// fakePinger is a Pinger with a fixed answer.
type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

// mockModule registers one route per group and records the call.
type mockModule struct {
	called bool
}

func (m *mockModule) RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup) {
	m.called = true
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "api") })
	pages.POST("/form", func(c *gin.Context) { c.String(http.StatusOK, "posted") })
}

func serve(r *gin.Engine, method, target string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func healthBody(t *testing.T, w *httptest.ResponseRecorder) (string, map[string]any) {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	comps, _ := body["components"].(map[string]any)
	status, _ := body["status"].(string)
	return status, comps
}

func TestHealthHandler_OK(t *testing.T) {
	r := gin.New()
	r.GET("/health", healthHandler(openTestSQLiteDB(t), fakePinger{}))

	w := serve(r, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	status, comps := healthBody(t, w)
	if status != "ok" || comps["database"] != "ok" || comps["remote"] != "ok" {
		t.Errorf("status = %q components = %v", status, comps)
	}
}

func TestHealthHandler_RemoteDown(t *testing.T) {
	r := gin.New()
	r.GET("/health", healthHandler(openTestSQLiteDB(t), fakePinger{err: errors.New("connection refused")}))

	w := serve(r, http.MethodGet, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	status, comps := healthBody(t, w)
	if status != "degraded" || comps["database"] != "ok" || comps["remote"] != "error" {
		t.Errorf("status = %q components = %v", status, comps)
	}
}

func TestHealthHandler_DBDown(t *testing.T) {
	db := openTestSQLiteDB(t)
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()

	r := gin.New()
	r.GET("/health", healthHandler(db, nil))

	w := serve(r, http.MethodGet, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	status, comps := healthBody(t, w)
	if status != "degraded" || comps["database"] != "error" {
		t.Errorf("status = %q components = %v", status, comps)
	}
	if _, ok := comps["remote"]; ok {
		t.Error("remote reported without a pinger")
	}
}

func TestHealthHandler_NilDB(t *testing.T) {
	r := gin.New()
	r.GET("/health", healthHandler(nil, fakePinger{}))

	if w := serve(r, http.MethodGet, "/health"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHealthHandler_UsesRequestContextTimeout(t *testing.T) {
	registerBlockingPingDriver()

	sqlDB, err := sql.Open(blockingPingDriverName, "")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}

	r := gin.New()
	r.GET("/health", healthHandler(db, nil))

	reqCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	t.Cleanup(cancel)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil).WithContext(reqCtx)

	start := time.Now()
	r.ServeHTTP(w, req)
	elapsed := time.Since(start)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if elapsed > 300*time.Millisecond {
		t.Fatalf("expected health response to honor request context timeout, elapsed=%v", elapsed)
	}
}

func TestNoRouteHandler(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		accept   string
		wantJSON bool
	}{
		{"json accept", "/nonexistent", "application/json", true},
		{"html accept", "/nonexistent", "text/html", false},
		{"browser wildcard", "/nonexistent", "*/*", false},
		{"api path with wildcard", "/api/v1/nonexistent", "*/*", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupTestRouter()
			r.NoRoute(noRouteHandler())

			w := serve(r, http.MethodGet, tt.path, "Accept", tt.accept)
			if w.Code != http.StatusNotFound {
				t.Fatalf("expected 404, got %d", w.Code)
			}
			if tt.wantJSON {
				var body map[string]any
				if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
					t.Fatalf("unmarshal: %v", err)
				}
				if body["message"] != "not found" {
					t.Errorf("message = %v", body["message"])
				}
				return
			}
			if body := w.Body.String(); body != "404 not found" {
				t.Errorf("body = %q", body)
			}
		})
	}
}

func TestRegisterStaticRoutes(t *testing.T) {
	for _, mode := range []string{gin.DebugMode, gin.ReleaseMode} {
		t.Run(mode, func(t *testing.T) {
			r := gin.New()
			if err := registerStaticRoutesWithError(r, mode); err != nil {
				t.Fatalf("registerStaticRoutesWithError: %v", err)
			}
			w := serve(r, http.MethodGet, "/static/app.css")
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			cached := w.Header().Get("Cache-Control") == "public, max-age=86400"
			if cached != (mode == gin.ReleaseMode) {
				t.Errorf("Cache-Control = %q in %s mode", w.Header().Get("Cache-Control"), mode)
			}
		})
	}
}

func TestCacheStaticHandler_SetsCacheControl(t *testing.T) {
	memFS := fstest.MapFS{"test.css": &fstest.MapFile{Data: []byte("body{}")}}

	r := gin.New()
	r.GET("/static/*filepath", cacheStaticHandler(http.FS(memFS)))

	w := serve(r, http.MethodGet, "/static/test.css")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "public, max-age=86400" {
		t.Errorf("Cache-Control = %q", cc)
	}
}

func TestRegisterRoutes_Validation(t *testing.T) {
	tests := []struct {
		name    string
		router  *gin.Engine
		deps    *RouteDeps
		wantErr string
	}{
		{"nil router", nil, &RouteDeps{}, "router is nil"},
		{"nil deps", setupTestRouter(), nil, "route dependencies are nil"},
		{"no modules", setupTestRouter(), &RouteDeps{CSRFSecret: testCSRFSecret}, "at least one module is required"},
		{"empty csrf", setupTestRouter(), &RouteDeps{Modules: []Module{&mockModule{}}}, "csrf secret is required"},
		{"nil module", setupTestRouter(), &RouteDeps{
			Modules:    []Module{&mockModule{}, nil},
			Mode:       gin.ReleaseMode,
			CSRFSecret: testCSRFSecret,
		}, "module at index 1 is nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RegisterRoutes(tt.router, tt.deps)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("RegisterRoutes() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestRegisterRoutes_Wiring(t *testing.T) {
	m := &mockModule{}
	r := setupTestRouter()
	err := RegisterRoutes(r, &RouteDeps{
		Modules:    []Module{m},
		DB:         openTestSQLiteDB(t),
		Remote:     fakePinger{},
		Mode:       gin.ReleaseMode,
		CSRFSecret: testCSRFSecret,
	})
	if err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	if !m.called {
		t.Fatal("expected module RegisterRoutes to be called")
	}

	if w := serve(r, http.MethodGet, "/"); w.Code != http.StatusFound || w.Header().Get("Location") != "/projects" {
		t.Errorf("GET / = %d Location=%q", w.Code, w.Header().Get("Location"))
	}
	if w := serve(r, http.MethodGet, "/api/v1/ping"); w.Body.String() != "api" {
		t.Errorf("api route body = %q", w.Body.String())
	}
	if w := serve(r, http.MethodPost, "/form"); w.Code != http.StatusForbidden {
		t.Errorf("page POST without CSRF token = %d, want 403", w.Code)
	}
	w := serve(r, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Errorf("/metrics = %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/health"); w.Code != http.StatusOK {
		t.Errorf("/health = %d", w.Code)
	}
}

func openTestSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

const blockingPingDriverName = "beagle_blocking_ping"

var registerBlockingPingDriverOnce sync.Once

func registerBlockingPingDriver() {
	registerBlockingPingDriverOnce.Do(func() {
		sql.Register(blockingPingDriverName, blockingPingDriver{})
	})
}

type blockingPingDriver struct{}

func (blockingPingDriver) Open(string) (driver.Conn, error) {
	return blockingPingConn{}, nil
}

type blockingPingConn struct{}

func (blockingPingConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (blockingPingConn) Close() error                        { return nil }
func (blockingPingConn) Begin() (driver.Tx, error)           { return blockingPingTx{}, nil }

func (blockingPingConn) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type blockingPingTx struct{}

func (blockingPingTx) Commit() error   { return nil }
func (blockingPingTx) Rollback() error { return nil }
