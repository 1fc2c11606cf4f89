package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/mei-chen/beagle-sub000/internal/collection"
	"github.com/mei-chen/beagle-sub000/internal/config"
	"github.com/mei-chen/beagle-sub000/internal/domain"
	"github.com/mei-chen/beagle-sub000/internal/eventbus"
	"github.com/mei-chen/beagle-sub000/internal/middleware"
	"github.com/mei-chen/beagle-sub000/internal/module/project"
	"github.com/mei-chen/beagle-sub000/internal/projects"
	"github.com/mei-chen/beagle-sub000/internal/remote"
	"github.com/mei-chen/beagle-sub000/web"
)

const (
	defaultWriteTimeout = 60 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// App holds the core application dependencies and the HTTP server.
type App struct {
	engine   *gin.Engine
	db       *gorm.DB
	logger   *logger.Logger
	cfg      *config.Config
	projects *project.Service
	listener *remote.Listener
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var newHTTPServer = func(addr string, handler http.Handler, writeTimeout time.Duration) httpServer {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates and wires a fully configured App from the given Config.
//
// It sets up logging, the preference database, the remote API client, the
// notification bus and listener, the projects view service, middleware,
// template rendering, and routes.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	success := false

	// 1. Setup logger.
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 reloads templates from disk for every client")
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	// 2. Setup database; the preference table is always migrated.
	db, err := config.SetupDatabase(&cfg.Database, log.Logger, &domain.ViewPreference{})
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if success {
			return
		}
		sqlDB, err := db.DB()
		if err != nil {
			return
		}
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", slog.Any("error", err))
		}
	}()

	// 3. Remote API, notification bus and listener.
	client, err := remote.NewClient(remote.Options{
		BaseURL: cfg.Remote.BaseURL,
		Token:   cfg.Remote.Token,
		Timeout: config.Duration(cfg.Remote.Timeout),
		PerPage: cfg.Remote.PerPage,
	}, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup remote client: %w", err)
	}
	bus := eventbus.New(log.Logger)

	var listener *remote.Listener
	if cfg.Notifications.Enabled {
		listener = remote.NewListener(remote.ListenerOptions{
			URL:            cfg.Notifications.URL,
			Token:          cfg.Remote.Token,
			ReconnectDelay: config.Duration(cfg.Notifications.ReconnectDelay),
		}, bus, log.Logger)
	}

	// 4. Manual dependency injection: repository → service → handler.
	mode, err := collection.ParseMode(cfg.Collection.Mode)
	if err != nil {
		return nil, err
	}
	svc, err := project.NewService(project.ServiceConfig{
		Schema: projects.NewSchema(),
		View: projects.Options{
			Mode:              mode,
			PerPage:           client.PerPage(),
			Debounce:          config.Duration(cfg.Collection.Debounce),
			MinQueryLength:    cfg.Collection.MinQueryLength,
			ProcessingTimeout: config.Duration(cfg.Collection.ProcessingTimeout),
		},
		Fetcher:    client.Fetcher(),
		Mutator:    client.Mutator(),
		Details:    client.GetProject,
		Bus:        bus,
		Prefs:      project.NewPreferenceRepository(db),
		SessionTTL: config.Duration(cfg.Collection.SessionTTL),
		Logger:     log.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setup projects service: %w", err)
	}
	defer func() {
		if !success {
			svc.Close()
		}
	}()
	projectModule := project.NewModule(
		project.NewProjectHandler(svc),
		project.NewProjectPageHandler(svc),
		project.NewStreamHandler(svc, bus),
	)

	// 5. Create Gin engine with custom middleware (not gin.Default()).
	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()

	handlers := []gin.HandlerFunc{
		middleware.Recovery(log.Logger),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			TrustUpstream: false,
		}),
		middleware.ViewSession(),
		middleware.Logger(log.Logger),
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		handlers = append(handlers, middleware.RateLimit(middleware.RateLimitConfig{
			RPS:   rl.RPS,
			Burst: rl.Burst,
			Skip:  skipRateLimit,
		}))
	}
	engine.Use(handlers...)

	// 6. Determine filesystem mode and set up template renderer.
	var fsys fs.FS
	if cfg.Server.Mode == gin.DebugMode {
		fsys, err = resolveDebugWebFS()
		if err != nil {
			return nil, fmt.Errorf("resolve debug template fs: %w", err)
		}
	} else {
		fsys = web.EmbeddedFS
	}

	renderer, err := NewTemplateRenderer(fsys, cfg.Server.Mode == gin.DebugMode)
	if err != nil {
		return nil, fmt.Errorf("setup template renderer: %w", err)
	}
	engine.HTMLRender = renderer

	// 7. Resolve CSRF secret.
	csrfSecret := cfg.Server.CSRFSecret
	if isPlaceholderCSRFSecret(csrfSecret) {
		if cfg.Server.Mode == gin.ReleaseMode {
			return nil, errors.New("csrf_secret must be a non-placeholder value in release mode")
		}

		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate csrf secret: %w", err)
		}
		csrfSecret = hex.EncodeToString(b)
		log.Warn("no csrf_secret configured, using random secret in non-release mode (will change on restart)")
	}

	// 8. Register all routes.
	if err := RegisterRoutes(engine, &RouteDeps{
		Modules:    []Module{projectModule},
		DB:         db,
		Remote:     client,
		Mode:       cfg.Server.Mode,
		CSRFSecret: csrfSecret,
	}); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	success = true
	return &App{
		engine:   engine,
		db:       db,
		logger:   log,
		cfg:      cfg,
		projects: svc,
		listener: listener,
	}, nil
}

func isPlaceholderCSRFSecret(secret string) bool {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return true
	}

	switch strings.ToLower(trimmed) {
	case "change-me-to-a-random-secret", "change-me-in-env":
		return true
	default:
		return false
	}
}

// skipRateLimit exempts probes, scrapes and static assets.
func skipRateLimit(c *gin.Context) bool {
	p := c.Request.URL.Path
	return p == "/health" || p == "/metrics" || strings.HasPrefix(p, "/static/")
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

func resolveDebugWebFS() (fs.FS, error) {
	if _, file, _, ok := runtime.Caller(0); ok {
		webDir := filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", "web"))
		if stat, err := os.Stat(webDir); err == nil && stat.IsDir() {
			return os.DirFS(webDir), nil
		}
	}

	exePath, err := os.Executable()
	if err == nil {
		webDir := filepath.Join(filepath.Dir(exePath), "web")
		if stat, err := os.Stat(webDir); err == nil && stat.IsDir() {
			return os.DirFS(webDir), nil
		}
	}

	return nil, errors.New("debug web directory not found")
}

// writeTimeout is server.timeout when set.
func (a *App) writeTimeout() time.Duration {
	if d := config.Duration(a.cfg.Server.Timeout); d > 0 {
		return d
	}
	return defaultWriteTimeout
}

// Run starts the HTTP server, the notification listener and the session
// janitor, and blocks until a shutdown signal is received or one of them
// fails. Open views are closed after the server drains, then the database
// and logger.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	log := slog.Default()
	if a.logger != nil {
		log = a.logger.Logger
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := newHTTPServer(addr, a.engine, a.writeTimeout())

	// Listen for SIGINT / SIGTERM.
	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			log.Info("shutdown signal received")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", slog.Any("error", err))
		}
		return nil
	})
	if a.projects != nil {
		g.Go(func() error { return a.projects.RunJanitor(gctx) })
	}
	if a.listener != nil {
		g.Go(func() error { return a.listener.Run(gctx) })
	}

	runErr := g.Wait()

	if a.projects != nil {
		a.projects.Close()
		log.Info("collection views closed")
	}

	// Close database connection.
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Error("database close error", slog.Any("error", err))
			} else {
				log.Info("database connection closed")
			}
		}
	}

	log.Info("server stopped")
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}

	return runErr
}
