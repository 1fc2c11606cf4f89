package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mei-chen/beagle-sub000/internal/collection"
	"github.com/mei-chen/beagle-sub000/internal/config"
	"github.com/mei-chen/beagle-sub000/internal/domain"
	"github.com/mei-chen/beagle-sub000/internal/eventbus"
	"github.com/mei-chen/beagle-sub000/internal/projects"
	"github.com/mei-chen/beagle-sub000/internal/remote"
	"github.com/mei-chen/beagle-sub000/internal/tui"
)

// browser is everything the terminal view runs on.
type browser struct {
	model    tui.Model
	view     *collection.View[domain.Project]
	listener *remote.Listener
}

func runBrowse(parent context.Context, opts *browseOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The terminal belongs to the view; logs only go to the configured file.
	log, err := config.SetupBackgroundLogger(&cfg.Log, io.Discard)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = log.Close() }()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	b, err := newBrowser(ctx, cfg, opts, log.Logger)
	if err != nil {
		return err
	}
	defer b.view.Close()

	listenErr := make(chan error, 1)
	if b.listener != nil {
		go func() { listenErr <- b.listener.Run(ctx) }()
	} else {
		close(listenErr)
	}

	_, runErr := tea.NewProgram(b.model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	cancel()
	if err := <-listenErr; err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("notification listener stopped", slog.Any("error", err))
	}
	if errors.Is(runErr, tea.ErrProgramKilled) && parent.Err() != nil {
		return nil
	}
	return runErr
}

func newBrowser(ctx context.Context, cfg *config.Config, opts *browseOptions, log *slog.Logger) (*browser, error) {
	client, err := remote.NewClient(remote.Options{
		BaseURL: cfg.Remote.BaseURL,
		Token:   cfg.Remote.Token,
		Timeout: config.Duration(cfg.Remote.Timeout),
		PerPage: cfg.Remote.PerPage,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("setup remote client: %w", err)
	}

	var (
		bus      *eventbus.Bus
		listener *remote.Listener
	)
	if cfg.Notifications.Enabled {
		bus = eventbus.New(log)
		listener = remote.NewListener(remote.ListenerOptions{
			URL:            cfg.Notifications.URL,
			Token:          cfg.Remote.Token,
			ReconnectDelay: config.Duration(cfg.Notifications.ReconnectDelay),
		}, bus, log)
	}

	mode, err := collection.ParseMode(cfg.Collection.Mode)
	if err != nil {
		return nil, err
	}
	viewOpts := projects.Options{
		Mode:              mode,
		PerPage:           client.PerPage(),
		Debounce:          config.Duration(cfg.Collection.Debounce),
		MinQueryLength:    cfg.Collection.MinQueryLength,
		ProcessingTimeout: config.Duration(cfg.Collection.ProcessingTimeout),
	}

	schema := projects.NewSchema()
	initial, err := initialFilters(schema, opts)
	if err != nil {
		return nil, err
	}
	view, err := collection.NewView(
		projects.ViewConfig(schema, viewOpts, client.Fetcher(), client.Mutator(), bus, log),
		initial, opts.page,
	)
	if err != nil {
		return nil, fmt.Errorf("setup view: %w", err)
	}
	view.Start()

	model, err := tui.New(tui.Config{
		Ctx:        ctx,
		View:       view,
		Details:    client.GetProject,
		Classifier: projects.Classifier{Timeout: viewOpts.ProcessingTimeout},
		Logger:     log,
	})
	if err != nil {
		view.Close()
		return nil, err
	}
	return &browser{model: model, view: view, listener: listener}, nil
}

// initialFilters applies the command-line filters over the schema defaults.
func initialFilters(schema *collection.Schema, opts *browseOptions) (collection.FilterState, error) {
	f := schema.Defaults()
	var err error
	if q := strings.TrimSpace(opts.query); q != "" {
		if f, err = f.With(projects.FieldQuery, q); err != nil {
			return f, fmt.Errorf("--query: %w", err)
		}
	}
	if len(opts.tags) > 0 {
		if f, err = f.With(projects.FieldTags, opts.tags); err != nil {
			return f, fmt.Errorf("--tag: %w", err)
		}
	}
	if opts.notOwned {
		if f, err = f.With(projects.FieldOwned, false); err != nil {
			return f, fmt.Errorf("--not-owned: %w", err)
		}
	}
	return f, nil
}
