// Package tui is a terminal browser over a projects collection view.
package tui

import (
	"context"
	"errors"
	"log/slog"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mei-chen/beagle-sub000/internal/collection"
	"github.com/mei-chen/beagle-sub000/internal/domain"
	"github.com/mei-chen/beagle-sub000/internal/projects"
)

// Config wires a Model.
type Config struct {
	// Ctx bounds detail loads and deletes issued from the browser.
	Ctx        context.Context
	View       *collection.View[domain.Project]
	Details    collection.DetailFetcher[domain.ProjectDetail]
	Classifier projects.Classifier
	Logger     *slog.Logger
}

// Model is the bubbletea model of the browser.
type Model struct {
	ctx        context.Context
	view       *collection.View[domain.Project]
	details    *collection.DetailLoader[domain.ProjectDetail]
	classifier projects.Classifier
	log        *slog.Logger

	keys    keyMap
	help    help.Model
	input   textinput.Model
	spinner spinner.Model

	snap    collection.Snapshot[domain.Project]
	cursor  int
	editing bool
	detail  collection.Detail[domain.ProjectDetail]
	status  string
	width   int
}

type updatedMsg struct{}

type detailMsg struct {
	detail collection.Detail[domain.ProjectDetail]
}

type deletedMsg struct {
	id  string
	err error
}

// New builds a Model over cfg.View. The view must already be started.
func New(cfg Config) (Model, error) {
	if cfg.View == nil || cfg.Details == nil {
		return Model{}, errors.New("tui: view and detail fetcher are required")
	}
	if cfg.Ctx == nil {
		cfg.Ctx = context.Background()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "search projects"
	ti.CharLimit = 200
	ti.SetValue(cfg.View.Filters().Query())

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = infoStyle

	m := Model{
		ctx:        cfg.Ctx,
		view:       cfg.View,
		details:    collection.NewDetailLoader(cfg.Details),
		classifier: cfg.Classifier,
		log:        cfg.Logger.With("component", "tui"),
		keys:       defaultKeys(),
		help:       help.New(),
		input:      ti,
		spinner:    sp,
	}
	m.snap = m.view.Snapshot()
	return m, nil
}

// Init starts the spinner and the update listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

// listen waits for the next view change. The channel is taken before the
// caller snapshots, so no change is lost in between.
func (m Model) listen() tea.Cmd {
	ch := m.view.Updated()
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case <-ch:
			return updatedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updatedMsg:
		cmd := m.listen()
		m.resync()
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case detailMsg:
		if msg.detail.ID == m.detail.ID {
			m.detail = msg.detail
		}
		return m, nil

	case deletedMsg:
		if msg.err != nil {
			m.log.Debug("delete failed", "id", msg.id, "error", msg.err)
			m.status = ""
		} else {
			m.details.Forget(msg.id)
			if m.detail.ID == msg.id {
				m.detail = collection.Detail[domain.ProjectDetail]{}
			}
			m.status = "Project deleted"
		}
		m.resync()
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.updateSearch(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter, tea.KeyEsc:
		m.editing = false
		m.input.Blur()
		return m, nil
	case tea.KeyCtrlC:
		return m, tea.Quit
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != before {
		m.view.TypeQuery(v)
		m.resync()
	}
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""
	row, hasRow := m.current()

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.snap.Rows)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Next):
		res, err := m.view.Next()
		m.navigate("next", res, err)

	case key.Matches(msg, m.keys.Prev):
		res, err := m.view.Prev()
		m.navigate("previous", res, err)

	case key.Matches(msg, m.keys.Search):
		m.editing = true
		m.input.CursorEnd()
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Owned):
		m.toggleFilter(projects.FieldOwned)

	case key.Matches(msg, m.keys.Invited):
		m.toggleFilter(projects.FieldInvited)

	case key.Matches(msg, m.keys.Select):
		if hasRow {
			m.view.ToggleSelected(row.Record.RecordID())
		}

	case key.Matches(msg, m.keys.SelectAll):
		m.view.SelectVisible()

	case key.Matches(msg, m.keys.SelectMatches):
		if err := m.view.SelectMatching(); err != nil {
			m.status = "Wait for the page to load"
		}

	case key.Matches(msg, m.keys.Clear):
		m.view.ClearSelection()

	case key.Matches(msg, m.keys.Refresh):
		m.view.Refresh()

	case key.Matches(msg, m.keys.Dismiss):
		if len(m.snap.Notices) > 0 {
			m.view.DismissNotice(m.snap.Notices[0].ID)
		} else if m.detail.Status != collection.DetailClosed {
			m.closeDetail()
		}

	case key.Matches(msg, m.keys.Detail):
		if hasRow {
			return m.toggleDetail(row.Record.RecordID())
		}

	case key.Matches(msg, m.keys.Delete):
		if hasRow && !row.Disabled {
			id := row.Record.RecordID()
			m.status = "Deleting…"
			return m, m.deleteCmd(id)
		}
	}

	m.resync()
	return m, nil
}

func (m *Model) navigate(dir string, res collection.NavResult, err error) {
	switch {
	case errors.Is(err, collection.ErrBusy):
		m.status = "Still loading"
	case err != nil:
		m.status = projects.Describe(err)
	case res == collection.NavNoop:
		m.status = "No " + dir + " page"
	default:
		m.cursor = 0
	}
}

func (m *Model) toggleFilter(name string) {
	if err := m.view.SetFilter(name, !m.snap.Filters.Bool(name)); err != nil {
		m.status = err.Error()
		return
	}
	m.cursor = 0
}

func (m Model) toggleDetail(id string) (tea.Model, tea.Cmd) {
	if m.detail.ID != "" && m.detail.ID != id {
		m.details.Close(m.detail.ID)
	}
	if m.detail.ID == id && m.detail.Status != collection.DetailClosed {
		m.closeDetail()
		return m, nil
	}
	m.detail = collection.Detail[domain.ProjectDetail]{ID: id, Status: collection.DetailLoading}
	loader, ctx := m.details, m.ctx
	return m, func() tea.Msg {
		return detailMsg{detail: loader.Open(ctx, id)}
	}
}

func (m *Model) closeDetail() {
	if m.detail.ID != "" {
		m.details.Close(m.detail.ID)
	}
	m.detail = collection.Detail[domain.ProjectDetail]{}
}

func (m Model) deleteCmd(id string) tea.Cmd {
	view, ctx := m.view, m.ctx
	return func() tea.Msg {
		return deletedMsg{id: id, err: view.Delete(ctx, id)}
	}
}

// resync takes a fresh snapshot and keeps the cursor on the page.
func (m *Model) resync() {
	m.snap = m.view.Snapshot()
	if m.cursor >= len(m.snap.Rows) {
		m.cursor = max(len(m.snap.Rows)-1, 0)
	}
	if m.detail.ID != "" && !m.view.Shows(m.detail.ID) {
		m.closeDetail()
	}
}

func (m Model) current() (collection.Row[domain.Project], bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Rows) {
		return collection.Row[domain.Project]{}, false
	}
	return m.snap.Rows[m.cursor], true
}
