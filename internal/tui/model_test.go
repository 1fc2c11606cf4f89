package tui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/goleak"

	"github.com/mei-chen/beagle-sub000/internal/collection"
	"github.com/mei-chen/beagle-sub000/internal/domain"
	"github.com/mei-chen/beagle-sub000/internal/projects"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// backend serves an in-memory project list with the owned filter and the
// query applied server side.
type backend struct {
	mu        sync.Mutex
	projects  []domain.Project
	fetchErr  error
	deleteErr error
}

func newBackend(n int) *backend {
	b := &backend{}
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		b.projects = append(b.projects, domain.Project{
			ID:        domain.ObjectID(fmt.Sprintf("p%02d", i)),
			Title:     fmt.Sprintf("Contract %02d", i),
			Owner:     domain.Person{Username: "ada"},
			IsOwner:   i%2 == 0,
			Tags:      []string{"nda"},
			CreatedAt: start.Add(time.Duration(i) * time.Hour),
			Meta:      domain.ProcessingMeta{Processed: true, StartedAt: start},
		})
	}
	return b
}

func (b *backend) FetchPage(_ context.Context, req collection.PageRequest) (collection.PageResult[domain.Project], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fetchErr != nil {
		return collection.PageResult[domain.Project]{}, b.fetchErr
	}

	var matched []domain.Project
	for _, p := range b.projects {
		if !req.Filters.Bool(projects.FieldOwned) && p.IsOwner {
			continue
		}
		if q := req.Filters.Query(); q != "" && !collection.Matches(p.SearchText(), q) {
			continue
		}
		matched = append(matched, p)
	}

	pageCount := (len(matched) + req.PerPage - 1) / req.PerPage
	meta := collection.PageMeta{Page: req.Page, PageCount: pageCount, TotalCount: len(matched)}
	if req.Page+1 < pageCount {
		next := req.Page + 1
		meta.NextPage = &next
	}
	if req.Page > 0 {
		prev := req.Page - 1
		meta.PrevPage = &prev
	}
	start := min(req.Page*req.PerPage, len(matched))
	end := min(start+req.PerPage, len(matched))
	return collection.PageResult[domain.Project]{Records: matched[start:end], Meta: meta}, nil
}

func (b *backend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	for i, p := range b.projects {
		if p.RecordID() == id {
			b.projects = append(b.projects[:i], b.projects[i+1:]...)
			return nil
		}
	}
	return domain.NewAppError(domain.CodeNotFound, "project not found", nil)
}

func (b *backend) Detail(_ context.Context, id string) (domain.ProjectDetail, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.projects {
		if p.RecordID() == id {
			return domain.ProjectDetail{Project: p, Description: "about " + p.Title}, nil
		}
	}
	return domain.ProjectDetail{}, domain.NewAppError(domain.CodeNotFound, "project not found", nil)
}

func newTestModel(t *testing.T, b *backend) Model {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	schema := projects.NewSchema()
	view, err := collection.NewView(projects.ViewConfig(schema, projects.Options{
		Mode:           collection.ModeOr,
		PerPage:        5,
		Debounce:       10 * time.Millisecond,
		MinQueryLength: 2,
	}, b, b, nil, log), schema.Defaults(), 0)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	view.Start()
	t.Cleanup(view.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m, err := New(Config{Ctx: ctx, View: view, Details: b.Detail, Logger: log})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return settle(t, m)
}

// settle waits for the view to go idle and feeds the change to the model.
func settle(t *testing.T, m Model) Model {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.view.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
	next, _ := m.Update(updatedMsg{})
	return next.(Model)
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
}

func press(m Model, keys ...string) (Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(keyMsg(k))
		m = next.(Model)
	}
	return m, cmd
}

func assertContains(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("view missing %q:\n%s", w, out)
		}
	}
}

func TestNew_RequiresViewAndDetails(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New(Config{}) error = nil")
	}
}

func TestModel_RendersFirstPage(t *testing.T) {
	m := newTestModel(t, newBackend(12))

	out := m.View()
	assertContains(t, out, "Projects", "owned:on", "Contract 00", "Contract 04", "page 1/3", "12 projects", "Ready")
	if strings.Contains(out, "Contract 05") {
		t.Error("second page rendered on the first")
	}
}

func TestModel_Paging(t *testing.T) {
	m := newTestModel(t, newBackend(12))

	m, _ = press(m, "n")
	m = settle(t, m)
	assertContains(t, m.View(), "Contract 05", "page 2/3")

	m, _ = press(m, "p")
	m = settle(t, m)
	assertContains(t, m.View(), "Contract 00", "page 1/3")

	m, _ = press(m, "p")
	if m.status == "" {
		t.Error("prev on the first page should report why nothing happened")
	}
}

func TestModel_ToggleOwned(t *testing.T) {
	m := newTestModel(t, newBackend(12))

	m, _ = press(m, "o")
	m = settle(t, m)
	if m.snap.Filters.Bool(projects.FieldOwned) {
		t.Fatal("owned filter still on")
	}
	assertContains(t, m.View(), "6 projects", "Contract 01")
}

func TestModel_Selection(t *testing.T) {
	m := newTestModel(t, newBackend(12))

	m, _ = press(m, "j", " ")
	if got := m.snap.Selection.IDs; len(got) != 1 || got[0] != "p01" {
		t.Fatalf("selection = %v, want [p01]", got)
	}
	assertContains(t, m.View(), "1 selected (visible)", "[x]")

	m, _ = press(m, "a")
	if m.snap.Selection.Count != 5 {
		t.Errorf("count = %d after select page", m.snap.Selection.Count)
	}

	m, _ = press(m, "A")
	if m.snap.Selection.ScopeName != "matching" || m.snap.Selection.Count != 12 {
		t.Errorf("selection = %+v after select matching", m.snap.Selection)
	}

	m, _ = press(m, "x")
	if m.snap.Selection.Count != 0 {
		t.Errorf("count = %d after clear", m.snap.Selection.Count)
	}
}

func TestModel_Search(t *testing.T) {
	m := newTestModel(t, newBackend(12))

	m, _ = press(m, "/")
	if !m.editing {
		t.Fatal("slash did not start editing")
	}
	m, _ = press(m, "C", "o", "n", "t", "r", "a", "c", "t", " ", "0", "7")
	m, _ = press(m, "enter")
	if m.editing {
		t.Fatal("enter did not leave the search box")
	}

	m = settle(t, m)
	if got := m.snap.Filters.Query(); got != "Contract 07" {
		t.Fatalf("query = %q", got)
	}
	if len(m.snap.Rows) != 1 || m.snap.Rows[0].Record.RecordID() != "p07" {
		t.Errorf("rows = %+v", m.snap.Rows)
	}

	// Keys typed into the box are not commands.
	m, _ = press(m, "/", "q")
	if !m.editing {
		t.Error("q quit the search box")
	}
}

func TestModel_EmptyState(t *testing.T) {
	m := newTestModel(t, newBackend(12))

	m, _ = press(m, "/", "z", "z", "z", "enter")
	m = settle(t, m)
	assertContains(t, m.View(), "No projects match these filters.")
}

func TestModel_Detail(t *testing.T) {
	m := newTestModel(t, newBackend(3))

	m, cmd := press(m, "j", "enter")
	if cmd == nil {
		t.Fatal("enter returned no command")
	}
	if m.detail.Status != collection.DetailLoading {
		t.Errorf("status = %v before the load returns", m.detail.Status)
	}
	next, _ := m.Update(cmd())
	m = next.(Model)
	assertContains(t, m.View(), "about Contract 01")

	m, cmd = press(m, "enter")
	if cmd != nil {
		t.Error("closing a detail should not fetch")
	}
	if m.detail.Status != collection.DetailClosed {
		t.Errorf("status = %v after second enter", m.detail.Status)
	}
}

func TestModel_Delete(t *testing.T) {
	m := newTestModel(t, newBackend(3))

	m, cmd := press(m, "d")
	if cmd == nil {
		t.Fatal("d returned no command")
	}
	next, _ := m.Update(cmd())
	m = next.(Model)
	if m.status != "Project deleted" {
		t.Errorf("status = %q", m.status)
	}
	m = settle(t, m)
	if strings.Contains(m.View(), "Contract 00") {
		t.Error("deleted project still listed")
	}
	assertContains(t, m.View(), "2 projects")
}

func TestModel_DeleteFailureDisablesRow(t *testing.T) {
	b := newBackend(3)
	m := newTestModel(t, b)
	b.deleteErr = domain.NewAppError(domain.CodeConflict, "project is still processing", nil)

	m, cmd := press(m, "d")
	next, _ := m.Update(cmd())
	m = next.(Model)
	if !m.snap.Rows[0].Disabled {
		t.Fatal("row not disabled")
	}
	assertContains(t, m.View(), "project is still processing")

	if _, cmd := press(m, "d"); cmd != nil {
		t.Error("a disabled row can be deleted again")
	}
}

func TestModel_ErrorStateAndDismiss(t *testing.T) {
	b := newBackend(3)
	b.fetchErr = domain.NewAppError(domain.CodeTransport, "remote service unreachable", nil)
	m := newTestModel(t, b)

	assertContains(t, m.View(), "remote service unreachable", "r to retry", "esc to dismiss")
	if len(m.snap.Notices) != 1 {
		t.Fatalf("notices = %+v", m.snap.Notices)
	}

	m, _ = press(m, "esc")
	if len(m.snap.Notices) != 0 {
		t.Errorf("notice not dismissed: %+v", m.snap.Notices)
	}

	b.mu.Lock()
	b.fetchErr = nil
	b.mu.Unlock()
	m, _ = press(m, "r")
	m = settle(t, m)
	assertContains(t, m.View(), "Contract 00")
}

func TestModel_Quit(t *testing.T) {
	m := newTestModel(t, newBackend(1))

	_, cmd := press(m, "q")
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestPad(t *testing.T) {
	tests := []struct {
		in   string
		w    int
		want string
	}{
		{"abc", 5, "abc  "},
		{"abcdef", 4, "abc…"},
		{"", 2, "  "},
	}
	for _, tt := range tests {
		if got := pad(tt.in, tt.w); got != tt.want {
			t.Errorf("pad(%q, %d) = %q, want %q", tt.in, tt.w, got, tt.want)
		}
	}
}
