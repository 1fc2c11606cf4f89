package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mei-chen/beagle-sub000/internal/collection"
	"github.com/mei-chen/beagle-sub000/internal/domain"
	"github.com/mei-chen/beagle-sub000/internal/projects"
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Projects"))
	b.WriteString("  ")
	b.WriteString(m.filterLine())
	b.WriteString("\n")
	b.WriteString(m.searchLine())
	b.WriteString("\n")

	for _, n := range m.snap.Notices {
		style := infoStyle
		if n.Level == collection.NoticeError {
			style = errorStyle
		}
		b.WriteString(style.Render("● " + n.Message))
		b.WriteString(dimStyle.Render("  (esc to dismiss)"))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.body())
	b.WriteString("\n")
	b.WriteString(m.footer())
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(infoStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) filterLine() string {
	f := m.snap.Filters
	onOff := func(label, name string) string {
		if f.Bool(name) {
			return label + ":on"
		}
		return dimStyle.Render(label + ":off")
	}
	parts := []string{onOff("owned", projects.FieldOwned), onOff("invited", projects.FieldInvited)}
	if tags := f.List(projects.FieldTags); len(tags) > 0 {
		parts = append(parts, "tags:"+strings.Join(tags, ","))
	}
	for _, facet := range []string{projects.FieldReady, projects.FieldFailed, projects.FieldStale} {
		if f.Bool(facet) {
			parts = append(parts, facet)
		}
	}
	return strings.Join(parts, "  ")
}

func (m Model) searchLine() string {
	if m.editing {
		return m.input.View()
	}
	q := m.snap.Filters.Query()
	line := dimStyle.Render("/ ") + q
	if q == "" {
		line = dimStyle.Render("/ search projects")
	}
	if m.snap.Pending {
		line += dimStyle.Render(fmt.Sprintf("  searching for %q…", m.snap.PendingQuery))
	}
	return line
}

func (m Model) body() string {
	switch {
	case !m.snap.Loaded && m.snap.State == collection.StateLoading:
		return m.spinner.View() + " Loading projects…\n"
	case m.snap.State == collection.StateError && len(m.snap.Rows) == 0:
		return errorStyle.Render(m.errText()) + dimStyle.Render("  (r to retry)") + "\n"
	case m.snap.State == collection.StateEmpty:
		return dimStyle.Render("No projects match these filters.") + "\n"
	}

	var b strings.Builder
	b.WriteString(m.headerRow())
	b.WriteString("\n")
	for i, row := range m.snap.Rows {
		line := m.renderRow(row)
		switch {
		case row.Disabled:
			line = disabledStyle.Render(line)
		case i == m.cursor:
			line = cursorStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
		if row.Disabled && row.Message != "" {
			b.WriteString("     " + errorStyle.Render(row.Message) + "\n")
		}
		if m.detail.ID == row.Record.RecordID() && m.detail.Status != collection.DetailClosed {
			b.WriteString(m.renderDetail())
			b.WriteString("\n")
		}
	}
	if m.snap.State == collection.StateError {
		b.WriteString(errorStyle.Render(m.errText()) + "\n")
	}
	return b.String()
}

func (m Model) errText() string {
	if m.snap.Err == nil {
		return "Could not load projects."
	}
	return projects.Describe(m.snap.Err)
}

func (m Model) headerRow() string {
	cells := make([]string, 0, len(m.snap.Columns))
	for _, col := range m.snap.Columns {
		cells = append(cells, pad(strings.ToUpper(col[:1])+col[1:], columnWidth(col)))
	}
	return "     " + headerStyle.Render(strings.Join(cells, " "))
}

func (m Model) renderRow(row collection.Row[domain.Project]) string {
	marker := "  "
	if m.snap.Rows[m.cursor].Record.RecordID() == row.Record.RecordID() {
		marker = "▸ "
	}
	check := "[ ]"
	if row.Selected {
		check = "[x]"
	}

	p := row.Record
	cells := make([]string, 0, len(m.snap.Columns))
	for _, col := range m.snap.Columns {
		w := columnWidth(col)
		switch col {
		case "title":
			cells = append(cells, pad(p.DisplayTitle(), w))
		case "owner":
			cells = append(cells, pad(p.Owner.Username, w))
		case "tags":
			cells = append(cells, pad(strings.Join(p.Tags, ","), w))
		case "status":
			cells = append(cells, m.badge(p, row.Flags, w))
		case "created":
			cells = append(cells, pad(p.CreatedAt.Local().Format("2006-01-02 15:04"), w))
		default:
			cells = append(cells, pad("", w))
		}
	}
	return marker + check + strings.Join(cells, " ")
}

func (m Model) badge(p domain.Project, flags map[string]bool, w int) string {
	v := m.classifier.Variant(p)
	b := projects.BadgeFor(v)
	text := b.Glyph + " " + b.Label
	if flags[projects.FlagExportReady] {
		text += " ⇩"
	}
	return lipgloss.NewStyle().Foreground(badgeColors[v]).Render(pad(text, w))
}

func (m Model) renderDetail() string {
	d := m.detail
	var body string
	switch d.Status {
	case collection.DetailLoading:
		body = m.spinner.View() + " Loading detail…"
	case collection.DetailFailed:
		body = errorStyle.Render(projects.Describe(d.Err))
	default:
		v := d.Value
		lines := []string{titleStyle.Render(v.DisplayTitle())}
		if v.Description != "" {
			lines = append(lines, v.Description)
		}
		lines = append(lines, dimStyle.Render(fmt.Sprintf("%d document(s) · owner %s", len(v.Documents), v.Owner.Username)))
		if len(v.Collaborators) > 0 {
			names := make([]string, 0, len(v.Collaborators))
			for _, c := range v.Collaborators {
				names = append(names, c.Username)
			}
			lines = append(lines, dimStyle.Render("with "+strings.Join(names, ", ")))
		}
		body = strings.Join(lines, "\n")
	}
	return lipgloss.NewStyle().MarginLeft(5).Render(detailStyle.Render(body))
}

func (m Model) footer() string {
	meta := m.snap.Meta
	var parts []string
	if m.snap.Busy() && m.snap.Loaded {
		parts = append(parts, m.spinner.View())
	}
	if meta.PageCount > 0 {
		parts = append(parts, fmt.Sprintf("page %d/%d", meta.Page+1, meta.PageCount))
	}
	noun := "projects"
	if meta.TotalCount == 1 {
		noun = "project"
	}
	parts = append(parts, fmt.Sprintf("%d %s", meta.TotalCount, noun))
	if sel := m.snap.Selection; sel.Count > 0 {
		parts = append(parts, fmt.Sprintf("%d selected (%s)", sel.Count, sel.ScopeName))
	}
	return dimStyle.Render(strings.Join(parts, " · "))
}

// pad fits s into exactly w cells.
func pad(s string, w int) string {
	if lipgloss.Width(s) > w {
		r := []rune(s)
		for len(r) > 0 && lipgloss.Width(string(r))+1 > w {
			r = r[:len(r)-1]
		}
		s = string(r) + "…"
	}
	return s + strings.Repeat(" ", max(w-lipgloss.Width(s), 0))
}
