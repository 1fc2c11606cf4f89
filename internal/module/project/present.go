package project

import (
	"strconv"
	"strings"
	"time"

	"github.com/mei-chen/beagle-sub000/internal/collection"
	"github.com/mei-chen/beagle-sub000/internal/domain"
	"github.com/mei-chen/beagle-sub000/internal/projects"
)

const (
	skeletonRows = 5
	pageWindow   = 2
)

var columnLabels = map[string]string{
	"title":   "Title",
	"owner":   "Owner",
	"tags":    "Tags",
	"status":  "Status",
	"created": "Created",
}

// PageView is the rendered state of a session's view, shared by the JSON
// API and the templates.
type PageView struct {
	Version      uint64                      `json:"version"`
	State        string                      `json:"state"`
	Busy         bool                        `json:"busy"`
	Rows         []RowView                   `json:"rows"`
	Meta         collection.PageMeta         `json:"meta"`
	Pages        []PageLink                  `json:"-"`
	Filters      FiltersView                 `json:"filters"`
	PendingQuery string                      `json:"pending_query,omitempty"`
	Selection    collection.SelectionSummary `json:"selection"`
	Notices      []collection.Notice         `json:"notices"`
	Error        string                      `json:"error,omitempty"`
	Columns      []ColumnView                `json:"columns"`
	DeepLink     string                      `json:"deep_link"`
	Skeleton     []int                       `json:"-"`
}

// RowView is one visible project.
type RowView struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	PendingTitle string          `json:"pending_title,omitempty"`
	Owner        string          `json:"owner"`
	IsOwner      bool            `json:"is_owner"`
	Tags         []string        `json:"tags"`
	Created      time.Time       `json:"created"`
	Variant      string          `json:"variant"`
	Badge        projects.Badge  `json:"badge"`
	Selected     bool            `json:"selected"`
	Disabled     bool            `json:"disabled,omitempty"`
	Message      string          `json:"message,omitempty"`
	Flags        map[string]bool `json:"flags,omitempty"`
	Detail       *DetailView     `json:"detail,omitempty"`
}

// DetailView is an expanded row.
type DetailView struct {
	Status        string                   `json:"status"`
	Description   string                   `json:"description,omitempty"`
	Documents     []domain.DocumentSummary `json:"documents,omitempty"`
	Collaborators []domain.Person          `json:"collaborators,omitempty"`
	Error         string                   `json:"error,omitempty"`
}

// FiltersView is the filter bar state.
type FiltersView struct {
	Query    string   `json:"q"`
	Owned    bool     `json:"owned"`
	Invited  bool     `json:"invited"`
	Tags     []string `json:"tags"`
	TagsText string   `json:"-"`
	Ready    bool     `json:"ready"`
	Failed   bool     `json:"failed"`
	Stale    bool     `json:"stale"`
	Active   []string `json:"active"`
	Dirty    bool     `json:"dirty"`
}

// ColumnView is one table column in display order.
type ColumnView struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Index int    `json:"index"`
}

// PageLink is one entry of the pager. Gap marks an elided run of pages.
type PageLink struct {
	Page    int
	Label   string
	Current bool
	Gap     bool
}

// Present renders the session's current snapshot.
func Present(sess *Session) *PageView {
	return present(sess, sess.View.Snapshot())
}

func present(sess *Session, snap collection.Snapshot[domain.Project]) *PageView {
	pv := &PageView{
		Version:      snap.Version,
		State:        snap.State.String(),
		Busy:         snap.Busy(),
		Rows:         make([]RowView, 0, len(snap.Rows)),
		Meta:         snap.Meta,
		Filters:      presentFilters(snap.Filters),
		PendingQuery: snap.PendingQuery,
		Selection:    snap.Selection,
		Notices:      snap.Notices,
		DeepLink:     snap.DeepLink(),
	}
	if snap.Err != nil {
		pv.Error = projects.Describe(snap.Err)
	}
	for i, key := range snap.Columns {
		label, ok := columnLabels[key]
		if !ok {
			label = key
		}
		pv.Columns = append(pv.Columns, ColumnView{Key: key, Label: label, Index: i})
	}
	for _, row := range snap.Rows {
		pv.Rows = append(pv.Rows, presentRow(sess, row))
	}
	if snap.State == collection.StateLoading && len(pv.Rows) == 0 {
		pv.Skeleton = make([]int, skeletonRows)
	}
	if snap.Loaded {
		pv.Pages = pageLinks(snap.Meta)
	}
	return pv
}

func presentRow(sess *Session, row collection.Row[domain.Project]) RowView {
	p := row.Record
	variant := sess.Classifier.Variant(p)
	rv := RowView{
		ID:           p.RecordID(),
		Title:        p.DisplayTitle(),
		PendingTitle: p.PendingTitle,
		Owner:        p.Owner.Username,
		IsOwner:      p.IsOwner,
		Tags:         p.Tags,
		Created:      p.CreatedAt,
		Variant:      variant.String(),
		Badge:        projects.BadgeFor(variant),
		Selected:     row.Selected,
		Disabled:     row.Disabled,
		Message:      row.Message,
		Flags:        row.Flags,
	}
	if sess.Details != nil {
		rv.Detail = presentDetail(sess.Details.Get(rv.ID))
	}
	return rv
}

func presentDetail(d collection.Detail[domain.ProjectDetail]) *DetailView {
	switch d.Status {
	case collection.DetailClosed:
		return nil
	case collection.DetailFailed:
		return &DetailView{Status: d.Status.String(), Error: projects.Describe(d.Err)}
	case collection.DetailLoaded:
		return &DetailView{
			Status:        d.Status.String(),
			Description:   d.Value.Description,
			Documents:     d.Value.Documents,
			Collaborators: d.Value.Collaborators,
		}
	default:
		return &DetailView{Status: d.Status.String()}
	}
}

func presentFilters(f collection.FilterState) FiltersView {
	if f.Schema() == nil {
		return FiltersView{}
	}
	tags := f.List(projects.FieldTags)
	return FiltersView{
		Query:    f.Query(),
		Owned:    f.Bool(projects.FieldOwned),
		Invited:  f.Bool(projects.FieldInvited),
		Tags:     tags,
		TagsText: strings.Join(tags, ", "),
		Ready:    f.Bool(projects.FieldReady),
		Failed:   f.Bool(projects.FieldFailed),
		Stale:    f.Bool(projects.FieldStale),
		Active:   f.Active(),
		Dirty:    f.Dirty(),
	}
}

// pageLinks lists the first and last page plus a window around the current
// one, with gaps between.
func pageLinks(m collection.PageMeta) []PageLink {
	if m.PageCount <= 1 {
		return nil
	}
	var out []PageLink
	last := -1
	for n := 0; n < m.PageCount; n++ {
		near := n >= m.Page-pageWindow && n <= m.Page+pageWindow
		if n != 0 && n != m.PageCount-1 && !near {
			continue
		}
		if last >= 0 && n > last+1 {
			out = append(out, PageLink{Gap: true, Label: "…"})
		}
		out = append(out, PageLink{Page: n, Label: strconv.Itoa(n + 1), Current: n == m.Page})
		last = n
	}
	return out
}
