package project

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mei-chen/beagle-sub000/internal/collection"
	"github.com/mei-chen/beagle-sub000/internal/middleware"
	"github.com/mei-chen/beagle-sub000/internal/pkg"
	"github.com/mei-chen/beagle-sub000/internal/projects"
)

const (
	pageWaitTimeout = 1500 * time.Millisecond
	listPath        = "/projects"
)

// ProjectPageHandler renders the projects page and answers its htmx requests.
// Every htmx endpoint re-renders the collection region.
type ProjectPageHandler struct {
	svc *Service
}

// NewProjectPageHandler creates a ProjectPageHandler backed by svc.
func NewProjectPageHandler(svc *Service) *ProjectPageHandler {
	return &ProjectPageHandler{svc: svc}
}

// ListPage renders the full page, positioned by the URL when it carries
// filters or a page.
// GET /projects
func (h *ProjectPageHandler) ListPage(c *gin.Context) {
	filters, present := pkg.ParseFilters(c, h.svc.Schema())
	var link *collection.FilterState
	if present || c.Query(pkg.ParamPage) != "" {
		link = &filters
	}
	sess, ok := h.open(c, link, pkg.ParsePage(c))
	if !ok {
		return
	}
	waitIdle(c.Request.Context(), sess, pageWaitTimeout)
	c.HTML(http.StatusOK, "project/list.html", h.data(c, Present(sess)))
}

// Rows re-renders the collection region; the region polls it while busy.
// GET /projects/rows
func (h *ProjectPageHandler) Rows(c *gin.Context) {
	sess, ok := h.open(c, nil, 0)
	if !ok {
		return
	}
	waitIdle(c.Request.Context(), sess, pageWaitTimeout)
	h.renderCollection(c, sess)
}

// Filters applies the filter form.
// POST /projects/filters
func (h *ProjectPageHandler) Filters(c *gin.Context) {
	sess, ok := h.open(c, nil, 0)
	if !ok {
		return
	}
	if c.PostForm("reset") != "" {
		sess.View.ResetFilters()
	} else {
		_ = c.Request.ParseForm()
		splitList(c.Request.PostForm, projects.FieldTags)
		sess.View.SetFilters(pkg.MergeFormFilters(c, sess.View.Filters()))
	}
	waitIdle(c.Request.Context(), sess, pageWaitTimeout)
	h.renderCollection(c, sess)
}

// Query feeds one search box change to the debouncer and answers at once;
// the rendered region keeps polling until the query commits and loads.
// POST /projects/query
func (h *ProjectPageHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBind(&req); err != nil {
		h.toastOnly(c, "Search text is too long", pkg.ToastError)
		return
	}
	sess, ok := h.open(c, nil, 0)
	if !ok {
		return
	}
	sess.View.TypeQuery(req.Q)
	h.renderCollection(c, sess)
}

// Page moves to the next, previous or a numbered page.
// POST /projects/page/:dir
func (h *ProjectPageHandler) Page(c *gin.Context) {
	action, n := "goto", 0
	switch dir := c.Param("dir"); dir {
	case "next", "prev":
		action = dir
	default:
		var err error
		if n, err = strconv.Atoi(dir); err != nil || n < 0 {
			h.toastOnly(c, "Invalid page", pkg.ToastError)
			return
		}
	}
	sess, ok := h.open(c, nil, 0)
	if !ok {
		return
	}
	if _, err := navigate(sess, action, n); err != nil {
		if errors.Is(err, collection.ErrBusy) {
			h.toastOnly(c, "Still loading, try again in a moment", pkg.ToastInfo)
			return
		}
		h.toastOnly(c, pkg.PublicMessage(viewError(err)), pkg.ToastError)
		return
	}
	waitIdle(c.Request.Context(), sess, pageWaitTimeout)
	h.renderCollection(c, sess)
}

// Select changes the selection.
// POST /projects/selection
func (h *ProjectPageHandler) Select(c *gin.Context) {
	var req SelectionRequest
	if err := c.ShouldBind(&req); err != nil {
		h.toastOnly(c, "Invalid selection", pkg.ToastError)
		return
	}
	sess, ok := h.open(c, nil, 0)
	if !ok {
		return
	}
	if err := applySelection(sess, req.Action, req.ID); err != nil {
		h.toastOnly(c, pkg.PublicMessage(viewError(err)), pkg.ToastInfo)
		return
	}
	h.renderCollection(c, sess)
}

// Delete removes a project. A failure confined to the row disables it and
// shows why; any other failure shows up as a notice.
// DELETE /projects/:id
func (h *ProjectPageHandler) Delete(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.toastOnly(c, "Invalid project id", pkg.ToastError)
		return
	}
	sess, ok := h.open(c, nil, 0)
	if !ok {
		return
	}
	if err := sess.View.Delete(c.Request.Context(), id); err != nil {
		slog.DebugContext(c.Request.Context(), "delete project failed", "id", id, "error", err)
		pkg.Toast(c, pkg.PublicMessage(viewError(err)), pkg.ToastError)
		h.renderCollection(c, sess)
		return
	}
	sess.Details.Forget(id)
	pkg.Toast(c, "Project deleted", pkg.ToastSuccess)
	waitIdle(c.Request.Context(), sess, pageWaitTimeout)
	h.renderCollection(c, sess)
}

// Detail opens or closes a row's detail.
// GET /projects/:id/detail
func (h *ProjectPageHandler) Detail(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.toastOnly(c, "Invalid project id", pkg.ToastError)
		return
	}
	sess, ok := h.open(c, nil, 0)
	if !ok {
		return
	}
	d := sess.Details.Toggle(c.Request.Context(), id)
	c.HTML(http.StatusOK, "project/detail.html", gin.H{
		"ID":        id,
		"Detail":    presentDetail(d),
		"Colspan":   len(sess.View.Columns()) + 2,
		"CSRFToken": middleware.GetCSRFToken(c),
	})
}

// MoveColumn reorders the table columns.
// POST /projects/columns
func (h *ProjectPageHandler) MoveColumn(c *gin.Context) {
	var req ColumnMoveRequest
	if err := c.ShouldBind(&req); err != nil {
		h.toastOnly(c, "Invalid column move", pkg.ToastError)
		return
	}
	sess, ok := h.open(c, nil, 0)
	if !ok {
		return
	}
	if err := sess.View.MoveColumn(req.From, req.To); err != nil {
		h.toastOnly(c, "Invalid column move", pkg.ToastError)
		return
	}
	h.renderCollection(c, sess)
}

// DismissNotice removes a notice.
// POST /projects/notices/:nid/dismiss
func (h *ProjectPageHandler) DismissNotice(c *gin.Context) {
	nid, err := strconv.ParseUint(c.Param("nid"), 10, 64)
	if err != nil {
		h.toastOnly(c, "Invalid notice", pkg.ToastError)
		return
	}
	sess, ok := h.open(c, nil, 0)
	if !ok {
		return
	}
	sess.View.DismissNotice(nid)
	h.renderCollection(c, sess)
}

// Refresh drops the cached pages and reloads the current one.
// POST /projects/refresh
func (h *ProjectPageHandler) Refresh(c *gin.Context) {
	sess, ok := h.open(c, nil, 0)
	if !ok {
		return
	}
	sess.View.Refresh()
	waitIdle(c.Request.Context(), sess, pageWaitTimeout)
	h.renderCollection(c, sess)
}

func (h *ProjectPageHandler) open(c *gin.Context, link *collection.FilterState, page int) (*Session, bool) {
	sess, err := h.svc.Open(c.Request.Context(), middleware.GetViewSession(c), link, page)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "open view session failed", "error", err)
		if pkg.IsHTMX(c) {
			h.toastOnly(c, "The project list is unavailable, reload the page", pkg.ToastError)
			return nil, false
		}
		c.HTML(http.StatusInternalServerError, "errors/500.html", gin.H{})
		return nil, false
	}
	return sess, true
}

func (h *ProjectPageHandler) renderCollection(c *gin.Context, sess *Session) {
	pv := Present(sess)
	pkg.PushURL(c, pageURL(pv.DeepLink))
	c.HTML(http.StatusOK, "project/rows.html", h.data(c, pv))
}

func (h *ProjectPageHandler) data(c *gin.Context, pv *PageView) gin.H {
	return gin.H{
		"View":      pv,
		"URL":       pageURL(pv.DeepLink),
		"CSRFToken": middleware.GetCSRFToken(c),
	}
}

// toastOnly answers an htmx request with a toast and leaves the page alone.
func (h *ProjectPageHandler) toastOnly(c *gin.Context, msg, kind string) {
	pkg.KeepTarget(c)
	pkg.Toast(c, msg, kind)
	c.Status(http.StatusOK)
}

func pageURL(deepLink string) string {
	if deepLink == "" {
		return listPath
	}
	return listPath + "?" + deepLink
}

// splitList expands comma separated entries of a list field typed into a
// single text input.
func splitList(values url.Values, name string) {
	raw, ok := values[name]
	if !ok {
		return
	}
	var items []string
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	}
	if len(items) == 0 {
		values[name] = []string{""}
		return
	}
	values[name] = items
}
