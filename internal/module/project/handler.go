package project

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mei-chen/beagle-sub000/internal/collection"
	"github.com/mei-chen/beagle-sub000/internal/domain"
	"github.com/mei-chen/beagle-sub000/internal/middleware"
	"github.com/mei-chen/beagle-sub000/internal/pkg"
)

const (
	apiWaitTimeout = 10 * time.Second
	maxIDLength    = 64
)

// ProjectHandler serves the JSON API over a session's projects view.
type ProjectHandler struct {
	svc *Service
}

// NewProjectHandler creates a ProjectHandler backed by svc.
func NewProjectHandler(svc *Service) *ProjectHandler {
	return &ProjectHandler{svc: svc}
}

// Snapshot handles GET /api/v1/projects. Filter parameters, or a page,
// position the view first. With ?wait=1 the response is held until the view
// settles; a view still busy afterwards answers 202.
func (h *ProjectHandler) Snapshot(c *gin.Context) {
	sess, ok := openFromQuery(c, h.svc)
	if !ok {
		return
	}
	if pkg.WantsWait(c) {
		waitIdle(c.Request.Context(), sess, apiWaitTimeout)
	}
	respondView(c, sess)
}

// SetFilters handles PUT /api/v1/projects/filters.
func (h *ProjectHandler) SetFilters(c *gin.Context) {
	var req FiltersRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	sess, ok := openSession(c, h.svc)
	if !ok {
		return
	}
	next, err := req.Apply(sess.View.Filters())
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}
	sess.View.SetFilters(next)
	h.settle(c, sess)
}

// TypeQuery handles POST /api/v1/projects/query. The query commits after the
// debounce delay, so the answer is normally 202 with the pending query set.
func (h *ProjectHandler) TypeQuery(c *gin.Context) {
	var req QueryRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	sess, ok := openSession(c, h.svc)
	if !ok {
		return
	}
	sess.View.TypeQuery(req.Q)
	if pkg.WantsWait(c) {
		waitIdle(c.Request.Context(), sess, apiWaitTimeout)
	}
	respondView(c, sess)
}

// Navigate handles POST /api/v1/projects/page.
func (h *ProjectHandler) Navigate(c *gin.Context) {
	var req PageRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	sess, ok := openSession(c, h.svc)
	if !ok {
		return
	}
	res, err := navigate(sess, req.Action, req.Page)
	if err != nil {
		pkg.Error(c, viewError(err))
		return
	}
	waitIdle(c.Request.Context(), sess, apiWaitTimeout)
	pkg.Success(c, NavResponse{Result: res.String(), View: Present(sess)})
}

// Select handles POST /api/v1/projects/selection.
func (h *ProjectHandler) Select(c *gin.Context) {
	var req SelectionRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	sess, ok := openSession(c, h.svc)
	if !ok {
		return
	}
	if err := applySelection(sess, req.Action, req.ID); err != nil {
		pkg.Error(c, viewError(err))
		return
	}
	pkg.Success(c, Present(sess))
}

// MoveColumn handles POST /api/v1/projects/columns.
func (h *ProjectHandler) MoveColumn(c *gin.Context) {
	var req ColumnMoveRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	sess, ok := openSession(c, h.svc)
	if !ok {
		return
	}
	if err := sess.View.MoveColumn(req.From, req.To); err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}
	pkg.Success(c, Present(sess))
}

// Refresh handles POST /api/v1/projects/refresh.
func (h *ProjectHandler) Refresh(c *gin.Context) {
	sess, ok := openSession(c, h.svc)
	if !ok {
		return
	}
	sess.View.Refresh()
	h.settle(c, sess)
}

// DismissNotice handles POST /api/v1/projects/notices/:nid/dismiss.
func (h *ProjectHandler) DismissNotice(c *gin.Context) {
	nid, err := strconv.ParseUint(c.Param("nid"), 10, 64)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, "invalid notice id", nil))
		return
	}
	sess, ok := openSession(c, h.svc)
	if !ok {
		return
	}
	if !sess.View.DismissNotice(nid) {
		pkg.Error(c, domain.NewAppError(domain.CodeNotFound, "notice not found", nil))
		return
	}
	pkg.Success(c, Present(sess))
}

// Delete handles DELETE /api/v1/projects/:id.
func (h *ProjectHandler) Delete(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}
	sess, ok := openSession(c, h.svc)
	if !ok {
		return
	}
	if err := sess.View.Delete(c.Request.Context(), id); err != nil {
		pkg.Error(c, viewError(err))
		return
	}
	sess.Details.Forget(id)
	h.settle(c, sess)
}

// Detail handles GET /api/v1/projects/:id/detail. It opens the row and waits
// for its payload.
func (h *ProjectHandler) Detail(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}
	sess, ok := openSession(c, h.svc)
	if !ok {
		return
	}
	d := sess.Details.Open(c.Request.Context(), id)
	if d.Status == collection.DetailFailed {
		pkg.Error(c, d.Err)
		return
	}
	pkg.Success(c, presentDetail(d))
}

func (h *ProjectHandler) settle(c *gin.Context, sess *Session) {
	waitIdle(c.Request.Context(), sess, apiWaitTimeout)
	respondView(c, sess)
}

func respondView(c *gin.Context, sess *Session) {
	pv := Present(sess)
	if pv.Busy {
		pkg.Accepted(c, pv)
		return
	}
	pkg.Success(c, pv)
}

// openSession returns the caller's session, creating it on first use.
func openSession(c *gin.Context, svc *Service) (*Session, bool) {
	return openAt(c, svc, nil, 0)
}

// openFromQuery opens the session positioned at the request's filter and
// page parameters when it carries any.
func openFromQuery(c *gin.Context, svc *Service) (*Session, bool) {
	filters, present := pkg.ParseFilters(c, svc.Schema())
	if !present && c.Query(pkg.ParamPage) == "" {
		return openSession(c, svc)
	}
	return openAt(c, svc, &filters, pkg.ParsePage(c))
}

func openAt(c *gin.Context, svc *Service, link *collection.FilterState, page int) (*Session, bool) {
	sess, err := svc.Open(c.Request.Context(), middleware.GetViewSession(c), link, page)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeInternal, "view unavailable", err))
		return nil, false
	}
	return sess, true
}

func waitIdle(ctx context.Context, sess *Session, d time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	_ = sess.View.WaitIdle(ctx)
}

func navigate(sess *Session, action string, page int) (collection.NavResult, error) {
	switch action {
	case "next":
		return sess.View.Next()
	case "prev":
		return sess.View.Prev()
	default:
		return sess.View.Goto(page)
	}
}

func applySelection(sess *Session, action, id string) error {
	switch action {
	case "toggle":
		sess.View.ToggleSelected(id)
	case "visible":
		sess.View.SelectVisible()
	case "matching":
		return sess.View.SelectMatching()
	case "clear":
		sess.View.ClearSelection()
	}
	return nil
}

// viewError classifies the collection sentinels for the HTTP layer.
func viewError(err error) error {
	switch {
	case errors.Is(err, collection.ErrBusy):
		return domain.NewAppError(domain.CodeConflict, "a page is still loading", err)
	case errors.Is(err, collection.ErrNoPage):
		return domain.NewAppError(domain.CodeConflict, "no page loaded yet", err)
	case errors.Is(err, collection.ErrReadOnly):
		return domain.NewAppError(domain.CodeConflict, "this view is read-only", err)
	}
	return err
}

func parseID(c *gin.Context) (string, error) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" || len(id) > maxIDLength {
		return "", errors.New("invalid project id")
	}
	return id, nil
}
