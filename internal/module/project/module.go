// Package project serves the projects collection view over HTTP: a JSON API,
// htmx pages and a WebSocket update stream, all backed by one live view per
// browser session.
package project

import "github.com/gin-gonic/gin"

// ProjectModule implements the app.Module interface for the projects view.
type ProjectModule struct {
	handler       *ProjectHandler
	pageHandler   *ProjectPageHandler
	streamHandler *StreamHandler
}

// NewModule creates a new ProjectModule with the given handlers.
// Panics if h or ph is nil; sh is optional.
func NewModule(h *ProjectHandler, ph *ProjectPageHandler, sh *StreamHandler) *ProjectModule {
	if h == nil {
		panic("project.NewModule: handler must not be nil")
	}
	if ph == nil {
		panic("project.NewModule: pageHandler must not be nil")
	}
	return &ProjectModule{handler: h, pageHandler: ph, streamHandler: sh}
}

// RegisterRoutes registers project API and page routes.
func (m *ProjectModule) RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup) {
	// API routes
	api.GET("/projects", m.handler.Snapshot)
	api.PUT("/projects/filters", m.handler.SetFilters)
	api.POST("/projects/query", m.handler.TypeQuery)
	api.POST("/projects/page", m.handler.Navigate)
	api.POST("/projects/selection", m.handler.Select)
	api.POST("/projects/columns", m.handler.MoveColumn)
	api.POST("/projects/refresh", m.handler.Refresh)
	api.POST("/projects/notices/:nid/dismiss", m.handler.DismissNotice)
	api.DELETE("/projects/:id", m.handler.Delete)
	api.GET("/projects/:id/detail", m.handler.Detail)

	// Page routes
	pages.GET("/projects", m.pageHandler.ListPage)
	pages.GET("/projects/rows", m.pageHandler.Rows)
	pages.POST("/projects/filters", m.pageHandler.Filters)
	pages.POST("/projects/query", m.pageHandler.Query)
	pages.POST("/projects/page/:dir", m.pageHandler.Page)
	pages.POST("/projects/selection", m.pageHandler.Select)
	pages.POST("/projects/columns", m.pageHandler.MoveColumn)
	pages.POST("/projects/refresh", m.pageHandler.Refresh)
	pages.POST("/projects/notices/:nid/dismiss", m.pageHandler.DismissNotice)
	pages.DELETE("/projects/:id", m.pageHandler.Delete)
	pages.GET("/projects/:id/detail", m.pageHandler.Detail)

	if m.streamHandler != nil {
		pages.GET("/ws/projects", m.streamHandler.Serve)
	}
}
