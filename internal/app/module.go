package app

import "github.com/gin-gonic/gin"

// Module is a feature package mounted on the router. JSON endpoints go on
// api (under /api/v1); htmx pages and their form posts go on pages, which
// carries the CSRF check.
type Module interface {
	RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup)
}
