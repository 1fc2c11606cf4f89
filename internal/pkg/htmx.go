package pkg

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"
)

// Toast kinds understood by web/static/app.js.
const (
	ToastSuccess = "success"
	ToastError   = "error"
	ToastInfo    = "info"
)

// IsHTMX reports whether the request was issued by htmx.
func IsHTMX(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("HX-Request"), "true")
}

// Toast asks the page to show a toast through an HX-Trigger showToast event.
// Further events already queued on the response are preserved.
func Toast(c *gin.Context, message, kind string) {
	Trigger(c, "showToast", map[string]string{"message": message, "type": kind})
}

// Trigger adds a client event to HX-Trigger.
func Trigger(c *gin.Context, event string, detail any) {
	events := map[string]any{}
	if prev := c.Writer.Header().Get("HX-Trigger"); prev != "" {
		_ = json.Unmarshal([]byte(prev), &events)
	}
	events[event] = detail
	b, _ := json.Marshal(events)
	c.Header("HX-Trigger", string(b))
}

// KeepTarget tells htmx not to swap the response into the target.
func KeepTarget(c *gin.Context) {
	c.Header("HX-Reswap", "none")
}

// PushURL replaces the browser location with url, used to keep the
// address bar in step with the committed filters.
func PushURL(c *gin.Context, url string) {
	c.Header("HX-Replace-Url", url)
}
