package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/simp-lee/logger"
)

const (
	sessionCookieName = "beagle_session"
	// SessionHeader lets non-browser clients such as the terminal browser
	// pin their view session without cookies.
	SessionHeader     = "X-View-Session"
	sessionContextKey = "view_session"
)

// ViewSession identifies the caller's collection views across requests.
// A valid X-View-Session header wins over the cookie; when neither is valid a
// new id is minted and set as a cookie.
func ViewSession() gin.HandlerFunc {
	secure := gin.Mode() == gin.ReleaseMode
	return func(c *gin.Context) {
		id, fromHeader := "", false
		if h := c.GetHeader(SessionHeader); validSessionID(h) {
			id, fromHeader = h, true
		} else if ck, err := c.Cookie(sessionCookieName); err == nil && validSessionID(ck) {
			id = ck
		}
		if id == "" {
			id = uuid.NewString()
		}
		if !fromHeader {
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     sessionCookieName,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		c.Set(sessionContextKey, id)
		c.Header(SessionHeader, id)
		ctx := logger.WithContextAttrs(c.Request.Context(), slog.String("session", id))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetViewSession returns the session id set by ViewSession, or "".
func GetViewSession(c *gin.Context) string {
	return c.GetString(sessionContextKey)
}

func validSessionID(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
