package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mei-chen/beagle-sub000/internal/pkg"
)

const (
	csrfCookieName = "beagle_csrf"
	csrfFormField  = "_csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfContextKey = "CSRFToken"
)

// CSRF protects the page routes. Tokens are hex(nonce) + "." +
// base64url(HMAC-SHA256(nonce, secret)).
//
// Safe methods issue a token cookie when none is valid and expose the token to
// templates through GetCSRFToken. Unsafe methods must echo the cookie in the
// _csrf_token form field or the X-CSRF-Token header; htmx sends the header
// from the hx-headers attribute on <body>.
func CSRF(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return func(c *gin.Context) {
			rejectCSRF(c, http.StatusInternalServerError, "csrf secret is required")
		}
	}

	secure := gin.Mode() == gin.ReleaseMode
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			token, err := c.Cookie(csrfCookieName)
			if err != nil || !validToken(token, secret) {
				token, err = generateToken(secret)
				if err != nil {
					rejectCSRF(c, http.StatusInternalServerError, "failed to generate CSRF token")
					return
				}
				setCSRFCookie(c, token, secure)
			}
			c.Set(csrfContextKey, token)
			c.Next()
			return
		}

		cookieToken, err := c.Cookie(csrfCookieName)
		if err != nil || cookieToken == "" {
			rejectCSRF(c, http.StatusForbidden, "CSRF token missing")
			return
		}
		requestToken := c.GetHeader(csrfHeaderName)
		if requestToken == "" {
			requestToken = c.PostForm(csrfFormField)
		}
		if requestToken == "" {
			rejectCSRF(c, http.StatusForbidden, "CSRF token missing")
			return
		}
		if !validToken(cookieToken, secret) || subtle.ConstantTimeCompare([]byte(cookieToken), []byte(requestToken)) != 1 {
			rejectCSRF(c, http.StatusForbidden, "CSRF token invalid")
			return
		}
		c.Set(csrfContextKey, cookieToken)
		c.Next()
	}
}

// GetCSRFToken returns the token CSRF stored for this request, or "".
func GetCSRFToken(c *gin.Context) string {
	return c.GetString(csrfContextKey)
}

func rejectCSRF(c *gin.Context, status int, msg string) {
	if pkg.IsHTMX(c) {
		pkg.KeepTarget(c)
		pkg.Toast(c, "Your session expired, reload the page", pkg.ToastError)
		c.AbortWithStatus(status)
		return
	}
	c.AbortWithStatusJSON(status, pkg.Response{Code: status, Message: msg})
}

func generateToken(secret string) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	n := hex.EncodeToString(nonce)
	return n + "." + signNonce(n, secret), nil
}

func signNonce(nonce, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func validToken(token, secret string) bool {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" || sig == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sig), []byte(signNonce(nonce, secret))) == 1
}

func setCSRFCookie(c *gin.Context, token string, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}
