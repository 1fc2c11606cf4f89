package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

const testCSRFSecret = "test-secret-key-for-csrf"

func csrfRouter() *gin.Engine {
	r := gin.New()
	r.Use(CSRF(testCSRFSecret))
	r.GET("/projects", func(c *gin.Context) { c.String(http.StatusOK, GetCSRFToken(c)) })
	r.POST("/projects/filters", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.DELETE("/projects/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func issueToken(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := serve(r, httptest.NewRequest(http.MethodGet, "/projects", nil))
	ck := cookieNamed(w, csrfCookieName)
	if ck == nil {
		t.Fatal("csrf cookie not issued")
	}
	if ck.Value != w.Body.String() {
		t.Fatalf("cookie %q != context token %q", ck.Value, w.Body.String())
	}
	if ck.HttpOnly || ck.SameSite != http.SameSiteStrictMode {
		t.Errorf("cookie attributes = %+v", ck)
	}
	return ck.Value
}

func TestCSRF_IssuesSignedToken(t *testing.T) {
	token := issueToken(t, csrfRouter())
	if !validToken(token, testCSRFSecret) {
		t.Error("issued token does not verify")
	}
	if validToken(token, "another-secret") {
		t.Error("token verifies under a different secret")
	}
}

func TestCSRF_ReusesValidCookie(t *testing.T) {
	r := csrfRouter()
	token := issueToken(t, r)

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: token})
	w := serve(r, req)
	if w.Body.String() != token || cookieNamed(w, csrfCookieName) != nil {
		t.Error("valid cookie should be reused without reissuing")
	}
}

func TestCSRF_UnsafeMethods(t *testing.T) {
	r := csrfRouter()
	token := issueToken(t, r)
	other, _ := generateToken(testCSRFSecret)

	formReq := func(value string) *http.Request {
		body := url.Values{csrfFormField: {value}, "q": {"lease"}}.Encode()
		req := httptest.NewRequest(http.MethodPost, "/projects/filters", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: token})
		return req
	}
	headerReq := func(value string) *http.Request {
		req := httptest.NewRequest(http.MethodDelete, "/projects/7", nil)
		req.Header.Set(csrfHeaderName, value)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: token})
		return req
	}

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"form field", formReq(token), http.StatusOK},
		{"header", headerReq(token), http.StatusOK},
		{"mismatched token", headerReq(other), http.StatusForbidden},
		{"missing token", headerReq(""), http.StatusForbidden},
		{"missing cookie", httptest.NewRequest(http.MethodDelete, "/projects/7", nil), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := serve(r, tt.req); w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestCSRF_HTMXRejectionToasts(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/projects/7", nil)
	req.Header.Set("HX-Request", "true")

	w := serve(csrfRouter(), req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("HX-Trigger"), "showToast") || w.Header().Get("HX-Reswap") != "none" {
		t.Errorf("headers = %v", w.Header())
	}
}

func TestCSRF_EmptySecret(t *testing.T) {
	r := gin.New()
	r.Use(CSRF("  "))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil)); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestValidToken_Malformed(t *testing.T) {
	for _, tok := range []string{"", "abc", ".sig", "nonce.", "nonce.sig"} {
		if validToken(tok, testCSRFSecret) {
			t.Errorf("validToken(%q) = true", tok)
		}
	}
}
