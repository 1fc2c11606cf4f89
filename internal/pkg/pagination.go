package pkg

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mei-chen/beagle-sub000/internal/collection"
)

// Query parameters that steer the view rather than filter it.
const (
	ParamPage = "page"
	ParamWait = "wait"
	ParamMode = "mode"
)

var reservedParams = []string{ParamPage, ParamWait, ParamMode, "_csrf_token"}

// ParsePage reads the zero-based page index. Missing, malformed or negative
// values mean the first page.
func ParsePage(c *gin.Context) int {
	return pageFrom(c.Query(ParamPage))
}

func pageFrom(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ParseFilters decodes the request query into a filter state of schema.
// Reserved view parameters are skipped. ok is false when the request carried
// no filter parameter at all, which lets callers fall back to a saved state.
func ParseFilters(c *gin.Context, schema *collection.Schema) (state collection.FilterState, ok bool) {
	return DecodeFilters(c.Request.URL.Query(), schema)
}

// MergeFormFilters decodes a submitted filter form over cur. Fields the form
// does not carry, such as a search box outside it, keep their current value.
func MergeFormFilters(c *gin.Context, cur collection.FilterState) collection.FilterState {
	_ = c.Request.ParseForm()
	return cur.Merge(c.Request.PostForm, reservedParams...)
}

// DecodeFilters is the gin-free core of ParseFilters.
func DecodeFilters(values url.Values, schema *collection.Schema) (collection.FilterState, bool) {
	present := false
	for key := range values {
		if !isReserved(key) {
			present = true
			break
		}
	}
	return schema.Decode(values, reservedParams...), present
}

// WantsWait reports whether the caller asked to block until the view settles.
func WantsWait(c *gin.Context) bool {
	switch strings.ToLower(c.Query(ParamWait)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func isReserved(key string) bool {
	for _, r := range reservedParams {
		if key == r {
			return true
		}
	}
	return false
}
