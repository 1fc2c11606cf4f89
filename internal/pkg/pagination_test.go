package pkg

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mei-chen/beagle-sub000/internal/collection"
)

func testSchema(t *testing.T) *collection.Schema {
	t.Helper()
	s, err := collection.NewSchema("q",
		collection.Field{Name: "q", Type: collection.TypeString},
		collection.Field{Name: "owned", Type: collection.TypeBool, Default: true},
		collection.Field{Name: "tags", Type: collection.TypeList},
		collection.Field{Name: "ready", Type: collection.TypeBool, Local: true},
	)
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func queryContext(rawQuery string) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/projects?"+rawQuery, nil)
	return c
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 0},
		{"page=3", 3},
		{"page=-1", 0},
		{"page=abc", 0},
		{"page=%202", 2},
	}
	for _, tt := range tests {
		if got := ParsePage(queryContext(tt.query)); got != tt.want {
			t.Errorf("ParsePage(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestParseFilters(t *testing.T) {
	schema := testSchema(t)

	state, ok := ParseFilters(queryContext("q=lease&owned=false&tags[]=b&tags[]=a&ready=1&page=2&wait=1"), schema)
	if !ok {
		t.Fatal("filters should be reported present")
	}
	if state.Query() != "lease" || state.Bool("owned") || !state.Bool("ready") {
		t.Errorf("state = %v", state.Encode())
	}
	if got := strings.Join(state.List("tags"), ","); got != "a,b" {
		t.Errorf("tags = %q, want a,b", got)
	}
	if _, leaked := state.Extra()["page"]; leaked {
		t.Error("page must not be carried as a filter")
	}

	state, ok = ParseFilters(queryContext("page=4"), schema)
	if ok {
		t.Error("page alone should not count as filters")
	}
	if !state.Equal(schema.Defaults()) {
		t.Errorf("state = %v, want defaults", state.Encode())
	}
}

func formContext(form url.Values) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/projects/filters", strings.NewReader(form.Encode()))
	c.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c
}

func TestMergeFormFilters_CheckboxBeforeHidden(t *testing.T) {
	schema := testSchema(t)
	form := url.Values{"_csrf_token": {"x"}, "q": {"nda"}, "owned": {"false"}}

	state := MergeFormFilters(formContext(form), schema.Defaults())
	if state.Bool("owned") {
		t.Error("unchecked box carrying only the hidden false value should decode to false")
	}
	if state.Query() != "nda" {
		t.Errorf("query = %q", state.Query())
	}
	if len(state.Extra()) != 0 {
		t.Errorf("extras = %v, want none", state.Extra())
	}
}

func TestMergeFormFilters_KeepsFieldsOutsideTheForm(t *testing.T) {
	schema := testSchema(t)
	cur, _ := DecodeFilters(url.Values{"q": {"lease"}, "tags": {"nda"}, "team": {"legal"}}, schema)

	state := MergeFormFilters(formContext(url.Values{"owned": {"false"}, "ready": {"true", "false"}}), cur)
	if state.Query() != "lease" {
		t.Errorf("query = %q, want lease kept", state.Query())
	}
	if got := strings.Join(state.List("tags"), ","); got != "nda" {
		t.Errorf("tags = %q, want nda kept", got)
	}
	if state.Extra()["team"] != "legal" {
		t.Errorf("extras = %v, want team kept", state.Extra())
	}
	if state.Bool("owned") || !state.Bool("ready") {
		t.Errorf("state = %v, want owned off and ready on", state.Encode())
	}
	if cur.Bool("ready") {
		t.Error("merge must not modify the current state")
	}
}

func TestWantsWait(t *testing.T) {
	if !WantsWait(queryContext("wait=1")) || !WantsWait(queryContext("wait=TRUE")) {
		t.Error("wait=1 and wait=TRUE should wait")
	}
	if WantsWait(queryContext("")) || WantsWait(queryContext("wait=0")) {
		t.Error("missing or zero wait should not wait")
	}
}
