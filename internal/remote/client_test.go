package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/mei-chen/beagle-sub000/internal/collection"
	"github.com/mei-chen/beagle-sub000/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testFilters(t *testing.T) collection.FilterState {
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
	return s.Defaults()
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{BaseURL: srv.URL + "/api/v1", Token: "secret", HTTPClient: srv.Client()}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	for _, base := range []string{"", "not a url", "/relative"} {
		if _, err := NewClient(Options{BaseURL: base}, nil); err == nil {
			t.Errorf("NewClient(%q) should fail", base)
		}
	}
}

func TestListProjects(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"objects": [{"id": 1, "title": "Lease"}, {"id": "2", "title": "NDA"}],
			"meta": {
				"pagination": {"page": 1, "page_count": 3, "object_count": 45, "next_page": 2, "prev_page": 0},
				"search": {"query": "lea"}
			}
		}`))
	})

	filters := testFilters(t)
	filters, _ = filters.With("q", "lea")
	filters, _ = filters.With("tags", []string{"nda", "msa"})
	filters, _ = filters.With("ready", true)

	res, err := c.ListProjects(context.Background(), collection.PageRequest{Filters: filters, Page: 1, PerPage: 15})
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}

	if got.URL.Path != "/api/v1/projects" {
		t.Errorf("path = %q", got.URL.Path)
	}
	if auth := got.Header.Get("Authorization"); auth != "Token secret" {
		t.Errorf("Authorization = %q", auth)
	}
	wantQuery := url.Values{
		"q":      {"lea"},
		"owned":  {"true"},
		"tags[]": {"msa", "nda"},
		"page":   {"1"},
		"rpp":    {"15"},
	}
	if diff := cmp.Diff(wantQuery, got.URL.Query()); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}

	if len(res.Records) != 2 || res.Records[0].ID != "1" || res.Records[1].Title != "NDA" {
		t.Errorf("records = %+v", res.Records)
	}
	if res.Meta.Page != 1 || res.Meta.PageCount != 3 || res.Meta.TotalCount != 45 {
		t.Errorf("meta = %+v", res.Meta)
	}
	if res.Meta.NextPage == nil || *res.Meta.NextPage != 2 || res.Meta.PrevPage == nil || *res.Meta.PrevPage != 0 {
		t.Errorf("next/prev = %v/%v", res.Meta.NextPage, res.Meta.PrevPage)
	}
}

func TestListProjects_LastPageHasNoNext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"objects": [], "meta": {"pagination": {"page": 0, "page_count": 1, "object_count": 0, "next_page": null, "prev_page": null}}}`))
	})

	res, err := c.Fetcher().FetchPage(context.Background(), collection.PageRequest{Filters: testFilters(t)})
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if res.Meta.NextPage != nil || res.Meta.PrevPage != nil {
		t.Errorf("next/prev should be nil, got %v/%v", res.Meta.NextPage, res.Meta.PrevPage)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		check   func(error) bool
		message string
	}{
		{http.StatusNotFound, ``, domain.IsNotFound, "record no longer exists"},
		{http.StatusConflict, `{"message": "project is being processed"}`, domain.IsConflict, "project is being processed"},
		{http.StatusUnprocessableEntity, `{"detail": "locked"}`, domain.IsConflict, "locked"},
		{http.StatusBadRequest, `{"error": "bad tag"}`, domain.IsValidation, "bad tag"},
		{http.StatusInternalServerError, `oops`, domain.IsInternal, "remote service error"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := c.DeleteProject(context.Background(), "9")
			if !tt.check(err) {
				t.Fatalf("error = %v; wrong classification", err)
			}
			var appErr *domain.AppError
			if !asAppError(err, &appErr) {
				t.Fatalf("error %v is not an AppError", err)
			}
			if appErr.Message != tt.message {
				t.Errorf("message = %q; want %q", appErr.Message, tt.message)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := NewClient(Options{BaseURL: base}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.Ping(context.Background()); !domain.IsTransport(err) {
		t.Errorf("Ping() error = %v; want transport", err)
	}
	c.http.CloseIdleConnections()
}

func TestGetProjectAndMutator(t *testing.T) {
	var deleted string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"id": 5, "title": "MSA", "description": "master agreement",
				"documents": [{"id": 10, "title": "msa.pdf", "status": "ready"}],
				"collaborators": [{"username": "ana"}]}`))
		case http.MethodDelete:
			deleted = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	d, err := c.GetProject(ctx, "5")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if d.ID != "5" || d.Description != "master agreement" || len(d.Documents) != 1 || d.Documents[0].ID != "10" {
		t.Errorf("detail = %+v", d)
	}

	if err := c.Mutator().Delete(ctx, "5"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted != "/api/v1/projects/5" {
		t.Errorf("deleted path = %q", deleted)
	}
}

func asAppError(err error, target **domain.AppError) bool {
	return errors.As(err, target)
}
