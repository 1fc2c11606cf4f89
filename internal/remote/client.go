// Package remote talks to the contract-analysis REST API and its
// notification socket.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mei-chen/beagle-sub000/internal/collection"
	"github.com/mei-chen/beagle-sub000/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	defaultUA      = "beagle-bff"
	defaultPerPage = 20
	maxErrorBody   = 2048
)

// Options configures the Client.
type Options struct {
	BaseURL   string
	Token     string
	UserAgent string
	Timeout   time.Duration
	PerPage   int

	// HTTPClient overrides the default client; tests inject httptest clients.
	HTTPClient *http.Client
}

// Client is a minimal REST client for the projects endpoints.
type Client struct {
	http *http.Client
	base *url.URL
	opts Options
	log  *slog.Logger
	now  func() time.Time
}

// NewClient validates o and returns a Client.
func NewClient(o Options, log *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(o.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remote: invalid base url %q", o.BaseURL)
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.PerPage <= 0 {
		o.PerPage = defaultPerPage
	}
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: o.Timeout}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		http: hc,
		base: base,
		opts: o,
		log:  log.With("component", "remote"),
		now:  time.Now,
	}, nil
}

// PerPage is the default page size.
func (c *Client) PerPage() int {
	return c.opts.PerPage
}

// pagination is the meta.pagination block of list responses.
type pagination struct {
	Page        int  `json:"page"`
	PageCount   int  `json:"page_count"`
	ObjectCount int  `json:"object_count"`
	NextPage    *int `json:"next_page"`
	PrevPage    *int `json:"prev_page"`
}

type listResponse struct {
	Objects []domain.Project `json:"objects"`
	Meta    struct {
		Pagination pagination `json:"pagination"`
		Search     struct {
			Query string `json:"query"`
		} `json:"search"`
	} `json:"meta"`
}

// ListProjects fetches one page of projects for the request's filters.
func (c *Client) ListProjects(ctx context.Context, req collection.PageRequest) (collection.PageResult[domain.Project], error) {
	q := listParams(req)
	if req.PerPage <= 0 {
		q.Set("rpp", strconv.Itoa(c.opts.PerPage))
	}

	var body listResponse
	if err := c.doJSON(ctx, http.MethodGet, "/projects", q, &body); err != nil {
		return collection.PageResult[domain.Project]{}, err
	}

	p := body.Meta.Pagination
	return collection.PageResult[domain.Project]{
		Records: body.Objects,
		Meta: collection.PageMeta{
			Page:       p.Page,
			PageCount:  p.PageCount,
			TotalCount: p.ObjectCount,
			NextPage:   p.NextPage,
			PrevPage:   p.PrevPage,
		},
	}, nil
}

// GetProject fetches the detail of one project.
func (c *Client) GetProject(ctx context.Context, id string) (domain.ProjectDetail, error) {
	var detail domain.ProjectDetail
	err := c.doJSON(ctx, http.MethodGet, "/projects/"+url.PathEscape(id), nil, &detail)
	return detail, err
}

// DeleteProject deletes one project.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/projects/"+url.PathEscape(id), nil, nil)
}

// Ping checks that the API answers at all.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{"page": {"0"}, "rpp": {"1"}}
	return c.doJSON(ctx, http.MethodGet, "/projects", q, nil)
}

// Fetcher adapts ListProjects to the collection port.
func (c *Client) Fetcher() collection.Fetcher[domain.Project] {
	return collection.FetchFunc[domain.Project](c.ListProjects)
}

// Mutator adapts DeleteProject to the collection port.
func (c *Client) Mutator() collection.Mutator {
	return collection.MutateFunc(c.DeleteProject)
}

// listParams renders the filters as the API expects them: list fields use
// the bracketed name (tags[]=a&tags[]=b).
func listParams(req collection.PageRequest) url.Values {
	q := url.Values{}
	if schema := req.Filters.Schema(); schema != nil {
		for key, vals := range req.Filters.ServerParams() {
			if f, ok := schema.Field(key); ok && f.Type == collection.TypeList {
				key += "[]"
			}
			q[key] = vals
		}
	}
	q.Set("page", strconv.Itoa(req.Page))
	if req.PerPage > 0 {
		q.Set("rpp", strconv.Itoa(req.PerPage))
	}
	return q
}

func (c *Client) doJSON(ctx context.Context, method, path string, q url.Values, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return domain.NewAppError(domain.CodeInternal, "build remote request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Token "+c.opts.Token)
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return domain.NewAppError(domain.CodeTransport, "remote service unreachable", err)
	}
	defer resp.Body.Close()

	c.log.DebugContext(ctx, "remote http response",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"latency", c.now().Sub(start),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewAppError(domain.CodeInternal, "decode remote response", err)
	}
	return nil
}

// statusError maps an error status to the domain taxonomy, keeping the
// server's message when it sent one.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := serverMessage(raw)

	var code int
	switch resp.StatusCode {
	case http.StatusNotFound:
		code = domain.CodeNotFound
		if msg == "" {
			msg = "record no longer exists"
		}
	case http.StatusConflict, http.StatusUnprocessableEntity:
		code = domain.CodeConflict
		if msg == "" {
			msg = "record cannot be changed in its current state"
		}
	case http.StatusBadRequest:
		code = domain.CodeValidation
		if msg == "" {
			msg = "request rejected"
		}
	default:
		code = domain.CodeInternal
		if msg == "" {
			msg = "remote service error"
		}
	}
	return domain.NewAppError(code, msg, fmt.Errorf("remote status %d", resp.StatusCode))
}

func serverMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	for _, s := range []string{body.Message, body.Error, body.Detail} {
		if s != "" {
			return s
		}
	}
	return ""
}
