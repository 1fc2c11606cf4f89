package collection

import (
	"fmt"
	"strings"
)

// Record is an item listed by a view.
type Record interface {
	// RecordID is stable across pages and refetches.
	RecordID() string
	// SearchText is what free-text search matches against.
	SearchText() string
}

// Mode selects how active facet predicates combine.
type Mode int

const (
	// ModeOr keeps a record when any active facet matches. Results are
	// grouped by the first facet (in declaration order) that matched.
	ModeOr Mode = iota
	// ModeAnd keeps a record only when every active facet matches.
	ModeAnd
)

func (m Mode) String() string {
	if m == ModeAnd {
		return "and"
	}
	return "or"
}

// ParseMode parses "or" or "and".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "or":
		return ModeOr, nil
	case "and":
		return ModeAnd, nil
	}
	return ModeOr, fmt.Errorf("collection: unknown composition mode %q", s)
}

// Predicate reports whether a record is kept.
type Predicate[R Record] func(r R) bool

// Matcher evaluates a facet against the facet's current value.
type Matcher[R Record] func(r R, value any) bool

// NamedPredicate is a facet predicate bound to its current value.
type NamedPredicate[R Record] struct {
	Name  string
	Match Predicate[R]
}

// Predicates maps facet fields to matchers.
type Predicates[R Record] struct {
	schema   *Schema
	matchers map[string]Matcher[R]
}

// NewPredicates returns an empty predicate set for schema.
func NewPredicates[R Record](schema *Schema) *Predicates[R] {
	return &Predicates[R]{schema: schema, matchers: make(map[string]Matcher[R])}
}

// Register attaches a matcher to a declared, non-query field.
func (p *Predicates[R]) Register(name string, m Matcher[R]) error {
	if _, ok := p.schema.Field(name); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	if name == p.schema.QueryField() {
		return fmt.Errorf("collection: %q is the query field and matches by search", name)
	}
	if m == nil {
		return fmt.Errorf("collection: nil matcher for %q", name)
	}
	p.matchers[name] = m
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (p *Predicates[R]) MustRegister(name string, m Matcher[R]) *Predicates[R] {
	if err := p.Register(name, m); err != nil {
		panic(err)
	}
	return p
}

// Build binds the matchers of active facets to their values, in declaration
// order. With localOnly set, server-evaluated facets are skipped.
func (p *Predicates[R]) Build(state FilterState, localOnly bool) []NamedPredicate[R] {
	var out []NamedPredicate[R]
	for _, name := range state.Active() {
		field, _ := p.schema.Field(name)
		if localOnly && !field.Local {
			continue
		}
		m, ok := p.matchers[name]
		if !ok {
			continue
		}
		value := state.Value(name)
		out = append(out, NamedPredicate[R]{
			Name:  name,
			Match: func(r R) bool { return m(r, value) },
		})
	}
	return out
}

// Apply filters records by the state's facets and query. With localOnly set
// only Local facets are evaluated, and the query only when the query field
// is itself Local; the server already applied the rest.
func (p *Predicates[R]) Apply(records []R, state FilterState, mode Mode, localOnly bool) []R {
	facets := p.Build(state, localOnly)
	var query Predicate[R]
	if qf, ok := p.schema.Field(p.schema.QueryField()); ok && (!localOnly || qf.Local) {
		query = QueryPredicate[R](state.Query())
	}
	return Compose(records, facets, query, mode)
}

// Compose applies facets under mode and then ANDs query on top.
//
// With no active facet and no query the input is returned unchanged. In
// ModeOr the output concatenates, for each facet in order, the records it
// matches that no earlier facet already claimed; each record appears once.
func Compose[R Record](records []R, facets []NamedPredicate[R], query Predicate[R], mode Mode) []R {
	if len(facets) == 0 && query == nil {
		return records
	}
	base := records
	if len(facets) > 0 {
		if mode == ModeAnd {
			base = filterAll(records, facets)
		} else {
			base = filterAny(records, facets)
		}
	}
	if query == nil {
		return base
	}
	out := make([]R, 0, len(base))
	for _, r := range base {
		if query(r) {
			out = append(out, r)
		}
	}
	return out
}

func filterAll[R Record](records []R, facets []NamedPredicate[R]) []R {
	out := make([]R, 0, len(records))
next:
	for _, r := range records {
		for _, f := range facets {
			if !f.Match(r) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}

func filterAny[R Record](records []R, facets []NamedPredicate[R]) []R {
	out := make([]R, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, f := range facets {
		for _, r := range records {
			id := r.RecordID()
			if _, dup := seen[id]; dup {
				continue
			}
			if f.Match(r) {
				seen[id] = struct{}{}
				out = append(out, r)
			}
		}
	}
	return out
}
