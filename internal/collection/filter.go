// Package collection implements a paginated, filtered and cached view over a
// remote record collection: filter state, predicate composition, the page
// cache and controller, and the view state machine that ties them together.
package collection

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// FieldType is the value type of a filter field.
type FieldType int

const (
	TypeString FieldType = iota
	TypeBool
	TypeList
)

func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeList:
		return "list"
	default:
		return "unknown"
	}
}

var (
	ErrUnknownFilter = errors.New("collection: unknown filter")
	ErrInvalidValue  = errors.New("collection: invalid filter value")
)

// Field declares one filter key.
type Field struct {
	Name    string
	Type    FieldType
	Default any
	// Local fields are evaluated over the loaded page only. They never reach
	// the server and never take part in the QueryKey.
	Local bool
}

// Schema is the ordered set of filter fields a view understands.
// Declaration order is the order predicates are composed in.
type Schema struct {
	fields []Field
	index  map[string]int
	query  string
}

// NewSchema validates fields and returns a schema. query names the free-text
// search field; it must be a string field, or empty when the view has none.
func NewSchema(query string, fields ...Field) (*Schema, error) {
	s := &Schema{index: make(map[string]int, len(fields)), query: query}
	for _, f := range fields {
		if f.Name == "" {
			return nil, errors.New("collection: field name must not be empty")
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("collection: duplicate field %q", f.Name)
		}
		def, err := coerce(f.Type, f.Default)
		if err != nil {
			return nil, fmt.Errorf("collection: default of %q: %w", f.Name, err)
		}
		f.Default = def
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	if query != "" {
		f, ok := s.Field(query)
		if !ok {
			return nil, fmt.Errorf("collection: query field %q is not declared", query)
		}
		if f.Type != TypeString {
			return nil, fmt.Errorf("collection: query field %q must be a string", query)
		}
	}
	return s, nil
}

// Fields returns the declared fields in order.
func (s *Schema) Fields() []Field {
	return slices.Clone(s.fields)
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// QueryField is the name of the free-text search field, or "".
func (s *Schema) QueryField() string {
	return s.query
}

// Defaults returns a FilterState holding every field's default.
func (s *Schema) Defaults() FilterState {
	values := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		values[f.Name] = f.Default
	}
	return FilterState{schema: s, values: values}
}

// Decode builds a FilterState from URL parameters. Declared fields are
// coerced to their type; a value that cannot be coerced leaves the default
// in place. Undeclared keys are carried through as strings. Keys named in
// skip (for example the page number) are ignored.
func (s *Schema) Decode(params url.Values, skip ...string) FilterState {
	return s.Defaults().Merge(params, skip...)
}

// Merge returns f with the fields present in params decoded over it. Fields
// absent from params keep their value; values that fail to coerce are
// ignored.
func (f FilterState) Merge(params url.Values, skip ...string) FilterState {
	st := f.clone()
	for key, vals := range params {
		if slices.Contains(skip, key) || len(vals) == 0 {
			continue
		}
		name := strings.TrimSuffix(key, "[]")
		field, ok := f.schema.Field(name)
		if !ok {
			if st.extra == nil {
				st.extra = make(map[string]string)
			}
			st.extra[key] = vals[0]
			continue
		}
		var raw any = vals[0]
		if field.Type == TypeList {
			raw = vals
		}
		v, err := coerce(field.Type, raw)
		if err != nil {
			continue
		}
		st.values[name] = v
	}
	return st
}

// FilterState maps every schema field to its current value. It is a value
// type: With and Reset return modified copies.
type FilterState struct {
	schema *Schema
	values map[string]any
	extra  map[string]string
}

// Schema returns the schema this state belongs to.
func (f FilterState) Schema() *Schema {
	return f.schema
}

// Value returns the current value of name, or nil when undeclared.
func (f FilterState) Value(name string) any {
	return f.values[name]
}

func (f FilterState) String(name string) string {
	s, _ := f.values[name].(string)
	return s
}

func (f FilterState) Bool(name string) bool {
	b, _ := f.values[name].(bool)
	return b
}

func (f FilterState) List(name string) []string {
	l, _ := f.values[name].([]string)
	return slices.Clone(l)
}

// Query is the free-text search value.
func (f FilterState) Query() string {
	if f.schema == nil || f.schema.query == "" {
		return ""
	}
	return f.String(f.schema.query)
}

// Extra returns the undeclared keys carried through from decoding.
func (f FilterState) Extra() map[string]string {
	out := make(map[string]string, len(f.extra))
	for k, v := range f.extra {
		out[k] = v
	}
	return out
}

// With returns a copy of f with name set to value.
func (f FilterState) With(name string, value any) (FilterState, error) {
	if f.schema == nil {
		return f, fmt.Errorf("%w: %q (no schema)", ErrUnknownFilter, name)
	}
	field, ok := f.schema.Field(name)
	if !ok {
		return f, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	v, err := coerce(field.Type, value)
	if err != nil {
		return f, fmt.Errorf("filter %q: %w", name, err)
	}
	next := f.clone()
	next.values[name] = v
	return next, nil
}

// Reset returns the schema defaults, dropping passthrough keys.
func (f FilterState) Reset() FilterState {
	return f.schema.Defaults()
}

// IsActive reports whether name holds a non-default value.
func (f FilterState) IsActive(name string) bool {
	field, ok := f.schema.Field(name)
	if !ok {
		return false
	}
	return !equalValues(field.Type, f.values[name], field.Default)
}

// Active lists the non-default facet fields (the query field excluded) in
// declaration order.
func (f FilterState) Active() []string {
	var out []string
	for _, field := range f.schema.fields {
		if field.Name == f.schema.query {
			continue
		}
		if !equalValues(field.Type, f.values[field.Name], field.Default) {
			out = append(out, field.Name)
		}
	}
	return out
}

// Dirty reports whether any key differs from its default.
func (f FilterState) Dirty() bool {
	if len(f.extra) > 0 {
		return true
	}
	for _, field := range f.schema.fields {
		if !equalValues(field.Type, f.values[field.Name], field.Default) {
			return true
		}
	}
	return false
}

// Equal reports whether both states hold the same values.
func (f FilterState) Equal(o FilterState) bool {
	if f.schema != o.schema || len(f.extra) != len(o.extra) {
		return false
	}
	for k, v := range f.extra {
		if ov, ok := o.extra[k]; !ok || ov != v {
			return false
		}
	}
	for _, field := range f.schema.fields {
		if !equalValues(field.Type, f.values[field.Name], o.values[field.Name]) {
			return false
		}
	}
	return true
}

// Encode renders only non-default values, plus passthrough keys, so a deep
// link stays short. Decode(Encode()) restores an equal state.
func (f FilterState) Encode() url.Values {
	out := url.Values{}
	for _, field := range f.schema.fields {
		v := f.values[field.Name]
		if equalValues(field.Type, v, field.Default) {
			continue
		}
		setParam(out, field, v, true)
	}
	for k, v := range f.extra {
		out.Set(k, v)
	}
	return out
}

// ServerParams renders every server-relevant field, defaults included, plus
// passthrough keys. Local fields are omitted.
func (f FilterState) ServerParams() url.Values {
	out := url.Values{}
	for _, field := range f.schema.fields {
		if field.Local {
			continue
		}
		setParam(out, field, f.values[field.Name], false)
	}
	for k, v := range f.extra {
		out.Set(k, v)
	}
	return out
}

func (f FilterState) clone() FilterState {
	next := FilterState{schema: f.schema, values: make(map[string]any, len(f.values))}
	for k, v := range f.values {
		next.values[k] = v
	}
	if len(f.extra) > 0 {
		next.extra = make(map[string]string, len(f.extra))
		for k, v := range f.extra {
			next.extra[k] = v
		}
	}
	return next
}

func setParam(out url.Values, field Field, v any, forceEmpty bool) {
	switch field.Type {
	case TypeString:
		s, _ := v.(string)
		if s != "" || forceEmpty {
			out.Set(field.Name, s)
		}
	case TypeBool:
		b, _ := v.(bool)
		out.Set(field.Name, strconv.FormatBool(b))
	case TypeList:
		l, _ := v.([]string)
		if len(l) == 0 && forceEmpty {
			// Distinguishes "explicitly empty" from "default" in a deep link.
			out[field.Name] = []string{""}
			return
		}
		for _, item := range l {
			out.Add(field.Name, item)
		}
	}
}

// coerce converts raw into the canonical Go type of t. Lists are sorted and
// de-duplicated so equal selections compare and key equally.
func coerce(t FieldType, raw any) (any, error) {
	switch t {
	case TypeString:
		switch v := raw.(type) {
		case nil:
			return "", nil
		case string:
			return v, nil
		case []string:
			if len(v) == 0 {
				return "", nil
			}
			return v[0], nil
		}
	case TypeBool:
		switch v := raw.(type) {
		case nil:
			return false, nil
		case bool:
			return v, nil
		case string:
			return parseBool(v)
		case []string:
			if len(v) == 0 {
				return false, nil
			}
			return parseBool(v[0])
		}
	case TypeList:
		switch v := raw.(type) {
		case nil:
			return []string(nil), nil
		case string:
			return normalizeList(strings.Split(v, ",")), nil
		case []string:
			return normalizeList(v), nil
		case []any:
			items := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("%w: list item %v", ErrInvalidValue, item)
				}
				items = append(items, s)
			}
			return normalizeList(items), nil
		}
	}
	return nil, fmt.Errorf("%w: %T for %s field", ErrInvalidValue, raw, t)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		return true, nil
	case "0", "false", "off", "no", "":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, s)
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func equalValues(t FieldType, a, b any) bool {
	switch t {
	case TypeList:
		la, _ := a.([]string)
		lb, _ := b.([]string)
		return slices.Equal(la, lb)
	default:
		return a == b
	}
}
