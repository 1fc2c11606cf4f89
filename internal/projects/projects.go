// Package projects defines the projects collection: its filter schema,
// status facets, variant rendering table and notification reactions.
package projects

import (
	"errors"
	"log/slog"
	"time"

	"github.com/mei-chen/beagle-sub000/internal/collection"
	"github.com/mei-chen/beagle-sub000/internal/domain"
	"github.com/mei-chen/beagle-sub000/internal/eventbus"
)

// Filter keys.
const (
	FieldQuery   = "q"
	FieldOwned   = "owned"
	FieldInvited = "invited"
	FieldTags    = "tags"
	FieldReady   = "ready"
	FieldFailed  = "failed"
	FieldStale   = "stale"
)

// ViewName keys stored preferences.
const ViewName = "projects"

// DefaultColumns is the column order before the user rearranges it.
var DefaultColumns = []string{"title", "owner", "tags", "status", "created"}

// Notification types the projects view reacts to, and the row flags they set.
const (
	NotifExportReady      = "export_ready"
	NotifProcessingDone   = "processing_done"
	NotifProcessingFailed = "processing_failed"

	FlagExportReady = "export_ready"
	FlagProcessed   = "processed"
	FlagFailed      = "failed"
)

// NewSchema returns the projects filter schema. owned, invited, tags and the
// query are sent to the server; the status facets filter the loaded page.
func NewSchema() *collection.Schema {
	s, err := collection.NewSchema(FieldQuery,
		collection.Field{Name: FieldQuery, Type: collection.TypeString},
		collection.Field{Name: FieldOwned, Type: collection.TypeBool, Default: true},
		collection.Field{Name: FieldInvited, Type: collection.TypeBool, Default: true},
		collection.Field{Name: FieldTags, Type: collection.TypeList},
		collection.Field{Name: FieldReady, Type: collection.TypeBool, Local: true},
		collection.Field{Name: FieldFailed, Type: collection.TypeBool, Local: true},
		collection.Field{Name: FieldStale, Type: collection.TypeBool, Local: true},
	)
	if err != nil {
		panic(err)
	}
	return s
}

// Classifier computes a project's status variant.
type Classifier struct {
	Timeout time.Duration
	Now     func() time.Time
}

// Variant classifies p.
func (c Classifier) Variant(p domain.Project) collection.Variant {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return collection.Classify(p.Meta.Processed, p.Meta.Failed, p.Meta.StartedAt, now(), c.Timeout)
}

// NewPredicates registers the status facets. Each facet, when on, keeps the
// projects in its variant.
func NewPredicates(schema *collection.Schema, c Classifier) *collection.Predicates[domain.Project] {
	facet := func(want collection.Variant) collection.Matcher[domain.Project] {
		return func(p domain.Project, v any) bool {
			on, _ := v.(bool)
			return !on || c.Variant(p) == want
		}
	}
	return collection.NewPredicates[domain.Project](schema).
		MustRegister(FieldReady, facet(collection.VariantReady)).
		MustRegister(FieldFailed, facet(collection.VariantFailed)).
		MustRegister(FieldStale, facet(collection.VariantTimedOut))
}

// Reactions maps notifications to in-place row updates.
func Reactions() map[string]collection.Reaction {
	flag := func(name string) collection.Reaction {
		return func(a *collection.Annotation, _ eventbus.Event) { a.SetFlag(name) }
	}
	return map[string]collection.Reaction{
		NotifExportReady:      flag(FlagExportReady),
		NotifProcessingDone:   flag(FlagProcessed),
		NotifProcessingFailed: flag(FlagFailed),
	}
}

// Describe renders an error for users: the AppError message without the
// wrapped cause.
func Describe(err error) string {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// Options are the tunables of a projects view.
type Options struct {
	Mode              collection.Mode
	PerPage           int
	Debounce          time.Duration
	MinQueryLength    int
	ProcessingTimeout time.Duration
	Clock             collection.Clock
	Now               func() time.Time
}

// ViewConfig assembles the collection wiring for a projects view.
func ViewConfig(
	schema *collection.Schema,
	opts Options,
	fetcher collection.Fetcher[domain.Project],
	mutator collection.Mutator,
	bus *eventbus.Bus,
	log *slog.Logger,
) collection.ViewConfig[domain.Project] {
	return collection.ViewConfig[domain.Project]{
		Schema:         schema,
		Predicates:     NewPredicates(schema, Classifier{Timeout: opts.ProcessingTimeout, Now: opts.Now}),
		Fetcher:        fetcher,
		Mutator:        mutator,
		Mode:           opts.Mode,
		PerPage:        opts.PerPage,
		Debounce:       opts.Debounce,
		MinQueryLength: opts.MinQueryLength,
		Clock:          opts.Clock,
		Bus:            bus,
		Reactions:      Reactions(),
		RowScoped:      domain.IsRowScoped,
		Describe:       Describe,
		Columns:        DefaultColumns,
		Logger:         log,
	}
}
