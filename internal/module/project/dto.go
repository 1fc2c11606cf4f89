package project

import (
	"github.com/mei-chen/beagle-sub000/internal/collection"
	"github.com/mei-chen/beagle-sub000/internal/projects"
)

// FiltersRequest is a partial filter update. Nil fields keep their current
// value; Reset starts from the defaults before applying the rest.
type FiltersRequest struct {
	Query   *string  `json:"q" form:"q" binding:"omitempty,max=200"`
	Owned   *bool    `json:"owned" form:"owned"`
	Invited *bool    `json:"invited" form:"invited"`
	Tags    []string `json:"tags" form:"tags" binding:"omitempty,max=20,dive,max=64"`
	Ready   *bool    `json:"ready" form:"ready"`
	Failed  *bool    `json:"failed" form:"failed"`
	Stale   *bool    `json:"stale" form:"stale"`
	Reset   bool     `json:"reset" form:"reset"`
}

// Apply returns cur with the request applied.
func (r FiltersRequest) Apply(cur collection.FilterState) (collection.FilterState, error) {
	next := cur
	if r.Reset {
		next = cur.Reset()
	}
	set := func(name string, v any) error {
		var err error
		next, err = next.With(name, v)
		return err
	}
	for name, v := range map[string]*bool{
		projects.FieldOwned:   r.Owned,
		projects.FieldInvited: r.Invited,
		projects.FieldReady:   r.Ready,
		projects.FieldFailed:  r.Failed,
		projects.FieldStale:   r.Stale,
	} {
		if v == nil {
			continue
		}
		if err := set(name, *v); err != nil {
			return cur, err
		}
	}
	if r.Query != nil {
		if err := set(projects.FieldQuery, *r.Query); err != nil {
			return cur, err
		}
	}
	if r.Tags != nil {
		if err := set(projects.FieldTags, r.Tags); err != nil {
			return cur, err
		}
	}
	return next, nil
}

// QueryRequest is one keystroke's worth of search box input.
type QueryRequest struct {
	Q string `json:"q" form:"q" binding:"max=200"`
}

// PageRequest moves the view. Page is read only for goto.
type PageRequest struct {
	Action string `json:"action" form:"action" binding:"required,oneof=next prev goto"`
	Page   int    `json:"page" form:"page" binding:"min=0"`
}

// SelectionRequest changes the selection.
type SelectionRequest struct {
	Action string `json:"action" form:"action" binding:"required,oneof=toggle visible matching clear"`
	ID     string `json:"id" form:"id" binding:"required_if=Action toggle,max=64"`
}

// ColumnMoveRequest moves the column at From to To.
type ColumnMoveRequest struct {
	From int `json:"from" form:"from" binding:"min=0"`
	To   int `json:"to" form:"to" binding:"min=0"`
}

// NavResponse reports what a navigation did.
type NavResponse struct {
	Result string    `json:"result"`
	View   *PageView `json:"view"`
}
