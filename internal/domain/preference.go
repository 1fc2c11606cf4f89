package domain

import (
	"context"
	"strings"
	"time"
)

// ViewPreference remembers the last committed filters and column order a
// view owner used, so a new view for the same owner starts where they left off.
type ViewPreference struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Owner     string    `gorm:"size:64;not null;uniqueIndex:idx_view_pref_owner_view" json:"owner"`
	View      string    `gorm:"column:view_name;size:64;not null;uniqueIndex:idx_view_pref_owner_view" json:"view"`
	Filters   string    `gorm:"size:2048" json:"filters"`
	Columns   string    `gorm:"size:512" json:"columns"`
}

// ColumnList splits the stored column order.
func (p *ViewPreference) ColumnList() []string {
	if p == nil || p.Columns == "" {
		return nil
	}
	return strings.Split(p.Columns, ",")
}

// SetColumns stores the column order.
func (p *ViewPreference) SetColumns(cols []string) {
	p.Columns = strings.Join(cols, ",")
}

// PreferenceRepository defines the data access interface for view preferences.
type PreferenceRepository interface {
	Get(ctx context.Context, owner, view string) (*ViewPreference, error)
	// Save inserts or updates the preference identified by (Owner, View).
	Save(ctx context.Context, pref *ViewPreference) error
}
