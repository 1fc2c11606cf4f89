package project

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mei-chen/beagle-sub000/internal/domain"
	"github.com/mei-chen/beagle-sub000/internal/pkg"
)

// preferenceRepository implements domain.PreferenceRepository using GORM.
type preferenceRepository struct {
	db *gorm.DB
}

// NewPreferenceRepository returns a repository backed by db.
func NewPreferenceRepository(db *gorm.DB) domain.PreferenceRepository {
	return &preferenceRepository{db: db}
}

// Get returns the preference of owner for view, or domain.ErrNotFound.
func (r *preferenceRepository) Get(ctx context.Context, owner, view string) (*domain.ViewPreference, error) {
	var pref domain.ViewPreference
	err := r.db.WithContext(ctx).
		Where("owner = ? AND view_name = ?", owner, view).
		First(&pref).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &pref, nil
}

// Save upserts pref on (owner, view).
func (r *preferenceRepository) Save(ctx context.Context, pref *domain.ViewPreference) error {
	if pref.Owner == "" || pref.View == "" {
		return domain.NewAppError(domain.CodeValidation, "preference owner and view are required", nil)
	}
	return pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner"}, {Name: "view_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"filters", "columns", "updated_at"}),
		}).Create(pref).Error
		return mapError(err)
	})
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return domain.NewAppError(domain.CodeInternal, "database error", err)
}
