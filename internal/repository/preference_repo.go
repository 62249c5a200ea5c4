package repository

import (
	"context"
	"errors"

	"github.com/vigilhq/checkin-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PreferenceRepository stores per-recipient channel opt-in state. Get
// satisfies the preference resolver's store contract: a recipient with no row
// yields domain.ErrNotFound and the resolver falls back to defaults.
type PreferenceRepository interface {
	Get(ctx context.Context, recipientID string) (domain.Preferences, error)
	Upsert(ctx context.Context, recipientID string, p domain.Preferences) error
}

type GormPreferenceRepo struct {
	db *gorm.DB
}

func NewGormPreferenceRepo(db *gorm.DB) *GormPreferenceRepo {
	return &GormPreferenceRepo{db: db}
}

func (r *GormPreferenceRepo) Get(ctx context.Context, recipientID string) (domain.Preferences, error) {
	var model PreferenceModel
	err := r.db.WithContext(ctx).First(&model, "recipient_id = ?", recipientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Preferences{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Preferences{}, err
	}

	return domain.Preferences{
		PushEnabled:  model.PushEnabled,
		EmailEnabled: model.EmailEnabled,
	}, nil
}

func (r *GormPreferenceRepo) Upsert(ctx context.Context, recipientID string, p domain.Preferences) error {
	model := PreferenceModel{
		RecipientID:  recipientID,
		PushEnabled:  p.PushEnabled,
		EmailEnabled: p.EmailEnabled,
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "recipient_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"push_enabled", "email_enabled", "updated_at"}),
		}).
		Create(&model).Error
}
