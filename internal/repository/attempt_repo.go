package repository

import (
	"context"
	"time"

	"github.com/vigilhq/checkin-engine/internal/domain"
	"gorm.io/gorm"
)

type AttemptListParams struct {
	EventType   *domain.EventType
	RecipientID *string
	Tier        *domain.Tier
	From        *time.Time
	To          *time.Time
	Page        int
	PageSize    int
}

// AttemptRepository is the append-only delivery log. Rows are never updated
// or deleted; Append also backs the dispatcher's log sink.
type AttemptRepository interface {
	Append(ctx context.Context, a *domain.DeliveryAttempt) error
	List(ctx context.Context, params AttemptListParams) ([]domain.DeliveryAttempt, int64, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Append(ctx context.Context, a *domain.DeliveryAttempt) error {
	model := attemptModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if a != nil {
		*a = *attemptModelToDomain(model)
	}
	return nil
}

func (r *GormAttemptRepo) List(ctx context.Context, params AttemptListParams) ([]domain.DeliveryAttempt, int64, error) {
	query := r.db.WithContext(ctx).Model(&DeliveryAttemptModel{})

	if params.EventType != nil {
		query = query.Where("event_type = ?", *params.EventType)
	}
	if params.RecipientID != nil {
		query = query.Where("recipient_id = ?", *params.RecipientID)
	}
	if params.Tier != nil {
		query = query.Where("tier = ?", *params.Tier)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []DeliveryAttemptModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	attempts := make([]domain.DeliveryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, total, nil
}
