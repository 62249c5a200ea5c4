package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vigilhq/checkin-engine/internal/domain"
	"gorm.io/gorm"
)

type MemberRepository interface {
	Create(ctx context.Context, m *domain.Member) error
	GetByID(ctx context.Context, id string) (*domain.Member, error)
	ListActive(ctx context.Context) ([]domain.Member, error)
	UpdateLastCheckIn(ctx context.Context, id string, checkedInAt time.Time) error
}

type GormMemberRepo struct {
	db *gorm.DB
}

func NewGormMemberRepo(db *gorm.DB) *GormMemberRepo {
	return &GormMemberRepo{db: db}
}

func (r *GormMemberRepo) Create(ctx context.Context, m *domain.Member) error {
	model := memberModelFromDomain(m)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if m != nil {
		*m = *memberModelToDomain(model)
	}
	return nil
}

func (r *GormMemberRepo) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	var model MemberModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return memberModelToDomain(&model), nil
}

func (r *GormMemberRepo) ListActive(ctx context.Context) ([]domain.Member, error) {
	var models []MemberModel
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	members := make([]domain.Member, 0, len(models))
	for i := range models {
		members = append(members, *memberModelToDomain(&models[i]))
	}

	return members, nil
}

func (r *GormMemberRepo) UpdateLastCheckIn(ctx context.Context, id string, checkedInAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&MemberModel{}).
		Where("id = ?", id).
		Update("last_check_in_at", checkedInAt.UTC())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
