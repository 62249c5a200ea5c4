package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vigilhq/checkin-engine/internal/domain"
	"gorm.io/gorm"
)

// GormPushTokenSource resolves a recipient ID to a device push token.
// Recipients may be members or emergency contacts, so both tables are
// consulted; contacts first because fan-out recipients dominate push volume.
type GormPushTokenSource struct {
	db *gorm.DB
}

func NewGormPushTokenSource(db *gorm.DB) *GormPushTokenSource {
	return &GormPushTokenSource{db: db}
}

func (s *GormPushTokenSource) PushToken(ctx context.Context, recipientID string) (string, error) {
	var contact ContactModel
	err := s.db.WithContext(ctx).First(&contact, "id = ?", recipientID).Error
	if err == nil {
		return nonEmptyToken(contact.PushToken, recipientID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	var member MemberModel
	err = s.db.WithContext(ctx).First(&member, "id = ?", recipientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: recipient %s", domain.ErrNotFound, recipientID)
	}
	if err != nil {
		return "", err
	}

	return nonEmptyToken(member.PushToken, recipientID)
}

func nonEmptyToken(token string, recipientID string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: recipient %s has no push token", domain.ErrNotFound, recipientID)
	}
	return token, nil
}
