package repository

import (
	"time"

	"github.com/vigilhq/checkin-engine/internal/domain"
)

// MemberModel is the persistence model for the members table.
type MemberModel struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	Name          string `gorm:"type:varchar(255);not null"`
	Email         string `gorm:"type:varchar(255);not null"`
	PushToken     string `gorm:"type:text"`
	CheckInTime   string `gorm:"type:varchar(5);not null"`
	Timezone      string `gorm:"type:varchar(64);not null"`
	Active        bool   `gorm:"not null;default:true"`
	LastCheckInAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (MemberModel) TableName() string {
	return "members"
}

// ContactModel is the persistence model for the emergency_contacts table.
type ContactModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	MemberID  string `gorm:"type:uuid;not null;index"`
	Name      string `gorm:"type:varchar(255);not null"`
	Email     string `gorm:"type:varchar(255)"`
	PushToken string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ContactModel) TableName() string {
	return "emergency_contacts"
}

// PreferenceModel is the persistence model for notification_preferences.
// One row per recipient; absence means defaults apply.
type PreferenceModel struct {
	RecipientID  string `gorm:"type:uuid;primaryKey"`
	PushEnabled  bool   `gorm:"not null;default:true"`
	EmailEnabled bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (PreferenceModel) TableName() string {
	return "notification_preferences"
}

// DeliveryAttemptModel is the persistence model for the delivery_attempts
// append-only log.
type DeliveryAttemptModel struct {
	ID                  string           `gorm:"type:uuid;primaryKey"`
	EventType           domain.EventType `gorm:"type:varchar(40);not null;index"`
	RecipientID         string           `gorm:"type:uuid;not null;index"`
	Tier                domain.Tier      `gorm:"type:varchar(10);not null"`
	DedupKey            string           `gorm:"type:varchar(255);not null"`
	Suppressed          bool             `gorm:"not null;default:false"`
	PushAttempted       bool             `gorm:"not null;default:false"`
	PushSucceeded       bool             `gorm:"not null;default:false"`
	PushError           *string          `gorm:"type:text"`
	EmailAttempted      bool             `gorm:"not null;default:false"`
	EmailSucceeded      bool             `gorm:"not null;default:false"`
	EmailError          *string          `gorm:"type:text"`
	OverrodePreferences bool             `gorm:"not null;default:false"`
	CreatedAt           time.Time        `gorm:"index"`
	CompletedAt         time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

func memberModelToDomain(m *MemberModel) *domain.Member {
	if m == nil {
		return nil
	}

	return &domain.Member{
		ID:            m.ID,
		Name:          m.Name,
		Email:         m.Email,
		PushToken:     m.PushToken,
		CheckInTime:   m.CheckInTime,
		Timezone:      m.Timezone,
		Active:        m.Active,
		LastCheckInAt: m.LastCheckInAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func memberModelFromDomain(m *domain.Member) *MemberModel {
	if m == nil {
		return nil
	}

	return &MemberModel{
		ID:            m.ID,
		Name:          m.Name,
		Email:         m.Email,
		PushToken:     m.PushToken,
		CheckInTime:   m.CheckInTime,
		Timezone:      m.Timezone,
		Active:        m.Active,
		LastCheckInAt: m.LastCheckInAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func contactModelToDomain(m *ContactModel) *domain.Contact {
	if m == nil {
		return nil
	}

	return &domain.Contact{
		ID:        m.ID,
		MemberID:  m.MemberID,
		Name:      m.Name,
		Email:     m.Email,
		PushToken: m.PushToken,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func contactModelFromDomain(c *domain.Contact) *ContactModel {
	if c == nil {
		return nil
	}

	return &ContactModel{
		ID:        c.ID,
		MemberID:  c.MemberID,
		Name:      c.Name,
		Email:     c.Email,
		PushToken: c.PushToken,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:                  a.ID,
		EventType:           a.EventType,
		RecipientID:         a.RecipientID,
		Tier:                a.Tier,
		DedupKey:            a.DedupKey,
		Suppressed:          a.Suppressed,
		PushAttempted:       a.PushAttempted,
		PushSucceeded:       a.PushSucceeded,
		PushError:           a.PushError,
		EmailAttempted:      a.EmailAttempted,
		EmailSucceeded:      a.EmailSucceeded,
		EmailError:          a.EmailError,
		OverrodePreferences: a.OverrodePreferences,
		CreatedAt:           a.CreatedAt,
		CompletedAt:         a.CompletedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:                  m.ID,
		EventType:           m.EventType,
		RecipientID:         m.RecipientID,
		Tier:                m.Tier,
		DedupKey:            m.DedupKey,
		Suppressed:          m.Suppressed,
		PushAttempted:       m.PushAttempted,
		PushSucceeded:       m.PushSucceeded,
		PushError:           m.PushError,
		EmailAttempted:      m.EmailAttempted,
		EmailSucceeded:      m.EmailSucceeded,
		EmailError:          m.EmailError,
		OverrodePreferences: m.OverrodePreferences,
		CreatedAt:           m.CreatedAt,
		CompletedAt:         m.CompletedAt,
	}
}
