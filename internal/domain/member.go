package domain

import (
	"fmt"
	"strings"
	"time"
)

// Member is the person performing daily check-ins.
type Member struct {
	ID          string
	Name        string
	Email       string
	PushToken   string
	CheckInTime string // "HH:MM" local time of day
	Timezone    string // IANA name, e.g. America/New_York
	Active      bool
	// LastCheckInAt is the UTC instant of the most recent confirmed
	// check-in; nil for members who have never checked in.
	LastCheckInAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (m *Member) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: member is required", ErrValidation)
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: member name is required", ErrValidation)
	}
	if strings.TrimSpace(m.CheckInTime) == "" {
		return fmt.Errorf("%w: check-in time is required", ErrValidation)
	}
	if strings.TrimSpace(m.Timezone) == "" {
		return fmt.Errorf("%w: timezone is required", ErrValidation)
	}
	return nil
}

// Contact monitors a Member and receives alerts about them.
type Contact struct {
	ID        string
	MemberID  string
	Name      string
	Email     string
	PushToken string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Contact) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: contact is required", ErrValidation)
	}
	if strings.TrimSpace(c.MemberID) == "" {
		return fmt.Errorf("%w: contact member id is required", ErrValidation)
	}
	if strings.TrimSpace(c.Email) == "" && strings.TrimSpace(c.PushToken) == "" {
		return fmt.Errorf("%w: contact needs an email address or a push token", ErrValidation)
	}
	return nil
}
