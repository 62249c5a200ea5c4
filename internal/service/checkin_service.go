// Package service holds the engine's application flows above the repositories
// and below the HTTP handlers.
package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vigilhq/checkin-engine/internal/deadline"
	"github.com/vigilhq/checkin-engine/internal/domain"
	"github.com/vigilhq/checkin-engine/internal/observability"
	"github.com/vigilhq/checkin-engine/internal/repository"
	"go.uber.org/zap"
)

const defaultGracePeriod = 5 * time.Minute

// Dispatcher routes events to notification channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, event domain.Event) (*domain.DeliveryAttempt, error)
	DispatchAll(ctx context.Context, events []domain.Event) []*domain.DeliveryAttempt
}

// CheckInResult describes one registered check-in.
type CheckInResult struct {
	MemberID    string
	CheckedInAt time.Time
	DeadlineUTC time.Time
	WasLate     bool
	MinutesLate int
}

// DeadlineStatus is the countdown view of a member's next check-in.
type DeadlineStatus struct {
	MemberID        string
	CheckInTime     string
	Timezone        string
	NextDeadlineUTC time.Time
	IsLateToday     bool
	MinutesLate     int
}

// CheckInService registers member check-ins and drives the resulting
// notifications: a confirmation to the member, late alerts to contacts.
type CheckInService struct {
	members    repository.MemberRepository
	contacts   repository.ContactRepository
	dispatcher Dispatcher
	logger     *zap.Logger
	grace      time.Duration
	now        func() time.Time
}

func NewCheckInService(
	members repository.MemberRepository,
	contacts repository.ContactRepository,
	dispatcher Dispatcher,
	grace time.Duration,
	logger *zap.Logger,
) (*CheckInService, error) {
	if members == nil {
		return nil, fmt.Errorf("member repository is required")
	}
	if contacts == nil {
		return nil, fmt.Errorf("contact repository is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if grace < 0 {
		grace = defaultGracePeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CheckInService{
		members:    members,
		contacts:   contacts,
		dispatcher: dispatcher,
		logger:     logger,
		grace:      grace,
		now:        time.Now,
	}, nil
}

// CheckIn registers the member's check-in for today and triggers the
// follow-up notifications. Notification failures never fail the check-in
// itself; the member's safety signal is recorded first.
func (s *CheckInService) CheckIn(ctx context.Context, memberID string) (*CheckInResult, error) {
	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	logger := observability.WithContextLogger(s.logger, ctx)

	result := &CheckInResult{
		MemberID:    member.ID,
		CheckedInAt: now.UTC(),
	}

	computed, err := deadline.Compute(member.CheckInTime, member.Timezone, now)
	if err != nil {
		// A broken schedule must not block the check-in; record it and
		// treat the member as on time.
		logger.Warn("failed to compute check-in deadline",
			zap.String("memberId", member.ID),
			zap.Error(err),
		)
	} else {
		result.DeadlineUTC = computed.DeadlineUTC
		if computed.IsLate && time.Duration(computed.MinutesLate)*time.Minute >= s.grace {
			result.WasLate = true
			result.MinutesLate = computed.MinutesLate
		}
	}

	if err := s.members.UpdateLastCheckIn(ctx, member.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record check-in: %w", err)
	}

	s.notifyCheckIn(ctx, logger, member, result)
	return result, nil
}

// Deadline returns the member's next check-in occurrence alongside today's
// lateness state.
func (s *CheckInService) Deadline(ctx context.Context, memberID string) (*DeadlineStatus, error) {
	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next, err := deadline.NextOccurrence(member.CheckInTime, member.Timezone, now)
	if err != nil {
		return nil, err
	}
	computed, err := deadline.Compute(member.CheckInTime, member.Timezone, now)
	if err != nil {
		return nil, err
	}

	return &DeadlineStatus{
		MemberID:        member.ID,
		CheckInTime:     member.CheckInTime,
		Timezone:        member.Timezone,
		NextDeadlineUTC: next,
		IsLateToday:     computed.IsLate,
		MinutesLate:     computed.MinutesLate,
	}, nil
}

func (s *CheckInService) notifyCheckIn(ctx context.Context, logger *zap.Logger, member *domain.Member, result *CheckInResult) {
	confirmation := domain.Event{
		Type:           domain.EventCheckInConfirmation,
		RecipientID:    member.ID,
		RecipientEmail: member.Email,
		Data: map[string]string{
			"memberName":     member.Name,
			"memberTimezone": member.Timezone,
		},
	}
	if _, err := s.dispatcher.Dispatch(ctx, confirmation); err != nil {
		logger.Error("failed to dispatch check-in confirmation",
			zap.String("memberId", member.ID),
			zap.Error(err),
		)
	}

	if !result.WasLate {
		return
	}

	contacts, err := s.contacts.ListByMemberID(ctx, member.ID)
	if err != nil {
		logger.Error("failed to list contacts for late check-in alert",
			zap.String("memberId", member.ID),
			zap.Error(err),
		)
		return
	}

	events := make([]domain.Event, 0, len(contacts))
	for i := range contacts {
		contact := contacts[i]
		events = append(events, domain.Event{
			Type:           domain.EventLateCheckIn,
			RecipientID:    contact.ID,
			RecipientEmail: contact.Email,
			Data: map[string]string{
				"memberId":       member.ID,
				"memberName":     member.Name,
				"minutesLate":    strconv.Itoa(result.MinutesLate),
				"memberTimezone": member.Timezone,
			},
		})
	}
	s.dispatcher.DispatchAll(ctx, events)
}
