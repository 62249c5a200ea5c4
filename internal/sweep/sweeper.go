// Package sweep periodically scans active members for missed check-ins and
// fans alert events out to their emergency contacts.
package sweep

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/vigilhq/checkin-engine/internal/deadline"
	"github.com/vigilhq/checkin-engine/internal/domain"
	"github.com/vigilhq/checkin-engine/internal/observability"
	"go.uber.org/zap"
)

const (
	defaultScanInterval = time.Minute
	defaultGracePeriod  = 5 * time.Minute
)

// MemberSource lists the members subject to sweeping.
type MemberSource interface {
	ListActive(ctx context.Context) ([]domain.Member, error)
}

// ContactSource lists a member's emergency contacts.
type ContactSource interface {
	ListByMemberID(ctx context.Context, memberID string) ([]domain.Contact, error)
}

// Dispatcher fans events out to recipients.
type Dispatcher interface {
	DispatchAll(ctx context.Context, events []domain.Event) []*domain.DeliveryAttempt
}

// Sweeper periodically flags members past their check-in deadline. Dedup at
// the dispatch layer keeps repeated scans of the same late member from
// re-alerting contacts within the same member-local day.
type Sweeper struct {
	members    MemberSource
	contacts   ContactSource
	dispatcher Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	interval   time.Duration
	grace      time.Duration
	now        func() time.Time
}

func NewSweeper(
	members MemberSource,
	contacts ContactSource,
	dispatcher Dispatcher,
	interval time.Duration,
	grace time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Sweeper, error) {
	if members == nil {
		return nil, fmt.Errorf("member source is required")
	}
	if contacts == nil {
		return nil, fmt.Errorf("contact source is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if interval <= 0 {
		interval = defaultScanInterval
	}
	if grace < 0 {
		grace = defaultGracePeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweeper{
		members:    members,
		contacts:   contacts,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		interval:   interval,
		grace:      grace,
		now:        time.Now,
	}, nil
}

func (s *Sweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.Scan(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("sweep initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Scan(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("sweep scan failed", zap.Error(err))
			}
		}
	}
}

// Scan walks all active members once. A per-member failure is logged and the
// scan continues; one member's bad timezone must not hide another's overdue
// check-in.
func (s *Sweeper) Scan(ctx context.Context) error {
	ctx = observability.WithCorrelationID(ctx, "sweep-"+uuid.NewString())
	logger := observability.WithContextLogger(s.logger, ctx)

	members, err := s.members.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active members: %w", err)
	}

	now := s.now()
	for i := range members {
		member := members[i]
		if err := s.scanMember(ctx, logger, &member, now); err != nil {
			logger.Error("failed to sweep member",
				zap.String("memberId", member.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

func (s *Sweeper) scanMember(ctx context.Context, logger *zap.Logger, member *domain.Member, now time.Time) error {
	computed, err := deadline.Compute(member.CheckInTime, member.Timezone, now)
	if err != nil {
		return err
	}
	if !computed.IsLate || time.Duration(computed.MinutesLate)*time.Minute < s.grace {
		return nil
	}
	if checkedInToday(member, now) {
		return nil
	}

	contacts, err := s.contacts.ListByMemberID(ctx, member.ID)
	if err != nil {
		return fmt.Errorf("failed to list contacts: %w", err)
	}
	if len(contacts) == 0 {
		logger.Warn("late member has no emergency contacts",
			zap.String("memberId", member.ID),
		)
		return nil
	}

	s.metrics.IncSweepMemberFlagged()
	logger.Info("member past check-in deadline",
		zap.String("memberId", member.ID),
		zap.Int("minutesLate", computed.MinutesLate),
		zap.Int("contacts", len(contacts)),
	)

	events := MissedCheckInEvents(member, contacts, computed.MinutesLate)
	attempts := s.dispatcher.DispatchAll(ctx, events)

	delivered := 0
	for _, attempt := range attempts {
		if attempt.Delivered() {
			delivered++
		}
	}
	logger.Info("missed check-in fan-out finished",
		zap.String("memberId", member.ID),
		zap.Int("events", len(events)),
		zap.Int("delivered", delivered),
	)

	return nil
}

// MissedCheckInEvents builds one alert event per emergency contact. The
// member's timezone rides along in the payload so dedup anchors its day
// window to the member's civil day, not the server's.
func MissedCheckInEvents(member *domain.Member, contacts []domain.Contact, minutesLate int) []domain.Event {
	events := make([]domain.Event, 0, len(contacts))
	for i := range contacts {
		contact := contacts[i]
		events = append(events, domain.Event{
			Type:           domain.EventMissedCheckIn,
			RecipientID:    contact.ID,
			RecipientEmail: contact.Email,
			Data: map[string]string{
				"memberId":       member.ID,
				"memberName":     member.Name,
				"minutesLate":    strconv.Itoa(minutesLate),
				"memberTimezone": member.Timezone,
			},
		})
	}
	return events
}

// checkedInToday reports whether the member already checked in during the
// current civil day in their own timezone.
func checkedInToday(member *domain.Member, now time.Time) bool {
	if member.LastCheckInAt == nil {
		return false
	}

	loc, err := time.LoadLocation(member.Timezone)
	if err != nil {
		loc = time.UTC
	}

	return member.LastCheckInAt.In(loc).Format(time.DateOnly) == now.In(loc).Format(time.DateOnly)
}
