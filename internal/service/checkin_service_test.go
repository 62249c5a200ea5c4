package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vigilhq/checkin-engine/internal/domain"
)

type fakeMemberRepo struct {
	member        *domain.Member
	getErr        error
	updateErr     error
	lastCheckInID string
	lastCheckInAt time.Time
}

func (f *fakeMemberRepo) Create(ctx context.Context, m *domain.Member) error { return nil }

func (f *fakeMemberRepo) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	copied := *f.member
	return &copied, nil
}

func (f *fakeMemberRepo) ListActive(ctx context.Context) ([]domain.Member, error) {
	return nil, nil
}

func (f *fakeMemberRepo) UpdateLastCheckIn(ctx context.Context, id string, checkedInAt time.Time) error {
	f.lastCheckInID = id
	f.lastCheckInAt = checkedInAt
	return f.updateErr
}

type fakeContactRepo struct {
	contacts []domain.Contact
	err      error
}

func (f *fakeContactRepo) Create(ctx context.Context, c *domain.Contact) error { return nil }

func (f *fakeContactRepo) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeContactRepo) ListByMemberID(ctx context.Context, memberID string) ([]domain.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.contacts, nil
}

type captureDispatcher struct {
	mu     sync.Mutex
	single []domain.Event
	fanned []domain.Event
	err    error
}

func (d *captureDispatcher) Dispatch(ctx context.Context, event domain.Event) (*domain.DeliveryAttempt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.single = append(d.single, event)
	if d.err != nil {
		return nil, d.err
	}
	return &domain.DeliveryAttempt{EventType: event.Type, RecipientID: event.RecipientID, PushSucceeded: true}, nil
}

func (d *captureDispatcher) DispatchAll(ctx context.Context, events []domain.Event) []*domain.DeliveryAttempt {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fanned = append(d.fanned, events...)
	return nil
}

// 13:00 UTC is 09:00 in New York during EDT.
var checkInInstant = time.Date(2026, 6, 15, 13, 0, 0, 0, time.UTC)

func testMember() *domain.Member {
	return &domain.Member{
		ID:          "member-1",
		Name:        "Ada",
		Email:       "ada@example.com",
		CheckInTime: "08:00",
		Timezone:    "America/New_York",
		Active:      true,
	}
}

func newService(t *testing.T, members *fakeMemberRepo, contacts *fakeContactRepo, dispatcher *captureDispatcher) *CheckInService {
	t.Helper()

	s, err := NewCheckInService(members, contacts, dispatcher, 5*time.Minute, nil)
	if err != nil {
		t.Fatalf("NewCheckInService() error = %v", err)
	}
	s.now = func() time.Time { return checkInInstant }
	return s
}

func TestCheckInOnTime(t *testing.T) {
	t.Parallel()

	member := testMember()
	member.CheckInTime = "09:30" // not yet due at 09:00 local

	members := &fakeMemberRepo{member: member}
	dispatcher := &captureDispatcher{}
	s := newService(t, members, &fakeContactRepo{}, dispatcher)

	result, err := s.CheckIn(context.Background(), "member-1")
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}

	if result.WasLate {
		t.Fatal("check-in before the deadline must not be late")
	}
	if members.lastCheckInID != "member-1" {
		t.Fatal("expected last check-in to be recorded")
	}
	if len(dispatcher.single) != 1 || dispatcher.single[0].Type != domain.EventCheckInConfirmation {
		t.Fatalf("dispatched = %+v, want one confirmation", dispatcher.single)
	}
	if len(dispatcher.fanned) != 0 {
		t.Fatal("on-time check-in must not alert contacts")
	}
}

func TestCheckInLateAlertsContacts(t *testing.T) {
	t.Parallel()

	members := &fakeMemberRepo{member: testMember()} // 60 minutes late
	contacts := &fakeContactRepo{contacts: []domain.Contact{
		{ID: "contact-1", MemberID: "member-1", Email: "one@example.com"},
		{ID: "contact-2", MemberID: "member-1", Email: "two@example.com"},
	}}
	dispatcher := &captureDispatcher{}
	s := newService(t, members, contacts, dispatcher)

	result, err := s.CheckIn(context.Background(), "member-1")
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}

	if !result.WasLate || result.MinutesLate != 60 {
		t.Fatalf("result = %+v, want 60 minutes late", result)
	}
	if len(dispatcher.fanned) != 2 {
		t.Fatalf("fan-out events = %d, want 2", len(dispatcher.fanned))
	}
	for _, event := range dispatcher.fanned {
		if event.Type != domain.EventLateCheckIn {
			t.Fatalf("event type = %s, want LATE_CHECK_IN", event.Type)
		}
		if event.DataValue("minutesLate") != "60" {
			t.Fatalf("minutesLate = %q, want 60", event.DataValue("minutesLate"))
		}
	}
}

func TestCheckInWithinGraceIsOnTime(t *testing.T) {
	t.Parallel()

	member := testMember()
	member.CheckInTime = "08:57" // 3 minutes late, within the 5 minute grace

	members := &fakeMemberRepo{member: member}
	dispatcher := &captureDispatcher{}
	s := newService(t, members, &fakeContactRepo{}, dispatcher)

	result, err := s.CheckIn(context.Background(), "member-1")
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}

	if result.WasLate {
		t.Fatal("lateness within the grace period must not be reported")
	}
	if len(dispatcher.fanned) != 0 {
		t.Fatal("grace-period check-in must not alert contacts")
	}
}

func TestCheckInBrokenScheduleStillRegisters(t *testing.T) {
	t.Parallel()

	member := testMember()
	member.Timezone = "Not/A_Zone"

	members := &fakeMemberRepo{member: member}
	dispatcher := &captureDispatcher{}
	s := newService(t, members, &fakeContactRepo{}, dispatcher)

	result, err := s.CheckIn(context.Background(), "member-1")
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}

	if result.WasLate {
		t.Fatal("an uncomputable deadline must be treated as on time")
	}
	if members.lastCheckInID != "member-1" {
		t.Fatal("expected check-in to be recorded despite the broken schedule")
	}
}

func TestCheckInDispatchFailureDoesNotFailCheckIn(t *testing.T) {
	t.Parallel()

	members := &fakeMemberRepo{member: testMember()}
	dispatcher := &captureDispatcher{err: errors.New("no channels configured")}
	s := newService(t, members, &fakeContactRepo{}, dispatcher)

	if _, err := s.CheckIn(context.Background(), "member-1"); err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
}

func TestCheckInUnknownMember(t *testing.T) {
	t.Parallel()

	members := &fakeMemberRepo{member: testMember(), getErr: domain.ErrNotFound}
	s := newService(t, members, &fakeContactRepo{}, &captureDispatcher{})

	_, err := s.CheckIn(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("CheckIn() error = %v, want ErrNotFound", err)
	}
}

func TestDeadlineCountdownRollsForward(t *testing.T) {
	t.Parallel()

	members := &fakeMemberRepo{member: testMember()} // 08:00 NY already passed
	s := newService(t, members, &fakeContactRepo{}, &captureDispatcher{})

	status, err := s.Deadline(context.Background(), "member-1")
	if err != nil {
		t.Fatalf("Deadline() error = %v", err)
	}

	want := time.Date(2026, 6, 16, 12, 0, 0, 0, time.UTC) // tomorrow 08:00 EDT
	if !status.NextDeadlineUTC.Equal(want) {
		t.Fatalf("NextDeadlineUTC = %v, want %v", status.NextDeadlineUTC, want)
	}
	if !status.IsLateToday || status.MinutesLate != 60 {
		t.Fatalf("status = %+v, want late by 60 minutes", status)
	}
}

func TestDeadlineCountdownBeforeDeadline(t *testing.T) {
	t.Parallel()

	member := testMember()
	member.CheckInTime = "21:00"

	members := &fakeMemberRepo{member: member}
	s := newService(t, members, &fakeContactRepo{}, &captureDispatcher{})

	status, err := s.Deadline(context.Background(), "member-1")
	if err != nil {
		t.Fatalf("Deadline() error = %v", err)
	}

	want := time.Date(2026, 6, 16, 1, 0, 0, 0, time.UTC) // today 21:00 EDT
	if !status.NextDeadlineUTC.Equal(want) {
		t.Fatalf("NextDeadlineUTC = %v, want %v", status.NextDeadlineUTC, want)
	}
	if status.IsLateToday {
		t.Fatal("member should not be late before the deadline")
	}
}
