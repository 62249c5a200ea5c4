package domain

import (
	"fmt"
	"strings"
)

// EventType identifies the semantic kind of a notification event.
type EventType string

const (
	EventMissedCheckIn       EventType = "MISSED_CHECK_IN"
	EventPaymentFailed       EventType = "PAYMENT_FAILED"
	EventAccountFrozen       EventType = "ACCOUNT_FROZEN"
	EventCheckInConfirmation EventType = "CHECK_IN_CONFIRMATION"
	EventLateCheckIn         EventType = "LATE_CHECK_IN"
	EventMemberConnected     EventType = "MEMBER_CONNECTED"
	EventCheckInReminder     EventType = "CHECK_IN_REMINDER"
	EventCheckInTimeChanged  EventType = "CHECK_IN_TIME_CHANGED"
	EventTrialReminder       EventType = "TRIAL_REMINDER"
	EventInvitationSent      EventType = "INVITATION_SENT"
	EventWeeklySummary       EventType = "WEEKLY_SUMMARY"
	EventFeatureAnnouncement EventType = "FEATURE_ANNOUNCEMENT"
)

func (t EventType) String() string { return string(t) }

func (t EventType) IsValid() bool {
	switch t {
	case EventMissedCheckIn, EventPaymentFailed, EventAccountFrozen,
		EventCheckInConfirmation, EventLateCheckIn, EventMemberConnected,
		EventCheckInReminder, EventCheckInTimeChanged, EventTrialReminder,
		EventInvitationSent, EventWeeklySummary, EventFeatureAnnouncement:
		return true
	}
	return false
}

func ParseEventTypeFromString(s string) (EventType, error) {
	t := EventType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid event type %q", ErrValidation, s)
	}
	return t, nil
}

// Event is the unit of work handed to the dispatcher. Producers build it
// fully formed; channel selection is not their concern.
type Event struct {
	Type           EventType
	RecipientID    string
	RecipientEmail string
	Title          string
	Body           string
	Data           map[string]string
	// DedupKey overrides the derived (type, recipient, day) key when set.
	DedupKey  string
	ActionURL string
}

func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: event is required", ErrValidation)
	}
	if strings.TrimSpace(string(e.Type)) == "" {
		return fmt.Errorf("%w: event type is required", ErrValidation)
	}
	if strings.TrimSpace(e.RecipientID) == "" {
		return fmt.Errorf("%w: recipient id is required", ErrValidation)
	}
	return nil
}

// DataValue returns a value from the opaque payload, or empty string.
func (e *Event) DataValue(key string) string {
	if e == nil || e.Data == nil {
		return ""
	}
	return e.Data[key]
}
