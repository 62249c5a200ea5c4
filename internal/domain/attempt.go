package domain

import "time"

// DeliveryAttempt is the append-only audit record of one dispatch call.
// Created at dispatch start, mutated only by the orchestrator, persisted by
// the delivery log sink, never deleted.
type DeliveryAttempt struct {
	ID             string
	EventType      EventType
	RecipientID    string
	Tier           Tier
	DedupKey       string
	Suppressed     bool
	PushAttempted  bool
	PushSucceeded  bool
	PushError      *string
	EmailAttempted bool
	EmailSucceeded bool
	EmailError     *string
	// OverrodePreferences is set when a channel was forced despite the
	// recipient having opted out. Reserved for CRITICAL events.
	OverrodePreferences bool
	CreatedAt           time.Time
	CompletedAt         time.Time
}

// Delivered reports whether at least one channel succeeded.
func (a *DeliveryAttempt) Delivered() bool {
	if a == nil {
		return false
	}
	return a.PushSucceeded || a.EmailSucceeded
}
