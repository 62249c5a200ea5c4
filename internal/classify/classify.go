// Package classify maps event types to priority tiers and renders canonical
// notification content.
package classify

import (
	"fmt"
	"strings"

	"github.com/vigilhq/checkin-engine/internal/domain"
)

// tierByType encodes the product's safety policy. CRITICAL events represent a
// plausible safety emergency or service interruption and must reach the
// recipient through every channel available; HIGH events are important
// confirmations where one successful channel is enough; NORMAL and LOW are
// engagement content that defers fully to user preference.
var tierByType = map[domain.EventType]domain.Tier{
	domain.EventMissedCheckIn: domain.TierCritical,
	domain.EventPaymentFailed: domain.TierCritical,
	domain.EventAccountFrozen: domain.TierCritical,

	domain.EventCheckInConfirmation: domain.TierHigh,
	domain.EventLateCheckIn:         domain.TierHigh,
	domain.EventMemberConnected:     domain.TierHigh,
	domain.EventCheckInTimeChanged:  domain.TierHigh,

	domain.EventCheckInReminder: domain.TierNormal,
	domain.EventTrialReminder:   domain.TierNormal,
	domain.EventInvitationSent:  domain.TierNormal,

	domain.EventWeeklySummary:       domain.TierLow,
	domain.EventFeatureAnnouncement: domain.TierLow,
}

// TierFor returns the fixed tier for an event type. The mapping is total:
// types without an explicit entry classify as NORMAL. It can never be
// overridden at the event level.
func TierFor(t domain.EventType) domain.Tier {
	if tier, ok := tierByType[t]; ok {
		return tier
	}
	return domain.TierNormal
}

// Render produces the canonical title and body for an event, interpolating
// fields from the opaque data payload. Producers may pre-render their own
// content; Render fills the gap when they do not.
func Render(e domain.Event) (title string, body string) {
	member := e.DataValue("memberName")
	if member == "" {
		member = "Your member"
	}

	switch e.Type {
	case domain.EventMissedCheckIn:
		title = fmt.Sprintf("%s missed their check-in", member)
		body = fmt.Sprintf("%s has not checked in by their scheduled time. Please reach out to make sure they are okay.", member)
		if late := e.DataValue("minutesLate"); late != "" {
			body = fmt.Sprintf("%s has not checked in and is %s minutes past their scheduled time. Please reach out to make sure they are okay.", member, late)
		}
	case domain.EventLateCheckIn:
		title = fmt.Sprintf("%s checked in late", member)
		minutes := e.DataValue("minutesLate")
		if minutes == "" {
			minutes = "a few"
		}
		body = fmt.Sprintf("%s checked in %s minutes after their scheduled time.", member, minutes)
	case domain.EventCheckInConfirmation:
		title = "Check-in confirmed"
		body = "Your check-in was recorded. Your contacts will not be alerted today."
	case domain.EventPaymentFailed:
		title = "Payment failed"
		body = "We could not process your payment. Update your billing details to keep safety alerts active."
	case domain.EventAccountFrozen:
		title = "Account frozen"
		body = "Your account has been frozen and check-in alerts are paused. Contact support to restore service."
	case domain.EventMemberConnected:
		title = fmt.Sprintf("You are now connected to %s", member)
		body = fmt.Sprintf("You will be alerted if %s misses a check-in.", member)
	case domain.EventCheckInTimeChanged:
		title = fmt.Sprintf("%s changed their check-in time", member)
		newTime := e.DataValue("checkInTime")
		if newTime == "" {
			body = fmt.Sprintf("%s updated their daily check-in schedule.", member)
		} else {
			body = fmt.Sprintf("%s will now check in daily at %s.", member, newTime)
		}
	case domain.EventCheckInReminder:
		title = "Time to check in"
		body = "Your daily check-in is due soon. Open the app to confirm you are okay."
	case domain.EventTrialReminder:
		title = "Your trial is ending"
		days := e.DataValue("daysRemaining")
		if days == "" {
			body = "Your trial is ending soon. Subscribe to keep your contacts protected."
		} else {
			body = fmt.Sprintf("Your trial ends in %s days. Subscribe to keep your contacts protected.", days)
		}
	case domain.EventInvitationSent:
		title = "Invitation sent"
		invitee := e.DataValue("inviteeEmail")
		if invitee == "" {
			body = "Your contact invitation is on its way."
		} else {
			body = fmt.Sprintf("Your invitation to %s is on its way.", invitee)
		}
	case domain.EventWeeklySummary:
		title = "Your weekly summary"
		body = fmt.Sprintf("Here is how %s's check-ins went this week.", member)
	case domain.EventFeatureAnnouncement:
		title = "What's new"
		body = "We shipped improvements to check-ins and alerts. Take a look."
	default:
		title = "Notification"
		body = strings.TrimSpace(e.Body)
		if body == "" {
			body = "You have a new notification."
		}
	}

	return title, body
}
