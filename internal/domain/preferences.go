package domain

import "fmt"

// Preferences is a recipient's channel opt-in state.
type Preferences struct {
	PushEnabled  bool
	EmailEnabled bool
}

// DefaultPreferences is the permissive fallback used when no preference
// record can be loaded. A missing record must never suppress a safety alert.
func DefaultPreferences() Preferences {
	return Preferences{PushEnabled: true, EmailEnabled: true}
}

// ValidateForWrite rejects fully-disabled preferences. Enforced where
// preferences are written; readers still treat stored state defensively.
func (p Preferences) ValidateForWrite() error {
	if !p.PushEnabled && !p.EmailEnabled {
		return fmt.Errorf("%w: at least one notification channel must remain enabled", ErrValidation)
	}
	return nil
}
