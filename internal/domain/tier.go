package domain

import (
	"fmt"
	"strings"
)

// Tier is the priority class governing channel selection for an event.
type Tier string

const (
	TierCritical Tier = "CRITICAL"
	TierHigh     Tier = "HIGH"
	TierNormal   Tier = "NORMAL"
	TierLow      Tier = "LOW"
)

func (t Tier) String() string { return string(t) }

func (t Tier) IsValid() bool {
	switch t {
	case TierCritical, TierHigh, TierNormal, TierLow:
		return true
	}
	return false
}

func ParseTierFromString(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid tier %q", ErrValidation, s)
	}
	return t, nil
}
