// Package prefs resolves a recipient's channel opt-in state.
package prefs

import (
	"context"
	"errors"

	"github.com/vigilhq/checkin-engine/internal/domain"
	"go.uber.org/zap"
)

// Store is the preference lookup port.
type Store interface {
	Get(ctx context.Context, recipientID string) (domain.Preferences, error)
}

// Resolver loads preferences and applies the fail-open policy: a missing or
// unreadable preference record must never suppress a safety notification, so
// lookup failures resolve to the permissive default. This is the opposite of
// an authorization decision, which would fail closed.
type Resolver struct {
	store  Store
	logger *zap.Logger
}

func NewResolver(store Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, recipientID string) domain.Preferences {
	if r == nil || r.store == nil {
		return domain.DefaultPreferences()
	}

	preferences, err := r.store.Get(ctx, recipientID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("preference lookup failed, using permissive default",
				zap.String("recipientId", recipientID),
				zap.Error(err),
			)
		}
		return domain.DefaultPreferences()
	}

	return preferences
}
