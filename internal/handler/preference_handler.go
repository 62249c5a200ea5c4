package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/vigilhq/checkin-engine/internal/domain"
)

type PreferenceStore interface {
	Get(ctx context.Context, recipientID string) (domain.Preferences, error)
	Upsert(ctx context.Context, recipientID string, p domain.Preferences) error
}

type PreferenceHandler struct {
	store PreferenceStore
}

func NewPreferenceHandler(store PreferenceStore) (*PreferenceHandler, error) {
	if store == nil {
		return nil, fmt.Errorf("preference store is required")
	}
	return &PreferenceHandler{store: store}, nil
}

func RegisterPreferenceRoutes(router fiber.Router, store PreferenceStore) error {
	h, err := NewPreferenceHandler(store)
	if err != nil {
		return err
	}

	router.Get("/members/:id/preferences", h.GetPreferences)
	router.Put("/members/:id/preferences", h.UpdatePreferences)

	return nil
}

type preferencesPayload struct {
	PushEnabled  bool `json:"pushEnabled"`
	EmailEnabled bool `json:"emailEnabled"`
}

func (h *PreferenceHandler) GetPreferences(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("id"))

	preferences, err := h.store.Get(c.Context(), recipientID)
	if errors.Is(err, domain.ErrNotFound) {
		preferences = domain.DefaultPreferences()
	} else if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(preferencesPayload{
		PushEnabled:  preferences.PushEnabled,
		EmailEnabled: preferences.EmailEnabled,
	})
}

func (h *PreferenceHandler) UpdatePreferences(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("id"))

	var req preferencesPayload
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	preferences := domain.Preferences{
		PushEnabled:  req.PushEnabled,
		EmailEnabled: req.EmailEnabled,
	}
	if err := preferences.ValidateForWrite(); err != nil {
		return toHTTPError(err)
	}

	if err := h.store.Upsert(c.Context(), recipientID, preferences); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(preferencesPayload{
		PushEnabled:  preferences.PushEnabled,
		EmailEnabled: preferences.EmailEnabled,
	})
}
