package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vigilhq/checkin-engine/internal/domain"
	"github.com/vigilhq/checkin-engine/internal/repository"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type AttemptLister interface {
	List(ctx context.Context, params repository.AttemptListParams) ([]domain.DeliveryAttempt, int64, error)
}

type DeliveryHandler struct {
	attempts AttemptLister
}

func NewDeliveryHandler(attempts AttemptLister) (*DeliveryHandler, error) {
	if attempts == nil {
		return nil, fmt.Errorf("attempt lister is required")
	}
	return &DeliveryHandler{attempts: attempts}, nil
}

func RegisterDeliveryRoutes(router fiber.Router, attempts AttemptLister) error {
	h, err := NewDeliveryHandler(attempts)
	if err != nil {
		return err
	}

	router.Get("/deliveries", h.ListDeliveries)

	return nil
}

type deliveryResponse struct {
	ID                  string    `json:"id"`
	EventType           string    `json:"eventType"`
	RecipientID         string    `json:"recipientId"`
	Tier                string    `json:"tier"`
	DedupKey            string    `json:"dedupKey"`
	Suppressed          bool      `json:"suppressed"`
	PushAttempted       bool      `json:"pushAttempted"`
	PushSucceeded       bool      `json:"pushSucceeded"`
	PushError           *string   `json:"pushError,omitempty"`
	EmailAttempted      bool      `json:"emailAttempted"`
	EmailSucceeded      bool      `json:"emailSucceeded"`
	EmailError          *string   `json:"emailError,omitempty"`
	OverrodePreferences bool      `json:"overrodePreferences"`
	Delivered           bool      `json:"delivered"`
	CreatedAt           time.Time `json:"createdAt"`
	CompletedAt         time.Time `json:"completedAt"`
}

type listDeliveriesResponse struct {
	Data []deliveryResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *DeliveryHandler) ListDeliveries(c *fiber.Ctx) error {
	params, err := parseAttemptListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	attempts, total, err := h.attempts.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]deliveryResponse, 0, len(attempts))
	for i := range attempts {
		responses = append(responses, toDeliveryResponse(&attempts[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listDeliveriesResponse{
		Data: responses,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseAttemptListParams(c *fiber.Ctx) (repository.AttemptListParams, error) {
	params := repository.AttemptListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.AttemptListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.AttemptListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if raw := strings.TrimSpace(c.Query("eventType")); raw != "" {
		eventType, err := domain.ParseEventTypeFromString(raw)
		if err != nil {
			return repository.AttemptListParams{}, err
		}
		params.EventType = &eventType
	}

	if raw := strings.TrimSpace(c.Query("tier")); raw != "" {
		tier, err := domain.ParseTierFromString(raw)
		if err != nil {
			return repository.AttemptListParams{}, err
		}
		params.Tier = &tier
	}

	if raw := strings.TrimSpace(c.Query("recipientId")); raw != "" {
		params.RecipientID = &raw
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.AttemptListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.AttemptListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toDeliveryResponse(a *domain.DeliveryAttempt) deliveryResponse {
	if a == nil {
		return deliveryResponse{}
	}

	return deliveryResponse{
		ID:                  a.ID,
		EventType:           a.EventType.String(),
		RecipientID:         a.RecipientID,
		Tier:                a.Tier.String(),
		DedupKey:            a.DedupKey,
		Suppressed:          a.Suppressed,
		PushAttempted:       a.PushAttempted,
		PushSucceeded:       a.PushSucceeded,
		PushError:           a.PushError,
		EmailAttempted:      a.EmailAttempted,
		EmailSucceeded:      a.EmailSucceeded,
		EmailError:          a.EmailError,
		OverrodePreferences: a.OverrodePreferences,
		Delivered:           a.Delivered(),
		CreatedAt:           a.CreatedAt,
		CompletedAt:         a.CompletedAt,
	}
}
