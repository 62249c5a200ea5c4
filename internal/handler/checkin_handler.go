package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vigilhq/checkin-engine/internal/service"
	"github.com/vigilhq/checkin-engine/internal/session"
)

type CheckInService interface {
	CheckIn(ctx context.Context, memberID string) (*service.CheckInResult, error)
	Deadline(ctx context.Context, memberID string) (*service.DeadlineStatus, error)
}

type CheckInHandler struct {
	service CheckInService
}

func NewCheckInHandler(service CheckInService) (*CheckInHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("check-in service is required")
	}
	return &CheckInHandler{service: service}, nil
}

// RegisterCheckInRoutes mounts the check-in endpoints. The router is expected
// to carry the session middleware already.
func RegisterCheckInRoutes(router fiber.Router, service CheckInService) error {
	h, err := NewCheckInHandler(service)
	if err != nil {
		return err
	}

	router.Post("/checkins", h.CheckIn)
	router.Get("/members/:id/deadline", h.GetDeadline)

	return nil
}

type checkInResponse struct {
	MemberID    string    `json:"memberId"`
	CheckedInAt time.Time `json:"checkedInAt"`
	DeadlineUTC time.Time `json:"deadlineUtc,omitempty"`
	WasLate     bool      `json:"wasLate"`
	MinutesLate int       `json:"minutesLate,omitempty"`
}

type deadlineResponse struct {
	MemberID        string    `json:"memberId"`
	CheckInTime     string    `json:"checkInTime"`
	Timezone        string    `json:"timezone"`
	NextDeadlineUTC time.Time `json:"nextDeadlineUtc"`
	IsLateToday     bool      `json:"isLateToday"`
	MinutesLate     int       `json:"minutesLate,omitempty"`
}

// CheckIn registers a check-in for the authenticated member.
func (h *CheckInHandler) CheckIn(c *fiber.Ctx) error {
	memberID := session.MemberID(c)
	if memberID == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	result, err := h.service.CheckIn(c.Context(), memberID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(checkInResponse{
		MemberID:    result.MemberID,
		CheckedInAt: result.CheckedInAt,
		DeadlineUTC: result.DeadlineUTC,
		WasLate:     result.WasLate,
		MinutesLate: result.MinutesLate,
	})
}

func (h *CheckInHandler) GetDeadline(c *fiber.Ctx) error {
	memberID := strings.TrimSpace(c.Params("id"))
	status, err := h.service.Deadline(c.Context(), memberID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(deadlineResponse{
		MemberID:        status.MemberID,
		CheckInTime:     status.CheckInTime,
		Timezone:        status.Timezone,
		NextDeadlineUTC: status.NextDeadlineUTC,
		IsLateToday:     status.IsLateToday,
		MinutesLate:     status.MinutesLate,
	})
}
