package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/vigilhq/checkin-engine/internal/domain"
	"github.com/vigilhq/checkin-engine/internal/session"
)

type MemberGetter interface {
	GetByID(ctx context.Context, id string) (*domain.Member, error)
}

type SessionHandler struct {
	store   session.Store
	members MemberGetter
}

func NewSessionHandler(store session.Store, members MemberGetter) (*SessionHandler, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if members == nil {
		return nil, fmt.Errorf("member getter is required")
	}
	return &SessionHandler{store: store, members: members}, nil
}

// RegisterPublicSessionRoutes mounts token issuance. It must run before any
// auth middleware is attached to the /v1 prefix, since fiber matches handlers
// in registration order.
func RegisterPublicSessionRoutes(router fiber.Router, store session.Store, members MemberGetter) error {
	h, err := NewSessionHandler(store, members)
	if err != nil {
		return err
	}

	router.Post("/sessions", h.CreateSession)
	return nil
}

// RegisterPrivateSessionRoutes mounts revocation on the authenticated router.
func RegisterPrivateSessionRoutes(router fiber.Router, store session.Store, members MemberGetter) error {
	h, err := NewSessionHandler(store, members)
	if err != nil {
		return err
	}

	router.Delete("/sessions", h.RevokeSession)
	return nil
}

type createSessionRequest struct {
	MemberID string `json:"memberId"`
}

type createSessionResponse struct {
	Token    string `json:"token"`
	MemberID string `json:"memberId"`
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	memberID := strings.TrimSpace(req.MemberID)
	if memberID == "" {
		return toHTTPError(fmt.Errorf("%w: memberId is required", domain.ErrValidation))
	}

	member, err := h.members.GetByID(c.Context(), memberID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "unknown member")
		}
		return toHTTPError(err)
	}
	if !member.Active {
		return fiber.NewError(fiber.StatusForbidden, "member is inactive")
	}

	token, err := h.store.Create(c.Context(), member.ID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(createSessionResponse{
		Token:    token,
		MemberID: member.ID,
	})
}

func (h *SessionHandler) RevokeSession(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
	}

	if err := h.store.Revoke(c.Context(), token); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
