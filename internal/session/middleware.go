package session

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/vigilhq/checkin-engine/internal/domain"
)

const memberIDLocal = "memberId"

// Middleware authenticates requests carrying "Authorization: Bearer <token>"
// and stores the resolved member ID in fiber locals.
func Middleware(store Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		memberID, err := store.Lookup(c.UserContext(), token)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
				return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
			}
			return fiber.NewError(fiber.StatusServiceUnavailable, "session store unavailable")
		}

		c.Locals(memberIDLocal, memberID)
		return c.Next()
	}
}

// MemberID returns the authenticated member ID set by Middleware.
func MemberID(c *fiber.Ctx) string {
	memberID, _ := c.Locals(memberIDLocal).(string)
	return memberID
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
