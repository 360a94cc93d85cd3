package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/emandor/imagetext_service/internal/session"
)

const SessionKey = "session"

type SessionFinder interface {
	Get(id string) (*session.Session, bool)
}

// SessionLookup resolves the :id route param to a live session.
func SessionLookup(reg SessionFinder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, ok := reg.Get(c.Params("id"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found. Please start a new session.",
			})
		}
		c.Locals(SessionKey, s)
		return c.Next()
	}
}

func CurrentSession(c *fiber.Ctx) *session.Session {
	s, _ := c.Locals(SessionKey).(*session.Session)
	return s
}
