package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/helmet/v2"
)

// SecureHeaders sets security headers suited to a JSON/WebSocket API:
// nothing served here is meant to be framed or to load subresources.
func SecureHeaders() fiber.Handler {
	return helmet.New(helmet.Config{
		ContentSecurityPolicy:     "default-src 'none'; frame-ancestors 'none';",
		CrossOriginResourcePolicy: "same-site",
		ReferrerPolicy:            "no-referrer",
	})
}
