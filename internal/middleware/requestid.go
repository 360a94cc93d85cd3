package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emandor/imagetext_service/internal/telemetry"
)

const (
	ReqIDKey  = "reqID"
	LoggerKey = "logger"
)

// RequestID tags the request with X-Request-ID and a logger carrying it.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.New().String()
		}
		c.Set("X-Request-ID", rid)
		c.Locals(ReqIDKey, rid)
		c.Locals(LoggerKey, telemetry.L().With().Str("req_id", rid).Logger())
		return c.Next()
	}
}

// Logger returns the request-scoped logger, or the process logger when
// RequestID did not run.
func Logger(c *fiber.Ctx) zerolog.Logger {
	if l, ok := c.Locals(LoggerKey).(zerolog.Logger); ok {
		return l
	}
	return telemetry.L()
}
