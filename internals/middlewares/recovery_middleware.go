package middlewares

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"vulcan_backend/internals/helpers/logger"
)

// RecoveryMiddleware turns a panic into a 500 and logs it with the request path.
func RecoveryMiddleware() fiber.Handler {
	log := logger.For("recover")
	return recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			log.Error().Str("path", c.Path()).Str("method", c.Method()).
				Str("panic", fmt.Sprint(e)).Msg("handler panicked")
		},
	})
}
