package middlewares

import (
	"github.com/gofiber/fiber/v2"

	appLogger "vulcan_backend/internals/middlewares/logger"
)

// SetupMiddlewares installs the global chain: recovery first so panics in the
// rest of the chain are still answered.
func SetupMiddlewares(app *fiber.App, corsOrigins string, globalMax int) {
	app.Use(RecoveryMiddleware())
	app.Use(appLogger.LoggerMiddleware())
	app.Use(CorsMiddleware(corsOrigins))
	app.Use(GlobalRateLimiter(globalMax))
}
