package logger

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	appLogger "vulcan_backend/internals/helpers/logger"
)

// LoggerMiddleware writes one access line per request through the process logger's writer.
func LoggerMiddleware() fiber.Handler {
	return logger.New(logger.Config{
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Format:     "[${time}] ${locals:requestid} ${ip} - ${method} ${path} - ${status} - ${latency}\n",
		Output:     appLogger.AccessWriter(),
	})
}
