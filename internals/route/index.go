// file: internals/route/index.go
package routes

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"vulcan_backend/internals/constants"
	appCtl "vulcan_backend/internals/features/applications/applications/controller"
	appRoutes "vulcan_backend/internals/features/applications/applications/route"
	assignCtl "vulcan_backend/internals/features/applications/assignments/controller"
	assignRoutes "vulcan_backend/internals/features/applications/assignments/route"
	auditCtl "vulcan_backend/internals/features/applications/audits/controller"
	auditRoutes "vulcan_backend/internals/features/applications/audits/route"
	notifCtl "vulcan_backend/internals/features/notifications/notifications/controller"
	notifRoutes "vulcan_backend/internals/features/notifications/notifications/route"
	"vulcan_backend/internals/helpers/logger"
	authMiddleware "vulcan_backend/internals/middlewares/auth"
)

var startTime time.Time

// Deps is everything the HTTP layer needs, built once in main.
type Deps struct {
	Auth          authMiddleware.Options
	Ping          func(ctx context.Context) error
	Environment   string
	Applications  *appCtl.ApplicationController
	Assignments   *assignCtl.AssignmentController
	Audits        *auditCtl.AuditController
	Notifications *notifCtl.NotificationController
}

func SetupRoutes(app *fiber.App, d Deps) {
	startTime = time.Now()
	log := logger.For("routes")

	BaseRoutes(app, d)

	// ===================== PUBLIC HOOKS =====================
	log.Info().Msg("setting up inbound routes")
	appRoutes.InboundRoutes(app, d.Applications)

	// ===================== PRIVATE (USER) =====================
	log.Info().Msg("setting up /api/u group")
	user := app.Group("/api/u", authMiddleware.AuthMiddleware(d.Auth))
	appRoutes.ApplicationUserRoutes(user, d.Applications)
	auditRoutes.AuditUserRoutes(user, d.Audits)
	notifRoutes.NotificationUserRoutes(user, d.Notifications)

	// ===================== ADMIN =====================
	log.Info().Msg("setting up /api/a group")
	admin := app.Group("/api/a",
		authMiddleware.AuthMiddleware(d.Auth),
		authMiddleware.OnlyRoles(constants.RoleErrorAdmin("the admin api"), constants.AdminOnly...),
	)
	appRoutes.ApplicationAdminRoutes(admin, d.Applications)
	assignRoutes.AssignmentAdminRoutes(admin, d.Assignments)
	auditRoutes.AuditAdminRoutes(admin, d.Audits)
	notifRoutes.NotificationAdminRoutes(admin, d.Notifications)
}
