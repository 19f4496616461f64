package routes

import (
	"github.com/gofiber/fiber/v2"

	auditCtl "vulcan_backend/internals/features/applications/audits/controller"
)

func AuditUserRoutes(r fiber.Router, ctl *auditCtl.AuditController) {
	r.Get("/applications/:id/timeline", ctl.ConstituentTimeline)
}

func AuditAdminRoutes(r fiber.Router, ctl *auditCtl.AuditController) {
	apps := r.Group("/applications/:id")
	apps.Get("/audit-logs", ctl.AuditLogs)
	apps.Get("/timeline", ctl.Timeline)
	apps.Get("/certification-events", ctl.CertificationEvents)
	apps.Get("/certification-requests", ctl.CertificationRequests)
}
