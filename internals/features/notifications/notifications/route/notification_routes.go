package routes

import (
	"github.com/gofiber/fiber/v2"

	notifCtl "vulcan_backend/internals/features/notifications/notifications/controller"
)

func NotificationUserRoutes(r fiber.Router, ctl *notifCtl.NotificationController) {
	r.Get("/applications/:id/notifications", ctl.ListForApplication)
	r.Patch("/notifications/:id/read", ctl.MarkRead)
}

func NotificationAdminRoutes(r fiber.Router, ctl *notifCtl.NotificationController) {
	r.Get("/applications/:id/notifications", ctl.ListForApplication)
	r.Post("/notifications/retry", ctl.RetryUndelivered)
	r.Post("/notifications/:id/deliver", ctl.Deliver)
}
