// file: internals/features/notifications/notifications/controller/notification_controller.go
package controller

import (
	"github.com/gofiber/fiber/v2"

	"vulcan_backend/internals/features/applications/repository"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	notifSvc "vulcan_backend/internals/features/notifications/notifications/service"
	helper "vulcan_backend/internals/helpers"
	"vulcan_backend/internals/helpers/apperr"
	helperAuth "vulcan_backend/internals/helpers/auth"
)

type NotificationController struct {
	Store    repository.Store
	Notifier *notifSvc.NotificationService
}

func NewNotificationController(store repository.Store, notifier *notifSvc.NotificationService) *NotificationController {
	return &NotificationController{Store: store, Notifier: notifier}
}

// GET /api/u/applications/:id/notifications
// Constituents see the notifications addressed to them; admins see all of them.
func (h *NotificationController) ListForApplication(c *fiber.Ctx) error {
	user, err := helperAuth.CurrentUser(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	id, err := helperAuth.ParamUUID(c, "id")
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	app, err := h.Store.GetApplication(c.UserContext(), id)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	if !user.IsAdmin() && !app.IsOwnedBy(user.ID) {
		return helper.JsonFromError(c, apperr.ErrNotFound)
	}

	rows, err := h.Store.ListNotificationsFor(c.UserContext(), app.NotifiableType(), app.ID)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	visible := make([]notifModel.NotificationModel, 0, len(rows))
	for _, n := range rows {
		if user.IsAdmin() || n.RecipientID == user.ID {
			visible = append(visible, n)
		}
	}

	p := helper.ResolvePaging(c, 20, 100)
	start, end := helper.PageBounds(len(visible), p)
	return helper.JsonList(c, "", visible[start:end], helper.BuildPagination(int64(len(visible)), p, end-start))
}

// PATCH /api/u/notifications/:id/read
func (h *NotificationController) MarkRead(c *fiber.Ctx) error {
	user, err := helperAuth.CurrentUser(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	id, err := helperAuth.ParamUUID(c, "id")
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.Notifier.MarkRead(c.UserContext(), id, user); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "notification marked as read", fiber.Map{"notification_id": id})
}

// POST /api/a/notifications/:id/deliver
// Synchronous redelivery, bypassing the queue.
func (h *NotificationController) Deliver(c *fiber.Ctx) error {
	id, err := helperAuth.ParamUUID(c, "id")
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.Notifier.Deliver(c.UserContext(), id); err != nil {
		return helper.JsonFromError(c, err)
	}
	n, err := h.Store.GetNotification(c.UserContext(), id)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "notification delivered", n)
}

// POST /api/a/notifications/retry
func (h *NotificationController) RetryUndelivered(c *fiber.Ctx) error {
	n, err := h.Notifier.RetryUndelivered(c.UserContext())
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "", fiber.Map{"enqueued": n})
}
