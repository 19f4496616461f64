// file: internals/features/applications/audits/controller/audit_controller.go
package controller

import (
	"github.com/gofiber/fiber/v2"

	appModel "vulcan_backend/internals/features/applications/applications/model"
	auditSvc "vulcan_backend/internals/features/applications/audits/service"
	"vulcan_backend/internals/features/applications/repository"
	helper "vulcan_backend/internals/helpers"
	"vulcan_backend/internals/helpers/apperr"
	helperAuth "vulcan_backend/internals/helpers/auth"
)

type AuditController struct {
	Store repository.Store
}

func NewAuditController(store repository.Store) *AuditController {
	return &AuditController{Store: store}
}

func (h *AuditController) load(c *fiber.Ctx) (*appModel.ApplicationModel, error) {
	user, err := helperAuth.CurrentUser(c)
	if err != nil {
		return nil, err
	}
	id, err := helperAuth.ParamUUID(c, "id")
	if err != nil {
		return nil, err
	}
	app, err := h.Store.GetApplication(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() && !app.IsOwnedBy(user.ID) {
		return nil, apperr.ErrNotFound
	}
	return app, nil
}

// respond wraps a view. A failed source read yields an empty list and complete=false.
func respond[T any](c *fiber.Ctx, b *auditSvc.Builder, entries []T) error {
	p := helper.ResolvePaging(c, 50, 200)
	start, end := helper.PageBounds(len(entries), p)
	return helper.JsonList(c, "", fiber.Map{
		"entries":  entries[start:end],
		"complete": len(b.Errors()) == 0,
	}, helper.BuildPagination(int64(len(entries)), p, end-start))
}

// GET /api/a/applications/:id/audit-logs
func (h *AuditController) AuditLogs(c *fiber.Ctx) error {
	app, err := h.load(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	b := auditSvc.NewBuilder(h.Store)
	return respond(c, b, b.BuildAuditLogs(c.UserContext(), app))
}

// GET /api/u/applications/:id/timeline
func (h *AuditController) ConstituentTimeline(c *fiber.Ctx) error {
	app, err := h.load(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	b := auditSvc.NewBuilder(h.Store)
	return respond(c, b, b.ConstituentTimeline(c.UserContext(), app))
}

// GET /api/a/applications/:id/timeline
func (h *AuditController) Timeline(c *fiber.Ctx) error {
	app, err := h.load(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	b := auditSvc.NewBuilder(h.Store)
	return respond(c, b, b.Timeline(c.UserContext(), app))
}

// GET /api/a/applications/:id/certification-events
func (h *AuditController) CertificationEvents(c *fiber.Ctx) error {
	app, err := h.load(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	b := auditSvc.NewBuilder(h.Store)
	return respond(c, b, b.CertificationEvents(c.UserContext(), app))
}

// GET /api/a/applications/:id/certification-requests
func (h *AuditController) CertificationRequests(c *fiber.Ctx) error {
	app, err := h.load(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	b := auditSvc.NewBuilder(h.Store)
	return respond(c, b, b.RequestEvents(c.UserContext(), app))
}
