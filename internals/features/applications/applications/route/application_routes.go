package routes

import (
	"github.com/gofiber/fiber/v2"

	appCtl "vulcan_backend/internals/features/applications/applications/controller"
	"vulcan_backend/internals/middlewares"
)

// ApplicationUserRoutes is mounted under /api/u (auth already applied).
func ApplicationUserRoutes(r fiber.Router, ctl *appCtl.ApplicationController) {
	r.Post("/uploads", ctl.StageUpload)

	apps := r.Group("/applications")
	apps.Post("/", ctl.Create)
	apps.Get("/:id", ctl.Get)
	apps.Patch("/:id/step", ctl.RecordStep)
	apps.Post("/:id/submit", ctl.Submit)
	apps.Post("/:id/proofs/:proof_type", ctl.SubmitProof)
}

// ApplicationAdminRoutes is mounted under /api/a (auth + admin role already applied).
func ApplicationAdminRoutes(r fiber.Router, ctl *appCtl.ApplicationController) {
	apps := r.Group("/applications")
	apps.Post("/batch-status", ctl.BatchStatus)
	apps.Get("/:id", ctl.Get)
	apps.Post("/:id/approve", ctl.Approve)
	apps.Post("/:id/reject", ctl.Reject)
	apps.Post("/:id/request-documents", ctl.RequestDocuments)
	apps.Post("/:id/archive", ctl.Archive)

	apps.Post("/:id/proofs/:proof_type", ctl.AdminAttachProof)
	apps.Post("/:id/proofs/:proof_type/review", ctl.ReviewProof)
	apps.Post("/:id/proofs/:proof_type/reject-without-file", ctl.RejectProofWithoutFile)
	apps.Delete("/:id/proofs", ctl.PurgeProofs)

	apps.Post("/:id/certification", ctl.UpdateCertification)
	apps.Post("/:id/certification/request", ctl.RequestCertification)
}

// InboundRoutes are public hooks authenticated by a shared key.
func InboundRoutes(app *fiber.App, ctl *appCtl.ApplicationController) {
	app.Post("/api/inbound/email", middlewares.InboundRateLimiter(), ctl.InboundEmail)
}
