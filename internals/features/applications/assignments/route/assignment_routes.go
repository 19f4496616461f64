package routes

import (
	"github.com/gofiber/fiber/v2"

	assignCtl "vulcan_backend/internals/features/applications/assignments/controller"
)

// AssignmentAdminRoutes is mounted under /api/a.
func AssignmentAdminRoutes(r fiber.Router, ctl *assignCtl.AssignmentController) {
	apps := r.Group("/applications/:id")
	apps.Post("/voucher", ctl.AssignVoucher)
	apps.Post("/evaluator", ctl.AssignEvaluator)
	apps.Post("/trainer", ctl.AssignTrainer)
	apps.Patch("/voucher/status", ctl.UpdateVoucherStatus)

	r.Patch("/evaluations/:evaluation_id/status", ctl.UpdateEvaluationStatus)
	r.Patch("/training-sessions/:training_session_id/status", ctl.UpdateTrainingStatus)
}
