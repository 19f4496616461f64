// file: internals/features/applications/assignments/controller/assignment_controller.go
package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	appModel "vulcan_backend/internals/features/applications/applications/model"
	assignModel "vulcan_backend/internals/features/applications/assignments/model"
	assignDTO "vulcan_backend/internals/features/applications/assignments/dto"
	assignSvc "vulcan_backend/internals/features/applications/assignments/service"
	"vulcan_backend/internals/features/applications/repository"
	userModel "vulcan_backend/internals/features/users/user/model"
	helper "vulcan_backend/internals/helpers"
	"vulcan_backend/internals/helpers/apperr"
	helperAuth "vulcan_backend/internals/helpers/auth"
)

type AssignmentController struct {
	Store       repository.Store
	Assignments *assignSvc.AssignmentService
}

func NewAssignmentController(store repository.Store, svc *assignSvc.AssignmentService) *AssignmentController {
	return &AssignmentController{Store: store, Assignments: svc}
}

var validate = apperr.NewValidator()

func (h *AssignmentController) load(c *fiber.Ctx) (*appModel.ApplicationModel, *userModel.UserModel, error) {
	admin, err := helperAuth.CurrentUser(c)
	if err != nil {
		return nil, nil, err
	}
	id, err := helperAuth.ParamUUID(c, "id")
	if err != nil {
		return nil, nil, err
	}
	app, err := h.Store.GetApplication(c.UserContext(), id)
	if err != nil {
		return nil, nil, err
	}
	return app, admin, nil
}

// staffFromBody reads {"user_id": ...} and loads that user.
func (h *AssignmentController) staffFromBody(c *fiber.Ctx) (*userModel.UserModel, error) {
	var req assignDTO.AssignStaffRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	if err := validate.Struct(&req); err != nil {
		return nil, apperr.FromValidator(err)
	}
	u, err := h.Store.GetUser(c.UserContext(), req.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NewValidation("user_id", "does not exist")
	}
	return u, err
}

// The services log the refusal reason; the response stays generic.
func refused(c *fiber.Ctx, what string) error {
	return helper.JsonError(c, fiber.StatusConflict, what+" could not be assigned to this application")
}

// POST /api/a/applications/:id/voucher
func (h *AssignmentController) AssignVoucher(c *fiber.Ctx) error {
	app, admin, err := h.load(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	v, ok := h.Assignments.AssignVoucher(c.UserContext(), app, admin)
	if !ok {
		return refused(c, "voucher")
	}
	return helper.JsonCreated(c, "voucher issued", v)
}

// POST /api/a/applications/:id/evaluator
func (h *AssignmentController) AssignEvaluator(c *fiber.Ctx) error {
	app, admin, err := h.load(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	evaluator, err := h.staffFromBody(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	e, ok := h.Assignments.AssignEvaluator(c.UserContext(), app, evaluator, admin)
	if !ok {
		return refused(c, "evaluator")
	}
	return helper.JsonCreated(c, "evaluator assigned", e)
}

// POST /api/a/applications/:id/trainer
func (h *AssignmentController) AssignTrainer(c *fiber.Ctx) error {
	app, admin, err := h.load(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	trainer, err := h.staffFromBody(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	s, ok := h.Assignments.AssignTrainer(c.UserContext(), app, trainer, admin)
	if !ok {
		return refused(c, "trainer")
	}
	return helper.JsonCreated(c, "trainer assigned", s)
}

func statusFromBody(c *fiber.Ctx) (string, error) {
	var req assignDTO.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	if err := validate.Struct(&req); err != nil {
		return "", apperr.FromValidator(err)
	}
	return req.Status, nil
}

// PATCH /api/a/applications/:id/voucher/status
func (h *AssignmentController) UpdateVoucherStatus(c *fiber.Ctx) error {
	app, admin, err := h.load(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	to, err := statusFromBody(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	v, err := h.Assignments.UpdateVoucherStatus(c.UserContext(), app, assignModel.VoucherStatus(to), admin)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "voucher status updated", v)
}

// PATCH /api/a/evaluations/:evaluation_id/status
func (h *AssignmentController) UpdateEvaluationStatus(c *fiber.Ctx) error {
	admin, err := helperAuth.CurrentUser(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	id, err := helperAuth.ParamUUID(c, "evaluation_id")
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	to, err := statusFromBody(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	e, err := h.Assignments.UpdateEvaluationStatus(c.UserContext(), id, assignModel.EvaluationStatus(to), admin)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "evaluation status updated", e)
}

// PATCH /api/a/training-sessions/:training_session_id/status
func (h *AssignmentController) UpdateTrainingStatus(c *fiber.Ctx) error {
	admin, err := helperAuth.CurrentUser(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	id, err := helperAuth.ParamUUID(c, "training_session_id")
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	to, err := statusFromBody(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	ts, err := h.Assignments.UpdateTrainingStatus(c.UserContext(), id, assignModel.TrainingSessionStatus(to), admin)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "training session status updated", ts)
}
