// file: internals/features/applications/applications/controller/application_controller.go
package controller

import (
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	appDTO "vulcan_backend/internals/features/applications/applications/dto"
	appModel "vulcan_backend/internals/features/applications/applications/model"
	appSvc "vulcan_backend/internals/features/applications/applications/service"
	"vulcan_backend/internals/features/applications/repository"
	rlSvc "vulcan_backend/internals/features/policies/rate_limits/service"
	userModel "vulcan_backend/internals/features/users/user/model"
	helper "vulcan_backend/internals/helpers"
	"vulcan_backend/internals/helpers/apperr"
	helperAuth "vulcan_backend/internals/helpers/auth"
	helperOSS "vulcan_backend/internals/helpers/oss"
)

type ApplicationController struct {
	Store        repository.Store
	Apps         *appSvc.ApplicationService
	Proofs       *appSvc.ProofAttachmentService
	Limiter      *rlSvc.Limiter
	SignedRefTTL time.Duration
	InboundKey   string
}

func NewApplicationController(store repository.Store, apps *appSvc.ApplicationService, proofs *appSvc.ProofAttachmentService, limiter *rlSvc.Limiter) *ApplicationController {
	return &ApplicationController{Store: store, Apps: apps, Proofs: proofs, Limiter: limiter}
}

var validate = apperr.NewValidator()

// ===================== Utils =====================

func parseBody(c *fiber.Ctx, dst any) error {
	if len(c.Body()) > 0 || strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		if err := c.BodyParser(dst); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
	}
	if err := validate.Struct(dst); err != nil {
		return apperr.FromValidator(err)
	}
	return nil
}

// uploadFromForm opens the multipart part named field. No part is not an error.
func uploadFromForm(c *fiber.Ctx, field string) (*helperOSS.Upload, func(), error) {
	noop := func() {}
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return nil, noop, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, noop, fiber.NewError(fiber.StatusBadRequest, "invalid multipart form")
	}
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, noop, nil
	}
	if len(headers) > 1 {
		return nil, noop, apperr.NewValidation(field, "only one file may be sent")
	}
	return openPart(headers[0])
}

func openPart(fh *multipart.FileHeader) (*helperOSS.Upload, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, fiber.NewError(fiber.StatusBadRequest, "file could not be read")
	}
	return &helperOSS.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Body:        f,
	}, func() { _ = f.Close() }, nil
}

func (h *ApplicationController) loadApplication(c *fiber.Ctx) (*appModel.ApplicationModel, error) {
	id, err := helperAuth.ParamUUID(c, "id")
	if err != nil {
		return nil, err
	}
	return h.Store.GetApplication(c.UserContext(), id)
}

// loadVisible loads the application and checks the caller owns or administers it.
func (h *ApplicationController) loadVisible(c *fiber.Ctx) (*appModel.ApplicationModel, *userModel.UserModel, error) {
	user, err := helperAuth.CurrentUser(c)
	if err != nil {
		return nil, nil, err
	}
	app, err := h.loadApplication(c)
	if err != nil {
		return nil, nil, err
	}
	if !user.IsAdmin() && !app.IsOwnedBy(user.ID) {
		// same answer as a missing row
		return nil, nil, apperr.ErrNotFound
	}
	return app, user, nil
}

func proofTypeParam(c *fiber.Ctx) (appModel.ProofType, error) {
	pt := appModel.ProofType(strings.ToLower(strings.TrimSpace(c.Params("proof_type"))))
	if !pt.IsValid() {
		return "", apperr.NewValidation("proof_type", "must be income or residency")
	}
	return pt, nil
}

// ===================== CONSTITUENT =====================

// POST /api/u/applications
func (h *ApplicationController) Create(c *fiber.Ctx) error {
	user, err := helperAuth.CurrentUser(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	var req appDTO.CreateApplicationRequest
	if err := parseBody(c, &req); err != nil {
		return helper.JsonFromError(c, err)
	}
	app := req.ToModel(user.ID)
	if err := h.Store.CreateApplication(c.UserContext(), app); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonCreated(c, "application created", app)
}

// GET /api/u/applications/:id and /api/a/applications/:id
func (h *ApplicationController) Get(c *fiber.Ctx) error {
	app, _, err := h.loadVisible(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "", app)
}

// PATCH /api/u/applications/:id/step
func (h *ApplicationController) RecordStep(c *fiber.Ctx) error {
	app, user, err := h.loadVisible(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	if !appSvc.CanEdit(app, user) {
		return helper.JsonError(c, fiber.StatusForbidden, "application can no longer be edited")
	}
	var req appDTO.LastVisitedStepRequest
	if err := parseBody(c, &req); err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.Apps.RecordLastVisitedStep(c.UserContext(), app, req.Step); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "", app)
}

// POST /api/u/applications/:id/submit
func (h *ApplicationController) Submit(c *fiber.Ctx) error {
	app, user, err := h.loadVisible(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.Apps.Submit(c.UserContext(), app, user); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "application submitted", app)
}

// POST /api/u/uploads
func (h *ApplicationController) StageUpload(c *fiber.Ctx) error {
	user, err := helperAuth.CurrentUser(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.checkWebLimit(c, user); err != nil {
		return helper.JsonFromError(c, err)
	}
	up, closeFn, err := uploadFromForm(c, "file")
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	defer closeFn()

	staged, err := h.Proofs.StageUpload(c.UserContext(), user.ID, up, h.SignedRefTTL)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonCreated(c, "file stored", appDTO.UploadResponse{
		BlobKey:     staged.Ref.Key,
		SignedRef:   staged.SignedRef,
		Filename:    staged.Ref.Filename,
		ContentType: staged.Ref.ContentType,
		ByteSize:    staged.Ref.Size,
		ExpiresAt:   staged.ExpiresAt,
	})
}

// POST /api/u/applications/:id/proofs/:proof_type
// Constituent uploads always land as not_reviewed.
func (h *ApplicationController) SubmitProof(c *fiber.Ctx) error {
	app, user, err := h.loadVisible(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.checkWebLimit(c, user); err != nil {
		return helper.JsonFromError(c, err)
	}
	pt, err := proofTypeParam(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	var req appDTO.FileRef
	if err := parseBody(c, &req); err != nil {
		return helper.JsonFromError(c, err)
	}
	up, closeFn, err := uploadFromForm(c, "file")
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	defer closeFn()

	if err := h.Proofs.AttachProof(c.UserContext(), appSvc.AttachProofParams{
		Application:      app,
		ProofType:        pt,
		File:             req.Input(up),
		Status:           appModel.ProofStatusNotReviewed,
		SubmissionMethod: string(appModel.SubmissionWeb),
	}); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "proof received", app)
}

// Staging and attaching share the web submission budget.
func (h *ApplicationController) checkWebLimit(c *fiber.Ctx, user *userModel.UserModel) error {
	_, err := h.Limiter.Check(c.UserContext(), proofSubmission, user.ID.String(), string(appModel.SubmissionWeb))
	return err
}
