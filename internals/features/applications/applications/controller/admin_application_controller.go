// file: internals/features/applications/applications/controller/admin_application_controller.go
package controller

import (
	"github.com/gofiber/fiber/v2"

	appDTO "vulcan_backend/internals/features/applications/applications/dto"
	appModel "vulcan_backend/internals/features/applications/applications/model"
	appSvc "vulcan_backend/internals/features/applications/applications/service"
	helper "vulcan_backend/internals/helpers"
	helperAuth "vulcan_backend/internals/helpers/auth"
)

/* ===================== STATUS ===================== */

// POST /api/a/applications/:id/approve
func (h *ApplicationController) Approve(c *fiber.Ctx) error {
	app, admin, err := h.loadVisible(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.Apps.Approve(c.UserContext(), app, admin); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "application approved", app)
}

// POST /api/a/applications/:id/reject
func (h *ApplicationController) Reject(c *fiber.Ctx) error {
	app, admin, err := h.loadVisible(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	var req appDTO.RejectApplicationRequest
	if err := parseBody(c, &req); err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.Apps.Reject(c.UserContext(), app, admin, req.Reason); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "application rejected", app)
}

// POST /api/a/applications/:id/request-documents
func (h *ApplicationController) RequestDocuments(c *fiber.Ctx) error {
	app, admin, err := h.loadVisible(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.Apps.RequestDocuments(c.UserContext(), app, admin); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "documents requested", app)
}

// POST /api/a/applications/:id/archive
func (h *ApplicationController) Archive(c *fiber.Ctx) error {
	app, admin, err := h.loadVisible(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.Apps.Archive(c.UserContext(), app, admin); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "application archived", app)
}

// POST /api/a/applications/batch-status
func (h *ApplicationController) BatchStatus(c *fiber.Ctx) error {
	admin, err := helperAuth.CurrentUser(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	var req appDTO.BatchStatusRequest
	if err := parseBody(c, &req); err != nil {
		return helper.JsonFromError(c, err)
	}
	n, err := h.Apps.BatchUpdateStatus(c.UserContext(), req.IDs, appModel.ApplicationStatus(req.Status), admin)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "", appDTO.BatchStatusResponse{Updated: n})
}

/* ===================== PROOFS ===================== */

// POST /api/a/applications/:id/proofs/:proof_type
// Admin attach: file plus an optional decision, e.g. a paper proof approved at intake.
func (h *ApplicationController) AdminAttachProof(c *fiber.Ctx) error {
	app, admin, err := h.loadVisible(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	pt, err := proofTypeParam(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	var req appDTO.AttachProofRequest
	if err := parseBody(c, &req); err != nil {
		return helper.JsonFromError(c, err)
	}
	up, closeFn, err := uploadFromForm(c, "file")
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	defer closeFn()

	method := req.SubmissionMethod
	if method == "" {
		method = string(appModel.SubmissionUpload)
	}
	if err := h.Proofs.AttachProof(c.UserContext(), appSvc.AttachProofParams{
		Application:      app,
		ProofType:        pt,
		File:             req.Input(up),
		Status:           appModel.ProofStatus(req.Status),
		Admin:            admin,
		SubmissionMethod: method,
		RejectionReason:  req.RejectionReason,
		Phase:            appSvc.Phase(req.Phase),
	}); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "proof attached", app)
}

// POST /api/a/applications/:id/proofs/:proof_type/review
func (h *ApplicationController) ReviewProof(c *fiber.Ctx) error {
	app, admin, err := h.loadVisible(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	pt, err := proofTypeParam(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	var req appDTO.ReviewProofRequest
	if err := parseBody(c, &req); err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.Proofs.ReviewProof(c.UserContext(), appSvc.ReviewProofParams{
		Application:      app,
		ProofType:        pt,
		Status:           appModel.ProofStatus(req.Status),
		Admin:            admin,
		RejectionReason:  req.RejectionReason,
		Notes:            req.Notes,
		SubmissionMethod: req.SubmissionMethod,
	}); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "proof reviewed", app)
}

// POST /api/a/applications/:id/proofs/:proof_type/reject-without-file
func (h *ApplicationController) RejectProofWithoutFile(c *fiber.Ctx) error {
	app, admin, err := h.loadVisible(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	pt, err := proofTypeParam(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	var req appDTO.RejectWithoutFileRequest
	if err := parseBody(c, &req); err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.Proofs.RejectProofWithoutAttachment(c.UserContext(), app, pt, admin, req.Reason, req.Notes); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "proof rejected", app)
}

// DELETE /api/a/applications/:id/proofs
func (h *ApplicationController) PurgeProofs(c *fiber.Ctx) error {
	app, admin, err := h.loadVisible(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.Proofs.PurgeProofs(c.UserContext(), app, admin); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "proofs purged", app)
}

/* ===================== CERTIFICATION ===================== */

// POST /api/a/applications/:id/certification
func (h *ApplicationController) UpdateCertification(c *fiber.Ctx) error {
	app, admin, err := h.loadVisible(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	var req appDTO.CertificationRequest
	if err := parseBody(c, &req); err != nil {
		return helper.JsonFromError(c, err)
	}
	up, closeFn, err := uploadFromForm(c, "file")
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	defer closeFn()

	if err := h.Proofs.UpdateCertification(c.UserContext(), appSvc.CertificationParams{
		Application:      app,
		Status:           appModel.CertificationStatus(req.Status),
		File:             req.Input(up),
		RejectionReason:  req.RejectionReason,
		Actor:            admin,
		SubmissionMethod: req.SubmissionMethod,
	}); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "certification updated", app)
}

// POST /api/a/applications/:id/certification/request
func (h *ApplicationController) RequestCertification(c *fiber.Ctx) error {
	app, admin, err := h.loadVisible(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	var req appDTO.RequestCertificationRequest
	if err := parseBody(c, &req); err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.Proofs.RequestCertification(c.UserContext(), app, admin, req.ProviderName); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "certification requested", app)
}
