// file: internals/features/applications/applications/controller/inbound_email_controller.go
package controller

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	appModel "vulcan_backend/internals/features/applications/applications/model"
	appSvc "vulcan_backend/internals/features/applications/applications/service"
	helper "vulcan_backend/internals/helpers"
	"vulcan_backend/internals/helpers/apperr"
	"vulcan_backend/internals/helpers/logger"
	helperOSS "vulcan_backend/internals/helpers/oss"
)

const (
	inboundKeyHeader  = "X-Inbound-Key"
	proofSubmission   = "proof_submission"
	inboundAttachment = "attachment"
)

type inboundEmailForm struct {
	From          string `form:"from" validate:"required,email"`
	ApplicationID string `form:"application_id" validate:"required,uuid"`
	ProofType     string `form:"proof_type" validate:"required,oneof=income residency"`
}

// POST /api/inbound/email
//
// Called by the mail provider's inbound webhook with the parsed message as a
// multipart form. The sender must own the application; submissions are rate
// limited per sender address.
func (h *ApplicationController) InboundEmail(c *fiber.Ctx) error {
	log := logger.For("inbound_email")
	if h.InboundKey == "" || subtle.ConstantTimeCompare([]byte(c.Get(inboundKeyHeader)), []byte(h.InboundKey)) != 1 {
		return helper.JsonError(c, fiber.StatusUnauthorized, "invalid inbound key")
	}

	var form inboundEmailForm
	if err := parseBody(c, &form); err != nil {
		return helper.JsonFromError(c, err)
	}
	sender := strings.ToLower(strings.TrimSpace(form.From))
	ctx := c.UserContext()

	user, err := h.Store.FindUserByEmail(ctx, sender)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Info().Str("from", sender).Msg("inbound proof from unknown sender dropped")
		return helper.JsonError(c, fiber.StatusNotFound, "sender is not a registered constituent")
	}
	if err != nil {
		return helper.JsonFromError(c, err)
	}

	if _, err := h.Limiter.Check(ctx, proofSubmission, sender, string(appModel.SubmissionEmail)); err != nil {
		return helper.JsonFromError(c, err)
	}

	app, err := h.Store.GetApplication(ctx, uuid.MustParse(form.ApplicationID))
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	if !app.IsOwnedBy(user.ID) {
		return helper.JsonError(c, fiber.StatusNotFound, apperr.ErrNotFound.Error())
	}

	up, closeFn, err := uploadFromForm(c, inboundAttachment)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	defer closeFn()
	if up == nil {
		return helper.JsonFromError(c, apperr.NewValidation(inboundAttachment, "is required"))
	}

	if err := h.Proofs.AttachProof(ctx, appSvc.AttachProofParams{
		Application:      app,
		ProofType:        appModel.ProofType(form.ProofType),
		File:             helperOSS.FileInput{Upload: up},
		Status:           appModel.ProofStatusNotReviewed,
		SubmissionMethod: string(appModel.SubmissionEmail),
		Metadata:         map[string]any{"sender": sender},
	}); err != nil {
		return helper.JsonFromError(c, err)
	}
	log.Info().Str("application_id", app.ID.String()).Str("proof_type", form.ProofType).Msg("inbound proof attached")
	return helper.JsonCreated(c, "proof received", fiber.Map{"application_id": app.ID})
}
