package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appModel "vulcan_backend/internals/features/applications/applications/model"
	"vulcan_backend/internals/features/applications/repository"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	userModel "vulcan_backend/internals/features/users/user/model"
	"vulcan_backend/internals/helpers/apperr"
	"vulcan_backend/internals/helpers/metrics"
	helperOSS "vulcan_backend/internals/helpers/oss"
)

type CertificationParams struct {
	Application      *appModel.ApplicationModel
	Status           appModel.CertificationStatus
	File             helperOSS.FileInput
	RejectionReason  string
	Actor            *userModel.UserModel
	SubmissionMethod string
}

type certificationBranch string

const (
	branchReasonedRejection certificationBranch = "rejection"
	branchUpload            certificationBranch = "upload"
	branchStatusOnly        certificationBranch = "status_only"
)

func certificationDir(appID uuid.UUID) string {
	return fmt.Sprintf("applications/%s/medical_certification", appID)
}

var certificationNotice = map[appModel.CertificationStatus]notifModel.Action{
	appModel.CertificationReceived: notifModel.ActionMedicalCertificationReceived,
	appModel.CertificationApproved: notifModel.ActionMedicalCertificationApproved,
	appModel.CertificationRejected: notifModel.ActionMedicalCertificationRejected,
}

// UpdateCertification picks one of three paths:
//
//	rejected with a reason  -> status + reason, no file needed
//	file given              -> replace the attachment and set status
//	no file, one on record  -> status only
//
// Anything else is a validation error.
func (s *ProofAttachmentService) UpdateCertification(ctx context.Context, p CertificationParams) error {
	if !p.Actor.IsAdmin() {
		return &apperr.AuthorizationError{Message: "only an admin can update the medical certification"}
	}
	app := p.Application
	reason := strings.TrimSpace(p.RejectionReason)
	switch p.Status {
	case appModel.CertificationReceived, appModel.CertificationApproved, appModel.CertificationRejected:
	default:
		return apperr.NewValidation("status", "must be received, approved or rejected")
	}
	if p.Status == appModel.CertificationRejected && reason == "" {
		return apperr.NewValidation("rejection_reason", "is required when rejecting")
	}

	var branch certificationBranch
	switch {
	case p.Status == appModel.CertificationRejected && !p.File.Present():
		branch = branchReasonedRejection
	case p.File.Present():
		branch = branchUpload
	case app.MedicalCertification.Present():
		branch = branchStatusOnly
	default:
		return apperr.NewValidation("medical_certification", "a file is required")
	}
	method := appModel.NormalizeSubmissionMethod(p.SubmissionMethod)
	start := s.now()

	var resolved helperOSS.ResolvedFile
	if branch == branchUpload {
		rules := LoadProofRules(ctx, s.Policies)
		var err error
		resolved, err = s.Resolver.Resolve(ctx, certificationDir(app.ID), p.File, rules.CheckFunc("medical_certification"))
		if err != nil {
			if mapped := classifyResolveError("medical_certification", err); isValidation(mapped) {
				return mapped
			}
			return s.certificationFailure(ctx, app, p.Actor, method, start, err)
		}
	}

	var (
		fresh *appModel.ApplicationModel
		note  *notifModel.NotificationModel
	)
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		cur, err := tx.LockApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		prev := cur.MedicalCertificationStatus
		now := s.now()

		if branch == branchUpload {
			key, filename, ct := resolved.Ref.Key, resolved.Ref.Filename, resolved.Ref.ContentType
			at := now
			cur.MedicalCertification = appModel.Attachment{
				BlobKey:     &key,
				Filename:    &filename,
				ContentType: &ct,
				ByteSize:    resolved.Ref.Size,
				AttachedAt:  &at,
			}
		}
		cur.MedicalCertificationStatus = p.Status
		if reason != "" {
			cur.MedicalCertificationRejectionReason = &reason
		} else {
			cur.MedicalCertificationRejectionReason = nil
		}
		cur.UpdatedAt = now
		cols := append(appModel.CertificationColumns(), appModel.ColUpdatedAt)
		if err := tx.UpdateApplicationColumns(ctx, cur, cols...); err != nil {
			return err
		}

		change := &appModel.ApplicationStatusChangeModel{
			ApplicationID: cur.ID,
			ActorID:       userID(p.Actor),
			ChangeType:    appModel.ChangeTypeMedicalCertification,
			FromStatus:    string(prev),
			ToStatus:      string(p.Status),
			Metadata: map[string]any{
				"branch":            string(branch),
				"submission_method": string(method),
			},
		}
		if reason != "" {
			change.Notes = &reason
		}
		if err := tx.CreateStatusChange(ctx, change); err != nil {
			return err
		}

		meta := map[string]any{"from": string(prev), "branch": string(branch)}
		if branch == branchUpload {
			meta["blob_key"] = resolved.Ref.Key
		}
		if reason != "" {
			meta["reason"] = reason
		}
		s.Events.RecordIn(ctx, tx, applicationEntry(cur, p.Actor, change.Action(), meta))

		var extra map[string]any
		if reason != "" {
			extra = map[string]any{"reason": reason}
		}
		note = s.Applications.notifyOwner(ctx, tx, cur, p.Actor, certificationNotice[p.Status], extra)
		fresh = cur
		return nil
	})
	if err != nil {
		if resolved.Uploaded {
			s.purgeQuietly(ctx, resolved.Ref.Key)
		}
		if isValidation(err) {
			return err
		}
		if branch == branchUpload {
			return s.certificationFailure(ctx, app, p.Actor, method, start, err)
		}
		return err
	}
	*app = *fresh
	s.Notifier.Dispatch(ctx, note)
	return nil
}

// RequestCertification asks the applicant's provider for a certification.
// Repeated requests bump the counter and the timestamp.
func (s *ProofAttachmentService) RequestCertification(ctx context.Context, app *appModel.ApplicationModel, admin *userModel.UserModel, providerName string) error {
	if !admin.IsAdmin() {
		return &apperr.AuthorizationError{Message: "only an admin can request a medical certification"}
	}
	if app.CertificationApproved() {
		return &apperr.InvalidTransition{From: string(app.MedicalCertificationStatus), To: string(appModel.CertificationRequested)}
	}
	providerName = strings.TrimSpace(providerName)

	var (
		fresh *appModel.ApplicationModel
		note  *notifModel.NotificationModel
	)
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		cur, err := tx.LockApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		if cur.CertificationApproved() {
			return &apperr.InvalidTransition{From: string(cur.MedicalCertificationStatus), To: string(appModel.CertificationRequested)}
		}
		prev := cur.MedicalCertificationStatus
		now := s.now()
		cur.MedicalCertificationStatus = appModel.CertificationRequested
		cur.MedicalCertificationRequestedAt = &now
		cur.MedicalCertificationRequestCount++
		cur.UpdatedAt = now
		cols := []string{
			appModel.ColCertificationStatus,
			appModel.ColCertificationRequestedAt,
			appModel.ColCertificationRequestCount,
			appModel.ColUpdatedAt,
		}
		if providerName != "" {
			cur.MedicalProviderName = &providerName
			cols = append(cols, appModel.ColMedicalProviderName)
		}
		if err := tx.UpdateApplicationColumns(ctx, cur, cols...); err != nil {
			return err
		}
		change := &appModel.ApplicationStatusChangeModel{
			ApplicationID: cur.ID,
			ActorID:       userID(admin),
			ChangeType:    appModel.ChangeTypeMedicalCertification,
			FromStatus:    string(prev),
			ToStatus:      string(appModel.CertificationRequested),
			Metadata: map[string]any{
				"request_count": cur.MedicalCertificationRequestCount,
				"provider_name": providerName,
			},
		}
		if err := tx.CreateStatusChange(ctx, change); err != nil {
			return err
		}
		s.Events.RecordIn(ctx, tx, applicationEntry(cur, admin, change.Action(), map[string]any{
			"from":          string(prev),
			"request_count": cur.MedicalCertificationRequestCount,
			"provider_name": providerName,
		}))
		note = s.Applications.notifyOwner(ctx, tx, cur, admin, notifModel.ActionMedicalCertificationRequested, nil)
		fresh = cur
		return nil
	})
	if err != nil {
		return err
	}
	*app = *fresh
	s.Notifier.Dispatch(ctx, note)
	return nil
}

func (s *ProofAttachmentService) certificationFailure(ctx context.Context, app *appModel.ApplicationModel, actor *userModel.UserModel, method appModel.SubmissionMethod, start time.Time, cause error) error {
	took := s.now().Sub(start)
	s.Events.Record(ctx, applicationEntry(app, actor, ActionCertificationFailure, map[string]any{
		"submission_method": string(method),
		"error_class":       apperr.Class(cause),
		"error_message":     cause.Error(),
		"duration_ms":       took.Milliseconds(),
	}))
	metrics.RecordProofAttachment("medical_certification", "storage_error", took)
	s.log.Error().Err(cause).Str("application_id", app.ID.String()).Msg("certification upload failed")
	return &apperr.StorageError{Op: "update_certification", Duration: took, Err: cause}
}
