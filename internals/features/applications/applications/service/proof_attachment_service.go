// file: internals/features/applications/applications/service/proof_attachment_service.go
package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vulcan_backend/internals/constants"
	appModel "vulcan_backend/internals/features/applications/applications/model"
	"vulcan_backend/internals/features/applications/repository"
	eventSvc "vulcan_backend/internals/features/events/events/service"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	notifSvc "vulcan_backend/internals/features/notifications/notifications/service"
	policySvc "vulcan_backend/internals/features/policies/policies/service"
	userModel "vulcan_backend/internals/features/users/user/model"
	"vulcan_backend/internals/helpers/apperr"
	"vulcan_backend/internals/helpers/dbtime"
	"vulcan_backend/internals/helpers/logger"
	"vulcan_backend/internals/helpers/metrics"
	helperOSS "vulcan_backend/internals/helpers/oss"
	"vulcan_backend/internals/jobs"
)

const (
	ActionProofSubmitted       = "proof_submitted"
	ActionProofSubmissionFail  = "proof_submission_failed"
	ActionProofApproved        = "proof_approved"
	ActionProofRejected        = "proof_rejected"
	ActionProofsPurged         = "proofs_purged"
	ActionCertificationFailure = "medical_certification_submission_failed"
)

// ProofAttachmentService is the single entry point for writing proof
// attachments and proof statuses, and for the medical certification flow.
type ProofAttachmentService struct {
	Store        repository.Store
	Blobs        helperOSS.BlobStore
	Resolver     *helperOSS.Resolver
	Policies     policySvc.Store
	Events       *eventSvc.Recorder
	Notifier     *notifSvc.NotificationService
	Applications *ApplicationService
	Queue        jobs.Queue
	Clock        dbtime.Clock
	log          zerolog.Logger
}

func NewProofAttachmentService(
	store repository.Store,
	blobs helperOSS.BlobStore,
	signer *helperOSS.RefSigner,
	policies policySvc.Store,
	apps *ApplicationService,
	queue jobs.Queue,
) *ProofAttachmentService {
	return &ProofAttachmentService{
		Store:        store,
		Blobs:        blobs,
		Resolver:     &helperOSS.Resolver{Store: blobs, Signer: signer},
		Policies:     policies,
		Events:       apps.Events,
		Notifier:     apps.Notifier,
		Applications: apps,
		Queue:        queue,
		Clock:        apps.Clock,
		log:          logger.For("proofs"),
	}
}

func (s *ProofAttachmentService) now() time.Time { return s.Clock.OrDefault()() }

type AttachProofParams struct {
	Application      *appModel.ApplicationModel
	ProofType        appModel.ProofType
	File             helperOSS.FileInput
	Status           appModel.ProofStatus
	Admin            *userModel.UserModel
	SubmissionMethod string
	RejectionReason  string
	Metadata         map[string]any
	Phase            Phase
}

func proofDir(appID uuid.UUID, pt appModel.ProofType) string {
	return fmt.Sprintf("applications/%s/proofs/%s", appID, pt)
}

/* =========================================================
   AttachProof
========================================================= */

// AttachProof stores the file, then writes attachment, status, audit row and
// event in one transaction. Validation failures leave nothing behind; storage
// failures leave only a failure event. On success the application is
// refreshed in place.
func (s *ProofAttachmentService) AttachProof(ctx context.Context, p AttachProofParams) error {
	start := s.now()
	app := p.Application
	if app == nil {
		return apperr.NewValidation("application", "is required")
	}
	if p.Status == "" {
		p.Status = appModel.ProofStatusNotReviewed
	}
	method := appModel.NormalizeSubmissionMethod(p.SubmissionMethod)
	field := string(p.ProofType) + "_proof"

	// 1) argument checks
	verr := &apperr.ValidationError{}
	if !p.ProofType.IsValid() {
		verr.Add("proof_type", "must be income or residency")
	}
	if !p.Status.IsValid() {
		verr.Add("status", "must be not_reviewed, approved or rejected")
	}
	if p.Status == appModel.ProofStatusRejected && strings.TrimSpace(p.RejectionReason) == "" {
		verr.Add("rejection_reason", "is required when rejecting")
	}
	if p.Status != appModel.ProofStatusNotReviewed && p.Admin == nil {
		verr.Add("status", "only an admin can decide a proof")
	}
	if !p.File.Present() {
		verr.Add(field, "a file is required")
	}
	if !verr.Empty() {
		return verr
	}
	if p.Admin != nil && !p.Admin.IsAdmin() {
		return &apperr.AuthorizationError{Message: "only an admin can attach proofs on behalf of an applicant"}
	}
	if p.Admin == nil && strings.TrimSpace(p.File.BlobKey) != "" {
		return apperr.NewValidation(field, "stage the file first and send its signed reference")
	}

	// 2) resolve + store blob
	rules := LoadProofRules(ctx, s.Policies)
	resolved, err := s.Resolver.Resolve(ctx, proofDir(app.ID, p.ProofType), p.File, rules.CheckFunc(field))
	if err != nil {
		if mapped := classifyResolveError(field, err); isValidation(mapped) {
			metrics.RecordProofAttachment(string(p.ProofType), "invalid", s.now().Sub(start))
			return mapped
		}
		return s.storageFailure(ctx, app, p, method, start, err)
	}

	// 3) one transaction; the attach time is when the proof lands on the
	// application, not when the blob was stored
	attachedAt := s.now()
	var (
		fresh     *appModel.ApplicationModel
		note      *notifModel.NotificationModel
		newReview bool
	)
	err = s.Store.WithTx(ctx, func(tx repository.Store) error {
		cur, err := tx.LockApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		prev := cur.ProofStatus(p.ProofType)
		now := s.now()

		key, filename, ct := resolved.Ref.Key, resolved.Ref.Filename, resolved.Ref.ContentType
		cur.SetProof(p.ProofType, appModel.Attachment{
			BlobKey:     &key,
			Filename:    &filename,
			ContentType: &ct,
			ByteSize:    resolved.Ref.Size,
			AttachedAt:  &attachedAt,
		})
		cur.SetProofStatus(p.ProofType, p.Status)
		cols := appModel.ProofColumns(p.ProofType)
		if p.Status == appModel.ProofStatusRejected {
			reason := strings.TrimSpace(p.RejectionReason)
			cur.SetProofRejectionReason(p.ProofType, &reason)
			cur.TotalRejections++
			cols = append(cols, appModel.ColTotalRejections)
		} else {
			cur.SetProofRejectionReason(p.ProofType, nil)
		}
		if p.Admin == nil && p.Status == appModel.ProofStatusNotReviewed && cur.NeedsReviewSince == nil {
			cur.NeedsReviewSince = &now
			newReview = true
		}
		if p.Status != appModel.ProofStatusNotReviewed && !awaitingReview(cur) {
			cur.NeedsReviewSince = nil
		}
		cur.UpdatedAt = now
		cols = append(cols, appModel.ColNeedsReviewSince, appModel.ColUpdatedAt)

		if err := rules.ValidateProofConsistency(cur, p.ProofType, p.Phase, now); err != nil {
			return err
		}
		if err := tx.UpdateApplicationColumns(ctx, cur, cols...); err != nil {
			return err
		}

		meta := map[string]any{}
		for k, v := range p.Metadata {
			meta[k] = v
		}
		meta["blob_key"] = key
		meta["filename"] = filename
		meta["content_type"] = ct
		meta["byte_size"] = resolved.Ref.Size
		meta["previous_status"] = string(prev)
		if p.Phase != PhaseDefault {
			meta["phase"] = string(p.Phase)
		}
		actor := userID(p.Admin)
		if actor == nil {
			owner := cur.UserID
			actor = &owner
		}
		if err := tx.CreateProofSubmissionAudit(ctx, &appModel.ProofSubmissionAuditModel{
			ApplicationID:    cur.ID,
			ProofType:        p.ProofType,
			ActorID:          actor,
			SubmissionMethod: method,
			Status:           p.Status,
			Metadata:         meta,
		}); err != nil {
			return err
		}

		if p.Admin != nil && p.Status != appModel.ProofStatusNotReviewed {
			if err := s.writeReview(ctx, tx, cur, p.ProofType, p.Status, p.Admin, p.RejectionReason, "", method); err != nil {
				return err
			}
		}

		s.Events.RecordIn(ctx, tx, applicationEntry(cur, p.Admin, ActionProofSubmitted, map[string]any{
			"proof_type":        string(p.ProofType),
			"status":            string(p.Status),
			"submission_method": string(method),
			"blob_key":          key,
		}))

		switch p.Status {
		case appModel.ProofStatusApproved:
			note = s.Applications.notifyOwner(ctx, tx, cur, p.Admin, notifModel.ActionProofApproved,
				map[string]any{"proof_type": string(p.ProofType)})
		case appModel.ProofStatusRejected:
			note = s.Applications.notifyOwner(ctx, tx, cur, p.Admin, notifModel.ActionProofRejected,
				map[string]any{"proof_type": string(p.ProofType), "reason": strings.TrimSpace(p.RejectionReason)})
		}
		fresh = cur
		return nil
	})
	if err != nil {
		if resolved.Uploaded {
			s.purgeQuietly(ctx, resolved.Ref.Key)
		}
		if isValidation(err) {
			metrics.RecordProofAttachment(string(p.ProofType), "invalid", s.now().Sub(start))
			return err
		}
		return s.storageFailure(ctx, app, p, method, start, err)
	}

	*app = *fresh
	metrics.RecordProofAttachment(string(p.ProofType), "ok", s.now().Sub(start))
	s.log.Info().
		Str("application_id", app.ID.String()).
		Str("proof_type", string(p.ProofType)).
		Str("status", string(p.Status)).
		Str("method", string(method)).
		Int64("ms", dbtime.MsSince(s.Clock, start)).
		Msg("proof attached")

	// 4) after commit
	s.Notifier.Dispatch(ctx, note)
	if newReview {
		s.enqueue(ctx, &NotifyAdminsJob{
			Service:       s,
			ApplicationID: app.ID,
			ProofType:     p.ProofType,
			Action:        notifModel.ActionProofNeedsReview,
		})
	}
	if resolved.Data != nil && constants.IsImageContentType(resolved.Ref.ContentType) {
		s.attachPreview(ctx, app, p.ProofType, resolved.Data, resolved.Ref.ContentType)
	}
	return s.autoApprove(ctx, app, p.Status)
}

// awaitingReview is true while any attached proof is still undecided.
func awaitingReview(app *appModel.ApplicationModel) bool {
	for _, pt := range appModel.ProofTypes {
		if app.Proof(pt).Present() && app.ProofStatus(pt) == appModel.ProofStatusNotReviewed {
			return true
		}
	}
	return false
}

func (s *ProofAttachmentService) storageFailure(ctx context.Context, app *appModel.ApplicationModel, p AttachProofParams, method appModel.SubmissionMethod, start time.Time, cause error) error {
	took := s.now().Sub(start)
	s.Events.Record(ctx, applicationEntry(app, p.Admin, ActionProofSubmissionFail, map[string]any{
		"proof_type":        string(p.ProofType),
		"submission_method": string(method),
		"error_class":       apperr.Class(cause),
		"error_message":     cause.Error(),
		"duration_ms":       took.Milliseconds(),
	}))
	metrics.RecordProofAttachment(string(p.ProofType), "storage_error", took)
	s.log.Error().Err(cause).
		Str("application_id", app.ID.String()).
		Str("proof_type", string(p.ProofType)).
		Msg("proof attachment failed")
	return &apperr.StorageError{Op: "attach_proof", Duration: took, Err: cause}
}

func (s *ProofAttachmentService) attachPreview(ctx context.Context, app *appModel.ApplicationModel, pt appModel.ProofType, data []byte, contentType string) {
	preview, err := helperOSS.BuildPreview(data, contentType)
	if err != nil {
		s.log.Warn().Err(err).Str("application_id", app.ID.String()).Msg("preview not built")
		return
	}
	ref, err := s.Blobs.Put(ctx, proofDir(app.ID, pt)+"/previews", string(pt)+".webp", "image/webp", bytes.NewReader(preview))
	if err != nil {
		s.log.Warn().Err(err).Str("application_id", app.ID.String()).Msg("preview not stored")
		return
	}
	att := app.Proof(pt)
	key := ref.Key
	att.PreviewKey = &key
	app.SetProof(pt, att)
	if err := s.Store.UpdateApplicationColumns(ctx, app, appModel.ProofPreviewColumn(pt)); err != nil {
		s.log.Warn().Err(err).Str("application_id", app.ID.String()).Msg("preview key not saved")
		s.purgeQuietly(ctx, key)
	}
}

func (s *ProofAttachmentService) autoApprove(ctx context.Context, app *appModel.ApplicationModel, status appModel.ProofStatus) error {
	if !ShouldAutoApprove(app, status) {
		return nil
	}
	approved, err := s.Applications.PerformAutoApproval(ctx, app.ID)
	if err != nil {
		return err
	}
	if approved {
		fresh, err := s.Store.GetApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		*app = *fresh
	}
	return nil
}

func (s *ProofAttachmentService) purgeQuietly(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.Blobs.Purge(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("orphan blob not purged")
	}
}

func (s *ProofAttachmentService) enqueue(ctx context.Context, job jobs.Job) {
	if s.Queue == nil {
		return
	}
	if err := s.Queue.Enqueue(ctx, job); err != nil {
		s.log.Warn().Err(err).Str("job", job.Name()).Msg("job not enqueued")
	}
}

func (s *ProofAttachmentService) writeReview(ctx context.Context, tx repository.Store, app *appModel.ApplicationModel, pt appModel.ProofType,
	status appModel.ProofStatus, admin *userModel.UserModel, reason, notes string, method appModel.SubmissionMethod,
) error {
	r := &appModel.ProofReviewModel{
		ApplicationID:    app.ID,
		ProofType:        pt,
		Status:           status,
		AdminID:          userID(admin),
		Kind:             appModel.ProofReviewKindAdmin,
		SubmissionMethod: method,
		Metadata:         map[string]any{},
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		r.RejectionReason = &reason
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		r.Notes = &notes
	}
	return tx.CreateProofReview(ctx, r)
}

/* =========================================================
   Review
========================================================= */

type ReviewProofParams struct {
	Application      *appModel.ApplicationModel
	ProofType        appModel.ProofType
	Status           appModel.ProofStatus
	Admin            *userModel.UserModel
	RejectionReason  string
	Notes            string
	SubmissionMethod string
}

// ReviewProof decides an already attached proof.
func (s *ProofAttachmentService) ReviewProof(ctx context.Context, p ReviewProofParams) error {
	if !p.Admin.IsAdmin() {
		return &apperr.AuthorizationError{Message: "only an admin can review proofs"}
	}
	verr := &apperr.ValidationError{}
	if !p.ProofType.IsValid() {
		verr.Add("proof_type", "must be income or residency")
	}
	if p.Status != appModel.ProofStatusApproved && p.Status != appModel.ProofStatusRejected {
		verr.Add("status", "must be approved or rejected")
	}
	if p.Status == appModel.ProofStatusRejected && strings.TrimSpace(p.RejectionReason) == "" {
		verr.Add("rejection_reason", "is required when rejecting")
	}
	if !verr.Empty() {
		return verr
	}
	method := appModel.NormalizeSubmissionMethod(p.SubmissionMethod)
	if method == appModel.SubmissionUnknown {
		method = appModel.SubmissionWeb
	}
	rules := LoadProofRules(ctx, s.Policies)

	var (
		fresh *appModel.ApplicationModel
		note  *notifModel.NotificationModel
	)
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		cur, err := tx.LockApplication(ctx, p.Application.ID)
		if err != nil {
			return err
		}
		now := s.now()
		cur.SetProofStatus(p.ProofType, p.Status)
		cols := []string{appModel.ProofStatusColumn(p.ProofType), appModel.ProofRejectionColumn(p.ProofType)}
		action, notify := ActionProofApproved, notifModel.ActionProofApproved
		if p.Status == appModel.ProofStatusRejected {
			reason := strings.TrimSpace(p.RejectionReason)
			cur.SetProofRejectionReason(p.ProofType, &reason)
			cur.TotalRejections++
			cols = append(cols, appModel.ColTotalRejections)
			action, notify = ActionProofRejected, notifModel.ActionProofRejected
		} else {
			cur.SetProofRejectionReason(p.ProofType, nil)
		}
		if !awaitingReview(cur) {
			cur.NeedsReviewSince = nil
		}
		cur.UpdatedAt = now
		cols = append(cols, appModel.ColNeedsReviewSince, appModel.ColUpdatedAt)

		if err := rules.ValidateProofConsistency(cur, p.ProofType, PhaseDefault, now); err != nil {
			return err
		}
		if err := tx.UpdateApplicationColumns(ctx, cur, cols...); err != nil {
			return err
		}
		if err := s.writeReview(ctx, tx, cur, p.ProofType, p.Status, p.Admin, p.RejectionReason, p.Notes, method); err != nil {
			return err
		}
		meta := map[string]any{"proof_type": string(p.ProofType), "submission_method": string(method)}
		if p.Status == appModel.ProofStatusRejected {
			meta["reason"] = strings.TrimSpace(p.RejectionReason)
		}
		s.Events.RecordIn(ctx, tx, applicationEntry(cur, p.Admin, action, meta))
		note = s.Applications.notifyOwner(ctx, tx, cur, p.Admin, notify, map[string]any{
			"proof_type": string(p.ProofType),
			"reason":     strings.TrimSpace(p.RejectionReason),
		})
		fresh = cur
		return nil
	})
	if err != nil {
		return err
	}
	*p.Application = *fresh
	s.Notifier.Dispatch(ctx, note)
	return s.autoApprove(ctx, p.Application, p.Status)
}

// RejectProofWithoutAttachment records a rejection for a proof that never
// arrived as a file, e.g. a paper submission refused at the desk.
func (s *ProofAttachmentService) RejectProofWithoutAttachment(ctx context.Context, app *appModel.ApplicationModel, pt appModel.ProofType, admin *userModel.UserModel, reason, notes string) error {
	if !admin.IsAdmin() {
		return &apperr.AuthorizationError{Message: "only an admin can reject proofs"}
	}
	reason = strings.TrimSpace(reason)
	verr := &apperr.ValidationError{}
	if !pt.IsValid() {
		verr.Add("proof_type", "must be income or residency")
	}
	if reason == "" {
		verr.Add("rejection_reason", "is required when rejecting")
	}
	if !verr.Empty() {
		return verr
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
		if err := s.forceSetProofStatus(ctx, tx, cur, pt, appModel.ProofStatusRejected, reason); err != nil {
			return err
		}
		if err := s.writeReview(ctx, tx, cur, pt, appModel.ProofStatusRejected, admin, reason, notes, appModel.SubmissionPaper); err != nil {
			return err
		}
		s.Events.RecordIn(ctx, tx, applicationEntry(cur, admin, ActionProofRejected, map[string]any{
			"proof_type":        string(pt),
			"reason":            reason,
			"submission_method": string(appModel.SubmissionPaper),
			"without_file":      true,
		}))
		note = s.Applications.notifyOwner(ctx, tx, cur, admin, notifModel.ActionProofRejected, map[string]any{
			"proof_type": string(pt),
			"reason":     reason,
		})
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

// forceSetProofStatus is the one write that skips attachment consistency.
// Only rejection may go through it.
func (s *ProofAttachmentService) forceSetProofStatus(ctx context.Context, tx repository.Store, app *appModel.ApplicationModel, pt appModel.ProofType, status appModel.ProofStatus, reason string) error {
	if status != appModel.ProofStatusRejected {
		return apperr.NewValidation("status", "only a rejection can be recorded without an attachment")
	}
	app.SetProofStatus(pt, status)
	app.SetProofRejectionReason(pt, &reason)
	app.TotalRejections++
	app.UpdatedAt = s.now()
	return tx.UpdateApplicationColumns(ctx, app,
		appModel.ProofStatusColumn(pt),
		appModel.ProofRejectionColumn(pt),
		appModel.ColTotalRejections,
		appModel.ColUpdatedAt,
	)
}

/* =========================================================
   Purge
========================================================= */

// PurgeProofs clears both proofs and resets their statuses. Blobs are purged
// after commit; a failed purge leaves an orphan for the trash reaper.
func (s *ProofAttachmentService) PurgeProofs(ctx context.Context, app *appModel.ApplicationModel, actor *userModel.UserModel) error {
	if !actor.IsAdmin() {
		return &apperr.AuthorizationError{Message: "only an admin can purge proofs"}
	}

	var (
		fresh *appModel.ApplicationModel
		note  *notifModel.NotificationModel
		keys  []string
	)
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		cur, err := tx.LockApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		keys = keys[:0]
		var cols []string
		for _, pt := range appModel.ProofTypes {
			att := cur.Proof(pt)
			if att.Present() {
				keys = append(keys, att.Key())
			}
			if att.PreviewKey != nil && *att.PreviewKey != "" {
				keys = append(keys, *att.PreviewKey)
			}
			cur.SetProof(pt, appModel.Attachment{})
			cur.SetProofStatus(pt, appModel.ProofStatusNotReviewed)
			cur.SetProofRejectionReason(pt, nil)
			cols = append(cols, appModel.ProofColumns(pt)...)
		}
		cur.NeedsReviewSince = nil
		cur.UpdatedAt = s.now()
		cols = append(cols, appModel.ColNeedsReviewSince, appModel.ColUpdatedAt)
		if err := tx.UpdateApplicationColumns(ctx, cur, cols...); err != nil {
			return err
		}

		if err := tx.CreateProofReview(ctx, &appModel.ProofReviewModel{
			ApplicationID:    cur.ID,
			ProofType:        appModel.ProofTypeAll,
			Status:           appModel.ProofStatusNotReviewed,
			AdminID:          userID(actor),
			Kind:             appModel.ProofReviewKindSystem,
			SubmissionMethod: appModel.SubmissionSystem,
			Metadata:         map[string]any{"purged_keys": len(keys)},
		}); err != nil {
			return err
		}
		s.Events.RecordIn(ctx, tx, applicationEntry(cur, actor, ActionProofsPurged, map[string]any{"blob_count": len(keys)}))
		note = s.Applications.notifyOwner(ctx, tx, cur, actor, notifModel.ActionProofsPurged, nil)
		fresh = cur
		return nil
	})
	if err != nil {
		return err
	}
	*app = *fresh
	for _, k := range keys {
		s.purgeQuietly(ctx, k)
	}
	s.Notifier.Dispatch(ctx, note)
	return nil
}
