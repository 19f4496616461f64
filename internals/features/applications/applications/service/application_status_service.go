// file: internals/features/applications/applications/service/application_status_service.go
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appModel "vulcan_backend/internals/features/applications/applications/model"
	"vulcan_backend/internals/features/applications/repository"
	eventModel "vulcan_backend/internals/features/events/events/model"
	eventSvc "vulcan_backend/internals/features/events/events/service"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	notifSvc "vulcan_backend/internals/features/notifications/notifications/service"
	userModel "vulcan_backend/internals/features/users/user/model"
	"vulcan_backend/internals/helpers/apperr"
	"vulcan_backend/internals/helpers/dbtime"
	"vulcan_backend/internals/helpers/logger"
)

const (
	ActionAutoApproved       = "application_auto_approved"
	ActionBatchStatusUpdated = "applications_batch_status_updated"
	ActionSubmitted          = "application_submitted"
)

// ApplicationService owns the overall application status.
type ApplicationService struct {
	Store    repository.Store
	Events   *eventSvc.Recorder
	Notifier *notifSvc.NotificationService
	Clock    dbtime.Clock
	log      zerolog.Logger
}

func NewApplicationService(store repository.Store, events *eventSvc.Recorder, notifier *notifSvc.NotificationService) *ApplicationService {
	return &ApplicationService{
		Store:    store,
		Events:   events,
		Notifier: notifier,
		Clock:    dbtime.NowUTC,
		log:      logger.For("applications"),
	}
}

func (s *ApplicationService) now() time.Time { return s.Clock.OrDefault()() }

type transition struct {
	to          appModel.ApplicationStatus
	actor       *userModel.UserModel
	reason      string
	eventAction string
	notify      notifModel.Action
	meta        map[string]any
	// refuseTerminal reports InvalidTransition for terminal sources even when the graph allows the move.
	refuseTerminal bool
}

func (s *ApplicationService) Approve(ctx context.Context, app *appModel.ApplicationModel, actor *userModel.UserModel) error {
	return s.transition(ctx, app, transition{
		to:             appModel.ApplicationStatusApproved,
		actor:          actor,
		notify:         notifModel.ActionApplicationApproved,
		refuseTerminal: true,
	})
}

func (s *ApplicationService) Reject(ctx context.Context, app *appModel.ApplicationModel, actor *userModel.UserModel, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return apperr.NewValidation("reason", "is required")
	}
	return s.transition(ctx, app, transition{
		to:             appModel.ApplicationStatusRejected,
		actor:          actor,
		reason:         strings.TrimSpace(reason),
		notify:         notifModel.ActionApplicationRejected,
		refuseTerminal: true,
	})
}

func (s *ApplicationService) RequestDocuments(ctx context.Context, app *appModel.ApplicationModel, actor *userModel.UserModel) error {
	return s.transition(ctx, app, transition{
		to:     appModel.ApplicationStatusAwaitingDocuments,
		actor:  actor,
		notify: notifModel.ActionDocumentsRequested,
	})
}

// Submit moves a draft into review.
func (s *ApplicationService) Submit(ctx context.Context, app *appModel.ApplicationModel, actor *userModel.UserModel) error {
	if actor == nil || !(actor.IsAdmin() || app.IsOwnedBy(actor.ID)) {
		return &apperr.AuthorizationError{Message: "only the applicant, the guardian or an admin can submit"}
	}
	return s.transition(ctx, app, transition{
		to:          appModel.ApplicationStatusInProgress,
		actor:       actor,
		eventAction: ActionSubmitted,
	})
}

func (s *ApplicationService) Archive(ctx context.Context, app *appModel.ApplicationModel, actor *userModel.UserModel) error {
	if !actor.IsAdmin() {
		return &apperr.AuthorizationError{Message: "only an admin can archive an application"}
	}
	return s.transition(ctx, app, transition{to: appModel.ApplicationStatusArchived, actor: actor})
}

// transition writes status + status change + event in one transaction and
// dispatches the owner's notification after commit. app is refreshed in place.
func (s *ApplicationService) transition(ctx context.Context, app *appModel.ApplicationModel, t transition) error {
	var (
		fresh *appModel.ApplicationModel
		note  *notifModel.NotificationModel
	)
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		cur, err := tx.LockApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		from := cur.Status
		if (t.refuseTerminal && from.IsTerminal()) || !appModel.CanTransition(from, t.to) {
			return &apperr.InvalidTransition{From: string(from), To: string(t.to)}
		}

		now := s.now()
		cur.Status = t.to
		cur.UpdatedAt = now
		if err := tx.UpdateApplicationColumns(ctx, cur, appModel.ColStatus, appModel.ColUpdatedAt); err != nil {
			return err
		}

		change := &appModel.ApplicationStatusChangeModel{
			ApplicationID: cur.ID,
			ActorID:       userID(t.actor),
			ChangeType:    appModel.ChangeTypeApplication,
			FromStatus:    string(from),
			ToStatus:      string(t.to),
			Metadata:      map[string]any{},
		}
		if t.reason != "" {
			change.Notes = &t.reason
			change.Metadata["reason"] = t.reason
		}
		for k, v := range t.meta {
			change.Metadata[k] = v
		}
		if err := tx.CreateStatusChange(ctx, change); err != nil {
			return err
		}

		action := t.eventAction
		if action == "" {
			action = change.Action()
		}
		meta := map[string]any{"from": string(from), "to": string(t.to)}
		for k, v := range t.meta {
			meta[k] = v
		}
		if t.reason != "" {
			meta["reason"] = t.reason
		}
		s.Events.RecordIn(ctx, tx, applicationEntry(cur, t.actor, action, meta))

		if t.notify != "" {
			var extra map[string]any
			if t.reason != "" {
				extra = map[string]any{"reason": t.reason}
			}
			note = s.notifyOwner(ctx, tx, cur, t.actor, t.notify, extra)
		}
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

// ShouldAutoApprove is true when an approved proof decision leaves both
// proofs approved on an application that is not approved yet.
func ShouldAutoApprove(app *appModel.ApplicationModel, newStatus appModel.ProofStatus) bool {
	if app == nil {
		return false
	}
	return newStatus == appModel.ProofStatusApproved &&
		app.IncomeProofStatus == appModel.ProofStatusApproved &&
		app.ResidencyProofStatus == appModel.ProofStatusApproved &&
		app.Status != appModel.ApplicationStatusApproved
}

// PerformAutoApproval re-reads the row under lock and approves it when the
// predicate still holds. Returns whether this call approved it.
func (s *ApplicationService) PerformAutoApproval(ctx context.Context, applicationID uuid.UUID) (bool, error) {
	var (
		approved bool
		note     *notifModel.NotificationModel
	)
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		cur, err := tx.LockApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if !ShouldAutoApprove(cur, appModel.ProofStatusApproved) ||
			!appModel.CanTransition(cur.Status, appModel.ApplicationStatusApproved) {
			return nil
		}

		from := cur.Status
		cur.Status = appModel.ApplicationStatusApproved
		cur.UpdatedAt = s.now()
		if err := tx.UpdateApplicationColumns(ctx, cur, appModel.ColStatus, appModel.ColUpdatedAt); err != nil {
			return err
		}
		if err := tx.CreateStatusChange(ctx, &appModel.ApplicationStatusChangeModel{
			ApplicationID: cur.ID,
			ChangeType:    appModel.ChangeTypeApplication,
			FromStatus:    string(from),
			ToStatus:      string(cur.Status),
			Metadata:      map[string]any{"trigger": "auto_approval"},
		}); err != nil {
			return err
		}
		s.Events.RecordIn(ctx, tx, applicationEntry(cur, nil, ActionAutoApproved, map[string]any{
			"from":    string(from),
			"trigger": "proofs_approved",
		}))
		note = s.notifyOwner(ctx, tx, cur, nil, notifModel.ActionApplicationApproved, nil)
		approved = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if approved {
		s.log.Info().Str("application_id", applicationID.String()).Msg("auto-approved")
		s.Notifier.Dispatch(ctx, note)
	}
	return approved, nil
}

// CanEdit: the applicant or guardian while in draft, or any admin.
func CanEdit(app *appModel.ApplicationModel, actor *userModel.UserModel) bool {
	if app == nil || actor == nil {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	return app.IsDraft() && app.IsOwnedBy(actor.ID)
}

// RecordLastVisitedStep is the draft autosave hook.
func (s *ApplicationService) RecordLastVisitedStep(ctx context.Context, app *appModel.ApplicationModel, step string) error {
	step = strings.TrimSpace(step)
	if step == "" || len(step) > 60 {
		return apperr.NewValidation("last_visited_step", "must be between 1 and 60 characters")
	}
	if !app.IsDraft() {
		return apperr.NewValidation("last_visited_step", "can only be recorded on a draft")
	}
	app.LastVisitedStep = &step
	app.UpdatedAt = s.now()
	return s.Store.UpdateApplicationColumns(ctx, app, appModel.ColLastVisitedStep, appModel.ColUpdatedAt)
}

// BatchUpdateStatus is a bulk write that skips transition checks and
// per-record audit rows. A single batch-level event is recorded instead.
func (s *ApplicationService) BatchUpdateStatus(ctx context.Context, ids []uuid.UUID, status appModel.ApplicationStatus, actor *userModel.UserModel) (int64, error) {
	if !actor.IsAdmin() {
		return 0, &apperr.AuthorizationError{Message: "only an admin can bulk update applications"}
	}
	if !status.IsValid() {
		return 0, apperr.NewValidation("status", "is not a valid application status")
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	var n int64
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		n, err = tx.BatchUpdateStatus(ctx, ids, status, s.now())
		if err != nil {
			return err
		}
		strIDs := make([]string, len(ids))
		for i, id := range ids {
			strIDs[i] = id.String()
		}
		s.Events.RecordIn(ctx, tx, eventSvc.Entry{
			ActorID:     userID(actor),
			Action:      ActionBatchStatusUpdated,
			SubjectType: eventModel.SubjectApplicationBatch,
			Metadata:    map[string]any{"ids": strIDs, "count": n, "status": string(status)},
		})
		return nil
	})
	return n, err
}

/* =========================================================
   helpers
========================================================= */

func (s *ApplicationService) notifyOwner(ctx context.Context, tx repository.Store, app *appModel.ApplicationModel, actor *userModel.UserModel, action notifModel.Action, extra map[string]any) *notifModel.NotificationModel {
	return notifyUser(ctx, tx, s.Notifier, s.log, app.UserID, app, actor, action, extra)
}

func notifyUser(ctx context.Context, tx repository.Store, n *notifSvc.NotificationService, log zerolog.Logger,
	recipientID uuid.UUID, app *appModel.ApplicationModel, actor *userModel.UserModel, action notifModel.Action, extra map[string]any,
) *notifModel.NotificationModel {
	if n == nil {
		return nil
	}
	recipient, err := tx.GetUser(ctx, recipientID)
	if err != nil {
		log.Warn().Err(err).Str("action", string(action)).Str("application_id", app.ID.String()).Msg("recipient not found, notification skipped")
		return nil
	}
	return n.Prepare(ctx, tx, notifSvc.Params{
		Action:     action,
		Recipient:  recipient,
		Actor:      actor,
		Notifiable: *app,
		Channel:    notifModel.ChannelEmail,
		Context:    extra,
		Deliver:    true,
	})
}

func applicationEntry(app *appModel.ApplicationModel, actor *userModel.UserModel, action string, meta map[string]any) eventSvc.Entry {
	return eventSvc.Entry{
		ActorID:     userID(actor),
		Action:      action,
		SubjectType: eventModel.SubjectApplication,
		SubjectID:   app.ID,
		Metadata:    meta,
	}
}

func userID(u *userModel.UserModel) *uuid.UUID {
	if u == nil {
		return nil
	}
	id := u.ID
	return &id
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
