// file: internals/features/applications/assignments/service/assignment_service.go
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vulcan_backend/internals/constants"
	appModel "vulcan_backend/internals/features/applications/applications/model"
	assignModel "vulcan_backend/internals/features/applications/assignments/model"
	"vulcan_backend/internals/features/applications/repository"
	eventModel "vulcan_backend/internals/features/events/events/model"
	eventSvc "vulcan_backend/internals/features/events/events/service"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	notifSvc "vulcan_backend/internals/features/notifications/notifications/service"
	policyModel "vulcan_backend/internals/features/policies/policies/model"
	policySvc "vulcan_backend/internals/features/policies/policies/service"
	userModel "vulcan_backend/internals/features/users/user/model"
	"vulcan_backend/internals/helpers/apperr"
	"vulcan_backend/internals/helpers/dbtime"
	"vulcan_backend/internals/helpers/logger"
)

const (
	defaultVoucherValue  = 500
	defaultVoucherMonths = 6
	voucherCodeAttempts  = 5

	ActionVoucherAssigned   = "voucher_assigned"
	ActionEvaluatorAssigned = "evaluator_assigned"
	ActionTrainerAssigned   = "trainer_assigned"

	ActionVoucherStatusChanged    = "voucher_status_changed"
	ActionEvaluationStatusChanged = "evaluation_status_changed"
	ActionTrainingStatusChanged   = "training_session_status_changed"
)

var errIneligible = errors.New("application is not eligible")

// AssignmentService creates the children of an approved application. Every
// sequence runs under a row lock on the application and either completes with
// its event and notification or leaves nothing behind.
type AssignmentService struct {
	Store    repository.Store
	Events   *eventSvc.Recorder
	Notifier *notifSvc.NotificationService
	Policies policySvc.Store
	Clock    dbtime.Clock
	NewCode  func() string
	log      zerolog.Logger
}

func NewAssignmentService(store repository.Store, events *eventSvc.Recorder, notifier *notifSvc.NotificationService, policies policySvc.Store) *AssignmentService {
	return &AssignmentService{
		Store:    store,
		Events:   events,
		Notifier: notifier,
		Policies: policies,
		Clock:    dbtime.NowUTC,
		NewCode:  assignModel.GenerateVoucherCode,
		log:      logger.For("assignments"),
	}
}

func (s *AssignmentService) now() time.Time { return s.Clock.OrDefault()() }

/* =========================================================
   Eligibility
========================================================= */

func CanCreateVoucher(app *appModel.ApplicationModel, hasVoucher bool) bool {
	return app != nil &&
		app.Status == appModel.ApplicationStatusApproved &&
		app.CertificationApproved() &&
		!hasVoucher
}

func CanAssign(app *appModel.ApplicationModel, assignee *userModel.UserModel, role string) bool {
	return app != nil && assignee != nil &&
		app.Status == appModel.ApplicationStatusApproved &&
		assignee.IsActive && assignee.HasRole(role)
}

/* =========================================================
   Voucher
========================================================= */

func (s *AssignmentService) AssignVoucher(ctx context.Context, app *appModel.ApplicationModel, admin *userModel.UserModel) (*assignModel.VoucherModel, bool) {
	if app == nil {
		s.refuse(nil, ActionVoucherAssigned, apperr.NewValidation("application", "is required"))
		return nil, false
	}
	if !admin.IsAdmin() {
		s.refuse(app, ActionVoucherAssigned, &apperr.AuthorizationError{Message: "only an admin can issue vouchers"})
		return nil, false
	}
	value := policySvc.IntOr(ctx, s.Policies, policyModel.KeyVoucherInitialValue, defaultVoucherValue)
	months := policySvc.IntOr(ctx, s.Policies, policyModel.KeyVoucherValidityPeriodMonths, defaultVoucherMonths)

	var (
		voucher *assignModel.VoucherModel
		note    *notifModel.NotificationModel
	)
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		cur, err := tx.LockApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		_, err = tx.GetVoucherByApplication(ctx, cur.ID)
		hasVoucher := err == nil
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if !CanCreateVoucher(cur, hasVoucher) {
			return errIneligible
		}

		now := s.now()
		v := &assignModel.VoucherModel{
			ApplicationID:  cur.ID,
			Status:         assignModel.VoucherIssued,
			InitialValue:   value,
			RemainingValue: value,
			IssuedByID:     userID(admin),
			IssuedAt:       now,
			ExpiresAt:      now.AddDate(0, months, 0),
		}
		if err := s.createVoucher(ctx, tx, v); err != nil {
			return err
		}
		if _, err := s.Events.Write(ctx, tx, eventSvc.Entry{
			ActorID:     userID(admin),
			Action:      ActionVoucherAssigned,
			SubjectType: eventModel.SubjectVoucher,
			SubjectID:   v.ID,
			Metadata: map[string]any{
				"application_id": cur.ID.String(),
				"code":           v.Code,
				"initial_value":  value,
				"expires_at":     v.ExpiresAt.Format(time.RFC3339),
			},
		}); err != nil {
			return err
		}

		owner, err := tx.GetUser(ctx, cur.UserID)
		if err != nil {
			return err
		}
		note = s.Notifier.Prepare(ctx, tx, notifSvc.Params{
			Action:     notifModel.ActionVoucherAssigned,
			Recipient:  owner,
			Actor:      admin,
			Notifiable: *cur,
			Context:    map[string]any{"voucher_code": v.Code},
			Deliver:    true,
		})
		voucher = v
		return nil
	})
	if err != nil {
		s.refuse(app, ActionVoucherAssigned, err)
		return nil, false
	}
	s.log.Info().Str("application_id", app.ID.String()).Str("voucher_id", voucher.ID.String()).Msg("voucher issued")
	s.Notifier.Dispatch(ctx, note)
	return voucher, true
}

// createVoucher draws a fresh code when the insert hits the unique code
// index. Each attempt runs in a savepoint so a collision does not poison
// the outer transaction. The application lock already rules out a second
// voucher for the same application, so a conflict here is the code.
func (s *AssignmentService) createVoucher(ctx context.Context, tx repository.Store, v *assignModel.VoucherModel) error {
	var err error
	for attempt := 1; attempt <= voucherCodeAttempts; attempt++ {
		v.Code = s.NewCode()
		err = tx.WithTx(ctx, func(sp repository.Store) error {
			return sp.CreateVoucher(ctx, v)
		})
		if !errors.Is(err, apperr.ErrConflict) {
			return err
		}
		s.log.Warn().Str("application_id", v.ApplicationID.String()).Int("attempt", attempt).Msg("voucher code collision, regenerating")
	}
	return err
}

/* =========================================================
   Evaluator / trainer
========================================================= */

func (s *AssignmentService) AssignEvaluator(ctx context.Context, app *appModel.ApplicationModel, evaluator, admin *userModel.UserModel) (*assignModel.EvaluationModel, bool) {
	var out *assignModel.EvaluationModel
	ok := s.assign(ctx, app, evaluator, admin, constants.RoleEvaluator, ActionEvaluatorAssigned, notifModel.ActionEvaluatorAssigned,
		func(tx repository.Store, cur *appModel.ApplicationModel, assignee *userModel.UserModel) (uuid.UUID, error) {
			e := &assignModel.EvaluationModel{
				ApplicationID: cur.ID,
				EvaluatorID:   assignee.ID,
				ConstituentID: cur.UserID,
				AssignedByID:  userID(admin),
				Status:        assignModel.EvaluationRequested,
			}
			if err := tx.CreateEvaluation(ctx, e); err != nil {
				return uuid.Nil, err
			}
			out = e
			return e.ID, nil
		})
	if !ok {
		return nil, false
	}
	return out, true
}

func (s *AssignmentService) AssignTrainer(ctx context.Context, app *appModel.ApplicationModel, trainer, admin *userModel.UserModel) (*assignModel.TrainingSessionModel, bool) {
	var out *assignModel.TrainingSessionModel
	ok := s.assign(ctx, app, trainer, admin, constants.RoleTrainer, ActionTrainerAssigned, notifModel.ActionTrainerAssigned,
		func(tx repository.Store, cur *appModel.ApplicationModel, assignee *userModel.UserModel) (uuid.UUID, error) {
			ts := &assignModel.TrainingSessionModel{
				ApplicationID: cur.ID,
				TrainerID:     assignee.ID,
				ConstituentID: cur.UserID,
				AssignedByID:  userID(admin),
				Status:        assignModel.TrainingRequested,
			}
			if err := tx.CreateTrainingSession(ctx, ts); err != nil {
				return uuid.Nil, err
			}
			out = ts
			return ts.ID, nil
		})
	if !ok {
		return nil, false
	}
	return out, true
}

/* =========================================================
   Child status
========================================================= */

// UpdateVoucherStatus moves the application's voucher along its status graph.
func (s *AssignmentService) UpdateVoucherStatus(ctx context.Context, app *appModel.ApplicationModel, to assignModel.VoucherStatus, admin *userModel.UserModel) (*assignModel.VoucherModel, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	var out *assignModel.VoucherModel
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		v, err := tx.GetVoucherByApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		if !v.Status.CanTransitionTo(to) {
			return &apperr.InvalidTransition{From: string(v.Status), To: string(to)}
		}
		now := s.now()
		if err := tx.SetVoucherStatus(ctx, v.ID, v.Status, to, now); err != nil {
			return err
		}
		if err := s.writeStatusEvent(ctx, tx, admin, ActionVoucherStatusChanged, eventModel.SubjectVoucher, v.ID, string(v.Status), string(to), map[string]any{
			"application_id": v.ApplicationID.String(),
		}); err != nil {
			return err
		}
		v.Status, v.UpdatedAt = to, now
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AssignmentService) UpdateEvaluationStatus(ctx context.Context, id uuid.UUID, to assignModel.EvaluationStatus, admin *userModel.UserModel) (*assignModel.EvaluationModel, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	var out *assignModel.EvaluationModel
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		e, err := tx.GetEvaluation(ctx, id)
		if err != nil {
			return err
		}
		if !e.Status.CanTransitionTo(to) {
			return &apperr.InvalidTransition{From: string(e.Status), To: string(to)}
		}
		now := s.now()
		if err := tx.SetEvaluationStatus(ctx, e.ID, e.Status, to, now); err != nil {
			return err
		}
		if err := s.writeStatusEvent(ctx, tx, admin, ActionEvaluationStatusChanged, eventModel.SubjectApplication, e.ApplicationID, string(e.Status), string(to), map[string]any{
			"record_id": e.ID.String(),
		}); err != nil {
			return err
		}
		e.Status, e.UpdatedAt = to, now
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AssignmentService) UpdateTrainingStatus(ctx context.Context, id uuid.UUID, to assignModel.TrainingSessionStatus, admin *userModel.UserModel) (*assignModel.TrainingSessionModel, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	var out *assignModel.TrainingSessionModel
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		ts, err := tx.GetTrainingSession(ctx, id)
		if err != nil {
			return err
		}
		if !ts.Status.CanTransitionTo(to) {
			return &apperr.InvalidTransition{From: string(ts.Status), To: string(to)}
		}
		now := s.now()
		if err := tx.SetTrainingSessionStatus(ctx, ts.ID, ts.Status, to, now); err != nil {
			return err
		}
		if err := s.writeStatusEvent(ctx, tx, admin, ActionTrainingStatusChanged, eventModel.SubjectApplication, ts.ApplicationID, string(ts.Status), string(to), map[string]any{
			"record_id": ts.ID.String(),
		}); err != nil {
			return err
		}
		ts.Status, ts.UpdatedAt = to, now
		out = ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AssignmentService) writeStatusEvent(ctx context.Context, tx repository.Store, admin *userModel.UserModel,
	action, subjectType string, subjectID uuid.UUID, from, to string, extra map[string]any,
) error {
	meta := map[string]any{"from": from, "to": to}
	for k, v := range extra {
		meta[k] = v
	}
	_, err := s.Events.Write(ctx, tx, eventSvc.Entry{
		ActorID:     userID(admin),
		Action:      action,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Metadata:    meta,
	})
	return err
}

func requireAdmin(u *userModel.UserModel) error {
	if !u.IsAdmin() {
		return &apperr.AuthorizationError{Message: "only an admin can change assignment status"}
	}
	return nil
}

type createChild func(tx repository.Store, cur *appModel.ApplicationModel, assignee *userModel.UserModel) (uuid.UUID, error)

// assign is the shared lock -> check -> create -> event -> notification
// sequence for human assignees. The notification goes to the assignee and is
// delivered as their assignment email.
func (s *AssignmentService) assign(ctx context.Context, app *appModel.ApplicationModel, assignee, admin *userModel.UserModel,
	role, eventAction string, notify notifModel.Action, create createChild,
) bool {
	if !admin.IsAdmin() {
		s.refuse(app, eventAction, &apperr.AuthorizationError{Message: "only an admin can assign " + role + "s"})
		return false
	}
	if app == nil || assignee == nil {
		s.refuse(app, eventAction, apperr.NewValidation(role, "application and assignee are required"))
		return false
	}

	var note *notifModel.NotificationModel
	err := s.Store.WithTx(ctx, func(tx repository.Store) error {
		cur, err := tx.LockApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		fresh, err := tx.GetUser(ctx, assignee.ID)
		if err != nil {
			return err
		}
		if !CanAssign(cur, fresh, role) {
			return errIneligible
		}
		childID, err := create(tx, cur, fresh)
		if err != nil {
			return err
		}
		if _, err := s.Events.Write(ctx, tx, eventSvc.Entry{
			ActorID:     userID(admin),
			Action:      eventAction,
			SubjectType: eventModel.SubjectApplication,
			SubjectID:   cur.ID,
			Metadata: map[string]any{
				"assignee_id":   fresh.ID.String(),
				"assignee_name": fresh.FullName(),
				"record_id":     childID.String(),
			},
		}); err != nil {
			return err
		}
		note = s.Notifier.Prepare(ctx, tx, notifSvc.Params{
			Action:     notify,
			Recipient:  fresh,
			Actor:      admin,
			Notifiable: *cur,
			Context:    map[string]any{"assignee_name": fresh.FullName()},
			Deliver:    true,
		})
		return nil
	})
	if err != nil {
		s.refuse(app, eventAction, err)
		return false
	}
	s.Notifier.Dispatch(ctx, note)
	return true
}

func (s *AssignmentService) refuse(app *appModel.ApplicationModel, action string, err error) {
	ev := s.log.Warn()
	if !errors.Is(err, errIneligible) && !errors.Is(err, apperr.ErrConflict) {
		ev = s.log.Error()
	}
	id := ""
	if app != nil {
		id = app.ID.String()
	}
	ev.Err(err).Str("application_id", id).Str("action", action).Msg("assignment refused")
}

func userID(u *userModel.UserModel) *uuid.UUID {
	if u == nil {
		return nil
	}
	id := u.ID
	return &id
}
