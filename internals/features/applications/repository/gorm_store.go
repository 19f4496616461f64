package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	appModel "vulcan_backend/internals/features/applications/applications/model"
	assignModel "vulcan_backend/internals/features/applications/assignments/model"
	eventModel "vulcan_backend/internals/features/events/events/model"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	userModel "vulcan_backend/internals/features/users/user/model"
	"vulcan_backend/internals/helpers/apperr"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) DB() *gorm.DB { return s.db }

// WithTx runs fn in a transaction. Nested calls become savepoints.
func (s *GormStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) q(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// mapErr translates driver errors into apperr sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.ErrConflict
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.ErrConflict
	}
	return err
}

/* =========================================================
   Applications
========================================================= */

func (s *GormStore) CreateApplication(ctx context.Context, app *appModel.ApplicationModel) error {
	return mapErr(s.q(ctx).Create(app).Error)
}

func (s *GormStore) GetApplication(ctx context.Context, id uuid.UUID) (*appModel.ApplicationModel, error) {
	var app appModel.ApplicationModel
	if err := s.q(ctx).Where("application_id = ?", id).Take(&app).Error; err != nil {
		return nil, mapErr(err)
	}
	return &app, nil
}

// LockApplication reads the row with SELECT ... FOR UPDATE. Only meaningful inside WithTx.
func (s *GormStore) LockApplication(ctx context.Context, id uuid.UUID) (*appModel.ApplicationModel, error) {
	var app appModel.ApplicationModel
	err := s.q(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("application_id = ?", id).
		Take(&app).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &app, nil
}

// UpdateApplicationColumns writes only the named columns from app.
func (s *GormStore) UpdateApplicationColumns(ctx context.Context, app *appModel.ApplicationModel, columns ...string) error {
	if len(columns) == 0 {
		return nil
	}
	res := s.q(ctx).Model(&appModel.ApplicationModel{ID: app.ID}).Select(columns).Updates(app)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// BatchUpdateStatus is a single UPDATE; no per-row audit is written here.
func (s *GormStore) BatchUpdateStatus(ctx context.Context, ids []uuid.UUID, status appModel.ApplicationStatus, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	res := s.q(ctx).Exec(
		`UPDATE applications SET application_status = ?, application_updated_at = ? WHERE application_id = ANY(?::uuid[])`,
		string(status), at, pq.Array(strIDs),
	)
	return res.RowsAffected, mapErr(res.Error)
}

func (s *GormStore) ListApplicationsNeedingReview(ctx context.Context, since time.Time, limit int) ([]appModel.ApplicationModel, error) {
	var rows []appModel.ApplicationModel
	err := s.q(ctx).
		Where("application_needs_review_since IS NOT NULL AND application_needs_review_since < ?", since).
		Order("application_needs_review_since ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, mapErr(err)
}

/* =========================================================
   Proof audit trail
========================================================= */

func (s *GormStore) CreateProofSubmissionAudit(ctx context.Context, a *appModel.ProofSubmissionAuditModel) error {
	return mapErr(s.q(ctx).Create(a).Error)
}

func (s *GormStore) ListProofSubmissionAudits(ctx context.Context, applicationID uuid.UUID) ([]appModel.ProofSubmissionAuditModel, error) {
	var rows []appModel.ProofSubmissionAuditModel
	err := s.q(ctx).Where("proof_submission_audit_application_id = ?", applicationID).
		Order("proof_submission_audit_created_at DESC").Find(&rows).Error
	return rows, mapErr(err)
}

func (s *GormStore) CreateProofReview(ctx context.Context, r *appModel.ProofReviewModel) error {
	return mapErr(s.q(ctx).Create(r).Error)
}

func (s *GormStore) ListProofReviews(ctx context.Context, applicationID uuid.UUID) ([]appModel.ProofReviewModel, error) {
	var rows []appModel.ProofReviewModel
	err := s.q(ctx).Where("proof_review_application_id = ?", applicationID).
		Order("proof_review_created_at DESC").Find(&rows).Error
	return rows, mapErr(err)
}

func (s *GormStore) CreateStatusChange(ctx context.Context, c *appModel.ApplicationStatusChangeModel) error {
	return mapErr(s.q(ctx).Create(c).Error)
}

func (s *GormStore) ListStatusChanges(ctx context.Context, applicationID uuid.UUID) ([]appModel.ApplicationStatusChangeModel, error) {
	var rows []appModel.ApplicationStatusChangeModel
	err := s.q(ctx).Where("status_change_application_id = ?", applicationID).
		Order("status_change_created_at DESC").Find(&rows).Error
	return rows, mapErr(err)
}

/* =========================================================
   Events
========================================================= */

func (s *GormStore) CreateEvent(ctx context.Context, e *eventModel.EventModel) error {
	return mapErr(s.q(ctx).Create(e).Error)
}

func (s *GormStore) ListEvents(ctx context.Context, subjectType string, subjectID uuid.UUID) ([]eventModel.EventModel, error) {
	var rows []eventModel.EventModel
	err := s.q(ctx).Where("event_subject_type = ? AND event_subject_id = ?", subjectType, subjectID).
		Order("event_created_at DESC").Find(&rows).Error
	return rows, mapErr(err)
}

/* =========================================================
   Notifications
========================================================= */

func (s *GormStore) CreateNotification(ctx context.Context, n *notifModel.NotificationModel) error {
	return mapErr(s.q(ctx).Create(n).Error)
}

func (s *GormStore) GetNotification(ctx context.Context, id uuid.UUID) (*notifModel.NotificationModel, error) {
	var n notifModel.NotificationModel
	if err := s.q(ctx).Where("notification_id = ?", id).Take(&n).Error; err != nil {
		return nil, mapErr(err)
	}
	return &n, nil
}

func (s *GormStore) UpdateNotificationDelivery(ctx context.Context, id uuid.UUID, status notifModel.DeliveryStatus, metadata datatypes.JSONMap) error {
	res := s.q(ctx).Model(&notifModel.NotificationModel{}).
		Where("notification_id = ?", id).
		Updates(map[string]any{
			"notification_delivery_status": status,
			"notification_metadata":        metadata,
		})
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *GormStore) MarkNotificationRead(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := s.q(ctx).Model(&notifModel.NotificationModel{}).
		Where("notification_id = ? AND notification_read_at IS NULL", id).
		Update("notification_read_at", at)
	return mapErr(res.Error)
}

func (s *GormStore) ListNotificationsFor(ctx context.Context, notifiableType string, notifiableID uuid.UUID) ([]notifModel.NotificationModel, error) {
	var rows []notifModel.NotificationModel
	err := s.q(ctx).
		Where("notification_notifiable_type = ? AND notification_notifiable_id = ?", notifiableType, notifiableID).
		Order("notification_created_at DESC").Find(&rows).Error
	return rows, mapErr(err)
}

// ListRetryableNotifications returns failed rows plus pending rows older than staleBefore.
func (s *GormStore) ListRetryableNotifications(ctx context.Context, staleBefore time.Time, limit int) ([]notifModel.NotificationModel, error) {
	var rows []notifModel.NotificationModel
	err := s.q(ctx).
		Where("notification_delivery_status = ?", notifModel.DeliveryError).
		Or("notification_delivery_status = ? AND notification_created_at < ?", notifModel.DeliveryPending, staleBefore).
		Order("notification_created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, mapErr(err)
}

func (s *GormStore) GetEmailTemplate(ctx context.Context, name string) (*notifModel.EmailTemplateModel, error) {
	var t notifModel.EmailTemplateModel
	if err := s.q(ctx).Where("email_template_name = ?", name).Take(&t).Error; err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

/* =========================================================
   Children
========================================================= */

func (s *GormStore) GetVoucherByApplication(ctx context.Context, applicationID uuid.UUID) (*assignModel.VoucherModel, error) {
	var v assignModel.VoucherModel
	if err := s.q(ctx).Where("voucher_application_id = ?", applicationID).Take(&v).Error; err != nil {
		return nil, mapErr(err)
	}
	return &v, nil
}

func (s *GormStore) CreateVoucher(ctx context.Context, v *assignModel.VoucherModel) error {
	return mapErr(s.q(ctx).Create(v).Error)
}

func (s *GormStore) CreateEvaluation(ctx context.Context, e *assignModel.EvaluationModel) error {
	return mapErr(s.q(ctx).Create(e).Error)
}

func (s *GormStore) CreateTrainingSession(ctx context.Context, t *assignModel.TrainingSessionModel) error {
	return mapErr(s.q(ctx).Create(t).Error)
}

func (s *GormStore) GetEvaluation(ctx context.Context, id uuid.UUID) (*assignModel.EvaluationModel, error) {
	var e assignModel.EvaluationModel
	if err := s.q(ctx).Where("evaluation_id = ?", id).Take(&e).Error; err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

func (s *GormStore) GetTrainingSession(ctx context.Context, id uuid.UUID) (*assignModel.TrainingSessionModel, error) {
	var t assignModel.TrainingSessionModel
	if err := s.q(ctx).Where("training_session_id = ?", id).Take(&t).Error; err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (s *GormStore) SetVoucherStatus(ctx context.Context, id uuid.UUID, from, to assignModel.VoucherStatus, at time.Time) error {
	res := s.q(ctx).Model(&assignModel.VoucherModel{}).
		Where("voucher_id = ? AND voucher_status = ?", id, from).
		Updates(map[string]any{"voucher_status": to, "voucher_updated_at": at})
	return casResult(res)
}

func (s *GormStore) SetEvaluationStatus(ctx context.Context, id uuid.UUID, from, to assignModel.EvaluationStatus, at time.Time) error {
	res := s.q(ctx).Model(&assignModel.EvaluationModel{}).
		Where("evaluation_id = ? AND evaluation_status = ?", id, from).
		Updates(map[string]any{"evaluation_status": to, "evaluation_updated_at": at})
	return casResult(res)
}

func (s *GormStore) SetTrainingSessionStatus(ctx context.Context, id uuid.UUID, from, to assignModel.TrainingSessionStatus, at time.Time) error {
	res := s.q(ctx).Model(&assignModel.TrainingSessionModel{}).
		Where("training_session_id = ? AND training_session_status = ?", id, from).
		Updates(map[string]any{"training_session_status": to, "training_session_updated_at": at})
	return casResult(res)
}

func casResult(res *gorm.DB) error {
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrConflict
	}
	return nil
}

/* =========================================================
   Users
========================================================= */

func (s *GormStore) GetUser(ctx context.Context, id uuid.UUID) (*userModel.UserModel, error) {
	var u userModel.UserModel
	if err := s.q(ctx).Where("id = ?", id).Take(&u).Error; err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*userModel.UserModel, error) {
	var u userModel.UserModel
	err := s.q(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).Take(&u).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *GormStore) ListUsersByRole(ctx context.Context, role string) ([]userModel.UserModel, error) {
	var rows []userModel.UserModel
	err := s.q(ctx).Where("role = ? AND is_active = ?", role, true).Order("created_at ASC").Find(&rows).Error
	return rows, mapErr(err)
}
