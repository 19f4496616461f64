// Package repository is the persistence boundary for the application lifecycle.
// GormStore talks to PostgreSQL; MemoryStore backs tests and local runs.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	appModel "vulcan_backend/internals/features/applications/applications/model"
	assignModel "vulcan_backend/internals/features/applications/assignments/model"
	eventModel "vulcan_backend/internals/features/events/events/model"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	userModel "vulcan_backend/internals/features/users/user/model"
)

// Store is implemented by both the gorm and the in-memory store. Inside WithTx
// the callback receives a Store bound to the transaction; returning an error
// rolls everything back.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// applications
	CreateApplication(ctx context.Context, app *appModel.ApplicationModel) error
	GetApplication(ctx context.Context, id uuid.UUID) (*appModel.ApplicationModel, error)
	LockApplication(ctx context.Context, id uuid.UUID) (*appModel.ApplicationModel, error)
	UpdateApplicationColumns(ctx context.Context, app *appModel.ApplicationModel, columns ...string) error
	BatchUpdateStatus(ctx context.Context, ids []uuid.UUID, status appModel.ApplicationStatus, at time.Time) (int64, error)
	ListApplicationsNeedingReview(ctx context.Context, since time.Time, limit int) ([]appModel.ApplicationModel, error)

	// proof audit trail
	CreateProofSubmissionAudit(ctx context.Context, a *appModel.ProofSubmissionAuditModel) error
	ListProofSubmissionAudits(ctx context.Context, applicationID uuid.UUID) ([]appModel.ProofSubmissionAuditModel, error)
	CreateProofReview(ctx context.Context, r *appModel.ProofReviewModel) error
	ListProofReviews(ctx context.Context, applicationID uuid.UUID) ([]appModel.ProofReviewModel, error)
	CreateStatusChange(ctx context.Context, c *appModel.ApplicationStatusChangeModel) error
	ListStatusChanges(ctx context.Context, applicationID uuid.UUID) ([]appModel.ApplicationStatusChangeModel, error)

	// events
	CreateEvent(ctx context.Context, e *eventModel.EventModel) error
	ListEvents(ctx context.Context, subjectType string, subjectID uuid.UUID) ([]eventModel.EventModel, error)

	// notifications
	CreateNotification(ctx context.Context, n *notifModel.NotificationModel) error
	GetNotification(ctx context.Context, id uuid.UUID) (*notifModel.NotificationModel, error)
	UpdateNotificationDelivery(ctx context.Context, id uuid.UUID, status notifModel.DeliveryStatus, metadata datatypes.JSONMap) error
	MarkNotificationRead(ctx context.Context, id uuid.UUID, at time.Time) error
	ListNotificationsFor(ctx context.Context, notifiableType string, notifiableID uuid.UUID) ([]notifModel.NotificationModel, error)
	ListRetryableNotifications(ctx context.Context, staleBefore time.Time, limit int) ([]notifModel.NotificationModel, error)
	GetEmailTemplate(ctx context.Context, name string) (*notifModel.EmailTemplateModel, error)

	// children
	GetVoucherByApplication(ctx context.Context, applicationID uuid.UUID) (*assignModel.VoucherModel, error)
	CreateVoucher(ctx context.Context, v *assignModel.VoucherModel) error
	CreateEvaluation(ctx context.Context, e *assignModel.EvaluationModel) error
	CreateTrainingSession(ctx context.Context, s *assignModel.TrainingSessionModel) error
	GetEvaluation(ctx context.Context, id uuid.UUID) (*assignModel.EvaluationModel, error)
	GetTrainingSession(ctx context.Context, id uuid.UUID) (*assignModel.TrainingSessionModel, error)
	// The Set*Status methods only write when the row is still in from and
	// return ErrConflict otherwise.
	SetVoucherStatus(ctx context.Context, id uuid.UUID, from, to assignModel.VoucherStatus, at time.Time) error
	SetEvaluationStatus(ctx context.Context, id uuid.UUID, from, to assignModel.EvaluationStatus, at time.Time) error
	SetTrainingSessionStatus(ctx context.Context, id uuid.UUID, from, to assignModel.TrainingSessionStatus, at time.Time) error

	// users
	GetUser(ctx context.Context, id uuid.UUID) (*userModel.UserModel, error)
	FindUserByEmail(ctx context.Context, email string) (*userModel.UserModel, error)
	ListUsersByRole(ctx context.Context, role string) ([]userModel.UserModel, error)
}
