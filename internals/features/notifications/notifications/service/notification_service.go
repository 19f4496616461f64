// file: internals/features/notifications/notifications/service/notification_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"vulcan_backend/internals/features/applications/repository"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	policyModel "vulcan_backend/internals/features/policies/policies/model"
	policySvc "vulcan_backend/internals/features/policies/policies/service"
	userModel "vulcan_backend/internals/features/users/user/model"
	"vulcan_backend/internals/helpers/apperr"
	"vulcan_backend/internals/helpers/dbtime"
	"vulcan_backend/internals/helpers/logger"
	"vulcan_backend/internals/helpers/metrics"
	"vulcan_backend/internals/jobs"
)

const (
	defaultMaxAttempts = 5
	stalePendingAfter  = 15 * time.Minute
)

type Params struct {
	Action     notifModel.Action
	Recipient  *userModel.UserModel
	Actor      *userModel.UserModel
	Notifiable Notifiable
	Channel    notifModel.Channel
	Context    map[string]any
	Deliver    bool
}

type paramsCheck struct {
	Action      string    `json:"action" validate:"required"`
	RecipientID uuid.UUID `json:"recipient" validate:"required"`
	Channel     string    `json:"channel" validate:"oneof=email none"`
}

var validate = apperr.NewValidator()

// NotificationService persists notifications and delivers them after commit.
// Persisting is separate from delivering: a row exists even when the mail never goes out.
type NotificationService struct {
	Store    repository.Store
	Queue    jobs.Queue
	Policies policySvc.Store
	Mailers  map[string]Mailer
	Composer Composer
	Clock    dbtime.Clock
	BatchMax int
	log      zerolog.Logger
}

func NewNotificationService(store repository.Store, queue jobs.Queue, policies policySvc.Store, mailers map[string]Mailer) *NotificationService {
	if mailers == nil {
		mailers = map[string]Mailer{}
	}
	return &NotificationService{
		Store:    store,
		Queue:    queue,
		Policies: policies,
		Mailers:  mailers,
		Clock:    dbtime.NowUTC,
		BatchMax: 200,
		log:      logger.For("notifications"),
	}
}

func (s *NotificationService) now() time.Time { return s.Clock.OrDefault()() }

// CreateAndDeliver persists outside any transaction and, when p.Deliver is set,
// dispatches delivery. Returns nil when the row could not be persisted.
func (s *NotificationService) CreateAndDeliver(ctx context.Context, p Params) *notifModel.NotificationModel {
	n := s.Prepare(ctx, s.Store, p)
	if n != nil && p.Deliver {
		s.Dispatch(ctx, n)
	}
	return n
}

// Prepare persists inside tx under a savepoint. Failures are logged and
// counted; the caller's transaction carries on and nil is returned.
func (s *NotificationService) Prepare(ctx context.Context, tx repository.Store, p Params) *notifModel.NotificationModel {
	channel := p.Channel
	if channel == "" {
		channel = notifModel.ChannelEmail
	}
	if !p.Deliver {
		channel = notifModel.ChannelNone
	}

	check := paramsCheck{Action: string(p.Action), Channel: string(channel)}
	if p.Recipient != nil {
		check.RecipientID = p.Recipient.ID
	}
	if err := validate.Struct(check); err != nil {
		s.fail(p.Action, apperr.FromValidator(err))
		return nil
	}

	meta := datatypes.JSONMap{}
	for k, v := range p.Context {
		meta[k] = v
	}
	meta[notifModel.MetaMessage] = s.Composer.Generate(p.Action, p.Notifiable, p.Actor, p.Context)
	meta[notifModel.MetaChannel] = string(channel)
	meta[notifModel.MetaAttempts] = 0

	n := &notifModel.NotificationModel{
		RecipientID:    p.Recipient.ID,
		Action:         p.Action,
		DeliveryStatus: notifModel.DeliveryPending,
		Metadata:       meta,
	}
	if p.Actor != nil {
		id := p.Actor.ID
		n.ActorID = &id
	}
	if identifier(p.Notifiable) != "" {
		id := p.Notifiable.NotifiableID()
		n.NotifiableType = p.Notifiable.NotifiableType()
		n.NotifiableID = &id
	}

	err := tx.WithTx(ctx, func(inner repository.Store) error {
		return inner.CreateNotification(ctx, n)
	})
	if err != nil {
		s.fail(p.Action, err)
		return nil
	}
	return n
}

func (s *NotificationService) fail(action notifModel.Action, err error) {
	s.log.Error().Err(err).Str("action", string(action)).Msg("notification not persisted")
	metrics.RecordAuditFailure("notification")
}

// Dispatch enqueues delivery. Call it after the creating transaction commits.
func (s *NotificationService) Dispatch(ctx context.Context, n *notifModel.NotificationModel) {
	if !s.deliverable(n) {
		return
	}
	if err := s.Queue.Enqueue(ctx, &DeliverNotificationJob{Service: s, NotificationID: n.ID}); err != nil {
		s.log.Warn().Err(err).Str("notification_id", n.ID.String()).Msg("delivery not enqueued, left for retry sweep")
	}
}

// deliverable: email channel and a routed action. Everything else stays pending.
func (s *NotificationService) deliverable(n *notifModel.NotificationModel) bool {
	if n == nil || s.Queue == nil {
		return false
	}
	if ch, _ := n.Metadata[notifModel.MetaChannel].(string); ch == string(notifModel.ChannelNone) {
		return false
	}
	route, ok := MailerFor(n.Action)
	if !ok {
		return false
	}
	_, ok = s.Mailers[route.Mailer]
	return ok
}

// Deliver sends one notification and records the outcome in place. A sent
// notification is never re-sent.
func (s *NotificationService) Deliver(ctx context.Context, id uuid.UUID) error {
	n, err := s.Store.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n.DeliveryStatus == notifModel.DeliverySent {
		return nil
	}
	route, ok := MailerFor(n.Action)
	if !ok {
		return nil
	}
	mailer, ok := s.Mailers[route.Mailer]
	if !ok {
		s.log.Warn().Str("mailer", route.Mailer).Str("action", string(n.Action)).Msg("mailer not registered")
		return nil
	}

	recipient, err := s.Store.GetUser(ctx, n.RecipientID)
	if err != nil {
		return s.recordFailure(ctx, n, fmt.Errorf("load recipient: %w", err))
	}

	res, sendErr := mailer.Send(ctx, route.Template, recipient.Email, templateVars(n, recipient))
	if sendErr != nil {
		return s.recordFailure(ctx, n, sendErr)
	}

	meta := copyMeta(n.Metadata)
	meta[notifModel.MetaAttempts] = n.Attempts() + 1
	meta[notifModel.MetaMessageID] = res.MessageID
	meta[notifModel.MetaDeliveredAt] = res.DeliveredAt.Format(time.RFC3339)
	meta[notifModel.MetaTemplate] = route.Template
	delete(meta, notifModel.MetaErrorMessage)
	if err := s.Store.UpdateNotificationDelivery(ctx, n.ID, notifModel.DeliverySent, meta); err != nil {
		// Sent but not recorded: a retry may send twice.
		s.log.Error().Err(err).Str("notification_id", n.ID.String()).Msg("delivery status not saved")
		return nil
	}
	metrics.RecordDelivery(string(notifModel.DeliverySent))
	return nil
}

func (s *NotificationService) recordFailure(ctx context.Context, n *notifModel.NotificationModel, cause error) error {
	meta := copyMeta(n.Metadata)
	meta[notifModel.MetaAttempts] = n.Attempts() + 1
	meta[notifModel.MetaErrorMessage] = cause.Error()
	if err := s.Store.UpdateNotificationDelivery(ctx, n.ID, notifModel.DeliveryError, meta); err != nil {
		s.log.Error().Err(err).Str("notification_id", n.ID.String()).Msg("delivery error not saved")
	}
	metrics.RecordDelivery(string(notifModel.DeliveryError))
	s.log.Warn().Err(cause).Str("notification_id", n.ID.String()).Str("action", string(n.Action)).Msg("delivery failed")
	return &apperr.DeliveryError{NotificationID: n.ID.String(), Err: cause}
}

func templateVars(n *notifModel.NotificationModel, recipient *userModel.UserModel) map[string]string {
	vars := map[string]string{}
	for k, v := range n.Metadata {
		if v != nil {
			vars[k] = fmt.Sprint(v)
		}
	}
	vars["user_first_name"] = recipient.FirstName
	vars["user_full_name"] = recipient.FullName()
	vars["notification_message"] = n.Message()
	vars["action"] = string(n.Action)
	return vars
}

func copyMeta(in datatypes.JSONMap) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range in {
		out[k] = v
	}
	return out
}

// MarkRead is allowed for the recipient only.
func (s *NotificationService) MarkRead(ctx context.Context, id uuid.UUID, user *userModel.UserModel) error {
	n, err := s.Store.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if user == nil || n.RecipientID != user.ID {
		return &apperr.AuthorizationError{Message: "only the recipient can mark a notification as read"}
	}
	return s.Store.MarkNotificationRead(ctx, id, s.now())
}

/* =========================================================
   Retry sweep
========================================================= */

// RetryUndelivered re-enqueues failed and stale pending notifications that
// still have attempts left. Returns how many were enqueued.
func (s *NotificationService) RetryUndelivered(ctx context.Context) (int, error) {
	maxAttempts := policySvc.IntOr(ctx, s.Policies, policyModel.KeyNotificationMaxAttempts, defaultMaxAttempts)
	rows, err := s.Store.ListRetryableNotifications(ctx, s.now().Add(-stalePendingAfter), s.BatchMax)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range rows {
		row := rows[i]
		if row.Attempts() >= maxAttempts || !s.deliverable(&row) {
			continue
		}
		if err := s.Queue.Enqueue(ctx, &DeliverNotificationJob{Service: s, NotificationID: row.ID}); err != nil {
			s.log.Warn().Err(err).Msg("retry sweep stopped, queue unavailable")
			break
		}
		n++
	}
	return n, nil
}

func (s *NotificationService) StartRetryCron(schedule string) (*cron.Cron, error) {
	if schedule == "" {
		schedule = "*/5 * * * *"
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		n, err := s.RetryUndelivered(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("retry sweep failed")
			return
		}
		if n > 0 {
			s.log.Info().Int("enqueued", n).Msg("retry sweep")
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	s.log.Info().Str("schedule", schedule).Msg("notification retry sweep started")
	return c, nil
}

/* =========================================================
   Job
========================================================= */

type DeliverNotificationJob struct {
	Service        *NotificationService
	NotificationID uuid.UUID
}

func (j *DeliverNotificationJob) Name() string { return "deliver_notification" }
func (j *DeliverNotificationJob) Paced() bool  { return true }

func (j *DeliverNotificationJob) Run(ctx context.Context) error {
	return j.Service.Deliver(ctx, j.NotificationID)
}
