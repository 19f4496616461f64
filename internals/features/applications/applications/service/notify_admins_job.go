package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"vulcan_backend/internals/constants"
	appModel "vulcan_backend/internals/features/applications/applications/model"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	notifSvc "vulcan_backend/internals/features/notifications/notifications/service"
	policyModel "vulcan_backend/internals/features/policies/policies/model"
	policySvc "vulcan_backend/internals/features/policies/policies/service"
)

// NotifyAdminsJob tells every active admin that a proof is waiting for review.
type NotifyAdminsJob struct {
	Service       *ProofAttachmentService
	ApplicationID uuid.UUID
	ProofType     appModel.ProofType
	Action        notifModel.Action
}

func (j *NotifyAdminsJob) Name() string { return "notify_admins" }

func (j *NotifyAdminsJob) Run(ctx context.Context) error {
	s := j.Service
	app, err := s.Store.GetApplication(ctx, j.ApplicationID)
	if err != nil {
		return err
	}
	admins, err := s.Store.ListUsersByRole(ctx, constants.RoleAdmin)
	if err != nil {
		return err
	}
	hours := policySvc.IntOr(ctx, s.Policies, policyModel.KeyProofReviewReminderHours, constants.DefaultReviewReminderHours)

	var failed int
	for i := range admins {
		admin := admins[i]
		extra := map[string]any{"hours": hours}
		if j.ProofType != "" {
			extra["proof_type"] = string(j.ProofType)
		}
		if n := s.Notifier.CreateAndDeliver(ctx, notifSvc.Params{
			Action:     j.Action,
			Recipient:  &admin,
			Notifiable: *app,
			Channel:    notifModel.ChannelEmail,
			Context:    extra,
			Deliver:    true,
		}); n == nil {
			failed++
		}
	}
	if failed > 0 && failed == len(admins) {
		return errors.New("no admin notification could be persisted")
	}
	return nil
}

/* =========================================================
   Review reminders
========================================================= */

const reminderBatch = 100

// SendReviewReminders nudges admins about proofs waiting longer than the
// reminder window. An application is reminded at most once per window.
func (s *ProofAttachmentService) SendReviewReminders(ctx context.Context) (int, error) {
	hours := policySvc.IntOr(ctx, s.Policies, policyModel.KeyProofReviewReminderHours, constants.DefaultReviewReminderHours)
	window := time.Duration(hours) * time.Hour
	cutoff := s.now().Add(-window)

	apps, err := s.Store.ListApplicationsNeedingReview(ctx, cutoff, reminderBatch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for i := range apps {
		app := apps[i]
		if s.remindedSince(ctx, app.ID, cutoff) {
			continue
		}
		s.enqueue(ctx, &NotifyAdminsJob{
			Service:       s,
			ApplicationID: app.ID,
			Action:        notifModel.ActionProofReviewOverdue,
		})
		sent++
	}
	if sent > 0 {
		s.log.Info().Int("applications", sent).Msg("review reminders enqueued")
	}
	return sent, nil
}

func (s *ProofAttachmentService) remindedSince(ctx context.Context, appID uuid.UUID, since time.Time) bool {
	notes, err := s.Store.ListNotificationsFor(ctx, appModel.ApplicationModel{}.NotifiableType(), appID)
	if err != nil {
		return false
	}
	for _, n := range notes {
		if n.Action == notifModel.ActionProofReviewOverdue && n.CreatedAt.After(since) {
			return true
		}
	}
	return false
}

// StartReviewReminderCron runs SendReviewReminders on schedule.
func (s *ProofAttachmentService) StartReviewReminderCron(schedule string) (*cron.Cron, error) {
	if schedule == "" {
		schedule = "@hourly"
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.SendReviewReminders(ctx); err != nil {
			s.log.Error().Err(err).Msg("review reminders failed")
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
