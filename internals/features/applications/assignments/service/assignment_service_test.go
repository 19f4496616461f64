package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vulcan_backend/internals/constants"
	appModel "vulcan_backend/internals/features/applications/applications/model"
	assignModel "vulcan_backend/internals/features/applications/assignments/model"
	"vulcan_backend/internals/features/applications/repository"
	eventSvc "vulcan_backend/internals/features/events/events/service"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	notifSvc "vulcan_backend/internals/features/notifications/notifications/service"
	policyModel "vulcan_backend/internals/features/policies/policies/model"
	policySvc "vulcan_backend/internals/features/policies/policies/service"
	userModel "vulcan_backend/internals/features/users/user/model"
	"vulcan_backend/internals/helpers/apperr"
	"vulcan_backend/internals/helpers/dbtime"
	"vulcan_backend/internals/jobs"
)

type fixture struct {
	store *repository.MemoryStore
	queue *jobs.ManualQueue
	svc   *AssignmentService
	owner *userModel.UserModel
	admin *userModel.UserModel
	clock *dbtime.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := dbtime.NewFakeClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	store := repository.NewMemoryStore(clock.Clock())
	queue := &jobs.ManualQueue{}
	policies := policySvc.NewStaticStore(map[string]int{
		policyModel.KeyVoucherInitialValue:         750,
		policyModel.KeyVoucherValidityPeriodMonths: 3,
	})
	notifier := notifSvc.NewNotificationService(store, queue, policies, map[string]notifSvc.Mailer{
		notifSvc.MailerApplication: &notifSvc.MockMailer{},
		notifSvc.MailerAssignment:  &notifSvc.MockMailer{},
	})
	notifier.Clock = clock.Clock()
	svc := NewAssignmentService(store, eventSvc.NewRecorder(store), notifier, policies)
	svc.Clock = clock.Clock()

	return &fixture{
		store: store,
		queue: queue,
		svc:   svc,
		clock: clock,
		owner: store.PutUser(&userModel.UserModel{FirstName: "Lee", Email: "lee@example.org", IsActive: true}),
		admin: store.PutUser(&userModel.UserModel{FirstName: "Ada", Email: "ada@example.org", Role: constants.RoleAdmin, IsActive: true}),
	}
}

func (f *fixture) approvedApp(t *testing.T, certified bool) *appModel.ApplicationModel {
	t.Helper()
	app := &appModel.ApplicationModel{UserID: f.owner.ID, Status: appModel.ApplicationStatusApproved}
	if certified {
		app.MedicalCertificationStatus = appModel.CertificationApproved
	}
	require.NoError(t, f.store.CreateApplication(context.Background(), app))
	return app
}

func TestAssignVoucher_AtMostOneUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	app := f.approvedApp(t, true)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := f.svc.AssignVoucher(context.Background(), app, f.admin); ok {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, 1, f.store.CountVouchers())
	assert.Len(t, f.store.AllEvents(), 1)
	assert.Len(t, f.store.AllNotifications(), 1)
}

func TestAssignVoucher_UsesPolicies(t *testing.T) {
	f := newFixture(t)
	app := f.approvedApp(t, true)

	v, ok := f.svc.AssignVoucher(context.Background(), app, f.admin)
	require.True(t, ok)
	assert.Equal(t, 750, v.InitialValue)
	assert.Equal(t, 750, v.RemainingValue)
	assert.Equal(t, f.clock.Now().AddDate(0, 3, 0), v.ExpiresAt)
	assert.Len(t, v.Code, 12)

	notes := f.store.AllNotifications()
	require.Len(t, notes, 1)
	assert.Equal(t, notifModel.ActionVoucherAssigned, notes[0].Action)
	assert.Contains(t, notes[0].Message(), v.Code)
	require.Len(t, f.queue.Jobs(), 1)
}

func TestAssignVoucher_Ineligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	uncertified := f.approvedApp(t, false)
	_, ok := f.svc.AssignVoucher(ctx, uncertified, f.admin)
	assert.False(t, ok)

	pending := &appModel.ApplicationModel{UserID: f.owner.ID, Status: appModel.ApplicationStatusInProgress, MedicalCertificationStatus: appModel.CertificationApproved}
	require.NoError(t, f.store.CreateApplication(ctx, pending))
	_, ok = f.svc.AssignVoucher(ctx, pending, f.admin)
	assert.False(t, ok)

	certified := f.approvedApp(t, true)
	_, ok = f.svc.AssignVoucher(ctx, certified, f.owner)
	assert.False(t, ok)
	_, ok = f.svc.AssignVoucher(ctx, nil, f.admin)
	assert.False(t, ok)

	assert.Zero(t, f.store.CountVouchers())
	assert.Empty(t, f.store.AllEvents())
}

func TestAssignVoucher_EventFailureAbortsSequence(t *testing.T) {
	f := newFixture(t)
	app := f.approvedApp(t, true)
	f.store.FailOn("CreateEvent", errors.New("check constraint"))

	_, ok := f.svc.AssignVoucher(context.Background(), app, f.admin)
	assert.False(t, ok)
	assert.Zero(t, f.store.CountVouchers())
	assert.Empty(t, f.store.AllNotifications())
	assert.Empty(t, f.queue.Jobs())
}

func codes(seq ...string) func() string {
	i := 0
	return func() string {
		c := seq[i%len(seq)]
		i++
		return c
	}
}

func TestAssignVoucher_RegeneratesCollidingCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.NewCode = codes("TAKENCODE234")
	first, ok := f.svc.AssignVoucher(ctx, f.approvedApp(t, true), f.admin)
	require.True(t, ok)
	require.Equal(t, "TAKENCODE234", first.Code)

	f.svc.NewCode = codes("TAKENCODE234", "TAKENCODE234", "FRESHCODE567")
	second, ok := f.svc.AssignVoucher(ctx, f.approvedApp(t, true), f.admin)
	require.True(t, ok)
	assert.Equal(t, "FRESHCODE567", second.Code)
	assert.Equal(t, 2, f.store.CountVouchers())
	assert.Len(t, f.store.AllEvents(), 2)
}

func TestAssignVoucher_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.NewCode = codes("TAKENCODE234")
	_, ok := f.svc.AssignVoucher(ctx, f.approvedApp(t, true), f.admin)
	require.True(t, ok)

	_, ok = f.svc.AssignVoucher(ctx, f.approvedApp(t, true), f.admin)
	assert.False(t, ok)
	assert.Equal(t, 1, f.store.CountVouchers())
	assert.Len(t, f.store.AllEvents(), 1)
	assert.Len(t, f.store.AllNotifications(), 1)
}

func TestAssignEvaluatorAndTrainer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.approvedApp(t, false)
	evaluator := f.store.PutUser(&userModel.UserModel{FirstName: "Eve", LastName: "Stone", Email: "eve@example.org", Role: constants.RoleEvaluator, IsActive: true})
	trainer := f.store.PutUser(&userModel.UserModel{FirstName: "Tom", Email: "tom@example.org", Role: constants.RoleTrainer, IsActive: true})

	_, ok := f.svc.AssignEvaluator(ctx, app, trainer, f.admin)
	assert.False(t, ok)

	ev, ok := f.svc.AssignEvaluator(ctx, app, evaluator, f.admin)
	require.True(t, ok)
	assert.Equal(t, evaluator.ID, ev.EvaluatorID)
	assert.Equal(t, f.owner.ID, ev.ConstituentID)

	ts, ok := f.svc.AssignTrainer(ctx, app, trainer, f.admin)
	require.True(t, ok)
	assert.Equal(t, trainer.ID, ts.TrainerID)

	assert.Equal(t, 1, f.store.CountEvaluations())
	assert.Equal(t, 1, f.store.CountTrainingSessions())

	var toEvaluator *notifModel.NotificationModel
	for _, n := range f.store.AllNotifications() {
		if n.Action == notifModel.ActionEvaluatorAssigned {
			n := n
			toEvaluator = &n
		}
	}
	require.NotNil(t, toEvaluator)
	assert.Equal(t, evaluator.ID, toEvaluator.RecipientID)
	assert.Contains(t, toEvaluator.Message(), "Eve Stone")
	assert.Len(t, f.queue.Jobs(), 2)

	draft := &appModel.ApplicationModel{UserID: f.owner.ID}
	require.NoError(t, f.store.CreateApplication(ctx, draft))
	_, ok = f.svc.AssignTrainer(ctx, draft, trainer, f.admin)
	assert.False(t, ok)
}

func eventsNamed(store *repository.MemoryStore, action string) int {
	n := 0
	for _, e := range store.AllEvents() {
		if e.Action == action {
			n++
		}
	}
	return n
}

func TestUpdateVoucherStatus_FollowsGraph(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.approvedApp(t, true)
	_, ok := f.svc.AssignVoucher(ctx, app, f.admin)
	require.True(t, ok)

	_, err := f.svc.UpdateVoucherStatus(ctx, app, assignModel.VoucherRedeemed, f.admin)
	var it *apperr.InvalidTransition
	require.ErrorAs(t, err, &it)
	assert.Equal(t, "issued", it.From)

	f.clock.Advance(time.Hour)
	v, err := f.svc.UpdateVoucherStatus(ctx, app, assignModel.VoucherActive, f.admin)
	require.NoError(t, err)
	assert.Equal(t, assignModel.VoucherActive, v.Status)
	assert.Equal(t, f.clock.Now(), v.UpdatedAt)

	stored, err := f.store.GetVoucherByApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, assignModel.VoucherActive, stored.Status)
	assert.Equal(t, 1, eventsNamed(f.store, ActionVoucherStatusChanged))

	_, err = f.svc.UpdateVoucherStatus(ctx, app, assignModel.VoucherRedeemed, f.owner)
	var ae *apperr.AuthorizationError
	assert.ErrorAs(t, err, &ae)

	_, err = f.svc.UpdateVoucherStatus(ctx, f.approvedApp(t, true), assignModel.VoucherActive, f.admin)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateEvaluationAndTrainingStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.approvedApp(t, false)
	evaluator := f.store.PutUser(&userModel.UserModel{FirstName: "Eve", Email: "eve@example.org", Role: constants.RoleEvaluator, IsActive: true})
	trainer := f.store.PutUser(&userModel.UserModel{FirstName: "Tom", Email: "tom@example.org", Role: constants.RoleTrainer, IsActive: true})
	ev, ok := f.svc.AssignEvaluator(ctx, app, evaluator, f.admin)
	require.True(t, ok)
	ts, ok := f.svc.AssignTrainer(ctx, app, trainer, f.admin)
	require.True(t, ok)

	_, err := f.svc.UpdateEvaluationStatus(ctx, ev.ID, assignModel.EvaluationCompleted, f.admin)
	var it *apperr.InvalidTransition
	require.ErrorAs(t, err, &it)

	for _, to := range []assignModel.EvaluationStatus{assignModel.EvaluationScheduled, assignModel.EvaluationConfirmed, assignModel.EvaluationCompleted} {
		got, err := f.svc.UpdateEvaluationStatus(ctx, ev.ID, to, f.admin)
		require.NoError(t, err)
		assert.Equal(t, to, got.Status)
	}
	stored, err := f.store.GetEvaluation(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, assignModel.EvaluationCompleted, stored.Status)
	assert.Equal(t, 3, eventsNamed(f.store, ActionEvaluationStatusChanged))

	_, err = f.svc.UpdateTrainingStatus(ctx, ts.ID, assignModel.TrainingScheduled, f.admin)
	require.NoError(t, err)
	_, err = f.svc.UpdateTrainingStatus(ctx, ts.ID, assignModel.TrainingNoShow, f.admin)
	require.NoError(t, err)
	_, err = f.svc.UpdateTrainingStatus(ctx, ts.ID, assignModel.TrainingCancelled, f.admin)
	assert.ErrorAs(t, err, &it)
	assert.Equal(t, 2, eventsNamed(f.store, ActionTrainingStatusChanged))
}

func TestUpdateStatus_EventFailureLeavesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.approvedApp(t, true)
	_, ok := f.svc.AssignVoucher(ctx, app, f.admin)
	require.True(t, ok)
	f.store.FailOn("CreateEvent", errors.New("check constraint"))

	_, err := f.svc.UpdateVoucherStatus(ctx, app, assignModel.VoucherCancelled, f.admin)
	require.Error(t, err)
	stored, err := f.store.GetVoucherByApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, assignModel.VoucherIssued, stored.Status)
}
