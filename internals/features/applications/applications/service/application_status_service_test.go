package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appModel "vulcan_backend/internals/features/applications/applications/model"
	eventModel "vulcan_backend/internals/features/events/events/model"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	userModel "vulcan_backend/internals/features/users/user/model"
	"vulcan_backend/internals/helpers/apperr"
)

func TestApproveAndRejectRefuseTerminalStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.newApplication(t, appModel.ApplicationStatusInProgress)

	require.NoError(t, f.apps.Approve(ctx, app, f.admin))
	assert.Equal(t, appModel.ApplicationStatusApproved, app.Status)

	var it *apperr.InvalidTransition
	require.ErrorAs(t, f.apps.Approve(ctx, app, f.admin), &it)
	assert.Equal(t, "approved", it.From)
	require.ErrorAs(t, f.apps.Reject(ctx, app, f.admin, "duplicate"), &it)

	changes, err := f.store.ListStatusChanges(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "in_progress", changes[0].FromStatus)
	assert.Equal(t, "approved", changes[0].ToStatus)
	assert.Len(t, f.eventsNamed("application_approved"), 1)
	assert.Len(t, f.notificationsNamed(notifModel.ActionApplicationApproved), 1)

	require.NoError(t, f.apps.Archive(ctx, app, f.admin))
	assert.Equal(t, appModel.ApplicationStatusArchived, app.Status)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.newApplication(t, appModel.ApplicationStatusAwaitingDocuments)

	var verr *apperr.ValidationError
	require.ErrorAs(t, f.apps.Reject(ctx, app, f.admin, "  "), &verr)

	require.NoError(t, f.apps.Reject(ctx, app, f.admin, "income above threshold"))
	notes := f.notificationsNamed(notifModel.ActionApplicationRejected)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Message(), "income above threshold")
}

func TestSubmitAndRequestDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.newApplication(t, appModel.ApplicationStatusDraft)

	var it *apperr.InvalidTransition
	require.ErrorAs(t, f.apps.RequestDocuments(ctx, app, f.admin), &it)

	require.NoError(t, f.apps.Submit(ctx, app, f.owner))
	assert.Equal(t, appModel.ApplicationStatusInProgress, app.Status)
	assert.Len(t, f.eventsNamed(ActionSubmitted), 1)
	assert.Empty(t, f.store.AllNotifications())

	require.NoError(t, f.apps.RequestDocuments(ctx, app, f.admin))
	assert.Equal(t, appModel.ApplicationStatusAwaitingDocuments, app.Status)
	assert.Len(t, f.notificationsNamed(notifModel.ActionDocumentsRequested), 1)
}

func TestSubmitByStrangerIsRefused(t *testing.T) {
	f := newFixture(t)
	app := f.newApplication(t, appModel.ApplicationStatusDraft)
	stranger := f.store.PutUser(&userModel.UserModel{FirstName: "Sam", Email: "sam@example.org", IsActive: true})

	var aerr *apperr.AuthorizationError
	require.ErrorAs(t, f.apps.Submit(context.Background(), app, stranger), &aerr)
	assert.Equal(t, appModel.ApplicationStatusDraft, f.reload(t, app).Status)
}

func TestCanEditAndLastVisitedStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.newApplication(t, appModel.ApplicationStatusDraft)

	assert.True(t, CanEdit(app, f.owner))
	assert.True(t, CanEdit(app, f.admin))
	assert.False(t, CanEdit(app, nil))

	require.NoError(t, f.apps.RecordLastVisitedStep(ctx, app, "household"))
	assert.Equal(t, "household", *f.reload(t, app).LastVisitedStep)

	require.NoError(t, f.apps.Submit(ctx, app, f.owner))
	assert.False(t, CanEdit(app, f.owner))
	var verr *apperr.ValidationError
	require.ErrorAs(t, f.apps.RecordLastVisitedStep(ctx, app, "income"), &verr)
}

func TestBatchUpdateStatusWritesOneBatchEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.newApplication(t, appModel.ApplicationStatusInProgress)
	b := f.newApplication(t, appModel.ApplicationStatusApproved)

	n, err := f.apps.BatchUpdateStatus(ctx, []uuid.UUID{a.ID, b.ID, a.ID, uuid.New()}, appModel.ApplicationStatusArchived, f.admin)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, appModel.ApplicationStatusArchived, f.reload(t, a).Status)
	assert.Equal(t, appModel.ApplicationStatusArchived, f.reload(t, b).Status)

	events := f.store.AllEvents()
	require.Len(t, events, 1)
	assert.Equal(t, ActionBatchStatusUpdated, events[0].Action)
	assert.Equal(t, eventModel.SubjectApplicationBatch, events[0].SubjectType)
	assert.EqualValues(t, 2, events[0].Metadata["count"])

	changes, err := f.store.ListStatusChanges(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, changes)

	_, err = f.apps.BatchUpdateStatus(ctx, []uuid.UUID{a.ID}, appModel.ApplicationStatusArchived, f.owner)
	var aerr *apperr.AuthorizationError
	require.ErrorAs(t, err, &aerr)
}
