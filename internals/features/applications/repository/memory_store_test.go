package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appModel "vulcan_backend/internals/features/applications/applications/model"
	assignModel "vulcan_backend/internals/features/applications/assignments/model"
	eventModel "vulcan_backend/internals/features/events/events/model"
	"vulcan_backend/internals/helpers/apperr"
	"vulcan_backend/internals/helpers/dbtime"
)

func TestMemoryStore_UpdateColumnsOnlyTouchesNamedColumns(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(dbtime.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)).Clock())

	app := &appModel.ApplicationModel{UserID: uuid.New(), Status: appModel.ApplicationStatusInProgress}
	require.NoError(t, store.CreateApplication(ctx, app))

	key := "income/a.pdf"
	stale := *app
	stale.Status = appModel.ApplicationStatusApproved
	stale.IncomeProof.BlobKey = &key
	stale.IncomeProofStatus = appModel.ProofStatusApproved

	require.NoError(t, store.UpdateApplicationColumns(ctx, &stale, appModel.ProofColumns(appModel.ProofTypeIncome)...))

	got, err := store.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, appModel.ApplicationStatusInProgress, got.Status)
	assert.Equal(t, appModel.ProofStatusApproved, got.IncomeProofStatus)
	assert.Equal(t, key, got.IncomeProof.Key())

	assert.Error(t, store.UpdateApplicationColumns(ctx, &stale, "no_such_column"))
}

func TestMemoryStore_TxRollbackAndSavepoint(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	appID := uuid.New()
	subject := func() *eventModel.EventModel {
		return &eventModel.EventModel{Action: "x", SubjectType: eventModel.SubjectApplication, SubjectID: &appID}
	}

	err := store.WithTx(ctx, func(tx Store) error {
		require.NoError(t, tx.CreateEvent(ctx, subject()))
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Empty(t, store.AllEvents())

	err = store.WithTx(ctx, func(tx Store) error {
		require.NoError(t, tx.CreateEvent(ctx, subject()))
		nested := tx.WithTx(ctx, func(inner Store) error {
			require.NoError(t, inner.CreateEvent(ctx, subject()))
			return errors.New("savepoint")
		})
		assert.Error(t, nested)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, store.AllEvents(), 1)
}

func TestMemoryStore_FailOn(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	boom := errors.New("db down")
	store.FailOn("CreateEvent", boom)

	assert.ErrorIs(t, store.CreateEvent(ctx, &eventModel.EventModel{Action: "x"}), boom)
	store.FailOn("CreateEvent", nil)
	assert.NoError(t, store.CreateEvent(ctx, &eventModel.EventModel{Action: "x"}))
}

func TestMemoryStore_VoucherUniquePerApplication(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	appID := uuid.New()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.CreateVoucher(ctx, &assignModel.VoucherModel{ApplicationID: appID, Code: assignModel.GenerateVoucherCode()})
		}(i)
	}
	wg.Wait()

	conflicts := 0
	for _, err := range errs {
		if errors.Is(err, apperr.ErrConflict) {
			conflicts++
		}
	}
	assert.Equal(t, 7, conflicts)
	assert.Equal(t, 1, store.CountVouchers())
}

func TestMemoryStore_ListsNewestFirst(t *testing.T) {
	ctx := context.Background()
	clock := dbtime.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clock.Clock())
	appID := uuid.New()

	first := &appModel.ProofReviewModel{ApplicationID: appID, Status: appModel.ProofStatusRejected}
	require.NoError(t, store.CreateProofReview(ctx, first))
	clock.Advance(time.Minute)
	second := &appModel.ProofReviewModel{ApplicationID: appID, Status: appModel.ProofStatusApproved}
	require.NoError(t, store.CreateProofReview(ctx, second))

	rows, err := store.ListProofReviews(ctx, appID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, second.ID, rows[0].ID)
	assert.Equal(t, first.ID, rows[1].ID)
}
