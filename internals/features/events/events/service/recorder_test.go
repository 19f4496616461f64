package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vulcan_backend/internals/features/applications/repository"
	eventModel "vulcan_backend/internals/features/events/events/model"
)

func TestRecordIn_FailureDoesNotAbortTransaction(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(nil)
	rec := NewRecorder(store)
	subject := uuid.New()

	err := store.WithTx(ctx, func(tx repository.Store) error {
		require.NotNil(t, rec.RecordIn(ctx, tx, Entry{Action: "first", SubjectType: eventModel.SubjectApplication, SubjectID: subject}))

		store.FailOn("CreateEvent", errors.New("constraint"))
		assert.Nil(t, rec.RecordIn(ctx, tx, Entry{Action: "second", SubjectType: eventModel.SubjectApplication, SubjectID: subject}))
		store.FailOn("CreateEvent", nil)
		return nil
	})
	require.NoError(t, err)

	events := store.AllEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "first", events[0].Action)
}

func TestWrite_ReturnsError(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(nil)
	rec := NewRecorder(store)
	boom := errors.New("db down")
	store.FailOn("CreateEvent", boom)

	_, err := rec.Write(ctx, store, Entry{Action: "voucher_assigned"})
	assert.ErrorIs(t, err, boom)
}

func TestRecord_CopiesMetadata(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(nil)
	rec := NewRecorder(store)

	meta := map[string]any{"submission_method": "web"}
	ev := rec.Record(ctx, Entry{Action: "proof_submitted", Metadata: meta})
	require.NotNil(t, ev)
	meta["submission_method"] = "email"

	assert.Equal(t, "web", store.AllEvents()[0].Metadata["submission_method"])
	assert.Nil(t, store.AllEvents()[0].SubjectID)
}
