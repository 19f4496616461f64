package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"vulcan_backend/internals/features/applications/repository"
	eventModel "vulcan_backend/internals/features/events/events/model"
	"vulcan_backend/internals/helpers/logger"
	"vulcan_backend/internals/helpers/metrics"
)

// Entry describes one audit fact.
type Entry struct {
	ActorID     *uuid.UUID
	Action      string
	SubjectType string
	SubjectID   uuid.UUID
	Metadata    map[string]any
}

func (e Entry) model() *eventModel.EventModel {
	meta := datatypes.JSONMap{}
	for k, v := range e.Metadata {
		meta[k] = v
	}
	m := &eventModel.EventModel{
		ActorID:     e.ActorID,
		Action:      e.Action,
		SubjectType: e.SubjectType,
		Metadata:    meta,
	}
	if e.SubjectID != uuid.Nil {
		id := e.SubjectID
		m.SubjectID = &id
	}
	return m
}

// Recorder writes Events. Record and RecordIn never return an error: a failed
// audit write is logged and counted, and the business operation carries on.
type Recorder struct {
	Store repository.Store
	log   zerolog.Logger
}

func NewRecorder(store repository.Store) *Recorder {
	return &Recorder{Store: store, log: logger.For("events")}
}

// Record writes outside any caller transaction.
func (r *Recorder) Record(ctx context.Context, e Entry) *eventModel.EventModel {
	return r.RecordIn(ctx, r.Store, e)
}

// RecordIn writes inside tx. The insert runs in a nested transaction (a
// savepoint on postgres) so its failure does not abort the outer one.
func (r *Recorder) RecordIn(ctx context.Context, tx repository.Store, e Entry) *eventModel.EventModel {
	m := e.model()
	err := tx.WithTx(ctx, func(inner repository.Store) error {
		return inner.CreateEvent(ctx, m)
	})
	if err != nil {
		r.log.Error().Err(err).
			Str("action", e.Action).
			Str("subject_type", e.SubjectType).
			Str("subject_id", e.SubjectID.String()).
			Msg("event write failed")
		metrics.RecordAuditFailure("event")
		return nil
	}
	return m
}

// Write inserts the event and returns the error to the caller, for sequences
// where a missing event must abort the whole unit.
func (r *Recorder) Write(ctx context.Context, tx repository.Store, e Entry) (*eventModel.EventModel, error) {
	m := e.model()
	if err := tx.CreateEvent(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}
