// file: internals/features/applications/audits/service/audit_log_builder.go
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	appModel "vulcan_backend/internals/features/applications/applications/model"
	"vulcan_backend/internals/features/applications/audits/dto"
	"vulcan_backend/internals/features/applications/repository"
	eventModel "vulcan_backend/internals/features/events/events/model"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	"vulcan_backend/internals/helpers/logger"
	"vulcan_backend/internals/helpers/metrics"
)

// Builder assembles the audit trail of one application. It is not meant to be
// shared across requests. Errors() reports the failures of the last build;
// every build starts with a clean slate.
type Builder struct {
	Store repository.Store
	log   zerolog.Logger

	mu     sync.Mutex
	errs   []error
	actors map[uuid.UUID]string
}

func NewBuilder(store repository.Store) *Builder {
	return &Builder{Store: store, log: logger.For("audits"), actors: map[uuid.UUID]string{}}
}

func (b *Builder) Errors() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]error(nil), b.errs...)
}

func (b *Builder) fail(source string, err error) {
	b.mu.Lock()
	b.errs = append(b.errs, fmt.Errorf("%s: %w", source, err))
	b.mu.Unlock()
	b.log.Error().Err(err).Str("source", source).Msg("audit source failed")
	metrics.RecordAuditFailure("audit_read")
}

// BuildAuditLogs merges every audit source for app, newest first. When any
// source fails the result is empty, never partial.
func (b *Builder) BuildAuditLogs(ctx context.Context, app *appModel.ApplicationModel) []dto.AuditEntry {
	b.mu.Lock()
	b.errs = nil
	b.mu.Unlock()

	changes, err := b.Store.ListStatusChanges(ctx, app.ID)
	if err != nil {
		b.fail("status_changes", err)
		return []dto.AuditEntry{}
	}
	reviews, err := b.Store.ListProofReviews(ctx, app.ID)
	if err != nil {
		b.fail("proof_reviews", err)
		return []dto.AuditEntry{}
	}
	submissions, err := b.Store.ListProofSubmissionAudits(ctx, app.ID)
	if err != nil {
		b.fail("proof_submissions", err)
		return []dto.AuditEntry{}
	}
	notes, err := b.Store.ListNotificationsFor(ctx, app.NotifiableType(), app.ID)
	if err != nil {
		b.fail("notifications", err)
		return []dto.AuditEntry{}
	}
	events, err := b.Store.ListEvents(ctx, eventModel.SubjectApplication, app.ID)
	if err != nil {
		b.fail("events", err)
		return []dto.AuditEntry{}
	}

	out := make([]dto.AuditEntry, 0, len(changes)+len(reviews)+len(submissions)+len(notes)+len(events))
	for i := range changes {
		out = append(out, fromStatusChange(&changes[i]))
	}
	for i := range reviews {
		out = append(out, fromProofReview(&reviews[i]))
	}
	for i := range submissions {
		out = append(out, fromSubmission(&submissions[i]))
	}
	for i := range notes {
		out = append(out, fromNotification(&notes[i]))
	}
	for i := range events {
		out = append(out, fromEvent(&events[i]))
	}
	for i := range out {
		out[i].ActorName = b.actorName(ctx, out[i].ActorID)
	}
	sortDesc(out)
	return out
}

// Timeline is the deduplicated trail shown to admins.
func (b *Builder) Timeline(ctx context.Context, app *appModel.ApplicationModel) []dto.AuditEntry {
	return Deduplicate(b.BuildAuditLogs(ctx, app))
}

// ConstituentTimeline is the applicant's view of the same trail. Mail sent to
// staff is dropped and metadata stays on the server, so storage keys and
// admin notes never reach the applicant. Rejection reasons do.
func (b *Builder) ConstituentTimeline(ctx context.Context, app *appModel.ApplicationModel) []dto.ConstituentEntry {
	out := []dto.ConstituentEntry{}
	for _, e := range b.Timeline(ctx, app) {
		if e.Source == dto.SourceNotification && (e.RecipientID == nil || *e.RecipientID != app.UserID) {
			continue
		}
		reason, _ := e.Metadata["reason"].(string)
		out = append(out, dto.ConstituentEntry{
			Action:           e.Action,
			ProofType:        e.ProofType,
			Status:           e.ToStatus,
			SubmissionMethod: e.SubmissionMethod,
			Reason:           reason,
			CreatedAt:        e.CreatedAt,
		})
	}
	return out
}

func (b *Builder) actorName(ctx context.Context, id *uuid.UUID) string {
	if id == nil {
		return "System"
	}
	b.mu.Lock()
	name, ok := b.actors[*id]
	b.mu.Unlock()
	if ok {
		return name
	}
	if u, err := b.Store.GetUser(ctx, *id); err == nil {
		name = u.FullName()
	}
	b.mu.Lock()
	b.actors[*id] = name
	b.mu.Unlock()
	return name
}

/* =========================================================
   Decorators
========================================================= */

func fromStatusChange(c *appModel.ApplicationStatusChangeModel) dto.AuditEntry {
	return dto.AuditEntry{
		ID:               c.ID,
		Source:           dto.SourceStatusChange,
		SubjectType:      eventModel.SubjectApplication,
		SubjectID:        c.ApplicationID,
		Action:           c.Action(),
		ActorID:          c.ActorID,
		FromStatus:       c.FromStatus,
		ToStatus:         c.ToStatus,
		SubmissionMethod: metaString(c.Metadata, "submission_method"),
		Metadata:         plain(c.Metadata),
		CreatedAt:        c.CreatedAt,
	}
}

func fromProofReview(r *appModel.ProofReviewModel) dto.AuditEntry {
	action := "proof_" + string(r.Status)
	proofType := string(r.ProofType)
	if r.ProofType == appModel.ProofTypeAll {
		action, proofType = "proofs_purged", ""
	}
	meta := plain(r.Metadata)
	if r.RejectionReason != nil {
		meta["reason"] = *r.RejectionReason
	}
	if r.Notes != nil {
		meta["notes"] = *r.Notes
	}
	return dto.AuditEntry{
		ID:               r.ID,
		Source:           dto.SourceProofReview,
		SubjectType:      eventModel.SubjectApplication,
		SubjectID:        r.ApplicationID,
		Action:           action,
		ProofType:        proofType,
		ActorID:          r.AdminID,
		ToStatus:         string(r.Status),
		SubmissionMethod: string(r.SubmissionMethod),
		Metadata:         meta,
		CreatedAt:        r.CreatedAt,
	}
}

func fromSubmission(a *appModel.ProofSubmissionAuditModel) dto.AuditEntry {
	return dto.AuditEntry{
		ID:               a.ID,
		Source:           dto.SourceSubmissionAudit,
		SubjectType:      eventModel.SubjectApplication,
		SubjectID:        a.ApplicationID,
		Action:           "proof_submitted",
		ProofType:        string(a.ProofType),
		ActorID:          a.ActorID,
		ToStatus:         string(a.Status),
		SubmissionMethod: string(a.SubmissionMethod),
		Metadata:         plain(a.Metadata),
		CreatedAt:        a.CreatedAt,
	}
}

func fromNotification(n *notifModel.NotificationModel) dto.AuditEntry {
	recipient := n.RecipientID
	e := dto.AuditEntry{
		ID:          n.ID,
		Source:      dto.SourceNotification,
		SubjectType: n.NotifiableType,
		Action:      string(n.Action),
		RecipientID: &recipient,
		ProofType:   metaString(n.Metadata, "proof_type"),
		ActorID:     n.ActorID,
		Metadata:    plain(n.Metadata),
		CreatedAt:   n.CreatedAt,
	}
	if n.NotifiableID != nil {
		e.SubjectID = *n.NotifiableID
	}
	return e
}

func fromEvent(ev *eventModel.EventModel) dto.AuditEntry {
	e := dto.AuditEntry{
		ID:               ev.ID,
		Source:           dto.SourceEvent,
		SubjectType:      ev.SubjectType,
		Action:           ev.Action,
		ProofType:        metaString(ev.Metadata, "proof_type"),
		ActorID:          ev.ActorID,
		SubmissionMethod: metaString(ev.Metadata, "submission_method"),
		Metadata:         plain(ev.Metadata),
		CreatedAt:        ev.CreatedAt,
	}
	if ev.SubjectID != nil {
		e.SubjectID = *ev.SubjectID
	}
	return e
}

func plain(m datatypes.JSONMap) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func metaString(m datatypes.JSONMap, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func sortDesc(entries []dto.AuditEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].Source > entries[j].Source
	})
}

// normalizeAction folds spelling variants of one action name together.
func normalizeAction(action string) string {
	a := strings.ToLower(strings.TrimSpace(action))
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(a)
}
