package service

import (
	"context"
	"sort"
	"strings"
	"time"

	appModel "vulcan_backend/internals/features/applications/applications/model"
	"vulcan_backend/internals/features/applications/audits/dto"
)

// DedupWindow is how far apart two records of the same fact may be.
const DedupWindow = 60 * time.Second

type dedupKey struct {
	subject   string
	action    string
	proofType string
}

func keyOf(e dto.AuditEntry) dedupKey {
	return dedupKey{
		subject:   e.SubjectType + ":" + e.SubjectID.String(),
		action:    normalizeAction(e.Action),
		proofType: e.ProofType,
	}
}

// richer reports whether a should be kept over b.
func richer(a, b dto.AuditEntry) bool {
	if a.Source != b.Source {
		return a.Source > b.Source
	}
	if len(a.Metadata) != len(b.Metadata) {
		return len(a.Metadata) > len(b.Metadata)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// Deduplicate collapses records of the same fact (same subject, action and
// proof type within DedupWindow of the first record of the group) into the
// richest one. Output is newest first.
func Deduplicate(entries []dto.AuditEntry) []dto.AuditEntry {
	if len(entries) == 0 {
		return []dto.AuditEntry{}
	}
	byKey := map[dedupKey][]dto.AuditEntry{}
	for _, e := range entries {
		k := keyOf(e)
		byKey[k] = append(byKey[k], e)
	}

	out := make([]dto.AuditEntry, 0, len(byKey))
	for _, group := range byKey {
		sort.SliceStable(group, func(i, j int) bool { return group[i].CreatedAt.Before(group[j].CreatedAt) })

		start := group[0].CreatedAt
		best := group[0]
		for _, e := range group[1:] {
			if e.CreatedAt.Sub(start) > DedupWindow {
				out = append(out, best)
				start, best = e.CreatedAt, e
				continue
			}
			if richer(e, best) {
				best = e
			}
		}
		out = append(out, best)
	}
	sortDesc(out)
	return out
}

/* =========================================================
   Certification views
========================================================= */

const certificationPrefix = "medical_certification_"

// CertificationEvents lists every certification status fact, newest first.
func (b *Builder) CertificationEvents(ctx context.Context, app *appModel.ApplicationModel) []dto.CertificationEvent {
	return b.certificationView(ctx, app, func(action string) bool {
		return strings.HasPrefix(action, certificationPrefix) && !strings.HasSuffix(action, "_failed")
	})
}

// RequestEvents lists the certification requests sent to the provider, newest first.
func (b *Builder) RequestEvents(ctx context.Context, app *appModel.ApplicationModel) []dto.CertificationEvent {
	return b.certificationView(ctx, app, func(action string) bool {
		return action == certificationPrefix+string(appModel.CertificationRequested)
	})
}

func (b *Builder) certificationView(ctx context.Context, app *appModel.ApplicationModel, keep func(string) bool) []dto.CertificationEvent {
	out := []dto.CertificationEvent{}
	for _, e := range b.Timeline(ctx, app) {
		action := normalizeAction(e.Action)
		if !keep(action) {
			continue
		}
		method := "unknown"
		if e.SubmissionMethod != "" {
			method = string(appModel.NormalizeSubmissionMethod(e.SubmissionMethod))
		}
		out = append(out, dto.CertificationEvent{
			Action:           action,
			Timestamp:        e.CreatedAt,
			ActorName:        e.ActorName,
			SubmissionMethod: method,
		})
	}
	return out
}
