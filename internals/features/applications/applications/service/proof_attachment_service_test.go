package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appModel "vulcan_backend/internals/features/applications/applications/model"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	"vulcan_backend/internals/helpers/apperr"
	helperOSS "vulcan_backend/internals/helpers/oss"
)

func TestAttachProof_UploadQueuesAdminReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.newApplication(t, appModel.ApplicationStatusInProgress)

	err := f.proofs.AttachProof(ctx, AttachProofParams{
		Application:      app,
		ProofType:        appModel.ProofTypeIncome,
		File:             pdfUpload("paystub.pdf"),
		SubmissionMethod: "portal",
	})
	require.NoError(t, err)

	assert.True(t, app.IncomeProof.Present())
	assert.Equal(t, appModel.ProofStatusNotReviewed, app.IncomeProofStatus)
	require.NotNil(t, app.NeedsReviewSince)
	assert.True(t, f.blobs.Has(app.IncomeProof.Key()))

	audits, err := f.store.ListProofSubmissionAudits(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, appModel.SubmissionWeb, audits[0].SubmissionMethod)
	assert.Equal(t, f.owner.ID, *audits[0].ActorID)
	assert.Len(t, f.eventsNamed(ActionProofSubmitted), 1)

	require.Len(t, f.queue.Jobs(), 1)
	assert.Equal(t, "notify_admins", f.queue.Jobs()[0].Name())
	assert.Empty(t, f.queue.Drain(ctx))

	notes := f.notificationsNamed(notifModel.ActionProofNeedsReview)
	require.Len(t, notes, 1)
	assert.Equal(t, f.admin.ID, notes[0].RecipientID)
	assert.Equal(t, notifModel.DeliverySent, notes[0].DeliveryStatus)

	// a second upload while review is pending does not re-alert admins
	require.NoError(t, f.proofs.AttachProof(ctx, AttachProofParams{
		Application: app,
		ProofType:   appModel.ProofTypeResidency,
		File:        pdfUpload("lease.pdf"),
	}))
	assert.Empty(t, f.queue.Jobs())
}

func TestAttachProof_SecondApprovalAutoApprovesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.newApplication(t, appModel.ApplicationStatusInProgress, func(a *appModel.ApplicationModel) {
		a.ResidencyProof = attached("applications/seed/lease.pdf", f.clock.Now().Add(-48*time.Hour))
		a.ResidencyProofStatus = appModel.ProofStatusApproved
	})

	assert.True(t, ShouldAutoApprove(&appModel.ApplicationModel{
		IncomeProofStatus:    appModel.ProofStatusApproved,
		ResidencyProofStatus: appModel.ProofStatusApproved,
		Status:               appModel.ApplicationStatusInProgress,
	}, appModel.ProofStatusApproved))

	err := f.proofs.AttachProof(ctx, AttachProofParams{
		Application:      app,
		ProofType:        appModel.ProofTypeIncome,
		File:             pdfUpload("paystub.pdf"),
		Status:           appModel.ProofStatusApproved,
		Admin:            f.admin,
		SubmissionMethod: "upload",
	})
	require.NoError(t, err)

	assert.Equal(t, appModel.ApplicationStatusApproved, app.Status)
	assert.Equal(t, appModel.ApplicationStatusApproved, f.reload(t, app).Status)
	assert.Len(t, f.eventsNamed(ActionAutoApproved), 1)

	changes, err := f.store.ListStatusChanges(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "auto_approval", changes[0].Metadata["trigger"])

	reviews, err := f.store.ListProofReviews(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, appModel.ProofReviewKindAdmin, reviews[0].Kind)

	again, err := f.apps.PerformAutoApproval(ctx, app.ID)
	require.NoError(t, err)
	assert.False(t, again)
	assert.Len(t, f.eventsNamed(ActionAutoApproved), 1)
	assert.Len(t, f.notificationsNamed(notifModel.ActionApplicationApproved), 1)
	assert.False(t, ShouldAutoApprove(app, appModel.ProofStatusApproved))
}

func TestAttachProof_StorageFailureLeavesStatusUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.newApplication(t, appModel.ApplicationStatusInProgress)

	broken := &helperOSS.MockBlobStore{
		PutFn: func(context.Context, string, string, string, io.Reader) (helperOSS.BlobRef, error) {
			return helperOSS.BlobRef{}, errors.New("bucket unavailable")
		},
	}
	f.proofs.Blobs = broken
	f.proofs.Resolver = &helperOSS.Resolver{Store: broken}

	err := f.proofs.AttachProof(ctx, AttachProofParams{
		Application: app,
		ProofType:   appModel.ProofTypeIncome,
		File:        pdfUpload("paystub.pdf"),
	})
	var se *apperr.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "attach_proof", se.Op)

	fresh := f.reload(t, app)
	assert.Equal(t, appModel.ProofStatusNotReviewed, fresh.IncomeProofStatus)
	assert.False(t, fresh.IncomeProof.Present())
	assert.Nil(t, fresh.NeedsReviewSince)

	failed := f.eventsNamed(ActionProofSubmissionFail)
	require.Len(t, failed, 1)
	assert.Equal(t, "unknown", failed[0].Metadata["submission_method"])
	assert.Equal(t, "bucket unavailable", failed[0].Metadata["error_message"])
	assert.Empty(t, f.eventsNamed(ActionProofSubmitted))
}

func TestAttachProof_TransactionFailurePurgesUploadedBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.newApplication(t, appModel.ApplicationStatusInProgress)
	f.store.FailOn("CreateProofSubmissionAudit", errors.New("disk full"))

	err := f.proofs.AttachProof(ctx, AttachProofParams{
		Application: app,
		ProofType:   appModel.ProofTypeIncome,
		File:        pdfUpload("paystub.pdf"),
	})
	require.Error(t, err)
	assert.Equal(t, 0, f.blobs.Len())
	assert.Len(t, f.blobs.Purged(), 1)
	assert.False(t, f.reload(t, app).IncomeProof.Present())
}

func TestAttachProof_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.newApplication(t, appModel.ApplicationStatusInProgress)

	cases := []struct {
		name string
		p    AttachProofParams
	}{
		{"too small", AttachProofParams{ProofType: appModel.ProofTypeIncome, File: helperOSS.FileInput{Upload: &helperOSS.Upload{
			Filename: "tiny.pdf", ContentType: "application/pdf", Body: bytes.NewReader(pdfBody(200)),
		}}}},
		{"wrong type", AttachProofParams{ProofType: appModel.ProofTypeIncome, File: helperOSS.FileInput{Upload: &helperOSS.Upload{
			Filename: "notes.txt", ContentType: "text/plain", Body: bytes.NewReader(bytes.Repeat([]byte("a"), 4096)),
		}}}},
		{"corrupt pdf", AttachProofParams{ProofType: appModel.ProofTypeIncome, File: helperOSS.FileInput{Upload: &helperOSS.Upload{
			Filename: "fake.pdf", ContentType: "application/pdf", Body: bytes.NewReader(bytes.Repeat([]byte("a"), 4096)),
		}}}},
		{"ambiguous", AttachProofParams{ProofType: appModel.ProofTypeIncome, File: helperOSS.FileInput{BlobKey: "a", SignedRef: "b"}}},
		{"missing blob", AttachProofParams{ProofType: appModel.ProofTypeIncome, Admin: f.admin, File: helperOSS.FileInput{BlobKey: "nope.pdf"}}},
		{"bad signed ref", AttachProofParams{ProofType: appModel.ProofTypeIncome, File: helperOSS.FileInput{SignedRef: "garbage"}}},
		{"decision without admin", AttachProofParams{ProofType: appModel.ProofTypeIncome, Status: appModel.ProofStatusApproved, File: pdfUpload("a.pdf")}},
		{"rejection without reason", AttachProofParams{ProofType: appModel.ProofTypeIncome, Status: appModel.ProofStatusRejected, Admin: f.admin, File: pdfUpload("a.pdf")}},
		{"unknown proof type", AttachProofParams{ProofType: "income_tax", File: pdfUpload("a.pdf")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.p.Application = app
			err := f.proofs.AttachProof(ctx, tc.p)
			var verr *apperr.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}

	assert.Equal(t, 0, f.blobs.Len())
	assert.Empty(t, f.store.AllEvents())
	assert.False(t, f.reload(t, app).IncomeProof.Present())
}

func TestAttachProof_OldBlobGetsAttachTimeNotStoreTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.newApplication(t, appModel.ApplicationStatusInProgress)
	key := "applications/scans/old-paystub.pdf"
	f.blobs.Seed(key, "old-paystub.pdf", "application/pdf", pdfBody(4096), f.clock.Now().Add(-2*time.Hour))

	err := f.proofs.AttachProof(ctx, AttachProofParams{
		Application:      app,
		ProofType:        appModel.ProofTypeIncome,
		File:             helperOSS.FileInput{BlobKey: key},
		Admin:            f.admin,
		SubmissionMethod: "paper",
	})
	require.NoError(t, err)

	fresh := f.reload(t, app)
	assert.Equal(t, key, fresh.IncomeProof.Key())
	assert.Equal(t, appModel.ProofStatusNotReviewed, fresh.IncomeProofStatus)
	require.NotNil(t, fresh.IncomeProof.AttachedAt)
	assert.True(t, fresh.IncomeProof.AttachedAt.Equal(f.clock.Now()))
}

func TestAttachProof_ConstituentCannotReuseRawBlobKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	victim := f.newApplication(t, appModel.ApplicationStatusInProgress)
	require.NoError(t, f.proofs.AttachProof(ctx, AttachProofParams{
		Application:      victim,
		ProofType:        appModel.ProofTypeResidency,
		File:             pdfUpload("lease.pdf"),
		SubmissionMethod: "web",
	}))
	victimKey := f.reload(t, victim).ResidencyProof.Key()
	require.NotEmpty(t, victimKey)

	mine := f.newApplication(t, appModel.ApplicationStatusInProgress)
	err := f.proofs.AttachProof(ctx, AttachProofParams{
		Application:      mine,
		ProofType:        appModel.ProofTypeResidency,
		File:             helperOSS.FileInput{BlobKey: victimKey},
		SubmissionMethod: "web",
	})

	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "residency_proof")
	assert.False(t, f.reload(t, mine).ResidencyProof.Present())
	assert.True(t, f.blobs.Has(victimKey))
}

func TestValidateProofConsistency_GraceWindow(t *testing.T) {
	f := newFixture(t)
	rules := LoadProofRules(context.Background(), f.proofs.Policies)
	now := f.clock.Now()

	app := f.newApplication(t, appModel.ApplicationStatusInProgress, func(a *appModel.ApplicationModel) {
		a.SetProof(appModel.ProofTypeIncome, attached("applications/x/income.pdf", now.Add(-2*time.Minute)))
		a.SetProofStatus(appModel.ProofTypeIncome, appModel.ProofStatusNotReviewed)
	})

	var verr *apperr.ValidationError
	require.ErrorAs(t, rules.ValidateProofConsistency(app, appModel.ProofTypeIncome, PhaseDefault, now), &verr)
	assert.Contains(t, verr.Fields, "income_proof")

	assert.NoError(t, rules.ValidateProofConsistency(app, appModel.ProofTypeIncome, PhasePaperIntake, now))
	assert.NoError(t, rules.ValidateProofConsistency(app, appModel.ProofTypeIncome, PhaseDefault, now.Add(-90*time.Second)))
}

func TestAttachProof_SignedRefResolvesToSameBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.newApplication(t, appModel.ApplicationStatusInProgress)
	key := "direct-uploads/lease.pdf"
	f.blobs.Seed(key, "lease.pdf", "application/pdf", pdfBody(2048), f.clock.Now())

	token, err := f.signer.Sign(key, time.Hour)
	require.NoError(t, err)

	require.NoError(t, f.proofs.AttachProof(ctx, AttachProofParams{
		Application: app,
		ProofType:   appModel.ProofTypeResidency,
		File:        helperOSS.FileInput{SignedRef: token},
	}))
	assert.Equal(t, key, app.ResidencyProof.Key())
	assert.EqualValues(t, 2048, app.ResidencyProof.ByteSize)
}

func TestReviewProof_ApprovalRequiresAttachment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.newApplication(t, appModel.ApplicationStatusInProgress)

	err := f.proofs.ReviewProof(ctx, ReviewProofParams{
		Application: app,
		ProofType:   appModel.ProofTypeIncome,
		Status:      appModel.ProofStatusApproved,
		Admin:       f.admin,
	})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, appModel.ProofStatusNotReviewed, f.reload(t, app).IncomeProofStatus)

	err = f.proofs.ReviewProof(ctx, ReviewProofParams{
		Application: app,
		ProofType:   appModel.ProofTypeIncome,
		Status:      appModel.ProofStatusApproved,
		Admin:       f.owner,
	})
	var aerr *apperr.AuthorizationError
	require.ErrorAs(t, err, &aerr)
}

func TestReviewProof_RejectionNotifiesOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	since := f.clock.Now()
	app := f.newApplication(t, appModel.ApplicationStatusInProgress, func(a *appModel.ApplicationModel) {
		a.IncomeProof = attached("applications/x/paystub.pdf", since)
		a.NeedsReviewSince = &since
	})

	require.NoError(t, f.proofs.ReviewProof(ctx, ReviewProofParams{
		Application:     app,
		ProofType:       appModel.ProofTypeIncome,
		Status:          appModel.ProofStatusRejected,
		Admin:           f.admin,
		RejectionReason: "illegible",
		Notes:           "photo is blurred",
	}))

	assert.Equal(t, appModel.ProofStatusRejected, app.IncomeProofStatus)
	assert.Equal(t, "illegible", app.ProofRejectionReason(appModel.ProofTypeIncome))
	assert.Equal(t, 1, app.TotalRejections)
	assert.Nil(t, app.NeedsReviewSince)

	notes := f.notificationsNamed(notifModel.ActionProofRejected)
	require.Len(t, notes, 1)
	assert.Equal(t, f.owner.ID, notes[0].RecipientID)
	assert.Contains(t, notes[0].Message(), "illegible")
	assert.Len(t, f.eventsNamed(ActionProofRejected), 1)
}

func TestRejectProofWithoutAttachment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.newApplication(t, appModel.ApplicationStatusInProgress)

	err := f.proofs.RejectProofWithoutAttachment(ctx, app, appModel.ProofTypeResidency, f.admin, "address_mismatch", "")
	require.NoError(t, err)

	fresh := f.reload(t, app)
	assert.Equal(t, appModel.ProofStatusRejected, fresh.ResidencyProofStatus)
	assert.False(t, fresh.ResidencyProof.Present())
	assert.Equal(t, "address_mismatch", fresh.ProofRejectionReason(appModel.ProofTypeResidency))
	assert.Equal(t, 1, fresh.TotalRejections)

	reviews, err := f.store.ListProofReviews(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, appModel.SubmissionPaper, reviews[0].SubmissionMethod)
	assert.Equal(t, appModel.ProofStatusRejected, reviews[0].Status)

	err = f.proofs.forceSetProofStatus(ctx, f.store, fresh, appModel.ProofTypeIncome, appModel.ProofStatusApproved, "")
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPurgeProofs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	since := f.clock.Now()
	f.blobs.Seed("applications/p/income.pdf", "income.pdf", "application/pdf", pdfBody(2048), since)
	f.blobs.Seed("applications/p/residency.pdf", "residency.pdf", "application/pdf", pdfBody(2048), since)
	app := f.newApplication(t, appModel.ApplicationStatusInProgress, func(a *appModel.ApplicationModel) {
		a.IncomeProof = attached("applications/p/income.pdf", since)
		a.IncomeProofStatus = appModel.ProofStatusApproved
		a.ResidencyProof = attached("applications/p/residency.pdf", since)
		a.NeedsReviewSince = &since
	})

	err := f.proofs.PurgeProofs(ctx, app, f.owner)
	var aerr *apperr.AuthorizationError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, 2, f.blobs.Len())

	require.NoError(t, f.proofs.PurgeProofs(ctx, app, f.admin))
	fresh := f.reload(t, app)
	for _, pt := range appModel.ProofTypes {
		assert.False(t, fresh.Proof(pt).Present())
		assert.Equal(t, appModel.ProofStatusNotReviewed, fresh.ProofStatus(pt))
	}
	assert.Nil(t, fresh.NeedsReviewSince)
	assert.Equal(t, 0, f.blobs.Len())

	reviews, err := f.store.ListProofReviews(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, appModel.ProofReviewKindSystem, reviews[0].Kind)
	assert.Equal(t, appModel.ProofTypeAll, reviews[0].ProofType)

	notes := f.notificationsNamed(notifModel.ActionProofsPurged)
	require.Len(t, notes, 1)
	assert.Equal(t, f.owner.ID, notes[0].RecipientID)
}

func TestSendReviewReminders_OncePerWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.clock.Now().Add(-80 * time.Hour)
	recent := f.clock.Now().Add(-time.Hour)
	stale := f.newApplication(t, appModel.ApplicationStatusInProgress, func(a *appModel.ApplicationModel) { a.NeedsReviewSince = &old })
	f.newApplication(t, appModel.ApplicationStatusInProgress, func(a *appModel.ApplicationModel) { a.NeedsReviewSince = &recent })

	n, err := f.proofs.SendReviewReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, f.queue.Drain(ctx))

	notes := f.notificationsNamed(notifModel.ActionProofReviewOverdue)
	require.Len(t, notes, 1)
	assert.Equal(t, stale.ID, *notes[0].NotifiableID)

	n, err = f.proofs.SendReviewReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
