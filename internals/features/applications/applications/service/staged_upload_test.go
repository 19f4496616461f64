package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vulcan_backend/internals/helpers/apperr"
	helperOSS "vulcan_backend/internals/helpers/oss"
)

func TestStageUploadSignsReferenceUsableForAttach(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	staged, err := f.proofs.StageUpload(ctx, f.owner.ID, pdfUpload("paystub.pdf").Upload, time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(staged.Ref.Key, "uploads/"+f.owner.ID.String()))
	assert.Equal(t, f.clock.Now().Add(time.Minute), staged.ExpiresAt)

	key, err := f.signer.Verify(staged.SignedRef)
	require.NoError(t, err)
	assert.Equal(t, staged.Ref.Key, key)

	app := f.newApplication(t, "in_progress")
	require.NoError(t, f.proofs.AttachProof(ctx, AttachProofParams{
		Application:      app,
		ProofType:        "income",
		File:             helperOSS.FileInput{SignedRef: staged.SignedRef},
		SubmissionMethod: "web",
	}))
	assert.Equal(t, staged.Ref.Key, f.reload(t, app).IncomeProof.Key())
}

func TestStageUploadRejectsBadFiles(t *testing.T) {
	f := newFixture(t)

	_, err := f.proofs.StageUpload(context.Background(), f.owner.ID, &helperOSS.Upload{
		Filename:    "tiny.pdf",
		ContentType: "application/pdf",
		Body:        bytes.NewReader([]byte("%PDF-1.4\n")),
	}, time.Minute)

	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "file")
	assert.Zero(t, f.blobs.Len())
}

func TestStagedUploadAttachedLaterIsNotStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	staged, err := f.proofs.StageUpload(ctx, f.owner.ID, pdfUpload("paystub.pdf").Upload, 30*time.Minute)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	app := f.newApplication(t, "in_progress")
	require.NoError(t, f.proofs.AttachProof(ctx, AttachProofParams{
		Application:      app,
		ProofType:        "income",
		File:             helperOSS.FileInput{SignedRef: staged.SignedRef},
		Status:           "not_reviewed",
		SubmissionMethod: "web",
	}))

	fresh := f.reload(t, app)
	require.NotNil(t, fresh.IncomeProof.AttachedAt)
	assert.True(t, fresh.IncomeProof.AttachedAt.Equal(f.clock.Now()))
}
