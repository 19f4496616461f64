package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to ApplicationStatus
		ok       bool
	}{
		{ApplicationStatusDraft, ApplicationStatusInProgress, true},
		{ApplicationStatusDraft, ApplicationStatusApproved, false},
		{ApplicationStatusInProgress, ApplicationStatusAwaitingDocuments, true},
		{ApplicationStatusAwaitingDocuments, ApplicationStatusApproved, true},
		{ApplicationStatusReminderSent, ApplicationStatusRejected, true},
		{ApplicationStatusApproved, ApplicationStatusRejected, false},
		{ApplicationStatusApproved, ApplicationStatusArchived, true},
		{ApplicationStatusRejected, ApplicationStatusInProgress, false},
		{ApplicationStatusArchived, ApplicationStatusInProgress, false},
		{ApplicationStatusInProgress, ApplicationStatusInProgress, false},
		{ApplicationStatusInProgress, ApplicationStatus("bogus"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestNormalizeSubmissionMethod(t *testing.T) {
	assert.Equal(t, SubmissionEmail, NormalizeSubmissionMethod(" Email "))
	assert.Equal(t, SubmissionPaper, NormalizeSubmissionMethod("paper"))
	assert.Equal(t, SubmissionUnknown, NormalizeSubmissionMethod(""))
	assert.Equal(t, SubmissionUnknown, NormalizeSubmissionMethod("carrier pigeon"))
}

func TestProofAccessorsAndColumns(t *testing.T) {
	app := &ApplicationModel{}
	key := "proofs/a.pdf"
	app.SetProof(ProofTypeResidency, Attachment{BlobKey: &key})
	app.SetProofStatus(ProofTypeResidency, ProofStatusApproved)

	assert.True(t, app.Proof(ProofTypeResidency).Present())
	assert.False(t, app.Proof(ProofTypeIncome).Present())
	assert.Equal(t, ProofStatusApproved, app.ResidencyProofStatus)
	assert.Contains(t, ProofColumns(ProofTypeIncome), "application_income_proof_blob_key")
	assert.Contains(t, ProofColumns(ProofTypeIncome), ColIncomeProofStatus)
}

func TestOwnershipIncludesGuardian(t *testing.T) {
	owner, guardian, stranger := uuid.New(), uuid.New(), uuid.New()
	app := &ApplicationModel{UserID: owner, ManagingGuardianID: &guardian}
	assert.True(t, app.IsOwnedBy(owner))
	assert.True(t, app.IsOwnedBy(guardian))
	assert.False(t, app.IsOwnedBy(stranger))
	assert.False(t, app.IsOwnedBy(uuid.Nil))
}

func TestStatusChangeAction(t *testing.T) {
	c := &ApplicationStatusChangeModel{ChangeType: ChangeTypeMedicalCertification, ToStatus: "requested"}
	assert.Equal(t, "medical_certification_requested", c.Action())
	c = &ApplicationStatusChangeModel{ChangeType: ChangeTypeApplication, ToStatus: "approved"}
	assert.Equal(t, "application_approved", c.Action())
}
