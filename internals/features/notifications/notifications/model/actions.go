package model

// Action names a notification kind. The set is closed; lookups over it
// (message text, mailer routing) always have a default arm.
type Action string

const (
	ActionProofApproved      Action = "proof_approved"
	ActionProofRejected      Action = "proof_rejected"
	ActionProofNeedsReview   Action = "proof_needs_review"
	ActionProofReviewOverdue Action = "proof_review_overdue"
	ActionProofsPurged       Action = "proofs_purged"

	ActionApplicationApproved Action = "application_approved"
	ActionApplicationRejected Action = "application_rejected"
	ActionDocumentsRequested  Action = "documents_requested"

	ActionMedicalCertificationRequested Action = "medical_certification_requested"
	ActionMedicalCertificationReceived  Action = "medical_certification_received"
	ActionMedicalCertificationApproved  Action = "medical_certification_approved"
	ActionMedicalCertificationRejected  Action = "medical_certification_rejected"

	ActionEvaluatorAssigned Action = "evaluator_assigned"
	ActionTrainerAssigned   Action = "trainer_assigned"
	ActionVoucherAssigned   Action = "voucher_assigned"
)

func (a Action) String() string { return string(a) }
