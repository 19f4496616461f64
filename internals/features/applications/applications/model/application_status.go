package model

type ApplicationStatus string

const (
	ApplicationStatusDraft             ApplicationStatus = "draft"
	ApplicationStatusInProgress        ApplicationStatus = "in_progress"
	ApplicationStatusNeedsInformation  ApplicationStatus = "needs_information"
	ApplicationStatusReminderSent      ApplicationStatus = "reminder_sent"
	ApplicationStatusAwaitingDocuments ApplicationStatus = "awaiting_documents"
	ApplicationStatusApproved          ApplicationStatus = "approved"
	ApplicationStatusRejected          ApplicationStatus = "rejected"
	ApplicationStatusArchived          ApplicationStatus = "archived"
)

var activeStatuses = map[ApplicationStatus]struct{}{
	ApplicationStatusInProgress:        {},
	ApplicationStatusNeedsInformation:  {},
	ApplicationStatusReminderSent:      {},
	ApplicationStatusAwaitingDocuments: {},
}

func (s ApplicationStatus) IsValid() bool {
	switch s {
	case ApplicationStatusDraft, ApplicationStatusApproved, ApplicationStatusRejected, ApplicationStatusArchived:
		return true
	}
	return s.IsActive()
}

func (s ApplicationStatus) IsActive() bool {
	_, ok := activeStatuses[s]
	return ok
}

// IsTerminal is true for decided or archived applications; Approve/Reject refuse them.
func (s ApplicationStatus) IsTerminal() bool {
	return s == ApplicationStatusApproved || s == ApplicationStatusRejected || s == ApplicationStatusArchived
}

// CanTransition reports whether the status graph allows from -> to.
//
//	draft -> in_progress
//	active -> other active | approved | rejected
//	approved, rejected -> archived
func CanTransition(from, to ApplicationStatus) bool {
	if !to.IsValid() || from == to {
		return false
	}
	switch {
	case from == ApplicationStatusDraft:
		return to == ApplicationStatusInProgress
	case from.IsActive():
		return to.IsActive() || to == ApplicationStatusApproved || to == ApplicationStatusRejected
	case from == ApplicationStatusApproved, from == ApplicationStatusRejected:
		return to == ApplicationStatusArchived
	default:
		return false
	}
}

type ProofType string

const (
	ProofTypeIncome    ProofType = "income"
	ProofTypeResidency ProofType = "residency"
)

var ProofTypes = []ProofType{ProofTypeIncome, ProofTypeResidency}

func (p ProofType) IsValid() bool {
	return p == ProofTypeIncome || p == ProofTypeResidency
}

type ProofStatus string

const (
	ProofStatusNotReviewed ProofStatus = "not_reviewed"
	ProofStatusApproved    ProofStatus = "approved"
	ProofStatusRejected    ProofStatus = "rejected"
)

func (s ProofStatus) IsValid() bool {
	switch s {
	case ProofStatusNotReviewed, ProofStatusApproved, ProofStatusRejected:
		return true
	}
	return false
}

type CertificationStatus string

const (
	CertificationNotRequested CertificationStatus = "not_requested"
	CertificationRequested    CertificationStatus = "requested"
	CertificationReceived     CertificationStatus = "received"
	CertificationApproved     CertificationStatus = "approved"
	CertificationRejected     CertificationStatus = "rejected"
)

func (s CertificationStatus) IsValid() bool {
	switch s {
	case CertificationNotRequested, CertificationRequested, CertificationReceived, CertificationApproved, CertificationRejected:
		return true
	}
	return false
}

type SubmissionMethod string

const (
	SubmissionWeb     SubmissionMethod = "web"
	SubmissionEmail   SubmissionMethod = "email"
	SubmissionPaper   SubmissionMethod = "paper"
	SubmissionFax     SubmissionMethod = "fax"
	SubmissionUpload  SubmissionMethod = "upload"
	SubmissionSystem  SubmissionMethod = "system"
	SubmissionUnknown SubmissionMethod = "unknown"
)

// NormalizeSubmissionMethod maps free-form channel names onto the closed set,
// defaulting to unknown.
func NormalizeSubmissionMethod(raw string) SubmissionMethod {
	switch SubmissionMethod(lower(raw)) {
	case SubmissionWeb, "online", "portal":
		return SubmissionWeb
	case SubmissionEmail, "mail", "e-mail":
		return SubmissionEmail
	case SubmissionPaper, "in_person", "mailed":
		return SubmissionPaper
	case SubmissionFax:
		return SubmissionFax
	case SubmissionUpload, "admin_upload":
		return SubmissionUpload
	case SubmissionSystem:
		return SubmissionSystem
	default:
		return SubmissionUnknown
	}
}
