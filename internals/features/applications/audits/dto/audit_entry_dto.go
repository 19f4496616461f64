package dto

import (
	"time"

	"github.com/google/uuid"
)

// Source identifies which table an audit entry came from. Higher is richer.
type Source int

const (
	SourceNotification Source = iota
	SourceEvent
	SourceSubmissionAudit
	SourceProofReview
	SourceStatusChange
)

func (s Source) String() string {
	switch s {
	case SourceStatusChange:
		return "status_change"
	case SourceProofReview:
		return "proof_review"
	case SourceSubmissionAudit:
		return "proof_submission"
	case SourceEvent:
		return "event"
	default:
		return "notification"
	}
}

func (s Source) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// AuditEntry is the uniform shape every audit source is decorated into.
type AuditEntry struct {
	ID               uuid.UUID      `json:"id"`
	Source           Source         `json:"source"`
	SubjectType      string         `json:"subject_type"`
	SubjectID        uuid.UUID      `json:"subject_id"`
	Action           string         `json:"action"`
	ProofType        string         `json:"proof_type,omitempty"`
	ActorID          *uuid.UUID     `json:"actor_id,omitempty"`
	ActorName        string         `json:"actor_name,omitempty"`
	RecipientID      *uuid.UUID     `json:"recipient_id,omitempty"`
	FromStatus       string         `json:"from_status,omitempty"`
	ToStatus         string         `json:"to_status,omitempty"`
	SubmissionMethod string         `json:"submission_method,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// ConstituentEntry is a timeline row as the applicant sees it.
type ConstituentEntry struct {
	Action           string    `json:"action"`
	ProofType        string    `json:"proof_type,omitempty"`
	Status           string    `json:"status,omitempty"`
	SubmissionMethod string    `json:"submission_method,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// CertificationEvent is the presentation tuple for certification history.
type CertificationEvent struct {
	Action           string    `json:"action"`
	Timestamp        time.Time `json:"timestamp"`
	ActorName        string    `json:"actor_name"`
	SubmissionMethod string    `json:"submission_method"`
}
