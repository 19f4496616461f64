package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProofSubmissionAuditModel records one attachment attempt. Rows are never updated.
type ProofSubmissionAuditModel struct {
	ID               uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey;column:proof_submission_audit_id" json:"proof_submission_audit_id"`
	ApplicationID    uuid.UUID         `gorm:"type:uuid;not null;index;column:proof_submission_audit_application_id" json:"proof_submission_audit_application_id"`
	ProofType        ProofType         `gorm:"type:varchar(16);not null;column:proof_submission_audit_proof_type" json:"proof_submission_audit_proof_type"`
	ActorID          *uuid.UUID        `gorm:"type:uuid;column:proof_submission_audit_actor_id" json:"proof_submission_audit_actor_id,omitempty"`
	SubmissionMethod SubmissionMethod  `gorm:"type:varchar(16);not null;default:'unknown';column:proof_submission_audit_submission_method" json:"proof_submission_audit_submission_method"`
	Status           ProofStatus       `gorm:"type:varchar(16);not null;column:proof_submission_audit_status" json:"proof_submission_audit_status"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}';column:proof_submission_audit_metadata" json:"proof_submission_audit_metadata"`
	CreatedAt        time.Time         `gorm:"type:timestamptz;not null;autoCreateTime;column:proof_submission_audit_created_at" json:"proof_submission_audit_created_at"`
}

func (ProofSubmissionAuditModel) TableName() string { return "proof_submission_audits" }

type ProofReviewKind string

const (
	ProofReviewKindAdmin  ProofReviewKind = "admin"
	ProofReviewKindSystem ProofReviewKind = "system"
)

// ProofTypeAll marks system reviews that cover every proof (purge).
const ProofTypeAll ProofType = "all"

type ProofReviewModel struct {
	ID               uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey;column:proof_review_id" json:"proof_review_id"`
	ApplicationID    uuid.UUID         `gorm:"type:uuid;not null;index;column:proof_review_application_id" json:"proof_review_application_id"`
	ProofType        ProofType         `gorm:"type:varchar(16);not null;column:proof_review_proof_type" json:"proof_review_proof_type"`
	Status           ProofStatus       `gorm:"type:varchar(16);not null;column:proof_review_status" json:"proof_review_status"`
	AdminID          *uuid.UUID        `gorm:"type:uuid;column:proof_review_admin_id" json:"proof_review_admin_id,omitempty"`
	Kind             ProofReviewKind   `gorm:"type:varchar(10);not null;default:'admin';column:proof_review_kind" json:"proof_review_kind"`
	RejectionReason  *string           `gorm:"type:text;column:proof_review_rejection_reason" json:"proof_review_rejection_reason,omitempty"`
	Notes            *string           `gorm:"type:text;column:proof_review_notes" json:"proof_review_notes,omitempty"`
	SubmissionMethod SubmissionMethod  `gorm:"type:varchar(16);not null;default:'unknown';column:proof_review_submission_method" json:"proof_review_submission_method"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}';column:proof_review_metadata" json:"proof_review_metadata"`
	CreatedAt        time.Time         `gorm:"type:timestamptz;not null;autoCreateTime;column:proof_review_created_at" json:"proof_review_created_at"`
}

func (ProofReviewModel) TableName() string { return "proof_reviews" }

type StatusChangeType string

const (
	ChangeTypeApplication          StatusChangeType = "application"
	ChangeTypeMedicalCertification StatusChangeType = "medical_certification"
)

// ApplicationStatusChangeModel is the richest audit record: who moved which status from what to what.
type ApplicationStatusChangeModel struct {
	ID            uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey;column:status_change_id" json:"status_change_id"`
	ApplicationID uuid.UUID         `gorm:"type:uuid;not null;index;column:status_change_application_id" json:"status_change_application_id"`
	ActorID       *uuid.UUID        `gorm:"type:uuid;column:status_change_actor_id" json:"status_change_actor_id,omitempty"`
	ChangeType    StatusChangeType  `gorm:"type:varchar(32);not null;default:'application';column:status_change_type" json:"status_change_type"`
	FromStatus    string            `gorm:"type:varchar(32);column:status_change_from" json:"status_change_from"`
	ToStatus      string            `gorm:"type:varchar(32);not null;column:status_change_to" json:"status_change_to"`
	Notes         *string           `gorm:"type:text;column:status_change_notes" json:"status_change_notes,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}';column:status_change_metadata" json:"status_change_metadata"`
	CreatedAt     time.Time         `gorm:"type:timestamptz;not null;autoCreateTime;column:status_change_created_at" json:"status_change_created_at"`
}

func (ApplicationStatusChangeModel) TableName() string { return "application_status_changes" }

// Action is the audit action name, e.g. application_approved or medical_certification_requested.
func (c *ApplicationStatusChangeModel) Action() string {
	if c.ChangeType == ChangeTypeMedicalCertification {
		return "medical_certification_" + c.ToStatus
	}
	return "application_" + c.ToStatus
}
