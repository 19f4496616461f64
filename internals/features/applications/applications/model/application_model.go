package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Attachment is the stored file behind a proof or certification.
type Attachment struct {
	BlobKey     *string    `gorm:"type:text;column:blob_key" json:"blob_key,omitempty"`
	Filename    *string    `gorm:"type:text;column:filename" json:"filename,omitempty"`
	ContentType *string    `gorm:"type:varchar(100);column:content_type" json:"content_type,omitempty"`
	ByteSize    int64      `gorm:"not null;default:0;column:byte_size" json:"byte_size"`
	PreviewKey  *string    `gorm:"type:text;column:preview_key" json:"preview_key,omitempty"`
	AttachedAt  *time.Time `gorm:"type:timestamptz;column:attached_at" json:"attached_at,omitempty"`
}

func (a Attachment) Present() bool {
	return a.BlobKey != nil && strings.TrimSpace(*a.BlobKey) != ""
}

func (a Attachment) Key() string {
	if a.BlobKey == nil {
		return ""
	}
	return *a.BlobKey
}

type ApplicationModel struct {
	ID                 uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey;column:application_id" json:"application_id"`
	UserID             uuid.UUID  `gorm:"type:uuid;not null;index;column:application_user_id" json:"application_user_id"`
	ManagingGuardianID *uuid.UUID `gorm:"type:uuid;column:application_managing_guardian_id" json:"application_managing_guardian_id,omitempty"`

	Status ApplicationStatus `gorm:"type:varchar(32);not null;default:'draft';index;column:application_status" json:"application_status"`

	IncomeProofStatus             ProofStatus `gorm:"type:varchar(16);not null;default:'not_reviewed';column:application_income_proof_status" json:"application_income_proof_status"`
	IncomeProof                   Attachment  `gorm:"embedded;embeddedPrefix:application_income_proof_" json:"application_income_proof"`
	IncomeProofRejectionReason    *string     `gorm:"type:text;column:application_income_proof_rejection_reason" json:"application_income_proof_rejection_reason,omitempty"`
	ResidencyProofStatus          ProofStatus `gorm:"type:varchar(16);not null;default:'not_reviewed';column:application_residency_proof_status" json:"application_residency_proof_status"`
	ResidencyProof                Attachment  `gorm:"embedded;embeddedPrefix:application_residency_proof_" json:"application_residency_proof"`
	ResidencyProofRejectionReason *string     `gorm:"type:text;column:application_residency_proof_rejection_reason" json:"application_residency_proof_rejection_reason,omitempty"`

	MedicalCertificationStatus          CertificationStatus `gorm:"type:varchar(16);not null;default:'not_requested';column:application_medical_certification_status" json:"application_medical_certification_status"`
	MedicalCertification                Attachment          `gorm:"embedded;embeddedPrefix:application_medical_certification_" json:"application_medical_certification"`
	MedicalCertificationRejectionReason *string             `gorm:"type:text;column:application_medical_certification_rejection_reason" json:"application_medical_certification_rejection_reason,omitempty"`
	MedicalCertificationRequestedAt     *time.Time          `gorm:"type:timestamptz;column:application_medical_certification_requested_at" json:"application_medical_certification_requested_at,omitempty"`
	MedicalCertificationRequestCount    int                 `gorm:"not null;default:0;column:application_medical_certification_request_count" json:"application_medical_certification_request_count"`
	MedicalProviderName                 *string             `gorm:"type:varchar(200);column:application_medical_provider_name" json:"application_medical_provider_name,omitempty"`

	TotalRejections  int        `gorm:"not null;default:0;column:application_total_rejections" json:"application_total_rejections"`
	NeedsReviewSince *time.Time `gorm:"type:timestamptz;index;column:application_needs_review_since" json:"application_needs_review_since,omitempty"`
	LastVisitedStep  *string    `gorm:"type:varchar(60);column:application_last_visited_step" json:"application_last_visited_step,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;not null;autoCreateTime;column:application_created_at" json:"application_created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;autoUpdateTime;column:application_updated_at" json:"application_updated_at"`
}

func (ApplicationModel) TableName() string { return "applications" }

// Columns used by narrow, column-level writes.
const (
	ColStatus                    = "application_status"
	ColIncomeProofStatus         = "application_income_proof_status"
	ColResidencyProofStatus      = "application_residency_proof_status"
	ColIncomeRejectionReason     = "application_income_proof_rejection_reason"
	ColResidencyRejectionReason  = "application_residency_proof_rejection_reason"
	ColCertificationStatus       = "application_medical_certification_status"
	ColCertificationReason       = "application_medical_certification_rejection_reason"
	ColCertificationRequestedAt  = "application_medical_certification_requested_at"
	ColCertificationRequestCount = "application_medical_certification_request_count"
	ColMedicalProviderName       = "application_medical_provider_name"
	ColTotalRejections           = "application_total_rejections"
	ColNeedsReviewSince          = "application_needs_review_since"
	ColLastVisitedStep           = "application_last_visited_step"
	ColUpdatedAt                 = "application_updated_at"
)

var attachmentColumns = []string{"blob_key", "filename", "content_type", "byte_size", "preview_key", "attached_at"}

// AttachmentColumns lists the flattened columns of an embedded attachment.
func AttachmentColumns(prefix string) []string {
	out := make([]string, len(attachmentColumns))
	for i, c := range attachmentColumns {
		out[i] = prefix + c
	}
	return out
}

func proofPrefix(pt ProofType) string {
	return fmt.Sprintf("application_%s_proof_", pt)
}

const certificationPrefix = "application_medical_certification_"

// ProofColumns are the columns touched when a proof attachment and its status change.
func ProofColumns(pt ProofType) []string {
	cols := AttachmentColumns(proofPrefix(pt))
	return append(cols, ProofStatusColumn(pt), ProofRejectionColumn(pt))
}

func CertificationColumns() []string {
	return append(AttachmentColumns(certificationPrefix), ColCertificationStatus, ColCertificationReason)
}

// ProofPreviewColumn is written on its own once the review preview is rendered.
func ProofPreviewColumn(pt ProofType) string {
	return proofPrefix(pt) + "preview_key"
}

func ProofStatusColumn(pt ProofType) string {
	if pt == ProofTypeResidency {
		return ColResidencyProofStatus
	}
	return ColIncomeProofStatus
}

func ProofRejectionColumn(pt ProofType) string {
	if pt == ProofTypeResidency {
		return ColResidencyRejectionReason
	}
	return ColIncomeRejectionReason
}

func (a *ApplicationModel) ProofStatus(pt ProofType) ProofStatus {
	if pt == ProofTypeResidency {
		return a.ResidencyProofStatus
	}
	return a.IncomeProofStatus
}

func (a *ApplicationModel) SetProofStatus(pt ProofType, s ProofStatus) {
	if pt == ProofTypeResidency {
		a.ResidencyProofStatus = s
		return
	}
	a.IncomeProofStatus = s
}

func (a *ApplicationModel) Proof(pt ProofType) Attachment {
	if pt == ProofTypeResidency {
		return a.ResidencyProof
	}
	return a.IncomeProof
}

func (a *ApplicationModel) SetProof(pt ProofType, att Attachment) {
	if pt == ProofTypeResidency {
		a.ResidencyProof = att
		return
	}
	a.IncomeProof = att
}

func (a *ApplicationModel) SetProofRejectionReason(pt ProofType, reason *string) {
	if pt == ProofTypeResidency {
		a.ResidencyProofRejectionReason = reason
		return
	}
	a.IncomeProofRejectionReason = reason
}

func (a *ApplicationModel) ProofRejectionReason(pt ProofType) string {
	r := a.IncomeProofRejectionReason
	if pt == ProofTypeResidency {
		r = a.ResidencyProofRejectionReason
	}
	if r == nil {
		return ""
	}
	return *r
}

func (a *ApplicationModel) IsDraft() bool { return a.Status == ApplicationStatusDraft }
func (a *ApplicationModel) IsSubmitted() bool { return a.Status != ApplicationStatusDraft }

func (a *ApplicationModel) CertificationApproved() bool {
	return a.MedicalCertificationStatus == CertificationApproved
}

// IsOwnedBy is true for the applicant and for the managing guardian.
func (a *ApplicationModel) IsOwnedBy(userID uuid.UUID) bool {
	if userID == uuid.Nil {
		return false
	}
	if a.UserID == userID {
		return true
	}
	return a.ManagingGuardianID != nil && *a.ManagingGuardianID == userID
}

// Notifiable implementation, used for notification text and polymorphic references.
func (a ApplicationModel) NotifiableType() string { return "Application" }
func (a ApplicationModel) NotifiableID() uuid.UUID { return a.ID }
func (a ApplicationModel) DisplayName() string {
	return "application #" + shortID(a.ID)
}

func shortID(id uuid.UUID) string {
	return strings.SplitN(id.String(), "-", 2)[0]
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
