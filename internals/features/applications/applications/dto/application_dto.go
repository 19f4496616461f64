package dto

import (
	"strings"
	"time"

	"github.com/google/uuid"

	appModel "vulcan_backend/internals/features/applications/applications/model"
	helperOSS "vulcan_backend/internals/helpers/oss"
)

/* ===================== REQUESTS ===================== */

// Create: the owner always comes from the token, never from the body.
type CreateApplicationRequest struct {
	ManagingGuardianID *uuid.UUID `json:"managing_guardian_id" form:"managing_guardian_id" validate:"omitempty"`
}

func (r CreateApplicationRequest) ToModel(ownerID uuid.UUID) *appModel.ApplicationModel {
	return &appModel.ApplicationModel{
		UserID:             ownerID,
		ManagingGuardianID: r.ManagingGuardianID,
		Status:             appModel.ApplicationStatusDraft,
	}
}

type LastVisitedStepRequest struct {
	Step string `json:"step" form:"step" validate:"required,max=60"`
}

type RejectApplicationRequest struct {
	Reason string `json:"reason" form:"reason" validate:"required"`
}

type BatchStatusRequest struct {
	IDs    []uuid.UUID `json:"ids" validate:"required,min=1,max=500"`
	Status string      `json:"status" validate:"required"`
}

// FileRef names an already stored blob. A multipart "file" part wins over both.
type FileRef struct {
	BlobKey   string `json:"blob_key" form:"blob_key"`
	SignedRef string `json:"signed_ref" form:"signed_ref"`
}

func (f FileRef) Input(up *helperOSS.Upload) helperOSS.FileInput {
	return helperOSS.FileInput{
		Upload:    up,
		BlobKey:   strings.TrimSpace(f.BlobKey),
		SignedRef: strings.TrimSpace(f.SignedRef),
	}
}

type AttachProofRequest struct {
	FileRef
	Status           string `json:"status" form:"status" validate:"omitempty,oneof=not_reviewed approved rejected"`
	RejectionReason  string `json:"rejection_reason" form:"rejection_reason"`
	SubmissionMethod string `json:"submission_method" form:"submission_method"`
	Phase            string `json:"phase" form:"phase" validate:"omitempty,oneof=paper_intake"`
}

type ReviewProofRequest struct {
	Status           string `json:"status" validate:"required,oneof=approved rejected"`
	RejectionReason  string `json:"rejection_reason"`
	Notes            string `json:"notes"`
	SubmissionMethod string `json:"submission_method"`
}

type RejectWithoutFileRequest struct {
	Reason string `json:"reason" validate:"required"`
	Notes  string `json:"notes"`
}

type CertificationRequest struct {
	FileRef
	Status           string `json:"status" form:"status" validate:"required,oneof=received approved rejected"`
	RejectionReason  string `json:"rejection_reason" form:"rejection_reason"`
	SubmissionMethod string `json:"submission_method" form:"submission_method"`
}

type RequestCertificationRequest struct {
	ProviderName string `json:"provider_name" validate:"max=200"`
}

/* ===================== RESPONSES ===================== */

type UploadResponse struct {
	BlobKey     string    `json:"blob_key"`
	SignedRef   string    `json:"signed_ref"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	ByteSize    int64     `json:"byte_size"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type BatchStatusResponse struct {
	Updated int64 `json:"updated"`
}
