package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vulcan_backend/internals/helpers/apperr"
	helperOSS "vulcan_backend/internals/helpers/oss"
)

const defaultSignedRefTTL = 30 * time.Minute

// StagedUpload is a file stored ahead of the attach call, handed back as a signed reference.
type StagedUpload struct {
	Ref       helperOSS.BlobRef
	SignedRef string
	ExpiresAt time.Time
}

// StageUpload validates and stores a file under the uploader's staging prefix
// and signs a reference to it. The reference is later passed to AttachProof or
// UpdateCertification instead of the raw file.
func (s *ProofAttachmentService) StageUpload(ctx context.Context, uploaderID uuid.UUID, up *helperOSS.Upload, ttl time.Duration) (StagedUpload, error) {
	if up == nil {
		return StagedUpload{}, apperr.NewValidation("file", "is required")
	}
	if s.Resolver.Signer == nil {
		return StagedUpload{}, fmt.Errorf("stage upload: no signer configured")
	}
	if ttl <= 0 {
		ttl = defaultSignedRefTTL
	}

	rules := LoadProofRules(ctx, s.Policies)
	resolved, err := s.Resolver.Resolve(ctx, fmt.Sprintf("uploads/%s", uploaderID), helperOSS.FileInput{Upload: up}, rules.CheckFunc("file"))
	if err != nil {
		if verr := classifyResolveError("file", err); isValidation(verr) {
			return StagedUpload{}, verr
		}
		return StagedUpload{}, &apperr.StorageError{Op: "stage_upload", Err: err}
	}

	token, err := s.Resolver.Signer.Sign(resolved.Ref.Key, ttl)
	if err != nil {
		s.purgeQuietly(ctx, resolved.Ref.Key)
		return StagedUpload{}, err
	}
	return StagedUpload{Ref: resolved.Ref, SignedRef: token, ExpiresAt: s.now().Add(ttl)}, nil
}
