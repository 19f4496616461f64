package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vulcan_backend/internals/constants"
	appModel "vulcan_backend/internals/features/applications/applications/model"
	policyModel "vulcan_backend/internals/features/policies/policies/model"
	policySvc "vulcan_backend/internals/features/policies/policies/service"
	"vulcan_backend/internals/helpers/apperr"
	helperOSS "vulcan_backend/internals/helpers/oss"
)

// Phase distinguishes normal submissions from paper intake, where an admin
// keys in a whole paper application and proofs legitimately sit unreviewed.
type Phase string

const (
	PhaseDefault     Phase = ""
	PhasePaperIntake Phase = "paper_intake"
)

type ProofRules struct {
	MinSize int64
	MaxSize int64
	Grace   time.Duration
}

func LoadProofRules(ctx context.Context, policies policySvc.Store) ProofRules {
	return ProofRules{
		MinSize: int64(policySvc.IntOr(ctx, policies, policyModel.KeyProofMinSizeBytes, constants.DefaultProofMinSizeBytes)),
		MaxSize: int64(policySvc.IntOr(ctx, policies, policyModel.KeyProofMaxSizeBytes, constants.DefaultProofMaxSizeBytes)),
		Grace:   time.Duration(policySvc.IntOr(ctx, policies, policyModel.KeyProofReviewGraceSeconds, constants.DefaultProofGraceSeconds)) * time.Second,
	}
}

// ValidateFile checks type and size, and decodability when the body is at hand.
func (r ProofRules) ValidateFile(field, contentType string, size int64, data []byte) error {
	verr := &apperr.ValidationError{}
	ct := constants.NormalizeContentType(contentType)
	if !constants.IsAllowedProofContentType(ct) {
		verr.Add(field, fmt.Sprintf("content type %q is not allowed", ct))
	}
	if size < r.MinSize {
		verr.Add(field, fmt.Sprintf("file is too small (minimum %d bytes)", r.MinSize))
	}
	if r.MaxSize > 0 && size > r.MaxSize {
		verr.Add(field, fmt.Sprintf("file is too large (maximum %d bytes)", r.MaxSize))
	}
	if !verr.Empty() {
		return verr
	}
	if data != nil {
		if err := helperOSS.CheckDecodable(data, ct); err != nil {
			return apperr.NewValidation(field, "file is corrupted or does not match its type")
		}
	}
	return nil
}

// CheckFunc adapts the rules to the resolver.
func (r ProofRules) CheckFunc(field string) helperOSS.CheckFunc {
	return func(ref helperOSS.BlobRef, data []byte) error {
		return r.ValidateFile(field, ref.ContentType, ref.Size, data)
	}
}

// ValidateProofConsistency checks the status of one proof against its attachment.
//
//	approved      -> attachment required
//	any attached  -> type and size within rules
//	not_reviewed  -> attached within the grace period (paper intake exempt)
func (r ProofRules) ValidateProofConsistency(app *appModel.ApplicationModel, pt appModel.ProofType, phase Phase, now time.Time) error {
	field := string(pt) + "_proof"
	att := app.Proof(pt)
	status := app.ProofStatus(pt)

	if status == appModel.ProofStatusApproved && !att.Present() {
		return apperr.NewValidation(field, "an approved proof must have an attachment")
	}
	if !att.Present() {
		return nil
	}

	ct := ""
	if att.ContentType != nil {
		ct = *att.ContentType
	}
	if err := r.ValidateFile(field, ct, att.ByteSize, nil); err != nil {
		return err
	}

	if status == appModel.ProofStatusNotReviewed && phase != PhasePaperIntake &&
		att.AttachedAt != nil && now.Sub(*att.AttachedAt) > r.Grace {
		return apperr.NewValidation(field, "attachment is too old to be left unreviewed")
	}
	return nil
}

// classifyResolveError turns caller-side resolver failures into validation
// errors. Anything else is returned unchanged and treated as a storage failure.
func classifyResolveError(field string, err error) error {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr
	case errors.Is(err, helperOSS.ErrAmbiguousFileInput):
		return apperr.NewValidation(field, "give exactly one of an upload, a blob key or a signed reference")
	case errors.Is(err, helperOSS.ErrInvalidSignedRef):
		return apperr.NewValidation(field, "signed reference is invalid or expired")
	case errors.Is(err, helperOSS.ErrBlobNotFound):
		return apperr.NewValidation(field, "referenced file does not exist")
	case errors.Is(err, helperOSS.ErrUndecodableImage):
		return apperr.NewValidation(field, "file is corrupted or does not match its type")
	}
	return err
}

func isValidation(err error) bool {
	var verr *apperr.ValidationError
	return errors.As(err, &verr)
}
