package helper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"vulcan_backend/internals/constants"
)

// Upload is a raw file handed to the service (multipart part, inbound email attachment).
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// FileInput carries exactly one of a raw upload, an existing blob key, or a signed reference.
type FileInput struct {
	Upload    *Upload
	BlobKey   string
	SignedRef string
}

func (f FileInput) Present() bool {
	return f.Upload != nil || strings.TrimSpace(f.BlobKey) != "" || strings.TrimSpace(f.SignedRef) != ""
}

func (f FileInput) count() int {
	n := 0
	if f.Upload != nil {
		n++
	}
	if strings.TrimSpace(f.BlobKey) != "" {
		n++
	}
	if strings.TrimSpace(f.SignedRef) != "" {
		n++
	}
	return n
}

var ErrAmbiguousFileInput = errors.New("exactly one of upload, blob key or signed reference must be given")

// ResolvedFile is a FileInput turned into a stored blob.
type ResolvedFile struct {
	Ref      BlobRef
	Data     []byte // only set for raw uploads
	Uploaded bool   // true when this call created the blob
}

// CheckFunc validates the would-be blob before it is stored or accepted.
type CheckFunc func(ref BlobRef, data []byte) error

// Resolver normalises the three input representations to one BlobRef.
type Resolver struct {
	Store   BlobStore
	Signer  *RefSigner
	MaxRead int64
}

func (r *Resolver) Resolve(ctx context.Context, dir string, in FileInput, check CheckFunc) (ResolvedFile, error) {
	if in.count() != 1 {
		return ResolvedFile{}, ErrAmbiguousFileInput
	}

	switch {
	case in.Upload != nil:
		return r.resolveUpload(ctx, dir, in.Upload, check)

	case strings.TrimSpace(in.SignedRef) != "":
		if r.Signer == nil {
			return ResolvedFile{}, ErrInvalidSignedRef
		}
		key, err := r.Signer.Verify(strings.TrimSpace(in.SignedRef))
		if err != nil {
			return ResolvedFile{}, err
		}
		return r.resolveKey(ctx, key, check)

	default:
		return r.resolveKey(ctx, strings.TrimSpace(in.BlobKey), check)
	}
}

func (r *Resolver) resolveKey(ctx context.Context, key string, check CheckFunc) (ResolvedFile, error) {
	ref, err := r.Store.Stat(ctx, key)
	if err != nil {
		return ResolvedFile{}, err
	}
	ref.ContentType = constants.NormalizeContentType(ref.ContentType)
	if check != nil {
		if err := check(ref, nil); err != nil {
			return ResolvedFile{}, err
		}
	}
	return ResolvedFile{Ref: ref}, nil
}

func (r *Resolver) resolveUpload(ctx context.Context, dir string, up *Upload, check CheckFunc) (ResolvedFile, error) {
	if up.Body == nil {
		return ResolvedFile{}, errors.New("upload has no body")
	}
	limit := r.MaxRead
	if limit <= 0 {
		limit = 32 << 20
	}
	data, err := io.ReadAll(io.LimitReader(up.Body, limit+1))
	if err != nil {
		return ResolvedFile{}, fmt.Errorf("read upload: %w", err)
	}

	ref := BlobRef{
		Filename:    up.Filename,
		ContentType: detectContentType(data, up.Filename, up.ContentType),
		Size:        int64(len(data)),
	}
	if check != nil {
		if err := check(ref, data); err != nil {
			return ResolvedFile{}, err
		}
	}

	stored, err := r.Store.Put(ctx, dir, up.Filename, ref.ContentType, bytes.NewReader(data))
	if err != nil {
		return ResolvedFile{}, err
	}
	stored.ContentType = ref.ContentType
	if stored.Filename == "" {
		stored.Filename = up.Filename
	}
	return ResolvedFile{Ref: stored, Data: data, Uploaded: true}, nil
}

// detectContentType prefers the declared type, falls back to sniffing the first
// 512 bytes, then to the extension.
func detectContentType(data []byte, filename, declared string) string {
	ct := constants.NormalizeContentType(declared)
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if len(head) > 0 {
		if sniffed := constants.NormalizeContentType(http.DetectContentType(head)); sniffed != "application/octet-stream" {
			return sniffed
		}
	}
	return constants.ContentTypeFromExt(filename)
}
