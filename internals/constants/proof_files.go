package constants

import (
	"path/filepath"
	"strings"
)

// Proof content types accepted for income, residency and certification documents.
var AllowedProofContentTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/png":       {},
	"image/tiff":      {},
	"image/bmp":       {},
	"image/webp":      {},
}

const (
	DefaultProofMinSizeBytes   = 1024
	DefaultProofMaxSizeBytes   = 5 * 1024 * 1024
	DefaultProofGraceSeconds   = 60
	DefaultReviewReminderHours = 72
)

func IsAllowedProofContentType(ct string) bool {
	_, ok := AllowedProofContentTypes[NormalizeContentType(ct)]
	return ok
}

// NormalizeContentType strips parameters ("; charset=...") and lowercases.
func NormalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}

func IsImageContentType(ct string) bool {
	return strings.HasPrefix(NormalizeContentType(ct), "image/")
}

// ContentTypeFromExt is the fallback when sniffing gives application/octet-stream.
func ContentTypeFromExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".bmp":
		return "image/bmp"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
