package helper

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrBlobNotFound is returned by Stat when the key does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// BlobRef identifies a stored object plus the metadata proofs are validated against.
type BlobRef struct {
	Key         string
	Filename    string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

/*
BlobStore is the storage boundary used by the attachment engine.

  - Put stores the reader under dir and returns the generated key.
  - Stat resolves an existing key (ErrBlobNotFound when missing).
  - Purge moves the object out of the live prefix; the trash reaper
    deletes it for good after the retention window.
*/
type BlobStore interface {
	Put(ctx context.Context, dir, filename, contentType string, r io.Reader) (BlobRef, error)
	Stat(ctx context.Context, key string) (BlobRef, error)
	Purge(ctx context.Context, key string) error
}

// BuildObjectKey produces dir/slug_YYYYMMDD_HHMMSS_rand.ext.
func BuildObjectKey(dir, filename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || base == "." {
		base = "file"
	}
	name := fmt.Sprintf("%s_%s_%s%s", slugify(base), now.UTC().Format("20060102_150405"), randHex(3), ext)
	return joinParts(dir, name)
}

// TrashKey is where Purge moves a live object: trash/YYYY/MM/DD/HHMMSS__basename.
func TrashKey(trashPrefix, key string, now time.Time) string {
	now = now.UTC()
	return path.Join(
		strings.Trim(trashPrefix, "/"),
		now.Format("2006"), now.Format("01"), now.Format("02"),
		fmt.Sprintf("%s__%s", now.Format("150405"), path.Base(key)),
	)
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	r := strings.NewReplacer(" ", "-", "_", "-")
	s = r.Replace(s)
	s = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, s)
	if s == "" {
		return "file"
	}
	return s
}

func randHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func joinParts(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		clean = append(clean, p)
	}
	return strings.Join(clean, "/")
}
