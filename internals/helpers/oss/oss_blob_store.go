package helper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"vulcan_backend/internals/helpers/logger"
)

type OSSConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	SecurityToken string
	Bucket        string
	Prefix        string // optional, e.g. "proofs"
	TrashPrefix   string // default "trash"
}

func (c OSSConfig) Complete() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

// OSSBlobStore stores proofs in an Aliyun OSS bucket.
type OSSBlobStore struct {
	Client      *oss.Client
	Bucket      *oss.Bucket
	BucketName  string
	Prefix      string
	TrashPrefix string
}

func NewOSSBlobStore(cfg OSSConfig) (*OSSBlobStore, error) {
	if !cfg.Complete() {
		return nil, fmt.Errorf("missing config: ALI_OSS_ENDPOINT/ACCESS_KEY/SECRET_KEY/BUCKET")
	}
	log := logger.For("oss")

	var (
		client *oss.Client
		err    error
	)
	endpoint := normalizeEndpoint(cfg.Endpoint)
	if cfg.SecurityToken != "" {
		client, err = oss.New(endpoint, cfg.AccessKey, cfg.SecretKey, oss.SecurityToken(cfg.SecurityToken))
	} else {
		client, err = oss.New(endpoint, cfg.AccessKey, cfg.SecretKey)
	}
	if err != nil {
		return nil, fmt.Errorf("oss.New: %w", err)
	}

	bkt, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("client.Bucket: %w", err)
	}

	// light check that the bucket is reachable
	if loc, err := client.GetBucketLocation(cfg.Bucket); err != nil {
		if se, ok := err.(oss.ServiceError); ok && se.StatusCode == 403 && se.Code == "AccessDenied" {
			log.Warn().Str("bucket", cfg.Bucket).Msg("skip location check due to AccessDenied")
		} else {
			return nil, fmt.Errorf("verify bucket: %w", err)
		}
	} else {
		log.Info().Str("bucket", cfg.Bucket).Str("location", loc).Msg("bucket ready")
	}

	trash := strings.Trim(cfg.TrashPrefix, "/")
	if trash == "" {
		trash = "trash"
	}
	return &OSSBlobStore{
		Client:      client,
		Bucket:      bkt,
		BucketName:  cfg.Bucket,
		Prefix:      strings.Trim(cfg.Prefix, "/"),
		TrashPrefix: trash,
	}, nil
}

func (s *OSSBlobStore) Put(ctx context.Context, dir, filename, contentType string, r io.Reader) (BlobRef, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	now := time.Now().UTC()
	key := BuildObjectKey(joinParts(s.Prefix, dir), filename, now)

	counter := &countingReader{r: r}
	opts := []oss.Option{
		oss.WithContext(ctx),
		oss.ContentType(contentType),
		oss.ContentDisposition("inline"),
		oss.Meta("filename", filename),
	}
	if err := s.Bucket.PutObject(key, counter, opts...); err != nil {
		return BlobRef{}, err
	}
	return BlobRef{
		Key:         key,
		Filename:    filename,
		ContentType: contentType,
		Size:        counter.n,
		CreatedAt:   now,
	}, nil
}

func (s *OSSBlobStore) Stat(ctx context.Context, key string) (BlobRef, error) {
	h, err := s.Bucket.GetObjectDetailedMeta(key, oss.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return BlobRef{}, ErrBlobNotFound
		}
		return BlobRef{}, err
	}
	return refFromHeader(key, h), nil
}

// Purge moves the object to trash/YYYY/MM/DD/HHMMSS__basename; the reaper deletes it later.
func (s *OSSBlobStore) Purge(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	dst := TrashKey(s.TrashPrefix, key, time.Now())
	if _, err := s.Bucket.CopyObject(key, dst, oss.WithContext(ctx)); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("copy %q -> %q: %w", key, dst, err)
	}
	return s.Bucket.DeleteObject(key, oss.WithContext(ctx))
}

func refFromHeader(key string, h http.Header) BlobRef {
	ref := BlobRef{
		Key:         key,
		ContentType: h.Get("Content-Type"),
		Filename:    h.Get("X-Oss-Meta-Filename"),
	}
	if n, err := strconv.ParseInt(h.Get("Content-Length"), 10, 64); err == nil {
		ref.Size = n
	}
	if t, err := http.ParseTime(h.Get("Last-Modified")); err == nil {
		ref.CreatedAt = t.UTC()
	}
	if ref.Filename == "" {
		ref.Filename = key[strings.LastIndex(key, "/")+1:]
	}
	return ref
}

func normalizeEndpoint(ep string) string {
	ep = strings.TrimSpace(ep)
	if ep == "" {
		return ep
	}
	if strings.HasPrefix(ep, "http://") || strings.HasPrefix(ep, "https://") {
		return ep
	}
	return "https://" + ep
}

func isNotFound(err error) bool {
	if e, ok := err.(oss.ServiceError); ok {
		return e.StatusCode == 404
	}
	return false
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
