package upload

import (
	"context"
	"log/slog"
	"time"

	"github.com/videoup/videoup/internal/config"
	uperr "github.com/videoup/videoup/internal/errors"
	"github.com/videoup/videoup/internal/logging"
	"github.com/videoup/videoup/internal/metrics"
	"github.com/videoup/videoup/internal/storage"
	"github.com/videoup/videoup/internal/uid"
)

// Defaults applied when no Option overrides them.
const (
	DefaultURLExpiry     = 15 * time.Minute
	DefaultMaxPartNumber = 1000
	DefaultContentType   = "video/mp4"
)

// Coordinator drives multipart sessions against a storage.Backend. It holds
// no per-session state and is safe for concurrent use.
type Coordinator struct {
	backend     storage.Backend
	bucket      string
	newKey      func() string
	contentType string
	maxPart     int

	issuer    *Issuer
	assembler *Assembler
	direct    directPolicy
}

type directPolicy struct {
	allowed []string
	maxSize int64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithKeyFunc replaces the key allocator. Tests use it to pin keys.
func WithKeyFunc(fn func() string) Option {
	return func(c *Coordinator) {
		c.newKey = fn
	}
}

// WithPartURLExpiry sets the validity of per-part URLs.
func WithPartURLExpiry(d time.Duration) Option {
	return func(c *Coordinator) {
		c.issuer.partExpiry = d
	}
}

// WithSingleShotURLExpiry sets the validity of whole-object URLs.
func WithSingleShotURLExpiry(d time.Duration) Option {
	return func(c *Coordinator) {
		c.issuer.singleShotExpiry = d
	}
}

// WithMaxPartNumber sets the highest part number a session may use.
func WithMaxPartNumber(n int) Option {
	return func(c *Coordinator) {
		c.maxPart = n
	}
}

// WithContentType sets the content type recorded on multipart sessions.
func WithContentType(ct string) Option {
	return func(c *Coordinator) {
		c.contentType = ct
	}
}

// WithDirectUploadPolicy restricts the direct upload path to the given
// content types and maximum size in bytes.
func WithDirectUploadPolicy(allowed []string, maxSize int64) Option {
	return func(c *Coordinator) {
		c.direct = directPolicy{allowed: allowed, maxSize: maxSize}
	}
}

// ConfigOptions translates the upload section of the configuration file.
func ConfigOptions(cfg config.UploadConfig) []Option {
	return []Option{
		WithPartURLExpiry(cfg.PartURLExpiry),
		WithSingleShotURLExpiry(cfg.SingleShotURLExpiry),
		WithMaxPartNumber(cfg.MaxPartNumber),
		WithContentType(cfg.ContentType),
		WithDirectUploadPolicy(cfg.AllowedDirectContentTypes, cfg.MaxDirectSize),
	}
}

// New creates a Coordinator for uploads into bucket.
func New(backend storage.Backend, bucket string, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend:     backend,
		bucket:      bucket,
		newKey:      uid.NewKey,
		contentType: DefaultContentType,
		maxPart:     DefaultMaxPartNumber,
		issuer: &Issuer{
			backend:          backend,
			bucket:           bucket,
			partExpiry:       DefaultURLExpiry,
			singleShotExpiry: DefaultURLExpiry,
		},
		direct: directPolicy{allowed: []string{DefaultContentType}},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.assembler = &Assembler{backend: backend, bucket: bucket, maxPart: c.maxPart}
	return c
}

// Bucket returns the bucket uploads land in.
func (c *Coordinator) Bucket() string {
	return c.bucket
}

// MaxPartNumber returns the highest part number AuthorizePart accepts.
func (c *Coordinator) MaxPartNumber() int {
	return c.maxPart
}

// StartSession allocates a fresh key and opens a multipart upload for it.
// The returned upload ID is always the one the store issued.
func (c *Coordinator) StartSession(ctx context.Context, fileName string) (Session, error) {
	key := c.newKey()

	uploadID, err := c.backend.InitiateMultipart(ctx, c.bucket, key, c.contentType, objectMetadata(fileName))
	if err != nil {
		slog.Warn("Multipart upload not started", "key", key, "file_name", fileName, "error", err)
		return Session{}, uperr.StorageUnavailable("InitiateMultipart", err)
	}

	metrics.SessionsStarted.Inc()
	slog.Info("Multipart upload started", logging.Upload(key, uploadID), "file_name", fileName)

	return Session{
		Key:      key,
		UploadID: uploadID,
		FileName: fileName,
		State:    StateInitiated,
	}, nil
}

// AuthorizePart returns a URL the client can PUT the bytes of partNumber
// to. Out-of-range part numbers are rejected before the store is asked.
// Parts may be authorized in any order and more than once.
func (c *Coordinator) AuthorizePart(ctx context.Context, key, uploadID string, partNumber int) (string, error) {
	if err := requireSession(key, uploadID); err != nil {
		return "", err
	}
	if partNumber < 1 || partNumber > c.maxPart {
		return "", uperr.InvalidArgument("part number %d is outside [1, %d]", partNumber, c.maxPart)
	}

	u, err := c.issuer.PartURL(ctx, key, uploadID, partNumber)
	if err != nil {
		return "", err
	}

	metrics.PartsAuthorized.Inc()
	slog.Debug("Part upload authorized", logging.Upload(key, uploadID), "part_number", partNumber)
	return u, nil
}

// AuthorizeSingleShot returns a URL for uploading a whole object to key
// outside the multipart protocol.
func (c *Coordinator) AuthorizeSingleShot(ctx context.Context, key, fileName string) (string, error) {
	if key == "" {
		return "", uperr.InvalidArgument("key is required")
	}

	u, err := c.issuer.SingleShotURL(ctx, key)
	if err != nil {
		return "", err
	}

	metrics.SingleShotsAuthorized.Inc()
	slog.Info("Single-shot upload authorized", "key", key, "file_name", fileName)
	return u, nil
}

// NewSingleShot allocates a fresh key and authorizes a whole-object upload
// to it. The key is never used for a multipart session.
func (c *Coordinator) NewSingleShot(ctx context.Context, fileName string) (key, url string, err error) {
	key = c.newKey()
	url, err = c.AuthorizeSingleShot(ctx, key, fileName)
	if err != nil {
		return "", "", err
	}
	return key, url, nil
}

// CompleteSession closes the session. See Assembler.Complete.
func (c *Coordinator) CompleteSession(ctx context.Context, key, uploadID string, manifest Manifest) (Completion, error) {
	return c.assembler.Complete(ctx, key, uploadID, manifest)
}

func requireSession(key, uploadID string) error {
	if key == "" {
		return uperr.InvalidArgument("key is required")
	}
	if uploadID == "" {
		return uperr.InvalidArgument("uploadId is required")
	}
	return nil
}
