package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	uperr "github.com/videoup/videoup/internal/errors"
	"github.com/videoup/videoup/internal/metrics"
)

// GuardedBackend decorates a Backend at the process boundary: every
// failure of the inner adapter is translated into a StorageUnavailable
// error, and every call is counted and timed. ErrBucketAlreadyExists passes
// through untouched so the provisioner can treat it as success.
type GuardedBackend struct {
	inner Backend
}

// Guard wraps inner in a GuardedBackend.
func Guard(inner Backend) *GuardedBackend {
	return &GuardedBackend{inner: inner}
}

// observe records the outcome of op and translates err.
func (g *GuardedBackend) observe(op string, start time.Time, err error) error {
	metrics.BackendOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		metrics.BackendOperationsTotal.WithLabelValues(op, "success").Inc()
		return nil
	case errors.Is(err, ErrBucketAlreadyExists):
		metrics.BackendOperationsTotal.WithLabelValues(op, "exists").Inc()
		return err
	default:
		metrics.BackendOperationsTotal.WithLabelValues(op, "error").Inc()
		slog.Debug("Object store call failed", "operation", op, "error", err)
		return uperr.StorageUnavailable(op, err)
	}
}

func (g *GuardedBackend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	start := time.Now()
	ok, err := g.inner.BucketExists(ctx, bucket)
	return ok, g.observe("BucketExists", start, err)
}

func (g *GuardedBackend) CreateBucket(ctx context.Context, bucket string) error {
	start := time.Now()
	return g.observe("CreateBucket", start, g.inner.CreateBucket(ctx, bucket))
}

func (g *GuardedBackend) InitiateMultipart(ctx context.Context, bucket, key, contentType string, metadata map[string]string) (string, error) {
	start := time.Now()
	uploadID, err := g.inner.InitiateMultipart(ctx, bucket, key, contentType, metadata)
	return uploadID, g.observe("InitiateMultipart", start, err)
}

func (g *GuardedBackend) Presign(ctx context.Context, req PresignRequest) (string, error) {
	start := time.Now()
	u, err := g.inner.Presign(ctx, req)
	return u, g.observe("Presign", start, err)
}

func (g *GuardedBackend) CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []Part) (CompleteResult, error) {
	start := time.Now()
	res, err := g.inner.CompleteMultipart(ctx, bucket, key, uploadID, parts)
	return res, g.observe("CompleteMultipart", start, err)
}

func (g *GuardedBackend) AbortMultipart(ctx context.Context, bucket, key, uploadID string) error {
	start := time.Now()
	return g.observe("AbortMultipart", start, g.inner.AbortMultipart(ctx, bucket, key, uploadID))
}

func (g *GuardedBackend) PutObject(ctx context.Context, bucket, key, contentType string, metadata map[string]string, body io.Reader, size int64) error {
	start := time.Now()
	return g.observe("PutObject", start, g.inner.PutObject(ctx, bucket, key, contentType, metadata, body, size))
}

func (g *GuardedBackend) HealthCheck(ctx context.Context, bucket string) error {
	start := time.Now()
	return g.observe("HealthCheck", start, g.inner.HealthCheck(ctx, bucket))
}

// Ensure GuardedBackend implements Backend at compile time.
var _ Backend = (*GuardedBackend)(nil)
