package upload

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	uperr "github.com/videoup/videoup/internal/errors"
	"github.com/videoup/videoup/internal/storage"
)

// Provisioner makes sure the upload bucket exists. Concurrent callers may
// all see the bucket missing and all try to create it; the store's
// "already exists" answer to the losers counts as success.
type Provisioner struct {
	backend storage.Backend
	bucket  string
	ready   atomic.Bool
}

// NewProvisioner returns a Provisioner for bucket.
func NewProvisioner(backend storage.Backend, bucket string) *Provisioner {
	return &Provisioner{backend: backend, bucket: bucket}
}

// Bucket returns the bucket name the provisioner manages.
func (p *Provisioner) Bucket() string {
	return p.bucket
}

// Ready reports whether EnsureBucketReady has succeeded at least once.
func (p *Provisioner) Ready() bool {
	return p.ready.Load()
}

// EnsureBucketReady checks for the bucket and creates it when absent. Once
// it has succeeded, later calls return immediately without touching the store.
func (p *Provisioner) EnsureBucketReady(ctx context.Context) error {
	if p.ready.Load() {
		return nil
	}

	exists, err := p.backend.BucketExists(ctx, p.bucket)
	if err != nil {
		return uperr.StorageUnavailable("BucketExists", err)
	}

	if !exists {
		err := p.backend.CreateBucket(ctx, p.bucket)
		switch {
		case err == nil:
			slog.Info("Bucket created", "bucket", p.bucket)
		case errors.Is(err, storage.ErrBucketAlreadyExists):
			slog.Debug("Bucket created concurrently", "bucket", p.bucket)
		default:
			return uperr.StorageUnavailable("CreateBucket", err)
		}
	}

	p.ready.Store(true)
	return nil
}
