// Package storage defines the object store adapter interface consumed by
// the upload core, and its implementations.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrBucketAlreadyExists is returned by CreateBucket when the bucket was
// created concurrently by another caller. Callers treat it as success.
var ErrBucketAlreadyExists = errors.New("storage: bucket already exists")

// Part identifies one uploaded part of a multipart upload by its number and
// the ETag the store assigned when its bytes arrived.
type Part struct {
	PartNumber int
	ETag       string
}

// CompleteResult is the store's answer to a completion request.
type CompleteResult struct {
	// StatusOK reports an OK-class response status.
	StatusOK bool
	// Location identifies the assembled object. Empty means nothing was assembled.
	Location string
}

// PresignRequest describes a single operation a presigned URL authorizes.
// UploadID and PartNumber are set only for multipart part uploads.
type PresignRequest struct {
	Bucket     string
	Key        string
	Method     string
	Expiry     time.Duration
	UploadID   string
	PartNumber int
}

// Backend defines the object store primitives the upload core relies on.
// Implementations must be safe for unsynchronized concurrent use: the
// adapter is the only state shared across requests.
type Backend interface {
	// BucketExists reports whether the bucket exists.
	BucketExists(ctx context.Context, bucket string) (bool, error)

	// CreateBucket creates the bucket. Returns ErrBucketAlreadyExists if the
	// store reports it already exists.
	CreateBucket(ctx context.Context, bucket string) error

	// InitiateMultipart opens a multipart upload for key and returns the
	// store-issued upload ID.
	InitiateMultipart(ctx context.Context, bucket, key, contentType string, metadata map[string]string) (string, error)

	// Presign returns a time-bounded URL authorizing exactly the described
	// request. Expiry is enforced by the store.
	Presign(ctx context.Context, req PresignRequest) (string, error)

	// CompleteMultipart asks the store to assemble the listed parts.
	CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []Part) (CompleteResult, error)

	// AbortMultipart discards a multipart upload and any uploaded parts.
	AbortMultipart(ctx context.Context, bucket, key, uploadID string) error

	// PutObject writes a whole object in one request.
	PutObject(ctx context.Context, bucket, key, contentType string, metadata map[string]string, body io.Reader, size int64) error

	// HealthCheck verifies that the store and bucket are reachable.
	HealthCheck(ctx context.Context, bucket string) error
}
