package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/videoup/videoup/internal/config"
)

// MinioAPI defines the subset of the minio-go Core client that the MinIO
// backend uses. *minio.Core satisfies it.
type MinioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error
	Presign(ctx context.Context, method, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	PutObject(ctx context.Context, bucket, object string, data io.Reader, size int64, md5Base64, sha256Hex string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioBackend implements Backend with the MinIO client library against
// MinIO or any S3-compatible service.
type MinioBackend struct {
	// Region is passed to MakeBucket.
	Region string
	client MinioAPI
}

// NewMinioBackend creates a MinioBackend from the storage configuration.
// Endpoint is host[:port] without scheme; UseSSL selects https.
func NewMinioBackend(cfg config.StorageConfig) (*MinioBackend, error) {
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}

	core, err := minio.NewCore(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	slog.Info("MinIO backend initialized", "endpoint", cfg.Endpoint, "ssl", cfg.UseSSL, "region", cfg.Region)
	return NewMinioBackendWithClient(cfg.Region, core), nil
}

// NewMinioBackendWithClient creates a MinioBackend with a pre-configured
// client. This is primarily used for testing with mock clients.
func NewMinioBackendWithClient(region string, client MinioAPI) *MinioBackend {
	return &MinioBackend{Region: region, client: client}
}

// BucketExists reports whether bucket exists.
func (b *MinioBackend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ok, err := b.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("checking bucket %s: %w", bucket, err)
	}
	return ok, nil
}

// CreateBucket creates bucket, mapping the "already owned" answer to
// ErrBucketAlreadyExists.
func (b *MinioBackend) CreateBucket(ctx context.Context, bucket string) error {
	err := b.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: b.Region})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
			return ErrBucketAlreadyExists
		}
		return fmt.Errorf("creating bucket %s: %w", bucket, err)
	}
	return nil
}

// InitiateMultipart opens a multipart upload with content type and user metadata.
func (b *MinioBackend) InitiateMultipart(ctx context.Context, bucket, key, contentType string, metadata map[string]string) (string, error) {
	uploadID, err := b.client.NewMultipartUpload(ctx, bucket, key, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return "", fmt.Errorf("creating multipart upload: %w", err)
	}
	if uploadID == "" {
		return "", fmt.Errorf("creating multipart upload: empty upload id for %s/%s", bucket, key)
	}
	return uploadID, nil
}

// Presign signs the request; part uploads carry uploadId and partNumber as
// signed query parameters.
func (b *MinioBackend) Presign(ctx context.Context, req PresignRequest) (string, error) {
	if req.Method != http.MethodPut {
		return "", fmt.Errorf("presigning %s: unsupported method", req.Method)
	}
	params := url.Values{}
	if req.UploadID != "" {
		params.Set("uploadId", req.UploadID)
		params.Set("partNumber", strconv.Itoa(req.PartNumber))
	}
	u, err := b.client.Presign(ctx, req.Method, req.Bucket, req.Key, req.Expiry, params)
	if err != nil {
		return "", fmt.Errorf("presigning upload: %w", err)
	}
	return u.String(), nil
}

// CompleteMultipart asks MinIO to assemble parts. minio-go turns non-2xx
// answers into errors, so a returned UploadInfo is an OK-class response.
func (b *MinioBackend) CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []Part) (CompleteResult, error) {
	completed := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, minio.CompletePart{
			PartNumber: p.PartNumber,
			ETag:       p.ETag,
		})
	}

	info, err := b.client.CompleteMultipartUpload(ctx, bucket, key, uploadID, completed, minio.PutObjectOptions{})
	if err != nil {
		return CompleteResult{}, fmt.Errorf("completing multipart upload: %w", err)
	}
	return CompleteResult{StatusOK: true, Location: info.Location}, nil
}

// AbortMultipart discards the multipart upload.
func (b *MinioBackend) AbortMultipart(ctx context.Context, bucket, key, uploadID string) error {
	if err := b.client.AbortMultipartUpload(ctx, bucket, key, uploadID); err != nil {
		return fmt.Errorf("aborting multipart upload: %w", err)
	}
	return nil
}

// PutObject uploads body as a single object.
func (b *MinioBackend) PutObject(ctx context.Context, bucket, key, contentType string, metadata map[string]string, body io.Reader, size int64) error {
	_, err := b.client.PutObject(ctx, bucket, key, body, size, "", "", minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("uploading to MinIO: %w", err)
	}
	return nil
}

// HealthCheck verifies that the bucket is reachable and present.
func (b *MinioBackend) HealthCheck(ctx context.Context, bucket string) error {
	ok, err := b.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", bucket)
	}
	return nil
}

// Ensure MinioBackend implements Backend at compile time.
var _ Backend = (*MinioBackend)(nil)
