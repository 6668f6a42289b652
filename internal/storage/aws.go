package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/videoup/videoup/internal/config"
)

// S3API defines the subset of the AWS S3 client interface that the S3
// backend uses. This allows mocking in tests.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// PresignAPI defines the subset of the S3 presign client the backend uses.
type PresignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignUploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Backend implements Backend on top of the AWS SDK for Go v2. It talks to
// AWS S3 or to any S3-compatible endpoint (MinIO, LocalStack).
type S3Backend struct {
	// Region is used as the location constraint when creating buckets.
	Region    string
	client    S3API
	presigner PresignAPI
}

// NewS3Backend creates an S3Backend from the storage configuration. Static
// credentials are used when both keys are set; otherwise the default AWS
// credential chain applies (env vars, ~/.aws/credentials, IAM role, etc.).
func NewS3Backend(ctx context.Context, cfg config.StorageConfig) (*S3Backend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := endpointURL(cfg.Endpoint, cfg.UseSSL)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	slog.Info("S3 backend initialized", "endpoint", cfg.Endpoint, "region", cfg.Region, "path_style", cfg.PathStyle)
	return NewS3BackendWithClient(cfg.Region, client, s3.NewPresignClient(client)), nil
}

// NewS3BackendWithClient creates an S3Backend with pre-configured clients.
// This is primarily used for testing with mock clients.
func NewS3BackendWithClient(region string, client S3API, presigner PresignAPI) *S3Backend {
	return &S3Backend{
		Region:    region,
		client:    client,
		presigner: presigner,
	}
}

// endpointURL prefixes a bare host[:port] with the scheme implied by useSSL.
func endpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// BucketExists issues HeadBucket and maps a 404 to false.
func (b *S3Backend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking bucket %s: %w", bucket, err)
	}
	return true, nil
}

// CreateBucket creates bucket, passing a location constraint outside us-east-1.
func (b *S3Backend) CreateBucket(ctx context.Context, bucket string) error {
	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}
	if b.Region != "" && b.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.Region),
		}
	}

	out, err := b.client.CreateBucket(ctx, input)
	if err != nil {
		if isAWSBucketOwned(err) {
			return ErrBucketAlreadyExists
		}
		return fmt.Errorf("creating bucket %s: %w", bucket, err)
	}
	if !responseOK(out.ResultMetadata) {
		return fmt.Errorf("creating bucket %s: unexpected response status", bucket)
	}
	return nil
}

// InitiateMultipart issues CreateMultipartUpload and returns its upload ID.
func (b *S3Backend) InitiateMultipart(ctx context.Context, bucket, key, contentType string, metadata map[string]string) (string, error) {
	out, err := b.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		return "", fmt.Errorf("creating multipart upload: %w", err)
	}
	uploadID := aws.ToString(out.UploadId)
	if uploadID == "" {
		return "", fmt.Errorf("creating multipart upload: empty upload id for %s/%s", bucket, key)
	}
	return uploadID, nil
}

// Presign signs a PUT for either a whole object or a single multipart part.
func (b *S3Backend) Presign(ctx context.Context, req PresignRequest) (string, error) {
	if req.Method != http.MethodPut {
		return "", fmt.Errorf("presigning %s: unsupported method", req.Method)
	}
	expires := s3.WithPresignExpires(req.Expiry)

	var (
		signed *v4.PresignedHTTPRequest
		err    error
	)
	if req.UploadID != "" {
		signed, err = b.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(req.Bucket),
			Key:        aws.String(req.Key),
			UploadId:   aws.String(req.UploadID),
			PartNumber: aws.Int32(int32(req.PartNumber)),
		}, expires)
	} else {
		signed, err = b.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(req.Bucket),
			Key:    aws.String(req.Key),
		}, expires)
	}
	if err != nil {
		return "", fmt.Errorf("presigning upload: %w", err)
	}
	return signed.URL, nil
}

// CompleteMultipart issues CompleteMultipartUpload with the parts as given.
// Ordering is left to the store.
func (b *S3Backend) CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []Part) (CompleteResult, error) {
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(int32(p.PartNumber)),
		})
	}

	out, err := b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return CompleteResult{}, fmt.Errorf("completing multipart upload: %w", err)
	}

	return CompleteResult{
		StatusOK: responseOK(out.ResultMetadata),
		Location: aws.ToString(out.Location),
	}, nil
}

// AbortMultipart issues AbortMultipartUpload.
func (b *S3Backend) AbortMultipart(ctx context.Context, bucket, key, uploadID string) error {
	_, err := b.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("aborting multipart upload: %w", err)
	}
	return nil
}

// PutObject uploads body as a single object.
func (b *S3Backend) PutObject(ctx context.Context, bucket, key, contentType string, metadata map[string]string, body io.Reader, size int64) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		Metadata:      metadata,
	})
	if err != nil {
		return fmt.Errorf("uploading to S3: %w", err)
	}
	return nil
}

// HealthCheck verifies that the bucket is accessible.
func (b *S3Backend) HealthCheck(ctx context.Context, bucket string) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	return err
}

// responseOK reports whether the raw HTTP response recorded in the result
// metadata carried 200 OK. The SDK accepts any 2xx, so a 202 or 204 is
// surfaced here as not OK. A missing raw response counts as OK since the
// SDK only returns an output for successful exchanges.
func responseOK(md middleware.Metadata) bool {
	raw, ok := awsmiddleware.GetRawResponse(md).(*smithyhttp.Response)
	if !ok || raw == nil || raw.Response == nil {
		return true
	}
	return raw.StatusCode == http.StatusOK
}

// isAWSNotFound checks if an AWS error is a 404/NoSuchBucket/NotFound error.
func isAWSNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NotFound" || code == "404" || code == "NoSuchBucket" {
			return true
		}
	}
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		if respErr.HTTPStatusCode() == http.StatusNotFound {
			return true
		}
	}
	return false
}

// isAWSBucketOwned checks if a CreateBucket error means the caller already
// owns the bucket.
func isAWSBucketOwned(err error) bool {
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "BucketAlreadyOwnedByYou"
	}
	return false
}

// Ensure S3Backend implements Backend at compile time.
var _ Backend = (*S3Backend)(nil)
