package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockMinioClient implements MinioAPI for unit testing.
type mockMinioClient struct {
	buckets map[string]bool

	makeBucketErr error
	bucketErr     error
	uploadID      string
	completeErr   error
	completeLoc   string

	lastMakeOpts     minio.MakeBucketOptions
	lastInitiateOpts minio.PutObjectOptions
	lastParts        []minio.CompletePart
	lastPresignQuery url.Values
	lastPresignTTL   time.Duration
	lastPutData      []byte
	lastPutOpts      minio.PutObjectOptions
	aborted          []string
}

func newMockMinioClient() *mockMinioClient {
	return &mockMinioClient{
		buckets:     make(map[string]bool),
		uploadID:    "minio-upload-1",
		completeLoc: "http://minio:9000/videos/k1",
	}
}

func (m *mockMinioClient) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	if m.bucketErr != nil {
		return false, m.bucketErr
	}
	return m.buckets[bucketName], nil
}

func (m *mockMinioClient) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	m.lastMakeOpts = opts
	if m.makeBucketErr != nil {
		return m.makeBucketErr
	}
	m.buckets[bucketName] = true
	return nil
}

func (m *mockMinioClient) NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error) {
	m.lastInitiateOpts = opts
	return m.uploadID, nil
}

func (m *mockMinioClient) CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	m.lastParts = parts
	if m.completeErr != nil {
		return minio.UploadInfo{}, m.completeErr
	}
	return minio.UploadInfo{Bucket: bucket, Key: object, Location: m.completeLoc}, nil
}

func (m *mockMinioClient) AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error {
	m.aborted = append(m.aborted, uploadID)
	return nil
}

func (m *mockMinioClient) Presign(ctx context.Context, method, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	m.lastPresignQuery = reqParams
	m.lastPresignTTL = expires
	q := url.Values{}
	for k, v := range reqParams {
		q[k] = v
	}
	q.Set("X-Amz-Signature", "abc")
	return &url.URL{Scheme: "http", Host: "minio:9000", Path: "/" + bucketName + "/" + objectName, RawQuery: q.Encode()}, nil
}

func (m *mockMinioClient) PutObject(ctx context.Context, bucket, object string, data io.Reader, size int64, md5Base64, sha256Hex string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	m.lastPutData = b
	m.lastPutOpts = opts
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func newTestMinioBackend(t *testing.T) (*MinioBackend, *mockMinioClient) {
	t.Helper()
	mock := newMockMinioClient()
	return NewMinioBackendWithClient("us-east-1", mock), mock
}

func TestMinioCreateBucket(t *testing.T) {
	backend, mock := newTestMinioBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateBucket(ctx, "videos"))
	assert.Equal(t, "us-east-1", mock.lastMakeOpts.Region)

	ok, err := backend.BucketExists(ctx, "videos")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMinioCreateBucketAlreadyOwned(t *testing.T) {
	backend, mock := newTestMinioBackend(t)

	mock.makeBucketErr = minio.ErrorResponse{Code: "BucketAlreadyOwnedByYou", StatusCode: http.StatusConflict}
	assert.ErrorIs(t, backend.CreateBucket(context.Background(), "videos"), ErrBucketAlreadyExists)

	mock.makeBucketErr = minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}
	err := backend.CreateBucket(context.Background(), "videos")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBucketAlreadyExists)
}

func TestMinioInitiateMultipart(t *testing.T) {
	backend, mock := newTestMinioBackend(t)

	meta := map[string]string{"scan-status": "PENDING"}
	id, err := backend.InitiateMultipart(context.Background(), "videos", "k1", "video/mp4", meta)
	require.NoError(t, err)
	assert.Equal(t, "minio-upload-1", id)
	assert.Equal(t, "video/mp4", mock.lastInitiateOpts.ContentType)
	assert.Equal(t, meta, mock.lastInitiateOpts.UserMetadata)

	mock.uploadID = ""
	_, err = backend.InitiateMultipart(context.Background(), "videos", "k1", "video/mp4", nil)
	require.Error(t, err)
}

func TestMinioPresign(t *testing.T) {
	backend, mock := newTestMinioBackend(t)

	u, err := backend.Presign(context.Background(), PresignRequest{
		Bucket: "videos", Key: "k1", Method: http.MethodPut,
		Expiry: 15 * time.Minute, UploadID: "u1", PartNumber: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", mock.lastPresignQuery.Get("uploadId"))
	assert.Equal(t, "3", mock.lastPresignQuery.Get("partNumber"))
	assert.Equal(t, 15*time.Minute, mock.lastPresignTTL)
	assert.True(t, strings.HasPrefix(u, "http://minio:9000/videos/k1?"))

	_, err = backend.Presign(context.Background(), PresignRequest{
		Bucket: "videos", Key: "k2", Method: http.MethodPut, Expiry: time.Minute,
	})
	require.NoError(t, err)
	assert.Empty(t, mock.lastPresignQuery.Get("uploadId"))
}

func TestMinioCompleteMultipart(t *testing.T) {
	backend, mock := newTestMinioBackend(t)

	res, err := backend.CompleteMultipart(context.Background(), "videos", "k1", "u1",
		[]Part{{PartNumber: 1, ETag: "a"}, {PartNumber: 2, ETag: "b"}})
	require.NoError(t, err)
	assert.True(t, res.StatusOK)
	assert.Equal(t, "http://minio:9000/videos/k1", res.Location)
	require.Len(t, mock.lastParts, 2)
	assert.Equal(t, 2, mock.lastParts[1].PartNumber)

	mock.completeErr = errors.New("connection refused")
	_, err = backend.CompleteMultipart(context.Background(), "videos", "k1", "u1", nil)
	require.Error(t, err)
}

func TestMinioPutObject(t *testing.T) {
	backend, mock := newTestMinioBackend(t)

	err := backend.PutObject(context.Background(), "videos", "k1", "video/mp4",
		map[string]string{"file-name": "a.mp4"}, strings.NewReader("data"), 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), mock.lastPutData)
	assert.Equal(t, "video/mp4", mock.lastPutOpts.ContentType)
	assert.Equal(t, "a.mp4", mock.lastPutOpts.UserMetadata["file-name"])
}

func TestMinioHealthCheck(t *testing.T) {
	backend, mock := newTestMinioBackend(t)

	require.Error(t, backend.HealthCheck(context.Background(), "videos"))
	mock.buckets["videos"] = true
	require.NoError(t, backend.HealthCheck(context.Background(), "videos"))

	mock.bucketErr = errors.New("dial tcp: connection refused")
	require.Error(t, backend.HealthCheck(context.Background(), "videos"))
}
