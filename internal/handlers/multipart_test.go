package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videoup/videoup/internal/storage"
	"github.com/videoup/videoup/internal/upload"
)

// failingBackend fails every call the way an unreachable store would.
type failingBackend struct {
	*storage.MemoryBackend
}

func (failingBackend) InitiateMultipart(ctx context.Context, bucket, key, contentType string, metadata map[string]string) (string, error) {
	return "", errors.New("dial tcp 127.0.0.1:9000: connection refused")
}

func newTestAPI(t *testing.T, backend storage.Backend) humatest.TestAPI {
	t.Helper()
	_, api := humatest.New(t)
	coord := upload.New(storage.Guard(backend), "videos")
	NewMultipartHandler(coord).Register(api)
	NewObjectHandler(coord, 1<<20).Register(api)
	return api
}

func newMemoryStore(t *testing.T) *storage.MemoryBackend {
	t.Helper()
	mem := storage.NewMemoryBackend("http://localhost/_memory")
	require.NoError(t, mem.CreateBucket(context.Background(), "videos"))
	return mem
}

func decode[T any](t *testing.T, body *bytes.Buffer) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body.Bytes(), &v))
	return v
}

type startBody struct {
	Key      string `json:"key"`
	UploadID string `json:"uploadId"`
}

type urlBody struct {
	URL string `json:"url"`
}

type problemBody struct {
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func TestMultipartFlow(t *testing.T) {
	mem := newMemoryStore(t)
	api := newTestAPI(t, mem)

	resp := api.Post("/videos/start-multipart", map[string]any{"fileName": "clip.mp4"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	started := decode[startBody](t, resp.Body)
	require.NotEmpty(t, started.Key)
	require.NotEmpty(t, started.UploadID)

	resp = api.Post("/videos/"+started.Key+"/pre-signed-part", map[string]any{
		"uploadId":   started.UploadID,
		"partNumber": 1,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	part := decode[urlBody](t, resp.Body)
	assert.Contains(t, part.URL, "partNumber=1")
	assert.Contains(t, part.URL, "uploadId="+started.UploadID)

	// Stand in for the client's PUT to the presigned URL.
	etag, err := mem.UploadPart("videos", started.Key, started.UploadID, 1, []byte("frame data"))
	require.NoError(t, err)

	resp = api.Post("/videos/"+started.Key+"/complete-multipart", map[string]any{
		"uploadId": started.UploadID,
		"parts":    []map[string]any{{"partNumber": 1, "etag": etag}},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Empty(t, strings.TrimSpace(resp.Body.String()))

	data, meta, ok := mem.Object("videos", started.Key)
	require.True(t, ok)
	assert.Equal(t, "frame data", string(data))
	assert.Equal(t, "clip.mp4", meta[upload.MetaFileName])
	assert.Equal(t, upload.ScanStatusPending, meta[upload.MetaScanStatus])
}

func TestPreSignedPartOutOfRange(t *testing.T) {
	api := newTestAPI(t, newMemoryStore(t))

	for _, n := range []int{0, 1001} {
		resp := api.Post("/videos/k1/pre-signed-part", map[string]any{"uploadId": "u1", "partNumber": n})
		assert.Equal(t, http.StatusBadRequest, resp.Code, "part %d", n)
	}
}

func TestCompleteMultipartFailureAborts(t *testing.T) {
	mem := newMemoryStore(t)
	api := newTestAPI(t, mem)

	resp := api.Post("/videos/start-multipart", map[string]any{"fileName": "clip.mp4"})
	require.Equal(t, http.StatusOK, resp.Code)
	started := decode[startBody](t, resp.Body)
	require.Equal(t, 1, mem.OpenUploads())

	// No part was uploaded, so the store rejects the manifest.
	resp = api.Post("/videos/"+started.Key+"/complete-multipart", map[string]any{
		"uploadId": started.UploadID,
		"parts":    []map[string]any{{"partNumber": 1, "etag": "missing"}},
	})
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Equal(t, 0, mem.OpenUploads())
}

func TestCompleteMultipartDuplicateParts(t *testing.T) {
	api := newTestAPI(t, newMemoryStore(t))

	resp := api.Post("/videos/k1/complete-multipart", map[string]any{
		"uploadId": "u1",
		"parts": []map[string]any{
			{"partNumber": 1, "etag": "a"},
			{"partNumber": 1, "etag": "b"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestStartMultipartStorageUnavailable(t *testing.T) {
	api := newTestAPI(t, failingBackend{newMemoryStore(t)})

	resp := api.Post("/videos/start-multipart", map[string]any{"fileName": "clip.mp4"})
	require.Equal(t, http.StatusFailedDependency, resp.Code)
	problem := decode[problemBody](t, resp.Body)
	assert.Equal(t, "Object storage not available right now", problem.Detail)
	assert.NotContains(t, resp.Body.String(), "connection refused")
}

func TestStartMultipartValidation(t *testing.T) {
	api := newTestAPI(t, newMemoryStore(t))

	resp := api.Post("/videos/start-multipart", map[string]any{"fileName": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}
