package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/videoup/videoup/internal/uid"
)

// MemoryPathPrefix is where the HTTP server mounts a MemoryBackend so that
// the URLs it presigns can be used by clients.
const MemoryPathPrefix = "/_memory"

var (
	errNoSuchBucket = errors.New("memory: no such bucket")
	errNoSuchUpload = errors.New("memory: no such upload")
	errInvalidPart  = errors.New("memory: one or more of the specified parts could not be found")
	errNoParts      = errors.New("memory: the multipart manifest lists no parts")
)

// memObject holds the raw data and precomputed ETag for an in-memory object.
type memObject struct {
	Data        []byte
	ETag        string
	ContentType string
	Metadata    map[string]string
}

// memPart holds the raw data and precomputed ETag for a single multipart
// upload part.
type memPart struct {
	Data []byte
	ETag string
}

// memUpload is an open multipart upload.
type memUpload struct {
	Bucket      string
	Key         string
	ContentType string
	Metadata    map[string]string
	Parts       map[int]memPart
}

// MemoryBackend implements the Backend interface using in-memory maps. It
// is meant for local development and tests. Presigned URLs point at
// BaseURL and are HMAC-signed; ServeHTTP accepts uploads made with them.
type MemoryBackend struct {
	// BaseURL is the public URL ServeHTTP is reachable at.
	BaseURL string

	mu      sync.RWMutex
	buckets map[string]struct{}
	objects map[string]memObject // key: "bucket/key"
	uploads map[string]*memUpload
	secret  []byte
	now     func() time.Time
}

// NewMemoryBackend creates an empty MemoryBackend whose presigned URLs are
// rooted at baseURL.
func NewMemoryBackend(baseURL string) *MemoryBackend {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("memory backend: reading random secret: %v", err))
	}
	return &MemoryBackend{
		BaseURL: strings.TrimRight(baseURL, "/"),
		buckets: make(map[string]struct{}),
		objects: make(map[string]memObject),
		uploads: make(map[string]*memUpload),
		secret:  secret,
		now:     time.Now,
	}
}

// objectKey builds the map key for an object from its bucket and key.
func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

// computeETag returns the quoted MD5 hex digest of data.
func computeETag(data []byte) string {
	h := md5.Sum(data)
	return fmt.Sprintf(`"%x"`, h[:])
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// BucketExists reports whether bucket has been created.
func (b *MemoryBackend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.buckets[bucket]
	return ok, nil
}

// CreateBucket creates bucket or returns ErrBucketAlreadyExists.
func (b *MemoryBackend) CreateBucket(ctx context.Context, bucket string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.buckets[bucket]; ok {
		return ErrBucketAlreadyExists
	}
	b.buckets[bucket] = struct{}{}
	return nil
}

// InitiateMultipart opens an upload and returns a fresh upload ID.
func (b *MemoryBackend) InitiateMultipart(ctx context.Context, bucket, key, contentType string, metadata map[string]string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.buckets[bucket]; !ok {
		return "", errNoSuchBucket
	}
	uploadID := uid.New()
	b.uploads[uploadID] = &memUpload{
		Bucket:      bucket,
		Key:         key,
		ContentType: contentType,
		Metadata:    copyMetadata(metadata),
		Parts:       make(map[int]memPart),
	}
	return uploadID, nil
}

// Presign returns a URL under BaseURL carrying the scope, the expiry and an
// HMAC signature over both.
func (b *MemoryBackend) Presign(ctx context.Context, req PresignRequest) (string, error) {
	if req.Method != http.MethodPut {
		return "", fmt.Errorf("presigning %s: unsupported method", req.Method)
	}
	expires := b.now().Add(req.Expiry).Unix()

	q := url.Values{}
	if req.UploadID != "" {
		q.Set("uploadId", req.UploadID)
		q.Set("partNumber", strconv.Itoa(req.PartNumber))
	}
	q.Set("X-Expires", strconv.FormatInt(expires, 10))
	q.Set("X-Signature", b.sign(req.Method, req.Bucket, req.Key, req.UploadID, req.PartNumber, expires))

	return fmt.Sprintf("%s/%s/%s?%s", b.BaseURL, url.PathEscape(req.Bucket), url.PathEscape(req.Key), q.Encode()), nil
}

func (b *MemoryBackend) sign(method, bucket, key, uploadID string, partNumber int, expires int64) string {
	mac := hmac.New(sha256.New, b.secret)
	fmt.Fprintf(mac, "%s\n%s\n%s\n%s\n%d\n%d", method, bucket, key, uploadID, partNumber, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// UploadPart stores the bytes of one part and returns its ETag, as the
// store would for a client PUT to a presigned part URL.
func (b *MemoryBackend) UploadPart(bucket, key, uploadID string, partNumber int, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	up, ok := b.uploads[uploadID]
	if !ok || up.Bucket != bucket || up.Key != key {
		return "", errNoSuchUpload
	}
	etag := computeETag(data)
	up.Parts[partNumber] = memPart{Data: bytes.Clone(data), ETag: etag}
	return etag, nil
}

// CompleteMultipart assembles the listed parts in part-number order. Every
// listed part must have been uploaded with a matching ETag.
func (b *MemoryBackend) CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []Part) (CompleteResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	up, ok := b.uploads[uploadID]
	if !ok || up.Bucket != bucket || up.Key != key {
		return CompleteResult{}, errNoSuchUpload
	}
	if len(parts) == 0 {
		return CompleteResult{}, errNoParts
	}

	sorted := make([]Part, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	var buf bytes.Buffer
	for _, p := range sorted {
		stored, found := up.Parts[p.PartNumber]
		if !found || strings.Trim(stored.ETag, `"`) != strings.Trim(p.ETag, `"`) {
			return CompleteResult{}, fmt.Errorf("%w: part %d", errInvalidPart, p.PartNumber)
		}
		buf.Write(stored.Data)
	}

	data := buf.Bytes()
	b.objects[objectKey(bucket, key)] = memObject{
		Data:        data,
		ETag:        computeETag(data),
		ContentType: up.ContentType,
		Metadata:    up.Metadata,
	}
	delete(b.uploads, uploadID)

	return CompleteResult{
		StatusOK: true,
		Location: fmt.Sprintf("%s/%s/%s", b.BaseURL, bucket, key),
	}, nil
}

// AbortMultipart discards the upload and its parts.
func (b *MemoryBackend) AbortMultipart(ctx context.Context, bucket, key, uploadID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	up, ok := b.uploads[uploadID]
	if !ok || up.Bucket != bucket || up.Key != key {
		return errNoSuchUpload
	}
	delete(b.uploads, uploadID)
	return nil
}

// PutObject reads all data from body and stores it.
func (b *MemoryBackend) PutObject(ctx context.Context, bucket, key, contentType string, metadata map[string]string, body io.Reader, size int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("reading object data: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.buckets[bucket]; !ok {
		return errNoSuchBucket
	}
	b.objects[objectKey(bucket, key)] = memObject{
		Data:        data,
		ETag:        computeETag(data),
		ContentType: contentType,
		Metadata:    copyMetadata(metadata),
	}
	return nil
}

// HealthCheck reports whether bucket exists.
func (b *MemoryBackend) HealthCheck(ctx context.Context, bucket string) error {
	ok, _ := b.BucketExists(ctx, bucket)
	if !ok {
		return errNoSuchBucket
	}
	return nil
}

// Object returns a copy of a stored object's bytes and metadata.
func (b *MemoryBackend) Object(bucket, key string) ([]byte, map[string]string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[objectKey(bucket, key)]
	if !ok {
		return nil, nil, false
	}
	return bytes.Clone(obj.Data), copyMetadata(obj.Metadata), true
}

// OpenUploads returns the number of multipart uploads neither completed nor aborted.
func (b *MemoryBackend) OpenUploads() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.uploads)
}

// parsePath extracts bucket and object key from a path relative to the
// mount point. Returns ("bucket", "key/path") for "/{bucket}/{key...}".
func parsePath(path string) (bucket, key string) {
	path = strings.TrimPrefix(path, "/")
	idx := strings.IndexByte(path, '/')
	if idx < 0 {
		return path, ""
	}
	return path[:idx], path[idx+1:]
}

// ServeHTTP accepts PUT requests made with URLs from Presign. It must be
// mounted with the MemoryPathPrefix stripped from the request path.
func (b *MemoryBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	bucket, key := parsePath(r.URL.Path)
	if bucket == "" || key == "" {
		http.Error(w, "missing bucket or key", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	expires, err := strconv.ParseInt(q.Get("X-Expires"), 10, 64)
	if err != nil {
		http.Error(w, "missing expiry", http.StatusForbidden)
		return
	}
	uploadID := q.Get("uploadId")
	partNumber := 0
	if uploadID != "" {
		partNumber, err = strconv.Atoi(q.Get("partNumber"))
		if err != nil {
			http.Error(w, "invalid part number", http.StatusBadRequest)
			return
		}
	}
	want := b.sign(r.Method, bucket, key, uploadID, partNumber, expires)
	if !hmac.Equal([]byte(want), []byte(q.Get("X-Signature"))) {
		http.Error(w, "signature does not match", http.StatusForbidden)
		return
	}
	if b.now().Unix() > expires {
		http.Error(w, "request has expired", http.StatusForbidden)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	var etag string
	if uploadID != "" {
		etag, err = b.UploadPart(bucket, key, uploadID, partNumber, data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
	} else {
		if err := b.PutObject(r.Context(), bucket, key, r.Header.Get("Content-Type"), nil, bytes.NewReader(data), int64(len(data))); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		etag = computeETag(data)
	}
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
}

// Ensure MemoryBackend implements Backend at compile time.
var _ Backend = (*MemoryBackend)(nil)
