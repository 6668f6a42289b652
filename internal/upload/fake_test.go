package upload

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/videoup/videoup/internal/storage"
)

// call records one backend invocation.
type call struct {
	Op         string
	Key        string
	UploadID   string
	PartNumber int
}

// fakeBackend is a scripted storage.Backend that records every call.
type fakeBackend struct {
	mu    sync.Mutex
	calls []call

	bucketExists bool
	bucketErr    error
	createErr    error
	// created counts CreateBucket calls that actually created the bucket.
	created int
	// existsGate, when set, is waited on by BucketExists before it answers.
	existsGate *sync.WaitGroup

	uploadID     string
	initiateErr  error
	initiateMeta map[string]string
	initiateCT   string
	presignErr   error

	complete    storage.CompleteResult
	completeErr error
	lastParts   []storage.Part
	abortErr    error

	// onComplete, when set, runs inside CompleteMultipart before it answers.
	onComplete func()
	// honorCancel makes CompleteMultipart and AbortMultipart fail on a done
	// context the way a real client does.
	honorCancel bool

	putErr  error
	putBody []byte
	putMeta map[string]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		uploadID: "u1",
		complete: storage.CompleteResult{StatusOK: true, Location: "store://bucket/k1"},
	}
}

func (f *fakeBackend) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

// count returns the number of recorded calls to op.
func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *fakeBackend) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) callsTo(op string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeBackend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	f.record(call{Op: "BucketExists"})
	f.mu.Lock()
	exists, err := f.bucketExists, f.bucketErr
	f.mu.Unlock()
	// The answer is taken before the gate so that every caller held by it
	// observes the same state.
	if f.existsGate != nil {
		f.existsGate.Done()
		f.existsGate.Wait()
	}
	return exists, err
}

func (f *fakeBackend) CreateBucket(ctx context.Context, bucket string) error {
	f.record(call{Op: "CreateBucket"})
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.bucketExists {
		return storage.ErrBucketAlreadyExists
	}
	f.bucketExists = true
	f.created++
	return nil
}

func (f *fakeBackend) InitiateMultipart(ctx context.Context, bucket, key, contentType string, metadata map[string]string) (string, error) {
	f.record(call{Op: "InitiateMultipart", Key: key})
	f.mu.Lock()
	f.initiateMeta = metadata
	f.initiateCT = contentType
	f.mu.Unlock()
	if f.initiateErr != nil {
		return "", f.initiateErr
	}
	return f.uploadID, nil
}

func (f *fakeBackend) Presign(ctx context.Context, req storage.PresignRequest) (string, error) {
	f.record(call{Op: "Presign", Key: req.Key, UploadID: req.UploadID, PartNumber: req.PartNumber})
	if f.presignErr != nil {
		return "", f.presignErr
	}
	if req.UploadID == "" {
		return fmt.Sprintf("store://%s/%s?expires=%d", req.Bucket, req.Key, int(req.Expiry.Seconds())), nil
	}
	return fmt.Sprintf("store://%s/%s?partNumber=%d&uploadId=%s&expires=%d",
		req.Bucket, req.Key, req.PartNumber, req.UploadID, int(req.Expiry.Seconds())), nil
}

func (f *fakeBackend) CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []storage.Part) (storage.CompleteResult, error) {
	f.record(call{Op: "CompleteMultipart", Key: key, UploadID: uploadID})
	f.mu.Lock()
	f.lastParts = parts
	f.mu.Unlock()
	if f.onComplete != nil {
		f.onComplete()
	}
	if err := ctx.Err(); err != nil && f.honorCancel {
		return storage.CompleteResult{}, err
	}
	if f.completeErr != nil {
		return storage.CompleteResult{}, f.completeErr
	}
	return f.complete, nil
}

func (f *fakeBackend) AbortMultipart(ctx context.Context, bucket, key, uploadID string) error {
	if f.honorCancel && ctx.Err() != nil {
		return ctx.Err()
	}
	f.record(call{Op: "AbortMultipart", Key: key, UploadID: uploadID})
	return f.abortErr
}

func (f *fakeBackend) PutObject(ctx context.Context, bucket, key, contentType string, metadata map[string]string, body io.Reader, size int64) error {
	f.record(call{Op: "PutObject", Key: key})
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.putBody = data
	f.putMeta = metadata
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) HealthCheck(ctx context.Context, bucket string) error {
	f.record(call{Op: "HealthCheck"})
	return nil
}

var _ storage.Backend = (*fakeBackend)(nil)
