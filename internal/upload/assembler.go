package upload

import (
	"context"
	"log/slog"
	"time"

	uperr "github.com/videoup/videoup/internal/errors"
	"github.com/videoup/videoup/internal/logging"
	"github.com/videoup/videoup/internal/metrics"
	"github.com/videoup/videoup/internal/storage"
)

// abortTimeout bounds the compensating abort, which outlives the caller's
// cancellation.
const abortTimeout = 10 * time.Second

// Assembler submits part manifests to the store and aborts uploads the
// store did not assemble.
type Assembler struct {
	backend storage.Backend
	bucket  string
	maxPart int
}

// Complete forwards manifest to the store and requires both an OK status
// and a non-empty object location in return. Any other outcome, including
// a failed call, is a CompletionFailed error issued after one compensating
// abort for the same (key, uploadID). A failed abort is attached to the
// returned error and never replaces it. The abort is sent even when ctx is
// already done, so a cancelled request does not leave parts behind.
//
// Malformed manifests are rejected with InvalidArgument before any store
// call. An empty manifest is forwarded.
func (a *Assembler) Complete(ctx context.Context, key, uploadID string, manifest Manifest) (Completion, error) {
	if err := requireSession(key, uploadID); err != nil {
		metrics.CompletionsTotal.WithLabelValues("rejected").Inc()
		return Completion{}, err
	}
	if err := manifest.Validate(a.maxPart); err != nil {
		metrics.CompletionsTotal.WithLabelValues("rejected").Inc()
		return Completion{}, err
	}

	c := Completion{Key: key, UploadID: uploadID, State: StateCompleting}

	res, err := a.backend.CompleteMultipart(ctx, a.bucket, key, uploadID, manifest.parts())
	var failure *uperr.UploadError
	switch {
	case err != nil:
		failure = uperr.CompletionFailed("object store did not complete the upload", uperr.StorageUnavailable("CompleteMultipart", err))
	case !res.StatusOK:
		failure = uperr.CompletionFailed("object store answered the completion with a non-OK status", nil)
	case res.Location == "":
		failure = uperr.CompletionFailed("object store returned no location for the assembled object", nil)
	}

	if failure == nil {
		c.Location = res.Location
		c.State = StateCompleted
		metrics.CompletionsTotal.WithLabelValues("completed").Inc()
		slog.Info("Multipart upload completed", logging.Upload(key, uploadID), "parts", len(manifest), "location", res.Location)
		return c, nil
	}

	slog.Warn("Multipart completion failed, aborting upload", logging.Upload(key, uploadID), "error", failure)
	if abortErr := a.abort(ctx, key, uploadID); abortErr != nil {
		failure = failure.WithAbortFailure(abortErr)
	}
	c.State = StateAborted
	metrics.CompletionsTotal.WithLabelValues("failed").Inc()
	return c, failure
}

func (a *Assembler) abort(ctx context.Context, key, uploadID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if err := a.backend.AbortMultipart(ctx, a.bucket, key, uploadID); err != nil {
		metrics.AbortsTotal.WithLabelValues("error").Inc()
		slog.Error("Compensating abort failed", logging.Upload(key, uploadID), "error", err)
		return err
	}
	metrics.AbortsTotal.WithLabelValues("success").Inc()
	return nil
}
