package upload

import (
	"context"
	"io"
	"log/slog"
	"slices"

	uperr "github.com/videoup/videoup/internal/errors"
	"github.com/videoup/videoup/internal/metrics"
)

// UploadDirect stores body under a fresh key in one PUT. Only the
// configured content types are accepted, and empty or oversized bodies are
// rejected before the store is called.
func (c *Coordinator) UploadDirect(ctx context.Context, fileName, contentType string, body io.Reader, size int64) (string, error) {
	if !slices.Contains(c.direct.allowed, contentType) {
		metrics.DirectUploadsTotal.WithLabelValues("rejected").Inc()
		return "", uperr.InvalidArgument("content type %q is not accepted", contentType)
	}
	if size <= 0 {
		metrics.DirectUploadsTotal.WithLabelValues("rejected").Inc()
		return "", uperr.InvalidArgument("file is empty")
	}
	if c.direct.maxSize > 0 && size > c.direct.maxSize {
		metrics.DirectUploadsTotal.WithLabelValues("rejected").Inc()
		return "", uperr.InvalidArgument("file exceeds %d bytes", c.direct.maxSize)
	}

	key := c.newKey()
	if err := c.backend.PutObject(ctx, c.bucket, key, contentType, objectMetadata(fileName), body, size); err != nil {
		metrics.DirectUploadsTotal.WithLabelValues("error").Inc()
		return "", uperr.StorageUnavailable("PutObject", err)
	}

	metrics.DirectUploadsTotal.WithLabelValues("success").Inc()
	slog.Info("Direct upload stored", "key", key, "file_name", fileName, "size", size)
	return key, nil
}
