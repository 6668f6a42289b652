package upload

import (
	"context"
	"net/http"
	"time"

	uperr "github.com/videoup/videoup/internal/errors"
	"github.com/videoup/videoup/internal/storage"
)

// Issuer mints presigned PUT URLs. Each URL is scoped to one key and, for
// parts, one (uploadID, partNumber). Expiry is enforced by the store.
type Issuer struct {
	backend          storage.Backend
	bucket           string
	partExpiry       time.Duration
	singleShotExpiry time.Duration
}

// PartURL presigns the upload of one part of a multipart session.
func (i *Issuer) PartURL(ctx context.Context, key, uploadID string, partNumber int) (string, error) {
	u, err := i.backend.Presign(ctx, storage.PresignRequest{
		Bucket:     i.bucket,
		Key:        key,
		Method:     http.MethodPut,
		Expiry:     i.partExpiry,
		UploadID:   uploadID,
		PartNumber: partNumber,
	})
	if err != nil {
		return "", uperr.StorageUnavailable("Presign", err)
	}
	return u, nil
}

// SingleShotURL presigns a whole-object upload to key.
func (i *Issuer) SingleShotURL(ctx context.Context, key string) (string, error) {
	u, err := i.backend.Presign(ctx, storage.PresignRequest{
		Bucket: i.bucket,
		Key:    key,
		Method: http.MethodPut,
		Expiry: i.singleShotExpiry,
	})
	if err != nil {
		return "", uperr.StorageUnavailable("Presign", err)
	}
	return u, nil
}
