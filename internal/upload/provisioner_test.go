package upload

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uperr "github.com/videoup/videoup/internal/errors"
	"github.com/videoup/videoup/internal/storage"
)

func TestEnsureBucketReadyCreates(t *testing.T) {
	fake := newFakeBackend()
	p := NewProvisioner(fake, "videos")
	assert.Equal(t, "videos", p.Bucket())
	assert.False(t, p.Ready())

	require.NoError(t, p.EnsureBucketReady(context.Background()))
	assert.True(t, p.Ready())
	assert.Equal(t, 1, fake.created)

	// Later calls do not reach the store.
	require.NoError(t, p.EnsureBucketReady(context.Background()))
	assert.Equal(t, 1, fake.count("BucketExists"))
	assert.Equal(t, 1, fake.count("CreateBucket"))
}

func TestEnsureBucketReadyExisting(t *testing.T) {
	fake := newFakeBackend()
	fake.bucketExists = true
	p := NewProvisioner(fake, "videos")

	require.NoError(t, p.EnsureBucketReady(context.Background()))
	assert.Zero(t, fake.count("CreateBucket"))
}

func TestEnsureBucketReadyConcurrent(t *testing.T) {
	fake := newFakeBackend()
	// Hold both existence checks until both have been asked, so both see
	// the bucket as absent and both try to create it.
	var gate sync.WaitGroup
	gate.Add(2)
	fake.existsGate = &gate

	p1 := NewProvisioner(fake, "videos")
	p2 := NewProvisioner(fake, "videos")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, p := range []*Provisioner{p1, p2} {
		wg.Add(1)
		go func(i int, p *Provisioner) {
			defer wg.Done()
			errs[i] = p.EnsureBucketReady(context.Background())
		}(i, p)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 2, fake.count("BucketExists"))
	assert.Equal(t, 2, fake.count("CreateBucket"))
	assert.Equal(t, 1, fake.created)
	assert.True(t, p1.Ready())
	assert.True(t, p2.Ready())
}

func TestEnsureBucketReadyFailures(t *testing.T) {
	t.Run("existence check", func(t *testing.T) {
		fake := newFakeBackend()
		fake.bucketErr = errors.New("dial tcp: connection refused")
		p := NewProvisioner(fake, "videos")

		err := p.EnsureBucketReady(context.Background())
		assert.ErrorIs(t, err, uperr.ErrStorageUnavailable)
		assert.False(t, p.Ready())
	})

	t.Run("create", func(t *testing.T) {
		fake := newFakeBackend()
		fake.createErr = errors.New("AccessDenied")
		p := NewProvisioner(fake, "videos")

		err := p.EnsureBucketReady(context.Background())
		assert.ErrorIs(t, err, uperr.ErrStorageUnavailable)
		assert.False(t, p.Ready())

		// A failed attempt is retried on the next call.
		fake.createErr = nil
		require.NoError(t, p.EnsureBucketReady(context.Background()))
		assert.True(t, p.Ready())
	})

	t.Run("already exists passes through guard", func(t *testing.T) {
		fake := newFakeBackend()
		fake.createErr = storage.ErrBucketAlreadyExists
		p := NewProvisioner(storage.Guard(fake), "videos")

		require.NoError(t, p.EnsureBucketReady(context.Background()))
	})
}
