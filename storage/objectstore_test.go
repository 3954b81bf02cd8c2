package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectStorePutThenGet(t *testing.T) {
	mock := NewMockS3Client()
	store := NewObjectStoreWithClient(mock, "twine")

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "urn:g1", []byte("<urn:s> <urn:p> <urn:o> .\n"), "application/n-triples"))

	data, ok, err := store.Get(ctx, "urn:g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<urn:s> <urn:p> <urn:o> .\n", string(data))
}

func TestObjectStoreGetMissingKeyIsNotAnError(t *testing.T) {
	mock := NewMockS3Client()
	store := NewObjectStoreWithClient(mock, "twine")

	_, ok, err := store.Get(context.Background(), "urn:missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureBucketCreatesMissingBucket(t *testing.T) {
	mock := NewMockS3Client()
	store := NewObjectStoreWithClient(mock, "twine")

	require.NoError(t, store.EnsureBucket(context.Background()))
	assert.True(t, mock.CreateBucketCalled)
	assert.True(t, mock.Buckets["twine"])
}

func TestEnsureBucketIsNoOpWhenBucketAlreadyExists(t *testing.T) {
	mock := NewMockS3Client()
	mock.Buckets["twine"] = true
	store := NewObjectStoreWithClient(mock, "twine")

	require.NoError(t, store.EnsureBucket(context.Background()))
	assert.False(t, mock.CreateBucketCalled)
}
