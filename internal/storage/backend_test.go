package storage

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS_PutGetRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	backend := NewLocalFS(fs, "/data")
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, "checkpoints/job-1/_index", []byte("hello")))

	data, err := backend.Get(ctx, "checkpoints/job-1/_index")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestLocalFS_GetMissingKeyReturnsNotFound(t *testing.T) {
	fs := afero.NewMemMapFs()
	backend := NewLocalFS(fs, "/data")
	ctx := context.Background()

	_, err := backend.Get(ctx, "does/not/exist")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestLocalFS_PutOverwritesAtomically(t *testing.T) {
	fs := afero.NewMemMapFs()
	backend := NewLocalFS(fs, "/data")
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, "job_states/job-1", []byte("v1")))
	require.NoError(t, backend.Put(ctx, "job_states/job-1", []byte("v2")))

	data, err := backend.Get(ctx, "job_states/job-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	exists, err := afero.Exists(fs, "/data/job_states/job-1.tmp-")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalFS_DeleteIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	backend := NewLocalFS(fs, "/data")
	ctx := context.Background()

	require.NoError(t, backend.Delete(ctx, "dlq/job-1/entry-1"))

	require.NoError(t, backend.Put(ctx, "dlq/job-1/entry-1", []byte("x")))
	require.NoError(t, backend.Delete(ctx, "dlq/job-1/entry-1"))
	require.NoError(t, backend.Delete(ctx, "dlq/job-1/entry-1"))
}

func TestLocalFS_ListByPrefix(t *testing.T) {
	fs := afero.NewMemMapFs()
	backend := NewLocalFS(fs, "/data")
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, "events/job-1/00000000001_aaa", []byte("e1")))
	require.NoError(t, backend.Put(ctx, "events/job-1/00000000002_bbb", []byte("e2")))
	require.NoError(t, backend.Put(ctx, "events/job-2/00000000001_ccc", []byte("e3")))

	keys, err := backend.List(ctx, "events/job-1/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"events/job-1/00000000001_aaa",
		"events/job-1/00000000002_bbb",
	}, keys)
}
