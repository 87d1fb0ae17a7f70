package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/heirloom/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKey(t *testing.T) {
	valid := []string{"shares/abc", "escrow/0011", "events/e1/0001-x", "a"}
	for _, key := range valid {
		assert.NoError(t, ValidateKey(key), key)
	}

	invalid := []string{"", "/abs", "shares/", "shares/../x", "./x", "a//b", "with space", "shares/ü"}
	for _, key := range invalid {
		assert.ErrorIs(t, ValidateKey(key), interfaces.ErrInvalidKey, key)
	}

	assert.Equal(t, "events/e1/0001", JoinKey("events", "e1", "0001"))
}

func testBackendContract(t *testing.T, backend interfaces.StorageBackend) {
	t.Helper()
	ctx := context.Background()

	_, err := backend.Get(ctx, "shares/missing")
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	require.NoError(t, backend.Put(ctx, "shares/a", []byte("first")))
	require.NoError(t, backend.Put(ctx, "shares/b", []byte("second")))
	require.NoError(t, backend.Put(ctx, "escrow/a", []byte("third")))

	data, err := backend.Get(ctx, "shares/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	// last write wins
	require.NoError(t, backend.Put(ctx, "shares/a", []byte("replaced")))
	data, err = backend.Get(ctx, "shares/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), data)

	keys, err := backend.List(ctx, "shares/")
	require.NoError(t, err)
	assert.Equal(t, []string{"shares/a", "shares/b"}, keys)

	keys, err = backend.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"escrow/a", "shares/a", "shares/b"}, keys)

	require.NoError(t, backend.Delete(ctx, "shares/a"))
	require.NoError(t, backend.Delete(ctx, "shares/a"))
	_, err = backend.Get(ctx, "shares/a")
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	keys, err = backend.List(ctx, "nothing/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	assert.ErrorIs(t, backend.Put(ctx, "../escape", []byte("x")), interfaces.ErrInvalidKey)
	assert.True(t, backend.Available(ctx))
}

func TestMemoryBackend(t *testing.T) {
	backend := NewMemoryBackend("test")
	testBackendContract(t, backend)
	assert.Equal(t, "memory-test", backend.Name())
	assert.Equal(t, "memory://test", backend.LocationURI())
}

func TestMemoryBackend_CopiesData(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend("")

	data := []byte("original")
	require.NoError(t, backend.Put(ctx, "k", data))
	data[0] = 'X'

	stored, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), stored)

	stored[0] = 'Y'
	again, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir, discardLogger())
	require.NoError(t, err)

	testBackendContract(t, backend)
	assert.Equal(t, "file://"+dir, backend.LocationURI())

	_, err = os.Stat(filepath.Join(dir, "shares", "b"))
	assert.NoError(t, err)
}

func TestFileBackend_SkipsTemporaryFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, err := NewFileBackend(dir, discardLogger())
	require.NoError(t, err)

	require.NoError(t, backend.Put(ctx, "shares/a", []byte("x")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shares", ".tmp-123"), []byte("partial"), 0600))

	keys, err := backend.List(ctx, "shares/")
	require.NoError(t, err)
	assert.Equal(t, []string{"shares/a"}, keys)
}

func TestFileBackend_Unavailable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	backend, err := NewFileBackend(dir, discardLogger())
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	assert.False(t, backend.Available(context.Background()))
}
