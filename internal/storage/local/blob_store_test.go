package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/souqdata/areacrawl/internal/storage"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = New(Config{BaseDir: file})
	require.Error(t, err)
}

func TestNewCreatesBaseDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "blobs")
	_, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestPutGetDelete(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := New(Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := s.Put(ctx, "checkpoints/progress.json", "application/json", []byte(`{"units":{}}`))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))

	got, err := s.Get(ctx, "checkpoints/progress.json")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"units":{}}`), got)

	require.NoError(t, s.Delete(ctx, "checkpoints/progress.json"))
	_, err = s.Get(ctx, "checkpoints/progress.json")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Deleting again is a no-op.
	require.NoError(t, s.Delete(ctx, "checkpoints/progress.json"))
}

func TestPutOverwrites(t *testing.T) {
	t.Parallel()

	s, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Put(ctx, "k", "", []byte("one"))
	require.NoError(t, err)
	_, err = s.Put(ctx, "k", "", []byte("two"))
	require.NoError(t, err)

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("two"), got)
}

func TestPutLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "payloads/a.json", "", []byte("data"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "payloads"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a.json", entries[0].Name())
}

func TestRejectsPathTraversal(t *testing.T) {
	t.Parallel()

	s, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"../escape", "a/../../escape", ""} {
		_, err := s.Put(ctx, key, "", []byte("x"))
		require.Error(t, err, "key %q must be rejected", key)
		_, err = s.Get(ctx, key)
		require.Error(t, err, "key %q must be rejected", key)
	}
}
