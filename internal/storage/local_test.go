package storage

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "downloads")
	local, err := NewLocal(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, dir, local.Dir())

	_, err = NewLocal(dir)
	assert.NoError(t, err, "existing dir must be accepted")
}

func TestOpenAndRemove(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	data := []byte("ID3 fake mp3 payload")
	require.NoError(t, os.WriteFile(filepath.Join(local.Dir(), "song.mp3"), data, 0o644))

	file, info, err := local.Open("song.mp3")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size())
	got, err := io.ReadAll(file)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	assert.Equal(t, data, got)

	require.NoError(t, local.Remove("song.mp3"))
	_, _, err = local.Open("song.mp3")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestPathRejectsTraversal(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "../etc/passwd", "a/b.mp3"} {
		_, err := local.Path(name)
		assert.ErrorIsf(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestOpenDirectoryIsNotFound(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(local.Dir(), "sub.mp3"), 0o755))

	_, _, err = local.Open("sub.mp3")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestSweepRemovesOldFiles(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	oldPath := filepath.Join(local.Dir(), "old.mp3")
	newPath := filepath.Join(local.Dir(), "new.mp3")
	require.NoError(t, os.WriteFile(oldPath, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(newPath, []byte("new"), 0o644))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	removed, err := local.Sweep(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"old.mp3"}, removed)

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(newPath)
	assert.NoError(t, err)
}
