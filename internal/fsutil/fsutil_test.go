// Package fsutil_test tests the shared file and formatting helpers.
package fsutil_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/audiobook-engine/internal/fsutil"
)

func TestEnsureDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a", "b", "c")

	require.NoError(t, fsutil.EnsureDir(path))
	assert.DirExists(t, path)

	// Idempotent on an existing directory.
	require.NoError(t, fsutil.EnsureDir(path))
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "45.2s", fsutil.FormatDuration(45.2))
	assert.Equal(t, "5m 30.5s", fsutil.FormatDuration(330.5))
	assert.Equal(t, "1h 15m", fsutil.FormatDuration(4500))
}

func TestFormatFileSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "512 B", fsutil.FormatFileSize(512))
	assert.Equal(t, "1.5 KB", fsutil.FormatFileSize(1536))
	assert.Equal(t, "2.0 MB", fsutil.FormatFileSize(2*1024*1024))
	assert.Equal(t, "1.2 GB", fsutil.FormatFileSize(1288490189))
}

func TestIsValidAudioFile(t *testing.T) {
	t.Parallel()

	assert.True(t, fsutil.IsValidAudioFile("seed.wav"))
	assert.True(t, fsutil.IsValidAudioFile("seed.MP3"))
	assert.True(t, fsutil.IsValidAudioFile("seed.flac"))
	assert.False(t, fsutil.IsValidAudioFile("seed.txt"))
	assert.False(t, fsutil.IsValidAudioFile("seed"))
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a_b_c", fsutil.SanitizeFilename("a/b:c"))
	assert.Equal(t, "what_", fsutil.SanitizeFilename("what?"))
	assert.Equal(t, "plain-name.wav", fsutil.SanitizeFilename("plain-name.wav"))
}
