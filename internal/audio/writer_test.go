package audio_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/audiobook-engine/internal/audio"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return log
}

func TestAsyncWriter_WritesAndFlushes(t *testing.T) {
	t.Parallel()

	writer := audio.NewAsyncWriter(newTestLogger(t))
	defer writer.Shutdown()

	dir := t.TempDir()
	paths := make([]string, 4)

	for i := range paths {
		paths[i] = filepath.Join(dir, audioFileName(i))

		err := writer.Submit(paths[i], sineClip(16000, 1600), nil)
		require.NoError(t, err)
	}

	writer.Flush()

	for _, path := range paths {
		loaded, err := audio.ReadWAV(path)
		require.NoError(t, err)
		assert.Len(t, loaded.Samples, 1600)
	}
}

func TestAsyncWriter_DoneCallback(t *testing.T) {
	t.Parallel()

	writer := audio.NewAsyncWriter(newTestLogger(t))
	defer writer.Shutdown()

	var (
		mu       sync.Mutex
		captured error
		called   bool
	)

	path := filepath.Join(t.TempDir(), "cb.wav")

	err := writer.Submit(path, sineClip(16000, 100), func(writeErr error) {
		mu.Lock()
		defer mu.Unlock()

		captured = writeErr
		called = true
	})
	require.NoError(t, err)

	writer.Flush()

	mu.Lock()
	defer mu.Unlock()

	assert.True(t, called)
	require.NoError(t, captured)
}

func TestAsyncWriter_SubmitAfterShutdown(t *testing.T) {
	t.Parallel()

	writer := audio.NewAsyncWriter(newTestLogger(t))
	writer.Shutdown()

	err := writer.Submit(filepath.Join(t.TempDir(), "late.wav"), sineClip(16000, 100), nil)
	require.ErrorIs(t, err, audio.ErrWriterClosed)
}

func TestAsyncWriter_ShutdownIdempotent(t *testing.T) {
	t.Parallel()

	writer := audio.NewAsyncWriter(newTestLogger(t))
	writer.Shutdown()
	writer.Shutdown()
}

func audioFileName(i int) string {
	return "clip_" + string(rune('a'+i)) + ".wav"
}
