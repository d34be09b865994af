package audio

import (
	"errors"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/audiobook-engine/internal/core"
)

// ErrWriterClosed is returned when a write is submitted after Shutdown.
var ErrWriterClosed = errors.New("async writer is closed")

const defaultWriteQueueSize = 16

// writeJob is one pending persist operation.
type writeJob struct {
	path string
	clip core.Clip
	done func(error)
}

// AsyncWriter persists clips on a background goroutine so synthesis of the
// next chunk can overlap disk encoding of the previous one. Writes for
// distinct paths never interleave badly because a single goroutine drains the
// queue in submission order.
type AsyncWriter struct {
	jobs    chan writeJob
	pending sync.WaitGroup
	log     *logger.Logger

	mu     sync.Mutex
	closed bool
}

// NewAsyncWriter starts the background writer.
func NewAsyncWriter(log *logger.Logger) *AsyncWriter {
	writer := &AsyncWriter{
		jobs:    make(chan writeJob, defaultWriteQueueSize),
		pending: sync.WaitGroup{},
		log:     log,
		mu:      sync.Mutex{},
		closed:  false,
	}

	go writer.run()

	return writer
}

func (w *AsyncWriter) run() {
	for job := range w.jobs {
		err := WriteWAV(job.path, job.clip)
		if err != nil {
			w.log.Error("Async write failed for %s: %v", job.path, err)
		}

		if job.done != nil {
			job.done(err)
		}

		w.pending.Done()
	}
}

// Submit queues one clip for persistence. The optional done callback runs on
// the writer goroutine after the write completes, with the write's error.
func (w *AsyncWriter) Submit(path string, clip core.Clip, done func(error)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	w.pending.Add(1)
	w.jobs <- writeJob{path: path, clip: clip, done: done}

	return nil
}

// Flush blocks until every submitted write has completed.
func (w *AsyncWriter) Flush() {
	w.pending.Wait()
}

// Shutdown flushes outstanding writes and stops the background goroutine.
// Further submissions return ErrWriterClosed.
func (w *AsyncWriter) Shutdown() {
	w.mu.Lock()

	if w.closed {
		w.mu.Unlock()

		return
	}

	w.closed = true
	w.mu.Unlock()

	w.pending.Wait()
	close(w.jobs)
}
