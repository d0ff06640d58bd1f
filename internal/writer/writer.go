// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package writer implements the concurrent append writer shared by the
// point distributor (spec.md §4.6): N worker goroutines drain per-path
// pending-buffer queues, one path in flight at a time, with a
// bytes-pending accumulator callers can throttle against.
package writer

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/datawire/dlib/dgroup"
)

// Writer accepts (path, buffer) append requests and serializes writes to
// each path while allowing different paths to be written concurrently.
type Writer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pending  map[string][][]byte
	inFlight map[string]bool
	order    []string // FIFO of paths with pending data, for round-robin pop

	pendingBytes int64
	closed       bool

	dir string
}

// New creates a Writer that appends chunk files under dir.
func New(dir string) *Writer {
	w := &Writer{
		pending:  make(map[string][][]byte),
		inFlight: make(map[string]bool),
		dir:      dir,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Enqueue hands buf to be appended to path, returning once it has been
// queued (not necessarily flushed). Ordering across calls to the same path
// is preserved (spec.md §4.6: "appends to the same path are serialized in
// the order they were enqueued").
func (w *Writer) Enqueue(path string, buf []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[path]; !ok || len(w.pending[path]) == 0 {
		w.order = append(w.order, path)
	}
	w.pending[path] = append(w.pending[path], buf)
	w.pendingBytes += int64(len(buf))
	w.cond.Broadcast()
}

// PendingBytes returns the current bytes-pending accumulator.
func (w *Writer) PendingBytes() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pendingBytes
}

// WaitForMemoryThreshold blocks until pending bytes fall under mb*MiB,
// throttling producers that would otherwise outrun the writer (spec.md
// §4.6).
func (w *Writer) WaitForMemoryThreshold(mb int64) {
	limit := mb * 1024 * 1024
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.pendingBytes >= limit && !w.closed {
		w.cond.Wait()
	}
}

// popPath picks any path that has pending buffers and is not currently
// being written, marking it in-flight. Returns "", nil if none is ready.
func (w *Writer) popPath() (string, [][]byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, path := range w.order {
		if w.inFlight[path] {
			continue
		}
		bufs := w.pending[path]
		if len(bufs) == 0 {
			continue
		}
		w.inFlight[path] = true
		delete(w.pending, path)
		w.order = append(w.order[:i], w.order[i+1:]...)
		return path, bufs
	}
	return "", nil
}

func (w *Writer) releasePath(path string, flushed int64) {
	w.mu.Lock()
	w.inFlight[path] = false
	w.pendingBytes -= flushed
	w.mu.Unlock()
	w.cond.Broadcast()
}

// Run starts numWorkers goroutines draining the write queue until ctx is
// canceled and every pending buffer has been flushed. It returns once
// drained and stopped; callers typically run it under a dgroup so pass
// errors propagate with the rest of the pipeline.
func (w *Writer) Run(ctx context.Context, numWorkers int) error {
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	done := make(chan struct{})
	for i := 0; i < numWorkers; i++ {
		i := i
		grp.Go(fmt.Sprintf("writer-%d", i), func(ctx context.Context) error {
			return w.workerLoop(ctx, done)
		})
	}
	grp.Go("writer-closer", func(ctx context.Context) error {
		<-ctx.Done()
		close(done)
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		w.cond.Broadcast()
		return nil
	})
	return grp.Wait()
}

func (w *Writer) workerLoop(ctx context.Context, done <-chan struct{}) error {
	for {
		select {
		case <-done:
			// Drain anything still pending before exiting.
			for {
				path, bufs := w.popPath()
				if path == "" {
					return nil
				}
				if err := w.flush(path, bufs); err != nil {
					return err
				}
			}
		default:
		}

		path, bufs := w.popPath()
		if path == "" {
			w.mu.Lock()
			if len(w.order) == 0 && !w.closed {
				w.cond.Wait()
			}
			w.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return nil
			default:
			}
			continue
		}
		if err := w.flush(path, bufs); err != nil {
			return err
		}
	}
}

func (w *Writer) flush(path string, bufs [][]byte) error {
	full := path
	if w.dir != "" {
		full = w.dir + "/" + path
	}
	f, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		w.releasePath(path, 0)
		return fmt.Errorf("writer: opening %s: %w", full, err)
	}
	defer f.Close()

	var n int64
	for _, b := range bufs {
		if _, err := f.Write(b); err != nil {
			w.releasePath(path, n)
			return fmt.Errorf("writer: writing %s: %w", full, err)
		}
		n += int64(len(b))
	}
	w.releasePath(path, n)
	return nil
}
