// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package octreewriter owns octree.bin: nodes hand it their payload via
// WriteAndUnload, which assigns the node's byte offset, buffers the bytes
// into a slab, and returns immediately; a dedicated goroutine flushes full
// slabs to disk in FIFO order (spec.md §4.9). Flushed slabs are returned to
// a bufpool.SlicePool so a multi-gigabyte octree.bin doesn't churn through
// one fresh DefaultSlabCapacity allocation per rotation.
package octreewriter

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/datawire/dlib/dgroup"

	"git.lukeshu.com/lastree/internal/bufpool"
)

// DefaultSlabCapacity is the active slab's starting size (spec.md §4.9).
const DefaultSlabCapacity = 16 << 20

// Writer serializes node payloads into octree.bin, overlapping producer
// goroutines (which only need to copy into the active slab) with a single
// flush goroutine that owns the file descriptor.
type Writer struct {
	totalBytes int64 // atomically assigned via WriteAndUnload

	mu          sync.Mutex
	active      []byte
	activeCap   int
	slabQueue   [][]byte
	queueBytes  int64
	cond        *sync.Cond
	closed      bool
	flushExited chan struct{}

	path string
	f    *os.File

	slabPool bufpool.SlicePool[byte]
}

// New opens (creating/truncating) path and starts ready to accept writes;
// callers must call Run to start the flush goroutine before closing.
func New(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("octreewriter: %w", err)
	}
	w := &Writer{
		path:        path,
		f:           f,
		active:      make([]byte, 0, DefaultSlabCapacity),
		activeCap:   DefaultSlabCapacity,
		flushExited: make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	return w, nil
}

// WriteAndUnload assigns byteOffset = atomic_fetch_add(totalBytes,
// len(payload)) and copies payload into the active slab, rotating to a
// fresh slab (grown to fit if payload alone exceeds capacity) when it
// would overflow.
func (w *Writer) WriteAndUnload(payload []byte) (byteOffset int64) {
	byteOffset = atomic.AddInt64(&w.totalBytes, int64(len(payload))) - int64(len(payload))

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.active)+len(payload) > w.activeCap {
		w.slabQueue = append(w.slabQueue, w.active)
		w.queueBytes += int64(len(w.active))
		newCap := w.activeCap
		if len(payload) > newCap {
			newCap = len(payload)
		}
		w.active = w.slabPool.Get(newCap)[:0]
	}
	w.active = append(w.active, payload...)
	w.cond.Broadcast()
	return byteOffset
}

// BacklogMB reports the flush deque's queued (not-yet-written) bytes, in
// MiB, for callers throttling against it (spec.md §4.9).
func (w *Writer) BacklogMB() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return float64(w.queueBytes) / (1 << 20)
}

// Run starts the dedicated flush goroutine, popping slabs FIFO and writing
// them sequentially, until CloseAndWait is called.
func (w *Writer) Run(ctx context.Context) error {
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	grp.Go("octree-flush", func(ctx context.Context) error {
		defer close(w.flushExited)
		for {
			w.mu.Lock()
			for len(w.slabQueue) == 0 && !w.closed {
				w.cond.Wait()
			}
			if len(w.slabQueue) == 0 && w.closed {
				w.mu.Unlock()
				return nil
			}
			slab := w.slabQueue[0]
			w.slabQueue = w.slabQueue[1:]
			w.queueBytes -= int64(len(slab))
			w.mu.Unlock()

			if _, err := w.f.Write(slab); err != nil {
				return fmt.Errorf("octreewriter: writing %s: %w", w.path, err)
			}
			w.slabPool.Put(slab)
		}
	})
	return grp.Wait()
}

// CloseAndWait enqueues the active slab, signals the flush goroutine to
// drain and exit, waits for it, then closes the file (spec.md §4.9's
// close_and_wait).
func (w *Writer) CloseAndWait() error {
	w.mu.Lock()
	if len(w.active) > 0 {
		w.slabQueue = append(w.slabQueue, w.active)
		w.queueBytes += int64(len(w.active))
		w.active = nil
	}
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()

	<-w.flushExited
	return w.f.Close()
}

// TotalBytes returns the current high-water mark of bytes assigned (not
// necessarily yet flushed).
func (w *Writer) TotalBytes() int64 {
	return atomic.LoadInt64(&w.totalBytes)
}
