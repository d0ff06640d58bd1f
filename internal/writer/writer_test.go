// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package writer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/lastree/internal/writer"
)

func TestEnqueueAppendsInOrder(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	w := writer.New(dir)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 2) }()

	w.Enqueue("chunk.bin", []byte("AAAA"))
	w.Enqueue("chunk.bin", []byte("BBBB"))

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(filepath.Join(dir, "chunk.bin"))
		return err == nil && len(b) == 8
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	b, err := os.ReadFile(filepath.Join(dir, "chunk.bin"))
	require.NoError(t, err)
	assert.Equal(t, "AAAABBBB", string(b))
}

func TestWaitForMemoryThresholdReturnsWhenUnderThreshold(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	w := writer.New(dir)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 1) }()

	w.Enqueue("big.bin", make([]byte, 1024))
	assert.Equal(t, int64(1024), w.PendingBytes())

	// pendingBytes (1024) is already under a 1 MiB threshold, so this must
	// return immediately without blocking on the write to complete.
	unblocked := make(chan struct{})
	go func() {
		w.WaitForMemoryThreshold(1)
		close(unblocked)
	}()
	select {
	case <-unblocked:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForMemoryThreshold blocked despite pending bytes already under threshold")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestRunDrainsPendingBuffersOnCancel(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	w := writer.New(dir)

	ctx, cancel := context.WithCancel(context.Background())
	w.Enqueue("a.bin", []byte("hello"))
	w.Enqueue("b.bin", []byte("world"))
	cancel()

	require.NoError(t, w.Run(ctx, 2))

	a, err := os.ReadFile(filepath.Join(dir, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(a))

	b, err := os.ReadFile(filepath.Join(dir, "b.bin"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(b))
}
