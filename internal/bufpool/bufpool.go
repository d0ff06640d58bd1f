// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package bufpool provides a typed pool of reusable byte slabs, used by
// internal/octreewriter to avoid re-allocating one DefaultSlabCapacity
// buffer per rotation while streaming octree.bin (spec.md §4.9).
package bufpool

import (
	"git.lukeshu.com/go/typedsync"
)

// SlicePool recycles slices of T, falling back to a fresh allocation when
// the pool is empty or the idle slice it hands back is too small.
type SlicePool[T any] struct {
	inner typedsync.Pool[[]T]
}

// Get returns a slice of length size, reusing a pooled one if its capacity
// already covers size.
func (p *SlicePool[T]) Get(size int) []T {
	if size == 0 {
		return nil
	}
	ret, ok := p.inner.Get()
	if ok && cap(ret) >= size {
		return ret[:size]
	}
	return make([]T, size)
}

// Put returns slice to the pool for reuse. Callers must not retain any
// reference to slice's backing array after calling Put.
func (p *SlicePool[T]) Put(slice []T) {
	if slice == nil {
		return
	}
	p.inner.Put(slice)
}
