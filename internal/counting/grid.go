// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package counting implements the shared uniform counting grid and its
// bottom-up pyramid-sum reduction (spec.md §4.3), used both by the global
// node-lookup-table pass and by the chunk indexer's in-place refinement of
// oversized chunks.
package counting

import (
	"math"
	"sync/atomic"

	"git.lukeshu.com/lastree/internal/geom"
	"git.lukeshu.com/lastree/internal/morton"
)

// Grid is a G x G x G uniform spatial grid of atomically-incremented point
// counters, indexed by Morton code. G must be a power of two.
type Grid struct {
	cells []int64 // atomically accessed
	size  int64   // cells per axis
	bbox  geom.BoundingBox
}

// NewGrid allocates a zeroed counting grid of gridSize^3 cells over bbox.
// gridSize must be a power of two (spec.md §4.3's "2^levels").
func NewGrid(bbox geom.BoundingBox, gridSize int64) *Grid {
	return &Grid{
		cells: make([]int64, gridSize*gridSize*gridSize),
		size:  gridSize,
		bbox:  bbox,
	}
}

// CellIndex computes the Morton-coded grid cell index a world-space
// position falls into, clamped to the grid's valid range (mirrors
// calculate_grid_index's clamp-then-morton-encode sequence).
func (g *Grid) CellIndex(pos geom.Vector3) int64 {
	size := g.bbox.Size()
	gf := float64(g.size)

	ix := clampCoord(gf*(pos.X-g.bbox.Min.X)/size.X, g.size)
	iy := clampCoord(gf*(pos.Y-g.bbox.Min.Y)/size.Y, g.size)
	iz := clampCoord(gf*(pos.Z-g.bbox.Min.Z)/size.Z, g.size)

	return int64(morton.Encode(uint32(iz), uint32(iy), uint32(ix)))
}

func clampCoord(v float64, max int64) int64 {
	i := int64(v)
	if i < 0 {
		return 0
	}
	if i > max-1 {
		return max - 1
	}
	return i
}

// Increment atomically bumps the counter for pos's cell and returns the
// cell index.
func (g *Grid) Increment(pos geom.Vector3) int64 {
	idx := g.CellIndex(pos)
	atomic.AddInt64(&g.cells[idx], 1)
	return idx
}

// Snapshot copies the current (possibly still in-flight) counter values,
// since Pyramid requires a plain slice rather than atomic int64s.
func (g *Grid) Snapshot() []int64 {
	out := make([]int64, len(g.cells))
	for i := range g.cells {
		out[i] = atomic.LoadInt64(&g.cells[i])
	}
	return out
}

// Pyramid is the bottom-up sum reduction of a leaf-level counting grid:
// Pyramid[level] holds 8^level cells, Pyramid[maxLevel] is the grid itself,
// and Pyramid[level][i] is the sum of its 8 children in Pyramid[level+1]
// (spec.md §4.3's "create_pyramid_sum").
type Pyramid [][]int64

// BuildPyramid reduces a leaf-level grid of gridSize^3 cells (a power of
// two) into the full pyramid.
func BuildPyramid(leaf []int64, gridSize int64) Pyramid {
	maxLevel := int(math.Log2(float64(gridSize)))
	pyramid := make(Pyramid, maxLevel+1)
	for level := 0; level < maxLevel; level++ {
		cells := int64(1)
		for i := 0; i < level; i++ {
			cells *= 8
		}
		pyramid[level] = make([]int64, cells)
	}
	pyramid[maxLevel] = leaf

	currentSize := gridSize / 2
	for level := maxLevel - 1; level >= 0; level-- {
		for x := int64(0); x < currentSize; x++ {
			for y := int64(0); y < currentSize; y++ {
				for z := int64(0); z < currentSize; z++ {
					index := morton.Encode(uint32(z), uint32(y), uint32(x))
					indexP1 := morton.Encode(uint32(2*z), uint32(2*y), uint32(2*x))
					var sum int64
					for i := int64(0); i < 8; i++ {
						sum += pyramid[level+1][int64(indexP1)+i]
					}
					pyramid[level][index] = sum
				}
			}
		}
		currentSize /= 2
	}
	return pyramid
}

// At returns the cell count at (level, morton index).
func (p Pyramid) At(level int, index int64) int64 {
	return p[level][index]
}

// MaxLevel is the finest level present in the pyramid.
func (p Pyramid) MaxLevel() int {
	return len(p) - 1
}
