// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package lut builds the global node lookup table: a G^3 -> chunk-index
// mapping derived by a bottom-up, merge-while-under-threshold walk of the
// counting pyramid (spec.md §4.3).
package lut

import (
	"fmt"

	"git.lukeshu.com/lastree/internal/counting"
)

// Chunk is one emitted chunk node: its octree path/level, grid coordinates
// at that level, the power-of-two size (in level-G cells) it covers, and
// its point count.
type Chunk struct {
	Name      string // path string, e.g. "r03"
	Level     int
	X, Y, Z   int64 // coordinates at Level's resolution
	Size      int64 // cells-per-axis this chunk covers at the grid's finest level
	NumPoints int64
}

// Table is the G^3 -> chunk-index lookup, plus the chunk list it indexes.
type Table struct {
	Index    []int32 // len gridSize^3, Morton-indexed at the finest level
	Chunks   []Chunk
	GridSize int64
}

// maxChunkPoints (Tm) bounds how many points a single chunk file may hold
// before the node lookup table stops merging further (spec.md §4.3).
const maxChunkPoints = 5_000_000

// Build walks pyramid bottom-up (finest level first is NOT the walk order —
// the merge test starts at the pyramid's second-to-finest level and climbs
// toward the root), merging 2x2x2 blocks while their summed count stays
// under maxChunkPoints, and emitting a Chunk wherever a block can no longer
// merge (spec.md §4.3).
func Build(pyramid counting.Pyramid, gridSize int64) (*Table, error) {
	maxLevel := pyramid.MaxLevel()
	// levelStates[level] tracks, per cell at that level, whether the cell is
	// still a merge candidate (-1 sentinel means "finished, already chunked").
	state := make([]int64, len(pyramid[maxLevel]))
	copy(state, pyramid[maxLevel])

	levelStates := make([][]int64, maxLevel+1)
	levelStates[maxLevel] = state

	var chunks []Chunk

	currentSize := gridSize / 2
	for level := maxLevel - 1; level >= 0; level-- {
		childLevel := level + 1
		childState := levelStates[childLevel]
		parentState := make([]int64, int64Pow(8, int64(level)))

		for x := int64(0); x < currentSize; x++ {
			for y := int64(0); y < currentSize; y++ {
				for z := int64(0); z < currentSize; z++ {
					parentIdx := mortonIdx(z, y, x)
					childBase := mortonIdx(2*z, 2*y, 2*x)

					mergeable := true
					var sum int64
					for i := int64(0); i < 8; i++ {
						v := childState[childBase+i]
						if v < 0 {
							mergeable = false
							break
						}
						sum += v
					}
					if mergeable && sum <= maxChunkPoints {
						parentState[parentIdx] = sum
						continue
					}

					// Not mergeable: every non-negative, non-zero child at
					// childLevel that hasn't already been chunked becomes a
					// chunk node now, and the parent cell is marked -1 so
					// coarser levels never try to merge it again.
					size := int64(1) << uint(maxLevel-childLevel)
					for i := int64(0); i < 8; i++ {
						v := childState[childBase+i]
						if v <= 0 {
							continue
						}
						cx, cy, cz := unmortonOffset(childBase+i, 2*x, 2*y, 2*z)
						chunks = append(chunks, Chunk{
							Level: childLevel, X: cx, Y: cy, Z: cz,
							Size: size, NumPoints: v,
						})
						childState[childBase+i] = -1
					}
					parentState[parentIdx] = -1
				}
			}
		}
		levelStates[level] = parentState
		currentSize /= 2
	}

	// The root itself may still hold unmerged mass if the whole dataset fits
	// under the threshold: treat a non-negative root cell as a single
	// level-0 chunk spanning the entire grid.
	if levelStates[0][0] > 0 {
		chunks = append(chunks, Chunk{
			Level: 0, X: 0, Y: 0, Z: 0,
			Size: gridSize, NumPoints: levelStates[0][0],
		})
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("lut: no chunks produced (empty point set?)")
	}

	table := &Table{Index: make([]int32, gridSize*gridSize*gridSize), GridSize: gridSize, Chunks: chunks}
	for i := range table.Index {
		table.Index[i] = -1
	}
	for ci, c := range chunks {
		writeChunkIndex(table.Index, gridSize, c, int32(ci))
	}
	for i := range table.Chunks {
		table.Chunks[i].Name = chunkName(table.Chunks[i])
	}
	return table, nil
}

// writeChunkIndex fills every finest-level cell the chunk covers with its
// chunk index (spec.md §4.3: "write its index into every cell ... for
// ox,oy,oz in [0,s)").
func writeChunkIndex(index []int32, gridSize int64, c Chunk, chunkIdx int32) {
	for ox := int64(0); ox < c.Size; ox++ {
		for oy := int64(0); oy < c.Size; oy++ {
			for oz := int64(0); oz < c.Size; oz++ {
				x := c.X*c.Size + ox
				y := c.Y*c.Size + oy
				z := c.Z*c.Size + oz
				idx := mortonIdx(z, y, x)
				index[idx] = chunkIdx
			}
		}
	}
}

// chunkName derives the octree path by walking the root-to-grid-size path:
// at each level, test which octant (x,y,z) falls in, appending the octant
// digit (spec.md §4.3's final paragraph).
func chunkName(c Chunk) string {
	name := []byte{'r'}
	x, y, z := c.X, c.Y, c.Z
	for level := 0; level < c.Level; level++ {
		shift := uint(c.Level - level - 1)
		bit := func(v int64) int64 { return (v >> shift) & 1 }
		digit := bit(x)<<2 | bit(y)<<1 | bit(z)
		name = append(name, byte('0'+digit))
	}
	return string(name)
}

func int64Pow(base, exp int64) int64 {
	r := int64(1)
	for i := int64(0); i < exp; i++ {
		r *= base
	}
	return r
}
