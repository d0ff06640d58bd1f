// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package chunkindex

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/lastree/internal/counting"
	"git.lukeshu.com/lastree/internal/geom"
	"git.lukeshu.com/lastree/internal/pointcloud"
)

// White-box tests for the unexported helpers that drive buildHierarchy;
// maxPointsPerChunk (5e6) is too large to exercise through real point
// buffers in a unit test, so these construct the counting pyramid directly.

func TestExtractCandidatesEmitsAtMaxLevelRegardlessOfThreshold(t *testing.T) {
	t.Parallel()
	const gridSize = 2
	// A single hot cell far over maxPointsPerChunk, everything else empty.
	leaf := make([]int64, gridSize*gridSize*gridSize)
	leaf[5] = 6_000_000
	pyramid := counting.BuildPyramid(leaf, gridSize)

	offsets := make([]int64, len(leaf))
	var running int64
	for i, c := range leaf {
		offsets[i] = running
		running += c
	}

	candidates := extractCandidates(pyramid, gridSize, offsets)

	// The root is over threshold so it must descend; at gridSize=2 the
	// leaf level is also the max level, so a candidate is emitted there
	// even though its count still exceeds maxPointsPerChunk (the caller,
	// buildHierarchy, is responsible for queuing it for further refinement).
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(6_000_000), candidates[0].numPoints)
	assert.Equal(t, offsets[5], candidates[0].indexStart)
}

func TestExtractCandidatesStopsAsSoonAsUnderThreshold(t *testing.T) {
	t.Parallel()
	const gridSize = 4
	leaf := make([]int64, gridSize*gridSize*gridSize)
	// Two adjacent nonzero leaf cells whose combined total is already
	// under threshold at the root: extraction must stop immediately
	// rather than recursing all the way to the leaves.
	leaf[0] = 10
	leaf[1] = 20
	pyramid := counting.BuildPyramid(leaf, gridSize)

	offsets := make([]int64, len(leaf))
	var running int64
	for i, c := range leaf {
		offsets[i] = running
		running += c
	}

	candidates := extractCandidates(pyramid, gridSize, offsets)

	require.Len(t, candidates, 1)
	assert.Equal(t, int64(30), candidates[0].numPoints)
	assert.Less(t, len(candidates[0].path), gridSizeLevels(gridSize))
}

func gridSizeLevels(gridSize int64) int {
	levels := 0
	for g := gridSize; g > 1; g /= 2 {
		levels++
	}
	return levels
}

func TestDedupGuardKeepsOversizedCellWhenNotPathological(t *testing.T) {
	t.Parallel()
	b := &Builder{Schema: unitSchema()}
	stride := b.Schema.BytesPerPoint()

	// 10 points, only 2 duplicated: well under the "more than half"
	// threshold, so dedupGuard must return the input unchanged.
	var points []byte
	for i := 0; i < 8; i++ {
		points = append(points, encodeXYZ(int32(i), 0, 0)...)
	}
	points = append(points, encodeXYZ(0, 0, 0)...) // duplicate of point 0
	points = append(points, encodeXYZ(1, 0, 0)...) // duplicate of point 1
	count := int64(len(points)) / int64(stride)

	out, outCount := b.dedupGuard(points, count, stride)
	assert.Equal(t, count, outCount)
	assert.Equal(t, len(points), len(out))
}

func TestDedupGuardShrinksPathologicalCell(t *testing.T) {
	t.Parallel()
	b := &Builder{Schema: unitSchema()}
	stride := b.Schema.BytesPerPoint()

	// 10 points, 8 of which sit on the same position: over half are
	// duplicates, so dedupGuard must shrink the buffer to the unique set.
	var points []byte
	for i := 0; i < 8; i++ {
		points = append(points, encodeXYZ(0, 0, 0)...)
	}
	points = append(points, encodeXYZ(1, 0, 0)...)
	points = append(points, encodeXYZ(2, 0, 0)...)
	count := int64(len(points)) / int64(stride)

	out, outCount := b.dedupGuard(points, count, stride)
	assert.Equal(t, int64(3), outCount)
	assert.Equal(t, 3*stride, len(out))
}

func unitSchema() *pointcloud.Schema {
	s := &pointcloud.Schema{PosScale: geom.Vector3{X: 1, Y: 1, Z: 1}}
	s.Append(pointcloud.NewAttribute("position", 3, 4, pointcloud.TypeI32))
	return s
}

func encodeXYZ(x, y, z int32) []byte {
	rec := make([]byte, 12)
	binary.LittleEndian.PutUint32(rec[0:], uint32(x))
	binary.LittleEndian.PutUint32(rec[4:], uint32(y))
	binary.LittleEndian.PutUint32(rec[8:], uint32(z))
	return rec
}
