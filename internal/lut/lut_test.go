// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package lut_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/lastree/internal/counting"
	"git.lukeshu.com/lastree/internal/lut"
)

func totalPoints(chunks []lut.Chunk) int64 {
	var sum int64
	for _, c := range chunks {
		sum += c.NumPoints
	}
	return sum
}

func TestBuildMergesUnderThresholdIntoRootChunk(t *testing.T) {
	t.Parallel()
	const gridSize = 2
	leaf := []int64{1, 2, 3, 4, 5, 6, 7, 8} // well under maxChunkPoints
	pyramid := counting.BuildPyramid(leaf, gridSize)

	table, err := lut.Build(pyramid, gridSize)
	require.NoError(t, err)
	require.Len(t, table.Chunks, 1)
	assert.Equal(t, "r", table.Chunks[0].Name)
	assert.Equal(t, int64(36), table.Chunks[0].NumPoints)

	// Every finest-level cell must point at the single chunk.
	for _, idx := range table.Index {
		assert.Equal(t, int32(0), idx)
	}
}

func TestBuildSplitsWhenOverThreshold(t *testing.T) {
	t.Parallel()
	const gridSize = 2
	// Two opposite corners each individually small, but far enough over
	// maxChunkPoints combined that the root cannot merge them.
	leaf := make([]int64, 8)
	leaf[0] = 4_000_000
	leaf[7] = 4_000_000
	pyramid := counting.BuildPyramid(leaf, gridSize)

	table, err := lut.Build(pyramid, gridSize)
	require.NoError(t, err)

	assert.Equal(t, int64(8_000_000), totalPoints(table.Chunks))
	// The two nonzero cells can't merge into the root (sum exceeds
	// maxChunkPoints), so each becomes its own level-1 chunk.
	require.Len(t, table.Chunks, 2)
	for _, c := range table.Chunks {
		assert.Equal(t, 1, c.Level)
		assert.Equal(t, int64(4_000_000), c.NumPoints)
		assert.Len(t, c.Name, 2) // "r" + one octant digit
	}
}

func TestBuildRejectsEmptyPointSet(t *testing.T) {
	t.Parallel()
	const gridSize = 2
	leaf := make([]int64, 8)
	pyramid := counting.BuildPyramid(leaf, gridSize)

	_, err := lut.Build(pyramid, gridSize)
	assert.Error(t, err)
}
