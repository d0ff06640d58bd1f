// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package counting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/lastree/internal/counting"
	"git.lukeshu.com/lastree/internal/geom"
)

func cube(size float64) geom.BoundingBox {
	return geom.BoundingBox{Max: geom.Vector3{X: size, Y: size, Z: size}}
}

func TestCellIndexClampsOutOfRange(t *testing.T) {
	t.Parallel()
	g := counting.NewGrid(cube(10), 4)

	// Below the box, inside it, and above it: each must not panic and must
	// land in-range.
	for _, p := range []geom.Vector3{
		{X: -5, Y: -5, Z: -5},
		{X: 5, Y: 5, Z: 5},
		{X: 1000, Y: 1000, Z: 1000},
	} {
		idx := g.CellIndex(p)
		assert.GreaterOrEqual(t, idx, int64(0))
		assert.Less(t, idx, int64(4*4*4))
	}
}

func TestIncrementAndSnapshot(t *testing.T) {
	t.Parallel()
	g := counting.NewGrid(cube(8), 2)

	corners := []geom.Vector3{
		{X: 0, Y: 0, Z: 0},
		{X: 7, Y: 0, Z: 0},
		{X: 0, Y: 7, Z: 0},
		{X: 7, Y: 7, Z: 0},
		{X: 0, Y: 0, Z: 7},
		{X: 7, Y: 0, Z: 7},
		{X: 0, Y: 7, Z: 7},
		{X: 7, Y: 7, Z: 7},
	}
	seen := make(map[int64]bool)
	for _, c := range corners {
		idx := g.Increment(c)
		seen[idx] = true
	}
	// 8 corners of a 2x2x2 grid must land in 8 distinct cells.
	require.Len(t, seen, 8)

	snap := g.Snapshot()
	require.Len(t, snap, 8)
	var total int64
	for _, v := range snap {
		total += v
	}
	assert.Equal(t, int64(8), total)
}

func TestBuildPyramidSumsMatchLeafTotal(t *testing.T) {
	t.Parallel()
	const gridSize = 4
	leaf := make([]int64, gridSize*gridSize*gridSize)
	for i := range leaf {
		leaf[i] = int64(i % 3)
	}
	var want int64
	for _, v := range leaf {
		want += v
	}

	pyramid := counting.BuildPyramid(leaf, gridSize)
	assert.Equal(t, 2, pyramid.MaxLevel())
	assert.Equal(t, want, pyramid.At(0, 0), "root of the pyramid must equal the sum of every leaf cell")

	// The 8 level-1 cells together must also sum to the leaf total.
	var levelOneTotal int64
	for i := int64(0); i < 8; i++ {
		levelOneTotal += pyramid.At(1, i)
	}
	assert.Equal(t, want, levelOneTotal)
}
