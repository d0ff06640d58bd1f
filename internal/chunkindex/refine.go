// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package chunkindex

import (
	"fmt"

	"git.lukeshu.com/lastree/internal/counting"
	"git.lukeshu.com/lastree/internal/geom"
	"git.lukeshu.com/lastree/internal/lut"
	"git.lukeshu.com/lastree/internal/pointcloud"
)

// refineGridLevels is the grid depth used for in-place chunk refinement —
// coarser than the per-node subdivision grid since it only needs to split
// an oversized chunk into a handful of sub-chunk files, not build a full
// octree level (spec.md §4.7: "refined in place first by running the
// counting-pyramid algorithm restricted to that chunk's bbox").
const refineGridLevels = 6

// NeedsRefine reports whether a chunk file holding numPoints records
// exceeds the refine-in-place threshold (Tu).
func NeedsRefine(numPoints int64) bool {
	return numPoints > refineThreshold
}

// SubChunk is one piece of an oversized chunk after in-place refinement:
// its own byte slice of points, carved out of the original chunk buffer.
type SubChunk struct {
	Name   string // node-path suffix relative to the original chunk
	Points []byte
	Count  int64
}

// Refine splits an oversized chunk's point buffer into sub-chunks by
// running the node-lookup-table merge algorithm restricted to bbox, then
// partitioning points into each resulting chunk's byte range.
func Refine(points []byte, numPoints int64, bbox geom.BoundingBox, schema *pointcloud.Schema) ([]SubChunk, error) {
	stride := schema.BytesPerPoint()
	posOff := schema.OffsetOf("position")

	gridSize := int64(1) << refineGridLevels
	grid := counting.NewGrid(bbox, gridSize)

	cellOf := func(i int64) int64 {
		return grid.CellIndex(decodePosition(points, i, stride, posOff, schema))
	}

	counts := make([]int64, gridSize*gridSize*gridSize)
	for i := int64(0); i < numPoints; i++ {
		counts[cellOf(i)]++
	}
	pyramid := counting.BuildPyramid(counts, gridSize)
	table, err := lut.Build(pyramid, gridSize)
	if err != nil {
		return nil, fmt.Errorf("chunkindex: refine: %w", err)
	}

	buckets := make(map[string][]byte, len(table.Chunks))
	for i := int64(0); i < numPoints; i++ {
		cell := cellOf(i)
		idx := table.Index[cell]
		if idx < 0 {
			return nil, fmt.Errorf("chunkindex: refine: point did not resolve to a sub-chunk")
		}
		name := table.Chunks[idx].Name
		rec := points[i*int64(stride) : (i+1)*int64(stride)]
		buckets[name] = append(buckets[name], rec...)
	}

	out := make([]SubChunk, 0, len(buckets))
	for name, buf := range buckets {
		out = append(out, SubChunk{Name: name, Points: buf, Count: int64(len(buf) / stride)})
	}
	return out, nil
}
