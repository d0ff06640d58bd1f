// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package chunkindex implements pass 3: for each chunk file produced by
// internal/distribute, builds an in-memory octree by recursive counting-sort
// subdivision (spec.md §4.7).
package chunkindex

import (
	"fmt"

	"git.lukeshu.com/lastree/internal/containers"
	"git.lukeshu.com/lastree/internal/counting"
	"git.lukeshu.com/lastree/internal/geom"
	"git.lukeshu.com/lastree/internal/pointcloud"
)

// maxPointsPerChunk (Tm) bounds a leaf's point count before it must be
// subdivided further.
const maxPointsPerChunk = 5_000_000

// refineThreshold (Tu) bounds how many points a chunk file may hold before
// it is refined in place (run through the counting-pyramid restricted to
// its own bbox) ahead of the normal build (spec.md §4.7).
const refineThreshold = 10_000_000

// subdivisionLevels (5) is the depth of the local 32^3 counter grid used
// inside build_hierarchy (spec.md §4.7 step 2: "32^3 counter grid (5
// subdivision levels)").
const subdivisionLevels = 5

// Builder's Dropped field, reset per Build call, counts points
// build_hierarchy could not place because of the duplicate-node-name guard;
// internal/convert sums it across chunks and logs the total at WARN rather
// than hiding it.
type Builder struct {
	Schema  *pointcloud.Schema
	Dropped int64
}

// Build runs build_hierarchy(root, points, numPoints, 0), returning root
// once every leaf chunk is under maxPointsPerChunk. If the chunk is
// unreasonably large (> refineThreshold), it is first split into
// sub-chunks by restricting the node-lookup-table merge to root's own bbox
// (spec.md §4.7: "refined in place first"), each built independently as a
// child of root.
func (b *Builder) Build(root *pointcloud.Node, points []byte, numPoints int64) error {
	b.Dropped = 0

	if !NeedsRefine(numPoints) {
		return b.buildHierarchy(root, points, numPoints)
	}

	subs, err := Refine(points, numPoints, root.BBox, b.Schema)
	if err != nil {
		return fmt.Errorf("chunkindex: %w", err)
	}
	for _, sub := range subs {
		name := root.Name + sub.Name
		child := root.ExpandTo(name)
		if err := b.buildHierarchy(child, sub.Points, sub.Count); err != nil {
			return fmt.Errorf("chunkindex: refining %s: %w", name, err)
		}
	}
	return nil
}

func (b *Builder) buildHierarchy(node *pointcloud.Node, points []byte, numPoints int64) error {
	stride := b.Schema.BytesPerPoint()

	if numPoints < maxPointsPerChunk {
		node.Points = points[:numPoints*int64(stride)]
		node.NumPoints = numPoints
		node.Type = pointcloud.NodeLeaf
		return nil
	}

	gridSize := int64(1) << subdivisionLevels
	grid := counting.NewGrid(node.BBox, gridSize)
	posOff := b.Schema.OffsetOf("position")

	cellOf := func(i int64) int64 {
		return grid.CellIndex(decodePosition(points, i, stride, posOff, b.Schema))
	}

	// Counting.
	counts := make([]int64, gridSize*gridSize*gridSize)
	for i := int64(0); i < numPoints; i++ {
		counts[cellOf(i)]++
	}

	// Distributing: counting-sort reorder via prefix sums, into a fresh
	// buffer (spec.md §4.7 step 3).
	offsets := make([]int64, len(counts))
	for i := 1; i < len(counts); i++ {
		offsets[i] = offsets[i-1] + counts[i-1]
	}
	reordered := make([]byte, numPoints*int64(stride))
	cursor := make([]int64, len(counts))
	copy(cursor, offsets)
	for i := int64(0); i < numPoints; i++ {
		cell := cellOf(i)
		target := cursor[cell]
		cursor[cell]++
		copy(reordered[target*int64(stride):(target+1)*int64(stride)], points[i*int64(stride):(i+1)*int64(stride)])
	}

	pyramid := counting.BuildPyramid(counts, gridSize)
	candidates := extractCandidates(pyramid, gridSize, offsets)

	seen := containers.NewSet[string]()
	var toRefine []*pointcloud.Node
	for _, c := range candidates {
		name := node.Name + c.path
		if seen.Has(name) {
			// spec.md's Open Question: a duplicate candidate name can
			// arise when two pyramid cells at different levels both
			// finish on the same path; drop the later one rather than
			// clobbering the first, and count it so callers can report
			// the discrepancy against the declared point total.
			b.Dropped += c.numPoints
			continue
		}
		seen.Insert(name)

		child := node.ExpandTo(name)
		child.IndexStart = c.indexStart
		child.NumPoints = c.numPoints
		child.Points = reordered[c.indexStart*int64(stride) : (c.indexStart+c.numPoints)*int64(stride)]
		child.Type = pointcloud.NodeLeaf

		if c.numPoints > maxPointsPerChunk {
			toRefine = append(toRefine, child)
		}
	}

	for _, child := range toRefine {
		owned := make([]byte, len(child.Points))
		copy(owned, child.Points)
		count := child.NumPoints

		if count == numPoints {
			// Pathological distribution: subdivision made no progress, so
			// every point in this cell shares (or nearly shares) a
			// position (spec.md §4.7's duplicate guard).
			owned, count = b.dedupGuard(owned, count, stride)
			if count == numPoints {
				// Too few duplicates to deduplicate: keep the cell whole
				// as an oversized leaf instead of subdividing it again.
				child.Points = owned
				continue
			}
		}

		child.NumPoints = count
		child.Points = owned
		if err := b.buildHierarchy(child, owned, count); err != nil {
			return fmt.Errorf("chunkindex: refining %s: %w", child.Name, err)
		}
	}

	return nil
}

// dedupGuard handles a subnode whose point count equals its parent's
// (subdivision made no progress — spec.md §4.7): if fewer than half the
// points are true positional duplicates, it returns the buffer and count
// unchanged and the caller keeps the cell as-is (it will simply exceed
// maxPointsPerChunk); otherwise it deduplicates by position and returns
// the shrunk buffer for one retry.
func (b *Builder) dedupGuard(points []byte, count int64, stride int) ([]byte, int64) {
	posOff := b.Schema.OffsetOf("position")
	seen := make(map[[12]byte]bool, count)
	unique := make([]byte, 0, len(points))
	var dupes int64
	for i := int64(0); i < count; i++ {
		rec := points[i*int64(stride) : (i+1)*int64(stride)]
		var key [12]byte
		copy(key[:], rec[posOff:posOff+12])
		if seen[key] {
			dupes++
			continue
		}
		seen[key] = true
		unique = append(unique, rec...)
	}

	if dupes < count/2 {
		// Not pathological enough to bother deduplicating; accept the
		// cell whole and let it stay oversized. No warning is logged
		// for such a cell.
		return points, count
	}
	uniqueCount := int64(len(unique)) / int64(stride)
	return unique, uniqueCount
}

func decodePosition(points []byte, i int64, stride, posOff int, schema *pointcloud.Schema) geom.Vector3 {
	off := int(i)*stride + posOff
	x := int32(leUint32(points[off:]))
	y := int32(leUint32(points[off+4:]))
	z := int32(leUint32(points[off+8:]))
	return geom.Vector3{
		X: float64(x)*schema.PosScale.X + schema.PosOffset.X,
		Y: float64(y)*schema.PosScale.Y + schema.PosOffset.Y,
		Z: float64(z)*schema.PosScale.Z + schema.PosOffset.Z,
	}
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

type candidate struct {
	path       string
	indexStart int64
	numPoints  int64
}

// extractCandidates walks the pyramid top-down (unlike the node lookup
// table's bottom-up merge), descending into any cell whose count is still
// >= maxPointsPerChunk and emitting a candidate the first time a cell's
// count drops below it (spec.md §4.7 step 4).
func extractCandidates(pyramid counting.Pyramid, gridSize int64, leafOffsets []int64) []candidate {
	maxLevel := pyramid.MaxLevel()
	var out []candidate
	var walk func(level int, idx int64, path string)
	walk = func(level int, idx int64, path string) {
		count := pyramid.At(level, idx)
		if count == 0 {
			return
		}
		if count < maxPointsPerChunk || level == maxLevel {
			span := int64(1)
			for l := level; l < maxLevel; l++ {
				span *= 8
			}
			firstLeaf := idx * span
			out = append(out, candidate{path: path, indexStart: leafOffsets[firstLeaf], numPoints: count})
			return
		}
		for octant := 0; octant < 8; octant++ {
			childIdx := idx*8 + int64(octant)
			walk(level+1, childIdx, path+string(rune('0'+octant)))
		}
	}
	walk(0, 0, "")
	_ = gridSize
	return out
}
