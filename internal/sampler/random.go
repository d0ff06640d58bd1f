// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package sampler

import (
	"math"

	"git.lukeshu.com/lastree/internal/pointcloud"
)

// randomGridSize (128) is the grid resolution the random sampler restricts
// to N's bbox (spec.md §4.8).
const randomGridSize = 128

// acceptRadius (0.7*sqrt(3)) is the sub-cell-distance-to-center threshold a
// point must fall under to be accepted by its cell (spec.md §4.8).
var acceptRadius = 0.7 * math.Sqrt(3)

// sweepState tracks, per grid cell, the sweep counter value it was last
// accepted on; a cell may accept at most one point per sweep.
type sweepState struct {
	marker []int64
	sweep  int64
}

func newSweepState(cells int64) *sweepState {
	s := &sweepState{marker: make([]int64, cells)}
	for i := range s.marker {
		s.marker[i] = -1
	}
	return s
}

// Random runs the alternative sampler: identical structure to Poisson
// (pool, accept into N, rewrite children with rejects, hoist empty
// leaves), but acceptance is decided by a per-sweep grid marker instead of
// a distance-sort (spec.md §4.8).
func Random(node *pointcloud.Node, schema *pointcloud.Schema) []byte {
	stride := schema.BytesPerPoint()
	posOff := schema.OffsetOf("position")
	bbox := node.BBox
	size := bbox.Size()

	state := newSweepState(randomGridSize * randomGridSize * randomGridSize)
	state.sweep++

	var candidates []candidatePoint
	for ci, child := range node.Children {
		if child == nil {
			continue
		}
		n := int64(len(child.Points)) / int64(stride)
		for i := int64(0); i < n; i++ {
			rec := child.Points[i*int64(stride) : (i+1)*int64(stride)]
			pos := decodePos(rec, posOff, schema)
			candidates = append(candidates, candidatePoint{childIdx: ci, pos: pos, rec: rec})
		}
	}

	cellSize := size.Scale(1.0 / randomGridSize)
	acceptedMask := make([]bool, len(candidates))
	var accepted []candidatePoint

	for i, cand := range candidates {
		fx := (cand.pos.X - bbox.Min.X) / cellSize.X
		fy := (cand.pos.Y - bbox.Min.Y) / cellSize.Y
		fz := (cand.pos.Z - bbox.Min.Z) / cellSize.Z

		cx := clampCell(int64(fx))
		cy := clampCell(int64(fy))
		cz := clampCell(int64(fz))
		cellIdx := cz*randomGridSize*randomGridSize + cy*randomGridSize + cx

		if state.marker[cellIdx] >= state.sweep {
			continue
		}

		centerX := float64(cx) + 0.5
		centerY := float64(cy) + 0.5
		centerZ := float64(cz) + 0.5
		dx, dy, dz := fx-centerX, fy-centerY, fz-centerZ
		dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if dist >= acceptRadius {
			continue
		}

		state.marker[cellIdx] = state.sweep
		acceptedMask[i] = true
		accepted = append(accepted, cand)
	}

	payload := make([]byte, 0, len(accepted)*stride)
	for _, a := range accepted {
		payload = append(payload, a.rec...)
	}

	rejectsByChild := make([][]byte, len(node.Children))
	for i, cand := range candidates {
		if acceptedMask[i] {
			continue
		}
		rejectsByChild[cand.childIdx] = append(rejectsByChild[cand.childIdx], cand.rec...)
	}
	for ci, child := range node.Children {
		if child == nil {
			continue
		}
		rejects := rejectsByChild[ci]
		child.Points = rejects
		child.NumPoints = int64(len(rejects)) / int64(stride)
		if len(rejects) == 0 && child.IsLeaf() {
			node.Children[ci] = nil
			node.ChildMask &^= 1 << uint(ci)
		}
	}

	node.Sampled = true
	node.NumPoints = int64(len(accepted))
	return payload
}

func clampCell(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > randomGridSize-1 {
		return randomGridSize - 1
	}
	return v
}
