// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sampler implements the bottom-up point promotion pass: for each
// inner octree node, a subset of its children's points is pulled up to
// become the node's own payload (spec.md §4.8).
package sampler

import (
	"math"

	"golang.org/x/exp/slices"

	"git.lukeshu.com/lastree/internal/geom"
	"git.lukeshu.com/lastree/internal/pointcloud"
)

// BaseSpacing is the spacing at octree level 0; deeper levels use
// BaseSpacing / 2^level(N).
const BaseSpacing = 1.0

// maxScanBack bounds how many earlier-accepted points the Poisson sampler
// re-examines per candidate (spec.md §4.8's optimization).
const maxScanBack = 10_000

type candidatePoint struct {
	childIdx int
	pos      geom.Vector3
	rec      []byte
	distToC  float64
}

// Poisson runs the preferred sampler on node, pooling every present
// child's points, accepting by ascending distance-to-center with minimum
// inter-point spacing, and rewriting each child's buffer with its rejects.
// Returns the accepted payload bytes for node itself.
func Poisson(node *pointcloud.Node, schema *pointcloud.Schema, baseSpacing float64) []byte {
	stride := schema.BytesPerPoint()
	posOff := schema.OffsetOf("position")
	center := node.BBox.Center()
	spacing := baseSpacing / math.Pow(2, float64(node.Level()))

	var candidates []candidatePoint
	for ci, child := range node.Children {
		if child == nil {
			continue
		}
		n := int64(len(child.Points)) / int64(stride)
		for i := int64(0); i < n; i++ {
			rec := child.Points[i*int64(stride) : (i+1)*int64(stride)]
			pos := decodePos(rec, posOff, schema)
			candidates = append(candidates, candidatePoint{
				childIdx: ci, pos: pos, rec: rec, distToC: pos.DistanceTo(center),
			})
		}
	}

	slices.SortFunc(candidates, func(a, b candidatePoint) bool {
		if a.distToC != b.distToC {
			return a.distToC < b.distToC
		}
		// Tie-break: by child index then original position (spec.md §4.8),
		// a total order (no two distinct points share both), so this
		// comparator needs no stable-sort guarantee.
		if a.childIdx != b.childIdx {
			return a.childIdx < b.childIdx
		}
		return lessVector3(a.pos, b.pos)
	})

	accepted := make([]candidatePoint, 0, len(candidates)/4)
	acceptedMask := make([]bool, len(candidates))
	for i, cand := range candidates {
		ok := true
		scanned := 0
		for j := len(accepted) - 1; j >= 0; j-- {
			q := accepted[j]
			if cand.distToC-q.distToC > spacing {
				// Every earlier-accepted point is at least this much
				// closer to C; none can be within spacing (spec.md §4.8's
				// stop condition).
				break
			}
			if q.pos.DistanceTo(cand.pos) < spacing {
				ok = false
				break
			}
			scanned++
			if scanned >= maxScanBack {
				break
			}
		}
		if ok {
			accepted = append(accepted, cand)
			acceptedMask[i] = true
		}
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
			// Fully promoted leaf: hoist it out entirely (spec.md §4.8).
			node.Children[ci] = nil
			node.ChildMask &^= 1 << uint(ci)
		}
		// Inner children with zero rejects are retained with an empty
		// payload, to preserve structure (spec.md §4.8).
	}

	node.Sampled = true
	node.NumPoints = int64(len(accepted))
	return payload
}

func decodePos(rec []byte, posOff int, schema *pointcloud.Schema) geom.Vector3 {
	x := int32(leUint32(rec[posOff:]))
	y := int32(leUint32(rec[posOff+4:]))
	z := int32(leUint32(rec[posOff+8:]))
	return geom.Vector3{
		X: float64(x)*schema.PosScale.X + schema.PosOffset.X,
		Y: float64(y)*schema.PosScale.Y + schema.PosOffset.Y,
		Z: float64(z)*schema.PosScale.Z + schema.PosOffset.Z,
	}
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func lessVector3(a, b geom.Vector3) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}
