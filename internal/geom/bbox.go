// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package geom

import "math"

// BoundingBox is an axis-aligned box, inclusive of Min and exclusive of Max
// along every axis that participates in octree subdivision (spec.md §3).
type BoundingBox struct {
	Min, Max Vector3
}

// Size returns Max-Min per axis.
func (b BoundingBox) Size() Vector3 {
	return b.Max.Sub(b.Min)
}

func (b BoundingBox) Center() Vector3 {
	return b.Min.Add(b.Size().Scale(0.5))
}

// Contains reports whether p falls within [Min, Max] on every axis: Max is
// inclusive on each axis, so the cube's own max corner is contained.
func (b BoundingBox) Contains(p Vector3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// ChildOf returns the bounding box of octant index (0..7), where bit 2 (0b100)
// selects the X half, bit 1 (0b010) selects Y, and bit 0 (0b001) selects Z —
// matching the child_of convention in spec.md §3 ("bits i = 0bxyz").
func (b BoundingBox) ChildOf(index int) BoundingBox {
	center := b.Center()
	var child BoundingBox

	if index&0b100 == 0 {
		child.Min.X, child.Max.X = b.Min.X, center.X
	} else {
		child.Min.X, child.Max.X = center.X, b.Max.X
	}
	if index&0b010 == 0 {
		child.Min.Y, child.Max.Y = b.Min.Y, center.Y
	} else {
		child.Min.Y, child.Max.Y = center.Y, b.Max.Y
	}
	if index&0b001 == 0 {
		child.Min.Z, child.Max.Z = b.Min.Z, center.Z
	} else {
		child.Min.Z, child.Max.Z = center.Z, b.Max.Z
	}
	return child
}

// ChildOfPath walks successive ChildOf calls for each octant digit in path
// (a node name sans the leading "r"), returning the bbox of that descendant.
func (b BoundingBox) ChildOfPath(path string) BoundingBox {
	box := b
	for _, c := range path {
		box = box.ChildOf(int(c - '0'))
	}
	return box
}

// Cube grows b so that every axis has the same size as its longest axis,
// anchored at Min — the source scanner's unification step (spec.md §4.1).
func (b BoundingBox) Cube() BoundingBox {
	side := b.Size().Max()
	return BoundingBox{
		Min: b.Min,
		Max: b.Min.AddScalar(side),
	}
}

// Union grows b (if necessary) to contain o.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		Min: ElementwiseMin(b.Min, o.Min),
		Max: ElementwiseMax(b.Max, o.Max),
	}
}

// Empty returns a bounding box suitable as the zero-value accumulator for
// Union — +Inf/-Inf so that the first Union call always wins.
func Empty() BoundingBox {
	inf := math.Inf(1)
	return BoundingBox{
		Min: Vector3{inf, inf, inf},
		Max: Vector3{-inf, -inf, -inf},
	}
}
