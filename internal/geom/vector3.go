// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package geom holds the small value types (3-vectors, bounding boxes)
// shared by every pass of the octree indexer.
package geom

import (
	"fmt"
	"math"
)

// Vector3 is a double-precision 3-tuple; positions, sizes, and scale/offset
// triples all share this type.
type Vector3 struct {
	X, Y, Z float64
}

func (v Vector3) Add(o Vector3) Vector3 { return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vector3) Sub(o Vector3) Vector3 { return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vector3) Mul(o Vector3) Vector3 { return Vector3{v.X * o.X, v.Y * o.Y, v.Z * o.Z} }
func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{v.X * s, v.Y * s, v.Z * s}
}
func (v Vector3) AddScalar(s float64) Vector3 {
	return Vector3{v.X + s, v.Y + s, v.Z + s}
}

func (v Vector3) Max() float64 {
	return math.Max(v.X, math.Max(v.Y, v.Z))
}

func (v Vector3) SquaredDistanceTo(o Vector3) float64 {
	dx, dy, dz := o.X-v.X, o.Y-v.Y, o.Z-v.Z
	return dx*dx + dy*dy + dz*dz
}

func (v Vector3) DistanceTo(o Vector3) float64 {
	return math.Sqrt(v.SquaredDistanceTo(o))
}

func (v Vector3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func (v Vector3) String() string {
	return fmt.Sprintf("%v, %v, %v", v.X, v.Y, v.Z)
}

// ToJSON renders the vector as a 3-element JSON array, matching the output
// format's on-disk convention (metadata.json offset/scale/bbox fields).
func (v Vector3) ToJSON() []float64 {
	return []float64{v.X, v.Y, v.Z}
}

// ElementwiseMin/Max are used while unioning per-file bounding boxes in the
// source scanner (spec.md §4.1).
func ElementwiseMin(a, b Vector3) Vector3 {
	return Vector3{math.Min(a.X, b.X), math.Min(a.Y, b.Y), math.Min(a.Z, b.Z)}
}

func ElementwiseMax(a, b Vector3) Vector3 {
	return Vector3{math.Max(a.X, b.X), math.Max(a.Y, b.Y), math.Max(a.Z, b.Z)}
}
