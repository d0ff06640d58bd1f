// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pointcloud holds the data model shared by every pass: the
// attribute schema, the octree node type, and the per-attribute handler
// table (spec.md §3, §4.5).
package pointcloud

import (
	"fmt"
	"math"

	"git.lukeshu.com/lastree/internal/geom"
)

// AttrType enumerates the on-disk scalar types an Attribute's elements may
// have, matching spec.md §3's {i8,i16,i32,i64,u8,u16,u32,u64,f32,f64}.
type AttrType int

const (
	TypeUndefined AttrType = iota
	TypeI8
	TypeI16
	TypeI32
	TypeI64
	TypeU8
	TypeU16
	TypeU32
	TypeU64
	TypeF32
	TypeF64
)

func (t AttrType) String() string {
	switch t {
	case TypeI8:
		return "int8"
	case TypeI16:
		return "int16"
	case TypeI32:
		return "int32"
	case TypeI64:
		return "int64"
	case TypeU8:
		return "uint8"
	case TypeU16:
		return "uint16"
	case TypeU32:
		return "uint32"
	case TypeU64:
		return "uint64"
	case TypeF32:
		return "float"
	case TypeF64:
		return "double"
	default:
		return "undefined"
	}
}

// ElementSize returns the byte width of a single element of t.
func (t AttrType) ElementSize() int {
	switch t {
	case TypeI8, TypeU8:
		return 1
	case TypeI16, TypeU16:
		return 2
	case TypeI32, TypeU32, TypeF32:
		return 4
	case TypeI64, TypeU64, TypeF64:
		return 8
	default:
		return 0
	}
}

// Attribute describes one named, fixed-width field of the output point
// record (spec.md §3's "Attribute").
type Attribute struct {
	Name        string
	Description string
	Size        int // total bytes = NumElements * ElementSize
	NumElements int // 1, 2, or 3
	ElementSize int
	Type        AttrType

	Min, Max       geom.Vector3
	Scale, Offset  geom.Vector3
	Histogram      [256]int64 // only meaningful for 1-byte-wide attributes
	HasHistogram   bool
}

// NewAttribute builds an Attribute with the min/max accumulator primed to
// +Inf/-Inf, mirroring potree's attribute{} default member initializers.
func NewAttribute(name string, numElements int, elementSize int, typ AttrType) Attribute {
	inf := math.Inf(1)
	return Attribute{
		Name:        name,
		Size:        numElements * elementSize,
		NumElements: numElements,
		ElementSize: elementSize,
		Type:        typ,
		Min:         geom.Vector3{X: inf, Y: inf, Z: inf},
		Max:         geom.Vector3{X: -inf, Y: -inf, Z: -inf},
		Scale:       geom.Vector3{X: 1, Y: 1, Z: 1},
		HasHistogram: elementSize == 1,
	}
}

// UpdateScalar folds a decoded scalar observation from axis 0 into Min/Max
// and, if applicable, the histogram — used by scalar (non-position)
// attribute handlers in internal/distribute.
func (a *Attribute) UpdateScalar(v float64) {
	if v < a.Min.X {
		a.Min.X = v
	}
	if v > a.Max.X {
		a.Max.X = v
	}
	if a.HasHistogram {
		bin := int(v)
		if bin >= 0 && bin < 256 {
			a.Histogram[bin]++
		}
	}
}

// UpdateVector3 folds a decoded 3-component observation (RGB, position)
// into per-axis Min/Max.
func (a *Attribute) UpdateVector3(v geom.Vector3) {
	a.Min = geom.ElementwiseMin(a.Min, v)
	a.Max = geom.ElementwiseMax(a.Max, v)
}

func (a Attribute) String() string {
	return fmt.Sprintf("%s(%s x%d)", a.Name, a.Type, a.NumElements)
}

// Merge folds another per-thread staging copy of the same attribute into a
// into a, widening Min/Max and summing histograms (spec.md §4.4's "per-thread
// staging ... merged under a mutex on bucket hand-off").
func (a *Attribute) Merge(other Attribute) {
	a.Min = geom.ElementwiseMin(a.Min, other.Min)
	a.Max = geom.ElementwiseMax(a.Max, other.Max)
	if a.HasHistogram {
		for i := range a.Histogram {
			a.Histogram[i] += other.Histogram[i]
		}
	}
}
