// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package morton

import (
	"encoding/binary"
	"math"

	"golang.org/x/exp/slices"

	"git.lukeshu.com/lastree/internal/pointcloud"
)

// lowBits is the width of the lower morton-code half; axis deltas are
// guaranteed by spec.md §3 to fit 30 bits (the scale-selection "safety
// margin"), so a 21-bit low half plus a 21-bit high half covers the full
// range with no precision lost to Encode's 21-bit-per-axis ceiling.
const lowBits = 21

const lowMask = uint32(1)<<lowBits - 1

// EncodeNode sorts a node's points by their position Morton code (split
// into upper/lower 21-bit halves for full precision, per spec.md §4.10)
// and re-packs them as the §4.10 DEFAULT stream: position morton codes
// (16 B/point: high half then low half), RGB morton codes (8 B/point, if
// the schema carries "rgb"), then every other attribute in its raw byte
// layout, attribute-by-attribute, in the new point order — so that, under
// the BROTLI encoding, the compressor sees long runs of spatially-correlated
// bytes (DEFAULT writes this stream uncompressed). The
// UNCOMPRESSED encoding skips this and writes `points` (AoS) unchanged.
func EncodeNode(points []byte, schema *pointcloud.Schema, numPoints int64) []byte {
	if numPoints == 0 {
		return nil
	}
	stride := schema.BytesPerPoint()
	posOff := schema.OffsetOf("position")
	rgbOff := schema.OffsetOf("rgb")
	n := int(numPoints)

	type keyed struct {
		high, low uint64
		index     int
	}
	keys := make([]keyed, n)

	var minX, minY, minZ int32 = math.MaxInt32, math.MaxInt32, math.MaxInt32
	xs := make([]int32, n)
	ys := make([]int32, n)
	zs := make([]int32, n)
	for i := 0; i < n; i++ {
		off := i*stride + posOff
		x := int32(binary.LittleEndian.Uint32(points[off:]))
		y := int32(binary.LittleEndian.Uint32(points[off+4:]))
		z := int32(binary.LittleEndian.Uint32(points[off+8:]))
		xs[i], ys[i], zs[i] = x, y, z
		if x < minX {
			minX = x
		}
		if y < minY {
			minY = y
		}
		if z < minZ {
			minZ = z
		}
	}
	for i := 0; i < n; i++ {
		dx := uint32(xs[i] - minX)
		dy := uint32(ys[i] - minY)
		dz := uint32(zs[i] - minZ)
		keys[i] = keyed{
			high:  Encode(dx>>lowBits, dy>>lowBits, dz>>lowBits),
			low:   Encode(dx&lowMask, dy&lowMask, dz&lowMask),
			index: i,
		}
	}
	slices.SortFunc(keys, func(a, b keyed) bool {
		if a.high != b.high {
			return a.high < b.high
		}
		return a.low < b.low
	})

	newStride := 16
	if rgbOff >= 0 {
		newStride += 8
	}
	for _, attr := range schema.List {
		if attr.Name == "position" || attr.Name == "rgb" {
			continue
		}
		newStride += attr.Size
	}

	out := make([]byte, newStride*n)
	pos := 0

	for _, k := range keys {
		binary.LittleEndian.PutUint64(out[pos:], k.high)
		binary.LittleEndian.PutUint64(out[pos+8:], k.low)
		pos += 16
	}

	if rgbOff >= 0 {
		for _, k := range keys {
			src := points[k.index*stride+rgbOff:]
			r := uint32(binary.LittleEndian.Uint16(src))
			g := uint32(binary.LittleEndian.Uint16(src[2:]))
			b := uint32(binary.LittleEndian.Uint16(src[4:]))
			binary.LittleEndian.PutUint64(out[pos:], Encode(r, g, b))
			pos += 8
		}
	}

	for _, attr := range schema.List {
		if attr.Name == "position" || attr.Name == "rgb" {
			continue
		}
		attrOff := schema.OffsetOf(attr.Name)
		for _, k := range keys {
			src := points[k.index*stride+attrOff : k.index*stride+attrOff+attr.Size]
			copy(out[pos:pos+attr.Size], src)
			pos += attr.Size
		}
	}
	return out
}
