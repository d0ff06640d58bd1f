// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package morton_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/lastree/internal/geom"
	"git.lukeshu.com/lastree/internal/morton"
	"git.lukeshu.com/lastree/internal/pointcloud"
)

func TestEncodeZero(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint64(0), morton.Encode(0, 0, 0))
}

func TestEncodeBitPlacement(t *testing.T) {
	t.Parallel()
	// x occupies bit 0 of every triple, y bit 1, z bit 2.
	assert.Equal(t, uint64(1), morton.Encode(1, 0, 0))
	assert.Equal(t, uint64(2), morton.Encode(0, 1, 0))
	assert.Equal(t, uint64(4), morton.Encode(0, 0, 1))
	assert.Equal(t, uint64(7), morton.Encode(1, 1, 1))
}

func TestEncodeIsInjectiveOverSmallCube(t *testing.T) {
	t.Parallel()
	seen := make(map[uint64]bool)
	for x := uint32(0); x < 8; x++ {
		for y := uint32(0); y < 8; y++ {
			for z := uint32(0); z < 8; z++ {
				code := morton.Encode(x, y, z)
				require.False(t, seen[code], "collision encoding (%d,%d,%d)", x, y, z)
				seen[code] = true
			}
		}
	}
	assert.Len(t, seen, 8*8*8)
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	t.Parallel()
	src := make([]byte, 4096)
	for i := range src {
		src[i] = byte(i % 251)
	}

	compressed, err := morton.Compress(src, len(src))
	require.NoError(t, err)
	assert.NotEmpty(t, compressed)

	out, err := morton.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, src, out)
}

func schemaXYZ() *pointcloud.Schema {
	s := &pointcloud.Schema{PosScale: geom.Vector3{X: 1, Y: 1, Z: 1}}
	s.Append(pointcloud.NewAttribute("position", 3, 4, pointcloud.TypeI32))
	s.Append(pointcloud.NewAttribute("intensity", 1, 2, pointcloud.TypeU16))
	return s
}

func schemaXYZRGB() *pointcloud.Schema {
	s := schemaXYZ()
	s.Append(pointcloud.NewAttribute("rgb", 3, 2, pointcloud.TypeU16))
	return s
}

func encodeRecord(x, y, z int32, intensity uint16) []byte {
	rec := make([]byte, 14)
	binary.LittleEndian.PutUint32(rec[0:], uint32(x))
	binary.LittleEndian.PutUint32(rec[4:], uint32(y))
	binary.LittleEndian.PutUint32(rec[8:], uint32(z))
	binary.LittleEndian.PutUint16(rec[12:], intensity)
	return rec
}

func encodeRecordRGB(x, y, z int32, intensity uint16, r, g, b uint16) []byte {
	rec := encodeRecord(x, y, z, intensity)
	tail := make([]byte, 6)
	binary.LittleEndian.PutUint16(tail[0:], r)
	binary.LittleEndian.PutUint16(tail[2:], g)
	binary.LittleEndian.PutUint16(tail[4:], b)
	return append(rec, tail...)
}

// TestEncodeNodeEmitsMortonStreams checks the §4.10 DEFAULT stream layout:
// position morton codes (16 B/point), then every other attribute's raw
// bytes in the new point order (no RGB attribute in this schema, so no RGB
// stream).
func TestEncodeNodeEmitsMortonStreams(t *testing.T) {
	t.Parallel()
	s := schemaXYZ()

	var points []byte
	points = append(points, encodeRecord(5, 5, 5, 10)...)
	points = append(points, encodeRecord(0, 0, 0, 20)...)
	points = append(points, encodeRecord(1, 0, 0, 30)...)

	out := morton.EncodeNode(points, s, 3)
	// 3 points * (16 B position-morton + 2 B intensity) = 54 B.
	require.Len(t, out, 3*(16+2))

	posBlock := out[:48]
	intensityBlock := out[48:]
	assert.Len(t, intensityBlock, 6)

	// (0,0,0) has the lowest Morton code among the three (delta from the
	// node's own minimum is zero on every axis), so it must sort first
	// regardless of its original input order: both morton-code halves are
	// zero, and its intensity (20) leads the intensity stream.
	firstHigh := binary.LittleEndian.Uint64(posBlock[0:])
	firstLow := binary.LittleEndian.Uint64(posBlock[8:])
	assert.Equal(t, uint64(0), firstHigh)
	assert.Equal(t, uint64(0), firstLow)
	assert.Equal(t, uint16(20), binary.LittleEndian.Uint16(intensityBlock[0:]))
}

// TestEncodeNodeIncludesRGBMortonStream checks that a schema carrying "rgb"
// gets the 8 B/point RGB morton stream inserted between the position morton
// stream and the remaining raw attributes (spec.md §4.10).
func TestEncodeNodeIncludesRGBMortonStream(t *testing.T) {
	t.Parallel()
	s := schemaXYZRGB()

	var points []byte
	points = append(points, encodeRecordRGB(0, 0, 0, 20, 100, 200, 300)...)
	points = append(points, encodeRecordRGB(5, 5, 5, 10, 1, 2, 3)...)

	out := morton.EncodeNode(points, s, 2)
	// 2 points * (16 B position-morton + 8 B rgb-morton + 2 B intensity) = 52 B.
	require.Len(t, out, 2*(16+8+2))

	rgbBlock := out[32:48]
	intensityBlock := out[48:]
	assert.Len(t, intensityBlock, 4)

	// (0,0,0) still sorts first; its rgb morton code must match a direct
	// Encode of its own channel values (no delta subtraction for RGB).
	wantCode := morton.Encode(100, 200, 300)
	gotCode := binary.LittleEndian.Uint64(rgbBlock[0:])
	assert.Equal(t, wantCode, gotCode)
	assert.Equal(t, uint16(20), binary.LittleEndian.Uint16(intensityBlock[0:]))
}

func TestEncodeNodeEmpty(t *testing.T) {
	t.Parallel()
	assert.Nil(t, morton.EncodeNode(nil, schemaXYZ(), 0))
}
