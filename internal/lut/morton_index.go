// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package lut

import "git.lukeshu.com/lastree/internal/morton"

// mortonIdx mirrors the source's morton_encode(z, y, x) call convention
// used throughout the pyramid code (hierarchy.cpp): the first positional
// argument lands in bit 0 of each interleaved triple.
func mortonIdx(z, y, x int64) int64 {
	return int64(morton.Encode(uint32(z), uint32(y), uint32(x)))
}

// compactBy3 is the inverse of morton's bit-spreading: given a value with
// bits spread 3 apart, pack them back together.
func compactBy3(x uint64) uint32 {
	x &= 0x1249249249249249
	x = (x | x>>2) & 0x10c30c30c30c30c3
	x = (x | x>>4) & 0x100f00f00f00f00f
	x = (x | x>>8) & 0x1f0000ff0000ff
	x = (x | x>>16) & 0x1f00000000ffff
	x = (x | x>>32) & 0x1fffff
	return uint32(x)
}

// mortonDecode inverts mortonIdx, returning (z, y, x).
func mortonDecode(code int64) (z, y, x int64) {
	u := uint64(code)
	z = int64(compactBy3(u))
	y = int64(compactBy3(u >> 1))
	x = int64(compactBy3(u >> 2))
	return
}

// unmortonOffset decodes a child's absolute (x,y,z) grid coordinates at the
// child level from its full Morton index (base + child offset 0..7); the
// base/offset split is opaque once interleaved, so decoding directly from
// the combined code is simplest and always correct.
func unmortonOffset(code int64, _, _, _ int64) (x, y, z int64) {
	z, y, x = mortonDecode(code)
	return
}
