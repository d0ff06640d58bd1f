// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package morton implements 3D Morton (Z-order) code interleaving, used by
// the counting grid/pyramid (spec.md §4.3) to index cells with spatial
// locality, and by the DEFAULT and BROTLI point-payload encodings to group
// nearby points (only BROTLI then compresses the result; spec.md §4.1, §6).
package morton

// splitBy3 spreads the low 21 bits of a so each occupies every third bit
// position, leaving room to interleave two more such values.
func splitBy3(a uint32) uint64 {
	x := uint64(a) & 0x1fffff
	x = (x | x<<32) & 0x1f00000000ffff
	x = (x | x<<16) & 0x1f0000ff0000ff
	x = (x | x<<8) & 0x100f00f00f00f00f
	x = (x | x<<4) & 0x10c30c30c30c30c3
	x = (x | x<<2) & 0x1249249249249249
	return x
}

// Encode interleaves x, y, z (each up to 21 significant bits) into a single
// 64-bit Morton code with x in bit 0 of every triple, y in bit 1, z in bit 2.
func Encode(x, y, z uint32) uint64 {
	return splitBy3(x) | splitBy3(y)<<1 | splitBy3(z)<<2
}
