// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package hierarchy converts the in-memory octree into hierarchy.bin: a
// flat sequence of fixed-width records grouped into depth-S chunks, with
// PROXY records bridging a chunk to the next one down (spec.md §4.11).
package hierarchy

import (
	"git.lukeshu.com/lastree/internal/binstruct"
	"git.lukeshu.com/lastree/internal/pointcloud"
)

// recordSize is the on-disk width of one hierarchy record (spec.md §4.11:
// "each chunk occupies 22 x |chunk.nodes|").
const recordSize = 22

// StepSize (S) is the octree depth gathered into one hierarchy chunk
// before recursing into the next (spec.md §4.11).
const StepSize = 4

// record is the 22-byte on-disk hierarchy entry: a 1-byte type tag, a
// 1-byte child mask, a 4-byte point count, and 8-byte byteOffset/byteSize
// fields.
type record struct {
	Type          binstruct.U8    `bin:"off=0x0"`
	ChildMask     binstruct.U8    `bin:"off=0x1"`
	NumPoints     binstruct.U32le `bin:"off=0x2"`
	ByteOffset    binstruct.U64le `bin:"off=0x6"`
	ByteSize      binstruct.U64le `bin:"off=0xE"`
	binstruct.End `bin:"off=0x16"`
}

func encodeRecord(n *pointcloud.Node, typ pointcloud.NodeType, byteOffset, byteSize int64) ([]byte, error) {
	r := record{
		Type:       binstruct.U8(typ),
		ChildMask:  binstruct.U8(n.ChildMask),
		NumPoints:  binstruct.U32le(n.NumPoints),
		ByteOffset: binstruct.U64le(byteOffset),
		ByteSize:   binstruct.U64le(byteSize),
	}
	return binstruct.Marshal(r)
}
