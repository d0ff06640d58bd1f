// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package hierarchy

import (
	"fmt"
	"os"
	"path/filepath"

	"git.lukeshu.com/lastree/internal/binstruct"
)

// flushRecordSize is the on-disk width of one spilled-chunk descriptor
// under .hierarchyChunks/ (spec.md §6's --keep-chunks / --no-chunking
// flags imply chunk-level intermediates may be inspected or retained).
const flushRecordSize = 48

// flushRecord describes one chunk spilled to .hierarchyChunks/ while the
// hierarchy builder works through a dataset too large to keep every
// gathered chunk resident at once: enough to reopen and re-merge it
// without re-walking the octree.
type flushRecord struct {
	RootNameLen binstruct.U8    `bin:"off=0x0"`
	RootName    [23]byte        `bin:"off=0x1"`
	ByteOffset  binstruct.U64le `bin:"off=0x18"`
	ByteSize    binstruct.U64le `bin:"off=0x20"`
	NumNodes    binstruct.U64le `bin:"off=0x28"`
	binstruct.End `bin:"off=0x30"`
}

// SpillDir is the directory name the hierarchy builder uses for
// intermediate chunk spills, matching --keep-chunks's surfaced artifact
// name.
const SpillDir = ".hierarchyChunks"

// Spill writes one chunk's record bytes to its own file under dir/SpillDir,
// plus a flushRecord descriptor, so long-running builds can release the
// chunk's memory and reconstruct it later without re-walking the tree.
func Spill(dir string, c *chunk, recordBytes []byte) error {
	spillDir := filepath.Join(dir, SpillDir)
	if err := os.MkdirAll(spillDir, 0o755); err != nil {
		return fmt.Errorf("hierarchy: %w", err)
	}

	name := c.Root.Name
	descPath := filepath.Join(spillDir, name+".desc")
	dataPath := filepath.Join(spillDir, name+".chunk")

	if err := os.WriteFile(dataPath, recordBytes, 0o644); err != nil {
		return fmt.Errorf("hierarchy: spilling %s: %w", dataPath, err)
	}

	var nameBuf [23]byte
	n := copy(nameBuf[:], name)
	rec := flushRecord{
		RootNameLen: binstruct.U8(n),
		RootName:    nameBuf,
		ByteOffset:  binstruct.U64le(c.ByteOffset),
		ByteSize:    binstruct.U64le(c.ByteSize),
		NumNodes:    binstruct.U64le(len(c.Nodes)),
	}
	dat, err := binstruct.Marshal(rec)
	if err != nil {
		return fmt.Errorf("hierarchy: encoding spill descriptor: %w", err)
	}
	if err := os.WriteFile(descPath, dat, 0o644); err != nil {
		return fmt.Errorf("hierarchy: writing %s: %w", descPath, err)
	}
	return nil
}
