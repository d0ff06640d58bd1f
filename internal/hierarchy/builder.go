// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package hierarchy

import (
	"fmt"

	"git.lukeshu.com/lastree/internal/pointcloud"
)

// chunk is one depth-StepSize gather of the octree, rooted at Root (which
// may be the tree root or any node exactly StepSize levels below a
// previous chunk's root).
type chunk struct {
	Root  *pointcloud.Node
	Nodes []*pointcloud.Node // breadth-first-then-name order
	// Children holds, for each node in Nodes that is exactly StepSize
	// levels below Root, the chunk gathered from it (proxy target).
	Children map[*pointcloud.Node]*chunk

	ByteOffset int64
	ByteSize   int64
}

// Depth returns how many levels of chunks are needed; it becomes
// metadata.Build's hierarchy.depth field through Stats.Depth.
func Depth(root *pointcloud.Node) int {
	max := 0
	root.Traverse(func(n *pointcloud.Node, level int) {
		if level > max {
			max = level
		}
	})
	return max/StepSize + 1
}

// gather collects root and its descendants up to depth StepSize (relative
// to root), stopping the recursion at nodes exactly StepSize levels down
// (those become Children entries, recursively gathered into child
// chunks), per spec.md §4.11.
func gather(root *pointcloud.Node) *chunk {
	c := &chunk{Root: root, Children: make(map[*pointcloud.Node]*chunk)}
	rootLevel := root.Level()

	var walk func(n *pointcloud.Node)
	walk = func(n *pointcloud.Node) {
		c.Nodes = append(c.Nodes, n)
		if n.Level()-rootLevel >= StepSize {
			return
		}
		for _, child := range n.Children {
			if child != nil {
				walk(child)
			}
		}
	}
	walk(root)

	for _, n := range c.Nodes {
		if n.Level()-rootLevel == StepSize && !n.IsLeaf() {
			c.Children[n] = gather(n)
		}
	}

	pointcloud.SortByBreadth(c.Nodes)
	c.ByteSize = int64(recordSize * len(c.Nodes))
	return c
}

// Build converts root into the flat hierarchy.bin byte image. The root
// chunk occupies the first FirstChunkSize bytes (spec.md §6: "First chunk
// (bytes 0 .. firstChunkSize-1) is the root chunk; subsequent chunks start
// immediately afterward"), so a reader can load it without knowing any
// other offset; every other chunk is then laid out immediately after it in
// gather order, and is reached through the PROXY records its parent chunk
// holds. When spillDir is
// non-empty, every non-root chunk's own byte image is additionally written
// under spillDir via Spill, giving --keep-chunks a per-chunk on-disk
// artifact independent of the final consolidated hierarchy.bin (spec.md
// §6's on-disk chunk-flusher format).
func Build(root *pointcloud.Node, spillDir string) ([]byte, *Stats, error) {
	rootChunk := gather(root)

	rootChunk.ByteOffset = 0
	offset := rootChunk.ByteSize
	order := []*chunk{rootChunk}
	var assign func(c *chunk)
	assign = func(c *chunk) {
		for _, child := range c.Children {
			child.ByteOffset = offset
			offset += child.ByteSize
			order = append(order, child)
			assign(child)
		}
	}
	assign(rootChunk)

	out := make([]byte, offset)
	for _, c := range order {
		if err := encodeChunk(c, out); err != nil {
			return nil, nil, fmt.Errorf("hierarchy: %w", err)
		}
	}

	if spillDir != "" {
		for _, c := range order {
			if c == rootChunk {
				continue
			}
			if err := Spill(spillDir, c, out[c.ByteOffset:c.ByteOffset+c.ByteSize]); err != nil {
				return nil, nil, err
			}
		}
	}

	stats := &Stats{
		FirstChunkSize: rootChunk.ByteSize,
		StepSize:       StepSize,
		Depth:          Depth(root),
	}
	return out, stats, nil
}

// Stats feeds internal/metadata's `hierarchy` document field.
type Stats struct {
	FirstChunkSize int64
	StepSize       int
	Depth          int
}

func encodeChunk(c *chunk, out []byte) error {
	pos := c.ByteOffset
	for _, n := range c.Nodes {
		typ := n.Type
		byteOffset := n.ByteOffset
		byteSize := n.ByteSize

		if child, isProxyRoot := c.Children[n]; isProxyRoot {
			// This node's subtree lives in a separately-gathered chunk:
			// serialize it as PROXY pointing at that chunk, UNLESS this
			// very record sits inside the chunk where the referent lives
			// (can't happen here since Children always point to a
			// different chunk than c, but kept for clarity with spec.md
			// §4.11's "except that a PROXY node embedded in the chunk
			// where its referent actually lives is serialized as NORMAL").
			typ = pointcloud.NodeProxy
			byteOffset = child.ByteOffset
			byteSize = child.ByteSize
		}

		rec, err := encodeRecord(n, typ, byteOffset, byteSize)
		if err != nil {
			return err
		}
		copy(out[pos:pos+recordSize], rec)
		pos += recordSize
	}
	return nil
}
