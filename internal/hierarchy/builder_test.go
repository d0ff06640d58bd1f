// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package hierarchy

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/lastree/internal/geom"
	"git.lukeshu.com/lastree/internal/pointcloud"
)

// straightChain builds a single-octant chain "r" -> "r0" -> ... down to
// depth levels below root, so gather() is forced to split it into a root
// chunk plus one frontier chunk (StepSize == 4) carrying a genuine PROXY
// record.
func straightChain(depth int) *pointcloud.Node {
	root := pointcloud.NewNode("r", geom.BoundingBox{Max: geom.Vector3{X: 1, Y: 1, Z: 1}})
	name := "r"
	for i := 0; i < depth; i++ {
		name += "0"
		root.ExpandTo(name)
	}
	return root
}

func TestBuildSplitsAtStepSize(t *testing.T) {
	root := straightChain(StepSize + 1)

	out, stats, err := Build(root, "")
	require.NoError(t, err)

	// Root chunk: levels 0..StepSize inclusive == StepSize+1 nodes; frontier
	// chunk: the one remaining node at level StepSize+1.
	assert.Equal(t, int64((StepSize+1)*recordSize), stats.FirstChunkSize)
	assert.Equal(t, StepSize, stats.StepSize)
	assert.Equal(t, 2, stats.Depth)
	if t.Failed() {
		t.Logf("hierarchy bytes:\n%s", spew.Sdump(out))
	}

	frontierName := "r"
	for i := 0; i < StepSize; i++ {
		frontierName += "0"
	}
	frontierRoot := root.Find(frontierName)
	require.NotNil(t, frontierRoot)
	assert.Equal(t, pointcloud.NodeNormal, frontierRoot.Type, "frontier chunk root keeps its real type inside its own chunk")

	// The root chunk's own record for frontierRoot must have been rewritten
	// to PROXY (spec.md §4.11).
	rootChunkBytes := out[:stats.FirstChunkSize]
	proxyTypeByte := rootChunkBytes[(StepSize)*recordSize]
	assert.Equal(t, byte(pointcloud.NodeProxy), proxyTypeByte)
}

func TestDepthSingleChunk(t *testing.T) {
	root := straightChain(1)
	assert.Equal(t, 1, Depth(root))
}
