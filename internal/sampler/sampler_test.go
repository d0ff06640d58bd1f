// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package sampler_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/lastree/internal/geom"
	"git.lukeshu.com/lastree/internal/pointcloud"
	"git.lukeshu.com/lastree/internal/sampler"
)

func xyzSchema() *pointcloud.Schema {
	s := &pointcloud.Schema{PosScale: geom.Vector3{X: 1, Y: 1, Z: 1}}
	s.Append(pointcloud.NewAttribute("position", 3, 4, pointcloud.TypeI32))
	return s
}

func encodePoint(x, y, z int32) []byte {
	rec := make([]byte, 12)
	binary.LittleEndian.PutUint32(rec[0:], uint32(x))
	binary.LittleEndian.PutUint32(rec[4:], uint32(y))
	binary.LittleEndian.PutUint32(rec[8:], uint32(z))
	return rec
}

// eightCorners builds a level-0 parent over a unit cube with one child per
// octant, each holding a single point at its own corner — the standard
// "8 corners" fixture for exercising the sampler's pool/accept/reject/hoist
// cycle without needing real LAS data.
func eightCorners(t *testing.T, schema *pointcloud.Schema) *pointcloud.Node {
	t.Helper()
	root := pointcloud.NewNode("r", geom.BoundingBox{Max: geom.Vector3{X: 100, Y: 100, Z: 100}})
	corners := [8][3]int32{
		{0, 0, 0}, {99, 0, 0}, {0, 99, 0}, {99, 99, 0},
		{0, 0, 99}, {99, 0, 99}, {0, 99, 99}, {99, 99, 99},
	}
	for i, c := range corners {
		child := root.ExpandTo("r" + string(rune('0'+i)))
		child.Points = encodePoint(c[0], c[1], c[2])
		child.NumPoints = 1
	}
	return root
}

func TestPoissonAcceptsWidelySpacedCorners(t *testing.T) {
	t.Parallel()
	schema := xyzSchema()
	root := eightCorners(t, schema)

	payload := sampler.Poisson(root, schema, sampler.BaseSpacing)

	// Corners of a 100-unit cube are far apart relative to BaseSpacing at
	// level 0, so every point is promoted to the root in one pass.
	assert.Equal(t, int64(8), root.NumPoints)
	assert.Equal(t, 8*12, len(payload))
	assert.True(t, root.Sampled)

	// Every child was fully drained and hoisted away.
	assert.Equal(t, uint8(0), root.ChildMask)
	for _, c := range root.Children {
		assert.Nil(t, c)
	}
}

func TestRandomPreservesTotalPointCount(t *testing.T) {
	t.Parallel()
	schema := xyzSchema()
	root := eightCorners(t, schema)

	payload := sampler.Random(root, schema)

	accepted := int64(len(payload)) / 12
	assert.Equal(t, accepted, root.NumPoints)
	assert.True(t, root.Sampled)

	// Whatever wasn't accepted at the root must still be accounted for in
	// a (possibly hoisted) child, never silently dropped.
	var remaining int64
	for _, c := range root.Children {
		if c != nil {
			remaining += c.NumPoints
		}
	}
	assert.Equal(t, int64(8), accepted+remaining)
}

func TestPoissonRetainsInnerChildWithEmptyPayload(t *testing.T) {
	t.Parallel()
	schema := xyzSchema()
	root := pointcloud.NewNode("r", geom.BoundingBox{Max: geom.Vector3{X: 100, Y: 100, Z: 100}})

	// A single child that itself has a grandchild (so it's not a leaf):
	// after sampling, it must be retained (not hoisted) even if every one
	// of its points got promoted, since hoisting would discard its
	// subtree's structure.
	mid := root.ExpandTo("r0")
	leaf := root.ExpandTo("r00")
	leaf.Points = encodePoint(1, 1, 1)
	leaf.NumPoints = 1
	mid.Points = encodePoint(50, 50, 50)
	mid.NumPoints = 1

	require.NotNil(t, mid)
	require.NotNil(t, leaf)
	sampler.Poisson(root, schema, sampler.BaseSpacing)

	assert.NotNil(t, root.Children[0], "non-leaf child with no remaining points is retained, not hoisted")
}
