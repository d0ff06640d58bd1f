// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/lastree/internal/geom"
	"git.lukeshu.com/lastree/internal/lasio"
	"git.lukeshu.com/lastree/internal/pointcloud"
)

func posAttr() pointcloud.Attribute {
	return pointcloud.NewAttribute("position", 3, 4, pointcloud.TypeI32)
}

func intensityAttr() pointcloud.Attribute {
	return pointcloud.NewAttribute("intensity", 1, 2, pointcloud.TypeU16)
}

func TestUnifyGrowsUnionBBoxToACube(t *testing.T) {
	t.Parallel()
	sources := []Source{
		{
			Path:       "a.las",
			Header:     &lasio.Header{Scale: geom.Vector3{X: 0.01, Y: 0.01, Z: 0.01}},
			Attributes: []pointcloud.Attribute{posAttr()},
			BBox:       geom.BoundingBox{Min: geom.Vector3{X: 0, Y: 0, Z: 0}, Max: geom.Vector3{X: 10, Y: 10, Z: 10}},
			NumPoints:  100,
		},
		{
			Path:       "b.las",
			Header:     &lasio.Header{Scale: geom.Vector3{X: 0.01, Y: 0.01, Z: 0.01}},
			Attributes: []pointcloud.Attribute{posAttr(), intensityAttr()},
			BBox:       geom.BoundingBox{Min: geom.Vector3{X: -5, Y: 0, Z: 0}, Max: geom.Vector3{X: 10, Y: 40, Z: 10}},
			NumPoints:  50,
		},
	}

	result, err := unify(sources, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(150), result.NumPoints)
	assert.Equal(t, geom.Vector3{X: -5, Y: 0, Z: 0}, result.RawBBox.Min)
	assert.Equal(t, geom.Vector3{X: 10, Y: 40, Z: 10}, result.RawBBox.Max)

	// Cube() anchors at Min and sizes every axis to the longest one (Y: 40).
	assert.Equal(t, result.RawBBox.Min, result.BBox.Min)
	size := result.BBox.Size()
	assert.Equal(t, size.X, size.Y)
	assert.Equal(t, size.Y, size.Z)
	assert.Equal(t, 40.0, size.X)

	// Position stays List[0]; intensity, only declared by source b, is
	// still folded into the unified schema.
	require.Len(t, result.Schema.List, 2)
	assert.Equal(t, "position", result.Schema.List[0].Name)
	assert.Equal(t, "intensity", result.Schema.List[1].Name)
	assert.Equal(t, geom.Vector3{X: -5, Y: 0, Z: 0}, result.Schema.PosOffset)
}

func TestUnifyRejectsMissingPositionAttribute(t *testing.T) {
	t.Parallel()
	sources := []Source{
		{
			Header:     &lasio.Header{},
			Attributes: []pointcloud.Attribute{intensityAttr()},
			BBox:       geom.BoundingBox{Max: geom.Vector3{X: 1, Y: 1, Z: 1}},
			NumPoints:  1,
		},
	}
	_, err := unify(sources, nil)
	assert.Error(t, err)
}

func TestUnifyRejectsZeroSizeAxis(t *testing.T) {
	t.Parallel()
	sources := []Source{
		{
			Header:     &lasio.Header{},
			Attributes: []pointcloud.Attribute{posAttr()},
			BBox:       geom.BoundingBox{Min: geom.Vector3{X: 0, Y: 0, Z: 0}, Max: geom.Vector3{X: 0, Y: 10, Z: 10}},
			NumPoints:  1,
		},
	}
	_, err := unify(sources, nil)
	assert.Error(t, err)
}

func TestFilterSchemaKeepsPositionAndRequested(t *testing.T) {
	t.Parallel()
	in := pointcloud.Schema{List: []pointcloud.Attribute{posAttr(), intensityAttr(), pointcloud.NewAttribute("classification", 1, 1, pointcloud.TypeU8)}}

	out := filterSchema(in, []string{"classification"})
	require.Len(t, out.List, 2)
	assert.Equal(t, "position", out.List[0].Name)
	assert.Equal(t, "classification", out.List[1].Name)
}

func TestReorderPositionFirst(t *testing.T) {
	t.Parallel()
	s := pointcloud.Schema{List: []pointcloud.Attribute{intensityAttr(), posAttr()}}
	reorderPositionFirst(&s)
	assert.Equal(t, "position", s.List[0].Name)
	assert.Equal(t, "intensity", s.List[1].Name)
}
