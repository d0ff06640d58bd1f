// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package pointcloud

// SourcePoint is one decoded LAS/LAZ point, in the units the format uses
// (world-space double position, raw attribute values). internal/lasio
// produces these; internal/pointcloud's attribute handlers (below) consume
// them to fill an output point record under the unified Schema.
type SourcePoint struct {
	WorldX, WorldY, WorldZ float64

	Intensity       uint16
	ReturnNumber    uint8
	NumberOfReturns uint8
	Classification  uint16 // widened to carry the extended (format 6/7) range
	ScanAngleRank   int8   // formats 0-5
	ScanAngle       int16  // formats 6/7, units of 0.006 degrees
	UserData        uint8
	PointSourceID   uint16
	GPSTime         float64
	ClassFlags      uint8
	R, G, B         uint16

	// ExtraBytes is the raw tail of the point record beyond the standard
	// fields, as described by the file's Extra-Bytes VLR (spec.md §4.1).
	ExtraBytes []byte
}
