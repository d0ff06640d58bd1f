// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package lasio

import (
	"encoding/binary"
	"fmt"
	"math"

	"git.lukeshu.com/lastree/internal/pointcloud"
)

const extraBytesRecordID = 4
const extraBytesRecordSize = 192

// extraAttrTypeMapping mirrors the LAS Extra-Bytes "data_type" field
// (1..30): 1-10 scalar, 11-20 2-element, 21-30 3-element, each decade
// cycling {u8,i8,u16,i16,u32,i32,u64,i64,f32,f64}.
func extraAttrTypeMapping(typeID uint8) (pointcloud.AttrType, int, error) {
	if typeID == 0 || typeID > 30 {
		return pointcloud.TypeUndefined, 0, fmt.Errorf("lasio: unsupported extra-bytes type id %d", typeID)
	}
	base := []pointcloud.AttrType{
		pointcloud.TypeU8, pointcloud.TypeI8, pointcloud.TypeU16, pointcloud.TypeI16,
		pointcloud.TypeU32, pointcloud.TypeI32, pointcloud.TypeU64, pointcloud.TypeI64,
		pointcloud.TypeF32, pointcloud.TypeF64,
	}
	idx := (int(typeID) - 1) % 10
	numElements := (int(typeID)-1)/10 + 1
	return base[idx], numElements, nil
}

// ParseExtraAttributes decodes the Extra-Bytes VLR (record_id=4), 192 bytes
// per described attribute, into output Attribute entries.
func ParseExtraAttributes(hdr *Header) ([]pointcloud.Attribute, error) {
	var out []pointcloud.Attribute
	for _, vlr := range hdr.VLRs {
		if vlr.RecordID != extraBytesRecordID {
			continue
		}
		n := len(vlr.Data) / extraBytesRecordSize
		for i := 0; i < n; i++ {
			off := i * extraBytesRecordSize
			rec := vlr.Data[off : off+extraBytesRecordSize]

			typeID := rec[2]
			options := rec[3]
			name := cStringBytes(rec[4:36])
			if name == "" {
				continue
			}
			description := cStringBytes(rec[160:192])

			typ, numElements, err := extraAttrTypeMapping(typeID)
			if err != nil {
				return nil, err
			}
			elemSize := typ.ElementSize()
			attr := pointcloud.NewAttribute(name, numElements, elemSize, typ)
			attr.Description = description

			if options&0b01000 != 0 {
				attr.Scale.X = math.Float64frombits(binary.LittleEndian.Uint64(rec[112:120]))
				attr.Scale.Y = math.Float64frombits(binary.LittleEndian.Uint64(rec[120:128]))
				attr.Scale.Z = math.Float64frombits(binary.LittleEndian.Uint64(rec[128:136]))
			}
			if options&0b10000 != 0 {
				attr.Offset.X = math.Float64frombits(binary.LittleEndian.Uint64(rec[136:144]))
				attr.Offset.Y = math.Float64frombits(binary.LittleEndian.Uint64(rec[144:152]))
				attr.Offset.Z = math.Float64frombits(binary.LittleEndian.Uint64(rec[152:160]))
			}
			out = append(out, attr)
		}
	}
	return out, nil
}

func cStringBytes(b []byte) string {
	for i, c := range b {
		if c == 0 {
			b = b[:i]
			break
		}
	}
	return string(b)
}

// standardAttributesFor returns the fixed (non-extra) attribute list for a
// given LAS point format, matching the per-format field sets a LAS 1.2-1.4
// reader exposes (spec.md §3, §4.1).
func standardAttributesFor(format int) ([]pointcloud.Attribute, error) {
	position := pointcloud.NewAttribute("position", 3, 4, pointcloud.TypeI32)
	intensity := pointcloud.NewAttribute("intensity", 1, 2, pointcloud.TypeU16)
	returnNumber := pointcloud.NewAttribute("return number", 1, 1, pointcloud.TypeU8)
	numberOfReturns := pointcloud.NewAttribute("number of returns", 1, 1, pointcloud.TypeU8)
	classification := pointcloud.NewAttribute("classification", 1, 1, pointcloud.TypeU8)
	scanAngleRank := pointcloud.NewAttribute("scan angle rank", 1, 1, pointcloud.TypeU8)
	userData := pointcloud.NewAttribute("user data", 1, 1, pointcloud.TypeU8)
	pointSourceID := pointcloud.NewAttribute("point source id", 1, 2, pointcloud.TypeU16)
	gpsTime := pointcloud.NewAttribute("gps-time", 1, 8, pointcloud.TypeF64)
	rgb := pointcloud.NewAttribute("rgb", 3, 2, pointcloud.TypeU16)
	classificationFlags := pointcloud.NewAttribute("classification flags", 1, 1, pointcloud.TypeU8)
	scanAngle := pointcloud.NewAttribute("scan angle", 1, 2, pointcloud.TypeI16)

	switch format {
	case 0:
		return []pointcloud.Attribute{position, intensity, returnNumber, numberOfReturns, classification, scanAngleRank, userData, pointSourceID}, nil
	case 1:
		return []pointcloud.Attribute{position, intensity, returnNumber, numberOfReturns, classification, scanAngleRank, userData, pointSourceID, gpsTime}, nil
	case 2:
		return []pointcloud.Attribute{position, intensity, returnNumber, numberOfReturns, classification, scanAngleRank, userData, pointSourceID, rgb}, nil
	case 3:
		return []pointcloud.Attribute{position, intensity, returnNumber, numberOfReturns, classification, scanAngleRank, userData, pointSourceID, gpsTime, rgb}, nil
	case 6:
		return []pointcloud.Attribute{position, intensity, returnNumber, numberOfReturns, classificationFlags, classification, userData, scanAngle, pointSourceID, gpsTime}, nil
	case 7:
		return []pointcloud.Attribute{position, intensity, returnNumber, numberOfReturns, classificationFlags, classification, userData, scanAngle, pointSourceID, gpsTime, rgb}, nil
	default:
		return nil, fmt.Errorf("lasio: unsupported LAS point format %d", format)
	}
}

// ComputeOutputAttributes returns the full attribute list — standard fields
// for the header's point format, plus any Extra-Bytes attributes — in the
// file's own on-disk order (spec.md §3's per-source attribute list, before
// cross-source unification in internal/scanner).
func ComputeOutputAttributes(hdr *Header) ([]pointcloud.Attribute, error) {
	list, err := standardAttributesFor(hdr.PointFormat)
	if err != nil {
		return nil, err
	}
	extra, err := ParseExtraAttributes(hdr)
	if err != nil {
		return nil, err
	}
	return append(list, extra...), nil
}
