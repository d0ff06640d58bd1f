// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package pointcloud

import (
	"encoding/binary"
	"fmt"
	"math"

	"git.lukeshu.com/lastree/internal/geom"
)

// Handler copies one attribute's value from src into dst at dstOff, and
// folds the value into stats's Min/Max/histogram. It is a pure function with
// no shared mutable state — per spec.md §4.5/§9, a table of these is built
// once after the schema is unified, replacing the source's lambdas that
// capture a node pointer.
type Handler func(dst []byte, dstOff int, src *SourcePoint, stats *Attribute)

// PositionHandler writes the point's quantized integer XYZ (under the given
// global scale/offset) as three little-endian int32s, and folds the
// world-space position into stats' Min/Max.
func PositionHandler(scale, offset geom.Vector3) Handler {
	return func(dst []byte, dstOff int, src *SourcePoint, stats *Attribute) {
		x := int32(math.Round((src.WorldX - offset.X) / scale.X))
		y := int32(math.Round((src.WorldY - offset.Y) / scale.Y))
		z := int32(math.Round((src.WorldZ - offset.Z) / scale.Z))
		binary.LittleEndian.PutUint32(dst[dstOff+0:], uint32(x))
		binary.LittleEndian.PutUint32(dst[dstOff+4:], uint32(y))
		binary.LittleEndian.PutUint32(dst[dstOff+8:], uint32(z))
		stats.UpdateVector3(geom.Vector3{X: src.WorldX, Y: src.WorldY, Z: src.WorldZ})
	}
}

func intensityHandler(dst []byte, dstOff int, src *SourcePoint, stats *Attribute) {
	binary.LittleEndian.PutUint16(dst[dstOff:], src.Intensity)
	stats.UpdateScalar(float64(src.Intensity))
}

func returnNumberHandler(dst []byte, dstOff int, src *SourcePoint, stats *Attribute) {
	dst[dstOff] = src.ReturnNumber
	stats.UpdateScalar(float64(src.ReturnNumber))
}

func numberOfReturnsHandler(dst []byte, dstOff int, src *SourcePoint, stats *Attribute) {
	dst[dstOff] = src.NumberOfReturns
	stats.UpdateScalar(float64(src.NumberOfReturns))
}

func classificationHandler(dst []byte, dstOff int, src *SourcePoint, stats *Attribute) {
	dst[dstOff] = uint8(src.Classification)
	stats.UpdateScalar(float64(src.Classification))
}

func scanAngleRankHandler(dst []byte, dstOff int, src *SourcePoint, stats *Attribute) {
	dst[dstOff] = byte(src.ScanAngleRank)
	stats.UpdateScalar(float64(src.ScanAngleRank))
}

func scanAngleHandler(dst []byte, dstOff int, src *SourcePoint, stats *Attribute) {
	binary.LittleEndian.PutUint16(dst[dstOff:], uint16(src.ScanAngle))
	stats.UpdateScalar(float64(src.ScanAngle))
}

func userDataHandler(dst []byte, dstOff int, src *SourcePoint, stats *Attribute) {
	dst[dstOff] = src.UserData
	stats.UpdateScalar(float64(src.UserData))
}

func pointSourceIDHandler(dst []byte, dstOff int, src *SourcePoint, stats *Attribute) {
	binary.LittleEndian.PutUint16(dst[dstOff:], src.PointSourceID)
	stats.UpdateScalar(float64(src.PointSourceID))
}

func gpsTimeHandler(dst []byte, dstOff int, src *SourcePoint, stats *Attribute) {
	binary.LittleEndian.PutUint64(dst[dstOff:], math.Float64bits(src.GPSTime))
	stats.UpdateScalar(src.GPSTime)
}

func classificationFlagsHandler(dst []byte, dstOff int, src *SourcePoint, stats *Attribute) {
	dst[dstOff] = src.ClassFlags
	stats.UpdateScalar(float64(src.ClassFlags))
}

func rgbHandler(dst []byte, dstOff int, src *SourcePoint, stats *Attribute) {
	binary.LittleEndian.PutUint16(dst[dstOff+0:], src.R)
	binary.LittleEndian.PutUint16(dst[dstOff+2:], src.G)
	binary.LittleEndian.PutUint16(dst[dstOff+4:], src.B)
	stats.UpdateVector3(geom.Vector3{X: float64(src.R), Y: float64(src.G), Z: float64(src.B)})
}

// standardHandlers maps the well-known LAS attribute names to their Handler,
// matching spec.md §4.5's enumerated list.
var standardHandlers = map[string]Handler{
	"intensity":            intensityHandler,
	"return number":        returnNumberHandler,
	"number of returns":    numberOfReturnsHandler,
	"classification":       classificationHandler,
	"scan angle rank":      scanAngleRankHandler,
	"scan angle":           scanAngleHandler,
	"user data":            userDataHandler,
	"point source id":      pointSourceIDHandler,
	"gps-time":             gpsTimeHandler,
	"classification flags": classificationFlagsHandler,
	"rgb":                  rgbHandler,
}

// IsStandardAttribute reports whether name has a built-in handler (i.e. is
// not an Extra-Bytes VLR attribute needing a generated handler).
func IsStandardAttribute(name string) bool {
	return standardHandlers[name] != nil
}

// ExtraByteHandler returns a Handler that copies numElements little-endian
// elements of the given type from the point's ExtraBytes at srcOffset,
// generated "by type + element count at scan time" per spec.md §4.5.
func ExtraByteHandler(srcOffset int, typ AttrType, numElements int) Handler {
	elemSize := typ.ElementSize()
	return func(dst []byte, dstOff int, src *SourcePoint, stats *Attribute) {
		for i := 0; i < numElements; i++ {
			so := srcOffset + i*elemSize
			do := dstOff + i*elemSize
			if so+elemSize > len(src.ExtraBytes) {
				continue
			}
			copy(dst[do:do+elemSize], src.ExtraBytes[so:so+elemSize])
			stats.UpdateScalar(decodeScalar(src.ExtraBytes[so:so+elemSize], typ))
		}
	}
}

func decodeScalar(raw []byte, typ AttrType) float64 {
	switch typ {
	case TypeI8:
		return float64(int8(raw[0]))
	case TypeU8:
		return float64(raw[0])
	case TypeI16:
		return float64(int16(binary.LittleEndian.Uint16(raw)))
	case TypeU16:
		return float64(binary.LittleEndian.Uint16(raw))
	case TypeI32:
		return float64(int32(binary.LittleEndian.Uint32(raw)))
	case TypeU32:
		return float64(binary.LittleEndian.Uint32(raw))
	case TypeI64:
		return float64(int64(binary.LittleEndian.Uint64(raw)))
	case TypeU64:
		return float64(binary.LittleEndian.Uint64(raw))
	case TypeF32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(raw)))
	case TypeF64:
		return math.Float64frombits(binary.LittleEndian.Uint64(raw))
	default:
		return 0
	}
}

// BuildHandlerTable resolves one Handler per schema entry. The position
// entry (always List[0]) gets posHandler; every other recognized name gets
// its standardHandlers entry; anything else must have an entry in extra
// (internal/convert builds it from the Extra-Bytes descriptors), or
// BuildHandlerTable errors.
func BuildHandlerTable(schema *Schema, posHandler Handler, extra map[string]Handler) ([]Handler, error) {
	handlers := make([]Handler, len(schema.List))
	for i, attr := range schema.List {
		switch {
		case i == 0:
			handlers[i] = posHandler
		case standardHandlers[attr.Name] != nil:
			handlers[i] = standardHandlers[attr.Name]
		case extra[attr.Name] != nil:
			handlers[i] = extra[attr.Name]
		default:
			return nil, fmt.Errorf("pointcloud: no attribute handler registered for %q", attr.Name)
		}
	}
	return handlers, nil
}
