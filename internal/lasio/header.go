// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package lasio implements the minimum LAS 1.2-1.4 reader the pipeline needs
// — header parsing, VLR discovery, and point-record decoding for formats
// 0,1,2,3,6,7. LAZ-compressed payloads are explicitly unsupported: that
// would require the external LASzip codec, out of scope here.
package lasio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"git.lukeshu.com/lastree/internal/geom"
)

// ErrLASZIP is returned by Open when the file's point-data-format flag
// indicates LAZ compression; decoding compressed payloads is out of scope.
var ErrLASZIP = fmt.Errorf("lasio: LAZ-compressed payloads are not supported (no LASzip codec); re-export as plain .las")

// VLR is one Variable Length Record from the header, preserved uninterpreted
// except where lasio itself consumes it (Extra-Bytes, record_id=4).
type VLR struct {
	UserID     string
	RecordID   uint16
	RecordLen  uint16
	Description string
	Data       []byte
}

// Header holds the subset of the LAS public header block the pipeline
// needs: bbox, scale/offset, point count, point format, and VLRs.
type Header struct {
	Min, Max     geom.Vector3
	Scale        geom.Vector3
	Offset       geom.Vector3
	NumPoints    int64
	PointFormat  int
	PointRecLen  int
	PointDataOff int64
	VLRs         []VLR
}

const publicHeaderBlockMinSize = 227

// headerLayout mirrors the fixed fields of the LAS 1.2-1.4 public header
// block that this reader actually consumes; everything else in the 227+
// byte block is skipped over.
type headerLayout struct {
	versionMajor, versionMinor uint8
	headerSize                 uint16
	offsetToPointData          uint32
	numVLR                     uint32
	pointDataFormatID          uint8
	pointDataRecordLen         uint16
	legacyNumPointRecords      uint32
	scale, offset              geom.Vector3
	max, min                   geom.Vector3
	// LAS 1.4 extension, read only when headerSize is at least 375
	numPointRecordsEx uint64
}

// Load reads and parses the LAS public header block and VLRs from path.
// The caller retains ownership of iterating point records via Open.
func Load(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return loadHeader(f, strings.HasSuffix(strings.ToLower(path), ".laz"))
}

func loadHeader(r io.ReadSeeker, isLAZHint bool) (*Header, error) {
	buf := make([]byte, publicHeaderBlockMinSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("lasio: reading header: %w", err)
	}
	if string(buf[0:4]) != "LASF" {
		return nil, fmt.Errorf("lasio: not a LAS file (bad magic %q)", buf[0:4])
	}

	var l headerLayout
	l.versionMajor = buf[24]
	l.versionMinor = buf[25]
	l.headerSize = binary.LittleEndian.Uint16(buf[94:96])
	l.offsetToPointData = binary.LittleEndian.Uint32(buf[96:100])
	l.numVLR = binary.LittleEndian.Uint32(buf[100:104])
	l.pointDataFormatID = buf[104]
	l.pointDataRecordLen = binary.LittleEndian.Uint16(buf[105:107])
	l.legacyNumPointRecords = binary.LittleEndian.Uint32(buf[107:111])
	l.scale = geom.Vector3{
		X: readF64(buf[131:139]), Y: readF64(buf[139:147]), Z: readF64(buf[147:155]),
	}
	l.offset = geom.Vector3{
		X: readF64(buf[155:163]), Y: readF64(buf[163:171]), Z: readF64(buf[171:179]),
	}
	l.max = geom.Vector3{X: readF64(buf[179:187]), Y: readF64(buf[195:203]), Z: readF64(buf[211:219])}
	l.min = geom.Vector3{X: readF64(buf[187:195]), Y: readF64(buf[203:211]), Z: readF64(buf[219:227])}

	pointFormat := int(l.pointDataFormatID & 0x7F) // high bit: compressed (LAZ) flag
	compressed := l.pointDataFormatID&0x80 != 0
	if compressed || isLAZHint {
		return nil, ErrLASZIP
	}
	switch pointFormat {
	case 0, 1, 2, 3, 6, 7:
	default:
		return nil, fmt.Errorf("lasio: unsupported LAS point format %d", pointFormat)
	}

	numPoints := int64(l.legacyNumPointRecords)
	if l.headerSize >= 375 {
		// LAS 1.4 public header block extends to 375 bytes; the extended
		// point count lives at a fixed offset within that tail.
		ext := make([]byte, int(l.headerSize)-publicHeaderBlockMinSize)
		if _, err := io.ReadFull(r, ext); err != nil {
			return nil, fmt.Errorf("lasio: reading LAS 1.4 header tail: %w", err)
		}
		const extNumPointRecordsOff = 247 - publicHeaderBlockMinSize
		if extNumPointRecordsOff >= 0 && extNumPointRecordsOff+8 <= len(ext) {
			n := binary.LittleEndian.Uint64(ext[extNumPointRecordsOff : extNumPointRecordsOff+8])
			if n > uint64(numPoints) {
				numPoints = int64(n)
			}
		}
	} else if l.headerSize > publicHeaderBlockMinSize {
		if _, err := r.Seek(int64(l.headerSize)-publicHeaderBlockMinSize, io.SeekCurrent); err != nil {
			return nil, err
		}
	}

	vlrs, err := readVLRs(r, int(l.numVLR))
	if err != nil {
		return nil, err
	}

	return &Header{
		Min: l.min, Max: l.max,
		Scale: l.scale, Offset: l.offset,
		NumPoints:    numPoints,
		PointFormat:  pointFormat,
		PointRecLen:  int(l.pointDataRecordLen),
		PointDataOff: int64(l.offsetToPointData),
		VLRs:         vlrs,
	}, nil
}

func readVLRs(r io.Reader, n int) ([]VLR, error) {
	vlrs := make([]VLR, 0, n)
	hdr := make([]byte, 54)
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(r, hdr); err != nil {
			return nil, fmt.Errorf("lasio: reading VLR %d header: %w", i, err)
		}
		v := VLR{
			UserID:      cString(hdr[2:18]),
			RecordID:    binary.LittleEndian.Uint16(hdr[18:20]),
			RecordLen:   binary.LittleEndian.Uint16(hdr[20:22]),
			Description: cString(hdr[22:54]),
		}
		v.Data = make([]byte, v.RecordLen)
		if _, err := io.ReadFull(r, v.Data); err != nil {
			return nil, fmt.Errorf("lasio: reading VLR %d body: %w", i, err)
		}
		vlrs = append(vlrs, v)
	}
	return vlrs, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimRight(string(b), " ")
}

func readF64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}
