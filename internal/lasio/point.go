// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package lasio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"git.lukeshu.com/lastree/internal/pointcloud"
)

// Reader iterates over the point records of one LAS file, decoding each
// into a pointcloud.SourcePoint. It is not safe for concurrent use; callers
// needing parallelism open one Reader per goroutine (spec.md §4.2 scans
// files in parallel, not records within a file).
type Reader struct {
	f      *os.File
	br     *bufio.Reader
	Header *Header

	recLen int
	format int
	rawBuf []byte
}

// Open opens path, parses its header, and seeks to the first point record.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	hdr, err := loadHeaderAt(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(hdr.PointDataOff, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{
		f:      f,
		br:     bufio.NewReaderSize(f, 1<<20),
		Header: hdr,
		recLen: hdr.PointRecLen,
		format: hdr.PointFormat,
		rawBuf: make([]byte, hdr.PointRecLen),
	}, nil
}

func loadHeaderAt(f *os.File, path string) (*Header, error) {
	hasLAZSuffix := len(path) >= 4 && (path[len(path)-4:] == ".laz" || path[len(path)-4:] == ".LAZ")
	return loadHeader(f, hasLAZSuffix)
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}

// Next decodes the next point record, or returns io.EOF once exhausted.
func (r *Reader) Next() (pointcloud.SourcePoint, error) {
	var pt pointcloud.SourcePoint
	if _, err := io.ReadFull(r.br, r.rawBuf); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return pt, err
	}
	if err := decodePoint(r.rawBuf, r.format, r.Header, &pt); err != nil {
		return pt, err
	}
	return pt, nil
}

// decodePoint fills pt from raw according to format, following the LAS
// 1.2-1.4 point data record layouts (formats 0,1,2,3,6,7). The leading 20,
// 28, 26 or 34 bytes (formats 0, 1, 2, 3) or 30 or 36 bytes (formats 6, 7)
// are the fixed fields; anything beyond that, up to Header.PointRecLen, is
// ExtraBytes.
func decodePoint(raw []byte, format int, hdr *Header, pt *pointcloud.SourcePoint) error {
	if len(raw) < 20 {
		return fmt.Errorf("lasio: point record too short (%d bytes)", len(raw))
	}
	x := int32(binary.LittleEndian.Uint32(raw[0:4]))
	y := int32(binary.LittleEndian.Uint32(raw[4:8]))
	z := int32(binary.LittleEndian.Uint32(raw[8:12]))
	pt.WorldX = float64(x)*hdr.Scale.X + hdr.Offset.X
	pt.WorldY = float64(y)*hdr.Scale.Y + hdr.Offset.Y
	pt.WorldZ = float64(z)*hdr.Scale.Z + hdr.Offset.Z
	pt.Intensity = binary.LittleEndian.Uint16(raw[12:14])

	var fixedLen int
	switch format {
	case 0, 1, 2, 3:
		bits := raw[14]
		pt.ReturnNumber = bits & 0x07
		pt.NumberOfReturns = (bits >> 3) & 0x07
		pt.Classification = uint16(raw[15] & 0x1F)
		pt.ScanAngleRank = int8(raw[16])
		pt.UserData = raw[17]
		pt.PointSourceID = binary.LittleEndian.Uint16(raw[18:20])
		fixedLen = 20
		off := 20
		if format == 1 || format == 3 {
			if len(raw) < off+8 {
				return fmt.Errorf("lasio: point record too short for format %d GPS time", format)
			}
			pt.GPSTime = readF64(raw[off : off+8])
			off += 8
			fixedLen = off
		}
		if format == 2 || format == 3 {
			if len(raw) < off+6 {
				return fmt.Errorf("lasio: point record too short for format %d RGB", format)
			}
			pt.R = binary.LittleEndian.Uint16(raw[off : off+2])
			pt.G = binary.LittleEndian.Uint16(raw[off+2 : off+4])
			pt.B = binary.LittleEndian.Uint16(raw[off+4 : off+6])
			off += 6
			fixedLen = off
		}
	case 6, 7:
		if len(raw) < 30 {
			return fmt.Errorf("lasio: point record too short for format %d (%d bytes)", format, len(raw))
		}
		retBits := raw[14]
		pt.ReturnNumber = retBits & 0x0F
		pt.NumberOfReturns = (retBits >> 4) & 0x0F
		flagBits := raw[15]
		pt.ClassFlags = flagBits & 0x0F
		// scanner channel (bits 4-5) and scan direction/edge-of-line flags
		// (bits 6-7) are not separately modeled; spec's attribute set has
		// no slot for them.
		pt.Classification = uint16(raw[16])
		pt.UserData = raw[17]
		pt.ScanAngle = int16(binary.LittleEndian.Uint16(raw[18:20]))
		pt.PointSourceID = binary.LittleEndian.Uint16(raw[20:22])
		pt.GPSTime = readF64(raw[22:30])
		fixedLen = 30
		if format == 7 {
			if len(raw) < 36 {
				return fmt.Errorf("lasio: point record too short for format 7 RGB")
			}
			pt.R = binary.LittleEndian.Uint16(raw[30:32])
			pt.G = binary.LittleEndian.Uint16(raw[32:34])
			pt.B = binary.LittleEndian.Uint16(raw[34:36])
			fixedLen = 36
		}
	default:
		return fmt.Errorf("lasio: unsupported point format %d", format)
	}

	if len(raw) > fixedLen {
		pt.ExtraBytes = raw[fixedLen:]
	}
	return nil
}
