// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package convert_test

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/lastree/internal/convert"
	"git.lukeshu.com/lastree/internal/metadata"
)

const headerSize = 227
const pointRecLen = 20 // format 0, no extra bytes

// writeLAS hand-assembles a minimal LAS 1.2, point-format-0 file: just
// enough of the public header block for internal/lasio to parse (spec.md
// §4.2), followed by fixed-length point records at (x,y,z) world
// coordinates encoded with the given scale/offset.
func writeLAS(t *testing.T, path string, scale, offset [3]float64, pts [][3]float64) {
	t.Helper()

	var minX, minY, minZ = math.Inf(1), math.Inf(1), math.Inf(1)
	var maxX, maxY, maxZ = math.Inf(-1), math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX, maxX = math.Min(minX, p[0]), math.Max(maxX, p[0])
		minY, maxY = math.Min(minY, p[1]), math.Max(maxY, p[1])
		minZ, maxZ = math.Min(minZ, p[2]), math.Max(maxZ, p[2])
	}

	buf := make([]byte, headerSize)
	copy(buf[0:4], "LASF")
	buf[24] = 1 // version major
	buf[25] = 2 // version minor
	binary.LittleEndian.PutUint16(buf[94:96], headerSize)
	binary.LittleEndian.PutUint32(buf[96:100], headerSize) // offset to point data: no VLRs
	binary.LittleEndian.PutUint32(buf[100:104], 0)          // numVLR
	buf[104] = 0                                            // point format 0
	binary.LittleEndian.PutUint16(buf[105:107], pointRecLen)
	binary.LittleEndian.PutUint32(buf[107:111], uint32(len(pts)))
	putF64 := func(off int, v float64) {
		binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(v))
	}
	putF64(131, scale[0])
	putF64(139, scale[1])
	putF64(147, scale[2])
	putF64(155, offset[0])
	putF64(163, offset[1])
	putF64(171, offset[2])
	putF64(179, maxX)
	putF64(187, minX)
	putF64(195, maxY)
	putF64(203, minY)
	putF64(211, maxZ)
	putF64(219, minZ)

	for _, p := range pts {
		rec := make([]byte, pointRecLen)
		ix := int32(math.Round((p[0] - offset[0]) / scale[0]))
		iy := int32(math.Round((p[1] - offset[1]) / scale[1]))
		iz := int32(math.Round((p[2] - offset[2]) / scale[2]))
		binary.LittleEndian.PutUint32(rec[0:4], uint32(ix))
		binary.LittleEndian.PutUint32(rec[4:8], uint32(iy))
		binary.LittleEndian.PutUint32(rec[8:12], uint32(iz))
		binary.LittleEndian.PutUint16(rec[12:14], 100) // intensity
		// rec[14] return-number/number-of-returns bits, rec[15] classification,
		// rec[16] scan angle rank, rec[17] user data, rec[18:20] point source id
		// are all left zero — none of the assertions below depend on them.
		buf = append(buf, rec...)
	}

	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

// eightCornersAndCenter is the Scenario-A-style fixture from spec.md §8: a
// cube's 8 corners plus its center. Nine points are far below the chunk
// limit, so they all stay in the single root node and no sampling runs.
func eightCornersAndCenter() [][3]float64 {
	return [][3]float64{
		{0, 0, 0}, {100, 0, 0}, {0, 100, 0}, {100, 100, 0},
		{0, 0, 100}, {100, 0, 100}, {0, 100, 100}, {100, 100, 100},
		{50, 50, 50},
	}
}

func TestRunProducesCompleteOutput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	lasPath := filepath.Join(dir, "source.las")
	writeLAS(t, lasPath, [3]float64{0.001, 0.001, 0.001}, [3]float64{0, 0, 0}, eightCornersAndCenter())

	outDir := filepath.Join(dir, "out")
	err := convert.Run(dlog.NewTestContext(t, true), convert.Options{
		Sources:  []string{lasPath},
		OutDir:   outDir,
		Name:     "test-cloud",
		Method:   convert.MethodPoisson,
		Encoding: metadata.EncodingUncompressed,
	})
	require.NoError(t, err)

	for _, name := range []string{"octree.bin", "hierarchy.bin", "metadata.json"} {
		info, statErr := os.Stat(filepath.Join(outDir, name))
		require.NoError(t, statErr, "expected %s to exist", name)
		assert.Greater(t, info.Size(), int64(0), "%s must not be empty", name)
	}

	// Chunk files are intermediate and must be cleaned up once KeepChunks
	// is false (the default), per spec.md's fresh-output-directory model.
	_, err = os.Stat(filepath.Join(outDir, "chunks"))
	assert.True(t, os.IsNotExist(err), "chunks/ must be removed after a default run")

	raw, err := os.ReadFile(filepath.Join(outDir, "metadata.json"))
	require.NoError(t, err)
	var doc metadata.Document
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "test-cloud", doc.Name)
	assert.Equal(t, int64(9), doc.Points)
	assert.Equal(t, metadata.EncodingUncompressed, doc.Encoding)
	require.NotEmpty(t, doc.Attributes)
	assert.Equal(t, "position", doc.Attributes[0].Name)
}

func TestRunKeepChunksRetainsIntermediateFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	lasPath := filepath.Join(dir, "source.las")
	writeLAS(t, lasPath, [3]float64{0.001, 0.001, 0.001}, [3]float64{0, 0, 0}, eightCornersAndCenter())

	outDir := filepath.Join(dir, "out")
	err := convert.Run(dlog.NewTestContext(t, true), convert.Options{
		Sources:    []string{lasPath},
		OutDir:     outDir,
		Name:       "kept",
		Method:     convert.MethodRandom,
		Encoding:   metadata.EncodingDefault,
		KeepChunks: true,
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(outDir, "chunks"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "chunk files must survive when --keep-chunks is set")
}

func TestRunNoIndexingStopsAfterChunking(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	lasPath := filepath.Join(dir, "source.las")
	writeLAS(t, lasPath, [3]float64{0.001, 0.001, 0.001}, [3]float64{0, 0, 0}, eightCornersAndCenter())

	outDir := filepath.Join(dir, "out")
	err := convert.Run(dlog.NewTestContext(t, true), convert.Options{
		Sources:    []string{lasPath},
		OutDir:     outDir,
		Name:       "partial",
		Method:     convert.MethodPoisson,
		Encoding:   metadata.EncodingUncompressed,
		NoIndexing: true,
	})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(outDir, "chunks"))
	require.NoError(t, err, "chunk files must be kept when --no-indexing stops the pipeline early")

	for _, name := range []string{"octree.bin", "hierarchy.bin", "metadata.json"} {
		_, statErr := os.Stat(filepath.Join(outDir, name))
		assert.True(t, os.IsNotExist(statErr), "%s must not be produced by a --no-indexing run", name)
	}
}

func TestRunUnifiesMultipleSources(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.las")
	bPath := filepath.Join(dir, "b.las")
	writeLAS(t, aPath, [3]float64{0.001, 0.001, 0.001}, [3]float64{0, 0, 0}, [][3]float64{{0, 0, 0}, {10, 10, 10}})
	writeLAS(t, bPath, [3]float64{0.001, 0.001, 0.001}, [3]float64{0, 0, 0}, [][3]float64{{90, 90, 90}, {100, 100, 100}})

	outDir := filepath.Join(dir, "out")
	err := convert.Run(dlog.NewTestContext(t, true), convert.Options{
		Sources:  []string{aPath, bPath},
		OutDir:   outDir,
		Name:     "multi-source",
		Method:   convert.MethodPoisson,
		Encoding: metadata.EncodingUncompressed,
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(outDir, "metadata.json"))
	require.NoError(t, err)
	var doc metadata.Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, int64(4), doc.Points)
}
