// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package convert is the top-level pipeline: source scanner -> counting
// grid -> node lookup table -> point distributor (+ concurrent writer) ->
// (per chunk) chunk indexer -> sampler -> hierarchy writer -> hierarchy
// builder -> metadata emitter (spec.md §2's control-flow line). cmd/lastree
// is a thin cobra wrapper around Options/Run.
package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/lastree/internal/chunkindex"
	"git.lukeshu.com/lastree/internal/counting"
	"git.lukeshu.com/lastree/internal/distribute"
	"git.lukeshu.com/lastree/internal/hierarchy"
	"git.lukeshu.com/lastree/internal/lut"
	"git.lukeshu.com/lastree/internal/metadata"
	"git.lukeshu.com/lastree/internal/morton"
	"git.lukeshu.com/lastree/internal/octreewriter"
	"git.lukeshu.com/lastree/internal/pointcloud"
	"git.lukeshu.com/lastree/internal/sampler"
	"git.lukeshu.com/lastree/internal/scanner"
	"git.lukeshu.com/lastree/internal/status"
	"git.lukeshu.com/lastree/internal/sysinfo"
	"git.lukeshu.com/lastree/internal/writer"
)

// Method selects the sampler (spec.md §6 --method).
type Method string

const (
	MethodPoisson Method = "poisson"
	MethodRandom  Method = "random"
)

// Options configures one end-to-end conversion run (spec.md §6's CLI
// surface).
type Options struct {
	Sources      []string
	OutDir       string
	Name         string
	Method       Method
	Encoding     metadata.Encoding
	Attributes   []string
	Projection   string
	KeepChunks   bool
	NoChunking   bool
	NoIndexing   bool
	WriteWorkers int // concurrent-writer pool size; 0 -> sysinfo.NumCPU()
}

// Run executes the full pipeline into opts.OutDir, which must not already
// contain octree.bin/hierarchy.bin/metadata.json (spec.md §1's "mutation of
// an existing output" non-goal: builds are always full rebuilds into a
// fresh directory).
func Run(ctx context.Context, opts Options) error {
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	chunksDir := filepath.Join(opts.OutDir, "chunks")
	if err := os.MkdirAll(chunksDir, 0o755); err != nil {
		return fmt.Errorf("convert: %w", err)
	}

	progress := status.NewProgress[status.PassStats](ctx, dlog.LogLevelInfo, time.Second)
	defer progress.Done()

	// --- source scanner ------------------------------------------------
	scanCtx := dlog.WithField(ctx, "pass", "scan")
	scan, err := scanner.Scan(scanCtx, opts.Sources, opts.Attributes)
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	dlog.Infof(ctx, "scanned %d sources, %d points", len(scan.Sources), scan.NumPoints)

	gridSize := gridSizeFor(scan.NumPoints)

	// --- counting grid (pass 1) ----------------------------------------
	countCtx := dlog.WithField(ctx, "pass", "counting")
	countSampler := status.NewSampler(progress, "counting", scan.NumPoints)
	grid := counting.NewGrid(scan.BBox, gridSize)
	if err := runCountingPass(countCtx, opts.Sources, grid); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	countSampler.Update(scan.NumPoints, 0, 0)

	pyramid := counting.BuildPyramid(grid.Snapshot(), gridSize)

	// --- node lookup table -----------------------------------------------
	table, err := lut.Build(pyramid, gridSize)
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	dlog.Infof(ctx, "built node lookup table: %d chunks", len(table.Chunks))

	// --- point distributor (+ concurrent writer), pass 2 ------------------
	handlers, err := buildHandlerTable(&scan.Schema, scan.Sources[0])
	if err != nil {
		return err
	}

	if opts.NoChunking {
		// Reuse chunk files a prior --no-indexing --keep-chunks run left
		// under chunksDir; scan+counting+lut above are cheap enough to
		// rerun so the chunk-name mapping is still guaranteed consistent.
		dlog.Infof(ctx, "--no-chunking: reusing existing chunk files under %s", chunksDir)
	} else {
		wtr := writer.New(chunksDir)
		writeWorkers := opts.WriteWorkers
		if writeWorkers <= 0 {
			writeWorkers = sysinfo.NumCPU()
		}
		wctx, wcancel := context.WithCancel(ctx)
		writerDone := make(chan error, 1)
		go func() { writerDone <- wtr.Run(wctx, writeWorkers) }()

		var statsMu sync.Mutex
		distCtx := dlog.WithField(ctx, "pass", "distribute")
		distSampler := status.NewSampler(progress, "distribute", scan.NumPoints)
		distErr := distribute.Run(distCtx, opts.Sources, distribute.Options{
			Grid:     grid,
			GridSize: gridSize,
			BBox:     scan.BBox,
			Table:    table,
			Schema:   &scan.Schema,
			Handlers: handlers,
			Writer:   wtr,
			StatsMu:  &statsMu,
		})
		distSampler.Update(scan.NumPoints, int64(len(table.Chunks)), wtr.PendingBytes())
		wcancel()
		if err := <-writerDone; err != nil && distErr == nil {
			distErr = err
		}
		if distErr != nil {
			return fmt.Errorf("convert: %w", distErr)
		}
	}

	if opts.NoIndexing {
		dlog.Infof(ctx, "--no-indexing: stopping after chunking, chunk files kept under %s", chunksDir)
		return nil
	}

	// --- chunk indexer + sampler (pass 3), per chunk -----------------------
	// Each chunk's subtree is independent once its root node is attached
	// (spec.md §4.7, §5: one worker pool per pass), so chunks build
	// concurrently, bounded by sysinfo.NumCPU(), with only the shared tree
	// attachment and the dropped-point accumulator under a mutex.
	root := pointcloud.NewNode("r", scan.BBox)
	stride := scan.Schema.BytesPerPoint()

	indexCtx := dlog.WithField(ctx, "pass", "chunkindex")
	indexSampler := status.NewSampler(progress, "chunkindex", int64(len(table.Chunks)))

	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	sem := make(chan struct{}, sysinfo.NumCPU())
	var indexMu sync.Mutex
	var totalDropped int64
	var indexed int64
	for i, c := range table.Chunks {
		i, c := i, c
		grp.Go(fmt.Sprintf("chunkindex-%d", i), func(ctx context.Context) error {
			sem <- struct{}{}
			defer func() { <-sem }()

			chunkPath := filepath.Join(chunksDir, c.Name+".bin")
			points, err := os.ReadFile(chunkPath)
			if err != nil {
				return fmt.Errorf("convert: reading chunk %s: %w", chunkPath, err)
			}
			numPoints := int64(len(points)) / int64(stride)

			indexMu.Lock()
			chunkRoot := root.ExpandTo(c.Name)
			indexMu.Unlock()

			cib := &chunkindex.Builder{Schema: &scan.Schema}
			if err := cib.Build(chunkRoot, points, numPoints); err != nil {
				return fmt.Errorf("convert: %w", err)
			}

			indexMu.Lock()
			totalDropped += cib.Dropped
			indexed++
			indexSampler.Update(indexed, int64(len(table.Chunks)), 0)
			indexMu.Unlock()
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}
	if totalDropped > 0 {
		dlog.Warnf(indexCtx, "dropped %d/%d points to duplicate candidate paths during chunk indexing",
			totalDropped, scan.NumPoints)
	}

	// --- sampler + hierarchy writer (octree.bin) --------------------------
	octPath := filepath.Join(opts.OutDir, "octree.bin")
	octWriter, err := octreewriter.New(octPath)
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	octCtx, octCancel := context.WithCancel(ctx)
	octDone := make(chan error, 1)
	go func() { octDone <- octWriter.Run(octCtx) }()

	flush := func(n *pointcloud.Node) {
		payload := encodeNodePayload(n, &scan.Schema, opts.Encoding)
		off := octWriter.WriteAndUnload(payload)
		n.ByteOffset = off
		n.ByteSize = int64(len(payload))
		n.Points = nil
	}

	var flushed int64
	root.TraversePost(func(n *pointcloud.Node) {
		if n.ChildMask == 0 {
			return // leaves are flushed by their parent below, or (for a
			// leaf root) after the traversal completes.
		}
		var payload []byte
		switch opts.Method {
		case MethodRandom:
			payload = sampler.Random(n, &scan.Schema)
		default:
			payload = sampler.Poisson(n, &scan.Schema, sampler.BaseSpacing)
		}
		n.Points = payload

		for _, child := range n.Children {
			if child == nil {
				continue
			}
			flush(child)
			flushed++
		}
		if n.ChildMask == 0 {
			n.Type = pointcloud.NodeLeaf
		} else {
			n.Type = pointcloud.NodeNormal
		}
	})
	// The root is nobody's child; flush it directly once sampling settles.
	flush(root)
	flushed++

	if err := octWriter.CloseAndWait(); err != nil {
		octCancel()
		return fmt.Errorf("convert: %w", err)
	}
	octCancel()
	if err := <-octDone; err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	dlog.Infof(ctx, "wrote octree.bin: %d nodes, %d bytes", flushed, octWriter.TotalBytes())

	// --- hierarchy builder -------------------------------------------------
	var spillDir string
	if opts.KeepChunks {
		spillDir = opts.OutDir
	}
	hdata, hstats, err := hierarchy.Build(root, spillDir)
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	if err := os.WriteFile(filepath.Join(opts.OutDir, "hierarchy.bin"), hdata, 0o644); err != nil {
		return fmt.Errorf("convert: %w", err)
	}

	// --- metadata emitter ----------------------------------------------
	retained := scan.NumPoints - totalDropped
	doc := metadata.Build(&scan.Schema, scan.RawBBox, hstats, retained, metadata.Options{
		Name:       opts.Name,
		Projection: opts.Projection,
		Spacing:    sampler.BaseSpacing,
		Encoding:   opts.Encoding,
	})
	if err := metadata.Write(filepath.Join(opts.OutDir, "metadata.json"), doc); err != nil {
		return fmt.Errorf("convert: %w", err)
	}

	if !opts.KeepChunks {
		if err := os.RemoveAll(chunksDir); err != nil {
			dlog.Warnf(ctx, "failed to remove intermediate chunk files: %v", err)
		}
	}

	return nil
}

// encodeNodePayload applies the requested output encoding to a node's raw
// point buffer (spec.md §4.1, §6's --encoding flag).
func encodeNodePayload(n *pointcloud.Node, schema *pointcloud.Schema, enc metadata.Encoding) []byte {
	if enc == metadata.EncodingUncompressed {
		return n.Points
	}
	reordered := morton.EncodeNode(n.Points, schema, n.NumPoints)
	if enc != metadata.EncodingBrotli {
		return reordered
	}
	compressed, err := morton.Compress(reordered, len(reordered))
	if err != nil {
		// Compress only fails if brotli itself errors after retrying;
		// fall back to the uncompressed morton-ordered stream rather than
		// aborting an otherwise-successful build.
		return reordered
	}
	return compressed
}
