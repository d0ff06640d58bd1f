// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package distribute implements pass 2: re-reading every source file and
// routing each point's output-schema record into its chunk's bucket via
// the node lookup table (spec.md §4.4).
package distribute

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/lastree/internal/counting"
	"git.lukeshu.com/lastree/internal/geom"
	"git.lukeshu.com/lastree/internal/lasio"
	"git.lukeshu.com/lastree/internal/lut"
	"git.lukeshu.com/lastree/internal/pointcloud"
	"git.lukeshu.com/lastree/internal/writer"
)

// batchSize caps how many points a worker decodes before handing its
// buckets to the writer (spec.md §4.4's "per-batch vector").
const batchSize = 1_000_000

// bucketFlushThreshold is the per-thread-per-chunk bucket size (in bytes)
// that triggers an early flush to the writer rather than waiting for the
// batch boundary.
const bucketFlushThreshold = 4 << 20

// memoryThresholdMB bounds the writer's pending-bytes backlog; producers
// throttle via writer.WaitForMemoryThreshold when it's exceeded.
const memoryThresholdMB = 2048

// Options configures one distribution run.
type Options struct {
	Grid     *counting.Grid
	GridSize int64
	BBox     geom.BoundingBox
	Table    *lut.Table
	Schema   *pointcloud.Schema
	Handlers []pointcloud.Handler
	Writer   *writer.Writer

	// StatsMu guards Schema's per-attribute Min/Max/histogram fields, which
	// every distributeOne goroutine merges its thread-local observations
	// into at end of pass (spec.md §4.4/§5: "per-thread staging ... merged
	// under a mutex on bucket hand-off").
	StatsMu *sync.Mutex
}

// Run streams every source again, decodes each point, and appends its
// record to its chunk's file (through opts.Writer). One goroutine per
// source, bounded by GOMAXPROCS (spec.md §5).
func Run(ctx context.Context, sources []string, opts Options) error {
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	for i, path := range sources {
		i, path := i, path
		grp.Go(fmt.Sprintf("distribute-%d", i), func(ctx context.Context) error {
			sem <- struct{}{}
			defer func() { <-sem }()
			return distributeOne(ctx, path, opts)
		})
	}
	return grp.Wait()
}

func distributeOne(ctx context.Context, path string, opts Options) error {
	r, err := lasio.Open(path)
	if err != nil {
		return fmt.Errorf("distribute: %s: %w", path, err)
	}
	defer r.Close()

	stride := opts.Schema.BytesPerPoint()
	buckets := make(map[string][]byte)
	processed := 0

	stats := make([]pointcloud.Attribute, len(opts.Schema.List))
	copy(stats, opts.Schema.List)

	flush := func() {
		for name, buf := range buckets {
			if len(buf) == 0 {
				continue
			}
			opts.Writer.Enqueue(name, buf)
			buckets[name] = nil
		}
		opts.Writer.WaitForMemoryThreshold(memoryThresholdMB)
	}

	for {
		pt, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("distribute: %s: %w", path, err)
		}

		cellIdx := opts.Grid.CellIndex(geom.Vector3{X: pt.WorldX, Y: pt.WorldY, Z: pt.WorldZ})
		if int(cellIdx) >= len(opts.Table.Index) {
			return fmt.Errorf("distribute: %s: point outside counting grid", path)
		}
		chunkIdx := opts.Table.Index[cellIdx]
		if chunkIdx < 0 {
			return fmt.Errorf("distribute: %s: point did not resolve to a chunk", path)
		}
		chunk := opts.Table.Chunks[chunkIdx]
		chunkPath := chunk.Name + ".bin"

		rec := make([]byte, stride)
		off := 0
		for i, h := range opts.Handlers {
			h(rec, off, &pt, &stats[i])
			off += opts.Schema.List[i].Size
		}
		buckets[chunkPath] = append(buckets[chunkPath], rec...)

		processed++
		if processed%batchSize == 0 {
			flush()
		} else if len(buckets[chunkPath]) >= bucketFlushThreshold {
			opts.Writer.Enqueue(chunkPath, buckets[chunkPath])
			buckets[chunkPath] = nil
		}
	}
	flush()

	opts.StatsMu.Lock()
	opts.Schema.Merge(stats)
	opts.StatsMu.Unlock()

	dlog.Debugf(ctx, "distributed source: path=%q points=%d", path, processed)
	return nil
}

