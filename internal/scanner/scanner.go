// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package scanner implements the pre-pass that opens every source file,
// reads its LAS header only, and accumulates the union bounding box and
// unified attribute schema the rest of the pipeline needs (spec.md §4.2).
package scanner

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/lastree/internal/geom"
	"git.lukeshu.com/lastree/internal/lasio"
	"git.lukeshu.com/lastree/internal/pointcloud"
)

// Source is one input file's scan result: its decoded header plus the
// per-file attribute list lasio derived from its point format and VLRs.
type Source struct {
	Path       string
	Header     *lasio.Header
	Attributes []pointcloud.Attribute
	BBox       geom.BoundingBox
	NumPoints  int64
}

// Result is the union of every source's scan: the cube bounding box all
// chunking operates over, the unified schema (position first, deduplicated
// by name thereafter), and the per-source list in input order.
type Result struct {
	Sources   []Source
	BBox      geom.BoundingBox // cube, grown from the raw union per §4.2
	RawBBox   geom.BoundingBox // union before cube-growth
	Schema    pointcloud.Schema
	NumPoints int64
}

// Scan opens every path's LAS header in parallel (one goroutine per file,
// bounded by GOMAXPROCS, per spec.md §5) and unifies the results.
func Scan(ctx context.Context, paths []string, requestedAttrs []string) (*Result, error) {
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	sem := make(chan struct{}, concurrency())
	var mu sync.Mutex
	sources := make([]Source, len(paths))
	for i, path := range paths {
		i, path := i, path
		grp.Go(fmt.Sprintf("scan-%d", i), func(ctx context.Context) error {
			sem <- struct{}{}
			defer func() { <-sem }()

			hdr, err := lasio.Load(path)
			if err != nil {
				return fmt.Errorf("scanner: %s: %w", path, err)
			}
			attrs, err := lasio.ComputeOutputAttributes(hdr)
			if err != nil {
				return fmt.Errorf("scanner: %s: %w", path, err)
			}
			src := Source{
				Path:       path,
				Header:     hdr,
				Attributes: attrs,
				BBox:       geom.BoundingBox{Min: hdr.Min, Max: hdr.Max},
				NumPoints:  hdr.NumPoints,
			}
			mu.Lock()
			sources[i] = src
			mu.Unlock()
			dlog.Debugf(ctx, "scanned source header: path=%q points=%d format=%d",
				path, hdr.NumPoints, hdr.PointFormat)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	return unify(sources, requestedAttrs)
}

func unify(sources []Source, requestedAttrs []string) (*Result, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("scanner: no source files")
	}

	rawBBox := sources[0].BBox
	var totalPoints int64
	schema := pointcloud.Schema{}
	for _, s := range sources {
		rawBBox = rawBBox.Union(s.BBox)
		totalPoints += s.NumPoints
		for _, a := range s.Attributes {
			schema.Append(a)
		}
	}

	if len(requestedAttrs) > 0 {
		schema = filterSchema(schema, requestedAttrs)
	}
	if schema.Index("position") < 0 {
		return nil, fmt.Errorf("scanner: no source declared a position attribute")
	}
	reorderPositionFirst(&schema)

	if raw := rawBBox.Size(); raw.X == 0 || raw.Y == 0 || raw.Z == 0 {
		return nil, fmt.Errorf("scanner: unified bounding box has a zero-size axis")
	}
	cube := rawBBox.Cube()
	size := cube.Size()

	requestedScale := sources[0].Header.Scale
	schema.PosScale = geom.Vector3{
		X: math.Max(requestedScale.X, size.X/(1<<30)),
		Y: math.Max(requestedScale.Y, size.Y/(1<<30)),
		Z: math.Max(requestedScale.Z, size.Z/(1<<30)),
	}
	schema.PosOffset = rawBBox.Min

	return &Result{
		Sources:   sources,
		BBox:      cube,
		RawBBox:   rawBBox,
		Schema:    schema,
		NumPoints: totalPoints,
	}, nil
}

// filterSchema keeps only position plus attributes named in requested,
// preserving discovery order (spec.md §6 --attributes flag).
func filterSchema(in pointcloud.Schema, requested []string) pointcloud.Schema {
	want := make(map[string]bool, len(requested))
	for _, r := range requested {
		want[r] = true
	}
	out := pointcloud.Schema{PosScale: in.PosScale, PosOffset: in.PosOffset}
	for _, a := range in.List {
		if a.Name == "position" || want[a.Name] {
			out.List = append(out.List, a)
		}
	}
	return out
}

func reorderPositionFirst(s *pointcloud.Schema) {
	idx := s.Index("position")
	if idx <= 0 {
		return
	}
	pos := s.List[idx]
	s.List = append(s.List[:idx], s.List[idx+1:]...)
	s.List = append([]pointcloud.Attribute{pos}, s.List...)
}

func concurrency() int {
	n := concurrencyOverride
	if n > 0 {
		return n
	}
	return defaultConcurrency()
}

var concurrencyOverride int
