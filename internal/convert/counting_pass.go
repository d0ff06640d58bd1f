// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/datawire/dlib/dgroup"

	"git.lukeshu.com/lastree/internal/counting"
	"git.lukeshu.com/lastree/internal/geom"
	"git.lukeshu.com/lastree/internal/lasio"
)

// gridSizeFor picks G by total point count (spec.md §4.2): <1e8 -> 128,
// <5e8 -> 256, else 512.
func gridSizeFor(numPoints int64) int64 {
	switch {
	case numPoints < 100_000_000:
		return 128
	case numPoints < 500_000_000:
		return 256
	default:
		return 512
	}
}

// runCountingPass is pass 1: re-reads every source's points (position
// only) and increments the shared grid, one goroutine per source, bounded by
// GOMAXPROCS (spec.md §4.2).
func runCountingPass(ctx context.Context, sources []string, grid *counting.Grid) error {
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	for i, path := range sources {
		i, path := i, path
		grp.Go(fmt.Sprintf("counting-%d", i), func(ctx context.Context) error {
			sem <- struct{}{}
			defer func() { <-sem }()
			r, err := lasio.Open(path)
			if err != nil {
				return fmt.Errorf("convert: counting: %s: %w", path, err)
			}
			defer r.Close()

			for {
				pt, err := r.Next()
				if err != nil {
					if errors.Is(err, io.EOF) {
						return nil
					}
					return fmt.Errorf("convert: counting: %s: %w", path, err)
				}
				grid.Increment(geom.Vector3{X: pt.WorldX, Y: pt.WorldY, Z: pt.WorldZ})
			}
		})
	}
	return grp.Wait()
}
