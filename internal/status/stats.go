// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package status

import (
	"fmt"
	"time"

	"git.lukeshu.com/lastree/internal/sysinfo"
)

// PassStats is the Stats value plugged into Progress for every pass of
// spec.md §2's pipeline (counting, distributing, indexing, sampling,
// writing). Pass is fixed per Progress instance; the rest change as the
// pass advances.
type PassStats struct {
	Pass            string
	PointsProcessed int64
	PointsTotal     int64
	ChunksWritten   int64
	BytesFlushed    int64
	Elapsed         time.Duration
	VirtualUsedMB   uint64
}

func (s PassStats) String() string {
	pct := 0.0
	if s.PointsTotal > 0 {
		pct = 100 * float64(s.PointsProcessed) / float64(s.PointsTotal)
	}
	return fmt.Sprintf(
		"[%s] %.1f%% (%d/%d points) chunks=%d flushed=%dMB elapsed=%s mem=%dMB",
		s.Pass, pct, s.PointsProcessed, s.PointsTotal, s.ChunksWritten,
		s.BytesFlushed/(1<<20), s.Elapsed.Round(time.Second), s.VirtualUsedMB,
	)
}

// Sampler wraps Progress[PassStats], adding a start time and an Update
// method that folds in a fresh sysinfo reading, so callers only have to
// track the counters that actually change per pass.
type Sampler struct {
	progress *Progress[PassStats]
	pass     string
	start    time.Time

	pointsTotal int64
}

// NewSampler returns a Sampler that reports pass through p, starting its
// elapsed-time clock now.
func NewSampler(p *Progress[PassStats], pass string, pointsTotal int64) *Sampler {
	return &Sampler{
		progress:    p,
		pass:        pass,
		start:       time.Now(),
		pointsTotal: pointsTotal,
	}
}

// Update publishes a fresh snapshot for the wrapped pass.
func (s *Sampler) Update(pointsProcessed, chunksWritten, bytesFlushed int64) {
	s.progress.Set(PassStats{
		Pass:            s.pass,
		PointsProcessed: pointsProcessed,
		PointsTotal:     s.pointsTotal,
		ChunksWritten:   chunksWritten,
		BytesFlushed:    bytesFlushed,
		Elapsed:         time.Since(s.start),
		VirtualUsedMB:   sysinfo.VirtualUsed() / (1 << 20),
	})
}
