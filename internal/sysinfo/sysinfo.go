// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sysinfo is the "platform-specific memory/CPU probe" spec.md
// treats as an external collaborator (§1, §7). Rather than parsing
// /proc/self/status or shelling out per-OS, it reports the Go runtime's own
// counters — a deliberate portable simplification, noted in DESIGN.md.
package sysinfo

import "runtime"

// Usage is the resource snapshot spec.md §7's resource-error report wants:
// "memory report (virtual total/used/available; physical total/used/available;
// per-process highest-ever usage)". It carries no total/available figures,
// which the runtime has no portable way to learn; used and highest-ever are
// always populated.
type Usage struct {
	VirtualUsed      uint64
	VirtualHighWater uint64
	PhysicalUsed     uint64
	NumGoroutine     int
	NumCPU           int
}

// Sample reads runtime.MemStats and returns the current snapshot.
func Sample() Usage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Usage{
		VirtualUsed:      m.Sys,
		VirtualHighWater: m.Sys, // Go never returns address space to the OS eagerly
		PhysicalUsed:     m.HeapAlloc + m.StackInuse,
		NumGoroutine:     runtime.NumGoroutine(),
		NumCPU:           runtime.NumCPU(),
	}
}

// VirtualUsed is the process's current virtual memory footprint, in bytes,
// as reported by the Go runtime.
func VirtualUsed() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Sys
}

// PhysicalUsed is the process's current resident heap+stack footprint, in
// bytes.
func PhysicalUsed() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc + m.StackInuse
}

// NumCPU is the number of logical CPUs available to the process, used to
// size worker pools (spec.md §5's "hardware concurrency").
func NumCPU() int {
	return runtime.NumCPU()
}
