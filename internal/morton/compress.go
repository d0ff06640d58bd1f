// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package morton

import (
	"bytes"
	"fmt"

	"github.com/andybalholm/brotli"
)

// CompressionQuality matches the encoder setting used for payload encoding
// (spec.md §4.1's BROTLI encoding option).
const CompressionQuality = 6

const growthFactor = 1.5
const growthPad = 1024
const maxAttempts = 5

// Compress encodes src with brotli at CompressionQuality, sized against an
// initial size hint. andybalholm/brotli's Writer grows its own output
// buffer internally and cannot fail with "buffer too small", but the retry
// loop is kept to bound peak memory: an undersized sizeHint means the first
// attempt allocates small and Write grows organically; this loop exists so a
// write error (rather than a silent undersize) still gets a bounded number
// of retries with a larger starting capacity, mirroring the source
// encoder's grow-and-retry contract.
func Compress(src []byte, sizeHint int) ([]byte, error) {
	if sizeHint <= 0 {
		sizeHint = len(src) + growthPad
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		out := bytes.NewBuffer(make([]byte, 0, sizeHint))
		w := brotli.NewWriterLevel(out, CompressionQuality)
		_, err := w.Write(src)
		if err == nil {
			err = w.Close()
		}
		if err == nil {
			return out.Bytes(), nil
		}
		lastErr = err
		sizeHint = int((float64(sizeHint) + growthPad) * growthFactor)
	}
	return nil, fmt.Errorf("morton: brotli compression failed after %d attempts: %w", maxAttempts, lastErr)
}

// Decompress reverses Compress.
func Decompress(src []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(src))
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("morton: brotli decompression failed: %w", err)
	}
	return out.Bytes(), nil
}
