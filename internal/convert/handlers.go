// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package convert

import (
	"fmt"

	"git.lukeshu.com/lastree/internal/pointcloud"
	"git.lukeshu.com/lastree/internal/scanner"
)

// buildExtraHandlers generates one Handler per Extra-Bytes attribute named
// in schema, keyed by name (spec.md §4.5: "extra-byte handlers are
// generated by type + element count at scan time"). srcOffset is derived
// from the first source's own on-disk attribute order, since LAS's
// Extra-Bytes payload for a given point is a contiguous run following the
// point's fixed fields, in the order the Extra-Bytes VLR describes them —
// the same order ComputeOutputAttributes returns them in.
func buildExtraHandlers(schema *pointcloud.Schema, firstSource scanner.Source) map[string]pointcloud.Handler {
	offsets := make(map[string]int, len(firstSource.Attributes))
	cursor := 0
	for _, attr := range firstSource.Attributes {
		if attr.Name == "position" || pointcloud.IsStandardAttribute(attr.Name) {
			continue
		}
		offsets[attr.Name] = cursor
		cursor += attr.Size
	}

	handlers := make(map[string]pointcloud.Handler)
	for _, attr := range schema.List {
		if attr.Name == "position" || pointcloud.IsStandardAttribute(attr.Name) {
			continue
		}
		srcOffset, ok := offsets[attr.Name]
		if !ok {
			continue // present in the unified schema via another source only
		}
		handlers[attr.Name] = pointcloud.ExtraByteHandler(srcOffset, attr.Type, attr.NumElements)
	}
	return handlers
}

// buildHandlerTable resolves the full per-attribute handler slice for the
// unified schema, erroring if any non-position, non-standard attribute has
// no Extra-Bytes handler available (spec.md §4.5).
func buildHandlerTable(schema *pointcloud.Schema, firstSource scanner.Source) ([]pointcloud.Handler, error) {
	posHandler := pointcloud.PositionHandler(schema.PosScale, schema.PosOffset)
	extra := buildExtraHandlers(schema, firstSource)
	handlers, err := pointcloud.BuildHandlerTable(schema, posHandler, extra)
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}
	return handlers, nil
}
