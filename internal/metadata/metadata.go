// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metadata emits metadata.json: the descriptor a streaming viewer
// reads before requesting any octree.bin/hierarchy.bin bytes (spec.md
// §4.12). Like the rest of the tree's JSON, it's serialized with the
// teacher's git.lukeshu.com/go/lowmemjson rather than encoding/json, through
// a lowmemjson.ReEncoder configured for two-space indentation.
package metadata

import (
	"fmt"
	"io"
	"os"

	"git.lukeshu.com/go/lowmemjson"

	"git.lukeshu.com/lastree/internal/geom"
	"git.lukeshu.com/lastree/internal/hierarchy"
	"git.lukeshu.com/lastree/internal/pointcloud"
)

// Encoding names the octree.bin payload coder, mirroring the --encoding CLI
// flag's three values (spec.md §6).
type Encoding string

const (
	EncodingDefault     Encoding = "DEFAULT"
	EncodingBrotli      Encoding = "BROTLI"
	EncodingUncompressed Encoding = "UNCOMPRESSED"
)

// Document is the exact shape serialized to metadata.json (spec.md §4.12).
type Document struct {
	Version     string          `json:"version"`
	Name        string          `json:"name"`
	Points      int64           `json:"points"`
	Projection  string          `json:"projection"`
	Hierarchy   HierarchyDoc    `json:"hierarchy"`
	Offset      [3]float64      `json:"offset"`
	Scale       [3]float64      `json:"scale"`
	Spacing     float64         `json:"spacing"`
	BoundingBox BoundingBoxDoc  `json:"boundingBox"`
	Encoding    Encoding        `json:"encoding"`
	Attributes  []AttributeDoc  `json:"attributes"`
}

// HierarchyDoc mirrors hierarchy.Stats with JSON field names spec.md §4.12
// names explicitly.
type HierarchyDoc struct {
	FirstChunkSize int64 `json:"firstChunkSize"`
	StepSize       int   `json:"stepSize"`
	Depth          int   `json:"depth"`
}

type BoundingBoxDoc struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// AttributeDoc is one entry of the document's attributes[] array.
type AttributeDoc struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Size        int        `json:"size"`
	NumElements int        `json:"numElements"`
	ElementSize int        `json:"elementSize"`
	Type        string     `json:"type"`
	Min         [3]float64 `json:"min"`
	Max         [3]float64 `json:"max"`
	Scale       [3]float64 `json:"scale"`
	Offset      [3]float64 `json:"offset"`
	Histogram   []int64    `json:"histogram,omitempty"`
}

// Options carries the fields the pipeline knows but no single prior stage
// owns (name, projection string, encoding choice, sampler spacing).
type Options struct {
	Name       string
	Projection string
	Spacing    float64
	Encoding   Encoding
}

// Build assembles the Document from the unified schema, the unified bbox,
// hierarchy build stats, and the actually-retained point count (spec.md's
// Open Question: `points` is the post-dedup retained total, not the raw
// input count — see DESIGN.md).
func Build(schema *pointcloud.Schema, bbox geom.BoundingBox, hstats *hierarchy.Stats, retainedPoints int64, opts Options) *Document {
	doc := &Document{
		Version:    "2.0",
		Name:       opts.Name,
		Points:     retainedPoints,
		Projection: opts.Projection,
		Hierarchy: HierarchyDoc{
			FirstChunkSize: hstats.FirstChunkSize,
			StepSize:       hstats.StepSize,
			Depth:          hstats.Depth,
		},
		Offset:      vec3(schema.PosOffset),
		Scale:       vec3(schema.PosScale),
		Spacing:     opts.Spacing,
		BoundingBox: BoundingBoxDoc{Min: vec3(bbox.Min), Max: vec3(bbox.Max)},
		Encoding:    opts.Encoding,
	}

	for _, a := range schema.List {
		ad := AttributeDoc{
			Name:        a.Name,
			Description: a.Description,
			Size:        a.Size,
			NumElements: a.NumElements,
			ElementSize: a.ElementSize,
			Type:        a.Type.String(),
			Min:         vec3(a.Min),
			Max:         vec3(a.Max),
			Scale:       vec3(a.Scale),
			Offset:      vec3(a.Offset),
		}
		if a.HasHistogram && hasNonZeroBin(a.Histogram) {
			ad.Histogram = append([]int64(nil), a.Histogram[:]...)
		}
		doc.Attributes = append(doc.Attributes, ad)
	}

	return doc
}

// Write serializes doc as indented UTF-8 JSON to path.
func Write(path string, doc *Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	defer f.Close()
	if err := Encode(f, doc); err != nil {
		return fmt.Errorf("metadata: writing %s: %w", path, err)
	}
	return nil
}

// Encode writes doc as indented JSON to w, shared by Write and tests that
// want an in-memory buffer.
func Encode(w io.Writer, doc *Document) error {
	return lowmemjson.Encode(&lowmemjson.ReEncoder{
		Out: w,

		Indent:                "  ",
		ForceTrailingNewlines: true,
	}, doc)
}

func vec3(v geom.Vector3) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func hasNonZeroBin(h [256]int64) bool {
	for _, c := range h {
		if c != 0 {
			return true
		}
	}
	return false
}
