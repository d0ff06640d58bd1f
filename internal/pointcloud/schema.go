// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package pointcloud

import "git.lukeshu.com/lastree/internal/geom"

// Schema is the unified, ordered attribute list plus the global position
// scale/offset (spec.md §3's "Attributes schema"). Position is always
// List[0].
type Schema struct {
	List []Attribute

	PosScale  geom.Vector3
	PosOffset geom.Vector3
}

// BytesPerPoint is the sum of every attribute's Size — the output record
// stride.
func (s *Schema) BytesPerPoint() int {
	n := 0
	for _, a := range s.List {
		n += a.Size
	}
	return n
}

// OffsetOf returns the byte offset of the named attribute within a point
// record, derived by prefix sum (spec.md §3), or -1 if absent.
func (s *Schema) OffsetOf(name string) int {
	offset := 0
	for _, a := range s.List {
		if a.Name == name {
			return offset
		}
		offset += a.Size
	}
	return -1
}

// Index returns the index of the named attribute within List, or -1.
func (s *Schema) Index(name string) int {
	for i, a := range s.List {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// Get returns a pointer to the named attribute's entry (so callers can fold
// Min/Max/histogram updates into it), or nil.
func (s *Schema) Get(name string) *Attribute {
	if i := s.Index(name); i >= 0 {
		return &s.List[i]
	}
	return nil
}

// Merge folds a per-worker staging schema's Min/Max/histogram observations
// into s, by attribute name. Callers hold whatever lock guards s.
func (s *Schema) Merge(other []Attribute) {
	for _, o := range other {
		if a := s.Get(o.Name); a != nil {
			a.Merge(o)
		}
	}
}

// Append adds attr to the schema unless an attribute with the same name is
// already present (spec.md §4.1: "entries deduplicated by name").
func (s *Schema) Append(attr Attribute) {
	if s.Get(attr.Name) != nil {
		return
	}
	s.List = append(s.List, attr)
}
