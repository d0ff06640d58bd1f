// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package pointcloud

import (
	"fmt"

	"golang.org/x/exp/slices"

	"git.lukeshu.com/lastree/internal/geom"
)

// NodeType mirrors the 3 on-disk hierarchy record kinds (spec.md §3, §4.11).
type NodeType uint8

const (
	NodeNormal NodeType = 0
	NodeLeaf   NodeType = 1
	NodeProxy  NodeType = 2
)

func (t NodeType) String() string {
	switch t {
	case NodeNormal:
		return "NORMAL"
	case NodeLeaf:
		return "LEAF"
	case NodeProxy:
		return "PROXY"
	default:
		return "UNKNOWN"
	}
}

// Node is one octree node. Parent is a plain back-pointer: unlike the
// shared_ptr graph in the original implementation, Go's tracing garbage
// collector reclaims the parent/child cycle without reference-count bookkeeping,
// so the "arena of integer indices" design note (spec.md §9) is unnecessary
// here — see DESIGN.md.
type Node struct {
	Name   string // path string, starts "r"; Name[1:] are octant digits 0-7
	BBox   geom.BoundingBox
	Parent *Node
	// Children are nil where absent; ChildMask tracks which slots are
	// populated without needing to dereference a nil child.
	Children [8]*Node

	// Points is the node's owned point-record buffer. It is non-nil
	// between "created with data" and "handed to the hierarchy writer";
	// BuildHierarchy/sampler code must observe this invariant (spec.md §3).
	Points []byte

	IndexStart int64 // offset into a parent scratch array during chunk building
	ByteOffset int64 // position in octree.bin, assigned by the hierarchy writer
	ByteSize   int64
	NumPoints  int64

	ChildMask uint8
	Type      NodeType

	ProxyByteOffset int64 // valid only for Type == NodeProxy
	ProxyByteSize   int64

	Sampled bool // set once the sampler has promoted points from children
}

// NewNode constructs a detached node at the given path and bbox, with no
// points and no children.
func NewNode(name string, bbox geom.BoundingBox) *Node {
	return &Node{Name: name, BBox: bbox, Type: NodeLeaf}
}

// Level is len(Name)-1: the root "r" is level 0.
func (n *Node) Level() int {
	return len(n.Name) - 1
}

// ChildIndex returns this node's octant index within its parent (the last
// digit of Name), or -1 for the root.
func (n *Node) ChildIndex() int {
	if len(n.Name) <= 1 {
		return -1
	}
	return int(n.Name[len(n.Name)-1] - '0')
}

// IsLeaf reports whether every child slot is empty.
func (n *Node) IsLeaf() bool {
	return n.ChildMask == 0
}

// SetChild installs child at the given octant index, updating the parent
// link and ChildMask (spec.md invariant: "parent(n).childMask & (1<<idx) != 0
// and parent(n).children[idx] == n").
func (n *Node) SetChild(index int, child *Node) {
	n.Children[index] = child
	child.Parent = n
	n.ChildMask |= 1 << uint(index)
	if n.ChildMask != 0 {
		n.Type = NodeNormal
	}
}

// ExpandTo materializes (creating intermediate children as needed) the
// descendant of n named by the full path `name`, and returns it. Used by the
// chunk indexer (spec.md §4.7 step 5) to realize pyramid-sum candidates.
func (n *Node) ExpandTo(name string) *Node {
	current := n
	for level := len(n.Name); level < len(name); level++ {
		index := int(name[level] - '0')
		if current.Children[index] == nil {
			childName := current.Name + string(name[level])
			box := current.BBox.ChildOf(index)
			current.SetChild(index, NewNode(childName, box))
		}
		current = current.Children[index]
	}
	return current
}

// Find walks from n down to the descendant named by the full path `name`,
// returning nil if any intermediate child is absent.
func (n *Node) Find(name string) *Node {
	current := n
	for level := len(n.Name); level < len(name); level++ {
		index := int(name[level] - '0')
		current = current.Children[index]
		if current == nil {
			return nil
		}
	}
	return current
}

// Traverse visits n and every descendant, pre-order, passing each node's
// level to the callback.
func (n *Node) Traverse(callback func(node *Node, level int)) {
	n.traverse(callback, n.Level())
}

func (n *Node) traverse(callback func(node *Node, level int), level int) {
	callback(n, level)
	for _, c := range n.Children {
		if c != nil {
			c.traverse(callback, level+1)
		}
	}
}

// TraversePost visits every descendant of n, post-order, then n itself.
func (n *Node) TraversePost(callback func(node *Node)) {
	for _, c := range n.Children {
		if c != nil {
			c.TraversePost(callback)
		}
	}
	callback(n)
}

// SortByBreadth orders nodes first by level (shallowest first), then
// lexically by name — the order the hierarchy builder serializes records in
// (spec.md §4.11).
func SortByBreadth(nodes []*Node) {
	slices.SortFunc(nodes, func(a, b *Node) bool {
		if len(a.Name) != len(b.Name) {
			return len(a.Name) < len(b.Name)
		}
		return a.Name < b.Name
	})
}

func (n *Node) String() string {
	return fmt.Sprintf("Node(%s, type=%s, points=%d)", n.Name, n.Type, n.NumPoints)
}
