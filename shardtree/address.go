// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shardtree

import (
	"encoding/hex"
	"fmt"
)

const (
	// Depth is the total depth of a note commitment tree.
	Depth = 32

	// ShardHeight is the height of each shard subtree. A tree holds
	// 2^(Depth-ShardHeight) shards of 2^ShardHeight leaves each.
	ShardHeight = 16

	// MaxPosition is one past the largest leaf position of the tree.
	MaxPosition = uint64(1) << Depth
)

// Node is a leaf commitment or an interior node hash.
type Node [32]byte

// String returns the node as a hex string.
func (n Node) String() string {
	return hex.EncodeToString(n[:])
}

// Hasher defines the pool specific hashing used to build a tree.
type Hasher interface {
	// Combine returns the parent of two nodes at the given level. The
	// level is the level of the children, so leaves combine at level 0.
	Combine(level uint8, left, right Node) Node

	// EmptyLeaf returns the value of an unfilled leaf.
	EmptyLeaf() Node
}

// EmptyRoots returns the roots of empty subtrees at every level from 0 to
// Depth inclusive.
func EmptyRoots(h Hasher) [Depth + 1]Node {
	var roots [Depth + 1]Node
	roots[0] = h.EmptyLeaf()
	for level := uint8(0); level < Depth; level++ {
		roots[level+1] = h.Combine(level, roots[level], roots[level])
	}

	return roots
}

// Address identifies a subtree by its root level and its index among the
// subtrees of that level.
type Address struct {
	Level uint8
	Index uint64
}

// rootAddr is the address of the whole tree.
var rootAddr = Address{Level: Depth}

// LeafAddress returns the address of the leaf at pos.
func LeafAddress(pos uint64) Address {
	return Address{Level: 0, Index: pos}
}

// AddressAbove returns the address at level whose subtree contains pos.
func AddressAbove(pos uint64, level uint8) Address {
	return Address{Level: level, Index: pos >> level}
}

// ShardAddress returns the address of the shard with the given index.
func ShardAddress(index uint64) Address {
	return Address{Level: ShardHeight, Index: index}
}

// ShardIndex returns the index of the shard that contains pos.
func ShardIndex(pos uint64) uint64 {
	return pos >> ShardHeight
}

// Start returns the first leaf position covered by the address.
func (a Address) Start() uint64 {
	return a.Index << a.Level
}

// End returns one past the last leaf position covered by the address.
func (a Address) End() uint64 {
	return (a.Index + 1) << a.Level
}

// Contains reports whether pos lies in the subtree at a.
func (a Address) Contains(pos uint64) bool {
	return pos >= a.Start() && pos < a.End()
}

// IsAncestorOf reports whether a is a strict ancestor of b.
func (a Address) IsAncestorOf(b Address) bool {
	return a.Level > b.Level && b.Index>>(a.Level-b.Level) == a.Index
}

// Children returns the left and right child addresses. It must not be
// called on a leaf address.
func (a Address) Children() (Address, Address) {
	l := Address{Level: a.Level - 1, Index: a.Index << 1}
	return l, Address{Level: l.Level, Index: l.Index | 1}
}

// Sibling returns the address that shares a's parent.
func (a Address) Sibling() Address {
	return Address{Level: a.Level, Index: a.Index ^ 1}
}

// String returns a human readable form of the address.
func (a Address) String() string {
	return fmt.Sprintf("(%d, %d)", a.Level, a.Index)
}
