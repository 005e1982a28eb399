// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shardtree

import (
	"fmt"
	"math/bits"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Frontier is the rightmost edge of a note commitment tree: the last leaf
// and the roots of the complete subtrees to its left. It is all a chain
// state needs to carry to let a wallet continue the tree.
type Frontier struct {
	nonEmpty bool
	position uint64
	leaf     Node

	// ommers holds one hash per set bit of position, in order of
	// increasing level.
	ommers []Node
}

// NewFrontier returns a frontier from its parts. The number of ommers must
// match the set bits of position.
func NewFrontier(position uint64, leaf Node, ommers []Node) (*Frontier,
	error) {

	if position >= MaxPosition {
		return nil, treeError(ErrPositionOutOfRange,
			fmt.Sprintf("frontier position %d", position), nil)
	}
	if want := bits.OnesCount64(position); len(ommers) != want {
		return nil, treeError(ErrCorrupted,
			fmt.Sprintf("frontier at %d needs %d ommers, got %d",
				position, want, len(ommers)), nil)
	}

	return &Frontier{
		nonEmpty: true,
		position: position,
		leaf:     leaf,
		ommers:   append([]Node(nil), ommers...),
	}, nil
}

// IsEmpty reports whether no leaf has been appended yet.
func (f *Frontier) IsEmpty() bool {
	return !f.nonEmpty
}

// Position returns the position of the last leaf, if any.
func (f *Frontier) Position() fn.Option[uint64] {
	if !f.nonEmpty {
		return fn.None[uint64]()
	}
	return fn.Some(f.position)
}

// Size returns the number of leaves in the tree.
func (f *Frontier) Size() uint64 {
	if !f.nonEmpty {
		return 0
	}
	return f.position + 1
}

// Leaf returns the last leaf. It is the zero node for an empty frontier.
func (f *Frontier) Leaf() Node {
	return f.leaf
}

// Ommers returns a copy of the ommer hashes in order of increasing level.
func (f *Frontier) Ommers() []Node {
	return append([]Node(nil), f.ommers...)
}

// Clone returns a deep copy of the frontier.
func (f *Frontier) Clone() *Frontier {
	c := *f
	c.ommers = f.Ommers()
	return &c
}

// Append adds a leaf to the right edge.
func (f *Frontier) Append(h Hasher, leaf Node) error {
	if !f.nonEmpty {
		f.nonEmpty = true
		f.position = 0
		f.leaf = leaf
		f.ommers = nil
		return nil
	}
	if f.position+1 >= MaxPosition {
		return treeError(ErrPositionOutOfRange, "frontier is full", nil)
	}

	// Carry the old leaf up through every complete level, consuming
	// the ommers it completes.
	carry := f.leaf
	ommers := make([]Node, 0, len(f.ommers)+1)
	i := 0
	for level := uint8(0); level < Depth; level++ {
		if (f.position>>level)&1 == 0 {
			ommers = append(ommers, carry)
			ommers = append(ommers, f.ommers[i:]...)
			break
		}
		carry = h.Combine(level, f.ommers[i], carry)
		i++
	}

	f.position++
	f.leaf = leaf
	f.ommers = ommers

	return nil
}

// Root returns the root of the full depth tree whose right edge is f.
func (f *Frontier) Root(h Hasher) Node {
	empty := EmptyRoots(h)
	if !f.nonEmpty {
		return empty[Depth]
	}

	digest := f.leaf
	i := 0
	for level := uint8(0); level < Depth; level++ {
		if (f.position>>level)&1 == 1 {
			digest = h.Combine(level, f.ommers[i], digest)
			i++
		} else {
			digest = h.Combine(level, digest, empty[level])
		}
	}

	return digest
}

// ommerAddresses returns the address of every ommer in order.
func (f *Frontier) ommerAddresses() []Address {
	addrs := make([]Address, 0, len(f.ommers))
	for level := uint8(0); level < Depth; level++ {
		if (f.position>>level)&1 == 1 {
			addrs = append(
				addrs, AddressAbove(f.position, level).Sibling(),
			)
		}
	}

	return addrs
}
