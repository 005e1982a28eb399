// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shielded

import (
	"github.com/zecsuite/zecwallet/shardtree"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// prf is a domain separated BLAKE2b-256 pseudo random function.
func prf(domain string, parts ...[]byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write(p)
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// prfKeyed is a BLAKE2b-256 MAC keyed by key.
func prfKeyed(key [32]byte, domain string, parts ...[]byte) [32]byte {
	h, _ := blake2b.New256(key[:])
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write(p)
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// prf3 is a domain separated BLAKE3 hash used by the Orchard pool.
func prf3(domain string, parts ...[]byte) [32]byte {
	h := blake3.New()
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write(p)
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SaplingHasher builds the Sapling note commitment tree.
type SaplingHasher struct{}

// Combine hashes two children at level into their parent.
func (SaplingHasher) Combine(level uint8, left, right shardtree.Node) shardtree.Node {
	return shardtree.Node(prf("Zcash_SaplingMT", []byte{level},
		left[:], right[:]))
}

// EmptyLeaf returns the uncommitted Sapling leaf.
func (SaplingHasher) EmptyLeaf() shardtree.Node {
	return shardtree.Node{1}
}

// OrchardHasher builds the Orchard note commitment tree.
type OrchardHasher struct{}

// Combine hashes two children at level into their parent.
func (OrchardHasher) Combine(level uint8, left, right shardtree.Node) shardtree.Node {
	return shardtree.Node(prf3("z.cash:Orchard-MerkleCRH", []byte{level},
		left[:], right[:]))
}

// EmptyLeaf returns the uncommitted Orchard leaf.
func (OrchardHasher) EmptyLeaf() shardtree.Node {
	return shardtree.Node{2}
}

// HasherFor returns the tree hasher of the pool.
func HasherFor(p Protocol) shardtree.Hasher {
	if p == Orchard {
		return OrchardHasher{}
	}
	return SaplingHasher{}
}
