// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shardtree

import "fmt"

// MerklePath is the authentication path of a leaf against a tree root.
type MerklePath struct {
	Position uint64

	// AuthPath holds the sibling hash at every level, leaf level first.
	AuthPath [Depth]Node
}

// Root returns the root implied by the path for the given leaf value.
func (p *MerklePath) Root(h Hasher, leaf Node) Node {
	digest := leaf
	for level := uint8(0); level < Depth; level++ {
		if (p.Position>>level)&1 == 0 {
			digest = h.Combine(level, digest, p.AuthPath[level])
		} else {
			digest = h.Combine(level, p.AuthPath[level], digest)
		}
	}

	return digest
}

// WitnessAtCheckpoint returns the authentication path of the leaf at pos
// against the root as of checkpoint id. Every sibling along the path must
// be either complete in memory or entirely after the checkpoint.
func (s *ShardTree) WitnessAtCheckpoint(pos uint64, id uint32) (*MerklePath,
	error) {

	limit, err := s.checkpointLimit(id)
	if err != nil {
		return nil, err
	}
	if pos >= limit {
		return nil, treeError(ErrNotReachable,
			fmt.Sprintf("position %d is after checkpoint %d", pos, id),
			nil)
	}

	n, at := find(s.root, rootAddr, LeafAddress(pos))
	if n == nil || at.Level != 0 {
		return nil, treeError(ErrNotReachable,
			fmt.Sprintf("leaf %d is not retained", pos), nil)
	}

	path := &MerklePath{Position: pos}
	for level := uint8(0); level < Depth; level++ {
		sibling := AddressAbove(pos, level).Sibling()
		path.AuthPath[level], err = s.rootAt(sibling, limit)
		if err != nil {
			return nil, fmt.Errorf("witness for %d at checkpoint %d: "+
				"%w", pos, id, err)
		}
	}

	return path, nil
}

// rootAt returns the root of the subtree at addr with every position at or
// beyond limit treated as empty.
func (s *ShardTree) rootAt(addr Address, limit uint64) (Node, error) {
	if addr.Start() >= limit {
		return s.emptyRoots[addr.Level], nil
	}

	n, at := find(s.root, rootAddr, addr)
	if n != nil && at != addr {
		return Node{}, treeError(ErrNotReachable,
			fmt.Sprintf("%v lies inside pruned subtree %v", addr, at),
			nil)
	}

	return s.rootOf(n, addr, limit)
}

// IsWitnessable reports whether a witness for pos can be produced at the
// checkpoint id.
func (s *ShardTree) IsWitnessable(pos uint64, id uint32) bool {
	_, err := s.WitnessAtCheckpoint(pos, id)
	return err == nil
}
