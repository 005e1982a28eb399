// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"fmt"
	"io"
	"math/bits"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/zecsuite/zecwallet/shardtree"
	"github.com/zecsuite/zecwallet/shielded"
)

// ChainState is the state of the chain at the end of a block: its height
// and hash and the frontiers of both note commitment trees.
type ChainState struct {
	Height uint32
	Hash   chainhash.Hash

	SaplingFrontier *shardtree.Frontier
	OrchardFrontier *shardtree.Frontier
}

// NewChainState returns the state at height with empty trees.
func NewChainState(height uint32, hash chainhash.Hash) *ChainState {
	return &ChainState{
		Height:          height,
		Hash:            hash,
		SaplingFrontier: &shardtree.Frontier{},
		OrchardFrontier: &shardtree.Frontier{},
	}
}

// Frontier returns the frontier of a pool's tree.
func (s *ChainState) Frontier(p shielded.Protocol) *shardtree.Frontier {
	if p == shielded.Orchard {
		return s.OrchardFrontier
	}
	return s.SaplingFrontier
}

// TreeSize returns the number of leaves in a pool's tree.
func (s *ChainState) TreeSize(p shielded.Protocol) uint32 {
	return uint32(s.Frontier(p).Size())
}

// Clone returns a deep copy of the state.
func (s *ChainState) Clone() *ChainState {
	return &ChainState{
		Height:          s.Height,
		Hash:            s.Hash,
		SaplingFrontier: s.SaplingFrontier.Clone(),
		OrchardFrontier: s.OrchardFrontier.Clone(),
	}
}

// Next returns the state at the end of b, which must directly follow s.
// The tree sizes the block reports are checked against the appended
// commitments.
func (s *ChainState) Next(b *CompactBlock) (*ChainState, error) {
	if b.Height != s.Height+1 {
		return nil, fmt.Errorf("block %d does not follow state at %d",
			b.Height, s.Height)
	}
	if b.PrevHash != s.Hash {
		return nil, fmt.Errorf("block %d parent %v does not match "+
			"state hash %v", b.Height, b.PrevHash, s.Hash)
	}

	next := s.Clone()
	next.Height, next.Hash = b.Height, b.Hash

	for _, p := range shielded.Protocols {
		f := next.Frontier(p)
		h := shielded.HasherFor(p)
		for i := range b.Txs {
			for _, cm := range b.Txs[i].Commitments(p) {
				if err := f.Append(h, cm); err != nil {
					return nil, err
				}
			}
		}

		if want := b.ChainMetadata.TreeSize(p); uint64(want) != f.Size() {
			return nil, fmt.Errorf("block %d reports %v tree size %d, "+
				"computed %d", b.Height, p, want, f.Size())
		}
	}

	return next, nil
}

// Serialize encodes the state to w.
func (s *ChainState) Serialize(w io.Writer) error {
	if err := writeElements(w, s.Height, &s.Hash); err != nil {
		return err
	}
	for _, p := range shielded.Protocols {
		if err := writeFrontier(w, s.Frontier(p)); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize decodes a state from r into s.
func (s *ChainState) Deserialize(r io.Reader) error {
	if err := readElements(r, &s.Height, &s.Hash); err != nil {
		return err
	}

	var err error
	if s.SaplingFrontier, err = readFrontier(r); err != nil {
		return err
	}
	s.OrchardFrontier, err = readFrontier(r)

	return err
}

// Bytes returns the serialized state.
func (s *ChainState) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeChainState decodes a serialized state.
func DecodeChainState(data []byte) (*ChainState, error) {
	var s ChainState
	if err := s.Deserialize(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("invalid chain state: %w", err)
	}
	return &s, nil
}

// writeFrontier writes the tree size followed by the last leaf and its
// ommers when the tree is not empty.
func writeFrontier(w io.Writer, f *shardtree.Frontier) error {
	if err := wire.WriteVarInt(w, 0, f.Size()); err != nil {
		return err
	}
	if f.IsEmpty() {
		return nil
	}

	leaf := f.Leaf()
	if _, err := w.Write(leaf[:]); err != nil {
		return err
	}
	for _, o := range f.Ommers() {
		if _, err := w.Write(o[:]); err != nil {
			return err
		}
	}

	return nil
}

func readFrontier(r io.Reader) (*shardtree.Frontier, error) {
	size, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return &shardtree.Frontier{}, nil
	}
	if size > shardtree.MaxPosition {
		return nil, fmt.Errorf("frontier size %d out of range", size)
	}

	pos := size - 1
	var leaf shardtree.Node
	if _, err := io.ReadFull(r, leaf[:]); err != nil {
		return nil, err
	}
	ommers := make([]shardtree.Node, bits.OnesCount64(pos))
	for i := range ommers {
		if _, err := io.ReadFull(r, ommers[i][:]); err != nil {
			return nil, err
		}
	}

	return shardtree.NewFrontier(pos, leaf, ommers)
}
