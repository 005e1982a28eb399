// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// BlockRecord describes a scanned block.
type BlockRecord struct {
	Height uint32
	Hash   chainhash.Hash
	Time   uint32

	// SaplingTreeSize and OrchardTreeSize are the note commitment tree
	// sizes at the end of the block.
	SaplingTreeSize uint32
	OrchardTreeSize uint32

	SaplingOutputCount uint32
	OrchardActionCount uint32

	// TxIDs are the block's transactions that involve the wallet.
	TxIDs []chainhash.Hash
}

// PutBlock records a scanned block, replacing any block at the same height.
func (s *Store) PutBlock(b *BlockRecord) {
	cp := *b
	cp.TxIDs = append([]chainhash.Hash(nil), b.TxIDs...)
	s.blocks[b.Height] = &cp
}

// Block returns a copy of the block record at height.
func (s *Store) Block(height uint32) (BlockRecord, bool) {
	b, ok := s.blocks[height]
	if !ok {
		return BlockRecord{}, false
	}
	cp := *b
	cp.TxIDs = append([]chainhash.Hash(nil), b.TxIDs...)

	return cp, true
}

// MaxBlockHeight returns the height of the highest scanned block.
func (s *Store) MaxBlockHeight() fn.Option[uint32] {
	var (
		h     uint32
		found bool
	)
	for height := range s.blocks {
		if !found || height > h {
			h, found = height, true
		}
	}
	if !found {
		return fn.None[uint32]()
	}

	return fn.Some(h)
}

// BlockHeights returns the heights of every scanned block in ascending
// order.
func (s *Store) BlockHeights() []uint32 {
	heights := make([]uint32, 0, len(s.blocks))
	for h := range s.blocks {
		heights = append(heights, h)
	}
	sort.Slice(heights, func(i, j int) bool {
		return heights[i] < heights[j]
	})

	return heights
}
