// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// MemorySource is a Source that holds a contiguous run of blocks in memory
// along with the chain state after each of them.
type MemorySource struct {
	mtx sync.RWMutex

	// states[i] is the state at base.Height + i.
	states []*ChainState
	blocks []*CompactBlock
}

// A compile-time assertion to ensure that MemorySource meets the Source
// interface.
var _ Source = (*MemorySource)(nil)

// NewMemorySource returns a source whose first block will follow base.
func NewMemorySource(base *ChainState) *MemorySource {
	return &MemorySource{
		states: []*ChainState{base.Clone()},
	}
}

func (m *MemorySource) tip() *ChainState {
	return m.states[len(m.states)-1]
}

// AddBlock appends a block, which must extend the current tip.
func (m *MemorySource) AddBlock(b *CompactBlock) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	next, err := m.tip().Next(b)
	if err != nil {
		return err
	}
	m.blocks = append(m.blocks, b)
	m.states = append(m.states, next)

	log.Tracef("Added block %d (%v) to memory source: %v", b.Height,
		b.Hash, NewLogClosure(func() string {
			return spew.Sdump(b.ChainMetadata)
		}))

	return nil
}

// Tip returns a copy of the state at the best block.
func (m *MemorySource) Tip() *ChainState {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	return m.tip().Clone()
}

// Truncate drops every block above height. Truncating below the base state
// is an error.
func (m *MemorySource) Truncate(height uint32) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	base := m.states[0].Height
	if height < base {
		return fmt.Errorf("cannot truncate to %d below base %d", height,
			base)
	}
	keep := int(height - base)
	if keep >= len(m.blocks) {
		return nil
	}
	m.blocks = m.blocks[:keep]
	m.states = m.states[:keep+1]

	return nil
}

// WithBlocks streams the held blocks.
func (m *MemorySource) WithBlocks(ctx context.Context, from fn.Option[uint32],
	limit fn.Option[int], f func(*CompactBlock) error) error {

	m.mtx.RLock()
	base := m.states[0].Height
	start := 0
	from.WhenSome(func(h uint32) {
		if h > base {
			start = int(h - base - 1)
		}
	})
	var blocks []*CompactBlock
	if start < len(m.blocks) {
		blocks = append(blocks, m.blocks[start:]...)
	}
	m.mtx.RUnlock()

	limit.WhenSome(func(n int) {
		if n >= 0 && n < len(blocks) {
			blocks = blocks[:n]
		}
	})

	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f(b); err != nil {
			return err
		}
	}

	return nil
}

// ChainState returns the state at the end of the block at height.
func (m *MemorySource) ChainState(_ context.Context,
	height uint32) (*ChainState, error) {

	m.mtx.RLock()
	defer m.mtx.RUnlock()

	base := m.states[0].Height
	if height < base || int(height-base) >= len(m.states) {
		return nil, fmt.Errorf("%w: height %d", ErrChainStateNotFound,
			height)
	}

	return m.states[height-base].Clone(), nil
}

// BestHeight returns the height of the last block, or of the base state
// when no block was added.
func (m *MemorySource) BestHeight(context.Context) (uint32, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	return m.tip().Height, nil
}

// Block returns the block at height.
func (m *MemorySource) Block(height uint32) (*CompactBlock, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	base := m.states[0].Height
	if height <= base || int(height-base) > len(m.blocks) {
		return nil, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
	}

	return m.blocks[height-base-1], nil
}
