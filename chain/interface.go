// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain provides the compact block model the wallet scans, the
// chain states that seed its note commitment trees, and the sources that
// serve both: an in-memory source and a SQLite backed block cache.
package chain

import (
	"context"
	"errors"

	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrBlockNotFound is returned when a source does not hold the
	// requested block.
	ErrBlockNotFound = errors.New("block not found")

	// ErrChainStateNotFound is returned when a source does not hold the
	// chain state at the requested height.
	ErrChainStateNotFound = errors.New("chain state not found")

	// ErrNoBlocks is returned by TipSource implementations that hold no
	// block at all.
	ErrNoBlocks = errors.New("no blocks")
)

// BlockSource streams compact blocks.
type BlockSource interface {
	// WithBlocks calls f with each block of increasing height starting
	// at from, or at the first block held when from is none, and stops
	// after limit blocks when a limit is given. An error returned by f
	// stops the stream and is returned.
	WithBlocks(ctx context.Context, from fn.Option[uint32],
		limit fn.Option[int], f func(*CompactBlock) error) error
}

// ChainStateSource serves the chain state at the end of a block.
type ChainStateSource interface {
	ChainState(ctx context.Context, height uint32) (*ChainState, error)
}

// TipSource reports the height of the best known block.
type TipSource interface {
	BestHeight(ctx context.Context) (uint32, error)
}

// Source is everything the wallet's syncer consumes.
type Source interface {
	BlockSource
	ChainStateSource
	TipSource
}
