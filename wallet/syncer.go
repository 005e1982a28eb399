// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/zecsuite/zecwallet/chain"
	"github.com/zecsuite/zecwallet/scanqueue"
)

const (
	// DefaultSyncBatchSize is the number of blocks scanned per call to
	// Scan.
	DefaultSyncBatchSize = 1000

	// DefaultPollInterval is how often the syncer checks the source for
	// a new chain tip.
	DefaultPollInterval = 30 * time.Second

	// maxRewinds bounds the reorgs handled by one SyncOnce call.
	maxRewinds = 10
)

// SyncerConfig holds the dependencies of a Syncer.
type SyncerConfig struct {
	// Wallet is the wallet kept in sync.
	Wallet *Wallet

	// Source serves compact blocks, chain states and the chain tip.
	Source chain.Source

	// BatchSize is the number of blocks scanned at once. Zero selects
	// DefaultSyncBatchSize.
	BatchSize int

	// Ticker paces polling for new blocks. When nil a ticker with
	// DefaultPollInterval is used.
	Ticker ticker.Ticker
}

// Syncer drives a wallet's scan loop against a block source: it reports
// the chain tip, scans the suggested ranges in priority order, rewinds on
// reorgs and saves the wallet after every batch.
type Syncer struct {
	started int32
	stopped int32

	cfg    SyncerConfig
	ticker ticker.Ticker

	gm *fn.GoroutineManager
}

// NewSyncer returns a syncer for cfg.
func NewSyncer(cfg SyncerConfig) *Syncer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSyncBatchSize
	}
	t := cfg.Ticker
	if t == nil {
		t = ticker.New(DefaultPollInterval)
	}

	return &Syncer{
		cfg:    cfg,
		ticker: t,
		gm:     fn.NewGoroutineManager(),
	}
}

// Start launches the sync loop.
func (s *Syncer) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil
	}

	log.Info("Starting wallet syncer")

	s.ticker.Resume()
	if !s.gm.Go(context.Background(), s.syncLoop) {
		return fmt.Errorf("syncer is shutting down")
	}

	return nil
}

// Stop cancels a sync in progress and waits for the loop to exit.
func (s *Syncer) Stop() {
	if !atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		return
	}

	log.Info("Wallet syncer shutting down")

	s.gm.Stop()
	s.ticker.Stop()
}

func (s *Syncer) syncLoop(ctx context.Context) {
	for {
		err := s.SyncOnce(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			log.Errorf("Unable to sync wallet: %v", err)
		}

		select {
		case <-s.ticker.Ticks():
		case <-ctx.Done():
			return
		}
	}
}

// SyncOnce updates the chain tip and scans until no range is left to scan.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	w := s.cfg.Wallet

	tip, err := s.cfg.Source.BestHeight(ctx)
	if err != nil {
		return fmt.Errorf("unable to fetch chain tip: %w", err)
	}
	w.UpdateChainTip(tip)

	var rewinds int
	for {
		ranges := w.SuggestScanRanges()
		if len(ranges) == 0 {
			return nil
		}

		err := s.scanRange(ctx, ranges[0])
		var mismatch *PrevHashMismatchError
		switch {
		case errors.As(err, &mismatch):
			rewinds++
			if rewinds > maxRewinds {
				return fmt.Errorf("giving up after %d rewinds: %w",
					maxRewinds, err)
			}
			if err := s.rewind(mismatch.Height); err != nil {
				return err
			}

			// The truncated blocks are queued again.
			w.UpdateChainTip(tip)

		case err != nil:
			return err
		}
	}
}

// scanRange scans r in batches, saving the wallet after each.
func (s *Syncer) scanRange(ctx context.Context, r scanqueue.Range) error {
	w := s.cfg.Wallet

	log.Debugf("Scanning range %v", r)

	for start := r.Start; start < r.End; {
		if start == 0 {
			return fmt.Errorf("cannot scan the genesis block")
		}
		from, err := s.cfg.Source.ChainState(ctx, start-1)
		if err != nil {
			return fmt.Errorf("unable to fetch chain state at %d: %w",
				start-1, err)
		}

		n := min(int(r.End-start), s.cfg.BatchSize)
		blocks := make([]*chain.CompactBlock, 0, n)
		err = s.cfg.Source.WithBlocks(
			ctx, fn.Some(start), fn.Some(n),
			func(b *chain.CompactBlock) error {
				blocks = append(blocks, b)
				return nil
			},
		)
		if err != nil {
			return err
		}
		if len(blocks) == 0 {
			return fmt.Errorf("%w: source has no block at %d",
				chain.ErrBlockNotFound, start)
		}

		if err := w.Scan(ctx, from, blocks); err != nil {
			return err
		}
		if err := w.Save(); err != nil {
			return fmt.Errorf("unable to save wallet: %w", err)
		}

		start = blocks[len(blocks)-1].Height + 1
	}

	return nil
}

// rewind truncates the wallet below a block that failed to connect, far
// enough back to leave the blocks following it to verification.
func (s *Syncer) rewind(height uint32) error {
	w := s.cfg.Wallet

	target := uint32(0)
	if height > scanqueue.VerifyLookahead+1 {
		target = height - scanqueue.VerifyLookahead - 1
	}
	w.Manager.WalletBirthday().WhenSome(func(bday uint32) {
		if bday > 0 {
			target = max(target, bday-1)
		}
	})

	log.Infof("Chain reorganization detected at height %d, rewinding "+
		"to %d", height, target)

	if _, err := w.TruncateToHeight(target); err != nil {
		return err
	}
	return w.Save()
}
