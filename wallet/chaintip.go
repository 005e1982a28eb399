// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"fmt"
	"sort"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/scanqueue"
	"github.com/zecsuite/zecwallet/shardtree"
	"github.com/zecsuite/zecwallet/shielded"
)

// UpdateChainTip records a new chain tip and queues the blocks up to it for
// scanning. A tip below Sapling activation, or below a block the wallet
// already scanned, is ignored; a reorg below scanned blocks is handled by
// TruncateToHeight.
func (w *Wallet) UpdateChainTip(tip uint32) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if tip < w.params.SaplingActivationHeight {
		log.Debugf("Ignoring chain tip %d below Sapling activation", tip)
		return
	}
	if maxHeight := w.txStore.MaxBlockHeight(); maxHeight.IsSome() &&
		tip < maxHeight.UnsafeFromSome() {

		log.Debugf("Ignoring chain tip %d below scanned block %d", tip,
			maxHeight.UnsafeFromSome())
		return
	}

	w.updateTipLocked(tip)
}

// updateTipLocked must be called with the write lock held.
func (w *Wallet) updateTipLocked(tip uint32) {
	w.chainTip = fn.Some(tip)

	shardEnd := fn.None[uint32]()
	for _, p := range shielded.Protocols {
		w.trees[p].MaxSubtreeEndHeight().WhenSome(func(h uint32) {
			if shardEnd.IsNone() || h > shardEnd.UnsafeFromSome() {
				shardEnd = fn.Some(h)
			}
		})
	}

	w.queue.UpdateTip(scanqueue.TipParams{
		Tip:               tip,
		MaxScanned:        w.queue.MaxScanned(),
		Birthday:          w.Manager.WalletBirthday(),
		ShardEnd:          shardEnd,
		SaplingActivation: w.params.SaplingActivationHeight,
	})
}

// TruncateToHeight rewinds the wallet to the latest block at or below
// height for which both note commitment trees hold a checkpoint, and
// returns that block's height. Blocks, nullifier observations and tree
// data above it are dropped and transactions mined above it become
// unmined.
func (w *Wallet) TruncateToHeight(height uint32) (uint32, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	target := commonCheckpoint(w.trees, height)
	if target.IsNone() {
		str := fmt.Sprintf("no checkpoint at or below height %d", height)
		cause := shardtree.TreeError{
			ErrorCode:   shardtree.ErrRewindTooDeep,
			Description: str,
		}
		return 0, walletError(ErrRequestedRewindInvalid, str, cause)
	}
	cp := target.UnsafeFromSome()

	trees := cloneTrees(w.trees)
	for _, p := range shielded.Protocols {
		if err := trees[p].TruncateToCheckpoint(cp); err != nil {
			str := fmt.Sprintf("unable to rewind %v tree to %d", p, cp)
			return 0, walletError(ErrRequestedRewindInvalid, str, err)
		}
	}
	w.trees = trees

	w.txStore.Truncate(cp)
	w.queue.TruncateTo(cp)
	w.Manager.Truncate(cp)
	w.chainTip = fn.MapOption(func(tip uint32) uint32 {
		return min(tip, cp)
	})(w.chainTip)

	log.Infof("Truncated wallet to height %d (requested %d)", cp, height)

	return cp, nil
}

// commonCheckpoint returns the latest checkpoint id at or below height that
// every tree holds.
func commonCheckpoint(trees map[shielded.Protocol]*shardtree.ShardTree,
	height uint32) fn.Option[uint32] {

	counts := make(map[uint32]int)
	for _, p := range shielded.Protocols {
		for _, cp := range trees[p].Checkpoints() {
			if cp.ID <= height {
				counts[cp.ID]++
			}
		}
	}

	var ids []uint32
	for id, n := range counts {
		if n == len(shielded.Protocols) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return fn.None[uint32]()
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})

	return fn.Some(ids[len(ids)-1])
}

// PutSubtreeRoots records complete shard roots of a pool's tree, starting
// at shard index start, as served by a trusted indexer. Blocks below the
// latest complete shard no longer need to be scanned for the tree to be
// usable.
func (w *Wallet) PutSubtreeRoots(p shielded.Protocol, start uint64,
	roots []shardtree.SubtreeRoot) error {

	w.mtx.Lock()
	defer w.mtx.Unlock()

	tree, ok := w.trees[p]
	if !ok {
		return fmt.Errorf("%w: %v", shielded.ErrUnknownProtocol, p)
	}
	staged := tree.Clone()
	if err := staged.PutSubtreeRoots(start, roots); err != nil {
		return err
	}
	w.trees[p] = staged

	log.Debugf("Stored %d %v subtree %s from index %d", len(roots), p,
		pickNoun(len(roots), "root", "roots"), start)

	w.chainTip.WhenSome(func(tip uint32) {
		w.updateTipLocked(tip)
	})

	return nil
}

// SuggestScanRanges returns the ranges that still need scanning, most
// urgent first.
func (w *Wallet) SuggestScanRanges() []scanqueue.Range {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	return w.queue.SuggestNext(scanqueue.Historic)
}

// ScanQueue returns the whole scan queue in height order.
func (w *Wallet) ScanQueue() []scanqueue.Range {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	return w.queue.Ranges()
}

// ChainHeight returns the last chain tip passed to UpdateChainTip.
func (w *Wallet) ChainHeight() fn.Option[uint32] {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	return w.chainTip
}

// BlockFullyScanned returns the highest height below which every block of
// interest has been scanned.
func (w *Wallet) BlockFullyScanned() fn.Option[uint32] {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	return w.queue.FullyScannedTo()
}

// BlockMaxScanned returns the highest scanned height.
func (w *Wallet) BlockMaxScanned() fn.Option[uint32] {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	return w.txStore.MaxBlockHeight()
}
