// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/shielded"
)

// Truncate rolls the ledger back to height. Transactions mined above height
// become unmined, and the blocks, nullifier observations and transaction
// locators above height are dropped. Notes in unmined transactions lose their
// tree positions, which are reassigned when their block is scanned again.
// Spends are kept: a spend by a transaction that is mined again resumes, and
// an unmined spend is subject to its expiry.
func (s *Store) Truncate(height uint32) {
	var unmined int
	for _, e := range s.txs {
		if e.Status.State == TxMined && e.Status.Height > height {
			e.Status = StatusNotMined
			e.Block = fn.None[uint32]()
			e.TxIndex = fn.None[uint16]()
			unmined++
		}
	}

	for h := range s.blocks {
		if h > height {
			delete(s.blocks, h)
		}
	}
	for k, loc := range s.nullifiers {
		if loc.Height > height {
			delete(s.nullifiers, k)
		}
	}
	for loc := range s.locators {
		if loc.Height > height {
			delete(s.locators, loc)
		}
	}

	for _, n := range s.notes {
		e, ok := s.txs[n.ID.TxID]
		if ok && e.Status.State == TxMined {
			continue
		}
		n.Position = fn.None[uint64]()

		// Sapling nullifiers are derived from the position and are
		// recomputed when the note is mined again.
		if n.ID.Protocol == shielded.Sapling {
			n.nullifierKey().WhenSome(func(k nullifierKey) {
				delete(s.byNullifier, k)
			})
			n.Nullifier = fn.None[shielded.Nullifier]()
		}
	}

	for _, o := range s.utxos {
		o.MaxObservedUnspent = min(o.MaxObservedUnspent, height)
	}

	log.Infof("Truncated transaction store to height %d (%d transactions "+
		"unmined)", height, unmined)
}
