// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/chain"
	"github.com/zecsuite/zecwallet/scanqueue"
	"github.com/zecsuite/zecwallet/shardtree"
	"github.com/zecsuite/zecwallet/shielded"
	"github.com/zecsuite/zecwallet/wtxmgr"
)

// Scan applies a contiguous run of compact blocks to the wallet. from is
// the chain state at the block below blocks[0].
//
// Outputs are first trial-decrypted in parallel. The blocks are then
// applied in order to staged copies of the note ledger and trees, which
// replace the wallet's only once every block applied, so a failure leaves
// the wallet unchanged. When ctx is cancelled between blocks, the blocks
// already applied are kept and ctx.Err() is returned.
//
// A block that does not connect to from, to its predecessor in blocks, or
// to the block the wallet already holds below it fails with a
// *PrevHashMismatchError. The caller is expected to truncate and retry.
func (w *Wallet) Scan(ctx context.Context, from *chain.ChainState,
	blocks []*chain.CompactBlock) error {

	if len(blocks) == 0 {
		return nil
	}
	if err := checkContinuity(from, blocks); err != nil {
		return err
	}

	scanStart := time.Now()

	results, err := w.decryptBlocks(ctx, blocks)
	if err != nil {
		return err
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()

	stored, ok := w.txStore.Block(from.Height)
	if ok && stored.Hash != from.Hash {
		return &PrevHashMismatchError{Height: blocks[0].Height}
	}

	st := &scanState{
		known: w.txStore,
		store: w.txStore.Clone(),
		trees: cloneTrees(w.trees),
		sizes: make(map[shielded.Protocol]uint64),
		found: make(map[shielded.Protocol][]uint64),
	}
	if err := st.seed(from); err != nil {
		return err
	}

	var (
		scanned   int
		cancelErr error
	)
	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			cancelErr = err
			break
		}
		if err := st.scanBlock(b, results); err != nil {
			return err
		}
		scanned++
	}
	if scanned == 0 {
		return cancelErr
	}

	first, last := blocks[0].Height, blocks[scanned-1].Height
	w.commitScan(st, first, last)

	log.Infof("Scanned %d %s [%d, %d] in %v: %d %s found, %d %s",
		scanned, pickNoun(scanned, "block", "blocks"), first, last,
		time.Since(scanStart).Round(time.Millisecond), len(results),
		pickNoun(len(results), "note", "notes"), len(st.walletTxs),
		pickNoun(len(st.walletTxs), "transaction", "transactions"))

	return cancelErr
}

// checkContinuity verifies that blocks directly follow from and each other
// and that the tree sizes they report match their outputs.
func checkContinuity(from *chain.ChainState,
	blocks []*chain.CompactBlock) error {

	sizes := make(map[shielded.Protocol]uint64)
	for _, p := range shielded.Protocols {
		sizes[p] = uint64(from.TreeSize(p))
	}

	prevHeight, prevHash := from.Height, from.Hash
	for _, b := range blocks {
		if b.Height != prevHeight+1 {
			str := fmt.Sprintf("block %d does not follow block %d",
				b.Height, prevHeight)
			return walletError(ErrNonSequentialBlocks, str, nil)
		}
		if b.PrevHash != prevHash {
			return &PrevHashMismatchError{Height: b.Height}
		}

		for _, p := range shielded.Protocols {
			sizes[p] += uint64(b.OutputCount(p))
			reported := uint64(b.ChainMetadata.TreeSize(p))
			if reported != sizes[p] {
				return corrupted("block %d reports %v tree "+
					"size %d, computed %d", b.Height, p,
					reported, sizes[p])
			}
		}

		prevHeight, prevHash = b.Height, b.Hash
	}

	return nil
}

// decryptBlocks trial-decrypts every shielded output of blocks with the
// wallet's incoming viewing keys.
func (w *Wallet) decryptBlocks(ctx context.Context,
	blocks []*chain.CompactBlock) (map[wtxmgr.NoteID]decrypted, error) {

	runner := newBatchRunner(ctx, w.Manager.ScanningKeys(), w.cfg.batchSize)
	for _, b := range blocks {
		for i := range b.Txs {
			t := &b.Txs[i]
			for j := range t.SaplingOutputs {
				runner.Add(decryptTask{
					ref: wtxmgr.NoteID{
						TxID:     t.TxID,
						Protocol: shielded.Sapling,
						Index:    uint16(j),
					},
					output: &t.SaplingOutputs[j],
				})
			}
			for j := range t.OrchardActions {
				a := &t.OrchardActions[j]
				runner.Add(decryptTask{
					ref: wtxmgr.NoteID{
						TxID:     t.TxID,
						Protocol: shielded.Orchard,
						Index:    uint16(j),
					},
					output: &a.Output,
					rho:    a.Nullifier,
				})
			}
		}
	}

	return runner.Flush()
}

// pendingUnmark is a mark to release once the checkpoint of the block that
// spent the note exists.
type pendingUnmark struct {
	protocol shielded.Protocol
	position uint64
	asOf     uint32
}

// scanState is the staged wallet state of a scan in progress.
type scanState struct {
	// known is the ledger before the scan.
	known *wtxmgr.Store

	store *wtxmgr.Store
	trees map[shielded.Protocol]*shardtree.ShardTree

	// sizes is the size of each tree after the last applied block.
	sizes map[shielded.Protocol]uint64

	// found holds the positions of notes received during the scan.
	found map[shielded.Protocol][]uint64

	walletTxs []chainhash.Hash
	newTxs    []chainhash.Hash
}

// seed inserts the frontiers of the state below the first block.
func (s *scanState) seed(from *chain.ChainState) error {
	for _, p := range shielded.Protocols {
		err := s.trees[p].InsertFrontier(
			from.Frontier(p), from.Height,
			shardtree.RetentionEphemeral,
		)
		if err != nil {
			return fmt.Errorf("unable to insert %v frontier at "+
				"height %d: %w", p, from.Height, err)
		}
		s.sizes[p] = uint64(from.TreeSize(p))
	}
	return nil
}

func (s *scanState) noteWalletTx(txid chainhash.Hash) {
	s.walletTxs = append(s.walletTxs, txid)
	if _, ok := s.known.Tx(&txid); !ok {
		s.newTxs = append(s.newTxs, txid)
	}
}

// scanBlock applies one block: spends first, then outputs, transaction by
// transaction, followed by the tree appends and checkpoints.
func (s *scanState) scanBlock(b *chain.CompactBlock,
	results map[wtxmgr.NoteID]decrypted) error {

	var (
		blockTxs []chainhash.Hash
		unmark   []pendingUnmark
		start    = make(map[shielded.Protocol]uint64)
		leaves   = make(map[shielded.Protocol][]shardtree.Leaf)
	)
	for _, p := range shielded.Protocols {
		start[p] = s.sizes[p]
	}

	for i := range b.Txs {
		t := &b.Txs[i]
		loc := wtxmgr.Locator{Height: b.Height, TxIndex: t.Index}

		var ours, revealed bool
		for _, p := range shielded.Protocols {
			for _, nf := range t.Nullifiers(p) {
				revealed = true
				s.store.RecordNullifier(p, nf, loc)

				id := s.store.NoteByNullifier(p, nf)
				if id.IsNone() {
					continue
				}
				noteID := id.UnsafeFromSome()
				if err := s.store.MarkSpent(noteID, &t.TxID); err != nil {
					return err
				}
				ours = true

				n, _ := s.store.ReceivedNote(noteID)
				n.Position.WhenSome(func(pos uint64) {
					unmark = append(unmark, pendingUnmark{
						protocol: p,
						position: pos,
						asOf:     b.Height,
					})
				})
			}
		}

		for _, p := range shielded.Protocols {
			for j, cm := range t.Commitments(p) {
				pos := s.sizes[p]
				s.sizes[p]++

				leaf := shardtree.Leaf{
					Value:     cm,
					Retention: shardtree.RetentionEphemeral,
				}
				ref := wtxmgr.NoteID{
					TxID: t.TxID, Protocol: p, Index: uint16(j),
				}
				if d, ok := results[ref]; ok {
					leaf.Retention = shardtree.RetentionMarked
					ours = true

					u, err := s.receive(ref, d, pos)
					if err != nil {
						return err
					}
					unmark = append(unmark, u...)
				}
				leaves[p] = append(leaves[p], leaf)
			}
		}

		if revealed || ours {
			if err := s.store.InsertTxLocator(loc, &t.TxID); err != nil {
				return err
			}
		}
		if ours {
			s.store.PutTxMeta(&t.TxID, b.Height, t.Index)
			blockTxs = append(blockTxs, t.TxID)
			s.noteWalletTx(t.TxID)
		}
	}

	for _, p := range shielded.Protocols {
		tree := s.trees[p]
		if err := tree.BatchInsert(start[p], leaves[p]); err != nil {
			return fmt.Errorf("unable to append %v commitments of "+
				"block %d: %w", p, b.Height, err)
		}

		pos := fn.None[uint64]()
		if s.sizes[p] > 0 {
			pos = fn.Some(s.sizes[p] - 1)
		}
		if err := tree.AddCheckpoint(b.Height, pos); err != nil {
			return fmt.Errorf("unable to checkpoint %v tree at "+
				"block %d: %w", p, b.Height, err)
		}
	}
	for _, u := range unmark {
		s.trees[u.protocol].RemoveMark(u.position, fn.Some(u.asOf))
	}

	s.store.PutBlock(&wtxmgr.BlockRecord{
		Height:             b.Height,
		Hash:               b.Hash,
		Time:               b.Time,
		SaplingTreeSize:    b.ChainMetadata.SaplingTreeSize,
		OrchardTreeSize:    b.ChainMetadata.OrchardTreeSize,
		SaplingOutputCount: uint32(b.OutputCount(shielded.Sapling)),
		OrchardActionCount: uint32(b.OutputCount(shielded.Orchard)),
		TxIDs:              blockTxs,
	})

	return nil
}

// receive records a decrypted output at its tree position. When the note's
// nullifier was already revealed by a scanned transaction the note is
// marked spent by it, and the mark to release is returned.
func (s *scanState) receive(ref wtxmgr.NoteID, d decrypted,
	pos uint64) ([]pendingUnmark, error) {

	nf := d.key.FVK.Nullifier(d.note, pos)
	err := s.store.InsertReceivedNote(&wtxmgr.ReceivedNote{
		ID:        ref,
		Account:   d.key.Account,
		Note:      *d.note,
		Nullifier: fn.Some(nf),
		Position:  fn.Some(pos),
		Scope:     fn.Some(d.key.Scope),
		IsChange:  d.key.Scope == shielded.Internal,
	})
	if err != nil {
		return nil, err
	}
	s.found[ref.Protocol] = append(s.found[ref.Protocol], pos)

	loc := s.store.NullifierLocator(ref.Protocol, nf)
	if loc.IsNone() {
		return nil, nil
	}
	at := loc.UnsafeFromSome()
	spender := s.store.TxIDAt(at)
	if spender.IsNone() {
		return nil, nil
	}
	txid := spender.UnsafeFromSome()

	s.store.PutTxMeta(&txid, at.Height, at.TxIndex)
	if err := s.store.MarkSpent(ref, &txid); err != nil {
		return nil, err
	}
	if _, ok := s.known.Tx(&txid); !ok {
		s.newTxs = append(s.newTxs, txid)
	}

	log.Debugf("Note %v was spent earlier by %v at %v", ref, txid, at)

	return []pendingUnmark{{
		protocol: ref.Protocol,
		position: pos,
		asOf:     at.Height,
	}}, nil
}

// commitScan installs the staged state of a scan of [first, last] and
// updates the scan queue and data requests. It must be called with the
// write lock held.
func (w *Wallet) commitScan(st *scanState, first, last uint32) {
	w.txStore = st.store
	w.trees = st.trees

	w.scanCompleteLocked(first, last+1, st.found)

	for _, txid := range st.newTxs {
		w.requests = queueRequests(w.requests, enhancementRequest(txid))
	}

	w.chainTip.WhenSome(func(tip uint32) {
		if last > tip {
			w.chainTip = fn.Some(last)
		}
	})
}

// scanCompleteLocked marks [start, end) scanned. Where notes were found the
// rest of the shards holding them is queued with FoundNote priority: back
// to the end of the shard before the first note and forward to the end of
// the shard of the last one, or to the chain tip when that shard is not
// complete yet.
func (w *Wallet) scanCompleteLocked(start, end uint32,
	found map[shielded.Protocol][]uint64) {

	entries := []scanqueue.Range{
		scanqueue.NewRange(start, end, scanqueue.Scanned),
	}

	for _, p := range shielded.Protocols {
		positions := found[p]
		if len(positions) == 0 {
			continue
		}
		lo, hi := positions[0], positions[0]
		for _, pos := range positions[1:] {
			lo, hi = min(lo, pos), max(hi, pos)
		}
		tree := w.trees[p]

		if first := shardtree.ShardIndex(lo); first > 0 {
			tree.SubtreeEndHeight(first - 1).WhenSome(func(h uint32) {
				if h < start {
					entries = append(entries, scanqueue.NewRange(
						h, start, scanqueue.FoundNote,
					))
				}
			})
		}

		next := fn.MapOption(func(h uint32) uint32 {
			return h + 1
		})
		extEnd := next(tree.SubtreeEndHeight(shardtree.ShardIndex(hi)))
		if extEnd.IsNone() {
			extEnd = next(w.chainTip)
		}
		extEnd.WhenSome(func(e uint32) {
			if e > end {
				entries = append(entries, scanqueue.NewRange(
					end, e, scanqueue.FoundNote,
				))
			}
		})
	}

	w.queue.Replace(entries, false)
}
