// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shielded"
	"github.com/zecsuite/zecwallet/wtxmgr"
)

// Memo returns the memo of a received or sent shielded output. A known
// output whose memo has not been recovered yet, as happens for notes seen
// only in compact blocks, yields no memo.
func (w *Wallet) Memo(id wtxmgr.NoteID) (fn.Option[shielded.Memo], error) {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	if n, ok := w.txStore.ReceivedNote(id); ok {
		return n.Memo, nil
	}

	key := wtxmgr.SentOutputKey{
		TxID:  id.TxID,
		Pool:  wtxmgr.ShieldedPool(id.Protocol),
		Index: id.Index,
	}
	if o, ok := w.txStore.SentOutput(key); ok {
		return o.Memo, nil
	}

	return fn.None[shielded.Memo](), wtxmgr.TxStoreError{
		ErrorCode:   wtxmgr.ErrNoteNotFound,
		Description: fmt.Sprintf("no output %v", id),
	}
}

// Transaction returns what the wallet knows about a transaction.
func (w *Wallet) Transaction(txid *chainhash.Hash) (*wtxmgr.TxEntry, error) {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	e, ok := w.txStore.Tx(txid)
	if !ok {
		return nil, wtxmgr.TxStoreError{
			ErrorCode:   wtxmgr.ErrTxNotFound,
			Description: fmt.Sprintf("transaction %v not found", txid),
		}
	}
	return &e, nil
}

// TxHeight returns the height a transaction is mined at.
func (w *Wallet) TxHeight(txid *chainhash.Hash) fn.Option[uint32] {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	return w.txStore.TxStatus(txid).MinedHeight()
}

// NoteNullifier is the nullifier of a tracked note.
type NoteNullifier struct {
	ID        wtxmgr.NoteID
	Account   uint32
	Nullifier shielded.Nullifier
}

// Nullifiers returns the nullifiers of the notes the wallet tracks in a
// pool, optionally only those of unspent notes. A remote indexer can be
// asked for spends of these.
func (w *Wallet) Nullifiers(p shielded.Protocol,
	unspentOnly bool) ([]NoteNullifier, error) {

	w.mtx.RLock()
	defer w.mtx.RUnlock()

	notes := w.txStore.ReceivedNotes(func(n *wtxmgr.ReceivedNote) bool {
		return n.ID.Protocol == p && n.Nullifier.IsSome()
	})

	nfs := make([]NoteNullifier, 0, len(notes))
	for _, n := range notes {
		if unspentOnly {
			spent, err := w.txStore.IsSpent(n.ID, w.chainTip, 0)
			if err != nil {
				return nil, err
			}
			if spent {
				continue
			}
		}
		nfs = append(nfs, NoteNullifier{
			ID:        n.ID,
			Account:   n.Account,
			Nullifier: n.Nullifier.UnsafeFromSome(),
		})
	}

	return nfs, nil
}

// TransparentBalances returns the spendable value held by each transparent
// address of an account at minConf confirmations.
func (w *Wallet) TransparentBalances(account uint32,
	minConf uint32) (map[string]unit.Zatoshi, error) {

	w.mtx.RLock()
	defer w.mtx.RUnlock()

	target, _, err := w.targetAndAnchorLocked(minConf)
	if err != nil {
		return nil, err
	}
	utxos, err := w.txStore.SpendableUTXOs(account, target, max(minConf, 1))
	if err != nil {
		return nil, err
	}

	balances := make(map[string]unit.Zatoshi)
	for i := range utxos {
		o := &utxos[i]
		balances[o.Address], err = balances[o.Address].Add(o.Value())
		if err != nil {
			return nil, err
		}
	}

	return balances, nil
}

// SentNoteIDs returns the shielded outputs the wallet recorded as sent in a
// transaction.
func (w *Wallet) SentNoteIDs(txid *chainhash.Hash) []wtxmgr.NoteID {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	var ids []wtxmgr.NoteID
	for _, o := range w.txStore.SentOutputs(txid) {
		p, ok := o.Key.Pool.Protocol()
		if !ok {
			continue
		}
		ids = append(ids, wtxmgr.NoteID{
			TxID:     o.Key.TxID,
			Protocol: p,
			Index:    o.Key.Index,
		})
	}
	return ids
}

// TxSummary describes the effect of a transaction on the wallet.
type TxSummary struct {
	TxID   chainhash.Hash
	Status wtxmgr.TxStatus
	Fee    fn.Option[unit.Zatoshi]

	// Received is the value of notes the transaction paid the wallet.
	Received unit.Zatoshi

	// Spent is the value of the wallet's notes the transaction spent.
	Spent unit.Zatoshi

	// Sent is the value of the recorded outputs to other wallets.
	Sent unit.Zatoshi
}

// TxHistory returns a summary of every transaction involving the wallet,
// mined transactions first in chain order, then unmined ones.
func (w *Wallet) TxHistory() ([]TxSummary, error) {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	byTx := make(map[chainhash.Hash]*TxSummary)
	summary := func(txid chainhash.Hash) *TxSummary {
		s, ok := byTx[txid]
		if !ok {
			s = &TxSummary{TxID: txid}
			byTx[txid] = s
		}
		return s
	}

	var err error
	for _, n := range w.txStore.ReceivedNotes(nil) {
		s := summary(n.ID.TxID)
		if s.Received, err = s.Received.Add(n.Value()); err != nil {
			return nil, err
		}
		spender := w.txStore.SpendingTx(n.ID)
		if spender.IsNone() {
			continue
		}
		s = summary(spender.UnsafeFromSome())
		if s.Spent, err = s.Spent.Add(n.Value()); err != nil {
			return nil, err
		}
	}
	for _, o := range w.txStore.SentOutputs(nil) {
		if o.ToAccount.IsSome() {
			continue
		}
		s := summary(o.Key.TxID)
		if s.Sent, err = s.Sent.Add(o.Value); err != nil {
			return nil, err
		}
	}

	history := make([]TxSummary, 0, len(byTx))
	for txid, s := range byTx {
		e, ok := w.txStore.Tx(&txid)
		if ok {
			s.Status = e.Status
			s.Fee = e.Fee
		}
		history = append(history, *s)
	}
	sort.Slice(history, func(i, j int) bool {
		a, b := &history[i], &history[j]
		am, bm := a.Status.State == wtxmgr.TxMined,
			b.Status.State == wtxmgr.TxMined
		switch {
		case am != bm:
			return am
		case am && a.Status.Height != b.Status.Height:
			return a.Status.Height < b.Status.Height
		default:
			return bytes.Compare(a.TxID[:], b.TxID[:]) < 0
		}
	})

	return history, nil
}
