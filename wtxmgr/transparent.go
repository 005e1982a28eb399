// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/pkg/unit"
)

// TransparentOutput is a transparent output received by one of the wallet's
// addresses.
type TransparentOutput struct {
	OutPoint wire.OutPoint
	Account  uint32
	Address  string
	TxOut    wire.TxOut

	// MaxObservedUnspent is the highest height at which the output is
	// known to have been unspent.
	MaxObservedUnspent uint32
}

// Value returns the output value.
func (o *TransparentOutput) Value() unit.Zatoshi {
	return unit.Zatoshi(o.TxOut.Value)
}

func outPointLess(a, b *wire.OutPoint) bool {
	if c := bytes.Compare(a.Hash[:], b.Hash[:]); c != 0 {
		return c < 0
	}
	return a.Index < b.Index
}

// PutTransparentOutput records a received transparent output. The funding
// transaction is recorded as mined at minedHeight when that is known. A
// spend of the output seen before the output itself is applied now.
func (s *Store) PutTransparentOutput(o *TransparentOutput,
	minedHeight fn.Option[uint32], tip fn.Option[uint32]) {

	op := o.OutPoint

	// The block is only recorded when the wallet has scanned it.
	block := fn.FlatMapOption(func(h uint32) fn.Option[uint32] {
		if _, ok := s.blocks[h]; ok {
			return fn.Some(h)
		}
		return fn.None[uint32]()
	})(minedHeight)
	s.PutTxPartial(&op.Hash, block, minedHeight)

	if txid, ok := s.spendsSeen[op]; ok {
		s.utxoSpends[op] = txid
		delete(s.spendsSeen, op)
	}

	spentHeight := fn.None[uint32]()
	if txid, ok := s.utxoSpends[op]; ok {
		spentHeight = s.TxStatus(&txid).MinedHeight()
	}
	maxUnspent := tip.UnwrapOr(0)
	spentHeight.WhenSome(func(h uint32) {
		maxUnspent = 0
		if h > 0 {
			maxUnspent = h - 1
		}
	})

	cp := *o
	cp.TxOut.PkScript = append([]byte(nil), o.TxOut.PkScript...)
	cp.MaxObservedUnspent = max(o.MaxObservedUnspent, maxUnspent)
	if existing, ok := s.utxos[op]; ok && spentHeight.IsNone() {
		cp.MaxObservedUnspent = max(
			cp.MaxObservedUnspent, existing.MaxObservedUnspent,
		)
	}
	s.utxos[op] = &cp

	log.Debugf("Recorded transparent output %v of %v for account %d",
		op, o.Value(), o.Account)
}

// TransparentOutput returns the record of a received transparent output.
func (s *Store) TransparentOutput(op wire.OutPoint) (TransparentOutput, bool) {
	o, ok := s.utxos[op]
	if !ok {
		return TransparentOutput{}, false
	}
	return *o, true
}

// TransparentOutputs returns the received transparent outputs that satisfy
// filter, in outpoint order. A nil filter selects every output.
func (s *Store) TransparentOutputs(
	filter func(*TransparentOutput) bool) []TransparentOutput {

	var outs []TransparentOutput
	for _, o := range s.utxos {
		if filter == nil || filter(o) {
			outs = append(outs, *o)
		}
	}
	sort.Slice(outs, func(i, j int) bool {
		return outPointLess(&outs[i].OutPoint, &outs[j].OutPoint)
	})

	return outs
}

// MarkTransparentSpent records that txid spends the outpoint. When the
// output is not known yet the spend is kept and applied once it is. It
// returns whether the output was known.
func (s *Store) MarkTransparentSpent(op wire.OutPoint,
	txid *chainhash.Hash) bool {

	if _, ok := s.utxos[op]; !ok {
		s.spendsSeen[op] = *txid
		return false
	}
	s.utxoSpends[op] = *txid

	log.Debugf("Transparent output %v spent by %v", op, txid)

	return true
}

// TransparentSpendingTx returns the transaction recorded as spending the
// outpoint.
func (s *Store) TransparentSpendingTx(op wire.OutPoint) fn.Option[chainhash.Hash] {
	if txid, ok := s.utxoSpends[op]; ok {
		return fn.Some(txid)
	}
	return fn.None[chainhash.Hash]()
}

// UTXOIsSpendable reports whether the output can be spent in a transaction
// targeting the given height: its funding transaction must be mined at or
// below target - minConf, and no mined transaction, nor an unmined one that
// is unexpired at the target height, may spend it.
func (s *Store) UTXOIsSpendable(op wire.OutPoint, target,
	minConf uint32) (bool, error) {

	o, ok := s.utxos[op]
	if !ok {
		return false, txStoreError(ErrOutputNotFound,
			fmt.Sprintf("output %v not found", op), nil)
	}

	funding, ok := s.txs[o.OutPoint.Hash]
	if !ok || funding.Status.State != TxMined || target < minConf ||
		funding.Status.Height > target-minConf {

		return false, nil
	}

	txid, ok := s.utxoSpends[op]
	if !ok {
		return true, nil
	}

	// A spend that is unexpired at the tip below the target height still
	// locks the output.
	var h uint32
	if target > 0 {
		h = target - 1
	}
	spent, err := s.spentAt(&txid, fn.Some(h))
	if err != nil {
		return false, err
	}

	return !spent, nil
}

// SpendableUTXOs returns the account's outputs that are spendable at the
// target height.
func (s *Store) SpendableUTXOs(account uint32, target,
	minConf uint32) ([]TransparentOutput, error) {

	var (
		outs     []TransparentOutput
		firstErr error
	)
	candidates := s.TransparentOutputs(func(o *TransparentOutput) bool {
		return o.Account == account
	})
	for _, o := range candidates {
		ok, err := s.UTXOIsSpendable(o.OutPoint, target, minConf)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			outs = append(outs, o)
		}
	}

	return outs, firstErr
}

// TransparentBalance returns the total of the account's outputs that are
// spendable at the target height.
func (s *Store) TransparentBalance(account uint32, target,
	minConf uint32) (unit.Zatoshi, error) {

	outs, err := s.SpendableUTXOs(account, target, minConf)
	if err != nil {
		return 0, err
	}

	var total unit.Zatoshi
	for i := range outs {
		total, err = total.Add(outs[i].Value())
		if err != nil {
			return 0, err
		}
	}

	return total, nil
}
