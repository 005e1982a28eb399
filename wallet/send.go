// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shielded"
	"github.com/zecsuite/zecwallet/tx"
	"github.com/zecsuite/zecwallet/waddrmgr"
	"github.com/zecsuite/zecwallet/wtxmgr"
)

// SentTransactionOutput is an output of a transaction the wallet created.
type SentTransactionOutput struct {
	Pool wtxmgr.PoolType

	// Index is the output index within the pool's bundle, or the
	// transparent output index.
	Index uint16

	Recipient string
	Value     unit.Zatoshi
	Memo      fn.Option[shielded.Memo]

	// ToAccount is set when the output pays one of the wallet's accounts.
	ToAccount fn.Option[uint32]

	// Note and Scope are set for shielded outputs to the wallet.
	Note  *shielded.Note
	Scope shielded.Scope

	// EphemeralIndex is set for outputs to an ephemeral address of the
	// sending account.
	EphemeralIndex fn.Option[uint32]
}

// SentTransaction is a signed transaction the wallet created, ready to be
// broadcast.
type SentTransaction struct {
	Tx           *tx.Tx
	Account      uint32
	TargetHeight uint32
	Fee          unit.Zatoshi
	Outputs      []SentTransactionOutput

	// UTXOsSpent are the transparent outputs the transaction spends.
	UTXOsSpent []wire.OutPoint
}

// StoreToBeSent records a transaction the wallet created. The notes and
// transparent outputs it spends are locked until it is mined or expires,
// outputs to the wallet become pending notes, and the outputs to others are
// remembered with their memos.
func (w *Wallet) StoreToBeSent(sent *SentTransaction) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	return w.storeToBeSentLocked(sent)
}

func (w *Wallet) storeToBeSentLocked(sent *SentTransaction) error {
	txid := sent.Tx.TxHash()
	raw, err := sent.Tx.Bytes()
	if err != nil {
		return err
	}

	store := w.txStore.Clone()
	store.PutTxData(
		&txid, raw, sent.Tx.ExpiryHeight, fn.Some(sent.Fee),
		fn.Some(sent.TargetHeight),
	)

	for _, p := range shielded.Protocols {
		for _, nf := range sent.Tx.Nullifiers(p) {
			_, err := store.MarkSpentByNullifier(p, nf, &txid)
			switch {
			// Orchard actions without a real input spend a dummy
			// note.
			case p == shielded.Orchard &&
				wtxmgr.IsError(err, wtxmgr.ErrNoteNotFound):

			case err != nil:
				return err
			}
		}
	}
	for _, op := range sent.UTXOsSpent {
		store.MarkTransparentSpent(op, &txid)
	}

	var ephemeral []string
	for _, o := range sent.Outputs {
		store.InsertSentOutput(&wtxmgr.SentOutput{
			Key: wtxmgr.SentOutputKey{
				TxID: txid, Pool: o.Pool, Index: o.Index,
			},
			FromAccount:    sent.Account,
			Recipient:      o.Recipient,
			ToAccount:      o.ToAccount,
			EphemeralIndex: o.EphemeralIndex,
			Value:          o.Value,
			Memo:           o.Memo,
		})

		switch {
		case o.Note != nil && o.ToAccount.IsSome():
			to := o.ToAccount.UnsafeFromSome()
			n, err := w.internalNote(txid, to, o)
			if err != nil {
				return err
			}
			n.IsChange = to == sent.Account
			if err := store.InsertReceivedNote(n); err != nil {
				return err
			}

		case o.EphemeralIndex.IsSome():
			if int(o.Index) >= len(sent.Tx.TxOut) {
				return corrupted("ephemeral output %d of %v "+
					"does not exist", o.Index, txid)
			}
			store.PutTransparentOutput(&wtxmgr.TransparentOutput{
				OutPoint: wire.OutPoint{
					Hash: txid, Index: uint32(o.Index),
				},
				Account: sent.Account,
				Address: o.Recipient,
				TxOut:   *sent.Tx.TxOut[o.Index],
			}, fn.None[uint32](), w.chainTip)
			ephemeral = append(ephemeral, o.Recipient)
		}
	}

	w.txStore = store
	for _, addr := range ephemeral {
		w.Manager.MarkEphemeralUsed(addr, txid, fn.None[uint32]())
	}
	if len(sent.Tx.TxIn) > 0 || len(sent.Tx.TxOut) > 0 {
		w.requests = queueRequests(w.requests, getStatusRequest(txid))
	}

	log.Infof("Stored transaction %v from account %d to be sent, fee %v",
		txid, sent.Account, sent.Fee)

	return nil
}

// internalNote returns the received note record of a shielded output the
// wallet sent to one of its accounts. Orchard nullifiers do not depend on
// the tree position and are derived straight away.
func (w *Wallet) internalNote(txid chainhash.Hash, account uint32,
	o SentTransactionOutput) (*wtxmgr.ReceivedNote, error) {

	p := o.Note.Protocol
	n := &wtxmgr.ReceivedNote{
		ID:      wtxmgr.NoteID{TxID: txid, Protocol: p, Index: o.Index},
		Account: account,
		Note:    *o.Note,
		Scope:   fn.Some(o.Scope),
		Memo:    o.Memo,
	}
	if p != shielded.Orchard {
		return n, nil
	}

	acct, err := w.Manager.Account(account)
	if err != nil {
		return nil, err
	}
	fvk := acct.UFVK.FullViewingKey(p)
	if fvk == nil {
		return nil, fmt.Errorf("account %d has no %v viewing key",
			account, p)
	}
	n.Nullifier = fn.Some(fvk.Scoped(o.Scope).Nullifier(o.Note, 0))

	return n, nil
}

// DecryptedTransaction is a full transaction fetched for the wallet,
// typically to serve an Enhancement request.
type DecryptedTransaction struct {
	Tx *tx.Tx

	// MinedHeight is set when the transaction is known to be mined.
	MinedHeight fn.Option[uint32]
}

// StoreDecrypted records a full transaction involving the wallet. Notes to
// the wallet are recorded with their memos, outputs the wallet sent are
// recovered with its outgoing viewing keys, and the transparent outputs and
// spends of the wallet's addresses are recorded. A transaction with
// transparent parts and no known height gets a GetStatus request.
func (w *Wallet) StoreDecrypted(d *DecryptedTransaction) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	t := d.Tx
	txid := t.TxHash()
	raw, err := t.Bytes()
	if err != nil {
		return err
	}

	store := w.txStore.Clone()
	fromAccount := fn.None[uint32]()

	// Spends of the wallet's notes.
	for _, p := range shielded.Protocols {
		for _, nf := range t.Nullifiers(p) {
			id, err := store.MarkSpentByNullifier(p, nf, &txid)
			if wtxmgr.IsError(err, wtxmgr.ErrNoteNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			n, _ := store.ReceivedNote(id)
			fromAccount = fn.Some(n.Account)
		}
	}

	// Spends of the wallet's transparent outputs. Input values are
	// gathered to compute the fee when every input is known.
	inputValues := make([]int64, 0, len(t.TxIn))
	for _, in := range t.TxIn {
		op := in.PreviousOutPoint
		if o, ok := store.TransparentOutput(op); ok {
			fromAccount = fn.Some(o.Account)
			inputValues = append(inputValues, o.TxOut.Value)
		}
		store.MarkTransparentSpent(op, &txid)
	}

	var ephemeral []string
	for i, out := range t.TxOut {
		addr, hash, ok := w.transparentAddress(out.PkScript)
		if !ok {
			continue
		}
		recv := w.Manager.FindAccountForTransparent(addr)
		if recv.IsNone() {
			if fromAccount.IsSome() {
				store.InsertSentOutput(&wtxmgr.SentOutput{
					Key: wtxmgr.SentOutputKey{
						TxID:  txid,
						Pool:  wtxmgr.PoolTransparent,
						Index: uint16(i),
					},
					FromAccount: fromAccount.UnsafeFromSome(),
					Recipient:   addr,
					Value:       unit.Zatoshi(out.Value),
				})
			}
			continue
		}
		r := recv.UnsafeFromSome()

		store.PutTransparentOutput(&wtxmgr.TransparentOutput{
			OutPoint: wire.OutPoint{Hash: txid, Index: uint32(i)},
			Account:  r.Account,
			Address:  addr,
			TxOut:    *out,
		}, d.MinedHeight, w.chainTip)

		if r.Branch == waddrmgr.EphemeralBranch {
			ephemeral = append(ephemeral, addr)
			if fromAccount.IsSome() {
				store.InsertSentOutput(&wtxmgr.SentOutput{
					Key: wtxmgr.SentOutputKey{
						TxID:  txid,
						Pool:  wtxmgr.PoolTransparent,
						Index: uint16(i),
					},
					FromAccount:    fromAccount.UnsafeFromSome(),
					Recipient:      addr,
					ToAccount:      fn.Some(r.Account),
					EphemeralIndex: fn.Some(r.Index),
					Value:          unit.Zatoshi(out.Value),
				})
			}
		}
		log.Tracef("Output %d of %v pays %x of account %d", i, txid,
			hash, r.Account)
	}

	if err := w.decryptFull(store, txid, t); err != nil {
		return err
	}

	fee := fn.None[unit.Zatoshi]()
	if e, ok := store.Tx(&txid); ok {
		fee = e.Fee
	}
	if fee.IsNone() && len(inputValues) == len(t.TxIn) {
		if f, err := t.Fee(inputValues); err == nil && f >= 0 {
			fee = fn.Some(unit.Zatoshi(f))
		}
	}
	store.PutTxData(&txid, raw, t.ExpiryHeight, fee, fn.None[uint32]())

	if d.MinedHeight.IsSome() {
		status := wtxmgr.StatusMined(d.MinedHeight.UnsafeFromSome())
		if err := store.SetTxStatus(&txid, status); err != nil {
			return err
		}
	}

	w.txStore = store
	for _, addr := range ephemeral {
		w.Manager.MarkEphemeralUsed(addr, txid, d.MinedHeight)
	}

	enhance := enhancementRequest(txid)
	w.requests = dropRequests(w.requests, func(r TransactionDataRequest) bool {
		return r == enhance
	})
	if d.MinedHeight.IsNone() && (len(t.TxIn) > 0 || len(t.TxOut) > 0) {
		w.requests = queueRequests(w.requests, getStatusRequest(txid))
	}

	log.Debugf("Stored decrypted transaction %v (mined %v)", txid,
		d.MinedHeight)

	return nil
}

// decryptFull records the shielded outputs of t that the wallet's incoming
// viewing keys decrypt, and the outputs its outgoing viewing keys recover.
func (w *Wallet) decryptFull(store *wtxmgr.Store, txid chainhash.Hash,
	t *tx.Tx) error {

	keys := w.Manager.ScanningKeys()
	for _, so := range t.ShieldedOutputs() {
		id := wtxmgr.NoteID{TxID: txid, Protocol: so.Protocol, Index: so.Index}

		received := fn.None[waddrmgr.ScanningKey]()
		for _, k := range keys {
			if k.Protocol != so.Protocol {
				continue
			}
			note, memo, ok := k.IVK.Decrypt(so.Output, so.Rho)
			if !ok {
				continue
			}
			n := &wtxmgr.ReceivedNote{
				ID:       id,
				Account:  k.Account,
				Note:     *note,
				Scope:    fn.Some(k.Scope),
				Memo:     fn.Some(memo),
				IsChange: k.Scope == shielded.Internal,
			}
			if so.Protocol == shielded.Orchard {
				n.Nullifier = fn.Some(k.FVK.Nullifier(note, 0))
			}
			if err := store.InsertReceivedNote(n); err != nil {
				return err
			}
			received = fn.Some(k)
			break
		}

		for _, k := range keys {
			if k.Protocol != so.Protocol {
				continue
			}
			ovk := k.FVK.OutgoingViewingKey(shielded.External)
			note, memo, ok := shielded.RecoverOutput(
				so.Protocol, ovk, so.Output, so.Rho,
			)
			if !ok {
				continue
			}

			recipient, err := w.shieldedRecipient(&note.Recipient)
			if err != nil {
				return err
			}
			store.InsertSentOutput(&wtxmgr.SentOutput{
				Key: wtxmgr.SentOutputKey{
					TxID:  txid,
					Pool:  wtxmgr.ShieldedPool(so.Protocol),
					Index: so.Index,
				},
				FromAccount: k.Account,
				Recipient:   recipient,
				ToAccount: fn.MapOption(
					func(r waddrmgr.ScanningKey) uint32 {
						return r.Account
					},
				)(received),
				Value: note.Value,
				Memo:  fn.Some(memo),
			})
			break
		}
	}

	return nil
}

// shieldedRecipient encodes a shielded receiver as a unified address.
func (w *Wallet) shieldedRecipient(addr *shielded.PaymentAddress) (string,
	error) {

	ua := &waddrmgr.UnifiedAddress{}
	if addr.Protocol == shielded.Orchard {
		ua.Orchard = addr
	} else {
		ua.Sapling = addr
	}
	return ua.Encode(w.params)
}

// transparentAddress returns the encoded address and hash of a P2PKH
// script.
func (w *Wallet) transparentAddress(pkScript []byte) (string, []byte, bool) {
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(
		pkScript, w.params.Params,
	)
	if err != nil || class != txscript.PubKeyHashTy || len(addrs) != 1 {
		return "", nil, false
	}
	hash := addrs[0].ScriptAddress()

	return waddrmgr.EncodeP2PKH(w.params, hash), hash, true
}

// SetTransactionStatus records the chain status of a transaction reported
// by an indexer, which satisfies a GetStatus request. A transaction the
// chain does not recognize is recorded as not mined.
func (w *Wallet) SetTransactionStatus(txid *chainhash.Hash,
	status wtxmgr.TxStatus) error {

	w.mtx.Lock()
	defer w.mtx.Unlock()

	if status.State == wtxmgr.TxUnknown {
		status = wtxmgr.StatusNotMined
	}
	if err := w.txStore.SetTxStatus(txid, status); err != nil {
		return err
	}

	if status.State == wtxmgr.TxMined {
		for _, o := range w.txStore.SentOutputs(txid) {
			if o.EphemeralIndex.IsSome() {
				w.Manager.MarkEphemeralUsed(
					o.Recipient, *txid, status.MinedHeight(),
				)
			}
		}
	}

	req := getStatusRequest(*txid)
	w.requests = dropRequests(w.requests, func(r TransactionDataRequest) bool {
		return r == req
	})

	return nil
}

// PutReceivedTransparentUTXO records a transparent output paying one of
// the wallet's addresses, as reported by an indexer, and returns the
// account it belongs to. Outputs to other addresses fail with
// ErrAddressNotRecognized.
func (w *Wallet) PutReceivedTransparentUTXO(op wire.OutPoint,
	out *wire.TxOut, minedHeight fn.Option[uint32]) (uint32, error) {

	w.mtx.Lock()
	defer w.mtx.Unlock()

	addr, _, ok := w.transparentAddress(out.PkScript)
	if !ok {
		return 0, walletError(ErrAddressNotRecognized,
			fmt.Sprintf("output %v is not a P2PKH output", op), nil)
	}
	recv := w.Manager.FindAccountForTransparent(addr)
	if recv.IsNone() {
		str := fmt.Sprintf("output %v pays unknown address %s", op, addr)
		return 0, walletError(ErrAddressNotRecognized, str, nil)
	}
	r := recv.UnsafeFromSome()

	w.txStore.PutTransparentOutput(&wtxmgr.TransparentOutput{
		OutPoint: op,
		Account:  r.Account,
		Address:  addr,
		TxOut:    *out,
	}, minedHeight, w.chainTip)
	w.Manager.MarkEphemeralUsed(addr, op.Hash, minedHeight)

	start := minedHeight.UnwrapOr(w.chainTip.UnwrapOr(0))
	w.requests = queueRequests(w.requests, TransactionDataRequest{
		Kind:        RequestSpendsFromAddress,
		Address:     addr,
		StartHeight: start,
		EndHeight:   fn.None[uint32](),
	})

	return r.Account, nil
}
