// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shardtree"
	"github.com/zecsuite/zecwallet/shielded"
	"github.com/zecsuite/zecwallet/tx"
	"github.com/zecsuite/zecwallet/waddrmgr"
	"github.com/zecsuite/zecwallet/wtxmgr"
)

// prevOut is the transparent output spent by an input being built.
type prevOut struct {
	pkScript []byte
	value    int64
	address  string
}

// plannedNote is a shielded output before encryption.
type plannedNote struct {
	note *shielded.Note
	memo shielded.Memo
	ovk  [32]byte
	sent SentTransactionOutput
}

// builtStep is a signed transaction of a proposal step.
type builtStep struct {
	tx   *tx.Tx
	sent *SentTransaction

	// vout maps step output indices to transparent output indices.
	vout map[int]uint32
}

// CreateProposedTransactions builds and signs the transactions of a
// proposal with the account's spending key and stores them to be sent. The
// transactions are returned in step order and must be broadcast in that
// order.
func (w *Wallet) CreateProposedTransactions(usk *waddrmgr.UnifiedSpendingKey,
	proposal *Proposal) ([]*tx.Tx, error) {

	if err := proposal.Validate(); err != nil {
		return nil, err
	}

	acct, err := w.Manager.Account(proposal.Account)
	if err != nil {
		return nil, err
	}
	ufvk, err := usk.FullViewingKey()
	if err != nil {
		return nil, err
	}
	if !ufvk.Equal(acct.UFVK) {
		str := fmt.Sprintf("spending key does not belong to account %d",
			proposal.Account)
		return nil, walletError(ErrKeyMismatch, str, nil)
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()

	built := make([]*builtStep, 0, len(proposal.Steps))
	for i := range proposal.Steps {
		b, err := w.buildStep(usk, &acct, proposal, i, built)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		built = append(built, b)
	}

	txs := make([]*tx.Tx, 0, len(built))
	for _, b := range built {
		if err := w.storeToBeSentLocked(b.sent); err != nil {
			return nil, err
		}
		txs = append(txs, b.tx)
	}

	return txs, nil
}

// buildStep builds and signs the transaction of step i. Earlier steps are
// already built.
func (w *Wallet) buildStep(usk *waddrmgr.UnifiedSpendingKey,
	acct *waddrmgr.Account, proposal *Proposal, i int,
	built []*builtStep) (*builtStep, error) {

	step := &proposal.Steps[i]
	t := &tx.Tx{
		Version:      tx.Version,
		ExpiryHeight: proposal.TargetHeight + w.cfg.expiryDelta,
	}
	b := &builtStep{
		tx: t,
		sent: &SentTransaction{
			Tx:           t,
			Account:      acct.ID,
			TargetHeight: proposal.TargetHeight,
			Fee:          step.Fee,
		},
		vout: make(map[int]uint32),
	}

	// Transparent inputs.
	var prev []prevOut
	for _, u := range step.TransparentInputs {
		op := u.OutPoint
		t.TxIn = append(t.TxIn, wire.NewTxIn(&op, nil, nil))
		prev = append(prev, prevOut{
			pkScript: u.TxOut.PkScript,
			value:    u.TxOut.Value,
			address:  u.Address,
		})
		b.sent.UTXOsSpent = append(b.sent.UTXOsSpent, op)
	}
	for _, ref := range step.PriorStepInputs {
		pb := built[ref.Step]
		out := &proposal.Steps[ref.Step].Outputs[ref.Output]
		vout, ok := pb.vout[ref.Output]
		if !ok || out.Ephemeral == nil {
			str := fmt.Sprintf("output %d of step %d is not an "+
				"ephemeral output", ref.Output, ref.Step)
			return nil, walletError(ErrInvalidProposal, str, nil)
		}
		op := wire.OutPoint{Hash: pb.tx.TxHash(), Index: vout}
		txOut := pb.tx.TxOut[vout]

		t.TxIn = append(t.TxIn, wire.NewTxIn(&op, nil, nil))
		prev = append(prev, prevOut{
			pkScript: txOut.PkScript,
			value:    txOut.Value,
			address:  out.Ephemeral.Address,
		})
		b.sent.UTXOsSpent = append(b.sent.UTXOsSpent, op)
	}

	// Outputs.
	planned := make(map[shielded.Protocol][]*plannedNote)
	for j := range step.Outputs {
		o := &step.Outputs[j]

		p, shieldedOut := o.Pool.Protocol()
		if !shieldedOut {
			sent, err := w.addTransparentOutput(t, acct.ID, o)
			if err != nil {
				return nil, err
			}
			b.vout[j] = uint32(sent.Index)
			b.sent.Outputs = append(b.sent.Outputs, *sent)
			continue
		}

		pn, err := w.planNote(acct, p, o)
		if err != nil {
			return nil, err
		}
		planned[p] = append(planned[p], pn)
	}

	spends := make(map[shielded.Protocol][]*wtxmgr.SpendableNote)
	for j := range step.ShieldedInputs {
		n := &step.ShieldedInputs[j]
		spends[n.ID.Protocol] = append(spends[n.ID.Protocol], n)
	}

	if err := w.buildSapling(t, spends[shielded.Sapling],
		planned[shielded.Sapling], proposal.AnchorHeight); err != nil {

		return nil, err
	}
	dummyKeys, err := w.buildOrchard(t, spends[shielded.Orchard],
		planned[shielded.Orchard], proposal.AnchorHeight)
	if err != nil {
		return nil, err
	}
	for _, p := range shielded.Protocols {
		for _, pn := range planned[p] {
			b.sent.Outputs = append(b.sent.Outputs, pn.sent)
		}
	}

	inputValues := make([]int64, len(prev))
	for j := range prev {
		inputValues[j] = prev[j].value
	}
	fee, err := t.Fee(inputValues)
	if err != nil {
		return nil, err
	}
	if fee != int64(step.Fee) {
		str := fmt.Sprintf("transaction pays fee %d, proposal fee %v",
			fee, step.Fee)
		return nil, walletError(ErrBalance, str, nil)
	}

	if err := w.sign(t, usk, prev, len(spends[shielded.Orchard]),
		dummyKeys); err != nil {

		return nil, err
	}

	log.Debugf("Built transaction %v: %d transparent in, %d out, %d "+
		"Sapling spends, %d outputs, %d Orchard actions", t.TxHash(),
		len(t.TxIn), len(t.TxOut), len(t.SaplingSpends),
		len(t.SaplingOutputs), len(t.OrchardActions))

	return b, nil
}

// addTransparentOutput appends a transparent payment or ephemeral output.
func (w *Wallet) addTransparentOutput(t *tx.Tx, account uint32,
	o *StepOutput) (*SentTransactionOutput, error) {

	sent := &SentTransactionOutput{
		Pool:  wtxmgr.PoolTransparent,
		Index: uint16(len(t.TxOut)),
		Value: o.Value,
	}

	var (
		script []byte
		err    error
	)
	switch o.Kind {
	case OutputEphemeral:
		if o.Ephemeral == nil {
			return nil, walletError(ErrInvalidProposal,
				"ephemeral output without address", nil)
		}
		script, err = waddrmgr.P2PKHScript(
			w.params, o.Ephemeral.PubKeyHash,
		)
		sent.Recipient = o.Ephemeral.Address
		sent.ToAccount = fn.Some(account)
		sent.EphemeralIndex = fn.Some(o.Ephemeral.Index)

	case OutputPayment:
		script, err = o.Recipient.PkScript(w.params)
		sent.Recipient = o.Recipient.Encoded

	default:
		str := fmt.Sprintf("%v output to the transparent pool", o.Kind)
		return nil, walletError(ErrInvalidProposal, str, nil)
	}
	if err != nil {
		return nil, err
	}

	t.TxOut = append(t.TxOut, wire.NewTxOut(int64(o.Value), script))

	return sent, nil
}

// planNote creates the note of a shielded payment or change output.
func (w *Wallet) planNote(acct *waddrmgr.Account, p shielded.Protocol,
	o *StepOutput) (*plannedNote, error) {

	// Payments from an account without a key in the output pool are
	// recoverable with the key of another pool.
	fvk := acct.UFVK.FullViewingKey(p)
	if fvk == nil {
		fvk = acct.UFVK.FullViewingKey(acct.UFVK.Protocols()[0])
	}

	pn := &plannedNote{
		memo: o.Memo.UnwrapOr(shielded.EmptyMemo),
		sent: SentTransactionOutput{
			Pool:  o.Pool,
			Value: o.Value,
			Memo:  fn.Some(o.Memo.UnwrapOr(shielded.EmptyMemo)),
		},
	}

	var addr *shielded.PaymentAddress
	switch o.Kind {
	case OutputChange:
		var err error
		addr, err = w.Manager.ChangeAddress(acct.ID, p)
		if err != nil {
			return nil, err
		}
		pn.ovk = fvk.OutgoingViewingKey(shielded.Internal)
		pn.sent.ToAccount = fn.Some(acct.ID)
		pn.sent.Scope = shielded.Internal
		pn.sent.Recipient, err = w.shieldedRecipient(addr)
		if err != nil {
			return nil, err
		}

	case OutputPayment:
		if o.Recipient == nil || o.Recipient.Unified == nil ||
			o.Recipient.Unified.Receiver(p) == nil {

			str := fmt.Sprintf("payment %d has no %v receiver",
				o.PaymentIndex, p)
			return nil, walletError(ErrInvalidProposal, str, nil)
		}
		addr = o.Recipient.Unified.Receiver(p)
		pn.ovk = fvk.OutgoingViewingKey(shielded.External)
		pn.sent.Recipient = o.Recipient.Encoded
		w.Manager.AccountForReceiver(addr).WhenSome(
			func(k waddrmgr.ScanningKey) {
				pn.sent.ToAccount = fn.Some(k.Account)
				pn.sent.Scope = k.Scope
			},
		)

	default:
		str := fmt.Sprintf("%v output to a shielded pool", o.Kind)
		return nil, walletError(ErrInvalidProposal, str, nil)
	}

	rseed, err := shielded.NewRseed()
	if err != nil {
		return nil, err
	}
	pn.note = &shielded.Note{
		Protocol:  p,
		Recipient: *addr,
		Value:     o.Value,
		Rseed:     rseed,
	}
	if pn.sent.ToAccount.IsSome() {
		pn.sent.Note = pn.note
	}

	return pn, nil
}

// anchor returns the root of a pool's tree at the anchor height and checks
// that every spent note can be witnessed against it.
func (w *Wallet) anchor(p shielded.Protocol, notes []*wtxmgr.SpendableNote,
	height uint32) (shardtree.Node, error) {

	tree := w.trees[p]
	cp := anchorCheckpoint(tree, height)
	if cp.IsNone() {
		if len(notes) == 0 {
			return shardtree.Node{}, nil
		}
		str := fmt.Sprintf("no %v checkpoint at or below anchor "+
			"height %d", p, height)
		return shardtree.Node{}, walletError(ErrInvalidProposal, str, nil)
	}
	id := cp.UnsafeFromSome()

	root, err := tree.RootAtCheckpoint(id)
	if err != nil {
		return shardtree.Node{}, err
	}
	for _, n := range notes {
		path, err := tree.WitnessAtCheckpoint(
			n.Position.UnsafeFromSome(), id,
		)
		if err != nil {
			return shardtree.Node{}, err
		}
		if path.Root(tree.Hasher(), n.Note.Commitment()) != root {
			return shardtree.Node{}, corrupted("witness of note %v "+
				"does not match the %v anchor at %d", n.ID, p, id)
		}
	}

	return root, nil
}

// dummyOutput returns an output no key decrypts.
func dummyOutput() (shielded.Output, error) {
	var out shielded.Output
	for _, b := range [][]byte{
		out.Cmu[:], out.EphemeralKey[:], out.EncCiphertext[:],
		out.OutCiphertext[:],
	} {
		if _, err := rand.Read(b); err != nil {
			return out, err
		}
	}
	return out, nil
}

// buildSapling fills the Sapling bundle. Outputs are padded to the
// minimum bundle size with dummy outputs.
func (w *Wallet) buildSapling(t *tx.Tx, spends []*wtxmgr.SpendableNote,
	outputs []*plannedNote, anchorHeight uint32) error {

	if len(spends) == 0 && len(outputs) == 0 {
		return nil
	}

	var err error
	if len(spends) > 0 {
		t.SaplingAnchor, err = w.anchor(
			shielded.Sapling, spends, anchorHeight,
		)
		if err != nil {
			return err
		}
	}

	for _, n := range spends {
		t.SaplingSpends = append(t.SaplingSpends, tx.SaplingSpend{
			Nullifier: n.Nullifier.UnsafeFromSome(),
		})
		t.SaplingValueBalance += int64(n.Value())
	}

	for i := 0; i < max(len(outputs), unit.MinShieldedOutputs); i++ {
		if i >= len(outputs) {
			out, err := dummyOutput()
			if err != nil {
				return err
			}
			t.SaplingOutputs = append(t.SaplingOutputs, out)
			continue
		}

		pn := outputs[i]
		out, err := shielded.EncryptNote(pn.note, pn.memo, fn.Some(pn.ovk))
		if err != nil {
			return err
		}
		pn.sent.Index = uint16(i)
		t.SaplingOutputs = append(t.SaplingOutputs, *out)
		t.SaplingValueBalance -= int64(pn.note.Value)
	}

	return nil
}

// buildOrchard fills the Orchard bundle, pairing spends with outputs in
// actions. Actions without a real spend spend a dummy note under a
// throwaway key, which is returned for signing.
func (w *Wallet) buildOrchard(t *tx.Tx, spends []*wtxmgr.SpendableNote,
	outputs []*plannedNote, anchorHeight uint32) ([]*shielded.SpendingKey,
	error) {

	if len(spends) == 0 && len(outputs) == 0 {
		return nil, nil
	}

	var err error
	t.OrchardAnchor, err = w.anchor(shielded.Orchard, spends, anchorHeight)
	if err != nil {
		return nil, err
	}

	n := max(len(spends), len(outputs), unit.MinShieldedOutputs)
	var dummies []*shielded.SpendingKey
	for i := 0; i < n; i++ {
		var a tx.OrchardAction
		if i < len(spends) {
			a.Nullifier = spends[i].Nullifier.UnsafeFromSome()
			t.OrchardValueBalance += int64(spends[i].Value())
		} else {
			key, err := shielded.NewRseed()
			if err != nil {
				return nil, err
			}
			dummies = append(dummies,
				shielded.NewSpendingKey(shielded.Orchard, key))
			if _, err := rand.Read(a.Nullifier[:]); err != nil {
				return nil, err
			}
		}

		if i < len(outputs) {
			pn := outputs[i]
			pn.note.Rho = [32]byte(a.Nullifier)
			out, err := shielded.EncryptNote(
				pn.note, pn.memo, fn.Some(pn.ovk),
			)
			if err != nil {
				return nil, err
			}
			pn.sent.Index = uint16(i)
			a.Output = *out
			t.OrchardValueBalance -= int64(pn.note.Value)
		} else {
			a.Output, err = dummyOutput()
			if err != nil {
				return nil, err
			}
		}

		t.OrchardActions = append(t.OrchardActions, a)
	}

	return dummies, nil
}

// sign authorizes every spend of t. The first orchardSpends actions spend
// the account's notes; the rest spend dummy notes under dummyKeys.
func (w *Wallet) sign(t *tx.Tx, usk *waddrmgr.UnifiedSpendingKey,
	prev []prevOut, orchardSpends int,
	dummyKeys []*shielded.SpendingKey) error {

	sighash := [32]byte(t.TxHash())

	for i := range t.SaplingSpends {
		sig, err := usk.SpendingKey(shielded.Sapling).SignSpend(sighash)
		if err != nil {
			return err
		}
		t.SaplingSpends[i].AuthSig = sig
	}
	for i := range t.OrchardActions {
		key := usk.SpendingKey(shielded.Orchard)
		if i >= orchardSpends {
			key = dummyKeys[i-orchardSpends]
		}
		sig, err := key.SignSpend(sighash)
		if err != nil {
			return err
		}
		t.OrchardActions[i].AuthSig = sig
	}

	for i, in := range t.TxIn {
		recv := w.Manager.FindAccountForTransparent(prev[i].address)
		if recv.IsNone() {
			str := fmt.Sprintf("input %d spends from unknown "+
				"address %s", i, prev[i].address)
			return walletError(ErrAddressNotRecognized, str, nil)
		}
		r := recv.UnsafeFromSome()

		priv, err := usk.TransparentPrivKey(r.Branch, r.Index)
		if err != nil {
			return err
		}
		hash := t.TransparentSigHash(i, prev[i].pkScript, prev[i].value)
		sig := ecdsa.Sign(priv, hash[:])

		in.SignatureScript, err = txscript.NewScriptBuilder().
			AddData(append(sig.Serialize(), byte(txscript.SigHashAll))).
			AddData(priv.PubKey().SerializeCompressed()).
			Script()
		if err != nil {
			return fmt.Errorf("unable to build signature script for "+
				"input %d: %w", i, err)
		}
	}

	return nil
}
