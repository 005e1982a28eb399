// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shielded"
	"github.com/zecsuite/zecwallet/waddrmgr"
	"github.com/zecsuite/zecwallet/wtxmgr"
)

// Payment is a request to pay an amount to an encoded address.
type Payment struct {
	Recipient string
	Amount    unit.Zatoshi

	// Memo may only be given for shielded recipients.
	Memo fn.Option[shielded.Memo]
}

// OutputKind is the role of an output in a proposal step.
type OutputKind uint8

const (
	// OutputPayment pays one of the requested payments.
	OutputPayment OutputKind = iota

	// OutputChange returns the excess of the inputs to the account.
	OutputChange

	// OutputEphemeral pays an ephemeral transparent address of the
	// account that a later step spends from.
	OutputEphemeral
)

// String returns the output kind name.
func (k OutputKind) String() string {
	switch k {
	case OutputPayment:
		return "payment"
	case OutputChange:
		return "change"
	case OutputEphemeral:
		return "ephemeral"
	default:
		return fmt.Sprintf("OutputKind(%d)", uint8(k))
	}
}

// StepOutput is an output a proposal step creates.
type StepOutput struct {
	Kind  OutputKind
	Pool  wtxmgr.PoolType
	Value unit.Zatoshi
	Memo  fn.Option[shielded.Memo]

	// PaymentIndex is the index into Proposal.Payments of a payment
	// output.
	PaymentIndex int

	// Recipient is the decoded address of a payment output.
	Recipient *waddrmgr.Recipient

	// Ephemeral is the address an ephemeral output pays.
	Ephemeral *waddrmgr.EphemeralAddress
}

// StepOutputRef refers to an output of an earlier step.
type StepOutputRef struct {
	Step   int
	Output int
}

// Step is one transaction of a proposal.
type Step struct {
	ShieldedInputs    []wtxmgr.SpendableNote
	TransparentInputs []wtxmgr.TransparentOutput
	PriorStepInputs   []StepOutputRef

	Outputs []StepOutput
	Fee     unit.Zatoshi
}

// Proposal is a plan of one or more transactions that together make a set
// of payments from an account.
type Proposal struct {
	Account      uint32
	Payments     []Payment
	TargetHeight uint32
	AnchorHeight uint32
	MinConf      uint32
	Steps        []Step
}

// priorOutput returns the earlier step output that ref points step at.
func (p *Proposal) priorOutput(ref StepOutputRef,
	step int) (*StepOutput, error) {

	if ref.Step < 0 || ref.Step >= step {
		str := fmt.Sprintf("step %d refers to output of step %d", step,
			ref.Step)
		return nil, walletError(ErrInvalidProposal, str, nil)
	}
	outs := p.Steps[ref.Step].Outputs
	if ref.Output < 0 || ref.Output >= len(outs) {
		str := fmt.Sprintf("step %d refers to missing output %d of "+
			"step %d", step, ref.Output, ref.Step)
		return nil, walletError(ErrInvalidProposal, str, nil)
	}
	out := &outs[ref.Output]
	if out.Kind != OutputEphemeral {
		str := fmt.Sprintf("step %d spends %v output %d of step %d",
			step, out.Kind, ref.Output, ref.Step)
		return nil, walletError(ErrInvalidProposal, str, nil)
	}

	return out, nil
}

// Validate checks that every step balances, that steps only spend
// ephemeral outputs of earlier steps, and that every ephemeral output is
// spent exactly once.
func (p *Proposal) Validate() error {
	if len(p.Steps) == 0 {
		return walletError(ErrInvalidProposal, "proposal has no steps",
			nil)
	}

	consumed := make(map[StepOutputRef]int)
	for i := range p.Steps {
		s := &p.Steps[i]

		var in, out unit.Zatoshi
		for j := range s.ShieldedInputs {
			in += s.ShieldedInputs[j].Value()
		}
		for j := range s.TransparentInputs {
			in += s.TransparentInputs[j].Value()
		}
		for _, ref := range s.PriorStepInputs {
			o, err := p.priorOutput(ref, i)
			if err != nil {
				return err
			}
			if n := consumed[ref]; n > 0 {
				str := fmt.Sprintf("output %d of step %d "+
					"spent twice", ref.Output, ref.Step)
				return walletError(ErrInvalidProposal, str, nil)
			}
			consumed[ref]++
			in += o.Value
		}
		for j := range s.Outputs {
			out += s.Outputs[j].Value
		}

		if in != out+s.Fee {
			str := fmt.Sprintf("step %d inputs %v do not equal "+
				"outputs %v plus fee %v", i, in, out, s.Fee)
			return walletError(ErrBalance, str, nil)
		}
	}

	for i := range p.Steps {
		for j, o := range p.Steps[i].Outputs {
			if o.Kind != OutputEphemeral {
				continue
			}
			if consumed[StepOutputRef{Step: i, Output: j}] == 0 {
				str := fmt.Sprintf("ephemeral output %d of step "+
					"%d is not spent by a later step", j, i)
				return walletError(ErrEphemeralOutputLeftUnspent,
					str, nil)
			}
		}
	}

	return nil
}

// TotalFee returns the fee of every step.
func (p *Proposal) TotalFee() unit.Zatoshi {
	var fee unit.Zatoshi
	for i := range p.Steps {
		fee += p.Steps[i].Fee
	}
	return fee
}

// decodedPayment is a payment with its recipient decoded and its output
// pool chosen.
type decodedPayment struct {
	index     int
	payment   Payment
	recipient *waddrmgr.Recipient
	pool      wtxmgr.PoolType
}

// decodePayment decodes the recipient of a payment and rejects payments
// the wallet must not make.
func (w *Wallet) decodePayment(i int, pmt Payment) (*decodedPayment, error) {
	r, err := waddrmgr.DecodeRecipient(w.params, pmt.Recipient)
	if err != nil {
		return nil, err
	}

	d := &decodedPayment{
		index:     i,
		payment:   pmt,
		recipient: r,
		pool:      wtxmgr.PoolTransparent,
	}
	if r.Kind == waddrmgr.RecipientUnified {
		switch {
		case r.Unified.Orchard != nil:
			d.pool = wtxmgr.PoolOrchard
		case r.Unified.Sapling != nil:
			d.pool = wtxmgr.PoolSapling
		default:
			// A transparent-only unified address is paid as a
			// plain P2PKH address.
			d.recipient = &waddrmgr.Recipient{
				Kind:    waddrmgr.RecipientP2PKH,
				Encoded: r.Encoded,
				Hash:    r.Unified.Transparent,
			}
		}
	}

	if d.pool != wtxmgr.PoolTransparent {
		return d, nil
	}

	// Ephemeral addresses are only paid by the wallet itself, as the
	// first step of a TEX payment.
	addr := waddrmgr.EncodeP2PKH(w.params, d.recipient.Hash)
	if d.recipient.Kind != waddrmgr.RecipientP2SH &&
		w.Manager.IsEphemeralAddress(addr).IsSome() {

		return nil, &PaysEphemeralTransparentAddressError{
			Address: pmt.Recipient,
		}
	}
	if pmt.Memo.IsSome() {
		str := fmt.Sprintf("payment %d: transparent recipient %s "+
			"cannot receive a memo", i, pmt.Recipient)
		return nil, walletError(ErrInvalidProposal, str, nil)
	}

	pkScript, err := d.recipient.PkScript(w.params)
	if err != nil {
		return nil, err
	}
	out := wire.NewTxOut(int64(pmt.Amount), pkScript)
	if txrules.IsDustOutput(out, txrules.DefaultRelayFeePerKb) {
		str := fmt.Sprintf("payment %d of %v to %s is below the dust "+
			"threshold", i, pmt.Amount, pmt.Recipient)
		return nil, walletError(ErrDustOutput, str, nil)
	}

	return d, nil
}

// stepShape returns the fee-relevant shape of a step that spends the notes
// and creates the outputs.
func stepShape(notes []wtxmgr.SpendableNote, utxos int,
	outputs []StepOutput) unit.TxShape {

	var shape unit.TxShape
	for i := range notes {
		switch notes[i].ID.Protocol {
		case shielded.Sapling:
			shape.SaplingSpends++
		case shielded.Orchard:
			shape.OrchardSpends++
		}
	}
	for i := 0; i < utxos; i++ {
		shape.TransparentInputSizes = append(
			shape.TransparentInputSizes,
			unit.P2PKHStandardInputSize,
		)
	}
	for _, o := range outputs {
		switch o.Pool {
		case wtxmgr.PoolSapling:
			shape.SaplingOutputs++
		case wtxmgr.PoolOrchard:
			shape.OrchardOutputs++
		default:
			shape.TransparentOutputSizes = append(
				shape.TransparentOutputSizes,
				unit.P2PKHStandardOutputSize,
			)
		}
	}
	return shape
}

// changePool returns the pool change goes to: Orchard when any input is an
// Orchard note and the account can receive there, Sapling otherwise.
func changePool(ufvk *waddrmgr.UnifiedFullViewingKey,
	notes []wtxmgr.SpendableNote) wtxmgr.PoolType {

	if ufvk.Orchard == nil {
		return wtxmgr.PoolSapling
	}
	if ufvk.Sapling == nil {
		return wtxmgr.PoolOrchard
	}
	for i := range notes {
		if notes[i].ID.Protocol == shielded.Orchard {
			return wtxmgr.PoolOrchard
		}
	}
	return wtxmgr.PoolSapling
}

// ProposeTransfer plans the payments from an account's shielded notes
// confirmed minConf times. The oldest notes are selected until they cover
// the payments and the ZIP-317 fee; the excess goes to a single change
// output. Payments to TEX addresses are routed through an ephemeral
// transparent address of the account in a second step, which reserves that
// address.
//
// An *wtxmgr.InsufficientFundsError is returned when the account's
// spendable notes do not cover the payments and fee.
func (w *Wallet) ProposeTransfer(account uint32, payments []Payment,
	minConf uint32) (*Proposal, error) {

	if len(payments) == 0 {
		return nil, walletError(ErrInvalidProposal, "no payments", nil)
	}
	acct, err := w.Manager.Account(account)
	if err != nil {
		return nil, err
	}

	var (
		direct []*decodedPayment
		tex    []*decodedPayment
		total  unit.Zatoshi
	)
	for i, pmt := range payments {
		d, err := w.decodePayment(i, pmt)
		if err != nil {
			return nil, err
		}
		if d.recipient.Kind == waddrmgr.RecipientTEX {
			tex = append(tex, d)
		} else {
			direct = append(direct, d)
		}
		if total, err = total.Add(pmt.Amount); err != nil {
			return nil, err
		}
	}

	w.mtx.RLock()
	defer w.mtx.RUnlock()

	target, anchor, err := w.targetAndAnchorLocked(minConf)
	if err != nil {
		return nil, err
	}

	proposal := &Proposal{
		Account:      account,
		Payments:     payments,
		TargetHeight: target,
		AnchorHeight: anchor,
		MinConf:      minConf,
	}

	var outputs []StepOutput
	for _, d := range direct {
		outputs = append(outputs, StepOutput{
			Kind:         OutputPayment,
			Pool:         d.pool,
			Value:        d.payment.Amount,
			Memo:         d.payment.Memo,
			PaymentIndex: d.index,
			Recipient:    d.recipient,
		})
	}

	// The second step spends a single ephemeral output into the TEX
	// payments. Its fee is paid by the first step.
	var texStep *Step
	if len(tex) > 0 {
		texStep = &Step{
			PriorStepInputs: []StepOutputRef{{
				Step: 0, Output: len(outputs),
			}},
		}
		var texTotal unit.Zatoshi
		for _, d := range tex {
			texStep.Outputs = append(texStep.Outputs, StepOutput{
				Kind:         OutputPayment,
				Pool:         wtxmgr.PoolTransparent,
				Value:        d.payment.Amount,
				PaymentIndex: d.index,
				Recipient:    d.recipient,
			})
			texTotal += d.payment.Amount
		}
		texStep.Fee = unit.ZIP317Fee(stepShape(nil, 1, texStep.Outputs))

		// Reservation happens last so that a failed proposal does
		// not use up the gap limit.
		outputs = append(outputs, StepOutput{
			Kind:  OutputEphemeral,
			Pool:  wtxmgr.PoolTransparent,
			Value: texTotal + texStep.Fee,
		})
		total += texStep.Fee
	}

	notes, fee, err := w.selectForOutputs(acct, total, outputs, anchor)
	if err != nil {
		return nil, err
	}

	var in unit.Zatoshi
	for i := range notes {
		in += notes[i].Value()
	}
	outputs = append(outputs, StepOutput{
		Kind:  OutputChange,
		Pool:  changePool(acct.UFVK, notes),
		Value: in - total - fee,
	})
	proposal.Steps = append(proposal.Steps, Step{
		ShieldedInputs: notes,
		Outputs:        outputs,
		Fee:            fee,
	})

	if texStep != nil {
		eph, err := w.Manager.ReserveEphemeral(account, 1)
		if err != nil {
			return nil, err
		}
		for i := range proposal.Steps[0].Outputs {
			o := &proposal.Steps[0].Outputs[i]
			if o.Kind == OutputEphemeral {
				o.Ephemeral = &eph[0]
			}
		}
		proposal.Steps = append(proposal.Steps, *texStep)
	}

	if err := proposal.Validate(); err != nil {
		return nil, err
	}

	log.Debugf("Proposed %d %s from account %d in %d %s, fee %v",
		len(payments), pickNoun(len(payments), "payment", "payments"),
		account, len(proposal.Steps),
		pickNoun(len(proposal.Steps), "step", "steps"),
		proposal.TotalFee())

	return proposal, nil
}

// selectForOutputs selects notes covering total and the fee of a step with
// the outputs plus a change output. The fee depends on the number of notes
// selected, so selection is repeated until the fee settles.
func (w *Wallet) selectForOutputs(acct waddrmgr.Account, total unit.Zatoshi,
	outputs []StepOutput, anchor uint32) ([]wtxmgr.SpendableNote,
	unit.Zatoshi, error) {

	withChange := func(notes []wtxmgr.SpendableNote) []StepOutput {
		outs := append([]StepOutput(nil), outputs...)
		return append(outs, StepOutput{
			Kind: OutputChange,
			Pool: changePool(acct.UFVK, notes),
		})
	}

	var (
		notes []wtxmgr.SpendableNote
		fee   = unit.ZIP317Fee(stepShape(nil, 0, withChange(nil)))
	)
	for {
		required, err := total.Add(fee)
		if err != nil {
			return nil, 0, err
		}
		notes, err = w.txStore.SelectSpendable(&wtxmgr.SelectParams{
			Account:   acct.ID,
			Target:    required,
			Protocols: acct.UFVK.Protocols(),
			Anchor:    anchor,
			Tip:       w.chainTip,
		}, witnesses(w.trees))
		if err != nil {
			return nil, 0, err
		}

		next := unit.ZIP317Fee(stepShape(notes, 0, withChange(notes)))
		if next <= fee {
			return notes, fee, nil
		}
		fee = next
	}
}

// ProposeShielding plans moving every transparent output of the account
// that is spendable at minConf confirmations into a shielded note of the
// account. It fails with an *wtxmgr.InsufficientFundsError when those
// outputs total less than threshold or do not cover the fee.
func (w *Wallet) ProposeShielding(account uint32, threshold unit.Zatoshi,
	minConf uint32) (*Proposal, error) {

	acct, err := w.Manager.Account(account)
	if err != nil {
		return nil, err
	}

	w.mtx.RLock()
	defer w.mtx.RUnlock()

	target, anchor, err := w.targetAndAnchorLocked(minConf)
	if err != nil {
		return nil, err
	}
	utxos, err := w.txStore.SpendableUTXOs(account, target, max(minConf, 1))
	if err != nil {
		return nil, err
	}

	var total unit.Zatoshi
	for i := range utxos {
		total += utxos[i].Value()
	}
	if total == 0 || total < threshold {
		return nil, &wtxmgr.InsufficientFundsError{
			Available: total,
			Required:  max(threshold, 1),
		}
	}

	pool := wtxmgr.PoolOrchard
	if acct.UFVK.Orchard == nil {
		pool = wtxmgr.PoolSapling
	}
	outputs := []StepOutput{{Kind: OutputChange, Pool: pool}}
	fee := unit.ZIP317Fee(stepShape(nil, len(utxos), outputs))
	if total <= fee {
		return nil, &wtxmgr.InsufficientFundsError{
			Available: total,
			Required:  fee + 1,
		}
	}
	outputs[0].Value = total - fee

	proposal := &Proposal{
		Account:      account,
		TargetHeight: target,
		AnchorHeight: anchor,
		MinConf:      minConf,
		Steps: []Step{{
			TransparentInputs: utxos,
			Outputs:           outputs,
			Fee:               fee,
		}},
	}
	if err := proposal.Validate(); err != nil {
		return nil, err
	}

	log.Debugf("Proposed shielding %v from %d transparent %s of "+
		"account %d", outputs[0].Value, len(utxos),
		pickNoun(len(utxos), "output", "outputs"), account)

	return proposal, nil
}

// IsInsufficientFunds reports whether err is an insufficient funds error
// and returns it.
func IsInsufficientFunds(err error) (*wtxmgr.InsufficientFundsError, bool) {
	var e *wtxmgr.InsufficientFundsError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
