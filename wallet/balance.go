// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/scanqueue"
	"github.com/zecsuite/zecwallet/shielded"
	"github.com/zecsuite/zecwallet/wtxmgr"
)

// Balance is the value of an account's notes in one pool, split by
// whether it can be spent now.
type Balance struct {
	// Spendable notes are confirmed to the requested depth and can be
	// witnessed at the anchor.
	Spendable unit.Zatoshi

	// ChangePendingConfirmation is change that is not yet spendable.
	ChangePendingConfirmation unit.Zatoshi

	// ValuePendingSpendability is received value that is not yet
	// spendable.
	ValuePendingSpendability unit.Zatoshi
}

// Total returns the sum of every bucket.
func (b *Balance) Total() unit.Zatoshi {
	return b.Spendable + b.ChangePendingConfirmation +
		b.ValuePendingSpendability
}

func (b *Balance) add(n *wtxmgr.ReceivedNote, spendable bool) error {
	var (
		bucket *unit.Zatoshi
		err    error
	)
	switch {
	case spendable:
		bucket = &b.Spendable
	case n.IsChange:
		bucket = &b.ChangePendingConfirmation
	default:
		bucket = &b.ValuePendingSpendability
	}
	*bucket, err = bucket.Add(n.Value())
	return err
}

// AccountBalance is the balance of one account across pools.
type AccountBalance struct {
	Sapling Balance
	Orchard Balance

	// Unshielded is the spendable value of the account's transparent
	// outputs.
	Unshielded unit.Zatoshi
}

// Pool returns the balance of a shielded pool.
func (a *AccountBalance) Pool(p shielded.Protocol) *Balance {
	if p == shielded.Orchard {
		return &a.Orchard
	}
	return &a.Sapling
}

// Total returns the value of the account across every pool and bucket.
func (a *AccountBalance) Total() unit.Zatoshi {
	return a.Sapling.Total() + a.Orchard.Total() + a.Unshielded
}

// SpendableValue returns the shielded value the account can spend now.
func (a *AccountBalance) SpendableValue() unit.Zatoshi {
	return a.Sapling.Spendable + a.Orchard.Spendable
}

// ScanProgress counts the blocks between the wallet birthday and the chain
// tip that have been scanned.
type ScanProgress struct {
	Scanned uint64
	Total   uint64
}

// WalletSummary is a snapshot of the wallet's balances and sync state.
type WalletSummary struct {
	AccountBalances map[uint32]AccountBalance

	ChainTipHeight     uint32
	FullyScannedHeight fn.Option[uint32]
	ScanProgress       fn.Option[ScanProgress]

	NextSaplingSubtreeIndex uint64
	NextOrchardSubtreeIndex uint64
}

// TargetAndAnchorHeights returns the height a transaction built now targets
// and the anchor height its spends are witnessed at, for notes confirmed
// minConf times.
func (w *Wallet) TargetAndAnchorHeights(minConf uint32) (uint32, uint32,
	error) {

	w.mtx.RLock()
	defer w.mtx.RUnlock()

	return w.targetAndAnchorLocked(minConf)
}

func (w *Wallet) targetAndAnchorLocked(minConf uint32) (uint32, uint32,
	error) {

	if w.chainTip.IsNone() {
		return 0, 0, walletError(ErrScanRequired,
			"chain tip is not known", nil)
	}
	tip := w.chainTip.UnsafeFromSome()

	return tip + 1, wtxmgr.SummaryHeight(tip, minConf), nil
}

// WalletSummary computes the balance of every account at minConf
// confirmations. Notes in unmined, unexpired transactions are pending;
// notes spent by a mined or unexpired transaction are not counted. It
// fails with ErrScanRequired until the chain tip is known.
func (w *Wallet) WalletSummary(minConf uint32) (*WalletSummary, error) {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	_, anchor, err := w.targetAndAnchorLocked(minConf)
	if err != nil {
		return nil, err
	}
	tip := w.chainTip.UnsafeFromSome()

	summary := &WalletSummary{
		AccountBalances:         make(map[uint32]AccountBalance),
		ChainTipHeight:          tip,
		FullyScannedHeight:      w.queue.FullyScannedTo(),
		ScanProgress:            w.scanProgressLocked(tip),
		NextSaplingSubtreeIndex: w.trees[shielded.Sapling].NextSubtreeIndex(),
		NextOrchardSubtreeIndex: w.trees[shielded.Orchard].NextSubtreeIndex(),
	}

	for _, id := range w.Manager.AccountIDs() {
		var bal AccountBalance
		bal.Unshielded, err = w.txStore.TransparentBalance(
			id, tip+1, max(minConf, 1),
		)
		if err != nil {
			return nil, err
		}
		summary.AccountBalances[id] = bal
	}

	wit := witnesses(w.trees)
	for _, n := range w.txStore.ReceivedNotes(nil) {
		bal, ok := summary.AccountBalances[n.Account]
		if !ok {
			continue
		}

		spent, err := w.txStore.IsSpent(n.ID, w.chainTip, minConf)
		if err != nil {
			return nil, err
		}
		if spent {
			continue
		}

		entry, ok := w.txStore.Tx(&n.ID.TxID)
		if !ok {
			return nil, corrupted("note %v has no transaction", n.ID)
		}

		var spendable bool
		switch mined := entry.MinedHeight(); {
		case mined.IsSome():
			spendable = mined.UnsafeFromSome() <= anchor &&
				n.Nullifier.IsSome() && n.Position.IsSome() &&
				wit.IsWitnessable(
					n.ID.Protocol, n.Position.UnsafeFromSome(),
					anchor,
				)

		// An unmined transaction that can no longer be mined
		// contributes nothing.
		case !entry.IsMinedOrUnexpiredAt(tip):
			continue
		}

		if err := bal.Pool(n.ID.Protocol).add(&n, spendable); err != nil {
			return nil, err
		}
		summary.AccountBalances[n.Account] = bal
	}

	return summary, nil
}

// scanProgressLocked counts the scanned heights in [birthday, tip].
func (w *Wallet) scanProgressLocked(tip uint32) fn.Option[ScanProgress] {
	bday := w.Manager.WalletBirthday()
	if bday.IsNone() || bday.UnsafeFromSome() > tip {
		return fn.None[ScanProgress]()
	}
	start, end := bday.UnsafeFromSome(), tip+1

	progress := ScanProgress{Total: uint64(end - start)}
	for _, r := range w.queue.Ranges() {
		if r.Priority != scanqueue.Scanned {
			continue
		}
		lo, hi := max(r.Start, start), min(r.End, end)
		if lo < hi {
			progress.Scanned += uint64(hi - lo)
		}
	}

	return fn.Some(progress)
}

// SelectSpendableNotes selects the account's oldest notes in the given
// pools that can be spent at the anchor height until their value exceeds
// target. It fails with a *wtxmgr.InsufficientFundsError when the eligible
// notes do not cover target.
func (w *Wallet) SelectSpendableNotes(account uint32, target unit.Zatoshi,
	protocols []shielded.Protocol, anchor uint32,
	exclude []wtxmgr.NoteID) ([]wtxmgr.SpendableNote, error) {

	w.mtx.RLock()
	defer w.mtx.RUnlock()

	if _, err := w.Manager.Account(account); err != nil {
		return nil, err
	}

	return w.txStore.SelectSpendable(&wtxmgr.SelectParams{
		Account:   account,
		Target:    target,
		Protocols: protocols,
		Anchor:    anchor,
		Exclude:   exclude,
		Tip:       w.chainTip,
	}, witnesses(w.trees))
}

// AccountBalance returns the balance of a single account.
func (w *Wallet) AccountBalance(account uint32,
	minConf uint32) (*AccountBalance, error) {

	summary, err := w.WalletSummary(minConf)
	if err != nil {
		return nil, err
	}
	bal, ok := summary.AccountBalances[account]
	if !ok {
		return nil, fmt.Errorf("account %d has no balance", account)
	}
	return &bal, nil
}
