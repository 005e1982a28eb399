// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"sort"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shielded"
)

// WitnessChecker reports whether a witness for the leaf at pos in the pool's
// note commitment tree can be produced as of the anchor height.
type WitnessChecker interface {
	IsWitnessable(p shielded.Protocol, pos uint64, anchor uint32) bool
}

// SelectParams are the inputs of spendable note selection.
type SelectParams struct {
	Account   uint32
	Target    unit.Zatoshi
	Protocols []shielded.Protocol
	Anchor    uint32

	// Exclude lists notes that may not be selected, typically notes
	// already committed to another proposal.
	Exclude []NoteID

	// Tip is the chain tip used to resolve the expiry of unmined spends.
	Tip fn.Option[uint32]
}

// SpendableNote is a note selected for spending together with where it was
// mined.
type SpendableNote struct {
	ReceivedNote

	MinedHeight uint32
	TxIndex     uint16
}

// EligibleNotes returns every note that could be spent under p, in selection
// order: oldest block first, then transaction index, pool and position.
// Within one pool this is tree position order. Notes of different pools
// mined in the same transaction are ordered Sapling before Orchard. A note
// is eligible when it belongs to the account and one of the pools, is not
// excluded or spent, has a nullifier and a position, was mined at or below
// the anchor, and is witnessable at the anchor.
func (s *Store) EligibleNotes(p *SelectParams,
	witness WitnessChecker) ([]SpendableNote, error) {

	pools := make(map[shielded.Protocol]struct{}, len(p.Protocols))
	for _, proto := range p.Protocols {
		pools[proto] = struct{}{}
	}
	excluded := make(map[NoteID]struct{}, len(p.Exclude))
	for _, id := range p.Exclude {
		excluded[id] = struct{}{}
	}

	var eligible []SpendableNote
	for id, n := range s.notes {
		if n.Account != p.Account {
			continue
		}
		if _, ok := pools[id.Protocol]; !ok {
			continue
		}
		if _, ok := excluded[id]; ok {
			continue
		}
		if n.Nullifier.IsNone() || n.Position.IsNone() {
			continue
		}

		e, ok := s.txs[id.TxID]
		if !ok || e.Status.State != TxMined ||
			e.Status.Height > p.Anchor {

			continue
		}

		spent, err := s.IsSpent(id, p.Tip, 0)
		if err != nil {
			return nil, err
		}
		if spent {
			continue
		}

		pos := n.Position.UnsafeFromSome()
		if !witness.IsWitnessable(id.Protocol, pos, p.Anchor) {
			continue
		}

		eligible = append(eligible, SpendableNote{
			ReceivedNote: *n,
			MinedHeight:  e.Status.Height,
			TxIndex:      e.TxIndex.UnwrapOr(0),
		})
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := &eligible[i], &eligible[j]
		switch {
		case a.MinedHeight != b.MinedHeight:
			return a.MinedHeight < b.MinedHeight
		case a.TxIndex != b.TxIndex:
			return a.TxIndex < b.TxIndex
		case a.ID.Protocol != b.ID.Protocol:
			return a.ID.Protocol < b.ID.Protocol
		default:
			return a.Position.UnwrapOr(0) < b.Position.UnwrapOr(0)
		}
	})

	return eligible, nil
}

// SelectSpendable selects the oldest eligible notes until their total first
// exceeds the target. When every eligible note together does not reach the
// target an *InsufficientFundsError is returned carrying the eligible total.
func (s *Store) SelectSpendable(p *SelectParams,
	witness WitnessChecker) ([]SpendableNote, error) {

	eligible, err := s.EligibleNotes(p, witness)
	if err != nil {
		return nil, err
	}

	var available unit.Zatoshi
	for i := range eligible {
		available, err = available.Add(eligible[i].Value())
		if err != nil {
			return nil, err
		}
	}
	if available < p.Target {
		return nil, &InsufficientFundsError{
			Available: available,
			Required:  p.Target,
		}
	}

	var (
		selected []SpendableNote
		total    unit.Zatoshi
	)
	for _, n := range eligible {
		if total > p.Target {
			break
		}
		selected = append(selected, n)
		total += n.Value()
	}

	log.Debugf("Selected %d of %d eligible notes (%v) for target %v at "+
		"anchor %d", len(selected), len(eligible), total, p.Target,
		p.Anchor)

	return selected, nil
}
