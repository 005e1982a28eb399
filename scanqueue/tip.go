// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scanqueue

import "github.com/lightningnetwork/lnd/fn/v2"

const (
	// PruningDepth is the number of blocks below the chain tip for which
	// note commitment tree checkpoints are retained. A wallet that has
	// fallen further behind than this verifies its previous scan
	// boundary before scanning anything else.
	PruningDepth = 100

	// VerifyLookahead is the number of blocks after the last scanned block
	// that are scanned first to detect a reorg.
	VerifyLookahead = 10
)

// TipParams is the wallet state the chain tip update depends on.
type TipParams struct {
	// Tip is the new chain tip height.
	Tip uint32

	// MaxScanned is the highest scanned height, if any.
	MaxScanned fn.Option[uint32]

	// Birthday is the wallet birthday height, if any account exists.
	Birthday fn.Option[uint32]

	// ShardEnd is the highest height at which a note commitment subtree
	// is known to be complete, across all pools.
	ShardEnd fn.Option[uint32]

	// SaplingActivation is the first height shielded outputs can appear
	// at.
	SaplingActivation uint32
}

// TipEntries returns the ranges to splice into the queue, without forcing,
// when the chain tip advances to p.Tip.
//
// Two entries are formed. The tip-shard entry covers the incomplete shard
// that contains the tip, from the end of the last complete shard or the
// birthday, whichever is later, and is scanned with ChainTip priority. The
// tip entry covers the unscanned blocks below the tip: when nothing has
// been scanned yet it is the whole span from the birthday at Historic
// priority (or from Sapling activation at Ignored priority when there is no
// birthday); when the wallet is within PruningDepth of the tip it is the
// span after the last scanned block at ChainTip priority; otherwise it is a
// short Verify range after the last scanned block followed by Historic.
func TipEntries(p TipParams) []Range {
	var entries []Range
	tipEnd := p.Tip + 1

	if p.ShardEnd.IsSome() {
		start := p.ShardEnd.UnsafeFromSome()
		p.Birthday.WhenSome(func(b uint32) {
			start = max(start, b)
		})
		if start < tipEnd {
			entries = append(entries, NewRange(start, tipEnd, ChainTip))
		}
	}

	switch {
	case p.MaxScanned.IsNone():
		if p.Birthday.IsSome() {
			entries = append(entries, NewRange(
				p.Birthday.UnsafeFromSome(), tipEnd, Historic,
			))
		} else {
			entries = append(entries, NewRange(
				p.SaplingActivation, tipEnd, Ignored,
			))
		}

	default:
		next := p.MaxScanned.UnsafeFromSome() + 1
		if next >= tipEnd {
			break
		}

		// The steady state: the wallet is close enough to the tip
		// that checkpoints cover the whole gap.
		if next+PruningDepth > tipEnd {
			entries = append(entries, NewRange(next, tipEnd, ChainTip))
			break
		}

		verifyEnd := min(tipEnd-PruningDepth, next+VerifyLookahead)
		if verifyEnd > next {
			entries = append(entries, NewRange(next, verifyEnd, Verify))
		}
		entries = append(entries, NewRange(verifyEnd, tipEnd, Historic))
	}

	return entries
}

// UpdateTip splices the chain tip entries for p into the queue.
func (q *Queue) UpdateTip(p TipParams) []Range {
	entries := TipEntries(p)
	q.Replace(entries, false)

	log.Debugf("Chain tip %d: spliced %v", p.Tip, entries)

	return entries
}
