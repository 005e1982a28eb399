// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shielded"
)

// NoteID identifies a shielded output: the transaction, the pool and the
// index of the output (or action) within the transaction's bundle.
type NoteID struct {
	TxID     chainhash.Hash
	Protocol shielded.Protocol
	Index    uint16
}

// String returns a human readable form of the id.
func (id NoteID) String() string {
	return fmt.Sprintf("%v:%v:%d", id.TxID, id.Protocol, id.Index)
}

// Less orders ids by transaction id, then pool, then index.
func (id NoteID) Less(o NoteID) bool {
	if c := bytes.Compare(id.TxID[:], o.TxID[:]); c != 0 {
		return c < 0
	}
	if id.Protocol != o.Protocol {
		return id.Protocol < o.Protocol
	}
	return id.Index < o.Index
}

// ReceivedNote is a note received by one of the wallet's accounts.
type ReceivedNote struct {
	ID      NoteID
	Account uint32
	Note    shielded.Note

	// Nullifier is known once the note's position is known, or straight
	// away for Orchard notes.
	Nullifier fn.Option[shielded.Nullifier]

	// Position is the leaf index of the note's commitment.
	Position fn.Option[uint64]

	// Scope is the scope of the key that received the note.
	Scope fn.Option[shielded.Scope]

	Memo     fn.Option[shielded.Memo]
	IsChange bool
}

// Value returns the note value.
func (n *ReceivedNote) Value() unit.Zatoshi {
	return n.Note.Value
}

func fill[T any](dst *fn.Option[T], src fn.Option[T]) {
	if dst.IsNone() {
		*dst = src
	}
}

// merge fills the fields of n that are missing from o. Fields already
// present in n are kept. The account and note contents may not differ.
func (n *ReceivedNote) merge(o *ReceivedNote) error {
	if n.Account != o.Account || !n.Note.Equal(&o.Note) {
		return txStoreError(ErrImmutableField, fmt.Sprintf(
			"note %v observed with different contents", n.ID), nil)
	}

	fill(&n.Nullifier, o.Nullifier)
	fill(&n.Position, o.Position)
	fill(&n.Scope, o.Scope)
	fill(&n.Memo, o.Memo)
	n.IsChange = n.IsChange || o.IsChange

	return nil
}

func (n *ReceivedNote) nullifierKey() fn.Option[nullifierKey] {
	return fn.MapOption(func(nf shielded.Nullifier) nullifierKey {
		return nullifierKey{protocol: n.ID.Protocol, nullifier: nf}
	})(n.Nullifier)
}

// InsertReceivedNote inserts a note, or merges it into the note already
// stored under the same id.
func (s *Store) InsertReceivedNote(n *ReceivedNote) error {
	if n.ID.Protocol != n.Note.Protocol {
		return txStoreError(ErrInput, fmt.Sprintf("note %v carries a "+
			"%v note", n.ID, n.Note.Protocol), nil)
	}

	stored, ok := s.notes[n.ID]
	if ok {
		merged := *stored
		if err := merged.merge(n); err != nil {
			return err
		}
		*stored = merged
	} else {
		cp := *n
		stored = &cp
		s.notes[n.ID] = stored

		log.Debugf("Inserted %v note %v of %v for account %d",
			n.ID.Protocol, n.ID, n.Note.Value, n.Account)
	}

	stored.nullifierKey().WhenSome(func(k nullifierKey) {
		s.byNullifier[k] = stored.ID
	})

	return nil
}

// ReceivedNote returns a copy of the note with the given id.
func (s *Store) ReceivedNote(id NoteID) (ReceivedNote, bool) {
	n, ok := s.notes[id]
	if !ok {
		return ReceivedNote{}, false
	}
	return *n, true
}

// NoteByNullifier returns the id of the tracked note with the given
// nullifier.
func (s *Store) NoteByNullifier(p shielded.Protocol,
	nf shielded.Nullifier) fn.Option[NoteID] {

	id, ok := s.byNullifier[nullifierKey{protocol: p, nullifier: nf}]
	if !ok {
		return fn.None[NoteID]()
	}
	return fn.Some(id)
}

// ReceivedNotes returns copies of the notes that satisfy filter, ordered by
// id. A nil filter selects every note.
func (s *Store) ReceivedNotes(filter func(*ReceivedNote) bool) []ReceivedNote {
	notes := make([]ReceivedNote, 0, len(s.notes))
	for _, n := range s.notes {
		if filter == nil || filter(n) {
			notes = append(notes, *n)
		}
	}
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].ID.Less(notes[j].ID)
	})

	return notes
}

// RecordNullifier records that a nullifier was revealed by the transaction
// at loc, whether or not the wallet owns the note.
func (s *Store) RecordNullifier(p shielded.Protocol, nf shielded.Nullifier,
	loc Locator) {

	s.nullifiers[nullifierKey{protocol: p, nullifier: nf}] = loc
}

// NullifierLocator returns where a nullifier was revealed on chain.
func (s *Store) NullifierLocator(p shielded.Protocol,
	nf shielded.Nullifier) fn.Option[Locator] {

	loc, ok := s.nullifiers[nullifierKey{protocol: p, nullifier: nf}]
	if !ok {
		return fn.None[Locator]()
	}
	return fn.Some(loc)
}

// NullifierCount returns the number of recorded nullifier observations.
func (s *Store) NullifierCount() int {
	return len(s.nullifiers)
}

// MarkSpent records that the note is spent by the transaction txid.
func (s *Store) MarkSpent(id NoteID, txid *chainhash.Hash) error {
	if _, ok := s.notes[id]; !ok {
		return txStoreError(ErrNoteNotFound,
			fmt.Sprintf("note %v not found", id), nil)
	}
	s.noteSpends[id] = *txid

	log.Debugf("Note %v spent by %v", id, txid)

	return nil
}

// MarkSpentByNullifier records that the tracked note with the given
// nullifier is spent by txid and returns its id.
func (s *Store) MarkSpentByNullifier(p shielded.Protocol,
	nf shielded.Nullifier, txid *chainhash.Hash) (NoteID, error) {

	id, ok := s.byNullifier[nullifierKey{protocol: p, nullifier: nf}]
	if !ok {
		return NoteID{}, txStoreError(ErrNoteNotFound, fmt.Sprintf(
			"no %v note with nullifier %v", p, nf), nil)
	}

	return id, s.MarkSpent(id, txid)
}

// SpendingTx returns the transaction recorded as spending the note.
func (s *Store) SpendingTx(id NoteID) fn.Option[chainhash.Hash] {
	txid, ok := s.noteSpends[id]
	if !ok {
		return fn.None[chainhash.Hash]()
	}
	return fn.Some(txid)
}

// spentAt reports whether a spend by txid is effective at height h: the
// spending transaction is mined, or is unmined and not expired at h.
func (s *Store) spentAt(txid *chainhash.Hash, h fn.Option[uint32]) (bool,
	error) {

	e, ok := s.txs[*txid]
	if !ok {
		return false, txNotFound(txid)
	}
	if e.Status.State == TxMined {
		return true, nil
	}
	if h.IsNone() {
		return true, nil
	}

	return e.unexpiredAt(h.UnsafeFromSome()), nil
}

// IsSpent reports whether the note is effectively spent: a spend is
// recorded and the spending transaction is mined, or is unmined and has no
// expiry or an expiry above the summary height for tip and minConf. With
// no known chain tip every recorded spend counts.
func (s *Store) IsSpent(id NoteID, tip fn.Option[uint32],
	minConf uint32) (bool, error) {

	txid, ok := s.noteSpends[id]
	if !ok {
		return false, nil
	}

	summary := fn.MapOption(func(t uint32) uint32 {
		return SummaryHeight(t, minConf)
	})(tip)

	return s.spentAt(&txid, summary)
}
