// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wtxmgr implements the wallet's note ledger: the transactions it has
// seen, the shielded notes it received, the spends of those notes, the
// nullifiers observed on chain, the outputs it sent and the transparent
// outputs it controls.
//
// The Store is an in-memory structure. It is not safe for concurrent use;
// the wallet serializes writers and excludes readers while a writer runs.
package wtxmgr

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shielded"
)

// PoolType identifies a value pool.
type PoolType uint8

const (
	// PoolTransparent is the transparent pool.
	PoolTransparent PoolType = iota

	// PoolSapling is the Sapling shielded pool.
	PoolSapling

	// PoolOrchard is the Orchard shielded pool.
	PoolOrchard
)

// ShieldedPool returns the pool of a shielded protocol.
func ShieldedPool(p shielded.Protocol) PoolType {
	if p == shielded.Orchard {
		return PoolOrchard
	}
	return PoolSapling
}

// Protocol returns the shielded protocol of the pool, if it is shielded.
func (p PoolType) Protocol() (shielded.Protocol, bool) {
	switch p {
	case PoolSapling:
		return shielded.Sapling, true
	case PoolOrchard:
		return shielded.Orchard, true
	default:
		return 0, false
	}
}

// String returns the pool name.
func (p PoolType) String() string {
	switch p {
	case PoolTransparent:
		return "transparent"
	case PoolSapling:
		return "sapling"
	case PoolOrchard:
		return "orchard"
	default:
		return fmt.Sprintf("PoolType(%d)", uint8(p))
	}
}

// TxState is the chain state of a transaction.
type TxState uint8

const (
	// TxUnknown means the transaction id is not recognized by the chain.
	TxUnknown TxState = iota

	// TxNotMined means the transaction is known but not in the main
	// chain.
	TxNotMined

	// TxMined means the transaction is mined at TxStatus.Height.
	TxMined
)

// TxStatus is the chain status of a transaction.
type TxStatus struct {
	State  TxState
	Height uint32
}

// StatusMined returns the status of a transaction mined at height.
func StatusMined(height uint32) TxStatus {
	return TxStatus{State: TxMined, Height: height}
}

// StatusNotMined is the status of a known transaction outside the main
// chain.
var StatusNotMined = TxStatus{State: TxNotMined}

// MinedHeight returns the height the transaction is mined at.
func (s TxStatus) MinedHeight() fn.Option[uint32] {
	if s.State != TxMined {
		return fn.None[uint32]()
	}
	return fn.Some(s.Height)
}

// String returns a human readable form of the status.
func (s TxStatus) String() string {
	switch s.State {
	case TxMined:
		return fmt.Sprintf("mined(%d)", s.Height)
	case TxNotMined:
		return "not mined"
	default:
		return "unknown"
	}
}

// TxEntry is what the store knows about a transaction. Fields fill in as
// more information arrives.
type TxEntry struct {
	Status TxStatus

	// Block is the height of the block the transaction was observed in.
	Block fn.Option[uint32]

	// TxIndex is the index of the transaction within its block.
	TxIndex fn.Option[uint16]

	// Expiry is the expiry height. Zero means the transaction never
	// expires.
	Expiry fn.Option[uint32]

	// Target is the height the wallet built the transaction for. It is
	// only set for transactions this wallet created.
	Target fn.Option[uint32]

	Fee fn.Option[unit.Zatoshi]
	Raw []byte
}

// MinedHeight returns the height the transaction is mined at.
func (e *TxEntry) MinedHeight() fn.Option[uint32] {
	return e.Status.MinedHeight()
}

// unexpiredAt reports whether an unmined transaction may still be mined
// after height h.
func (e *TxEntry) unexpiredAt(h uint32) bool {
	expiry := e.Expiry.UnwrapOr(0)
	return expiry == 0 || expiry > h
}

// IsMinedOrUnexpiredAt reports whether the transaction is mined, or is
// unmined and may still be mined after height h.
func (e *TxEntry) IsMinedOrUnexpiredAt(h uint32) bool {
	if e.Status.State == TxMined {
		return true
	}
	return e.unexpiredAt(h)
}

// Locator identifies a transaction by its position in the chain.
type Locator struct {
	Height  uint32
	TxIndex uint16
}

// String returns a human readable form of the locator.
func (l Locator) String() string {
	return fmt.Sprintf("%d:%d", l.Height, l.TxIndex)
}

type nullifierKey struct {
	protocol  shielded.Protocol
	nullifier shielded.Nullifier
}

// Store is the note ledger.
type Store struct {
	txs      map[chainhash.Hash]*TxEntry
	locators map[Locator]chainhash.Hash
	blocks   map[uint32]*BlockRecord

	notes       map[NoteID]*ReceivedNote
	byNullifier map[nullifierKey]NoteID
	noteSpends  map[NoteID]chainhash.Hash
	nullifiers  map[nullifierKey]Locator

	sent map[SentOutputKey]*SentOutput

	utxos      map[wire.OutPoint]*TransparentOutput
	utxoSpends map[wire.OutPoint]chainhash.Hash

	// spendsSeen records transparent spends observed before the output
	// they spend was known to the wallet.
	spendsSeen map[wire.OutPoint]chainhash.Hash
}

// New returns an empty store.
func New() *Store {
	return &Store{
		txs:         make(map[chainhash.Hash]*TxEntry),
		locators:    make(map[Locator]chainhash.Hash),
		blocks:      make(map[uint32]*BlockRecord),
		notes:       make(map[NoteID]*ReceivedNote),
		byNullifier: make(map[nullifierKey]NoteID),
		noteSpends:  make(map[NoteID]chainhash.Hash),
		nullifiers:  make(map[nullifierKey]Locator),
		sent:        make(map[SentOutputKey]*SentOutput),
		utxos:       make(map[wire.OutPoint]*TransparentOutput),
		utxoSpends:  make(map[wire.OutPoint]chainhash.Hash),
		spendsSeen:  make(map[wire.OutPoint]chainhash.Hash),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func clonePtrMap[K comparable, V any](m map[K]*V) map[K]*V {
	c := make(map[K]*V, len(m))
	for k, v := range m {
		cp := *v
		c[k] = &cp
	}
	return c
}

// Clone returns a copy of the store that shares no mutable state with s.
func (s *Store) Clone() *Store {
	c := &Store{
		txs:         clonePtrMap(s.txs),
		locators:    cloneMap(s.locators),
		blocks:      make(map[uint32]*BlockRecord, len(s.blocks)),
		notes:       clonePtrMap(s.notes),
		byNullifier: cloneMap(s.byNullifier),
		noteSpends:  cloneMap(s.noteSpends),
		nullifiers:  cloneMap(s.nullifiers),
		sent:        clonePtrMap(s.sent),
		utxos:       clonePtrMap(s.utxos),
		utxoSpends:  cloneMap(s.utxoSpends),
		spendsSeen:  cloneMap(s.spendsSeen),
	}
	for h, b := range s.blocks {
		cp := *b
		cp.TxIDs = append([]chainhash.Hash(nil), b.TxIDs...)
		c.blocks[h] = &cp
	}

	return c
}

func (s *Store) entry(txid *chainhash.Hash) *TxEntry {
	e, ok := s.txs[*txid]
	if !ok {
		e = &TxEntry{Status: StatusNotMined}
		s.txs[*txid] = e
	}
	return e
}

// PutTxMeta records that the transaction was mined at height with the given
// index in its block.
func (s *Store) PutTxMeta(txid *chainhash.Hash, height uint32,
	txIndex uint16) {

	e := s.entry(txid)
	e.Status = StatusMined(height)
	e.Block = fn.Some(height)
	e.TxIndex = fn.Some(txIndex)
}

// PutTxPartial records what is known about a transaction from one of its
// transparent outputs. A mined transaction is left unchanged.
func (s *Store) PutTxPartial(txid *chainhash.Hash, block,
	minedHeight fn.Option[uint32]) {

	e := s.entry(txid)
	if e.Status.State == TxMined {
		return
	}

	e.Status = StatusNotMined
	minedHeight.WhenSome(func(h uint32) {
		e.Status = StatusMined(h)
	})
	if block.IsSome() {
		e.Block = block
	}
}

// PutTxData records the full transaction. The expiry of zero means the
// transaction never expires.
func (s *Store) PutTxData(txid *chainhash.Hash, raw []byte, expiry uint32,
	fee fn.Option[unit.Zatoshi], target fn.Option[uint32]) {

	e := s.entry(txid)
	e.Raw = append([]byte(nil), raw...)
	e.Expiry = fn.Some(expiry)
	e.Fee = fee
	if target.IsSome() {
		e.Target = target
	}
}

// SetTxStatus sets the chain status of a known transaction.
func (s *Store) SetTxStatus(txid *chainhash.Hash, status TxStatus) error {
	e, ok := s.txs[*txid]
	if !ok {
		return txNotFound(txid)
	}

	if status.State != TxMined {
		e.Block = fn.None[uint32]()
		e.TxIndex = fn.None[uint16]()
	} else {
		e.Block = fn.Some(status.Height)
	}
	e.Status = status

	log.Debugf("Transaction %v is now %v", txid, status)

	return nil
}

// Tx returns a copy of the transaction entry.
func (s *Store) Tx(txid *chainhash.Hash) (TxEntry, bool) {
	e, ok := s.txs[*txid]
	if !ok {
		return TxEntry{}, false
	}
	return *e, true
}

// TxStatus returns the status of a transaction. Unknown transactions have
// the TxUnknown state.
func (s *Store) TxStatus(txid *chainhash.Hash) TxStatus {
	if e, ok := s.txs[*txid]; ok {
		return e.Status
	}
	return TxStatus{State: TxUnknown}
}

// TxIDs returns the ids of every known transaction in byte order.
func (s *Store) TxIDs() []chainhash.Hash {
	ids := make([]chainhash.Hash, 0, len(s.txs))
	for id := range s.txs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	return ids
}

// InsertTxLocator maps a chain position to a transaction id. Re-inserting
// the same mapping is a no-op.
func (s *Store) InsertTxLocator(loc Locator, txid *chainhash.Hash) error {
	if existing, ok := s.locators[loc]; ok {
		if existing == *txid {
			return nil
		}
		return txStoreError(ErrConflictingTxLocator, fmt.Sprintf(
			"transaction %v already recorded at %v, not %v",
			existing, loc, txid), nil)
	}
	s.locators[loc] = *txid

	return nil
}

// TxIDAt returns the transaction id recorded at a chain position.
func (s *Store) TxIDAt(loc Locator) fn.Option[chainhash.Hash] {
	if txid, ok := s.locators[loc]; ok {
		return fn.Some(txid)
	}
	return fn.None[chainhash.Hash]()
}

// SummaryHeight is the height at which unmined spends are checked for
// expiry, given the chain tip and a confirmation depth.
func SummaryHeight(tip uint32, minConf uint32) uint32 {
	d := max(minConf, 1)
	if tip+1 < d {
		return 0
	}
	return tip + 1 - d
}
