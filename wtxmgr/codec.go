// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shielded"
)

// storeVersion is the version of the serialized store. Each table is a
// varint count of entries, and each entry is a varint length followed by a
// TLV stream.
const storeVersion = 1

// Transaction table record types.
const (
	typeTxID      tlv.Type = 0
	typeTxState   tlv.Type = 1
	typeTxHeight  tlv.Type = 2
	typeTxBlock   tlv.Type = 3
	typeTxIndex   tlv.Type = 4
	typeTxExpiry  tlv.Type = 5
	typeTxTarget  tlv.Type = 6
	typeTxFee     tlv.Type = 7
	typeTxRawData tlv.Type = 8
)

// Locator table record types.
const (
	typeLocHeight  tlv.Type = 0
	typeLocTxIndex tlv.Type = 1
	typeLocTxID    tlv.Type = 2
)

// Block table record types.
const (
	typeBlockHeight       tlv.Type = 0
	typeBlockHash         tlv.Type = 1
	typeBlockTime         tlv.Type = 2
	typeBlockSaplingSize  tlv.Type = 3
	typeBlockOrchardSize  tlv.Type = 4
	typeBlockSaplingCount tlv.Type = 5
	typeBlockOrchardCount tlv.Type = 6
	typeBlockTxIDs        tlv.Type = 7
)

// Received note table record types.
const (
	typeNoteTxID      tlv.Type = 0
	typeNoteProtocol  tlv.Type = 1
	typeNoteIndex     tlv.Type = 2
	typeNoteAccount   tlv.Type = 3
	typeNoteRecipient tlv.Type = 4
	typeNoteValue     tlv.Type = 5
	typeNoteRseed     tlv.Type = 6
	typeNoteRho       tlv.Type = 7
	typeNoteNullifier tlv.Type = 8
	typeNotePosition  tlv.Type = 9
	typeNoteScope     tlv.Type = 10
	typeNoteMemo      tlv.Type = 11
	typeNoteIsChange  tlv.Type = 12
)

// Note spend table record types. The first three identify the note.
const (
	typeSpendTxID     tlv.Type = 0
	typeSpendProtocol tlv.Type = 1
	typeSpendIndex    tlv.Type = 2
	typeSpendBy       tlv.Type = 3
)

// Nullifier observation table record types.
const (
	typeNfProtocol tlv.Type = 0
	typeNfValue    tlv.Type = 1
	typeNfHeight   tlv.Type = 2
	typeNfTxIndex  tlv.Type = 3
)

// Sent output table record types.
const (
	typeSentTxID      tlv.Type = 0
	typeSentPool      tlv.Type = 1
	typeSentIndex     tlv.Type = 2
	typeSentFrom      tlv.Type = 3
	typeSentRecipient tlv.Type = 4
	typeSentTo        tlv.Type = 5
	typeSentEphemeral tlv.Type = 6
	typeSentValue     tlv.Type = 7
	typeSentMemo      tlv.Type = 8
)

// Transparent output table record types.
const (
	typeUTXOHash     tlv.Type = 0
	typeUTXOIndex    tlv.Type = 1
	typeUTXOAccount  tlv.Type = 2
	typeUTXOAddress  tlv.Type = 3
	typeUTXOValue    tlv.Type = 4
	typeUTXOPkScript tlv.Type = 5
	typeUTXOMaxSeen  tlv.Type = 6
)

// Transparent spend table record types.
const (
	typeOutSpendHash  tlv.Type = 0
	typeOutSpendIndex tlv.Type = 1
	typeOutSpendBy    tlv.Type = 2
)

// writeStream encodes records as a TLV stream prefixed by its length.
func writeStream(w io.Writer, records ...tlv.Record) error {
	stream, err := tlv.NewStream(records...)
	if err != nil {
		return err
	}

	var b bytes.Buffer
	if err := stream.Encode(&b); err != nil {
		return err
	}

	var buf [8]byte
	if err := tlv.WriteVarInt(w, uint64(b.Len()), &buf); err != nil {
		return err
	}
	_, err = w.Write(b.Bytes())

	return err
}

// readStream decodes a length prefixed TLV stream written by writeStream
// into records and returns the types that were present.
func readStream(r io.Reader, records ...tlv.Record) (tlv.TypeMap, error) {
	var buf [8]byte
	l, err := tlv.ReadVarInt(r, &buf)
	if err != nil {
		return nil, err
	}

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}

	// The limited reader returns EOF once the record is consumed so the
	// stream stops at its end.
	lr := &io.LimitedReader{R: r, N: int64(l)}
	parsed, err := stream.DecodeWithParsedTypes(lr)
	if err != nil {
		return nil, err
	}
	if lr.N != 0 {
		return nil, io.ErrUnexpectedEOF
	}

	return parsed, nil
}

func isParsed(m tlv.TypeMap, typ tlv.Type) bool {
	v, ok := m[typ]
	return ok && v == nil
}

// parsedOpt returns v when the record typ was decoded.
func parsedOpt[T any](m tlv.TypeMap, typ tlv.Type, v T) fn.Option[T] {
	if isParsed(m, typ) {
		return fn.Some(v)
	}
	return fn.None[T]()
}

// appendOpt appends a record for the value of o when it is set. T must be
// one of the primitive record types.
func appendOpt[T any](records []tlv.Record, typ tlv.Type,
	o fn.Option[T]) []tlv.Record {

	o.WhenSome(func(v T) {
		records = append(records, tlv.MakePrimitiveRecord(typ, &v))
	})
	return records
}

// appendBytes appends a variable length record when b is not empty.
func appendBytes(records []tlv.Record, typ tlv.Type, b []byte) []tlv.Record {
	if len(b) == 0 {
		return records
	}
	return append(records, tlv.MakePrimitiveRecord(typ, &b))
}

func writeCount(w io.Writer, n int) error {
	var buf [8]byte
	return tlv.WriteVarInt(w, uint64(n), &buf)
}

func readCount(r io.Reader) (uint64, error) {
	var buf [8]byte
	return tlv.ReadVarInt(r, &buf)
}

func corrupted(what string, err error) TxStoreError {
	return txStoreError(ErrCorruptedData,
		fmt.Sprintf("failed to decode %s", what), err)
}

func hashLess(a, b chainhash.Hash) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func sortedKeys[K comparable, V any](m map[K]V, less func(a, b K) bool) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return less(keys[i], keys[j])
	})
	return keys
}

// writeTable writes the entries of m in key order.
func writeTable[K comparable, V any](w io.Writer, m map[K]V,
	less func(a, b K) bool, write func(io.Writer, K, V) error) error {

	if err := writeCount(w, len(m)); err != nil {
		return err
	}
	for _, k := range sortedKeys(m, less) {
		if err := write(w, k, m[k]); err != nil {
			return err
		}
	}

	return nil
}

// readTable reads a table written by writeTable, calling read once per
// entry.
func readTable(r io.Reader, name string, read func(io.Reader) error) error {
	n, err := readCount(r)
	if err != nil {
		return corrupted(name+" count", err)
	}
	for i := uint64(0); i < n; i++ {
		if err := read(r); err != nil {
			if IsError(err, ErrCorruptedData) {
				return err
			}
			return corrupted(name, err)
		}
	}

	return nil
}

// Serialize writes every table of the store to w.
func (s *Store) Serialize(w io.Writer) error {
	if _, err := w.Write([]byte{storeVersion}); err != nil {
		return err
	}

	if err := writeTable(w, s.txs, hashLess, writeTx); err != nil {
		return err
	}
	err := writeTable(w, s.locators, func(a, b Locator) bool {
		if a.Height != b.Height {
			return a.Height < b.Height
		}
		return a.TxIndex < b.TxIndex
	}, writeLocator)
	if err != nil {
		return err
	}
	err = writeTable(w, s.blocks, func(a, b uint32) bool {
		return a < b
	}, writeBlock)
	if err != nil {
		return err
	}
	err = writeTable(w, s.notes, NoteID.Less, writeNote)
	if err != nil {
		return err
	}
	err = writeTable(w, s.noteSpends, NoteID.Less, writeNoteSpend)
	if err != nil {
		return err
	}
	err = writeTable(w, s.nullifiers, func(a, b nullifierKey) bool {
		if a.protocol != b.protocol {
			return a.protocol < b.protocol
		}
		return bytes.Compare(a.nullifier[:], b.nullifier[:]) < 0
	}, writeNullifier)
	if err != nil {
		return err
	}
	err = writeTable(w, s.sent, SentOutputKey.less, writeSent)
	if err != nil {
		return err
	}

	opLess := func(a, b wire.OutPoint) bool {
		return outPointLess(&a, &b)
	}
	if err := writeTable(w, s.utxos, opLess, writeUTXO); err != nil {
		return err
	}
	if err := writeTable(w, s.utxoSpends, opLess, writeOutSpend); err != nil {
		return err
	}

	return writeTable(w, s.spendsSeen, opLess, writeOutSpend)
}

// Deserialize reads a store written by Serialize.
func Deserialize(r io.Reader) (*Store, error) {
	var version [1]byte
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return nil, corrupted("version", err)
	}
	if version[0] != storeVersion {
		return nil, txStoreError(ErrCorruptedData, fmt.Sprintf(
			"unknown store version %d", version[0]), nil)
	}

	s := New()
	tables := []struct {
		name string
		read func(io.Reader) error
	}{
		{"transaction", s.readTx},
		{"locator", s.readLocator},
		{"block", s.readBlock},
		{"note", s.readNote},
		{"note spend", s.readNoteSpend},
		{"nullifier", s.readNullifier},
		{"sent output", s.readSent},
		{"transparent output", s.readUTXO},
		{"transparent spend", func(r io.Reader) error {
			return readOutSpend(r, s.utxoSpends)
		}},
		{"early transparent spend", func(r io.Reader) error {
			return readOutSpend(r, s.spendsSeen)
		}},
	}
	for _, t := range tables {
		if err := readTable(r, t.name, t.read); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func writeTx(w io.Writer, txid chainhash.Hash, e *TxEntry) error {
	var (
		id     = [32]byte(txid)
		state  = uint8(e.Status.State)
		height = e.Status.Height
	)
	records := []tlv.Record{
		tlv.MakePrimitiveRecord(typeTxID, &id),
		tlv.MakePrimitiveRecord(typeTxState, &state),
		tlv.MakePrimitiveRecord(typeTxHeight, &height),
	}
	records = appendOpt(records, typeTxBlock, e.Block)
	records = appendOpt(records, typeTxIndex, e.TxIndex)
	records = appendOpt(records, typeTxExpiry, e.Expiry)
	records = appendOpt(records, typeTxTarget, e.Target)
	records = appendOpt(records, typeTxFee,
		fn.MapOption(func(z unit.Zatoshi) uint64 {
			return uint64(z)
		})(e.Fee),
	)
	records = appendBytes(records, typeTxRawData, e.Raw)

	return writeStream(w, records...)
}

func (s *Store) readTx(r io.Reader) error {
	var (
		id                            [32]byte
		state                         uint8
		height, block, expiry, target uint32
		txIndex                       uint16
		fee                           uint64
		raw                           []byte
	)
	parsed, err := readStream(r,
		tlv.MakePrimitiveRecord(typeTxID, &id),
		tlv.MakePrimitiveRecord(typeTxState, &state),
		tlv.MakePrimitiveRecord(typeTxHeight, &height),
		tlv.MakePrimitiveRecord(typeTxBlock, &block),
		tlv.MakePrimitiveRecord(typeTxIndex, &txIndex),
		tlv.MakePrimitiveRecord(typeTxExpiry, &expiry),
		tlv.MakePrimitiveRecord(typeTxTarget, &target),
		tlv.MakePrimitiveRecord(typeTxFee, &fee),
		tlv.MakePrimitiveRecord(typeTxRawData, &raw),
	)
	if err != nil {
		return err
	}
	if TxState(state) > TxMined {
		return txStoreError(ErrCorruptedData, fmt.Sprintf(
			"transaction %x has state %d", id, state), nil)
	}

	e := &TxEntry{
		Status:  TxStatus{State: TxState(state), Height: height},
		Block:   parsedOpt(parsed, typeTxBlock, block),
		TxIndex: parsedOpt(parsed, typeTxIndex, txIndex),
		Expiry:  parsedOpt(parsed, typeTxExpiry, expiry),
		Target:  parsedOpt(parsed, typeTxTarget, target),
		Fee: fn.MapOption(func(v uint64) unit.Zatoshi {
			return unit.Zatoshi(v)
		})(parsedOpt(parsed, typeTxFee, fee)),
	}
	if isParsed(parsed, typeTxRawData) {
		e.Raw = raw
	}
	s.txs[chainhash.Hash(id)] = e

	return nil
}

func writeLocator(w io.Writer, loc Locator, txid chainhash.Hash) error {
	id := [32]byte(txid)
	return writeStream(w,
		tlv.MakePrimitiveRecord(typeLocHeight, &loc.Height),
		tlv.MakePrimitiveRecord(typeLocTxIndex, &loc.TxIndex),
		tlv.MakePrimitiveRecord(typeLocTxID, &id),
	)
}

func (s *Store) readLocator(r io.Reader) error {
	var (
		loc Locator
		id  [32]byte
	)
	_, err := readStream(r,
		tlv.MakePrimitiveRecord(typeLocHeight, &loc.Height),
		tlv.MakePrimitiveRecord(typeLocTxIndex, &loc.TxIndex),
		tlv.MakePrimitiveRecord(typeLocTxID, &id),
	)
	if err != nil {
		return err
	}
	s.locators[loc] = chainhash.Hash(id)

	return nil
}

func writeBlock(w io.Writer, _ uint32, b *BlockRecord) error {
	hash := [32]byte(b.Hash)
	txids := make([]byte, 0, len(b.TxIDs)*chainhash.HashSize)
	for _, id := range b.TxIDs {
		txids = append(txids, id[:]...)
	}

	records := []tlv.Record{
		tlv.MakePrimitiveRecord(typeBlockHeight, &b.Height),
		tlv.MakePrimitiveRecord(typeBlockHash, &hash),
		tlv.MakePrimitiveRecord(typeBlockTime, &b.Time),
		tlv.MakePrimitiveRecord(typeBlockSaplingSize, &b.SaplingTreeSize),
		tlv.MakePrimitiveRecord(typeBlockOrchardSize, &b.OrchardTreeSize),
		tlv.MakePrimitiveRecord(
			typeBlockSaplingCount, &b.SaplingOutputCount,
		),
		tlv.MakePrimitiveRecord(
			typeBlockOrchardCount, &b.OrchardActionCount,
		),
	}
	records = appendBytes(records, typeBlockTxIDs, txids)

	return writeStream(w, records...)
}

func (s *Store) readBlock(r io.Reader) error {
	var (
		b     BlockRecord
		hash  [32]byte
		txids []byte
	)
	_, err := readStream(r,
		tlv.MakePrimitiveRecord(typeBlockHeight, &b.Height),
		tlv.MakePrimitiveRecord(typeBlockHash, &hash),
		tlv.MakePrimitiveRecord(typeBlockTime, &b.Time),
		tlv.MakePrimitiveRecord(typeBlockSaplingSize, &b.SaplingTreeSize),
		tlv.MakePrimitiveRecord(typeBlockOrchardSize, &b.OrchardTreeSize),
		tlv.MakePrimitiveRecord(
			typeBlockSaplingCount, &b.SaplingOutputCount,
		),
		tlv.MakePrimitiveRecord(
			typeBlockOrchardCount, &b.OrchardActionCount,
		),
		tlv.MakePrimitiveRecord(typeBlockTxIDs, &txids),
	)
	if err != nil {
		return err
	}
	if len(txids)%chainhash.HashSize != 0 {
		return txStoreError(ErrCorruptedData, fmt.Sprintf(
			"block %d lists %d bytes of transaction ids", b.Height,
			len(txids)), nil)
	}

	b.Hash = chainhash.Hash(hash)
	for i := 0; i < len(txids); i += chainhash.HashSize {
		b.TxIDs = append(b.TxIDs, chainhash.Hash(
			txids[i:i+chainhash.HashSize],
		))
	}
	s.blocks[b.Height] = &b

	return nil
}

func writeNote(w io.Writer, id NoteID, n *ReceivedNote) error {
	var (
		txid      = [32]byte(id.TxID)
		protocol  = uint8(id.Protocol)
		recipient = n.Note.Recipient.Bytes()
		value     = uint64(n.Note.Value)
		isChange  uint8
	)
	if n.IsChange {
		isChange = 1
	}

	records := []tlv.Record{
		tlv.MakePrimitiveRecord(typeNoteTxID, &txid),
		tlv.MakePrimitiveRecord(typeNoteProtocol, &protocol),
		tlv.MakePrimitiveRecord(typeNoteIndex, &id.Index),
		tlv.MakePrimitiveRecord(typeNoteAccount, &n.Account),
		tlv.MakePrimitiveRecord(typeNoteRecipient, &recipient),
		tlv.MakePrimitiveRecord(typeNoteValue, &value),
		tlv.MakePrimitiveRecord(typeNoteRseed, &n.Note.Rseed),
		tlv.MakePrimitiveRecord(typeNoteRho, &n.Note.Rho),
	}
	records = appendOpt(records, typeNoteNullifier,
		fn.MapOption(func(nf shielded.Nullifier) [32]byte {
			return [32]byte(nf)
		})(n.Nullifier),
	)
	records = appendOpt(records, typeNotePosition, n.Position)
	records = appendOpt(records, typeNoteScope,
		fn.MapOption(func(s shielded.Scope) uint8 {
			return uint8(s)
		})(n.Scope),
	)
	records = appendOpt(records, typeNoteMemo,
		fn.MapOption(func(m shielded.Memo) []byte {
			return m[:]
		})(n.Memo),
	)
	records = append(records,
		tlv.MakePrimitiveRecord(typeNoteIsChange, &isChange),
	)

	return writeStream(w, records...)
}

func (s *Store) readNote(r io.Reader) error {
	var (
		txid, rseed, rho, nf [32]byte
		protocol, scope      uint8
		isChange             uint8
		index                uint16
		account              uint32
		recipient, memo      []byte
		value, position      uint64
	)
	parsed, err := readStream(r,
		tlv.MakePrimitiveRecord(typeNoteTxID, &txid),
		tlv.MakePrimitiveRecord(typeNoteProtocol, &protocol),
		tlv.MakePrimitiveRecord(typeNoteIndex, &index),
		tlv.MakePrimitiveRecord(typeNoteAccount, &account),
		tlv.MakePrimitiveRecord(typeNoteRecipient, &recipient),
		tlv.MakePrimitiveRecord(typeNoteValue, &value),
		tlv.MakePrimitiveRecord(typeNoteRseed, &rseed),
		tlv.MakePrimitiveRecord(typeNoteRho, &rho),
		tlv.MakePrimitiveRecord(typeNoteNullifier, &nf),
		tlv.MakePrimitiveRecord(typeNotePosition, &position),
		tlv.MakePrimitiveRecord(typeNoteScope, &scope),
		tlv.MakePrimitiveRecord(typeNoteMemo, &memo),
		tlv.MakePrimitiveRecord(typeNoteIsChange, &isChange),
	)
	if err != nil {
		return err
	}

	p := shielded.Protocol(protocol)
	addr, err := shielded.ParsePaymentAddress(p, recipient)
	if err != nil {
		return corrupted("note recipient", err)
	}

	n := &ReceivedNote{
		ID: NoteID{
			TxID:     chainhash.Hash(txid),
			Protocol: p,
			Index:    index,
		},
		Account: account,
		Note: shielded.Note{
			Protocol:  p,
			Recipient: *addr,
			Value:     unit.Zatoshi(value),
			Rseed:     rseed,
			Rho:       rho,
		},
		Nullifier: fn.MapOption(func(b [32]byte) shielded.Nullifier {
			return shielded.Nullifier(b)
		})(parsedOpt(parsed, typeNoteNullifier, nf)),
		Position: parsedOpt(parsed, typeNotePosition, position),
		Scope: fn.MapOption(func(v uint8) shielded.Scope {
			return shielded.Scope(v)
		})(parsedOpt(parsed, typeNoteScope, scope)),
		IsChange: isChange != 0,
	}
	if isParsed(parsed, typeNoteMemo) {
		if len(memo) != shielded.MemoSize {
			return txStoreError(ErrCorruptedData, fmt.Sprintf(
				"note %v memo of %d bytes", n.ID, len(memo)), nil)
		}
		n.Memo = fn.Some(shielded.Memo(memo))
	}

	return s.InsertReceivedNote(n)
}

func writeNoteSpend(w io.Writer, id NoteID, txid chainhash.Hash) error {
	var (
		noteTx   = [32]byte(id.TxID)
		protocol = uint8(id.Protocol)
		spender  = [32]byte(txid)
	)
	return writeStream(w,
		tlv.MakePrimitiveRecord(typeSpendTxID, &noteTx),
		tlv.MakePrimitiveRecord(typeSpendProtocol, &protocol),
		tlv.MakePrimitiveRecord(typeSpendIndex, &id.Index),
		tlv.MakePrimitiveRecord(typeSpendBy, &spender),
	)
}

func (s *Store) readNoteSpend(r io.Reader) error {
	var (
		noteTx, spender [32]byte
		protocol        uint8
		index           uint16
	)
	_, err := readStream(r,
		tlv.MakePrimitiveRecord(typeSpendTxID, &noteTx),
		tlv.MakePrimitiveRecord(typeSpendProtocol, &protocol),
		tlv.MakePrimitiveRecord(typeSpendIndex, &index),
		tlv.MakePrimitiveRecord(typeSpendBy, &spender),
	)
	if err != nil {
		return err
	}

	id := NoteID{
		TxID:     chainhash.Hash(noteTx),
		Protocol: shielded.Protocol(protocol),
		Index:    index,
	}
	txid := chainhash.Hash(spender)

	return s.MarkSpent(id, &txid)
}

func writeNullifier(w io.Writer, k nullifierKey, loc Locator) error {
	var (
		protocol = uint8(k.protocol)
		nf       = [32]byte(k.nullifier)
	)
	return writeStream(w,
		tlv.MakePrimitiveRecord(typeNfProtocol, &protocol),
		tlv.MakePrimitiveRecord(typeNfValue, &nf),
		tlv.MakePrimitiveRecord(typeNfHeight, &loc.Height),
		tlv.MakePrimitiveRecord(typeNfTxIndex, &loc.TxIndex),
	)
}

func (s *Store) readNullifier(r io.Reader) error {
	var (
		protocol uint8
		nf       [32]byte
		loc      Locator
	)
	_, err := readStream(r,
		tlv.MakePrimitiveRecord(typeNfProtocol, &protocol),
		tlv.MakePrimitiveRecord(typeNfValue, &nf),
		tlv.MakePrimitiveRecord(typeNfHeight, &loc.Height),
		tlv.MakePrimitiveRecord(typeNfTxIndex, &loc.TxIndex),
	)
	if err != nil {
		return err
	}
	s.RecordNullifier(
		shielded.Protocol(protocol), shielded.Nullifier(nf), loc,
	)

	return nil
}

func writeSent(w io.Writer, k SentOutputKey, o *SentOutput) error {
	var (
		txid  = [32]byte(k.TxID)
		pool  = uint8(k.Pool)
		value = uint64(o.Value)
	)
	records := []tlv.Record{
		tlv.MakePrimitiveRecord(typeSentTxID, &txid),
		tlv.MakePrimitiveRecord(typeSentPool, &pool),
		tlv.MakePrimitiveRecord(typeSentIndex, &k.Index),
		tlv.MakePrimitiveRecord(typeSentFrom, &o.FromAccount),
	}
	records = appendBytes(records, typeSentRecipient, []byte(o.Recipient))
	records = appendOpt(records, typeSentTo, o.ToAccount)
	records = appendOpt(records, typeSentEphemeral, o.EphemeralIndex)
	records = append(records,
		tlv.MakePrimitiveRecord(typeSentValue, &value),
	)
	records = appendOpt(records, typeSentMemo,
		fn.MapOption(func(m shielded.Memo) []byte {
			return m[:]
		})(o.Memo),
	)

	return writeStream(w, records...)
}

func (s *Store) readSent(r io.Reader) error {
	var (
		txid          [32]byte
		pool          uint8
		index         uint16
		from, to, eph uint32
		recipient     []byte
		value         uint64
		memo          []byte
	)
	parsed, err := readStream(r,
		tlv.MakePrimitiveRecord(typeSentTxID, &txid),
		tlv.MakePrimitiveRecord(typeSentPool, &pool),
		tlv.MakePrimitiveRecord(typeSentIndex, &index),
		tlv.MakePrimitiveRecord(typeSentFrom, &from),
		tlv.MakePrimitiveRecord(typeSentRecipient, &recipient),
		tlv.MakePrimitiveRecord(typeSentTo, &to),
		tlv.MakePrimitiveRecord(typeSentEphemeral, &eph),
		tlv.MakePrimitiveRecord(typeSentValue, &value),
		tlv.MakePrimitiveRecord(typeSentMemo, &memo),
	)
	if err != nil {
		return err
	}
	if PoolType(pool) > PoolOrchard {
		return txStoreError(ErrCorruptedData,
			fmt.Sprintf("sent output pool %d", pool), nil)
	}

	o := &SentOutput{
		Key: SentOutputKey{
			TxID:  chainhash.Hash(txid),
			Pool:  PoolType(pool),
			Index: index,
		},
		FromAccount:    from,
		Recipient:      string(recipient),
		ToAccount:      parsedOpt(parsed, typeSentTo, to),
		EphemeralIndex: parsedOpt(parsed, typeSentEphemeral, eph),
		Value:          unit.Zatoshi(value),
	}
	if isParsed(parsed, typeSentMemo) {
		if len(memo) != shielded.MemoSize {
			return txStoreError(ErrCorruptedData, fmt.Sprintf(
				"sent output %v memo of %d bytes", o.Key,
				len(memo)), nil)
		}
		o.Memo = fn.Some(shielded.Memo(memo))
	}
	s.sent[o.Key] = o

	return nil
}

func writeUTXO(w io.Writer, op wire.OutPoint, o *TransparentOutput) error {
	var (
		hash  = [32]byte(op.Hash)
		value = uint64(o.TxOut.Value)
	)
	records := []tlv.Record{
		tlv.MakePrimitiveRecord(typeUTXOHash, &hash),
		tlv.MakePrimitiveRecord(typeUTXOIndex, &op.Index),
		tlv.MakePrimitiveRecord(typeUTXOAccount, &o.Account),
	}
	records = appendBytes(records, typeUTXOAddress, []byte(o.Address))
	records = append(records,
		tlv.MakePrimitiveRecord(typeUTXOValue, &value),
	)
	records = appendBytes(records, typeUTXOPkScript, o.TxOut.PkScript)
	records = append(records,
		tlv.MakePrimitiveRecord(typeUTXOMaxSeen, &o.MaxObservedUnspent),
	)

	return writeStream(w, records...)
}

func (s *Store) readUTXO(r io.Reader) error {
	var (
		hash              [32]byte
		index, account    uint32
		address, pkScript []byte
		value             uint64
		maxSeen           uint32
	)
	parsed, err := readStream(r,
		tlv.MakePrimitiveRecord(typeUTXOHash, &hash),
		tlv.MakePrimitiveRecord(typeUTXOIndex, &index),
		tlv.MakePrimitiveRecord(typeUTXOAccount, &account),
		tlv.MakePrimitiveRecord(typeUTXOAddress, &address),
		tlv.MakePrimitiveRecord(typeUTXOValue, &value),
		tlv.MakePrimitiveRecord(typeUTXOPkScript, &pkScript),
		tlv.MakePrimitiveRecord(typeUTXOMaxSeen, &maxSeen),
	)
	if err != nil {
		return err
	}

	o := &TransparentOutput{
		OutPoint: wire.OutPoint{
			Hash:  chainhash.Hash(hash),
			Index: index,
		},
		Account:            account,
		Address:            string(address),
		TxOut:              wire.TxOut{Value: int64(value)},
		MaxObservedUnspent: maxSeen,
	}
	if isParsed(parsed, typeUTXOPkScript) {
		o.TxOut.PkScript = pkScript
	}
	s.utxos[o.OutPoint] = o

	return nil
}

func writeOutSpend(w io.Writer, op wire.OutPoint, txid chainhash.Hash) error {
	var (
		hash    = [32]byte(op.Hash)
		spender = [32]byte(txid)
	)
	return writeStream(w,
		tlv.MakePrimitiveRecord(typeOutSpendHash, &hash),
		tlv.MakePrimitiveRecord(typeOutSpendIndex, &op.Index),
		tlv.MakePrimitiveRecord(typeOutSpendBy, &spender),
	)
}

func readOutSpend(r io.Reader, m map[wire.OutPoint]chainhash.Hash) error {
	var (
		hash, spender [32]byte
		index         uint32
	)
	_, err := readStream(r,
		tlv.MakePrimitiveRecord(typeOutSpendHash, &hash),
		tlv.MakePrimitiveRecord(typeOutSpendIndex, &index),
		tlv.MakePrimitiveRecord(typeOutSpendBy, &spender),
	)
	if err != nil {
		return err
	}
	op := wire.OutPoint{Hash: chainhash.Hash(hash), Index: index}
	m[op] = chainhash.Hash(spender)

	return nil
}
