// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/zecsuite/zecwallet/netparams"
	"github.com/zecsuite/zecwallet/shielded"
)

// managerVersion is the version of the serialized manager.
const managerVersion = 1

const typeNextID tlv.Type = 0

// Account record types.
const (
	typeAcctID           tlv.Type = 0
	typeAcctKind         tlv.Type = 1
	typeAcctFingerprint  tlv.Type = 2
	typeAcctHDIndex      tlv.Type = 3
	typeAcctPurpose      tlv.Type = 4
	typeAcctUFVK         tlv.Type = 5
	typeAcctBirthday     tlv.Type = 6
	typeAcctRecoverUntil tlv.Type = 7
	typeAcctCursor       tlv.Type = 8
	typeAcctExhausted    tlv.Type = 9
)

// Address record types.
const (
	typeAddrIndex   tlv.Type = 0
	typeAddrEncoded tlv.Type = 1
)

// Ephemeral address record types.
const (
	typeEphIndex  tlv.Type = 0
	typeEphSeenIn tlv.Type = 1
	typeEphMined  tlv.Type = 2
)

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

func writeCount(w io.Writer, n int) error {
	var buf [8]byte
	return tlv.WriteVarInt(w, uint64(n), &buf)
}

func readCount(r io.Reader) (uint64, error) {
	var buf [8]byte
	return tlv.ReadVarInt(r, &buf)
}

func corrupted(what string, err error) ManagerError {
	return managerError(ErrCorruptedData,
		fmt.Sprintf("failed to decode %s", what), err)
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Serialize writes every account with its addresses to w.
func (m *Manager) Serialize(w io.Writer) error {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	if _, err := w.Write([]byte{managerVersion}); err != nil {
		return err
	}
	nextID := m.nextID
	err := writeStream(w, tlv.MakePrimitiveRecord(typeNextID, &nextID))
	if err != nil {
		return err
	}

	ids := make([]uint32, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if err := writeCount(w, len(ids)); err != nil {
		return err
	}
	for _, id := range ids {
		if err := m.writeAccount(w, m.accounts[id]); err != nil {
			return err
		}
	}

	return nil
}

func (m *Manager) writeAccount(w io.Writer, a *account) error {
	ufvk, err := a.UFVK.Encode(m.params)
	if err != nil {
		return err
	}

	var (
		id          = a.ID
		kind        = uint8(a.Origin.Kind)
		fp          = [32]byte(a.Origin.SeedFingerprint)
		hdIndex     = a.Origin.HDIndex
		purpose     = uint8(a.Origin.Purpose)
		ufvkBytes   = []byte(ufvk)
		birthday    = a.Birthday.Height
		cursor      = a.cursor[:]
		exhausted   = boolByte(a.exhausted)
		recordsAcct = []tlv.Record{
			tlv.MakePrimitiveRecord(typeAcctID, &id),
			tlv.MakePrimitiveRecord(typeAcctKind, &kind),
			tlv.MakePrimitiveRecord(typeAcctFingerprint, &fp),
			tlv.MakePrimitiveRecord(typeAcctHDIndex, &hdIndex),
			tlv.MakePrimitiveRecord(typeAcctPurpose, &purpose),
			tlv.MakePrimitiveRecord(typeAcctUFVK, &ufvkBytes),
			tlv.MakePrimitiveRecord(typeAcctBirthday, &birthday),
		}
	)
	a.Birthday.RecoverUntil.WhenSome(func(h uint32) {
		recordsAcct = append(recordsAcct,
			tlv.MakePrimitiveRecord(typeAcctRecoverUntil, &h))
	})
	recordsAcct = append(recordsAcct,
		tlv.MakePrimitiveRecord(typeAcctCursor, &cursor),
		tlv.MakePrimitiveRecord(typeAcctExhausted, &exhausted),
	)
	if err := writeStream(w, recordsAcct...); err != nil {
		return err
	}

	if err := writeCount(w, len(a.addresses)); err != nil {
		return err
	}
	for _, rec := range a.addresses {
		idx := rec.Index[:]
		encoded := []byte(rec.Encoded)
		err := writeStream(w,
			tlv.MakePrimitiveRecord(typeAddrIndex, &idx),
			tlv.MakePrimitiveRecord(typeAddrEncoded, &encoded),
		)
		if err != nil {
			return err
		}
	}

	if err := writeCount(w, len(a.ephemeral)); err != nil {
		return err
	}
	for _, e := range a.ephemeral {
		idx := e.Index
		records := []tlv.Record{
			tlv.MakePrimitiveRecord(typeEphIndex, &idx),
		}
		e.SeenIn.WhenSome(func(h chainhash.Hash) {
			b := [32]byte(h)
			records = append(records,
				tlv.MakePrimitiveRecord(typeEphSeenIn, &b))
		})
		e.MinedHeight.WhenSome(func(h uint32) {
			records = append(records,
				tlv.MakePrimitiveRecord(typeEphMined, &h))
		})
		if err := writeStream(w, records...); err != nil {
			return err
		}
	}

	return nil
}

// Deserialize reads a manager written by Serialize.
func Deserialize(params *netparams.Params, r io.Reader) (*Manager, error) {
	var version [1]byte
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return nil, corrupted("version", err)
	}
	if version[0] != managerVersion {
		str := fmt.Sprintf("unknown manager version %d", version[0])
		return nil, managerError(ErrCorruptedData, str, nil)
	}

	m := New(params)
	_, err := readStream(r, tlv.MakePrimitiveRecord(typeNextID, &m.nextID))
	if err != nil {
		return nil, corrupted("header", err)
	}

	n, err := readCount(r)
	if err != nil {
		return nil, corrupted("account count", err)
	}
	for i := uint64(0); i < n; i++ {
		if err := m.readAccount(r); err != nil {
			if IsError(err, ErrCorruptedData) {
				return nil, err
			}
			return nil, corrupted("account", err)
		}
	}

	return m, nil
}

func (m *Manager) readAccount(r io.Reader) error {
	var (
		a                        = &account{}
		kind, purpose, exhausted uint8
		fp                       [32]byte
		ufvk, cursor             []byte
		recoverUntil             uint32
	)
	parsed, err := readStream(r,
		tlv.MakePrimitiveRecord(typeAcctID, &a.ID),
		tlv.MakePrimitiveRecord(typeAcctKind, &kind),
		tlv.MakePrimitiveRecord(typeAcctFingerprint, &fp),
		tlv.MakePrimitiveRecord(typeAcctHDIndex, &a.Origin.HDIndex),
		tlv.MakePrimitiveRecord(typeAcctPurpose, &purpose),
		tlv.MakePrimitiveRecord(typeAcctUFVK, &ufvk),
		tlv.MakePrimitiveRecord(typeAcctBirthday, &a.Birthday.Height),
		tlv.MakePrimitiveRecord(typeAcctRecoverUntil, &recoverUntil),
		tlv.MakePrimitiveRecord(typeAcctCursor, &cursor),
		tlv.MakePrimitiveRecord(typeAcctExhausted, &exhausted),
	)
	if err != nil {
		return err
	}
	if len(cursor) != shielded.DiversifierSize {
		return corrupted("diversifier cursor", nil)
	}

	a.Origin.Kind = AccountKind(kind)
	a.Origin.Purpose = AccountPurpose(purpose)
	a.Origin.SeedFingerprint = SeedFingerprint(fp)
	if isParsed(parsed, typeAcctRecoverUntil) {
		a.Birthday.RecoverUntil = fn.Some(recoverUntil)
	}
	copy(a.cursor[:], cursor)
	a.exhausted = exhausted != 0

	a.UFVK, err = ParseUnifiedFullViewingKey(m.params, string(ufvk))
	if err != nil {
		return corrupted("viewing key", err)
	}
	if _, ok := m.accounts[a.ID]; ok {
		str := fmt.Sprintf("duplicate account %d", a.ID)
		return managerError(ErrCorruptedData, str, nil)
	}
	m.accounts[a.ID] = a

	n, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		var idx, encoded []byte
		_, err := readStream(r,
			tlv.MakePrimitiveRecord(typeAddrIndex, &idx),
			tlv.MakePrimitiveRecord(typeAddrEncoded, &encoded),
		)
		if err != nil {
			return err
		}
		if len(idx) != shielded.DiversifierSize {
			return corrupted("address index", nil)
		}
		ua, err := ParseUnifiedAddress(m.params, string(encoded))
		if err != nil {
			return corrupted("address", err)
		}

		rec := AddressRecord{
			Account: a.ID,
			Address: ua,
			Encoded: string(encoded),
		}
		copy(rec.Index[:], idx)
		m.recordAddress(a, rec)
	}

	n, err = readCount(r)
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		var (
			e      EphemeralAddress
			seenIn [32]byte
			mined  uint32
		)
		parsed, err := readStream(r,
			tlv.MakePrimitiveRecord(typeEphIndex, &e.Index),
			tlv.MakePrimitiveRecord(typeEphSeenIn, &seenIn),
			tlv.MakePrimitiveRecord(typeEphMined, &mined),
		)
		if err != nil {
			return err
		}
		if e.Index != uint32(i) {
			return corrupted("ephemeral address order", nil)
		}
		if isParsed(parsed, typeEphSeenIn) {
			e.SeenIn = fn.Some(chainhash.Hash(seenIn))
		}
		if isParsed(parsed, typeEphMined) {
			e.MinedHeight = fn.Some(mined)
		}

		e.PubKeyHash, err = a.UFVK.TransparentPubKeyHash(
			EphemeralBranch, e.Index,
		)
		if err != nil {
			return err
		}
		e.Address = EncodeP2PKH(m.params, e.PubKeyHash)
		m.recordEphemeral(a, e)
	}

	return nil
}
