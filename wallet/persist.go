// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/zecsuite/zecwallet/netparams"
	"github.com/zecsuite/zecwallet/scanqueue"
	"github.com/zecsuite/zecwallet/shardtree"
	"github.com/zecsuite/zecwallet/shielded"
	"github.com/zecsuite/zecwallet/waddrmgr"
	"github.com/zecsuite/zecwallet/wtxmgr"
)

// snapshotVersion is the version of the serialized wallet. A snapshot is
// the version byte followed by a single TLV stream.
const snapshotVersion = 1

const (
	typeSnapManager  tlv.Type = 0
	typeSnapStore    tlv.Type = 1
	typeSnapSapling  tlv.Type = 2
	typeSnapOrchard  tlv.Type = 3
	typeSnapQueue    tlv.Type = 4
	typeSnapRequests tlv.Type = 5
	typeSnapTip      tlv.Type = 6
)

const (
	typeReqKind    tlv.Type = 0
	typeReqTxID    tlv.Type = 1
	typeReqAddress tlv.Type = 2
	typeReqStart   tlv.Type = 3
	typeReqEnd     tlv.Type = 4
)

// rangeSize is the encoded size of a scan range.
const rangeSize = 9

func encodeRanges(rs []scanqueue.Range) []byte {
	b := make([]byte, 0, len(rs)*rangeSize)
	for _, r := range rs {
		b = binary.BigEndian.AppendUint32(b, r.Start)
		b = binary.BigEndian.AppendUint32(b, r.End)
		b = append(b, byte(r.Priority))
	}
	return b
}

func decodeRanges(b []byte) ([]scanqueue.Range, error) {
	if len(b)%rangeSize != 0 {
		return nil, fmt.Errorf("scan queue of %d bytes", len(b))
	}
	rs := make([]scanqueue.Range, 0, len(b)/rangeSize)
	for ; len(b) > 0; b = b[rangeSize:] {
		rs = append(rs, scanqueue.NewRange(
			binary.BigEndian.Uint32(b[0:4]),
			binary.BigEndian.Uint32(b[4:8]),
			scanqueue.Priority(b[8]),
		))
	}
	return rs, nil
}

func encodeRequests(reqs []TransactionDataRequest) ([]byte, error) {
	var (
		w   bytes.Buffer
		buf [8]byte
	)
	if err := tlv.WriteVarInt(&w, uint64(len(reqs)), &buf); err != nil {
		return nil, err
	}

	for _, r := range reqs {
		kind := uint8(r.Kind)
		txid := [32]byte(r.TxID)
		addr := []byte(r.Address)
		start := r.StartHeight

		records := []tlv.Record{
			tlv.MakePrimitiveRecord(typeReqKind, &kind),
			tlv.MakePrimitiveRecord(typeReqTxID, &txid),
			tlv.MakePrimitiveRecord(typeReqAddress, &addr),
			tlv.MakePrimitiveRecord(typeReqStart, &start),
		}
		if r.EndHeight.IsSome() {
			end := r.EndHeight.UnsafeFromSome()
			records = append(records,
				tlv.MakePrimitiveRecord(typeReqEnd, &end))
		}

		stream, err := tlv.NewStream(records...)
		if err != nil {
			return nil, err
		}
		var rec bytes.Buffer
		if err := stream.Encode(&rec); err != nil {
			return nil, err
		}
		err = tlv.WriteVarInt(&w, uint64(rec.Len()), &buf)
		if err != nil {
			return nil, err
		}
		w.Write(rec.Bytes())
	}

	return w.Bytes(), nil
}

func decodeRequests(b []byte) ([]TransactionDataRequest, error) {
	var (
		r   = bytes.NewReader(b)
		buf [8]byte
	)
	n, err := tlv.ReadVarInt(r, &buf)
	if err != nil {
		return nil, err
	}
	if n > uint64(len(b)) {
		return nil, fmt.Errorf("%d requests in %d bytes", n, len(b))
	}

	reqs := make([]TransactionDataRequest, 0, n)
	for i := uint64(0); i < n; i++ {
		l, err := tlv.ReadVarInt(r, &buf)
		if err != nil {
			return nil, err
		}

		var (
			kind       uint8
			txid       [32]byte
			addr       []byte
			start, end uint32
		)
		stream, err := tlv.NewStream(
			tlv.MakePrimitiveRecord(typeReqKind, &kind),
			tlv.MakePrimitiveRecord(typeReqTxID, &txid),
			tlv.MakePrimitiveRecord(typeReqAddress, &addr),
			tlv.MakePrimitiveRecord(typeReqStart, &start),
			tlv.MakePrimitiveRecord(typeReqEnd, &end),
		)
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
		if RequestKind(kind) > RequestSpendsFromAddress {
			return nil, fmt.Errorf("unknown request kind %d", kind)
		}

		req := TransactionDataRequest{
			Kind:        RequestKind(kind),
			TxID:        txid,
			Address:     string(addr),
			StartHeight: start,
		}
		if _, ok := parsed[typeReqEnd]; ok {
			req.EndHeight = fn.Some(end)
		}
		reqs = append(reqs, req)
	}

	return reqs, nil
}

// Serialize writes a snapshot of the whole wallet to w. Deserialize
// restores it.
func (w *Wallet) Serialize(out io.Writer) error {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	return w.serializeLocked(out)
}

func (w *Wallet) serializeLocked(out io.Writer) error {
	var mgr, store, sapling, orchard bytes.Buffer
	if err := w.Manager.Serialize(&mgr); err != nil {
		return fmt.Errorf("unable to serialize accounts: %w", err)
	}
	if err := w.txStore.Serialize(&store); err != nil {
		return fmt.Errorf("unable to serialize notes: %w", err)
	}
	if err := w.trees[shielded.Sapling].Serialize(&sapling); err != nil {
		return fmt.Errorf("unable to serialize Sapling tree: %w", err)
	}
	if err := w.trees[shielded.Orchard].Serialize(&orchard); err != nil {
		return fmt.Errorf("unable to serialize Orchard tree: %w", err)
	}
	reqs, err := encodeRequests(w.requests)
	if err != nil {
		return err
	}

	var (
		mgrBytes     = mgr.Bytes()
		storeBytes   = store.Bytes()
		saplingBytes = sapling.Bytes()
		orchardBytes = orchard.Bytes()
		queueBytes   = encodeRanges(w.queue.Ranges())
	)
	records := []tlv.Record{
		tlv.MakePrimitiveRecord(typeSnapManager, &mgrBytes),
		tlv.MakePrimitiveRecord(typeSnapStore, &storeBytes),
		tlv.MakePrimitiveRecord(typeSnapSapling, &saplingBytes),
		tlv.MakePrimitiveRecord(typeSnapOrchard, &orchardBytes),
		tlv.MakePrimitiveRecord(typeSnapQueue, &queueBytes),
		tlv.MakePrimitiveRecord(typeSnapRequests, &reqs),
	}
	if w.chainTip.IsSome() {
		tip := w.chainTip.UnsafeFromSome()
		records = append(records,
			tlv.MakePrimitiveRecord(typeSnapTip, &tip))
	}

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return err
	}
	if _, err := out.Write([]byte{snapshotVersion}); err != nil {
		return err
	}
	return stream.Encode(out)
}

// Deserialize restores a wallet from a snapshot written by Serialize.
// Snapshots that cannot be decoded yield a CorruptedDataError.
func Deserialize(params *netparams.Params, r io.Reader,
	opts ...Option) (*Wallet, error) {

	var version [1]byte
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return nil, snapshotError("version", err)
	}
	if version[0] != snapshotVersion {
		return nil, corrupted("unknown snapshot version %d", version[0])
	}

	var (
		mgrBytes, storeBytes, saplingBytes []byte
		orchardBytes, queueBytes, reqBytes []byte
		tip                                uint32
	)
	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeSnapManager, &mgrBytes),
		tlv.MakePrimitiveRecord(typeSnapStore, &storeBytes),
		tlv.MakePrimitiveRecord(typeSnapSapling, &saplingBytes),
		tlv.MakePrimitiveRecord(typeSnapOrchard, &orchardBytes),
		tlv.MakePrimitiveRecord(typeSnapQueue, &queueBytes),
		tlv.MakePrimitiveRecord(typeSnapRequests, &reqBytes),
		tlv.MakePrimitiveRecord(typeSnapTip, &tip),
	)
	if err != nil {
		return nil, err
	}
	parsed, err := stream.DecodeWithParsedTypes(r)
	if err != nil {
		return nil, snapshotError("stream", err)
	}

	w := New(params, opts...)

	w.Manager, err = waddrmgr.Deserialize(
		params, bytes.NewReader(mgrBytes),
	)
	if err != nil {
		return nil, snapshotError("accounts", err)
	}
	w.txStore, err = wtxmgr.Deserialize(bytes.NewReader(storeBytes))
	if err != nil {
		return nil, snapshotError("notes", err)
	}
	for p, b := range map[shielded.Protocol][]byte{
		shielded.Sapling: saplingBytes,
		shielded.Orchard: orchardBytes,
	} {
		w.trees[p], err = shardtree.Deserialize(
			shielded.HasherFor(p), w.cfg.maxCheckpoints,
			bytes.NewReader(b),
		)
		if err != nil {
			return nil, snapshotError(p.String()+" tree", err)
		}
	}

	ranges, err := decodeRanges(queueBytes)
	if err != nil {
		return nil, snapshotError("scan queue", err)
	}
	w.queue, err = scanqueue.FromRanges(ranges)
	if err != nil {
		return nil, snapshotError("scan queue", err)
	}
	w.requests, err = decodeRequests(reqBytes)
	if err != nil {
		return nil, snapshotError("data requests", err)
	}
	if _, ok := parsed[typeSnapTip]; ok {
		w.chainTip = fn.Some(tip)
	}

	return w, nil
}

func snapshotError(part string, err error) error {
	return corrupted("unable to decode wallet snapshot %s: %v", part, err)
}

// Save writes a snapshot of the wallet to the database it was opened
// from. Wallets created with New have no database and Save does nothing.
func (w *Wallet) Save() error {
	if w.db == nil {
		return nil
	}

	w.mtx.RLock()
	var b bytes.Buffer
	err := w.serializeLocked(&b)
	w.mtx.RUnlock()
	if err != nil {
		return err
	}

	return walletdb.Update(w.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(walletBucketKey)
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", walletBucketKey)
		}
		return bucket.Put(snapshotKey, b.Bytes())
	})
}
