// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/zecsuite/zecwallet/shardtree"
	"github.com/zecsuite/zecwallet/shielded"
	"github.com/zecsuite/zecwallet/tx"
)

// maxBlockItems bounds the transactions, spends and outputs read for a
// single compact block.
const maxBlockItems = 1 << 20

// ErrMalformedBlock is returned when decoding a compact block that is not
// well formed.
var ErrMalformedBlock = errors.New("malformed compact block")

// CompactSaplingSpend is the part of a Sapling spend that compact blocks
// carry.
type CompactSaplingSpend struct {
	Nullifier shielded.Nullifier
}

// CompactAction is the part of an Orchard action that compact blocks carry.
// The nullifier doubles as the rho of the note the action creates.
type CompactAction struct {
	Nullifier shielded.Nullifier
	Output    shielded.CompactOutput
}

// CompactTx is a transaction reduced to what trial decryption and spend
// detection need.
type CompactTx struct {
	// Index is the position of the transaction within its block.
	Index uint16
	TxID  chainhash.Hash

	SaplingSpends  []CompactSaplingSpend
	SaplingOutputs []shielded.CompactOutput
	OrchardActions []CompactAction
}

// Nullifiers returns the nullifiers the transaction reveals in a pool.
func (t *CompactTx) Nullifiers(p shielded.Protocol) []shielded.Nullifier {
	var nfs []shielded.Nullifier
	switch p {
	case shielded.Sapling:
		for _, s := range t.SaplingSpends {
			nfs = append(nfs, s.Nullifier)
		}
	case shielded.Orchard:
		for _, a := range t.OrchardActions {
			nfs = append(nfs, a.Nullifier)
		}
	}
	return nfs
}

// Commitments returns the note commitments the transaction adds to a pool's
// tree, in order.
func (t *CompactTx) Commitments(p shielded.Protocol) []shardtree.Node {
	var cms []shardtree.Node
	switch p {
	case shielded.Sapling:
		for i := range t.SaplingOutputs {
			cms = append(cms, t.SaplingOutputs[i].Cmu)
		}
	case shielded.Orchard:
		for i := range t.OrchardActions {
			cms = append(cms, t.OrchardActions[i].Output.Cmu)
		}
	}
	return cms
}

// OutputCount returns the number of outputs the transaction has in a pool.
func (t *CompactTx) OutputCount(p shielded.Protocol) int {
	if p == shielded.Orchard {
		return len(t.OrchardActions)
	}
	return len(t.SaplingOutputs)
}

// CompactTxFromTx reduces a full transaction to its compact form.
func CompactTxFromTx(t *tx.Tx, index uint16) *CompactTx {
	c := &CompactTx{Index: index, TxID: t.TxHash()}
	for _, s := range t.SaplingSpends {
		c.SaplingSpends = append(c.SaplingSpends, CompactSaplingSpend{
			Nullifier: s.Nullifier,
		})
	}
	for i := range t.SaplingOutputs {
		c.SaplingOutputs = append(
			c.SaplingOutputs, t.SaplingOutputs[i].Compact(),
		)
	}
	for i := range t.OrchardActions {
		a := &t.OrchardActions[i]
		c.OrchardActions = append(c.OrchardActions, CompactAction{
			Nullifier: a.Nullifier,
			Output:    a.Output.Compact(),
		})
	}

	return c
}

// ChainMetadata carries the note commitment tree sizes at the end of a
// block.
type ChainMetadata struct {
	SaplingTreeSize uint32
	OrchardTreeSize uint32
}

// TreeSize returns the tree size of a pool.
func (m ChainMetadata) TreeSize(p shielded.Protocol) uint32 {
	if p == shielded.Orchard {
		return m.OrchardTreeSize
	}
	return m.SaplingTreeSize
}

// CompactBlock is a block as served by a compact block indexer.
type CompactBlock struct {
	Height   uint32
	Hash     chainhash.Hash
	PrevHash chainhash.Hash
	Time     uint32

	Txs []CompactTx

	ChainMetadata ChainMetadata
}

// OutputCount returns the number of outputs the block adds to a pool's
// tree.
func (b *CompactBlock) OutputCount(p shielded.Protocol) int {
	var n int
	for i := range b.Txs {
		n += b.Txs[i].OutputCount(p)
	}
	return n
}

// Serialize encodes the block to w.
func (b *CompactBlock) Serialize(w io.Writer) error {
	err := writeElements(
		w, b.Height, &b.Hash, &b.PrevHash, b.Time,
		b.ChainMetadata.SaplingTreeSize,
		b.ChainMetadata.OrchardTreeSize,
	)
	if err != nil {
		return err
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(b.Txs))); err != nil {
		return err
	}
	for i := range b.Txs {
		if err := writeCompactTx(w, &b.Txs[i]); err != nil {
			return err
		}
	}

	return nil
}

// Deserialize decodes a block from r into b.
func (b *CompactBlock) Deserialize(r io.Reader) error {
	err := readElements(
		r, &b.Height, &b.Hash, &b.PrevHash, &b.Time,
		&b.ChainMetadata.SaplingTreeSize,
		&b.ChainMetadata.OrchardTreeSize,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}

	n, err := readCount(r)
	if err != nil {
		return err
	}
	b.Txs = nil
	if n > 0 {
		b.Txs = make([]CompactTx, n)
	}
	for i := range b.Txs {
		if err := readCompactTx(r, &b.Txs[i]); err != nil {
			return err
		}
	}

	return nil
}

// Bytes returns the serialized block.
func (b *CompactBlock) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := b.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCompactBlock decodes a serialized block.
func DecodeCompactBlock(data []byte) (*CompactBlock, error) {
	r := bytes.NewReader(data)

	var b CompactBlock
	if err := b.Deserialize(r); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes",
			ErrMalformedBlock, r.Len())
	}

	return &b, nil
}

func writeCompactTx(w io.Writer, t *CompactTx) error {
	if err := writeElements(w, t.Index, &t.TxID); err != nil {
		return err
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(t.SaplingSpends))); err != nil {
		return err
	}
	for i := range t.SaplingSpends {
		if _, err := w.Write(t.SaplingSpends[i].Nullifier[:]); err != nil {
			return err
		}
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(t.SaplingOutputs))); err != nil {
		return err
	}
	for i := range t.SaplingOutputs {
		if err := writeCompactOutput(w, &t.SaplingOutputs[i]); err != nil {
			return err
		}
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(t.OrchardActions))); err != nil {
		return err
	}
	for i := range t.OrchardActions {
		a := &t.OrchardActions[i]
		if _, err := w.Write(a.Nullifier[:]); err != nil {
			return err
		}
		if err := writeCompactOutput(w, &a.Output); err != nil {
			return err
		}
	}

	return nil
}

func readCompactTx(r io.Reader, t *CompactTx) error {
	if err := readElements(r, &t.Index, &t.TxID); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}

	n, err := readCount(r)
	if err != nil {
		return err
	}
	if n > 0 {
		t.SaplingSpends = make([]CompactSaplingSpend, n)
	}
	for i := range t.SaplingSpends {
		_, err := io.ReadFull(r, t.SaplingSpends[i].Nullifier[:])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedBlock, err)
		}
	}

	if n, err = readCount(r); err != nil {
		return err
	}
	if n > 0 {
		t.SaplingOutputs = make([]shielded.CompactOutput, n)
	}
	for i := range t.SaplingOutputs {
		if err := readCompactOutput(r, &t.SaplingOutputs[i]); err != nil {
			return err
		}
	}

	if n, err = readCount(r); err != nil {
		return err
	}
	if n > 0 {
		t.OrchardActions = make([]CompactAction, n)
	}
	for i := range t.OrchardActions {
		a := &t.OrchardActions[i]
		if _, err := io.ReadFull(r, a.Nullifier[:]); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedBlock, err)
		}
		if err := readCompactOutput(r, &a.Output); err != nil {
			return err
		}
	}

	return nil
}

func writeCompactOutput(w io.Writer, o *shielded.CompactOutput) error {
	for _, b := range [][]byte{o.Cmu[:], o.EphemeralKey[:], o.Ciphertext[:]} {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func readCompactOutput(r io.Reader, o *shielded.CompactOutput) error {
	for _, b := range [][]byte{o.Cmu[:], o.EphemeralKey[:], o.Ciphertext[:]} {
		if _, err := io.ReadFull(r, b); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedBlock, err)
		}
	}
	return nil
}

func readCount(r io.Reader) (int, error) {
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}
	if n > maxBlockItems {
		return 0, fmt.Errorf("%w: %d items", ErrMalformedBlock, n)
	}
	return int(n), nil
}

// writeElements writes each fixed size element little endian.
func writeElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		var err error
		switch e := element.(type) {
		case uint16:
			err = binary.Write(w, binary.LittleEndian, e)
		case uint32:
			err = binary.Write(w, binary.LittleEndian, e)
		case *chainhash.Hash:
			_, err = w.Write(e[:])
		default:
			err = fmt.Errorf("unsupported element %T", element)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readElements reads each fixed size element written by writeElements.
func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		var err error
		switch e := element.(type) {
		case *uint16:
			err = binary.Read(r, binary.LittleEndian, e)
		case *uint32:
			err = binary.Read(r, binary.LittleEndian, e)
		case *chainhash.Hash:
			_, err = io.ReadFull(r, e[:])
		default:
			err = fmt.Errorf("unsupported element %T", element)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
