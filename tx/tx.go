// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package tx

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
)

const (
	// Version is the transaction format version written by this package.
	Version = 5

	// maxScriptSize bounds transparent scripts and signatures read from
	// untrusted input.
	maxScriptSize = 10000

	// maxItems bounds every list read from untrusted input.
	maxItems = 1 << 16
)

// ErrMalformed is returned when decoding a transaction that is not well
// formed.
var ErrMalformed = errors.New("malformed transaction")

// SaplingSpend spends a Sapling note.
type SaplingSpend struct {
	Nullifier shielded.Nullifier

	// AuthSig authorizes the spend. It is empty until signed.
	AuthSig []byte
}

// OrchardAction spends one Orchard note and creates another. Actions
// without a real input spend a zero valued dummy note.
type OrchardAction struct {
	Nullifier shielded.Nullifier
	Output    shielded.Output

	// AuthSig authorizes the spend. It is empty until signed.
	AuthSig []byte
}

// Tx is a transaction with a transparent part and Sapling and Orchard
// bundles.
type Tx struct {
	Version      uint32
	LockTime     uint32
	ExpiryHeight uint32

	TxIn  []*wire.TxIn
	TxOut []*wire.TxOut

	// SaplingAnchor is the tree root every Sapling spend proves
	// membership against.
	SaplingAnchor       shardtree.Node
	SaplingSpends       []SaplingSpend
	SaplingOutputs      []shielded.Output
	SaplingValueBalance int64

	OrchardAnchor       shardtree.Node
	OrchardActions      []OrchardAction
	OrchardValueBalance int64
}

// ShieldedOutput refers to a note created by a transaction.
type ShieldedOutput struct {
	Protocol shielded.Protocol
	Index    uint16
	Output   *shielded.Output

	// Rho is the nullifier of the enclosing Orchard action.
	Rho [32]byte
}

// ShieldedOutputs returns the notes created by the transaction, Sapling
// first.
func (t *Tx) ShieldedOutputs() []ShieldedOutput {
	outs := make([]ShieldedOutput, 0,
		len(t.SaplingOutputs)+len(t.OrchardActions))
	for i := range t.SaplingOutputs {
		outs = append(outs, ShieldedOutput{
			Protocol: shielded.Sapling,
			Index:    uint16(i),
			Output:   &t.SaplingOutputs[i],
		})
	}
	for i := range t.OrchardActions {
		a := &t.OrchardActions[i]
		outs = append(outs, ShieldedOutput{
			Protocol: shielded.Orchard,
			Index:    uint16(i),
			Output:   &a.Output,
			Rho:      a.Nullifier,
		})
	}
	return outs
}

// Nullifiers returns the nullifiers revealed in a pool.
func (t *Tx) Nullifiers(p shielded.Protocol) []shielded.Nullifier {
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

// Fee returns the fee paid given the values of the transparent outputs
// spent by TxIn, in order.
func (t *Tx) Fee(inputValues []int64) (int64, error) {
	if len(inputValues) != len(t.TxIn) {
		return 0, fmt.Errorf("%d input values for %d inputs",
			len(inputValues), len(t.TxIn))
	}

	fee := t.SaplingValueBalance + t.OrchardValueBalance
	for _, v := range inputValues {
		fee += v
	}
	for _, out := range t.TxOut {
		fee -= out.Value
	}
	return fee, nil
}

// TxHash returns the transaction id.
func (t *Tx) TxHash() chainhash.Hash {
	var buf bytes.Buffer
	_, _ = t.write(&buf, false)
	return chainhash.DoubleHashH(buf.Bytes())
}

// TransparentSigHash returns the digest signed by transparent input idx,
// which spends an output with the given script and value.
func (t *Tx) TransparentSigHash(idx int, prevScript []byte,
	amount int64) chainhash.Hash {

	txid := t.TxHash()

	var buf bytes.Buffer
	buf.Write(txid[:])
	_ = binary.Write(&buf, binary.LittleEndian, uint32(idx))
	_ = wire.WriteVarBytes(&buf, 0, prevScript)
	_ = binary.Write(&buf, binary.LittleEndian, amount)

	return chainhash.DoubleHashH(buf.Bytes())
}

// Bytes returns the encoding of the transaction.
func (t *Tx) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := t.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromBytes decodes a transaction encoded by Bytes.
func FromBytes(b []byte) (*Tx, error) {
	t := new(Tx)
	r := bytes.NewReader(b)
	if _, err := t.ReadFrom(r); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed,
			r.Len())
	}
	return t, nil
}

// WriteTo satisfies the io.WriterTo interface.
func (t *Tx) WriteTo(w io.Writer) (int64, error) {
	return t.write(w, true)
}

// ReadFrom satisfies the io.ReaderFrom interface.
func (t *Tx) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	err := t.read(cr)
	if err != nil && !errors.Is(err, ErrMalformed) {
		err = fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return cr.n, err
}

// write encodes the transaction, leaving signatures out when withSigs is
// false.
func (t *Tx) write(w io.Writer, withSigs bool) (int64, error) {
	cw := &countingWriter{w: w}
	e := &encoder{w: cw}

	e.u32(t.Version)
	e.u32(t.LockTime)
	e.u32(t.ExpiryHeight)

	e.count(len(t.TxIn))
	for _, in := range t.TxIn {
		e.bytes(in.PreviousOutPoint.Hash[:])
		e.u32(in.PreviousOutPoint.Index)
		if withSigs {
			e.varBytes(in.SignatureScript)
		}
		e.u32(in.Sequence)
	}
	e.count(len(t.TxOut))
	for _, out := range t.TxOut {
		e.i64(out.Value)
		e.varBytes(out.PkScript)
	}

	e.count(len(t.SaplingSpends))
	for _, s := range t.SaplingSpends {
		e.bytes(s.Nullifier[:])
		if withSigs {
			e.varBytes(s.AuthSig)
		}
	}
	e.count(len(t.SaplingOutputs))
	for i := range t.SaplingOutputs {
		e.output(&t.SaplingOutputs[i])
	}
	if len(t.SaplingSpends)+len(t.SaplingOutputs) > 0 {
		e.i64(t.SaplingValueBalance)
	}
	if len(t.SaplingSpends) > 0 {
		e.bytes(t.SaplingAnchor[:])
	}

	e.count(len(t.OrchardActions))
	for i := range t.OrchardActions {
		a := &t.OrchardActions[i]
		e.bytes(a.Nullifier[:])
		e.output(&a.Output)
		if withSigs {
			e.varBytes(a.AuthSig)
		}
	}
	if len(t.OrchardActions) > 0 {
		e.i64(t.OrchardValueBalance)
		e.bytes(t.OrchardAnchor[:])
	}

	return cw.n, e.err
}

func (t *Tx) read(r io.Reader) error {
	d := &decoder{r: r}
	*t = Tx{}

	t.Version = d.u32()
	t.LockTime = d.u32()
	t.ExpiryHeight = d.u32()
	if d.err == nil && t.Version != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformed,
			t.Version)
	}

	n := d.count()
	for i := 0; i < n && d.err == nil; i++ {
		in := &wire.TxIn{}
		d.bytes(in.PreviousOutPoint.Hash[:])
		in.PreviousOutPoint.Index = d.u32()
		in.SignatureScript = d.varBytes("signature script")
		in.Sequence = d.u32()
		t.TxIn = append(t.TxIn, in)
	}
	n = d.count()
	for i := 0; i < n && d.err == nil; i++ {
		value := d.i64()
		script := d.varBytes("pk script")
		t.TxOut = append(t.TxOut, wire.NewTxOut(value, script))
	}

	n = d.count()
	for i := 0; i < n && d.err == nil; i++ {
		var s SaplingSpend
		d.bytes(s.Nullifier[:])
		s.AuthSig = d.varBytes("spend signature")
		t.SaplingSpends = append(t.SaplingSpends, s)
	}
	n = d.count()
	for i := 0; i < n && d.err == nil; i++ {
		var o shielded.Output
		d.output(&o)
		t.SaplingOutputs = append(t.SaplingOutputs, o)
	}
	if len(t.SaplingSpends)+len(t.SaplingOutputs) > 0 {
		t.SaplingValueBalance = d.i64()
	}
	if len(t.SaplingSpends) > 0 {
		d.bytes(t.SaplingAnchor[:])
	}

	n = d.count()
	for i := 0; i < n && d.err == nil; i++ {
		var a OrchardAction
		d.bytes(a.Nullifier[:])
		d.output(&a.Output)
		a.AuthSig = d.varBytes("action signature")
		t.OrchardActions = append(t.OrchardActions, a)
	}
	if len(t.OrchardActions) > 0 {
		t.OrchardValueBalance = d.i64()
		d.bytes(t.OrchardAnchor[:])
	}

	return d.err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// encoder writes fields until the first error, which it keeps.
type encoder struct {
	w   io.Writer
	err error
}

func (e *encoder) bytes(b []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(b)
	}
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.bytes(b[:])
}

func (e *encoder) i64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	e.bytes(b[:])
}

func (e *encoder) count(n int) {
	if e.err == nil {
		e.err = wire.WriteVarInt(e.w, 0, uint64(n))
	}
}

func (e *encoder) varBytes(b []byte) {
	if e.err == nil {
		e.err = wire.WriteVarBytes(e.w, 0, b)
	}
}

func (e *encoder) output(o *shielded.Output) {
	e.bytes(o.Cmu[:])
	e.bytes(o.EphemeralKey[:])
	e.bytes(o.EncCiphertext[:])
	e.bytes(o.OutCiphertext[:])
}

// decoder reads fields until the first error, which it keeps.
type decoder struct {
	r   io.Reader
	err error
}

func (d *decoder) bytes(b []byte) {
	if d.err == nil {
		_, d.err = io.ReadFull(d.r, b)
	}
}

func (d *decoder) u32() uint32 {
	var b [4]byte
	d.bytes(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

func (d *decoder) i64() int64 {
	var b [8]byte
	d.bytes(b[:])
	return int64(binary.LittleEndian.Uint64(b[:]))
}

func (d *decoder) count() int {
	if d.err != nil {
		return 0
	}
	n, err := wire.ReadVarInt(d.r, 0)
	if err != nil {
		d.err = err
		return 0
	}
	if n > maxItems {
		d.err = fmt.Errorf("%w: %d items", ErrMalformed, n)
		return 0
	}
	return int(n)
}

func (d *decoder) varBytes(field string) []byte {
	if d.err != nil {
		return nil
	}
	b, err := wire.ReadVarBytes(d.r, 0, maxScriptSize, field)
	if err != nil {
		d.err = err
		return nil
	}
	if len(b) == 0 {
		return nil
	}
	return b
}

func (d *decoder) output(o *shielded.Output) {
	d.bytes(o.Cmu[:])
	d.bytes(o.EphemeralKey[:])
	d.bytes(o.EncCiphertext[:])
	d.bytes(o.OutCiphertext[:])
}
