// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shielded

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shardtree"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

const (
	// noteVersion is the lead byte of every note plaintext.
	noteVersion = 0x02

	// CompactCiphertextSize is the prefix of the note ciphertext carried
	// in compact blocks: lead byte, diversifier, value and rseed.
	CompactCiphertextSize = 1 + DiversifierSize + 8 + 32

	// NotePlaintextSize is the size of a full note plaintext.
	NotePlaintextSize = CompactCiphertextSize + MemoSize

	// EncCiphertextSize is the size of the encrypted note.
	EncCiphertextSize = NotePlaintextSize + chacha20poly1305.Overhead

	// OutCiphertextSize is the size of the sender's recovery data.
	OutCiphertextSize = 64 + chacha20poly1305.Overhead
)

// zeroNonce is safe because every note key is used for one message.
var zeroNonce [chacha20poly1305.NonceSize]byte

// Output is a shielded output as it appears in a full transaction.
type Output struct {
	Cmu           shardtree.Node
	EphemeralKey  [32]byte
	EncCiphertext [EncCiphertextSize]byte
	OutCiphertext [OutCiphertextSize]byte
}

// CompactOutput is the part of an output that compact blocks carry.
type CompactOutput struct {
	Cmu          shardtree.Node
	EphemeralKey [32]byte
	Ciphertext   [CompactCiphertextSize]byte
}

// Compact returns the compact form of the output.
func (o *Output) Compact() CompactOutput {
	c := CompactOutput{Cmu: o.Cmu, EphemeralKey: o.EphemeralKey}
	copy(c.Ciphertext[:], o.EncCiphertext[:CompactCiphertextSize])
	return c
}

// NewRseed returns fresh note randomness.
func NewRseed() ([32]byte, error) {
	var r [32]byte
	if _, err := rand.Read(r[:]); err != nil {
		return r, err
	}
	return r, nil
}

// noteKey derives the symmetric key of a note from the shared secret.
func noteKey(p Protocol, shared, epk []byte) [32]byte {
	return kdf(p, "KDF", shared, epk)
}

// outKey derives the key protecting the sender's recovery data.
func outKey(p Protocol, ovk [32]byte, cm shardtree.Node, epk []byte) [32]byte {
	return kdf(p, "OCK", ovk[:], cm[:], epk)
}

func seal(key [32]byte, dst, plaintext []byte) error {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return err
	}
	copy(dst, aead.Seal(nil, zeroNonce[:], plaintext, nil))
	return nil
}

func open(key [32]byte, ciphertext []byte) ([]byte, bool) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, false
	}
	pt, err := aead.Open(nil, zeroNonce[:], ciphertext, nil)
	return pt, err == nil
}

// EncryptNote encrypts a note and memo to the note's recipient. When an
// outgoing viewing key is given the sender can later recover the note with
// it; otherwise the recovery data is random.
func EncryptNote(n *Note, memo Memo, ovk fn.Option[[32]byte]) (*Output,
	error) {

	if !n.Protocol.Valid() {
		return nil, ErrUnknownProtocol
	}
	gd, ok := diversifiedBase(n.Protocol, n.Recipient.Diversifier)
	if !ok {
		return nil, ErrInvalidDiversifier
	}

	esk := n.esk()
	epk, err := curve25519.X25519(esk[:], gd[:])
	if err != nil {
		return nil, fmt.Errorf("unable to derive ephemeral key: %w", err)
	}
	shared, err := curve25519.X25519(esk[:], n.Recipient.PkD[:])
	if err != nil {
		return nil, fmt.Errorf("unable to agree on note key: %w", err)
	}

	out := &Output{Cmu: n.Commitment()}
	copy(out.EphemeralKey[:], epk)

	pt := make([]byte, 0, NotePlaintextSize)
	pt = append(pt, noteVersion)
	pt = append(pt, n.Recipient.Diversifier[:]...)
	pt = binary.LittleEndian.AppendUint64(pt, uint64(n.Value))
	pt = append(pt, n.Rseed[:]...)
	pt = append(pt, memo[:]...)

	if err := seal(noteKey(n.Protocol, shared, epk),
		out.EncCiphertext[:], pt); err != nil {

		return nil, err
	}

	var ock [32]byte
	if ovk.IsSome() {
		ock = outKey(n.Protocol, ovk.UnsafeFromSome(), out.Cmu, epk)
	} else if _, err := rand.Read(ock[:]); err != nil {
		return nil, err
	}
	recovery := make([]byte, 0, 64)
	recovery = append(recovery, n.Recipient.PkD[:]...)
	recovery = append(recovery, esk[:]...)

	if err := seal(ock, out.OutCiphertext[:], recovery); err != nil {
		return nil, err
	}

	return out, nil
}

// parsePlaintext rebuilds a note from its plaintext prefix and checks it
// against the output's commitment and ephemeral key.
func parsePlaintext(p Protocol, pt []byte, pkd [32]byte, cmu shardtree.Node,
	epk [32]byte, rho [32]byte) (*Note, bool) {

	if len(pt) < CompactCiphertextSize || pt[0] != noteVersion {
		return nil, false
	}

	n := &Note{Protocol: p}
	if p == Orchard {
		n.Rho = rho
	}
	copy(n.Recipient.Diversifier[:], pt[1:1+DiversifierSize])
	n.Recipient.Protocol = p
	n.Recipient.PkD = pkd

	value := binary.LittleEndian.Uint64(pt[1+DiversifierSize:])
	if value > uint64(unit.MaxMoney) {
		return nil, false
	}
	n.Value = unit.Zatoshi(value)
	copy(n.Rseed[:], pt[1+DiversifierSize+8:CompactCiphertextSize])

	if n.Commitment() != cmu {
		return nil, false
	}

	gd, ok := diversifiedBase(p, n.Recipient.Diversifier)
	if !ok {
		return nil, false
	}
	esk := n.esk()
	derived, err := curve25519.X25519(esk[:], gd[:])
	if err != nil || [32]byte(derived) != epk {
		return nil, false
	}

	return n, true
}

// DecryptCompact trial-decrypts a compact output. Rho is the nullifier of
// the Orchard action the output belongs to and is ignored for Sapling.
func (k *IncomingViewingKey) DecryptCompact(out *CompactOutput,
	rho [32]byte) (*Note, bool) {

	shared, err := curve25519.X25519(k.Ivk[:], out.EphemeralKey[:])
	if err != nil {
		return nil, false
	}
	key := noteKey(k.Protocol, shared, out.EphemeralKey[:])

	// The compact prefix is decrypted without its tag: the stream
	// starts at block one, after the Poly1305 key block.
	c, err := chacha20.NewUnauthenticatedCipher(key[:], zeroNonce[:])
	if err != nil {
		return nil, false
	}
	c.SetCounter(1)
	pt := make([]byte, CompactCiphertextSize)
	c.XORKeyStream(pt, out.Ciphertext[:])

	var d Diversifier
	copy(d[:], pt[1:1+DiversifierSize])
	pkd, ok := k.transmissionKey(d)
	if !ok {
		return nil, false
	}

	return parsePlaintext(
		k.Protocol, pt, pkd, out.Cmu, out.EphemeralKey, rho,
	)
}

// Decrypt trial-decrypts a full output and returns the note and memo.
func (k *IncomingViewingKey) Decrypt(out *Output, rho [32]byte) (*Note,
	Memo, bool) {

	shared, err := curve25519.X25519(k.Ivk[:], out.EphemeralKey[:])
	if err != nil {
		return nil, Memo{}, false
	}
	key := noteKey(k.Protocol, shared, out.EphemeralKey[:])

	pt, ok := open(key, out.EncCiphertext[:])
	if !ok {
		return nil, Memo{}, false
	}

	var d Diversifier
	copy(d[:], pt[1:1+DiversifierSize])
	pkd, ok := k.transmissionKey(d)
	if !ok {
		return nil, Memo{}, false
	}

	n, ok := parsePlaintext(
		k.Protocol, pt, pkd, out.Cmu, out.EphemeralKey, rho,
	)
	if !ok {
		return nil, Memo{}, false
	}

	var memo Memo
	copy(memo[:], pt[CompactCiphertextSize:])

	return n, memo, true
}

// RecoverOutput recovers a note the holder of ovk sent.
func RecoverOutput(p Protocol, ovk [32]byte, out *Output, rho [32]byte) (
	*Note, Memo, bool) {

	ock := outKey(p, ovk, out.Cmu, out.EphemeralKey[:])
	recovery, ok := open(ock, out.OutCiphertext[:])
	if !ok {
		return nil, Memo{}, false
	}

	var pkd [32]byte
	copy(pkd[:], recovery[:32])
	esk := recovery[32:64]

	shared, err := curve25519.X25519(esk, pkd[:])
	if err != nil {
		return nil, Memo{}, false
	}
	pt, ok := open(
		noteKey(p, shared, out.EphemeralKey[:]), out.EncCiphertext[:],
	)
	if !ok {
		return nil, Memo{}, false
	}

	n, ok := parsePlaintext(p, pt, pkd, out.Cmu, out.EphemeralKey, rho)
	if !ok {
		return nil, Memo{}, false
	}

	var memo Memo
	copy(memo[:], pt[CompactCiphertextSize:])

	return n, memo, true
}
