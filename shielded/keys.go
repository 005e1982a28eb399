// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shielded

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"golang.org/x/crypto/curve25519"
)

const (
	// FullViewingKeySize is the encoded size of a full viewing key.
	FullViewingKeySize = 4 * 32

	// SpendAuthSigSize is the size of a spend authorization signature.
	SpendAuthSigSize = schnorr.SignatureSize
)

// kdf hashes parts under domain with the pool's hash function.
func kdf(p Protocol, domain string, parts ...[]byte) [32]byte {
	if p == Orchard {
		return prf3("z.cash:Orchard-"+domain, parts...)
	}
	return prf("Zcash_Sapling_"+domain, parts...)
}

// SpendingKey is the secret key of one account in one pool.
type SpendingKey struct {
	Protocol Protocol
	key      [32]byte
}

// DeriveSpendingKey derives the spending key of the hardened account index
// from a wallet seed.
func DeriveSpendingKey(p Protocol, seed []byte, coinType,
	account uint32) (*SpendingKey, error) {

	if !p.Valid() {
		return nil, ErrUnknownProtocol
	}

	var path [8]byte
	binary.LittleEndian.PutUint32(path[:4], coinType)
	binary.LittleEndian.PutUint32(path[4:], account)

	return &SpendingKey{
		Protocol: p,
		key:      kdf(p, "ZIP32Master", seed, path[:]),
	}, nil
}

// NewSpendingKey wraps raw spending key bytes.
func NewSpendingKey(p Protocol, b [32]byte) *SpendingKey {
	return &SpendingKey{Protocol: p, key: b}
}

// Bytes returns the raw spending key.
func (sk *SpendingKey) Bytes() [32]byte {
	return sk.key
}

// authKey returns the spend authorization private key.
func (sk *SpendingKey) authKey() *btcec.PrivateKey {
	ask := kdf(sk.Protocol, "ask", sk.key[:])
	priv, _ := btcec.PrivKeyFromBytes(ask[:])
	return priv
}

// FullViewingKey returns the external full viewing key of the spending key.
func (sk *SpendingKey) FullViewingKey() *FullViewingKey {
	fvk := &FullViewingKey{
		Protocol: sk.Protocol,
		Nk:       kdf(sk.Protocol, "nk", sk.key[:]),
		Ovk:      kdf(sk.Protocol, "ovk", sk.key[:]),
		Dk:       kdf(sk.Protocol, "dk", sk.key[:]),
	}
	copy(fvk.Ak[:], schnorr.SerializePubKey(sk.authKey().PubKey()))

	return fvk
}

// SignSpend authorizes spending a note with the key for the given
// transaction digest.
func (sk *SpendingKey) SignSpend(sighash [32]byte) ([]byte, error) {
	sig, err := schnorr.Sign(sk.authKey(), sighash[:])
	if err != nil {
		return nil, fmt.Errorf("unable to sign spend: %w", err)
	}

	return sig.Serialize(), nil
}

// FullViewingKey can derive every address of an account and detect both
// incoming notes and their spends.
type FullViewingKey struct {
	Protocol Protocol

	// Ak is the spend validating key.
	Ak [32]byte

	// Nk is the nullifier deriving key.
	Nk [32]byte

	// Ovk is the outgoing viewing key.
	Ovk [32]byte

	// Dk is the diversifier key.
	Dk [32]byte
}

// Bytes encodes the key as ak || nk || ovk || dk.
func (f *FullViewingKey) Bytes() []byte {
	b := make([]byte, 0, FullViewingKeySize)
	b = append(b, f.Ak[:]...)
	b = append(b, f.Nk[:]...)
	b = append(b, f.Ovk[:]...)
	return append(b, f.Dk[:]...)
}

// ParseFullViewingKey decodes a key encoded by Bytes.
func ParseFullViewingKey(p Protocol, b []byte) (*FullViewingKey, error) {
	if !p.Valid() {
		return nil, ErrUnknownProtocol
	}
	if len(b) != FullViewingKeySize {
		return nil, fmt.Errorf("%w: %s viewing key of %d bytes",
			ErrInvalidEncoding, p, len(b))
	}
	if _, err := schnorr.ParsePubKey(b[:32]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}

	f := &FullViewingKey{Protocol: p}
	copy(f.Ak[:], b[0:32])
	copy(f.Nk[:], b[32:64])
	copy(f.Ovk[:], b[64:96])
	copy(f.Dk[:], b[96:128])

	return f, nil
}

// Scoped returns the viewing key of the given scope. The internal key
// shares the spend validating key and derives the rest from the external
// key.
func (f *FullViewingKey) Scoped(scope Scope) *FullViewingKey {
	c := *f
	if scope != Internal {
		return &c
	}

	c.Nk = kdf(f.Protocol, "nk_internal", f.Nk[:], f.Ovk[:])
	c.Ovk = kdf(f.Protocol, "ovk_internal", f.Ovk[:], f.Dk[:])
	c.Dk = kdf(f.Protocol, "dk_internal", f.Dk[:])

	return &c
}

// IncomingViewingKey returns the key that decrypts notes received at the
// given scope.
func (f *FullViewingKey) IncomingViewingKey(scope Scope) *IncomingViewingKey {
	s := f.Scoped(scope)
	return &IncomingViewingKey{
		Protocol: f.Protocol,
		Dk:       s.Dk,
		Ivk:      kdf(f.Protocol, "ivk", s.Ak[:], s.Nk[:]),
	}
}

// OutgoingViewingKey returns the key that recovers notes sent from the
// given scope.
func (f *FullViewingKey) OutgoingViewingKey(scope Scope) [32]byte {
	return f.Scoped(scope).Ovk
}

// Nullifier derives the nullifier of a note received under this key. The
// key must be scoped to the scope the note was received at. Sapling
// nullifiers depend on the note's tree position; Orchard ones do not.
func (f *FullViewingKey) Nullifier(n *Note, position uint64) Nullifier {
	cm := n.Commitment()
	if f.Protocol == Orchard {
		psi := n.psi()
		return Nullifier(prf3("z.cash:Orchard-nf", f.Nk[:], n.Rho[:],
			psi[:], cm[:]))
	}

	var pos [8]byte
	binary.LittleEndian.PutUint64(pos[:], position)

	return Nullifier(prfKeyed(f.Nk, "Zcash_nf", cm[:], pos[:]))
}

// VerifySpend checks a spend authorization against the key.
func (f *FullViewingKey) VerifySpend(sighash [32]byte, sig []byte) error {
	pub, err := schnorr.ParsePubKey(f.Ak[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	s, err := schnorr.ParseSignature(sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !s.Verify(sighash[:], pub) {
		return ErrInvalidSignature
	}

	return nil
}

// IncomingViewingKey derives addresses of one scope and trial-decrypts
// notes sent to them.
type IncomingViewingKey struct {
	Protocol Protocol

	// Dk is the diversifier key of the scope.
	Dk [32]byte

	// Ivk is the X25519 scalar shared with senders.
	Ivk [32]byte
}

// Address returns the payment address at idx, or ErrInvalidDiversifier if
// the index does not yield one in this pool.
func (k *IncomingViewingKey) Address(idx DiversifierIndex) (*PaymentAddress,
	error) {

	d := k.diversifier(idx)
	gd, ok := diversifiedBase(k.Protocol, d)
	if !ok {
		return nil, ErrInvalidDiversifier
	}
	pkd, err := curve25519.X25519(k.Ivk[:], gd[:])
	if err != nil {
		return nil, ErrInvalidDiversifier
	}

	addr := &PaymentAddress{Protocol: k.Protocol, Diversifier: d}
	copy(addr.PkD[:], pkd)

	return addr, nil
}

// FindAddress returns the first valid address at or after idx along with
// its index.
func (k *IncomingViewingKey) FindAddress(idx DiversifierIndex) (
	*PaymentAddress, DiversifierIndex, error) {

	for {
		addr, err := k.Address(idx)
		if err == nil {
			return addr, idx, nil
		}
		if err := idx.Increment(); err != nil {
			return nil, idx, err
		}
	}
}

// Owns reports whether the address was derived from this key.
func (k *IncomingViewingKey) Owns(addr *PaymentAddress) bool {
	if addr.Protocol != k.Protocol {
		return false
	}
	pkd, ok := k.transmissionKey(addr.Diversifier)
	return ok && pkd == addr.PkD
}

func (k *IncomingViewingKey) diversifier(idx DiversifierIndex) Diversifier {
	var d Diversifier
	h := prfKeyed(k.Dk, "Zcash_diversifier", idx[:])
	copy(d[:], h[:DiversifierSize])
	return d
}

// transmissionKey returns pk_d for diversifier d under this key.
func (k *IncomingViewingKey) transmissionKey(d Diversifier) ([32]byte, bool) {
	var pkd [32]byte
	gd, ok := diversifiedBase(k.Protocol, d)
	if !ok {
		return pkd, false
	}
	b, err := curve25519.X25519(k.Ivk[:], gd[:])
	if err != nil {
		return pkd, false
	}
	copy(pkd[:], b)

	return pkd, true
}

// diversifiedBase maps a diversifier to its base point. About half of all
// Sapling diversifiers have none.
func diversifiedBase(p Protocol, d Diversifier) ([32]byte, bool) {
	gd := kdf(p, "gd", d[:])
	if p == Sapling && gd[0]&1 == 1 {
		return gd, false
	}
	return gd, true
}
