// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/zecsuite/zecwallet/netparams"
	"github.com/zecsuite/zecwallet/shielded"
	"golang.org/x/crypto/blake2b"
)

const (
	// MinSeedLen is the shortest seed accounts may be derived from.
	MinSeedLen = 32

	// MaxSeedLen is the longest seed accounts may be derived from.
	MaxSeedLen = hdkeychain.MaxSeedBytes

	// purposeBIP44 is the purpose level of transparent key paths.
	purposeBIP44 = 44

	// transparentKeySize is the encoded size of an account level
	// transparent key: chain code followed by the compressed public key.
	transparentKeySize = chainhash.HashSize + btcec.PubKeyBytesLenCompressed
)

// Key derivation branches below the transparent account key.
const (
	ExternalBranch  uint32 = 0
	InternalBranch  uint32 = 1
	EphemeralBranch uint32 = 2
)

// SeedFingerprint identifies a seed without revealing it.
type SeedFingerprint [32]byte

// String returns the fingerprint as hex.
func (f SeedFingerprint) String() string {
	return fmt.Sprintf("%x", f[:])
}

// NewSeedFingerprint fingerprints a seed as
// BLAKE2b-256("Zcash_HD_Seed_FP", len(seed) || seed).
func NewSeedFingerprint(seed []byte) (SeedFingerprint, error) {
	var fp SeedFingerprint
	if err := checkSeed(seed); err != nil {
		return fp, err
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return fp, err
	}
	h.Write([]byte("Zcash_HD_Seed_FP"))
	h.Write([]byte{byte(len(seed))})
	h.Write(seed)
	copy(fp[:], h.Sum(nil))

	return fp, nil
}

func checkSeed(seed []byte) error {
	if len(seed) < MinSeedLen || len(seed) > MaxSeedLen {
		str := fmt.Sprintf("seed of %d bytes is not between %d and %d "+
			"bytes", len(seed), MinSeedLen, MaxSeedLen)
		return managerError(ErrInvalidSeedLength, str, nil)
	}
	return nil
}

// UnifiedSpendingKey holds the spending keys of one account in every pool.
type UnifiedSpendingKey struct {
	// Account is the ZIP-32 account index the key was derived at.
	Account uint32

	// Transparent is the BIP-44 account level private key
	// m/44'/coin'/account'.
	Transparent *hdkeychain.ExtendedKey

	Sapling *shielded.SpendingKey
	Orchard *shielded.SpendingKey
}

// DeriveUnifiedSpendingKey derives the spending keys of a hardened account
// index from a seed.
func DeriveUnifiedSpendingKey(params *netparams.Params, seed []byte,
	account uint32) (*UnifiedSpendingKey, error) {

	if err := checkSeed(seed); err != nil {
		return nil, err
	}
	if account >= hdkeychain.HardenedKeyStart {
		str := fmt.Sprintf("account index %d is not a hardened index",
			account)
		return nil, managerError(ErrAccountOutOfRange, str, nil)
	}

	master, err := hdkeychain.NewMaster(seed, params.Params)
	if err != nil {
		return nil, managerError(ErrKeyDerivation,
			"failed to create master key", err)
	}
	defer master.Zero()

	path := []uint32{
		purposeBIP44 + hdkeychain.HardenedKeyStart,
		params.CoinType + hdkeychain.HardenedKeyStart,
		account + hdkeychain.HardenedKeyStart,
	}
	key := master
	for _, i := range path {
		key, err = key.Derive(i)
		if err != nil {
			str := fmt.Sprintf("failed to derive account %d key",
				account)
			return nil, managerError(ErrKeyDerivation, str, err)
		}
	}

	usk := &UnifiedSpendingKey{Account: account, Transparent: key}
	for _, p := range shielded.Protocols {
		sk, err := shielded.DeriveSpendingKey(p, seed, params.CoinType,
			account)
		if err != nil {
			return nil, managerError(ErrKeyDerivation,
				"failed to derive "+p.String()+" key", err)
		}
		switch p {
		case shielded.Sapling:
			usk.Sapling = sk
		case shielded.Orchard:
			usk.Orchard = sk
		}
	}

	return usk, nil
}

// SpendingKey returns the key of the given pool.
func (k *UnifiedSpendingKey) SpendingKey(p shielded.Protocol) *shielded.SpendingKey {
	if p == shielded.Orchard {
		return k.Orchard
	}
	return k.Sapling
}

// FullViewingKey returns the unified viewing key of the spending key.
func (k *UnifiedSpendingKey) FullViewingKey() (*UnifiedFullViewingKey, error) {
	pub, err := k.Transparent.Neuter()
	if err != nil {
		return nil, managerError(ErrKeyDerivation,
			"failed to neuter transparent key", err)
	}

	return &UnifiedFullViewingKey{
		Transparent: pub,
		Sapling:     k.Sapling.FullViewingKey(),
		Orchard:     k.Orchard.FullViewingKey(),
	}, nil
}

// TransparentPrivKey derives the private key at branch/index below the
// account key.
func (k *UnifiedSpendingKey) TransparentPrivKey(branch,
	index uint32) (*btcec.PrivateKey, error) {

	child, err := deriveChild(k.Transparent, branch, index)
	if err != nil {
		return nil, err
	}
	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, managerError(ErrKeyDerivation,
			"failed to get private key", err)
	}

	return priv, nil
}

// Zero clears the transparent private key material.
func (k *UnifiedSpendingKey) Zero() {
	if k.Transparent != nil {
		k.Transparent.Zero()
	}
}

func deriveChild(key *hdkeychain.ExtendedKey, branch,
	index uint32) (*hdkeychain.ExtendedKey, error) {

	if index >= hdkeychain.HardenedKeyStart {
		str := fmt.Sprintf("transparent index %d out of range", index)
		return nil, managerError(ErrAddressGeneration, str, nil)
	}
	b, err := key.Derive(branch)
	if err != nil {
		str := fmt.Sprintf("failed to derive branch %d", branch)
		return nil, managerError(ErrKeyDerivation, str, err)
	}
	child, err := b.Derive(index)
	if err != nil {
		str := fmt.Sprintf("failed to derive key %d/%d", branch, index)
		return nil, managerError(ErrKeyDerivation, str, err)
	}

	return child, nil
}

// UnifiedFullViewingKey holds the viewing keys of one account. Any of the
// keys may be missing for imported accounts, but at least one is present.
type UnifiedFullViewingKey struct {
	// Transparent is the neutered account level key.
	Transparent *hdkeychain.ExtendedKey

	Sapling *shielded.FullViewingKey
	Orchard *shielded.FullViewingKey
}

// FullViewingKey returns the key of the given pool, or nil.
func (u *UnifiedFullViewingKey) FullViewingKey(
	p shielded.Protocol) *shielded.FullViewingKey {

	if p == shielded.Orchard {
		return u.Orchard
	}
	return u.Sapling
}

// Protocols returns the shielded pools the key can view.
func (u *UnifiedFullViewingKey) Protocols() []shielded.Protocol {
	var ps []shielded.Protocol
	for _, p := range shielded.Protocols {
		if u.FullViewingKey(p) != nil {
			ps = append(ps, p)
		}
	}
	return ps
}

// TransparentPubKeyHash returns the hash160 of the public key at
// branch/index, or ErrViewingKeyNotFound without a transparent key.
func (u *UnifiedFullViewingKey) TransparentPubKeyHash(branch,
	index uint32) ([]byte, error) {

	if u.Transparent == nil {
		return nil, managerError(ErrViewingKeyNotFound,
			"no transparent viewing key", nil)
	}
	child, err := deriveChild(u.Transparent, branch, index)
	if err != nil {
		return nil, err
	}
	pub, err := child.ECPubKey()
	if err != nil {
		return nil, managerError(ErrKeyDerivation,
			"failed to get public key", err)
	}

	return hash160(pub.SerializeCompressed()), nil
}

// items returns the encoded receiver items of the key by typecode.
func (u *UnifiedFullViewingKey) items() map[tlv.Type][]byte {
	items := make(map[tlv.Type][]byte)
	if u.Transparent != nil {
		if pub, err := u.Transparent.ECPubKey(); err == nil {
			b := make([]byte, 0, transparentKeySize)
			b = append(b, u.Transparent.ChainCode()...)
			items[typeP2PKH] = append(b, pub.SerializeCompressed()...)
		}
	}
	if u.Sapling != nil {
		items[typeSapling] = u.Sapling.Bytes()
	}
	if u.Orchard != nil {
		items[typeOrchard] = u.Orchard.Bytes()
	}
	return items
}

// Equal reports whether both keys view the same funds.
func (u *UnifiedFullViewingKey) Equal(o *UnifiedFullViewingKey) bool {
	a, b := u.items(), o.items()
	if len(a) != len(b) {
		return false
	}
	for typ, v := range a {
		if !bytes.Equal(v, b[typ]) {
			return false
		}
	}
	return true
}

// Encode returns the bech32m encoding of the key for the network.
func (u *UnifiedFullViewingKey) Encode(params *netparams.Params) (string,
	error) {

	return encodeUnified(params.UnifiedFVKHRP, u.items())
}

// ParseUnifiedFullViewingKey decodes a key produced by Encode.
func ParseUnifiedFullViewingKey(params *netparams.Params,
	s string) (*UnifiedFullViewingKey, error) {

	items, err := decodeUnified(params, s, func(p *netparams.Params) string {
		return p.UnifiedFVKHRP
	})
	if err != nil {
		return nil, err
	}

	u := &UnifiedFullViewingKey{}
	if b, ok := items[typeP2PKH]; ok {
		u.Transparent, err = parseTransparentKey(params, b)
		if err != nil {
			return nil, err
		}
	}
	for _, p := range shielded.Protocols {
		b, ok := items[protocolType(p)]
		if !ok {
			continue
		}
		fvk, err := shielded.ParseFullViewingKey(p, b)
		if err != nil {
			return nil, managerError(ErrInvalidEncoding,
				"invalid "+p.String()+" viewing key", err)
		}
		if p == shielded.Orchard {
			u.Orchard = fvk
		} else {
			u.Sapling = fvk
		}
	}

	return u, nil
}

// parseTransparentKey rebuilds the neutered account key from its chain
// code and public key.
func parseTransparentKey(params *netparams.Params,
	b []byte) (*hdkeychain.ExtendedKey, error) {

	if len(b) != transparentKeySize {
		str := fmt.Sprintf("transparent key of %d bytes", len(b))
		return nil, managerError(ErrInvalidEncoding, str, nil)
	}
	chainCode, pubKey := b[:chainhash.HashSize], b[chainhash.HashSize:]
	if _, err := btcec.ParsePubKey(pubKey); err != nil {
		return nil, managerError(ErrInvalidEncoding,
			"invalid transparent public key", err)
	}

	var parentFP [4]byte
	return hdkeychain.NewExtendedKey(
		params.HDPublicKeyID[:], pubKey, chainCode, parentFP[:], 3, 0,
		false,
	), nil
}
