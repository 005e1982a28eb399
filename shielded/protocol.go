// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package shielded implements the primitives of the two shielded pools the
// wallet tracks: keys, diversified payment addresses, notes, note
// encryption, commitments, nullifiers and the note commitment tree hashes.
//
// Both pools expose the same capability set so that the note ledger and the
// block ingestor can treat them uniformly:
//
//   - Commit: a note commits to a tree leaf (Note.Commitment).
//   - Nullify: a note and its viewing key derive a nullifier
//     (FullViewingKey.Nullifier).
//   - Decrypt: an incoming viewing key trial-decrypts a compact output
//     (IncomingViewingKey.DecryptCompact).
//   - Position: the tree position of a note is assigned by the caller and
//     feeds the Sapling nullifier.
//
// The constructions mirror the shape of the Sapling and Orchard protocols
// (diversified Diffie-Hellman keys, in-band note encryption, keyed
// nullifiers) but use BLAKE2b, BLAKE3 and X25519 in place of the pool
// specific curves. No zero-knowledge proofs are involved.
package shielded

import (
	"errors"
	"fmt"
)

// Protocol identifies a shielded pool.
type Protocol uint8

const (
	// Sapling is the Sapling shielded pool.
	Sapling Protocol = 0

	// Orchard is the Orchard shielded pool.
	Orchard Protocol = 1
)

// Protocols lists every shielded pool in canonical order.
var Protocols = []Protocol{Sapling, Orchard}

// String returns the pool name.
func (p Protocol) String() string {
	switch p {
	case Sapling:
		return "sapling"
	case Orchard:
		return "orchard"
	default:
		return fmt.Sprintf("protocol(%d)", uint8(p))
	}
}

// Valid reports whether p names a known pool.
func (p Protocol) Valid() bool {
	return p == Sapling || p == Orchard
}

// Scope is the key scope a note was received at.
type Scope uint8

const (
	// External is the scope of addresses handed out to payers.
	External Scope = 0

	// Internal is the scope used for change.
	Internal Scope = 1
)

// Scopes lists both key scopes.
var Scopes = []Scope{External, Internal}

// String returns the scope name.
func (s Scope) String() string {
	if s == Internal {
		return "internal"
	}
	return "external"
}

var (
	// ErrUnknownProtocol is returned for a protocol value that does not
	// name a pool.
	ErrUnknownProtocol = errors.New("unknown shielded protocol")

	// ErrInvalidDiversifier is returned when a diversifier index does not
	// yield a valid payment address.
	ErrInvalidDiversifier = errors.New("invalid diversifier")

	// ErrDiversifierIndexOverflow is returned when incrementing the
	// largest diversifier index.
	ErrDiversifierIndexOverflow = errors.New("diversifier index " +
		"space exhausted")

	// ErrInvalidEncoding is returned when decoding malformed key or
	// address bytes.
	ErrInvalidEncoding = errors.New("invalid encoding")

	// ErrInvalidSignature is returned when a spend authorization does not
	// verify.
	ErrInvalidSignature = errors.New("invalid spend authorization")
)
