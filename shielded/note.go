// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shielded

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shardtree"
)

// MemoSize is the size of a note memo.
const MemoSize = 512

// Nullifier is revealed when a note is spent.
type Nullifier [32]byte

// String returns the nullifier in hex.
func (n Nullifier) String() string {
	return hex.EncodeToString(n[:])
}

// Note is a shielded unit of value.
type Note struct {
	Protocol  Protocol
	Recipient PaymentAddress
	Value     unit.Zatoshi

	// Rseed seeds the commitment trapdoor and the ephemeral secret.
	Rseed [32]byte

	// Rho is the nullifier of the note spent in the same Orchard
	// action. It is zero for Sapling notes.
	Rho [32]byte
}

// Equal reports whether two notes are identical.
func (n *Note) Equal(o *Note) bool {
	return n.Protocol == o.Protocol && n.Recipient.Equal(&o.Recipient) &&
		n.Value == o.Value && n.Rseed == o.Rseed && n.Rho == o.Rho
}

func (n *Note) rcm() [32]byte {
	if n.Protocol == Orchard {
		return kdf(Orchard, "rcm", n.Rseed[:], n.Rho[:])
	}
	return kdf(Sapling, "rcm", n.Rseed[:])
}

func (n *Note) psi() [32]byte {
	return kdf(Orchard, "psi", n.Rseed[:], n.Rho[:])
}

// esk returns the ephemeral secret used to encrypt the note.
func (n *Note) esk() [32]byte {
	if n.Protocol == Orchard {
		return kdf(Orchard, "esk", n.Rseed[:], n.Rho[:])
	}
	return kdf(Sapling, "esk", n.Rseed[:])
}

// Commitment returns the tree leaf that commits to the note.
func (n *Note) Commitment() shardtree.Node {
	var value [8]byte
	binary.LittleEndian.PutUint64(value[:], uint64(n.Value))
	rcm := n.rcm()
	d, pkd := n.Recipient.Diversifier, n.Recipient.PkD

	if n.Protocol == Orchard {
		psi := n.psi()
		return shardtree.Node(prf3("z.cash:Orchard-NoteCommit", d[:],
			pkd[:], value[:], n.Rho[:], psi[:], rcm[:]))
	}

	return shardtree.Node(prf("Zcash_SaplingNoteCommit", d[:], pkd[:],
		value[:], rcm[:]))
}

// Memo is the encrypted message carried by a note.
type Memo [MemoSize]byte

// EmptyMemo is the memo of a note that carries no message.
var EmptyMemo = Memo{0xf6}

// MemoFromText returns a text memo.
func MemoFromText(s string) (Memo, error) {
	var m Memo
	if len(s) > MemoSize {
		return m, fmt.Errorf("memo of %d bytes exceeds %d", len(s),
			MemoSize)
	}
	if !utf8.ValidString(s) {
		return m, fmt.Errorf("memo is not valid utf-8")
	}
	if len(s) == 0 {
		return EmptyMemo, nil
	}
	copy(m[:], s)

	return m, nil
}

// IsEmpty reports whether the memo carries no message.
func (m Memo) IsEmpty() bool {
	return m == EmptyMemo
}

// Text returns the memo text, if the memo is a text memo.
func (m Memo) Text() (string, bool) {
	if m[0] > 0xf4 {
		return "", false
	}
	text := bytes.TrimRight(m[:], "\x00")
	if !utf8.Valid(text) {
		return "", false
	}
	return string(text), true
}
