// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shielded

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const (
	// DiversifierSize is the size of a diversifier and of a diversifier
	// index.
	DiversifierSize = 11

	// PaymentAddressSize is the encoded size of a payment address.
	PaymentAddressSize = DiversifierSize + 32
)

// Diversifier selects one of the many payment addresses of a key.
type Diversifier [DiversifierSize]byte

// DiversifierIndex is an 88-bit little endian counter over diversifiers.
type DiversifierIndex [DiversifierSize]byte

// NewDiversifierIndex returns the index with value i.
func NewDiversifierIndex(i uint64) DiversifierIndex {
	var idx DiversifierIndex
	binary.LittleEndian.PutUint64(idx[:8], i)
	return idx
}

// Increment advances the index by one. It fails without modifying the index
// when the index is already the largest one.
func (d *DiversifierIndex) Increment() error {
	for i := range d {
		if d[i] != 0xff {
			d[i]++
			for j := 0; j < i; j++ {
				d[j] = 0
			}
			return nil
		}
	}

	return ErrDiversifierIndexOverflow
}

// Uint64 returns the index as an integer if it fits.
func (d DiversifierIndex) Uint64() (uint64, bool) {
	for _, b := range d[8:] {
		if b != 0 {
			return 0, false
		}
	}
	return binary.LittleEndian.Uint64(d[:8]), true
}

// Compare returns -1, 0 or 1 as d is less than, equal to or greater than o.
func (d DiversifierIndex) Compare(o DiversifierIndex) int {
	for i := DiversifierSize - 1; i >= 0; i-- {
		switch {
		case d[i] < o[i]:
			return -1
		case d[i] > o[i]:
			return 1
		}
	}
	return 0
}

// String returns the index in decimal when it fits in 64 bits.
func (d DiversifierIndex) String() string {
	if v, ok := d.Uint64(); ok {
		return fmt.Sprintf("%d", v)
	}
	return "0x" + hex.EncodeToString(d[:])
}

// PaymentAddress is a diversified shielded address.
type PaymentAddress struct {
	Protocol    Protocol
	Diversifier Diversifier

	// PkD is the diversified transmission key.
	PkD [32]byte
}

// Bytes encodes the address as d || pk_d.
func (a *PaymentAddress) Bytes() []byte {
	b := make([]byte, 0, PaymentAddressSize)
	b = append(b, a.Diversifier[:]...)
	return append(b, a.PkD[:]...)
}

// Equal reports whether two addresses are the same receiver.
func (a *PaymentAddress) Equal(o *PaymentAddress) bool {
	return a.Protocol == o.Protocol && a.Diversifier == o.Diversifier &&
		a.PkD == o.PkD
}

// String returns a short hex form for logging.
func (a *PaymentAddress) String() string {
	return fmt.Sprintf("%s:%x", a.Protocol, a.Bytes())
}

// ParsePaymentAddress decodes an address encoded by Bytes.
func ParsePaymentAddress(p Protocol, b []byte) (*PaymentAddress, error) {
	if !p.Valid() {
		return nil, ErrUnknownProtocol
	}
	if len(b) != PaymentAddressSize {
		return nil, fmt.Errorf("%w: %s address of %d bytes",
			ErrInvalidEncoding, p, len(b))
	}

	a := &PaymentAddress{Protocol: p}
	copy(a.Diversifier[:], b[:DiversifierSize])
	copy(a.PkD[:], b[DiversifierSize:])

	if _, ok := diversifiedBase(p, a.Diversifier); !ok {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding,
			ErrInvalidDiversifier)
	}
	if bytes.Equal(a.PkD[:], make([]byte, 32)) {
		return nil, fmt.Errorf("%w: zero transmission key",
			ErrInvalidEncoding)
	}

	return a, nil
}
